package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/skyformat99/cryptogateway/internal/gateway"
	"github.com/skyformat99/cryptogateway/internal/logging"
	"github.com/skyformat99/cryptogateway/internal/rsakeypair"
	"github.com/skyformat99/cryptogateway/internal/suite"
	"github.com/skyformat99/cryptogateway/internal/userctx"
)

func gatewayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Handshake tooling",
	}
	cmd.AddCommand(gatewayDemoCmd())
	return cmd
}

// gatewayDemoCmd runs two in-process gateways against each other, alternating
// GetMessage/ProcessMessage until both sides reach ESTABLISHED, then
// round-trips one application message each way. It exercises the handshake
// end to end without a network transport; a Gateway consumes and produces
// messages and leaves carrying them to the caller.
func gatewayDemoCmd() *cobra.Command {
	var (
		words   int
		rounds  int
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a loopback handshake between two freshly generated identities",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.NewLogger("info", "text")
			out := cmd.OutOrStdout()

			alice, err := buildDemoUser(words, rounds, logger)
			if err != nil {
				return fmt.Errorf("build alice: %w", err)
			}
			bob, err := buildDemoUser(words, rounds, logger)
			if err != nil {
				return fmt.Errorf("build bob: %w", err)
			}

			pkPref := demoPublicKeyPreference(words)
			hashPref := gateway.HashPreference{AlgoID: suite.HashSHA256, Bytes: 32}

			if _, err := alice.InsertSettings("demo", "alice", pkPref, hashPref, suite.StreamChaCha20); err != nil {
				return fmt.Errorf("alice settings: %w", err)
			}
			if _, err := bob.InsertSettings("demo", "bob", pkPref, hashPref, suite.StreamChaCha20); err != nil {
				return fmt.Errorf("bob settings: %w", err)
			}

			timing := userctx.GatewayTiming{
				Timeout:       timeout,
				SafeTimeout:   timeout * 3 / 4,
				ErrorTimeout:  timeout / 3,
				StreamTimeout: timeout * 10,
			}

			aliceGW, err := alice.Gateway("demo", timing)
			if err != nil {
				return fmt.Errorf("alice gateway: %w", err)
			}
			bobGW, err := bob.Gateway("demo", timing)
			if err != nil {
				return fmt.Errorf("bob gateway: %w", err)
			}

			if err := runHandshake(out, aliceGW, bobGW); err != nil {
				return err
			}

			aliceMsg, err := aliceGW.Send([]byte("hello from alice"))
			if err != nil {
				return fmt.Errorf("alice send: %w", err)
			}
			plain, err := bobGW.ProcessMessage(aliceMsg)
			if err != nil {
				return fmt.Errorf("bob receive: %w", err)
			}
			fmt.Fprintf(out, "bob received: %q\n", plain)

			bobMsg, err := bobGW.Send([]byte("hello from bob"))
			if err != nil {
				return fmt.Errorf("bob send: %w", err)
			}
			plain, err = aliceGW.ProcessMessage(bobMsg)
			if err != nil {
				return fmt.Errorf("alice receive: %w", err)
			}
			fmt.Fprintf(out, "alice received: %q\n", plain)

			return nil
		},
	}

	cmd.Flags().IntVar(&words, "words", 4, "modulus width in 32-bit words (4 = 128 bit, fast for a demo)")
	cmd.Flags().IntVar(&rounds, "rounds", 10, "Miller-Rabin rounds per prime candidate")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "gateway inactivity timeout")

	return cmd
}

// buildDemoUser generates a fresh in-memory identity of the given modulus
// width; it never touches disk, so the demo needs no --dir flag.
func buildDemoUser(words, rounds int, logger *slog.Logger) (*userctx.User, error) {
	u, err := userctx.New(fmt.Sprintf("demo-%d", time.Now().UnixNano()), "", nil, logger)
	if err != nil {
		return nil, err
	}
	algoID := demoPublicKeyPreference(words).AlgoID
	kp := rsakeypair.New(words, algoID, 5, logger)
	if err := <-kp.Generate(rounds); err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	u.AddPublicKey(kp, algoID)
	return u, nil
}

// demoPublicKeyPreference picks a registered public-key algorithm id for the
// requested modulus width, falling back to 0 for widths the global registry
// doesn't name. The id is not checked against the registry; it is carried
// into Settings, the keypair, and the key-bank index as given.
func demoPublicKeyPreference(words int) gateway.PublicKeyPreference {
	var algoID uint16
	switch words {
	case 4:
		algoID = 1 // rsa-128
	case 8:
		algoID = 2 // rsa-256
	case 16:
		algoID = 3 // rsa-512
	}
	return gateway.PublicKeyPreference{AlgoID: algoID, Words: words}
}

// runHandshake alternates GetMessage/ProcessMessage between two gateways
// for at most 10 rounds.
func runHandshake(out io.Writer, a, b *gateway.Gateway) error {
	for i := 0; i < 10; i++ {
		if a.CurrentState() == gateway.StateEstablished && b.CurrentState() == gateway.StateEstablished {
			fmt.Fprintf(out, "established after %d round(s)\n", i)
			return nil
		}

		aMsg, err := a.GetMessage()
		if err != nil {
			return fmt.Errorf("alice getMessage: %w", err)
		}
		bMsg, err := b.GetMessage()
		if err != nil {
			return fmt.Errorf("bob getMessage: %w", err)
		}

		if _, err := b.ProcessMessage(aMsg); err != nil {
			return fmt.Errorf("bob processMessage: %w", err)
		}
		if _, err := a.ProcessMessage(bMsg); err != nil {
			return fmt.Errorf("alice processMessage: %w", err)
		}
	}

	if a.CurrentState() != gateway.StateEstablished || b.CurrentState() != gateway.StateEstablished {
		return fmt.Errorf("gateway: handshake did not reach ESTABLISHED within 10 rounds (alice=%s bob=%s)", a.CurrentState(), b.CurrentState())
	}
	return nil
}
