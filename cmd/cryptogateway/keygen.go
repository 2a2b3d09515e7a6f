package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skyformat99/cryptogateway/internal/logging"
	"github.com/skyformat99/cryptogateway/internal/rsakeypair"
	"github.com/skyformat99/cryptogateway/internal/userctx"
)

func keygenCmd() *cobra.Command {
	var (
		user     string
		dir      string
		password string
		words    int
		algoID   uint16
		history  int
		rounds   int
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an RSA identity and save it under a user directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.NewLogger("info", "text")

			u, err := userctx.New(user, dir, []byte(password), logger)
			if err != nil {
				return fmt.Errorf("create user: %w", err)
			}

			kp := rsakeypair.New(words, algoID, history, logger)
			if err := <-kp.Generate(rounds); err != nil {
				return fmt.Errorf("generate keypair: %w", err)
			}

			u.AddPublicKey(kp, algoID)
			if err := u.Save(); err != nil {
				return fmt.Errorf("save user: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "generated %d-bit key for %q under %s\n", kp.BitLength(), user, u.Directory())
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "user name to generate an identity for (required)")
	cmd.Flags().StringVar(&dir, "dir", ".", "directory identities are saved under")
	cmd.Flags().StringVar(&password, "password", "", "password wrapping the saved identity file (empty uses the fixed password \"default\")")
	cmd.Flags().IntVar(&words, "words", 8, "modulus width in 32-bit words (8 = 256 bit)")
	cmd.Flags().Uint16Var(&algoID, "algo", 2, "public-key algorithm id (registered: 1 = rsa-128, 2 = rsa-256, 3 = rsa-512)")
	cmd.Flags().IntVar(&history, "history", 5, "retired-key history length")
	cmd.Flags().IntVar(&rounds, "rounds", 0, "Miller-Rabin rounds per prime candidate (0 = library default)")
	cmd.MarkFlagRequired("user")

	return cmd
}
