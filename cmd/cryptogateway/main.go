// Command cryptogateway is a small operator CLI over the library: it can
// mint RSA identities, inspect a saved key bank, and run a loopback
// handshake demonstration between two in-process gateways.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cryptogateway",
		Short:         "Identity and handshake tooling for cryptogateway",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(keygenCmd())
	root.AddCommand(bankCmd())
	root.AddCommand(gatewayCmd())

	return root
}
