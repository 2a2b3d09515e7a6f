package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/skyformat99/cryptogateway/internal/keybank"
	"github.com/skyformat99/cryptogateway/internal/logging"
	"github.com/skyformat99/cryptogateway/internal/userctx"
)

func bankCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bank",
		Short: "Inspect a user's key bank",
	}
	cmd.AddCommand(bankListCmd())
	return cmd
}

func bankListCmd() *cobra.Command {
	var (
		user     string
		dir      string
		password string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the peers trusted in a user's key bank",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.NewLogger("info", "text")

			u, err := userctx.Load(user, dir, []byte(password), logger)
			if err != nil {
				return fmt.Errorf("load user: %w", err)
			}

			nodes := u.KeyBank().Nodes()
			if len(nodes) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "key bank is empty")
				return nil
			}

			out := cmd.OutOrStdout()
			for _, node := range nodes {
				names := keybank.NamesByTimestamp(node)
				keys := keybank.KeysByTimestamp(node)
				fmt.Fprintf(out, "node %d\n", node.ID())
				for _, n := range names {
					fmt.Fprintf(out, "  name  %s/%s  (learned %s)\n", n.Group, n.Name, humanize.Time(n.Timestamp))
				}
				for _, k := range keys {
					fmt.Fprintf(out, "  key   algo=%d words=%d  %s bytes  (learned %s)\n",
						k.AlgoID, k.KeyWords, humanize.Bytes(uint64(len(k.Value))), humanize.Time(k.Timestamp))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "user name whose key bank to list (required)")
	cmd.Flags().StringVar(&dir, "dir", ".", "directory identities are saved under")
	cmd.Flags().StringVar(&password, "password", "", "password unwrapping the saved bank file")
	cmd.MarkFlagRequired("user")

	return cmd
}
