package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPurgeCmd(global *globalOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every node and relationship in the store",
		Long: `Delete every node and relationship in the configured store. For the
key-value drivers only the keys below the configured prefix are removed.

Requires --yes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to purge without --yes")
			}

			ctx := cmd.Context()
			store, closer, logger, err := global.openStore(ctx)
			if err != nil {
				return err
			}
			defer closer.Close()
			defer logger.Sync()

			if err := store.Purge(ctx); err != nil {
				return fmt.Errorf("purge failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "purged")
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the purge")
	return cmd
}
