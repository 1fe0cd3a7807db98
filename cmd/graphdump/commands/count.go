package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCountCmd(global *globalOptions) *cobra.Command {
	var label string

	cmd := &cobra.Command{
		Use:   "count",
		Short: "Print the number of nodes carrying a label",
		RunE: func(cmd *cobra.Command, args []string) error {
			if label == "" {
				return fmt.Errorf("--label is required")
			}

			ctx := cmd.Context()
			store, closer, logger, err := global.openStore(ctx)
			if err != nil {
				return err
			}
			defer closer.Close()
			defer logger.Sync()

			n, err := store.CountNodes(ctx, label)
			if err != nil {
				return fmt.Errorf("count failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}

	cmd.Flags().StringVarP(&label, "label", "l", "", "node label to count")
	return cmd
}
