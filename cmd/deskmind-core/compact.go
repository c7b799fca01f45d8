package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newCompactCmd(flags *rootFlags) *cobra.Command {
	var grace time.Duration

	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Reclaim chunks soft-deleted past their grace period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.close()

			c, err := a.core()
			if err != nil {
				return err
			}

			n, err := c.Compact(cmd.Context(), grace)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "reclaimed %d chunk(s)\n", n)
			return nil
		},
	}

	cmd.Flags().DurationVar(&grace, "grace", 0, "Grace period before a soft-deleted chunk is reclaimed (default: the store's configured floor)")

	return cmd
}
