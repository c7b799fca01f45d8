package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deskmind/core/pkg/core"
)

func newTokensCmd(flags *rootFlags) *cobra.Command {
	var (
		sessionID string
		mode      string
		model     string
		agent     string
		date      string
	)

	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Print aggregate token usage and cost for one dimension",
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

			totals := c.TokenStats(core.TokenStatsRange{
				SessionID: sessionID,
				Mode:      mode,
				Model:     model,
				Agent:     agent,
				Date:      date,
			})

			fmt.Fprintf(cmd.OutOrStdout(), "input=%d output=%d cost=$%.4f records=%d\n",
				totals.InputTokens, totals.OutputTokens, totals.Cost, totals.RecordCount)
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Scope to a session ID")
	cmd.Flags().StringVar(&mode, "mode", "", "Scope to a chat mode")
	cmd.Flags().StringVar(&model, "model", "", "Scope to a model ID")
	cmd.Flags().StringVar(&agent, "agent", "", "Scope to an agent name")
	cmd.Flags().StringVar(&date, "date", "", "Scope to a date, YYYY-MM-DD")

	return cmd
}
