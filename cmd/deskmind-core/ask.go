package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deskmind/core/pkg/chatmode"
	"github.com/deskmind/core/pkg/orchestrator"
)

func newAskCmd(flags *rootFlags) *cobra.Command {
	var (
		sessionID   string
		messageID   string
		mode        string
		strategy    string
		topicFilter string
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Run a single chat turn through the Chat Mode Router",
		Args:  cobra.ExactArgs(1),
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

			result, err := c.ProcessTurn(
				cmd.Context(),
				sessionID,
				messageID,
				args[0],
				chatmode.Mode(mode),
				nil,
				topicFilter,
				orchestrator.Strategy(strategy),
			)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), result.Answer)
			if len(result.UsedTools) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "tools used: %v\n", result.UsedTools)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "tokens: %d in, %d out, $%.4f\n", result.Usage.InputTokens, result.Usage.OutputTokens, result.Usage.Cost)
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "cli", "Session ID this turn belongs to")
	cmd.Flags().StringVar(&messageID, "message-id", "1", "Message ID for this turn")
	cmd.Flags().StringVar(&mode, "mode", string(chatmode.ModeRAG), "Chat mode: simple, tool, or rag")
	cmd.Flags().StringVar(&strategy, "strategy", "", "Orchestrator strategy for rag mode: sequential, parallel, conditional, or hybrid (default: configured default)")
	cmd.Flags().StringVar(&topicFilter, "topic", "", "Restrict rag mode retrieval to one topic ID")

	return cmd
}
