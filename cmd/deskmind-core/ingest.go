package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deskmind/core/pkg/rag/ingest"
)

func newIngestCmd(flags *rootFlags) *cobra.Command {
	var topicID string
	var watch bool

	cmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Ingest files into the vector store under a topic",
		Args:  cobra.MinimumNArgs(1),
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

			result, err := c.Ingest(cmd.Context(), args, topicID, func(ev ingest.ProgressEvent) {
				switch ev.Kind {
				case ingest.EventProgress:
					fmt.Fprintf(cmd.OutOrStdout(), "[%d/%d] %s\n", ev.Done, ev.Total, ev.File)
				case ingest.EventComplete:
					fmt.Fprintf(cmd.OutOrStdout(), "done: %s (%d chunks)\n", ev.File, ev.ChunkCount)
				case ingest.EventError:
					fmt.Fprintf(cmd.OutOrStdout(), "failed: %s: %v\n", ev.File, ev.Err)
				}
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "ingested %d file(s), %d failure(s)\n", len(result.Completed), len(result.Failed))

			if !watch {
				return nil
			}

			watcher, err := ingest.NewWatcher(a.ingest, args, topicID)
			if err != nil {
				return fmt.Errorf("start file watcher: %w", err)
			}
			defer watcher.Close()

			fmt.Fprintln(cmd.OutOrStdout(), "watching for changes, press Ctrl+C to stop")
			watcher.Run(cmd.Context())
			return nil
		},
	}

	cmd.Flags().StringVar(&topicID, "topic", "", "Topic ID to ingest into (required)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep running and re-ingest files when they change on disk")
	cmd.MarkFlagRequired("topic")

	return cmd
}
