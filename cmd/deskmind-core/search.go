package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deskmind/core/pkg/rag/vectorstore"
)

func newSearchCmd(flags *rootFlags) *cobra.Command {
	var (
		k        int
		topicID  string
		filename string
		format   string
		tag      string
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search ingested documents and print ranked passages",
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

			passages, err := c.Search(cmd.Context(), args[0], k, vectorstore.Filter{
				TopicID:  topicID,
				Filename: filename,
				Format:   format,
				Tag:      tag,
			})
			if err != nil {
				return err
			}

			for i, p := range passages {
				fmt.Fprintf(cmd.OutOrStdout(), "--- [%d] score=%.4f %v ---\n%s\n\n", i+1, p.Score, p.Metadata, p.Text)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&k, "k", 4, "Number of passages to return")
	cmd.Flags().StringVar(&topicID, "topic", "", "Restrict search to a topic ID")
	cmd.Flags().StringVar(&filename, "filename", "", "Restrict search to a source filename")
	cmd.Flags().StringVar(&format, "format", "", "Restrict search to a document format")
	cmd.Flags().StringVar(&tag, "tag", "", "Restrict search to a document tag")

	return cmd
}
