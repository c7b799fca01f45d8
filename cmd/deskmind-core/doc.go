package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDocCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doc",
		Short: "Manage ingested documents",
	}

	cmd.AddCommand(newDocListCmd(flags))
	cmd.AddCommand(newDocDeleteCmd(flags))

	return cmd
}

func newDocListCmd(flags *rootFlags) *cobra.Command {
	var topicID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List documents, optionally scoped to a topic",
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

			docs, err := c.ListDocuments(cmd.Context(), topicID)
			if err != nil {
				return err
			}

			for _, d := range docs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%d bytes\n", d.ID, d.SourcePath, d.Format, d.ByteSize)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&topicID, "topic", "", "Restrict the listing to one topic ID")

	return cmd
}

func newDocDeleteCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a document and its chunks",
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

			if err := c.DeleteDocument(cmd.Context(), args[0]); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "deleted document %s\n", args[0])
			return nil
		},
	}
}
