package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTopicCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topic",
		Short: "Manage retrieval topics",
	}

	cmd.AddCommand(newTopicListCmd(flags))
	cmd.AddCommand(newTopicCreateCmd(flags))
	cmd.AddCommand(newTopicDeleteCmd(flags))

	return cmd
}

func newTopicListCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every topic",
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

			topics, err := c.ListTopics(cmd.Context())
			if err != nil {
				return err
			}

			for _, t := range topics {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d document(s)\n", t.ID, t.Name, t.DocumentCount)
			}
			return nil
		},
	}
}

func newTopicCreateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "create [name]",
		Short: "Create a new topic",
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

			topic, err := c.CreateTopic(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "created topic %s (%s)\n", topic.Name, topic.ID)
			return nil
		},
	}
}

func newTopicDeleteCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a topic and every document/chunk it owns",
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

			if err := c.DeleteTopic(cmd.Context(), args[0]); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "deleted topic %s\n", args[0])
			return nil
		},
	}
}
