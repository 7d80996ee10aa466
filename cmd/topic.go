package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTopicCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "topic",
		Short: "Generate a debate topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, "")
			if err != nil {
				return err
			}
			defer a.Close()

			if a.topics == nil {
				return fmt.Errorf("topic generation needs OPENAI_API_KEY")
			}
			topic, err := a.topics.Generate(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), topic)
			return nil
		},
	}
}
