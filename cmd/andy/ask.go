package main

import (
	"fmt"
	"strings"

	"github.com/agentscan/andy-web/internal/models"
	"github.com/spf13/cobra"
)

func newAskCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "ask <question>",
		Short:   "Ask a single question and stream the answer",
		Example: `  $ andy ask "How does the trader agent work?"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return fmt.Errorf("question is empty")
			}

			conv, err := opts.conversation(cmd.ErrOrStderr())
			if err != nil {
				printError(cmd.ErrOrStderr(), err)
				return err
			}

			out := cmd.OutOrStdout()
			history := []models.Message{{Role: models.RoleUser, Content: question}}
			_, err = conv.Ask(cmd.Context(), question, history, func(delta string) {
				fmt.Fprint(out, delta)
			})
			fmt.Fprintln(out)
			if err != nil {
				printError(cmd.ErrOrStderr(), err)
				return err
			}
			return nil
		},
	}
}
