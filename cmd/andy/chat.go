package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/agentscan/andy-web/internal/models"
	"github.com/agentscan/andy-web/internal/transcript"
	"github.com/spf13/cobra"
)

func newChatCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat with Andy",
		Long: `Start an interactive chat. Every question is sent with the previous turns
of the chat. Type /new to start over and /exit to quit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conv, err := opts.conversation(cmd.ErrOrStderr())
			if err != nil {
				printError(cmd.ErrOrStderr(), err)
				return err
			}
			return runChat(cmd, transcript.New(conv.Opener()))
		},
	}
}

func runChat(cmd *cobra.Command, t *transcript.Transcript) error {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, styles.banner.Render(models.Greeting))
	fmt.Fprintln(out, styles.hint.Render("Try: "+models.ExampleQuestions[0]))

	printed := 0
	t.OnUpdate = func(msg models.Message) {
		fmt.Fprint(out, msg.Content[printed:])
		printed = len(msg.Content)
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, styles.prompt.Render("you › "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		question := strings.TrimSpace(scanner.Text())
		switch question {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/new":
			if err := t.Reset(); err != nil {
				printError(cmd.ErrOrStderr(), err)
			}
			fmt.Fprintln(out, styles.hint.Render("Started a new chat"))
			continue
		}

		fmt.Fprint(out, styles.andy.Render("andy › "))
		printed = 0
		_, err := t.Send(cmd.Context(), question)
		fmt.Fprintln(out)
		if err != nil {
			printError(cmd.ErrOrStderr(), err)
		}
	}
}
