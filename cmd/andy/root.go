package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/agentscan/andy-web/internal/services"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

type options struct {
	apiURL  string
	teamID  string
	token   string
	agent   string
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:     "andy",
		Short:   "Ask Andy the agent from a terminal",
		Version: version,
		Long: `A terminal client for the Andy conversation API. Answers are streamed
to the terminal as they are generated.`,
		Example: `  # Ask a single question
  $ andy ask "What is an OLAS Agent?"

  # Start an interactive chat
  $ andy chat

  # Talk to a specific agent instance
  $ andy chat --agent trader`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.apiURL, "api-url", os.Getenv("ANDY_API_URL"), "base URL of the conversation API")
	flags.StringVar(&opts.teamID, "team-id", os.Getenv("ANDY_TEAM_ID"), "team the conversation belongs to")
	flags.StringVar(&opts.token, "token", os.Getenv("ANDY_API_TOKEN"), "access token of the signed in user")
	flags.StringVar(&opts.agent, "agent", "", "agent instance to talk to instead of the general assistant")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log requests to stderr")

	rootCmd.AddCommand(newAskCmd(opts))
	rootCmd.AddCommand(newChatCmd(opts))

	rootCmd.SetUsageTemplate(usageTemplate())
	rootCmd.SetVersionTemplate(fmt.Sprintf("andy version %s\n", version))

	return rootCmd
}

func (o *options) conversation(stderr io.Writer) (services.Conversation, error) {
	if o.apiURL == "" {
		return services.Conversation{}, fmt.Errorf("an API URL is required, use --api-url or ANDY_API_URL")
	}

	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	cfg := services.APIConfig{
		BaseURL: o.apiURL,
		TeamID:  o.teamID,
		Tokens:  services.StaticToken(o.token),
		Source:  "cli",
	}
	if o.agent != "" {
		cfg.Type = "agent"
		cfg.Instance = o.agent
	}
	return services.NewConversation(cfg, logger), nil
}

func usageTemplate() string {
	return `{{if .Long}}{{.Long}}

{{end}}` + styles.bold.Render("USAGE") + `
  {{.UseLine}}{{if .HasAvailableSubCommands}}
  {{.CommandPath}} [command]{{end}}

{{if .HasExample}}` + styles.bold.Render("EXAMPLES") + `
{{.Example}}

{{end}}{{if .HasAvailableSubCommands}}` + styles.bold.Render("COMMANDS") + `{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

{{end}}{{if .HasAvailableLocalFlags}}` + styles.bold.Render("OPTIONS") + `
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}{{if .HasAvailableInheritedFlags}}` + styles.bold.Render("GLOBAL OPTIONS") + `
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}`
}
