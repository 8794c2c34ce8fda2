package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/agentscan/andy-web/internal/services"
	"github.com/charmbracelet/lipgloss"
)

var styles = struct {
	bold    lipgloss.Style
	prompt  lipgloss.Style
	andy    lipgloss.Style
	err     lipgloss.Style
	warning lipgloss.Style
	hint    lipgloss.Style
	banner  lipgloss.Style
}{
	bold:    lipgloss.NewStyle().Bold(true),
	prompt:  lipgloss.NewStyle().Foreground(lipgloss.Color("141")).Bold(true), // Purple
	andy:    lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true),  // Cyan
	err:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true), // Red
	warning: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),            // Orange
	hint:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),            // Gray
	banner: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("141")).
		Padding(0, 2),
}

// printError renders err for the terminal. Rate limits show the message the API asked to show.
func printError(w io.Writer, err error) {
	var rl *services.RateLimitError
	if errors.As(err, &rl) {
		fmt.Fprintln(w, styles.warning.Render("⚠ "+rl.Message))
		return
	}
	fmt.Fprintln(w, styles.err.Render("✗ "+err.Error()))
}
