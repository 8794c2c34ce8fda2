package services

import (
	"context"
	"strings"

	"github.com/agentscan/andy-web/internal/models"
)

// DefaultTitlePrompt is the system prompt sent to title generating models.
const DefaultTitlePrompt = "Generate a short title, at most six words, for a chat that starts with the " +
	"following question. Answer with the title only, without quotes."

// FirstLine titles a chat with the first line of its first question. It needs no model.
type FirstLine struct{}

// GenerateTitle implements the title generator without any remote call.
func (FirstLine) GenerateTitle(_ context.Context, question string) (string, error) {
	return models.TitleFromQuestion(question), nil
}

// cleanTitle strips what models tend to wrap titles with. An empty result falls back to the question.
func cleanTitle(title, question string) string {
	title = strings.TrimSpace(title)
	title = strings.Trim(title, "\"'`*# ")
	title = strings.TrimPrefix(title, "Title: ")
	if title == "" {
		return models.TitleFromQuestion(question)
	}
	return models.TitleFromQuestion(title)
}
