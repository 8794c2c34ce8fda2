package models

import (
	"strings"
	"time"
)

// Chat represents a conversation container in the local history. It provides basic identification and
// labeling for organizing message threads.
type Chat struct {
	ID        string
	Title     string
	CreatedAt time.Time
}

// Message represents a single turn of the transcript. Only the most recent assistant message is ever
// mutated, by appending streamed deltas to Content.
type Message struct {
	ID        string    `json:"id,omitempty"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Session is a conversation session kept by the remote API for an authenticated user.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// Role represents the role of a message participant.
type Role string

const (
	// RoleUser represents a message typed by the user.
	RoleUser Role = "user"
	// RoleAssistant represents a message produced by Andy.
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

const maxTitleRunes = 48

// TitleFromQuestion derives a chat title from the first line of a question, truncated to a readable
// length on a rune boundary.
func TitleFromQuestion(question string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(question), "\n")
	line = strings.TrimSpace(line)

	runes := []rune(line)
	if len(runes) <= maxTitleRunes {
		return line
	}
	return strings.TrimSpace(string(runes[:maxTitleRunes-1])) + "…"
}
