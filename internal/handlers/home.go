package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/agentscan/andy-web/internal/models"
	"github.com/agentscan/andy-web/internal/services"
)

type homePageData struct {
	Greeting         string
	ExampleQuestions []string

	Chats         []chat
	CurrentChatID string
	Messages      []message

	Authenticated bool
	Loading       bool
}

// HandleHome renders the landing view with the greeting, the example questions and the chat history.
// With a chat_id query parameter it opens that chat; an unknown chat answers 404.
func (m Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	chatID := r.URL.Query().Get("chat_id")

	chats, err := m.chats(r.Context(), chatID)
	if err != nil {
		m.logger.Error("Failed to get chats", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	greeting, err := m.greetingMessage()
	if err != nil {
		m.logger.Error("Failed to render greeting", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := homePageData{
		Greeting:         m.greeting,
		ExampleQuestions: m.exampleQuestions,
		Chats:            chats,
		CurrentChatID:    chatID,
		Messages:         []message{greeting},
		Authenticated:    m.conversation.Authenticated(r.Context()),
	}

	if chatID != "" {
		msgs, loading, err := m.chatMessages(r, chatID)
		if errors.Is(err, services.ErrChatNotFound) {
			http.Error(w, "Chat not found", http.StatusNotFound)
			return
		}
		if err != nil {
			m.logger.Error("Failed to get messages",
				slog.String("chatID", chatID),
				slog.String(errLoggerKey, err.Error()))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		data.Messages = append(data.Messages, msgs...)
		data.Loading = loading
	}

	if err := m.templates.ExecuteTemplate(w, "home.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// chatMessages renders the stored messages of a chat. While an answer is streaming the partial answer
// only lives in the transcript, so it is appended from there.
func (m Main) chatMessages(r *http.Request, chatID string) ([]message, bool, error) {
	stored, err := m.store.Messages(r.Context(), chatID)
	if err != nil {
		return nil, false, err
	}

	loading := false
	if t, ok := m.inFlight(chatID); ok {
		loading = true
		// The answer is stored just before the chat is released.
		live := t.Messages()
		answered := len(stored) > 0 && stored[len(stored)-1].Role == models.RoleAssistant
		if n := len(live); n > 0 && live[n-1].Role == models.RoleAssistant && !answered {
			stored = append(stored, live[n-1])
		}
	}

	msgs := make([]message, len(stored))
	for i, msg := range stored {
		state := models.StreamingStateEnded
		if loading && i == len(stored)-1 && msg.Role == models.RoleAssistant {
			state = models.StreamingStateStreaming
		}
		rendered, err := renderMessage(msg, state)
		if err != nil {
			return nil, false, fmt.Errorf("failed to render message %s: %w", msg.ID, err)
		}
		msgs[i] = rendered
	}
	return msgs, loading, nil
}
