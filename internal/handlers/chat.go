package handlers

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/agentscan/andy-web/internal/models"
	"github.com/agentscan/andy-web/internal/services"
	"github.com/agentscan/andy-web/internal/transcript"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/tmaxmax/go-sse"
)

type chat struct {
	ID        string
	Title     string
	CreatedAt time.Time

	Active bool
}

type message struct {
	ID        string
	Role      string
	Content   template.HTML
	Timestamp time.Time

	StreamingState string
}

// SSE event types for real-time updates.
var (
	chatsSSEType       = sse.Type("chats")
	messagesSSEType    = sse.Type("messages")
	rateLimitedSSEType = sse.Type("rateLimited")
	errorSSEType       = sse.Type("failed")
	closeSSEType       = sse.Type("closeMessage")
	acceptedSSEType    = sse.Type("accepted")
)

const (
	genericErrorMessage = "An error occurred. Please try again later"
	busyMessage         = "Andy is still answering the previous question"
)

// HandleChats accepts a question through the "message" form field, with an optional "chat_id". Without
// a chat_id it starts a new chat. The user message is stored right away and the answer is streamed in
// the background to the chat's SSE topic; the response only renders the optimistic part of the
// transcript.
//
// A chat that is still streaming answers 409, an unknown chat 404.
func (m Main) HandleChats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	question := strings.TrimSpace(r.FormValue("message"))
	if question == "" {
		m.logger.Error("Message is required")
		http.Error(w, "Message is required", http.StatusBadRequest)
		return
	}

	var err error

	chatID := r.FormValue("chat_id")
	// We track if this is a new chat to determine the appropriate template rendering strategy
	isNewChat := false
	if chatID == "" {
		chatID, err = m.newChat(r.Context())
		if err != nil {
			m.logger.Error("Failed to create new chat", slog.String(errLoggerKey, err.Error()))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		isNewChat = true
	} else if _, err := m.store.Chat(r.Context(), chatID); err != nil {
		if errors.Is(err, services.ErrChatNotFound) {
			http.Error(w, "Chat not found", http.StatusNotFound)
			return
		}
		m.logger.Error("Failed to get chat", slog.String("chatID", chatID), slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	t, err := m.startSend(r.Context(), chatID)
	if errors.Is(err, transcript.ErrBusy) {
		http.Error(w, busyMessage, http.StatusConflict)
		return
	}
	if err != nil {
		m.logger.Error("Failed to load transcript",
			slog.String("chatID", chatID),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	um := models.Message{
		ID:        uuid.New().String(),
		Role:      models.RoleUser,
		Content:   question,
		Timestamp: time.Now(),
	}
	userMsgID, err := m.store.AddMessage(r.Context(), chatID, um)
	if err != nil {
		m.finishSend(chatID)
		m.logger.Error("Failed to add user message",
			slog.String("message", fmt.Sprintf("%+v", um)),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	um.ID = userMsgID

	// Clients subscribe to the chat after this response arrives. They pass the ID of this event and get
	// everything the send publishes after it replayed.
	accepted := &sse.Message{Type: acceptedSSEType}
	accepted.AppendData(um.ID)
	eventID, err := m.publish(accepted, chatTopic(chatID))
	if err != nil {
		m.logger.Error("Failed to publish accepted event",
			slog.String("chatID", chatID),
			slog.String(errLoggerKey, err.Error()))
	}

	go m.chat(chatID, um, t)

	if isNewChat {
		go m.generateChatTitle(chatID, question)
	}

	userMsg, err := renderMessage(um, models.StreamingStateEnded)
	if err != nil {
		m.logger.Error("Failed to render message",
			slog.String("message", fmt.Sprintf("%+v", um)),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("X-Chat-ID", chatID)
	w.Header().Set("X-Event-ID", eventID)

	if isNewChat {
		greeting, err := m.greetingMessage()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		data := homePageData{
			Greeting:         m.greeting,
			ExampleQuestions: m.exampleQuestions,
			CurrentChatID:    chatID,
			Messages:         []message{greeting, userMsg},
			Loading:          true,
		}
		if err := m.templates.ExecuteTemplate(w, "chatbox", data); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	if err := m.templates.ExecuteTemplate(w, "user_message", userMsg); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := m.templates.ExecuteTemplate(w, "loading_message", nil); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleDeleteChat removes a chat from the local history.
func (m Main) HandleDeleteChat(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["id"]
	if chatID == "" {
		http.Error(w, "Chat ID is required", http.StatusBadRequest)
		return
	}

	if _, ok := m.inFlight(chatID); ok {
		http.Error(w, busyMessage, http.StatusConflict)
		return
	}
	if err := m.store.DeleteChat(r.Context(), chatID); err != nil {
		m.logger.Error("Failed to delete chat",
			slog.String("chatID", chatID),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	m.publishChats("")
	w.WriteHeader(http.StatusNoContent)
}

func (m Main) newChat(ctx context.Context) (string, error) {
	newChat := models.Chat{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
	}
	newChatID, err := m.store.AddChat(ctx, newChat)
	if err != nil {
		return "", fmt.Errorf("failed to add chat: %w", err)
	}

	m.publishChats(newChatID)
	return newChatID, nil
}

// chat sends the question through the chat transcript and persists the answer. On failure the stored
// user message is removed again, mirroring the transcript rollback, and the client is told why. The chat
// stays claimed until the store reflects the outcome, so the next send always sees a complete history.
func (m Main) chat(chatID string, um models.Message, t *transcript.Transcript) {
	// Ensure the client stops waiting on function exit
	defer func() {
		e := &sse.Message{Type: closeSSEType}
		e.AppendData("bye")
		if _, err := m.publish(e, chatTopic(chatID)); err != nil {
			m.logger.Error("Failed to publish close event",
				slog.String("chatID", chatID),
				slog.String(errLoggerKey, err.Error()))
		}
	}()
	defer m.finishSend(chatID)

	answer, err := t.Send(m.ctx, um.Content)
	if err != nil {
		m.rollbackUserMessage(chatID, um.ID)

		var rl *services.RateLimitError
		switch {
		case errors.As(err, &rl):
			m.publishEvent(chatID, rateLimitedSSEType, rl.Message)
		case errors.Is(err, transcript.ErrBusy):
			m.publishEvent(chatID, errorSSEType, busyMessage)
		default:
			m.logger.Error("Failed to get answer",
				slog.String("chatID", chatID),
				slog.String(errLoggerKey, err.Error()))
			m.publishEvent(chatID, errorSSEType, genericErrorMessage)
		}
		return
	}

	answer.ID = uuid.New().String()
	if _, err := m.store.AddMessage(context.Background(), chatID, answer); err != nil {
		m.logger.Error("Failed to add AI message",
			slog.String("chatID", chatID),
			slog.String(errLoggerKey, err.Error()))
	}
}

func (m Main) rollbackUserMessage(chatID, messageID string) {
	if err := m.store.DeleteMessage(context.Background(), chatID, messageID); err != nil {
		m.logger.Error("Failed to roll back user message",
			slog.String("chatID", chatID),
			slog.String("messageID", messageID),
			slog.String(errLoggerKey, err.Error()))
	}
}

func (m Main) publishAnswer(chatID string, answer models.Message) {
	rendered, err := renderMessage(answer, models.StreamingStateStreaming)
	if err != nil {
		m.logger.Error("Failed to render answer",
			slog.String("chatID", chatID),
			slog.String(errLoggerKey, err.Error()))
		return
	}

	var sb strings.Builder
	if err := m.templates.ExecuteTemplate(&sb, "ai_message", rendered); err != nil {
		m.logger.Error("Failed to execute ai_message template", slog.String(errLoggerKey, err.Error()))
		return
	}

	msg := sse.Message{Type: messagesSSEType}
	msg.AppendData(sb.String())
	if _, err := m.publish(&msg, chatTopic(chatID)); err != nil {
		m.logger.Error("Failed to publish message",
			slog.String("chatID", chatID),
			slog.String(errLoggerKey, err.Error()))
	}
}

func (m Main) publishEvent(chatID string, typ sse.EventType, data string) {
	msg := sse.Message{Type: typ}
	msg.AppendData(data)
	if _, err := m.publish(&msg, chatTopic(chatID)); err != nil {
		m.logger.Error("Failed to publish event",
			slog.String("chatID", chatID),
			slog.String(errLoggerKey, err.Error()))
	}
}

func (m Main) generateChatTitle(chatID string, question string) {
	title, err := m.titleGenerator.GenerateTitle(m.ctx, question)
	if err != nil {
		m.logger.Error("Error generating chat title",
			slog.String("message", question),
			slog.String(errLoggerKey, err.Error()))
		return
	}

	current, err := m.store.Chat(context.Background(), chatID)
	if err != nil {
		m.logger.Error("Failed to get chat for title",
			slog.String("chatID", chatID),
			slog.String(errLoggerKey, err.Error()))
		return
	}
	current.Title = title
	if err := m.store.UpdateChat(context.Background(), current); err != nil {
		m.logger.Error("Failed to update chat title",
			slog.String(errLoggerKey, err.Error()))
		return
	}

	m.publishChats(chatID)
}

func (m Main) publishChats(activeID string) {
	divs, err := m.chatDivs(activeID)
	if err != nil {
		m.logger.Error("Failed to generate chat divs",
			slog.String(errLoggerKey, err.Error()))
		return
	}

	msg := sse.Message{
		Type: chatsSSEType,
	}
	msg.AppendData(divs)
	if _, err := m.publish(&msg, chatsSSETopic); err != nil {
		m.logger.Error("Failed to publish chats",
			slog.String(errLoggerKey, err.Error()))
	}
}

func (m Main) chatDivs(activeID string) (string, error) {
	chats, err := m.chats(context.Background(), activeID)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, ch := range chats {
		if err := m.templates.ExecuteTemplate(&sb, "chat_title", ch); err != nil {
			return "", fmt.Errorf("failed to execute chat_title template: %w", err)
		}
	}
	return sb.String(), nil
}

func (m Main) chats(ctx context.Context, activeID string) ([]chat, error) {
	stored, err := m.store.Chats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chats: %w", err)
	}

	chats := make([]chat, len(stored))
	for i, ch := range stored {
		title := ch.Title
		if title == "" {
			title = "New chat"
		}
		chats[i] = chat{
			ID:        ch.ID,
			Title:     title,
			CreatedAt: ch.CreatedAt,
			Active:    ch.ID == activeID,
		}
	}
	return chats, nil
}

func renderMessage(msg models.Message, streamingState string) (message, error) {
	content, err := models.RenderMarkdown(msg.Content)
	if err != nil {
		return message{}, err
	}
	return message{
		ID:   msg.ID,
		Role: string(msg.Role),
		// RenderMarkdown escapes raw HTML and only emits links to the leave page.
		Content:        template.HTML(content), //nolint:gosec
		Timestamp:      msg.Timestamp,
		StreamingState: streamingState,
	}, nil
}

func (m Main) greetingMessage() (message, error) {
	return renderMessage(models.Message{
		ID:   "greeting",
		Role: models.RoleAssistant,
		// The greeting is never sent to the API.
		Content: m.greeting,
	}, models.StreamingStateEnded)
}
