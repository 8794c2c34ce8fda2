package handlers

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"sync"
	"time"

	andyweb "github.com/agentscan/andy-web"
	"github.com/agentscan/andy-web/internal/models"
	"github.com/agentscan/andy-web/internal/transcript"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/tmaxmax/go-sse"
)

// Conversation is the remote conversation API as seen by the web handlers.
type Conversation interface {
	Opener() transcript.Opener
	Sessions(ctx context.Context) ([]models.Session, error)
	Authenticated(ctx context.Context) bool
}

// TitleGenerator names a chat from its first question.
type TitleGenerator interface {
	GenerateTitle(ctx context.Context, question string) (string, error)
}

// Store defines the interface for the local chat history. Messages are appended in order, and only the
// optimistic user message of a failed send is ever deleted.
type Store interface {
	Chats(ctx context.Context) ([]models.Chat, error)
	Chat(ctx context.Context, chatID string) (models.Chat, error)
	AddChat(ctx context.Context, chat models.Chat) (string, error)
	UpdateChat(ctx context.Context, chat models.Chat) error
	DeleteChat(ctx context.Context, chatID string) error

	Messages(ctx context.Context, chatID string) ([]models.Message, error)
	AddMessage(ctx context.Context, chatID string, message models.Message) (string, error)
	DeleteMessage(ctx context.Context, chatID, messageID string) error
}

// Options customizes the landing view.
type Options struct {
	Greeting         string
	ExampleQuestions []string
}

// Main handles the web surface of the chat: pages, form submissions, the SSE endpoint and the
// background streams that feed it.
type Main struct {
	sseSrv    *sse.Server
	templates *template.Template

	conversation   Conversation
	store          Store
	titleGenerator TitleGenerator

	greeting         string
	exampleQuestions []string

	sends *sends

	// ctx outlives requests; streams run on it until Shutdown.
	ctx    context.Context
	cancel context.CancelFunc

	logger *slog.Logger
}

// sends tracks the chats with a send in flight. A chat has an entry from the moment a question is
// accepted until its answer is stored or rolled back; idle chats live only in the store.
type sends struct {
	mu sync.Mutex
	m  map[string]*transcript.Transcript
}

const (
	chatsSSETopic = "chats"
	errLoggerKey  = "err"

	// replayTTL bounds how late a client may subscribe to a send and still receive all of its events.
	replayTTL = time.Minute
)

// NewMain creates a new Main instance. It parses the templates from the embedded filesystem and
// configures the SSE server so that every client receives chat list updates and, when it asks for a
// chat, the answers streamed into that chat.
func NewMain(
	conversation Conversation,
	store Store,
	titleGenerator TitleGenerator,
	opts Options,
	logger *slog.Logger,
) (Main, error) {
	// We parse templates from three distinct directories to separate layout, pages, and partial views
	tmpl, err := template.ParseFS(
		andyweb.TemplateFS,
		"templates/layout/*.html",
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return Main{}, err
	}

	if opts.Greeting == "" {
		opts.Greeting = models.Greeting
	}
	if opts.ExampleQuestions == nil {
		opts.ExampleQuestions = models.ExampleQuestions
	}

	replayer, err := sse.NewValidReplayer(replayTTL, false)
	if err != nil {
		return Main{}, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return Main{
		sseSrv: &sse.Server{
			Provider: &sse.Joe{Replayer: replayer},
			OnSession: func(s *sse.Session) (sse.Subscription, bool) {
				topics := []string{sse.DefaultTopic, chatsSSETopic}

				query := s.Req.URL.Query()
				chatID := query.Get("chat_id")
				if chatID != "" {
					topics = append(topics, chatTopic(chatID))
				}

				// A browser that reconnects sends Last-Event-ID itself. A fresh subscription to a send
				// passes the ID of the event that accepted it, so nothing published since is missed.
				lastEventID := s.LastEventID
				if !lastEventID.IsSet() {
					if id, err := sse.NewID(query.Get("last_event_id")); err == nil && id.String() != "" {
						lastEventID = id
					}
				}

				return sse.Subscription{
					Client:      s,
					LastEventID: lastEventID,
					Topics:      topics,
				}, true
			},
		},
		templates:        tmpl,
		conversation:     conversation,
		store:            store,
		titleGenerator:   titleGenerator,
		greeting:         opts.Greeting,
		exampleQuestions: opts.ExampleQuestions,
		sends:            &sends{m: make(map[string]*transcript.Transcript)},
		ctx:              ctx,
		cancel:           cancel,
		logger:           logger.With(slog.String("module", "handlers")),
	}, nil
}

func chatTopic(chatID string) string {
	return fmt.Sprintf("chat-%s", chatID)
}

// Routes registers every handler on r.
func (m Main) Routes(r *mux.Router) {
	r.HandleFunc("/", m.HandleHome).Methods(http.MethodGet)
	r.HandleFunc("/chats", m.HandleChats).Methods(http.MethodPost)
	r.HandleFunc("/chats/{id}", m.HandleDeleteChat).Methods(http.MethodDelete)
	r.HandleFunc("/sessions", m.HandleSessions).Methods(http.MethodGet)
	r.HandleFunc("/leave", m.HandleLeave).Methods(http.MethodGet)
	r.HandleFunc("/sse", m.HandleSSE).Methods(http.MethodGet)
	r.HandleFunc("/healthz", m.HandleHealth).Methods(http.MethodGet)
}

// HandleSSE serves the Server-Sent Events stream. Clients pass chat_id to follow a chat.
func (m Main) HandleSSE(w http.ResponseWriter, r *http.Request) {
	m.sseSrv.ServeHTTP(w, r)
}

// HandleHealth answers liveness checks.
func (m Main) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// Shutdown stops the running streams and terminates the SSE server. It broadcasts a close message to
// all connected clients and waits up to 5 seconds for connections to terminate.
func (m Main) Shutdown(ctx context.Context) error {
	m.cancel()

	e := &sse.Message{Type: sse.Type("closeChat")}
	// We create a close event that complies with SSE spec requiring data
	e.AppendData("bye")

	// We ignore the error here since we're shutting down anyway
	_, _ = m.publish(e)

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	return m.sseSrv.Shutdown(ctx)
}

// publish stamps e with a unique ID, which the replayer requires, and publishes it. The ID is returned
// so a client can subscribe from that point on.
func (m Main) publish(e *sse.Message, topics ...string) (string, error) {
	id := uuid.NewString()
	e.ID = sse.ID(id)
	return id, m.sseSrv.Publish(e, topics...)
}

// startSend claims chatID for a new send and returns the transcript to send it through, loaded from the
// store. It fails with transcript.ErrBusy while another send to the chat is in flight. Every successful
// call must be paired with finishSend.
func (m Main) startSend(ctx context.Context, chatID string) (*transcript.Transcript, error) {
	m.sends.mu.Lock()
	defer m.sends.mu.Unlock()

	if _, ok := m.sends.m[chatID]; ok {
		return nil, transcript.ErrBusy
	}

	msgs, err := m.store.Messages(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}

	t := transcript.New(m.conversation.Opener())
	if err := t.Load(msgs); err != nil {
		return nil, err
	}
	t.OnUpdate = func(msg models.Message) {
		m.publishAnswer(chatID, msg)
	}
	m.sends.m[chatID] = t
	return t, nil
}

// finishSend releases chatID and drops its transcript; the next send reloads it from the store.
func (m Main) finishSend(chatID string) {
	m.sends.mu.Lock()
	defer m.sends.mu.Unlock()
	delete(m.sends.m, chatID)
}

// inFlight returns the transcript of the send running for chatID, if any.
func (m Main) inFlight(chatID string) (*transcript.Transcript, bool) {
	m.sends.mu.Lock()
	defer m.sends.mu.Unlock()
	t, ok := m.sends.m[chatID]
	return t, ok
}
