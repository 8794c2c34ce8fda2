package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/agentscan/andy-web/internal/models"
	"github.com/agentscan/andy-web/internal/stream"
	"github.com/agentscan/andy-web/internal/transcript"
)

// TokenSource provides the bearer token of the signed in user. An empty token means anonymous access.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

// Token implements TokenSource.
func (s StaticToken) Token(context.Context) (string, error) {
	return string(s), nil
}

// APIConfig holds everything needed to reach the remote conversation API. It is passed explicitly so
// the sender never reads ambient process state.
type APIConfig struct {
	BaseURL string
	TeamID  string
	UserID  string
	// Type is the conversation type, "general" when empty. "agent" enables Instance.
	Type     string
	Instance string
	// Source tags the analytics events, "web" when empty.
	Source string

	Tokens     TokenSource
	HTTPClient *http.Client
}

// Conversation sends questions to the remote conversation API and streams the answers back.
type Conversation struct {
	cfg    APIConfig
	client *http.Client

	logger *slog.Logger
}

// RateLimitError is returned when the API answers 429. Message is the text the API asks to show.
type RateLimitError struct {
	Message string
}

// StatusError is returned for any other non-successful status code.
type StatusError struct {
	Code int
	Body string
}

// Reply is a successful, not yet consumed, conversation response.
type Reply struct {
	body     io.ReadCloser
	question string
	source   string
	logger   *slog.Logger
}

type conversationRequest struct {
	Question string                `json:"question"`
	Messages []conversationMessage `json:"messages"`
	UserID   string                `json:"userId,omitempty"`
	TeamID   string                `json:"teamId,omitempty"`
	Type     string                `json:"type,omitempty"`
	Instance string                `json:"instance,omitempty"`
}

type conversationMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type rateLimitResponse struct {
	Message string `json:"message"`
}

const (
	defaultConversationType = "general"
	agentConversationType   = "agent"
	defaultRateLimitMessage = "Please try again later"
	defaultSource           = "web"
	maxErrorBody            = 4096

	errLoggerKey = "err"
)

// NewConversation creates a Conversation for the given API configuration. A trailing slash on the base
// URL is trimmed once here.
func NewConversation(cfg APIConfig, logger *slog.Logger) Conversation {
	cfg.BaseURL = strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Type == "" {
		cfg.Type = defaultConversationType
	}
	if cfg.Source == "" {
		cfg.Source = defaultSource
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	return Conversation{
		cfg:    cfg,
		client: client,
		logger: logger.With(slog.String("module", "conversation")),
	}
}

// Open posts the question with its history and returns the reply once the API has accepted it. The
// history must already contain the user message for question. A 429 is returned as *RateLimitError
// and the body is never read as a stream.
func (c Conversation) Open(ctx context.Context, question string, history []models.Message) (*Reply, error) {
	msgs := make([]conversationMessage, 0, len(history))
	for _, m := range history {
		msgs = append(msgs, conversationMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	reqBody := conversationRequest{
		Question: question,
		Messages: msgs,
		UserID:   c.cfg.UserID,
		TeamID:   c.cfg.TeamID,
		Type:     c.cfg.Type,
	}
	if c.cfg.Type == agentConversationType {
		reqBody.Instance = c.cfg.Instance
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	c.logger.Debug("Request Body", slog.String("body", string(jsonBody)))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/conversation", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.authorize(ctx, req); err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		defer resp.Body.Close()
		var rl rateLimitResponse
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&rl); err != nil || rl.Message == "" {
			rl.Message = defaultRateLimitMessage
		}
		c.logger.Warn("Conversation rate limited", slog.String("message", rl.Message))
		return nil, &RateLimitError{Message: rl.Message}
	}

	c.logger.Info("conversation_made",
		slog.String("teamId", c.cfg.TeamID),
		slog.String("question", question),
		slog.String("type", c.cfg.Type),
		slog.Int("messages", len(history)),
		slog.String("source", c.cfg.Source))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, stream.ErrStreamUnavailable
	}

	return &Reply{
		body:     resp.Body,
		question: question,
		source:   c.cfg.Source,
		logger:   c.logger.With(slog.String("teamId", c.cfg.TeamID), slog.String("type", c.cfg.Type)),
	}, nil
}

// Opener adapts the conversation to the transcript sender interface.
func (c Conversation) Opener() transcript.Opener {
	return transcript.OpenerFunc(func(
		ctx context.Context,
		question string,
		history []models.Message,
	) (transcript.Reply, error) {
		reply, err := c.Open(ctx, question, history)
		if err != nil {
			return nil, err
		}
		return reply, nil
	})
}

// Ask opens the conversation and streams every delta of the answer to onDelta. It returns the full
// answer text.
func (c Conversation) Ask(
	ctx context.Context,
	question string,
	history []models.Message,
	onDelta stream.DeltaFunc,
) (string, error) {
	reply, err := c.Open(ctx, question, history)
	if err != nil {
		return "", err
	}
	defer reply.Close()

	var answer strings.Builder
	err = reply.Stream(ctx, func(delta string) {
		answer.WriteString(delta)
		if onDelta != nil {
			onDelta(delta)
		}
	})
	return answer.String(), err
}

// Sessions lists the remote conversation sessions of the signed in user. Without a token the list is
// empty and no request is made.
func (c Conversation) Sessions(ctx context.Context) ([]models.Session, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/conversation/sessions", nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	var res struct {
		Sessions []models.Session `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("error decoding sessions: %w", err)
	}
	return res.Sessions, nil
}

// Authenticated reports whether a user token is available.
func (c Conversation) Authenticated(ctx context.Context) bool {
	token, err := c.token(ctx)
	return err == nil && token != ""
}

func (c Conversation) token(ctx context.Context) (string, error) {
	if c.cfg.Tokens == nil {
		return "", nil
	}
	token, err := c.cfg.Tokens.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("error getting access token: %w", err)
	}
	return token, nil
}

func (c Conversation) authorize(ctx context.Context, req *http.Request) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

// Stream feeds the reply body to a StreamingChatReader, calling onDelta for every fragment.
func (r *Reply) Stream(ctx context.Context, onDelta stream.DeltaFunc) error {
	length := 0
	err := stream.Consume(ctx, r.body, func(delta string) {
		length += len(delta)
		onDelta(delta)
	}, stream.WithLogger(r.logger))
	if err != nil {
		r.logger.Error("Conversation stream failed",
			slog.String("question", r.question),
			slog.String(errLoggerKey, err.Error()))
		return err
	}

	r.logger.Info("conversation_completed",
		slog.String("question", r.question),
		slog.Int("answerLength", length),
		slog.String("source", r.source))
	return nil
}

// Close releases the reply body.
func (r *Reply) Close() error {
	return r.body.Close()
}

func (e *RateLimitError) Error() string {
	return e.Message
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d, body: %s", e.Code, e.Body)
}

// IsRateLimited reports whether err is, or wraps, a *RateLimitError.
func IsRateLimited(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}
