// Package transcript holds the chat state of one conversation: the ordered messages and the loading flag
// that keeps a single send in flight at a time.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/agentscan/andy-web/internal/models"
	"github.com/agentscan/andy-web/internal/stream"
)

var (
	// ErrBusy is returned when a send is attempted while another one is in flight.
	ErrBusy = errors.New("a message is already being sent")
	// ErrEmptyQuestion is returned for questions that are blank after trimming.
	ErrEmptyQuestion = errors.New("question is empty")
)

// Reply is a conversation response that has been accepted and can be streamed once.
type Reply interface {
	Stream(ctx context.Context, onDelta stream.DeltaFunc) error
	Close() error
}

// Opener starts a conversation request. history already ends with the user message for question.
type Opener interface {
	Open(ctx context.Context, question string, history []models.Message) (Reply, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, question string, history []models.Message) (Reply, error)

// Open implements Opener.
func (f OpenerFunc) Open(ctx context.Context, question string, history []models.Message) (Reply, error) {
	return f(ctx, question, history)
}

// Transcript is the state container of one conversation. It is safe for concurrent use; writes to the
// streaming assistant message only come from the single send in flight.
type Transcript struct {
	opener Opener

	mu       sync.Mutex
	messages []models.Message
	loading  bool

	// OnUpdate, when set, is called with a copy of the streaming assistant message after every delta.
	OnUpdate func(models.Message)
}

// New returns an empty transcript that sends through opener.
func New(opener Opener) *Transcript {
	return &Transcript{opener: opener}
}

// Send appends question as a user message, streams the answer into a new assistant message and returns
// that message once the stream ended. The assistant message is created only after the API accepted the
// request. On any failure both optimistic messages are removed and the error is returned unchanged.
func (t *Transcript) Send(ctx context.Context, question string) (models.Message, error) {
	if strings.TrimSpace(question) == "" {
		return models.Message{}, ErrEmptyQuestion
	}

	t.mu.Lock()
	if t.loading {
		t.mu.Unlock()
		return models.Message{}, ErrBusy
	}
	t.loading = true
	base := len(t.messages)
	t.messages = append(t.messages, models.Message{
		Role:      models.RoleUser,
		Content:   question,
		Timestamp: time.Now(),
	})
	history := slices.Clone(t.messages)
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.loading = false
		t.mu.Unlock()
	}()

	reply, err := t.opener.Open(ctx, question, history)
	if err != nil {
		t.rollback(base)
		return models.Message{}, err
	}
	defer reply.Close()

	t.mu.Lock()
	answerIdx := len(t.messages)
	t.messages = append(t.messages, models.Message{
		Role:      models.RoleAssistant,
		Timestamp: time.Now(),
	})
	t.mu.Unlock()

	err = reply.Stream(ctx, t.appendDelta)
	if err != nil {
		t.rollback(base)
		return models.Message{}, fmt.Errorf("error streaming answer: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.messages[answerIdx], nil
}

func (t *Transcript) appendDelta(delta string) {
	t.mu.Lock()
	last := &t.messages[len(t.messages)-1]
	last.Content += delta
	msg := *last
	t.mu.Unlock()

	if t.OnUpdate != nil {
		t.OnUpdate(msg)
	}
}

func (t *Transcript) rollback(base int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = t.messages[:base]
}

// Messages returns a snapshot of the transcript.
func (t *Transcript) Messages() []models.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.messages)
}

// Loading reports whether a send is in flight.
func (t *Transcript) Loading() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loading
}

// Load replaces the transcript with messages, typically a stored chat. It fails with ErrBusy while a
// send is in flight.
func (t *Transcript) Load(messages []models.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.loading {
		return ErrBusy
	}
	t.messages = slices.Clone(messages)
	return nil
}

// Reset clears the transcript to start a new chat.
func (t *Transcript) Reset() error {
	return t.Load(nil)
}
