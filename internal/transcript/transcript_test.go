package transcript_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/agentscan/andy-web/internal/models"
	"github.com/agentscan/andy-web/internal/stream"
	"github.com/agentscan/andy-web/internal/transcript"
)

type fakeReply struct {
	body   string
	closed bool
}

func (r *fakeReply) Stream(ctx context.Context, onDelta stream.DeltaFunc) error {
	return stream.Consume(ctx, strings.NewReader(r.body), onDelta)
}

func (r *fakeReply) Close() error {
	r.closed = true
	return nil
}

type failingReply struct {
	partial string
	err     error
}

func (r failingReply) Stream(_ context.Context, onDelta stream.DeltaFunc) error {
	onDelta(r.partial)
	return r.err
}

func (failingReply) Close() error { return nil }

func opener(reply transcript.Reply, err error, seen *[][]models.Message) transcript.Opener {
	return transcript.OpenerFunc(func(_ context.Context, _ string, history []models.Message) (transcript.Reply, error) {
		if seen != nil {
			*seen = append(*seen, history)
		}
		if err != nil {
			return nil, err
		}
		return reply, nil
	})
}

func TestSendStreamsIntoAssistantMessage(t *testing.T) {
	reply := &fakeReply{body: "data: {\"content\":\"Hel\"}\ndata: {\"content\":\"lo\"}"}
	var seen [][]models.Message
	tr := transcript.New(opener(reply, nil, &seen))

	var updates []string
	tr.OnUpdate = func(m models.Message) {
		updates = append(updates, m.Content)
	}

	answer, err := tr.Send(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if answer.Role != models.RoleAssistant || answer.Content != "Hello" {
		t.Errorf("Send() answer = %+v, want the streamed assistant message", answer)
	}

	msgs := tr.Messages()
	if len(msgs) != 2 {
		t.Fatalf("len(Messages()) = %d, want 2", len(msgs))
	}
	if msgs[0].Role != models.RoleUser || msgs[0].Content != "hi" {
		t.Errorf("user message = %+v", msgs[0])
	}
	if msgs[1].Role != models.RoleAssistant || msgs[1].Content != "Hello" {
		t.Errorf("assistant message = %+v", msgs[1])
	}
	if !slices.Equal(updates, []string{"Hel", "Hello"}) {
		t.Errorf("updates = %q", updates)
	}
	if !reply.closed {
		t.Error("reply not closed")
	}
	if tr.Loading() {
		t.Error("Loading() = true after Send")
	}

	if len(seen) != 1 || len(seen[0]) != 1 || seen[0][0].Content != "hi" {
		t.Errorf("history sent = %+v, want the new user message", seen)
	}
}

func TestSendRollsBackOnFailure(t *testing.T) {
	rateLimited := errors.New("rate limited")
	broken := errors.New("connection reset")

	tests := []struct {
		name   string
		opener transcript.Opener
		want   error
	}{
		{
			name:   "open fails",
			opener: opener(nil, rateLimited, nil),
			want:   rateLimited,
		},
		{
			name:   "stream fails",
			opener: opener(failingReply{partial: "half an ans", err: broken}, nil, nil),
			want:   broken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := transcript.New(tt.opener)
			prior := []models.Message{
				{Role: models.RoleUser, Content: "earlier"},
				{Role: models.RoleAssistant, Content: "answer"},
			}
			if err := tr.Load(prior); err != nil {
				t.Fatal(err)
			}

			_, err := tr.Send(context.Background(), "again")
			if !errors.Is(err, tt.want) {
				t.Fatalf("Send() error = %v, want %v", err, tt.want)
			}
			if got := tr.Messages(); !slices.Equal(got, prior) {
				t.Errorf("Messages() = %+v, want rollback to %+v", got, prior)
			}
			if tr.Loading() {
				t.Error("Loading() = true after failed Send")
			}
		})
	}
}

func TestSendRejectsEmptyAndConcurrent(t *testing.T) {
	tr := transcript.New(opener(&fakeReply{}, nil, nil))
	if _, err := tr.Send(context.Background(), "  \n"); !errors.Is(err, transcript.ErrEmptyQuestion) {
		t.Errorf("Send(blank) error = %v, want ErrEmptyQuestion", err)
	}

	started := make(chan struct{})
	release := make(chan struct{})
	blocking := transcript.OpenerFunc(func(context.Context, string, []models.Message) (transcript.Reply, error) {
		close(started)
		<-release
		return &fakeReply{body: `{"content":"done"}`}, nil
	})
	tr = transcript.New(blocking)

	errs := make(chan error, 1)
	go func() {
		_, err := tr.Send(context.Background(), "first")
		errs <- err
	}()
	<-started

	if !tr.Loading() {
		t.Error("Loading() = false while a send is in flight")
	}
	if _, err := tr.Send(context.Background(), "second"); !errors.Is(err, transcript.ErrBusy) {
		t.Errorf("concurrent Send() error = %v, want ErrBusy", err)
	}
	if err := tr.Reset(); !errors.Is(err, transcript.ErrBusy) {
		t.Errorf("Reset() during send error = %v, want ErrBusy", err)
	}

	close(release)
	if err := <-errs; err != nil {
		t.Fatalf("first Send() error = %v", err)
	}
	msgs := tr.Messages()
	if len(msgs) != 2 || msgs[1].Content != "done" {
		t.Errorf("Messages() = %+v", msgs)
	}
	if err := tr.Reset(); err != nil || len(tr.Messages()) != 0 {
		t.Errorf("Reset() = %v, messages = %d", err, len(tr.Messages()))
	}
}
