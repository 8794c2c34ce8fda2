// Package stream decodes the conversation API response body. The body is a sequence of newline
// separated records, each optionally prefixed with "data: " and holding a JSON object whose "content"
// field is the next piece of the assistant answer.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
)

// DeltaFunc receives each non-empty content fragment in stream order.
type DeltaFunc func(delta string)

// Fragment is one decoded record of the stream. Fields other than Content are ignored.
type Fragment struct {
	Content string `json:"content"`
}

var (
	// ErrStreamUnavailable is returned when the response has no readable body.
	ErrStreamUnavailable = errors.New("stream unavailable")
	// ErrClosed is returned when a chunk is written after the end of the stream.
	ErrClosed = errors.New("stream reader closed")
)

const (
	dataPrefix = "data: "
	chunkSize  = 4096
)

// Reader turns raw body chunks into content deltas. It keeps the unterminated tail of the last chunk
// until the next chunk or the end of the stream completes it. A Reader serves exactly one response.
type Reader struct {
	onDelta DeltaFunc
	logger  *slog.Logger

	buf  []byte
	done bool
}

// Option configures a Reader.
type Option func(*Reader)

// WithLogger sets the logger that receives skipped lines at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reader) {
		r.logger = logger
	}
}

// New returns a Reader in the streaming state that calls onDelta for every extracted fragment.
func New(onDelta DeltaFunc, opts ...Option) *Reader {
	r := &Reader{
		onDelta: onDelta,
		logger:  slog.New(discardHandler{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Write appends a chunk and processes every line it completes. Lines are split on the newline byte,
// which never occurs inside a multi-byte UTF-8 sequence, so a character split across chunks is decoded
// only once both halves have arrived.
func (r *Reader) Write(chunk []byte) (int, error) {
	if r.done {
		return 0, ErrClosed
	}
	r.buf = append(r.buf, chunk...)

	for {
		i := bytes.IndexByte(r.buf, '\n')
		if i < 0 {
			break
		}
		r.line(r.buf[:i])
		r.buf = r.buf[i+1:]
	}

	// Compact so a long stream does not pin every consumed chunk.
	if len(r.buf) == 0 {
		r.buf = nil
	} else if cap(r.buf) > chunkSize && len(r.buf) < cap(r.buf)/4 {
		r.buf = append([]byte(nil), r.buf...)
	}

	return len(chunk), nil
}

// Close flushes the unterminated tail as a final record. The transport does not guarantee a trailing
// newline after the last record. Close is idempotent.
func (r *Reader) Close() error {
	if r.done {
		return nil
	}
	r.done = true
	if len(r.buf) > 0 {
		r.line(r.buf)
		r.buf = nil
	}
	return nil
}

// Done reports whether the end of the stream has been observed.
func (r *Reader) Done() bool {
	return r.done
}

func (r *Reader) line(raw []byte) {
	s := string(raw)
	if strings.TrimSpace(s) == "" {
		return
	}

	payload := strings.TrimSpace(strings.TrimPrefix(s, dataPrefix))

	var f Fragment
	if err := json.Unmarshal([]byte(payload), &f); err != nil {
		r.logger.Debug("Skipping malformed stream line",
			slog.String("line", payload),
			slog.String("err", err.Error()))
		return
	}
	if f.Content == "" {
		return
	}
	r.onDelta(f.Content)
}

// Consume reads body until EOF, feeding every chunk to a fresh Reader, and flushes the tail at the end.
// A nil body fails with ErrStreamUnavailable. Read errors and context cancellation are returned as is;
// deltas already delivered stay delivered.
func Consume(ctx context.Context, body io.Reader, onDelta DeltaFunc, opts ...Option) error {
	if body == nil {
		return ErrStreamUnavailable
	}

	r := New(onDelta, opts...)
	chunk := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := body.Read(chunk)
		if n > 0 {
			// Write only fails after Close, which happens below.
			_, _ = r.Write(chunk[:n])
		}
		if errors.Is(err, io.EOF) {
			return r.Close()
		}
		if err != nil {
			return fmt.Errorf("error reading stream: %w", err)
		}
	}
}

// Deltas returns an iterator over the content deltas of body. The iterator yields a single error and
// stops when the body cannot be read. Breaking out of the loop stops reading.
func Deltas(ctx context.Context, body io.Reader, opts ...Option) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		stopped := false
		err := Consume(ctx, body, func(delta string) {
			if stopped {
				return
			}
			if !yield(delta, nil) {
				stopped = true
				cancel()
			}
		}, opts...)
		if err != nil && !stopped {
			yield("", err)
		}
	}
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler     { return d }
func (d discardHandler) WithGroup(string) slog.Handler          { return d }
