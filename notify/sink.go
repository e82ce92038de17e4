package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/casualjim/runrelay/pkg/slogx"
	json "github.com/goccy/go-json"
)

// ErrStop can be returned by a Sink to ask the dispatcher to stop consuming
// the stream early. It is not reported as a failure.
var ErrStop = errors.New("stop consuming")

// Sink receives notifications in the order they were produced.
type Sink interface {
	Notify(context.Context, Notification) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(context.Context, Notification) error

func (fn SinkFunc) Notify(ctx context.Context, n Notification) error {
	return fn(ctx, n)
}

// JSONLines writes every notification as one JSON object per line.
func JSONLines(w io.Writer) Sink {
	return &jsonLines{w: w}
}

type jsonLines struct {
	mu sync.Mutex
	w  io.Writer
}

func (j *jsonLines) Notify(_ context.Context, n Notification) error {
	b, err := json.Marshal(n)
	if err != nil {
		return err
	}
	b = append(b, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	_, err = j.w.Write(b)
	return err
}

// Logging records every notification on the given logger. Failures are
// logged at error level, everything else at info.
func Logging(logger *slog.Logger) Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &loggingSink{logger: logger}
}

type loggingSink struct {
	logger *slog.Logger
}

func (l *loggingSink) Notify(ctx context.Context, n Notification) error {
	meta := n.Meta()
	attrs := []any{slog.String("type", string(n.Kind())), slogx.Run("", meta.ThreadID, meta.RunID)}

	switch e := n.(type) {
	case Message:
		l.logger.DebugContext(ctx, "Delta", append(attrs, slog.String("content", e.Content))...)
	case CompletedMessage:
		l.logger.InfoContext(ctx, "Final message", append(attrs, slog.String("content", e.Content))...)
	case RunStatus:
		if e.Error != "" {
			attrs = append(attrs, slog.String("error", e.Error))
		}
		l.logger.InfoContext(ctx, "Run status", append(attrs, slog.String("status", string(e.Status)))...)
	case ToolCall:
		l.logger.InfoContext(ctx, "Tool details", append(attrs, slog.String("details", e.Details.Raw))...)
	case Failure:
		l.logger.ErrorContext(ctx, "Error in agent run", append(attrs, slog.String("error", e.Error))...)
	case StreamEnd:
		l.logger.InfoContext(ctx, "Stream finished", attrs...)
	}
	return nil
}

// Composite fans notifications out to every sink. All sinks are attempted;
// the first error is returned.
func Composite(sinks ...Sink) Sink {
	return composite(slices.DeleteFunc(slices.Clone(sinks), func(s Sink) bool { return s == nil }))
}

type composite []Sink

func (c composite) Notify(ctx context.Context, n Notification) error {
	var first error
	for s := range slices.Values(c) {
		if err := s.Notify(ctx, n); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Channel forwards notifications to ch, blocking until the receiver takes the
// value or ctx is done.
func Channel(ch chan<- Notification) Sink {
	return SinkFunc(func(ctx context.Context, n Notification) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ch <- n:
			return nil
		}
	})
}

// Collector keeps every notification it receives in memory.
type Collector struct {
	mu    sync.Mutex
	items []Notification
}

func (c *Collector) Notify(_ context.Context, n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, n)
	return nil
}

// Notifications returns a copy of what was collected so far.
func (c *Collector) Notifications() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.items)
}

// Kinds returns the kind of every collected notification, in order.
func (c *Collector) Kinds() []Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	kinds := make([]Kind, len(c.items))
	for i, n := range c.items {
		kinds[i] = n.Kind()
	}
	return kinds
}

// Text concatenates the content of every collected Message fragment. This is
// how a consumer reconstructs a streamed message.
func (c *Collector) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []byte
	for _, n := range c.items {
		if m, ok := n.(Message); ok {
			out = append(out, m.Content...)
		}
	}
	return string(out)
}
