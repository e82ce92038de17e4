package openai

import (
	"context"
	"errors"
	"log/slog"

	"github.com/casualjim/runrelay/dispatch"
	"github.com/casualjim/runrelay/runevents"
	"github.com/tidwall/gjson"
)

type rawEvent interface {
	RawJSON() string
}

// eventSource is the part of ssestream.Stream the adapter needs.
type eventSource[T rawEvent] interface {
	Next() bool
	Current() T
	Err() error
	Close() error
}

// runStream turns SSE envelopes into run events. The service terminates a
// stream with a [DONE] marker that the SSE decoder swallows, so a clean end
// of input is reported as a Done event.
type runStream[T rawEvent] struct {
	src     eventSource[T]
	logger  *slog.Logger
	current runevents.StreamEvent
	done    bool
	err     error
}

func newRunStream[T rawEvent](src eventSource[T], logger *slog.Logger) dispatch.Stream {
	return &runStream[T]{src: src, logger: logger}
}

func (s *runStream[T]) Next(ctx context.Context) bool {
	for {
		if err := ctx.Err(); err != nil {
			s.err = err
			return false
		}
		if s.done {
			return false
		}
		if !s.src.Next() {
			if err := s.src.Err(); err != nil {
				s.err = err
				return false
			}
			s.done = true
			s.current = runevents.Done{}
			return true
		}

		raw := s.src.Current().RawJSON()
		ev, err := decodeEvent(raw)
		switch {
		case errors.Is(err, runevents.ErrUnknownEvent):
			s.logger.DebugContext(ctx, "skipping stream event", slog.String("reason", err.Error()))
			continue
		case err != nil:
			ev = runevents.Error{Code: "invalid_event", Err: err}
		}
		if _, ok := ev.(runevents.Done); ok {
			s.done = true
		}
		s.current = ev
		return true
	}
}

// decodeEvent reads one SSE payload. Only thread.* events carry the
// {"event","data"} envelope; an error event arrives as its bare payload.
func decodeEvent(raw string) (runevents.StreamEvent, error) {
	if !gjson.Get(raw, "event").Exists() && gjson.Valid(raw) {
		e, err := runevents.ErrorFromJSON([]byte(raw))
		if err != nil {
			return nil, err
		}
		return e, nil
	}
	return runevents.FromJSON([]byte(raw))
}

func (s *runStream[T]) Current() runevents.StreamEvent { return s.current }
func (s *runStream[T]) Err() error                     { return s.err }
func (s *runStream[T]) Close() error                   { return s.src.Close() }
