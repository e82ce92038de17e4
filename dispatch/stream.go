package dispatch

import (
	"context"
	"sync"

	"github.com/casualjim/runrelay/runevents"
)

// Stream is an open, ordered sequence of run events. Next blocks until the
// next event is available and reports false once the stream is exhausted,
// failed or ctx is done; Err then tells which. Close releases the transport.
type Stream interface {
	Next(context.Context) bool
	Current() runevents.StreamEvent
	Err() error
	Close() error
}

// Events returns a Stream over a fixed sequence of events.
func Events(events ...runevents.StreamEvent) Stream {
	return &sliceStream{events: events, pos: -1}
}

type sliceStream struct {
	events []runevents.StreamEvent
	pos    int
	err    error
}

func (s *sliceStream) Next(ctx context.Context) bool {
	if err := ctx.Err(); err != nil {
		s.err = err
		return false
	}
	if s.pos+1 >= len(s.events) {
		return false
	}
	s.pos++
	return true
}

func (s *sliceStream) Current() runevents.StreamEvent {
	if s.pos < 0 || s.pos >= len(s.events) {
		return nil
	}
	return s.events[s.pos]
}

func (s *sliceStream) Err() error   { return s.err }
func (s *sliceStream) Close() error { return nil }

// ChannelStream adapts a channel fed by a producer goroutine. The producer
// closes ch when it is done. When errc is not nil the producer must also
// either send its transport failure on errc or close it; the two may happen
// in any order relative to closing ch. cancel is invoked by Close to stop
// the producer.
func ChannelStream(ch <-chan runevents.StreamEvent, errc <-chan error, cancel func()) Stream {
	return &channelStream{ch: ch, errc: errc, cancel: cancel}
}

type channelStream struct {
	ch      <-chan runevents.StreamEvent
	errc    <-chan error
	cancel  func()
	current runevents.StreamEvent
	// pending holds a failure reported while events were still queued on ch.
	pending error
	err     error
}

func (s *channelStream) Next(ctx context.Context) bool {
	for {
		select {
		case <-ctx.Done():
			s.err = ctx.Err()
			return false
		case err, ok := <-s.errc:
			s.errc = nil
			if ok && err != nil {
				s.pending = err
			}
		case ev, ok := <-s.ch:
			if !ok {
				s.finish(ctx)
				return false
			}
			s.current = ev
			return true
		}
	}
}

// finish settles the outcome once ch is closed, waiting for the producer's
// verdict on errc when it has not arrived yet.
func (s *channelStream) finish(ctx context.Context) {
	if s.pending != nil {
		s.err, s.pending = s.pending, nil
		return
	}
	if s.errc == nil {
		return
	}
	select {
	case <-ctx.Done():
		s.err = ctx.Err()
	case err, ok := <-s.errc:
		s.errc = nil
		if ok && err != nil {
			s.err = err
		}
	}
}

func (s *channelStream) Current() runevents.StreamEvent { return s.current }
func (s *channelStream) Err() error                     { return s.err }

func (s *channelStream) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

// releaser closes a stream exactly once, whichever exit path gets there first.
type releaser struct {
	once   sync.Once
	stream Stream
	err    error
}

func (r *releaser) release() error {
	r.once.Do(func() {
		r.err = r.stream.Close()
	})
	return r.err
}
