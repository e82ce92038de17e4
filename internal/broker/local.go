package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/runrelay/notify"
	"github.com/casualjim/runrelay/pkg/slogx"
	"github.com/casualjim/runrelay/pkg/uuidx"
)

const (
	defaultSlowSubscriberTimeout = 100 * time.Millisecond
	subscriberBuffer             = 50
)

type localBroker struct {
	topics                *haxmap.Map[string, *topic]
	slowSubscriberTimeout time.Duration
}

func Local() *localBroker {
	return &localBroker{
		topics:                haxmap.New[string, *topic](),
		slowSubscriberTimeout: defaultSlowSubscriberTimeout,
	}
}

// WithSlowSubscriberTimeout configures how long Publish waits on a full
// subscriber before dropping it.
func (b *localBroker) WithSlowSubscriberTimeout(timeout time.Duration) *localBroker {
	b.slowSubscriberTimeout = timeout
	return b
}

func (b *localBroker) Topic(_ context.Context, id string) Topic {
	topic, _ := b.topics.GetOrCompute(id, func() *topic {
		return &topic{
			ID:                    id,
			subscriptions:         haxmap.New[string, *subscription](),
			slowSubscriberTimeout: b.slowSubscriberTimeout,
		}
	})
	return topic
}

type topic struct {
	ID                    string
	subscriptions         *haxmap.Map[string, *subscription]
	slowSubscriberTimeout time.Duration
}

func (t *topic) Publish(ctx context.Context, n notify.Notification) error {
	if n == nil {
		return errors.New("notification is required")
	}
	t.subscriptions.ForEach(func(_ string, sub *subscription) bool {
		if sub == nil {
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-sub.done:
			return true
		case <-sub.ctx.Done():
			sub.Unsubscribe()
			return true
		default:
		}

		timer := time.NewTimer(t.slowSubscriberTimeout)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false
		case <-sub.done:
		case <-sub.ctx.Done():
			sub.Unsubscribe()
		case sub.channel <- n:
		case <-timer.C:
			slog.WarnContext(ctx, "dropping slow subscriber", slog.String("topic", t.ID), slog.String("subscription", sub.id))
			sub.Unsubscribe()
		}
		return true
	})
	return ctx.Err()
}

func (t *topic) Subscribe(ctx context.Context, sink notify.Sink) (Subscription, error) {
	if sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	id := uuidx.NewString()
	sub := &subscription{
		id:      id,
		ctx:     ctx,
		channel: make(chan notify.Notification, subscriberBuffer),
		done:    make(chan struct{}),
		onClose: func() { t.subscriptions.Del(id) },
		sink:    sink,
	}
	t.subscriptions.Set(id, sub)
	go sub.forward()
	return sub, nil
}

type subscription struct {
	id        string
	ctx       context.Context
	channel   chan notify.Notification
	done      chan struct{}
	closeOnce sync.Once
	onClose   func()
	sink      notify.Sink
}

func (s *subscription) ID() string {
	return s.id
}

// Unsubscribe stops delivery. The data channel is never closed, so a
// concurrent Publish cannot panic on it.
func (s *subscription) Unsubscribe() {
	s.closeOnce.Do(func() {
		if s.onClose != nil {
			s.onClose()
		}
		close(s.done)
	})
}

func (s *subscription) forward() {
	for {
		select {
		case n := <-s.channel:
			if err := s.sink.Notify(s.ctx, n); err != nil {
				if !errors.Is(err, notify.ErrStop) {
					slog.ErrorContext(s.ctx, "subscriber failed", slogx.Error(err), slog.String("subscription", s.id))
				}
				s.Unsubscribe()
				return
			}
		case <-s.done:
			return
		case <-s.ctx.Done():
			s.Unsubscribe()
			return
		}
	}
}
