package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/runrelay/notify"
	"github.com/casualjim/runrelay/pkg/slogx"
	"github.com/casualjim/runrelay/pkg/uuidx"
	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
)

// SubjectPrefix namespaces the NATS subjects of all topics.
const SubjectPrefix = "runrelay."

type natsBroker struct {
	client *nats.Conn
	topics *haxmap.Map[string, *natsTopic]
}

func NATS(client *nats.Conn) *natsBroker {
	return &natsBroker{
		client: client,
		topics: haxmap.New[string, *natsTopic](),
	}
}

func (b *natsBroker) Topic(_ context.Context, id string) Topic {
	top, _ := b.topics.GetOrCompute(id, func() *natsTopic {
		return &natsTopic{
			subject: SubjectPrefix + id,
			client:  b.client,
		}
	})
	return top
}

type natsTopic struct {
	client  *nats.Conn
	subject string
}

func (t *natsTopic) Publish(ctx context.Context, n notify.Notification) error {
	if n == nil {
		return errors.New("notification is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	nb, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode %s notification: %w", n.Kind(), err)
	}
	return t.client.Publish(t.subject, nb)
}

func (t *natsTopic) Subscribe(ctx context.Context, sink notify.Sink) (Subscription, error) {
	if sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	sub := &natsSubscription{
		id:      uuidx.NewString(),
		channel: make(chan notify.Notification, subscriberBuffer),
		done:    make(chan struct{}),
	}
	nsub, err := t.client.Subscribe(t.subject, func(msg *nats.Msg) {
		n, err := notify.FromJSON(msg.Data)
		if err != nil {
			slog.Error("failed to decode notification", slogx.Error(err), slog.String("subject", msg.Subject))
			return
		}
		select {
		case sub.channel <- n:
		case <-sub.done:
			return
		}
		if msg.Reply != "" {
			if nerr := msg.Ack(); nerr != nil {
				slog.Error("failed to ack message", slogx.Error(nerr))
			}
		}
	})
	if err != nil {
		return nil, err
	}
	sub.sub = nsub

	go sub.forward(ctx, sink)
	return sub, nil
}

type natsSubscription struct {
	id        string
	sub       *nats.Subscription
	channel   chan notify.Notification
	done      chan struct{}
	closeOnce sync.Once
}

func (n *natsSubscription) ID() string {
	return n.id
}

func (n *natsSubscription) Unsubscribe() {
	n.closeOnce.Do(func() {
		close(n.done)
		if err := n.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			slog.Error("failed to unsubscribe", slogx.Error(err), slog.String("subscription", n.id))
		}
	})
}

func (n *natsSubscription) forward(ctx context.Context, sink notify.Sink) {
	for {
		select {
		case msg := <-n.channel:
			if err := sink.Notify(ctx, msg); err != nil {
				if !errors.Is(err, notify.ErrStop) {
					slog.ErrorContext(ctx, "subscriber failed", slogx.Error(err), slog.String("subscription", n.id))
				}
				n.Unsubscribe()
				return
			}
		case <-n.done:
			return
		case <-ctx.Done():
			n.Unsubscribe()
			return
		}
	}
}
