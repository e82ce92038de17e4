package broker

import (
	"context"
	"errors"

	"github.com/casualjim/runrelay/notify"
)

type Broker interface {
	Topic(context.Context, string) Topic
}

type Topic interface {
	Publish(context.Context, notify.Notification) error
	Subscribe(context.Context, notify.Sink) (Subscription, error)
}

type Subscription interface {
	ID() string
	Unsubscribe()
}

// Sink publishes every notification it receives to topic, which makes a
// topic usable as the target of a dispatch.
func Sink(topic Topic) notify.Sink {
	return notify.SinkFunc(topic.Publish)
}

// ThreadSink publishes every notification to the topic of the thread it
// belongs to.
func ThreadSink(b Broker) notify.Sink {
	return notify.SinkFunc(func(ctx context.Context, n notify.Notification) error {
		threadID := n.Meta().ThreadID
		if threadID == "" {
			return errors.New("notification has no thread id")
		}
		return b.Topic(ctx, threadID).Publish(ctx, n)
	})
}
