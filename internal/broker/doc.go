// Package broker fans run notifications out to subscribers. A topic is keyed
// by thread id, so every consumer interested in a conversation subscribes to
// the same topic and receives the notifications in publish order.
//
// Two implementations are provided:
//   - Local: in-process topics; a subscriber that cannot keep up within the
//     slow subscriber timeout is dropped.
//   - NATS: notifications are published as JSON on the subject
//     "runrelay.<topic>" and decoded again on the subscriber side.
//
// Example usage:
//
//	b := broker.Local()
//	topic := b.Topic(ctx, thread.ID)
//
//	sub, err := topic.Subscribe(ctx, notify.Logging(logger))
//	if err != nil {
//	    return err
//	}
//	defer sub.Unsubscribe()
//
//	_, err = dispatch.Dispatch(ctx, req, stream, broker.Sink(topic))
package broker
