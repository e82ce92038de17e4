package dispatch

import (
	"fmt"

	"github.com/casualjim/runrelay/notify"
	"github.com/casualjim/runrelay/runevents"
)

// Transform maps one event to its notification. It is pure: the outcome
// depends only on env and ev. A nil notification with a nil error means the
// event is filtered; an error is a content error for this event alone.
func Transform(env notify.Envelope, ev runevents.StreamEvent) (notify.Notification, error) {
	switch e := ev.(type) {
	case runevents.MessageDelta:
		text, err := e.Text()
		if err != nil {
			return nil, fmt.Errorf("message delta %s: %w", e.MessageID, err)
		}
		return notify.Message{Envelope: env, Content: text}, nil

	case runevents.ThreadMessage:
		if e.Status != runevents.MessageCompleted {
			return nil, nil
		}
		text, err := e.Text()
		if err != nil {
			return nil, fmt.Errorf("message %s: %w", e.ID, err)
		}
		return notify.CompletedMessage{Envelope: env, MessageID: e.ID, Content: text}, nil

	case runevents.ThreadRun:
		n := notify.RunStatus{Envelope: env, Status: e.Status}
		if e.Status == runevents.RunFailed && e.LastError != nil {
			n.Error = e.LastError.String()
		}
		return n, nil

	case runevents.RunStep:
		if e.Type != runevents.StepToolCalls || e.Status != runevents.StepCompleted {
			return nil, nil
		}
		return notify.ToolCall{Envelope: env, StepID: e.ID, Status: e.Status, Details: e.Details}, nil

	case runevents.Error:
		return notify.Failure{Envelope: env, Error: e.Error()}, nil

	case runevents.Done:
		return notify.StreamEnd{Envelope: env}, nil

	case nil:
		return nil, errMissingEvent

	default:
		return nil, fmt.Errorf("unsupported event type %T", ev)
	}
}
