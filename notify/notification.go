package notify

import (
	"errors"
	"fmt"

	"github.com/casualjim/runrelay/runevents"
	"github.com/go-openapi/strfmt"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

type Kind string

const (
	KindMessage          Kind = "message"
	KindCompletedMessage Kind = "completed_message"
	KindThreadRun        Kind = "thread_run"
	KindToolCall         Kind = "tool_call"
	KindError            Kind = "error"
	KindStreamEnd        Kind = "stream_end"
)

var (
	messageJSON          = []byte(`{"type":"message"}`)
	completedMessageJSON = []byte(`{"type":"completed_message"}`)
	threadRunJSON        = []byte(`{"type":"thread_run"}`)
	toolCallJSON         = []byte(`{"type":"tool_call"}`)
	errorJSON            = []byte(`{"type":"error"}`)
	streamEndJSON        = []byte(`{"type":"stream_end"}`)
)

// Notification is the normalized, outward facing form of a run event.
type Notification interface {
	notification()
	Kind() Kind
	Meta() Envelope
}

// Envelope correlates a notification with the run that produced it.
type Envelope struct {
	RunID     string          `json:"run_id,omitempty"`
	ThreadID  string          `json:"thread_id,omitempty"`
	Timestamp strfmt.DateTime `json:"timestamp,omitempty"`
}

func (e Envelope) Meta() Envelope { return e }

func (e Envelope) marshal(base []byte) ([]byte, error) {
	var err error
	if e.RunID != "" {
		if base, err = sjson.SetBytes(base, "run_id", e.RunID); err != nil {
			return nil, err
		}
	}
	if e.ThreadID != "" {
		if base, err = sjson.SetBytes(base, "thread_id", e.ThreadID); err != nil {
			return nil, err
		}
	}
	if !e.Timestamp.IsZero() {
		if base, err = sjson.SetBytes(base, "timestamp", e.Timestamp.String()); err != nil {
			return nil, err
		}
	}
	return base, nil
}

func (e *Envelope) unmarshal(obj gjson.Result) error {
	e.RunID = obj.Get("run_id").String()
	e.ThreadID = obj.Get("thread_id").String()
	if ts := obj.Get("timestamp"); ts.Exists() {
		if err := e.Timestamp.UnmarshalText([]byte(ts.String())); err != nil {
			return fmt.Errorf("invalid timestamp: %w", err)
		}
	}
	return nil
}

// Message carries one text fragment of a message being streamed.
type Message struct {
	Envelope
	Content string
}

func (Message) notification() {}
func (Message) Kind() Kind    { return KindMessage }

func (m Message) MarshalJSON() ([]byte, error) {
	result, err := m.marshal(messageJSON)
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(result, "content", m.Content)
}

// CompletedMessage carries the full text of a message once it completed.
type CompletedMessage struct {
	Envelope
	MessageID string
	Content   string
}

func (CompletedMessage) notification() {}
func (CompletedMessage) Kind() Kind    { return KindCompletedMessage }

func (m CompletedMessage) MarshalJSON() ([]byte, error) {
	result, err := m.marshal(completedMessageJSON)
	if err != nil {
		return nil, err
	}
	if m.MessageID != "" {
		if result, err = sjson.SetBytes(result, "message_id", m.MessageID); err != nil {
			return nil, err
		}
	}
	return sjson.SetBytes(result, "content", m.Content)
}

// RunStatus reports a run status change. Error is the failure cause when
// the run failed.
type RunStatus struct {
	Envelope
	Status runevents.RunStatus
	Error  string
}

func (RunStatus) notification() {}
func (RunStatus) Kind() Kind    { return KindThreadRun }

func (r RunStatus) MarshalJSON() ([]byte, error) {
	result, err := r.marshal(threadRunJSON)
	if err != nil {
		return nil, err
	}
	if result, err = sjson.SetBytes(result, "status", string(r.Status)); err != nil {
		return nil, err
	}
	if r.Error != "" {
		return sjson.SetBytes(result, "error", r.Error)
	}
	return result, nil
}

// ToolCall reports a completed tool invocation step.
type ToolCall struct {
	Envelope
	StepID  string
	Status  runevents.StepStatus
	Details gjson.Result
}

func (ToolCall) notification() {}
func (ToolCall) Kind() Kind    { return KindToolCall }

func (t ToolCall) MarshalJSON() ([]byte, error) {
	result, err := t.marshal(toolCallJSON)
	if err != nil {
		return nil, err
	}
	if t.StepID != "" {
		if result, err = sjson.SetBytes(result, "step_id", t.StepID); err != nil {
			return nil, err
		}
	}
	if result, err = sjson.SetBytes(result, "status", string(t.Status)); err != nil {
		return nil, err
	}
	details := t.Details.Raw
	if details == "" {
		details = "null"
	}
	return sjson.SetRawBytes(result, "details", []byte(details))
}

// Failure reports a failure, either in-band from the service or while
// materializing a single event.
type Failure struct {
	Envelope
	Error string
}

func (Failure) notification() {}
func (Failure) Kind() Kind    { return KindError }

func (f Failure) MarshalJSON() ([]byte, error) {
	result, err := f.marshal(errorJSON)
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(result, "error", f.Error)
}

// StreamEnd is the last notification of every dispatched stream.
type StreamEnd struct {
	Envelope
}

func (StreamEnd) notification() {}
func (StreamEnd) Kind() Kind    { return KindStreamEnd }

func (s StreamEnd) MarshalJSON() ([]byte, error) {
	return s.marshal(streamEndJSON)
}

// FromJSON decodes a notification produced by one of the MarshalJSON methods.
func FromJSON(data []byte) (Notification, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid json: %s", data)
	}
	obj := gjson.ParseBytes(data)
	typ := obj.Get("type")
	if !typ.Exists() {
		return nil, errors.New("missing required field 'type'")
	}

	var env Envelope
	if err := env.unmarshal(obj); err != nil {
		return nil, err
	}

	switch Kind(typ.String()) {
	case KindMessage:
		return Message{Envelope: env, Content: obj.Get("content").String()}, nil
	case KindCompletedMessage:
		return CompletedMessage{
			Envelope:  env,
			MessageID: obj.Get("message_id").String(),
			Content:   obj.Get("content").String(),
		}, nil
	case KindThreadRun:
		status := obj.Get("status")
		if !status.Exists() {
			return nil, errors.New("missing required field 'status'")
		}
		return RunStatus{
			Envelope: env,
			Status:   runevents.RunStatus(status.String()),
			Error:    obj.Get("error").String(),
		}, nil
	case KindToolCall:
		return ToolCall{
			Envelope: env,
			StepID:   obj.Get("step_id").String(),
			Status:   runevents.StepStatus(obj.Get("status").String()),
			Details:  obj.Get("details"),
		}, nil
	case KindError:
		return Failure{Envelope: env, Error: obj.Get("error").String()}, nil
	case KindStreamEnd:
		return StreamEnd{Envelope: env}, nil
	default:
		return nil, fmt.Errorf("unknown notification type: %s", typ.String())
	}
}
