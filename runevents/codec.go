package runevents

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrUnknownEvent is returned by FromJSON for envelopes whose event name does
// not map onto a StreamEvent, e.g. "thread.created" or "thread.run.step.delta".
var ErrUnknownEvent = errors.New("unknown stream event")

var (
	envelopeJSON = []byte(`{"event":""}`)
	doneJSON     = []byte(`{"event":"done","data":"[DONE]"}`)
)

// FromJSON decodes one streaming envelope of the form
//
//	{"event":"thread.message.delta","data":{...}}
func FromJSON(data []byte) (StreamEvent, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid json: %s", data)
	}

	name := gjson.GetBytes(data, "event")
	if !name.Exists() {
		return nil, errors.New("missing required field 'event'")
	}
	payload := gjson.GetBytes(data, "data")

	switch ev := name.String(); {
	case ev == "done":
		return Done{}, nil
	case ev == "error":
		return decodeError(payload), nil
	case ev == "thread.message.delta":
		return decodeMessageDelta(payload)
	case strings.HasPrefix(ev, "thread.message."):
		msg, err := decodeMessage(payload)
		if err != nil {
			return nil, err
		}
		return ThreadMessage{Message: msg}, nil
	case ev == "thread.run.step.delta":
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, ev)
	case strings.HasPrefix(ev, "thread.run.step."):
		step, err := decodeStep(payload)
		if err != nil {
			return nil, err
		}
		return RunStep{Step: step}, nil
	case strings.HasPrefix(ev, "thread.run."):
		run, err := decodeRun(payload)
		if err != nil {
			return nil, err
		}
		return ThreadRun{Run: run}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, ev)
	}
}

// ToJSON encodes an event into the same envelope FromJSON reads.
func ToJSON(event StreamEvent) ([]byte, error) {
	if event == nil {
		return nil, errors.New("nil event")
	}
	if _, ok := event.(Done); ok {
		return doneJSON, nil
	}

	result, err := sjson.SetBytes(envelopeJSON, "event", event.Name())
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch e := event.(type) {
	case MessageDelta:
		payload, err = encodeMessageDelta(e)
	case ThreadMessage:
		payload, err = encodeMessage(e.Message)
	case ThreadRun:
		payload, err = encodeRun(e.Run)
	case RunStep:
		payload, err = encodeStep(e.Step)
	case Error:
		payload, err = encodeError(e)
	default:
		return nil, fmt.Errorf("unsupported event type: %T", event)
	}
	if err != nil {
		return nil, err
	}
	return sjson.SetRawBytes(result, "data", payload)
}

func required(obj gjson.Result, field string) (gjson.Result, error) {
	v := obj.Get(field)
	if !v.Exists() {
		return v, fmt.Errorf("missing required field '%s'", field)
	}
	return v, nil
}

func decodeParts(arr gjson.Result) []ContentPart {
	var parts []ContentPart
	arr.ForEach(func(_, part gjson.Result) bool {
		typ := part.Get("type").String()
		cp := ContentPart{Type: typ}
		if typ == "text" {
			// the service nests the value, the envelope we write flattens it
			if v := part.Get("text.value"); v.Exists() {
				cp.Text = v.String()
			} else {
				cp.Text = part.Get("text").String()
			}
		}
		parts = append(parts, cp)
		return true
	})
	return parts
}

func encodeParts(base []byte, path string, parts []ContentPart) ([]byte, error) {
	var err error
	base, err = sjson.SetRawBytes(base, path, []byte(`[]`))
	if err != nil {
		return nil, err
	}
	for i, p := range parts {
		prefix := fmt.Sprintf("%s.%d", path, i)
		if base, err = sjson.SetBytes(base, prefix+".type", p.Type); err != nil {
			return nil, err
		}
		if p.Type != "text" {
			continue
		}
		if base, err = sjson.SetBytes(base, prefix+".text.value", p.Text); err != nil {
			return nil, err
		}
	}
	return base, nil
}

func decodeMessageDelta(obj gjson.Result) (StreamEvent, error) {
	id, err := required(obj, "id")
	if err != nil {
		return nil, err
	}
	return MessageDelta{
		MessageID: id.String(),
		Parts:     decodeParts(obj.Get("delta.content")),
	}, nil
}

func encodeMessageDelta(d MessageDelta) ([]byte, error) {
	result, err := sjson.SetBytes([]byte(`{"object":"thread.message.delta"}`), "id", d.MessageID)
	if err != nil {
		return nil, err
	}
	return encodeParts(result, "delta.content", d.Parts)
}

func decodeMessage(obj gjson.Result) (Message, error) {
	id, err := required(obj, "id")
	if err != nil {
		return Message{}, err
	}
	msg := Message{
		ID:       id.String(),
		ThreadID: obj.Get("thread_id").String(),
		RunID:    obj.Get("run_id").String(),
		Role:     Role(obj.Get("role").String()),
		Status:   MessageStatus(obj.Get("status").String()),
		Content:  decodeParts(obj.Get("content")),
	}
	ts, err := decodeTimestamp(obj.Get("created_at"))
	if err != nil {
		return Message{}, err
	}
	msg.CreatedAt = ts
	return msg, nil
}

// decodeTimestamp accepts unix seconds, as the service sends them, or the
// RFC 3339 text that encodeMessage writes.
func decodeTimestamp(ts gjson.Result) (strfmt.DateTime, error) {
	var dt strfmt.DateTime
	switch ts.Type {
	case gjson.Number:
		dt = strfmt.DateTime(time.Unix(ts.Int(), 0).UTC())
	case gjson.String:
		if err := dt.UnmarshalText([]byte(ts.String())); err != nil {
			return dt, fmt.Errorf("invalid created_at: %w", err)
		}
	}
	return dt, nil
}

func encodeMessage(m Message) ([]byte, error) {
	result := []byte(`{"object":"thread.message"}`)
	var err error
	for _, kv := range [][2]string{
		{"id", m.ID},
		{"thread_id", m.ThreadID},
		{"run_id", m.RunID},
		{"role", string(m.Role)},
		{"status", string(m.Status)},
	} {
		if kv[1] == "" {
			continue
		}
		if result, err = sjson.SetBytes(result, kv[0], kv[1]); err != nil {
			return nil, err
		}
	}
	if !m.CreatedAt.IsZero() {
		if result, err = sjson.SetBytes(result, "created_at", m.CreatedAt.String()); err != nil {
			return nil, err
		}
	}
	return encodeParts(result, "content", m.Content)
}

func decodeRun(obj gjson.Result) (Run, error) {
	id, err := required(obj, "id")
	if err != nil {
		return Run{}, err
	}
	status, err := required(obj, "status")
	if err != nil {
		return Run{}, err
	}
	run := Run{
		ID:       id.String(),
		ThreadID: obj.Get("thread_id").String(),
		AgentID:  obj.Get("assistant_id").String(),
		Status:   RunStatus(status.String()),
	}
	if le := obj.Get("last_error"); le.Exists() && le.IsObject() {
		run.LastError = &RunError{
			Code:    le.Get("code").String(),
			Message: le.Get("message").String(),
		}
	}
	return run, nil
}

func encodeRun(r Run) ([]byte, error) {
	result := []byte(`{"object":"thread.run"}`)
	var err error
	for _, kv := range [][2]string{
		{"id", r.ID},
		{"thread_id", r.ThreadID},
		{"assistant_id", r.AgentID},
		{"status", string(r.Status)},
	} {
		if result, err = sjson.SetBytes(result, kv[0], kv[1]); err != nil {
			return nil, err
		}
	}
	if r.LastError != nil {
		if result, err = sjson.SetBytes(result, "last_error.code", r.LastError.Code); err != nil {
			return nil, err
		}
		if result, err = sjson.SetBytes(result, "last_error.message", r.LastError.Message); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func decodeStep(obj gjson.Result) (Step, error) {
	id, err := required(obj, "id")
	if err != nil {
		return Step{}, err
	}
	typ, err := required(obj, "type")
	if err != nil {
		return Step{}, err
	}
	return Step{
		ID:      id.String(),
		RunID:   obj.Get("run_id").String(),
		Type:    StepType(typ.String()),
		Status:  StepStatus(obj.Get("status").String()),
		Details: obj.Get("step_details"),
	}, nil
}

func encodeStep(s Step) ([]byte, error) {
	result := []byte(`{"object":"thread.run.step"}`)
	var err error
	for _, kv := range [][2]string{
		{"id", s.ID},
		{"run_id", s.RunID},
		{"type", string(s.Type)},
		{"status", string(s.Status)},
	} {
		if result, err = sjson.SetBytes(result, kv[0], kv[1]); err != nil {
			return nil, err
		}
	}
	if s.Details.Exists() {
		if result, err = sjson.SetRawBytes(result, "step_details", []byte(s.Details.Raw)); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func decodeError(obj gjson.Result) Error {
	// errors arrive either as an error object or as a bare string
	if obj.IsObject() {
		msg := obj.Get("message").String()
		if msg == "" {
			msg = obj.Raw
		}
		return Error{Code: obj.Get("code").String(), Err: errors.New(msg)}
	}
	msg := obj.String()
	if msg == "" {
		msg = "unknown stream error"
	}
	return Error{Err: errors.New(msg)}
}

func encodeError(e Error) ([]byte, error) {
	result, err := sjson.SetBytes([]byte(`{}`), "message", e.Error())
	if err != nil {
		return nil, err
	}
	if e.Code != "" {
		return sjson.SetBytes(result, "code", e.Code)
	}
	return result, nil
}

// ErrorFromJSON decodes an error payload that arrives outside the streaming
// envelope, either an error object, an object with an "error" member or a
// bare JSON string.
func ErrorFromJSON(data []byte) (Error, error) {
	if !gjson.ValidBytes(data) {
		return Error{}, fmt.Errorf("invalid json: %s", data)
	}
	obj := gjson.ParseBytes(data)
	if inner := obj.Get("error"); inner.Exists() {
		obj = inner
	}
	return decodeError(obj), nil
}

// MessageFromJSON decodes a message object as returned by the service.
func MessageFromJSON(data []byte) (Message, error) {
	if !gjson.ValidBytes(data) {
		return Message{}, fmt.Errorf("invalid json: %s", data)
	}
	return decodeMessage(gjson.ParseBytes(data))
}

// RunFromJSON decodes a run object as returned by the service.
func RunFromJSON(data []byte) (Run, error) {
	if !gjson.ValidBytes(data) {
		return Run{}, fmt.Errorf("invalid json: %s", data)
	}
	return decodeRun(gjson.ParseBytes(data))
}
