package runevents

import (
	"errors"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/tidwall/gjson"
)

// ErrNoTextContent is returned when a message or delta carries no text part.
var ErrNoTextContent = errors.New("no text content")

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type MessageStatus string

const (
	MessageInProgress MessageStatus = "in_progress"
	MessageCompleted  MessageStatus = "completed"
	MessageIncomplete MessageStatus = "incomplete"
)

type RunStatus string

const (
	RunQueued         RunStatus = "queued"
	RunInProgress     RunStatus = "in_progress"
	RunRequiresAction RunStatus = "requires_action"
	RunCancelling     RunStatus = "cancelling"
	RunCompleted      RunStatus = "completed"
	RunFailed         RunStatus = "failed"
	RunCancelled      RunStatus = "cancelled"
	RunExpired        RunStatus = "expired"
	RunIncomplete     RunStatus = "incomplete"
)

// Terminal reports whether no further status changes can follow s.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled, RunExpired, RunIncomplete:
		return true
	default:
		return false
	}
}

type StepType string

const (
	StepMessageCreation StepType = "message_creation"
	StepToolCalls       StepType = "tool_calls"
)

type StepStatus string

const (
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
	StepCancelled  StepStatus = "cancelled"
	StepExpired    StepStatus = "expired"
)

// ContentPart is one element of a message body. Only text parts carry a value
// that this package understands; other part types are kept by name.
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: "text", Text: text}
}

func joinText(parts []ContentPart) (string, error) {
	var (
		sb    strings.Builder
		found bool
	)
	for _, p := range parts {
		if p.Type != "text" {
			continue
		}
		found = true
		sb.WriteString(p.Text)
	}
	if !found {
		return "", ErrNoTextContent
	}
	return sb.String(), nil
}

type Thread struct {
	ID        string          `json:"id"`
	CreatedAt strfmt.DateTime `json:"created_at,omitempty"`
}

type Message struct {
	ID        string          `json:"id"`
	ThreadID  string          `json:"thread_id"`
	RunID     string          `json:"run_id,omitempty"`
	Role      Role            `json:"role"`
	Status    MessageStatus   `json:"status"`
	Content   []ContentPart   `json:"content"`
	CreatedAt strfmt.DateTime `json:"created_at,omitempty"`
}

// Text returns the text parts of the message concatenated in order.
func (m Message) Text() (string, error) {
	return joinText(m.Content)
}

// LastText returns the final text part of the message. Transcripts show
// this part, which holds the answer when a reply carries several.
func (m Message) LastText() (string, error) {
	for i := len(m.Content) - 1; i >= 0; i-- {
		if m.Content[i].Type == "text" {
			return m.Content[i].Text, nil
		}
	}
	return "", ErrNoTextContent
}

// RunError is the cause the service attaches to a failed run.
type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e RunError) String() string {
	switch {
	case e.Code == "":
		return e.Message
	case e.Message == "":
		return e.Code
	default:
		return e.Code + ": " + e.Message
	}
}

type Run struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	AgentID   string    `json:"assistant_id"`
	Status    RunStatus `json:"status"`
	LastError *RunError `json:"last_error,omitempty"`
}

// Step is a sub-unit of work inside a run. Details is the service's
// step-specific payload and is passed through untouched.
type Step struct {
	ID      string       `json:"id"`
	RunID   string       `json:"run_id"`
	Type    StepType     `json:"type"`
	Status  StepStatus   `json:"status"`
	Details gjson.Result `json:"-"`
}
