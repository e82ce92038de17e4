package runevents

// StreamEvent is one element of a run's event stream. The set of
// implementations is closed: MessageDelta, ThreadMessage, ThreadRun, RunStep,
// Error and Done.
type StreamEvent interface {
	streamEvent()
	// Name is the event name used on the wire, e.g. "thread.run.completed".
	Name() string
}

// MessageDelta carries an incremental fragment of a message being generated.
type MessageDelta struct {
	MessageID string
	Parts     []ContentPart
}

func (MessageDelta) streamEvent() {}

func (MessageDelta) Name() string { return "thread.message.delta" }

// Text returns the text fragment carried by the delta.
func (d MessageDelta) Text() (string, error) {
	return joinText(d.Parts)
}

// ThreadMessage reports a message lifecycle change.
type ThreadMessage struct {
	Message
}

func (ThreadMessage) streamEvent() {}

func (m ThreadMessage) Name() string {
	if m.Status == "" {
		return "thread.message.created"
	}
	return "thread.message." + string(m.Status)
}

// ThreadRun reports a run status change.
type ThreadRun struct {
	Run
}

func (ThreadRun) streamEvent() {}

func (r ThreadRun) Name() string {
	if r.Status == "" || r.Status == RunQueued {
		return "thread.run.created"
	}
	return "thread.run." + string(r.Status)
}

// RunStep reports a run step lifecycle change.
type RunStep struct {
	Step
}

func (RunStep) streamEvent() {}

func (s RunStep) Name() string {
	if s.Status == "" {
		return "thread.run.step.created"
	}
	return "thread.run.step." + string(s.Status)
}

// Error is an error reported in-band by the service.
type Error struct {
	Code string
	Err  error
}

func (Error) streamEvent() {}

func (Error) Name() string { return "error" }

func (e Error) Error() string {
	if e.Err == nil {
		return "unknown stream error"
	}
	return e.Err.Error()
}

func (e Error) Unwrap() error {
	return e.Err
}

// Done marks the end of the stream.
type Done struct{}

func (Done) streamEvent() {}

func (Done) Name() string { return "done" }
