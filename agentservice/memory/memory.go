// Package memory is an in-process agent service. Runs are scripted by a
// Responder, which makes it useful for tests and offline demos.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/runrelay/agentservice"
	"github.com/casualjim/runrelay/dispatch"
	"github.com/casualjim/runrelay/pkg/uuidx"
	"github.com/casualjim/runrelay/runevents"
	"github.com/fogfish/opts"
	"github.com/go-openapi/strfmt"
	"github.com/tidwall/gjson"
)

// Turn is what a Responder sees of a run.
type Turn struct {
	Agent    agentservice.Agent
	ThreadID string
	RunID    string
	// Prompt is the text of the latest user message on the thread.
	Prompt string
}

// Responder scripts the events of one run. The service fills in message
// and thread bookkeeping as the events are consumed.
type Responder func(Turn) []runevents.StreamEvent

var _ agentservice.Client = (*Service)(nil)

type Service struct {
	agents    *haxmap.Map[string, agentservice.Agent]
	threads   *haxmap.Map[string, *thread]
	responder Responder
	streams   sync.WaitGroup
}

type thread struct {
	mu       sync.Mutex
	messages []runevents.Message
}

func (t *thread) append(m runevents.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, m)
}

func (t *thread) snapshot() []runevents.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.messages)
}

type Option = opts.Option[Service]

// WithAgents registers agents with the service.
func WithAgents(agents ...agentservice.Agent) Option {
	return opts.Type[Service](func(s *Service) error {
		for _, a := range agents {
			if a.ID == "" {
				return fmt.Errorf("agent %q has no id", a.Name)
			}
			s.agents.Set(a.ID, a)
		}
		return nil
	})
}

// WithResponder sets the script for runs. The default echoes the prompt.
var WithResponder = opts.ForName[Service, Responder]("responder")

func New(options ...Option) *Service {
	s := &Service{
		agents:    haxmap.New[string, agentservice.Agent](),
		threads:   haxmap.New[string, *thread](),
		responder: Echo,
	}
	if err := opts.Apply(s, options); err != nil {
		panic(err)
	}
	return s
}

func (s *Service) GetAgent(_ context.Context, agentID string) (agentservice.Agent, error) {
	a, ok := s.agents.Get(agentID)
	if !ok {
		return agentservice.Agent{}, fmt.Errorf("agent %s: %w", agentID, agentservice.ErrNotFound)
	}
	return a, nil
}

func (s *Service) CreateThread(_ context.Context) (runevents.Thread, error) {
	id := uuidx.Prefixed("thread")
	s.threads.Set(id, &thread{})
	return runevents.Thread{ID: id, CreatedAt: strfmt.DateTime(time.Now())}, nil
}

func (s *Service) thread(id string) (*thread, error) {
	t, ok := s.threads.Get(id)
	if !ok {
		return nil, fmt.Errorf("thread %s: %w", id, agentservice.ErrNotFound)
	}
	return t, nil
}

func (s *Service) CreateMessage(_ context.Context, threadID string, role runevents.Role, content string) (runevents.Message, error) {
	t, err := s.thread(threadID)
	if err != nil {
		return runevents.Message{}, err
	}
	msg := runevents.Message{
		ID:        uuidx.Prefixed("msg"),
		ThreadID:  threadID,
		Role:      role,
		Status:    runevents.MessageCompleted,
		Content:   []runevents.ContentPart{runevents.TextPart(content)},
		CreatedAt: strfmt.DateTime(time.Now()),
	}
	t.append(msg)
	return msg, nil
}

func (s *Service) ListMessages(_ context.Context, threadID string, order agentservice.Order) ([]runevents.Message, error) {
	t, err := s.thread(threadID)
	if err != nil {
		return nil, err
	}
	msgs := t.snapshot()
	if order == agentservice.OrderDesc {
		slices.Reverse(msgs)
	}
	return msgs, nil
}

func (s *Service) turn(threadID, agentID string) (*thread, Turn, error) {
	agent, err := s.GetAgent(context.Background(), agentID)
	if err != nil {
		return nil, Turn{}, err
	}
	t, err := s.thread(threadID)
	if err != nil {
		return nil, Turn{}, err
	}
	turn := Turn{Agent: agent, ThreadID: threadID, RunID: uuidx.Prefixed("run")}
	msgs := t.snapshot()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != runevents.RoleUser {
			continue
		}
		if text, err := msgs[i].Text(); err == nil {
			turn.Prompt = text
			break
		}
	}
	return t, turn, nil
}

// record applies the bookkeeping of one event to the thread.
func record(t *thread, ev runevents.StreamEvent) {
	if m, ok := ev.(runevents.ThreadMessage); ok && m.Status == runevents.MessageCompleted {
		t.append(m.Message)
	}
}

func (s *Service) StreamRun(ctx context.Context, threadID, agentID string) (dispatch.Stream, error) {
	t, turn, err := s.turn(threadID, agentID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan runevents.StreamEvent)
	s.streams.Add(1)
	go func() {
		defer s.streams.Done()
		defer close(ch)
		for _, ev := range s.responder(turn) {
			select {
			case <-ctx.Done():
				return
			case ch <- ev:
				record(t, ev)
			}
		}
	}()
	return dispatch.ChannelStream(ch, nil, cancel), nil
}

func (s *Service) CreateAndProcessRun(ctx context.Context, threadID, agentID string) (runevents.Run, error) {
	t, turn, err := s.turn(threadID, agentID)
	if err != nil {
		return runevents.Run{}, err
	}
	last := runevents.Run{ID: turn.RunID, ThreadID: threadID, AgentID: agentID, Status: runevents.RunQueued}
	for _, ev := range s.responder(turn) {
		if err := ctx.Err(); err != nil {
			return last, err
		}
		record(t, ev)
		if r, ok := ev.(runevents.ThreadRun); ok {
			last = r.Run
		}
	}
	return last, nil
}

// Wait blocks until every stream producer has exited.
func (s *Service) Wait() {
	s.streams.Wait()
}

// Reply scripts a successful run answering with text, streamed word by word.
func Reply(turn Turn, text string) []runevents.StreamEvent {
	base := runevents.Run{ID: turn.RunID, ThreadID: turn.ThreadID, AgentID: turn.Agent.ID}
	msgID := uuidx.Prefixed("msg")
	stepID := uuidx.Prefixed("step")
	status := func(s runevents.RunStatus) runevents.StreamEvent {
		r := base
		r.Status = s
		return runevents.ThreadRun{Run: r}
	}
	stepEvent := func(s runevents.StepStatus) runevents.StreamEvent {
		return runevents.RunStep{Step: runevents.Step{
			ID: stepID, RunID: turn.RunID, Type: runevents.StepMessageCreation, Status: s,
			Details: gjson.Parse(fmt.Sprintf(`{"type":"message_creation","message_creation":{"message_id":%q}}`, msgID)),
		}}
	}
	msg := runevents.Message{
		ID: msgID, ThreadID: turn.ThreadID, RunID: turn.RunID, Role: runevents.RoleAssistant,
		Status: runevents.MessageInProgress,
	}

	events := []runevents.StreamEvent{
		status(runevents.RunQueued),
		status(runevents.RunInProgress),
		stepEvent(runevents.StepInProgress),
		runevents.ThreadMessage{Message: msg},
	}
	for i, word := range strings.SplitAfter(text, " ") {
		if word == "" && i > 0 {
			continue
		}
		events = append(events, runevents.MessageDelta{MessageID: msgID, Parts: []runevents.ContentPart{runevents.TextPart(word)}})
	}
	msg.Status = runevents.MessageCompleted
	msg.Content = []runevents.ContentPart{runevents.TextPart(text)}
	msg.CreatedAt = strfmt.DateTime(time.Now())
	events = append(events,
		runevents.ThreadMessage{Message: msg},
		stepEvent(runevents.StepCompleted),
		status(runevents.RunCompleted),
		runevents.Done{},
	)
	return events
}

// Fail scripts a run that fails with the given cause.
func Fail(turn Turn, code, message string) []runevents.StreamEvent {
	return []runevents.StreamEvent{
		runevents.ThreadRun{Run: runevents.Run{ID: turn.RunID, ThreadID: turn.ThreadID, AgentID: turn.Agent.ID, Status: runevents.RunInProgress}},
		runevents.ThreadRun{Run: runevents.Run{
			ID: turn.RunID, ThreadID: turn.ThreadID, AgentID: turn.Agent.ID, Status: runevents.RunFailed,
			LastError: &runevents.RunError{Code: code, Message: message},
		}},
		runevents.Done{},
	}
}

// Echo answers every prompt with the prompt itself.
func Echo(turn Turn) []runevents.StreamEvent {
	return Reply(turn, turn.Prompt)
}
