// Package session runs one user turn against an agent: it posts the prompt,
// runs the agent (streamed or blocking), and renders the thread afterwards,
// all inside one agent_run span.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/casualjim/runrelay/agentservice"
	"github.com/casualjim/runrelay/dispatch"
	"github.com/casualjim/runrelay/notify"
	"github.com/casualjim/runrelay/pkg/slogx"
	"github.com/casualjim/runrelay/runevents"
	"github.com/casualjim/runrelay/tracing"
	"github.com/casualjim/runrelay/transcript"
	"github.com/fogfish/opts"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrRunFailed is returned by Blocking when the run ends in the failed status.
var ErrRunFailed = errors.New("run failed")

type Deps struct {
	Agents    agentservice.Client
	Telemetry *tracing.Telemetry
	// Sink receives the notifications of a streamed run.
	Sink notify.Sink
	// Transcript renders the thread after the run; nil skips rendering.
	Transcript *transcript.Renderer
	Logger     *slog.Logger
	Dispatch   []opts.Option[dispatch.Dispatcher]
}

func (d Deps) validate() error {
	if d.Agents == nil {
		return errors.New("agent service client is required")
	}
	if d.Telemetry == nil {
		return errors.New("telemetry is required")
	}
	return nil
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default().With(slogx.LoggerName("runrelay.session"))
}

type Request struct {
	AgentID string
	// ThreadID continues an existing thread; a new one is created when empty.
	ThreadID string
	Prompt   string
	// Carrier links the run span to a remote parent. When empty the span
	// context already in ctx is passed through a carrier instead.
	Carrier tracing.Carrier
}

type Outcome struct {
	AgentID  string
	ThreadID string
	// Run is the final state of a blocking run.
	Run runevents.Run
	// Dispatch summarizes a streamed run.
	Dispatch dispatch.Result
	Messages []runevents.Message
	// Carrier identifies the agent_run span of this turn.
	Carrier tracing.Carrier
}

type turn struct {
	deps    Deps
	log     *slog.Logger
	ctx     context.Context
	span    *tracing.RunSpan
	outcome Outcome
}

// begin opens the run span and prepares agent, thread and prompt, in the
// order the correlation attributes require.
func begin(ctx context.Context, deps Deps, req Request) (*turn, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if req.AgentID == "" {
		return nil, errors.New("agent id is required")
	}

	carrier := req.Carrier
	if len(carrier) == 0 {
		carrier = deps.Telemetry.Inject(ctx)
	}
	runCtx, span := deps.Telemetry.StartRun(deps.Telemetry.Extract(ctx, carrier))
	t := &turn{deps: deps, ctx: runCtx, span: span, log: deps.logger()}
	t.outcome.Carrier = deps.Telemetry.Inject(runCtx)

	agent, err := deps.Agents.GetAgent(runCtx, req.AgentID)
	if err != nil {
		return t, err
	}
	threadID := req.ThreadID
	if threadID == "" {
		thread, err := deps.Agents.CreateThread(runCtx)
		if err != nil {
			return t, err
		}
		threadID = thread.ID
	}
	t.outcome.AgentID, t.outcome.ThreadID = agent.ID, threadID
	span.SetIdentity(agent.ID, threadID)
	t.log = t.log.With(slogx.Run(agent.ID, threadID, ""))
	t.log.InfoContext(runCtx, "Using agent", slog.String("agent_name", agent.Name))

	span.RecordPrompt(req.Prompt)
	if _, err := deps.Agents.CreateMessage(runCtx, threadID, runevents.RoleUser, req.Prompt); err != nil {
		return t, err
	}
	return t, nil
}

func (t *turn) end(err error) {
	if t == nil {
		return
	}
	t.span.End(err)
}

// Streaming runs the turn with a streamed run. Every run event reaches
// deps.Sink as a notification while the run progresses; afterwards the
// thread is listed and rendered, one message_post_processing span per
// message.
func Streaming(ctx context.Context, deps Deps, req Request) (out Outcome, err error) {
	if deps.Sink == nil {
		return out, errors.New("sink is required")
	}
	t, err := begin(ctx, deps, req)
	defer func() { t.end(err) }()
	if err != nil {
		if t != nil {
			out = t.outcome
		}
		return out, err
	}

	stream, err := deps.Agents.StreamRun(t.ctx, t.outcome.ThreadID, t.outcome.AgentID)
	if err != nil {
		return t.outcome, err
	}
	res, err := dispatch.New(deps.Dispatch...).Dispatch(t.ctx, dispatch.Request{
		AgentID:  t.outcome.AgentID,
		ThreadID: t.outcome.ThreadID,
		Span:     t.span,
	}, stream, deps.Sink)
	t.outcome.Dispatch = res
	if err != nil {
		return t.outcome, err
	}

	return t.outcome, t.postProcess()
}

// Blocking runs the turn and waits for the run to finish. A failed run sets
// run_error on the span, is reported through the transcript and returns
// ErrRunFailed.
func Blocking(ctx context.Context, deps Deps, req Request) (out Outcome, err error) {
	t, err := begin(ctx, deps, req)
	defer func() {
		if errors.Is(err, ErrRunFailed) {
			// the span already carries the failure
			t.end(nil)
			return
		}
		t.end(err)
	}()
	if err != nil {
		if t != nil {
			out = t.outcome
		}
		return out, err
	}

	run, err := deps.Agents.CreateAndProcessRun(t.ctx, t.outcome.ThreadID, t.outcome.AgentID)
	t.outcome.Run = run
	if err != nil {
		return t.outcome, err
	}
	t.span.SetRunStatus(string(run.Status))
	t.log.InfoContext(t.ctx, "Run status", slogx.RunID(run.ID), slog.String("status", string(run.Status)))

	if run.Status == runevents.RunFailed {
		cause := "unknown error"
		if run.LastError != nil {
			cause = run.LastError.String()
		}
		t.span.SetRunError(cause)
		if deps.Transcript != nil {
			if werr := deps.Transcript.RunFailed(cause); werr != nil {
				return t.outcome, werr
			}
		}
		return t.outcome, fmt.Errorf("%w: %s", ErrRunFailed, cause)
	}

	return t.outcome, t.postProcess()
}

// postProcess lists the thread in ascending order and renders every message
// that has text, each inside its own message_post_processing span.
func (t *turn) postProcess() error {
	msgs, err := t.deps.Agents.ListMessages(t.ctx, t.outcome.ThreadID, agentservice.OrderAsc)
	if err != nil {
		return err
	}
	t.outcome.Messages = msgs

	for _, msg := range msgs {
		if _, terr := msg.LastText(); terr != nil {
			continue
		}
		_, span := t.span.Child(tracing.SpanPostProcessing)
		span.SetAttributes(attribute.String("message_id", msg.ID), attribute.String("role", string(msg.Role)))
		if t.deps.Transcript != nil {
			if _, err := t.deps.Transcript.Message(msg); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				span.End()
				return err
			}
		}
		span.End()
	}
	return nil
}
