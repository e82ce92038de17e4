package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/casualjim/runrelay/notify"
	"github.com/casualjim/runrelay/pkg/slogx"
	"github.com/casualjim/runrelay/runevents"
	"github.com/casualjim/runrelay/tracing"
	"github.com/fogfish/opts"
	"github.com/go-openapi/strfmt"
)

var errMissingEvent = errors.New("stream yielded no event")

// Request identifies the run whose events are dispatched. Span is the run
// span opened by the caller before the stream was started; nil disables
// tracing.
type Request struct {
	AgentID  string
	ThreadID string
	Span     *tracing.RunSpan
}

// Result summarizes one dispatched stream.
type Result struct {
	RunID         string
	FinalStatus   runevents.RunStatus
	Events        int
	Notifications int
	Filtered      int
	ContentErrors int
	// Done is true when the stream ended with the Done sentinel rather than
	// plain closure.
	Done bool
}

// Dispatcher turns run events into notifications.
type Dispatcher struct {
	logger    *slog.Logger
	now       func() time.Time
	observers []func(context.Context, runevents.StreamEvent)
}

// New creates a Dispatcher. It panics on invalid options.
func New(options ...opts.Option[Dispatcher]) *Dispatcher {
	d := &Dispatcher{}
	if err := opts.Apply(d, options); err != nil {
		panic(err)
	}
	if d.logger == nil {
		d.logger = slog.Default().With(slogx.LoggerName("runrelay.dispatch"))
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// Dispatch is New(options...).Dispatch.
func Dispatch(ctx context.Context, req Request, stream Stream, sink notify.Sink, options ...opts.Option[Dispatcher]) (Result, error) {
	return New(options...).Dispatch(ctx, req, stream, sink)
}

// Dispatch consumes stream until Done, closure, failure or cancellation and
// forwards one notification per event that is not filtered. Every stream
// ends with exactly one stream_end notification unless the transport fails,
// in which case one error notification is sent and a *TransportError is
// returned. The stream is closed exactly once on every path.
//
// A sink may return notify.ErrStop to end consumption early without error.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request, stream Stream, sink notify.Sink) (res Result, err error) {
	if stream == nil {
		return res, errors.New("stream is required")
	}
	if sink == nil {
		return res, errors.New("sink is required")
	}
	rel := &releaser{stream: stream}
	defer func() {
		if cerr := rel.release(); cerr != nil {
			d.logger.WarnContext(ctx, "failed to release run event stream", slogx.Error(cerr))
		}
	}()

	if !req.Span.SetIdentity(req.AgentID, req.ThreadID) {
		agentID, threadID := req.Span.Identity()
		d.logger.WarnContext(ctx, "run span already carries a different identity",
			slogx.Run(agentID, threadID, ""), slog.String("requested_thread_id", req.ThreadID))
	}
	log := d.logger.With(slogx.Run(req.AgentID, req.ThreadID, ""))

	env := notify.Envelope{ThreadID: req.ThreadID}
	terminated := make(map[string]runevents.RunStatus)

	emit := func(n notify.Notification) error {
		if err := sink.Notify(ctx, n); err != nil {
			return err
		}
		res.Notifications++
		return nil
	}

	for ctx.Err() == nil && stream.Next(ctx) {
		ev := stream.Current()
		res.Events++
		for _, observe := range d.observers {
			observe(ctx, ev)
		}

		if run, ok := ev.(runevents.ThreadRun); ok {
			if prev, seen := terminated[run.ID]; seen {
				log.WarnContext(ctx, "dropping run event after terminal status",
					slogx.RunID(run.ID), slog.String("terminal_status", string(prev)), slog.String("status", string(run.Status)))
				res.Filtered++
				continue
			}
			if run.Status.Terminal() {
				terminated[run.ID] = run.Status
			}
			env.RunID = run.ID
			res.RunID = run.ID
			res.FinalStatus = run.Status
			req.Span.SetRunStatus(string(run.Status))
			if run.Status == runevents.RunFailed && run.LastError != nil {
				req.Span.SetRunError(run.LastError.String())
			}
		}
		d.logEvent(ctx, log, ev)

		env.Timestamp = strfmt.DateTime(d.now())
		n, terr := Transform(env, ev)
		if terr != nil {
			res.ContentErrors++
			log.WarnContext(ctx, "failed to materialize run event", slogx.Error(terr))
			n = notify.Failure{Envelope: env, Error: terr.Error()}
		}
		if n == nil {
			res.Filtered++
			continue
		}

		if err := emit(n); err != nil {
			if errors.Is(err, notify.ErrStop) {
				log.DebugContext(ctx, "sink requested stop")
				return res, nil
			}
			return res, fmt.Errorf("failed to deliver %s notification: %w", n.Kind(), err)
		}

		if _, ok := ev.(runevents.Done); ok {
			res.Done = true
			log.InfoContext(ctx, "Stream finished")
			return res, nil
		}
	}

	if cerr := ctx.Err(); cerr != nil {
		log.DebugContext(ctx, "run event dispatch cancelled", slogx.Error(cerr))
		return res, cerr
	}

	if serr := stream.Err(); serr != nil {
		if errors.Is(serr, context.Canceled) || errors.Is(serr, context.DeadlineExceeded) {
			return res, serr
		}
		terr := &TransportError{Err: serr}
		log.ErrorContext(ctx, "Error in agent run", slogx.Error(terr))
		env.Timestamp = strfmt.DateTime(d.now())
		if nerr := emit(notify.Failure{Envelope: env, Error: terr.Error()}); nerr != nil && !errors.Is(nerr, notify.ErrStop) {
			log.WarnContext(ctx, "failed to deliver transport failure", slogx.Error(nerr))
		}
		return res, terr
	}

	// closed without the Done sentinel
	env.Timestamp = strfmt.DateTime(d.now())
	if err := emit(notify.StreamEnd{Envelope: env}); err != nil && !errors.Is(err, notify.ErrStop) {
		return res, fmt.Errorf("failed to deliver %s notification: %w", notify.KindStreamEnd, err)
	}
	log.InfoContext(ctx, "Stream finished", slog.Bool("done_sentinel", false))
	return res, nil
}

func (d *Dispatcher) logEvent(ctx context.Context, log *slog.Logger, ev runevents.StreamEvent) {
	switch e := ev.(type) {
	case runevents.MessageDelta:
		log.DebugContext(ctx, "Delta", slog.String("message_id", e.MessageID))
	case runevents.ThreadMessage:
		log.DebugContext(ctx, "Message", slog.String("message_id", e.ID), slog.String("status", string(e.Status)))
	case runevents.ThreadRun:
		log.InfoContext(ctx, "Run status", slogx.RunID(e.ID), slog.String("status", string(e.Status)))
	case runevents.RunStep:
		// steps that are not completed tool calls stay in the internal log only
		log.DebugContext(ctx, "Run step", slog.String("step_id", e.ID),
			slog.String("type", string(e.Type)), slog.String("status", string(e.Status)))
	case runevents.Error:
		log.ErrorContext(ctx, "Error in agent run", slogx.Error(e))
	}
}
