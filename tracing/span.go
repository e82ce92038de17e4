package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	SpanAgentRun       = "agent_run"
	SpanPostProcessing = "message_post_processing"

	AttrAgentID   = attribute.Key("agent_id")
	AttrThreadID  = attribute.Key("thread_id")
	AttrRunStatus = attribute.Key("run_status")
	AttrRunError  = attribute.Key("run_error")
	AttrPrompt    = attribute.Key("gen_ai.prompt")
)

// RunSpan is the span that correlates everything belonging to one run
// invocation. It is not safe for concurrent use; one goroutine owns it.
//
// A nil *RunSpan is valid and does nothing, which is how callers run with
// tracing disabled.
type RunSpan struct {
	ctx           context.Context
	span          trace.Span
	tracer        trace.Tracer
	agentID       string
	threadID      string
	recordContent bool
}

// StartRun opens the run span as a child of whatever span ctx carries.
func StartRun(ctx context.Context, tracer trace.Tracer, opts ...trace.SpanStartOption) (context.Context, *RunSpan) {
	ctx, span := tracer.Start(ctx, SpanAgentRun, opts...)
	return ctx, &RunSpan{ctx: ctx, span: span, tracer: tracer}
}

// StartRun opens the run span with the tracer and content settings of t.
func (t *Telemetry) StartRun(ctx context.Context, opts ...trace.SpanStartOption) (context.Context, *RunSpan) {
	ctx, rs := StartRun(ctx, t.Tracer(), opts...)
	rs.recordContent = t.recordContent
	return ctx, rs
}

// Context returns the context carrying the run span.
func (s *RunSpan) Context() context.Context {
	if s == nil {
		return context.Background()
	}
	return s.ctx
}

// SpanContext identifies the run span.
func (s *RunSpan) SpanContext() trace.SpanContext {
	if s == nil {
		return trace.SpanContext{}
	}
	return s.span.SpanContext()
}

// SetIdentity attaches agent_id and thread_id. The first call wins: later
// calls never overwrite the identity and report false when they disagree
// with it.
func (s *RunSpan) SetIdentity(agentID, threadID string) bool {
	if s == nil {
		return true
	}
	if s.agentID != "" || s.threadID != "" {
		return s.agentID == agentID && s.threadID == threadID
	}
	s.agentID, s.threadID = agentID, threadID
	s.span.SetAttributes(AttrAgentID.String(agentID), AttrThreadID.String(threadID))
	return true
}

// Identity returns the agent and thread ids set by SetIdentity.
func (s *RunSpan) Identity() (agentID, threadID string) {
	if s == nil {
		return "", ""
	}
	return s.agentID, s.threadID
}

func (s *RunSpan) SetRunStatus(status string) {
	if s == nil {
		return
	}
	s.span.SetAttributes(AttrRunStatus.String(status))
}

// SetRunError records the cause of a failed run.
func (s *RunSpan) SetRunError(cause string) {
	if s == nil || cause == "" {
		return
	}
	s.span.SetAttributes(AttrRunError.String(cause))
	s.span.SetStatus(codes.Error, cause)
}

// RecordPrompt puts the user prompt on the span when content recording is on.
func (s *RunSpan) RecordPrompt(prompt string) {
	if s == nil || !s.recordContent {
		return
	}
	s.span.SetAttributes(AttrPrompt.String(prompt))
}

// AddEvent records a point in time on the run span.
func (s *RunSpan) AddEvent(name string, attrs ...attribute.KeyValue) {
	if s == nil {
		return
	}
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// Child opens a span nested under the run span. The caller ends it.
func (s *RunSpan) Child(name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if s == nil {
		return context.Background(), trace.SpanFromContext(context.Background())
	}
	return s.tracer.Start(s.ctx, name, opts...)
}

// End closes the run span, marking it failed when err is not nil.
func (s *RunSpan) End(err error) {
	if s == nil {
		return
	}
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
	s.span.End()
}
