// Package tracing wires OpenTelemetry for agent runs.
//
// Setup builds a tracer provider that exports over OTLP/HTTP when an endpoint
// is configured. The returned Telemetry is passed explicitly to the code that
// opens spans; nothing in this module looks up a tracer from global state.
//
// A run is traced with one RunSpan named "agent_run" carrying the agent_id,
// thread_id, run_status and run_error attributes, and a nested
// "message_post_processing" span around transcript rendering:
//
//	ctx, span := tracing.StartRun(ctx, tel.Tracer())
//	defer span.End(nil)
//	span.SetIdentity(agentID, threadID)
//	...
//	pctx, child := span.Child(tracing.SpanPostProcessing)
//	render(pctx)
//	child.End()
//
// Carrier is the correlation token handed between the code that opens the
// span and the code that continues it, for example across a process boundary.
package tracing
