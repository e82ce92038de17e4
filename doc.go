/*
Package runrelay relays the runs of hosted conversational agents: it drives
an Assistants-style agent service, turns the events of each run into
normalized notifications and correlates all of it with OpenTelemetry spans.

The pieces:

  - runevents: the events of a run and their wire codec
  - dispatch: the run event dispatcher that maps events to notifications
  - notify: notifications and the sinks that consume them
  - tracing: tracer setup, correlation tokens and the agent_run span
  - agentservice: the agent service client, backed by openai-go or memory
  - session: one user turn, streamed or blocking, with its transcript

# Basic Usage

	tel, err := tracing.Setup(ctx, tracing.Config{ServiceName: "chat"})
	if err != nil {
		return err
	}
	defer tel.Shutdown(ctx)

	out, err := session.Streaming(ctx, session.Deps{
		Agents:    openai.New(openai.Config{BaseURL: endpoint, APIKey: key}),
		Telemetry: tel,
		Sink:      notify.JSONLines(os.Stdout),
	}, session.Request{AgentID: agentID, Prompt: "What number does he wear?"})

The programs in cmd/ wire this together: agent-chat is a streaming chat and
agent-run performs a single blocking run.
*/
package runrelay
