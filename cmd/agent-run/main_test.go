package main

import (
	"context"
	"strings"
	"testing"

	"github.com/casualjim/runrelay/agentservice"
	"github.com/casualjim/runrelay/agentservice/memory"
	"github.com/casualjim/runrelay/runevents"
	"github.com/casualjim/runrelay/session"
	"github.com/casualjim/runrelay/tracing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnce(t *testing.T) {
	deps := session.Deps{
		Agents:    memory.New(memory.WithAgents(agentservice.Agent{ID: "asst_1"})),
		Telemetry: tracing.New(nil, nil, false, nil),
	}
	var out strings.Builder
	require.NoError(t, once(context.Background(), deps, "asst_1", "What number does he wear?", &out, false))

	assert.Contains(t, out.String(), ": What number does he wear?\n")
	assert.Contains(t, out.String(), "thread: thread_")
}

func TestOnceFailedRun(t *testing.T) {
	deps := session.Deps{
		Agents: memory.New(
			memory.WithAgents(agentservice.Agent{ID: "asst_1"}),
			memory.WithResponder(func(turn memory.Turn) []runevents.StreamEvent {
				return memory.Fail(turn, "server_error", "oops")
			}),
		),
		Telemetry: tracing.New(nil, nil, false, nil),
	}
	var out strings.Builder
	err := once(context.Background(), deps, "asst_1", "hi", &out, false)
	require.ErrorIs(t, err, session.ErrRunFailed)
	assert.Equal(t, "Run failed: server_error: oops\n", out.String())
}

func TestRunRequiresPrompt(t *testing.T) {
	err := run(context.Background(), []string{"-env", "missing.env"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-prompt")
}
