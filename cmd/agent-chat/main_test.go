package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/casualjim/runrelay/agentservice"
	"github.com/casualjim/runrelay/agentservice/memory"
	"github.com/casualjim/runrelay/notify"
	"github.com/casualjim/runrelay/session"
	"github.com/casualjim/runrelay/tracing"
	"github.com/casualjim/runrelay/transcript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChat(t *testing.T) {
	svc := memory.New(memory.WithAgents(agentservice.Agent{ID: "asst_1"}))
	var stdout, lines strings.Builder
	rend, err := transcript.New(&stdout)
	require.NoError(t, err)

	deps := session.Deps{
		Agents:     svc,
		Telemetry:  tracing.New(nil, nil, false, nil),
		Sink:       notify.JSONLines(&lines),
		Transcript: rend,
	}

	err = chat(context.Background(), deps, "asst_1", strings.NewReader("hello\n\nagain\nexit\nignored\n"), &stdout)
	require.NoError(t, err)
	svc.Wait()

	out := stdout.String()
	assert.Contains(t, out, ": hello")
	assert.Contains(t, out, ": again")
	assert.NotContains(t, out, "ignored")

	var ends int
	for _, line := range strings.Split(strings.TrimSpace(lines.String()), "\n") {
		n, err := notify.FromJSON([]byte(line))
		require.NoError(t, err)
		if n.Kind() == notify.KindStreamEnd {
			ends++
		}
	}
	assert.Equal(t, 2, ends)
}

func TestChatEOF(t *testing.T) {
	svc := memory.New(memory.WithAgents(agentservice.Agent{ID: "asst_1"}))
	deps := session.Deps{
		Agents:    svc,
		Telemetry: tracing.New(nil, nil, false, nil),
		Sink:      &notify.Collector{},
	}
	var out strings.Builder
	require.NoError(t, chat(context.Background(), deps, "asst_1", strings.NewReader(""), &out))
}

func clearServiceEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"AZURE_AI_PROJECT_ENDPOINT", "AZURE_AI_API_KEY", "AGENT_ID",
		"OTEL_EXPORTER_OTLP_ENDPOINT", "NATS_URL",
	} {
		t.Setenv(key, "")
	}
}

func TestRunOffline(t *testing.T) {
	clearServiceEnv(t)
	envFile := filepath.Join(t.TempDir(), "missing.env")
	var out strings.Builder

	err := run(context.Background(), []string{"-env", envFile, "-offline"}, strings.NewReader("ping\nexit\n"), &out)
	require.NoError(t, err)

	var kinds []notify.Kind
	for _, line := range strings.Split(out.String(), "\n") {
		if !strings.HasPrefix(line, "{") {
			continue
		}
		n, err := notify.FromJSON([]byte(line))
		require.NoError(t, err)
		kinds = append(kinds, n.Kind())
	}
	assert.Contains(t, kinds, notify.KindCompletedMessage)
	assert.Contains(t, kinds, notify.KindStreamEnd)
	assert.Contains(t, out.String(), ": ping")
}

func TestRunRequiresEndpointWhenOnline(t *testing.T) {
	clearServiceEnv(t)
	envFile := filepath.Join(t.TempDir(), "missing.env")

	err := run(context.Background(), []string{"-env", envFile}, strings.NewReader(""), &strings.Builder{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AZURE_AI_PROJECT_ENDPOINT is required")
}
