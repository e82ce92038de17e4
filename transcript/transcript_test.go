package transcript

import (
	"context"
	"strings"
	"testing"

	"github.com/casualjim/runrelay/notify"
	"github.com/casualjim/runrelay/runevents"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func message(role runevents.Role, parts ...runevents.ContentPart) runevents.Message {
	return runevents.Message{ID: "msg_" + string(role), Role: role, Status: runevents.MessageCompleted, Content: parts}
}

func TestThread(t *testing.T) {
	var buf strings.Builder
	r, err := New(&buf)
	require.NoError(t, err)

	err = r.Thread([]runevents.Message{
		message(runevents.RoleUser, runevents.TextPart("What is 2+2?")),
		message(runevents.RoleAssistant, runevents.ContentPart{Type: "image_file"}),
		message(runevents.RoleAssistant, runevents.TextPart("4")),
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, color.CyanString("user")+": What is 2+2?", lines[0])
	assert.Equal(t, color.MagentaString("assistant")+": 4", lines[1])
}

func TestMessageSkipsNonText(t *testing.T) {
	var buf strings.Builder
	r, err := New(&buf)
	require.NoError(t, err)

	ok, err := r.Message(message(runevents.RoleAssistant))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, buf.String())
}

func TestMessageUsesLastTextPart(t *testing.T) {
	var buf strings.Builder
	r, err := New(&buf)
	require.NoError(t, err)

	ok, err := r.Message(message(runevents.RoleAssistant,
		runevents.TextPart("Let me check."),
		runevents.ContentPart{Type: "image_file"},
		runevents.TextPart("The answer is 4."),
	))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, color.MagentaString("assistant")+": The answer is 4.\n", buf.String())
}

func TestMarkdown(t *testing.T) {
	var buf strings.Builder
	r, err := New(&buf, WithMarkdown(true), WithStyle("notty"), WithWordWrap(80))
	require.NoError(t, err)

	ok, err := r.Message(message(runevents.RoleAssistant, runevents.TextPart("# Result\n\nThe answer is **4**.")))
	require.NoError(t, err)
	assert.True(t, ok)

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, color.MagentaString("assistant")+": \n"))
	assert.Contains(t, out, "Result")
	assert.Contains(t, out, "The answer is")
}

func TestConsole(t *testing.T) {
	ctx := context.Background()
	var buf strings.Builder
	sink := Console(&buf)

	for _, n := range []notify.Notification{
		notify.RunStatus{Status: runevents.RunInProgress},
		notify.Message{Content: "Hello "},
		notify.Message{Content: "world"},
		notify.CompletedMessage{Content: "Hello world"},
		notify.ToolCall{Status: runevents.StepCompleted, Details: gjson.Parse(`{"type":"tool_calls"}`)},
		notify.Failure{Error: "boom"},
		notify.RunStatus{Status: runevents.RunFailed, Error: "server_error: oops"},
		notify.StreamEnd{},
	} {
		require.NoError(t, sink.Notify(ctx, n))
	}

	out := buf.String()
	assert.Contains(t, out, color.MagentaString("assistant")+": Hello world\n")
	assert.Contains(t, out, color.YellowString("tool")+` {"type":"tool_calls"}`)
	assert.Contains(t, out, "Error: boom\n")
	assert.Contains(t, out, "Run failed: server_error: oops\n")
	assert.Equal(t, 1, strings.Count(out, color.MagentaString("assistant")))
}

func TestRunFailed(t *testing.T) {
	var buf strings.Builder
	r, err := New(&buf)
	require.NoError(t, err)
	require.NoError(t, r.RunFailed("rate_limit_exceeded: slow down"))
	assert.Equal(t, "Run failed: rate_limit_exceeded: slow down\n", buf.String())
}
