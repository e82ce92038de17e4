package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecorded(t *testing.T, recordContent bool) (*Telemetry, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return New(tp, propagation.TraceContext{}, recordContent, tp.Shutdown), sr
}

func attrs(span sdktrace.ReadOnlySpan) map[attribute.Key]string {
	out := make(map[attribute.Key]string)
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value.Emit()
	}
	return out
}

func TestRunSpan_Identity(t *testing.T) {
	tel, sr := newRecorded(t, false)
	_, span := tel.StartRun(context.Background())

	assert.True(t, span.SetIdentity("asst_1", "thread_1"))
	assert.True(t, span.SetIdentity("asst_1", "thread_1"), "same identity is accepted")
	assert.False(t, span.SetIdentity("asst_2", "thread_2"), "identity is never overwritten")
	span.SetRunStatus("completed")
	span.End(nil)

	ended := sr.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, SpanAgentRun, ended[0].Name())
	got := attrs(ended[0])
	assert.Equal(t, "asst_1", got[AttrAgentID])
	assert.Equal(t, "thread_1", got[AttrThreadID])
	assert.Equal(t, "completed", got[AttrRunStatus])

	agentID, threadID := span.Identity()
	assert.Equal(t, "asst_1", agentID)
	assert.Equal(t, "thread_1", threadID)
}

func TestRunSpan_RunError(t *testing.T) {
	tel, sr := newRecorded(t, false)
	_, span := tel.StartRun(context.Background())
	span.SetRunStatus("failed")
	span.SetRunError("rate_limited")
	span.End(nil)

	ended := sr.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "rate_limited", attrs(ended[0])[AttrRunError])
	assert.Equal(t, codes.Error, ended[0].Status().Code)
}

func TestRunSpan_EndWithError(t *testing.T) {
	tel, sr := newRecorded(t, false)
	_, span := tel.StartRun(context.Background())
	span.End(errors.New("transport closed"))

	ended := sr.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "transport closed", ended[0].Status().Description)
}

func TestRunSpan_Child(t *testing.T) {
	tel, sr := newRecorded(t, false)
	_, span := tel.StartRun(context.Background())
	_, child := span.Child(SpanPostProcessing)
	child.End()
	span.End(nil)

	ended := sr.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, SpanPostProcessing, ended[0].Name())
	assert.Equal(t, span.SpanContext().SpanID(), ended[0].Parent().SpanID())
	assert.Equal(t, span.SpanContext().TraceID(), ended[0].SpanContext().TraceID())
}

func TestRunSpan_RecordPrompt(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		tel, sr := newRecorded(t, false)
		_, span := tel.StartRun(context.Background())
		span.RecordPrompt("secret")
		span.End(nil)
		_, ok := attrs(sr.Ended()[0])[AttrPrompt]
		assert.False(t, ok)
	})

	t.Run("enabled", func(t *testing.T) {
		tel, sr := newRecorded(t, true)
		_, span := tel.StartRun(context.Background())
		span.RecordPrompt("What number does he wear?")
		span.End(nil)
		assert.Equal(t, "What number does he wear?", attrs(sr.Ended()[0])[AttrPrompt])
	})
}

func TestRunSpan_Nil(t *testing.T) {
	var span *RunSpan
	assert.NotPanics(t, func() {
		assert.True(t, span.SetIdentity("a", "t"))
		span.SetRunStatus("completed")
		span.SetRunError("x")
		span.RecordPrompt("x")
		span.AddEvent("x")
		_, child := span.Child("x")
		child.End()
		span.End(errors.New("x"))
		assert.False(t, span.SpanContext().IsValid())
	})
}

func TestCarrier(t *testing.T) {
	tel, sr := newRecorded(t, false)
	ctx, span := tel.StartRun(context.Background())

	token := tel.Inject(ctx)
	require.NotEmpty(t, token.TraceParent())

	// continue the trace from the token alone
	remote := tel.Extract(context.Background(), token)
	_, cont := tel.StartRun(remote)
	cont.End(nil)
	span.End(nil)

	ended := sr.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, span.SpanContext().TraceID(), ended[0].SpanContext().TraceID())
	assert.Equal(t, span.SpanContext().SpanID(), ended[0].Parent().SpanID())

	assert.Equal(t, context.Background(), tel.Extract(context.Background(), nil))
}

func TestSetup_Disabled(t *testing.T) {
	tel, err := Setup(context.Background(), Config{})
	require.NoError(t, err)
	_, span := tel.StartRun(context.Background())
	span.SetIdentity("asst_1", "thread_1")
	span.End(nil)
	assert.False(t, span.SpanContext().IsValid())
	assert.NoError(t, tel.Shutdown(context.Background()))
}
