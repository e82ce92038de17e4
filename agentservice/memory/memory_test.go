package memory

import (
	"context"
	"testing"

	"github.com/casualjim/runrelay/agentservice"
	"github.com/casualjim/runrelay/dispatch"
	"github.com/casualjim/runrelay/notify"
	"github.com/casualjim/runrelay/runevents"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAgent = agentservice.Agent{ID: "asst_test", Name: "tester", Model: "gpt-4o"}

func TestGetAgent(t *testing.T) {
	svc := New(WithAgents(testAgent))

	a, err := svc.GetAgent(context.Background(), "asst_test")
	require.NoError(t, err)
	assert.Equal(t, testAgent, a)

	_, err = svc.GetAgent(context.Background(), "asst_missing")
	require.ErrorIs(t, err, agentservice.ErrNotFound)
}

func TestMessagesOrder(t *testing.T) {
	ctx := context.Background()
	svc := New(WithAgents(testAgent))

	th, err := svc.CreateThread(ctx)
	require.NoError(t, err)
	assert.Contains(t, th.ID, "thread_")

	_, err = svc.CreateMessage(ctx, th.ID, runevents.RoleUser, "one")
	require.NoError(t, err)
	_, err = svc.CreateMessage(ctx, th.ID, runevents.RoleUser, "two")
	require.NoError(t, err)

	asc, err := svc.ListMessages(ctx, th.ID, agentservice.OrderAsc)
	require.NoError(t, err)
	require.Len(t, asc, 2)
	first, _ := asc[0].Text()
	assert.Equal(t, "one", first)

	desc, err := svc.ListMessages(ctx, th.ID, agentservice.OrderDesc)
	require.NoError(t, err)
	first, _ = desc[0].Text()
	assert.Equal(t, "two", first)

	_, err = svc.CreateMessage(ctx, "thread_missing", runevents.RoleUser, "x")
	require.ErrorIs(t, err, agentservice.ErrNotFound)
}

func TestStreamRunEchoes(t *testing.T) {
	ctx := context.Background()
	svc := New(WithAgents(testAgent))
	th, err := svc.CreateThread(ctx)
	require.NoError(t, err)
	_, err = svc.CreateMessage(ctx, th.ID, runevents.RoleUser, "hello there")
	require.NoError(t, err)

	stream, err := svc.StreamRun(ctx, th.ID, testAgent.ID)
	require.NoError(t, err)

	var sink notify.Collector
	res, err := dispatch.Dispatch(ctx, dispatch.Request{AgentID: testAgent.ID, ThreadID: th.ID}, stream, &sink)
	require.NoError(t, err)
	svc.Wait()

	assert.True(t, res.Done)
	assert.Equal(t, runevents.RunCompleted, res.FinalStatus)
	assert.Equal(t, "hello there", sink.Text())
	assert.Equal(t, notify.KindStreamEnd, sink.Kinds()[len(sink.Kinds())-1])

	msgs, err := svc.ListMessages(ctx, th.ID, agentservice.OrderAsc)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, runevents.RoleAssistant, msgs[1].Role)
	reply, err := msgs[1].Text()
	require.NoError(t, err)
	assert.Equal(t, "hello there", reply)
}

func TestStreamRunCloseStopsProducer(t *testing.T) {
	ctx := context.Background()
	svc := New(WithAgents(testAgent))
	th, err := svc.CreateThread(ctx)
	require.NoError(t, err)

	stream, err := svc.StreamRun(ctx, th.ID, testAgent.ID)
	require.NoError(t, err)
	require.True(t, stream.Next(ctx))
	require.NoError(t, stream.Close())
	svc.Wait()

	msgs, err := svc.ListMessages(ctx, th.ID, agentservice.OrderAsc)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestStreamRunUnknownAgent(t *testing.T) {
	ctx := context.Background()
	svc := New()
	th, err := svc.CreateThread(ctx)
	require.NoError(t, err)

	_, err = svc.StreamRun(ctx, th.ID, "asst_missing")
	require.ErrorIs(t, err, agentservice.ErrNotFound)
}

func TestCreateAndProcessRun(t *testing.T) {
	ctx := context.Background()

	t.Run("completed", func(t *testing.T) {
		svc := New(WithAgents(testAgent), WithResponder(func(turn Turn) []runevents.StreamEvent {
			return Reply(turn, "done")
		}))
		th, err := svc.CreateThread(ctx)
		require.NoError(t, err)

		run, err := svc.CreateAndProcessRun(ctx, th.ID, testAgent.ID)
		require.NoError(t, err)
		assert.Equal(t, runevents.RunCompleted, run.Status)
		assert.Equal(t, th.ID, run.ThreadID)

		msgs, err := svc.ListMessages(ctx, th.ID, agentservice.OrderAsc)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
	})

	t.Run("failed", func(t *testing.T) {
		svc := New(WithAgents(testAgent), WithResponder(func(turn Turn) []runevents.StreamEvent {
			return Fail(turn, "rate_limit_exceeded", "too many requests")
		}))
		th, err := svc.CreateThread(ctx)
		require.NoError(t, err)

		run, err := svc.CreateAndProcessRun(ctx, th.ID, testAgent.ID)
		require.NoError(t, err)
		assert.Equal(t, runevents.RunFailed, run.Status)
		require.NotNil(t, run.LastError)
		assert.Equal(t, "rate_limit_exceeded: too many requests", run.LastError.String())
	})
}

func TestWithAgentsRejectsMissingID(t *testing.T) {
	assert.Panics(t, func() {
		New(WithAgents(agentservice.Agent{Name: "nameless"}))
	})
}
