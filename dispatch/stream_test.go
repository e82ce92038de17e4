package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/casualjim/runrelay/notify"
	"github.com/casualjim/runrelay/runevents"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvents(t *testing.T) {
	ctx := context.Background()
	s := Events(delta("a"), runevents.Done{})
	assert.Nil(t, s.Current())

	require.True(t, s.Next(ctx))
	assert.Equal(t, delta("a"), s.Current())
	require.True(t, s.Next(ctx))
	assert.Equal(t, runevents.Done{}, s.Current())
	assert.False(t, s.Next(ctx))
	assert.NoError(t, s.Err())

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	s = Events(delta("a"))
	assert.False(t, s.Next(cancelled))
	assert.ErrorIs(t, s.Err(), context.Canceled)
}

func TestChannelStream(t *testing.T) {
	t.Run("drains until closed", func(t *testing.T) {
		ch := make(chan runevents.StreamEvent, 3)
		ch <- delta("a")
		ch <- runevents.Done{}
		close(ch)

		var cancelled int
		s := ChannelStream(ch, nil, func() { cancelled++ })
		var sink notify.Collector
		res, err := Dispatch(context.Background(), request(), s, &sink)
		require.NoError(t, err)
		assert.True(t, res.Done)
		assert.Equal(t, []notify.Kind{notify.KindMessage, notify.KindStreamEnd}, sink.Kinds())
		assert.Equal(t, 1, cancelled)
	})

	t.Run("surfaces producer failure", func(t *testing.T) {
		ch := make(chan runevents.StreamEvent)
		errc := make(chan error, 1)
		errc <- errors.New("eof")
		close(ch)

		s := ChannelStream(ch, errc, nil)
		assert.False(t, s.Next(context.Background()))
		assert.EqualError(t, s.Err(), "eof")
		assert.NoError(t, s.Close())
	})

	t.Run("failure reported after close", func(t *testing.T) {
		ch := make(chan runevents.StreamEvent)
		errc := make(chan error, 1)
		go func() {
			ch <- delta("a")
			close(ch)
			errc <- errors.New("connection reset")
		}()

		var sink notify.Collector
		_, err := Dispatch(context.Background(), request(), ChannelStream(ch, errc, nil), &sink)
		var terr *TransportError
		require.ErrorAs(t, err, &terr)
		assert.EqualError(t, terr.Err, "connection reset")
		assert.Equal(t, []notify.Kind{notify.KindMessage, notify.KindError}, sink.Kinds())
	})

	t.Run("failure reported before close on unbuffered errc", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		ch := make(chan runevents.StreamEvent)
		errc := make(chan error)
		go func() {
			ch <- delta("a")
			errc <- errors.New("connection reset")
			close(ch)
		}()

		var sink notify.Collector
		_, err := Dispatch(ctx, request(), ChannelStream(ch, errc, nil), &sink)
		require.NotErrorIs(t, err, context.DeadlineExceeded)
		var terr *TransportError
		require.ErrorAs(t, err, &terr)
		assert.EqualError(t, terr.Err, "connection reset")
	})

	t.Run("queued events are delivered before the failure", func(t *testing.T) {
		ch := make(chan runevents.StreamEvent, 2)
		errc := make(chan error, 1)
		ch <- delta("a")
		ch <- delta("b")
		errc <- errors.New("eof")
		close(ch)

		s := ChannelStream(ch, errc, nil)
		var got []runevents.StreamEvent
		for s.Next(context.Background()) {
			got = append(got, s.Current())
		}
		assert.Equal(t, []runevents.StreamEvent{delta("a"), delta("b")}, got)
		assert.EqualError(t, s.Err(), "eof")
	})

	t.Run("closed errc ends cleanly", func(t *testing.T) {
		ch := make(chan runevents.StreamEvent)
		errc := make(chan error)
		go func() {
			ch <- delta("a")
			close(ch)
			close(errc)
		}()

		var sink notify.Collector
		res, err := Dispatch(context.Background(), request(), ChannelStream(ch, errc, nil), &sink)
		require.NoError(t, err)
		assert.False(t, res.Done)
		assert.Equal(t, []notify.Kind{notify.KindMessage, notify.KindStreamEnd}, sink.Kinds())
	})

	t.Run("stops on cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		s := ChannelStream(make(chan runevents.StreamEvent), nil, nil)
		assert.False(t, s.Next(ctx))
		assert.ErrorIs(t, s.Err(), context.Canceled)
	})
}
