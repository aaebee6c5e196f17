package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/eventgw/internal/event"
)

func TestBus_PublishStampsAndDeliversSynchronously(t *testing.T) {
	bus := NewBus()
	defer bus.Close()
	bus.now = func() time.Time { return fixedNow }

	var got []event.Event
	unsub := bus.Subscribe(func(ev event.Event) { got = append(got, ev) })

	bus.Publish(event.ClaudeSessionStart, map[string]any{"session": "s1"})
	bus.PublishEvent(event.Event{Name: event.ClaudeSessionEnd})

	require.Len(t, got, 2)
	require.Equal(t, fixedNow, got[0].Time)
	require.Equal(t, "s1", got[0].Payload["session"])
	require.Equal(t, fixedNow, got[1].Time)

	unsub()
	bus.Publish(event.ClaudeToolUse, nil)
	require.Len(t, got, 2)
}

func TestBus_PublishEventKeepsExistingTime(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	at := time.Unix(1700000000, 0)
	var got event.Event
	bus.Subscribe(func(ev event.Event) { got = ev })
	bus.PublishEvent(event.NewAt(event.TerminalCreated, at, nil))
	require.Equal(t, at, got.Time)
}

func TestBus_Listen(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := bus.Listen(ctx)

	bus.Publish(event.TerminalTitleChanged, map[string]any{"title": "zsh"})

	select {
	case ev := <-ch:
		require.Equal(t, event.TerminalTitleChanged, ev.Name)
	case <-time.After(time.Second):
		require.Fail(t, "listener did not receive event")
	}
}

func TestBus_PublishAfterCloseIsNoop(t *testing.T) {
	bus := NewBus()
	called := false
	bus.Subscribe(func(event.Event) { called = true })
	bus.Close()

	require.NotPanics(t, func() { bus.Publish(event.ClaudeToolUse, nil) })
	require.False(t, called)
}
