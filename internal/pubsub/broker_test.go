package pubsub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBroker_Subscribe(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := broker.Subscribe(ctx)

	broker.Publish("hello")

	select {
	case v := <-ch:
		require.Equal(t, "hello", v)
	case <-time.After(100 * time.Millisecond):
		require.Fail(t, "timeout waiting for value")
	}
}

func TestBroker_MultipleSubscribers(t *testing.T) {
	broker := NewBroker[int]()
	defer broker.Close()

	ctx := context.Background()

	ch1 := broker.Subscribe(ctx)
	ch2 := broker.Subscribe(ctx)
	ch3 := broker.Subscribe(ctx)

	require.Equal(t, 3, broker.SubscriberCount())

	broker.Publish(42)

	// All subscribers should receive the value
	for i, ch := range []<-chan int{ch1, ch2, ch3} {
		select {
		case v := <-ch:
			require.Equal(t, 42, v, "subscriber %d", i)
		case <-time.After(100 * time.Millisecond):
			require.Fail(t, "timeout waiting for value", "subscriber %d", i)
		}
	}
}

func TestBroker_ContextCancellation(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())

	ch := broker.Subscribe(ctx)
	require.Equal(t, 1, broker.SubscriberCount())

	cancel()
	require.Eventually(t, func() bool { return broker.SubscriberCount() == 0 }, time.Second, 5*time.Millisecond)

	// Channel should be closed
	_, ok := <-ch
	require.False(t, ok, "channel should be closed")
}

func TestBroker_NonBlocking(t *testing.T) {
	broker := NewBrokerWithBuffer[int](1)
	defer broker.Close()

	ch := broker.Subscribe(context.Background())

	// Fill buffer
	broker.Publish(1)

	// These should not block (drop values)
	done := make(chan bool)
	go func() {
		broker.Publish(2)
		broker.Publish(3)
		done <- true
	}()

	select {
	case <-done:
		// Success - didn't block
	case <-time.After(100 * time.Millisecond):
		require.Fail(t, "Publish blocked")
	}

	// Only first value received (buffer was full for others)
	require.Equal(t, 1, <-ch)
}

func TestBroker_SubscribeFunc_SynchronousInOrder(t *testing.T) {
	broker := NewBroker[int]()
	defer broker.Close()

	var got []string
	broker.SubscribeFunc(func(v int) { got = append(got, "first") })
	broker.SubscribeFunc(func(v int) { got = append(got, "second") })

	broker.Publish(1)

	// Callbacks have already run when Publish returns
	require.Equal(t, []string{"first", "second"}, got)
}

func TestBroker_SubscribeFunc_Cancel(t *testing.T) {
	broker := NewBroker[int]()
	defer broker.Close()

	var calls int
	cancel := broker.SubscribeFunc(func(int) { calls++ })
	require.Equal(t, 1, broker.SubscriberCount())

	broker.Publish(1)
	cancel()
	cancel() // idempotent
	broker.Publish(2)

	require.Equal(t, 1, calls)
	require.Equal(t, 0, broker.SubscriberCount())
}

func TestBroker_SubscribeFunc_CallbackMayCancelItself(t *testing.T) {
	broker := NewBroker[int]()
	defer broker.Close()

	var cancel func()
	var calls int
	cancel = broker.SubscribeFunc(func(int) {
		calls++
		cancel()
	})

	require.NotPanics(t, func() {
		broker.Publish(1)
		broker.Publish(2)
	})
	require.Equal(t, 1, calls)
}

func TestBroker_ConcurrentPublishAndCancel(t *testing.T) {
	broker := NewBroker[int]()
	defer broker.Close()

	var mu sync.Mutex
	seen := 0
	cancels := make([]func(), 0, 10)
	for i := 0; i < 10; i++ {
		cancels = append(cancels, broker.SubscribeFunc(func(int) {
			mu.Lock()
			seen++
			mu.Unlock()
		}))
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			broker.Publish(i)
		}
	}()
	go func() {
		defer wg.Done()
		for _, c := range cancels {
			c()
		}
	}()
	wg.Wait()

	require.Equal(t, 0, broker.SubscriberCount())
}

func TestBroker_Close(t *testing.T) {
	broker := NewBroker[string]()

	ctx := context.Background()

	ch1 := broker.Subscribe(ctx)
	ch2 := broker.Subscribe(ctx)
	broker.SubscribeFunc(func(string) { t.Fatal("callback after close") })

	require.Equal(t, 3, broker.SubscriberCount())

	broker.Close()

	// Both channels should be closed
	_, ok1 := <-ch1
	_, ok2 := <-ch2

	require.False(t, ok1, "ch1 should be closed")
	require.False(t, ok2, "ch2 should be closed")

	// Subscriber count should be 0
	require.Equal(t, 0, broker.SubscriberCount())

	// Subscribe after close should return closed channel
	ch3 := broker.Subscribe(ctx)
	_, ok3 := <-ch3
	require.False(t, ok3, "ch3 should be closed immediately")

	// Publish after close should not panic or reach callbacks
	broker.Publish("test")
}

func TestBroker_CloseIdempotent(t *testing.T) {
	broker := NewBroker[string]()

	ctx := context.Background()
	ch := broker.Subscribe(ctx)

	// Multiple Close() calls should be safe
	broker.Close()
	broker.Close()
	broker.Close()

	// Channel should still be closed
	_, ok := <-ch
	require.False(t, ok, "channel should be closed")
}
