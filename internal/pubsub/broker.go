package pubsub

import (
	"context"
	"sync"
)

const defaultBufferSize = 64

type handler[T any] struct {
	id uint64
	fn func(T)
}

// Broker is a generic pub/sub broker.
type Broker[T any] struct {
	subs       map[chan T]struct{}
	handlers   []handler[T]
	nextID     uint64
	mu         sync.RWMutex
	done       chan struct{}
	bufferSize int
}

// NewBroker creates a new broker with the default channel buffer size (64).
func NewBroker[T any]() *Broker[T] {
	return NewBrokerWithBuffer[T](defaultBufferSize)
}

// NewBrokerWithBuffer creates a new broker with a custom channel buffer size.
func NewBrokerWithBuffer[T any](size int) *Broker[T] {
	return &Broker[T]{
		subs:       make(map[chan T]struct{}),
		done:       make(chan struct{}),
		bufferSize: size,
	}
}

// Subscribe creates a new subscription channel.
// The channel is automatically closed when ctx is cancelled.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan T {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Check if broker is closed
	select {
	case <-b.done:
		ch := make(chan T)
		close(ch)
		return ch
	default:
	}

	sub := make(chan T, b.bufferSize)
	b.subs[sub] = struct{}{}

	// Cleanup goroutine
	go func() {
		select {
		case <-ctx.Done():
		case <-b.done:
			return // Close already closed the channel
		}
		b.mu.Lock()
		defer b.mu.Unlock()

		if _, ok := b.subs[sub]; ok {
			delete(b.subs, sub)
			close(sub)
		}
	}()

	return sub
}

// SubscribeFunc registers fn to be called synchronously, in registration
// order, for every published value. The returned cancel func is idempotent.
func (b *Broker[T]) SubscribeFunc(fn func(T)) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.done:
		return func() {}
	default:
	}

	b.nextID++
	id := b.nextID
	b.handlers = append(b.handlers, handler[T]{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, h := range b.handlers {
				if h.id == id {
					b.handlers = append(b.handlers[:i:i], b.handlers[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers v to all subscribers.
// Channel delivery is non-blocking: a full subscriber channel drops v.
// Callbacks run on the caller's goroutine after the broker lock is released,
// so a callback may itself subscribe or cancel.
func (b *Broker[T]) Publish(v T) {
	b.mu.RLock()
	select {
	case <-b.done:
		b.mu.RUnlock()
		return
	default:
	}

	for sub := range b.subs {
		select {
		case sub <- v:
			// Delivered
		default:
			// Channel full - drop to prevent blocking
		}
	}
	handlers := b.handlers
	b.mu.RUnlock()

	for _, h := range handlers {
		h.fn(v)
	}
}

// Close shuts down the broker, closes all subscriber channels and forgets
// all callbacks.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.done:
		return // Already closed
	default:
	}

	close(b.done)
	for sub := range b.subs {
		close(sub)
	}
	b.subs = nil
	b.handlers = nil
}

// SubscriberCount returns the number of active channel and callback subscribers.
func (b *Broker[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs) + len(b.handlers)
}

var (
	_ Subscriber[string]     = (*Broker[string])(nil)
	_ FuncSubscriber[string] = (*Broker[string])(nil)
	_ Publisher[string]      = (*Broker[string])(nil)
)
