// Package pubsub provides a generic in-process publish/subscribe broker.
// Values are delivered synchronously to callback subscribers and
// non-blockingly to buffered channel subscribers.
package pubsub

import "context"

// Subscriber provides a subscription channel for published values.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan T
}

// FuncSubscriber registers callbacks invoked synchronously on Publish.
type FuncSubscriber[T any] interface {
	SubscribeFunc(fn func(T)) (cancel func())
}

// Publisher publishes values to every subscriber.
type Publisher[T any] interface {
	Publish(v T)
}
