package gateway

import (
	"context"
	"time"

	"github.com/zjrosen/eventgw/internal/event"
	"github.com/zjrosen/eventgw/internal/pubsub"
)

// Bus is the in-process entry point for host code. Publish stamps the
// event and hands it synchronously to callback subscribers (the Gateway),
// so nothing is lost between the host and the gateway. Channel listeners
// get a best-effort copy.
type Bus struct {
	broker *pubsub.Broker[event.Event]
	now    func() time.Time
}

// NewBus returns an open Bus.
func NewBus() *Bus {
	return &Bus{broker: pubsub.NewBroker[event.Event](), now: time.Now}
}

// Publish emits a named event with the current time.
func (b *Bus) Publish(name string, payload map[string]any) {
	b.PublishEvent(event.NewAt(name, b.now(), payload))
}

// PublishEvent emits ev, stamping it if it has no time.
func (b *Bus) PublishEvent(ev event.Event) {
	if ev.Time.IsZero() {
		ev.Time = b.now()
	}
	b.broker.Publish(ev)
}

// Subscribe implements Source.
func (b *Bus) Subscribe(fn func(event.Event)) (unsubscribe func()) {
	return b.broker.SubscribeFunc(fn)
}

// Listen streams events until ctx is done. Events are dropped for a
// listener that falls behind.
func (b *Bus) Listen(ctx context.Context) <-chan event.Event {
	return b.broker.Subscribe(ctx)
}

// Close detaches every subscriber. Publishing after Close is a no-op.
func (b *Bus) Close() {
	b.broker.Close()
}

var _ Source = (*Bus)(nil)
