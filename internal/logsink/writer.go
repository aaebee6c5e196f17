// Package logsink persists every published event without slowing the
// publisher: Write queues, a single goroutine saves batches to a Store.
package logsink

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/zjrosen/eventgw/internal/event"
	"github.com/zjrosen/eventgw/internal/log"
	"github.com/zjrosen/eventgw/internal/metrics"
)

const (
	DefaultBuffer = 1024
	maxBatch      = 64
)

// Store saves events in the order given.
type Store interface {
	Save(ctx context.Context, events []event.Event) error
	Close() error
}

// Option configures a Writer.
type Option func(*Writer)

// WithBuffer sets the queue capacity.
func WithBuffer(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.buffer = n
		}
	}
}

// WithMetrics records writes and overflow drops.
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Writer) { w.metrics = m }
}

// Writer is the gateway's log sink. Events reach the store in Write order.
// The store is owned by the caller; Stop flushes but does not close it,
// so a Writer can be started again.
type Writer struct {
	store   Store
	buffer  int
	metrics *metrics.Metrics

	mu      sync.RWMutex
	queue   chan event.Event
	abort   chan struct{}
	done    chan struct{}
	running bool

	written atomic.Uint64
	dropped atomic.Uint64
}

// NewWriter returns a stopped Writer for store.
func NewWriter(store Store, opts ...Option) *Writer {
	w := &Writer{store: store, buffer: DefaultBuffer}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the drain goroutine. It is a no-op if already running.
func (w *Writer) Start(context.Context) error {
	if w.store == nil {
		return errors.New("log sink has no store")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	w.queue = make(chan event.Event, w.buffer)
	w.abort = make(chan struct{})
	w.done = make(chan struct{})
	w.running = true
	go w.run(w.queue, w.abort, w.done)
	return nil
}

// Write queues ev without blocking. When the queue is full the event is
// dropped and counted.
func (w *Writer) Write(ev event.Event) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.running {
		return
	}
	select {
	case w.queue <- ev:
	default:
		w.dropped.Add(1)
		w.metrics.Dropped(metrics.ReasonSinkFull)
		log.Warn(log.CatSink, "sink queue full, dropping event", "event", ev.Name)
	}
}

// Stop stops accepting events and waits for the queue to drain. If ctx
// ends first the remaining events are discarded and ctx.Err is returned.
func (w *Writer) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.queue)
	abort, done := w.abort, w.done
	w.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		close(abort)
		<-done
		return ctx.Err()
	}
}

// Written returns the number of events saved.
func (w *Writer) Written() uint64 { return w.written.Load() }

// Dropped returns the number of events lost to overflow or store errors.
func (w *Writer) Dropped() uint64 { return w.dropped.Load() }

func (w *Writer) run(queue <-chan event.Event, abort <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	batch := make([]event.Event, 0, maxBatch)
	for ev := range queue {
		batch = append(batch[:0], ev)
	fill:
		for len(batch) < maxBatch {
			select {
			case next, ok := <-queue:
				if !ok {
					break fill
				}
				batch = append(batch, next)
			default:
				break fill
			}
		}

		select {
		case <-abort:
			w.dropped.Add(uint64(len(batch)))
			continue
		default:
		}
		w.save(batch)
	}
}

func (w *Writer) save(batch []event.Event) {
	if err := w.store.Save(context.Background(), batch); err != nil {
		w.dropped.Add(uint64(len(batch)))
		log.ErrorErr(log.CatSink, "saving events failed", err, "count", len(batch))
		return
	}
	w.written.Add(uint64(len(batch)))
	w.metrics.SinkWritten(len(batch))
}
