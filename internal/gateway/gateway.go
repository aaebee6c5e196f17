// Package gateway fans published events out to Unix-socket subscribers.
//
// A Gateway owns one socket endpoint per pattern (all, one per category,
// one per well-known event) and a log sink that sees every event. Publish
// never blocks on I/O: each client has its own bounded queue and a slow
// client is dropped rather than allowed to stall the publisher.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/zjrosen/eventgw/internal/event"
	"github.com/zjrosen/eventgw/internal/log"
	"github.com/zjrosen/eventgw/internal/metrics"
	"github.com/zjrosen/eventgw/internal/socket"
	"github.com/zjrosen/eventgw/internal/throttle"
	"github.com/zjrosen/eventgw/internal/tracing"
)

// Sink receives every published event in publish order.
type Sink interface {
	Start(ctx context.Context) error
	Write(ev event.Event)
	Stop(ctx context.Context) error
}

// Source delivers host events to the gateway while it runs.
type Source interface {
	Subscribe(fn func(event.Event)) (unsubscribe func())
}

// Config describes which endpoints to create.
type Config struct {
	SocketDir    string
	Categories   []string      // one <category>.sock each
	Events       []string      // one <category>/<rest>.sock each
	QueueSize    int           // per-connection send queue
	WriteTimeout time.Duration // per-write deadline
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithSink sets the log sink.
func WithSink(s Sink) Option { return func(g *Gateway) { g.sink = s } }

// WithSource subscribes the gateway to src between Start and Stop.
func WithSource(src Source) Option { return func(g *Gateway) { g.source = src } }

// WithMetrics records gateway activity.
func WithMetrics(m *metrics.Metrics) Option { return func(g *Gateway) { g.metrics = m } }

// WithTracer records a span per publish.
func WithTracer(t trace.Tracer) Option {
	return func(g *Gateway) {
		if t != nil {
			g.tracer = t
		}
	}
}

// WithClock overrides the timestamp source for events published without one.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		if now != nil {
			g.now = now
		}
	}
}

// WithThrottle limits repeated sanitization warnings.
func WithThrottle(l *throttle.Limiter) Option { return func(g *Gateway) { g.throttle = l } }

// Status is a snapshot of the gateway.
type Status struct {
	Running   bool
	SocketDir string
	Endpoints []socket.Status
}

// Gateway coordinates endpoints, the sink and the event source.
type Gateway struct {
	cfg      Config
	patterns []event.Pattern

	sink     Sink
	source   Source
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	now      func() time.Time
	throttle *throttle.Limiter

	// lifecycle serializes Start and Stop. Publish never takes it, so
	// setup and teardown I/O cannot stall publishers.
	lifecycle sync.Mutex

	mu          sync.RWMutex
	running     bool
	endpoints   []*socket.Endpoint
	unsubscribe func()
}

// New validates cfg and returns a stopped Gateway.
func New(cfg Config, opts ...Option) (*Gateway, error) {
	if cfg.SocketDir == "" {
		return nil, errors.New("gateway needs a socket directory")
	}

	patterns, err := patternsFor(cfg.Categories, cfg.Events)
	if err != nil {
		return nil, err
	}

	g := &Gateway{
		cfg:      cfg,
		patterns: patterns,
		tracer:   noop.NewTracerProvider().Tracer(tracing.DefaultServiceName),
		now:      time.Now,
		throttle: throttle.New(throttle.DefaultWindow),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// patternsFor returns all, then categories, then exact names, without
// duplicates.
func patternsFor(categories, events []string) ([]event.Pattern, error) {
	seen := map[event.Pattern]bool{event.All(): true}
	out := []event.Pattern{event.All()}

	add := func(p event.Pattern) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, c := range categories {
		p, err := event.Category(c)
		if err != nil {
			return nil, fmt.Errorf("category %q: %w", c, err)
		}
		add(p)
	}
	for _, name := range events {
		p, err := event.Exact(name)
		if err != nil {
			return nil, fmt.Errorf("event %q: %w", name, err)
		}
		add(p)
	}
	return out, nil
}

// Start starts the sink, opens every endpoint and subscribes to the
// source. An endpoint or sink that fails to start is logged and left
// out; the rest keep working. Start on a running gateway is a no-op.
// The gateway mutex is only taken to install the result, so Publish is
// never held up by socket setup.
func (g *Gateway) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g.lifecycle.Lock()
	defer g.lifecycle.Unlock()
	if g.Running() {
		return nil
	}

	_, span := g.tracer.Start(ctx, tracing.SpanStart)
	defer span.End()

	if g.sink != nil {
		if err := g.sink.Start(ctx); err != nil {
			log.ErrorErr(log.CatSink, "log sink failed to start", err)
		}
	}

	if err := socket.EnsureDir(g.cfg.SocketDir); err != nil {
		log.ErrorErr(log.CatGateway, "socket directory unavailable", err, "dir", g.cfg.SocketDir)
	}

	endpoints := make([]*socket.Endpoint, 0, len(g.patterns))
	for _, p := range g.patterns {
		ep, err := g.startEndpoint(p)
		if err != nil {
			g.metrics.EndpointFailed(p.String())
			log.ErrorErr(log.CatGateway, "endpoint unavailable", err, "pattern", p)
			continue
		}
		endpoints = append(endpoints, ep)
	}

	g.mu.Lock()
	g.endpoints = endpoints
	g.running = true
	g.mu.Unlock()

	span.SetAttributes(attribute.Int(tracing.AttrGatewayEndpoints, len(endpoints)))
	log.Info(log.CatGateway, "gateway started", "dir", g.cfg.SocketDir, "endpoints", len(endpoints), "patterns", len(g.patterns))

	if g.source != nil {
		unsub := g.source.Subscribe(g.Publish)
		g.mu.Lock()
		g.unsubscribe = unsub
		g.mu.Unlock()
	}
	return nil
}

func (g *Gateway) startEndpoint(p event.Pattern) (*socket.Endpoint, error) {
	path, err := socket.Path(g.cfg.SocketDir, p)
	if err != nil {
		return nil, err
	}
	cfg := socket.Config{
		Path:         path,
		Pattern:      p,
		QueueSize:    g.cfg.QueueSize,
		WriteTimeout: g.cfg.WriteTimeout,
	}
	if g.metrics != nil {
		cfg.Observer = g.metrics
	}
	ep, err := socket.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := ep.Start(); err != nil {
		return nil, err
	}
	return ep, nil
}

// Publish delivers ev to every matching endpoint and to the sink. It
// never blocks on socket I/O and never fails: events without a name are
// dropped, and publishing while stopped does nothing.
func (g *Gateway) Publish(ev event.Event) {
	if ev.Name == "" {
		g.metrics.Dropped(metrics.ReasonNoName)
		log.Debug(log.CatGateway, "dropping event without a name")
		return
	}

	g.mu.RLock()
	if !g.running {
		g.mu.RUnlock()
		log.Debug(log.CatGateway, "publish while stopped", "event", ev.Name)
		return
	}
	endpoints := g.endpoints
	sink := g.sink
	g.mu.RUnlock()

	if ev.Time.IsZero() {
		ev.Time = g.now()
	}
	clean, dropped := event.SanitizeReport(ev.Payload)
	ev.Payload = clean
	for _, path := range dropped {
		if g.throttle.Allow(ev.Name + ":" + path) {
			log.Warn(log.CatGateway, "dropped unencodable payload value", "event", ev.Name, "key", path)
		}
	}

	_, span := g.tracer.Start(context.Background(), tracing.SpanPublish, trace.WithAttributes(
		attribute.String(tracing.AttrEventName, ev.Name),
		attribute.String(tracing.AttrEventCategory, ev.Category()),
	))
	defer span.End()
	if len(dropped) > 0 {
		span.SetAttributes(attribute.StringSlice(tracing.AttrDroppedKeys, dropped))
	}

	g.metrics.Published(ev.Category())

	matched, delivered := 0, 0
	if line, err := event.ToLine(ev); err != nil {
		g.metrics.Dropped(metrics.ReasonEncode)
		log.Debug(log.CatGateway, "event not serializable", "event", ev.Name, "error", err)
	} else {
		for _, ep := range endpoints {
			if !ep.Pattern().Matches(ev.Name) {
				continue
			}
			matched++
			delivered += ep.BroadcastLine(ev.Name, line)
		}
	}

	if sink != nil {
		sink.Write(ev)
	}

	span.SetAttributes(
		attribute.Int(tracing.AttrGatewayEndpoints, matched),
		attribute.Int(tracing.AttrDeliveries, delivered),
	)
}

// Stop unsubscribes from the source, tears down every endpoint (unlinking
// its socket file) and stops the sink. Stop on a stopped gateway is a
// no-op. A stopped gateway can be started again.
func (g *Gateway) Stop(ctx context.Context) error {
	g.lifecycle.Lock()
	defer g.lifecycle.Unlock()

	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return nil
	}
	g.running = false
	endpoints := g.endpoints
	g.endpoints = nil
	unsub := g.unsubscribe
	g.unsubscribe = nil
	g.mu.Unlock()

	_, span := g.tracer.Start(ctx, tracing.SpanStop)
	defer span.End()

	if unsub != nil {
		unsub()
	}

	var eg errgroup.Group
	for _, ep := range endpoints {
		eg.Go(func() error {
			if err := ep.Stop(); err != nil {
				log.ErrorErr(log.CatGateway, "endpoint stop failed", err, "pattern", ep.Pattern())
				return fmt.Errorf("stopping %s endpoint: %w", ep.Pattern(), err)
			}
			return nil
		})
	}
	epErr := eg.Wait()

	var sinkErr error
	if g.sink != nil {
		if sinkErr = g.sink.Stop(ctx); sinkErr != nil {
			log.ErrorErr(log.CatSink, "log sink stop failed", sinkErr)
		}
	}

	log.Info(log.CatGateway, "gateway stopped", "endpoints", len(endpoints))
	return errors.Join(epErr, sinkErr)
}

// Running reports whether the gateway is started.
func (g *Gateway) Running() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.running
}

// ActivePatterns returns the patterns whose endpoints are listening.
func (g *Gateway) ActivePatterns() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.endpoints))
	for _, ep := range g.endpoints {
		out = append(out, ep.Pattern().String())
	}
	return out
}

// Status reports the gateway and its endpoints.
func (g *Gateway) Status() Status {
	g.mu.RLock()
	endpoints := g.endpoints
	running := g.running
	g.mu.RUnlock()

	st := Status{Running: running, SocketDir: g.cfg.SocketDir}
	for _, ep := range endpoints {
		st.Endpoints = append(st.Endpoints, ep.Status())
	}
	return st
}
