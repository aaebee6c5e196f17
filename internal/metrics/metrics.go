// Package metrics holds the gateway's Prometheus instruments. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons used as the "reason" label.
const (
	ReasonNoName     = "no_name"
	ReasonSlowClient = "slow_client"
	ReasonWriteError = "write_error"
	ReasonSinkFull   = "sink_full"
	ReasonEncode     = "encode"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	EventsPublished       *prometheus.CounterVec
	EventsDelivered       *prometheus.CounterVec
	EventsDropped         *prometheus.CounterVec
	ConnectionsTotal      *prometheus.CounterVec
	ConnectionsActive     *prometheus.GaugeVec
	EndpointSetupFailures *prometheus.CounterVec
	SinkWrites            prometheus.Counter
}

// New creates the metrics and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventgw_events_published_total",
			Help: "Total number of events accepted by the gateway",
		}, []string{"category"}),
		EventsDelivered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventgw_events_delivered_total",
			Help: "Total number of event lines queued for a connected client",
		}, []string{"pattern"}),
		EventsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventgw_events_dropped_total",
			Help: "Total number of events or deliveries dropped",
		}, []string{"reason"}),
		ConnectionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventgw_connections_total",
			Help: "Total number of client connections accepted",
		}, []string{"pattern"}),
		ConnectionsActive: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "eventgw_connections_active",
			Help: "Current number of connected clients",
		}, []string{"pattern"}),
		EndpointSetupFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventgw_endpoint_setup_failures_total",
			Help: "Total number of socket endpoints that failed to start",
		}, []string{"pattern"}),
		SinkWrites: f.NewCounter(prometheus.CounterOpts{
			Name: "eventgw_sink_writes_total",
			Help: "Total number of events persisted by the log sink",
		}),
	}
}

// Published counts an accepted event in its category.
func (m *Metrics) Published(category string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(category).Inc()
}

// Delivered counts one line queued for a client of pattern.
func (m *Metrics) Delivered(pattern string) {
	if m == nil {
		return
	}
	m.EventsDelivered.WithLabelValues(pattern).Inc()
}

// Dropped counts one drop for reason.
func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.EventsDropped.WithLabelValues(reason).Inc()
}

// ConnectionOpened records a newly accepted client.
func (m *Metrics) ConnectionOpened(pattern string) {
	if m == nil {
		return
	}
	m.ConnectionsTotal.WithLabelValues(pattern).Inc()
	m.ConnectionsActive.WithLabelValues(pattern).Inc()
}

// ConnectionClosed records a client leaving.
func (m *Metrics) ConnectionClosed(pattern string) {
	if m == nil {
		return
	}
	m.ConnectionsActive.WithLabelValues(pattern).Dec()
}

// EndpointFailed records a socket endpoint that could not start.
func (m *Metrics) EndpointFailed(pattern string) {
	if m == nil {
		return
	}
	m.EndpointSetupFailures.WithLabelValues(pattern).Inc()
}

// SinkWritten adds n persisted events.
func (m *Metrics) SinkWritten(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SinkWrites.Add(float64(n))
}
