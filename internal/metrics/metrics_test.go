package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.Published("claude")
		m.Delivered("all")
		m.Dropped(ReasonSlowClient)
		m.ConnectionOpened("all")
		m.ConnectionClosed("all")
		m.EndpointFailed("all")
		m.SinkWritten(3)
	})
}

func TestMetrics_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Published("claude")
	m.Published("claude")
	m.Published("terminal")
	m.Delivered("all")
	m.Dropped(ReasonSinkFull)
	m.ConnectionOpened("claude")
	m.ConnectionOpened("claude")
	m.ConnectionClosed("claude")
	m.EndpointFailed("terminal.closed")
	m.SinkWritten(5)
	m.SinkWritten(0)

	require.Equal(t, 2.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues("claude")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues("terminal")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.EventsDelivered.WithLabelValues("all")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.EventsDropped.WithLabelValues(ReasonSinkFull)))
	require.Equal(t, 2.0, testutil.ToFloat64(m.ConnectionsTotal.WithLabelValues("claude")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.ConnectionsActive.WithLabelValues("claude")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.EndpointSetupFailures.WithLabelValues("terminal.closed")))
	require.Equal(t, 5.0, testutil.ToFloat64(m.SinkWrites))
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	require.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}

func TestServe_ExposesMetricsOverUnixSocket(t *testing.T) {
	dir, err := os.MkdirTemp("/tmp", "egwm")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	path := filepath.Join(dir, "metrics.sock")

	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Published("claude")

	srv, err := Serve(path, reg)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	client := &http.Client{Transport: &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", path)
		},
	}}
	resp, err := client.Get("http://eventgw/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), `eventgw_events_published_total{category="claude"} 1`))

	_, err = Serve(path, reg)
	require.Error(t, err, "second server must not steal a live socket")

	require.NoError(t, srv.Shutdown(context.Background()))
	_, err = os.Stat(path)
	require.ErrorIs(t, err, os.ErrNotExist)
}
