package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/eventgw/internal/event"
	"github.com/zjrosen/eventgw/internal/tracing"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	require.Equal(t, event.DefaultCategories(), cfg.Categories)
	require.Equal(t, event.WellKnown(), cfg.Events)
	require.Equal(t, 256, cfg.QueueSize)
	require.Equal(t, 5*time.Second, cfg.WriteTimeout)
	require.Equal(t, SinkSQLite, cfg.Sink.Kind)
	require.Positive(t, cfg.Sink.Buffer)
	require.False(t, cfg.Tracing.Enabled)
	require.False(t, cfg.Metrics.Enabled)
	require.NoError(t, Validate(cfg))
}

func TestResolve_FillsPaths(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	t.Setenv("XDG_DATA_HOME", "/data")

	cfg := Defaults().Resolve()

	require.Equal(t, "/run/user/1000/eventgw", cfg.SocketDir)
	require.Equal(t, "/data/eventgw/events.db", cfg.Sink.Path)
	require.Equal(t, "/data/eventgw/traces/traces.jsonl", cfg.Tracing.FilePath)
	require.Equal(t, "/run/user/1000/eventgw-metrics.sock", cfg.Metrics.Socket)
}

func TestResolve_JSONLSinkPath(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")

	cfg := Defaults()
	cfg.Sink.Kind = SinkJSONL
	cfg = cfg.Resolve()

	require.Equal(t, "/data/eventgw/events.jsonl", cfg.Sink.Path)
}

func TestResolve_NoneSinkHasNoPath(t *testing.T) {
	cfg := Defaults()
	cfg.Sink.Kind = SinkNone
	cfg = cfg.Resolve()

	require.Empty(t, cfg.Sink.Path)
}

func TestResolve_KeepsExplicitAndExpandsHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	cfg := Defaults()
	cfg.SocketDir = "~/socks"
	cfg.Sink.Path = "/var/tmp/ev.db"
	cfg = cfg.Resolve()

	require.Equal(t, filepath.Join(home, "socks"), cfg.SocketDir)
	require.Equal(t, "/var/tmp/ev.db", cfg.Sink.Path)
}

func TestGateway_CopiesSettings(t *testing.T) {
	cfg := Defaults()
	cfg.SocketDir = "/tmp/egw"
	cfg.QueueSize = 8

	gw := cfg.Gateway()
	require.Equal(t, "/tmp/egw", gw.SocketDir)
	require.Equal(t, 8, gw.QueueSize)
	require.Equal(t, cfg.WriteTimeout, gw.WriteTimeout)
	require.Equal(t, cfg.Categories, gw.Categories)

	gw.Categories[0] = "changed"
	require.NotEqual(t, "changed", cfg.Categories[0])
}

func TestValidateNames(t *testing.T) {
	require.NoError(t, ValidateNames([]string{"claude"}, []string{"claude.toolUse"}))

	tests := []struct {
		name       string
		categories []string
		events     []string
	}{
		{"reserved all", []string{"all"}, nil},
		{"category with dot", []string{"a.b"}, nil},
		{"category with slash", []string{"a/b"}, nil},
		{"event without dot", nil, []string{"claude"}},
		{"event empty segment", nil, []string{"claude..x"}},
		{"empty event", nil, []string{""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, ValidateNames(tt.categories, tt.events))
		})
	}
}

func TestValidateDelivery(t *testing.T) {
	require.NoError(t, ValidateDelivery(1, 0))
	require.Error(t, ValidateDelivery(0, time.Second))
	require.Error(t, ValidateDelivery(4, -time.Second))
}

func TestValidateSink(t *testing.T) {
	tests := []struct {
		name    string
		sink    SinkConfig
		wantErr string
	}{
		{"sqlite", SinkConfig{Kind: SinkSQLite, Buffer: 1}, ""},
		{"jsonl", SinkConfig{Kind: SinkJSONL, Buffer: 1}, ""},
		{"none", SinkConfig{Kind: SinkNone, Buffer: 1}, ""},
		{"unknown kind", SinkConfig{Kind: "kafka", Buffer: 1}, "sink.kind"},
		{"zero buffer", SinkConfig{Kind: SinkSQLite}, "sink.buffer"},
		{"negative retention", SinkConfig{Kind: SinkSQLite, Buffer: 1, Retention: -time.Hour}, "sink.retention"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSink(tt.sink)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestValidateTracing(t *testing.T) {
	tests := []struct {
		name    string
		cfg     tracing.Config
		wantErr string
	}{
		{"defaults", tracing.DefaultConfig(), ""},
		{"sample rate too high", tracing.Config{SampleRate: 1.5}, "sample_rate"},
		{"sample rate negative", tracing.Config{SampleRate: -0.1}, "sample_rate"},
		{"bad exporter", tracing.Config{Exporter: "jaeger"}, "tracing.exporter"},
		{"file without path", tracing.Config{Enabled: true, Exporter: tracing.ExporterFile}, "file_path"},
		{"otlp without endpoint", tracing.Config{Enabled: true, Exporter: tracing.ExporterOTLP}, "otlp_endpoint"},
		{"disabled file without path", tracing.Config{Exporter: tracing.ExporterFile}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTracing(tt.cfg)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestValidateMetrics_SocketTooLong(t *testing.T) {
	long := "/tmp/" + strings.Repeat("m", 120)
	require.Error(t, ValidateMetrics(MetricsConfig{Socket: long}))
	require.NoError(t, ValidateMetrics(MetricsConfig{Socket: "/tmp/m.sock"}))
}

func TestValidate_JoinsErrors(t *testing.T) {
	cfg := Defaults()
	cfg.QueueSize = 0
	cfg.Sink.Kind = "bogus"

	err := Validate(cfg)
	require.ErrorContains(t, err, "queue_size")
	require.ErrorContains(t, err, "sink.kind")
}

func TestDefaultConfigTemplate_MatchesDefaults(t *testing.T) {
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(DefaultConfigTemplate()), &cfg))

	want := Defaults()
	require.Equal(t, want.Categories, cfg.Categories)
	require.Equal(t, want.Events, cfg.Events)
	require.Equal(t, want.QueueSize, cfg.QueueSize)
	require.Equal(t, want.WriteTimeout, cfg.WriteTimeout)
	require.Equal(t, want.Sink, cfg.Sink)
	require.Equal(t, want.Tracing.Exporter, cfg.Tracing.Exporter)
	require.Equal(t, want.Tracing.SampleRate, cfg.Tracing.SampleRate)
	require.Equal(t, want.WatchConfig, cfg.WatchConfig)
	require.NoError(t, Validate(cfg))
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	require.NoError(t, WriteDefaultConfig(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, DefaultConfigTemplate(), string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
