// Package config provides configuration types, defaults, validation and
// persistence for eventgw.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/zjrosen/eventgw/internal/event"
	"github.com/zjrosen/eventgw/internal/gateway"
	"github.com/zjrosen/eventgw/internal/log"
	"github.com/zjrosen/eventgw/internal/paths"
	"github.com/zjrosen/eventgw/internal/socket"
	"github.com/zjrosen/eventgw/internal/tracing"
)

// Sink kinds.
const (
	SinkSQLite = "sqlite"
	SinkJSONL  = "jsonl"
	SinkNone   = "none"
)

// Config is the complete eventgw configuration.
type Config struct {
	SocketDir    string         `mapstructure:"socket_dir" yaml:"socket_dir"`
	Categories   []string       `mapstructure:"categories" yaml:"categories"`
	Events       []string       `mapstructure:"events" yaml:"events"`
	QueueSize    int            `mapstructure:"queue_size" yaml:"queue_size"`
	WriteTimeout time.Duration  `mapstructure:"write_timeout" yaml:"write_timeout"`
	Sink         SinkConfig     `mapstructure:"sink" yaml:"sink"`
	Tracing      tracing.Config `mapstructure:"tracing" yaml:"tracing"`
	Metrics      MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	WatchConfig  bool           `mapstructure:"watch_config" yaml:"watch_config"`
}

// SinkConfig selects where every published event is persisted.
type SinkConfig struct {
	Kind      string        `mapstructure:"kind" yaml:"kind"`           // sqlite, jsonl or none
	Path      string        `mapstructure:"path" yaml:"path"`           // empty = paths.SinkFile(kind)
	Buffer    int           `mapstructure:"buffer" yaml:"buffer"`       // async queue capacity
	Retention time.Duration `mapstructure:"retention" yaml:"retention"` // sqlite only; 0 keeps everything
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Socket  string `mapstructure:"socket" yaml:"socket"` // empty = next to socket_dir
}

// Defaults returns a Config with default values. Paths are left empty
// and filled in by Resolve.
func Defaults() Config {
	return Config{
		Categories:   event.DefaultCategories(),
		Events:       event.WellKnown(),
		QueueSize:    socket.DefaultQueueSize,
		WriteTimeout: socket.DefaultWriteTimeout,
		Sink: SinkConfig{
			Kind:      SinkSQLite,
			Buffer:    1024,
			Retention: 30 * 24 * time.Hour,
		},
		Tracing:     tracing.DefaultConfig(),
		WatchConfig: true,
	}
}

// Resolve returns a copy with empty paths filled from defaults and "~"
// expanded.
func (c Config) Resolve() Config {
	if c.SocketDir == "" {
		c.SocketDir = paths.SocketDir()
	}
	c.SocketDir = paths.ExpandHome(c.SocketDir)

	if c.Sink.Kind == "" {
		c.Sink.Kind = SinkSQLite
	}
	if c.Sink.Path == "" && c.Sink.Kind != SinkNone {
		c.Sink.Path = paths.SinkFile(c.Sink.Kind)
	}
	c.Sink.Path = paths.ExpandHome(c.Sink.Path)

	if c.Tracing.FilePath == "" {
		c.Tracing.FilePath = paths.TracesFile()
	}
	c.Tracing.FilePath = paths.ExpandHome(c.Tracing.FilePath)

	if c.Metrics.Socket == "" {
		c.Metrics.Socket = paths.MetricsSocket(c.SocketDir)
	}
	c.Metrics.Socket = paths.ExpandHome(c.Metrics.Socket)
	return c
}

// Gateway returns the gateway settings.
func (c Config) Gateway() gateway.Config {
	return gateway.Config{
		SocketDir:    c.SocketDir,
		Categories:   slices.Clone(c.Categories),
		Events:       slices.Clone(c.Events),
		QueueSize:    c.QueueSize,
		WriteTimeout: c.WriteTimeout,
	}
}

// Validate checks the whole configuration.
func Validate(c Config) error {
	return errors.Join(
		ValidateNames(c.Categories, c.Events),
		ValidateDelivery(c.QueueSize, c.WriteTimeout),
		ValidateSink(c.Sink),
		ValidateTracing(c.Tracing),
		ValidateMetrics(c.Metrics),
	)
}

// ValidateNames checks categories and event names form valid patterns.
func ValidateNames(categories, events []string) error {
	var errs []error
	for _, c := range categories {
		if _, err := event.Category(c); err != nil {
			errs = append(errs, fmt.Errorf("categories: %w", err))
		}
	}
	for _, name := range events {
		if _, err := event.Exact(name); err != nil {
			errs = append(errs, fmt.Errorf("events: %w", err))
		}
	}
	return errors.Join(errs...)
}

// ValidateDelivery checks the per-connection queue settings.
func ValidateDelivery(queueSize int, writeTimeout time.Duration) error {
	if queueSize <= 0 {
		return fmt.Errorf("queue_size must be positive, got %d", queueSize)
	}
	if writeTimeout < 0 {
		return fmt.Errorf("write_timeout must not be negative, got %s", writeTimeout)
	}
	return nil
}

// ValidateSink checks sink configuration for errors.
func ValidateSink(sink SinkConfig) error {
	switch sink.Kind {
	case SinkSQLite, SinkJSONL, SinkNone, "":
	default:
		return fmt.Errorf("sink.kind must be %q, %q, or %q, got %q", SinkSQLite, SinkJSONL, SinkNone, sink.Kind)
	}
	if sink.Buffer <= 0 {
		return fmt.Errorf("sink.buffer must be positive, got %d", sink.Buffer)
	}
	if sink.Retention < 0 {
		return fmt.Errorf("sink.retention must not be negative, got %s", sink.Retention)
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tc tracing.Config) error {
	if tc.SampleRate < 0.0 || tc.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tc.SampleRate)
	}

	switch tc.Exporter {
	case "", tracing.ExporterNone, tracing.ExporterFile, tracing.ExporterStdout, tracing.ExporterOTLP:
	default:
		return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tc.Exporter)
	}

	// Path requirements only matter when tracing is on.
	if tc.Enabled {
		if tc.Exporter == tracing.ExporterFile && tc.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if tc.Exporter == tracing.ExporterOTLP && tc.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}
	return nil
}

// ValidateMetrics checks the metrics socket fits in sun_path.
func ValidateMetrics(m MetricsConfig) error {
	if len(m.Socket) > socket.MaxPathLen {
		return fmt.Errorf("metrics.socket is %d bytes, max %d", len(m.Socket), socket.MaxPathLen)
	}
	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# eventgw configuration

# Directory holding the socket files (default: $XDG_RUNTIME_DIR/eventgw
# or ~/.eventgw/sockets). Keep it short: socket paths are limited to 104 bytes.
# socket_dir: /run/user/1000/eventgw

# One <category>.sock per category, in addition to all.sock
categories:
  - claude
  - terminal

# One <category>/<name>.sock per event
events:
  - claude.sessionStart
  - claude.sessionEnd
  - claude.promptSubmit
  - claude.responseComplete
  - claude.toolUse
  - terminal.created
  - terminal.closed
  - terminal.titleChanged

queue_size: 256     # Lines buffered per client before it is dropped as too slow
write_timeout: 5s   # A single write stalled longer than this drops the client

# Every published event is also persisted here
sink:
  kind: sqlite      # sqlite, jsonl, or none
  # path: ~/.local/share/eventgw/events.db
  buffer: 1024      # Events queued for the sink before new ones are dropped
  retention: 720h   # sqlite rows older than this are pruned at startup (0 = keep)

# Distributed tracing (OpenTelemetry)
tracing:
  enabled: false
  exporter: file    # none, file, stdout, or otlp
  # file_path: ~/.local/share/eventgw/traces/traces.jsonl
  otlp_endpoint: localhost:4317
  sample_rate: 1.0

# Prometheus metrics served over a Unix socket
metrics:
  enabled: false
  # socket: /run/user/1000/eventgw-metrics.sock

# Restart the gateway when this file changes
watch_config: true
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
