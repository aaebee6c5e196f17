package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/eventgw/internal/config"
)

func shortDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "egw")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	path := filepath.Join(t.TempDir(), "missing.yaml")

	got, used, err := loadConfig(viper.New(), path)
	require.NoError(t, err)
	require.Equal(t, path, used)

	want := config.Defaults().Resolve()
	require.Equal(t, want, got)
	require.Equal(t, "/run/user/1000/eventgw", got.SocketDir)
}

func TestLoadConfig_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, `
socket_dir: /tmp/egw-test
categories: [build]
events: [build.finished]
queue_size: 16
write_timeout: 750ms
sink:
  kind: jsonl
  path: /tmp/egw-test.jsonl
tracing:
  enabled: true
  exporter: stdout
`)

	got, _, err := loadConfig(viper.New(), path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/egw-test", got.SocketDir)
	require.Equal(t, []string{"build"}, got.Categories)
	require.Equal(t, []string{"build.finished"}, got.Events)
	require.Equal(t, 16, got.QueueSize)
	require.Equal(t, 750*time.Millisecond, got.WriteTimeout)
	require.Equal(t, config.SinkJSONL, got.Sink.Kind)
	require.Equal(t, "/tmp/egw-test.jsonl", got.Sink.Path)
	require.Equal(t, 1024, got.Sink.Buffer, "unset keys keep defaults")
	require.True(t, got.Tracing.Enabled)
	require.Equal(t, "stdout", got.Tracing.Exporter)
	require.NoError(t, config.Validate(got))
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "queue_size: 16\nsink:\n  kind: jsonl\n")

	t.Setenv("EVENTGW_QUEUE_SIZE", "64")
	t.Setenv("EVENTGW_SINK_KIND", "none")
	t.Setenv("EVENTGW_WRITE_TIMEOUT", "2s")

	got, _, err := loadConfig(viper.New(), path)
	require.NoError(t, err)
	require.Equal(t, 64, got.QueueSize)
	require.Equal(t, config.SinkNone, got.Sink.Kind)
	require.Empty(t, got.Sink.Path)
	require.Equal(t, 2*time.Second, got.WriteTimeout)
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "categories: [unclosed\n")

	got, _, err := loadConfig(viper.New(), path)
	require.Error(t, err)
	require.Equal(t, config.Defaults().QueueSize, got.QueueSize)
}

func TestLoadConfig_DefaultConfigTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, config.WriteDefaultConfig(path))

	got, _, err := loadConfig(viper.New(), path)
	require.NoError(t, err)
	require.Equal(t, config.Defaults().Resolve(), got)
}
