package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/eventgw/internal/config"
)

func TestSetConfigValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, config.WriteDefaultConfig(path))

	require.NoError(t, setConfigValue(path, "queue_size", "64"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "queue_size: 64")
	require.Contains(t, string(data), "# eventgw configuration")
}

func TestSetConfigValue_RejectsInvalidAndRestores(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, config.WriteDefaultConfig(path))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	err = setConfigValue(path, "sink.kind", "kafka")
	require.ErrorContains(t, err, "sink.kind")

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, string(before), string(after))
}

func TestSetConfigValue_NewFileRemovedOnReject(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	require.Error(t, setConfigValue(path, "queue_size", "0"))
	_, err := os.Stat(path)
	require.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, setConfigValue(path, "queue_size", "8"))
	_, err = os.Stat(path)
	require.NoError(t, err)
}
