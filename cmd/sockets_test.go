package cmd

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListSockets(t *testing.T) {
	dir := shortDir(t)

	live, err := net.ListenUnix("unix", &net.UnixAddr{Name: filepath.Join(dir, "all.sock"), Net: "unix"})
	require.NoError(t, err)
	defer func() { _ = live.Close() }()

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "claude"), 0o700))
	stale, err := net.ListenUnix("unix", &net.UnixAddr{Name: filepath.Join(dir, "claude", "toolUse.sock"), Net: "unix"})
	require.NoError(t, err)
	stale.SetUnlinkOnClose(false)
	require.NoError(t, stale.Close())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o600))

	infos, err := listSockets(dir)
	require.NoError(t, err)
	require.Equal(t, []socketInfo{
		{Pattern: "all", Path: filepath.Join(dir, "all.sock"), Live: true},
		{Pattern: "claude.toolUse", Path: filepath.Join(dir, "claude", "toolUse.sock"), Live: false},
	}, infos)

	var out bytes.Buffer
	printSockets(&out, dir, infos)
	require.Contains(t, out.String(), "live")
	require.Contains(t, out.String(), "stale")
}

func TestListSockets_MissingDir(t *testing.T) {
	infos, err := listSockets(filepath.Join(shortDir(t), "nope"))
	require.NoError(t, err)
	require.Empty(t, infos)

	var out bytes.Buffer
	printSockets(&out, "/nope", infos)
	require.Equal(t, "no sockets in /nope\n", out.String())
}
