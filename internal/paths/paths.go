// Package paths resolves eventgw's default locations.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

const appName = "eventgw"

// SocketDir returns the default socket directory:
// $XDG_RUNTIME_DIR/eventgw, else ~/.eventgw/sockets. Runtime dirs are
// short and per-user, which keeps socket paths under the sun_path limit.
func SocketDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, appName)
	}
	return filepath.Join(homeDir(), "."+appName, "sockets")
}

// DataDir returns $XDG_DATA_HOME/eventgw, else ~/.local/share/eventgw.
func DataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	return filepath.Join(homeDir(), ".local", "share", appName)
}

// ConfigDir returns $XDG_CONFIG_HOME/eventgw, else ~/.config/eventgw.
func ConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	return filepath.Join(homeDir(), ".config", appName)
}

// ConfigFile returns the user-level config file path.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// LocalConfigFile is the project-level config, relative to the working directory.
func LocalConfigFile() string {
	return filepath.Join("."+appName, "config.yaml")
}

// SinkFile returns the default log sink path for a sink kind.
func SinkFile(kind string) string {
	if kind == "jsonl" {
		return filepath.Join(DataDir(), "events.jsonl")
	}
	return filepath.Join(DataDir(), "events.db")
}

// TracesFile returns the default file exporter output.
func TracesFile() string {
	return filepath.Join(DataDir(), "traces", "traces.jsonl")
}

// DebugLogFile returns the default debug log path.
func DebugLogFile() string {
	return filepath.Join(DataDir(), "debug.log")
}

// MetricsSocket returns the metrics socket next to socketDir.
func MetricsSocket(socketDir string) string {
	return filepath.Join(filepath.Dir(filepath.Clean(socketDir)), appName+"-metrics.sock")
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" {
		return homeDir()
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.TempDir()
	}
	return home
}
