// Package cmd implements the eventgw command line.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/eventgw/internal/config"
	"github.com/zjrosen/eventgw/internal/log"
	"github.com/zjrosen/eventgw/internal/paths"
)

var (
	version   = "dev"
	cfgFile   string
	debugFlag bool
	cfg       config.Config
	// cfgPath is the config file that was loaded, or where one would be
	// written when none exists.
	cfgPath string
)

var rootCmd = &cobra.Command{
	Use:   "eventgw",
	Short: "Fan local events out to Unix-socket subscribers",
	Long: `eventgw publishes events from the local host to any number of subscribers
over Unix domain sockets. Each socket carries a filtered stream of
newline-delimited JSON: all.sock gets every event, <category>.sock one
category and <category>/<name>.sock a single event type. Every event is
also written to a log sink.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .eventgw/config.yaml, then ~/.config/eventgw/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false,
		"write debug logs (path from EVENTGW_LOG, default ~/.local/share/eventgw/debug.log)")
	rootCmd.PersistentFlags().String("socket-dir", "", "directory for socket files")

	_ = viper.BindPFlag("socket_dir", rootCmd.PersistentFlags().Lookup("socket-dir"))
}

func initConfig() {
	loaded, path, err := loadConfig(viper.GetViper(), cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "eventgw: %v\n", err)
	}
	cfg = loaded
	cfgPath = path
}

// loadConfig reads the config file (explicit path, project-local, then
// user-level) into v, applies EVENTGW_* environment overrides and returns
// the resolved Config. A missing file is not an error; defaults apply.
func loadConfig(v *viper.Viper, explicit string) (config.Config, string, error) {
	defaults := config.Defaults()
	setDefaults(v, defaults)

	v.SetEnvPrefix("EVENTGW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := explicit
	if path == "" {
		// Config lookup order:
		// 1. .eventgw/config.yaml (current directory)
		// 2. ~/.config/eventgw/config.yaml (user config)
		if _, err := os.Stat(paths.LocalConfigFile()); err == nil {
			path = paths.LocalConfigFile()
		} else {
			path = paths.ConfigFile()
		}
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	var readErr error
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound), errors.Is(err, os.ErrNotExist):
			log.Debug(log.CatConfig, "no config file, using defaults", "path", path)
		default:
			readErr = fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	out := defaults
	if err := v.Unmarshal(&out); err != nil {
		return defaults.Resolve(), path, fmt.Errorf("decoding config: %w", err)
	}
	return out.Resolve(), path, readErr
}

// setDefaults registers every key so environment overrides apply even
// when the file omits them.
func setDefaults(v *viper.Viper, d config.Config) {
	v.SetDefault("socket_dir", d.SocketDir)
	v.SetDefault("categories", d.Categories)
	v.SetDefault("events", d.Events)
	v.SetDefault("queue_size", d.QueueSize)
	v.SetDefault("write_timeout", d.WriteTimeout)
	v.SetDefault("sink.kind", d.Sink.Kind)
	v.SetDefault("sink.path", d.Sink.Path)
	v.SetDefault("sink.buffer", d.Sink.Buffer)
	v.SetDefault("sink.retention", d.Sink.Retention)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.socket", d.Metrics.Socket)
	v.SetDefault("watch_config", d.WatchConfig)
}

// setupLogging enables the debug log when --debug or EVENTGW_DEBUG is set.
func setupLogging(cmd *cobra.Command, _ []string) error {
	if !debugFlag && os.Getenv("EVENTGW_DEBUG") == "" {
		return nil
	}
	logPath := os.Getenv("EVENTGW_LOG")
	if logPath == "" {
		logPath = paths.DebugLogFile()
	}

	cleanup, err := log.Init(logPath)
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	cobra.OnFinalize(cleanup)

	log.Info(log.CatConfig, "eventgw starting", "command", cmd.Name(), "version", version, "config", cfgPath, "logPath", logPath)
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
