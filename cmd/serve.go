package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/eventgw/internal/config"
	"github.com/zjrosen/eventgw/internal/event"
	"github.com/zjrosen/eventgw/internal/gateway"
	"github.com/zjrosen/eventgw/internal/infrastructure/sqlite"
	"github.com/zjrosen/eventgw/internal/ingest"
	"github.com/zjrosen/eventgw/internal/log"
	"github.com/zjrosen/eventgw/internal/logsink"
	"github.com/zjrosen/eventgw/internal/metrics"
	"github.com/zjrosen/eventgw/internal/throttle"
	"github.com/zjrosen/eventgw/internal/tracing"
	"github.com/zjrosen/eventgw/internal/watcher"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the event gateway",
	Long: `Run the gateway: open one socket per configured pattern, persist every
event to the log sink and fan events out to connected clients.

Events enter through the in-process bus. With --stdin, newline-delimited
JSON objects of the form {"event": "claude.toolUse", "payload": {...}} are
read from standard input and published; the gateway exits at end of input.

Example:
  eventgw serve
  tail -F hooks.jsonl | eventgw serve --stdin
  eventgw serve --stdin --echo < recorded.jsonl`,
	RunE: runServe,
}

var (
	serveStdin   bool
	serveEcho    bool
	serveVerbose bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveStdin, "stdin", false, "publish newline-delimited JSON events read from stdin")
	serveCmd.Flags().BoolVar(&serveEcho, "echo", false, "print every published event to stdout")
	serveCmd.Flags().BoolVarP(&serveVerbose, "verbose", "v", false, "log to stderr")
}

func runServe(cmd *cobra.Command, _ []string) error {
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if serveVerbose && !debugFlag {
		cleanup := log.InitWriter(cmd.ErrOrStderr())
		defer cleanup()
		log.SetMinLevel(log.LevelInfo)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := newDaemon(ctx, cfg)
	if err != nil {
		return err
	}
	if err := d.start(ctx); err != nil {
		_ = d.shutdown()
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "eventgw listening in %s (%d endpoints)\n", d.cfg.SocketDir, len(d.gw.ActivePatterns()))

	var reload <-chan struct{}
	if d.cfg.WatchConfig && cfgPath != "" {
		if _, err := os.Stat(cfgPath); err == nil {
			w, err := watcher.New(watcher.Config{Path: cfgPath})
			if err == nil {
				reload, err = w.Start()
			}
			if err != nil {
				log.ErrorErr(log.CatWatcher, "config watch unavailable", err, "path", cfgPath)
			} else {
				defer func() { _ = w.Stop() }()
			}
		}
	}

	var ingestDone chan error
	if serveStdin {
		ingestDone = make(chan error, 1)
		go func() {
			stats, err := ingest.Run(ctx, cmd.InOrStdin(), d.bus.Publish)
			log.Info(log.CatIngest, "stdin finished", "published", stats.Published, "skipped", stats.Skipped)
			ingestDone <- err
		}()
	}
	if serveEcho {
		go echo(out, d.bus.Listen(ctx))
	}

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "shutting down...")
			return d.shutdown()
		case <-reload:
			d.reload(ctx, cfgPath)
		case err := <-ingestDone:
			if err != nil && !errors.Is(err, context.Canceled) {
				_ = d.shutdown()
				return fmt.Errorf("reading stdin: %w", err)
			}
			return d.shutdown()
		}
	}
}

// echo prints events as they are published.
func echo(w io.Writer, events <-chan event.Event) {
	for ev := range events {
		line, err := event.ToLine(ev)
		if err != nil {
			continue
		}
		_, _ = w.Write(line)
	}
}

// daemon holds everything serve owns. The gateway is rebuilt on reload;
// tracing, metrics, the sink and the bus live for the whole process.
type daemon struct {
	cfg      config.Config
	provider *tracing.Provider
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	server   *metrics.Server
	store    logsink.Store
	sink     *logsink.Writer
	bus      *gateway.Bus
	throttle *throttle.Limiter
	gw       *gateway.Gateway
}

func newDaemon(ctx context.Context, c config.Config) (_ *daemon, err error) {
	d := &daemon{cfg: c, bus: gateway.NewBus(), throttle: throttle.New(throttle.DefaultWindow)}
	defer func() {
		if err != nil {
			_ = d.shutdown()
		}
	}()

	if d.provider, err = tracing.NewProvider(c.Tracing); err != nil {
		return nil, fmt.Errorf("creating tracing provider: %w", err)
	}

	if c.Metrics.Enabled {
		d.registry = prometheus.NewRegistry()
		d.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		d.metrics = metrics.New(d.registry)
		if d.server, err = metrics.Serve(c.Metrics.Socket, d.registry); err != nil {
			return nil, err
		}
	}

	if d.store, err = openStore(ctx, c.Sink); err != nil {
		return nil, err
	}
	if d.store != nil {
		d.sink = logsink.NewWriter(d.store, logsink.WithBuffer(c.Sink.Buffer), logsink.WithMetrics(d.metrics))
	}

	if d.gw, err = d.newGateway(c); err != nil {
		return nil, err
	}
	return d, nil
}

// openStore opens the configured sink store. Kind "none" returns nil.
func openStore(ctx context.Context, sc config.SinkConfig) (logsink.Store, error) {
	switch sc.Kind {
	case config.SinkNone:
		return nil, nil
	case config.SinkJSONL:
		store, err := logsink.OpenJSONL(sc.Path)
		if err != nil {
			return nil, fmt.Errorf("opening jsonl sink: %w", err)
		}
		return store, nil
	default:
		store, err := sqlite.OpenEventStore(sc.Path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite sink: %w", err)
		}
		if sc.Retention > 0 {
			n, err := store.PruneBefore(ctx, time.Now().Add(-sc.Retention))
			if err != nil {
				log.ErrorErr(log.CatDB, "retention prune failed", err)
			} else if n > 0 {
				log.Info(log.CatDB, "pruned old events", "rows", n, "retention", sc.Retention)
			}
		}
		return store, nil
	}
}

func (d *daemon) newGateway(c config.Config) (*gateway.Gateway, error) {
	opts := []gateway.Option{
		gateway.WithSource(d.bus),
		gateway.WithMetrics(d.metrics),
		gateway.WithTracer(d.provider.Tracer()),
		gateway.WithThrottle(d.throttle),
	}
	if d.sink != nil {
		opts = append(opts, gateway.WithSink(d.sink))
	}
	gw, err := gateway.New(c.Gateway(), opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gateway: %w", err)
	}
	return gw, nil
}

// start starts the gateway and fails if no endpoint could be opened.
func (d *daemon) start(ctx context.Context) error {
	if err := d.gw.Start(ctx); err != nil {
		return fmt.Errorf("starting gateway: %w", err)
	}
	if len(d.gw.ActivePatterns()) == 0 {
		_ = d.gw.Stop(ctx)
		return fmt.Errorf("no socket endpoint could be opened in %s", d.cfg.SocketDir)
	}
	return nil
}

// reload re-reads the config file and restarts the gateway with the new
// endpoint settings. On any failure the previous settings stay in effect.
func (d *daemon) reload(ctx context.Context, path string) {
	next, _, err := loadConfig(viper.New(), path)
	if err == nil {
		err = config.Validate(next)
	}
	if err != nil {
		log.ErrorErr(log.CatConfig, "config reload rejected", err, "path", path)
		return
	}

	gw, err := d.newGateway(next)
	if err != nil {
		log.ErrorErr(log.CatConfig, "config reload rejected", err, "path", path)
		return
	}

	log.Info(log.CatConfig, "config changed, restarting gateway", "path", path)
	if err := d.gw.Stop(ctx); err != nil {
		log.ErrorErr(log.CatGateway, "stopping gateway for reload", err)
	}

	prev := d.cfg
	d.cfg.SocketDir = next.SocketDir
	d.cfg.Categories = next.Categories
	d.cfg.Events = next.Events
	d.cfg.QueueSize = next.QueueSize
	d.cfg.WriteTimeout = next.WriteTimeout
	d.gw = gw
	if err = d.start(ctx); err == nil {
		return
	}
	log.ErrorErr(log.CatGateway, "restart with new config failed, restoring previous", err)

	d.cfg = prev
	if d.gw, err = d.newGateway(prev); err == nil {
		err = d.start(ctx)
	}
	if err != nil {
		log.ErrorErr(log.CatGateway, "restoring previous gateway failed", err)
	}
}

// shutdown stops everything within shutdownTimeout.
func (d *daemon) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if d.gw != nil {
		errs = append(errs, d.gw.Stop(ctx))
	}
	if d.bus != nil {
		d.bus.Close()
	}
	if d.store != nil {
		errs = append(errs, d.store.Close())
	}
	if d.server != nil {
		errs = append(errs, d.server.Shutdown(ctx))
	}
	if d.provider != nil {
		errs = append(errs, d.provider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
