package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/eventgw/internal/config"
	"github.com/zjrosen/eventgw/internal/event"
	"github.com/zjrosen/eventgw/internal/infrastructure/sqlite"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show events recorded by the SQLite log sink",
	Long: `Print events from the SQLite log sink, oldest first.

Example:
  eventgw history
  eventgw history --pattern claude --since 1h
  eventgw history --pattern claude.toolUse --limit 10 --json | jq .payload`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var (
	historyPattern string
	historySince   time.Duration
	historyLimit   int
	historyJSON    bool
	historyDB      string
)

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringVarP(&historyPattern, "pattern", "p", event.AllPattern, "only events matching this pattern")
	historyCmd.Flags().DurationVar(&historySince, "since", 0, "only events newer than this (e.g. 30m, 24h)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "show at most this many of the newest events (0 = all)")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print wire-format JSON lines")
	historyCmd.Flags().StringVar(&historyDB, "db", "", "database path (default: sink.path)")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	path := historyDB
	if path == "" {
		if cfg.Sink.Kind != config.SinkSQLite {
			return fmt.Errorf("history needs the sqlite sink (sink.kind is %q); pass --db to read a database directly", cfg.Sink.Kind)
		}
		path = cfg.Sink.Path
	}

	p, err := event.ParsePattern(historyPattern)
	if err != nil {
		return err
	}
	filter := sqlite.Filter{Pattern: p, Limit: historyLimit}
	if historySince > 0 {
		filter.Since = time.Now().Add(-historySince)
	}

	store, err := sqlite.OpenEventStore(path)
	if err != nil {
		return fmt.Errorf("opening event store: %w", err)
	}
	defer func() { _ = store.Close() }()

	records, err := store.List(cmd.Context(), filter)
	if err != nil {
		return err
	}
	return printHistory(cmd.OutOrStdout(), records, historyJSON)
}

// printHistory writes one line per record: wire JSON, or the same
// "time name payload" shape tail uses with the row id in front.
func printHistory(w io.Writer, records []sqlite.Record, asJSON bool) error {
	for _, r := range records {
		if asJSON {
			line, err := event.ToLine(r.Event)
			if err != nil {
				return err
			}
			if _, err := w.Write(line); err != nil {
				return err
			}
			continue
		}
		payload, err := json.Marshal(r.Event.Payload)
		if err != nil {
			return fmt.Errorf("encoding payload of event %d: %w", r.ID, err)
		}
		fmt.Fprintf(w, "%s %s %s %s\n",
			mutedStyle.Render(fmt.Sprintf("%6d", r.ID)),
			mutedStyle.Render(r.Event.Time.Local().Format(time.DateTime)),
			nameStyle.Render(r.Event.Name),
			payload,
		)
	}
	return nil
}
