package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/eventgw/internal/event"
	"github.com/zjrosen/eventgw/internal/socket"
)

var tailCmd = &cobra.Command{
	Use:   "tail [pattern]",
	Short: "Stream events from a running gateway",
	Long: `Connect to the socket for a pattern and print each event until the
gateway closes the connection.

The pattern is "all" (default), a category such as "claude", or an exact
event name such as "claude.toolUse".

Example:
  eventgw tail
  eventgw tail claude
  eventgw tail terminal.titleChanged --raw | jq .payload`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTail,
}

var tailRaw bool

func init() {
	rootCmd.AddCommand(tailCmd)

	tailCmd.Flags().BoolVar(&tailRaw, "raw", false, "print lines exactly as received")
}

func runTail(cmd *cobra.Command, args []string) error {
	raw := event.AllPattern
	if len(args) == 1 {
		raw = args[0]
	}
	p, err := event.ParsePattern(raw)
	if err != nil {
		return err
	}
	path, err := socket.Path(cfg.SocketDir, p)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := net.Dial("unix", path)
	if err != nil {
		return fmt.Errorf("connecting to %s (is eventgw serve running?): %w", path, err)
	}
	return tail(ctx, conn, cmd.OutOrStdout(), tailRaw)
}

// tail copies events from conn to w until EOF or ctx is done. conn is
// closed on return.
func tail(ctx context.Context, conn net.Conn, w io.Writer, raw bool) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer func() { _ = conn.Close() }()

	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		fmt.Fprintln(w, renderLine(sc.Bytes(), raw))
	}
	if ctx.Err() != nil {
		return nil
	}
	return sc.Err()
}

// renderLine formats one wire line as "15:04:05 name payload".
// Lines that do not decode are printed unchanged.
func renderLine(line []byte, raw bool) string {
	if raw {
		return string(line)
	}
	ev, err := event.ParseLine(line)
	if err != nil {
		return string(line)
	}
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		payload = []byte("{}")
	}
	return fmt.Sprintf("%s %s %s",
		mutedStyle.Render(ev.Time.Local().Format(time.TimeOnly)),
		nameStyle.Render(ev.Name),
		payload,
	)
}
