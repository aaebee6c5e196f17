// Package ingest reads line-delimited JSON events from a stream (usually
// stdin) and publishes them. Each line is {"event": "...", "payload": {...}};
// the gateway stamps the time, so any "ts" in the input is ignored.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"io"

	"github.com/zjrosen/eventgw/internal/event"
	"github.com/zjrosen/eventgw/internal/log"
)

const (
	initialBuffer = 64 * 1024
	maxLine       = 1024 * 1024
)

// PublishFunc receives each decoded event. Bus.Publish satisfies it.
type PublishFunc func(name string, payload map[string]any)

// Stats summarises a Run.
type Stats struct {
	Published int
	Skipped   int // malformed or unnamed lines; blank lines are not counted
}

// Run publishes every valid line of r until EOF, a read error, or ctx is
// done. It returns nil at EOF, the scanner error (e.g. bufio.ErrTooLong)
// on a bad stream, and ctx.Err() on cancellation. On cancellation the
// reading goroutine exits at the next line or when r is closed.
func Run(ctx context.Context, r io.Reader, publish PublishFunc) (Stats, error) {
	lines := make(chan []byte)
	errc := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, initialBuffer), maxLine)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			cp := make([]byte, len(line))
			copy(cp, line)
			select {
			case lines <- cp:
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()

	var stats Stats
	for {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					return stats, err
				default:
					return stats, ctx.Err()
				}
			}
			ev, err := event.ParseLine(line)
			if err != nil {
				stats.Skipped++
				log.Debug(log.CatIngest, "skipping line", "error", err, "line", string(line))
				continue
			}
			publish(ev.Name, ev.Payload)
			stats.Published++
		}
	}
}
