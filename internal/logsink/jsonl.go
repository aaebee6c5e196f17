package logsink

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/zjrosen/eventgw/internal/event"
	"github.com/zjrosen/eventgw/internal/log"
)

// ErrClosed is returned by Save after Close.
var ErrClosed = errors.New("log sink store closed")

// JSONLStore appends events to a file in the socket wire format.
type JSONLStore struct {
	path string

	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
}

// OpenJSONL opens (creating) path for appending.
func OpenJSONL(path string) (*JSONLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating sink directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // G304: configured sink path
	if err != nil {
		return nil, fmt.Errorf("opening sink file: %w", err)
	}
	return &JSONLStore{path: path, file: f, buf: bufio.NewWriter(f)}, nil
}

// Path returns the file path.
func (s *JSONLStore) Path() string { return s.path }

// Save appends one line per event and flushes.
func (s *JSONLStore) Save(_ context.Context, events []event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return ErrClosed
	}
	for _, ev := range events {
		line, err := event.ToLine(ev)
		if err != nil {
			log.Debug(log.CatSink, "skipping unencodable event", "event", ev.Name, "error", err)
			continue
		}
		if _, err := s.buf.Write(line); err != nil {
			return fmt.Errorf("writing sink file: %w", err)
		}
	}
	return s.buf.Flush()
}

// Close flushes and closes the file.
func (s *JSONLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	flushErr := s.buf.Flush()
	closeErr := s.file.Close()
	s.file = nil
	return errors.Join(flushErr, closeErr)
}
