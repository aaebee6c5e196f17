package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/zjrosen/eventgw/internal/event"
	"github.com/zjrosen/eventgw/internal/log"
	"github.com/zjrosen/eventgw/internal/logsink"
)

// ErrStoreClosed is returned by EventStore methods after Close.
var ErrStoreClosed = errors.New("event store closed")

// Record is a stored event with its row id.
type Record struct {
	ID    int64
	Event event.Event
}

// Filter narrows List. The zero Filter returns every event.
type Filter struct {
	Pattern event.Pattern // zero or All: no name filter
	Since   time.Time     // zero: no lower bound
	Limit   int           // <= 0: unlimited; otherwise the newest Limit rows
}

// EventStore persists events in the events table. It implements the log
// sink Store interface.
type EventStore struct {
	db *DB

	mu     sync.RWMutex
	closed bool
}

// OpenEventStore opens the database at path.
func OpenEventStore(path string) (*EventStore, error) {
	db, err := NewDB(path)
	if err != nil {
		return nil, err
	}
	return NewEventStore(db), nil
}

// NewEventStore wraps an open DB. Close closes the DB.
func NewEventStore(db *DB) *EventStore {
	return &EventStore{db: db}
}

// Save inserts events in order inside one transaction.
func (s *EventStore) Save(ctx context.Context, events []event.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO events (name, category, ts, payload) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		if ev.Name == "" {
			continue
		}
		payload, err := json.Marshal(event.Sanitize(ev.Payload))
		if err != nil {
			log.Debug(log.CatDB, "skipping unencodable payload", "event", ev.Name, "error", err)
			continue
		}
		if _, err := stmt.ExecContext(ctx, ev.Name, ev.Category(), ev.Time.Unix(), string(payload)); err != nil {
			return fmt.Errorf("failed to insert event %s: %w", ev.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit events: %w", err)
	}
	return nil
}

// List returns matching events oldest first.
func (s *EventStore) List(ctx context.Context, f Filter) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	where, args := f.clauses()
	query := `SELECT id, name, ts, payload FROM events` + where + ` ORDER BY id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec     Record
			ts      int64
			payload string
		)
		if err := rows.Scan(&rec.ID, &rec.Event.Name, &ts, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		rec.Event.Time = time.Unix(ts, 0)
		if err := json.Unmarshal([]byte(payload), &rec.Event.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode payload of event %d: %w", rec.ID, err)
		}
		if rec.Event.Payload == nil {
			rec.Event.Payload = map[string]any{}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}

	// Queried newest first so LIMIT keeps the latest rows.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Count returns the number of events matching f, ignoring f.Limit.
func (s *EventStore) Count(ctx context.Context, f Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrStoreClosed
	}

	where, args := f.clauses()
	var n int64
	if err := s.db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

// PruneBefore deletes events with a timestamp before t and returns how
// many were removed.
func (s *EventStore) PruneBefore(ctx context.Context, t time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrStoreClosed
	}

	res, err := s.db.conn.ExecContext(ctx, `DELETE FROM events WHERE ts < ?`, t.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read pruned count: %w", err)
	}
	if n > 0 {
		log.Info(log.CatDB, "pruned events", "count", n, "before", t.Format(time.RFC3339))
	}
	return n, nil
}

// Close closes the underlying database. Safe to call twice.
func (s *EventStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (f Filter) clauses() (string, []any) {
	var (
		conds []string
		args  []any
	)
	switch f.Pattern.Kind() {
	case event.KindCategory:
		// category holds the text before the first dot, so a dotless name
		// like "claude" shares it without being in the category.
		conds = append(conds, "category = ?", "instr(name, '.') > 0")
		args = append(args, f.Pattern.String())
	case event.KindExact:
		conds = append(conds, "name = ?")
		args = append(args, f.Pattern.String())
	}
	if !f.Since.IsZero() {
		conds = append(conds, "ts >= ?")
		args = append(args, f.Since.Unix())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Ensure EventStore can back the log sink.
var _ logsink.Store = (*EventStore)(nil)
