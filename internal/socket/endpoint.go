// Package socket implements a Unix-domain-socket endpoint that pushes
// line-delimited JSON events to every connected client whose endpoint
// pattern matches.
package socket

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zjrosen/eventgw/internal/event"
	"github.com/zjrosen/eventgw/internal/log"
)

var (
	// ErrEndpointInUse is returned by Start when another live listener
	// already owns the socket path.
	ErrEndpointInUse = errors.New("socket endpoint in use")
	// ErrPathTooLong is returned when a socket path exceeds MaxPathLen.
	ErrPathTooLong = errors.New("socket path too long")
	// ErrStopped is returned by Start on an endpoint that was stopped.
	ErrStopped = errors.New("socket endpoint stopped")
)

const (
	DefaultQueueSize    = 256
	DefaultWriteTimeout = 5 * time.Second

	probeTimeout    = 100 * time.Millisecond
	minAcceptDelay  = 5 * time.Millisecond
	maxAcceptDelay  = time.Second
	dirPermissions  = 0o700
	sockPermissions = 0o600
)

// Observer receives endpoint activity. *metrics.Metrics implements it.
type Observer interface {
	ConnectionOpened(pattern string)
	ConnectionClosed(pattern string)
	Delivered(pattern string)
	Dropped(reason string)
}

type nopObserver struct{}

func (nopObserver) ConnectionOpened(string) {}
func (nopObserver) ConnectionClosed(string) {}
func (nopObserver) Delivered(string)        {}
func (nopObserver) Dropped(string)          {}

// Config configures an Endpoint.
type Config struct {
	Path         string
	Pattern      event.Pattern
	QueueSize    int           // per-connection send queue; DefaultQueueSize if <= 0
	WriteTimeout time.Duration // per-write deadline; DefaultWriteTimeout if 0, disabled if < 0
	Observer     Observer      // optional
}

type state int

const (
	stateIdle state = iota
	stateListening
	stateStopped
)

// Status is a point-in-time view of an endpoint.
type Status struct {
	Pattern     string
	Path        string
	Listening   bool
	Connections int
	Delivered   uint64
	Dropped     uint64
}

// Endpoint owns one socket file and one pattern. Start it once, then call
// Broadcast for every published event; Stop closes all clients and
// unlinks the file.
type Endpoint struct {
	cfg Config
	obs Observer

	mu    sync.Mutex
	state state
	ln    *net.UnixListener
	conns map[string]*conn

	quit       chan struct{}
	acceptDone chan struct{}
	wg         sync.WaitGroup

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// New validates cfg and returns an idle endpoint.
func New(cfg Config) (*Endpoint, error) {
	if cfg.Pattern.IsZero() {
		return nil, fmt.Errorf("%w: endpoint needs a pattern", event.ErrInvalidPattern)
	}
	if cfg.Path == "" {
		return nil, errors.New("endpoint needs a socket path")
	}
	if len(cfg.Path) > MaxPathLen {
		return nil, fmt.Errorf("%w: %s", ErrPathTooLong, cfg.Path)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	obs := cfg.Observer
	if obs == nil {
		obs = nopObserver{}
	}

	return &Endpoint{
		cfg:   cfg,
		obs:   obs,
		conns: make(map[string]*conn),
	}, nil
}

// Pattern returns the endpoint's pattern.
func (e *Endpoint) Pattern() event.Pattern { return e.cfg.Pattern }

// Path returns the socket file path.
func (e *Endpoint) Path() string { return e.cfg.Path }

// Start creates the socket file and begins accepting clients. Calling
// Start on a listening endpoint is a no-op.
func (e *Endpoint) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case stateListening:
		return nil
	case stateStopped:
		return ErrStopped
	}

	path := e.cfg.Path
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := removeStale(path); err != nil {
		return err
	}

	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return fmt.Errorf("listening on %s: %w", path, err)
	}
	// Stop unlinks explicitly after every client is closed.
	ln.SetUnlinkOnClose(false)

	if err := os.Chmod(path, sockPermissions); err != nil {
		_ = ln.Close()
		_ = os.Remove(path)
		return fmt.Errorf("setting socket permissions: %w", err)
	}

	e.ln = ln
	e.state = stateListening
	e.quit = make(chan struct{})
	e.acceptDone = make(chan struct{})
	go e.acceptLoop(ln)

	log.Info(log.CatSocket, "endpoint listening", "pattern", e.cfg.Pattern, "path", path)
	return nil
}

// EnsureDir creates dir if needed and makes it owner-only. MkdirAll
// leaves an existing directory's mode alone, so the mode is always reset.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return fmt.Errorf("creating socket directory: %w", err)
	}
	if err := os.Chmod(dir, dirPermissions); err != nil {
		return fmt.Errorf("restricting socket directory: %w", err)
	}
	return nil
}

// removeStale clears a leftover file at path. A file that still accepts
// connections belongs to a live listener and is left alone.
func removeStale(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("checking socket path: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("socket path %s is a directory", path)
	}

	if info.Mode()&os.ModeSocket != 0 {
		if c, err := net.DialTimeout("unix", path, probeTimeout); err == nil {
			_ = c.Close()
			return fmt.Errorf("%w: %s", ErrEndpointInUse, path)
		}
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing stale socket: %w", err)
	}
	log.Debug(log.CatSocket, "removed stale socket file", "path", path)
	return nil
}

func (e *Endpoint) acceptLoop(ln *net.UnixListener) {
	defer close(e.acceptDone)

	var delay time.Duration
	for {
		uc, err := ln.AcceptUnix()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if delay == 0 {
				delay = minAcceptDelay
			} else {
				delay *= 2
			}
			if delay > maxAcceptDelay {
				delay = maxAcceptDelay
			}
			log.Warn(log.CatSocket, "accept failed, retrying", "pattern", e.cfg.Pattern, "delay", delay, "error", err)

			t := time.NewTimer(delay)
			select {
			case <-e.quit:
				t.Stop()
				return
			case <-t.C:
			}
			continue
		}
		delay = 0
		e.register(uc)
	}
}

func (e *Endpoint) register(uc *net.UnixConn) {
	c := newConn(uc, e.cfg.QueueSize)

	e.mu.Lock()
	if e.state != stateListening {
		e.mu.Unlock()
		_ = uc.Close()
		return
	}
	e.conns[c.id] = c
	e.wg.Add(2)
	e.mu.Unlock()

	pattern := e.cfg.Pattern.String()
	e.obs.ConnectionOpened(pattern)
	log.Debug(log.CatSocket, "client connected", "pattern", pattern, "conn", c.id)

	go func() {
		defer e.wg.Done()
		c.writeLoop(e.cfg.WriteTimeout, func(reason string, err error) {
			e.dropped.Add(1)
			e.obs.Dropped(reason)
			log.Debug(log.CatSocket, "client write failed", "pattern", pattern, "conn", c.id, "reason", reason, "error", err)
			e.remove(c)
		})
	}()
	go func() {
		defer e.wg.Done()
		c.readLoop(func(err error) {
			if err != nil && !errors.Is(err, net.ErrClosed) {
				log.Debug(log.CatSocket, "client read failed", "pattern", pattern, "conn", c.id, "error", err)
			}
			e.remove(c)
		})
	}()
}

// remove drops c from the registry and closes it. Only the caller that
// actually deletes the entry reports the close.
func (e *Endpoint) remove(c *conn) {
	e.mu.Lock()
	_, ok := e.conns[c.id]
	delete(e.conns, c.id)
	e.mu.Unlock()

	c.close()
	if ok {
		e.obs.ConnectionClosed(e.cfg.Pattern.String())
		log.Debug(log.CatSocket, "client removed", "pattern", e.cfg.Pattern, "conn", c.id)
	}
}

// Broadcast serializes ev and queues it for every connected client if
// the pattern matches. It returns the number of clients the line was
// queued for.
func (e *Endpoint) Broadcast(ev event.Event) int {
	if !e.cfg.Pattern.Matches(ev.Name) {
		return 0
	}
	line, err := event.ToLine(ev)
	if err != nil {
		e.obs.Dropped(ReasonEncode)
		log.Debug(log.CatSocket, "event not serializable", "event", ev.Name, "error", err)
		return 0
	}
	return e.BroadcastLine(ev.Name, line)
}

// BroadcastLine queues an already-encoded line. The gateway encodes each
// event once and hands the same bytes to every endpoint.
func (e *Endpoint) BroadcastLine(name string, line []byte) int {
	if !e.cfg.Pattern.Matches(name) {
		return 0
	}

	e.mu.Lock()
	if e.state != stateListening || len(e.conns) == 0 {
		e.mu.Unlock()
		return 0
	}
	targets := make([]*conn, 0, len(e.conns))
	for _, c := range e.conns {
		if c.valid.Load() {
			targets = append(targets, c)
		}
	}
	e.mu.Unlock()

	pattern := e.cfg.Pattern.String()
	sent := 0
	for _, c := range targets {
		if c.enqueue(line) {
			sent++
			e.delivered.Add(1)
			e.obs.Delivered(pattern)
			continue
		}
		if c.valid.Load() {
			// Queue full: the client is not keeping up.
			e.dropped.Add(1)
			e.obs.Dropped(ReasonSlowClient)
			log.Warn(log.CatSocket, "dropping slow client", "pattern", pattern, "conn", c.id)
			e.remove(c)
		}
	}
	return sent
}

// ConnectionCount returns the number of registered clients.
func (e *Endpoint) ConnectionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.conns)
}

// Status reports the endpoint's current state.
func (e *Endpoint) Status() Status {
	e.mu.Lock()
	n := len(e.conns)
	listening := e.state == stateListening
	e.mu.Unlock()

	return Status{
		Pattern:     e.cfg.Pattern.String(),
		Path:        e.cfg.Path,
		Listening:   listening,
		Connections: n,
		Delivered:   e.delivered.Load(),
		Dropped:     e.dropped.Load(),
	}
}

// Stop closes the listener, closes every client, waits for their
// goroutines and unlinks the socket file. Stop is idempotent.
func (e *Endpoint) Stop() error {
	e.mu.Lock()
	if e.state != stateListening {
		e.state = stateStopped
		e.mu.Unlock()
		return nil
	}
	// From here register closes anything it accepts.
	e.state = stateStopped
	ln := e.ln
	e.ln = nil
	e.mu.Unlock()

	close(e.quit)
	closeErr := ln.Close()
	<-e.acceptDone

	e.mu.Lock()
	conns := make([]*conn, 0, len(e.conns))
	for _, c := range e.conns {
		conns = append(conns, c)
	}
	e.mu.Unlock()

	for _, c := range conns {
		e.remove(c)
	}
	e.wg.Wait()

	if err := os.Remove(e.cfg.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing socket file: %w", err)
	}
	log.Info(log.CatSocket, "endpoint stopped", "pattern", e.cfg.Pattern, "closed_clients", len(conns))

	if closeErr != nil && !errors.Is(closeErr, net.ErrClosed) {
		return fmt.Errorf("closing listener: %w", closeErr)
	}
	return nil
}
