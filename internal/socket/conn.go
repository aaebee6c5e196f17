package socket

import (
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Drop reasons reported to the Observer.
const (
	ReasonSlowClient = "slow_client"
	ReasonWriteError = "write_error"
	ReasonEncode     = "encode"
)

// conn is one accepted client. Lines are queued on send and written by a
// single writer goroutine, so per-client order equals enqueue order.
type conn struct {
	id   string
	uc   *net.UnixConn
	send chan []byte
	done chan struct{}

	closeOnce sync.Once
	valid     atomic.Bool
}

func newConn(uc *net.UnixConn, queueSize int) *conn {
	c := &conn{
		id:   uuid.NewString(),
		uc:   uc,
		send: make(chan []byte, queueSize),
		done: make(chan struct{}),
	}
	c.valid.Store(true)
	return c
}

// enqueue hands line to the writer without blocking. It returns false if
// the connection is no longer valid or its queue is full.
func (c *conn) enqueue(line []byte) bool {
	if !c.valid.Load() {
		return false
	}
	select {
	case c.send <- line:
		return true
	default:
		return false
	}
}

// writeLoop drains the send queue until the connection closes. fail is
// called once with the reason if a write errors or times out.
func (c *conn) writeLoop(timeout time.Duration, fail func(reason string, err error)) {
	for {
		select {
		case <-c.done:
			return
		case line := <-c.send:
			if timeout > 0 {
				_ = c.uc.SetWriteDeadline(time.Now().Add(timeout))
			}
			if _, err := c.uc.Write(line); err != nil {
				c.valid.Store(false)
				reason := ReasonWriteError
				if errors.Is(err, os.ErrDeadlineExceeded) {
					reason = ReasonSlowClient
				}
				fail(reason, err)
				return
			}
		}
	}
}

// readLoop discards anything the client sends and returns when the peer
// closes or the read fails.
func (c *conn) readLoop(gone func(err error)) {
	buf := make([]byte, 512)
	for {
		if _, err := c.uc.Read(buf); err != nil {
			c.valid.Store(false)
			if errors.Is(err, io.EOF) {
				err = nil
			}
			gone(err)
			return
		}
	}
}

// close releases the descriptor. Safe to call from any goroutine, any
// number of times.
func (c *conn) close() {
	c.closeOnce.Do(func() {
		c.valid.Store(false)
		close(c.done)
		_ = c.uc.Close()
	})
}
