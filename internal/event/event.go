// Package event defines the immutable Event value published through the
// gateway, the Pattern filter that selects events per socket, payload
// sanitization and the line-delimited JSON wire codec.
package event

import (
	"errors"
	"strings"
	"time"
)

// ErrEmptyName is returned when an event has no name.
var ErrEmptyName = errors.New("event name is empty")

// Event is a named, timestamped occurrence published for external consumers.
// Name is dot-namespaced ("claude.responseComplete"); its first segment is the
// category. Payload may hold arbitrary values at the call site and is
// sanitized before it leaves the process.
type Event struct {
	Name    string
	Time    time.Time
	Payload map[string]any
}

// New builds an event stamped with the current time.
func New(name string, payload map[string]any) Event {
	return NewAt(name, time.Now(), payload)
}

// NewAt builds an event with an explicit timestamp.
func NewAt(name string, ts time.Time, payload map[string]any) Event {
	return Event{Name: name, Time: ts, Payload: payload}
}

// Category returns the first dot segment of the name.
// A name without a dot is its own category.
func (e Event) Category() string {
	return CategoryOf(e.Name)
}

// Validate reports whether the event can be published.
func (e Event) Validate() error {
	if e.Name == "" {
		return ErrEmptyName
	}
	return nil
}

// Sanitized returns a copy of the event whose payload only holds JSON-safe
// values. The receiver is left untouched.
func (e Event) Sanitized() Event {
	return Event{Name: e.Name, Time: e.Time, Payload: Sanitize(e.Payload)}
}

// CategoryOf returns the category segment of an event name.
func CategoryOf(name string) string {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return name
}
