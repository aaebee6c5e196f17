package socket

import (
	"fmt"
	"path/filepath"

	"github.com/zjrosen/eventgw/internal/event"
)

// MaxPathLen is the longest socket path accepted. sun_path is 104 bytes
// on macOS and 108 on Linux; the smaller limit keeps layouts portable.
const MaxPathLen = 104

// Path maps a pattern to its socket file under dir:
//
//	all              -> <dir>/all.sock
//	<category>       -> <dir>/<category>.sock
//	<category>.<rest> -> <dir>/<category>/<rest>.sock
func Path(dir string, p event.Pattern) (string, error) {
	if p.IsZero() {
		return "", fmt.Errorf("%w: zero pattern", event.ErrInvalidPattern)
	}

	var path string
	switch p.Kind() {
	case event.KindAll:
		path = filepath.Join(dir, event.AllPattern+".sock")
	case event.KindCategory:
		path = filepath.Join(dir, p.String()+".sock")
	case event.KindExact:
		path = filepath.Join(dir, p.Category(), p.Rest()+".sock")
	}

	if len(path) > MaxPathLen {
		return "", fmt.Errorf("%w: %s (%d bytes, max %d)", ErrPathTooLong, path, len(path), MaxPathLen)
	}
	return path, nil
}

// Layout computes the socket paths for a set of categories and exact
// event names: all.sock, one per category, and one per event.
func Layout(dir string, categories, events []string) (map[event.Pattern]string, error) {
	patterns := make([]event.Pattern, 0, 1+len(categories)+len(events))
	patterns = append(patterns, event.All())
	for _, c := range categories {
		p, err := event.Category(c)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	for _, name := range events {
		p, err := event.Exact(name)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}

	out := make(map[event.Pattern]string, len(patterns))
	for _, p := range patterns {
		path, err := Path(dir, p)
		if err != nil {
			return nil, err
		}
		out[p] = path
	}
	return out, nil
}
