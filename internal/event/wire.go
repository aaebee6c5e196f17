package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// wireMessage is the on-the-wire shape. Field order keeps the encoded keys
// sorted; encoding/json sorts nested map keys itself.
type wireMessage struct {
	Event   string         `json:"event"`
	Payload map[string]any `json:"payload"`
	TS      int64          `json:"ts"`
}

// ToLine encodes the event as one line of JSON terminated by '\n':
//
//	{"event":"claude.sessionStart","payload":{},"ts":1760000000}
//
// The payload is sanitized first, so the result is always valid JSON.
func ToLine(e Event) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(wireMessage{
		Event:   e.Name,
		Payload: Sanitize(e.Payload),
		TS:      e.Time.Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding event %s: %w", e.Name, err)
	}
	// Encoder.Encode always terminates with a single '\n'.
	return buf.Bytes(), nil
}

// ParseLine decodes one wire line back into an Event. Unknown keys are
// ignored so newer producers stay readable. A missing ts yields the zero
// time; numbers in the payload decode as float64.
func ParseLine(line []byte) (Event, error) {
	var msg struct {
		Event   string         `json:"event"`
		Payload map[string]any `json:"payload"`
		TS      *int64         `json:"ts"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(line), &msg); err != nil {
		return Event{}, fmt.Errorf("decoding event line: %w", err)
	}
	if msg.Event == "" {
		return Event{}, ErrEmptyName
	}

	ev := Event{Name: msg.Event, Payload: msg.Payload}
	if msg.TS != nil {
		ev.Time = time.Unix(*msg.TS, 0)
	}
	if ev.Payload == nil {
		ev.Payload = map[string]any{}
	}
	return ev, nil
}
