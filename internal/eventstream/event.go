// Package eventstream records the events a page pushes into its data layer
// and answers point-in-time questions about tracking on that page.
package eventstream

import (
	"strings"
	"time"
)

// TimestampKey is the capture-time field stamped onto recorded events.
const TimestampKey = "_timestamp"

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTime renders t the way capture timestamps are stored.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// Event is one object pushed to the data layer.
type Event map[string]any

// Timestamp returns the capture timestamp, or "".
func (e Event) Timestamp() string {
	ts, _ := e[TimestampKey].(string)
	return ts
}

// Label is the short name shown in state summaries.
func (e Event) Label() string {
	for _, key := range []string{"event", "eventName"} {
		if v, ok := e[key].(string); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return "unknown"
}

// stamped returns a shallow copy of e carrying a capture timestamp. An
// existing timestamp is kept.
func (e Event) stamped(now time.Time) Event {
	out := make(Event, len(e)+1)
	for k, v := range e {
		out[k] = v
	}
	if out.Timestamp() == "" {
		out[TimestampKey] = FormatTime(now)
	}
	return out
}
