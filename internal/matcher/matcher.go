// Package matcher decides whether an analytics event was emitted, tolerating
// naming drift between tag implementations.
package matcher

import (
	"fmt"
	"strings"
	"time"

	"innexbot/internal/eventstream"
	"innexbot/pkg/platform/sanitize"
)

// DefaultWindow is how many of the most recent events a search covers.
const DefaultWindow = 100

// Result of a search. Data is a sanitized copy of the matching payload.
type Result struct {
	Found     bool           `json:"found"`
	Matched   string         `json:"matched,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Message   string         `json:"message"`
}

// Matcher scans recorded history for an event.
type Matcher struct {
	window     int
	policy     sanitize.Policy
	strategies []NameStrategy
	now        func() time.Time
}

type Option func(*Matcher)

// WithWindow bounds how many recent events are searched.
func WithWindow(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.window = n
		}
	}
}

func WithPolicy(p sanitize.Policy) Option {
	return func(m *Matcher) {
		m.policy = p
	}
}

func WithNameStrategies(s ...NameStrategy) Option {
	return func(m *Matcher) {
		if len(s) > 0 {
			m.strategies = s
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Matcher) {
		m.now = now
	}
}

func New(opts ...Option) *Matcher {
	m := &Matcher{
		window:     DefaultWindow,
		policy:     sanitize.Payload,
		strategies: DefaultNameStrategies,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var defaultMatcher = New()

// Find searches history with the default matcher.
func Find(name string, history []eventstream.Event) Result {
	return defaultMatcher.Find(name, history)
}

// Find scans the last window entries of history, most recent first, and
// returns the first entry whose name matches a variant of name. A later
// duplicate therefore wins over an earlier one.
func (m *Matcher) Find(name string, history []eventstream.Event) Result {
	variants := variantSet(name)

	start := len(history) - m.window
	if start < 0 {
		start = 0
	}
	for i := len(history) - 1; i >= start; i-- {
		event := history[i]
		if event == nil {
			continue
		}
		field := strings.ToLower(EventName(event, m.strategies...))
		if field == "" {
			continue
		}
		if _, ok := variants[field]; !ok {
			continue
		}

		ts := event.Timestamp()
		if ts == "" {
			ts = eventstream.FormatTime(m.now())
		}
		return Result{
			Found:     true,
			Matched:   field,
			Timestamp: ts,
			Data:      m.policy.Redact(event),
			Message:   fmt.Sprintf("Event found in dataLayer as %q", field),
		}
	}

	return Result{
		Found:   false,
		Message: fmt.Sprintf("Event %q not found in last %d dataLayer events", name, m.window),
	}
}
