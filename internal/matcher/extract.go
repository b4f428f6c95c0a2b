package matcher

import (
	"strconv"
	"strings"
)

// NameStrategy extracts an event name from a payload, or "" if it cannot.
type NameStrategy func(payload map[string]any) string

// Field reads a string or numeric field.
func Field(key string) NameStrategy {
	return func(payload map[string]any) string {
		switch v := payload[key].(type) {
		case string:
			return strings.TrimSpace(v)
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case int:
			return strconv.Itoa(v)
		default:
			return ""
		}
	}
}

// DefaultNameStrategies covers the fields analytics tags put names in, in
// order of precedence.
var DefaultNameStrategies = []NameStrategy{
	Field("event"),
	Field("eventName"),
	Field("eventType"),
	Field("eventAction"),
}

// EventName returns the first non-empty name produced by strategies.
func EventName(payload map[string]any, strategies ...NameStrategy) string {
	if len(strategies) == 0 {
		strategies = DefaultNameStrategies
	}
	for _, s := range strategies {
		if name := s(payload); name != "" {
			return name
		}
	}
	return ""
}
