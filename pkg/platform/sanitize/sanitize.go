// Package sanitize removes personally identifying fields from JSON-shaped
// payloads before they leave the page or the agent.
//
// A Policy matches field names case-insensitively, either by substring or as
// a whole key. The same policy drives three operations: Redact replaces a
// matching value with a marker, Strip drops the field, and Detect reports the
// first matching path so a receiver can reject the payload.
package sanitize

import (
	"sort"
	"strconv"
	"strings"
)

// Redacted replaces the value of a blocked field.
const Redacted = "[REDACTED]"

// Policy is an immutable field blocklist.
type Policy struct {
	substrings []string
	exact      map[string]struct{}
}

// NewPolicy builds a policy. Both lists are lower-cased.
func NewPolicy(substrings, exact []string) Policy {
	p := Policy{exact: make(map[string]struct{}, len(exact))}
	for _, s := range substrings {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			p.substrings = append(p.substrings, s)
		}
	}
	for _, s := range exact {
		p.exact[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}
	return p
}

// With returns a copy of p extended with more substrings.
func (p Policy) With(substrings ...string) Policy {
	exact := make([]string, 0, len(p.exact))
	for k := range p.exact {
		exact = append(exact, k)
	}
	return NewPolicy(append(append([]string{}, p.substrings...), substrings...), exact)
}

// Blocked reports whether key names a sensitive field.
func (p Policy) Blocked(key string) bool {
	k := strings.ToLower(key)
	if _, ok := p.exact[k]; ok {
		return true
	}
	for _, s := range p.substrings {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// Payload applies to data captured from the page. Bare "ip" is matched as a
// whole key because the substring occurs in ordinary names like "shipping".
var Payload = NewPolicy(
	[]string{
		"email", "phone", "telephone",
		"name", "address", "postalcode", "zipcode",
		"creditcard", "cardnumber", "cvv", "ccv",
		"password", "token", "apikey",
		"userid", "user_id", "customerid", "customer_id",
		"ipaddress", "ipaddr",
	},
	[]string{"ip"},
)

// Transmission applies to documents sent to, or accepted by, the collector.
// It extends Payload with page locations.
var Transmission = Payload.With("url")

// Redact returns a deep copy of m with blocked values replaced by Redacted.
// Nested maps and maps inside slices are processed recursively.
func (p Policy) Redact(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if p.Blocked(k) {
			out[k] = Redacted
			continue
		}
		out[k] = p.walk(v, p.Redact)
	}
	return out
}

// Strip returns a deep copy of m without blocked fields.
func (p Policy) Strip(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if p.Blocked(k) {
			continue
		}
		out[k] = p.walk(v, p.Strip)
	}
	return out
}

func (p Policy) walk(v any, fn func(map[string]any) map[string]any) any {
	switch t := v.(type) {
	case map[string]any:
		return fn(t)
	case []any:
		items := make([]any, len(t))
		for i, item := range t {
			items[i] = p.walk(item, fn)
		}
		return items
	default:
		return v
	}
}

// Detect returns the dotted path of the first blocked field, walking keys in
// sorted order so the reported path is stable. Slice elements are addressed
// by index.
func (p Policy) Detect(m map[string]any) (string, bool) {
	return p.detect(m, "")
}

func (p Policy) detect(m map[string]any, prefix string) (string, bool) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if p.Blocked(k) {
			return path, true
		}
		if found, ok := p.detectValue(m[k], path); ok {
			return found, true
		}
	}
	return "", false
}

func (p Policy) detectValue(v any, path string) (string, bool) {
	switch t := v.(type) {
	case map[string]any:
		return p.detect(t, path)
	case []any:
		for i, item := range t {
			if found, ok := p.detectValue(item, path+"."+strconv.Itoa(i)); ok {
				return found, true
			}
		}
	}
	return "", false
}
