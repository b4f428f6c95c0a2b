package session

import (
	"slices"
	"time"

	"innexbot/internal/audit"
	"innexbot/internal/scoring"
)

// DefaultTTL is how long a persisted session stays resumable.
const DefaultTTL = 24 * time.Hour

// Messages recorded on step results the page could not answer.
const (
	MessageChannelError = "channel_error"
	messageErrorPrefix  = "Error: "
)

// Status is the coarse position of a session in its lifecycle.
type Status string

const (
	StatusAwaitingConsent Status = "awaiting_consent"
	StatusInProgress      Status = "in_progress"
	StatusComplete        Status = "complete"
)

// StepResult is the outcome of one checklist item. A skipped step is never
// found.
type StepResult struct {
	EventType string         `json:"eventType" yaml:"eventType"`
	Found     bool           `json:"found" yaml:"found"`
	Weight    float64        `json:"weight" yaml:"weight"`
	Category  string         `json:"category,omitempty" yaml:"category,omitempty"`
	Timestamp time.Time      `json:"timestamp" yaml:"timestamp"`
	Skipped   bool           `json:"skipped" yaml:"skipped"`
	Data      map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
	Message   string         `json:"message,omitempty" yaml:"message,omitempty"`
}

// State is a read-only view of a session.
type State struct {
	AuditID   string          `json:"auditId"`
	Domain    string          `json:"domain"`
	Checklist audit.Checklist `json:"checklist"`
	StepIndex int             `json:"currentStep"`
	Results   []StepResult    `json:"results"`
	Complete  bool            `json:"auditComplete"`
	CreatedAt time.Time       `json:"createdAt"`
	// AwaitingConsent holds final delivery until a data-sharing decision is
	// recorded. Steps run regardless.
	AwaitingConsent bool `json:"awaitingConsent"`
	// TrackingWarning is set when the page has neither a data layer nor a
	// recognised tracking library.
	TrackingWarning bool               `json:"trackingWarning"`
	Shopify         *audit.ShopifyInfo `json:"shopifyInfo,omitempty"`
	// ReloadRequired is set when the page stopped answering; the operator
	// should reload it before the next step.
	ReloadRequired bool           `json:"reloadRequired"`
	Receipt        *audit.Receipt `json:"receipt,omitempty"`
	SendError      string         `json:"sendError,omitempty"`
}

// Status derives the lifecycle position.
func (s State) Status() Status {
	switch {
	case s.Complete:
		return StatusComplete
	case s.AwaitingConsent:
		return StatusAwaitingConsent
	default:
		return StatusInProgress
	}
}

// Current returns the item awaiting a result.
func (s State) Current() (audit.CheckItem, bool) {
	if s.Complete || s.StepIndex < 0 || s.StepIndex >= len(s.Checklist) {
		return audit.CheckItem{}, false
	}
	return s.Checklist[s.StepIndex], true
}

// Expired reports whether the session is older than ttl at now.
func (s State) Expired(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(s.CreatedAt) > ttl
}

func (s State) outcomes() []scoring.Outcome {
	out := make([]scoring.Outcome, len(s.Results))
	for i, r := range s.Results {
		out[i] = scoring.Outcome{Weight: r.Weight, Found: r.Found, Skipped: r.Skipped}
	}
	return out
}

// Score is the weighted score of the results so far.
func (s State) Score() int {
	return scoring.Score(s.outcomes())
}

func (s State) Health() scoring.Health {
	return scoring.HealthOf(s.Score())
}

// Checks converts results to their transmitted form.
func (s State) Checks() []audit.EventCheck {
	out := make([]audit.EventCheck, len(s.Results))
	for i, r := range s.Results {
		out[i] = audit.EventCheck{
			EventType: r.EventType,
			Found:     r.Found,
			Weight:    r.Weight,
			Category:  r.Category,
			Skipped:   r.Skipped,
		}
	}
	return out
}

func (s State) clone() State {
	out := s
	out.Checklist = append(audit.Checklist(nil), s.Checklist...)
	out.Results = append([]StepResult(nil), s.Results...)
	if s.Receipt != nil {
		r := *s.Receipt
		out.Receipt = &r
	}
	return out
}

// snapshot is the persisted form of a session. Payload data and messages
// stay in memory.
type snapshot struct {
	AuditID       string         `json:"auditId"`
	CurrentStep   int            `json:"currentStep"`
	AuditComplete bool           `json:"auditComplete"`
	Domain        string         `json:"domain"`
	Timestamp     time.Time      `json:"timestamp"`
	Results       []storedResult `json:"results"`

	// Checklist holds the event types the session was started with.
	Checklist []string `json:"checklist,omitempty"`
}

type storedResult struct {
	EventType string    `json:"eventType"`
	Found     bool      `json:"found"`
	Weight    float64   `json:"weight"`
	Category  string    `json:"category,omitempty"`
	Skipped   bool      `json:"skipped,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func snapshotOf(s State) snapshot {
	results := make([]storedResult, len(s.Results))
	for i, r := range s.Results {
		results[i] = storedResult{
			EventType: r.EventType,
			Found:     r.Found,
			Weight:    r.Weight,
			Category:  r.Category,
			Skipped:   r.Skipped,
			Timestamp: r.Timestamp,
		}
	}
	return snapshot{
		AuditID:       s.AuditID,
		CurrentStep:   s.StepIndex,
		AuditComplete: s.Complete,
		Domain:        s.Domain,
		Timestamp:     s.CreatedAt,
		Results:       results,
		Checklist:     eventTypes(s.Checklist),
	}
}

func eventTypes(c audit.Checklist) []string {
	out := make([]string, len(c))
	for i, item := range c {
		out[i] = item.EventType
	}
	return out
}

// valid reports whether the snapshot is consistent with checklist: step
// counts line up and every recorded result belongs to the item at its
// position. A snapshot that names its checklist must name this one.
func (p snapshot) valid(checklist audit.Checklist) bool {
	n := len(checklist)
	switch {
	case p.AuditID == "":
		return false
	case p.Checklist != nil && !slices.Equal(p.Checklist, eventTypes(checklist)):
		return false
	case p.AuditComplete:
		if len(p.Results) != n || p.CurrentStep != n {
			return false
		}
	default:
		if p.CurrentStep < 0 || p.CurrentStep >= n || len(p.Results) != p.CurrentStep {
			return false
		}
	}
	for i, r := range p.Results {
		if r.EventType != checklist[i].EventType {
			return false
		}
	}
	return true
}

func (p snapshot) results() []StepResult {
	out := make([]StepResult, len(p.Results))
	for i, r := range p.Results {
		out[i] = StepResult{
			EventType: r.EventType,
			Found:     r.Found,
			Weight:    r.Weight,
			Category:  r.Category,
			Skipped:   r.Skipped,
			Timestamp: r.Timestamp,
		}
	}
	return out
}
