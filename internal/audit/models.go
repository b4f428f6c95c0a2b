// Package audit defines the audit-result document exchanged between the
// agent and the collector.
package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"innexbot/internal/scoring"
)

// ExtensionVersion is reported in every document.
const ExtensionVersion = "1.2.0"

// EventCheck is the transmitted form of one step result. Payload data and
// diagnostic messages never leave the agent.
type EventCheck struct {
	EventType string  `json:"eventType" yaml:"eventType"`
	Found     bool    `json:"found" yaml:"found"`
	Weight    float64 `json:"weight" yaml:"weight"`
	Category  string  `json:"category,omitempty" yaml:"category,omitempty"`
	Skipped   bool    `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// ShopifyInfo describes how a Shopify storefront was detected.
type ShopifyInfo struct {
	Method string `json:"method,omitempty" yaml:"method,omitempty"`
	Shop   string `json:"shop,omitempty" yaml:"shop,omitempty"`
}

// Document is a completed audit. AuditID is stable across redeliveries so
// the collector can deduplicate.
type Document struct {
	AuditID          string       `json:"auditId" yaml:"auditId"`
	Timestamp        time.Time    `json:"timestamp" yaml:"timestamp"`
	ExtensionVersion string       `json:"extensionVersion" yaml:"extensionVersion"`
	Score            int          `json:"score" yaml:"score"`
	HealthStatus     string       `json:"healthStatus" yaml:"healthStatus"`
	EventsChecked    []EventCheck `json:"eventsChecked" yaml:"eventsChecked"`
	TotalTests       int          `json:"totalTests" yaml:"totalTests"`
	SuccessfulTests  int          `json:"successfulTests" yaml:"successfulTests"`
	FailedTests      int          `json:"failedTests" yaml:"failedTests"`
	SkippedTests     int          `json:"skippedTests" yaml:"skippedTests"`
	Duration         string       `json:"duration,omitempty" yaml:"duration,omitempty"`
	IsShopify        bool         `json:"isShopify" yaml:"isShopify"`
	ShopifyInfo      *ShopifyInfo `json:"shopifyInfo" yaml:"shopifyInfo"`
}

// Meta carries document fields that do not derive from the checks.
type Meta struct {
	CompletedAt time.Time
	StartedAt   time.Time
	Shopify     *ShopifyInfo
}

// NewDocument scores checks and fills in the summary counts.
func NewDocument(auditID string, checks []EventCheck, meta Meta) Document {
	outcomes := make([]scoring.Outcome, len(checks))
	for i, c := range checks {
		outcomes[i] = scoring.Outcome{Weight: c.Weight, Found: c.Found, Skipped: c.Skipped}
	}
	score := scoring.Score(outcomes)
	counts := scoring.Count(outcomes)

	doc := Document{
		AuditID:          auditID,
		Timestamp:        meta.CompletedAt.UTC(),
		ExtensionVersion: ExtensionVersion,
		Score:            score,
		HealthStatus:     string(scoring.HealthOf(score)),
		EventsChecked:    append([]EventCheck(nil), checks...),
		TotalTests:       counts.Total,
		SuccessfulTests:  counts.Successful,
		FailedTests:      counts.Failed,
		SkippedTests:     counts.Skipped,
		IsShopify:        meta.Shopify != nil,
		ShopifyInfo:      meta.Shopify,
	}
	if !meta.StartedAt.IsZero() && meta.CompletedAt.After(meta.StartedAt) {
		doc.Duration = FormatDuration(meta.CompletedAt.Sub(meta.StartedAt))
	}
	return doc
}

// Fields returns the document as a generic JSON object, the form sanitizers
// and transports operate on.
func (d Document) Fields() (map[string]any, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal audit document: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal audit document: %w", err)
	}
	return out, nil
}

// FormatDuration renders d as "3m 45s", or "45s" under a minute.
func FormatDuration(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	if secs < 60 {
		return fmt.Sprintf("%ds", secs)
	}
	return fmt.Sprintf("%dm %ds", secs/60, secs%60)
}

// Receipt is the outcome of handing a document to the delivery pipeline.
type Receipt struct {
	Success bool   `json:"success"`
	AuditID string `json:"auditId,omitempty"`
	Message string `json:"message,omitempty"`
	// Queued is set when the document was parked for later redelivery.
	Queued bool   `json:"queued,omitempty"`
	Error  string `json:"error,omitempty"`
}
