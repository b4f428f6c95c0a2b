// Package models holds the collector's wire and storage types.
package models

import (
	"time"

	"innexbot/internal/audit"
)

// AuditRecord is a stored submission. ID is assigned by the collector;
// AuditID is the agent's identifier and is unique across records.
type AuditRecord struct {
	ID               string             `json:"id"`
	AuditID          string             `json:"auditId"`
	ReceivedAt       time.Time          `json:"receivedAt"`
	ExtensionID      string             `json:"extensionId"`
	Timestamp        time.Time          `json:"timestamp"`
	ExtensionVersion string             `json:"extensionVersion"`
	Score            int                `json:"score"`
	HealthStatus     string             `json:"healthStatus"`
	EventsChecked    []audit.EventCheck `json:"eventsChecked"`
	TotalTests       int                `json:"totalTests"`
	SuccessfulTests  int                `json:"successfulTests"`
	FailedTests      int                `json:"failedTests"`
	SkippedTests     int                `json:"skippedTests"`
	DurationSeconds  *int               `json:"durationSeconds,omitempty"`
	IsShopify        bool               `json:"isShopify"`
	ShopifyInfo      *audit.ShopifyInfo `json:"shopifyInfo,omitempty"`
	Browser          string             `json:"browser,omitempty"`
	BrowserVersion   string             `json:"browserVersion,omitempty"`
}

// SubmitResponse acknowledges a submission.
type SubmitResponse struct {
	Success bool   `json:"success"`
	AuditID string `json:"auditId"`
	Message string `json:"message"`
	// Duplicate is set when the audit was already stored.
	Duplicate bool `json:"-"`
}

// HealthResponse is served by GET /health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    float64   `json:"uptime"`
}

// Bucket is one health band of the score distribution.
type Bucket struct {
	Count      int `json:"count"`
	Percentage int `json:"percentage"`
}

// FailedEvent counts how often an event type was not found.
type FailedEvent struct {
	EventType    string `json:"eventType"`
	FailureCount int    `json:"failureCount"`
}

// Stats aggregates every accepted submission.
type Stats struct {
	TotalAudits       int               `json:"totalAudits"`
	AverageScore      int               `json:"averageScore"`
	ScoreDistribution map[string]Bucket `json:"scoreDistribution"`
	MostFailedEvents  []FailedEvent     `json:"mostFailedEvents"`
}

// AuditList is served by GET /api/v1/audits.
type AuditList struct {
	Count  int           `json:"count"`
	Audits []AuditRecord `json:"audits"`
}

// TrackingMetric is an operator-managed checklist entry.
type TrackingMetric struct {
	EventType   string  `json:"eventType"`
	Weight      float64 `json:"weight"`
	Category    string  `json:"category"`
	Instruction string  `json:"instruction"`
	Active      bool    `json:"-"`
}

// ExtensionConfig is served by GET /api/extension-config.
type ExtensionConfig struct {
	Success bool             `json:"success"`
	Config  []TrackingMetric `json:"config"`
}
