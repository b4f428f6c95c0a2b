// Package store persists collector submissions.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"innexbot/internal/audit"
	"innexbot/internal/collector/models"
	"innexbot/pkg/platform/sentinel"
)

// DefaultRetention is how many records the in-memory store keeps.
const DefaultRetention = 1000

// InMemoryStore keeps the most recent records plus all-time aggregates.
type InMemoryStore struct {
	mu        sync.RWMutex
	records   []models.AuditRecord
	byAuditID map[string]int
	retention int
	agg       *aggregate
	metrics   []models.TrackingMetric
}

type MemoryOption func(*InMemoryStore)

func WithRetention(n int) MemoryOption {
	return func(s *InMemoryStore) {
		if n > 0 {
			s.retention = n
		}
	}
}

// WithMetrics replaces the seeded tracking metrics.
func WithMetrics(metrics ...models.TrackingMetric) MemoryOption {
	return func(s *InMemoryStore) {
		s.metrics = append([]models.TrackingMetric(nil), metrics...)
	}
}

func NewInMemoryStore(opts ...MemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		byAuditID: make(map[string]int),
		retention: DefaultRetention,
		agg:       newAggregate(),
		metrics:   DefaultMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultMetrics seeds operator configuration from the built-in checklist.
func DefaultMetrics() []models.TrackingMetric {
	items := audit.DefaultChecklist()
	out := make([]models.TrackingMetric, len(items))
	for i, item := range items {
		out[i] = models.TrackingMetric{
			EventType:   item.EventType,
			Weight:      item.Weight,
			Category:    item.Category,
			Instruction: item.Instruction,
			Active:      true,
		}
	}
	return out
}

// Save appends rec. A retained record with the same AuditID is a conflict.
func (s *InMemoryStore) Save(_ context.Context, rec models.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byAuditID[rec.AuditID]; ok {
		return fmt.Errorf("audit %s: %w", rec.AuditID, sentinel.ErrConflict)
	}
	s.records = append(s.records, rec)
	if over := len(s.records) - s.retention; over > 0 {
		s.records = append([]models.AuditRecord(nil), s.records[over:]...)
	}
	s.reindex()
	s.agg.add(rec)
	return nil
}

func (s *InMemoryStore) reindex() {
	clear(s.byAuditID)
	for i, r := range s.records {
		s.byAuditID[r.AuditID] = i
	}
}

func (s *InMemoryStore) FindByAuditID(_ context.Context, auditID string) (models.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byAuditID[auditID]
	if !ok {
		return models.AuditRecord{}, fmt.Errorf("audit %s: %w", auditID, sentinel.ErrNotFound)
	}
	return s.records[i], nil
}

// Recent returns up to limit records, most recent first.
func (s *InMemoryStore) Recent(_ context.Context, limit int) ([]models.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := min(limit, len(s.records))
	out := make([]models.AuditRecord, 0, n)
	for i := len(s.records) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

func (s *InMemoryStore) Stats(_ context.Context) (models.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.agg.stats(), nil
}

// ActiveMetrics returns active tracking metrics ordered by weight, heaviest first.
func (s *InMemoryStore) ActiveMetrics(_ context.Context) ([]models.TrackingMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.TrackingMetric, 0, len(s.metrics))
	for _, m := range s.metrics {
		if m.Active {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].EventType < out[j].EventType
	})
	return out, nil
}
