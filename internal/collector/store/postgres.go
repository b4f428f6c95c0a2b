package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"innexbot/internal/collector/models"
	"innexbot/internal/scoring"
	"innexbot/pkg/platform/sentinel"
	"innexbot/pkg/platform/tx"
)

const schema = `
CREATE TABLE IF NOT EXISTS audits (
	id UUID PRIMARY KEY,
	audit_id VARCHAR(255) UNIQUE NOT NULL,
	extension_id VARCHAR(255) NOT NULL,
	extension_version VARCHAR(50),
	score INTEGER NOT NULL,
	health_status VARCHAR(20) NOT NULL,
	total_events INTEGER NOT NULL,
	events_found INTEGER NOT NULL,
	events_failed INTEGER NOT NULL,
	events_skipped INTEGER NOT NULL,
	duration_seconds INTEGER,
	is_shopify BOOLEAN NOT NULL DEFAULT FALSE,
	received_at TIMESTAMPTZ NOT NULL,
	record JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audits_received_at ON audits(received_at DESC);

CREATE TABLE IF NOT EXISTS events (
	id BIGSERIAL PRIMARY KEY,
	audit_id VARCHAR(255) NOT NULL REFERENCES audits(audit_id) ON DELETE CASCADE,
	event_type VARCHAR(100) NOT NULL,
	found BOOLEAN NOT NULL,
	skipped BOOLEAN NOT NULL DEFAULT FALSE,
	weight DOUBLE PRECISION NOT NULL,
	category VARCHAR(50)
);
CREATE INDEX IF NOT EXISTS idx_events_audit_id ON events(audit_id);

CREATE TABLE IF NOT EXISTS tracking_metrics (
	event_type VARCHAR(100) PRIMARY KEY,
	weight DOUBLE PRECISION NOT NULL,
	category VARCHAR(50),
	instruction TEXT,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// PostgresStore persists submissions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates missing tables and seeds the default tracking
// metrics without touching operator edits.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	defaults := DefaultMetrics()
	types := make([]string, len(defaults))
	weights := make([]float64, len(defaults))
	categories := make([]string, len(defaults))
	instructions := make([]string, len(defaults))
	for i, m := range defaults {
		types[i], weights[i], categories[i], instructions[i] = m.EventType, m.Weight, m.Category, m.Instruction
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tracking_metrics (event_type, weight, category, instruction)
		SELECT * FROM unnest($1::text[], $2::float8[], $3::text[], $4::text[])
		ON CONFLICT (event_type) DO NOTHING
	`, pq.Array(types), pq.Array(weights), pq.Array(categories), pq.Array(instructions))
	if err != nil {
		return fmt.Errorf("seed tracking metrics: %w", err)
	}
	return nil
}

// Save writes the record and its events in one transaction.
func (s *PostgresStore) Save(ctx context.Context, rec models.AuditRecord) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	return tx.Run(ctx, s.db, func(ctx context.Context, t *sql.Tx) error {
		var inserted string
		err := t.QueryRowContext(ctx, `
			INSERT INTO audits (
				id, audit_id, extension_id, extension_version, score, health_status,
				total_events, events_found, events_failed, events_skipped,
				duration_seconds, is_shopify, received_at, record
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (audit_id) DO NOTHING
			RETURNING audit_id
		`,
			rec.ID, rec.AuditID, rec.ExtensionID, rec.ExtensionVersion, rec.Score, rec.HealthStatus,
			rec.TotalTests, rec.SuccessfulTests, rec.FailedTests, rec.SkippedTests,
			rec.DurationSeconds, rec.IsShopify, rec.ReceivedAt, doc,
		).Scan(&inserted)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("audit %s: %w", rec.AuditID, sentinel.ErrConflict)
		}
		if err != nil {
			return fmt.Errorf("insert audit: %w", err)
		}

		if len(rec.EventsChecked) == 0 {
			return nil
		}
		n := len(rec.EventsChecked)
		types := make([]string, n)
		found := make([]bool, n)
		skipped := make([]bool, n)
		weights := make([]float64, n)
		categories := make([]string, n)
		for i, e := range rec.EventsChecked {
			types[i], found[i], skipped[i], weights[i], categories[i] = e.EventType, e.Found, e.Skipped, e.Weight, e.Category
		}
		_, err = t.ExecContext(ctx, `
			INSERT INTO events (audit_id, event_type, found, skipped, weight, category)
			SELECT $1, e.event_type, e.found, e.skipped, e.weight, NULLIF(e.category, '')
			FROM unnest($2::text[], $3::bool[], $4::bool[], $5::float8[], $6::text[])
				AS e(event_type, found, skipped, weight, category)
		`, rec.AuditID, pq.Array(types), pq.Array(found), pq.Array(skipped), pq.Array(weights), pq.Array(categories))
		if err != nil {
			return fmt.Errorf("insert events: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) FindByAuditID(ctx context.Context, auditID string) (models.AuditRecord, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT record FROM audits WHERE audit_id = $1`, auditID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return models.AuditRecord{}, fmt.Errorf("audit %s: %w", auditID, sentinel.ErrNotFound)
	}
	if err != nil {
		return models.AuditRecord{}, fmt.Errorf("find audit: %w", err)
	}
	var rec models.AuditRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return models.AuditRecord{}, fmt.Errorf("decode audit record: %w", err)
	}
	return rec, nil
}

// Recent returns up to limit records, most recent first.
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]models.AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record FROM audits ORDER BY received_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audits: %w", err)
	}
	defer rows.Close()

	out := make([]models.AuditRecord, 0, limit)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		var rec models.AuditRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode audit record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Stats(ctx context.Context) (models.Stats, error) {
	var total, avg int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(ROUND(AVG(score))::int, 0) FROM audits`).Scan(&total, &avg)
	if err != nil {
		return models.Stats{}, fmt.Errorf("count audits: %w", err)
	}

	counts := make(map[scoring.Health]int, len(bands))
	rows, err := s.db.QueryContext(ctx, `
		SELECT CASE
			WHEN score >= 80 THEN 'excellent'
			WHEN score >= 60 THEN 'good'
			WHEN score >= 40 THEN 'fair'
			ELSE 'critical'
		END AS band, COUNT(*)
		FROM audits GROUP BY band
	`)
	if err != nil {
		return models.Stats{}, fmt.Errorf("score distribution: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var band string
		var n int
		if err := rows.Scan(&band, &n); err != nil {
			return models.Stats{}, fmt.Errorf("scan distribution: %w", err)
		}
		counts[scoring.Health(band)] = n
	}
	if err := rows.Err(); err != nil {
		return models.Stats{}, err
	}

	failures := make(map[string]int)
	frows, err := s.db.QueryContext(ctx, `
		SELECT event_type, COUNT(*) FROM events WHERE NOT found
		GROUP BY event_type ORDER BY COUNT(*) DESC, event_type LIMIT $1
	`, MostFailedLimit)
	if err != nil {
		return models.Stats{}, fmt.Errorf("failed events: %w", err)
	}
	defer frows.Close()
	for frows.Next() {
		var eventType string
		var n int
		if err := frows.Scan(&eventType, &n); err != nil {
			return models.Stats{}, fmt.Errorf("scan failed events: %w", err)
		}
		failures[eventType] = n
	}
	if err := frows.Err(); err != nil {
		return models.Stats{}, err
	}

	return buildStats(total, avg, counts, failures), nil
}

// ActiveMetrics returns active tracking metrics ordered by weight, heaviest first.
func (s *PostgresStore) ActiveMetrics(ctx context.Context) ([]models.TrackingMetric, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_type, weight, COALESCE(category, ''), COALESCE(instruction, '')
		FROM tracking_metrics WHERE is_active ORDER BY weight DESC, event_type
	`)
	if err != nil {
		return nil, fmt.Errorf("list tracking metrics: %w", err)
	}
	defer rows.Close()

	var out []models.TrackingMetric
	for rows.Next() {
		m := models.TrackingMetric{Active: true}
		if err := rows.Scan(&m.EventType, &m.Weight, &m.Category, &m.Instruction); err != nil {
			return nil, fmt.Errorf("scan tracking metric: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
