// Package service validates and stores audit submissions.
package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"

	"innexbot/internal/collector/metrics"
	"innexbot/internal/collector/models"
	dErrors "innexbot/pkg/domain-errors"
	"innexbot/pkg/platform/sanitize"
	"innexbot/pkg/platform/sentinel"
)

const (
	// DefaultListLimit is used when a listing does not name a limit.
	DefaultListLimit = 50
	// MaxListLimit caps a single listing.
	MaxListLimit = 1000

	MessageReceived  = "Audit results received successfully"
	MessageDuplicate = "Audit results already received"
)

// Store persists accepted submissions.
type Store interface {
	Save(ctx context.Context, rec models.AuditRecord) error
	FindByAuditID(ctx context.Context, auditID string) (models.AuditRecord, error)
	Recent(ctx context.Context, limit int) ([]models.AuditRecord, error)
	Stats(ctx context.Context) (models.Stats, error)
	ActiveMetrics(ctx context.Context) ([]models.TrackingMetric, error)
}

// Publisher fans accepted submissions out to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, rec models.AuditRecord) error
}

// Submission is one inbound audit result with its request metadata.
type Submission struct {
	Body        map[string]any
	ExtensionID string
	UserAgent   string
}

type Service struct {
	store     Store
	publisher Publisher
	metrics   *metrics.Metrics
	policy    sanitize.Policy
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithPolicy replaces the forbidden-field policy.
func WithPolicy(p sanitize.Policy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:     store,
		publisher: nopPublisher{},
		policy:    sanitize.Transmission,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, models.AuditRecord) error { return nil }

// Submit validates and stores one audit result. Resubmitting an auditId that
// is already stored succeeds without creating a second record.
func (s *Service) Submit(ctx context.Context, sub Submission) (models.SubmitResponse, error) {
	if sub.ExtensionID == "" {
		s.reject("missing_extension_id")
		return models.SubmitResponse{}, dErrors.New(dErrors.CodeBadRequest, "missing X-Extension-ID header")
	}

	rec, err := parseSubmission(sub.Body, s.policy)
	if err != nil {
		var fe *ForbiddenFieldError
		if errors.As(err, &fe) {
			s.logger.WarnContext(ctx, "rejected submission with forbidden field",
				"field", fe.Field,
				"extension_id", sub.ExtensionID,
			)
			s.reject("forbidden_field")
		} else {
			s.reject("invalid")
		}
		return models.SubmitResponse{}, err
	}

	rec.ID = s.newID()
	if rec.AuditID == "" {
		rec.AuditID = s.newID()
	}
	rec.ReceivedAt = s.now().UTC()
	rec.ExtensionID = sub.ExtensionID
	if sub.UserAgent != "" {
		rec.Browser, rec.BrowserVersion = useragent.New(sub.UserAgent).Browser()
	}

	if err := s.store.Save(ctx, rec); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			if s.metrics != nil {
				s.metrics.IncDuplicates()
			}
			s.logger.InfoContext(ctx, "duplicate audit submission", "audit_id", rec.AuditID)
			return models.SubmitResponse{
				Success:   true,
				AuditID:   rec.AuditID,
				Message:   MessageDuplicate,
				Duplicate: true,
			}, nil
		}
		return models.SubmitResponse{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save audit")
	}

	if s.metrics != nil {
		s.metrics.IncReceived()
		s.metrics.ObserveScore(rec.Score)
	}
	s.logger.InfoContext(ctx, "audit received",
		"audit_id", rec.AuditID,
		"score", rec.Score,
		"health", rec.HealthStatus,
		"events", len(rec.EventsChecked),
	)

	if err := s.publisher.Publish(ctx, rec); err != nil {
		if s.metrics != nil {
			s.metrics.IncPublishFailure()
		}
		s.logger.ErrorContext(ctx, "failed to publish audit", "audit_id", rec.AuditID, "error", err)
	}

	return models.SubmitResponse{Success: true, AuditID: rec.AuditID, Message: MessageReceived}, nil
}

func (s *Service) reject(reason string) {
	if s.metrics != nil {
		s.metrics.IncRejected(reason)
	}
}

// Stats summarises every stored submission.
func (s *Service) Stats(ctx context.Context) (models.Stats, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return models.Stats{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load stats")
	}
	return stats, nil
}

// Recent lists stored submissions, most recent first. A non-positive limit
// selects DefaultListLimit.
func (s *Service) Recent(ctx context.Context, limit int) (models.AuditList, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	records, err := s.store.Recent(ctx, limit)
	if err != nil {
		return models.AuditList{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audits")
	}
	if records == nil {
		records = []models.AuditRecord{}
	}
	return models.AuditList{Count: len(records), Audits: records}, nil
}

// Audit returns one stored submission by its auditId.
func (s *Service) Audit(ctx context.Context, auditID string) (models.AuditRecord, error) {
	rec, err := s.store.FindByAuditID(ctx, auditID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.AuditRecord{}, dErrors.Wrap(err, dErrors.CodeNotFound, "audit not found")
		}
		return models.AuditRecord{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load audit")
	}
	return rec, nil
}

// ExtensionConfig returns the active checklist served to agents.
func (s *Service) ExtensionConfig(ctx context.Context) (models.ExtensionConfig, error) {
	active, err := s.store.ActiveMetrics(ctx)
	if err != nil {
		return models.ExtensionConfig{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load tracking metrics")
	}
	if active == nil {
		active = []models.TrackingMetric{}
	}
	return models.ExtensionConfig{Success: true, Config: active}, nil
}
