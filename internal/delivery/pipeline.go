// Package delivery hands completed audits to the collector. Transient
// failures are retried with linear backoff, then parked in a bounded
// persisted queue that a background loop drains.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"innexbot/internal/audit"
	"innexbot/internal/storage"
	"innexbot/pkg/platform/circuit"
	"innexbot/pkg/platform/sanitize"
)

const (
	DefaultMaxAttempts   = 3
	DefaultBackoffStep   = time.Second
	DefaultFlushInterval = 5 * time.Minute

	MessageSharingDisabled = "Data sharing disabled"
	MessageQueued          = "Delivery failed, queued for retry"
)

// Sender transmits a sanitized document to the collector.
type Sender interface {
	Send(ctx context.Context, payload map[string]any) (audit.Receipt, error)
}

// State is the agent-wide state the pipeline consults and updates.
type State interface {
	DataSharing(ctx context.Context) (storage.DataSharing, error)
	MarkAuditSent(ctx context.Context, at time.Time) error
}

// FlushReport summarises one pass over the retry queue.
type FlushReport struct {
	Attempted int `json:"attempted"`
	Delivered int `json:"delivered"`
	Rejected  int `json:"rejected"`
	Dropped   int `json:"dropped"`
	Remaining int `json:"remaining"`
}

// Pipeline delivers documents through a Sender.
type Pipeline struct {
	sender      Sender
	queue       *Queue
	state       State
	policy      sanitize.Policy
	breaker     *circuit.Breaker
	metrics     *Metrics
	tracer      trace.Tracer
	logger      *slog.Logger
	maxAttempts int
	maxRequeue  int
	backoffStep time.Duration
	interval    time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	now         func() time.Time
}

type Option func(*Pipeline)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithState enables the consent check and lastAuditSent bookkeeping.
func WithState(s State) Option {
	return func(p *Pipeline) {
		p.state = s
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) {
		if m != nil {
			p.metrics = m
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(p *Pipeline) {
		p.breaker = b
	}
}

func WithPolicy(policy sanitize.Policy) Option {
	return func(p *Pipeline) {
		p.policy = policy
	}
}

func WithMaxAttempts(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithMaxQueueAttempts sets how many failed redeliveries drop an entry.
func WithMaxQueueAttempts(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxRequeue = n
		}
	}
}

// WithBackoffStep sets the linear backoff unit: attempt n waits n*step.
func WithBackoffStep(d time.Duration) Option {
	return func(p *Pipeline) {
		p.backoffStep = d
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithSleep replaces the backoff wait, mainly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Pipeline) {
		p.sleep = sleep
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

func New(sender Sender, queue *Queue, opts ...Option) *Pipeline {
	p := &Pipeline{
		sender:      sender,
		queue:       queue,
		policy:      sanitize.Transmission,
		tracer:      otel.Tracer("innexbot/delivery"),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxAttempts: DefaultMaxAttempts,
		maxRequeue:  DefaultMaxQueueAttempts,
		backoffStep: DefaultBackoffStep,
		interval:    DefaultFlushInterval,
		sleep:       sleepContext,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = NewMetrics(prometheus.NewRegistry())
	}
	return p
}

// Queue exposes the retry queue for inspection.
func (p *Pipeline) Queue() *Queue { return p.queue }

// Deliver sends doc. Transient failures are retried and then queued, in
// which case the receipt reports Queued and no error is returned. A
// non-retryable rejection is returned as an error and never queued.
func (p *Pipeline) Deliver(ctx context.Context, doc audit.Document) (audit.Receipt, error) {
	ctx, span := p.tracer.Start(ctx, "delivery.deliver", trace.WithAttributes(
		attribute.String("audit.id", doc.AuditID),
		attribute.Int("audit.score", doc.Score),
	))
	defer span.End()

	if p.sharingDisabled(ctx) {
		p.metrics.IncSkipped()
		p.logger.InfoContext(ctx, "data sharing disabled, skipping delivery", "audit_id", doc.AuditID)
		return audit.Receipt{Success: true, AuditID: doc.AuditID, Message: MessageSharingDisabled}, nil
	}

	payload, err := p.prepare(doc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "prepare payload")
		return audit.Receipt{AuditID: doc.AuditID, Error: err.Error()}, err
	}

	receipt, err := p.sendWithRetry(ctx, doc.AuditID, payload)
	if err == nil {
		p.markSent(ctx, doc.AuditID)
		return receipt, nil
	}
	span.RecordError(err)

	if !IsRetryable(err) {
		p.metrics.IncRejected()
		span.SetStatus(codes.Error, "rejected")
		p.logger.WarnContext(ctx, "audit rejected by collector", "audit_id", doc.AuditID, "error", err)
		return audit.Receipt{AuditID: doc.AuditID, Error: err.Error()}, err
	}

	// Queue even if the caller's context is gone.
	if _, qerr := p.enqueue(context.WithoutCancel(ctx), doc); qerr != nil {
		span.SetStatus(codes.Error, "enqueue")
		return audit.Receipt{AuditID: doc.AuditID, Error: qerr.Error()}, qerr
	}
	return audit.Receipt{AuditID: doc.AuditID, Queued: true, Message: MessageQueued, Error: err.Error()}, nil
}

func (p *Pipeline) sendWithRetry(ctx context.Context, auditID string, payload map[string]any) (audit.Receipt, error) {
	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		receipt, err := p.attempt(ctx, auditID, payload, attempt)
		if err == nil {
			return receipt, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return audit.Receipt{}, err
		}
		p.logger.WarnContext(ctx, "audit send failed",
			"audit_id", auditID,
			"attempt", attempt,
			"max_attempts", p.maxAttempts,
			"error", err,
		)
		if attempt == p.maxAttempts {
			break
		}
		if err := p.sleep(ctx, time.Duration(attempt)*p.backoffStep); err != nil {
			return audit.Receipt{}, fmt.Errorf("%w (backoff interrupted: %v)", lastErr, err)
		}
	}
	return audit.Receipt{}, lastErr
}

// attempt performs one guarded send.
func (p *Pipeline) attempt(ctx context.Context, auditID string, payload map[string]any, n int) (audit.Receipt, error) {
	ctx, span := p.tracer.Start(ctx, "delivery.attempt", trace.WithAttributes(
		attribute.String("audit.id", auditID),
		attribute.Int("attempt", n),
	))
	defer span.End()

	if p.breaker != nil && !p.breaker.Allow() {
		err := fmt.Errorf("%w: circuit %s open", ErrCollectorUnavailable, p.breaker.Name())
		span.RecordError(err)
		span.SetStatus(codes.Error, "circuit open")
		return audit.Receipt{}, err
	}

	p.metrics.IncAttempts()
	receipt, err := p.sender.Send(ctx, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		if IsRetryable(err) {
			p.recordFailure(ctx)
		} else {
			// The collector answered, so it is reachable.
			p.recordSuccess(ctx)
		}
		return audit.Receipt{}, err
	}
	p.recordSuccess(ctx)
	p.metrics.IncDelivered()
	if receipt.AuditID == "" {
		receipt.AuditID = auditID
	}
	receipt.Success = true
	return receipt, nil
}

func (p *Pipeline) recordFailure(ctx context.Context) {
	if p.breaker == nil {
		return
	}
	if _, change := p.breaker.RecordFailure(); change.Opened {
		p.metrics.SetBreakerState(true)
		p.logger.WarnContext(ctx, "collector circuit opened", "breaker", p.breaker.Name())
	}
}

func (p *Pipeline) recordSuccess(ctx context.Context) {
	if p.breaker == nil {
		return
	}
	if _, change := p.breaker.RecordSuccess(); change.Closed {
		p.metrics.SetBreakerState(false)
		p.logger.InfoContext(ctx, "collector circuit closed", "breaker", p.breaker.Name())
	}
}

func (p *Pipeline) enqueue(ctx context.Context, doc audit.Document) (Entry, error) {
	entry, evicted, err := p.queue.Push(ctx, doc)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to queue audit for retry", "audit_id", doc.AuditID, "error", err)
		return Entry{}, err
	}
	p.metrics.IncQueued()
	if evicted > 0 {
		p.metrics.AddEvicted(evicted)
		p.logger.WarnContext(ctx, "retry queue full, evicted oldest entries", "evicted", evicted)
	}
	if n, err := p.queue.Len(ctx); err == nil {
		p.metrics.SetQueueDepth(n)
	}
	p.logger.InfoContext(ctx, "audit queued for retry", "audit_id", doc.AuditID, "entry_id", entry.ID)
	return entry, nil
}

// FlushQueue makes one delivery attempt per queued entry. Delivered entries
// and entries rejected outright are removed; others have their attempt
// count incremented and are dropped once it reaches the cap. Entries queued
// while the flush is in flight are preserved.
func (p *Pipeline) FlushQueue(ctx context.Context) (FlushReport, error) {
	ctx, span := p.tracer.Start(ctx, "delivery.flush")
	defer span.End()

	entries, err := p.queue.Entries(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load queue")
		return FlushReport{}, err
	}
	if len(entries) == 0 {
		return FlushReport{}, nil
	}
	p.logger.InfoContext(ctx, "processing retry queue", "size", len(entries))

	var report FlushReport
	done := make(map[string]bool, len(entries))
	failed := make(map[string]bool, len(entries))
	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		payload, err := p.prepare(e.Payload)
		if err == nil {
			_, err = p.attempt(ctx, e.Payload.AuditID, payload, e.Attempts+1)
		}
		if errors.Is(err, ErrCollectorUnavailable) {
			// An open circuit is not a redelivery attempt.
			p.logger.InfoContext(ctx, "collector circuit open, postponing flush")
			break
		}
		report.Attempted++
		switch {
		case err == nil:
			report.Delivered++
			done[e.ID] = true
			p.markSent(ctx, e.Payload.AuditID)
		case !IsRetryable(err):
			report.Rejected++
			done[e.ID] = true
			p.metrics.IncRejected()
			p.logger.WarnContext(ctx, "queued audit rejected, removing", "audit_id", e.Payload.AuditID, "error", err)
		default:
			failed[e.ID] = true
			p.logger.WarnContext(ctx, "queued audit redelivery failed", "audit_id", e.Payload.AuditID, "attempts", e.Attempts+1, "error", err)
		}
	}

	err = p.queue.Update(context.WithoutCancel(ctx), func(current []Entry) []Entry {
		next := make([]Entry, 0, len(current))
		for _, e := range current {
			if done[e.ID] {
				continue
			}
			if failed[e.ID] {
				e.Attempts++
				if e.Attempts >= p.maxRequeue {
					report.Dropped++
					continue
				}
			}
			next = append(next, e)
		}
		report.Remaining = len(next)
		return next
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save queue")
		return report, err
	}
	p.metrics.AddDropped(report.Dropped)
	p.metrics.SetQueueDepth(report.Remaining)
	if report.Dropped > 0 {
		p.logger.WarnContext(ctx, "dropped queued audits after repeated failures", "dropped", report.Dropped)
	}
	span.SetAttributes(
		attribute.Int("flush.delivered", report.Delivered),
		attribute.Int("flush.remaining", report.Remaining),
	)
	return report, nil
}

// Run flushes the queue every interval until ctx is done.
func (p *Pipeline) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := p.FlushQueue(ctx); err != nil && !errors.Is(err, context.Canceled) {
				p.logger.ErrorContext(ctx, "retry queue flush failed", "error", err)
			}
		}
	}
}

func (p *Pipeline) prepare(doc audit.Document) (map[string]any, error) {
	fields, err := doc.Fields()
	if err != nil {
		return nil, err
	}
	return p.policy.Strip(fields), nil
}

func (p *Pipeline) sharingDisabled(ctx context.Context) bool {
	if p.state == nil {
		return false
	}
	sharing, err := p.state.DataSharing(ctx)
	if err != nil {
		p.logger.WarnContext(ctx, "failed to read data sharing preference", "error", err)
		return false
	}
	return sharing == storage.SharingDisabled
}

func (p *Pipeline) markSent(ctx context.Context, auditID string) {
	if p.state == nil {
		return
	}
	if err := p.state.MarkAuditSent(ctx, p.now()); err != nil {
		p.logger.WarnContext(ctx, "failed to record last audit sent", "audit_id", auditID, "error", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
