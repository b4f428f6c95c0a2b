// Package session sequences an audit: it walks a checklist one step at a
// time, records each outcome, persists progress keyed by site, and hands the
// finished audit to delivery.
package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"innexbot/internal/audit"
	"innexbot/internal/delivery"
	"innexbot/internal/eventstream"
	"innexbot/internal/matcher"
	"innexbot/internal/messaging"
	"innexbot/internal/storage"
	dErrors "innexbot/pkg/domain-errors"
)

var (
	ErrSessionComplete = dErrors.New(dErrors.CodeInvariantViolation, "audit session is already complete")
	ErrNotStarted      = dErrors.New(dErrors.CodeInvariantViolation, "audit session has not been resumed")
	ErrCheckInProgress = dErrors.New(dErrors.CodeConflict, "a step check is already in progress")
	ErrStaleStep       = dErrors.New(dErrors.CodeConflict, "step was resolved or the session restarted")
	errNoHost          = dErrors.New(dErrors.CodeValidation, "page URL has no host")
)

// PageProbe answers questions about the page under audit.
type PageProbe interface {
	CheckEvent(ctx context.Context, eventType string) (matcher.Result, error)
	State(ctx context.Context) (eventstream.State, error)
}

// Deliverer hands a completed audit to the collector.
type Deliverer interface {
	Deliver(ctx context.Context, doc audit.Document) (audit.Receipt, error)
}

// Consent reads and records the data-sharing decision.
type Consent interface {
	DataSharing(ctx context.Context) (storage.DataSharing, error)
	SetDataSharing(ctx context.Context, enabled bool) error
}

// Machine owns one session at a time. Storage and page calls are bounded;
// when they fail or time out the machine logs and carries on with its
// in-memory state.
type Machine struct {
	store     storage.Store
	probe     PageProbe
	deliverer Deliverer
	consent   Consent
	checklist audit.Checklist
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
	ttl       time.Duration

	storageTimeout time.Duration
	pageTimeout    time.Duration

	checking atomic.Bool

	mu    sync.Mutex
	state State
}

type Option func(*Machine)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		m.logger = logger
	}
}

func WithDeliverer(d Deliverer) Option {
	return func(m *Machine) {
		m.deliverer = d
	}
}

// WithConsent enables the data-sharing hold. Without it delivery is never
// held.
func WithConsent(c Consent) Option {
	return func(m *Machine) {
		m.consent = c
	}
}

// WithChecklist sets the checklist for sessions the machine starts. A
// checklist that fails validation is ignored and the default is kept.
func WithChecklist(c audit.Checklist) Option {
	return func(m *Machine) {
		if c.Validate() == nil {
			m.checklist = append(audit.Checklist(nil), c...)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		m.now = now
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(m *Machine) {
		m.newID = fn
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(m *Machine) {
		m.ttl = ttl
	}
}

func WithStorageTimeout(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.storageTimeout = d
		}
	}
}

func WithPageTimeout(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.pageTimeout = d
		}
	}
}

func New(store storage.Store, probe PageProbe, opts ...Option) *Machine {
	m := &Machine{
		store:          store,
		probe:          probe,
		checklist:      audit.DefaultChecklist(),
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:            time.Now,
		newID:          uuid.NewString,
		ttl:            DefaultTTL,
		storageTimeout: messaging.StorageTimeout,
		pageTimeout:    messaging.PageTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns a copy of the current session.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// Checking reports whether a step check is in flight.
func (m *Machine) Checking() bool {
	return m.checking.Load()
}

// Resume restores the persisted session for the page's domain. A missing,
// expired or inconsistent snapshot, or one for another domain, is discarded
// and a fresh session is started.
func (m *Machine) Resume(ctx context.Context, pageURL string) (State, error) {
	domain := eventstream.BaseDomain(pageURL)
	if domain == "" {
		return State{}, errNoHost
	}

	snap, found := m.load(ctx)
	page, pageOK := m.pageState(ctx)
	awaiting := m.awaitingConsent(ctx)
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	restored := State{
		AuditID:   snap.AuditID,
		Domain:    snap.Domain,
		Checklist: m.checklist,
		StepIndex: snap.CurrentStep,
		Results:   snap.results(),
		Complete:  snap.AuditComplete,
		CreatedAt: snap.Timestamp,
	}
	switch {
	case !found:
		m.state = m.fresh(domain, now)
		m.logger.InfoContext(ctx, "audit session started", "audit_id", m.state.AuditID, "domain", domain)
	case snap.Domain != domain:
		m.logger.InfoContext(ctx, "domain changed, discarding audit session",
			"previous_domain", snap.Domain,
			"domain", domain,
		)
		m.clearLocked(ctx)
		m.state = m.fresh(domain, now)
	case restored.Expired(now, m.ttl):
		m.logger.InfoContext(ctx, "audit session expired, starting over",
			"audit_id", snap.AuditID,
			"age", now.Sub(snap.Timestamp).String(),
		)
		m.clearLocked(ctx)
		m.state = m.fresh(domain, now)
	case !snap.valid(m.checklist):
		m.logger.WarnContext(ctx, "persisted audit session is inconsistent with checklist, starting over",
			"audit_id", snap.AuditID,
			"current_step", snap.CurrentStep,
			"results", len(snap.Results),
		)
		m.clearLocked(ctx)
		m.state = m.fresh(domain, now)
	default:
		m.state = restored
		m.logger.InfoContext(ctx, "audit session resumed",
			"audit_id", snap.AuditID,
			"current_step", snap.CurrentStep,
			"complete", snap.AuditComplete,
		)
	}

	m.state.AwaitingConsent = awaiting
	if pageOK {
		m.state.TrackingWarning = !page.Exists && !page.HasTracking
		if page.IsShopify {
			m.state.Shopify = &audit.ShopifyInfo{Method: page.ShopifyMethod, Shop: page.ShopifyShop}
		}
	}
	m.saveLocked(ctx)
	return m.state.clone(), nil
}

// CheckStep asks the page whether the current step's event was emitted and
// records the answer. Only one check runs at a time; a call made while
// another is in flight returns ErrCheckInProgress without side effects.
func (m *Machine) CheckStep(ctx context.Context) (StepResult, error) {
	if !m.checking.CompareAndSwap(false, true) {
		return StepResult{}, ErrCheckInProgress
	}
	defer m.checking.Store(false)

	cur, err := m.cursor()
	if err != nil {
		return StepResult{}, err
	}

	reply := messaging.Call(ctx, m.pageTimeout, func(ctx context.Context) (matcher.Result, error) {
		return m.probe.CheckEvent(ctx, cur.item.EventType)
	})
	res := m.newResult(cur.item)
	reload := false
	switch reply.Outcome {
	case messaging.Delivered:
		res.Found = reply.Value.Found
		res.Data = reply.Value.Data
		res.Message = reply.Value.Message
		if ts, err := time.Parse(time.RFC3339, reply.Value.Timestamp); err == nil {
			res.Timestamp = ts.UTC()
		}
	case messaging.RecipientAbsent:
		// A page without a listener has not emitted the event.
		res.Message = MessageChannelError
		m.logger.WarnContext(ctx, "page channel unavailable, treating event as not found",
			"event_type", cur.item.EventType,
			"error", reply.Err,
		)
	default:
		res.Message = messageErrorPrefix + reply.Err.Error()
		reload = true
		m.logger.WarnContext(ctx, "event check failed, treating event as not found",
			"event_type", cur.item.EventType,
			"outcome", reply.Outcome.String(),
			"error", reply.Err,
		)
	}

	if err := m.commit(ctx, cur, res, reload); err != nil {
		return StepResult{}, err
	}
	return res, nil
}

// SkipStep resolves the current step as skipped.
func (m *Machine) SkipStep(ctx context.Context) (StepResult, error) {
	return m.RecordStep(ctx, false, true)
}

// RecordStep resolves the current step with the given outcome. Weight,
// category and event type are copied from the checklist item. Resolving the
// last step completes the session and triggers delivery, whose failure is
// logged rather than returned.
func (m *Machine) RecordStep(ctx context.Context, found, skipped bool) (StepResult, error) {
	cur, err := m.cursor()
	if err != nil {
		return StepResult{}, err
	}
	res := m.newResult(cur.item)
	res.Skipped = skipped
	res.Found = found && !skipped
	if err := m.commit(ctx, cur, res, false); err != nil {
		return StepResult{}, err
	}
	return res, nil
}

// Restart discards the persisted session and starts a new one on the same
// domain with a new audit id.
func (m *Machine) Restart(ctx context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.AuditID == "" {
		return State{}, ErrNotStarted
	}
	prev := m.state
	m.clearLocked(ctx)
	m.state = m.fresh(prev.Domain, m.now())
	m.state.AwaitingConsent = prev.AwaitingConsent
	m.state.TrackingWarning = prev.TrackingWarning
	m.state.Shopify = prev.Shopify
	m.logger.InfoContext(ctx, "audit session restarted",
		"previous_audit_id", prev.AuditID,
		"audit_id", m.state.AuditID,
	)
	return m.state.clone(), nil
}

// SetDataSharing records the operator's decision and releases a delivery
// held for it: the audit is delivered when sharing is enabled and dropped
// otherwise.
func (m *Machine) SetDataSharing(ctx context.Context, enabled bool) State {
	if m.consent != nil {
		reply := messaging.Call(ctx, m.storageTimeout, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, m.consent.SetDataSharing(ctx, enabled)
		})
		if !reply.OK() {
			m.logger.WarnContext(ctx, "failed to save data sharing preference", "error", reply.Err)
		}
	}

	m.mu.Lock()
	held := m.state.AwaitingConsent && m.state.Complete && m.state.Receipt == nil
	m.state.AwaitingConsent = false
	var doc *audit.Document
	if held {
		if enabled {
			d := m.documentLocked()
			doc = &d
		} else {
			m.state.Receipt = &audit.Receipt{Success: true, AuditID: m.state.AuditID, Message: delivery.MessageSharingDisabled}
			m.logger.InfoContext(ctx, "data sharing declined, discarding held audit", "audit_id", m.state.AuditID)
		}
	}
	m.mu.Unlock()

	if doc != nil {
		m.deliver(ctx, *doc)
	}
	return m.State()
}

type cursor struct {
	auditID string
	step    int
	item    audit.CheckItem
}

func (m *Machine) cursor() (cursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.AuditID == "" {
		return cursor{}, ErrNotStarted
	}
	item, ok := m.state.Current()
	if !ok {
		return cursor{}, ErrSessionComplete
	}
	return cursor{auditID: m.state.AuditID, step: m.state.StepIndex, item: item}, nil
}

func (m *Machine) newResult(item audit.CheckItem) StepResult {
	return StepResult{
		EventType: item.EventType,
		Weight:    item.Weight,
		Category:  item.Category,
		Timestamp: m.now().UTC(),
	}
}

// commit appends res if the session is still at cur, persists, and delivers
// when res resolved the last step.
func (m *Machine) commit(ctx context.Context, cur cursor, res StepResult, reload bool) error {
	m.mu.Lock()
	if m.state.Complete {
		m.mu.Unlock()
		return ErrSessionComplete
	}
	if m.state.AuditID != cur.auditID || m.state.StepIndex != cur.step {
		m.mu.Unlock()
		m.logger.WarnContext(ctx, "dropping result for superseded step",
			"audit_id", cur.auditID,
			"step", cur.step,
			"event_type", res.EventType,
		)
		return ErrStaleStep
	}

	m.state.Results = append(m.state.Results, res)
	m.state.StepIndex++
	m.state.ReloadRequired = reload
	m.logger.InfoContext(ctx, "audit step resolved",
		"audit_id", cur.auditID,
		"step", cur.step,
		"event_type", res.EventType,
		"found", res.Found,
		"skipped", res.Skipped,
	)
	if m.state.StepIndex == len(m.state.Checklist) {
		m.state.Complete = true
	}
	m.saveLocked(ctx)

	if !m.state.Complete {
		m.mu.Unlock()
		return nil
	}
	if m.state.AwaitingConsent {
		m.mu.Unlock()
		m.logger.InfoContext(ctx, "audit complete, holding delivery until data sharing is decided", "audit_id", cur.auditID)
		return nil
	}
	doc := m.documentLocked()
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "audit complete", "audit_id", doc.AuditID, "score", doc.Score, "health", doc.HealthStatus)
	m.deliver(ctx, doc)
	return nil
}

func (m *Machine) documentLocked() audit.Document {
	return audit.NewDocument(m.state.AuditID, m.state.Checks(), audit.Meta{
		CompletedAt: m.now(),
		StartedAt:   m.state.CreatedAt,
		Shopify:     m.state.Shopify,
	})
}

func (m *Machine) deliver(ctx context.Context, doc audit.Document) {
	if m.deliverer == nil {
		m.logger.DebugContext(ctx, "no deliverer configured, keeping audit local", "audit_id", doc.AuditID)
		return
	}
	receipt, err := m.deliverer.Deliver(ctx, doc)
	if err != nil {
		m.logger.WarnContext(ctx, "audit delivery failed", "audit_id", doc.AuditID, "error", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.AuditID != doc.AuditID {
		return
	}
	m.state.Receipt = &receipt
	if err != nil {
		m.state.SendError = err.Error()
	} else {
		m.state.SendError = ""
	}
}

func (m *Machine) fresh(domain string, now time.Time) State {
	return State{
		AuditID:   m.newID(),
		Domain:    domain,
		Checklist: m.checklist,
		Results:   []StepResult{},
		CreatedAt: now.UTC(),
	}
}

// load reads the snapshot. Any failure, including a timeout, reads as no
// snapshot.
func (m *Machine) load(ctx context.Context) (snapshot, bool) {
	reply := messaging.Call(ctx, m.storageTimeout, func(ctx context.Context) (snapshot, error) {
		var snap snapshot
		err := m.store.Get(ctx, storage.KeyAuditSession, &snap)
		return snap, err
	})
	if reply.OK() {
		return reply.Value, true
	}
	if !storage.IsNotFound(reply.Err) {
		m.logger.WarnContext(ctx, "failed to load audit session", "outcome", reply.Outcome.String(), "error", reply.Err)
	}
	return snapshot{}, false
}

func (m *Machine) saveLocked(ctx context.Context) {
	snap := snapshotOf(m.state)
	reply := messaging.Call(ctx, m.storageTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.store.Set(ctx, storage.KeyAuditSession, snap)
	})
	if !reply.OK() {
		m.logger.WarnContext(ctx, "failed to save audit session",
			"audit_id", snap.AuditID,
			"outcome", reply.Outcome.String(),
			"error", reply.Err,
		)
	}
}

func (m *Machine) clearLocked(ctx context.Context) {
	reply := messaging.Call(ctx, m.storageTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.store.Remove(ctx, storage.KeyAuditSession)
	})
	if !reply.OK() {
		m.logger.WarnContext(ctx, "failed to clear audit session", "error", reply.Err)
	}
}

// pageState reports false when the page could not be asked. An unanswered
// page raises no tracking warning.
func (m *Machine) pageState(ctx context.Context) (eventstream.State, bool) {
	if m.probe == nil {
		return eventstream.State{}, false
	}
	reply := messaging.Call(ctx, m.pageTimeout, m.probe.State)
	if !reply.OK() {
		m.logger.WarnContext(ctx, "could not read page tracking state", "outcome", reply.Outcome.String(), "error", reply.Err)
		return eventstream.State{}, false
	}
	return reply.Value, true
}

func (m *Machine) awaitingConsent(ctx context.Context) bool {
	if m.consent == nil {
		return false
	}
	reply := messaging.Call(ctx, m.storageTimeout, m.consent.DataSharing)
	if !reply.OK() {
		m.logger.WarnContext(ctx, "failed to read data sharing preference", "error", reply.Err)
		return true
	}
	return reply.Value == storage.SharingUnset
}
