package eventstream

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"innexbot/pkg/platform/ring"
)

const (
	// DefaultCapacity bounds retained history on long-lived pages.
	DefaultCapacity = 500
	// DefaultRetryDelay is how long Initialize waits for a late data layer.
	DefaultRetryDelay = 2 * time.Second
	// RecentLimit is how many events a state summary lists.
	RecentLimit = 10
)

// Observer is told about each recorded event. Delivery is best-effort: an
// absent or failing observer never affects recording.
type Observer interface {
	Observe(event Event) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(event Event) error

func (f ObserverFunc) Observe(event Event) error { return f(event) }

// Summary is one entry of the recent-events list.
type Summary struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
}

// State is a point-in-time view of tracking on the page.
type State struct {
	Exists        bool      `json:"exists"`
	Length        int       `json:"length"`
	RecentEvents  []Summary `json:"recentEvents"`
	PageType      PageType  `json:"pageType"`
	HasTracking   bool      `json:"hasTracking"`
	HasGTM        bool      `json:"hasGTM"`
	HasGA4        bool      `json:"hasGA4"`
	IsShopify     bool      `json:"isShopify"`
	ShopifyMethod string    `json:"shopifyMethod,omitempty"`
	ShopifyShop   string    `json:"shopifyShop,omitempty"`
}

// Recorder observes a host's data layer and keeps a bounded history.
type Recorder struct {
	host       Host
	history    *ring.Buffer[Event]
	observer   Observer
	logger     *slog.Logger
	retryDelay time.Duration
	now        func() time.Time

	mu          sync.Mutex
	layer       DataLayer
	unsubscribe func()
}

type Option func(*Recorder)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

func WithObserver(o Observer) Option {
	return func(r *Recorder) {
		r.observer = o
	}
}

// WithCapacity bounds retained history.
func WithCapacity(n int) Option {
	return func(r *Recorder) {
		r.history = ring.New[Event](n)
	}
}

func WithRetryDelay(d time.Duration) Option {
	return func(r *Recorder) {
		if d >= 0 {
			r.retryDelay = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

// New creates a recorder for host. Call Initialize to start observing.
func New(host Host, opts ...Option) *Recorder {
	r := &Recorder{
		host:       host,
		history:    ring.New[Event](DefaultCapacity),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		retryDelay: DefaultRetryDelay,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Initialize attaches to the host's data layer. If none exists yet it waits
// retryDelay once for a late-loading tag, then creates an empty layer so the
// recorder always has a target. Entries already present are recorded.
func (r *Recorder) Initialize(ctx context.Context) error {
	layer, ok := r.host.DataLayer()
	if !ok {
		r.logger.DebugContext(ctx, "data layer not found, retrying", "delay", r.retryDelay)
		timer := time.NewTimer(r.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		layer, ok = r.host.DataLayer()
		if !ok {
			r.logger.DebugContext(ctx, "data layer still absent, creating empty layer")
			layer = r.host.EnsureDataLayer()
		}
	}
	r.attach(layer)
	r.logger.DebugContext(ctx, "data layer monitoring initialized", "existing_events", layer.Len())
	return nil
}

func (r *Recorder) attach(layer DataLayer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.unsubscribe != nil {
		r.unsubscribe()
	}
	r.history.Clear()
	now := r.now()
	for _, e := range layer.Entries() {
		if e != nil {
			r.history.Push(e.stamped(now))
		}
	}
	r.layer = layer
	r.unsubscribe = layer.Subscribe(r.Intercept)
}

// Intercept records events as they are pushed. Each event is stamped with a
// capture time unless it already carries one.
func (r *Recorder) Intercept(events ...Event) {
	now := r.now()
	for _, e := range events {
		if e == nil {
			continue
		}
		rec := e.stamped(now)
		r.history.Push(rec)
		r.notify(rec)
	}
}

func (r *Recorder) notify(e Event) {
	if r.observer == nil {
		return
	}
	if err := r.observer.Observe(e); err != nil {
		r.logger.Debug("event observer unavailable", "error", err)
	}
}

// History returns retained events, oldest first.
func (r *Recorder) History() []Event {
	return r.history.Snapshot()
}

// Clear discards retained history. The page's data layer is untouched.
func (r *Recorder) Clear() {
	r.history.Clear()
}

// PageType classifies the host's current location.
func (r *Recorder) PageType() PageType {
	return ClassifyPage(r.host.URL())
}

// QueryState reports whether the page has a data layer and summarises the
// most recent events. An absent layer is a normal state, not an error.
func (r *Recorder) QueryState() State {
	sig := r.host.Signals()
	st := State{
		PageType:      r.PageType(),
		HasTracking:   sig.HasGTM || sig.HasGA4,
		HasGTM:        sig.HasGTM,
		HasGA4:        sig.HasGA4,
		IsShopify:     sig.IsShopify,
		ShopifyMethod: sig.ShopifyMethod,
		ShopifyShop:   sig.ShopifyShop,
	}
	if layer, ok := r.host.DataLayer(); ok {
		st.Exists = true
		st.Length = layer.Len()
	}

	recent := r.history.Last(RecentLimit)
	st.RecentEvents = make([]Summary, 0, len(recent))
	for _, e := range recent {
		ts := e.Timestamp()
		if ts == "" {
			ts = "unknown"
		}
		st.RecentEvents = append(st.RecentEvents, Summary{Event: e.Label(), Timestamp: ts})
	}
	return st
}

// Close stops observing the data layer.
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unsubscribe != nil {
		r.unsubscribe()
		r.unsubscribe = nil
	}
}
