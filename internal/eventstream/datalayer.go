package eventstream

import (
	"net/url"
	"strings"
	"sync"
)

// DataLayer is the page's shared event channel. Subscribe is the only way the
// recorder observes new entries.
type DataLayer interface {
	Entries() []Event
	Len() int
	Subscribe(fn func(events ...Event)) (unsubscribe func())
}

// Signals are tracking facts the host detects beside the data layer.
type Signals struct {
	HasGTM        bool
	HasGA4        bool
	IsShopify     bool
	ShopifyMethod string
	ShopifyShop   string
}

// Host is the page context the recorder runs in.
type Host interface {
	// DataLayer returns the page's data layer if one exists.
	DataLayer() (DataLayer, bool)
	// EnsureDataLayer creates an empty data layer if none exists.
	EnsureDataLayer() DataLayer
	// URL is the current page location.
	URL() string
	Signals() Signals
}

// Layer is an in-process DataLayer. Push delivers to subscribers after the
// entries are appended, in registration order.
type Layer struct {
	mu          sync.RWMutex
	entries     []Event
	subscribers map[int]func(events ...Event)
	nextID      int
}

// NewLayer returns a layer pre-filled with entries.
func NewLayer(entries ...Event) *Layer {
	return &Layer{
		entries:     append([]Event(nil), entries...),
		subscribers: make(map[int]func(events ...Event)),
	}
}

func (l *Layer) Push(events ...Event) int {
	l.mu.Lock()
	l.entries = append(l.entries, events...)
	n := len(l.entries)
	subs := make([]func(events ...Event), 0, len(l.subscribers))
	for id := 0; id < l.nextID; id++ {
		if fn, ok := l.subscribers[id]; ok {
			subs = append(subs, fn)
		}
	}
	l.mu.Unlock()

	for _, fn := range subs {
		fn(events...)
	}
	return n
}

func (l *Layer) Entries() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Event(nil), l.entries...)
}

func (l *Layer) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func (l *Layer) Subscribe(fn func(events ...Event)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextID
	l.nextID++
	l.subscribers[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.subscribers, id)
	}
}

// Page is an in-process Host. Tests and the replay CLI use it to stand in for
// a browser tab.
type Page struct {
	mu      sync.RWMutex
	url     string
	layer   *Layer
	signals Signals
}

// NewPage creates a page at rawURL without a data layer.
func NewPage(rawURL string) *Page {
	return &Page{url: rawURL}
}

// Attach installs layer as the page's data layer, as a late-loading tag would.
func (p *Page) Attach(layer *Layer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.layer = layer
}

func (p *Page) Navigate(rawURL string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = rawURL
}

func (p *Page) SetSignals(s Signals) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signals = s
}

func (p *Page) DataLayer() (DataLayer, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.layer == nil {
		return nil, false
	}
	return p.layer, true
}

func (p *Page) EnsureDataLayer() DataLayer {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.layer == nil {
		p.layer = NewLayer()
	}
	return p.layer
}

func (p *Page) URL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.url
}

func (p *Page) Signals() Signals {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.signals
}

// Layer returns the attached layer, or nil.
func (p *Page) Layer() *Layer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.layer
}

// BaseDomain returns the host of rawURL without a leading "www.". Other
// subdomains are kept so distinct shops on one parent domain stay distinct.
// Input that does not parse as a URL is returned trimmed and lower-cased.
func BaseDomain(rawURL string) string {
	raw := strings.TrimSpace(rawURL)
	host := raw
	if u, err := url.Parse(raw); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	} else if u, err := url.Parse("//" + raw); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	host = strings.ToLower(host)
	return strings.TrimPrefix(host, "www.")
}
