package delivery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"innexbot/internal/audit"
	"innexbot/internal/storage"
)

const (
	// DefaultQueueCapacity bounds the persisted retry queue.
	DefaultQueueCapacity = 10
	// DefaultMaxQueueAttempts is how many failed redeliveries drop an entry.
	DefaultMaxQueueAttempts = 5
)

// Entry is one undelivered document. Attempts counts failed redeliveries
// from the queue and starts at zero regardless of how many direct attempts
// preceded queueing.
type Entry struct {
	ID         string         `json:"id"`
	Payload    audit.Document `json:"payload"`
	EnqueuedAt time.Time      `json:"enqueuedAt"`
	Attempts   int            `json:"attempts"`
}

// Queue is a bounded FIFO persisted under storage.KeyRetryQueue. Mutations
// are serialised within the process; another process sharing the same store
// can still interleave its own read-modify-write.
type Queue struct {
	mu       sync.Mutex
	store    storage.Store
	capacity int
	now      func() time.Time
	newID    func() string
}

type QueueOption func(*Queue)

func WithQueueCapacity(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.capacity = n
		}
	}
}

func WithQueueClock(now func() time.Time) QueueOption {
	return func(q *Queue) {
		q.now = now
	}
}

func NewQueue(store storage.Store, opts ...QueueOption) *Queue {
	q := &Queue{
		store:    store,
		capacity: DefaultQueueCapacity,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Push appends doc, evicting the oldest entries beyond capacity. It returns
// the new entry and how many entries were evicted.
func (q *Queue) Push(ctx context.Context, doc audit.Document) (Entry, int, error) {
	entry := Entry{ID: q.newID(), Payload: doc, EnqueuedAt: q.now().UTC()}
	var evicted int
	err := q.Update(ctx, func(entries []Entry) []Entry {
		entries = append(entries, entry)
		if over := len(entries) - q.capacity; over > 0 {
			evicted = over
			entries = entries[over:]
		}
		return entries
	})
	if err != nil {
		return Entry{}, 0, err
	}
	return entry, evicted, nil
}

// Entries returns a copy of the queue, oldest first.
func (q *Queue) Entries(ctx context.Context) ([]Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load(ctx)
}

func (q *Queue) Len(ctx context.Context) (int, error) {
	entries, err := q.Entries(ctx)
	return len(entries), err
}

// Update applies fn to the stored queue as one critical section.
func (q *Queue) Update(ctx context.Context, fn func([]Entry) []Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.load(ctx)
	if err != nil {
		return err
	}
	next := fn(entries)
	if next == nil {
		next = []Entry{}
	}
	if err := q.store.Set(ctx, storage.KeyRetryQueue, next); err != nil {
		return fmt.Errorf("save retry queue: %w", err)
	}
	return nil
}

// Clear empties the queue.
func (q *Queue) Clear(ctx context.Context) error {
	return q.Update(ctx, func([]Entry) []Entry { return nil })
}

func (q *Queue) load(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	if err := q.store.Get(ctx, storage.KeyRetryQueue, &entries); err != nil {
		if storage.IsNotFound(err) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("load retry queue: %w", err)
	}
	return entries, nil
}
