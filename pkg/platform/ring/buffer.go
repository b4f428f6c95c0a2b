// Package ring provides a bounded, thread-safe FIFO buffer.
package ring

import "sync"

// Buffer retains at most capacity items. When full, the oldest item is
// dropped to make room for the new one.
type Buffer[T any] struct {
	mu       sync.Mutex
	items    []T
	head     int // next write position
	count    int
	capacity int

	dropped int64
}

// New creates a buffer. A non-positive capacity falls back to 500.
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		capacity = 500
	}
	return &Buffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Push appends an item, dropping the oldest if necessary.
func (b *Buffer[T]) Push(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == b.capacity {
		b.dropped++
	} else {
		b.count++
	}
	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
}

// Snapshot returns the retained items, oldest first.
func (b *Buffer[T]) Snapshot() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastLocked(b.count)
}

// Last returns up to n most recent items, oldest first.
func (b *Buffer[T]) Last(n int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastLocked(n)
}

func (b *Buffer[T]) lastLocked(n int) []T {
	if n > b.count {
		n = b.count
	}
	if n <= 0 {
		return nil
	}
	out := make([]T, n)
	start := (b.head - n + b.capacity) % b.capacity
	for i := 0; i < n; i++ {
		out[i] = b.items[(start+i)%b.capacity]
	}
	return out
}

// Clear drops all retained items without counting them as dropped.
func (b *Buffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero T
	for i := range b.items {
		b.items[i] = zero
	}
	b.head = 0
	b.count = 0
}

// Len returns the number of retained items.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the buffer capacity.
func (b *Buffer[T]) Cap() int {
	return b.capacity
}

// Dropped returns the number of items evicted by overflow.
func (b *Buffer[T]) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
