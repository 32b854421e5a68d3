package router

import (
	"sync"
)

// growThreshold is the fill percentage at which the buffer doubles.
const growThreshold = 70

// GrowableBuffer is an unbounded FIFO queue safe for concurrent use. Send never
// blocks: the ring doubles once it is growThreshold percent full.
type GrowableBuffer[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	ring   []T
	head   int // next read
	count  int
	closed bool

	// Stats
	enqueued int64
	dequeued int64
	resizes  int
}

// NewGrowableBuffer creates a buffer with the given initial capacity (min 1).
func NewGrowableBuffer[T any](initialCapacity int) *GrowableBuffer[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	b := &GrowableBuffer[T]{ring: make([]T, initialCapacity)}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Send appends item. It returns false once the buffer is closed.
func (b *GrowableBuffer[T]) Send(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	limit := len(b.ring) * growThreshold / 100
	if limit < 1 {
		limit = 1
	}
	if b.count+1 >= limit {
		b.grow()
	}

	b.ring[(b.head+b.count)%len(b.ring)] = item
	b.count++
	b.enqueued++

	b.cond.Signal()
	return true
}

// Receive blocks until an item is available. After Close it keeps returning
// queued items, then the zero value and false.
func (b *GrowableBuffer[T]) Receive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.count == 0 && !b.closed {
		b.cond.Wait()
	}
	return b.pop()
}

// DrainTo removes up to max items (all if max <= 0) without blocking.
func (b *GrowableBuffer[T]) DrainTo(max int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}
	n := b.count
	if max > 0 && max < n {
		n = max
	}

	out := make([]T, 0, n)
	for i := 0; i < n; i++ {
		item, _ := b.pop()
		out = append(out, item)
	}
	return out
}

// Close rejects further sends and wakes every waiting receiver.
func (b *GrowableBuffer[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.cond.Broadcast()
}

// Closed reports whether Close has been called.
func (b *GrowableBuffer[T]) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Len returns the number of queued items.
func (b *GrowableBuffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// BufferStats contains buffer statistics.
type BufferStats struct {
	Count         int
	Capacity      int
	TotalReceived int64 // Items accepted by Send
	TotalSent     int64 // Items handed to a receiver
	ResizeCount   int
}

// Stats returns buffer statistics.
func (b *GrowableBuffer[T]) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Count:         b.count,
		Capacity:      len(b.ring),
		TotalReceived: b.enqueued,
		TotalSent:     b.dequeued,
		ResizeCount:   b.resizes,
	}
}

// pop removes the head item. Must be called with lock held.
func (b *GrowableBuffer[T]) pop() (T, bool) {
	var zero T
	if b.count == 0 {
		return zero, false
	}
	item := b.ring[b.head]
	b.ring[b.head] = zero
	b.head = (b.head + 1) % len(b.ring)
	b.count--
	b.dequeued++
	return item, true
}

// grow doubles the ring and unwraps it to start at index 0. Must be called
// with lock held.
func (b *GrowableBuffer[T]) grow() {
	next := make([]T, len(b.ring)*2)
	for i := 0; i < b.count; i++ {
		next[i] = b.ring[(b.head+i)%len(b.ring)]
	}
	b.ring = next
	b.head = 0
	b.resizes++
}
