package feed

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed is returned by Pop and Wait once a closed queue is empty.
var ErrQueueClosed = errors.New("queue closed")

// growThreshold is the fill percentage at which the ring doubles.
const growThreshold = 70

// Queue is a thread-safe FIFO ring that doubles its capacity at 70% fill.
// With a limit set, it stops growing at the limit and drops the oldest item
// to make room.
type Queue[T any] struct {
	mu     sync.Mutex
	ring   []T
	head   int
	count  int
	limit  int
	closed bool

	// Signalled on push, buffered so senders never block
	ready chan struct{}
	// Closed by Close to wake every waiter
	done chan struct{}

	// Stats
	pushed  int64
	popped  int64
	dropped int64
	grows   int
}

// QueueStats contains queue statistics.
type QueueStats struct {
	Len     int
	Cap     int
	Pushed  int64
	Popped  int64
	Dropped int64
	Grows   int
}

// NewQueue creates a queue with the given initial capacity. limit caps growth
// (0 = unbounded).
func NewQueue[T any](initial, limit int) *Queue[T] {
	if initial < 1 {
		initial = 1
	}
	if limit > 0 && initial > limit {
		initial = limit
	}
	return &Queue[T]{
		ring:  make([]T, initial),
		limit: limit,
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Push appends item. It returns false if the queue is closed.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	if (q.count+1)*100 >= len(q.ring)*growThreshold {
		q.grow()
	}
	if q.count == len(q.ring) {
		// At the limit
		q.popLocked()
		q.popped--
		q.dropped++
	}

	q.ring[(q.head+q.count)%len(q.ring)] = item
	q.count++
	q.pushed++

	q.signal()
	return true
}

// TryPop removes the oldest item without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.popLocked(), true
}

// Pop blocks until an item is available, the queue is closed and empty, or
// ctx is done.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		if q.count > 0 {
			item := q.popLocked()
			if q.count > 0 {
				q.signal()
			}
			q.mu.Unlock()
			return item, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			var zero T
			return zero, ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-q.ready:
		case <-q.done:
		}
	}
}

// Wait blocks until the queue has items, is closed and empty, or ctx is done.
func (q *Queue[T]) Wait(ctx context.Context) error {
	for {
		q.mu.Lock()
		count, closed := q.count, q.closed
		q.mu.Unlock()

		switch {
		case count > 0:
			return nil
		case closed:
			return ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.ready:
		case <-q.done:
		}
	}
}

// Drain removes up to max items (all if max <= 0) without blocking.
func (q *Queue[T]) Drain(max int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.count
	if max > 0 && max < n {
		n = max
	}
	if n == 0 {
		return nil
	}

	out := make([]T, n)
	for i := range out {
		out[i] = q.popLocked()
	}
	return out
}

// Close stops accepting items. Remaining items can still be popped.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Stats returns queue statistics.
func (q *Queue[T]) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Len:     q.count,
		Cap:     len(q.ring),
		Pushed:  q.pushed,
		Popped:  q.popped,
		Dropped: q.dropped,
		Grows:   q.grows,
	}
}

// popLocked removes the head item. Caller holds mu and count > 0.
func (q *Queue[T]) popLocked() T {
	var zero T
	item := q.ring[q.head]
	q.ring[q.head] = zero
	q.head = (q.head + 1) % len(q.ring)
	q.count--
	q.popped++
	return item
}

// grow doubles the ring, bounded by limit. Caller holds mu.
func (q *Queue[T]) grow() {
	size := len(q.ring) * 2
	if q.limit > 0 && size > q.limit {
		size = q.limit
	}
	if size <= len(q.ring) {
		return
	}

	ring := make([]T, size)
	for i := 0; i < q.count; i++ {
		ring[i] = q.ring[(q.head+i)%len(q.ring)]
	}

	q.ring = ring
	q.head = 0
	q.grows++
}

func (q *Queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
