// Package queue provides the unbounded, closable FIFO that hands discovered
// files from crawlers to index workers.
//
// Termination is signalled by closing the queue rather than by a separate
// "producers done" flag: Pop reports ErrClosed only when the queue is closed
// and drained, and that decision is taken under the same lock that guards the
// items. Close wakes every blocked Pop in the same critical section, so there
// is no window in which a consumer can observe "open but empty", start
// waiting, and miss the close.
package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Pop once the queue is closed and empty, and by
// Push once the queue is closed.
var ErrClosed = errors.New("queue closed")

// Queue is safe for any number of concurrent producers and consumers. The
// zero value is not usable; call New.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	head   int
	closed bool
	// wake is closed and replaced whenever an item arrives or the queue is
	// closed, releasing every Pop currently waiting on it.
	wake chan struct{}
}

// New returns an empty, open queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		items: make([]T, 0, 64),
		wake:  make(chan struct{}),
	}
}

// Push appends item. It never blocks on consumers.
func (q *Queue[T]) Push(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.items = append(q.items, item)
	q.broadcast()
	return nil
}

// Pop removes and returns the oldest item, blocking while the queue is open
// and empty. It returns ErrClosed once the queue is closed and drained, and
// ctx.Err() if ctx is done before an item is available. A cancelled ctx is
// honoured even when items remain so that consumers stop promptly.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	var zero T
	for {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		q.mu.Lock()
		if item, ok := q.take(); ok {
			q.mu.Unlock()
			return item, nil
		}
		if q.closed {
			q.mu.Unlock()
			return zero, ErrClosed
		}
		wake := q.wake
		q.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// TryPop removes the oldest item without blocking. ok is false when the queue
// is currently empty.
func (q *Queue[T]) TryPop() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.take()
}

// Close marks the queue as receiving no further items and wakes all waiting
// consumers. Items already queued are still delivered. Close is idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.broadcast()
}

// IsEmpty reports whether the queue held no items at the instant of the call.
// The answer may be stale by the time the caller acts on it; it must not be
// used to decide termination.
func (q *Queue[T]) IsEmpty() bool {
	return q.Len() == 0
}

// Len returns a snapshot of the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// take must be called with mu held.
func (q *Queue[T]) take() (T, bool) {
	var zero T
	if q.head == len(q.items) {
		return zero, false
	}
	item := q.items[q.head]
	q.items[q.head] = zero
	q.head++
	// Compact once the consumed prefix dominates the backing array.
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 1024 && q.head*2 > len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return item, true
}

// broadcast must be called with mu held.
func (q *Queue[T]) broadcast() {
	close(q.wake)
	q.wake = make(chan struct{})
}
