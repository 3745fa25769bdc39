// Package memory provides queue implementations for in-process fan-out.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned by Enqueue after Close, and by Dequeue once the
// queue is closed and fully drained.
var ErrClosed = errors.New("queue closed")

// Queue is an unbounded multi-producer, multi-consumer FIFO queue.
// Enqueue never blocks; Dequeue blocks until an item arrives, the queue is
// closed and drained, or the context ends.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	head   int
	closed bool
	// ready is closed and replaced whenever the queue state changes so that
	// blocked consumers re-check it.
	ready chan struct{}
}

// NewQueue constructs an empty queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{
		ready: make(chan struct{}),
	}
}

// Enqueue appends an item to the queue. It fails with ErrClosed once the
// queue has been closed.
func (q *Queue[T]) Enqueue(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.items = append(q.items, item)
	q.broadcastLocked()
	return nil
}

// Dequeue pops the next item, respecting context cancellation.
func (q *Queue[T]) Dequeue(ctx context.Context) (T, error) {
	var zero T
	for {
		q.mu.Lock()
		if q.head < len(q.items) {
			item := q.items[q.head]
			q.items[q.head] = zero
			q.head++
			q.compactLocked()
			q.mu.Unlock()
			return item, nil
		}
		if q.closed {
			q.mu.Unlock()
			return zero, ErrClosed
		}
		ready := q.ready
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("dequeue canceled: %w", ctx.Err())
		case <-ready:
		}
	}
}

// Len reports the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Close stops accepting new items. Items already queued remain available to
// Dequeue. Closing twice is safe.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.broadcastLocked()
}

func (q *Queue[T]) broadcastLocked() {
	close(q.ready)
	q.ready = make(chan struct{})
}

// compactLocked reclaims the consumed prefix once it dominates the slice.
func (q *Queue[T]) compactLocked() {
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
		return
	}
	if q.head > 64 && q.head*2 > len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
}
