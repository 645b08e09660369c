// Package queue provides the unbounded, non-blocking FIFO used between the UI loop and the session engine.
// Neither side of a Queue ever blocks on the other.
package queue

import (
	"errors"
	"sync"
)

// ErrClosed is returned when pushing onto a Queue whose consumer has gone away.
var ErrClosed = errors.New("queue is closed")

// A Queue is a goroutine-safe, unbounded FIFO.
// The zero value is ready for use.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	head   int
	closed bool
}

// New returns an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Push appends v to the tail of the queue.
// Never blocks; fails only if the queue was closed.
func (q *Queue[T]) Push(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.items = append(q.items, v)
	return nil
}

// TryPop removes and returns the head of the queue.
// ok is false if the queue is empty.
// Items pushed before Close can still be popped after it.
func (q *Queue[T]) TryPop() (v T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head >= len(q.items) {
		return v, false
	}
	v = q.items[q.head]
	var zero T
	q.items[q.head] = zero
	q.head++
	// compact once the consumed prefix dominates the backing array
	if q.head > 32 && q.head*2 >= len(q.items) {
		q.items = append(q.items[:0], q.items[q.head:]...)
		q.head = 0
	}
	return v, true
}

// Drain pops every queued item, in order.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]T, len(q.items)-q.head)
	copy(out, q.items[q.head:])
	q.items, q.head = nil, 0
	return out
}

// Len returns the number of items waiting in the queue.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Close marks the queue as closed; subsequent Pushes fail with ErrClosed.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
