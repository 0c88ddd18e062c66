// Package queue provides an unbounded FIFO queue with a non-blocking Push and
// a context-aware blocking Pop.
package queue

import (
	"context"
	"sync"
)

// Queue is safe for any number of producers and consumers.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	ready chan struct{} // closed and replaced whenever items become available
}

// New creates an empty queue
func New[T any]() *Queue[T] {
	return &Queue[T]{
		ready: make(chan struct{}),
	}
}

// Push appends v to the tail of the queue. It never blocks.
func (q *Queue[T]) Push(v T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, v)
	close(q.ready)
	q.ready = make(chan struct{})
}

// Pop removes and returns the head of the queue, waiting until an item is
// pushed or ctx is done.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v := q.items[0]
			var zero T
			q.items[0] = zero
			q.items = q.items[1:]
			q.mu.Unlock()
			return v, nil
		}
		ready := q.ready
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-ready:
		}
	}
}

// Len returns the number of queued items
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
