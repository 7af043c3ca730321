// Package pipeline contains the streaming export execution logic.
//
// It wires a sequential reader, a parallel transform pool and a sequential
// writer together through bounded queues:
//
//	Reader (1)  → Row Queue → Transformers (N) → Record Queue → Writer (1)
//
// Back-pressure is enforced by the queue capacity so that peak memory stays
// around O(2 * capacity) rows regardless of result-set size.
package pipeline

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueCompleted is returned by Put once Complete has been called.
var ErrQueueCompleted = errors.New("queue completed")

// Queue is a bounded FIFO hand-off buffer with a one-way completion signal.
//
// Put blocks while the queue is full and Take blocks while it is empty and not
// yet completed; both return early when ctx is done. After Complete, Take keeps
// returning buffered items until the queue is drained and then reports ok=false.
type Queue[T any] struct {
	items chan T

	mu        sync.RWMutex
	completed bool
	once      sync.Once
}

// NewQueue returns a queue holding at most capacity items. A capacity below 1
// is treated as 1.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{items: make(chan T, capacity)}
}

// Put appends v, waiting for free space when the queue is full.
func (q *Queue[T]) Put(ctx context.Context, v T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.completed {
		return ErrQueueCompleted
	}
	select {
	case q.items <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Take removes the oldest item. ok is false once the queue is completed and
// empty. A non-nil error means ctx was cancelled while waiting.
func (q *Queue[T]) Take(ctx context.Context) (v T, ok bool, err error) {
	select {
	case v, ok = <-q.items:
		return v, ok, nil
	case <-ctx.Done():
		return v, false, ctx.Err()
	}
}

// Complete marks the queue as finished. It is safe to call more than once;
// only the first call has an effect. Callers must not have a Put in flight.
func (q *Queue[T]) Complete() {
	q.once.Do(func() {
		q.mu.Lock()
		q.completed = true
		close(q.items)
		q.mu.Unlock()
	})
}

// Completed reports whether Complete has been called.
func (q *Queue[T]) Completed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.completed
}

// Len returns the number of buffered items.
func (q *Queue[T]) Len() int { return len(q.items) }

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int { return cap(q.items) }
