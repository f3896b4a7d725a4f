// Package listqueue is a FIFO of JSON-encodable jobs with a dead-letter list,
// backed by process memory or by a pair of Redis lists.
package listqueue

import (
	"context"
	"sync"
)

// Queue is a FIFO of jobs plus a dead-letter list.
type Queue[T any] interface {
	Enqueue(ctx context.Context, job T) error
	// Dequeue pops the oldest job. ok is false when the queue is empty.
	Dequeue(ctx context.Context) (job T, ok bool, err error)
	DeadLetter(ctx context.Context, job T) error
}

// Memory is a process-local Queue.
type Memory[T any] struct {
	mu      sync.Mutex
	pending []T
	dead    []T
}

func NewMemory[T any]() *Memory[T] {
	return &Memory[T]{}
}

func (q *Memory[T]) Enqueue(_ context.Context, job T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, job)
	return nil
}

func (q *Memory[T]) Dequeue(_ context.Context) (T, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if len(q.pending) == 0 {
		return zero, false, nil
	}
	job := q.pending[0]
	q.pending[0] = zero
	q.pending = q.pending[1:]
	return job, true, nil
}

func (q *Memory[T]) DeadLetter(_ context.Context, job T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dead = append(q.dead, job)
	return nil
}

func (q *Memory[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Memory[T]) Dead() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]T(nil), q.dead...)
}
