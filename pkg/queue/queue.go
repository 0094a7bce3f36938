package queue

import (
	"context"
	"time"
)

// Queue is a bounded FIFO shared between pipeline stages.
//
// Producers never block: TryPush rejects the incoming item when the queue is
// full (drop-newest), which is the backpressure signal the caller is expected
// to count. Consumers block on Pop with a timeout that doubles as their
// cooperative cancellation check interval.
type Queue[T any] struct {
	ch chan T
}

func New[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue[T]{ch: make(chan T, capacity)}
}

// TryPush enqueues item and reports whether it was accepted.
func (q *Queue[T]) TryPush(item T) bool {
	select {
	case q.ch <- item:
		return true
	default:
		return false
	}
}

// Pop waits up to timeout for an item. The second return is false on
// timeout or context cancellation; callers loop and re-check their stop
// condition.
func (q *Queue[T]) Pop(ctx context.Context, timeout time.Duration) (T, bool) {
	var zero T
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case item := <-q.ch:
		return item, true
	case <-timer.C:
		return zero, false
	case <-ctx.Done():
		return zero, false
	}
}

// TryPop is the non-blocking variant, used when draining after shutdown.
func (q *Queue[T]) TryPop() (T, bool) {
	var zero T
	select {
	case item := <-q.ch:
		return item, true
	default:
		return zero, false
	}
}

func (q *Queue[T]) Len() int {
	return len(q.ch)
}

func (q *Queue[T]) Cap() int {
	return cap(q.ch)
}
