// Package bus provides the bounded queues between pipeline stages. A full
// queue stalls its producer; backpressure is the contract, not a failure.
package bus

import (
	"context"
	"sync"

	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/errors"
)

var (
	ErrQueueFull   = errors.New("queue full")
	ErrQueueClosed = errors.New("queue closed")
)

// Queue is a bounded hand-off between one pipeline stage and the next.
// Publishers hold a read lock across the closed check and the send, so a
// concurrent Close can never close the channel out from under a sender.
type Queue[T any] struct {
	ch     chan T
	mu     sync.RWMutex
	closed bool
}

// NewQueue allocates a queue with the given capacity.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue[T]{ch: make(chan T, capacity)}
}

// Publish enqueues an item, blocking while the queue is full. This is the
// backpressure path: a slow consumer stalls its producer.
func (q *Queue[T]) Publish(ctx context.Context, item T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPublish enqueues an item without blocking.
func (q *Queue[T]) TryPublish(item T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- item:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops the queue from accepting new items. It waits for in-flight
// publishers before closing the channel.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

// Run consumes items until the context is done or the queue is closed and
// drained.
func (q *Queue[T]) Run(ctx context.Context, handler func(T)) {
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-q.ch:
			if !ok {
				return
			}
			handler(item)
		}
	}
}

// Drain consumes remaining items after Close without a context, so a
// shutdown can finish in-flight work.
func (q *Queue[T]) Drain(handler func(T)) {
	for item := range q.ch {
		handler(item)
	}
}
