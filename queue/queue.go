// Package queue provides a bounded, concurrency-safe FIFO used to stream
// messages from a task's drive loop to an external observer without
// blocking the loop itself on a slow consumer.
package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Put when the queue has already been closed.
var ErrClosed = errors.New("queue: closed")

// Queue is a single-producer, single-or-multi-consumer bounded FIFO. Put
// blocks when the queue is at capacity (backpressure); Get blocks when the
// queue is empty. Both respect context cancellation.
//
// A send on a full channel blocks until a receiver frees space, or the
// context is cancelled. Queue carries no priority heap or deterministic
// ordering key — callers require only that Put order is preserved, which a
// plain channel already guarantees.
type Queue[T any] struct {
	ch chan T

	mu     sync.Mutex
	closed bool
}

// New constructs a Queue with the given buffered capacity. capacity<=0
// behaves as an unbuffered (synchronous-handoff) queue.
func New[T any](capacity int) *Queue[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue[T]{ch: make(chan T, capacity)}
}

// Put enqueues item, blocking if the queue is full until space frees up or
// ctx is cancelled. It returns ErrClosed if the queue is already closed when
// Put is called; a Put already blocked is not woken by Close. The caller must be the queue's
// sole producer; Put and Close are not safe to call concurrently with each
// other from different producers.
func (q *Queue[T]) Put(ctx context.Context, item T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- item:
		return nil
	}
}

// Get dequeues the next item, blocking until one is available, ctx is
// cancelled, or the queue is closed with nothing left buffered.
//
// ok is false when the queue is closed and drained; callers should stop
// consuming in that case rather than treating it as an error.
func (q *Queue[T]) Get(ctx context.Context) (item T, ok bool, err error) {
	select {
	case <-ctx.Done():
		return item, false, ctx.Err()
	case v, open := <-q.ch:
		if !open {
			return item, false, nil
		}
		return v, true, nil
	}
}

// Close signals that no more items will be put and unblocks any pending or
// future Get once the channel drains. Close is idempotent but must only be
// called by the producer, after its last Put.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}
