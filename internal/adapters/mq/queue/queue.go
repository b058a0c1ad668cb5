// Package queue defines the contract for enqueuing and consuming raw
// triggers on their way to the compensation workers.
package queue

import (
	"context"
	"sync"

	"github.com/Areo-RGB/sprintgates/internal/domain/model"
	"github.com/Areo-RGB/sprintgates/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultCapacity = 1024
)

// Trigger is the payload type flowing through the queue.
type Trigger = model.RawTrigger

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a trigger to the queue.
	// Returns false if the queue is full and the trigger was not enqueued.
	Enqueue(ctx context.Context, t Trigger) bool

	// Dequeue returns a channel that will receive triggers as they become
	// available. The channel is closed when the queue is closed.
	Dequeue(ctx context.Context) <-chan Trigger

	// Len returns the current number of queued triggers.
	Len(ctx context.Context) int

	// Close gracefully shuts down the queue.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// Option applies a configuration option to the InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity sets the maximum capacity of the queue.
func WithCapacity(capacity int) Option {
	return func(q *InMemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	triggers chan Trigger
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultCapacity,
	}

	for _, opt := range opts {
		opt(q)
	}

	q.triggers = make(chan Trigger, q.capacity)

	metrics.UpdateQueueDepth(0)

	return q
}

// Enqueue adds a trigger to the queue without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, t Trigger) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		return false
	}

	select {
	case q.triggers <- t:
		metrics.UpdateQueueDepth(len(q.triggers))
		return true
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError()
		return false
	default:
		metrics.RecordQueueEnqueueError()
		return false // queue is full
	}
}

// Dequeue returns a channel that will receive triggers as they become
// available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Trigger {
	out := make(chan Trigger)
	go func() {
		defer close(out)
		for t := range q.triggers {
			select {
			case out <- t:
				metrics.UpdateQueueDepth(len(q.triggers))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued triggers.
func (q *InMemoryQueue) Len(_ context.Context) int {
	return len(q.triggers)
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.triggers)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
