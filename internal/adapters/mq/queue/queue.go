// Package queue is the inbound command queue between the HTTP surface (or the
// reconciler) and the dispatch workers.
//
// The queue only carries references to commands that are already persisted,
// so a delivery lost on shutdown or refused under backpressure is picked up
// again by the reconciler.
package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/tictac/internal/domain/model"
	"github.com/okian/tictac/pkg/metrics"
)

const defaultQueueCapacity = 50_000

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a delivery without blocking. It fails with ErrFull or
	// ErrClosed.
	Enqueue(ctx context.Context, d model.Delivery) error

	// Dequeue returns the channel workers receive deliveries from. The
	// channel is closed by Close.
	Dequeue(ctx context.Context) <-chan model.Delivery

	// Len returns the current number of queued deliveries.
	Len(ctx context.Context) int

	// Cap returns the queue capacity.
	Cap() int

	// Close stops accepting deliveries.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	deliveries chan model.Delivery
	capacity   int

	mu     sync.RWMutex
	closed bool
}

var _ Queue = (*InMemoryQueue)(nil)

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.deliveries = make(chan model.Delivery, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0.0)
	return q
}

// Enqueue adds a delivery to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, d model.Delivery) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return fmt.Errorf("enqueue %s: %w", d.Key, err)
	}

	select {
	case q.deliveries <- d:
		metrics.RecordQueueEnqueue()
		q.publishSize()
		return nil
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return ErrFull
	}
}

// Dequeue returns the delivery channel.
func (q *InMemoryQueue) Dequeue(_ context.Context) <-chan model.Delivery {
	return q.deliveries
}

// Len returns the current number of queued deliveries.
func (q *InMemoryQueue) Len(_ context.Context) int {
	return q.publishSize()
}

// Cap returns the queue capacity.
func (q *InMemoryQueue) Cap() int { return q.capacity }

// Close stops accepting deliveries; queued ones can still be received.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.deliveries)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

func (q *InMemoryQueue) publishSize() int {
	size := len(q.deliveries)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
	return size
}
