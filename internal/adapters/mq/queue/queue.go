// Package queue buffers alert batches between the producers that detect
// alert conditions and the delivery workers that persist them.
//
// The MVP is an in-memory bounded queue; the interface leaves room for a
// broker-backed implementation later.
package queue

import (
	"context"
	"sync"

	"github.com/meridianhq/pulse/internal/domain/model"
	"github.com/meridianhq/pulse/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 1024
	defaultBufferSize    = 1024
)

// Batch is the unit flowing through the queue: the fan-out of one alert
// condition to all of its recipients, delivered atomically.
type Batch = []model.Alert

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a batch to the queue.
	// Returns false if the queue is full and the batch was not enqueued.
	Enqueue(ctx context.Context, b Batch) bool

	// Dequeue returns a channel that will receive batches as they become
	// available. The channel is closed when the queue is closed.
	Dequeue(ctx context.Context) <-chan Batch

	// Len returns the current number of queued batches.
	Len(ctx context.Context) int

	// Close gracefully shuts down the queue. After closing, no new batches
	// can be enqueued and the dequeue channel is closed.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	batches    chan Batch
	capacity   int
	bufferSize int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity:   defaultQueueCapacity,
		bufferSize: defaultBufferSize,
	}

	for _, opt := range opts {
		opt(q)
	}

	q.batches = make(chan Batch, q.bufferSize)

	metrics.UpdateAlertQueueCapacity(q.capacity)
	metrics.UpdateAlertQueueSize(0)

	return q
}

// Enqueue adds a batch to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, b Batch) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordAlertEnqueueError()
		return false
	}

	if len(q.batches) >= q.capacity {
		metrics.RecordAlertEnqueueError()
		return false
	}

	select {
	case q.batches <- b:
		metrics.RecordAlertEnqueue()
		metrics.UpdateAlertQueueSize(len(q.batches))
		return true
	case <-ctx.Done():
		metrics.RecordAlertEnqueueError()
		return false
	default:
		metrics.RecordAlertEnqueueError()
		return false // queue is full
	}
}

// Dequeue returns a channel that will receive batches as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Batch {
	out := make(chan Batch)
	go func() {
		defer close(out)
		for b := range q.batches {
			select {
			case out <- b:
				metrics.UpdateAlertQueueSize(len(q.batches))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued batches.
func (q *InMemoryQueue) Len(ctx context.Context) int {
	size := len(q.batches)
	metrics.UpdateAlertQueueSize(size)
	return size
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil // already closed
	}

	close(q.batches)
	q.closed = true

	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
