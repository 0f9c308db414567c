// Package capture moves frames from a source.Source into the pipeline.
//
// A Loop reads the source at the nominal frame rate and pushes into a small
// drop-oldest Queue, so capture never waits on detection. Read failures are
// retried with exponential backoff, reopening the source each time.
package capture

import (
	"context"
	"errors"
	"sync"

	"github.com/MrWong99/sonoscope/pkg/types"
)

// Queue capacity bounds.
const (
	MinQueueCapacity = 1
	MaxQueueCapacity = 3
)

// ErrQueueClosed is returned by Pop after Close.
var ErrQueueClosed = errors.New("capture: queue closed")

// Queue is a bounded FIFO of frames that drops the oldest frame when full.
// It is safe for one producer and any number of consumers.
type Queue struct {
	mu      sync.Mutex
	frames  []types.Frame
	limit   int
	dropped uint64
	closed  bool
	notify  chan struct{}
}

// NewQueue returns a Queue whose capacity is clamped to [1,3].
func NewQueue(capacity int) *Queue {
	return &Queue{
		limit:  max(MinQueueCapacity, min(MaxQueueCapacity, capacity)),
		notify: make(chan struct{}, 1),
	}
}

// Cap returns the effective capacity.
func (q *Queue) Cap() int { return q.limit }

// Push appends f, evicting the oldest frame when the queue is full. It
// reports whether a frame was evicted. Pushing to a closed queue is a no-op.
func (q *Queue) Push(f types.Frame) (dropped bool) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	if len(q.frames) == q.limit {
		q.frames[0] = types.Frame{}
		q.frames = q.frames[1:]
		q.dropped++
		dropped = true
	}
	q.frames = append(q.frames, f)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return dropped
}

// Pop removes and returns the oldest frame, waiting until one is available,
// ctx is done or the queue is closed.
func (q *Queue) Pop(ctx context.Context) (types.Frame, error) {
	for {
		q.mu.Lock()
		if len(q.frames) > 0 {
			f := q.frames[0]
			q.frames[0] = types.Frame{}
			q.frames = q.frames[1:]
			more := len(q.frames) > 0
			q.mu.Unlock()
			if more {
				// Keep other consumers awake.
				select {
				case q.notify <- struct{}{}:
				default:
				}
			}
			return f, nil
		}
		if q.closed {
			q.mu.Unlock()
			select {
			case q.notify <- struct{}{}:
			default:
			}
			return types.Frame{}, ErrQueueClosed
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-ctx.Done():
			return types.Frame{}, ctx.Err()
		}
	}
}

// Flush discards every queued frame and returns how many were discarded.
func (q *Queue) Flush() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.frames)
	q.frames = nil
	return n
}

// Len returns the number of queued frames.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// Dropped returns the number of frames evicted since creation.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Close wakes blocked consumers. Queued frames can still be popped.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
