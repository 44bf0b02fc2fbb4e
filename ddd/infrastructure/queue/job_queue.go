// Package queue implements the Job Registry's FIFO dispatch queue.
package queue

import (
	"context"
	"sync"

	"clipforge/pkg/errno"
)

// JobQueue is a bounded, FIFO, in-memory dispatch queue of job ids,
// grounded on the teacher's MemoryTaskQueue: a buffered channel guards
// ordering and backpressure, with a mutex only protecting the closed flag.
type JobQueue struct {
	ch     chan string
	mu     sync.RWMutex
	closed bool
}

// New creates a JobQueue with capacity MAX_QUEUE_DEPTH.
func New(capacity int) *JobQueue {
	if capacity <= 0 {
		capacity = 32
	}
	return &JobQueue{ch: make(chan string, capacity)}
}

// Enqueue appends jobID, or returns errno.ErrQueueFull if the queue is at
// MAX_QUEUE_DEPTH (spec.md §4.6 backpressure).
func (q *JobQueue) Enqueue(jobID string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return errno.New(errno.KindInternalError, "job queue is closed")
	}
	select {
	case q.ch <- jobID:
		return nil
	default:
		return errno.ErrQueueFull
	}
}

// Dequeue blocks until a job id is available or ctx is done.
func (q *JobQueue) Dequeue(ctx context.Context) (string, error) {
	select {
	case jobID, ok := <-q.ch:
		if !ok {
			return "", errno.New(errno.KindInternalError, "job queue is closed")
		}
		return jobID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Len reports the number of queued-but-undispatched jobs.
func (q *JobQueue) Len() int {
	return len(q.ch)
}

// Close closes the queue; subsequent Enqueue calls fail and Dequeue drains
// remaining entries before reporting closure.
func (q *JobQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}
