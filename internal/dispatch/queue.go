package dispatch

import "sync"

const defaultQueueSize = 256

// Queue is the shared completion queue of a session. Posts may come from
// any goroutine; Next is called by the dispatcher only.
type Queue struct {
	mu     sync.RWMutex
	closed bool
	events chan Completion
}

// NewQueue creates an open queue. size <= 0 selects a default buffer.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Queue{events: make(chan Completion, size)}
}

// Post enqueues a completion. It returns false once the queue is shut down,
// in which case the completion is dropped.
func (q *Queue) Post(tag Tag, ok bool) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	q.events <- Completion{Tag: tag, OK: ok}
	return true
}

// Next blocks until a completion is available. After Shutdown it keeps
// returning the completions that were already queued, then reports false.
func (q *Queue) Next() (Completion, bool) {
	c, ok := <-q.events
	return c, ok
}

// Shutdown stops accepting posts. Idempotent.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.events)
}

// IsShutdown reports whether Shutdown was called.
func (q *Queue) IsShutdown() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
