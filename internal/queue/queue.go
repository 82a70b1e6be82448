// Package queue provides serial execution contexts.
//
// A Queue runs submitted functions one at a time, in submission order, on a
// single worker goroutine. State owned by a queue is only touched from tasks
// running on it, so no further locking is needed for that state.
package queue

import (
	"sync"
	"time"
)

// Queue is a serial FIFO executor backed by one goroutine.
type Queue struct {
	name    string
	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
	closed  bool
	done    chan struct{}
}

// New creates a queue and starts its worker.
func New(name string) *Queue {
	q := &Queue{
		name: name,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

// Name returns the queue label.
func (q *Queue) Name() string {
	return q.name
}

// Async enqueues fn and returns immediately.
// Tasks submitted after Close are dropped.
func (q *Queue) Async(fn func()) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, fn)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Sync enqueues fn and blocks until it has run.
// It must not be called from a task running on the same queue.
// Returns false if the queue was closed and fn did not run.
func (q *Queue) Sync(fn func()) bool {
	ran := make(chan struct{})
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.pending = append(q.pending, func() {
		defer close(ran)
		fn()
	})
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}

	select {
	case <-ran:
		return true
	case <-q.done:
		// Close drains pending tasks before done closes, so ran is already closed.
		select {
		case <-ran:
			return true
		default:
			return false
		}
	}
}

// Timer is a delayed task scheduled with AsyncAfter.
type Timer struct {
	t *time.Timer
}

// Cancel stops the timer. It reports whether the task was prevented from
// being enqueued. A task that already reached the queue still runs.
func (t *Timer) Cancel() bool {
	if t == nil || t.t == nil {
		return false
	}
	return t.t.Stop()
}

// AsyncAfter enqueues fn once d has elapsed.
func (q *Queue) AsyncAfter(d time.Duration, fn func()) *Timer {
	return &Timer{t: time.AfterFunc(d, func() { q.Async(fn) })}
}

// Close stops accepting tasks, runs what is already queued and waits for
// the worker to exit. Safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	<-q.done
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			if q.closed {
				q.mu.Unlock()
				return
			}
			q.mu.Unlock()
			<-q.wake
			continue
		}
		fn := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()

		fn()
	}
}
