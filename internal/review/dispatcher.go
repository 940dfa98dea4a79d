package review

import (
	"context"
	"sync"
)

// Operations dispatched to the progress store
const (
	OpRecordAttempt    = "record attempt"
	OpSetGroupProgress = "set group progress"
)

// Job is one deferred progress write
type Job struct {
	Op     string
	UserID int64
	Run    func(ctx context.Context) error
}

// Dispatcher executes progress writes, either inline or on a single
// background worker that applies them in dispatch order.
type Dispatcher struct {
	async   bool
	jobs    chan Job
	onError func(Job, error)
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewSyncDispatcher returns a dispatcher that runs each job in the caller's goroutine
func NewSyncDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// NewAsyncDispatcher starts a worker draining a queue of the given size.
// Failed jobs are reported to onError; they are not retried.
func NewAsyncDispatcher(buffer int, onError func(Job, error)) *Dispatcher {
	if buffer < 1 {
		buffer = 1
	}
	d := &Dispatcher{
		async:   true,
		jobs:    make(chan Job, buffer),
		onError: onError,
		done:    make(chan struct{}),
	}
	go d.work()
	return d
}

// Async reports whether jobs run on the background worker
func (d *Dispatcher) Async() bool {
	return d.async
}

// Dispatch runs or enqueues a job. In sync mode the job's error is
// returned as a *PersistenceError; in async mode only enqueue failures are.
func (d *Dispatcher) Dispatch(ctx context.Context, job Job) error {
	if !d.async {
		if err := job.Run(ctx); err != nil {
			return &PersistenceError{Op: job.Op, UserID: job.UserID, Err: err}
		}
		return nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return &PersistenceError{Op: job.Op, UserID: job.UserID, Err: ErrDispatcherClosed}
	}

	select {
	case d.jobs <- job:
		return nil
	case <-ctx.Done():
		return &PersistenceError{Op: job.Op, UserID: job.UserID, Err: ctx.Err()}
	}
}

func (d *Dispatcher) work() {
	defer close(d.done)
	for job := range d.jobs {
		// Writes are not tied to the request that produced them.
		if err := job.Run(context.Background()); err != nil && d.onError != nil {
			d.onError(job, &PersistenceError{Op: job.Op, UserID: job.UserID, Err: err})
		}
	}
}

// Close stops accepting jobs and waits until the queue is drained or ctx ends
func (d *Dispatcher) Close(ctx context.Context) error {
	if !d.async {
		return nil
	}

	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
