package workerpool

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Policy decides what Submit does when the job queue is full.
type Policy int

const (
	// Block makes Submit wait for a free slot in the queue.
	Block Policy = iota
	// Reject makes Submit fail fast with ErrQueueFull.
	Reject
)

var (
	// ErrQueueFull is returned by Submit under the Reject policy.
	ErrQueueFull = errors.New("worker pool: queue full")

	// ErrPoolClosed is returned by Submit after Shutdown has started.
	ErrPoolClosed = errors.New("worker pool: closed")

	// ErrShutdownTimeout is returned by Shutdown when the grace period ran
	// out and the remaining tasks were cancelled.
	ErrShutdownTimeout = errors.New("worker pool: shutdown grace period exceeded")
)

// ParsePolicy maps a config value to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "block":
		return Block, nil
	case "reject":
		return Reject, nil
	default:
		return Block, errors.New("worker pool: unknown backpressure policy " + s)
	}
}

// Job represents a task to be executed by a worker.
type Job struct {
	Task func(ctx context.Context)
}

// WorkerPool manages a fixed number of workers fed from a bounded queue.
type WorkerPool struct {
	workers   int
	policy    Policy
	jobQueue  chan Job
	waitGroup sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	// closing is closed when Shutdown starts so blocked submitters give up.
	// jobQueue is closed only after every submitter has left.
	closing    chan struct{}
	submitters sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// New creates a WorkerPool with the given number of workers and queue size.
func New(workers, queueSize int, policy Policy) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	pool := &WorkerPool{
		workers:  workers,
		policy:   policy,
		jobQueue: make(chan Job, queueSize),
		ctx:      ctx,
		cancel:   cancel,
		closing:  make(chan struct{}),
	}

	pool.waitGroup.Add(workers)
	for i := 0; i < workers; i++ {
		go pool.worker()
	}

	return pool
}

// worker processes jobs from the jobQueue. Jobs still queued after a
// forced shutdown are discarded.
func (wp *WorkerPool) worker() {
	defer wp.waitGroup.Done()
	for job := range wp.jobQueue {
		if wp.ctx.Err() != nil {
			continue
		}
		job.Task(wp.ctx)
	}
}

// Submit adds a new job to the worker pool. Under the Block policy it waits
// for a free slot until Shutdown starts, then fails with ErrPoolClosed.
func (wp *WorkerPool) Submit(task func(ctx context.Context)) error {
	return wp.submit(task, wp.policy)
}

// TrySubmit adds a job only if the queue has room, whatever the policy.
func (wp *WorkerPool) TrySubmit(task func(ctx context.Context)) error {
	return wp.submit(task, Reject)
}

func (wp *WorkerPool) submit(task func(ctx context.Context), policy Policy) error {
	wp.mu.RLock()
	if wp.closed {
		wp.mu.RUnlock()
		return ErrPoolClosed
	}
	wp.submitters.Add(1)
	wp.mu.RUnlock()
	defer wp.submitters.Done()

	job := Job{Task: task}
	if policy == Reject {
		select {
		case wp.jobQueue <- job:
			return nil
		default:
			return ErrQueueFull
		}
	}

	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.closing:
		return ErrPoolClosed
	}
}

// Workers returns the number of workers in the pool.
func (wp *WorkerPool) Workers() int {
	return wp.workers
}

// Shutdown stops accepting jobs and waits up to grace for the queued and
// running ones to finish. After that it cancels the context handed to
// every task and returns ErrShutdownTimeout without waiting further.
func (wp *WorkerPool) Shutdown(grace time.Duration) error {
	wp.mu.Lock()
	if wp.closed {
		wp.mu.Unlock()
		return nil
	}
	wp.closed = true
	close(wp.closing)
	wp.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wp.submitters.Wait()
		close(wp.jobQueue)
		wp.waitGroup.Wait()
		close(done)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-done:
		wp.cancel()
		return nil
	case <-timer.C:
		wp.cancel()
		return ErrShutdownTimeout
	}
}
