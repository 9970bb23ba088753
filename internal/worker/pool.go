package worker

import (
	"context"
	"errors"
	"sync"
)

// ErrPoolClosed is returned when submitting to a pool that has been shut down or drained
var ErrPoolClosed = errors.New("worker pool closed")

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context)
}

// JobFunc adapts a function to the Job interface
type JobFunc func(ctx context.Context)

// Execute calls f(ctx)
func (f JobFunc) Execute(ctx context.Context) {
	f(ctx)
}

// Pool manages a long-lived set of workers consuming a job queue
type Pool struct {
	workers    int
	jobQueue   chan Job
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// NewPool creates a new worker pool with the specified number of workers.
// queueSize bounds pending jobs; Submit blocks when the queue is full.
func NewPool(workers int, queueSize int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers * 2
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		workers:    workers,
		jobQueue:   make(chan Job, queueSize),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start starts the worker pool
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// worker is the worker goroutine that processes jobs
func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			job.Execute(p.ctx)
		}
	}
}

// Submit queues a job, blocking while the queue is full
func (p *Pool) Submit(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrPoolClosed
	case p.jobQueue <- job:
		return nil
	}
}

// Drain stops accepting jobs and waits for queued jobs to finish
func (p *Pool) Drain() {
	if p.markClosed() {
		close(p.jobQueue)
	}
	p.wg.Wait()
}

// Shutdown cancels running jobs and returns once all workers exit
func (p *Pool) Shutdown() {
	p.cancelFunc()
	p.markClosed()
	p.wg.Wait()
}

// markClosed flips the closed flag, reporting whether this call did so
func (p *Pool) markClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.closed = true
	return true
}
