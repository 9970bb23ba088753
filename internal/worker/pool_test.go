package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// mockJob implements Job
type mockJob struct {
	duration time.Duration
	executed *int32 // atomic counter
	canceled *int32
}

func (j *mockJob) Execute(ctx context.Context) {
	if j.duration > 0 {
		select {
		case <-time.After(j.duration):
		case <-ctx.Done():
			if j.canceled != nil {
				atomic.AddInt32(j.canceled, 1)
			}
			return
		}
	}
	if j.executed != nil {
		atomic.AddInt32(j.executed, 1)
	}
}

func TestNewPool(t *testing.T) {
	p1 := NewPool(5, 0)
	if p1.workers != 5 {
		t.Errorf("expected 5 workers, got %d", p1.workers)
	}
	if cap(p1.jobQueue) != 10 {
		t.Errorf("expected default queue of 10, got %d", cap(p1.jobQueue))
	}

	p2 := NewPool(0, 3)
	if p2.workers != 1 {
		t.Errorf("expected default 1 worker for 0 input, got %d", p2.workers)
	}

	p3 := NewPool(-1, 0)
	if p3.workers != 1 {
		t.Errorf("expected default 1 worker for negative input, got %d", p3.workers)
	}
}

func TestPool_Execution(t *testing.T) {
	pool := NewPool(2, 4)
	pool.Start()

	var executed int32
	count := 10

	for i := 0; i < count; i++ {
		if err := pool.Submit(context.Background(), &mockJob{executed: &executed}); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}

	pool.Drain()

	if atomic.LoadInt32(&executed) != int32(count) {
		t.Errorf("expected %d executed jobs, got %d", count, executed)
	}
}

func TestPool_SingleWorkerSerializes(t *testing.T) {
	pool := NewPool(1, 8)
	pool.Start()

	var mu sync.Mutex
	var order []int
	var current, maxConcurrent int32

	for i := 0; i < 5; i++ {
		i := i
		_ = pool.Submit(context.Background(), JobFunc(func(ctx context.Context) {
			curr := atomic.AddInt32(&current, 1)
			if curr > atomic.LoadInt32(&maxConcurrent) {
				atomic.StoreInt32(&maxConcurrent, curr)
			}
			time.Sleep(2 * time.Millisecond)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			atomic.AddInt32(&current, -1)
		}))
	}

	pool.Drain()

	if maxConcurrent != 1 {
		t.Errorf("expected serial execution, max concurrency %d", maxConcurrent)
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("expected FIFO order, got %v", order)
		}
	}
}

func TestPool_SubmitAfterShutdown(t *testing.T) {
	pool := NewPool(2, 0)
	pool.Start()
	pool.Shutdown()

	// Submit after shutdown should not panic or block
	done := make(chan error, 1)
	go func() {
		done <- pool.Submit(context.Background(), &mockJob{})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, ErrPoolClosed) {
			t.Errorf("expected ErrPoolClosed, got %v", err)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Submit after shutdown blocked")
	}
}

func TestPool_SubmitRespectsContext(t *testing.T) {
	pool := NewPool(1, 1)
	// Not started: the queue fills and the next Submit must honour ctx
	_ = pool.Submit(context.Background(), &mockJob{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := pool.Submit(ctx, &mockJob{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	pool.Shutdown()
}

func TestPool_ShutdownCancelsRunningJobs(t *testing.T) {
	pool := NewPool(1, 0)
	pool.Start()

	var canceled int32
	started := make(chan struct{})
	_ = pool.Submit(context.Background(), JobFunc(func(ctx context.Context) {
		close(started)
		(&mockJob{duration: time.Second, canceled: &canceled}).Execute(ctx)
	}))

	<-started

	done := make(chan struct{})
	go func() {
		pool.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Shutdown timed out")
	}

	if atomic.LoadInt32(&canceled) != 1 {
		t.Errorf("expected running job to observe cancellation")
	}
}
