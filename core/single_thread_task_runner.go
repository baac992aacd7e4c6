package core

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// SingleThreadTaskRunner binds a dedicated Goroutine to execute tasks sequentially.
// It guarantees that all tasks submitted to it run on the same Goroutine (Thread Affinity),
// which makes it the default consumer thread for BackgroundTask notifications.
//
// Use cases:
// 1. Simulating Main Thread / UI Thread behavior
// 2. Owning state that must only be touched from one goroutine
// 3. Receiving coalesced chunk and progress deliveries
//
// Posting never blocks: tasks wait in an unbounded FIFO queue.
type SingleThreadTaskRunner struct {
	queue  *TaskQueue
	signal chan struct{}

	// Lifecycle control
	ctx    context.Context
	cancel context.CancelFunc

	// For graceful shutdown
	stopped      chan struct{}
	once         sync.Once
	closed       atomic.Bool
	shutdownChan chan struct{}
	shutdownOnce sync.Once

	executed   atomic.Int64
	lastTaskAt atomic.Int64

	name   string
	logger Logger
	mu     sync.Mutex
}

// NewSingleThreadTaskRunner creates and starts a new SingleThreadTaskRunner.
// It immediately spawns a dedicated goroutine for task execution.
func NewSingleThreadTaskRunner() *SingleThreadTaskRunner {
	ctx, cancel := context.WithCancel(context.Background())
	r := &SingleThreadTaskRunner{
		queue:        NewTaskQueue(),
		signal:       make(chan struct{}, 1),
		ctx:          ctx,
		cancel:       cancel,
		stopped:      make(chan struct{}),
		shutdownChan: make(chan struct{}),
		name:         "consumer",
		logger:       NewNoOpLogger(),
	}

	// Start the dedicated message loop
	go r.runLoop()

	return r
}

// Name returns the name of the task runner
func (r *SingleThreadTaskRunner) Name() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.name
}

// SetName sets the name of the task runner
func (r *SingleThreadTaskRunner) SetName(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.name = name
}

// SetLogger sets the logger used to report task panics.
func (r *SingleThreadTaskRunner) SetLogger(logger Logger) {
	if logger == nil {
		logger = NewNoOpLogger()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

func (r *SingleThreadTaskRunner) getLogger() Logger {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logger
}

// PostTask submits a task for execution
func (r *SingleThreadTaskRunner) PostTask(task Task) {
	// Check if runner is closed to avoid queueing work nobody will run
	if r.closed.Load() {
		return
	}

	r.queue.Push(task)
	select {
	case r.signal <- struct{}{}:
	default:
		// A wakeup is already pending; the loop drains the whole queue
	}
}

// PostDelayedTask submits a delayed task.
// Uses time.AfterFunc which is independent of any pool,
// ensuring consumer timers are not affected by pool load.
func (r *SingleThreadTaskRunner) PostDelayedTask(task Task, delay time.Duration) {
	if r.closed.Load() {
		return
	}
	if delay <= 0 {
		r.PostTask(task)
		return
	}

	// time.AfterFunc spawns a new goroutine when the timer fires,
	// we use PostTask to inject the task back into our main loop
	time.AfterFunc(delay, func() {
		r.PostTask(task)
	})
}

// BelongsToCurrentThread reports whether ctx is the context this runner
// passes to its own tasks.
func (r *SingleThreadTaskRunner) BelongsToCurrentThread(ctx context.Context) bool {
	current, ok := GetCurrentTaskRunner(ctx).(*SingleThreadTaskRunner)
	return ok && current == r
}

// Shutdown marks the runner as closed and signals shutdown waiters.
// Unlike Stop(), this method does NOT wait for the runLoop to exit.
// This allows tasks to call Shutdown() from within themselves.
//
// After calling Shutdown():
// - WaitShutdown() will return
// - IsClosed() will return true
// - New tasks posted will be ignored
func (r *SingleThreadTaskRunner) Shutdown() {
	r.shutdownOnce.Do(func() {
		r.closed.Store(true)
		r.cancel()
		close(r.shutdownChan)
	})
}

// IsClosed returns true if the runner has been stopped
func (r *SingleThreadTaskRunner) IsClosed() bool {
	return r.closed.Load()
}

// Stop stops the runner and releases resources
func (r *SingleThreadTaskRunner) Stop() {
	r.once.Do(func() {
		r.Shutdown()

		// Wait for runLoop to finish (ensures current task completes)
		<-r.stopped
		r.queue.Clear()
	})
}

// Stats returns a snapshot of the runner state.
func (r *SingleThreadTaskRunner) Stats() RunnerStats {
	var last time.Time
	if ns := r.lastTaskAt.Load(); ns != 0 {
		last = time.Unix(0, ns)
	}
	return RunnerStats{
		Name:       r.Name(),
		Type:       "single_thread",
		Pending:    r.queue.Len(),
		Executed:   r.executed.Load(),
		Closed:     r.IsClosed(),
		LastTaskAt: last,
	}
}

// runLoop is the core of this runner, it occupies a dedicated goroutine
func (r *SingleThreadTaskRunner) runLoop() {
	defer close(r.stopped) // Signal that Stop() can return

	// Create context with taskRunnerKey for GetCurrentTaskRunner
	runCtx := WithTaskRunner(r.ctx, r)

	for {
		for {
			if r.ctx.Err() != nil {
				return
			}
			task, ok := r.queue.Pop()
			if !ok {
				break
			}
			r.runTask(runCtx, task)
		}

		select {
		case <-r.signal:
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *SingleThreadTaskRunner) runTask(ctx context.Context, task Task) {
	defer func() {
		r.executed.Add(1)
		r.lastTaskAt.Store(time.Now().UnixNano())
		if rec := recover(); rec != nil {
			r.getLogger().Error("consumer task panicked",
				F("runner", r.Name()),
				F("panic", rec),
				F("stack", string(debug.Stack())),
			)
		}
	}()
	task(ctx)
}

// =============================================================================
// Synchronization Methods
// =============================================================================

// WaitIdle blocks until all currently queued tasks have completed execution.
// This is implemented by posting a barrier task and waiting for it to execute.
//
// Returns error if:
// - Context is cancelled or deadline exceeded
// - Runner is closed when WaitIdle is called
//
// Note: Tasks posted after WaitIdle is called are not waited for, and neither
// are delayed tasks whose timer has not fired yet.
func (r *SingleThreadTaskRunner) WaitIdle(ctx context.Context) error {
	if r.IsClosed() {
		return fmt.Errorf("runner is closed")
	}

	done := make(chan struct{})
	r.FlushAsync(func() { close(done) })

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FlushAsync posts a barrier task that executes the callback when all prior tasks complete.
// This is a non-blocking alternative to WaitIdle.
func (r *SingleThreadTaskRunner) FlushAsync(callback func()) {
	r.PostTask(func(ctx context.Context) {
		callback()
	})
}

// WaitShutdown blocks until Shutdown() is called on this runner.
//
// Returns error if context is cancelled or deadline exceeded.
func (r *SingleThreadTaskRunner) WaitShutdown(ctx context.Context) error {
	select {
	case <-r.shutdownChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
