// Package uiloop lets a bubbletea program act as the consumer thread of a
// bgworker Dispatcher.
//
// Tasks posted to a TeaRunner are queued and executed inside the program's
// Update, so BackgroundTask callbacks and listeners may mutate the model
// directly. The model forwards every message to Handle:
//
//	func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
//		if m.runner.Handle(msg) {
//			return m, nil
//		}
//		...
//	}
package uiloop

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Swind/go-bgworker/core"
	tea "github.com/charmbracelet/bubbletea"
)

// Sender delivers messages to a running program. *tea.Program implements it.
type Sender interface {
	Send(msg tea.Msg)
}

// drainMsg asks the Update loop to run queued tasks.
type drainMsg struct {
	runner *TeaRunner
}

// TeaRunner is a core.ConsumerThread backed by a bubbletea Update loop.
//
// PostTask never calls Sender.Send itself: Send blocks until the program
// reads the message, which would deadlock when posting from Update. A pump
// goroutine forwards one wakeup per non-empty queue instead.
type TeaRunner struct {
	queue  *core.TaskQueue
	signal chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	attachOnce sync.Once
	pumpDone   chan struct{}
	closed     atomic.Bool

	executed   atomic.Int64
	lastTaskAt atomic.Int64

	name   string
	logger core.Logger
}

var _ core.ConsumerThread = (*TeaRunner)(nil)

// NewTeaRunner creates a runner. Call Attach before tasks can run.
func NewTeaRunner(name string, logger core.Logger) *TeaRunner {
	if logger == nil {
		logger = core.NewNoOpLogger()
	}
	if name == "" {
		name = "tea"
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &TeaRunner{
		queue:    core.NewTaskQueue(),
		signal:   make(chan struct{}, 1),
		cancel:   cancel,
		pumpDone: make(chan struct{}),
		name:     name,
		logger:   logger,
	}
	r.ctx = core.WithTaskRunner(ctx, r)
	return r
}

// Attach starts forwarding wakeups to sender. Only the first call has effect.
func (r *TeaRunner) Attach(sender Sender) {
	r.attachOnce.Do(func() {
		go r.pump(sender)
	})
}

// Name returns the runner name.
func (r *TeaRunner) Name() string {
	return r.name
}

// Context returns the context tasks run with. Model code outside a posted
// task can pass it to APIs that check BelongsToCurrentThread.
func (r *TeaRunner) Context() context.Context {
	return r.ctx
}

// PostTask queues task for the Update loop.
func (r *TeaRunner) PostTask(task core.Task) {
	if r.closed.Load() {
		return
	}
	r.queue.Push(task)
	select {
	case r.signal <- struct{}{}:
	default:
	}
}

// PostDelayedTask queues task after delay.
func (r *TeaRunner) PostDelayedTask(task core.Task, delay time.Duration) {
	if r.closed.Load() {
		return
	}
	if delay <= 0 {
		r.PostTask(task)
		return
	}
	time.AfterFunc(delay, func() {
		r.PostTask(task)
	})
}

// BelongsToCurrentThread reports whether ctx was handed out by this runner.
func (r *TeaRunner) BelongsToCurrentThread(ctx context.Context) bool {
	current, ok := core.GetCurrentTaskRunner(ctx).(*TeaRunner)
	return ok && current == r
}

// Handle runs queued tasks if msg is this runner's wakeup. It must be called
// from the model's Update and reports whether msg was consumed.
func (r *TeaRunner) Handle(msg tea.Msg) bool {
	m, ok := msg.(drainMsg)
	if !ok || m.runner != r {
		return false
	}
	r.drain()
	return true
}

func (r *TeaRunner) drain() {
	for {
		if r.ctx.Err() != nil {
			return
		}
		task, ok := r.queue.Pop()
		if !ok {
			return
		}
		r.runTask(task)
	}
}

func (r *TeaRunner) runTask(task core.Task) {
	defer func() {
		r.executed.Add(1)
		r.lastTaskAt.Store(time.Now().UnixNano())
		if rec := recover(); rec != nil {
			r.logger.Error("consumer task panicked",
				core.F("runner", r.name),
				core.F("panic", rec),
				core.F("stack", string(debug.Stack())),
			)
		}
	}()
	task(r.ctx)
}

func (r *TeaRunner) pump(sender Sender) {
	defer close(r.pumpDone)
	for {
		select {
		case <-r.signal:
			sender.Send(drainMsg{runner: r})
		case <-r.ctx.Done():
			return
		}
	}
}

// Stop discards queued tasks and stops the pump. It does not stop the program.
func (r *TeaRunner) Stop() {
	if !r.closed.CompareAndSwap(false, true) {
		return
	}
	r.cancel()
	r.queue.Clear()
}

// IsClosed reports whether Stop was called.
func (r *TeaRunner) IsClosed() bool {
	return r.closed.Load()
}

// Stats returns a snapshot of the runner state.
func (r *TeaRunner) Stats() core.RunnerStats {
	var last time.Time
	if ns := r.lastTaskAt.Load(); ns != 0 {
		last = time.Unix(0, ns)
	}
	return core.RunnerStats{
		Name:       r.name,
		Type:       "bubbletea",
		Pending:    r.queue.Len(),
		Executed:   r.executed.Load(),
		Closed:     r.IsClosed(),
		LastTaskAt: last,
	}
}
