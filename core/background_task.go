package core

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Property names published by a BackgroundTask.
const (
	PropertyState    = "state"
	PropertyProgress = "progress"
)

// State is the lifecycle state of a BackgroundTask. It only moves forward.
type State int32

const (
	StatePending State = iota
	StateStarted
	StateDone
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateStarted:
		return "started"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Reporter is the producer-side API handed to the work of a BackgroundTask.
type Reporter[V any] interface {
	// Publish queues chunks for the consumer. Chunks published within one
	// coalescing window arrive in a single OnChunk call.
	Publish(items ...V)

	// SetProgress sets progress in [0, 100]. Other values return ErrInvalidProgress.
	SetProgress(progress int) error

	// Progress returns the last progress value set.
	Progress() int

	// FirePropertyChange delivers a custom property change to the task's
	// listeners on the consumer.
	FirePropertyChange(ctx context.Context, property string, oldValue, newValue any)
}

// Work is the computation run by a BackgroundTask on a pool worker.
// It should return promptly once ctx is cancelled.
type Work[T, V any] func(ctx context.Context, r Reporter[V]) (T, error)

type outcomeKind int

const (
	outcomeNone outcomeKind = iota
	outcomeValue
	outcomeFailed
	outcomeCancelled
)

// BackgroundTask runs Work on the dispatcher's pool and reports back to its
// consumer thread.
//
// Exactly one goroutine moves the task from Pending to Started (the pool
// worker) and exactly one moves it to Done (the worker on completion, or the
// canceller if cancellation wins). State notifications and the completion
// callback are always posted to the consumer, under the task lock, so the
// consumer observes them in transition order.
type BackgroundTask[T, V any] struct {
	d        *Dispatcher
	work     Work[T, V]
	notifier *ChangeNotifier

	submitted atomic.Bool
	state     atomic.Int32
	progress  atomic.Int32

	mu        sync.Mutex // guards transitions and the outcome slot
	kind      outcomeKind
	result    T
	err       error
	interrupt context.CancelFunc
	done      chan struct{}

	handlersMu sync.Mutex
	onChunk    func(ctx context.Context, items []V)
	onDone     func(ctx context.Context)

	chunks          *Accumulator[V]
	progressChanges *Accumulator[int]
}

// NewBackgroundTask creates a Pending task. Register handlers and listeners,
// then call Execute.
func NewBackgroundTask[T, V any](d *Dispatcher, work Work[T, V]) *BackgroundTask[T, V] {
	t := &BackgroundTask[T, V]{
		d:    d,
		work: work,
		done: make(chan struct{}),
	}
	t.notifier = NewConsumerChangeNotifier(t, d.consumer, d.logger)
	t.chunks = NewAccumulator(d.coalescer.Schedule, t.deliverChunks)
	t.progressChanges = NewAccumulator(d.coalescer.Schedule, t.deliverProgress)
	return t
}

// Submit creates a task for work and executes it.
func Submit[T, V any](d *Dispatcher, work Work[T, V]) *BackgroundTask[T, V] {
	t := NewBackgroundTask(d, work)
	t.Execute()
	return t
}

// OnChunk sets the consumer-side handler for published chunks.
func (t *BackgroundTask[T, V]) OnChunk(fn func(ctx context.Context, items []V)) {
	t.handlersMu.Lock()
	defer t.handlersMu.Unlock()
	t.onChunk = fn
}

// OnDone sets the completion callback. It runs on the consumer after every
// chunk published before completion has been delivered. Inspect the outcome
// with Get.
func (t *BackgroundTask[T, V]) OnDone(fn func(ctx context.Context)) {
	t.handlersMu.Lock()
	defer t.handlersMu.Unlock()
	t.onDone = fn
}

// AddListener registers fn for PropertyState, PropertyProgress or AllProperties.
// Listeners run on the consumer thread.
func (t *BackgroundTask[T, V]) AddListener(property string, fn ListenerFunc) ListenerID {
	return t.notifier.AddListener(property, fn)
}

// RemoveListener removes a listener registered with AddListener.
func (t *BackgroundTask[T, V]) RemoveListener(property string, id ListenerID) bool {
	return t.notifier.RemoveListener(property, id)
}

// FirePropertyChange reports a change of a custom property to listeners on
// the consumer thread. Equal non-nil values are not delivered.
func (t *BackgroundTask[T, V]) FirePropertyChange(ctx context.Context, property string, oldValue, newValue any) {
	t.notifier.Notify(ctx, property, oldValue, newValue)
}

// Execute submits the task to the pool. Calling it again is a no-op.
func (t *BackgroundTask[T, V]) Execute() {
	if !t.submitted.CompareAndSwap(false, true) {
		return
	}
	if err := t.d.executor().Submit(t.run); err != nil {
		t.d.logger.Warn("background task not submitted", F("dispatcher", t.d.name), F("error", err))
		var zero T
		t.finish(outcomeFailed, zero, err)
	}
}

// run is the execution unit handed to the pool.
func (t *BackgroundTask[T, V]) run(ctx context.Context) {
	t.mu.Lock()
	if State(t.state.Load()) != StatePending {
		// Cancelled before a worker picked it up
		t.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	t.interrupt = cancel
	t.state.Store(int32(StateStarted))
	t.notifier.Enqueue(PropertyState, StatePending, StateStarted)
	t.mu.Unlock()
	defer cancel()

	result, err := t.invoke(runCtx)
	if err != nil {
		t.finish(outcomeFailed, result, err)
		return
	}
	t.finish(outcomeValue, result, nil)
}

func (t *BackgroundTask[T, V]) invoke(ctx context.Context) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			t.d.metrics.RecordTaskFailure(t.d.name, "panic")
			t.d.logger.Error("background work panicked", F("dispatcher", t.d.name), F("panic", r))
			var zero T
			result, err = zero, &PanicError{Value: r, Stack: stack}
		}
	}()
	result, err = t.work(ctx, t)
	if err != nil {
		t.d.metrics.RecordTaskFailure(t.d.name, "error")
	}
	return result, err
}

// finish moves the task to Done unless it already is. It reports whether
// this call won.
func (t *BackgroundTask[T, V]) finish(kind outcomeKind, result T, err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finishLocked(kind, result, err)
}

func (t *BackgroundTask[T, V]) finishLocked(kind outcomeKind, result T, err error) bool {
	prev := State(t.state.Load())
	if prev == StateDone {
		return false
	}

	t.kind = kind
	t.result = result
	t.err = err
	t.state.Store(int32(StateDone))
	close(t.done)

	t.d.immediate.Schedule(t.completeOnConsumer)
	t.notifier.Enqueue(PropertyState, prev, StateDone)
	return true
}

// Cancel attempts to stop the task. A Pending task never starts; a Started
// task has its context cancelled when mayInterrupt is set, and its eventual
// result is discarded. Returns false if the task was already Done.
func (t *BackgroundTask[T, V]) Cancel(mayInterrupt bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev := State(t.state.Load())
	if prev == StateDone {
		return false
	}
	if prev == StateStarted && mayInterrupt && t.interrupt != nil {
		t.interrupt()
	}

	var zero T
	t.finishLocked(outcomeCancelled, zero, nil)
	t.d.metrics.RecordTaskFailure(t.d.name, "cancelled")
	return true
}

// IsCancelled reports whether the task was cancelled before completing.
func (t *BackgroundTask[T, V]) IsCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.kind == outcomeCancelled
}

// IsDone reports whether the task completed, failed or was cancelled.
func (t *BackgroundTask[T, V]) IsDone() bool {
	return State(t.state.Load()) == StateDone
}

// State returns the lifecycle state.
func (t *BackgroundTask[T, V]) State() State {
	return State(t.state.Load())
}

// Done returns a channel closed when the task reaches StateDone.
func (t *BackgroundTask[T, V]) Done() <-chan struct{} {
	return t.done
}

// Get blocks until the task is Done and returns its result.
//
// Errors:
//   - ErrCancelled: the task was cancelled.
//   - *ExecutionError: the work returned an error or panicked.
//   - ErrTimeout: ctx's deadline expired first.
//   - ErrInterrupted: ctx was cancelled first.
func (t *BackgroundTask[T, V]) Get(ctx context.Context) (T, error) {
	return t.wait(ctx, nil)
}

// GetTimeout is Get bounded by timeout. Expiry returns ErrTimeout and does
// not affect the task.
func (t *BackgroundTask[T, V]) GetTimeout(ctx context.Context, timeout time.Duration) (T, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	return t.wait(ctx, timer.C)
}

func (t *BackgroundTask[T, V]) wait(ctx context.Context, deadline <-chan time.Time) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-t.done:
		return t.outcome()
	default:
	}

	var zero T
	select {
	case <-t.done:
		return t.outcome()
	case <-deadline:
		return zero, ErrTimeout
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
		}
		return zero, fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
	}
}

func (t *BackgroundTask[T, V]) outcome() (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero T
	switch t.kind {
	case outcomeValue:
		return t.result, nil
	case outcomeFailed:
		return zero, &ExecutionError{Err: t.err}
	case outcomeCancelled:
		return zero, ErrCancelled
	default:
		return zero, fmt.Errorf("bgworker: outcome read before completion")
	}
}

// =============================================================================
// Reporter implementation (producer side)
// =============================================================================

// Publish queues chunks for OnChunk. Chunks published after the task is Done
// are dropped.
func (t *BackgroundTask[T, V]) Publish(items ...V) {
	if t.IsDone() {
		t.d.logger.Debug("publish after done dropped", F("dispatcher", t.d.name), F("items", len(items)))
		return
	}
	t.chunks.Add(items...)
}

// SetProgress sets progress in [0, 100]. Listeners receive the oldest and
// newest value of each coalescing window; intermediate values may be elided.
func (t *BackgroundTask[T, V]) SetProgress(progress int) error {
	if progress < 0 || progress > 100 {
		return fmt.Errorf("%w: got %d", ErrInvalidProgress, progress)
	}
	old := int(t.progress.Swap(int32(progress)))
	if old == progress {
		return nil
	}
	if t.notifier.HasListeners(PropertyProgress) {
		t.progressChanges.Add(old, progress)
	}
	return nil
}

// Progress returns the last progress value set.
func (t *BackgroundTask[T, V]) Progress() int {
	return int(t.progress.Load())
}

// =============================================================================
// Consumer side
// =============================================================================

func (t *BackgroundTask[T, V]) deliverChunks(ctx context.Context, batch []V) {
	t.d.metrics.RecordBatchSize("chunk", len(batch))

	t.handlersMu.Lock()
	fn := t.onChunk
	t.handlersMu.Unlock()
	if fn != nil {
		fn(ctx, batch)
	}
}

func (t *BackgroundTask[T, V]) deliverProgress(ctx context.Context, batch []int) {
	t.d.metrics.RecordBatchSize("progress", len(batch))
	t.notifier.Notify(ctx, PropertyProgress, batch[0], batch[len(batch)-1])
}

// completeOnConsumer drains what the work left in the accumulators, then runs
// the completion callback.
func (t *BackgroundTask[T, V]) completeOnConsumer(ctx context.Context) {
	if batch := t.chunks.Flush(); len(batch) > 0 {
		t.deliverChunks(ctx, batch)
	}
	if batch := t.progressChanges.Flush(); len(batch) > 0 {
		t.deliverProgress(ctx, batch)
	}

	t.handlersMu.Lock()
	fn := t.onDone
	t.handlersMu.Unlock()
	if fn != nil {
		fn(ctx)
	}
}
