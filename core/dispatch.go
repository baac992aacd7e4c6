package core

import (
	"context"
	"runtime/debug"
	"time"
)

// DefaultCoalesceDelay is the window during which flushes scheduled on a
// CoalescingScheduler collapse into one post to the consumer.
const DefaultCoalesceDelay = 33 * time.Millisecond

// Scheduler runs callbacks on the consumer goroutine.
//
// Schedule must run task exactly once, on the consumer, after Schedule
// returns. Callbacks scheduled from the same producer keep FIFO order.
type Scheduler interface {
	Schedule(task Task)
}

// ImmediateScheduler posts each callback to the consumer with no delay.
// It is used for state notifications and completion callbacks.
type ImmediateScheduler struct {
	consumer ConsumerThread
}

func NewImmediateScheduler(consumer ConsumerThread) *ImmediateScheduler {
	return &ImmediateScheduler{consumer: consumer}
}

func (s *ImmediateScheduler) Schedule(task Task) {
	s.consumer.PostTask(task)
}

// CoalescingScheduler batches callbacks for a short delay before posting them.
//
// The first callback scheduled into an empty window arms one delayed post;
// callbacks scheduled before it fires join the same post and run in order.
type CoalescingScheduler struct {
	consumer ConsumerThread
	delay    time.Duration
	metrics  Metrics
	logger   Logger
	pending  *Accumulator[Task]
}

// NewCoalescingScheduler creates a scheduler with the given window.
// A non-positive delay uses DefaultCoalesceDelay.
func NewCoalescingScheduler(consumer ConsumerThread, delay time.Duration, metrics Metrics, logger Logger) *CoalescingScheduler {
	if delay <= 0 {
		delay = DefaultCoalesceDelay
	}
	if metrics == nil {
		metrics = &NilMetrics{}
	}
	if logger == nil {
		logger = NewNoOpLogger()
	}
	s := &CoalescingScheduler{
		consumer: consumer,
		delay:    delay,
		metrics:  metrics,
		logger:   logger,
	}
	s.pending = NewAccumulator(s.arm, s.runBatch)
	return s
}

func (s *CoalescingScheduler) Schedule(task Task) {
	s.pending.Add(task)
}

// Delay returns the coalescing window.
func (s *CoalescingScheduler) Delay() time.Duration {
	return s.delay
}

func (s *CoalescingScheduler) arm(flush Task) {
	s.consumer.PostDelayedTask(flush, s.delay)
}

func (s *CoalescingScheduler) runBatch(ctx context.Context, batch []Task) {
	s.metrics.RecordBatchSize("dispatch", len(batch))
	// One failing callback must not swallow the rest of the batch
	for _, task := range batch {
		runRecovered(ctx, task, s.logger)
	}
}

func runRecovered(ctx context.Context, task Task, logger Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("consumer callback panicked", F("panic", r), F("stack", string(debug.Stack())))
		}
	}()
	task(ctx)
}
