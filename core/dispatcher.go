package core

import (
	"sync"
	"time"
)

// Executor runs tasks off the consumer goroutine. *ElasticPool implements it.
type Executor interface {
	Submit(task Task) error
}

// Dispatcher ties an executor to one consumer thread. BackgroundTasks created
// from the same Dispatcher share its coalescing window, so their chunk and
// progress flushes reach the consumer in the same delayed post.
type Dispatcher struct {
	name     string
	consumer ConsumerThread

	pool     Executor
	poolOnce sync.Once

	immediate *ImmediateScheduler
	coalescer *CoalescingScheduler

	logger  Logger
	metrics Metrics
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*dispatcherOptions)

type dispatcherOptions struct {
	name          string
	pool          Executor
	coalesceDelay time.Duration
	logger        Logger
	metrics       Metrics
}

// WithName sets the name used in logs and metrics.
func WithName(name string) DispatcherOption {
	return func(o *dispatcherOptions) {
		o.name = name
	}
}

// WithPool injects the executor. Without it the Dispatcher uses SharedPool,
// created on the first submission.
func WithPool(pool Executor) DispatcherOption {
	return func(o *dispatcherOptions) {
		o.pool = pool
	}
}

// WithCoalesceDelay sets the coalescing window for chunk and progress deliveries.
func WithCoalesceDelay(delay time.Duration) DispatcherOption {
	return func(o *dispatcherOptions) {
		o.coalesceDelay = delay
	}
}

// WithLogger sets the logger.
func WithLogger(logger Logger) DispatcherOption {
	return func(o *dispatcherOptions) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(metrics Metrics) DispatcherOption {
	return func(o *dispatcherOptions) {
		o.metrics = metrics
	}
}

// NewDispatcher creates a Dispatcher delivering to consumer.
func NewDispatcher(consumer ConsumerThread, opts ...DispatcherOption) *Dispatcher {
	if consumer == nil {
		panic("bgworker: NewDispatcher requires a consumer thread")
	}
	o := dispatcherOptions{
		name:          "bgworker",
		coalesceDelay: DefaultCoalesceDelay,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = NewNoOpLogger()
	}
	if o.metrics == nil {
		o.metrics = &NilMetrics{}
	}

	return &Dispatcher{
		name:      o.name,
		consumer:  consumer,
		pool:      o.pool,
		immediate: NewImmediateScheduler(consumer),
		coalescer: NewCoalescingScheduler(consumer, o.coalesceDelay, o.metrics, o.logger),
		logger:    o.logger,
		metrics:   o.metrics,
	}
}

// Name returns the dispatcher name.
func (d *Dispatcher) Name() string {
	return d.name
}

// Consumer returns the consumer thread.
func (d *Dispatcher) Consumer() ConsumerThread {
	return d.consumer
}

// CoalesceDelay returns the coalescing window.
func (d *Dispatcher) CoalesceDelay() time.Duration {
	return d.coalescer.Delay()
}

func (d *Dispatcher) executor() Executor {
	d.poolOnce.Do(func() {
		if d.pool == nil {
			d.pool = SharedPool()
		}
	})
	return d.pool
}
