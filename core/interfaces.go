package core

import (
	"context"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task panics during execution.
// This allows custom panic handling, logging, and recovery strategies.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The context from the panicked task
	// - poolID: The ID of the pool (or runner name) where the panic occurred
	// - workerID: The ID of the worker (-1 for the consumer goroutine)
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, poolID string, workerID int, panicInfo any, stackTrace []byte)
}

// LoggingPanicHandler reports panics through a Logger.
type LoggingPanicHandler struct {
	Logger Logger
}

// HandlePanic logs the panic with its stack trace at Error level.
func (h *LoggingPanicHandler) HandlePanic(ctx context.Context, poolID string, workerID int, panicInfo any, stackTrace []byte) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	logger.Error("task panicked",
		F("pool", poolID),
		F("worker", workerID),
		F("panic", panicInfo),
		F("stack", string(stackTrace)),
	)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting execution metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast to avoid impacting task execution performance.
type Metrics interface {
	// RecordTaskDuration records how long a pool task took to execute.
	RecordTaskDuration(poolID string, duration time.Duration)

	// RecordTaskFailure records a task that failed. reason is "panic", "error" or "cancelled".
	RecordTaskFailure(poolID string, reason string)

	// RecordTaskRejected records that a submission was rejected (e.g., after shutdown).
	RecordTaskRejected(poolID string, reason string)

	// RecordPoolSize records the live-worker ceiling and the number of live workers.
	RecordPoolSize(poolID string, ceiling int, live int)

	// RecordBatchSize records the size of a coalesced delivery.
	// kind is "chunk", "progress" or "dispatch".
	RecordBatchSize(kind string, size int)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(poolID string, duration time.Duration) {}
func (m *NilMetrics) RecordTaskFailure(poolID string, reason string)           {}
func (m *NilMetrics) RecordTaskRejected(poolID string, reason string)          {}
func (m *NilMetrics) RecordPoolSize(poolID string, ceiling int, live int)      {}
func (m *NilMetrics) RecordBatchSize(kind string, size int)                    {}

// =============================================================================
// RejectedTaskHandler: Interface for handling rejected tasks
// =============================================================================

// RejectedTaskHandler is called when the pool refuses a submission.
// The pool queue is unbounded, so this only happens after Shutdown.
type RejectedTaskHandler interface {
	HandleRejectedTask(poolID string, reason string)
}

// LoggingRejectedTaskHandler logs rejected tasks at Warn level.
type LoggingRejectedTaskHandler struct {
	Logger Logger
}

// HandleRejectedTask logs the rejected task.
func (h *LoggingRejectedTaskHandler) HandleRejectedTask(poolID string, reason string) {
	if h.Logger == nil {
		return
	}
	h.Logger.Warn("task rejected", F("pool", poolID), F("reason", reason))
}

// =============================================================================
// PoolConfig: Configuration for ElasticPool
// =============================================================================

const (
	// DefaultMaxWorkers is the live-worker ceiling while a submission is admitted.
	DefaultMaxWorkers = 10
	// DefaultKeepAlive is how long an idle worker above the ceiling lingers.
	DefaultKeepAlive = time.Second
)

// PoolConfig holds configuration options for ElasticPool.
// All handlers are optional; if not provided, default implementations will be used.
type PoolConfig struct {
	// ID names the pool in logs and metrics. Defaults to "bgworker".
	ID string

	// MinWorkers is the ceiling the pool relaxes to when no submission is in progress.
	MinWorkers int

	// MaxWorkers is the ceiling raised while a submission is admitted.
	MaxWorkers int

	// KeepAlive is how long an idle worker above the ceiling waits for work before exiting.
	KeepAlive time.Duration

	// PanicHandler is called when a task panics. Defaults to LoggingPanicHandler.
	PanicHandler PanicHandler

	// Metrics is called to record execution metrics. Defaults to NilMetrics.
	Metrics Metrics

	// RejectedTaskHandler is called when a task is rejected. Defaults to LoggingRejectedTaskHandler.
	RejectedTaskHandler RejectedTaskHandler

	// Logger defaults to NoOpLogger.
	Logger Logger
}

// DefaultPoolConfig returns a config with min 0, max 10 and a one second keep-alive.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		ID:         "bgworker",
		MinWorkers: 0,
		MaxWorkers: DefaultMaxWorkers,
		KeepAlive:  DefaultKeepAlive,
	}
}

// withDefaults fills unset fields and clamps the worker range.
func (c PoolConfig) withDefaults() PoolConfig {
	if c.ID == "" {
		c.ID = "bgworker"
	}
	if c.MinWorkers < 0 {
		c.MinWorkers = 0
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = DefaultMaxWorkers
	}
	if c.MaxWorkers < c.MinWorkers {
		c.MaxWorkers = c.MinWorkers
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = DefaultKeepAlive
	}
	if c.Logger == nil {
		c.Logger = NewNoOpLogger()
	}
	if c.PanicHandler == nil {
		c.PanicHandler = &LoggingPanicHandler{Logger: c.Logger}
	}
	if c.Metrics == nil {
		c.Metrics = &NilMetrics{}
	}
	if c.RejectedTaskHandler == nil {
		c.RejectedTaskHandler = &LoggingRejectedTaskHandler{Logger: c.Logger}
	}
	return c
}
