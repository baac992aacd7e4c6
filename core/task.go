package core

import (
	"context"
	"time"
)

// Task is the unit of work (Closure)
type Task func(ctx context.Context)

// =============================================================================
// TaskRunner: Define task submission interface
// =============================================================================
type TaskRunner interface {
	PostTask(task Task)
	PostDelayedTask(task Task, delay time.Duration)
}

// ConsumerThread is a TaskRunner bound to exactly one goroutine.
// All notifications of a BackgroundTask are delivered through it.
type ConsumerThread interface {
	TaskRunner

	// BelongsToCurrentThread reports whether ctx was handed out by this
	// runner, i.e. whether the caller is running on the consumer goroutine.
	BelongsToCurrentThread(ctx context.Context) bool
}

// =============================================================================
// Context Helper
// =============================================================================
type taskRunnerKeyType struct{}

var taskRunnerKey taskRunnerKeyType

func GetCurrentTaskRunner(ctx context.Context) TaskRunner {
	if ctx == nil {
		return nil
	}
	if v := ctx.Value(taskRunnerKey); v != nil {
		return v.(TaskRunner)
	}
	return nil
}

// WithTaskRunner returns a context that reports runner as the current one.
// Runners that own their goroutine use it to tag the context passed to tasks.
func WithTaskRunner(ctx context.Context, runner TaskRunner) context.Context {
	return context.WithValue(ctx, taskRunnerKey, runner)
}
