package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidProgress is returned by SetProgress for values outside [0, 100].
	ErrInvalidProgress = errors.New("bgworker: progress must be between 0 and 100")
	// ErrCancelled is returned by Get when the task was cancelled before producing a result.
	ErrCancelled = errors.New("bgworker: task cancelled")
	// ErrTimeout is returned by a timed Get whose deadline elapsed first. The task is unaffected.
	ErrTimeout = errors.New("bgworker: wait timed out")
	// ErrInterrupted is returned when the waiting caller's context ends first. The task is unaffected.
	ErrInterrupted = errors.New("bgworker: wait interrupted")
	// ErrPoolClosed is returned when submitting to a pool that has been shut down.
	ErrPoolClosed = errors.New("bgworker: pool closed")
)

// ExecutionError wraps a failure raised by the work of a BackgroundTask,
// either a returned error or a recovered panic.
type ExecutionError struct {
	Err error
}

// Error implements the error interface
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("bgworker: execution failed: %v", e.Err)
}

// Unwrap returns the underlying error
func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// PanicError carries a panic recovered from user work.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// IsExecutionError checks if an error is an ExecutionError
func IsExecutionError(err error) bool {
	var execErr *ExecutionError
	return errors.As(err, &execErr)
}
