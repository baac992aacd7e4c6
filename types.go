package bgworker

import "github.com/Swind/go-bgworker/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the bgworker package for most use cases.

// Task is the unit of work (Closure)
type Task = core.Task

// TaskRunner is the interface for posting tasks
type TaskRunner = core.TaskRunner

// ConsumerThread is a TaskRunner bound to one goroutine
type ConsumerThread = core.ConsumerThread

// SingleThreadTaskRunner ensures all tasks execute on the same dedicated goroutine
type SingleThreadTaskRunner = core.SingleThreadTaskRunner

// ElasticPool is the executor behind BackgroundTasks
type ElasticPool = core.ElasticPool

// PoolConfig configures an ElasticPool
type PoolConfig = core.PoolConfig

// Dispatcher ties a pool to a consumer thread
type Dispatcher = core.Dispatcher

// DispatcherOption configures a Dispatcher
type DispatcherOption = core.DispatcherOption

// BackgroundTask runs work off the consumer and reports back to it
type BackgroundTask[T, V any] = core.BackgroundTask[T, V]

// Reporter is the producer-side API handed to work
type Reporter[V any] = core.Reporter[V]

// Work is the computation of a BackgroundTask
type Work[T, V any] = core.Work[T, V]

// State is the lifecycle state of a BackgroundTask
type State = core.State

// PropertyChangeEvent and ListenerFunc for state and progress listeners
type PropertyChangeEvent = core.PropertyChangeEvent
type ListenerFunc = core.ListenerFunc
type ListenerID = core.ListenerID

// Logger and Field for structured logging
type Logger = core.Logger
type Field = core.Field

// ExecutionError and PanicError describe failed work
type ExecutionError = core.ExecutionError
type PanicError = core.PanicError

// TaskWithResult and ReplyWithResult for generic PostTaskAndReply pattern
type TaskWithResult[T any] = core.TaskWithResult[T]
type ReplyWithResult[T any] = core.ReplyWithResult[T]

// State constants
const (
	StatePending = core.StatePending
	StateStarted = core.StateStarted
	StateDone    = core.StateDone
)

// Property names
const (
	PropertyState    = core.PropertyState
	PropertyProgress = core.PropertyProgress
	AllProperties    = core.AllProperties
)

// Errors
var (
	ErrInvalidProgress = core.ErrInvalidProgress
	ErrCancelled       = core.ErrCancelled
	ErrTimeout         = core.ErrTimeout
	ErrInterrupted     = core.ErrInterrupted
	ErrPoolClosed      = core.ErrPoolClosed
)

// Dispatcher options
var (
	WithName          = core.WithName
	WithPool          = core.WithPool
	WithCoalesceDelay = core.WithCoalesceDelay
	WithLogger        = core.WithLogger
	WithMetrics       = core.WithMetrics
)

// Convenience functions
var (
	F                    = core.F
	DefaultPoolConfig    = core.DefaultPoolConfig
	IsExecutionError     = core.IsExecutionError
	GetCurrentTaskRunner = core.GetCurrentTaskRunner
)

// NewSingleThreadTaskRunner creates a new SingleThreadTaskRunner with a dedicated goroutine.
// Use it as the consumer thread when the application has no event loop of its own.
func NewSingleThreadTaskRunner() *SingleThreadTaskRunner {
	return core.NewSingleThreadTaskRunner()
}

// NewElasticPool creates a pool. A nil config uses DefaultPoolConfig.
func NewElasticPool(config *PoolConfig) *ElasticPool {
	return core.NewElasticPool(config)
}

// NewBackgroundTask creates a Pending task. Register handlers, then call Execute.
func NewBackgroundTask[T, V any](d *Dispatcher, work Work[T, V]) *BackgroundTask[T, V] {
	return core.NewBackgroundTask(d, work)
}

// Submit creates a task for work and executes it.
func Submit[T, V any](d *Dispatcher, work Work[T, V]) *BackgroundTask[T, V] {
	return core.Submit(d, work)
}

// PostTaskAndReply runs task on the pool and reply on the consumer.
func PostTaskAndReply(d *Dispatcher, task Task, reply Task) *BackgroundTask[struct{}, struct{}] {
	return core.PostTaskAndReply(d, task, reply)
}

// PostTaskAndReplyWithResult runs task on the pool and hands its result to reply on the consumer.
func PostTaskAndReplyWithResult[T any](d *Dispatcher, task TaskWithResult[T], reply ReplyWithResult[T]) *BackgroundTask[T, struct{}] {
	return core.PostTaskAndReplyWithResult(d, task, reply)
}
