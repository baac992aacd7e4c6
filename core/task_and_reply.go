package core

import "context"

// TaskWithResult is background work producing a value.
type TaskWithResult[T any] func(ctx context.Context) (T, error)

// ReplyWithResult receives the outcome of a TaskWithResult on the consumer thread.
type ReplyWithResult[T any] func(ctx context.Context, result T, err error)

// =============================================================================
// Task and Reply
// =============================================================================

// PostTaskAndReply runs task on the dispatcher's pool, then runs reply on the
// consumer thread. If task panics or the returned handle is cancelled, reply
// does not run.
func PostTaskAndReply(d *Dispatcher, task Task, reply Task) *BackgroundTask[struct{}, struct{}] {
	bt := NewBackgroundTask(d, func(ctx context.Context, _ Reporter[struct{}]) (struct{}, error) {
		task(ctx)
		return struct{}{}, nil
	})
	bt.OnDone(func(ctx context.Context) {
		if _, err := bt.Get(ctx); err != nil {
			d.logger.Debug("reply skipped", F("dispatcher", d.name), F("error", err))
			return
		}
		reply(ctx)
	})
	bt.Execute()
	return bt
}

// PostTaskAndReplyWithResult executes a task that returns a result of type T and an error,
// then passes that result to a reply callback on the consumer thread.
//
// Execution guarantee (Happens-Before):
// - The task ALWAYS completes before the reply starts
// - The reply ALWAYS sees the final values written by the task
//
// The reply also runs when the task fails or is cancelled; err is then the
// error Get would return (*ExecutionError or ErrCancelled).
//
// Example:
//
//	PostTaskAndReplyWithResult(
//	    dispatcher,
//	    func(ctx context.Context) (int, error) {
//	        return len("Hello"), nil
//	    },
//	    func(ctx context.Context, length int, err error) {
//	        fmt.Printf("Length: %d\n", length)
//	    },
//	)
func PostTaskAndReplyWithResult[T any](d *Dispatcher, task TaskWithResult[T], reply ReplyWithResult[T]) *BackgroundTask[T, struct{}] {
	bt := NewBackgroundTask(d, func(ctx context.Context, _ Reporter[struct{}]) (T, error) {
		return task(ctx)
	})
	bt.OnDone(func(ctx context.Context) {
		result, err := bt.Get(ctx)
		reply(ctx, result, err)
	})
	bt.Execute()
	return bt
}
