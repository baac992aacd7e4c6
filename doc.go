// Package bgworker runs long computations off a consumer thread and reports
// their intermediate results, progress and completion back to it.
//
// A consumer thread is a goroutine that owns some state and processes one
// task at a time, like a UI event loop. Work handed to a BackgroundTask runs
// on an ElasticPool; everything it reports reaches the consumer through the
// Dispatcher, batched so that a burst of updates costs one consumer post.
//
// # Quick Start
//
// Create a consumer and a dispatcher at application startup:
//
//	consumer := bgworker.NewSingleThreadTaskRunner()
//	defer consumer.Stop()
//
//	d := bgworker.NewDispatcher(consumer)
//
// Submit work that publishes chunks:
//
//	task := bgworker.NewBackgroundTask(d, func(ctx context.Context, r bgworker.Reporter[string]) (int, error) {
//		for i, line := range lines {
//			r.Publish(line)
//			r.SetProgress(100 * (i + 1) / len(lines))
//		}
//		return len(lines), nil
//	})
//	task.OnChunk(func(ctx context.Context, batch []string) {
//		// Runs on the consumer with every line published since the last batch
//	})
//	task.OnDone(func(ctx context.Context) {
//		n, err := task.Get(ctx)
//		// Runs on the consumer after the last batch
//	})
//	task.Execute()
//
// # Key Concepts
//
// BackgroundTask: a one-shot computation with a Pending, Started, Done
// lifecycle. It can be cancelled, waited on with Get, and observed through
// property change listeners for "state" and "progress".
//
// Dispatcher: binds a consumer thread to a pool. Chunk and progress flushes
// of every task created from one Dispatcher share a coalescing window
// (33ms by default).
//
// ElasticPool: the executor. Its live-worker ceiling is raised to
// MaxWorkers while a submission is admitted and relaxed to MinWorkers before
// Submit returns. Idle workers above the ceiling exit after KeepAlive.
//
// # Related Packages
//
// config loads pool, dispatch, logging and metrics settings with viper.
// observability/prometheus exports pool and consumer metrics. uiloop turns a
// bubbletea program into a consumer thread. cmd/bgworker is a CLI that runs
// demo workloads with all of them wired together.
//
// # Thread Safety
//
// Every BackgroundTask method may be called from any goroutine. Callbacks
// and listeners always run on the consumer thread, one at a time, so they
// may touch consumer-owned state without locks.
//
// For more details, see https://github.com/Swind/go-bgworker
package bgworker
