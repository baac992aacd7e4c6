package bgworker_test

import (
	"context"
	"fmt"

	bgworker "github.com/Swind/go-bgworker"
)

// ExampleNewBackgroundTask demonstrates chunk publishing with only one import.
func ExampleNewBackgroundTask() {
	consumer := bgworker.NewSingleThreadTaskRunner()
	defer consumer.Stop()

	pool := bgworker.NewElasticPool(nil)
	defer pool.Shutdown()

	d := bgworker.NewDispatcher(consumer, bgworker.WithPool(pool))

	task := bgworker.NewBackgroundTask(d, func(ctx context.Context, r bgworker.Reporter[int]) (string, error) {
		r.Publish(1)
		r.Publish(2)
		r.Publish(3)
		return "finished", nil
	})

	done := make(chan struct{})
	task.OnChunk(func(ctx context.Context, batch []int) {
		fmt.Println("chunk", batch)
	})
	task.OnDone(func(ctx context.Context) {
		result, _ := task.Get(ctx)
		fmt.Println(result)
		close(done)
	})
	task.Execute()

	<-done

	// Output:
	// chunk [1 2 3]
	// finished
}

// ExampleBackgroundTask_Cancel demonstrates cancelling running work.
func ExampleBackgroundTask_Cancel() {
	consumer := bgworker.NewSingleThreadTaskRunner()
	defer consumer.Stop()

	pool := bgworker.NewElasticPool(nil)
	defer pool.Shutdown()

	d := bgworker.NewDispatcher(consumer, bgworker.WithPool(pool))

	started := make(chan struct{})
	task := bgworker.Submit(d, func(ctx context.Context, r bgworker.Reporter[struct{}]) (int, error) {
		close(started)
		<-ctx.Done()
		return 0, ctx.Err()
	})

	<-started
	task.Cancel(true)

	_, err := task.Get(context.Background())
	fmt.Println(err == bgworker.ErrCancelled, task.IsCancelled())

	// Output:
	// true true
}

// ExamplePostTaskAndReplyWithResult demonstrates the task and reply pattern.
func ExamplePostTaskAndReplyWithResult() {
	consumer := bgworker.NewSingleThreadTaskRunner()
	defer consumer.Stop()

	pool := bgworker.NewElasticPool(nil)
	defer pool.Shutdown()

	d := bgworker.NewDispatcher(consumer, bgworker.WithPool(pool))

	done := make(chan struct{})
	bgworker.PostTaskAndReplyWithResult(d,
		func(ctx context.Context) (int, error) {
			return len("Hello"), nil
		},
		func(ctx context.Context, length int, err error) {
			fmt.Printf("Length: %d\n", length)
			close(done)
		},
	)

	<-done

	// Output:
	// Length: 5
}
