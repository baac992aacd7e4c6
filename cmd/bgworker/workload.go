package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Swind/go-bgworker/core"
	"github.com/sourcegraph/conc"
)

var errSimulatedFailure = errors.New("simulated failure")

// workload describes a batch of synthetic background tasks. Each task
// publishes Items chunks, one every ItemDelay, and reports progress.
type workload struct {
	Tasks       int
	Items       int
	ItemDelay   time.Duration
	FailEvery   int
	CancelAfter time.Duration
}

// workloadHooks are called on the consumer thread.
type workloadHooks struct {
	OnProgress func(index, progress int)
	OnDone     func(index int, report taskReport)
}

// taskReport is the consumer-side view of one task. It is only written on the
// consumer thread.
type taskReport struct {
	Name     string `json:"name" yaml:"name"`
	State    string `json:"state" yaml:"state"`
	Items    int    `json:"items" yaml:"items"`
	Batches  int    `json:"batches" yaml:"batches"`
	Progress int    `json:"progress" yaml:"progress"`
	Result   int    `json:"result" yaml:"result"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`

	finished bool
}

func (w workload) work(index int) core.Work[int, int] {
	return func(ctx context.Context, r core.Reporter[int]) (int, error) {
		sum := 0
		for i := 0; i < w.Items; i++ {
			if w.ItemDelay > 0 {
				select {
				case <-ctx.Done():
					return sum, ctx.Err()
				case <-time.After(w.ItemDelay):
				}
			} else if err := ctx.Err(); err != nil {
				return sum, err
			}

			r.Publish(i)
			sum += i
			if err := r.SetProgress((i + 1) * 100 / w.Items); err != nil {
				return sum, err
			}
		}
		if w.FailEvery > 0 && (index+1)%w.FailEvery == 0 {
			return sum, fmt.Errorf("task-%d: %w", index+1, errSimulatedFailure)
		}
		return sum, nil
	}
}

// runWorkload submits every task through d and blocks until each completion
// callback has run on the consumer. Cancelling ctx cancels the remaining tasks.
func runWorkload(ctx context.Context, d *core.Dispatcher, w workload, hooks workloadHooks) []taskReport {
	if w.CancelAfter > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.CancelAfter)
		defer cancel()
	}

	reports := make([]taskReport, w.Tasks)
	delivered := make([]chan struct{}, w.Tasks)
	tasks := make([]*core.BackgroundTask[int, int], w.Tasks)

	for i := range tasks {
		reports[i].Name = fmt.Sprintf("task-%d", i+1)
		reports[i].State = core.StatePending.String()
		delivered[i] = make(chan struct{})

		task := core.NewBackgroundTask(d, w.work(i))
		report := &reports[i]

		task.OnChunk(func(ctx context.Context, items []int) {
			report.Batches++
			report.Items += len(items)
		})
		task.AddListener(core.PropertyProgress, func(ctx context.Context, ev core.PropertyChangeEvent) {
			if report.finished {
				return
			}
			report.Progress = ev.NewValue.(int)
			if hooks.OnProgress != nil {
				hooks.OnProgress(i, report.Progress)
			}
		})
		task.AddListener(core.PropertyState, func(ctx context.Context, ev core.PropertyChangeEvent) {
			if !report.finished {
				report.State = ev.NewValue.(core.State).String()
			}
		})
		task.OnDone(func(ctx context.Context) {
			result, err := task.Get(ctx)
			report.Result = result
			report.State = outcomeState(err)
			if err != nil {
				report.Error = err.Error()
			}
			report.finished = true
			if hooks.OnDone != nil {
				hooks.OnDone(i, *report)
			}
			close(delivered[i])
		})
		tasks[i] = task
	}

	stop := context.AfterFunc(ctx, func() {
		for _, task := range tasks {
			task.Cancel(true)
		}
	})
	defer stop()

	// Submissions race each other for admission
	var wg conc.WaitGroup
	for _, task := range tasks {
		wg.Go(task.Execute)
	}
	wg.Wait()

	for _, ch := range delivered {
		<-ch
	}

	return reports
}

func outcomeState(err error) string {
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, core.ErrCancelled):
		return "cancelled"
	default:
		return "failed"
	}
}
