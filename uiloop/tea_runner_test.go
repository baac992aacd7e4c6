package uiloop

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Swind/go-bgworker/core"
	tea "github.com/charmbracelet/bubbletea"
)

// fakeProgram imitates the Update loop of a tea.Program.
type fakeProgram struct {
	msgs chan tea.Msg
}

func newFakeProgram() *fakeProgram {
	return &fakeProgram{msgs: make(chan tea.Msg, 16)}
}

func (p *fakeProgram) Send(msg tea.Msg) {
	p.msgs <- msg
}

// loop feeds every message to runner until stop is closed.
func (p *fakeProgram) loop(runner *TeaRunner, stop <-chan struct{}) {
	for {
		select {
		case msg := <-p.msgs:
			runner.Handle(msg)
		case <-stop:
			return
		}
	}
}

func startFake(t *testing.T) *TeaRunner {
	t.Helper()
	runner := NewTeaRunner("test", nil)
	program := newFakeProgram()
	stop := make(chan struct{})
	runner.Attach(program)
	go program.loop(runner, stop)
	t.Cleanup(func() {
		runner.Stop()
		close(stop)
	})
	return runner
}

// TestTeaRunner_RunsTasksInUpdate tests task execution through Handle
// Main test items:
// 1. Posted tasks run in FIFO order
// 2. Tasks see a context that belongs to the runner
func TestTeaRunner_RunsTasksInUpdate(t *testing.T) {
	runner := startFake(t)

	var order []int
	done := make(chan bool, 1)
	for i := 0; i < 50; i++ {
		runner.PostTask(func(ctx context.Context) {
			order = append(order, i)
			if i == 49 {
				done <- runner.BelongsToCurrentThread(ctx)
			}
		})
	}

	select {
	case onConsumer := <-done:
		if !onConsumer {
			t.Error("task context does not belong to the runner")
		}
	case <-time.After(time.Second):
		t.Fatal("tasks did not run")
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v, want ascending", order)
		}
	}
	if runner.BelongsToCurrentThread(context.Background()) {
		t.Error("background context reported as consumer")
	}
}

// TestTeaRunner_HandleIgnoresOtherMessages tests message filtering
func TestTeaRunner_HandleIgnoresOtherMessages(t *testing.T) {
	a := NewTeaRunner("a", nil)
	b := NewTeaRunner("b", nil)
	defer a.Stop()
	defer b.Stop()

	if a.Handle(tea.KeyMsg{}) {
		t.Error("Handle consumed a key message")
	}
	if a.Handle(drainMsg{runner: b}) {
		t.Error("Handle consumed another runner's wakeup")
	}
	if !a.Handle(drainMsg{runner: a}) {
		t.Error("Handle ignored its own wakeup")
	}
}

// TestTeaRunner_PostDelayedTask tests delayed posting
func TestTeaRunner_PostDelayedTask(t *testing.T) {
	runner := startFake(t)

	start := time.Now()
	ran := make(chan time.Duration, 1)
	runner.PostDelayedTask(func(ctx context.Context) { ran <- time.Since(start) }, 30*time.Millisecond)

	select {
	case elapsed := <-ran:
		if elapsed < 30*time.Millisecond {
			t.Errorf("delayed task ran after %v, want >= 30ms", elapsed)
		}
	case <-time.After(time.Second):
		t.Fatal("delayed task did not run")
	}
}

// TestTeaRunner_Stop tests lifecycle
// Main test items:
// 1. Tasks posted after Stop are dropped
// 2. Stats reflect the closed state
func TestTeaRunner_Stop(t *testing.T) {
	runner := startFake(t)

	done := make(chan struct{})
	runner.PostTask(func(ctx context.Context) { close(done) })
	<-done

	runner.Stop()
	runner.Stop()

	var ran atomic.Bool
	runner.PostTask(func(ctx context.Context) { ran.Store(true) })
	time.Sleep(20 * time.Millisecond)
	if ran.Load() {
		t.Error("task posted after Stop was executed")
	}

	stats := runner.Stats()
	if !stats.Closed || stats.Type != "bubbletea" || stats.Name != "test" {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.Executed != 1 || stats.Pending != 0 {
		t.Errorf("Executed = %d Pending = %d, want 1 and 0", stats.Executed, stats.Pending)
	}
}

// TestTeaRunner_PanicRecovery tests panic isolation inside Update
func TestTeaRunner_PanicRecovery(t *testing.T) {
	runner := startFake(t)

	done := make(chan struct{})
	runner.PostTask(func(ctx context.Context) { panic("update panic") })
	runner.PostTask(func(ctx context.Context) { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task after panic did not run")
	}
}

// TestTeaRunner_DrivesBackgroundTask tests the runner as a dispatcher consumer
// Given: a dispatcher whose consumer is a TeaRunner
// When: a background task publishes chunks and finishes
// Then: chunks and completion are delivered inside Update
func TestTeaRunner_DrivesBackgroundTask(t *testing.T) {
	// Arrange
	runner := startFake(t)
	pool := core.NewElasticPool(&core.PoolConfig{ID: "tea", MaxWorkers: 2})
	defer pool.Shutdown()
	d := core.NewDispatcher(runner, core.WithPool(pool))

	var got []int
	var chunksOnConsumer atomic.Bool
	chunksOnConsumer.Store(true)
	finished := make(chan struct{})

	task := core.NewBackgroundTask(d, func(ctx context.Context, r core.Reporter[int]) (int, error) {
		r.Publish(1, 2, 3)
		return 3, nil
	})
	task.OnChunk(func(ctx context.Context, items []int) {
		if !runner.BelongsToCurrentThread(ctx) {
			chunksOnConsumer.Store(false)
		}
		got = append(got, items...)
	})
	task.OnDone(func(ctx context.Context) { close(finished) })

	// Act
	task.Execute()

	// Assert
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("OnDone was not delivered")
	}
	if !chunksOnConsumer.Load() {
		t.Error("chunk delivered outside Update")
	}
	if len(got) != 3 {
		t.Errorf("chunks = %v, want [1 2 3]", got)
	}
}

// quitMsg stops the headless program.
type quitMsg struct{}

type headlessModel struct {
	runner *TeaRunner
}

func (m headlessModel) Init() tea.Cmd { return nil }

func (m headlessModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.runner.Handle(msg) {
		return m, nil
	}
	if _, ok := msg.(quitMsg); ok {
		return m, tea.Quit
	}
	return m, nil
}

func (m headlessModel) View() string { return "" }

// TestTeaRunner_RealProgram tests the runner against a headless tea.Program
func TestTeaRunner_RealProgram(t *testing.T) {
	runner := NewTeaRunner("headless", nil)
	defer runner.Stop()

	program := tea.NewProgram(headlessModel{runner: runner},
		tea.WithInput(nil),
		tea.WithOutput(io.Discard),
		tea.WithoutRenderer(),
		tea.WithoutSignalHandler(),
	)
	runner.Attach(program)

	runner.PostTask(func(ctx context.Context) {
		if runner.BelongsToCurrentThread(ctx) {
			go program.Send(quitMsg{})
		}
	})

	errc := make(chan error, 1)
	go func() {
		_, err := program.Run()
		errc <- err
	}()

	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("program.Run failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		program.Kill()
		t.Fatal("program did not quit")
	}
}
