package bgworker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Swind/go-bgworker/core"
)

// Ensure ElasticPool satisfies the executor interface used by Dispatcher
var _ core.Executor = (*ElasticPool)(nil)

// Ensure SingleThreadTaskRunner can act as a consumer thread
var _ ConsumerThread = (*SingleThreadTaskRunner)(nil)

func TestGlobalPool_Lifecycle(t *testing.T) {
	InitGlobalPool(&PoolConfig{ID: "global-test", MaxWorkers: 2})

	pool := GlobalPool()
	if pool.ID() != "global-test" {
		t.Errorf("expected ID 'global-test', got %s", pool.ID())
	}

	// Second init is a no-op
	InitGlobalPool(&PoolConfig{ID: "other"})
	if GlobalPool() != pool {
		t.Error("InitGlobalPool replaced an initialized pool")
	}

	ShutdownGlobalPool()

	if pool.IsRunning() {
		t.Error("pool should not be running after ShutdownGlobalPool()")
	}
	if err := pool.Submit(func(ctx context.Context) {}); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Submit after shutdown = %v, want ErrPoolClosed", err)
	}

	if GlobalPool() != core.SharedPool() {
		t.Error("GlobalPool() without init should fall back to the shared pool")
	}
}

func TestNewDispatcher_UsesGlobalPool(t *testing.T) {
	InitGlobalPool(&PoolConfig{ID: "dispatch-test", MaxWorkers: 2})
	defer ShutdownGlobalPool()

	consumer := NewSingleThreadTaskRunner()
	defer consumer.Stop()
	d := NewDispatcher(consumer, WithName("root"))

	task := Submit(d, func(ctx context.Context, r Reporter[int]) (string, error) {
		return "ran", nil
	})
	v, err := task.GetTimeout(context.Background(), time.Second)
	if err != nil || v != "ran" {
		t.Fatalf("GetTimeout() = %q, %v", v, err)
	}
	if got := GlobalPool().Stats().Completed; got != 1 {
		t.Errorf("global pool completed %d tasks, want 1", got)
	}
}
