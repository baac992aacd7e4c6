package core

import (
	"context"
	"sync"
	"testing"
)

// TestChangeNotifier_RegistrationOrder tests listener ordering
// Main test items:
// 1. AllProperties listeners run before named listeners
// 2. Named listeners run in registration order
// 3. Listeners for other properties are not called
func TestChangeNotifier_RegistrationOrder(t *testing.T) {
	n := NewChangeNotifier("src", nil)

	var calls []string
	n.AddListener("state", func(ctx context.Context, ev PropertyChangeEvent) { calls = append(calls, "state-1") })
	n.AddListener(AllProperties, func(ctx context.Context, ev PropertyChangeEvent) { calls = append(calls, "all") })
	n.AddListener("state", func(ctx context.Context, ev PropertyChangeEvent) { calls = append(calls, "state-2") })
	n.AddListener("progress", func(ctx context.Context, ev PropertyChangeEvent) { calls = append(calls, "progress") })

	n.Notify(context.Background(), "state", 1, 2)

	want := []string{"all", "state-1", "state-2"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", calls, want)
		}
	}
}

// TestChangeNotifier_EventContents tests the delivered event
func TestChangeNotifier_EventContents(t *testing.T) {
	n := NewChangeNotifier("src", nil)

	var got PropertyChangeEvent
	n.AddListener("progress", func(ctx context.Context, ev PropertyChangeEvent) { got = ev })
	n.Notify(context.Background(), "progress", 10, 20)

	if got.Source != "src" || got.Property != "progress" || got.OldValue != 10 || got.NewValue != 20 {
		t.Errorf("event = %+v", got)
	}
}

// TestChangeNotifier_EqualValuesSuppressed tests change suppression
// Main test items:
// 1. Equal non-nil values are not delivered
// 2. nil values and uncomparable values are always delivered
func TestChangeNotifier_EqualValuesSuppressed(t *testing.T) {
	n := NewChangeNotifier("src", nil)

	count := 0
	n.AddListener(AllProperties, func(ctx context.Context, ev PropertyChangeEvent) { count++ })

	n.Notify(context.Background(), "p", 5, 5)
	n.Notify(context.Background(), "p", "a", "a")
	if count != 0 {
		t.Fatalf("equal values delivered %d events, want 0", count)
	}

	n.Notify(context.Background(), "p", nil, nil)
	n.Notify(context.Background(), "p", []int{1}, []int{1})
	n.Notify(context.Background(), "p", 1, int64(1))
	if count != 3 {
		t.Fatalf("delivered %d events, want 3", count)
	}
}

// TestChangeNotifier_RemoveDuringDispatch tests removal from inside a listener
// Main test items:
// 1. A listener removing itself does not disturb the dispatch in progress
// 2. It is not called on the next dispatch
func TestChangeNotifier_RemoveDuringDispatch(t *testing.T) {
	n := NewChangeNotifier("src", nil)

	var calls []string
	var selfID ListenerID
	selfID = n.AddListener("p", func(ctx context.Context, ev PropertyChangeEvent) {
		calls = append(calls, "self")
		n.RemoveListener("p", selfID)
	})
	n.AddListener("p", func(ctx context.Context, ev PropertyChangeEvent) { calls = append(calls, "other") })

	n.Notify(context.Background(), "p", 1, 2)
	n.Notify(context.Background(), "p", 2, 3)

	want := []string{"self", "other", "other"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", calls, want)
		}
	}
	if n.ListenerCount("p") != 1 {
		t.Errorf("ListenerCount = %d, want 1", n.ListenerCount("p"))
	}
	if n.RemoveListener("p", selfID) {
		t.Error("second RemoveListener reported success")
	}
}

// TestChangeNotifier_HasListeners tests listener presence checks
func TestChangeNotifier_HasListeners(t *testing.T) {
	n := NewChangeNotifier("src", nil)
	if n.HasListeners("p") {
		t.Fatal("HasListeners on empty notifier")
	}

	id := n.AddListener(AllProperties, func(ctx context.Context, ev PropertyChangeEvent) {})
	if !n.HasListeners("p") {
		t.Error("wildcard listener not counted")
	}
	n.RemoveListener(AllProperties, id)
	if n.HasListeners("p") {
		t.Error("removed listener still counted")
	}
}

// TestChangeNotifier_PanicIsolation tests listener panic recovery
// Main test items:
// 1. A panicking listener is recovered
// 2. Later listeners still receive the event
func TestChangeNotifier_PanicIsolation(t *testing.T) {
	n := NewChangeNotifier("src", nil)

	called := false
	n.AddListener("p", func(ctx context.Context, ev PropertyChangeEvent) { panic("listener panic") })
	n.AddListener("p", func(ctx context.Context, ev PropertyChangeEvent) { called = true })

	n.Notify(context.Background(), "p", 1, 2)
	if !called {
		t.Error("listener after the panicking one was not called")
	}
}

// TestChangeNotifier_ForcedConsumerDelivery tests consumer-forced notification
// Main test items:
// 1. Notify from another goroutine delivers on the consumer
// 2. Notify on the consumer delivers inline
// 3. Enqueue on the consumer is ordered after already posted tasks
func TestChangeNotifier_ForcedConsumerDelivery(t *testing.T) {
	runner := NewSingleThreadTaskRunner()
	defer runner.Stop()

	n := NewConsumerChangeNotifier("src", runner, nil)
	if !n.IsNotifyOnConsumer() {
		t.Fatal("IsNotifyOnConsumer() = false")
	}

	var mu sync.Mutex
	var onConsumer []bool
	var order []string
	n.AddListener("p", func(ctx context.Context, ev PropertyChangeEvent) {
		mu.Lock()
		defer mu.Unlock()
		onConsumer = append(onConsumer, runner.BelongsToCurrentThread(ctx))
		order = append(order, ev.NewValue.(string))
	})

	n.Notify(context.Background(), "p", "", "from-producer")

	runner.PostTask(func(ctx context.Context) {
		n.Enqueue("p", "", "enqueued")
		runner.PostTask(func(ctx context.Context) {
			mu.Lock()
			order = append(order, "posted-after")
			mu.Unlock()
		})
		n.Notify(ctx, "p", "", "inline")
	})

	if err := runner.WaitIdle(context.Background()); err != nil {
		t.Fatalf("WaitIdle failed: %v", err)
	}
	// The inner posts were queued after the WaitIdle barrier
	if err := runner.WaitIdle(context.Background()); err != nil {
		t.Fatalf("WaitIdle failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"from-producer", "inline", "enqueued", "posted-after"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
	for i, ok := range onConsumer {
		if !ok {
			t.Errorf("delivery %d ran off the consumer", i)
		}
	}
}

// TestChangeNotifier_EnqueueWithoutConsumer tests the inline fallback
func TestChangeNotifier_EnqueueWithoutConsumer(t *testing.T) {
	n := NewChangeNotifier("src", nil)
	done := make(chan struct{})
	n.AddListener("p", func(ctx context.Context, ev PropertyChangeEvent) { close(done) })

	n.Enqueue("p", 0, 1)

	select {
	case <-done:
	default:
		t.Fatal("Enqueue without consumer did not deliver inline")
	}
}
