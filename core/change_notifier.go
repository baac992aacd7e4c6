package core

import (
	"context"
	"reflect"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// AllProperties registers a listener for every property.
const AllProperties = "*"

// PropertyChangeEvent describes one property change.
type PropertyChangeEvent struct {
	Source   any
	Property string
	OldValue any
	NewValue any
}

// ListenerFunc receives property change events. ctx belongs to the goroutine
// doing the delivery (the consumer when the notifier forces it).
type ListenerFunc func(ctx context.Context, ev PropertyChangeEvent)

// ListenerID identifies a registration for RemoveListener.
type ListenerID uint64

type listenerEntry struct {
	id ListenerID
	fn ListenerFunc
}

// ChangeNotifier broadcasts property changes to registered listeners.
//
// Listeners for a property are called in registration order, after the
// AllProperties listeners. When created with a consumer, delivery from any
// other goroutine is scheduled onto the consumer; on the consumer it runs inline.
type ChangeNotifier struct {
	source    any
	consumer  ConsumerThread
	scheduler Scheduler
	logger    Logger

	mu        sync.RWMutex
	listeners map[string][]listenerEntry
	nextID    atomic.Uint64
}

// NewChangeNotifier creates a notifier that always delivers inline.
func NewChangeNotifier(source any, logger Logger) *ChangeNotifier {
	if logger == nil {
		logger = NewNoOpLogger()
	}
	return &ChangeNotifier{
		source:    source,
		logger:    logger,
		listeners: make(map[string][]listenerEntry),
	}
}

// NewConsumerChangeNotifier creates a notifier that forces delivery onto consumer.
func NewConsumerChangeNotifier(source any, consumer ConsumerThread, logger Logger) *ChangeNotifier {
	n := NewChangeNotifier(source, logger)
	n.consumer = consumer
	n.scheduler = NewImmediateScheduler(consumer)
	return n
}

// IsNotifyOnConsumer reports whether delivery is forced onto a consumer.
func (n *ChangeNotifier) IsNotifyOnConsumer() bool {
	return n.consumer != nil
}

// AddListener registers fn for property (or AllProperties).
func (n *ChangeNotifier) AddListener(property string, fn ListenerFunc) ListenerID {
	id := ListenerID(n.nextID.Add(1))

	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners[property] = append(n.listeners[property], listenerEntry{id: id, fn: fn})
	return id
}

// RemoveListener removes a registration. Returns true if it was found.
// It is safe to call from inside a listener; the dispatch in progress
// still completes for the other listeners.
func (n *ChangeNotifier) RemoveListener(property string, id ListenerID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	entries := n.listeners[property]
	for i, e := range entries {
		if e.id != id {
			continue
		}
		// Copy instead of re-slicing in place: a dispatch may hold the old slice
		updated := make([]listenerEntry, 0, len(entries)-1)
		updated = append(updated, entries[:i]...)
		updated = append(updated, entries[i+1:]...)
		if len(updated) == 0 {
			delete(n.listeners, property)
		} else {
			n.listeners[property] = updated
		}
		return true
	}
	return false
}

// HasListeners reports whether any listener would receive property.
func (n *ChangeNotifier) HasListeners(property string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.listeners[property]) > 0 || len(n.listeners[AllProperties]) > 0
}

// ListenerCount returns the number of registrations for property.
func (n *ChangeNotifier) ListenerCount(property string) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.listeners[property])
}

// Notify delivers a change. Equal non-nil values are not delivered.
func (n *ChangeNotifier) Notify(ctx context.Context, property string, oldValue, newValue any) {
	if sameValue(oldValue, newValue) {
		return
	}
	ev := PropertyChangeEvent{Source: n.source, Property: property, OldValue: oldValue, NewValue: newValue}

	if n.consumer != nil && !n.consumer.BelongsToCurrentThread(ctx) {
		n.scheduler.Schedule(func(ctx context.Context) {
			n.fire(ctx, ev)
		})
		return
	}
	n.fire(ctx, ev)
}

// Enqueue always schedules the change on the consumer, even when called from
// it, so it is ordered after everything already posted there. Without a
// consumer it delivers inline.
func (n *ChangeNotifier) Enqueue(property string, oldValue, newValue any) {
	if sameValue(oldValue, newValue) {
		return
	}
	ev := PropertyChangeEvent{Source: n.source, Property: property, OldValue: oldValue, NewValue: newValue}

	if n.consumer == nil {
		n.fire(context.Background(), ev)
		return
	}
	n.scheduler.Schedule(func(ctx context.Context) {
		n.fire(ctx, ev)
	})
}

func (n *ChangeNotifier) fire(ctx context.Context, ev PropertyChangeEvent) {
	n.mu.RLock()
	all := n.listeners[AllProperties]
	named := n.listeners[ev.Property]
	n.mu.RUnlock()

	// The slices are never mutated in place, so iterating them unlocked is safe
	for _, e := range all {
		n.safeCall(ctx, e.fn, ev)
	}
	if ev.Property == AllProperties {
		return
	}
	for _, e := range named {
		n.safeCall(ctx, e.fn, ev)
	}
}

func (n *ChangeNotifier) safeCall(ctx context.Context, fn ListenerFunc, ev PropertyChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("listener panicked",
				F("property", ev.Property),
				F("panic", r),
				F("stack", string(debug.Stack())),
			)
		}
	}()
	fn(ctx, ev)
}

// sameValue reports whether a change from a to b carries no information.
func sameValue(a, b any) (same bool) {
	// Comparable structs can still hold uncomparable interface values
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	if a == nil || b == nil {
		return false
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}
