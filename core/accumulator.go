package core

import (
	"context"
	"sync"
)

// Accumulator coalesces Add calls from any number of goroutines into batches.
//
// The first Add into an empty buffer hands a flush task to submit; every
// further Add before that flush only appends. When the flush task runs it
// swaps the buffer for an empty one and passes the batch to deliver. Items
// from one producer keep their order; no item is delivered twice or lost.
type Accumulator[T any] struct {
	mu    sync.Mutex
	items []T // nil means empty and no flush scheduled

	submit  func(Task)
	deliver func(ctx context.Context, batch []T)
}

// NewAccumulator creates an Accumulator. submit is called (outside the lock)
// once per flush cycle with the task that performs the flush; deliver receives
// each non-empty batch.
func NewAccumulator[T any](submit func(Task), deliver func(ctx context.Context, batch []T)) *Accumulator[T] {
	return &Accumulator[T]{
		submit:  submit,
		deliver: deliver,
	}
}

// Add appends items and schedules a flush if the buffer was empty.
func (a *Accumulator[T]) Add(items ...T) {
	if len(items) == 0 {
		return
	}

	a.mu.Lock()
	first := a.items == nil
	if first {
		a.items = make([]T, 0, len(items))
	}
	a.items = append(a.items, items...)
	a.mu.Unlock()

	if first {
		a.submit(a.run)
	}
}

// Flush swaps the buffer for an empty one and returns the previous contents.
func (a *Accumulator[T]) Flush() []T {
	a.mu.Lock()
	defer a.mu.Unlock()
	batch := a.items
	a.items = nil
	return batch
}

// Pending returns the number of buffered items.
func (a *Accumulator[T]) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.items)
}

// run is the flush task handed to submit.
func (a *Accumulator[T]) run(ctx context.Context) {
	batch := a.Flush()
	if len(batch) == 0 {
		// Already drained by an explicit Flush
		return
	}
	a.deliver(ctx, batch)
}
