package core

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// poolState is the resize state of an ElasticPool.
type poolState int

const (
	// poolIdle: ceiling is at min, finished workers may take new work.
	poolIdle poolState = iota
	// poolGrowing: ceiling raised to max, a submission is being admitted.
	poolGrowing
	// poolDraining: the submission is queued, ceiling is being lowered back to min.
	poolDraining
)

func (s poolState) String() string {
	switch s {
	case poolIdle:
		return "idle"
	case poolGrowing:
		return "growing"
	case poolDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// ElasticPool is an executor whose live-worker ceiling is raised to max around
// each submission and lowered back to min before Submit returns.
//
// Submissions are serialized by an execution lock. While a submission is in
// progress the pool is not Idle, and workers that finish a task wait on the
// unpaused condition until it is, so the next worker spawn never races the
// ceiling being lowered for the previous one. Workers above the ceiling exit
// after KeepAlive without work. The queue is unbounded.
type ElasticPool struct {
	config PoolConfig

	queue  *TaskQueue
	signal chan struct{}

	executeMu sync.Mutex

	mu       sync.Mutex
	unpaused *sync.Cond
	state    poolState
	ceiling  int
	live     int
	idle     int
	nextID   int
	closed   bool

	active    atomic.Int32
	completed atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewElasticPool creates a pool. Workers are started on demand.
func NewElasticPool(config *PoolConfig) *ElasticPool {
	if config == nil {
		config = DefaultPoolConfig()
	}
	cfg := config.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	p := &ElasticPool{
		config:  cfg,
		queue:   NewTaskQueue(),
		signal:  make(chan struct{}, cfg.MaxWorkers*2),
		ceiling: cfg.MinWorkers,
		ctx:     ctx,
		cancel:  cancel,
	}
	p.unpaused = sync.NewCond(&p.mu)

	p.mu.Lock()
	for i := 0; i < cfg.MinWorkers; i++ {
		p.startWorkerLocked()
	}
	p.mu.Unlock()

	return p
}

// ID returns the ID of the pool
func (p *ElasticPool) ID() string {
	return p.config.ID
}

// Submit queues task for execution on a pool worker.
// It is never rejected for capacity; it fails only after Shutdown.
func (p *ElasticPool) Submit(task Task) error {
	p.executeMu.Lock()
	defer p.executeMu.Unlock()

	if !p.transition(poolGrowing, p.config.MaxWorkers) {
		p.config.RejectedTaskHandler.HandleRejectedTask(p.config.ID, "shutdown")
		p.config.Metrics.RecordTaskRejected(p.config.ID, "shutdown")
		return ErrPoolClosed
	}

	p.execute(task)

	p.transition(poolDraining, p.config.MinWorkers)
	p.transition(poolIdle, p.config.MinWorkers)
	return nil
}

// transition moves the pool to state with the given ceiling. Entering Idle
// wakes workers parked in afterExecute. It reports false if the pool is closed.
func (p *ElasticPool) transition(state poolState, ceiling int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}
	p.state = state
	p.ceiling = ceiling
	p.config.Metrics.RecordPoolSize(p.config.ID, p.ceiling, p.live)
	p.config.Logger.Debug("pool transition",
		F("pool", p.config.ID),
		F("state", state.String()),
		F("ceiling", ceiling),
		F("live", p.live),
	)

	if state == poolIdle {
		p.unpaused.Broadcast()
	}
	return true
}

// execute enqueues task and starts a worker while the pool is below its ceiling,
// otherwise wakes an idle one.
func (p *ElasticPool) execute(task Task) {
	p.mu.Lock()
	p.queue.Push(task)
	if p.live < p.ceiling {
		p.startWorkerLocked()
	}
	p.mu.Unlock()

	select {
	case p.signal <- struct{}{}:
	default:
		// Signal channel full, but task is already queued
	}
}

func (p *ElasticPool) startWorkerLocked() {
	p.live++
	id := p.nextID
	p.nextID++
	p.wg.Add(1)
	go p.workerLoop(id)
}

// workerLoop is the main loop for each worker
func (p *ElasticPool) workerLoop(id int) {
	defer p.wg.Done()

	for {
		task, ok := p.getWork(id)
		if !ok {
			return
		}

		p.runTask(id, task)
		p.afterExecute()
	}
}

// getWork pops the next task, waiting up to KeepAlive for one. A worker that
// times out while the pool is above its ceiling retires.
func (p *ElasticPool) getWork(id int) (Task, bool) {
	timer := time.NewTimer(p.config.KeepAlive)
	defer timer.Stop()

	for {
		if task, ok := p.queue.Pop(); ok {
			return task, true
		}

		p.mu.Lock()
		p.idle++
		p.mu.Unlock()

		select {
		case <-p.signal:
			p.mu.Lock()
			p.idle--
			p.mu.Unlock()
			timer.Reset(p.config.KeepAlive)

		case <-timer.C:
			p.mu.Lock()
			p.idle--
			if p.live > p.ceiling && p.queue.IsEmpty() {
				p.live--
				p.config.Metrics.RecordPoolSize(p.config.ID, p.ceiling, p.live)
				p.mu.Unlock()
				p.config.Logger.Debug("worker retired", F("pool", p.config.ID), F("worker", id))
				return nil, false
			}
			p.mu.Unlock()
			timer.Reset(p.config.KeepAlive)

		case <-p.ctx.Done():
			p.mu.Lock()
			p.idle--
			p.live--
			p.mu.Unlock()
			return nil, false
		}
	}
}

func (p *ElasticPool) runTask(id int, task Task) {
	p.active.Add(1)
	start := time.Now()
	defer func() {
		p.active.Add(-1)
		p.completed.Add(1)
		p.config.Metrics.RecordTaskDuration(p.config.ID, time.Since(start))
		if r := recover(); r != nil {
			p.config.Metrics.RecordTaskFailure(p.config.ID, "panic")
			p.config.PanicHandler.HandlePanic(p.ctx, p.config.ID, id, r, debug.Stack())
		}
	}()
	task(p.ctx)
}

// afterExecute parks the worker that just finished a task until the pool is
// Idle again.
func (p *ElasticPool) afterExecute() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.state != poolIdle && !p.closed {
		p.unpaused.Wait()
	}
}

// Ceiling returns the current live-worker ceiling.
func (p *ElasticPool) Ceiling() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ceiling
}

// LiveWorkers returns the number of worker goroutines currently alive.
func (p *ElasticPool) LiveWorkers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live
}

func (p *ElasticPool) QueuedTaskCount() int { return p.queue.Len() }
func (p *ElasticPool) ActiveTaskCount() int { return int(p.active.Load()) }

// IsRunning returns whether the pool accepts submissions
func (p *ElasticPool) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.closed
}

// Stats returns a snapshot of the pool state.
func (p *ElasticPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		ID:         p.config.ID,
		State:      p.state.String(),
		MinWorkers: p.config.MinWorkers,
		MaxWorkers: p.config.MaxWorkers,
		Ceiling:    p.ceiling,
		Live:       p.live,
		Idle:       p.idle,
		Active:     int(p.active.Load()),
		Queued:     p.queue.Len(),
		Completed:  p.completed.Load(),
		Running:    !p.closed,
	}
}

// Shutdown stops accepting submissions, drops queued tasks, cancels the
// context handed to running tasks and waits for every worker to exit.
func (p *ElasticPool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.unpaused.Broadcast()
	p.mu.Unlock()

	p.cancel()
	p.queue.Clear()
	p.wg.Wait()
}

// =============================================================================
// Shared Pool (lazily created, process-wide)
// =============================================================================

var (
	sharedPool     *ElasticPool
	sharedPoolOnce sync.Once
)

// SharedPool returns the process-wide pool, creating it with DefaultPoolConfig
// on first use. It is never shut down by this package.
func SharedPool() *ElasticPool {
	sharedPoolOnce.Do(func() {
		sharedPool = NewElasticPool(DefaultPoolConfig())
	})
	return sharedPool
}
