package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-bgworker/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// RunnerSnapshotProvider provides current runner stats snapshots.
type RunnerSnapshotProvider interface {
	Stats() core.RunnerStats
}

// PoolSnapshotProvider provides current pool stats snapshots.
type PoolSnapshotProvider interface {
	Stats() core.PoolStats
}

// SnapshotPoller periodically exports consumer runner and pool Stats() snapshots
// into Prometheus gauges. Pool gauges complement MetricsExporter, which only
// sees the pool when it resizes.
type SnapshotPoller struct {
	interval time.Duration

	runnersMu sync.RWMutex
	runners   map[string]RunnerSnapshotProvider

	poolsMu sync.RWMutex
	pools   map[string]PoolSnapshotProvider

	runnerPending  *prom.GaugeVec
	runnerExecuted *prom.GaugeVec
	runnerClosed   *prom.GaugeVec

	poolQueued    *prom.GaugeVec
	poolActive    *prom.GaugeVec
	poolIdle      *prom.GaugeVec
	poolLive      *prom.GaugeVec
	poolCompleted *prom.GaugeVec
	poolRunning   *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	gauge := func(name, help string, labels ...string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{Namespace: "bgworker", Name: name, Help: help}, labels)
	}

	runnerPending := gauge("runner_pending", "Number of pending tasks per consumer runner.", "runner", "type")
	runnerExecuted := gauge("runner_executed", "Tasks executed per consumer runner.", "runner", "type")
	runnerClosed := gauge("runner_closed", "Runner closed state (1=closed, 0=open).", "runner", "type")

	poolQueued := gauge("pool_queued", "Queued tasks per pool.", "pool")
	poolActive := gauge("pool_active", "Active tasks per pool.", "pool")
	poolIdle := gauge("pool_idle", "Idle workers per pool.", "pool")
	poolLive := gauge("pool_live", "Live workers per pool.", "pool")
	poolCompleted := gauge("pool_completed", "Tasks completed per pool.", "pool")
	poolRunning := gauge("pool_running", "Pool running state (1=running, 0=stopped).", "pool")

	var err error
	for _, g := range []**prom.GaugeVec{
		&runnerPending, &runnerExecuted, &runnerClosed,
		&poolQueued, &poolActive, &poolIdle, &poolLive, &poolCompleted, &poolRunning,
	} {
		if *g, err = registerCollector(reg, *g); err != nil {
			return nil, err
		}
	}

	return &SnapshotPoller{
		interval:       interval,
		runners:        make(map[string]RunnerSnapshotProvider),
		pools:          make(map[string]PoolSnapshotProvider),
		runnerPending:  runnerPending,
		runnerExecuted: runnerExecuted,
		runnerClosed:   runnerClosed,
		poolQueued:     poolQueued,
		poolActive:     poolActive,
		poolIdle:       poolIdle,
		poolLive:       poolLive,
		poolCompleted:  poolCompleted,
		poolRunning:    poolRunning,
	}, nil
}

// AddRunner adds or replaces a runner snapshot provider by name.
func (p *SnapshotPoller) AddRunner(name string, provider RunnerSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "runner")
	p.runnersMu.Lock()
	p.runners[name] = provider
	p.runnersMu.Unlock()
}

// AddPool adds or replaces a pool snapshot provider by name.
func (p *SnapshotPoller) AddPool(name string, provider PoolSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "pool")
	p.poolsMu.Lock()
	p.pools[name] = provider
	p.poolsMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.runnersMu.RLock()
	for name, provider := range p.runners {
		stats := provider.Stats()
		typeLabel := normalizeLabel(stats.Type, "unknown")
		p.runnerPending.WithLabelValues(name, typeLabel).Set(float64(stats.Pending))
		p.runnerExecuted.WithLabelValues(name, typeLabel).Set(float64(stats.Executed))
		p.runnerClosed.WithLabelValues(name, typeLabel).Set(boolGauge(stats.Closed))
	}
	p.runnersMu.RUnlock()

	p.poolsMu.RLock()
	for name, provider := range p.pools {
		stats := provider.Stats()
		p.poolQueued.WithLabelValues(name).Set(float64(stats.Queued))
		p.poolActive.WithLabelValues(name).Set(float64(stats.Active))
		p.poolIdle.WithLabelValues(name).Set(float64(stats.Idle))
		p.poolLive.WithLabelValues(name).Set(float64(stats.Live))
		p.poolCompleted.WithLabelValues(name).Set(float64(stats.Completed))
		p.poolRunning.WithLabelValues(name).Set(boolGauge(stats.Running))
	}
	p.poolsMu.RUnlock()
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
