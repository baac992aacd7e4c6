package bgworker

import (
	"sync"

	"github.com/Swind/go-bgworker/core"
)

// =============================================================================
// Global Pool Helper (Singleton)
// =============================================================================

var (
	globalPool *core.ElasticPool
	globalMu   sync.Mutex
)

// InitGlobalPool creates the global pool from config. Later calls are no-ops
// until ShutdownGlobalPool. A nil config uses DefaultPoolConfig.
func InitGlobalPool(config *PoolConfig) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalPool != nil {
		return // Already initialized
	}

	globalPool = core.NewElasticPool(config)
}

// GlobalPool returns the pool created by InitGlobalPool, or the lazily
// created shared pool when InitGlobalPool has not been called.
func GlobalPool() *ElasticPool {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalPool == nil {
		return core.SharedPool()
	}
	return globalPool
}

// ShutdownGlobalPool shuts down the pool created by InitGlobalPool.
// The shared fallback pool lives for the whole process and is not affected.
func ShutdownGlobalPool() {
	globalMu.Lock()
	pool := globalPool
	globalPool = nil
	globalMu.Unlock()

	if pool != nil {
		pool.Shutdown()
	}
}

// NewDispatcher creates a Dispatcher delivering to consumer. It submits to the
// pool created by InitGlobalPool if there is one, otherwise to the shared pool
// on first use. WithPool overrides both.
func NewDispatcher(consumer ConsumerThread, opts ...DispatcherOption) *Dispatcher {
	globalMu.Lock()
	pool := globalPool
	globalMu.Unlock()

	if pool != nil {
		opts = append([]DispatcherOption{core.WithPool(pool)}, opts...)
	}
	return core.NewDispatcher(consumer, opts...)
}
