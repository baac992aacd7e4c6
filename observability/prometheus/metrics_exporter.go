package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/Swind/go-bgworker/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
	BatchBuckets    []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	taskDurationSeconds *prom.HistogramVec
	taskFailureTotal    *prom.CounterVec
	taskRejectedTotal   *prom.CounterVec
	poolCeiling         *prom.GaugeVec
	poolLiveWorkers     *prom.GaugeVec
	batchSize           *prom.HistogramVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "bgworker"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	durationBuckets := opts.DurationBuckets
	if len(durationBuckets) == 0 {
		durationBuckets = prom.DefBuckets
	}
	batchBuckets := opts.BatchBuckets
	if len(batchBuckets) == 0 {
		batchBuckets = prom.ExponentialBuckets(1, 2, 10)
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Pool task execution duration in seconds.",
		Buckets:   durationBuckets,
	}, []string{"pool"})
	failureVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_failure_total",
		Help:      "Total number of failed tasks by reason (panic, error, cancelled).",
	}, []string{"pool", "reason"})
	rejectedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_rejected_total",
		Help:      "Total number of rejected submissions.",
	}, []string{"pool", "reason"})
	ceilingVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "pool_ceiling",
		Help:      "Current live-worker ceiling.",
	}, []string{"pool"})
	liveVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "pool_live_workers",
		Help:      "Current number of live workers.",
	}, []string{"pool"})
	batchVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "delivery_batch_size",
		Help:      "Number of items per coalesced consumer delivery.",
		Buckets:   batchBuckets,
	}, []string{"kind"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if failureVec, err = registerCollector(reg, failureVec); err != nil {
		return nil, err
	}
	if rejectedVec, err = registerCollector(reg, rejectedVec); err != nil {
		return nil, err
	}
	if ceilingVec, err = registerCollector(reg, ceilingVec); err != nil {
		return nil, err
	}
	if liveVec, err = registerCollector(reg, liveVec); err != nil {
		return nil, err
	}
	if batchVec, err = registerCollector(reg, batchVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		taskDurationSeconds: durationVec,
		taskFailureTotal:    failureVec,
		taskRejectedTotal:   rejectedVec,
		poolCeiling:         ceilingVec,
		poolLiveWorkers:     liveVec,
		batchSize:           batchVec,
	}, nil
}

// RecordTaskDuration records task execution duration.
func (m *MetricsExporter) RecordTaskDuration(poolID string, duration time.Duration) {
	if m == nil {
		return
	}
	m.taskDurationSeconds.WithLabelValues(normalizeLabel(poolID, "unknown")).Observe(duration.Seconds())
}

// RecordTaskFailure records failed, panicked and cancelled tasks.
func (m *MetricsExporter) RecordTaskFailure(poolID string, reason string) {
	if m == nil {
		return
	}
	m.taskFailureTotal.WithLabelValues(normalizeLabel(poolID, "unknown"), normalizeLabel(reason, "unknown")).Inc()
}

// RecordTaskRejected records task rejection events.
func (m *MetricsExporter) RecordTaskRejected(poolID string, reason string) {
	if m == nil {
		return
	}
	m.taskRejectedTotal.WithLabelValues(normalizeLabel(poolID, "unknown"), normalizeLabel(reason, "unknown")).Inc()
}

// RecordPoolSize records the ceiling and live worker count.
func (m *MetricsExporter) RecordPoolSize(poolID string, ceiling int, live int) {
	if m == nil {
		return
	}
	pool := normalizeLabel(poolID, "unknown")
	m.poolCeiling.WithLabelValues(pool).Set(float64(ceiling))
	m.poolLiveWorkers.WithLabelValues(pool).Set(float64(live))
}

// RecordBatchSize records how many items one consumer delivery carried.
func (m *MetricsExporter) RecordBatchSize(kind string, size int) {
	if m == nil {
		return
	}
	m.batchSize.WithLabelValues(normalizeLabel(kind, "unknown")).Observe(float64(size))
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
