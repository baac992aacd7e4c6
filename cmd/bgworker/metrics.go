package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/Swind/go-bgworker/config"
	"github.com/Swind/go-bgworker/core"
	obs "github.com/Swind/go-bgworker/observability/prometheus"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metricsServer serves /metrics for one command invocation.
type metricsServer struct {
	registry *prom.Registry
	exporter *obs.MetricsExporter
	poller   *obs.SnapshotPoller
	server   *http.Server
	listener net.Listener
	logger   core.Logger
}

func startMetrics(ctx context.Context, cfg config.MetricsConfig, logger core.Logger) (*metricsServer, error) {
	reg := prom.NewRegistry()

	exporter, err := obs.NewMetricsExporter(cfg.Namespace, reg, obs.ExporterOptions{})
	if err != nil {
		return nil, err
	}
	poller, err := obs.NewSnapshotPoller(reg, cfg.PollInterval())
	if err != nil {
		return nil, err
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	m := &metricsServer{
		registry: reg,
		exporter: exporter,
		poller:   poller,
		server:   &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		listener: ln,
		logger:   logger,
	}

	go func() {
		if err := m.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", core.F("error", err))
		}
	}()
	poller.Start(ctx)
	logger.Info("serving metrics", core.F("addr", ln.Addr().String()))
	return m, nil
}

// Addr returns the bound listen address.
func (m *metricsServer) Addr() string {
	return m.listener.Addr().String()
}

// Watch exports snapshots of the pool and the consumer runner.
func (m *metricsServer) Watch(pool obs.PoolSnapshotProvider, poolID string, runner obs.RunnerSnapshotProvider, runnerName string) {
	m.poller.AddPool(poolID, pool)
	m.poller.AddRunner(runnerName, runner)
}

func (m *metricsServer) Close() {
	m.poller.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.server.Shutdown(ctx); err != nil {
		m.logger.Warn("metrics server shutdown", core.F("error", err))
	}
}

// instruments holds the optional metrics stack of a command.
type instruments struct {
	metrics core.Metrics
	server  *metricsServer
}

func newInstruments(ctx context.Context, cfg config.MetricsConfig, logger core.Logger) (*instruments, error) {
	if !cfg.Enabled {
		return &instruments{}, nil
	}
	server, err := startMetrics(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &instruments{metrics: server.exporter, server: server}, nil
}

func (i *instruments) watch(pool obs.PoolSnapshotProvider, poolID string, runner obs.RunnerSnapshotProvider, runnerName string) {
	if i.server != nil {
		i.server.Watch(pool, poolID, runner, runnerName)
	}
}

func (i *instruments) Close() {
	if i.server != nil {
		i.server.Close()
	}
}
