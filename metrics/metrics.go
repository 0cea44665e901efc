// Package metrics exposes live benchmark progress as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"sqlite-bench/bench"
	"sqlite-bench/workload"
)

const namespace = "sqlitebench"

// Collector records samples and worker transitions into its own registry.
type Collector struct {
	registry *prometheus.Registry

	durations *prometheus.HistogramVec
	errors    *prometheus.CounterVec
	workers   *prometheus.GaugeVec

	throughput       *prometheus.GaugeVec
	effectiveClients prometheus.Gauge
}

var _ bench.Observer = (*Collector)(nil)

// NewCollector registers the benchmark metrics on a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		durations: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Latency of timed point operations",
				// 50µs to ~6.5s
				Buckets: prometheus.ExponentialBuckets(0.00005, 2, 18),
			}, []string{"kind"},
		),
		errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operation_errors_total",
				Help:      "Point operations that returned an error",
			}, []string{"kind"},
		),
		workers: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "workers",
				Help:      "Dispatched workers by lifecycle state",
			}, []string{"state"},
		),
		throughput: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "run_throughput_ops_per_second",
				Help:      "Throughput of the last summarized run",
			}, []string{"kind"},
		),
		effectiveClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "run_effective_clients",
				Help:      "Workers that started in the last summarized run",
			},
		),
	}
}

// Registry returns the registry holding the benchmark metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) ObserveSample(_ int, s bench.Sample) {
	kind := s.Kind.String()
	c.durations.WithLabelValues(kind).Observe(s.Duration.Seconds())
	if s.Err != nil {
		c.errors.WithLabelValues(kind).Inc()
	}
}

// ObserveState moves a worker between state gauges. Workers are counted
// from their first transition out of Created.
func (c *Collector) ObserveState(_ int, from, to bench.WorkerState) {
	if from == to {
		return
	}
	if from != bench.Created {
		c.workers.WithLabelValues(from.String()).Dec()
	}
	c.workers.WithLabelValues(to.String()).Inc()
}

// RecordStats publishes the summary of a finished run.
func (c *Collector) RecordStats(s bench.Stats) {
	c.throughput.WithLabelValues("all").Set(s.QPS)
	c.throughput.WithLabelValues(workload.Read.String()).Set(s.Read.QPS)
	c.throughput.WithLabelValues(workload.Write.String()).Set(s.Write.QPS)
	c.effectiveClients.Set(float64(s.EffectiveClients))
}

// Reset clears per-run series so consecutive runs do not accumulate.
func (c *Collector) Reset() {
	c.durations.Reset()
	c.errors.Reset()
	c.workers.Reset()
}

// Serve exposes /metrics on addr until ctx is done. It returns once the
// listener is bound.
func (c *Collector) Serve(ctx context.Context, addr string, logger *zap.Logger) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))
	return ln.Addr(), nil
}

// WriteTextfile writes every metric to path in the text exposition format,
// for the node exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
