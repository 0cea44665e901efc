package bench

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sqlite-bench/workload"
)

// warmupWriteProbability is the fixed mix used before measuring.
const warmupWriteProbability = 0.5

// Driver runs synchronized multi-client benchmarks against one backend.
type Driver struct {
	backend  Backend
	schema   workload.Schema
	cfg      Config
	logger   *zap.Logger
	observer Observer
}

// Option customizes a Driver.
type Option func(*Driver)

// WithLogger sets the driver logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// WithObserver attaches live event observers.
func WithObserver(o Observer) Option {
	return func(d *Driver) { d.observer = o }
}

// NewDriver creates a driver for backend and schema.
func NewDriver(backend Backend, schema workload.Schema, cfg Config, opts ...Option) *Driver {
	d := &Driver{
		backend:  backend,
		schema:   schema,
		cfg:      cfg,
		logger:   zap.NewNop(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.cfg.StartDelay <= 0 {
		d.cfg.StartDelay = DefaultStartDelay
	}
	return d
}

// Run resets the backend, warms it up and measures cfg.Clients workers
// released together. A worker that cannot start is reported in the result
// and does not stop its siblings.
func (d *Driver) Run(ctx context.Context) (*Result, error) {
	if d.cfg.Clients <= 0 || d.cfg.QueriesPerClient <= 0 {
		return nil, fmt.Errorf("clients and queries must be positive (clients=%d, queries=%d)",
			d.cfg.Clients, d.cfg.QueriesPerClient)
	}

	if err := d.backend.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialize backend: %w", err)
	}

	d.warmup(ctx)

	gen := NewGenerator(d.schema, d.cfg.WriteProbability)
	workers := make([]*Worker, d.cfg.Clients)
	for i := range workers {
		workers[i] = NewWorker(i, d.backend, gen, d.cfg.QueriesPerClient, d.rng(i+1), d.logger, d.observer)
	}

	barrier := NewBarrier(time.Now().Add(d.cfg.StartDelay))
	d.logger.Info("dispatching workers",
		zap.Int("clients", d.cfg.Clients),
		zap.Int("queries_per_client", d.cfg.QueriesPerClient),
		zap.Float64("write_probability", d.cfg.WriteProbability),
		zap.Time("scheduled_start", barrier.At()),
	)

	samples := make([][]Sample, len(workers))
	reports := make([]WorkerReport, len(workers))

	var g errgroup.Group
	g.SetLimit(len(workers))
	for i, w := range workers {
		g.Go(func() error {
			samples[i], reports[i] = w.Run(ctx, barrier)
			return nil
		})
	}

	// The window opens at the barrier even if every worker failed to start.
	if _, err := barrier.Wait(ctx); err != nil {
		barrier.Stop()
	}
	_ = g.Wait()
	end := time.Now()

	res := &Result{
		Window:  RunWindow{ScheduledStart: barrier.At(), ObservedEnd: end},
		Workers: reports,
	}
	total := 0
	for _, s := range samples {
		total += len(s)
	}
	res.Samples = make([]Sample, 0, total)
	for _, s := range samples {
		res.Samples = append(res.Samples, s...)
	}

	failed := len(res.FailedWorkers())
	d.logger.Info("run complete",
		zap.Int("samples", total),
		zap.Int("failed_workers", failed),
		zap.Duration("elapsed", res.Window.Elapsed()),
	)

	return res, nil
}

// warmup runs on one ad hoc connection before any worker exists. Its
// samples are discarded.
func (d *Driver) warmup(ctx context.Context) {
	if d.cfg.Warmup <= 0 {
		return
	}

	conn, err := d.backend.Open(ctx)
	if err != nil {
		d.logger.Warn("skipping warm-up", zap.Error(err))
		return
	}
	defer conn.Close()

	d.logger.Info("warming up", zap.Int("queries", d.cfg.Warmup))
	gen := NewGenerator(d.schema, warmupWriteProbability)
	rng := d.rng(0)
	errs := 0
	for i := 0; i < d.cfg.Warmup && ctx.Err() == nil; i++ {
		if s := gen.ChooseAndRun(ctx, conn, rng); s.Err != nil {
			errs++
		}
	}
	if errs > 0 {
		d.logger.Warn("warm-up finished with errors", zap.Int("errors", errs))
	}
}

// rng returns the private random stream for slot (0 is warm-up).
func (d *Driver) rng(slot int) *rand.Rand {
	seed := d.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed + int64(slot)))
}
