package bench

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"

	"go.uber.org/zap"
)

// WorkerState is the lifecycle position of a worker.
type WorkerState int32

const (
	Created WorkerState = iota
	WaitingAtBarrier
	Running
	Done
)

func (s WorkerState) String() string {
	switch s {
	case Created:
		return "created"
	case WaitingAtBarrier:
		return "waiting"
	case Running:
		return "running"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", s)
	}
}

// maxLoggedErrors caps per-worker operation error logging; the rest are
// only counted.
const maxLoggedErrors = 5

// Worker owns one connection and runs a closed loop of operations.
type Worker struct {
	id       int
	backend  Backend
	gen      *Generator
	queries  int
	rng      *rand.Rand
	logger   *zap.Logger
	observer Observer
	state    atomic.Int32
}

// NewWorker creates a worker in the Created state. rng must not be shared.
func NewWorker(id int, backend Backend, gen *Generator, queries int, rng *rand.Rand, logger *zap.Logger, observer Observer) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Worker{
		id:       id,
		backend:  backend,
		gen:      gen,
		queries:  queries,
		rng:      rng,
		logger:   logger.With(zap.Int("worker", id)),
		observer: observer,
	}
}

// State returns the current lifecycle state.
func (w *Worker) State() WorkerState {
	return WorkerState(w.state.Load())
}

func (w *Worker) transition(to WorkerState) {
	from := WorkerState(w.state.Swap(int32(to)))
	w.observer.ObserveState(w.id, from, to)
}

// Run opens the connection, waits at the barrier and executes the
// configured number of operations. Operation errors are recorded on the
// samples; only a failed open ends the worker early.
func (w *Worker) Run(ctx context.Context, barrier *Barrier) ([]Sample, WorkerReport) {
	report := WorkerReport{ID: w.id}
	defer w.transition(Done)

	conn, err := w.backend.Open(ctx)
	if err != nil {
		report.Err = &WorkerError{ID: w.id, Err: fmt.Errorf("%w: %w", ErrConnect, err)}
		w.logger.Error("worker failed to start", zap.Error(err))
		return nil, report
	}
	defer func() {
		if err := conn.Close(); err != nil {
			w.logger.Warn("close connection", zap.Error(err))
		}
	}()

	w.transition(WaitingAtBarrier)
	late, err := barrier.Wait(ctx)
	if err != nil {
		return nil, report
	}
	if late {
		report.LateStart = true
		w.logger.Warn("worker reached barrier after scheduled start; increase the start delay")
	}

	w.transition(Running)
	samples := make([]Sample, 0, w.queries)
	for i := 0; i < w.queries; i++ {
		if ctx.Err() != nil {
			break
		}
		s := w.gen.ChooseAndRun(ctx, conn, w.rng)
		if ctx.Err() != nil {
			// Interrupted by cancellation; the sample is not a real latency.
			break
		}
		samples = append(samples, s)
		w.observer.ObserveSample(w.id, s)

		if s.Err != nil {
			report.Errors++
			if report.Errors <= maxLoggedErrors {
				w.logger.Warn("operation failed", zap.Stringer("kind", s.Kind), zap.Error(s.Err))
			}
		}
	}
	report.Samples = len(samples)

	return samples, report
}
