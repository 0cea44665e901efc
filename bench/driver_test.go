package bench

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"sqlite-bench/workload"
)

const testStartDelay = 50 * time.Millisecond

func runDriver(t *testing.T, backend Backend, cfg Config, opts ...Option) (*Result, Stats) {
	t.Helper()
	if cfg.StartDelay == 0 {
		cfg.StartDelay = testStartDelay
	}
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	d := NewDriver(backend, workload.NewFlat(1000), cfg, opts...)

	res, err := d.Run(context.Background())
	require.NoError(t, err)
	stats, err := res.Summarize("test")
	require.NoError(t, err)
	return res, stats
}

func TestRunReadOnly(t *testing.T) {
	_, stats := runDriver(t, &fakeBackend{}, Config{Clients: 1, QueriesPerClient: 100, WriteProbability: 0, Seed: 1})

	assert.Equal(t, 100, stats.Total)
	assert.Equal(t, 100, stats.Read.Count)
	assert.Zero(t, stats.Write.Count)
	assert.False(t, stats.Write.Applicable())
	assert.Equal(t, "N/A", FmtPct(stats.Write, 50))
	assert.Equal(t, "N/A", FmtMean(stats.Write))
	assert.Len(t, stats.Read.Percentiles, len(Percentiles))
}

func TestRunWriteOnly(t *testing.T) {
	_, stats := runDriver(t, &fakeBackend{}, Config{Clients: 1, QueriesPerClient: 100, WriteProbability: 1, Seed: 1})

	assert.Equal(t, 100, stats.Write.Count)
	assert.Zero(t, stats.Read.Count)
	assert.Equal(t, "N/A", FmtPct(stats.Read, 99.9))
}

func TestRunMixed(t *testing.T) {
	backend := &fakeBackend{}
	res, stats := runDriver(t, backend, Config{Clients: 4, QueriesPerClient: 50, WriteProbability: 0.5, Seed: 42})

	assert.Equal(t, 200, stats.Total)
	assert.Equal(t, stats.Total, stats.Read.Count+stats.Write.Count)
	assert.Positive(t, stats.Read.Count)
	assert.Positive(t, stats.Write.Count)
	assert.Equal(t, 4, stats.Clients)
	assert.Equal(t, 4, stats.EffectiveClients)
	assert.Zero(t, stats.Errors)
	assert.Empty(t, res.FailedWorkers())
	assert.Equal(t, int32(4), backend.closed.Load())
	assert.Equal(t, int32(1), backend.inits.Load())

	for _, r := range res.Workers {
		assert.Equal(t, 50, r.Samples)
		assert.False(t, r.LateStart)
	}
}

func TestRunRecordsOperationErrors(t *testing.T) {
	backend := &fakeBackend{opErr: errors.New("database is locked")}
	res, stats := runDriver(t, backend, Config{Clients: 2, QueriesPerClient: 30, WriteProbability: 0.5, Seed: 3})

	assert.Equal(t, 60, stats.Total)
	assert.Equal(t, 60, stats.Errors)
	assert.Equal(t, stats.Errors, stats.Read.Errors+stats.Write.Errors)
	assert.Equal(t, 2, stats.EffectiveClients)
	for _, r := range res.Workers {
		assert.Equal(t, 30, r.Errors)
		assert.NoError(t, r.Err)
	}
	for _, s := range res.Samples {
		assert.Error(t, s.Err)
	}
}

func TestRunOpenFailureReducesEffectiveClients(t *testing.T) {
	backend := &fakeBackend{failOpens: 1}
	res, stats := runDriver(t, backend, Config{Clients: 4, QueriesPerClient: 50, WriteProbability: 0.5, Seed: 5})

	assert.Equal(t, 4, stats.Clients)
	assert.Equal(t, 3, stats.EffectiveClients)
	assert.Equal(t, 150, stats.Total)

	failed := res.FailedWorkers()
	require.Len(t, failed, 1)
	assert.ErrorIs(t, failed[0].Err, ErrConnect)
	var we *WorkerError
	require.ErrorAs(t, failed[0].Err, &we)
	assert.Equal(t, failed[0].ID, we.ID)
}

func TestRunAllWorkersFail(t *testing.T) {
	res, stats := runDriver(t, &fakeBackend{failOpens: 3}, Config{Clients: 3, QueriesPerClient: 10})

	assert.Len(t, res.FailedWorkers(), 3)
	assert.Zero(t, stats.Total)
	assert.Zero(t, stats.EffectiveClients)
	assert.Zero(t, stats.QPS)
	assert.Greater(t, res.Window.Elapsed(), time.Duration(0))
}

func TestRunWindowStartsAtBarrier(t *testing.T) {
	backend := &fakeBackend{}
	before := time.Now()
	res, stats := runDriver(t, backend, Config{Clients: 3, QueriesPerClient: 20, Seed: 9, StartDelay: 100 * time.Millisecond})

	assert.False(t, res.Window.ScheduledStart.Before(before.Add(100*time.Millisecond)))
	assert.True(t, res.Window.ObservedEnd.After(res.Window.ScheduledStart))
	assert.False(t, backend.first().Before(res.Window.ScheduledStart), "an operation ran before the scheduled start")
	assert.InDelta(t, float64(stats.Total)/res.Window.Elapsed().Seconds(), stats.QPS, 1e-9)
}

func TestRunWarmupIsExcluded(t *testing.T) {
	backend := &fakeBackend{}
	_, stats := runDriver(t, backend, Config{Clients: 2, QueriesPerClient: 10, Warmup: 25, Seed: 1})

	assert.Equal(t, 20, stats.Total)
	assert.Equal(t, int64(45), backend.ops.Load())
	// One warm-up connection plus one per client.
	assert.Equal(t, int32(3), backend.opens.Load())
}

func TestRunIsDeterministicWithSeed(t *testing.T) {
	cfg := Config{Clients: 2, QueriesPerClient: 40, WriteProbability: 0.3, Seed: 11}
	a, _ := runDriver(t, &fakeBackend{}, cfg)
	b, _ := runDriver(t, &fakeBackend{}, cfg)

	require.Len(t, b.Samples, len(a.Samples))
	for i := range a.Samples {
		assert.Equal(t, a.Samples[i].Kind, b.Samples[i].Kind, "sample %d", i)
	}
}

func TestRunObservesWorkerLifecycle(t *testing.T) {
	obs := newRecordingObserver()
	runDriver(t, &fakeBackend{failOpens: 1}, Config{Clients: 3, QueriesPerClient: 5, Seed: 1}, WithObserver(obs))

	assert.Equal(t, 10, obs.samples)
	require.Len(t, obs.states, 3)

	var full, short int
	for _, states := range obs.states {
		switch len(states) {
		case 3:
			assert.Equal(t, []WorkerState{WaitingAtBarrier, Running, Done}, states)
			full++
		case 1:
			assert.Equal(t, []WorkerState{Done}, states)
			short++
		}
	}
	assert.Equal(t, 2, full)
	assert.Equal(t, 1, short)
}

func TestRunCancelled(t *testing.T) {
	backend := &fakeBackend{opDelay: time.Millisecond}
	d := NewDriver(backend, workload.NewFlat(100), Config{
		Clients:          2,
		QueriesPerClient: 100000,
		StartDelay:       20 * time.Millisecond,
		Seed:             1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	res, err := d.Run(ctx)
	require.NoError(t, err)
	assert.Less(t, len(res.Samples), 200000)

	stats, err := res.Summarize("cancelled")
	require.NoError(t, err)
	assert.Equal(t, len(res.Samples), stats.Total)
	for _, s := range res.Samples {
		assert.NotErrorIs(t, s.Err, context.Canceled)
		assert.NotErrorIs(t, s.Err, context.DeadlineExceeded)
	}
}

func TestRunCancelledBeforeStart(t *testing.T) {
	d := NewDriver(&fakeBackend{}, workload.NewFlat(100), Config{
		Clients:          2,
		QueriesPerClient: 10,
		StartDelay:       time.Hour,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res, err := d.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Samples)

	_, err = res.Summarize("never started")
	assert.ErrorIs(t, err, ErrEmptyWindow)
}

func TestRunErrors(t *testing.T) {
	_, err := NewDriver(&fakeBackend{}, workload.NewFlat(10), Config{Clients: 0, QueriesPerClient: 1}).Run(context.Background())
	assert.Error(t, err)

	_, err = NewDriver(&fakeBackend{}, workload.NewFlat(10), Config{Clients: 1, QueriesPerClient: 0}).Run(context.Background())
	assert.Error(t, err)

	initErr := errors.New("disk I/O error")
	_, err = NewDriver(&fakeBackend{initErr: initErr}, workload.NewFlat(10), Config{Clients: 1, QueriesPerClient: 1}).Run(context.Background())
	assert.ErrorIs(t, err, initErr)
}

func TestNewDriverDefaultsStartDelay(t *testing.T) {
	d := NewDriver(&fakeBackend{}, workload.NewFlat(10), Config{Clients: 1, QueriesPerClient: 1})
	assert.Equal(t, DefaultStartDelay, d.cfg.StartDelay)
}
