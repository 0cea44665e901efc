package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sqlite-bench/bench"
	"sqlite-bench/workload"
)

func TestObserveSample(t *testing.T) {
	c := NewCollector()

	c.ObserveSample(0, bench.Sample{Kind: workload.Read, Duration: time.Millisecond})
	c.ObserveSample(1, bench.Sample{Kind: workload.Read, Duration: 2 * time.Millisecond})
	c.ObserveSample(1, bench.Sample{Kind: workload.Write, Duration: time.Millisecond, Err: errors.New("database is locked")})

	assert.Equal(t, 2, testutil.CollectAndCount(c.durations))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.errors.WithLabelValues("write")))

	count, err := testutil.GatherAndCount(c.Registry(), "sqlitebench_operation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestObserveState(t *testing.T) {
	c := NewCollector()

	c.ObserveState(0, bench.Created, bench.WaitingAtBarrier)
	c.ObserveState(1, bench.Created, bench.WaitingAtBarrier)
	c.ObserveState(0, bench.WaitingAtBarrier, bench.Running)
	c.ObserveState(2, bench.Created, bench.Done)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.workers.WithLabelValues("waiting")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.workers.WithLabelValues("running")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.workers.WithLabelValues("done")))

	c.ObserveState(0, bench.Running, bench.Done)
	assert.Equal(t, float64(0), testutil.ToFloat64(c.workers.WithLabelValues("running")))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.workers.WithLabelValues("done")))
}

func TestRecordStatsAndReset(t *testing.T) {
	c := NewCollector()
	c.ObserveSample(0, bench.Sample{Kind: workload.Read, Duration: time.Millisecond})
	c.RecordStats(bench.Stats{
		QPS:              120,
		EffectiveClients: 3,
		Read:             bench.KindStats{QPS: 100},
		Write:            bench.KindStats{QPS: 20},
	})

	assert.Equal(t, float64(120), testutil.ToFloat64(c.throughput.WithLabelValues("all")))
	assert.Equal(t, float64(20), testutil.ToFloat64(c.throughput.WithLabelValues("write")))
	assert.Equal(t, float64(3), testutil.ToFloat64(c.effectiveClients))

	c.Reset()
	assert.Zero(t, testutil.CollectAndCount(c.durations))
	// Run summaries survive the reset.
	assert.Equal(t, float64(120), testutil.ToFloat64(c.throughput.WithLabelValues("all")))
}

func TestServe(t *testing.T) {
	c := NewCollector()
	c.ObserveSample(0, bench.Sample{Kind: workload.Write, Duration: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr, err := c.Serve(ctx, "127.0.0.1:0", zap.NewNop())
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr.String() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `sqlitebench_operation_duration_seconds_count{kind="write"} 1`)
}

func TestServeRejectsBadAddr(t *testing.T) {
	_, err := NewCollector().Serve(context.Background(), "not-an-addr", zap.NewNop())
	assert.Error(t, err)
}

func TestWriteTextfile(t *testing.T) {
	c := NewCollector()
	c.ObserveSample(0, bench.Sample{Kind: workload.Read, Duration: time.Millisecond, Err: errors.New("x")})

	path := filepath.Join(t.TempDir(), "bench.prom")
	require.NoError(t, c.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `sqlitebench_operation_errors_total{kind="read"} 1`))
}
