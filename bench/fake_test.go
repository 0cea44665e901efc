package bench

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"sqlite-bench/workload"
)

// fakeBackend is an in-memory Backend with injectable failures.
type fakeBackend struct {
	initErr   error
	opErr     error
	opDelay   time.Duration
	failOpens int32

	inits  atomic.Int32
	opens  atomic.Int32
	ops    atomic.Int64
	closed atomic.Int32

	mu      sync.Mutex
	firstOp time.Time
}

func (b *fakeBackend) Initialize(context.Context) error {
	b.inits.Add(1)
	return b.initErr
}

func (b *fakeBackend) Open(context.Context) (Conn, error) {
	if n := b.opens.Add(1); n <= b.failOpens {
		return nil, errors.New("unable to open database file")
	}
	return &fakeConn{b: b}, nil
}

func (b *fakeBackend) op(ctx context.Context) error {
	now := time.Now()
	b.mu.Lock()
	if b.firstOp.IsZero() || now.Before(b.firstOp) {
		b.firstOp = now
	}
	b.mu.Unlock()

	b.ops.Add(1)
	if b.opDelay > 0 {
		select {
		case <-time.After(b.opDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return b.opErr
}

func (b *fakeBackend) first() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.firstOp
}

type fakeConn struct {
	b *fakeBackend
}

func (c *fakeConn) PointRead(ctx context.Context, _ *workload.Table, _ int64) ([]any, error) {
	return nil, c.b.op(ctx)
}

func (c *fakeConn) PointInsert(ctx context.Context, _ *workload.Table, _ []string, _ []any) error {
	return c.b.op(ctx)
}

func (c *fakeConn) PointUpdate(ctx context.Context, _ *workload.Table, _ int64, _ []string, _ []any) error {
	return c.b.op(ctx)
}

func (c *fakeConn) PointDelete(ctx context.Context, _ *workload.Table, _ int64) error {
	return c.b.op(ctx)
}

func (c *fakeConn) Close() error {
	c.b.closed.Add(1)
	return nil
}

// recordingObserver keeps every state transition per worker.
type recordingObserver struct {
	mu      sync.Mutex
	samples int
	states  map[int][]WorkerState
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{states: map[int][]WorkerState{}}
}

func (o *recordingObserver) ObserveSample(int, Sample) {
	o.mu.Lock()
	o.samples++
	o.mu.Unlock()
}

func (o *recordingObserver) ObserveState(worker int, _, to WorkerState) {
	o.mu.Lock()
	o.states[worker] = append(o.states[worker], to)
	o.mu.Unlock()
}
