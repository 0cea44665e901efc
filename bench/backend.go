package bench

import (
	"context"
	"errors"
	"fmt"

	"sqlite-bench/workload"
)

// Backend is the storage the driver measures.
type Backend interface {
	// Initialize resets storage to an empty, schema-valid state and applies
	// the persistent tuning. Calling it twice yields the same state.
	Initialize(ctx context.Context) error
	// Open returns a connection owned by exactly one caller, with the
	// runtime tuning already applied.
	Open(ctx context.Context) (Conn, error)
}

// Conn is a private connection. Mutations are committed before returning.
type Conn interface {
	// PointRead returns the row for key, or nil when it does not exist.
	PointRead(ctx context.Context, t *workload.Table, key int64) ([]any, error)
	PointInsert(ctx context.Context, t *workload.Table, columns []string, values []any) error
	PointUpdate(ctx context.Context, t *workload.Table, key int64, columns []string, values []any) error
	PointDelete(ctx context.Context, t *workload.Table, key int64) error
	Close() error
}

// Exec dispatches a planned op onto conn.
func Exec(ctx context.Context, conn Conn, op workload.Op) error {
	switch op.Verb {
	case workload.Select:
		_, err := conn.PointRead(ctx, op.Table, op.Key)
		return err
	case workload.Insert:
		return conn.PointInsert(ctx, op.Table, op.Columns, op.Values)
	case workload.Update:
		return conn.PointUpdate(ctx, op.Table, op.Key, op.Columns, op.Values)
	case workload.Delete:
		return conn.PointDelete(ctx, op.Table, op.Key)
	default:
		return fmt.Errorf("unsupported verb %s", op.Verb)
	}
}

var (
	// ErrConnect marks a worker that could not open its connection.
	ErrConnect = errors.New("open connection")
	// ErrEmptyWindow is returned when the measured window is not positive.
	ErrEmptyWindow = errors.New("measurement window must be positive")
)

// WorkerError is the fatal startup failure of a single worker.
type WorkerError struct {
	ID  int
	Err error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker %d: %v", e.ID, e.Err)
}

func (e *WorkerError) Unwrap() error { return e.Err }
