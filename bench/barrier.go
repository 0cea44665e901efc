package bench

import (
	"context"
	"time"
)

// Barrier releases every waiter at the same instant by closing a single
// channel when the scheduled start arrives.
type Barrier struct {
	at      time.Time
	release chan struct{}
	timer   *time.Timer
}

// NewBarrier schedules the release for at.
func NewBarrier(at time.Time) *Barrier {
	b := &Barrier{at: at, release: make(chan struct{})}
	b.timer = time.AfterFunc(time.Until(at), func() { close(b.release) })
	return b
}

// Stop cancels a pending release. It reports false when the barrier had
// already opened. Waiters still blocked must be released by their context.
func (b *Barrier) Stop() bool {
	return b.timer.Stop()
}

// At is the scheduled release instant.
func (b *Barrier) At() time.Time {
	return b.at
}

// Wait blocks until release. late is true when the caller arrived after the
// barrier had already opened.
func (b *Barrier) Wait(ctx context.Context) (late bool, err error) {
	select {
	case <-b.release:
		return true, nil
	default:
	}

	select {
	case <-b.release:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
