package bench

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/cheggaaa/pb/v3"
)

// progressTemplate renders e.g. "  Progress: 120 / 1000 [==>   ] 12.00% errors=3".
const progressTemplate pb.ProgressBarTemplate = `{{string . "prefix"}}{{counters . }} {{bar . }} {{percent . }} {{string . "errors"}}`

const progressWidth = 80

// Progress drives a progress bar from completed operations.
type Progress struct {
	total  int64
	done   atomic.Int64
	errors atomic.Int64

	bar atomic.Pointer[pb.ProgressBar]
}

// NewProgress tracks a run of total operations.
func NewProgress(total int) *Progress {
	return &Progress{total: int64(total)}
}

func (p *Progress) ObserveSample(_ int, s Sample) {
	done := p.done.Add(1)
	bar := p.bar.Load()
	if s.Err != nil {
		errs := p.errors.Add(1)
		if bar != nil {
			bar.Set("errors", errorsLabel(errs))
		}
	}
	if bar != nil {
		bar.SetCurrent(done)
	}
}

func (p *Progress) ObserveState(int, WorkerState, WorkerState) {}

// Reset zeroes the counters between runs.
func (p *Progress) Reset() {
	p.done.Store(0)
	p.errors.Store(0)
}

// Done returns the number of completed operations.
func (p *Progress) Done() int64 {
	return p.done.Load()
}

// String renders the current state as one line.
func (p *Progress) String() string {
	if bar := p.bar.Load(); bar != nil {
		return bar.String()
	}
	return p.newBar(io.Discard, time.Second).String()
}

// Start refreshes the bar on w every interval. stop renders the final state
// and returns once it is written.
func (p *Progress) Start(w io.Writer, interval time.Duration) (stop func()) {
	bar := p.newBar(w, interval)
	bar.Start()
	p.bar.Store(bar)

	return func() {
		p.bar.CompareAndSwap(bar, nil)
		bar.SetCurrent(p.done.Load())
		bar.Set("errors", errorsLabel(p.errors.Load()))
		bar.Finish()
	}
}

func (p *Progress) newBar(w io.Writer, interval time.Duration) *pb.ProgressBar {
	bar := progressTemplate.New(int(p.total))
	bar.SetWriter(w).SetRefreshRate(interval).SetWidth(progressWidth)
	bar.Set("prefix", "  Progress: ")
	bar.Set("errors", errorsLabel(p.errors.Load()))
	bar.SetCurrent(p.done.Load())
	return bar
}

func errorsLabel(n int64) string {
	return fmt.Sprintf("errors=%d", n)
}
