package bench

import (
	"time"

	"sqlite-bench/workload"
)

// Config is the immutable description of one measured run.
type Config struct {
	Clients          int
	QueriesPerClient int
	WriteProbability float64
	Warmup           int
	// StartDelay is the grace period between dispatch and the synchronized
	// start; it must cover connection open for every client.
	StartDelay time.Duration
	// Seed makes worker RNG streams reproducible when non-zero.
	Seed int64
}

// DefaultStartDelay is the grace period used when Config.StartDelay is zero.
const DefaultStartDelay = 3 * time.Second

// Sample is the latency of one operation. Err is set when the backend
// failed; the elapsed time is still recorded.
type Sample struct {
	Duration time.Duration
	Kind     workload.Kind
	Err      error
}

// RunWindow is the measured wall-clock interval.
type RunWindow struct {
	ScheduledStart time.Time
	ObservedEnd    time.Time
}

// Elapsed is the throughput denominator.
func (w RunWindow) Elapsed() time.Duration {
	return w.ObservedEnd.Sub(w.ScheduledStart)
}

// WorkerReport describes how one worker ended.
type WorkerReport struct {
	ID        int
	Samples   int
	Errors    int
	LateStart bool
	Err       error
}

// Result is everything a driver run produced, before aggregation.
type Result struct {
	Samples []Sample
	Window  RunWindow
	Workers []WorkerReport
}

// FailedWorkers returns the reports of workers that never started.
func (r *Result) FailedWorkers() []WorkerReport {
	var failed []WorkerReport
	for _, w := range r.Workers {
		if w.Err != nil {
			failed = append(failed, w)
		}
	}
	return failed
}

// Percentiles reported for every kind, highest first.
var Percentiles = []float64{99.9, 99, 95, 90, 50}

// Percentile is one row of the percentile table.
type Percentile struct {
	Rank float64 `json:"rank"`
	Ms   float64 `json:"ms"`
}

// KindStats summarizes one operation kind. Percentile and mean values are
// only meaningful when Count > 0.
type KindStats struct {
	Kind        workload.Kind `json:"kind"`
	Count       int           `json:"count"`
	Errors      int           `json:"errors"`
	QPS         float64       `json:"qps"`
	MeanMs      float64       `json:"mean_ms,omitempty"`
	MinMs       float64       `json:"min_ms,omitempty"`
	MaxMs       float64       `json:"max_ms,omitempty"`
	Percentiles []Percentile  `json:"percentiles,omitempty"`
}

// Applicable reports whether latency figures were computed.
func (k KindStats) Applicable() bool {
	return k.Count > 0
}

// At returns the latency for rank, or false when not computed.
func (k KindStats) At(rank float64) (float64, bool) {
	for _, p := range k.Percentiles {
		if p.Rank == rank {
			return p.Ms, true
		}
	}
	return 0, false
}

// Stats is the aggregate view of a run.
type Stats struct {
	RunID            string        `json:"run_id"`
	Label            string        `json:"label"`
	Clients          int           `json:"clients"`
	EffectiveClients int           `json:"effective_clients"`
	Total            int           `json:"total"`
	Errors           int           `json:"errors"`
	Duration         time.Duration `json:"duration_ns"`
	QPS              float64       `json:"qps"`
	Read             KindStats     `json:"read"`
	Write            KindStats     `json:"write"`
}
