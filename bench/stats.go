package bench

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"sqlite-bench/workload"
)

// Summarize partitions samples by kind and computes latency percentiles,
// means and throughput over window.
func Summarize(label string, samples []Sample, window RunWindow) (Stats, error) {
	elapsed := window.Elapsed()
	if elapsed <= 0 {
		return Stats{}, fmt.Errorf("%w: %s", ErrEmptyWindow, elapsed)
	}

	stats := Stats{
		RunID:    uuid.NewString(),
		Label:    label,
		Total:    len(samples),
		Duration: elapsed,
		QPS:      float64(len(samples)) / elapsed.Seconds(),
	}

	var reads, writes []time.Duration
	var readErrs, writeErrs int
	for _, s := range samples {
		switch s.Kind {
		case workload.Read:
			reads = append(reads, s.Duration)
			if s.Err != nil {
				readErrs++
			}
		case workload.Write:
			writes = append(writes, s.Duration)
			if s.Err != nil {
				writeErrs++
			}
		}
	}

	stats.Read = summarizeKind(workload.Read, reads, readErrs, elapsed)
	stats.Write = summarizeKind(workload.Write, writes, writeErrs, elapsed)
	stats.Errors = readErrs + writeErrs

	return stats, nil
}

// Summarize aggregates the run and fills in the client counts.
func (r *Result) Summarize(label string) (Stats, error) {
	stats, err := Summarize(label, r.Samples, r.Window)
	if err != nil {
		return stats, err
	}
	stats.Clients = len(r.Workers)
	stats.EffectiveClients = len(r.Workers) - len(r.FailedWorkers())
	return stats, nil
}

func summarizeKind(kind workload.Kind, durations []time.Duration, errs int, elapsed time.Duration) KindStats {
	ks := KindStats{
		Kind:   kind,
		Count:  len(durations),
		Errors: errs,
		QPS:    float64(len(durations)) / elapsed.Seconds(),
	}
	if len(durations) == 0 {
		return ks
	}

	ms := make([]float64, len(durations))
	var sum float64
	for i, d := range durations {
		ms[i] = toMs(d)
		sum += ms[i]
	}
	sort.Float64s(ms)

	ks.MeanMs = sum / float64(len(ms))
	ks.MinMs = ms[0]
	ks.MaxMs = ms[len(ms)-1]
	ks.Percentiles = make([]Percentile, len(Percentiles))
	for i, p := range Percentiles {
		ks.Percentiles[i] = Percentile{Rank: p, Ms: pct(ms, p)}
	}

	return ks
}

// MedianStats picks the median run by QPS from multiple runs.
func MedianStats(runs []Stats) Stats {
	if len(runs) == 1 {
		return runs[0]
	}
	sorted := make([]Stats, len(runs))
	copy(sorted, runs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].QPS < sorted[j].QPS })
	return sorted[len(sorted)/2]
}

// SteadyState checks if QPS variance across runs is within tolerance.
func SteadyState(runs []Stats, tolerance float64) (bool, float64) {
	if len(runs) < 2 {
		return true, 0
	}
	var sum float64
	for _, r := range runs {
		sum += r.QPS
	}
	mean := sum / float64(len(runs))
	if mean == 0 {
		return false, 0
	}

	var maxDev float64
	for _, r := range runs {
		dev := math.Abs(r.QPS-mean) / mean
		if dev > maxDev {
			maxDev = dev
		}
	}
	return maxDev <= tolerance, maxDev
}

// pct interpolates linearly between the closest ranks of a sorted slice.
func pct(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if hi >= len(sorted) {
		hi = len(sorted) - 1
	}
	frac := rank - float64(lo)
	v := sorted[lo] + (sorted[hi]-sorted[lo])*frac
	// Keep rounding from stepping outside the bracketing samples.
	return math.Min(math.Max(v, sorted[lo]), sorted[hi])
}

func toMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
