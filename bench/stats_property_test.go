package bench

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"sqlite-bench/workload"
)

func TestProperty_Percentiles(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	toSamples := func(nanos []int64, writeEvery int) []Sample {
		samples := make([]Sample, len(nanos))
		for i, n := range nanos {
			kind := workload.Read
			if writeEvery > 0 && i%writeEvery == 0 {
				kind = workload.Write
			}
			samples[i] = Sample{Kind: kind, Duration: time.Duration(n)}
		}
		return samples
	}

	// Percentiles are listed highest rank first, so values never increase.
	properties.Property("percentiles are monotonic and bounded by min and max", prop.ForAll(
		func(nanos []int64) bool {
			if len(nanos) == 0 {
				return true
			}
			stats, err := Summarize("p", toSamples(nanos, 0), window(time.Second))
			if err != nil {
				return false
			}
			k := stats.Read
			prev := k.MaxMs
			for _, p := range k.Percentiles {
				if p.Ms > prev || p.Ms < k.MinMs {
					return false
				}
				prev = p.Ms
			}
			const eps = 1e-9
			return k.MeanMs >= k.MinMs*(1-eps) && k.MeanMs <= k.MaxMs*(1+eps)
		},
		gen.SliceOf(gen.Int64Range(1, int64(10*time.Second))),
	))

	properties.Property("every sample is counted in exactly one kind", prop.ForAll(
		func(nanos []int64, writeEvery int) bool {
			stats, err := Summarize("p", toSamples(nanos, writeEvery), window(time.Second))
			if err != nil {
				return false
			}
			return stats.Total == len(nanos) && stats.Read.Count+stats.Write.Count == stats.Total
		},
		gen.SliceOf(gen.Int64Range(1, int64(time.Second))),
		gen.IntRange(0, 5),
	))

	properties.TestingRun(t)
}
