package bench

import (
	"context"
	"fmt"
	"io"
	"time"
)

// steadyStateTolerance is the allowed QPS deviation from the mean across runs.
const steadyStateTolerance = 0.05

// RunMultiple executes runFn N times, checks steady-state, returns median.
// runFn receives the run index (0-based) and returns stats for that run.
// When ctx is done the remaining runs are skipped and the median of the
// completed ones is returned.
func RunMultiple(ctx context.Context, w io.Writer, runs int, cooldown time.Duration, label string, runFn func(run int) (Stats, error)) (Stats, error) {
	if runs <= 1 {
		return runFn(0)
	}

	fmt.Fprintf(w, "\n╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Fprintf(w, "║  %d-RUN BENCHMARK: %-38s║\n", runs, label)
	fmt.Fprintf(w, "║  Methodology: median of %d runs, steady-state verified    ║\n", runs)
	fmt.Fprintf(w, "╚═══════════════════════════════════════════════════════════╝\n")

	allRuns := make([]Stats, 0, runs)

loop:
	for i := 0; i < runs; i++ {
		fmt.Fprintf(w, "\n── Run %d/%d ──\n", i+1, runs)
		stats, err := runFn(i)
		if err != nil {
			return Stats{}, fmt.Errorf("run %d: %w", i+1, err)
		}
		allRuns = append(allRuns, stats)

		fmt.Fprintf(w, "  Run %d: QPS=%.1f  read p50=%s  write p50=%s  elapsed=%s  errors=%d\n",
			i+1, stats.QPS,
			FmtPct(stats.Read, 50),
			FmtPct(stats.Write, 50),
			FmtDur(stats.Duration),
			stats.Errors)

		if i == runs-1 {
			break
		}
		if ctx.Err() != nil {
			fmt.Fprintf(w, "  Interrupted, skipping %d remaining run(s)\n", runs-i-1)
			break
		}

		// Cleanup pause between runs (not after last)
		if cooldown > 0 {
			fmt.Fprintf(w, "  Cooling down (%s)...", cooldown)
			select {
			case <-time.After(cooldown):
				fmt.Fprintln(w, " done")
			case <-ctx.Done():
				fmt.Fprintf(w, " interrupted, skipping %d remaining run(s)\n", runs-i-1)
				break loop
			}
		}
	}

	// Steady-state check
	steady, maxDev := SteadyState(allRuns, steadyStateTolerance)
	fmt.Fprintf(w, "\n── Steady-State Check ──\n")
	fmt.Fprintf(w, "  Max QPS deviation: %.1f%%\n", maxDev*100)
	if steady {
		fmt.Fprintln(w, "  ✅ PASSED (within ±5%)")
	} else {
		fmt.Fprintf(w, "  ⚠️  FAILED (%.1f%% > 5%%), median still reported\n", maxDev*100)
	}

	median := MedianStats(allRuns)
	median.Label = fmt.Sprintf("%s (median of %d runs)", label, len(allRuns))

	// Summary table
	fmt.Fprintf(w, "\n╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Fprintf(w, "║  ALL RUNS SUMMARY                                        ║\n")
	fmt.Fprintf(w, "╠═════╦══════════╦══════════╦══════════╦═══════════════════╣\n")
	fmt.Fprintf(w, "║ Run ║   QPS    ║ read p50 ║ wrt p50  ║ Errors            ║\n")
	fmt.Fprintf(w, "╠═════╬══════════╬══════════╬══════════╬═══════════════════╣\n")
	for i, r := range allRuns {
		marker := "  "
		if r.RunID == median.RunID {
			marker = "→ "
		}
		fmt.Fprintf(w, "║ %s%d  ║ %8.1f ║ %8s ║ %8s ║ %-17d ║\n",
			marker, i+1, r.QPS, FmtPct(r.Read, 50), FmtPct(r.Write, 50), r.Errors)
	}
	fmt.Fprintf(w, "╚═════╩══════════╩══════════╩══════════╩═══════════════════╝\n")
	fmt.Fprintln(w, "  → = median (reported)")

	return median, nil
}
