package bench

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// PrintStats writes the full report of one run.
func PrintStats(w io.Writer, s Stats) {
	fmt.Fprintf(w, "\n┌─────────────────────────────────────────┐\n")
	fmt.Fprintf(w, "│  %-39s│\n", s.Label)
	fmt.Fprintf(w, "├─────────────────────────────────────────┤\n")
	fmt.Fprintf(w, "│  Total queries:  %-22d│\n", s.Total)
	fmt.Fprintf(w, "│  Total reads:    %-22d│\n", s.Read.Count)
	fmt.Fprintf(w, "│  Total writes:   %-22d│\n", s.Write.Count)
	fmt.Fprintf(w, "│  Errors:         %-22d│\n", s.Errors)
	fmt.Fprintf(w, "│  Clients:        %-22s│\n", fmt.Sprintf("%d/%d", s.EffectiveClients, s.Clients))
	fmt.Fprintf(w, "│  Duration:       %-22s│\n", fmt.Sprintf("%.2f seconds", s.Duration.Seconds()))
	fmt.Fprintf(w, "├─────────────────────────────────────────┤\n")
	fmt.Fprintf(w, "│  Queries/sec:    %-22.2f│\n", s.QPS)
	fmt.Fprintf(w, "│  Reads/sec:      %-22.2f│\n", s.Read.QPS)
	fmt.Fprintf(w, "│  Writes/sec:     %-22.2f│\n", s.Write.QPS)
	fmt.Fprintf(w, "└─────────────────────────────────────────┘\n")

	PrintPercentiles(w, s)

	fmt.Fprintf(w, "\nAverage durations (milliseconds):\n")
	fmt.Fprintf(w, "  Write: %s\n", FmtMean(s.Write))
	fmt.Fprintf(w, "  Read:  %s\n", FmtMean(s.Read))
}

// PrintPercentiles writes the percentile table, one row per rank with
// write and read latency in milliseconds.
func PrintPercentiles(w io.Writer, s Stats) {
	fmt.Fprintf(w, "\nPercentiles (milliseconds):\n")
	fmt.Fprintf(w, "╔════════════╦══════════════╦══════════════╗\n")
	fmt.Fprintf(w, "║ Percentile ║ Write        ║ Read         ║\n")
	fmt.Fprintf(w, "╠════════════╬══════════════╬══════════════╣\n")
	for _, p := range Percentiles {
		fmt.Fprintf(w, "║ %-10s ║ %-12s ║ %-12s ║\n",
			fmt.Sprintf("P%g", p), FmtPct(s.Write, p), FmtPct(s.Read, p))
	}
	fmt.Fprintf(w, "╚════════════╩══════════════╩══════════════╝\n")
}

// PrintFailures lists workers that never started.
func PrintFailures(w io.Writer, failed []WorkerReport) {
	if len(failed) == 0 {
		return
	}
	fmt.Fprintf(w, "\n⚠ %d client(s) failed to start:\n", len(failed))
	for _, f := range failed {
		fmt.Fprintf(w, "  - %v\n", f.Err)
	}
}

// PrintComparison puts a baseline and a candidate run side by side.
func PrintComparison(w io.Writer, baseline, candidate Stats) {
	fmt.Fprintf(w, "\n╔═════════════════════════════════════════════════════════════╗\n")
	fmt.Fprintf(w, "║  TUNING COMPARISON                                          ║\n")
	fmt.Fprintf(w, "╠═══════════════════╦════════════════╦════════════════════════╣\n")
	fmt.Fprintf(w, "║  Metric           ║  %-13s ║  %-21s ║\n", trunc(baseline.Label, 13), trunc(candidate.Label, 21))
	fmt.Fprintf(w, "╠═══════════════════╬════════════════╬════════════════════════╣\n")
	fmt.Fprintf(w, "║  QPS              ║  %-13.1f ║  %-21.1f ║\n", baseline.QPS, candidate.QPS)
	fmt.Fprintf(w, "║  Errors           ║  %-13d ║  %-21d ║\n", baseline.Errors, candidate.Errors)
	fmt.Fprintf(w, "║  Read avg (ms)    ║  %-13s ║  %-21s ║\n", FmtMean(baseline.Read), FmtMean(candidate.Read))
	fmt.Fprintf(w, "║  Write avg (ms)   ║  %-13s ║  %-21s ║\n", FmtMean(baseline.Write), FmtMean(candidate.Write))
	for _, p := range []float64{50, 95, 99} {
		fmt.Fprintf(w, "║  Read p%-2g (ms)    ║  %-13s ║  %-21s ║\n", p, FmtPct(baseline.Read, p), FmtPct(candidate.Read, p))
		fmt.Fprintf(w, "║  Write p%-2g (ms)   ║  %-13s ║  %-21s ║\n", p, FmtPct(baseline.Write, p), FmtPct(candidate.Write, p))
	}
	fmt.Fprintf(w, "╠═══════════════════╩════════════════╩════════════════════════╣\n")
	fmt.Fprintf(w, "║  QPS change:           %-36s ║\n", fmtChange(baseline.QPS, candidate.QPS))
	fmt.Fprintf(w, "║  Write p50 change:     %-36s ║\n", fmtPctChange(baseline.Write, candidate.Write, 50))
	fmt.Fprintf(w, "║  Read p50 change:      %-36s ║\n", fmtPctChange(baseline.Read, candidate.Read, 50))
	fmt.Fprintf(w, "╚═════════════════════════════════════════════════════════════╝\n")
}

func fmtChange(from, to float64) string {
	if from == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%+.1f%%", (to-from)/from*100)
}

func fmtPctChange(from, to KindStats, rank float64) string {
	a, okA := from.At(rank)
	b, okB := to.At(rank)
	if !okA || !okB {
		return "N/A"
	}
	return fmtChange(a, b)
}

func trunc(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}

// GenerateJSON writes v as indented JSON to w.
func GenerateJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

func FmtPct(k KindStats, rank float64) string {
	v, ok := k.At(rank)
	if !ok {
		return "N/A"
	}
	return fmt.Sprintf("%.3f", v)
}

func FmtMean(k KindStats) string {
	if !k.Applicable() {
		return "N/A"
	}
	return fmt.Sprintf("%.3f", k.MeanMs)
}

func FmtDur(d time.Duration) string {
	us := float64(d.Microseconds())
	if us < 1000 {
		return fmt.Sprintf("%.0fµs", us)
	}
	return fmt.Sprintf("%.2fms", us/1000)
}
