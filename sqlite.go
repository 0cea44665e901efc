package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"sqlite-bench/bench"
	"sqlite-bench/config"
	"sqlite-bench/lite"
	"sqlite-bench/metrics"
	"sqlite-bench/workload"
)

const progressInterval = 500 * time.Millisecond

// output splits the human report from machine-readable results. With --json
// the report moves to stderr so stdout holds only JSON.
type output struct {
	report io.Writer
	result io.Writer
	stderr io.Writer
}

func newOutput(cfg *config.Config, stdout, stderr io.Writer) output {
	o := output{report: stdout, result: stdout, stderr: stderr}
	if cfg.JSON {
		o.report = stderr
	}
	return o
}

// session holds what is shared by every run of one invocation.
type session struct {
	cfg       *config.Config
	logger    *zap.Logger
	out       output
	collector *metrics.Collector
}

func newSession(ctx context.Context, cfg *config.Config, logger *zap.Logger, out output) (*session, error) {
	s := &session{cfg: cfg, logger: logger, out: out, collector: metrics.NewCollector()}
	if cfg.MetricsAddr != "" {
		if _, err := s.collector.Serve(ctx, cfg.MetricsAddr, logger); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// finish writes the metrics textfile if one was requested.
func (s *session) finish() error {
	if s.cfg.MetricsFile == "" {
		return nil
	}
	if err := s.collector.WriteTextfile(s.cfg.MetricsFile); err != nil {
		return err
	}
	s.logger.Info("metrics written", zap.String("path", s.cfg.MetricsFile))
	return nil
}

// RunSQLite benchmarks one configuration, taking the median when more than
// one run is configured.
func (s *session) RunSQLite(ctx context.Context, cfg *config.Config) (bench.Stats, error) {
	profile, err := cfg.TuningProfile()
	if err != nil {
		return bench.Stats{}, err
	}
	schema, err := workload.New(cfg.Schema, cfg.KeySpace)
	if err != nil {
		return bench.Stats{}, err
	}
	store, err := lite.New(lite.Options{
		Path:     cfg.DBPath,
		Driver:   cfg.Driver,
		Schema:   schema,
		Profile:  profile,
		SeedRows: cfg.SeedRows,
		Seed:     cfg.Seed,
		Logger:   s.logger,
	})
	if err != nil {
		return bench.Stats{}, err
	}

	w := s.out.report
	fmt.Fprintln(w, "═══════════════════════════════════════════")
	fmt.Fprintln(w, "  SQLite Benchmark")
	fmt.Fprintln(w, "═══════════════════════════════════════════")
	fmt.Fprintf(w, "  Database: %s (%s)\n", cfg.DBPath, cfg.Driver)
	fmt.Fprintf(w, "  Schema: %s | Profile: %s\n", cfg.Schema, profile.Name)
	fmt.Fprintf(w, "  Clients: %d | Queries/client: %d | Writes: %.0f%% | Warm-up: %d\n",
		cfg.Clients, cfg.Queries, cfg.WritePercentage*100, cfg.Warmup)

	observers := bench.Observers{s.collector}
	var progress *bench.Progress
	if cfg.Progress {
		progress = bench.NewProgress(cfg.Clients * cfg.Queries)
		observers = append(observers, progress)
	}

	driver := bench.NewDriver(store, schema, cfg.Bench(),
		bench.WithLogger(s.logger),
		bench.WithObserver(observers),
	)

	label := cfg.Label()
	failures := map[string][]bench.WorkerReport{}

	stats, err := bench.RunMultiple(ctx, w, cfg.Runs, cfg.Cooldown, label, func(run int) (bench.Stats, error) {
		s.collector.Reset()

		if progress != nil {
			progress.Reset()
			stop := progress.Start(s.out.stderr, progressInterval)
			defer stop()
		}

		res, err := driver.Run(ctx)
		if err != nil {
			return bench.Stats{}, err
		}
		st, err := res.Summarize(label)
		if err != nil {
			if errors.Is(err, bench.ErrEmptyWindow) && ctx.Err() != nil {
				return bench.Stats{}, fmt.Errorf("interrupted before the measured window opened: %w", ctx.Err())
			}
			return bench.Stats{}, err
		}
		if ctx.Err() != nil {
			s.logger.Warn("run interrupted, reporting partial results", zap.Int("samples", st.Total))
		}

		failures[st.RunID] = res.FailedWorkers()
		s.collector.RecordStats(st)
		return st, nil
	})
	if err != nil {
		return bench.Stats{}, err
	}

	// The median may not be the last run recorded.
	s.collector.RecordStats(stats)
	bench.PrintFailures(w, failures[stats.RunID])

	return stats, nil
}

// runBenchmark is the root command: one configuration, one report.
func runBenchmark(ctx context.Context, cfg *config.Config, logger *zap.Logger, stdout, stderr io.Writer) error {
	out := newOutput(cfg, stdout, stderr)
	s, err := newSession(ctx, cfg, logger, out)
	if err != nil {
		return err
	}

	stats, err := s.RunSQLite(ctx, cfg)
	if err != nil {
		return err
	}

	if cfg.JSON {
		if err := bench.GenerateJSON(out.result, stats); err != nil {
			return err
		}
	} else {
		bench.PrintStats(out.result, stats)
	}

	return s.finish()
}

// comparison is the JSON shape of the compare command.
type comparison struct {
	Baseline  bench.Stats `json:"baseline"`
	Candidate bench.Stats `json:"candidate"`
}

// runComparison measures the same workload under two tuning profiles.
func runComparison(ctx context.Context, cfg *config.Config, baseline, candidate string, logger *zap.Logger, stdout, stderr io.Writer) error {
	out := newOutput(cfg, stdout, stderr)
	s, err := newSession(ctx, cfg, logger, out)
	if err != nil {
		return err
	}

	configs := make([]config.Config, 2)
	for i, profile := range []string{baseline, candidate} {
		configs[i] = *cfg
		configs[i].Profile = profile
		if err := configs[i].Validate(); err != nil {
			return err
		}
	}

	var results [2]bench.Stats
	for i := range configs {
		profile := configs[i].Profile
		fmt.Fprintf(out.report, "\n[%d/2] %s\n", i+1, profile)
		st, err := s.RunSQLite(ctx, &configs[i])
		if err != nil {
			return fmt.Errorf("%s: %w", profile, err)
		}
		st.Label = profile
		results[i] = st

		if !cfg.JSON {
			bench.PrintStats(out.result, st)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if i == 0 && cfg.Cooldown > 0 {
			select {
			case <-time.After(cfg.Cooldown):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	if cfg.JSON {
		if err := bench.GenerateJSON(out.result, comparison{Baseline: results[0], Candidate: results[1]}); err != nil {
			return err
		}
	} else {
		bench.PrintComparison(out.result, results[0], results[1])
	}

	return s.finish()
}
