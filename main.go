// Package main provides the CLI entry point for sqlite-bench, a concurrent
// load generator for SQLite.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"sqlite-bench/config"
	"sqlite-bench/lite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.Is(err, config.ErrInvalidConfig) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var flags cliFlags

	root := &cobra.Command{
		Use:   "sqlite-bench",
		Short: "Concurrent load generator for SQLite",
		Long: `sqlite-bench opens one private connection per simulated client, releases
every client at the same instant and issues a random mix of point reads and
writes against a freshly created database file. It reports per-kind latency
percentiles and throughput over the synchronized window.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := flags.load(cmd.Flags(), stderr)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			return runBenchmark(cmd.Context(), cfg, logger, stdout, stderr)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags.register(root.Flags())
	root.MarkFlagsMutuallyExclusive("profile", "optimized")
	root.MarkFlagsMutuallyExclusive("profile", "wal")
	root.MarkFlagsMutuallyExclusive("optimized", "wal")

	root.AddCommand(newCompareCmd(stdout, stderr))

	return root
}

func newCompareCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		flags     cliFlags
		baseline  string
		candidate string
	)

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Run the same workload under two tuning profiles",
		Long: `Run the configured workload once per tuning profile, each on a fresh
database, and print the two results side by side.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := flags.load(cmd.Flags(), stderr)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			return runComparison(cmd.Context(), cfg, baseline, candidate, logger, stdout, stderr)
		},
	}

	flags.register(cmd.Flags())
	cmd.Flags().StringVar(&baseline, "baseline", lite.ProfileDefault,
		"Tuning profile measured first")
	cmd.Flags().StringVar(&candidate, "candidate", lite.ProfileWAL,
		"Tuning profile compared against the baseline")

	return cmd
}

// cliFlags mirrors config.Config on the command line. Only flags the user
// set override the file and environment values.
type cliFlags struct {
	configPath string

	dbPath   string
	driver   string
	schema   string
	profile  string
	seedRows int
	keySpace int64

	wal         bool
	walOptimize bool
	optimized   bool

	clients    int
	queries    int
	writePct   float64
	warmup     int
	startDelay time.Duration
	runs       int
	cooldown   time.Duration
	seed       int64

	json        bool
	progress    bool
	metricsAddr string
	metricsFile string
	logLevel    string
	logFormat   string
}

func (f *cliFlags) register(fs *pflag.FlagSet) {
	d := config.DefaultConfig()

	fs.StringVar(&f.configPath, "config", "",
		"Path to a YAML or JSON config file")

	fs.StringVar(&f.dbPath, "db", d.DBPath,
		"Database file, recreated before every run")
	fs.StringVar(&f.driver, "driver", d.Driver,
		"SQLite driver: sqlite3 (cgo) or sqlite (pure Go)")
	fs.StringVar(&f.schema, "schema", d.Schema,
		"Table layout: flat or relational")
	fs.StringVar(&f.profile, "profile", d.Profile,
		"Tuning profile: default, wal, wal-optimized, optimized")
	fs.IntVar(&f.seedRows, "seed-rows", d.SeedRows,
		"Rows inserted into every table before the run")
	fs.Int64Var(&f.keySpace, "key-space", d.KeySpace,
		"Upper bound of random row keys")

	fs.BoolVar(&f.wal, "wal", false,
		"Enable WAL mode (same as --profile wal)")
	fs.BoolVar(&f.walOptimize, "wal-optimize", false,
		"With --wal, also tune every connection (same as --profile wal-optimized)")
	fs.BoolVar(&f.optimized, "optimized", false,
		"Use the fully optimized settings (same as --profile optimized)")

	fs.IntVar(&f.clients, "clients", d.Clients,
		"Number of concurrent clients")
	fs.IntVar(&f.queries, "queries", d.Queries,
		"Operations per client")
	fs.Float64Var(&f.writePct, "write-percentage", d.WritePercentage,
		"Probability of a write operation (0 to 1)")
	fs.IntVar(&f.warmup, "warm-up", d.Warmup,
		"Untimed operations before the run")
	fs.DurationVar(&f.startDelay, "start-delay", d.StartDelay,
		"Grace period before the synchronized start")
	fs.IntVar(&f.runs, "runs", d.Runs,
		"Number of runs; more than one reports the median")
	fs.DurationVar(&f.cooldown, "cooldown", d.Cooldown,
		"Pause between runs")
	fs.Int64Var(&f.seed, "seed", d.Seed,
		"Random seed (0 = use current time)")

	fs.BoolVar(&f.json, "json", false,
		"Output results as JSON instead of a table")
	fs.BoolVar(&f.progress, "progress", false,
		"Print progress to stderr while running")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "",
		"Serve Prometheus metrics on this address while running")
	fs.StringVar(&f.metricsFile, "metrics-file", "",
		"Write final metrics to this file in text exposition format")
	fs.StringVar(&f.logLevel, "log-level", d.Log.Level,
		"Log level: debug, info, warn, error")
	fs.StringVar(&f.logFormat, "log-format", d.Log.Format,
		"Log format: console or json")
}

// load resolves defaults, the config file, the environment and the set
// flags, in that order, then validates the result and builds the logger.
func (f *cliFlags) load(fs *pflag.FlagSet, stderr io.Writer) (*config.Config, *zap.Logger, error) {
	cfg := config.DefaultConfig()
	if f.configPath != "" {
		var err error
		if cfg, err = config.LoadFromFile(f.configPath); err != nil {
			return nil, nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
		}
	}
	if err := config.LoadFromEnv(cfg); err != nil {
		return nil, nil, err
	}
	f.apply(fs, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger, err := newLogger(cfg.Log, zapcore.AddSync(stderr))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	return cfg, logger, nil
}

func (f *cliFlags) apply(fs *pflag.FlagSet, cfg *config.Config) {
	set := fs.Changed

	if set("db") {
		cfg.DBPath = f.dbPath
	}
	if set("driver") {
		cfg.Driver = f.driver
	}
	if set("schema") {
		cfg.Schema = f.schema
	}
	if set("seed-rows") {
		cfg.SeedRows = f.seedRows
	}
	if set("key-space") {
		cfg.KeySpace = f.keySpace
	}

	switch {
	case set("profile"):
		cfg.Profile = f.profile
	case f.optimized:
		cfg.Profile = lite.ProfileOptimized
	case f.wal && f.walOptimize:
		cfg.Profile = lite.ProfileWALOptimized
	case f.wal:
		cfg.Profile = lite.ProfileWAL
	}

	if set("clients") {
		cfg.Clients = f.clients
	}
	if set("queries") {
		cfg.Queries = f.queries
	}
	if set("write-percentage") {
		cfg.WritePercentage = f.writePct
	}
	if set("warm-up") {
		cfg.Warmup = f.warmup
	}
	if set("start-delay") {
		cfg.StartDelay = f.startDelay
	}
	if set("runs") {
		cfg.Runs = f.runs
	}
	if set("cooldown") {
		cfg.Cooldown = f.cooldown
	}
	if set("seed") {
		cfg.Seed = f.seed
	}

	if set("json") {
		cfg.JSON = f.json
	}
	if set("progress") {
		cfg.Progress = f.progress
	}
	if set("metrics-addr") {
		cfg.MetricsAddr = f.metricsAddr
	}
	if set("metrics-file") {
		cfg.MetricsFile = f.metricsFile
	}
	if set("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if set("log-format") {
		cfg.Log.Format = f.logFormat
	}
}
