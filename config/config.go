// Package config provides the benchmark configuration: defaults, file and
// environment sources, and validation.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"sqlite-bench/bench"
	"sqlite-bench/lite"
	"sqlite-bench/workload"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// EnvPrefix prefixes every environment variable LoadFromEnv reads.
const EnvPrefix = "SQLITEBENCH_"

// Config holds everything needed to run a benchmark.
type Config struct {
	// DBPath is the SQLite file recreated at the start of every run
	DBPath string `json:"db_path" yaml:"db_path"`

	// Driver is the database/sql driver: sqlite3 (cgo) or sqlite (pure Go)
	Driver string `json:"driver" yaml:"driver"`

	// Schema is the table layout: flat or relational
	Schema string `json:"schema" yaml:"schema"`

	// Profile names the built-in tuning profile
	Profile string `json:"profile" yaml:"profile"`

	// Tuning overrides individual settings of the profile
	Tuning lite.TuningProfile `json:"tuning" yaml:"tuning"`

	Clients         int     `json:"clients" yaml:"clients"`
	Queries         int     `json:"queries" yaml:"queries"`
	WritePercentage float64 `json:"write_percentage" yaml:"write_percentage"`
	Warmup          int     `json:"warmup" yaml:"warmup"`

	// SeedRows is the number of rows inserted into every table before a run
	SeedRows int `json:"seed_rows" yaml:"seed_rows"`

	// KeySpace bounds the random keys used by reads, updates and deletes
	KeySpace int64 `json:"key_space" yaml:"key_space"`

	// StartDelay is the grace period before the synchronized start
	StartDelay time.Duration `json:"start_delay" yaml:"start_delay"`

	// Runs > 1 reports the median run
	Runs     int           `json:"runs" yaml:"runs"`
	Cooldown time.Duration `json:"cooldown" yaml:"cooldown"`

	// Seed makes a run reproducible; 0 seeds from the clock
	Seed int64 `json:"seed" yaml:"seed"`

	JSON     bool `json:"json" yaml:"json"`
	Progress bool `json:"progress" yaml:"progress"`

	// MetricsAddr serves Prometheus metrics while running, e.g. ":9100"
	MetricsAddr string `json:"metrics_addr" yaml:"metrics_addr"`

	// MetricsFile receives the final metrics in text exposition format
	MetricsFile string `json:"metrics_file" yaml:"metrics_file"`

	Log LogConfig `json:"log" yaml:"log"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	// Level is debug, info, warn or error
	Level string `json:"level" yaml:"level"`

	// Format is console or json
	Format string `json:"format" yaml:"format"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		DBPath:          "test.db",
		Driver:          lite.DriverCGo,
		Schema:          workload.FlatName,
		Profile:         lite.ProfileDefault,
		Clients:         10,
		Queries:         100,
		WritePercentage: 0.3,
		Warmup:          1000,
		KeySpace:        workload.DefaultKeySpace,
		StartDelay:      bench.DefaultStartDelay,
		Runs:            1,
		Cooldown:        3 * time.Second,
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return invalid("db_path is required")
	}
	if !slices.Contains(lite.Drivers(), c.Driver) {
		return invalid("unknown driver %q (must be %s)", c.Driver, strings.Join(lite.Drivers(), " or "))
	}
	if !slices.Contains(workload.Names(), c.Schema) {
		return invalid("unknown schema %q (must be %s)", c.Schema, strings.Join(workload.Names(), " or "))
	}
	if _, err := c.TuningProfile(); err != nil {
		return invalid("%v", err)
	}

	if c.Clients <= 0 {
		return invalid("clients must be positive, got %d", c.Clients)
	}
	if c.Queries <= 0 {
		return invalid("queries must be positive, got %d", c.Queries)
	}
	if math.IsNaN(c.WritePercentage) || c.WritePercentage < 0 || c.WritePercentage > 1 {
		return invalid("write_percentage must be between 0 and 1, got %g", c.WritePercentage)
	}
	if c.Warmup < 0 {
		return invalid("warmup must not be negative, got %d", c.Warmup)
	}
	if c.SeedRows < 0 {
		return invalid("seed_rows must not be negative, got %d", c.SeedRows)
	}
	if c.KeySpace <= 0 {
		return invalid("key_space must be positive, got %d", c.KeySpace)
	}
	if c.StartDelay <= 0 {
		return invalid("start_delay must be positive, got %s", c.StartDelay)
	}
	if c.Runs < 1 {
		return invalid("runs must be at least 1, got %d", c.Runs)
	}
	if c.Cooldown < 0 {
		return invalid("cooldown must not be negative, got %s", c.Cooldown)
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level: %v", err)
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		return invalid("invalid log.format: %s (must be console or json)", c.Log.Format)
	}

	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// TuningProfile resolves the named profile with the tuning overrides applied.
func (c *Config) TuningProfile() (lite.TuningProfile, error) {
	p, err := lite.Profile(c.Profile)
	if err != nil {
		return lite.TuningProfile{}, err
	}
	p = p.Override(c.Tuning)
	if err := p.Validate(); err != nil {
		return lite.TuningProfile{}, err
	}
	return p, nil
}

// Bench returns the driver settings for one run.
func (c *Config) Bench() bench.Config {
	return bench.Config{
		Clients:          c.Clients,
		QueriesPerClient: c.Queries,
		WriteProbability: c.WritePercentage,
		Warmup:           c.Warmup,
		StartDelay:       c.StartDelay,
		Seed:             c.Seed,
	}
}

// Label describes the run in reports.
func (c *Config) Label() string {
	return fmt.Sprintf("%s / %s / %s", c.Schema, c.Profile, c.Driver)
}

// LoadFromFile loads configuration from a YAML or JSON file on top of the
// defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv applies SQLITEBENCH_* environment variables to cfg.
func LoadFromEnv(cfg *Config) error {
	env := envReader{}

	env.str("DB_PATH", &cfg.DBPath)
	env.str("DRIVER", &cfg.Driver)
	env.str("SCHEMA", &cfg.Schema)
	env.str("PROFILE", &cfg.Profile)

	env.int("CLIENTS", &cfg.Clients)
	env.int("QUERIES", &cfg.Queries)
	env.float("WRITE_PERCENTAGE", &cfg.WritePercentage)
	env.int("WARMUP", &cfg.Warmup)
	env.int("SEED_ROWS", &cfg.SeedRows)
	env.int64("KEY_SPACE", &cfg.KeySpace)
	env.duration("START_DELAY", &cfg.StartDelay)
	env.int("RUNS", &cfg.Runs)
	env.duration("COOLDOWN", &cfg.Cooldown)
	env.int64("SEED", &cfg.Seed)

	env.bool("JSON", &cfg.JSON)
	env.bool("PROGRESS", &cfg.Progress)
	env.str("METRICS_ADDR", &cfg.MetricsAddr)
	env.str("METRICS_FILE", &cfg.MetricsFile)

	env.str("LOG_LEVEL", &cfg.Log.Level)
	env.str("LOG_FORMAT", &cfg.Log.Format)

	return errors.Join(env.errs...)
}

// envReader collects parse failures so every bad variable is reported.
type envReader struct {
	errs []error
}

func (r *envReader) lookup(key string) (string, string, bool) {
	name := EnvPrefix + key
	v, ok := os.LookupEnv(name)
	return name, v, ok && v != ""
}

func (r *envReader) fail(name, v string, err error) {
	r.errs = append(r.errs, fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, name, v, err))
}

func (r *envReader) str(key string, dst *string) {
	if _, v, ok := r.lookup(key); ok {
		*dst = v
	}
}

func (r *envReader) int(key string, dst *int) {
	if name, v, ok := r.lookup(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			r.fail(name, v, err)
			return
		}
		*dst = n
	}
}

func (r *envReader) int64(key string, dst *int64) {
	if name, v, ok := r.lookup(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			r.fail(name, v, err)
			return
		}
		*dst = n
	}
}

func (r *envReader) float(key string, dst *float64) {
	if name, v, ok := r.lookup(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			r.fail(name, v, err)
			return
		}
		*dst = f
	}
}

func (r *envReader) duration(key string, dst *time.Duration) {
	if name, v, ok := r.lookup(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			r.fail(name, v, err)
			return
		}
		*dst = d
	}
}

func (r *envReader) bool(key string, dst *bool) {
	if name, v, ok := r.lookup(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			r.fail(name, v, err)
			return
		}
		*dst = b
	}
}
