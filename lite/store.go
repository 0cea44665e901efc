// Package lite is the SQLite storage backend. Every connection it hands out
// is a single pinned database connection owned by one caller.
package lite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"sqlite-bench/bench"
	"sqlite-bench/workload"
)

// Driver names registered with database/sql.
const (
	DriverCGo    = "sqlite3" // github.com/mattn/go-sqlite3
	DriverPureGo = "sqlite"  // modernc.org/sqlite
)

// Drivers lists the supported driver names.
func Drivers() []string {
	return []string{DriverCGo, DriverPureGo}
}

// Options configures a Store.
type Options struct {
	Path     string
	Driver   string
	Schema   workload.Schema
	Profile  TuningProfile
	SeedRows int
	// Seed drives the seeding RNG; zero uses the clock.
	Seed   int64
	Logger *zap.Logger
}

// Store is a single SQLite file shared by many private connections.
type Store struct {
	opts   Options
	logger *zap.Logger
}

var _ bench.Backend = (*Store)(nil)

// New validates opts and returns a Store. The file is not touched until
// Initialize.
func New(opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if opts.Driver == "" {
		opts.Driver = DriverCGo
	}
	if opts.Driver != DriverCGo && opts.Driver != DriverPureGo {
		return nil, fmt.Errorf("unknown driver %q (must be %s or %s)", opts.Driver, DriverCGo, DriverPureGo)
	}
	if opts.Schema == nil {
		return nil, fmt.Errorf("schema is required")
	}
	if err := opts.Profile.Validate(); err != nil {
		return nil, fmt.Errorf("tuning profile: %w", err)
	}
	if opts.SeedRows < 0 {
		return nil, fmt.Errorf("seed rows must not be negative, got %d", opts.SeedRows)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Store{
		opts:   opts,
		logger: logger.With(zap.String("db", opts.Path), zap.String("driver", opts.Driver)),
	}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.opts.Path
}

// uriEscaper percent-encodes the characters SQLite gives meaning to in a
// URI filename. SQLite decodes them back before opening the file.
var uriEscaper = strings.NewReplacer("%", "%25", "?", "%3F", "#", "%23")

// dsn builds a file URI understood by both drivers.
func (s *Store) dsn() string {
	return "file:" + uriEscaper.Replace(s.opts.Path)
}

// Initialize deletes any previous database and creates a fresh one with the
// persistent tuning, the schema tables and the seed rows.
func (s *Store) Initialize(ctx context.Context) error {
	if err := s.remove(); err != nil {
		return err
	}
	if dir := filepath.Dir(s.opts.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create db dir %s: %w", dir, err)
		}
	}

	db, err := sql.Open(s.opts.Driver, s.dsn())
	if err != nil {
		return fmt.Errorf("open %s: %w", s.opts.Path, err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	for _, stmt := range s.opts.Profile.persistentStatements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply %q: %w", stmt, err)
		}
	}

	for _, t := range s.opts.Schema.Tables() {
		if _, err := db.ExecContext(ctx, t.DDL()); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}

	if s.opts.SeedRows > 0 {
		if err := s.seed(ctx, db); err != nil {
			return err
		}
	}

	for _, stmt := range s.opts.Profile.finalStatements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply %q: %w", stmt, err)
		}
	}

	s.logger.Info("database initialized",
		zap.String("schema", s.opts.Schema.Name()),
		zap.String("profile", s.opts.Profile.Name),
		zap.Int("seed_rows", s.opts.SeedRows),
	)
	return nil
}

func (s *Store) seed(ctx context.Context, db *sql.DB) error {
	start := time.Now()
	seed := s.opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed: begin: %w", err)
	}
	defer tx.Rollback()

	stmts := map[string]*sql.Stmt{}
	err = s.opts.Schema.Seed(rng, s.opts.SeedRows, func(op workload.Op) error {
		query := insertSQL(op.Table, op.Columns)
		stmt, ok := stmts[query]
		if !ok {
			prepared, perr := tx.PrepareContext(ctx, query)
			if perr != nil {
				return perr
			}
			stmt = prepared
			stmts[query] = stmt
		}
		_, eerr := stmt.ExecContext(ctx, op.Values...)
		return eerr
	})
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed: commit: %w", err)
	}

	s.logger.Debug("seeded", zap.Int("rows_per_table", s.opts.SeedRows), zap.Duration("took", time.Since(start)))
	return nil
}

// remove deletes the database file and its journal side files.
func (s *Store) remove() error {
	for _, suffix := range []string{"", "-wal", "-shm", "-journal"} {
		path := s.opts.Path + suffix
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}
	return nil
}

// Open returns a new private connection with the runtime tuning applied.
func (s *Store) Open(ctx context.Context) (bench.Conn, error) {
	return s.open(ctx)
}

func (s *Store) open(ctx context.Context) (*Conn, error) {
	db, err := sql.Open(s.opts.Driver, s.dsn())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.opts.Path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect %s: %w", s.opts.Path, err)
	}

	for _, stmt := range s.opts.Profile.runtimeStatements() {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			conn.Close()
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", stmt, err)
		}
	}

	c := &Conn{db: db, conn: conn, stmts: map[string]*sql.Stmt{}}
	if s.opts.Profile.TxLock != "" {
		c.begin = "BEGIN " + strings.ToUpper(s.opts.Profile.TxLock)
	}
	return c, nil
}
