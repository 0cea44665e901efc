package lite

import (
	"fmt"
	"slices"
	"strings"
)

// TuningProfile is the set of SQLite settings a run is measured under.
// Persistent settings are applied once while initializing the file; runtime
// settings are applied to every connection right after it opens.
type TuningProfile struct {
	Name string `json:"name" yaml:"name"`

	// Persistent settings.
	AutoVacuum  string `json:"auto_vacuum,omitempty" yaml:"auto_vacuum,omitempty"`
	PageSize    int    `json:"page_size,omitempty" yaml:"page_size,omitempty"`
	JournalMode string `json:"journal_mode,omitempty" yaml:"journal_mode,omitempty"`
	Optimize    bool   `json:"optimize,omitempty" yaml:"optimize,omitempty"`
	Vacuum      bool   `json:"vacuum,omitempty" yaml:"vacuum,omitempty"`

	// Runtime settings.
	CacheSize     int64  `json:"cache_size,omitempty" yaml:"cache_size,omitempty"`
	MmapSize      int64  `json:"mmap_size,omitempty" yaml:"mmap_size,omitempty"`
	TempStore     string `json:"temp_store,omitempty" yaml:"temp_store,omitempty"`
	Synchronous   string `json:"synchronous,omitempty" yaml:"synchronous,omitempty"`
	BusyTimeoutMs int    `json:"busy_timeout_ms,omitempty" yaml:"busy_timeout_ms,omitempty"`

	// TxLock wraps every mutation in BEGIN <TxLock>; empty means autocommit.
	TxLock string `json:"tx_lock,omitempty" yaml:"tx_lock,omitempty"`
}

const (
	ProfileDefault      = "default"
	ProfileWAL          = "wal"
	ProfileWALOptimized = "wal-optimized"
	ProfileOptimized    = "optimized"
)

var profiles = map[string]TuningProfile{
	ProfileDefault: {
		Name:          ProfileDefault,
		JournalMode:   "DELETE",
		BusyTimeoutMs: 5000,
	},
	ProfileWAL: {
		Name:          ProfileWAL,
		JournalMode:   "WAL",
		Optimize:      true,
		Vacuum:        true,
		BusyTimeoutMs: 5000,
	},
	ProfileWALOptimized: {
		Name:          ProfileWALOptimized,
		JournalMode:   "WAL",
		Optimize:      true,
		Vacuum:        true,
		CacheSize:     4096,
		TempStore:     "MEMORY",
		Synchronous:   "NORMAL",
		BusyTimeoutMs: 10000,
	},
	ProfileOptimized: {
		Name:          ProfileOptimized,
		AutoVacuum:    "INCREMENTAL",
		PageSize:      32768,
		JournalMode:   "WAL",
		CacheSize:     1000000000,
		MmapSize:      2147483648,
		TempStore:     "MEMORY",
		Synchronous:   "NORMAL",
		BusyTimeoutMs: 10000,
		TxLock:        "exclusive",
	},
}

// Profile returns the named built-in profile.
func Profile(name string) (TuningProfile, error) {
	p, ok := profiles[name]
	if !ok {
		return TuningProfile{}, fmt.Errorf("unknown tuning profile %q (must be one of %s)",
			name, strings.Join(ProfileNames(), ", "))
	}
	return p, nil
}

// ProfileNames lists the built-in profiles.
func ProfileNames() []string {
	return []string{ProfileDefault, ProfileWAL, ProfileWALOptimized, ProfileOptimized}
}

// Override returns p with every non-zero field of o applied on top.
func (p TuningProfile) Override(o TuningProfile) TuningProfile {
	if o.AutoVacuum != "" {
		p.AutoVacuum = o.AutoVacuum
	}
	if o.PageSize != 0 {
		p.PageSize = o.PageSize
	}
	if o.JournalMode != "" {
		p.JournalMode = o.JournalMode
	}
	if o.Optimize {
		p.Optimize = true
	}
	if o.Vacuum {
		p.Vacuum = true
	}
	if o.CacheSize != 0 {
		p.CacheSize = o.CacheSize
	}
	if o.MmapSize != 0 {
		p.MmapSize = o.MmapSize
	}
	if o.TempStore != "" {
		p.TempStore = o.TempStore
	}
	if o.Synchronous != "" {
		p.Synchronous = o.Synchronous
	}
	if o.BusyTimeoutMs != 0 {
		p.BusyTimeoutMs = o.BusyTimeoutMs
	}
	if o.TxLock != "" {
		p.TxLock = o.TxLock
	}
	return p
}

var (
	autoVacuumModes  = []string{"NONE", "FULL", "INCREMENTAL"}
	journalModes     = []string{"DELETE", "TRUNCATE", "PERSIST", "MEMORY", "WAL", "OFF"}
	tempStoreModes   = []string{"DEFAULT", "FILE", "MEMORY"}
	synchronousModes = []string{"OFF", "NORMAL", "FULL", "EXTRA"}
	txLockModes      = []string{"deferred", "immediate", "exclusive"}
)

// Validate rejects values that SQLite would not accept. Pragma values are
// interpolated into statements, so only known keywords pass.
func (p TuningProfile) Validate() error {
	if err := oneOf("auto_vacuum", strings.ToUpper(p.AutoVacuum), autoVacuumModes); err != nil {
		return err
	}
	if err := oneOf("journal_mode", strings.ToUpper(p.JournalMode), journalModes); err != nil {
		return err
	}
	if err := oneOf("temp_store", strings.ToUpper(p.TempStore), tempStoreModes); err != nil {
		return err
	}
	if err := oneOf("synchronous", strings.ToUpper(p.Synchronous), synchronousModes); err != nil {
		return err
	}
	if err := oneOf("tx_lock", strings.ToLower(p.TxLock), txLockModes); err != nil {
		return err
	}
	if p.PageSize != 0 && (p.PageSize < 512 || p.PageSize > 65536 || p.PageSize&(p.PageSize-1) != 0) {
		return fmt.Errorf("page_size must be a power of two between 512 and 65536, got %d", p.PageSize)
	}
	if p.MmapSize < 0 {
		return fmt.Errorf("mmap_size must not be negative, got %d", p.MmapSize)
	}
	if p.BusyTimeoutMs < 0 {
		return fmt.Errorf("busy_timeout_ms must not be negative, got %d", p.BusyTimeoutMs)
	}
	return nil
}

func oneOf(field, value string, allowed []string) error {
	if value == "" || slices.Contains(allowed, value) {
		return nil
	}
	return fmt.Errorf("invalid %s %q (must be one of %s)", field, value, strings.Join(allowed, ", "))
}

// persistentStatements must run on an empty file, before any table exists.
// Page size changes only take effect through VACUUM outside WAL mode.
func (p TuningProfile) persistentStatements() []string {
	var stmts []string
	if p.AutoVacuum != "" {
		stmts = append(stmts, "PRAGMA auto_vacuum = "+strings.ToUpper(p.AutoVacuum), "VACUUM")
	}
	if p.PageSize != 0 {
		stmts = append(stmts,
			"PRAGMA journal_mode = DELETE",
			fmt.Sprintf("PRAGMA page_size = %d", p.PageSize),
			"VACUUM",
		)
	}
	if p.JournalMode != "" {
		stmts = append(stmts, "PRAGMA journal_mode = "+strings.ToUpper(p.JournalMode))
	}
	return stmts
}

// finalStatements run after the tables exist and hold their seed rows.
func (p TuningProfile) finalStatements() []string {
	var stmts []string
	if p.Vacuum {
		stmts = append(stmts, "VACUUM")
	}
	if p.Optimize {
		stmts = append(stmts, "PRAGMA optimize")
	}
	return stmts
}

func (p TuningProfile) runtimeStatements() []string {
	var stmts []string
	if p.BusyTimeoutMs != 0 {
		stmts = append(stmts, fmt.Sprintf("PRAGMA busy_timeout = %d", p.BusyTimeoutMs))
	}
	if p.CacheSize != 0 {
		stmts = append(stmts, fmt.Sprintf("PRAGMA cache_size = %d", p.CacheSize))
	}
	if p.MmapSize != 0 {
		stmts = append(stmts, fmt.Sprintf("PRAGMA mmap_size = %d", p.MmapSize))
	}
	if p.TempStore != "" {
		stmts = append(stmts, "PRAGMA temp_store = "+strings.ToUpper(p.TempStore))
	}
	if p.Synchronous != "" {
		stmts = append(stmts, "PRAGMA synchronous = "+strings.ToUpper(p.Synchronous))
	}
	return stmts
}
