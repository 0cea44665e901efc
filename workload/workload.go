// Package workload defines the table layouts a benchmark runs against and
// plans the random point operations executed on them.
package workload

import (
	"fmt"
	"math/rand"
	"strings"
)

// Kind is the coarse classification the report discriminates on.
type Kind uint8

const (
	Read Kind = iota
	Write
)

func (k Kind) String() string {
	switch k {
	case Read:
		return "read"
	case Write:
		return "write"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}

// MarshalText lets Kind render as "read"/"write" in JSON output.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Verb is the concrete statement an Op executes.
type Verb uint8

const (
	Select Verb = iota
	Insert
	Update
	Delete
)

func (v Verb) String() string {
	switch v {
	case Select:
		return "select"
	case Insert:
		return "insert"
	case Update:
		return "update"
	case Delete:
		return "delete"
	default:
		return fmt.Sprintf("verb(%d)", v)
	}
}

// Column is a non-key column. Every table has an implicit
// "id INTEGER PRIMARY KEY".
type Column struct {
	Name string
	Type string
	// References names the table a foreign key column points to.
	References string
}

// Table describes one row-oriented table.
type Table struct {
	Name    string
	Columns []Column
}

// DDL returns the CREATE TABLE statement for t.
func (t *Table) DDL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n\tid INTEGER PRIMARY KEY", t.Name)
	for _, c := range t.Columns {
		fmt.Fprintf(&b, ",\n\t%s %s", c.Name, c.Type)
	}
	for _, c := range t.Columns {
		if c.References != "" {
			fmt.Fprintf(&b, ",\n\tFOREIGN KEY (%s) REFERENCES %s (id)", c.Name, c.References)
		}
	}
	b.WriteString("\n)")
	return b.String()
}

// ColumnNames returns the non-key column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Op is one planned point operation. Planning happens outside the timed
// section; executing an Op is the only thing measured.
type Op struct {
	Kind  Kind
	Verb  Verb
	Table *Table
	// Key addresses Select, Update and Delete.
	Key int64
	// Columns and Values carry the payload of Insert and Update.
	Columns []string
	Values  []any
}

func (o Op) String() string {
	if o.Verb == Insert {
		return fmt.Sprintf("%s %s", o.Verb, o.Table.Name)
	}
	return fmt.Sprintf("%s %s id=%d", o.Verb, o.Table.Name, o.Key)
}

// Schema is the pluggable layout strategy. Implementations are immutable
// and safe to share between workers; all randomness comes from the
// caller's rng.
type Schema interface {
	Name() string
	Tables() []*Table
	// KeySpace is the inclusive upper bound of generated primary keys.
	KeySpace() int64
	// Plan draws the next read-class or write-class operation.
	Plan(rng *rand.Rand, write bool) Op
	// Seed emits rows inserts for every table, in dependency order.
	Seed(rng *rand.Rand, rows int, emit func(Op) error) error
}

const (
	FlatName       = "flat"
	RelationalName = "relational"
)

// DefaultKeySpace is the default upper bound of generated keys.
const DefaultKeySpace = 1_000_000

// New returns the schema registered under name.
func New(name string, keySpace int64) (Schema, error) {
	if keySpace <= 0 {
		return nil, fmt.Errorf("key space must be positive, got %d", keySpace)
	}
	switch name {
	case FlatName:
		return NewFlat(keySpace), nil
	case RelationalName:
		return NewRelational(keySpace), nil
	default:
		return nil, fmt.Errorf("unknown schema %q (must be %s or %s)", name, FlatName, RelationalName)
	}
}

// Names lists the known schema names.
func Names() []string {
	return []string{FlatName, RelationalName}
}

func randomKey(rng *rand.Rand, keySpace int64) int64 {
	return rng.Int63n(keySpace) + 1
}

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomText(rng *rand.Rand, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphanumeric[rng.Intn(len(alphanumeric))]
	}
	return string(b)
}
