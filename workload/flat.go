package workload

import "math/rand"

// payloadLen is the length of the random text written per row.
const payloadLen = 10

// Flat is the single-table layout: test(id, data).
type Flat struct {
	table    *Table
	keySpace int64
}

// NewFlat returns the single-table schema.
func NewFlat(keySpace int64) *Flat {
	return &Flat{
		table: &Table{
			Name:    "test",
			Columns: []Column{{Name: "data", Type: "TEXT"}},
		},
		keySpace: keySpace,
	}
}

func (f *Flat) Name() string     { return FlatName }
func (f *Flat) Tables() []*Table { return []*Table{f.table} }
func (f *Flat) KeySpace() int64  { return f.keySpace }

// Plan reads a uniformly random key, or inserts a row with a random payload.
func (f *Flat) Plan(rng *rand.Rand, write bool) Op {
	if !write {
		return Op{Kind: Read, Verb: Select, Table: f.table, Key: randomKey(rng, f.keySpace)}
	}
	return f.insert(rng)
}

func (f *Flat) Seed(rng *rand.Rand, rows int, emit func(Op) error) error {
	for i := 0; i < rows; i++ {
		if err := emit(f.insert(rng)); err != nil {
			return err
		}
	}
	return nil
}

func (f *Flat) insert(rng *rand.Rand) Op {
	return Op{
		Kind:    Write,
		Verb:    Insert,
		Table:   f.table,
		Columns: []string{"data"},
		Values:  []any{randomText(rng, payloadLen)},
	}
}
