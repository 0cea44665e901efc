package workload

import (
	"fmt"
	"math/rand"
)

// Relational is the four-table layout: projects and users, with tasks and
// notes referencing both.
type Relational struct {
	projects *Table
	users    *Table
	tasks    *Table
	notes    *Table
	all      []*Table
	keySpace int64
}

// NewRelational returns the four-table schema.
func NewRelational(keySpace int64) *Relational {
	r := &Relational{
		projects: &Table{Name: "projects", Columns: []Column{{Name: "name", Type: "TEXT"}}},
		users:    &Table{Name: "users", Columns: []Column{{Name: "name", Type: "TEXT"}}},
		tasks: &Table{Name: "tasks", Columns: []Column{
			{Name: "project_id", Type: "INTEGER", References: "projects"},
			{Name: "user_id", Type: "INTEGER", References: "users"},
			{Name: "description", Type: "TEXT"},
			{Name: "completed", Type: "BOOLEAN"},
		}},
		notes: &Table{Name: "notes", Columns: []Column{
			{Name: "project_id", Type: "INTEGER", References: "projects"},
			{Name: "user_id", Type: "INTEGER", References: "users"},
			{Name: "content", Type: "TEXT"},
		}},
		keySpace: keySpace,
	}
	r.all = []*Table{r.projects, r.users, r.tasks, r.notes}
	return r
}

func (r *Relational) Name() string     { return RelationalName }
func (r *Relational) Tables() []*Table { return r.all }
func (r *Relational) KeySpace() int64  { return r.keySpace }

// Plan reads from a random table, or picks one of insert, update and delete
// uniformly. Updates always mark a task completed.
func (r *Relational) Plan(rng *rand.Rand, write bool) Op {
	if !write {
		return Op{Kind: Read, Verb: Select, Table: r.pick(rng), Key: randomKey(rng, r.keySpace)}
	}
	switch rng.Intn(3) {
	case 0:
		return r.insert(rng, r.pick(rng), "New ")
	case 1:
		return Op{
			Kind:    Write,
			Verb:    Update,
			Table:   r.tasks,
			Key:     randomKey(rng, r.keySpace),
			Columns: []string{"completed"},
			Values:  []any{true},
		}
	default:
		return Op{Kind: Write, Verb: Delete, Table: r.pick(rng), Key: randomKey(rng, r.keySpace)}
	}
}

func (r *Relational) Seed(rng *rand.Rand, rows int, emit func(Op) error) error {
	for _, t := range r.all {
		for i := 0; i < rows; i++ {
			if err := emit(r.insert(rng, t, "")); err != nil {
				return fmt.Errorf("seed %s: %w", t.Name, err)
			}
		}
	}
	return nil
}

func (r *Relational) pick(rng *rand.Rand) *Table {
	return r.all[rng.Intn(len(r.all))]
}

func (r *Relational) insert(rng *rand.Rand, t *Table, prefix string) Op {
	n := randomKey(rng, r.keySpace)
	op := Op{Kind: Write, Verb: Insert, Table: t, Columns: t.ColumnNames()}
	switch t {
	case r.projects:
		op.Values = []any{fmt.Sprintf("%sProject %d", prefix, n)}
	case r.users:
		op.Values = []any{fmt.Sprintf("%sUser %d", prefix, n)}
	case r.tasks:
		op.Values = []any{randomKey(rng, r.keySpace), randomKey(rng, r.keySpace), fmt.Sprintf("%sTask %d", prefix, n), false}
	case r.notes:
		op.Values = []any{randomKey(rng, r.keySpace), randomKey(rng, r.keySpace), fmt.Sprintf("%sNote %d", prefix, n)}
	}
	return op
}
