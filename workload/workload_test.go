package workload

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		schema   string
		keySpace int64
		wantErr  bool
		tables   int
	}{
		{name: "flat", schema: FlatName, keySpace: 10, tables: 1},
		{name: "relational", schema: RelationalName, keySpace: 10, tables: 4},
		{name: "unknown", schema: "star", keySpace: 10, wantErr: true},
		{name: "zero key space", schema: FlatName, keySpace: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.schema, tt.keySpace)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.schema, s.Name())
			assert.Len(t, s.Tables(), tt.tables)
			assert.Equal(t, tt.keySpace, s.KeySpace())
		})
	}
}

func TestFlatPlan(t *testing.T) {
	s := NewFlat(50)
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 1000; i++ {
		op := s.Plan(rng, false)
		assert.Equal(t, Read, op.Kind)
		assert.Equal(t, Select, op.Verb)
		assert.GreaterOrEqual(t, op.Key, int64(1))
		assert.LessOrEqual(t, op.Key, int64(50))
	}

	op := s.Plan(rng, true)
	assert.Equal(t, Write, op.Kind)
	assert.Equal(t, Insert, op.Verb)
	require.Len(t, op.Values, 1)
	assert.Len(t, op.Values[0], payloadLen)
}

func TestRelationalPlanCoversAllWrites(t *testing.T) {
	s := NewRelational(1000)
	rng := rand.New(rand.NewSource(7))

	verbs := map[Verb]int{}
	tables := map[string]int{}
	for i := 0; i < 3000; i++ {
		op := s.Plan(rng, true)
		assert.Equal(t, Write, op.Kind)
		verbs[op.Verb]++
		if op.Verb == Update {
			assert.Equal(t, "tasks", op.Table.Name)
			assert.Equal(t, []string{"completed"}, op.Columns)
		}
		if op.Verb == Insert {
			assert.Len(t, op.Values, len(op.Table.Columns))
		}
		tables[op.Table.Name]++
	}

	assert.Zero(t, verbs[Select])
	assert.NotZero(t, verbs[Insert])
	assert.NotZero(t, verbs[Update])
	assert.NotZero(t, verbs[Delete])
	assert.Len(t, tables, 4)
}

func TestRelationalReadsSpreadOverTables(t *testing.T) {
	s := NewRelational(1000)
	rng := rand.New(rand.NewSource(3))

	tables := map[string]int{}
	for i := 0; i < 400; i++ {
		op := s.Plan(rng, false)
		assert.Equal(t, Select, op.Verb)
		tables[op.Table.Name]++
	}
	assert.Len(t, tables, 4)
}

func TestSeedEmitsRowsPerTable(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			s, err := New(name, 100)
			require.NoError(t, err)

			counts := map[string]int{}
			err = s.Seed(rand.New(rand.NewSource(1)), 25, func(op Op) error {
				assert.Equal(t, Insert, op.Verb)
				counts[op.Table.Name]++
				return nil
			})
			require.NoError(t, err)

			for _, tbl := range s.Tables() {
				assert.Equal(t, 25, counts[tbl.Name], tbl.Name)
			}
		})
	}
}

func TestDDL(t *testing.T) {
	ddl := NewRelational(1).tasks.DDL()

	assert.True(t, strings.HasPrefix(ddl, "CREATE TABLE IF NOT EXISTS tasks"))
	assert.Contains(t, ddl, "id INTEGER PRIMARY KEY")
	assert.Contains(t, ddl, "FOREIGN KEY (project_id) REFERENCES projects (id)")
	assert.Contains(t, ddl, "FOREIGN KEY (user_id) REFERENCES users (id)")
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "read", Read.String())
	assert.Equal(t, "write", Write.String())

	b, err := Write.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "write", string(b))
}
