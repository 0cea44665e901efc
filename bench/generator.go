package bench

import (
	"context"
	"math/rand"
	"time"

	"sqlite-bench/workload"
)

// Generator picks and executes one operation at a time.
type Generator struct {
	schema           workload.Schema
	writeProbability float64
}

// NewGenerator returns a generator writing with probability p.
func NewGenerator(schema workload.Schema, p float64) *Generator {
	return &Generator{schema: schema, writeProbability: p}
}

// ChooseAndRun draws a read or write, plans it against the schema and runs
// it on conn. Only the backend call is timed.
func (g *Generator) ChooseAndRun(ctx context.Context, conn Conn, rng *rand.Rand) Sample {
	write := rng.Float64() < g.writeProbability
	op := g.schema.Plan(rng, write)

	start := time.Now()
	err := Exec(ctx, conn, op)
	elapsed := time.Since(start)

	return Sample{Duration: elapsed, Kind: op.Kind, Err: err}
}
