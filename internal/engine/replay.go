package engine

import (
	"fmt"
	"slices"

	"github.com/roach88/txsched/internal/arbiter"
	"github.com/roach88/txsched/internal/graph"
	"github.com/roach88/txsched/internal/ir"
)

// Replay re-arbitrates recorded cycles.
//
// Arbitration is a pure function of the conflict graph and the readiness
// vector, so feeding the recorded readiness back through the arbiter must
// reproduce the recorded firing set exactly. Bodies are not re-run: the
// firing set alone decides which calls happened.
//
// Divergence reports one cycle where the replayed firing set differs from
// the recorded one, or where the recorded set breaks a firing-set property.
type Divergence struct {
	Cycle     int64    `json:"cycle"`
	Recorded  []string `json:"recorded"`
	Replayed  []string `json:"replayed"`
	Violation string   `json:"violation,omitempty"`
}

// Replay checks recorded cycles against g. It returns an error only when a
// record names a transaction g does not declare, which means the trace
// belongs to a different design.
func Replay(g *graph.ConflictGraph, cycles []ir.CycleRecord) ([]Divergence, error) {
	var out []Divergence
	for _, rec := range cycles {
		ready := make([]bool, g.NumTransactions())
		for _, name := range rec.Ready {
			tx, ok := g.TransactionIndex(name)
			if !ok {
				return nil, fmt.Errorf("cycle %d: unknown transaction %q in ready set", rec.Cycle, name)
			}
			ready[tx] = true
		}

		recorded, err := arbiter.FromNames(g, rec.Fired)
		if err != nil {
			return nil, fmt.Errorf("cycle %d: %w", rec.Cycle, err)
		}
		replayed := arbiter.Arbitrate(g, ready)

		d := Divergence{Cycle: rec.Cycle, Recorded: recorded.Names(), Replayed: replayed.Names()}
		if verr := arbiter.Verify(g, ready, recorded); verr != nil {
			d.Violation = verr.Error()
		}
		if d.Violation != "" || !slices.Equal(d.Recorded, d.Replayed) {
			out = append(out, d)
		}
	}
	return out, nil
}
