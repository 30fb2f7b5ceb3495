// Package arbiter computes the per-cycle firing set.
//
// Arbitrate is a pure function of the conflict graph and a readiness vector:
// it walks transactions in the graph's canonical order and admits each ready
// transaction that is not exclusive with one already admitted. The walk runs
// per connected component of the exclusivity graph; components never
// interact, so the result equals a single global walk.
//
// There is no failure mode. A transaction that is always outranked starves.
package arbiter

import (
	"slices"

	"github.com/roach88/txsched/internal/graph"
)

// FiringSet is the set of transactions that fire in one cycle.
// The zero value is an empty set.
type FiringSet struct {
	g       *graph.ConflictGraph
	members []bool
	order   []int // fired transactions in canonical order
}

// Contains reports whether transaction tx fires.
func (f FiringSet) Contains(tx int) bool {
	return tx >= 0 && tx < len(f.members) && f.members[tx]
}

// Len returns the number of firing transactions.
func (f FiringSet) Len() int { return len(f.order) }

// Indices returns firing transactions in canonical order.
func (f FiringSet) Indices() []int { return slices.Clone(f.order) }

// Names returns firing transaction names in canonical order.
func (f FiringSet) Names() []string {
	out := make([]string, len(f.order))
	for i, tx := range f.order {
		out[i] = f.g.TransactionName(tx)
	}
	return out
}

// Arbitrate returns the firing set for one cycle. ready is indexed by
// transaction index; missing entries count as not ready.
func Arbitrate(g *graph.ConflictGraph, ready []bool) FiringSet {
	n := g.NumTransactions()
	fs := FiringSet{g: g, members: make([]bool, n)}

	for _, component := range g.Components() {
		for _, tx := range component {
			if !isReady(ready, tx) || blocked(g, fs.members, tx) {
				continue
			}
			fs.members[tx] = true
		}
	}

	for _, tx := range g.Order() {
		if fs.members[tx] {
			fs.order = append(fs.order, tx)
		}
	}
	return fs
}

// Blocked returns transactions that were ready but did not fire, in
// canonical order.
func Blocked(g *graph.ConflictGraph, ready []bool, fs FiringSet) []int {
	var out []int
	for _, tx := range g.Order() {
		if isReady(ready, tx) && !fs.Contains(tx) {
			out = append(out, tx)
		}
	}
	return out
}

// Effective combines transaction readiness with method preconditions: a
// transaction is effectively ready only when it is ready and every method
// in its call closure is ready. A nil methodReady means all methods are
// ready.
func Effective(g *graph.ConflictGraph, txReady, methodReady []bool) []bool {
	out := make([]bool, g.NumTransactions())
	for tx := range out {
		if !isReady(txReady, tx) {
			continue
		}
		out[tx] = true
		if methodReady == nil {
			continue
		}
		for _, m := range g.Closure(tx) {
			if !isReady(methodReady, m) {
				out[tx] = false
				break
			}
		}
	}
	return out
}

func isReady(ready []bool, i int) bool {
	return i < len(ready) && ready[i]
}

func blocked(g *graph.ConflictGraph, admitted []bool, tx int) bool {
	for _, other := range g.Neighbors(tx) {
		if admitted[other] {
			return true
		}
	}
	return false
}
