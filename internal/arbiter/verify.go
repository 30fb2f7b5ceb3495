package arbiter

import (
	"fmt"
	"slices"

	"github.com/roach88/txsched/internal/graph"
)

// Property names a firing-set property checked by Verify.
type Property string

const (
	// PropertyReady: only ready transactions fire.
	PropertyReady Property = "ready"
	// PropertyExclusivity: no two firing transactions are exclusive.
	PropertyExclusivity Property = "exclusivity"
	// PropertySingleCaller: every method has at most one firing caller.
	PropertySingleCaller Property = "single_caller"
	// PropertyMaximality: every ready transaction left out is blocked by a
	// firing transaction earlier in the canonical order.
	PropertyMaximality Property = "maximality"
)

// ViolationError describes the first property a firing set breaks.
type ViolationError struct {
	Property    Property
	Transaction string
	Other       string // the conflicting transaction, if any
	Method      string // the doubly called method, for single_caller
}

// Error implements the error interface.
func (e *ViolationError) Error() string {
	switch e.Property {
	case PropertyReady:
		return fmt.Sprintf("%s: transaction %q fired while not ready", e.Property, e.Transaction)
	case PropertyExclusivity:
		return fmt.Sprintf("%s: exclusive transactions %q and %q both fired", e.Property, e.Transaction, e.Other)
	case PropertySingleCaller:
		return fmt.Sprintf("%s: method %q has firing callers %q and %q", e.Property, e.Method, e.Transaction, e.Other)
	case PropertyMaximality:
		return fmt.Sprintf("%s: ready transaction %q could have fired", e.Property, e.Transaction)
	default:
		return fmt.Sprintf("%s: %s", e.Property, e.Transaction)
	}
}

// FromNames rebuilds a firing set from transaction names, as stored in a
// trace. Unknown names are an error.
func FromNames(g *graph.ConflictGraph, names []string) (FiringSet, error) {
	fs := FiringSet{g: g, members: make([]bool, g.NumTransactions())}
	for _, name := range names {
		tx, ok := g.TransactionIndex(name)
		if !ok {
			return FiringSet{}, fmt.Errorf("unknown transaction %q in firing set", name)
		}
		fs.members[tx] = true
	}
	for _, tx := range g.Order() {
		if fs.members[tx] {
			fs.order = append(fs.order, tx)
		}
	}
	return fs, nil
}

// Verify checks a firing set against the readiness vector it was computed
// from. It returns nil or the first *ViolationError found, checking
// readiness, single caller per method, exclusivity, then maximality. Two
// callers of one method are also exclusive, so a shared method is reported
// as single_caller and exclusivity covers declared relations.
func Verify(g *graph.ConflictGraph, ready []bool, fs FiringSet) error {
	fired := fs.Indices()

	for _, tx := range fired {
		if !isReady(ready, tx) {
			return &ViolationError{Property: PropertyReady, Transaction: g.TransactionName(tx)}
		}
	}

	for m := 0; m < g.NumMethods(); m++ {
		owner := -1
		for _, tx := range g.Callers(m) {
			if !fs.Contains(tx) {
				continue
			}
			if owner >= 0 {
				return &ViolationError{
					Property:    PropertySingleCaller,
					Method:      g.MethodName(m),
					Transaction: g.TransactionName(owner),
					Other:       g.TransactionName(tx),
				}
			}
			owner = tx
		}
	}

	for i, a := range fired {
		for _, b := range fired[i+1:] {
			if g.Exclusive(a, b) {
				return &ViolationError{
					Property:    PropertyExclusivity,
					Transaction: g.TransactionName(a),
					Other:       g.TransactionName(b),
				}
			}
		}
	}

	for _, tx := range Blocked(g, ready, fs) {
		if !slices.ContainsFunc(g.Neighbors(tx), func(other int) bool {
			return fs.Contains(other) && g.Rank(other) < g.Rank(tx)
		}) {
			return &ViolationError{Property: PropertyMaximality, Transaction: g.TransactionName(tx)}
		}
	}

	return nil
}
