package graph

import (
	"slices"
	"sort"
)

// ConflictGraph is the immutable result of Finalize. Transactions and
// methods are identified by their index within their kind, assigned in
// declaration order. A ConflictGraph is safe for concurrent readers.
type ConflictGraph struct {
	txNames     []string
	methodNames []string
	txIndex     map[string]int
	methodIndex map[string]int

	txCalls       [][]int  // direct callees per transaction
	methodCalls   [][]int  // direct callees per method
	txClosure     []bitset // methods reachable from each transaction
	methodClosure []bitset // methods reachable from each method, itself included
	callers       [][]int  // transactions reaching each method, ascending

	exclusive []bitset // symmetric exclusivity over transactions
	higher    []bitset // higher[t]: transactions with forced priority over t
	lower     []bitset // lower[t]: transactions t has forced priority over
	reasons   map[[2]int]string

	order      []int
	rank       []int
	components [][]int

	diagnostics []error
}

// NumTransactions returns the number of declared transactions.
func (g *ConflictGraph) NumTransactions() int { return len(g.txNames) }

// NumMethods returns the number of declared methods.
func (g *ConflictGraph) NumMethods() int { return len(g.methodNames) }

// TransactionName returns the name of transaction tx.
func (g *ConflictGraph) TransactionName(tx int) string { return g.txNames[tx] }

// MethodName returns the name of method m.
func (g *ConflictGraph) MethodName(m int) string { return g.methodNames[m] }

// TransactionIndex looks up a transaction by name.
func (g *ConflictGraph) TransactionIndex(name string) (int, bool) {
	i, ok := g.txIndex[name]
	return i, ok
}

// MethodIndex looks up a method by name.
func (g *ConflictGraph) MethodIndex(name string) (int, bool) {
	i, ok := g.methodIndex[name]
	return i, ok
}

// TransactionNames returns transaction names in declaration order.
func (g *ConflictGraph) TransactionNames() []string { return slices.Clone(g.txNames) }

// MethodNames returns method names in declaration order.
func (g *ConflictGraph) MethodNames() []string { return slices.Clone(g.methodNames) }

// Order returns the canonical arbitration order: transaction indices in the
// earliest-declared topological order of the forced priority digraph.
func (g *ConflictGraph) Order() []int { return slices.Clone(g.order) }

// Rank returns tx's position in Order.
func (g *ConflictGraph) Rank(tx int) int { return g.rank[tx] }

// Exclusive reports whether transactions a and b may never fire together.
func (g *ConflictGraph) Exclusive(a, b int) bool { return g.exclusive[a].has(b) }

// Neighbors returns the transactions exclusive with tx, ascending.
func (g *ConflictGraph) Neighbors(tx int) []int { return g.exclusive[tx].members() }

// HasPriority reports whether a forced priority places a directly over b.
func (g *ConflictGraph) HasPriority(a, b int) bool { return g.lower[a].has(b) }

// Calls returns the methods transaction tx calls directly, ascending.
func (g *ConflictGraph) Calls(tx int) []int { return slices.Clone(g.txCalls[tx]) }

// MethodCalls returns the methods method m calls directly, ascending.
func (g *ConflictGraph) MethodCalls(m int) []int { return slices.Clone(g.methodCalls[m]) }

// Closure returns every method transaction tx reaches, ascending.
func (g *ConflictGraph) Closure(tx int) []int { return g.txClosure[tx].members() }

// Reaches reports whether method m is in transaction tx's call closure.
func (g *ConflictGraph) Reaches(tx, m int) bool { return g.txClosure[tx].has(m) }

// MethodReaches reports whether method callee is m itself or is reachable
// from m's body.
func (g *ConflictGraph) MethodReaches(m, callee int) bool { return g.methodClosure[m].has(callee) }

// Callers returns the transactions whose closure contains method m.
func (g *ConflictGraph) Callers(m int) []int { return slices.Clone(g.callers[m]) }

// Components returns the connected components of the exclusivity graph.
// Members are in canonical order; components are ordered by the rank of
// their first member.
func (g *ConflictGraph) Components() [][]int {
	out := make([][]int, len(g.components))
	for i, c := range g.components {
		out[i] = slices.Clone(c)
	}
	return out
}

// Diagnostics returns warning-level findings, currently one
// UnreachableMethodError per method no transaction reaches.
func (g *ConflictGraph) Diagnostics() []error { return slices.Clone(g.diagnostics) }

// EdgeKind labels an exported edge.
type EdgeKind string

const (
	EdgeExclusive EdgeKind = "exclusive"
	EdgePriority  EdgeKind = "priority"
)

// Edge is one transaction-level edge. For priority edges A is the higher
// side. Reason names the source of an exclusive edge: "method M" for a
// shared method, or the relation that produced it.
type Edge struct {
	Kind   EdgeKind `json:"kind"`
	A      string   `json:"a"`
	B      string   `json:"b"`
	Reason string   `json:"reason,omitempty"`
}

// Edges lists exclusive edges (A declared before B) followed by priority
// edges, each sorted by declaration index.
func (g *ConflictGraph) Edges() []Edge {
	var out []Edge
	keys := make([][2]int, 0, len(g.reasons))
	for k := range g.reasons {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})
	for _, k := range keys {
		out = append(out, Edge{
			Kind:   EdgeExclusive,
			A:      g.txNames[k[0]],
			B:      g.txNames[k[1]],
			Reason: g.reasons[k],
		})
	}
	for tx := range g.txNames {
		for _, lo := range g.lower[tx].members() {
			out = append(out, Edge{Kind: EdgePriority, A: g.txNames[tx], B: g.txNames[lo]})
		}
	}
	return out
}
