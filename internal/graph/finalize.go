package graph

import (
	"fmt"
	"slices"

	"github.com/roach88/txsched/internal/ir"
)

// Finalize freezes the builder and compiles the conflict graph.
//
// The passes run in a fixed order:
//  1. Resolve call names; only methods may be called
//  2. Reject method call cycles (CALL_CYCLE)
//  3. Call-closure pass: methods reachable from every node
//  4. Reject cycles among declared priorities (PRIORITY_CYCLE)
//  5. Infer exclusivity from shared methods, lift relations to transactions,
//     reject transactions on both sides of a relation (SELF_CONFLICT)
//  6. Reject cycles among lifted priorities (PRIORITY_CYCLE)
//  7. Canonical order, connected components, diagnostics
//
// On error the builder stays in the accumulation phase. On success every
// further registration, including a second Finalize, fails with
// LateRegistrationError.
func (b *Builder) Finalize() (*ConflictGraph, error) {
	if b.finalized {
		return nil, &LateRegistrationError{Op: "finalize"}
	}
	g, err := b.compile()
	if err != nil {
		return nil, err
	}
	b.finalized = true
	return g, nil
}

func (b *Builder) compile() (*ConflictGraph, error) {
	g := &ConflictGraph{
		txNames:     make([]string, b.numTx),
		methodNames: make([]string, b.numMethod),
		txIndex:     make(map[string]int, b.numTx),
		methodIndex: make(map[string]int, b.numMethod),
		reasons:     make(map[[2]int]string),
	}
	for _, n := range b.nodes {
		if n.kind == KindTransaction {
			g.txNames[n.index] = n.name
			g.txIndex[n.name] = n.index
		} else {
			g.methodNames[n.index] = n.name
			g.methodIndex[n.name] = n.index
		}
	}

	calls, err := b.resolveCalls()
	if err != nil {
		return nil, err
	}
	if err := b.checkCallCycles(calls); err != nil {
		return nil, err
	}

	closure := b.closures(calls)
	g.txCalls = make([][]int, b.numTx)
	g.methodCalls = make([][]int, b.numMethod)
	g.txClosure = make([]bitset, b.numTx)
	g.methodClosure = make([]bitset, b.numMethod)
	for pos, n := range b.nodes {
		direct := make([]int, len(calls[pos]))
		for i, c := range calls[pos] {
			direct[i] = b.nodes[c].index
		}
		if n.kind == KindTransaction {
			g.txCalls[n.index] = direct
			g.txClosure[n.index] = closure[pos]
		} else {
			g.methodCalls[n.index] = direct
			g.methodClosure[n.index] = closure[pos]
		}
	}

	g.callers = make([][]int, b.numMethod)
	for tx := 0; tx < b.numTx; tx++ {
		for _, m := range g.txClosure[tx].members() {
			g.callers[m] = append(g.callers[m], tx)
		}
	}

	rels, err := b.resolveRelations()
	if err != nil {
		return nil, err
	}
	if err := b.checkDeclaredPriorities(rels); err != nil {
		return nil, err
	}

	g.exclusive = make([]bitset, b.numTx)
	g.higher = make([]bitset, b.numTx)
	g.lower = make([]bitset, b.numTx)
	for tx := 0; tx < b.numTx; tx++ {
		g.exclusive[tx] = newBitset(b.numTx)
		g.higher[tx] = newBitset(b.numTx)
		g.lower[tx] = newBitset(b.numTx)
	}

	// Shared methods: all callers of a method are pairwise exclusive.
	for m, callers := range g.callers {
		for i := 0; i < len(callers); i++ {
			for j := i + 1; j < len(callers); j++ {
				g.addExclusive(callers[i], callers[j], "method "+g.methodNames[m])
			}
		}
	}

	if err := g.liftRelations(b, rels); err != nil {
		return nil, err
	}
	if err := g.checkLiftedPriorities(); err != nil {
		return nil, err
	}

	g.computeOrder()
	g.computeComponents()

	for m, callers := range g.callers {
		if len(callers) == 0 {
			g.diagnostics = append(g.diagnostics, &UnreachableMethodError{Method: g.methodNames[m]})
		}
	}

	return g, nil
}

// resolveCalls maps every node's call list to sorted, de-duplicated arena
// positions.
func (b *Builder) resolveCalls() ([][]int, error) {
	calls := make([][]int, len(b.nodes))
	for pos, n := range b.nodes {
		for _, name := range n.calls {
			target, ok := b.byName[name]
			if !ok {
				return nil, &DeclarationError{
					Code:    CodeUnknownName,
					Name:    name,
					Message: fmt.Sprintf("%s %q calls undeclared method", n.kind, n.name),
				}
			}
			if b.nodes[target].kind != KindMethod {
				return nil, &DeclarationError{
					Code:    CodeCallTransaction,
					Name:    name,
					Message: fmt.Sprintf("%s %q calls a transaction; only methods are callable", n.kind, n.name),
				}
			}
			calls[pos] = append(calls[pos], target)
		}
		slices.Sort(calls[pos])
		calls[pos] = slices.Compact(calls[pos])
	}
	return calls, nil
}

func (b *Builder) checkCallCycles(calls [][]int) error {
	sccs := stronglyConnected(digraph(calls))
	if len(sccs) == 0 {
		return nil
	}
	return &ConflictGraphError{
		Code:    CodeCallCycle,
		Message: "methods call each other in a cycle",
		Path:    b.names(cyclePath(digraph(calls), sccs[0])),
	}
}

// closures computes the set of method indices reachable from every arena
// node. Methods include themselves. Requires an acyclic call graph.
func (b *Builder) closures(calls [][]int) []bitset {
	closure := make([]bitset, len(b.nodes))
	var visit func(pos int) bitset
	visit = func(pos int) bitset {
		if closure[pos] != nil {
			return closure[pos]
		}
		set := newBitset(b.numMethod)
		if b.nodes[pos].kind == KindMethod {
			set.set(b.nodes[pos].index)
		}
		for _, c := range calls[pos] {
			set.union(visit(c))
		}
		closure[pos] = set
		return set
	}
	for pos := range b.nodes {
		visit(pos)
	}
	return closure
}

type resolvedRelation struct {
	kind ir.RelationKind
	a, b int // arena positions
}

func (b *Builder) resolveRelations() ([]resolvedRelation, error) {
	out := make([]resolvedRelation, 0, len(b.relations))
	for _, r := range b.relations {
		a, ok := b.byName[r.a]
		if !ok {
			return nil, &DeclarationError{Code: CodeUnknownName, Name: r.a, Message: string(r.kind) + " relation names undeclared node"}
		}
		bb, ok := b.byName[r.b]
		if !ok {
			return nil, &DeclarationError{Code: CodeUnknownName, Name: r.b, Message: string(r.kind) + " relation names undeclared node"}
		}
		out = append(out, resolvedRelation{kind: r.kind, a: a, b: bb})
	}
	return out, nil
}

// checkDeclaredPriorities rejects cycles among priority relations exactly as
// declared, before lifting. This catches A > B > A even when neither side is
// reachable from any transaction.
func (b *Builder) checkDeclaredPriorities(rels []resolvedRelation) error {
	g := make(digraph, len(b.nodes))
	for _, r := range rels {
		if r.kind == ir.RelationPriority {
			g[r.a] = append(g[r.a], r.b)
		}
	}
	for v := range g {
		slices.Sort(g[v])
		g[v] = slices.Compact(g[v])
	}
	sccs := stronglyConnected(g)
	if len(sccs) == 0 {
		return nil
	}
	return &ConflictGraphError{
		Code:    CodePriorityCycle,
		Message: "declared priorities form a cycle",
		Path:    b.names(cyclePath(g, sccs[0])),
	}
}

func (b *Builder) names(path []int) []string {
	out := make([]string, len(path))
	for i, pos := range path {
		out[i] = b.nodes[pos].name
	}
	return out
}

// side returns the transactions a relation endpoint stands for: the
// transaction itself, or every transaction reaching the method.
func (g *ConflictGraph) side(b *Builder, pos int) bitset {
	n := b.nodes[pos]
	set := newBitset(len(g.txNames))
	if n.kind == KindTransaction {
		set.set(n.index)
		return set
	}
	for _, tx := range g.callers[n.index] {
		set.set(tx)
	}
	return set
}

func (g *ConflictGraph) liftRelations(b *Builder, rels []resolvedRelation) error {
	for _, r := range rels {
		sa, sb := g.side(b, r.a), g.side(b, r.b)
		if sa.intersects(sb) {
			shared := sa.members()
			for _, tx := range shared {
				if sb.has(tx) {
					return &ConflictGraphError{
						Code: CodeSelfConflict,
						Message: fmt.Sprintf("transaction reaches both sides of %s relation %s/%s",
							r.kind, b.nodes[r.a].name, b.nodes[r.b].name),
						Transaction: g.txNames[tx],
					}
				}
			}
		}

		reason := fmt.Sprintf("%s %s %s", r.kind, b.nodes[r.a].name, b.nodes[r.b].name)
		for _, x := range sa.members() {
			for _, y := range sb.members() {
				g.addExclusive(x, y, reason)
				if r.kind == ir.RelationPriority {
					g.higher[y].set(x)
					g.lower[x].set(y)
				}
			}
		}
	}
	return nil
}

func (g *ConflictGraph) addExclusive(x, y int, reason string) {
	g.exclusive[x].set(y)
	g.exclusive[y].set(x)
	key := [2]int{min(x, y), max(x, y)}
	if _, ok := g.reasons[key]; !ok {
		g.reasons[key] = reason
	}
}

func (g *ConflictGraph) checkLiftedPriorities() error {
	pg := make(digraph, len(g.txNames))
	for tx := range pg {
		pg[tx] = g.lower[tx].members()
	}
	sccs := stronglyConnected(pg)
	if len(sccs) == 0 {
		return nil
	}
	path := cyclePath(pg, sccs[0])
	names := make([]string, len(path))
	for i, tx := range path {
		names[i] = g.txNames[tx]
	}
	return &ConflictGraphError{
		Code:    CodePriorityCycle,
		Message: "forced priorities between transactions form a cycle",
		Path:    names,
	}
}

// computeOrder runs Kahn's algorithm over the lifted priority digraph,
// always taking the earliest-declared available transaction.
func (g *ConflictGraph) computeOrder() {
	n := len(g.txNames)
	indegree := make([]int, n)
	for tx := 0; tx < n; tx++ {
		indegree[tx] = len(g.higher[tx].members())
	}

	var available []int
	for tx := 0; tx < n; tx++ {
		if indegree[tx] == 0 {
			available = append(available, tx)
		}
	}

	g.order = make([]int, 0, n)
	for len(available) > 0 {
		tx := available[0]
		available = available[1:]
		g.order = append(g.order, tx)
		for _, lo := range g.lower[tx].members() {
			indegree[lo]--
			if indegree[lo] == 0 {
				pos, _ := slices.BinarySearch(available, lo)
				available = slices.Insert(available, pos, lo)
			}
		}
	}

	g.rank = make([]int, n)
	for pos, tx := range g.order {
		g.rank[tx] = pos
	}
}

// computeComponents groups transactions connected by exclusivity edges.
func (g *ConflictGraph) computeComponents() {
	n := len(g.txNames)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	for tx := 0; tx < n; tx++ {
		for _, other := range g.exclusive[tx].members() {
			ra, rb := find(tx), find(other)
			if ra != rb {
				parent[ra] = rb
			}
		}
	}

	// Walking the canonical order yields components ordered by their first
	// member and members in canonical order.
	slot := make(map[int]int)
	for _, tx := range g.order {
		root := find(tx)
		idx, ok := slot[root]
		if !ok {
			idx = len(g.components)
			slot[root] = idx
			g.components = append(g.components, nil)
		}
		g.components[idx] = append(g.components[idx], tx)
	}
}
