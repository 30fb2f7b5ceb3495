package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/txsched/internal/ir"
)

// CycleKind names the relation a cycle runs through.
type CycleKind string

const (
	// CycleKindCall is a cycle of nested method calls.
	CycleKindCall CycleKind = "call"

	// CycleKindPriority is a cycle of declared priority relations.
	CycleKindPriority CycleKind = "priority"
)

// CycleWarning describes one cycle found in a design.
//
// Both kinds make Finalize fail. The graph builder stops at the first one;
// AnalyzeCycles reports every cycle so a design can be fixed in one pass.
type CycleWarning struct {
	Kind    CycleKind `json:"kind"`
	Path    []string  `json:"path"`    // Cycle path: ["a", "b", "a"]
	Message string    `json:"message"` // Human-readable description
	Level   string    `json:"level"`   // "error"
}

// AnalyzeCycles performs static cycle analysis on a design.
//
// The algorithm:
//  1. Build the method call graph and the declared priority graph
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or a self-loop as a cycle
//
// Node and edge order follow declaration order, so the result is
// deterministic. An acyclic design returns an empty list.
//
// Priority cycles that only appear after relations on methods are lifted
// to their calling transactions are not visible here; Finalize finds those.
func AnalyzeCycles(d *ir.Design) []CycleWarning {
	warnings := []CycleWarning{}
	warnings = append(warnings, findCycles(CycleKindCall, callGraph(d))...)
	warnings = append(warnings, findCycles(CycleKindPriority, priorityGraph(d))...)
	return warnings
}

// dependencyGraph is an adjacency list with a fixed node order.
type dependencyGraph struct {
	nodes []string
	edges map[string][]string
}

func newDependencyGraph() *dependencyGraph {
	return &dependencyGraph{edges: make(map[string][]string)}
}

func (g *dependencyGraph) addNode(n string) {
	if _, ok := g.edges[n]; !ok {
		g.nodes = append(g.nodes, n)
		g.edges[n] = []string{}
	}
}

func (g *dependencyGraph) addEdge(from, to string) {
	g.addNode(from)
	g.addNode(to)
	g.edges[from] = append(g.edges[from], to)
}

// callGraph links each method to the declared methods it calls.
func callGraph(d *ir.Design) *dependencyGraph {
	g := newDependencyGraph()
	methods := make(map[string]bool, len(d.Methods))
	for _, m := range d.Methods {
		methods[m.Name] = true
		g.addNode(m.Name)
	}
	for _, m := range d.Methods {
		for _, callee := range m.Calls {
			if methods[callee] {
				g.addEdge(m.Name, callee)
			}
		}
	}
	return g
}

// priorityGraph links the higher side of each priority relation to the lower.
func priorityGraph(d *ir.Design) *dependencyGraph {
	g := newDependencyGraph()
	for _, rel := range d.Relations {
		if rel.Kind == ir.RelationPriority {
			g.addEdge(rel.A, rel.B)
		}
	}
	return g
}

func findCycles(kind CycleKind, g *dependencyGraph) []CycleWarning {
	var warnings []CycleWarning
	for _, scc := range tarjanSCC(g) {
		if len(scc) > 1 || hasSelfLoop(scc[0], g) {
			warnings = append(warnings, cycleSCCToWarning(kind, scc, g))
		}
	}
	slices.SortStableFunc(warnings, func(a, b CycleWarning) int {
		return slices.Index(g.nodes, a.Path[0]) - slices.Index(g.nodes, b.Path[0])
	})
	return warnings
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, g *dependencyGraph) bool {
	return slices.Contains(g.edges[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Each SCC is returned with its members in node order.
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(g *dependencyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	order := make(map[string]int, len(g.nodes))
	for i, n := range g.nodes {
		order[n] = i
	}

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.edges[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// If v is a root node, pop the stack and create an SCC
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.SortFunc(scc, func(a, b string) int { return order[a] - order[b] })
			sccs = append(sccs, scc)
		}
	}

	for _, node := range g.nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// cycleSCCToWarning converts an SCC to a CycleWarning.
// For self-loops, the path is [name, name].
func cycleSCCToWarning(kind CycleKind, scc []string, g *dependencyGraph) CycleWarning {
	path := []string{scc[0], scc[0]}
	if len(scc) > 1 {
		path = reconstructCyclePath(scc, g)
	}

	var message string
	switch kind {
	case CycleKindCall:
		message = fmt.Sprintf("method call cycle: %s", strings.Join(path, " -> "))
	default:
		message = fmt.Sprintf("priority cycle: %s", strings.Join(path, " > "))
	}
	return CycleWarning{Kind: kind, Path: path, Message: message, Level: "error"}
}

// reconstructCyclePath returns a shortest cycle through the first SCC member,
// found by breadth-first search restricted to the SCC.
func reconstructCyclePath(scc []string, g *dependencyGraph) []string {
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}

	start := scc[0]
	parent := map[string]string{start: ""}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range g.edges[cur] {
			if next == start {
				path := []string{start}
				for n := cur; n != start; n = parent[n] {
					path = append(path, n)
				}
				slices.Reverse(path[1:])
				return append(path, start)
			}
			if _, seen := parent[next]; !seen && members[next] {
				parent[next] = cur
				queue = append(queue, next)
			}
		}
	}

	// Unreachable for a true SCC.
	return append(slices.Clone(scc), start)
}
