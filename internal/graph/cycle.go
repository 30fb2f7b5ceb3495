package graph

// digraph is an adjacency list keyed by arena index. Successor lists are
// kept sorted so every traversal below is deterministic.
type digraph [][]int

// stronglyConnected finds strongly connected components using Tarjan's
// algorithm, visiting roots in ascending index order.
//
// Only components that contain a cycle are returned: size > 1, or a single
// node with a self-loop. Each component lists its members in ascending order.
func stronglyConnected(g digraph) [][]int {
	var (
		index   = 0
		stack   []int
		indices = make([]int, len(g))
		lowlink = make([]int, len(g))
		onStack = make([]bool, len(g))
		sccs    [][]int
	)
	for i := range indices {
		indices[i] = -1
	}

	var strongConnect func(int)
	strongConnect = func(v int) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g[v] {
			if indices[w] < 0 {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root: pop its component
		if lowlink[v] == indices[v] {
			members := newBitset(len(g))
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				members.set(w)
				if w == v {
					break
				}
			}
			scc := members.members()
			if len(scc) > 1 || hasSelfLoop(g, v) {
				sccs = append(sccs, scc)
			}
		}
	}

	for v := range g {
		if indices[v] < 0 {
			strongConnect(v)
		}
	}

	// Report in order of smallest member so the first cycle is stable.
	sortByFirst(sccs)
	return sccs
}

func hasSelfLoop(g digraph, v int) bool {
	for _, w := range g[v] {
		if w == v {
			return true
		}
	}
	return false
}

func sortByFirst(sccs [][]int) {
	for i := 1; i < len(sccs); i++ {
		for j := i; j > 0 && sccs[j][0] < sccs[j-1][0]; j-- {
			sccs[j], sccs[j-1] = sccs[j-1], sccs[j]
		}
	}
}

// cyclePath returns a shortest closed walk through the component's smallest
// member, staying inside the component: [start, ..., start].
func cyclePath(g digraph, scc []int) []int {
	if len(scc) == 0 {
		return nil
	}
	inSCC := newBitset(len(g))
	for _, v := range scc {
		inSCC.set(v)
	}

	start := scc[0]
	if hasSelfLoop(g, start) {
		return []int{start, start}
	}

	// BFS from start back to start.
	prev := make(map[int]int)
	queue := []int{start}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, w := range g[v] {
			if !inSCC.has(w) {
				continue
			}
			if w == start {
				path := []int{start}
				for cur := v; cur != start; cur = prev[cur] {
					path = append(path, cur)
				}
				path = append(path, start)
				// path is start, v, ..., start reversed in the middle
				reverse(path[1 : len(path)-1])
				return path
			}
			if _, seen := prev[w]; !seen && w != start {
				prev[w] = v
				queue = append(queue, w)
			}
		}
	}
	return []int{start}
}

func reverse(s []int) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
