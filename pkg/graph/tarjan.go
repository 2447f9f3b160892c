package graph

import "sort"

// Cycles returns every strongly connected component of size >= 2 as a list
// of object names. Component members are sorted by node index and the
// component list by its first member, so output is stable run to run.
// Self loops are never created by Build, so a single-node component is by
// definition cycle-free and excluded.
func (g *Graph) Cycles() [][]string {
	components := g.tarjan()

	var cycles [][]string
	for _, comp := range components {
		if len(comp) < 2 {
			continue
		}
		sort.Ints(comp)
		names := make([]string, len(comp))
		for i, idx := range comp {
			names[i] = g.names[idx]
		}
		cycles = append(cycles, names)
	}

	sort.Slice(cycles, func(i, j int) bool {
		return g.index[cycles[i][0]] < g.index[cycles[j][0]]
	})
	return cycles
}

// tarjan computes strongly connected components over the adjacency lists
// using Tarjan's algorithm on node indexes.
func (g *Graph) tarjan() [][]int {
	n := len(g.names)

	var (
		components [][]int
		counter    int
		stack      []int
		index      = make([]int, n)
		lowlink    = make([]int, n)
		onStack    = make([]bool, n)
	)
	for i := range index {
		index[i] = -1
	}

	var strongConnect func(v int)
	strongConnect = func(v int) {
		index[v] = counter
		lowlink[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.adj[v] {
			if index[w] < 0 {
				strongConnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] && index[w] < lowlink[v] {
				lowlink[v] = index[w]
			}
		}

		if lowlink[v] == index[v] {
			var comp []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			components = append(components, comp)
		}
	}

	for v := 0; v < n; v++ {
		if index[v] < 0 {
			strongConnect(v)
		}
	}

	return components
}
