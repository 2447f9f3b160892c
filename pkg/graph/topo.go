package graph

import (
	"strings"

	"github.com/pkg/errors"
)

// CycleError is returned by TopoOrder when no total order exists.
type CycleError struct {
	// Cycles holds the strongly connected components that block ordering,
	// as returned by Cycles.
	Cycles [][]string
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Cycles))
	for i, c := range e.Cycles {
		parts[i] = strings.Join(c, " -> ")
	}
	return "dependency cycle detected: " + strings.Join(parts, "; ")
}

// TopoOrder returns all object names ordered so every object follows its
// dependencies. Ties are broken by first-definition order (file ordinal,
// then statement index), which keeps output stable and diffable run to run:
// an input with no dependency constraints comes back in its original order.
//
// Returns a *CycleError when the graph is cyclic.
func (g *Graph) TopoOrder() ([]string, error) {
	n := len(g.names)

	remaining := make([]int, n)
	for i := range remaining {
		remaining[i] = len(g.adj[i])
	}

	placed := make([]bool, n)
	order := make([]string, 0, n)

	for len(order) < n {
		// Pick the earliest-defined node whose dependencies are all
		// placed. Linear scan keeps selection obviously deterministic;
		// migration sets are small.
		next := -1
		for i := 0; i < n; i++ {
			if !placed[i] && remaining[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			return nil, &CycleError{Cycles: g.Cycles()}
		}

		placed[next] = true
		order = append(order, g.names[next])
		for _, dependent := range g.radj[next] {
			remaining[dependent]--
		}
	}

	return order, nil
}

// Rank returns a map from object name to its position in the topological
// order. Returns a *CycleError when the graph is cyclic.
func (g *Graph) Rank() (map[string]int, error) {
	order, err := g.TopoOrder()
	if err != nil {
		return nil, err
	}

	rank := make(map[string]int, len(order))
	for i, name := range order {
		rank[name] = i
	}
	return rank, nil
}

// IsCycleError reports whether err is a *CycleError.
func IsCycleError(err error) bool {
	var ce *CycleError
	return errors.As(err, &ce)
}
