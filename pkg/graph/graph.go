// Package graph builds the object dependency graph from parsed migration
// statements and provides cycle detection and deterministic topological
// ordering over it.
//
// The graph is represented as adjacency lists keyed by object-name index
// rather than pointers between node values, so cycles need no back
// references and the structure stays trivially immutable after Build.
// Nodes are the distinct target objects across all statements; references
// to names that are never a target are kept in a separate external set so
// they cannot corrupt cycle detection.
package graph

import (
	"sort"

	"github.com/migrafold/migrafold/pkg/migrator"
	"github.com/migrafold/migrafold/pkg/parser"
)

type (
	// Edge is a single dependency: From depends on To.
	Edge struct {
		From int
		To   int

		// Kind records how the dependency was discovered (foreign key,
		// view source, function call, index target, type use).
		Kind parser.RefKind
	}

	// Graph is the immutable dependency graph for one analysis run.
	// Node indexes follow first-definition order: a lower index was
	// defined earlier in the ordered file sequence, which downstream
	// ordering uses as a deterministic tie-break.
	Graph struct {
		names    []string
		index    map[string]int
		adj      [][]int // adj[i]: indexes i depends on, sorted
		radj     [][]int // radj[i]: indexes depending on i, sorted
		edges    []Edge
		external []string
	}
)

// Build constructs the dependency graph from all statements of the given
// migration files. Files must already be in ordinal order (as returned by
// migrator.LoadDir); node numbering and therefore all downstream ordering
// derives from that order.
//
// An edge is added from a statement's target to each of its referenced
// objects, provided the referenced object is itself some statement's target.
// References to unknown objects are recorded in the external set instead.
// Multi-edges between the same pair collapse to one (first discovered kind
// wins); self references are ignored.
func Build(files []*migrator.MigrationFile) *Graph {
	g := &Graph{index: make(map[string]int)}

	// First pass: nodes, in first-definition order.
	for _, f := range files {
		for _, s := range f.Statements {
			if s.Target == "" {
				continue
			}
			if _, ok := g.index[s.Target]; !ok {
				g.index[s.Target] = len(g.names)
				g.names = append(g.names, s.Target)
			}
		}
	}

	g.adj = make([][]int, len(g.names))
	g.radj = make([][]int, len(g.names))

	// Second pass: edges and external references.
	seen := make(map[[2]int]bool)
	externalSeen := make(map[string]bool)
	for _, f := range files {
		for _, s := range f.Statements {
			if s.Target == "" || len(s.References) == 0 {
				continue
			}
			from := g.index[s.Target]

			for _, ref := range s.References {
				to, ok := g.index[ref.Name]
				if !ok {
					if !externalSeen[ref.Name] {
						externalSeen[ref.Name] = true
						g.external = append(g.external, ref.Name)
					}
					continue
				}
				if to == from || seen[[2]int{from, to}] {
					continue
				}
				seen[[2]int{from, to}] = true
				g.edges = append(g.edges, Edge{From: from, To: to, Kind: ref.Kind})
				g.adj[from] = append(g.adj[from], to)
				g.radj[to] = append(g.radj[to], from)
			}
		}
	}

	for i := range g.adj {
		sort.Ints(g.adj[i])
		sort.Ints(g.radj[i])
	}
	sort.Slice(g.edges, func(i, j int) bool {
		if g.edges[i].From != g.edges[j].From {
			return g.edges[i].From < g.edges[j].From
		}
		return g.edges[i].To < g.edges[j].To
	})
	sort.Strings(g.external)

	return g
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.names)
}

// Name returns the object name at the given node index.
func (g *Graph) Name(i int) string {
	return g.names[i]
}

// Names returns all object names in first-definition order.
func (g *Graph) Names() []string {
	out := make([]string, len(g.names))
	copy(out, g.names)
	return out
}

// Lookup returns the node index for an object name.
func (g *Graph) Lookup(name string) (int, bool) {
	i, ok := g.index[name]
	return i, ok
}

// Edges returns all edges sorted by (From, To).
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Dependencies returns the node indexes that node i depends on, sorted.
func (g *Graph) Dependencies(i int) []int {
	return g.adj[i]
}

// External returns referenced names that are no statement's target, sorted.
// They are reported but excluded from cycle detection and ordering.
func (g *Graph) External() []string {
	out := make([]string, len(g.external))
	copy(out, g.external)
	return out
}

// DependsOn reports whether from has a direct dependency edge to to.
func (g *Graph) DependsOn(from, to string) bool {
	fi, ok := g.index[from]
	if !ok {
		return false
	}
	ti, ok := g.index[to]
	if !ok {
		return false
	}
	for _, d := range g.adj[fi] {
		if d == ti {
			return true
		}
	}
	return false
}
