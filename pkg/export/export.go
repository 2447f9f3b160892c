// Package export renders the dependency graph to textual notations for
// review and documentation. It is purely presentational: every renderer
// walks the same immutable graph and writes deterministic output, so graph
// exports are stable under diff.
package export

import (
	"fmt"
	"io"

	"github.com/migrafold/migrafold/pkg/graph"
	"github.com/pkg/errors"
)

// Format selects the output notation.
type Format string

const (
	// FormatText is a plain adjacency listing, one object per line.
	FormatText Format = "text"

	// FormatDOT is Graphviz dot notation.
	FormatDOT Format = "dot"

	// FormatMermaid is a mermaid flowchart, pasteable into markdown.
	FormatMermaid Format = "mermaid"
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatText, FormatDOT, FormatMermaid:
		return Format(s), nil
	}
	return "", errors.Errorf("unknown graph format %q (expected text, dot, or mermaid)", s)
}

// Render writes the graph to w in the requested format.
func Render(w io.Writer, g *graph.Graph, format Format) error {
	switch format {
	case FormatText:
		return renderText(w, g)
	case FormatDOT:
		return renderDOT(w, g)
	case FormatMermaid:
		return renderMermaid(w, g)
	}
	return errors.Errorf("unknown graph format %q", format)
}

// renderText lists each object with its dependencies, then any referenced
// names defined outside the migration set.
func renderText(w io.Writer, g *graph.Graph) error {
	kinds := edgeKinds(g)

	for i, name := range g.Names() {
		deps := g.Dependencies(i)
		if len(deps) == 0 {
			if _, err := fmt.Fprintf(w, "%s\n", name); err != nil {
				return err
			}
			continue
		}
		for _, d := range deps {
			if _, err := fmt.Fprintf(w, "%s -> %s (%s)\n", name, g.Name(d), kinds[[2]int{i, d}]); err != nil {
				return err
			}
		}
	}

	for _, name := range g.External() {
		if _, err := fmt.Fprintf(w, "%s (external)\n", name); err != nil {
			return err
		}
	}
	return nil
}

func renderDOT(w io.Writer, g *graph.Graph) error {
	if _, err := fmt.Fprintln(w, "digraph migrations {"); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, "    rankdir=LR;"); err != nil {
		return err
	}

	for _, name := range g.Names() {
		if _, err := fmt.Fprintf(w, "    %q;\n", name); err != nil {
			return err
		}
	}
	for _, name := range g.External() {
		if _, err := fmt.Fprintf(w, "    %q [style=dashed];\n", name); err != nil {
			return err
		}
	}
	for _, e := range g.Edges() {
		if _, err := fmt.Fprintf(w, "    %q -> %q [label=%q];\n", g.Name(e.From), g.Name(e.To), string(e.Kind)); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintln(w, "}")
	return err
}

// renderMermaid emits a flowchart with synthetic node ids, since object
// names may contain characters mermaid does not accept in identifiers.
func renderMermaid(w io.Writer, g *graph.Graph) error {
	if _, err := fmt.Fprintln(w, "graph TD"); err != nil {
		return err
	}

	for i, name := range g.Names() {
		if _, err := fmt.Fprintf(w, "    n%d[\"%s\"]\n", i, name); err != nil {
			return err
		}
	}
	for i, name := range g.External() {
		if _, err := fmt.Fprintf(w, "    x%d([\"%s\"])\n", i, name); err != nil {
			return err
		}
	}
	for _, e := range g.Edges() {
		if _, err := fmt.Fprintf(w, "    n%d -->|%s| n%d\n", e.From, string(e.Kind), e.To); err != nil {
			return err
		}
	}
	return nil
}

// edgeKinds indexes edge kinds by (from, to) for the text renderer, which
// iterates adjacency lists rather than the edge slice.
func edgeKinds(g *graph.Graph) map[[2]int]string {
	kinds := make(map[[2]int]string, len(g.Edges()))
	for _, e := range g.Edges() {
		kinds[[2]int{e.From, e.To}] = string(e.Kind)
	}
	return kinds
}
