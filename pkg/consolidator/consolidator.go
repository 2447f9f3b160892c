// Package consolidator merges a directory of incremental migrations into a
// small set of grouped, idempotent, from-empty-replayable files.
//
// Statements are partitioned into named groups by a caller-supplied
// assignment over object names, groups are ordered so no group depends on a
// later one, statements within a group follow the dependency order of the
// objects they touch, and every create gains an existence guard. Drop statements never survive
// consolidation; replaying from an empty schema has nothing to drop.
package consolidator

import (
	"sort"
	"strings"

	"github.com/migrafold/migrafold/pkg/consts"
	"github.com/migrafold/migrafold/pkg/graph"
	"github.com/migrafold/migrafold/pkg/migrator"
	"github.com/migrafold/migrafold/pkg/parser"
	"github.com/migrafold/migrafold/pkg/rules"
	"github.com/pkg/errors"
)

// Assignment maps an object name to its logical group label. Returning ""
// places the object in the default group.
type Assignment func(object string) string

// DefaultAssignment places every object in the default group.
func DefaultAssignment(string) string {
	return consts.DefaultGroup
}

// PlanError is returned when the input cannot be consolidated. It carries
// the validator issues describing why, so callers report the underlying
// problems rather than a bare refusal.
type PlanError struct {
	Issues []rules.Issue
}

func (e *PlanError) Error() string {
	msgs := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		msgs[i] = issue.Code + ": " + issue.Message
	}
	return "cannot consolidate: " + strings.Join(msgs, "; ")
}

// Consolidate produces a consolidation plan for the loaded migration
// directory. It fails with a *PlanError when the dependency graph is cyclic
// or an object is created in more than one file; a plan over such input
// would silently change the resulting schema.
func Consolidate(dir *migrator.Dir, g *graph.Graph, assign Assignment) (*Plan, error) {
	if assign == nil {
		assign = DefaultAssignment
	}

	a := &rules.Analysis{Dir: dir, Graph: g}
	if issues := append(rules.CycleIssues(a), rules.DuplicateCreateRule().Check(a)...); len(issues) > 0 {
		return nil, &PlanError{Issues: issues}
	}

	rank, err := g.Rank()
	if err != nil {
		return nil, err
	}

	groupOf := func(object string) string {
		if label := assign(object); label != "" {
			return label
		}
		return consts.DefaultGroup
	}

	// Partition non-drop statements by group, in replay order. Untargeted
	// statements have no object to assign and land in the default group.
	type member struct {
		stmt *parser.Statement
		file string
	}
	var order []string
	members := make(map[string][]member)
	for _, f := range dir.Files {
		for _, s := range f.Statements {
			if s.Kind.IsDrop() {
				continue
			}
			label := consts.DefaultGroup
			if s.Target != "" {
				label = groupOf(s.Target)
			}
			if _, ok := members[label]; !ok {
				order = append(order, label)
			}
			members[label] = append(members[label], member{stmt: s, file: f.Name})
		}
	}

	groupOrder, err := orderGroups(g, groupOf, order)
	if err != nil {
		return nil, err
	}

	plan := &Plan{}
	for i, label := range groupOrder {
		grp := &Group{Name: label, Ordinal: i + 1}

		// Statements follow the topological rank of the object they
		// touch, original order breaking ties. A table's alters and
		// updates share the table's rank and stay behind its create,
		// while a view selecting an altered column ranks after the
		// table and so lands after the alter that added the column.
		stmts := append([]member(nil), members[label]...)
		sort.SliceStable(stmts, func(a, b int) bool {
			return targetRank(rank, stmts[a].stmt) < targetRank(rank, stmts[b].stmt)
		})

		// Sources are listed in replay order, not statement-emission
		// order, so the header reads like the original history.
		seen := make(map[string]bool)
		for _, m := range members[label] {
			if !seen[m.file] {
				seen[m.file] = true
				grp.Sources = append(grp.Sources, m.file)
			}
		}

		for _, m := range stmts {
			grp.Statements = append(grp.Statements, Rewrite(m.stmt))
		}

		plan.Groups = append(plan.Groups, grp)
	}

	return plan, nil
}

// targetRank keys a statement by the topological rank of its target object.
// Statements whose target is unknown to the graph sort after every known
// object, keeping their original relative order among themselves.
func targetRank(rank map[string]int, s *parser.Statement) int {
	if r, ok := rank[s.Target]; ok {
		return r
	}
	return len(rank)
}

// orderGroups topologically orders group labels so every group precedes the
// groups that depend on its objects. Ties are broken by first-appearance
// order, keeping unconstrained groups in the order their statements occur.
//
// A cross-group cycle (the object graph is acyclic but the group
// condensation is not) means the assignment itself is unsatisfiable and is
// reported as an error naming the groups involved.
func orderGroups(g *graph.Graph, groupOf func(string) string, appearance []string) ([]string, error) {
	position := make(map[string]int, len(appearance))
	for i, label := range appearance {
		position[label] = i
	}

	// deps[a][b]: group a depends on group b.
	deps := make(map[string]map[string]bool)
	for _, e := range g.Edges() {
		from := groupOf(g.Name(e.From))
		to := groupOf(g.Name(e.To))
		if from == to {
			continue
		}
		if _, ok := position[from]; !ok {
			continue
		}
		if _, ok := position[to]; !ok {
			continue
		}
		if deps[from] == nil {
			deps[from] = make(map[string]bool)
		}
		deps[from][to] = true
	}

	placed := make(map[string]bool, len(appearance))
	order := make([]string, 0, len(appearance))
	for len(order) < len(appearance) {
		next := ""
		for _, label := range appearance {
			if placed[label] {
				continue
			}
			ready := true
			for dep := range deps[label] {
				if !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				next = label
				break
			}
		}
		if next == "" {
			var stuck []string
			for _, label := range appearance {
				if !placed[label] {
					stuck = append(stuck, label)
				}
			}
			return nil, errors.Errorf("group assignment creates a dependency cycle between groups: %s", strings.Join(stuck, ", "))
		}
		placed[next] = true
		order = append(order, next)
	}

	return order, nil
}
