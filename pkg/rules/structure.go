package rules

import (
	"fmt"
	"strings"

	"github.com/migrafold/migrafold/pkg/parser"
)

// ParseFailureRule (PARSE001, info) surfaces statements the parser could not
// classify. They are preserved verbatim and excluded from graph and rule
// analysis, which is worth knowing when reviewing the other findings.
func ParseFailureRule() Rule {
	return Rule{
		Code:        "PARSE001",
		Severity:    SeverityInfo,
		Description: "statement could not be classified and is analyzed as opaque",
		Check: func(a *Analysis) []Issue {
			var issues []Issue
			for _, f := range a.Dir.Files {
				for _, s := range f.Statements {
					if s.ParseError == "" {
						continue
					}
					issues = append(issues, Issue{
						Code:      "PARSE001",
						Severity:  SeverityInfo,
						Message:   fmt.Sprintf("statement %d in %s could not be classified: %s", s.Pos.Index+1, f.Name, s.ParseError),
						Locations: []parser.SourcePos{s.Pos},
					})
				}
			}
			return issues
		},
	}
}

// SumMismatchRule (SUM001, critical) fires when a recorded migrafold.sum
// does not match the current migration contents, meaning history was edited
// after being hashed.
func SumMismatchRule() Rule {
	return Rule{
		Code:        "SUM001",
		Severity:    SeverityCritical,
		Description: "migration contents do not match the recorded sum file",
		Check: func(a *Analysis) []Issue {
			if !a.Dir.SumRecorded || !a.Dir.SumMismatch {
				return nil
			}
			return []Issue{{
				Code:     "SUM001",
				Severity: SeverityCritical,
				Message:  "migration files do not match migrafold.sum; run 'migrafold rehash' if the change is intentional",
			}}
		},
	}
}

// DuplicateCreateRule (DUP001, critical) fires when the same object name is
// the target of a Create statement in two or more distinct files.
func DuplicateCreateRule() Rule {
	return Rule{
		Code:        "DUP001",
		Severity:    SeverityCritical,
		Description: "object is created in more than one migration file",
		Check: func(a *Analysis) []Issue {
			type occurrence struct {
				files     map[string]bool
				locations []parser.SourcePos
			}

			var order []string
			occurrences := make(map[string]*occurrence)
			for _, f := range a.Dir.Files {
				for _, s := range f.Statements {
					if !s.Kind.IsCreate() || s.Target == "" {
						continue
					}
					occ := occurrences[s.Target]
					if occ == nil {
						occ = &occurrence{files: make(map[string]bool)}
						occurrences[s.Target] = occ
						order = append(order, s.Target)
					}
					occ.files[s.Pos.File] = true
					occ.locations = append(occ.locations, s.Pos)
				}
			}

			var issues []Issue
			for _, target := range order {
				occ := occurrences[target]
				if len(occ.files) < 2 {
					continue
				}
				issues = append(issues, Issue{
					Code:      "DUP001",
					Severity:  SeverityCritical,
					Message:   fmt.Sprintf("object %s is created in %d files", target, len(occ.files)),
					Locations: occ.locations,
				})
			}
			return issues
		},
	}
}

// CascadeRule (CASC001, warning) flags DROP and ALTER statements carrying a
// destructive CASCADE modifier. Referential ON DELETE CASCADE actions do
// not trigger this rule.
func CascadeRule() Rule {
	return Rule{
		Code:        "CASC001",
		Severity:    SeverityWarning,
		Description: "statement uses a destructive CASCADE modifier",
		Check: func(a *Analysis) []Issue {
			var issues []Issue
			for _, f := range a.Dir.Files {
				for _, s := range f.Statements {
					if !s.HasCascade || (!s.Kind.IsDrop() && s.Kind != parser.KindAlterTable) {
						continue
					}
					issues = append(issues, Issue{
						Code:      "CASC001",
						Severity:  SeverityWarning,
						Message:   fmt.Sprintf("%s uses CASCADE and may silently drop dependent objects", describeStatement(s)),
						Locations: []parser.SourcePos{s.Pos},
					})
				}
			}
			return issues
		},
	}
}

// CycleRule (CIRC001, critical) fires once per dependency cycle.
func CycleRule() Rule {
	return Rule{
		Code:        "CIRC001",
		Severity:    SeverityCritical,
		Description: "objects form a circular dependency",
		Check:       CycleIssues,
	}
}

// CycleIssues produces one CIRC001 issue per strongly connected component.
// Exposed separately because the consolidator reports the same issues when
// it refuses to produce a plan for a cyclic input.
func CycleIssues(a *Analysis) []Issue {
	var issues []Issue
	for _, cycle := range a.Graph.Cycles() {
		issues = append(issues, Issue{
			Code:      "CIRC001",
			Severity:  SeverityCritical,
			Message:   fmt.Sprintf("circular dependency between %s", strings.Join(cycle, ", ")),
			Locations: createLocations(a, cycle),
		})
	}
	return issues
}

// createLocations finds the source positions of the Create statements for
// the given object names, in file order.
func createLocations(a *Analysis, names []string) []parser.SourcePos {
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}

	var locations []parser.SourcePos
	for _, f := range a.Dir.Files {
		for _, s := range f.Statements {
			if s.Kind.IsCreate() && wanted[s.Target] {
				locations = append(locations, s.Pos)
			}
		}
	}
	return locations
}

func describeStatement(s *parser.Statement) string {
	if s.Target != "" {
		return fmt.Sprintf("%s of %s", strings.ReplaceAll(string(s.Kind), "_", " "), s.Target)
	}
	return strings.ReplaceAll(string(s.Kind), "_", " ")
}
