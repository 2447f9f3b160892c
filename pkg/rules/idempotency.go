package rules

import (
	"fmt"

	"github.com/migrafold/migrafold/pkg/parser"
)

// MissingCreateGuardRule (IDEM001, warning) flags CREATE TABLE, CREATE INDEX
// and CREATE TYPE statements without an IF NOT EXISTS guard: re-running the
// migration would fail instead of being a no-op.
func MissingCreateGuardRule() Rule {
	guarded := map[parser.Kind]bool{
		parser.KindCreateTable: true,
		parser.KindCreateIndex: true,
		parser.KindCreateType:  true,
	}

	return Rule{
		Code:        "IDEM001",
		Severity:    SeverityWarning,
		Description: "create statement lacks an IF NOT EXISTS guard",
		Check: func(a *Analysis) []Issue {
			var issues []Issue
			for _, f := range a.Dir.Files {
				for _, s := range f.Statements {
					if !guarded[s.Kind] || s.Guarded {
						continue
					}
					issues = append(issues, Issue{
						Code:      "IDEM001",
						Severity:  SeverityWarning,
						Message:   fmt.Sprintf("%s lacks IF NOT EXISTS and is not safe to re-run", describeStatement(s)),
						Locations: []parser.SourcePos{s.Pos},
					})
				}
			}
			return issues
		},
	}
}

// MissingDropGuardRule (IDEM002, warning) flags DROP statements without an
// IF EXISTS guard.
func MissingDropGuardRule() Rule {
	return Rule{
		Code:        "IDEM002",
		Severity:    SeverityWarning,
		Description: "drop statement lacks an IF EXISTS guard",
		Check: func(a *Analysis) []Issue {
			var issues []Issue
			for _, f := range a.Dir.Files {
				for _, s := range f.Statements {
					if !s.Kind.IsDrop() || s.Guarded {
						continue
					}
					issues = append(issues, Issue{
						Code:      "IDEM002",
						Severity:  SeverityWarning,
						Message:   fmt.Sprintf("%s lacks IF EXISTS and is not safe to re-run", describeStatement(s)),
						Locations: []parser.SourcePos{s.Pos},
					})
				}
			}
			return issues
		},
	}
}

// DropRecreateRule (DCPAT001, critical) flags a DROP of an object that is
// later recreated under the same name: replaying the pair loses any rows
// the object held.
//
// window bounds how many files apart the drop and the recreate may be
// before they are no longer considered related; zero or negative means
// unlimited, matching any recreate anywhere later in the ordered sequence.
func DropRecreateRule(window int) Rule {
	return Rule{
		Code:        "DCPAT001",
		Severity:    SeverityCritical,
		Description: "object is dropped and later recreated, losing any data it held",
		Check: func(a *Analysis) []Issue {
			type event struct {
				stmt    *parser.Statement
				ordinal int
			}

			var sequence []event
			for _, f := range a.Dir.Files {
				for _, s := range f.Statements {
					if s.Target != "" && (s.Kind.IsDrop() || s.Kind.IsCreate()) {
						sequence = append(sequence, event{stmt: s, ordinal: f.Ordinal})
					}
				}
			}

			var issues []Issue
			for i, ev := range sequence {
				if !ev.stmt.Kind.IsDrop() {
					continue
				}
				for _, later := range sequence[i+1:] {
					if !later.stmt.Kind.IsCreate() || later.stmt.Target != ev.stmt.Target {
						continue
					}
					if window > 0 && later.ordinal-ev.ordinal > window {
						break
					}
					issues = append(issues, Issue{
						Code:     "DCPAT001",
						Severity: SeverityCritical,
						Message: fmt.Sprintf("%s is dropped and recreated; data held by the original is lost on replay",
							ev.stmt.Target),
						Locations: []parser.SourcePos{ev.stmt.Pos, later.stmt.Pos},
					})
					break
				}
			}
			return issues
		},
	}
}
