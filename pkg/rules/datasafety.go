package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/migrafold/migrafold/pkg/parser"
)

// NarrowedColumnRule (DATA001, warning) flags ALTER COLUMN TYPE changes
// that narrow a column within its type family (shorter varchar, smaller
// integer, lower numeric precision, text to bounded varchar). Narrowing can
// truncate or reject existing rows.
//
// Column types are tracked by replaying CREATE TABLE and earlier ALTER
// statements in file order, so successive type changes compare against the
// column's current type, not its original one.
func NarrowedColumnRule() Rule {
	return Rule{
		Code:        "DATA001",
		Severity:    SeverityWarning,
		Description: "column type change narrows the column",
		Check: func(a *Analysis) []Issue {
			var issues []Issue
			types := make(map[string]map[string]string) // table -> column -> type

			for _, f := range a.Dir.Files {
				for _, s := range f.Statements {
					switch s.Kind {
					case parser.KindCreateTable:
						cols := make(map[string]string, len(s.Columns))
						for _, c := range s.Columns {
							cols[c.Name] = c.Type
						}
						types[s.Target] = cols
					case parser.KindAlterTable:
						for _, op := range s.AlterOps {
							switch op.Kind {
							case parser.AlterAddColumn:
								if types[s.Target] == nil {
									types[s.Target] = make(map[string]string)
								}
								types[s.Target][op.Column.Name] = op.Column.Type
							case parser.AlterDropColumn:
								delete(types[s.Target], op.Column.Name)
							case parser.AlterColumnType:
								old := types[s.Target][op.Column.Name]
								if old != "" && typeNarrowed(old, op.Column.Type) {
									issues = append(issues, Issue{
										Code:     "DATA001",
										Severity: SeverityWarning,
										Message: fmt.Sprintf("column %s.%s narrows from %s to %s; existing rows may be truncated or rejected",
											s.Target, op.Column.Name, old, op.Column.Type),
										Locations: []parser.SourcePos{s.Pos},
									})
								}
								if types[s.Target] != nil {
									types[s.Target][op.Column.Name] = op.Column.Type
								}
							}
						}
					}
				}
			}
			return issues
		},
	}
}

// DroppedColumnRule (DATA002, warning) flags DROP COLUMN operations with no
// earlier UPDATE of the same table anywhere in the sequence, a coarse
// backfill heuristic: data to be preserved would normally be copied out by
// an UPDATE before the column disappears.
func DroppedColumnRule() Rule {
	return Rule{
		Code:        "DATA002",
		Severity:    SeverityWarning,
		Description: "column is dropped without a preceding backfill",
		Check: func(a *Analysis) []Issue {
			var issues []Issue
			backfilled := make(map[string]bool)

			for _, f := range a.Dir.Files {
				for _, s := range f.Statements {
					if s.Kind == parser.KindUpdate && s.Target != "" {
						backfilled[s.Target] = true
						continue
					}
					if s.Kind != parser.KindAlterTable {
						continue
					}
					for _, op := range s.AlterOps {
						if op.Kind != parser.AlterDropColumn || backfilled[s.Target] {
							continue
						}
						issues = append(issues, Issue{
							Code:     "DATA002",
							Severity: SeverityWarning,
							Message: fmt.Sprintf("column %s.%s is dropped without a prior backfill; its data is unrecoverable",
								s.Target, op.Column.Name),
							Locations: []parser.SourcePos{s.Pos},
						})
					}
				}
			}
			return issues
		},
	}
}

// NotNullWithoutDefaultRule (DATA003, warning) flags ADD COLUMN ... NOT NULL
// without a DEFAULT, which fails outright on any table that already has
// rows.
func NotNullWithoutDefaultRule() Rule {
	return Rule{
		Code:        "DATA003",
		Severity:    SeverityWarning,
		Description: "NOT NULL column added without a default",
		Check: func(a *Analysis) []Issue {
			var issues []Issue
			for _, f := range a.Dir.Files {
				for _, s := range f.Statements {
					if s.Kind != parser.KindAlterTable {
						continue
					}
					for _, op := range s.AlterOps {
						if op.Kind != parser.AlterAddColumn || !op.Column.NotNull || op.Column.HasDefault {
							continue
						}
						issues = append(issues, Issue{
							Code:     "DATA003",
							Severity: SeverityWarning,
							Message: fmt.Sprintf("column %s.%s is NOT NULL without a DEFAULT; adding it fails on non-empty tables",
								s.Target, op.Column.Name),
							Locations: []parser.SourcePos{s.Pos},
						})
					}
				}
			}
			return issues
		},
	}
}

var typeSizePattern = regexp.MustCompile(`^([a-z_ ]+?)\s*\((\d+)`)

// integerRanks orders integer types by byte width.
var integerRanks = map[string]int{
	"smallint": 2, "int2": 2, "smallserial": 2,
	"integer": 4, "int": 4, "int4": 4, "serial": 4,
	"bigint": 8, "int8": 8, "bigserial": 8,
}

// typeNarrowed reports whether changing a column from prev to next narrows
// it. Only comparisons within a type family are attempted; anything else is
// assumed safe to avoid false positives.
func typeNarrowed(prev, next string) bool {
	oldBase, oldSize := splitTypeSize(prev)
	newBase, newSize := splitTypeSize(next)

	// text -> bounded character type.
	if oldBase == "text" && isCharType(newBase) && newSize > 0 {
		return true
	}

	// Same character or numeric family with a shrinking bound. A bounded
	// type losing its bound (varchar(50) -> varchar) widens, not narrows.
	if oldBase == newBase && oldSize > 0 && newSize > 0 && newSize < oldSize {
		return true
	}

	if oldRank, ok := integerRanks[oldBase]; ok {
		if newRank, ok := integerRanks[newBase]; ok {
			return newRank < oldRank
		}
	}

	return false
}

func splitTypeSize(t string) (base string, size int) {
	t = strings.TrimSpace(strings.ToLower(t))
	if m := typeSizePattern.FindStringSubmatch(t); m != nil {
		n, _ := strconv.Atoi(m[2])
		return strings.TrimSpace(m[1]), n
	}
	if idx := strings.IndexByte(t, '('); idx >= 0 {
		return strings.TrimSpace(t[:idx]), 0
	}
	return t, 0
}

func isCharType(base string) bool {
	switch base {
	case "varchar", "char", "character", "character varying":
		return true
	}
	return false
}
