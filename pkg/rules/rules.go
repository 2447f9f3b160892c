// Package rules is the static-analysis engine for migration directories: an
// open registry of independent checks, each inspecting the parsed files and
// the dependency graph and producing zero or more findings.
//
// Rules are side-effect-free and read-only over their input, so execution
// order never affects the result set; findings are sorted before being
// returned, making Validate deterministic for identical input.
package rules

import (
	"sort"

	"github.com/migrafold/migrafold/pkg/graph"
	"github.com/migrafold/migrafold/pkg/migrator"
	"github.com/migrafold/migrafold/pkg/parser"
)

type (
	// Severity grades a finding.
	Severity string

	// Issue is a single finding produced by a rule. Issues are pure
	// output values; nothing retains them as state.
	Issue struct {
		Code      string
		Severity  Severity
		Message   string
		Locations []parser.SourcePos
	}

	// Analysis bundles the immutable inputs every rule reads.
	Analysis struct {
		Dir   *migrator.Dir
		Graph *graph.Graph
	}

	// CheckFunc inspects an analysis and returns findings.
	CheckFunc func(a *Analysis) []Issue

	// Rule is one registered check.
	Rule struct {
		Code        string
		Severity    Severity
		Description string
		Check       CheckFunc
	}

	// Registry holds a set of rules. New rules are added by registration,
	// not by subclassing anything.
	Registry struct {
		rules []Rule
	}
)

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Rank orders severities for display grouping: critical first.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	default:
		return 2
	}
}

// NewRegistry creates a registry with the given rules.
func NewRegistry(rules ...Rule) *Registry {
	return &Registry{rules: rules}
}

// DefaultRegistry returns a registry containing every built-in rule.
func DefaultRegistry() *Registry {
	return NewRegistry(
		ParseFailureRule(),
		SumMismatchRule(),
		DuplicateCreateRule(),
		CascadeRule(),
		CycleRule(),
		MissingCreateGuardRule(),
		MissingDropGuardRule(),
		DropRecreateRule(0),
		NarrowedColumnRule(),
		DroppedColumnRule(),
		NotNullWithoutDefaultRule(),
	)
}

// Register appends a rule to the registry.
func (r *Registry) Register(rule Rule) {
	r.rules = append(r.rules, rule)
}

// Rules returns the registered rules in registration order.
func (r *Registry) Rules() []Rule {
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Validate runs every registered rule over the analysis and returns the
// concatenated findings, sorted by code then first location. Rules run
// independently; removing or reordering them never changes another rule's
// output.
func (r *Registry) Validate(a *Analysis) []Issue {
	var issues []Issue
	for _, rule := range r.rules {
		issues = append(issues, rule.Check(a)...)
	}

	sortIssues(issues)
	return issues
}

// Validate runs the default registry over the given directory and graph.
func Validate(dir *migrator.Dir, g *graph.Graph) []Issue {
	return DefaultRegistry().Validate(&Analysis{Dir: dir, Graph: g})
}

// HasCritical reports whether any finding is critical.
func HasCritical(issues []Issue) bool {
	for _, issue := range issues {
		if issue.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

func sortIssues(issues []Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		a, b := issues[i], issues[j]
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		af, bf := firstLocation(a), firstLocation(b)
		if af.File != bf.File {
			return af.File < bf.File
		}
		if af.Index != bf.Index {
			return af.Index < bf.Index
		}
		return a.Message < b.Message
	})
}

func firstLocation(issue Issue) parser.SourcePos {
	if len(issue.Locations) == 0 {
		return parser.SourcePos{}
	}
	return issue.Locations[0]
}
