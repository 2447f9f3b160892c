package consolidator

import (
	"regexp"
	"strings"

	"github.com/migrafold/migrafold/pkg/parser"
)

// Prelude patterns used to inject existence guards. Each captures the
// statement head up to the point where the guard belongs.
var (
	createTablePattern = regexp.MustCompile(`(?is)^(\s*CREATE\s+(?:GLOBAL\s+|LOCAL\s+)?(?:UNLOGGED\s+|TEMP\s+|TEMPORARY\s+)?TABLE\s+)`)
	createIndexPattern = regexp.MustCompile(`(?is)^(\s*CREATE\s+(?:UNIQUE\s+)?INDEX\s+(?:CONCURRENTLY\s+)?)`)
	createExtPattern   = regexp.MustCompile(`(?is)^(\s*CREATE\s+EXTENSION\s+)`)
	createViewPattern  = regexp.MustCompile(`(?is)^(\s*CREATE\s+)(VIEW\s+)`)
	createMatPattern   = regexp.MustCompile(`(?is)^(\s*CREATE\s+MATERIALIZED\s+VIEW\s+)`)
	createFuncPattern  = regexp.MustCompile(`(?is)^(\s*CREATE\s+)(FUNCTION\s+)`)
)

// Rewrite returns the statement text made safe for from-empty replay:
// CREATE statements gain an existence guard regardless of their original
// form, everything else passes through unchanged. The returned text is
// trimmed and terminated with a semicolon.
func Rewrite(s *parser.Statement) string {
	raw := strings.TrimSpace(s.Raw)
	raw = strings.TrimSuffix(raw, ";")

	if !s.Kind.IsCreate() || s.Guarded {
		return raw + ";"
	}

	switch s.Kind {
	case parser.KindCreateTable:
		raw = guard(createTablePattern, raw, "IF NOT EXISTS ")
	case parser.KindCreateIndex:
		raw = guard(createIndexPattern, raw, "IF NOT EXISTS ")
	case parser.KindCreateExtension:
		raw = guard(createExtPattern, raw, "IF NOT EXISTS ")
	case parser.KindCreateView:
		if createMatPattern.MatchString(raw) {
			// OR REPLACE is not valid for materialized views.
			raw = guard(createMatPattern, raw, "IF NOT EXISTS ")
		} else {
			raw = createViewPattern.ReplaceAllString(raw, "${1}OR REPLACE ${2}")
		}
	case parser.KindCreateFunction:
		raw = createFuncPattern.ReplaceAllString(raw, "${1}OR REPLACE ${2}")
	case parser.KindCreateType:
		// CREATE TYPE has no IF NOT EXISTS form; wrap it so a duplicate
		// definition becomes a no-op instead of an error.
		return wrapDuplicateGuard(raw)
	}

	return raw + ";"
}

// guard inserts the guard text after the captured statement head. If the
// pattern does not match (unexpected prelude shape) the statement is left
// untouched rather than corrupted.
func guard(pattern *regexp.Regexp, raw, text string) string {
	if !pattern.MatchString(raw) {
		return raw
	}
	return pattern.ReplaceAllString(raw, "${1}"+text)
}

// wrapDuplicateGuard embeds the statement in a DO block that swallows
// duplicate_object, the closest equivalent to IF NOT EXISTS for object
// classes that lack one.
func wrapDuplicateGuard(raw string) string {
	var b strings.Builder
	b.WriteString("DO $migrafold$ BEGIN\n")
	for _, line := range strings.Split(raw+";", "\n") {
		b.WriteString("    ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("EXCEPTION WHEN duplicate_object THEN NULL;\nEND $migrafold$;")
	return b.String()
}
