// Package utils provides small helpers shared across packages, primarily
// identifier normalization and quoting for PostgreSQL DDL.
package utils

import "strings"

// QuoteIdentifier adds double quotes around an identifier, handling qualified
// identifiers by quoting each part.
//
// Examples:
//   - "orders" -> `"orders"`
//   - "public.orders" -> `"public"."orders"`
//   - `"orders"` -> `"orders"` (already quoted, not double-quoted)
//   - "" -> ""
func QuoteIdentifier(name string) string {
	if name == "" {
		return ""
	}

	parts := strings.Split(name, ".")
	for i, part := range parts {
		if len(part) >= 2 && part[0] == '"' && part[len(part)-1] == '"' {
			continue
		}
		parts[i] = `"` + part + `"`
	}
	return strings.Join(parts, ".")
}

// NormalizeIdentifier lowercases an unquoted identifier and strips the quotes
// from a quoted one, mirroring PostgreSQL's case folding rules. Qualified
// names are normalized part by part.
//
// Examples:
//   - "Orders" -> "orders"
//   - `"Orders"` -> "Orders"
//   - `public."Order Items"` -> "public.Order Items"
func NormalizeIdentifier(name string) string {
	if name == "" {
		return ""
	}

	parts := splitQualified(name)
	for i, part := range parts {
		if len(part) >= 2 && part[0] == '"' && part[len(part)-1] == '"' {
			parts[i] = strings.ReplaceAll(part[1:len(part)-1], `""`, `"`)
			continue
		}
		parts[i] = strings.ToLower(part)
	}
	return strings.Join(parts, ".")
}

// UnqualifiedName returns the final segment of a (possibly qualified) name.
//
// Examples:
//   - "public.orders" -> "orders"
//   - "orders" -> "orders"
func UnqualifiedName(name string) string {
	parts := splitQualified(name)
	return parts[len(parts)-1]
}

// splitQualified splits a qualified name on dots that sit outside of quoted
// segments.
func splitQualified(name string) []string {
	var (
		parts    []string
		current  strings.Builder
		inQuotes bool
	)

	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '"':
			inQuotes = !inQuotes
			current.WriteByte(c)
		case c == '.' && !inQuotes:
			parts = append(parts, current.String())
			current.Reset()
		default:
			current.WriteByte(c)
		}
	}

	parts = append(parts, current.String())
	return parts
}
