package parser

import "strings"

// SplitStatements splits raw migration file content into individual
// semicolon-terminated statements. The scan is aware of single-quoted
// strings, double-quoted identifiers, line and block comments, and
// dollar-quoted bodies ($$ ... $$ or $tag$ ... $tag$), so semicolons inside
// any of those do not terminate a statement.
//
// Statement text is preserved verbatim (including embedded comments), with
// surrounding whitespace trimmed and the trailing semicolon removed.
// Fragments that contain only whitespace or comments are dropped.
func SplitStatements(sql string) []string {
	var (
		statements []string
		start      int
	)

	const (
		stNormal = iota
		stString
		stQuotedIdent
		stLineComment
		stBlockComment
		stDollar
	)

	state := stNormal
	dollarTag := ""

	flush := func(end int) {
		stmt := strings.TrimSpace(sql[start:end])
		if stmt != "" && !isCommentOnly(stmt) {
			statements = append(statements, stmt)
		}
		start = end + 1
	}

	for i := 0; i < len(sql); i++ {
		c := sql[i]

		switch state {
		case stNormal:
			switch {
			case c == ';':
				flush(i)
			case c == '\'':
				state = stString
			case c == '"':
				state = stQuotedIdent
			case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
				state = stLineComment
			case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
				state = stBlockComment
				i++
			case c == '$':
				if tag, ok := dollarTagAt(sql, i); ok {
					state = stDollar
					dollarTag = tag
					i += len(tag) - 1
				}
			}
		case stString:
			// A doubled quote is an escaped quote, not a terminator.
			if c == '\'' {
				if i+1 < len(sql) && sql[i+1] == '\'' {
					i++
				} else {
					state = stNormal
				}
			}
		case stQuotedIdent:
			if c == '"' {
				if i+1 < len(sql) && sql[i+1] == '"' {
					i++
				} else {
					state = stNormal
				}
			}
		case stLineComment:
			if c == '\n' {
				state = stNormal
			}
		case stBlockComment:
			if c == '*' && i+1 < len(sql) && sql[i+1] == '/' {
				state = stNormal
				i++
			}
		case stDollar:
			if c == '$' && strings.HasPrefix(sql[i:], dollarTag) {
				state = stNormal
				i += len(dollarTag) - 1
			}
		}
	}

	// Trailing statement without a terminating semicolon.
	if stmt := strings.TrimSpace(sql[start:]); stmt != "" && !isCommentOnly(stmt) {
		statements = append(statements, stmt)
	}

	return statements
}

// dollarTagAt reports whether a dollar-quote tag ($$, $body$, ...) starts at
// position i, and returns the full tag including both dollar signs.
func dollarTagAt(sql string, i int) (string, bool) {
	j := i + 1
	for j < len(sql) && (isIdentChar(sql[j]) || sql[j] == '_') {
		j++
	}
	if j < len(sql) && sql[j] == '$' {
		return sql[i : j+1], true
	}
	return "", false
}

func isIdentChar(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}

// stripDollarQuotes removes dollar-quote markers from a statement, leaving
// the quoted body in place so the classifier can scan function bodies for
// object references with the regular lexer.
func stripDollarQuotes(sql string) string {
	var (
		out   strings.Builder
		state int
		tag   string
	)

	const (
		stNormal = iota
		stString
		stDollar
	)

	for i := 0; i < len(sql); i++ {
		c := sql[i]

		switch state {
		case stNormal:
			if c == '\'' {
				state = stString
			} else if c == '$' {
				if t, ok := dollarTagAt(sql, i); ok {
					state = stDollar
					tag = t
					i += len(t) - 1
					out.WriteByte(' ')
					continue
				}
			}
			out.WriteByte(c)
		case stString:
			out.WriteByte(c)
			if c == '\'' {
				if i+1 < len(sql) && sql[i+1] == '\'' {
					out.WriteByte(sql[i+1])
					i++
				} else {
					state = stNormal
				}
			}
		case stDollar:
			if c == '$' && strings.HasPrefix(sql[i:], tag) {
				state = stNormal
				i += len(tag) - 1
				out.WriteByte(' ')
				continue
			}
			out.WriteByte(c)
		}
	}

	return out.String()
}

// isCommentOnly reports whether a fragment contains nothing but comments
// and whitespace.
func isCommentOnly(s string) bool {
	for {
		s = strings.TrimSpace(s)
		switch {
		case s == "":
			return true
		case strings.HasPrefix(s, "--"):
			idx := strings.IndexByte(s, '\n')
			if idx < 0 {
				return true
			}
			s = s[idx+1:]
		case strings.HasPrefix(s, "/*"):
			idx := strings.Index(s, "*/")
			if idx < 0 {
				return true
			}
			s = s[idx+2:]
		default:
			return false
		}
	}
}
