package parser

import (
	"sort"
	"strings"

	"github.com/migrafold/migrafold/pkg/utils"
)

// sqlKeywords are identifiers that never count as object names or
// function-call targets during reference extraction.
var sqlKeywords = keywordSet(
	"SELECT", "INSERT", "UPDATE", "DELETE", "FROM", "JOIN", "INNER", "OUTER",
	"LEFT", "RIGHT", "FULL", "CROSS", "LATERAL", "ON", "USING", "WHERE",
	"GROUP", "ORDER", "BY", "HAVING", "LIMIT", "OFFSET", "UNION", "EXCEPT",
	"INTERSECT", "DISTINCT", "AS", "AND", "OR", "NOT", "IN", "IS", "NULL",
	"TRUE", "FALSE", "LIKE", "ILIKE", "BETWEEN", "EXISTS", "ANY", "ALL",
	"SOME", "CASE", "WHEN", "THEN", "ELSE", "END", "OVER", "PARTITION",
	"FILTER", "WITHIN", "VALUES", "INTO", "SET", "RETURNING", "WITH",
	"RECURSIVE", "CREATE", "ALTER", "DROP", "TABLE", "VIEW", "INDEX",
	"FUNCTION", "TYPE", "EXTENSION", "CONSTRAINT", "PRIMARY", "FOREIGN",
	"KEY", "UNIQUE", "CHECK", "EXCLUDE", "DEFAULT", "REFERENCES", "COLLATE",
	"GENERATED", "ALWAYS", "IDENTITY", "CASCADE", "RESTRICT", "IF",
	"LANGUAGE", "RETURNS", "RETURN", "BEGIN", "DECLARE", "PERFORM",
	"EXECUTE", "RAISE", "LOOP", "WHILE", "FOR", "ELSIF", "INTERVAL",
	"ROW", "ARRAY", "GROUPING", "ONLY", "CONCURRENTLY", "MATERIALIZED",
	"TEMPORARY", "TEMP", "UNLOGGED", "REPLACE", "ENUM", "RANGE", "OWNER",
	"TO", "ADD", "COLUMN", "DATA",
)

// builtinFunctions are well-known PostgreSQL functions excluded from
// function-call reference extraction to keep the external-reference report
// useful. User-defined functions are never in this set, so calls to them
// still produce dependency edges.
var builtinFunctions = keywordSet(
	"NOW", "COUNT", "SUM", "AVG", "MIN", "MAX", "COALESCE", "NULLIF",
	"GREATEST", "LEAST", "LOWER", "UPPER", "LENGTH", "CHAR_LENGTH",
	"SUBSTR", "SUBSTRING", "TRIM", "LTRIM", "RTRIM", "BTRIM", "CONCAT",
	"CONCAT_WS", "POSITION", "LPAD", "RPAD", "MD5", "RANDOM", "ROUND",
	"ABS", "CEIL", "CEILING", "FLOOR", "POWER", "SQRT", "MOD", "EXP",
	"LN", "LOG", "TO_CHAR", "TO_DATE", "TO_TIMESTAMP", "TO_NUMBER",
	"DATE_TRUNC", "DATE_PART", "AGE", "EXTRACT", "GENERATE_SERIES",
	"ARRAY_AGG", "STRING_AGG", "ARRAY_LENGTH", "UNNEST", "CAST",
	"JSON_AGG", "JSONB_AGG", "JSON_BUILD_OBJECT", "JSONB_BUILD_OBJECT",
	"JSONB_SET", "ROW_NUMBER", "RANK", "DENSE_RANK", "LAG", "LEAD",
	"FIRST_VALUE", "LAST_VALUE", "NTH_VALUE", "NTILE", "CURRVAL",
	"NEXTVAL", "SETVAL", "LASTVAL", "FORMAT", "QUOTE_IDENT",
	"QUOTE_LITERAL", "TRANSLATE", "INITCAP", "SPLIT_PART", "REPLACE",
	"VERSION", "CURRENT_DATABASE", "CURRENT_SCHEMA", "PG_SLEEP",
	"ENCODE", "DECODE", "GEN_RANDOM_UUID", "TXID_CURRENT", "CLOCK_TIMESTAMP",
	"STATEMENT_TIMESTAMP", "TRANSACTION_TIMESTAMP",
)

// builtinTypes are PostgreSQL core type names; a column whose type is not
// in this set is assumed to reference a user-defined type or extension type.
var builtinTypes = keywordSet(
	"SMALLINT", "INTEGER", "INT", "INT2", "INT4", "INT8", "BIGINT",
	"SERIAL", "SMALLSERIAL", "BIGSERIAL", "BOOLEAN", "BOOL", "TEXT",
	"VARCHAR", "CHAR", "CHARACTER", "VARYING", "NUMERIC", "DECIMAL",
	"REAL", "FLOAT", "FLOAT4", "FLOAT8", "DOUBLE", "PRECISION", "MONEY",
	"BYTEA", "TIMESTAMP", "TIMESTAMPTZ", "DATE", "TIME", "TIMETZ",
	"INTERVAL", "UUID", "JSON", "JSONB", "XML", "INET", "CIDR", "MACADDR",
	"MACADDR8", "POINT", "LINE", "LSEG", "BOX", "PATH", "POLYGON",
	"CIRCLE", "TSVECTOR", "TSQUERY", "OID", "NAME", "BIGINTEGER", "BIT",
	"VARBIT", "ZONE",
)

func keywordSet(words ...string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// cursor is a simple forward-only view over a token slice.
type cursor struct {
	toks []token
	pos  int
}

func (c *cursor) eof() bool { return c.pos >= len(c.toks) }

func (c *cursor) peek(n int) token {
	if c.pos+n >= len(c.toks) {
		return token{}
	}
	return c.toks[c.pos+n]
}

func (c *cursor) next() token {
	t := c.peek(0)
	c.pos++
	return t
}

// isKeyword reports whether the current token is the given bare keyword,
// without advancing.
func (c *cursor) isKeyword(kw string) bool {
	t := c.peek(0)
	return t.Sym == "Ident" && strings.EqualFold(t.Value, kw)
}

// keyword consumes the current token when it matches the given keyword.
func (c *cursor) keyword(kw string) bool {
	if c.isKeyword(kw) {
		c.pos++
		return true
	}
	return false
}

// keywordSeq consumes a sequence of keywords, all or nothing.
func (c *cursor) keywordSeq(kws ...string) bool {
	save := c.pos
	for _, kw := range kws {
		if !c.keyword(kw) {
			c.pos = save
			return false
		}
	}
	return true
}

func (c *cursor) punct(v string) bool {
	t := c.peek(0)
	if t.Sym == "Punct" && t.Value == v {
		c.pos++
		return true
	}
	return false
}

// qualifiedName consumes an optionally schema-qualified identifier and
// returns its normalized form (unquoted parts case-folded to lower).
func (c *cursor) qualifiedName() (string, bool) {
	var parts []string

	for {
		t := c.peek(0)
		switch t.Sym {
		case "Ident":
			parts = append(parts, strings.ToLower(t.Value))
		case "QuotedIdent":
			parts = append(parts, strings.ReplaceAll(t.Value[1:len(t.Value)-1], `""`, `"`))
		default:
			return "", false
		}
		c.pos++

		if !c.punct(".") {
			break
		}
	}

	return strings.Join(parts, "."), true
}

// classify turns one raw statement into a Statement. Failures are recorded
// on the statement rather than returned: an unclassifiable but lexable
// statement is KindOther with no ParseError, while a statement that cannot
// be tokenized or has a malformed prelude carries a ParseError.
func classify(raw string) *Statement {
	stmt := &Statement{Kind: KindOther, Raw: raw}

	toks, err := lexTokens(stripDollarQuotes(raw))
	if err != nil {
		stmt.ParseError = err.Error()
		return stmt
	}
	if len(toks) == 0 {
		return stmt
	}

	c := &cursor{toks: toks}
	switch {
	case c.keyword("CREATE"):
		classifyCreate(c, stmt)
	case c.keyword("ALTER"):
		classifyAlter(c, stmt)
	case c.keyword("DROP"):
		classifyDrop(c, stmt)
	case c.keyword("UPDATE"):
		if name, ok := c.qualifiedName(); ok {
			stmt.Kind = KindUpdate
			stmt.Target = name
		}
	}

	stmt.HasCascade = scanCascade(toks)
	finalizeReferences(stmt)
	return stmt
}

func classifyCreate(c *cursor, stmt *Statement) {
	orReplace := c.keywordSeq("OR", "REPLACE")
	c.keyword("UNIQUE")
	c.keyword("MATERIALIZED")
	for c.keyword("TEMP") || c.keyword("TEMPORARY") || c.keyword("UNLOGGED") {
	}

	switch {
	case c.keyword("TABLE"):
		stmt.Kind = KindCreateTable
	case c.keyword("VIEW"):
		stmt.Kind = KindCreateView
	case c.keyword("INDEX"):
		stmt.Kind = KindCreateIndex
	case c.keyword("FUNCTION"):
		stmt.Kind = KindCreateFunction
	case c.keyword("TYPE"):
		stmt.Kind = KindCreateType
	case c.keyword("EXTENSION"):
		stmt.Kind = KindCreateExtension
	default:
		// CREATE SEQUENCE, TRIGGER, SCHEMA, etc. pass through untouched.
		return
	}

	c.keyword("CONCURRENTLY")
	if c.keywordSeq("IF", "NOT", "EXISTS") {
		stmt.Guarded = true
	}
	if orReplace {
		stmt.Guarded = true
	}

	// The index name is optional: CREATE INDEX ON t (...) is anonymous and
	// takes the name PostgreSQL would generate for it.
	if stmt.Kind != KindCreateIndex || !c.isKeyword("ON") {
		name, ok := c.qualifiedName()
		if !ok {
			stmt.ParseError = "expected object name in CREATE statement"
			stmt.Kind = KindOther
			return
		}
		stmt.Target = name
	}

	switch stmt.Kind {
	case KindCreateIndex:
		if c.keyword("ON") {
			c.keyword("ONLY")
			if table, ok := c.qualifiedName(); ok {
				addReference(stmt, table, RefIndexTarget)
				if stmt.Target == "" {
					stmt.Target = generatedIndexName(table, c)
				}
			}
		}
	case KindCreateTable:
		parseTableBody(c, stmt)
	}

	// Generic reference scan over the remainder: REFERENCES clauses,
	// FROM/JOIN sources in view, function, and CTAS bodies, and calls to
	// user-defined functions.
	scanReferences(c, stmt)
}

// generatedIndexName mirrors PostgreSQL's name for an unnamed index: the
// unqualified table name, the leading identifier of each indexed column
// expression, and an idx suffix. The cursor is not consumed; the generic
// reference scan still needs to see the column list.
func generatedIndexName(table string, c *cursor) string {
	parts := []string{utils.UnqualifiedName(table)}

	look := &cursor{toks: c.toks, pos: c.pos}
	if look.keyword("USING") {
		look.next()
	}
	if look.punct("(") {
		depth := 1
		lead := true
		for !look.eof() && depth > 0 {
			t := look.next()
			switch {
			case t.Sym == "Punct" && t.Value == "(":
				depth++
			case t.Sym == "Punct" && t.Value == ")":
				depth--
			case t.Sym == "Punct" && t.Value == "," && depth == 1:
				lead = true
			case lead && depth == 1 && t.Sym == "Ident":
				parts = append(parts, strings.ToLower(t.Value))
				lead = false
			case lead && depth == 1 && t.Sym == "QuotedIdent":
				parts = append(parts, strings.ReplaceAll(t.Value[1:len(t.Value)-1], `""`, `"`))
				lead = false
			default:
				lead = false
			}
		}
	}

	return strings.Join(append(parts, "idx"), "_")
}

// parseTableBody extracts column definitions from a parenthesized CREATE
// TABLE body without consuming the cursor (the generic reference scan still
// needs to see the body tokens).
func parseTableBody(c *cursor, stmt *Statement) {
	body := &cursor{toks: c.toks, pos: c.pos}
	if !body.punct("(") {
		return
	}

	for _, entry := range splitTopLevel(body) {
		col, ok := parseColumnDef(entry)
		if !ok {
			continue
		}
		stmt.Columns = append(stmt.Columns, col)
		addTypeReference(stmt, col.Type)
	}
}

// tableConstraintKeywords start a table-level constraint entry rather than
// a column definition.
var tableConstraintKeywords = keywordSet(
	"CONSTRAINT", "PRIMARY", "UNIQUE", "FOREIGN", "CHECK", "EXCLUDE", "LIKE",
)

// parseColumnDef parses one comma-separated CREATE TABLE entry into a
// Column. Table-level constraints return ok=false.
func parseColumnDef(toks []token) (Column, bool) {
	c := &cursor{toks: toks}

	t := c.peek(0)
	if t.Sym != "Ident" && t.Sym != "QuotedIdent" {
		return Column{}, false
	}
	if t.Sym == "Ident" && tableConstraintKeywords[strings.ToUpper(t.Value)] {
		return Column{}, false
	}

	name, _ := c.qualifiedName()
	col := Column{Name: name}

	// The type runs from here until a constraint keyword, including any
	// parenthesized size/precision arguments.
	var typeParts []string
	depth := 0
	for !c.eof() {
		t := c.peek(0)
		if depth == 0 && t.Sym == "Ident" {
			switch strings.ToUpper(t.Value) {
			case "NOT", "NULL", "DEFAULT", "PRIMARY", "UNIQUE", "REFERENCES",
				"CHECK", "CONSTRAINT", "GENERATED", "COLLATE":
				goto done
			}
		}
		if t.Sym == "Punct" {
			switch t.Value {
			case "(":
				depth++
			case ")":
				depth--
			}
		}
		typeParts = append(typeParts, t.Value)
		c.pos++
	}
done:
	col.Type = normalizeType(typeParts)

	for !c.eof() {
		switch {
		case c.keywordSeq("NOT", "NULL"):
			col.NotNull = true
		case c.keyword("DEFAULT"):
			col.HasDefault = true
		default:
			c.pos++
		}
	}

	return col, true
}

// normalizeType joins type tokens into a compact canonical form, e.g.
// ["varchar", "(", "255", ")"] -> "varchar(255)".
func normalizeType(parts []string) string {
	var b strings.Builder
	for i, p := range parts {
		if i > 0 && p != "(" && p != ")" && p != "," && p != "[" && p != "]" &&
			parts[i-1] != "(" && parts[i-1] != "[" {
			b.WriteByte(' ')
		}
		b.WriteString(strings.ToLower(p))
	}
	return strings.ReplaceAll(b.String(), " (", "(")
}

// addTypeReference records a dependency on a user-defined column type
// (enum, composite, or extension type such as citext).
func addTypeReference(stmt *Statement, typeName string) {
	base := typeName
	if idx := strings.IndexAny(base, "( ["); idx >= 0 {
		base = base[:idx]
	}
	if base == "" || builtinTypes[strings.ToUpper(utils.UnqualifiedName(base))] {
		return
	}
	addReference(stmt, base, RefTypeUse)
}

func classifyAlter(c *cursor, stmt *Statement) {
	if !c.keyword("TABLE") {
		// ALTER VIEW, ALTER TYPE, etc. pass through untouched.
		return
	}
	stmt.Kind = KindAlterTable

	if c.keywordSeq("IF", "EXISTS") {
		stmt.Guarded = true
	}
	c.keyword("ONLY")

	name, ok := c.qualifiedName()
	if !ok {
		stmt.ParseError = "expected table name after ALTER TABLE"
		stmt.Kind = KindOther
		return
	}
	stmt.Target = name

	actions := &cursor{toks: c.toks, pos: c.pos}
	for _, entry := range splitActions(actions) {
		stmt.AlterOps = append(stmt.AlterOps, parseAlterOp(entry))
	}
	for _, op := range stmt.AlterOps {
		if op.Kind == AlterAddColumn {
			addTypeReference(stmt, op.Column.Type)
		}
	}

	scanReferences(c, stmt)
}

// parseAlterOp parses one comma-separated ALTER TABLE action.
func parseAlterOp(toks []token) AlterOp {
	c := &cursor{toks: toks}

	switch {
	case c.keyword("ADD"):
		if c.keyword("CONSTRAINT") {
			name, _ := c.qualifiedName()
			return AlterOp{Kind: AlterAddConstraint, Constraint: name}
		}
		c.keyword("COLUMN")
		c.keywordSeq("IF", "NOT", "EXISTS")
		if col, ok := parseColumnDef(c.toks[c.pos:]); ok {
			return AlterOp{Kind: AlterAddColumn, Column: col}
		}
	case c.keyword("DROP"):
		if c.keyword("CONSTRAINT") {
			c.keywordSeq("IF", "EXISTS")
			name, _ := c.qualifiedName()
			return AlterOp{Kind: AlterDropConstraint, Constraint: name}
		}
		c.keyword("COLUMN")
		c.keywordSeq("IF", "EXISTS")
		if name, ok := c.qualifiedName(); ok {
			return AlterOp{Kind: AlterDropColumn, Column: Column{Name: name}}
		}
	case c.keyword("ALTER"):
		c.keyword("COLUMN")
		name, ok := c.qualifiedName()
		if !ok {
			break
		}
		if c.keywordSeq("SET", "DATA", "TYPE") || c.keyword("TYPE") {
			var typeParts []string
			for !c.eof() && !c.isKeyword("USING") {
				typeParts = append(typeParts, c.next().Value)
			}
			return AlterOp{Kind: AlterColumnType, Column: Column{Name: name, Type: normalizeType(typeParts)}}
		}
		return AlterOp{Kind: AlterSetColumnOption, Column: Column{Name: name}}
	}

	return AlterOp{Kind: AlterOther}
}

func classifyDrop(c *cursor, stmt *Statement) {
	c.keyword("MATERIALIZED")

	switch {
	case c.keyword("TABLE"):
		stmt.Kind = KindDropTable
	case c.keyword("VIEW"):
		stmt.Kind = KindDropView
	case c.keyword("INDEX"):
		stmt.Kind = KindDropIndex
	case c.keyword("TYPE"):
		stmt.Kind = KindDropType
	case c.keyword("FUNCTION"):
		stmt.Kind = KindDropFunction
	default:
		return
	}

	c.keyword("CONCURRENTLY")
	if c.keywordSeq("IF", "EXISTS") {
		stmt.Guarded = true
	}

	name, ok := c.qualifiedName()
	if !ok {
		stmt.ParseError = "expected object name after DROP"
		stmt.Kind = KindOther
		return
	}
	stmt.Target = name
}

// splitTopLevel consumes a parenthesized list starting just after the
// opening paren has been consumed... the cursor must be positioned ON the
// content (after punct "("), and entries are split on commas at depth zero
// relative to that opening paren.
func splitTopLevel(c *cursor) [][]token {
	var (
		entries [][]token
		current []token
		depth   int
	)

	for !c.eof() {
		t := c.peek(0)
		if t.Sym == "Punct" {
			switch t.Value {
			case "(":
				depth++
			case ")":
				if depth == 0 {
					if len(current) > 0 {
						entries = append(entries, current)
					}
					c.pos++
					return entries
				}
				depth--
			case ",":
				if depth == 0 {
					entries = append(entries, current)
					current = nil
					c.pos++
					continue
				}
			}
		}
		current = append(current, t)
		c.pos++
	}

	if len(current) > 0 {
		entries = append(entries, current)
	}
	return entries
}

// splitActions splits the remainder of an ALTER TABLE statement into
// comma-separated actions at paren depth zero.
func splitActions(c *cursor) [][]token {
	var (
		entries [][]token
		current []token
		depth   int
	)

	for !c.eof() {
		t := c.next()
		if t.Sym == "Punct" {
			switch t.Value {
			case "(":
				depth++
			case ")":
				depth--
			case ",":
				if depth == 0 {
					entries = append(entries, current)
					current = nil
					continue
				}
			}
		}
		current = append(current, t)
	}

	if len(current) > 0 {
		entries = append(entries, current)
	}
	return entries
}

// scanReferences walks the remaining tokens extracting referenced object
// names: REFERENCES targets, FROM/JOIN sources, and calls to non-builtin
// functions.
func scanReferences(c *cursor, stmt *Statement) {
	for !c.eof() {
		switch {
		case c.keyword("REFERENCES"):
			if name, ok := c.qualifiedName(); ok {
				addReference(stmt, name, RefForeignKey)
			}
		case c.keyword("FROM") || c.keyword("JOIN"):
			scanFromList(c, stmt)
		default:
			scanCallTarget(c, stmt)
		}
	}
}

// scanFromList consumes the table names of a FROM clause or a single JOIN
// source, following top-level commas between sources.
func scanFromList(c *cursor, stmt *Statement) {
	for {
		// Subqueries contribute their own FROM clauses via the outer scan.
		if t := c.peek(0); t.Sym == "Punct" && t.Value == "(" {
			return
		}

		save := c.pos
		name, ok := c.qualifiedName()
		if !ok {
			return
		}
		if sqlKeywords[strings.ToUpper(name)] {
			c.pos = save
			return
		}

		// A source followed by "(" is a set-returning function call
		// (e.g. generate_series); record it as a call instead.
		if t := c.peek(0); t.Sym == "Punct" && t.Value == "(" {
			if !builtinFunctions[strings.ToUpper(utils.UnqualifiedName(name))] {
				addReference(stmt, name, RefFunctionCall)
			}
		} else {
			addReference(stmt, name, RefViewSource)
		}

		// Skip an optional alias, then continue on a comma.
		skipAlias(c)
		if t := c.peek(0); t.Sym == "Punct" && t.Value == "," {
			c.pos++
			continue
		}
		return
	}
}

func skipAlias(c *cursor) {
	c.keyword("AS")
	t := c.peek(0)
	if (t.Sym == "Ident" && !sqlKeywords[strings.ToUpper(t.Value)]) || t.Sym == "QuotedIdent" {
		c.pos++
	}
}

// scanCallTarget checks whether the current position starts a call to a
// user-defined function (identifier directly followed by an opening paren)
// and advances by one token.
func scanCallTarget(c *cursor, stmt *Statement) {
	t := c.peek(0)
	if t.Sym != "Ident" && t.Sym != "QuotedIdent" {
		c.pos++
		return
	}

	save := c.pos
	name, ok := c.qualifiedName()
	if !ok {
		c.pos = save + 1
		return
	}

	next := c.peek(0)
	if next.Sym != "Punct" || next.Value != "(" {
		c.pos = save + 1
		return
	}

	upper := strings.ToUpper(utils.UnqualifiedName(name))
	if sqlKeywords[upper] || builtinFunctions[upper] || builtinTypes[upper] ||
		strings.HasPrefix(name, "pg_catalog.") || strings.HasPrefix(name, "information_schema.") {
		c.pos = save + 1
		return
	}

	addReference(stmt, name, RefFunctionCall)
	// Leave the paren for the outer scan so nested references are found.
}

// scanCascade reports whether the token stream carries a destructive
// CASCADE modifier. CASCADE immediately preceded by DELETE or UPDATE is a
// referential action (ON DELETE CASCADE), not a destructive drop modifier.
func scanCascade(toks []token) bool {
	for i, t := range toks {
		if t.Sym != "Ident" || !strings.EqualFold(t.Value, "CASCADE") {
			continue
		}
		if i > 0 {
			prev := strings.ToUpper(toks[i-1].Value)
			if prev == "DELETE" || prev == "UPDATE" {
				continue
			}
		}
		return true
	}
	return false
}

func addReference(stmt *Statement, name string, kind RefKind) {
	stmt.References = append(stmt.References, Reference{Name: name, Kind: kind})
}

// finalizeReferences deduplicates and orders the reference list so parser
// output is deterministic regardless of scan order.
func finalizeReferences(stmt *Statement) {
	if len(stmt.References) == 0 {
		return
	}

	sort.Slice(stmt.References, func(i, j int) bool {
		if stmt.References[i].Name != stmt.References[j].Name {
			return stmt.References[i].Name < stmt.References[j].Name
		}
		return stmt.References[i].Kind < stmt.References[j].Kind
	})

	deduped := stmt.References[:1]
	for _, ref := range stmt.References[1:] {
		last := deduped[len(deduped)-1]
		if ref.Name != last.Name || ref.Kind != last.Kind {
			deduped = append(deduped, ref)
		}
	}
	stmt.References = deduped
}
