// Package parser turns raw migration file text into a sequence of classified
// SQL statements with extracted object identity and referenced-object names.
//
// The parser recognizes the PostgreSQL DDL subset needed for dependency and
// safety analysis: CREATE [OR REPLACE] TABLE|VIEW|INDEX|FUNCTION|TYPE|
// EXTENSION, ALTER TABLE, DROP TABLE|VIEW|INDEX|TYPE|FUNCTION, and the
// IF [NOT] EXISTS / CASCADE modifiers. It deliberately does not build a full
// expression AST: statement bodies are scanned as a token stream to extract
// referenced object names (REFERENCES targets, FROM/JOIN sources, function
// calls), and the original statement text is preserved verbatim so that
// unclassifiable statements can round-trip untouched through consolidation.
package parser

import (
	"io"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
	"github.com/pkg/errors"
)

// sqlLexer tokenizes PostgreSQL DDL. Dollar-quoted bodies are unwrapped by
// stripDollarQuotes before the lexer runs, so no dollar-quote rule is needed.
var sqlLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `--[^\r\n]*`},
	{Name: "BlockComment", Pattern: `/\*[^*]*\*+([^/*][^*]*\*+)*/`},
	{Name: "String", Pattern: `'([^']|'')*'`},
	{Name: "QuotedIdent", Pattern: `"([^"]|"")*"`},
	{Name: "Number", Pattern: `\d+(\.\d*)?`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_$]*`},
	{Name: "Op", Pattern: `::|<=|>=|<>|!=|=>|\|\||[+\-*/%<>=~!@#&|^?$]`},
	{Name: "Punct", Pattern: `[(),.;\[\]:]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

// symbolNames maps lexer token types back to their rule names so the
// classifier can filter by token class.
var symbolNames = func() map[lexer.TokenType]string {
	names := make(map[lexer.TokenType]string, len(sqlLexer.Symbols()))
	for name, typ := range sqlLexer.Symbols() {
		names[typ] = name
	}
	return names
}()

// token is a lexed token with its resolved symbol name. Comments and
// whitespace are elided before classification.
type token struct {
	Sym   string
	Value string
}

// Parse reads migration content from r and returns the classified statements.
// file is used for source locations; statement indexes are zero-based in
// file order.
//
// Per-statement classification failures are non-fatal: the statement comes
// back as KindOther with ParseError set, and is preserved verbatim. Only a
// read failure returns an error.
func Parse(file string, r io.Reader) ([]*Statement, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read: %s", file)
	}

	return ParseString(file, string(content)), nil
}

// ParseString splits sql into statements and classifies each one. See Parse.
func ParseString(file, sql string) []*Statement {
	raws := SplitStatements(sql)
	statements := make([]*Statement, 0, len(raws))

	for i, raw := range raws {
		stmt := classify(raw)
		stmt.Pos = SourcePos{File: file, Index: i}
		statements = append(statements, stmt)
	}

	return statements
}

// lexTokens tokenizes a single statement, eliding comments and whitespace.
func lexTokens(sql string) ([]token, error) {
	lex, err := sqlLexer.Lex("", strings.NewReader(sql))
	if err != nil {
		return nil, errors.Wrap(err, "failed to lex statement")
	}

	var toks []token
	for {
		t, err := lex.Next()
		if err != nil {
			return nil, errors.Wrap(err, "failed to tokenize statement")
		}
		if t.EOF() {
			return toks, nil
		}

		sym := symbolNames[t.Type]
		if sym == "Comment" || sym == "BlockComment" || sym == "Whitespace" {
			continue
		}
		toks = append(toks, token{Sym: sym, Value: t.Value})
	}
}
