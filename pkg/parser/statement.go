package parser

type (
	// Kind classifies a parsed SQL statement by its verb and object class.
	Kind string

	// RefKind describes how a referenced object name was discovered within
	// a statement. It becomes the edge kind in the dependency graph.
	RefKind string

	// Reference is a single object name mentioned by a statement, together
	// with the syntactic context it was found in.
	Reference struct {
		// Name is the normalized (case-folded, unquoted) object name.
		Name string

		// Kind records where the name appeared (REFERENCES clause,
		// FROM/JOIN source, function call, or CREATE INDEX ... ON).
		Kind RefKind
	}

	// Column describes a single column extracted from a CREATE TABLE
	// statement or an ALTER TABLE ADD COLUMN operation. Only the details
	// needed by the data-safety rules and schema comparison are kept.
	Column struct {
		Name       string
		Type       string
		NotNull    bool
		HasDefault bool
	}

	// AlterOpKind classifies a single action within an ALTER TABLE statement.
	AlterOpKind string

	// AlterOp is one comma-separated action of an ALTER TABLE statement.
	AlterOp struct {
		Kind   AlterOpKind
		Column Column

		// Constraint holds the constraint name for add/drop constraint
		// operations.
		Constraint string
	}

	// SourcePos identifies where a statement came from: the migration file
	// name and the zero-based statement index within that file.
	SourcePos struct {
		File  string
		Index int
	}

	// Statement is a single classified SQL statement from a migration file.
	// Statements are created once by the parser and never mutated; every
	// downstream stage (graph builder, validator, consolidator) reads them
	// as immutable values.
	Statement struct {
		// Kind is the statement classification. Statements that cannot
		// be classified are KindOther and carry no Target.
		Kind Kind

		// Target is the normalized qualified name of the object this
		// statement creates, alters, or drops. Empty for KindOther.
		Target string

		// References lists object names this statement mentions as
		// foreign keys, view/function sources, function calls, or index
		// targets. Sorted by name then kind, deduplicated.
		References []Reference

		// Columns holds the column definitions for CREATE TABLE
		// statements.
		Columns []Column

		// AlterOps holds the individual actions of an ALTER TABLE
		// statement.
		AlterOps []AlterOp

		// HasCascade is true when the statement carries a CASCADE token.
		HasCascade bool

		// Guarded is true when the statement carries an existence guard:
		// IF NOT EXISTS for creates, IF EXISTS for drops and alters, or
		// OR REPLACE for views and functions.
		Guarded bool

		// Raw is the original statement text, preserved verbatim
		// (including comments) for consolidation output.
		Raw string

		// Pos locates the statement in its source migration file.
		Pos SourcePos

		// ParseError holds the reason classification failed. Set only on
		// KindOther statements that could not be tokenized or whose
		// prelude was malformed; reported by the validator as an
		// info-level finding.
		ParseError string
	}
)

const (
	KindCreateTable     Kind = "create_table"
	KindCreateIndex     Kind = "create_index"
	KindCreateView      Kind = "create_view"
	KindCreateFunction  Kind = "create_function"
	KindCreateType      Kind = "create_type"
	KindCreateExtension Kind = "create_extension"
	KindAlterTable      Kind = "alter_table"
	KindDropTable       Kind = "drop_table"
	KindDropView        Kind = "drop_view"
	KindDropIndex       Kind = "drop_index"
	KindDropType        Kind = "drop_type"
	KindDropFunction    Kind = "drop_function"
	KindUpdate          Kind = "update"
	KindOther           Kind = "other"
)

const (
	// RefForeignKey marks a name found after a REFERENCES clause.
	RefForeignKey RefKind = "foreign_key"

	// RefViewSource marks a name found after FROM or JOIN in a view or
	// function body.
	RefViewSource RefKind = "view_source"

	// RefFunctionCall marks a name used as a function-call target.
	RefFunctionCall RefKind = "function_call"

	// RefIndexTarget marks the table named by CREATE INDEX ... ON.
	RefIndexTarget RefKind = "index_target"

	// RefTypeUse marks a user-defined type (or extension type) used as a
	// column type.
	RefTypeUse RefKind = "type_use"
)

const (
	AlterAddColumn       AlterOpKind = "add_column"
	AlterDropColumn      AlterOpKind = "drop_column"
	AlterColumnType      AlterOpKind = "alter_column_type"
	AlterAddConstraint   AlterOpKind = "add_constraint"
	AlterDropConstraint  AlterOpKind = "drop_constraint"
	AlterOther           AlterOpKind = "other"
	AlterSetColumnOption AlterOpKind = "set_column_option"
)

// IsCreate reports whether the statement kind creates an object.
func (k Kind) IsCreate() bool {
	switch k {
	case KindCreateTable, KindCreateIndex, KindCreateView, KindCreateFunction, KindCreateType, KindCreateExtension:
		return true
	}
	return false
}

// IsDrop reports whether the statement kind drops an object.
func (k Kind) IsDrop() bool {
	switch k {
	case KindDropTable, KindDropView, KindDropIndex, KindDropType, KindDropFunction:
		return true
	}
	return false
}

// ReferenceNames returns the distinct referenced object names in sorted order.
func (s *Statement) ReferenceNames() []string {
	seen := make(map[string]bool, len(s.References))
	names := make([]string, 0, len(s.References))
	for _, ref := range s.References {
		if !seen[ref.Name] {
			seen[ref.Name] = true
			names = append(names, ref.Name)
		}
	}
	return names
}
