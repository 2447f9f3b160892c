package consolidator_test

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"testing/fstest"

	. "github.com/migrafold/migrafold/pkg/consolidator"
	"github.com/migrafold/migrafold/pkg/graph"
	"github.com/migrafold/migrafold/pkg/migrator"
	"github.com/migrafold/migrafold/pkg/parser"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, files map[string]string) (*migrator.Dir, *graph.Graph) {
	t.Helper()

	fsys := fstest.MapFS{}
	for name, content := range files {
		fsys[name] = &fstest.MapFile{Data: []byte(content)}
	}

	dir, err := migrator.LoadDir(fsys)
	require.NoError(t, err)
	return dir, graph.Build(dir.Files)
}

// groupBy assigns each named object to its mapped group; everything else
// falls through to the default.
func groupBy(mapping map[string]string) Assignment {
	return func(object string) string {
		return mapping[object]
	}
}

// replayTargets re-parses the plan output and returns every created object,
// in execution order across groups.
func replayTargets(t *testing.T, plan *Plan) []string {
	t.Helper()

	var targets []string
	for _, group := range plan.Groups {
		for _, stmt := range parser.ParseString(group.FileName(), strings.Join(group.Statements, "\n")) {
			if stmt.Kind.IsCreate() {
				targets = append(targets, stmt.Target)
			}
		}
	}
	return targets
}

func TestConsolidate(t *testing.T) {
	t.Run("single default group", func(t *testing.T) {
		dir, g := load(t, map[string]string{
			"01_core.sql": `CREATE TABLE users (id serial);
				CREATE TABLE orders (id serial, user_id int REFERENCES users(id));`,
		})

		plan, err := Consolidate(dir, g, nil)
		require.NoError(t, err)
		require.Len(t, plan.Groups, 1)
		require.Equal(t, "misc", plan.Groups[0].Name)
		require.Equal(t, "01_misc.sql", plan.Groups[0].FileName())
		require.Equal(t, []string{"users", "orders"}, replayTargets(t, plan))
	})

	t.Run("creates are reordered to satisfy dependencies", func(t *testing.T) {
		dir, g := load(t, map[string]string{
			"01_orders.sql": "CREATE TABLE orders (id serial, user_id int REFERENCES users(id));",
			"02_users.sql":  "CREATE TABLE users (id serial);",
		})

		plan, err := Consolidate(dir, g, nil)
		require.NoError(t, err)
		require.Equal(t, []string{"users", "orders"}, replayTargets(t, plan))
	})

	t.Run("groups order topologically", func(t *testing.T) {
		dir, g := load(t, map[string]string{
			"01_analytics.sql": "CREATE VIEW user_stats AS SELECT * FROM users;",
			"02_core.sql":      "CREATE TABLE users (id serial);",
		})

		plan, err := Consolidate(dir, g, groupBy(map[string]string{
			"user_stats": "analytics",
			"users":      "core",
		}))
		require.NoError(t, err)
		require.Len(t, plan.Groups, 2)
		require.Equal(t, "core", plan.Groups[0].Name)
		require.Equal(t, "analytics", plan.Groups[1].Name)
		require.Equal(t, "01_core.sql", plan.Groups[0].FileName())
		require.Equal(t, "02_analytics.sql", plan.Groups[1].FileName())
	})

	t.Run("unconstrained groups keep first-appearance order", func(t *testing.T) {
		dir, g := load(t, map[string]string{
			"01_a.sql": "CREATE TABLE zebra (id int);",
			"02_b.sql": "CREATE TABLE alpha (id int);",
		})

		plan, err := Consolidate(dir, g, groupBy(map[string]string{
			"zebra": "stripes",
			"alpha": "letters",
		}))
		require.NoError(t, err)
		require.Equal(t, "stripes", plan.Groups[0].Name)
		require.Equal(t, "letters", plan.Groups[1].Name)
	})

	t.Run("drops are excluded", func(t *testing.T) {
		dir, g := load(t, map[string]string{
			"01_a.sql": "CREATE TABLE users (id int);",
			"02_b.sql": "DROP TABLE IF EXISTS old_stuff;",
		})

		plan, err := Consolidate(dir, g, nil)
		require.NoError(t, err)
		for _, group := range plan.Groups {
			for _, stmt := range group.Statements {
				require.NotContains(t, strings.ToUpper(stmt), "DROP TABLE")
			}
		}
	})

	t.Run("alters keep their original relative order", func(t *testing.T) {
		dir, g := load(t, map[string]string{
			"01_a.sql": "CREATE TABLE users (id int);",
			"02_b.sql": "ALTER TABLE users ADD COLUMN email text;",
			"03_c.sql": "ALTER TABLE users ADD COLUMN age int;",
		})

		plan, err := Consolidate(dir, g, nil)
		require.NoError(t, err)
		require.Len(t, plan.Groups, 1)

		stmts := plan.Groups[0].Statements
		require.Len(t, stmts, 3)
		require.Contains(t, stmts[1], "email")
		require.Contains(t, stmts[2], "age")
	})

	t.Run("alters precede the views that read their columns", func(t *testing.T) {
		dir, g := load(t, map[string]string{
			"01_table.sql":  "CREATE TABLE t (a int);",
			"02_column.sql": "ALTER TABLE t ADD COLUMN b int;",
			"03_view.sql":   "CREATE VIEW v AS SELECT b FROM t;",
		})

		plan, err := Consolidate(dir, g, nil)
		require.NoError(t, err)
		require.Len(t, plan.Groups, 1)

		stmts := plan.Groups[0].Statements
		alter := indexOf(stmts, "ADD COLUMN b")
		view := indexOf(stmts, "VIEW v")
		require.GreaterOrEqual(t, alter, 0)
		require.GreaterOrEqual(t, view, 0)
		require.Less(t, alter, view)
	})

	t.Run("refuses cyclic input with the validator issue", func(t *testing.T) {
		dir, g := load(t, map[string]string{
			"01_views.sql": `CREATE VIEW a AS SELECT * FROM b;
				CREATE VIEW b AS SELECT * FROM a;`,
		})

		_, err := Consolidate(dir, g, nil)
		require.Error(t, err)

		var planErr *PlanError
		require.ErrorAs(t, err, &planErr)
		require.Len(t, planErr.Issues, 1)
		require.Equal(t, "CIRC001", planErr.Issues[0].Code)
	})

	t.Run("refuses duplicate creates", func(t *testing.T) {
		dir, g := load(t, map[string]string{
			"01_a.sql": "CREATE TABLE users (id int);",
			"02_b.sql": "CREATE TABLE users (id int, email text);",
		})

		_, err := Consolidate(dir, g, nil)
		require.Error(t, err)

		var planErr *PlanError
		require.ErrorAs(t, err, &planErr)
		require.Equal(t, "DUP001", planErr.Issues[0].Code)
	})

	t.Run("refuses a cross-group cycle", func(t *testing.T) {
		// a depends on b and c depends on d; splitting {a,d} / {b,c}
		// makes each group depend on the other even though the object
		// graph is acyclic.
		dir, g := load(t, map[string]string{
			"01_x.sql": `CREATE TABLE b (id serial);
				CREATE TABLE a (id serial, b_id int REFERENCES b(id));
				CREATE TABLE d (id serial, a_id int REFERENCES a(id));
				CREATE TABLE c (id serial, d_id int REFERENCES d(id));`,
		})

		_, err := Consolidate(dir, g, groupBy(map[string]string{
			"a": "one", "d": "one",
			"b": "two", "c": "two",
		}))
		require.Error(t, err)
		require.Contains(t, err.Error(), "dependency cycle between groups")
	})

	t.Run("plan is deterministic", func(t *testing.T) {
		files := map[string]string{
			"01_a.sql": `CREATE TABLE users (id serial);
				CREATE TABLE orders (id serial, user_id int REFERENCES users(id));`,
			"02_b.sql": "CREATE VIEW order_counts AS SELECT user_id FROM orders;",
		}

		dir, g := load(t, files)
		first, err := Consolidate(dir, g, nil)
		require.NoError(t, err)

		for i := 0; i < 5; i++ {
			dir, g := load(t, files)
			plan, err := Consolidate(dir, g, nil)
			require.NoError(t, err)
			require.Equal(t, first, plan)
		}
	})

	t.Run("replay produces the same objects as the original history", func(t *testing.T) {
		dir, g := load(t, map[string]string{
			"01_core.sql": `CREATE EXTENSION IF NOT EXISTS citext;
				CREATE TABLE users (id serial PRIMARY KEY, email citext);`,
			"02_orders.sql": `CREATE TABLE orders (id serial, user_id int REFERENCES users(id));
				CREATE INDEX orders_user_idx ON orders (user_id);`,
			"03_views.sql": "CREATE VIEW recent_orders AS SELECT * FROM orders;",
		})

		plan, err := Consolidate(dir, g, nil)
		require.NoError(t, err)

		var original []string
		for _, s := range dir.AllStatements() {
			if s.Kind.IsCreate() {
				original = append(original, s.Target)
			}
		}
		require.ElementsMatch(t, original, replayTargets(t, plan))
	})

	t.Run("replay reproduces the original tables and columns", func(t *testing.T) {
		dir, g := load(t, map[string]string{
			"01_core.sql": `CREATE TABLE users (id serial PRIMARY KEY, email text);
				CREATE TABLE orders (id serial, user_id int REFERENCES users(id));`,
			"02_alter.sql": `ALTER TABLE users ADD COLUMN age int;
				ALTER TABLE orders ADD COLUMN note text;
				ALTER TABLE orders DROP COLUMN note;`,
			"03_views.sql": "CREATE VIEW adults AS SELECT id, age FROM users;",
		})

		plan, err := Consolidate(dir, g, nil)
		require.NoError(t, err)

		want := replaySchema(t, "history", dir.AllStatements())

		var replayed []*parser.Statement
		for _, group := range plan.Groups {
			replayed = append(replayed, parser.ParseString(group.FileName(), strings.Join(group.Statements, "\n"))...)
		}
		require.Equal(t, want, replaySchema(t, "plan", replayed))
	})
}

// indexOf returns the position of the first statement containing substr.
func indexOf(stmts []string, substr string) int {
	for i, s := range stmts {
		if strings.Contains(s, substr) {
			return i
		}
	}
	return -1
}

var (
	selectListPattern = regexp.MustCompile(`(?is)\bSELECT\s+(.*?)\s+FROM\b`)
	bareColumnPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

// selectedColumns returns the simple column names a view's select list
// reads. Expressions and star selects are skipped.
func selectedColumns(raw string) []string {
	m := selectListPattern.FindStringSubmatch(raw)
	if m == nil {
		return nil
	}

	var cols []string
	for _, part := range strings.Split(m[1], ",") {
		part = strings.TrimSpace(part)
		if bareColumnPattern.MatchString(part) {
			cols = append(cols, strings.ToLower(part))
		}
	}
	return cols
}

// replaySchema interprets creates and alters, in order, into a table to
// column-set model. It fails the test when a statement touches a table or
// column that does not exist yet at its point in the sequence, so a plan
// that emits a view before the alter it reads from cannot pass.
func replaySchema(t *testing.T, label string, stmts []*parser.Statement) map[string]map[string]bool {
	t.Helper()

	tables := make(map[string]map[string]bool)
	for _, s := range stmts {
		switch s.Kind {
		case parser.KindCreateTable:
			cols := make(map[string]bool, len(s.Columns))
			for _, c := range s.Columns {
				cols[c.Name] = true
			}
			tables[s.Target] = cols
		case parser.KindAlterTable:
			cols, ok := tables[s.Target]
			require.True(t, ok, "%s: ALTER of missing table %s", label, s.Target)
			for _, op := range s.AlterOps {
				switch op.Kind {
				case parser.AlterAddColumn:
					cols[op.Column.Name] = true
				case parser.AlterDropColumn:
					require.True(t, cols[op.Column.Name], "%s: DROP of missing column %s.%s", label, s.Target, op.Column.Name)
					delete(cols, op.Column.Name)
				}
			}
		case parser.KindCreateView:
			for _, col := range selectedColumns(s.Raw) {
				found := false
				for _, ref := range s.References {
					if ref.Kind == parser.RefViewSource && tables[ref.Name][col] {
						found = true
					}
				}
				require.True(t, found, "%s: view %s selects missing column %s", label, s.Target, col)
			}
		}
	}
	return tables
}

func TestGroup(t *testing.T) {
	t.Run("sources list contributing files in replay order", func(t *testing.T) {
		dir, g := load(t, map[string]string{
			"01_a.sql": "CREATE TABLE users (id int);",
			"02_b.sql": "ALTER TABLE users ADD COLUMN email text;",
		})

		plan, err := Consolidate(dir, g, nil)
		require.NoError(t, err)
		require.Equal(t, []string{"01_a.sql", "02_b.sql"}, plan.Groups[0].Sources)
	})

	t.Run("render includes directives and hash", func(t *testing.T) {
		group := &Group{
			Name:       "core",
			Ordinal:    1,
			Sources:    []string{"01_a.sql"},
			Statements: []string{"CREATE TABLE IF NOT EXISTS users (id int);"},
		}

		rendered := group.Render()
		require.Contains(t, rendered, "-- migrafold:group core")
		require.Contains(t, rendered, "-- migrafold:sources 01_a.sql")
		require.Contains(t, rendered, "-- migrafold:hash sha256:"+group.Hash())
		require.Contains(t, rendered, "CREATE TABLE IF NOT EXISTS users")
	})

	t.Run("hash depends only on statements", func(t *testing.T) {
		a := &Group{Name: "x", Statements: []string{"SELECT 1;"}}
		b := &Group{Name: "y", Statements: []string{"SELECT 1;"}}
		c := &Group{Name: "x", Statements: []string{"SELECT 2;"}}

		require.Equal(t, a.Hash(), b.Hash())
		require.NotEqual(t, a.Hash(), c.Hash())
	})
}

func TestPlanWrite(t *testing.T) {
	dir, g := load(t, map[string]string{
		"01_a.sql": "CREATE TABLE users (id int);",
	})

	plan, err := Consolidate(dir, g, nil)
	require.NoError(t, err)

	out := t.TempDir()
	require.NoError(t, plan.Write(out))

	content, err := os.ReadFile(filepath.Join(out, "01_misc.sql"))
	require.NoError(t, err)
	require.Contains(t, string(content), "-- migrafold:group misc")
	require.Contains(t, string(content), "CREATE TABLE IF NOT EXISTS users")
}
