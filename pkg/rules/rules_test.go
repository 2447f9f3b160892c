package rules_test

import (
	"testing"
	"testing/fstest"

	"github.com/migrafold/migrafold/pkg/graph"
	"github.com/migrafold/migrafold/pkg/migrator"
	. "github.com/migrafold/migrafold/pkg/rules"
	"github.com/stretchr/testify/require"
)

// validate runs the default registry over an in-memory migration set.
func validate(t *testing.T, files map[string]string) []Issue {
	t.Helper()

	dir, g := load(t, files)
	return Validate(dir, g)
}

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

// codes extracts the distinct issue codes present.
func codes(issues []Issue) map[string]int {
	out := make(map[string]int)
	for _, issue := range issues {
		out[issue.Code]++
	}
	return out
}

func TestValidate(t *testing.T) {
	t.Run("clean input yields no issues", func(t *testing.T) {
		issues := validate(t, map[string]string{
			"01_core.sql": `CREATE TABLE IF NOT EXISTS users (id serial PRIMARY KEY);
				CREATE TABLE IF NOT EXISTS orders (id serial, user_id int REFERENCES users(id));`,
		})
		require.Empty(t, issues)
	})

	t.Run("issues sort by code then location", func(t *testing.T) {
		issues := validate(t, map[string]string{
			"01_a.sql": "CREATE TABLE a (id int);",
			"02_b.sql": "CREATE TABLE b (id int); DROP TABLE a;",
		})
		require.NotEmpty(t, issues)
		for i := 1; i < len(issues); i++ {
			require.LessOrEqual(t, issues[i-1].Code, issues[i].Code)
		}
	})

	t.Run("validation is deterministic", func(t *testing.T) {
		files := map[string]string{
			"01_a.sql": "CREATE TABLE a (id int); CREATE TABLE a (id int);",
			"02_b.sql": "CREATE TABLE a (id int); DROP TABLE b CASCADE;",
		}
		first := validate(t, files)
		for i := 0; i < 5; i++ {
			require.Equal(t, first, validate(t, files))
		}
	})
}

func TestStructureRules(t *testing.T) {
	t.Run("DUP001 needs two distinct files", func(t *testing.T) {
		issues := validate(t, map[string]string{
			"01_a.sql": "CREATE TABLE IF NOT EXISTS users (id int);",
			"02_b.sql": "CREATE TABLE IF NOT EXISTS users (id int);",
		})
		require.Equal(t, 1, codes(issues)["DUP001"])
	})

	t.Run("DUP001 ignores duplicates within one file", func(t *testing.T) {
		issues := validate(t, map[string]string{
			"01_a.sql": `CREATE TABLE IF NOT EXISTS users (id int);
				CREATE TABLE IF NOT EXISTS users (id int);`,
		})
		require.Zero(t, codes(issues)["DUP001"])
	})

	t.Run("CASC001 flags destructive cascades", func(t *testing.T) {
		issues := validate(t, map[string]string{
			"01_a.sql": "DROP TABLE IF EXISTS users CASCADE;",
		})
		require.Equal(t, 1, codes(issues)["CASC001"])
	})

	t.Run("CASC001 ignores referential actions", func(t *testing.T) {
		issues := validate(t, map[string]string{
			"01_a.sql": `CREATE TABLE IF NOT EXISTS users (id serial);
				CREATE TABLE IF NOT EXISTS orders (user_id int REFERENCES users(id) ON DELETE CASCADE);`,
		})
		require.Zero(t, codes(issues)["CASC001"])
	})

	t.Run("CIRC001 fires once per cycle", func(t *testing.T) {
		issues := validate(t, map[string]string{
			"01_views.sql": `CREATE OR REPLACE VIEW a AS SELECT * FROM b;
				CREATE OR REPLACE VIEW b AS SELECT * FROM a;`,
		})
		require.Equal(t, 1, codes(issues)["CIRC001"])
		require.True(t, HasCritical(issues))
	})

	t.Run("PARSE001 surfaces unclassifiable statements", func(t *testing.T) {
		issues := validate(t, map[string]string{
			"01_a.sql": "CREATE TABLE \x01 broken;",
		})
		require.Equal(t, 1, codes(issues)["PARSE001"])
		require.False(t, HasCritical(issues))
	})

	t.Run("SUM001 fires on a stale ledger", func(t *testing.T) {
		dir, g := load(t, map[string]string{
			"01_a.sql": "CREATE TABLE IF NOT EXISTS users (id int);",
		})
		dir.SumRecorded = true
		dir.SumMismatch = true

		issues := Validate(dir, g)
		require.Equal(t, 1, codes(issues)["SUM001"])
		require.True(t, HasCritical(issues))
	})
}

func TestIdempotencyRules(t *testing.T) {
	t.Run("IDEM001 flags unguarded creates", func(t *testing.T) {
		issues := validate(t, map[string]string{
			"01_a.sql": `CREATE TABLE users (id int);
				CREATE INDEX users_idx ON users (id);
				CREATE TYPE mood AS ENUM ('up');`,
		})
		require.Equal(t, 3, codes(issues)["IDEM001"])
	})

	t.Run("IDEM001 skips guarded creates and views", func(t *testing.T) {
		issues := validate(t, map[string]string{
			"01_a.sql": `CREATE TABLE IF NOT EXISTS users (id int);
				CREATE OR REPLACE VIEW v AS SELECT * FROM users;`,
		})
		require.Zero(t, codes(issues)["IDEM001"])
	})

	t.Run("IDEM002 flags unguarded drops", func(t *testing.T) {
		issues := validate(t, map[string]string{
			"01_a.sql": "DROP TABLE users;",
		})
		require.Equal(t, 1, codes(issues)["IDEM002"])
	})

	t.Run("DCPAT001 flags drop then recreate", func(t *testing.T) {
		issues := validate(t, map[string]string{
			"01_a.sql": "CREATE TABLE IF NOT EXISTS users (id int);",
			"02_b.sql": "DROP TABLE IF EXISTS users;",
			"03_c.sql": "CREATE TABLE IF NOT EXISTS users (id int, email text);",
		})
		require.Equal(t, 1, codes(issues)["DCPAT001"])
		require.True(t, HasCritical(issues))
	})

	t.Run("DCPAT001 locations pair the drop with the recreate", func(t *testing.T) {
		issues := validate(t, map[string]string{
			"01_a.sql": "DROP TABLE IF EXISTS users; CREATE TABLE IF NOT EXISTS users (id int);",
		})
		var found *Issue
		for i := range issues {
			if issues[i].Code == "DCPAT001" {
				found = &issues[i]
			}
		}
		require.NotNil(t, found)
		require.Len(t, found.Locations, 2)
		require.Equal(t, 0, found.Locations[0].Index)
		require.Equal(t, 1, found.Locations[1].Index)
	})

	t.Run("DCPAT001 window bounds the file distance", func(t *testing.T) {
		dir, g := load(t, map[string]string{
			"01_a.sql": "DROP TABLE IF EXISTS users;",
			"05_b.sql": "CREATE TABLE IF NOT EXISTS users (id int);",
		})
		a := &Analysis{Dir: dir, Graph: g}

		require.Len(t, DropRecreateRule(0).Check(a), 1, "unlimited window matches")
		require.Empty(t, DropRecreateRule(2).Check(a), "recreate four files later is out of window")
	})
}

func TestDataSafetyRules(t *testing.T) {
	t.Run("DATA001 flags narrowed columns", func(t *testing.T) {
		issues := validate(t, map[string]string{
			"01_a.sql": "CREATE TABLE IF NOT EXISTS users (email varchar(255));",
			"02_b.sql": "ALTER TABLE users ALTER COLUMN email TYPE varchar(50);",
		})
		require.Equal(t, 1, codes(issues)["DATA001"])
	})

	t.Run("DATA001 tracks types across successive alters", func(t *testing.T) {
		issues := validate(t, map[string]string{
			"01_a.sql": "CREATE TABLE IF NOT EXISTS users (age bigint);",
			"02_b.sql": "ALTER TABLE users ALTER COLUMN age TYPE integer;",
			"03_c.sql": "ALTER TABLE users ALTER COLUMN age TYPE smallint;",
		})
		require.Equal(t, 2, codes(issues)["DATA001"])
	})

	t.Run("DATA001 ignores widening", func(t *testing.T) {
		issues := validate(t, map[string]string{
			"01_a.sql": "CREATE TABLE IF NOT EXISTS users (email varchar(50), age smallint);",
			"02_b.sql": `ALTER TABLE users ALTER COLUMN email TYPE varchar(255);
				ALTER TABLE users ALTER COLUMN age TYPE bigint;`,
		})
		require.Zero(t, codes(issues)["DATA001"])
	})

	t.Run("DATA001 flags text to bounded varchar", func(t *testing.T) {
		issues := validate(t, map[string]string{
			"01_a.sql": "CREATE TABLE IF NOT EXISTS users (bio text);",
			"02_b.sql": "ALTER TABLE users ALTER COLUMN bio TYPE varchar(100);",
		})
		require.Equal(t, 1, codes(issues)["DATA001"])
	})

	t.Run("DATA002 flags dropped columns without backfill", func(t *testing.T) {
		issues := validate(t, map[string]string{
			"01_a.sql": "CREATE TABLE IF NOT EXISTS users (id int, legacy text);",
			"02_b.sql": "ALTER TABLE users DROP COLUMN legacy;",
		})
		require.Equal(t, 1, codes(issues)["DATA002"])
	})

	t.Run("DATA002 accepts a prior update as backfill", func(t *testing.T) {
		issues := validate(t, map[string]string{
			"01_a.sql": "CREATE TABLE IF NOT EXISTS users (id int, legacy text, merged text);",
			"02_b.sql": `UPDATE users SET merged = legacy;
				ALTER TABLE users DROP COLUMN legacy;`,
		})
		require.Zero(t, codes(issues)["DATA002"])
	})

	t.Run("DATA003 flags not null without default", func(t *testing.T) {
		issues := validate(t, map[string]string{
			"01_a.sql": "CREATE TABLE IF NOT EXISTS users (id int);",
			"02_b.sql": "ALTER TABLE users ADD COLUMN tier text NOT NULL;",
		})
		require.Equal(t, 1, codes(issues)["DATA003"])
	})

	t.Run("DATA003 accepts not null with default", func(t *testing.T) {
		issues := validate(t, map[string]string{
			"01_a.sql": "CREATE TABLE IF NOT EXISTS users (id int);",
			"02_b.sql": "ALTER TABLE users ADD COLUMN tier text NOT NULL DEFAULT 'free';",
		})
		require.Zero(t, codes(issues)["DATA003"])
	})
}

func TestRegistry(t *testing.T) {
	t.Run("custom rules can be registered", func(t *testing.T) {
		registry := NewRegistry()
		registry.Register(Rule{
			Code:     "CUSTOM1",
			Severity: SeverityInfo,
			Check: func(a *Analysis) []Issue {
				return []Issue{{Code: "CUSTOM1", Severity: SeverityInfo, Message: "hello"}}
			},
		})

		dir, g := load(t, map[string]string{"01_a.sql": "SELECT 1;"})
		issues := registry.Validate(&Analysis{Dir: dir, Graph: g})
		require.Len(t, issues, 1)
		require.Equal(t, "CUSTOM1", issues[0].Code)
	})

	t.Run("severity ranks critical first", func(t *testing.T) {
		require.Less(t, SeverityCritical.Rank(), SeverityWarning.Rank())
		require.Less(t, SeverityWarning.Rank(), SeverityInfo.Rank())
	})
}
