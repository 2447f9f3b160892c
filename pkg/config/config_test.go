package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/migrafold/migrafold/pkg/config"
	"github.com/migrafold/migrafold/pkg/consts"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, yaml string) *Config {
	t.Helper()
	cfg, err := Load(strings.NewReader(yaml))
	require.NoError(t, err)
	return cfg
}

func TestLoad(t *testing.T) {
	t.Run("defaults the migration dir", func(t *testing.T) {
		cfg := load(t, `url: postgres://localhost/app`)
		require.Equal(t, consts.DefaultMigrationDir, cfg.Dir)
		require.Equal(t, "postgres://localhost/app", cfg.URL)
	})

	t.Run("parses groups in declaration order", func(t *testing.T) {
		cfg := load(t, `
dir: db/migrations
groups:
  - name: core
    match: [users, "orders*"]
  - name: billing
    match: ["billing.*"]
`)
		require.Equal(t, "db/migrations", cfg.Dir)
		require.Equal(t, []Group{
			{Name: "core", Match: []string{"users", "orders*"}},
			{Name: "billing", Match: []string{"billing.*"}},
		}, cfg.Groups)
	})

	t.Run("rejects unnamed groups", func(t *testing.T) {
		_, err := Load(strings.NewReader("groups:\n  - match: [users]\n"))
		require.ErrorContains(t, err, "group without a name")
	})

	t.Run("rejects duplicate group names", func(t *testing.T) {
		_, err := Load(strings.NewReader(`
groups:
  - name: core
    match: [users]
  - name: core
    match: [orders]
`))
		require.ErrorContains(t, err, `group "core" declared twice`)
	})

	t.Run("rejects malformed yaml", func(t *testing.T) {
		_, err := Load(strings.NewReader("dir: [unclosed"))
		require.ErrorContains(t, err, "failed to unmarshal project config")
	})
}

func TestLoader(t *testing.T) {
	t.Run("reads the config at call time, not construction", func(t *testing.T) {
		project := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(project, consts.ConfigFile), []byte("dir: db/migrations\n"), consts.ModeFile))

		// Construct the loader outside the project, the way the fx graph
		// does before the global project flag changes directory.
		t.Chdir(t.TempDir())
		load := NewLoader()

		t.Chdir(project)
		cfg, err := load()
		require.NoError(t, err)
		require.NotNil(t, cfg)
		require.Equal(t, "db/migrations", cfg.Dir)
	})

	t.Run("returns nil when no config exists", func(t *testing.T) {
		t.Chdir(t.TempDir())

		cfg, err := NewLoader()()
		require.NoError(t, err)
		require.Nil(t, cfg)
	})

	t.Run("caches the first load", func(t *testing.T) {
		project := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(project, consts.ConfigFile), []byte("dir: first\n"), consts.ModeFile))

		t.Chdir(t.TempDir())
		load := NewLoader()

		t.Chdir(project)
		first, err := load()
		require.NoError(t, err)

		t.Chdir(t.TempDir())
		again, err := load()
		require.NoError(t, err)
		require.Same(t, first, again)
	})
}

func TestAssignment(t *testing.T) {
	t.Run("nil config falls back to the default group", func(t *testing.T) {
		var cfg *Config
		assign := cfg.Assignment()
		require.Equal(t, consts.DefaultGroup, assign("users"))
	})

	t.Run("no groups falls back to the default group", func(t *testing.T) {
		assign := load(t, `dir: migrations`).Assignment()
		require.Equal(t, consts.DefaultGroup, assign("users"))
	})

	assign := load(t, `
groups:
  - name: core
    match: [users, "user_*"]
  - name: billing
    match: ["billing.*"]
  - name: wide
    match: ["*"]
`).Assignment()

	t.Run("matches exact names", func(t *testing.T) {
		require.Equal(t, "core", assign("users"))
	})

	t.Run("matches trailing-star prefixes", func(t *testing.T) {
		require.Equal(t, "core", assign("user_sessions"))
		require.Equal(t, "billing", assign("billing.invoices"))
	})

	t.Run("unquoted names case-fold before matching", func(t *testing.T) {
		require.Equal(t, "core", assign("USERS"))
	})

	t.Run("quoted names keep their case", func(t *testing.T) {
		// a quoted "Users" is a different object than users
		require.Equal(t, "wide", assign(`"Users"`))
	})

	t.Run("first match wins", func(t *testing.T) {
		// "users" matches both core and the catch-all wide group
		require.Equal(t, "core", assign("users"))
		require.Equal(t, "wide", assign("orders"))
	})
}
