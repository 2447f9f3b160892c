package export_test

import (
	"bytes"
	"testing"
	"testing/fstest"

	. "github.com/migrafold/migrafold/pkg/export"
	"github.com/migrafold/migrafold/pkg/graph"
	"github.com/migrafold/migrafold/pkg/migrator"
	"github.com/stretchr/testify/require"
	"gotest.tools/v3/golden"
)

// testGraph builds a small graph with an internal edge chain and one
// external reference, shared by all renderer tests.
func testGraph(t *testing.T) *graph.Graph {
	t.Helper()

	dir, err := migrator.LoadDir(fstest.MapFS{
		"01_core.sql": {Data: []byte(`CREATE TABLE users (id serial PRIMARY KEY);
CREATE TABLE orders (id serial, user_id int REFERENCES users(id));`)},
		"02_views.sql": {Data: []byte(`CREATE VIEW recent_orders AS SELECT * FROM orders JOIN legacy_audit ON true;`)},
	})
	require.NoError(t, err)

	return graph.Build(dir.Files)
}

func TestParseFormat(t *testing.T) {
	t.Run("accepts known formats", func(t *testing.T) {
		for _, name := range []string{"text", "dot", "mermaid"} {
			format, err := ParseFormat(name)
			require.NoError(t, err)
			require.Equal(t, Format(name), format)
		}
	})

	t.Run("rejects unknown formats", func(t *testing.T) {
		_, err := ParseFormat("svg")
		require.Error(t, err)
		require.Contains(t, err.Error(), "svg")
	})
}

func TestRender(t *testing.T) {
	g := testGraph(t)

	for _, format := range []Format{FormatText, FormatDOT, FormatMermaid} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Render(&buf, g, format))
			golden.Assert(t, buf.String(), string(format)+".golden")
		})
	}
}

func TestRenderDeterminism(t *testing.T) {
	first := new(bytes.Buffer)
	require.NoError(t, Render(first, testGraph(t), FormatDOT))

	for i := 0; i < 5; i++ {
		buf := new(bytes.Buffer)
		require.NoError(t, Render(buf, testGraph(t), FormatDOT))
		require.Equal(t, first.String(), buf.String())
	}
}
