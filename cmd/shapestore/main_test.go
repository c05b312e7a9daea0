package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beetlebugorg/shapestore/internal/testutil"
)

// fixture writes a parcels shapefile and a config file into a fresh
// directory and returns the directory, the .shp path and the config path.
func fixture(t *testing.T) (dir, shp, cfg string) {
	t.Helper()
	dir = t.TempDir()
	shp = testutil.WriteShapefile(t, dir, "parcels", testutil.Shapefile{
		Type: testutil.CodePolygon,
		Shapes: []testutil.Shape{
			testutil.Box(0, 0, 1, 1),
			testutil.Box(5, 5, 6, 6),
			testutil.Box(10, 10, 11, 11),
		},
		Fields: []testutil.Field{
			{Name: "NAME", Type: 'C', Length: 10},
			{Name: "AREA", Type: 'N', Length: 8},
		},
		Rows: []testutil.Row{
			testutil.Values("A", "1"),
			testutil.Values("B", "2"),
			testutil.Values("C", "3"),
		},
	})
	cfg = filepath.Join(t.TempDir(), "shapestore.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("log:\n  level: error\npool:\n  workers: 2\n"), 0o644))
	return dir, shp, cfg
}

func run(t *testing.T, cfg string, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", cfg}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestHelp(t *testing.T) {
	t.Parallel()

	_, _, cfg := fixture(t)
	for _, args := range [][]string{{"--help"}, {"query", "--help"}} {
		out, err := run(t, cfg, args...)
		require.NoError(t, err)
		assert.Contains(t, out, "shapestore")
	}

	_, err := run(t, cfg, "unknown")
	require.Error(t, err)
}

func TestInfo(t *testing.T) {
	t.Parallel()

	_, shp, cfg := fixture(t)
	out, err := run(t, cfg, "info", shp)
	require.NoError(t, err)

	assert.Contains(t, out, "Type name:  parcels")
	assert.Contains(t, out, "CRS:        CRS:84")
	assert.Contains(t, out, "Shape type: Polygon")
	assert.Contains(t, out, "Records:    3")
	assert.Contains(t, out, "parcels.rtx")
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "integer")
}

func TestQuery(t *testing.T) {
	t.Parallel()

	_, shp, cfg := fixture(t)

	out, err := run(t, cfg, "query", shp, "--where", "NAME=B")
	require.NoError(t, err)
	assert.Contains(t, out, "PARCELS_2")
	assert.NotContains(t, out, "PARCELS_1")
	assert.Contains(t, out, "MultiPolygon")
	assert.Contains(t, out, "1 records")

	out, err = run(t, cfg, "query", shp, "--where", "AREA>=2", "--sort", "AREA:desc", "--limit", "1", "--no-geometry")
	require.NoError(t, err)
	assert.Contains(t, out, "PARCELS_3")
	assert.NotContains(t, out, "PARCELS_2")
	assert.NotContains(t, out, "MultiPolygon")

	out, err = run(t, cfg, "query", shp, "--bbox", "0,0,6,6", "--count")
	require.NoError(t, err)
	assert.Equal(t, "2", strings.TrimSpace(out))

	out, err = run(t, cfg, "query", shp, "--where", "NAME~[AC]", "--count")
	require.NoError(t, err)
	assert.Equal(t, "0", strings.TrimSpace(out), "brackets are literal in wildcard patterns")

	out, err = run(t, cfg, "query", shp, "--id", "1,3", "--properties", "NAME")
	require.NoError(t, err)
	assert.Contains(t, out, "PARCELS_1")
	assert.Contains(t, out, "PARCELS_3")
	assert.NotContains(t, out, "AREA")

	_, err = run(t, cfg, "query", shp, "--where", "NAME")
	require.Error(t, err)
	_, err = run(t, cfg, "query", shp, "--bbox", "1,2,3")
	require.Error(t, err)
}

func TestParseWhere(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"NAME=Main Street", "NAME = Main Street"},
		{"LANES >= 4", "LANES >= 4"},
		{"LANES!=2", "LANES <> 2"},
		{"TYPE<>road", "TYPE <> road"},
	}
	for _, tt := range tests {
		f, err := parseWhere(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, f.(interface{ String() string }).String())
	}

	_, err := parseWhere("= 4")
	require.Error(t, err)
}

func TestIndex(t *testing.T) {
	t.Parallel()

	_, shp, cfg := fixture(t)
	out, err := run(t, cfg, "index", shp, "--force", "--compression", "zstd")
	require.NoError(t, err)
	assert.Contains(t, out, "parcels.rtx: 3 records")

	_, err = os.Stat(strings.TrimSuffix(shp, ".shp") + ".rtx")
	require.NoError(t, err)

	_, err = run(t, cfg, "index", shp, "--compression", "brotli")
	require.Error(t, err)
}

func TestCatalog(t *testing.T) {
	t.Parallel()

	dir, _, cfg := fixture(t)
	out, err := run(t, cfg, "catalog", dir, "--bbox", "0,0,1,1")
	require.NoError(t, err)
	assert.Contains(t, out, "parcels")
	assert.Contains(t, out, "1 of 1 stores")

	out, err = run(t, cfg, "catalog", dir, "--bbox", "50,50,60,60")
	require.NoError(t, err)
	assert.Contains(t, out, "0 of 1 stores")

	_, err = run(t, cfg, "catalog", t.TempDir())
	require.Error(t, err)
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	_, shp, cfg := fixture(t)
	out, err := run(t, cfg, "--metrics", "query", shp, "--count")
	require.NoError(t, err)
	assert.Contains(t, out, "shapestore_queries_total")
	assert.Contains(t, out, "shapestore_index_builds_total")
}

func TestBadConfig(t *testing.T) {
	t.Parallel()

	_, shp, _ := fixture(t)
	cfg := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("pool:\n  workers: 0\n"), 0o644))

	_, err := run(t, cfg, "info", shp)
	require.Error(t, err)

	_, shp, good := fixture(t)
	_, err = run(t, good, "--log-format", "xml", "info", shp)
	require.Error(t, err)
}

func TestTableFooterKeepsCase(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	tbl := newTable(&buf)
	tbl.AppendHeader(table.Row{"Name"})
	tbl.AppendRow(table.Row{"parcels"})
	tbl.AppendFooter(table.Row{"1 of 1 stores"})
	tbl.Render()

	assert.Contains(t, buf.String(), "1 of 1 stores")
	assert.Contains(t, buf.String(), "NAME")
}
