package dbf

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beetlebugorg/shapestore/internal/storeerr"
	"github.com/beetlebugorg/shapestore/internal/testutil"
)

var sampleFields = []testutil.Field{
	{Name: "NAME", Type: 'C', Length: 10},
	{Name: "POP", Type: 'N', Length: 8},
	{Name: "AREA", Type: 'N', Length: 10, Decimals: 2},
	{Name: "ACTIVE", Type: 'L', Length: 1},
	{Name: "FOUNDED", Type: 'D', Length: 8},
}

func writeDBF(t *testing.T, fields []testutil.Field, rows []testutil.Row) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.dbf")
	testutil.WriteFile(t, path, testutil.EncodeDBF(fields, rows, 0x57))
	return path
}

func openDBF(t *testing.T, path string, opts Options) *Reader {
	t.Helper()
	r, err := Open(path, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestSchema(t *testing.T) {
	r := openDBF(t, writeDBF(t, sampleFields, nil), Options{})

	fields := r.Fields()
	require.Len(t, fields, len(sampleFields))
	for i, f := range sampleFields {
		assert.Equal(t, f.Name, fields[i].Name)
		assert.Equal(t, FieldType(f.Type), fields[i].Type)
		assert.Equal(t, f.Length, fields[i].Length)
		assert.Equal(t, f.Decimals, fields[i].Decimals)
	}
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, "windows-1252", r.Encoding())
}

func TestReadRecordValues(t *testing.T) {
	r := openDBF(t, writeDBF(t, sampleFields, []testutil.Row{
		testutil.Values("Alpha", "1200", "35.50", "T", "19990131"),
		testutil.Values("Beta", "", "", "?", ""),
	}), Options{})

	got, ok, err := r.ReadRecord(1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]any{
		"NAME":    "Alpha",
		"POP":     int64(1200),
		"AREA":    35.5,
		"ACTIVE":  true,
		"FOUNDED": time.Date(1999, 1, 31, 0, 0, 0, 0, time.UTC),
	}, got)

	got, ok, err = r.ReadRecord(2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Beta", got["NAME"])
	assert.Nil(t, got["POP"])
	assert.Nil(t, got["AREA"])
	assert.Nil(t, got["ACTIVE"])
	assert.Nil(t, got["FOUNDED"])
}

func TestDeletedRecord(t *testing.T) {
	r := openDBF(t, writeDBF(t, sampleFields, []testutil.Row{
		testutil.Values("A"),
		{Values: []string{"B"}, Deleted: true},
		testutil.Values("C"),
	}), Options{})

	assert.Equal(t, 3, r.Len())
	assert.True(t, r.Deleted().Contains(2))
	assert.Equal(t, uint64(1), r.Deleted().GetCardinality())

	got, ok, err := r.ReadRecord(2)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)

	got, ok, err = r.ReadRecord(3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "C", got["NAME"])
}

func TestDeletedAcrossBlocks(t *testing.T) {
	// 201-byte records put 326 rows in each scan block.
	fields := []testutil.Field{{Name: "NOTE", Type: 'C', Length: 200}}
	deleted := []uint32{1, 326, 327, 652, 999, 1000}
	rows := make([]testutil.Row, 1000)
	for i := range rows {
		rows[i] = testutil.Values("row")
	}
	for _, id := range deleted {
		rows[id-1].Deleted = true
	}

	r := openDBF(t, writeDBF(t, fields, rows), Options{})
	assert.Equal(t, 1000, r.Len())
	assert.Equal(t, deleted, r.Deleted().ToArray())
}

func TestOutOfRange(t *testing.T) {
	r := openDBF(t, writeDBF(t, sampleFields, []testutil.Row{testutil.Values("A")}), Options{})
	for _, id := range []int{0, 2, 100} {
		_, _, err := r.ReadRecord(id)
		assert.ErrorIs(t, err, storeerr.ErrOutOfRange, "id %d", id)
	}
}

func TestDuplicateFieldNames(t *testing.T) {
	fields := []testutil.Field{
		{Name: "VAL", Type: 'C', Length: 3},
		{Name: "VAL", Type: 'C', Length: 3},
		{Name: "VAL", Type: 'C', Length: 3},
	}
	r := openDBF(t, writeDBF(t, fields, []testutil.Row{testutil.Values("a", "b", "c")}), Options{})

	names := make([]string, 0, 3)
	for _, f := range r.Fields() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"VAL", "VAL__1", "VAL__2"}, names)

	got, _, err := r.ReadRecord(1)
	require.NoError(t, err)
	assert.Equal(t, "c", got["VAL__2"])
}

func TestEncoding(t *testing.T) {
	fields := []testutil.Field{{Name: "NAME", Type: 'C', Length: 8}}
	// "Zürich" in Latin-1.
	latin1 := string([]byte{'Z', 0xFC, 'r', 'i', 'c', 'h'})
	path := writeDBF(t, fields, []testutil.Row{testutil.Values(latin1)})

	t.Run("explicit", func(t *testing.T) {
		r := openDBF(t, path, Options{Encoding: "ISO-8859-1"})
		got, _, err := r.ReadRecord(1)
		require.NoError(t, err)
		assert.Equal(t, "Zürich", got["NAME"])
	})

	t.Run("cpg side-car", func(t *testing.T) {
		dir := t.TempDir()
		p := filepath.Join(dir, "cities.dbf")
		testutil.WriteFile(t, p, testutil.EncodeDBF(fields, []testutil.Row{testutil.Values("Zürich")}, 0))
		testutil.WriteFile(t, filepath.Join(dir, "cities.cpg"), []byte("UTF-8\n"))

		r := openDBF(t, p, Options{})
		assert.Equal(t, "UTF-8", r.Encoding())
		got, _, err := r.ReadRecord(1)
		require.NoError(t, err)
		assert.Equal(t, "Zürich", got["NAME"])
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := Open(path, Options{Encoding: "no-such-charset"})
		assert.ErrorIs(t, err, storeerr.ErrUnknownEncoding)
	})
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(filepath.Join(dir, "missing.dbf"), Options{})
	assert.ErrorIs(t, err, storeerr.ErrNotFound)

	short := filepath.Join(dir, "short.dbf")
	testutil.WriteFile(t, short, []byte{0x03, 0, 0})
	_, err = Open(short, Options{})
	assert.ErrorIs(t, err, storeerr.ErrMalformedHeader)

	bad := testutil.EncodeDBF(sampleFields, nil, 0)
	bad[10], bad[11] = 2, 0 // record length shorter than the fields
	p := filepath.Join(dir, "bad.dbf")
	testutil.WriteFile(t, p, bad)
	_, err = Open(p, Options{})
	assert.ErrorIs(t, err, storeerr.ErrMalformedHeader)
}

func TestTruncatedRecordCount(t *testing.T) {
	data := testutil.EncodeDBF(sampleFields, []testutil.Row{
		testutil.Values("A"), testutil.Values("B"),
	}, 0)
	// Drop the second record and the EOF marker.
	recLen := 1 + 10 + 8 + 10 + 1 + 8
	data = data[:len(data)-1-recLen]
	p := filepath.Join(t.TempDir(), "short.dbf")
	testutil.WriteFile(t, p, data)

	r := openDBF(t, p, Options{})
	assert.Equal(t, 1, r.Len())
}
