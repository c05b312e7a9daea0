package rtree

import (
	"math/rand"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beetlebugorg/shapestore/internal/storeerr"
)

func box(minX, minY, maxX, maxY float64) orb.Bound {
	return orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}
}

func randomEntries(n int, seed int64) []Entry {
	rng := rand.New(rand.NewSource(seed))
	entries := make([]Entry, n)
	for i := range entries {
		x, y := rng.Float64()*1000, rng.Float64()*1000
		w, h := rng.Float64()*10, rng.Float64()*10
		entries[i] = Entry{ID: i + 1, Bound: box(x, y, x+w, y+h)}
	}
	return entries
}

func bruteForce(entries []Entry, b orb.Bound) []int {
	var ids []int
	for _, e := range entries {
		if e.Bound.Intersects(b) {
			ids = append(ids, e.ID)
		}
	}
	slices.Sort(ids)
	return ids
}

func TestScenarioThreeRecords(t *testing.T) {
	tree := Build([]Entry{
		{ID: 1, Bound: box(0, 0, 1, 1)},
		{ID: 2, Bound: box(5, 5, 6, 6)},
		{ID: 3, Bound: box(10, 10, 11, 11)},
	}, nil, 0)

	assert.Equal(t, []int{1}, tree.Search(box(0, 0, 2, 2)))
	assert.Equal(t, []int{1, 2, 3}, tree.Search(box(-1, -1, 12, 12)))
	assert.Empty(t, tree.Search(box(20, 20, 30, 30)))
	assert.Equal(t, box(0, 0, 11, 11), tree.Bound())
	assert.Equal(t, DefaultFanout, tree.Fanout())
}

func TestSearchMatchesBruteForce(t *testing.T) {
	entries := randomEntries(5000, 1)
	reference := slices.Clone(entries)
	tree := Build(entries, nil, 16)

	assert.Equal(t, 5000, tree.Len())
	assert.Greater(t, tree.Depth(), 2)

	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 200; i++ {
		x, y := rng.Float64()*1000, rng.Float64()*1000
		q := box(x, y, x+rng.Float64()*100, y+rng.Float64()*100)
		assert.Equal(t, bruteForce(reference, q), tree.Search(q), "query %v", q)
	}
}

func TestFullExtentReturnsEveryID(t *testing.T) {
	entries := randomEntries(1000, 3)
	tree := Build(entries, []int{1001, 1002}, 8)

	got := tree.Search(tree.Bound())
	require.Len(t, got, 1002)
	for i, id := range got {
		assert.Equal(t, i+1, id)
	}
	assert.Equal(t, got, tree.All())
}

func TestNullsOnlyOnCoveringSearch(t *testing.T) {
	tree := Build([]Entry{{ID: 1, Bound: box(0, 0, 1, 1)}}, []int{2}, 0)

	assert.Equal(t, []int{1}, tree.Search(box(0, 0, 0.5, 0.5)))
	assert.Equal(t, []int{1, 2}, tree.Search(box(-1, -1, 2, 2)))
	assert.Empty(t, tree.Search(box(5, 5, 6, 6)))

	onlyNulls := Build(nil, []int{3, 1}, 0)
	assert.Equal(t, []int{1, 3}, onlyNulls.Search(box(5, 5, 6, 6)))
	assert.Equal(t, 0, onlyNulls.Len())
}

func TestEmptyQueryBox(t *testing.T) {
	tree := Build(randomEntries(10, 4), nil, 0)
	assert.Empty(t, tree.Search(box(1, 1, 0, 0)))
}

func TestBoundaryTouchIntersects(t *testing.T) {
	tree := Build([]Entry{{ID: 7, Bound: box(0, 0, 1, 1)}}, nil, 0)
	assert.Equal(t, []int{7}, tree.Search(box(1, 1, 2, 2)))
}

func TestMarshalRoundTrip(t *testing.T) {
	entries := randomEntries(3000, 5)
	tree := Build(entries, []int{3001}, 32)
	stamp := Stamp{Size: 12345, ModTime: time.Unix(1700000000, 42)}

	queries := []orb.Bound{
		box(0, 0, 1000, 1000),
		box(100, 100, 150, 150),
		box(990, 990, 2000, 2000),
		box(-10, -10, -5, -5),
	}

	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			data, err := tree.Marshal(c, stamp)
			require.NoError(t, err)

			got, gotStamp, err := Unmarshal(data)
			require.NoError(t, err)
			assert.True(t, stamp.Equal(gotStamp))
			assert.Equal(t, tree.Len(), got.Len())
			assert.Equal(t, tree.Fanout(), got.Fanout())
			assert.Equal(t, tree.Bound(), got.Bound())
			for _, q := range queries {
				assert.Equal(t, tree.Search(q), got.Search(q), "query %v", q)
			}
		})
	}
}

func TestUnmarshalCorrupt(t *testing.T) {
	tree := Build(randomEntries(100, 6), nil, 0)
	data, err := tree.Marshal(CompressionLZ4, Stamp{})
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"empty", func([]byte) []byte { return nil }},
		{"magic", func(b []byte) []byte { b[0] = 'X'; return b }},
		{"version", func(b []byte) []byte { b[8] = 99; return b }},
		{"checksum", func(b []byte) []byte { b[len(b)-1] ^= 0xFF; return b }},
		{"truncated", func(b []byte) []byte { return b[:len(b)-10] }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Unmarshal(tt.mutate(slices.Clone(data)))
			assert.ErrorIs(t, err, storeerr.ErrCorrupt)
		})
	}
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx.rtx")

	_, _, err := ReadFile(path)
	assert.ErrorIs(t, err, storeerr.ErrNotFound)

	tree := Build(randomEntries(50, 7), nil, 0)
	stamp := Stamp{Size: 10, ModTime: time.Unix(10, 0)}
	require.NoError(t, WriteFile(path, tree, CompressionZSTD, stamp))

	got, gotStamp, err := ReadFile(path)
	require.NoError(t, err)
	assert.True(t, stamp.Equal(gotStamp))
	assert.Equal(t, tree.All(), got.All())
}

func TestParseCompression(t *testing.T) {
	for in, want := range map[string]Compression{"": CompressionNone, "LZ4": CompressionLZ4, "zstd": CompressionZSTD} {
		got, err := ParseCompression(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseCompression("gzip")
	assert.Error(t, err)
}

func BenchmarkBuild(b *testing.B) {
	src := randomEntries(100000, 8)
	entries := make([]Entry, len(src))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		copy(entries, src)
		Build(entries, nil, DefaultFanout)
	}
}

func BenchmarkSearch(b *testing.B) {
	tree := Build(randomEntries(100000, 9), nil, DefaultFanout)
	q := box(400, 400, 450, 450)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tree.Search(q)
	}
}
