package shapestore

import (
	"bytes"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beetlebugorg/shapestore/internal/testutil"
)

func TestOpenStores(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	broken := filepath.Join(dir, "broken.shp")
	testutil.WriteFile(t, broken, []byte("garbage"))
	paths := []string{
		writePoints(t, dir, "one", 3),
		broken,
		writePoints(t, dir, "two", 4),
		writePoints(t, dir, "three", 5),
	}

	var (
		mu       sync.Mutex
		progress []int
	)
	var errLog bytes.Buffer
	stores, errs := OpenStores(paths, testOptions(nil), LoadOptions{
		Workers:    3,
		SkipErrors: true,
		ErrorLog:   &errLog,
		Progress: func(loaded, total int) {
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, 4, total)
			progress = append(progress, loaded)
		},
	})
	t.Cleanup(func() {
		for _, s := range stores {
			s.Close()
		}
	})

	require.Len(t, stores, 3)
	var names []string
	for _, s := range stores {
		names = append(names, s.TypeName())
	}
	assert.Equal(t, []string{"one", "two", "three"}, names)

	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrMalformedHeader)
	assert.Contains(t, errLog.String(), "broken.shp")
	assert.Equal(t, []int{1, 2, 3, 4}, progress)
}

func TestOpenStoresStopsOnError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	paths := []string{
		writePoints(t, dir, "one", 3),
		filepath.Join(dir, "missing.shp"),
	}

	stores, errs := OpenStores(paths, testOptions(nil), LoadOptions{Workers: 1})
	assert.Nil(t, stores)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrNotFound)

	stores, errs = OpenStores(nil, testOptions(nil), DefaultLoadOptions())
	assert.Nil(t, stores)
	assert.Nil(t, errs)
}
