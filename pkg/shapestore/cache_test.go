package shapestore

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreCacheEviction(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	opts := testOptions(nil)
	loader := func(name string) func() (*Store, error) {
		return func() (*Store, error) {
			return Open(writePoints(t, dir, name, 5), opts)
		}
	}

	cache := NewStoreCache(2)
	t.Cleanup(cache.Clear)

	a, err := cache.Get("a", loader("a"))
	require.NoError(t, err)
	b, err := cache.Get("b", loader("b"))
	require.NoError(t, err)

	hit, err := cache.Get("a", func() (*Store, error) {
		t.Fatal("loader called for a cached store")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Same(t, a, hit)

	_, err = cache.Get("c", loader("c"))
	require.NoError(t, err)

	_, err = b.Len()
	require.ErrorIs(t, err, ErrClosed, "least recently used store is closed")
	_, err = a.Len()
	require.NoError(t, err)

	stats := cache.Stats()
	assert.Equal(t, CacheStats{Open: 2, MaxOpen: 2, Hits: 1, Misses: 3, TotalAccess: 3}, stats)

	cache.Remove("a")
	_, err = a.Len()
	require.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, 1, cache.Stats().Open)
}

func TestStoreCacheLoaderError(t *testing.T) {
	t.Parallel()

	cache := NewStoreCache(0)
	boom := errors.New("boom")
	_, err := cache.Get("x", func() (*Store, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, cache.Stats().Open)

	_, err = cache.Get("y", func() (*Store, error) {
		return Open(filepath.Join(t.TempDir(), "missing.shp"), testOptions(nil))
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStoreCacheAddDuplicate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first, err := Open(writePoints(t, dir, "first", 2), testOptions(nil))
	require.NoError(t, err)
	second, err := Open(writePoints(t, dir, "second", 2), testOptions(nil))
	require.NoError(t, err)

	cache := NewStoreCache(4)
	assert.Same(t, first, cache.Add("pts", first))
	assert.Same(t, first, cache.Add("pts", second))

	_, err = second.Len()
	require.ErrorIs(t, err, ErrClosed)

	cache.Clear()
	_, err = first.Len()
	require.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, 0, cache.Stats().Open)
}
