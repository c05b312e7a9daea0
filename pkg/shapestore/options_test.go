package shapestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beetlebugorg/shapestore/internal/rtree"
)

func TestDefaultOptions(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	assert.Equal(t, CompressionLZ4, opts.IndexCompression)
	assert.Equal(t, rtree.DefaultFanout, opts.Fanout)
	assert.Equal(t, 100, opts.QueueSize)
	assert.Equal(t, 20, opts.QueueMinFill)

	filled := Options{QueueSize: 10}.withDefaults()
	assert.Equal(t, 10, filled.QueueMinFill)
	assert.Equal(t, DefaultFanout, filled.Fanout)
	assert.Same(t, DefaultWorkerPool(), filled.Pool)
	assert.NotNil(t, filled.Logger)
}

func TestParseCompressionNames(t *testing.T) {
	t.Parallel()

	for name, want := range map[string]Compression{
		"none": CompressionNone,
		"lz4":  CompressionLZ4,
		"ZSTD": CompressionZSTD,
	} {
		got, err := ParseCompression(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	assert.Equal(t, "zstd", CompressionZSTD.String())

	_, err := ParseCompression("brotli")
	require.Error(t, err)
}
