package shapestore

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/beetlebugorg/shapestore/internal/rtree"
)

// Compression selects how the side-car index file is compressed.
type Compression = rtree.Compression

// Index compressions.
const (
	CompressionNone = rtree.CompressionNone
	CompressionLZ4  = rtree.CompressionLZ4
	CompressionZSTD = rtree.CompressionZSTD
)

// ParseCompression parses "none", "lz4" or "zstd".
func ParseCompression(s string) (Compression, error) { return rtree.ParseCompression(s) }

// Defaults for Options.
const (
	DefaultEagerThreshold = 100
	DefaultQueueSize      = 100
	DefaultQueueMinFill   = 20
	DefaultFanout         = rtree.DefaultFanout
)

// Options configures a Store.
type Options struct {
	// TypeName is the feature type served by the store. Empty means the
	// base name of the geometry file.
	TypeName string

	// CRS overrides the projection file. Empty means read <base>.prj, and
	// DefaultCRS when there is none.
	CRS string

	// Encoding names the attribute text encoding. Empty means the .cpg
	// side-car, then the attribute file's language driver, then ISO-8859-1.
	Encoding string

	// IndexPath is the side-car index location. Empty means <base>.rtx.
	IndexPath string

	// ForceRebuild ignores an existing side-car index on open.
	ForceRebuild bool

	// ReadOnly keeps the store from writing the side-car index.
	ReadOnly bool

	IndexCompression Compression
	Fanout           int

	// EagerThreshold is the largest candidate count evaluated in memory
	// before Query returns. Larger candidate sets stream. A negative value
	// streams every unsorted query.
	EagerThreshold int

	// QueueSize bounds the records buffered by a streaming result set.
	// Production pauses when it is full and resumes once fewer than
	// QueueMinFill records are buffered.
	QueueSize    int
	QueueMinFill int

	// Pool runs streaming producers. Nil means DefaultWorkerPool().
	Pool *WorkerPool

	// Transformer reprojects query envelopes. Nil means
	// ProjectionTransformer.
	Transformer Transformer

	// Logger receives store events. Nil discards them.
	Logger *slog.Logger

	// Registerer receives the store's Prometheus collectors. Nil disables
	// metrics.
	Registerer prometheus.Registerer
}

// DefaultOptions returns the default store configuration.
func DefaultOptions() Options {
	return Options{
		IndexCompression: CompressionLZ4,
		Fanout:           DefaultFanout,
		EagerThreshold:   DefaultEagerThreshold,
		QueueSize:        DefaultQueueSize,
		QueueMinFill:     DefaultQueueMinFill,
	}
}

func (o Options) withDefaults() Options {
	if o.Fanout < 2 {
		o.Fanout = DefaultFanout
	}
	if o.QueueSize < 1 {
		o.QueueSize = DefaultQueueSize
	}
	if o.QueueMinFill < 1 {
		o.QueueMinFill = min(DefaultQueueMinFill, o.QueueSize)
	}
	if o.Pool == nil {
		o.Pool = DefaultWorkerPool()
	}
	if o.Transformer == nil {
		o.Transformer = ProjectionTransformer{}
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}
