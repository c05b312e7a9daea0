package config

import "github.com/beetlebugorg/shapestore/pkg/shapestore"

// Default values, matching shapestore.DefaultOptions where they overlap.
const (
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultCompression    = "lz4"
	DefaultFanout         = shapestore.DefaultFanout
	DefaultEagerThreshold = shapestore.DefaultEagerThreshold
	DefaultQueueSize      = shapestore.DefaultQueueSize
	DefaultQueueMinFill   = shapestore.DefaultQueueMinFill
	DefaultWorkers        = shapestore.DefaultWorkers
	DefaultMaxOpen        = 16
	DefaultSkipErrors     = true
)
