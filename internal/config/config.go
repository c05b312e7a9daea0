// Package config loads the command line tool's settings from a config
// file, SHAPESTORE_* environment variables and defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/beetlebugorg/shapestore/internal/logging"
	"github.com/beetlebugorg/shapestore/pkg/shapestore"
)

// Config is the top-level configuration. Field tags use mapstructure for
// viper unmarshalling.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Store   StoreConfig   `mapstructure:"store"`
	Pool    PoolConfig    `mapstructure:"pool"`
	Catalog CatalogConfig `mapstructure:"catalog"`
}

// LogConfig selects log level and output format.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StoreConfig holds the per-store options.
type StoreConfig struct {
	CRS            string `mapstructure:"crs"`
	Encoding       string `mapstructure:"encoding"`
	Compression    string `mapstructure:"compression"`
	Fanout         int    `mapstructure:"fanout"`
	ReadOnly       bool   `mapstructure:"read_only"`
	EagerThreshold int    `mapstructure:"eager_threshold"`
	QueueSize      int    `mapstructure:"queue_size"`
	QueueMinFill   int    `mapstructure:"queue_min_fill"`
}

// PoolConfig sizes the shared worker pool.
type PoolConfig struct {
	Workers    int     `mapstructure:"workers"`
	RecordRate float64 `mapstructure:"record_rate"`
}

// CatalogConfig holds catalog settings.
type CatalogConfig struct {
	MaxOpen     int  `mapstructure:"max_open"`
	LoadWorkers int  `mapstructure:"load_workers"`
	SkipErrors  bool `mapstructure:"skip_errors"`
}

// Sentinel errors for configuration validation.
var (
	// ErrInvalidCompression indicates an unknown side-car compression.
	ErrInvalidCompression = errors.New("store.compression must be none, lz4 or zstd")
	// ErrInvalidFanout indicates a node capacity below 2.
	ErrInvalidFanout = errors.New("store.fanout must be at least 2")
	// ErrInvalidQueue indicates a non-positive queue size or a minimum fill outside it.
	ErrInvalidQueue = errors.New("store.queue_min_fill must be between 1 and store.queue_size")
	// ErrInvalidWorkers indicates a non-positive pool size.
	ErrInvalidWorkers = errors.New("pool.workers must be positive")
	// ErrInvalidRecordRate indicates a negative record rate.
	ErrInvalidRecordRate = errors.New("pool.record_rate must be non-negative")
	// ErrInvalidMaxOpen indicates a negative catalog cache size.
	ErrInvalidMaxOpen = errors.New("catalog.max_open must be non-negative")
)

// Validate checks the configuration for values the store cannot use.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", logging.FormatText, logging.FormatJSON:
	default:
		return fmt.Errorf("%w: %q", logging.ErrUnknownFormat, c.Log.Format)
	}
	if _, err := shapestore.ParseCompression(c.Store.Compression); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidCompression, c.Store.Compression)
	}
	if c.Store.Fanout < 2 {
		return ErrInvalidFanout
	}
	if c.Store.QueueSize < 1 || c.Store.QueueMinFill < 1 || c.Store.QueueMinFill > c.Store.QueueSize {
		return ErrInvalidQueue
	}
	if c.Pool.Workers < 1 {
		return ErrInvalidWorkers
	}
	if c.Pool.RecordRate < 0 {
		return ErrInvalidRecordRate
	}
	if c.Catalog.MaxOpen < 0 {
		return ErrInvalidMaxOpen
	}
	return nil
}

// Logger builds the logger described by the log section.
func (c *Config) Logger(w io.Writer) (*slog.Logger, error) {
	return logging.New(c.Log.Level, c.Log.Format, w)
}

// StoreOptions converts the store and pool sections into store options.
// Every call builds a new worker pool.
func (c *Config) StoreOptions(log *slog.Logger, reg prometheus.Registerer) (shapestore.Options, error) {
	compression, err := shapestore.ParseCompression(c.Store.Compression)
	if err != nil {
		return shapestore.Options{}, err
	}
	opts := shapestore.DefaultOptions()
	opts.CRS = c.Store.CRS
	opts.Encoding = c.Store.Encoding
	opts.IndexCompression = compression
	opts.Fanout = c.Store.Fanout
	opts.ReadOnly = c.Store.ReadOnly
	opts.EagerThreshold = c.Store.EagerThreshold
	opts.QueueSize = c.Store.QueueSize
	opts.QueueMinFill = c.Store.QueueMinFill
	opts.Pool = shapestore.NewWorkerPool(c.Pool.Workers, shapestore.WithRecordRate(c.Pool.RecordRate))
	opts.Logger = log
	opts.Registerer = reg
	return opts, nil
}

// CatalogOptions converts the catalog section, using store for the
// catalogued stores.
func (c *Config) CatalogOptions(store shapestore.Options) shapestore.CatalogOptions {
	opts := shapestore.DefaultCatalogOptions()
	opts.MaxOpen = c.Catalog.MaxOpen
	opts.Store = store
	if c.Catalog.LoadWorkers > 0 {
		opts.Load.Workers = c.Catalog.LoadWorkers
	}
	opts.Load.SkipErrors = c.Catalog.SkipErrors
	return opts
}
