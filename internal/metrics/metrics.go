// Package metrics holds the Prometheus collectors of a feature store.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "shapestore"

// Index build sources.
const (
	SourceSidecar = "sidecar"
	SourceRebuild = "rebuild"
)

// Query outcomes.
const (
	ResultOK          = "ok"
	ResultError       = "error"
	ResultUnavailable = "unavailable"
)

// Collectors groups the store's metrics. A nil *Collectors is valid and
// records nothing.
type Collectors struct {
	Queries        *prometheus.CounterVec
	IndexBuilds    *prometheus.CounterVec
	Reloads        prometheus.Counter
	RecordsEmitted prometheus.Counter
	RecordsSkipped prometheus.Counter
	ActiveStreams  prometheus.Gauge
}

// New creates the collectors and registers them with reg when reg is not nil.
// Collectors already registered by another store on the same registry are reused.
func New(reg prometheus.Registerer) (*Collectors, error) {
	c := &Collectors{
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Queries executed, by outcome.",
		}, []string{"result"}),
		IndexBuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_builds_total",
			Help:      "Spatial index loads, by source.",
		}, []string{"source"}),
		Reloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_reloads_total",
			Help:      "File generation changes detected on disk.",
		}),
		RecordsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_emitted_total",
			Help:      "Records delivered to result sets.",
		}),
		RecordsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_skipped_total",
			Help:      "Records skipped because they could not be decoded or evaluated.",
		}),
		ActiveStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Streaming result sets currently open.",
		}),
	}
	if reg == nil {
		return c, nil
	}

	var err error
	c.Queries, err = register(reg, c.Queries)
	if err != nil {
		return nil, err
	}
	c.IndexBuilds, err = register(reg, c.IndexBuilds)
	if err != nil {
		return nil, err
	}
	c.Reloads, err = register(reg, c.Reloads)
	if err != nil {
		return nil, err
	}
	c.RecordsEmitted, err = register(reg, c.RecordsEmitted)
	if err != nil {
		return nil, err
	}
	c.RecordsSkipped, err = register(reg, c.RecordsSkipped)
	if err != nil {
		return nil, err
	}
	c.ActiveStreams, err = register(reg, c.ActiveStreams)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Query counts one query with the given outcome.
func (c *Collectors) Query(result string) {
	if c != nil {
		c.Queries.WithLabelValues(result).Inc()
	}
}

// IndexBuilt counts one index load from source.
func (c *Collectors) IndexBuilt(source string) {
	if c != nil {
		c.IndexBuilds.WithLabelValues(source).Inc()
	}
}

// Reloaded counts one generation change.
func (c *Collectors) Reloaded() {
	if c != nil {
		c.Reloads.Inc()
	}
}

// Emitted counts one delivered record.
func (c *Collectors) Emitted() {
	if c != nil {
		c.RecordsEmitted.Inc()
	}
}

// Skipped counts one skipped record.
func (c *Collectors) Skipped() {
	if c != nil {
		c.RecordsSkipped.Inc()
	}
}

// StreamOpened tracks a streaming result set starting.
func (c *Collectors) StreamOpened() {
	if c != nil {
		c.ActiveStreams.Inc()
	}
}

// StreamClosed tracks a streaming result set finishing.
func (c *Collectors) StreamClosed() {
	if c != nil {
		c.ActiveStreams.Dec()
	}
}
