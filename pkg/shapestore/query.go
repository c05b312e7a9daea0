package shapestore

import (
	"maps"
	"slices"
	"strings"
)

// Unbounded is the MaxRecords value that places no cap on a result.
const Unbounded = -1

// Hint keys understood by the store.
const (
	HintLooseBBox     = "LOOSE_BBOX"
	HintScale         = "SCALE"
	HintResolution    = "RESOLUTION"
	HintNoGeometries  = "NO_GEOMETRIES"
	HintProperties    = "PROPERTIES"
	HintEagerEvaluate = "EAGER"
)

// SortKey orders results by one attribute.
type SortKey struct {
	Property   string
	Descending bool
}

// ParseSortKey parses "FIELD" or "FIELD:desc" (also ":asc").
func ParseSortKey(s string) SortKey {
	name, dir, _ := strings.Cut(s, ":")
	return SortKey{Property: strings.TrimSpace(name), Descending: strings.EqualFold(strings.TrimSpace(dir), "desc")}
}

// Query describes a request against a store. It is built with NewQuery and
// is not modified afterwards; constructing one does no I/O.
type Query struct {
	typeNames  []string
	filter     Filter
	sortBy     []SortKey
	crs        string
	maxRecords int
	hints      map[string]any
}

// QueryOption configures a Query.
type QueryOption func(*Query)

// NewQuery returns a query for all records of the store's type, unfiltered
// and uncapped, with any options applied.
func NewQuery(opts ...QueryOption) *Query {
	q := &Query{maxRecords: Unbounded, hints: map[string]any{}}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// WithTypeNames names the feature types to query. A store serves one type.
func WithTypeNames(names ...string) QueryOption {
	return func(q *Query) { q.typeNames = append(q.typeNames, names...) }
}

// WithFilter sets the per-record filter.
func WithFilter(f Filter) QueryOption {
	return func(q *Query) { q.filter = f }
}

// WithSortBy orders results by the given keys. Sorted queries are evaluated
// eagerly.
func WithSortBy(keys ...SortKey) QueryOption {
	return func(q *Query) { q.sortBy = append(q.sortBy, keys...) }
}

// WithCRS sets the CRS of envelopes in the query's loose bbox and filter
// when they carry none.
func WithCRS(crs string) QueryOption {
	return func(q *Query) { q.crs = crs }
}

// WithMaxRecords caps the number of records returned. Unbounded removes the
// cap.
func WithMaxRecords(n int) QueryOption {
	return func(q *Query) {
		if n < 0 {
			n = Unbounded
		}
		q.maxRecords = n
	}
}

// WithHint sets an arbitrary hint.
func WithHint(key string, value any) QueryOption {
	return func(q *Query) { q.hints[key] = value }
}

// WithLooseBBox sets the envelope used to select index candidates.
func WithLooseBBox(env Envelope) QueryOption {
	return WithHint(HintLooseBBox, env)
}

// WithScale records the map scale denominator of the request.
func WithScale(scale float64) QueryOption {
	return WithHint(HintScale, scale)
}

// WithResolution records the requested resolution in CRS units per pixel.
func WithResolution(res float64) QueryOption {
	return WithHint(HintResolution, res)
}

// WithoutGeometries skips geometry decoding. Records still carry envelopes.
func WithoutGeometries() QueryOption {
	return WithHint(HintNoGeometries, true)
}

// WithProperties restricts the attributes materialized per record.
// Attributes referenced by the filter or sort keys must be listed too.
func WithProperties(names ...string) QueryOption {
	return WithHint(HintProperties, slices.Clone(names))
}

// WithEagerEvaluation forces the result into memory before Query returns.
func WithEagerEvaluation() QueryOption {
	return WithHint(HintEagerEvaluate, true)
}

// TypeNames returns the requested feature type names.
func (q *Query) TypeNames() []string { return slices.Clone(q.typeNames) }

// Filter returns the per-record filter, or nil.
func (q *Query) Filter() Filter { return q.filter }

// SortBy returns the sort keys.
func (q *Query) SortBy() []SortKey { return slices.Clone(q.sortBy) }

// CRS returns the query CRS, or "" for the store's native CRS.
func (q *Query) CRS() string { return q.crs }

// MaxRecords returns the record cap, or Unbounded.
func (q *Query) MaxRecords() int { return q.maxRecords }

// Hint returns the value stored under key.
func (q *Query) Hint(key string) (any, bool) {
	v, ok := q.hints[key]
	return v, ok
}

// Hints returns a copy of all hints.
func (q *Query) Hints() map[string]any { return maps.Clone(q.hints) }

// LooseBBox returns the loose bounding box hint.
func (q *Query) LooseBBox() (Envelope, bool) {
	v, ok := q.hints[HintLooseBBox].(Envelope)
	if !ok {
		return Envelope{}, false
	}
	return q.withQueryCRS(v), true
}

// Scale returns the scale hint, or 0.
func (q *Query) Scale() float64 {
	v, _ := q.hints[HintScale].(float64)
	return v
}

// Resolution returns the resolution hint, or 0.
func (q *Query) Resolution() float64 {
	v, _ := q.hints[HintResolution].(float64)
	return v
}

// GeometriesSuppressed reports whether geometry decoding is switched off.
func (q *Query) GeometriesSuppressed() bool {
	v, _ := q.hints[HintNoGeometries].(bool)
	return v
}

// Properties returns the attribute projection, or nil for all attributes.
func (q *Query) Properties() []string {
	v, _ := q.hints[HintProperties].([]string)
	return slices.Clone(v)
}

func (q *Query) eager() bool {
	v, _ := q.hints[HintEagerEvaluate].(bool)
	return v || len(q.sortBy) > 0
}

// PrefilterEnvelope returns the envelope that selects index candidates: the
// loose bbox hint when set, otherwise the envelope of a spatial predicate
// on geometryProperty at the root of the filter. Predicates nested in
// boolean operators are not considered.
func (q *Query) PrefilterEnvelope(geometryProperty string) (Envelope, bool) {
	if env, ok := q.LooseBBox(); ok {
		return env, true
	}
	sp, ok := q.filter.(SpatialPredicate)
	if !ok {
		return Envelope{}, false
	}
	prop, env := sp.SpatialExtent()
	if prop != "" && prop != geometryProperty {
		return Envelope{}, false
	}
	return q.withQueryCRS(env), true
}

func (q *Query) withQueryCRS(env Envelope) Envelope {
	if env.CRS == "" {
		env.CRS = q.crs
	}
	return env
}
