package shapestore

import (
	"context"
	"errors"
	"slices"

	"github.com/beetlebugorg/shapestore/internal/storeerr"
)

// plan is a query resolved against one generation: the candidate ids to
// read and the filter localized to the store's CRS.
type plan struct {
	query      *Query
	candidates []int
	filter     Filter
	properties []string
}

func (s *Store) plan(gen *generation, q *Query) *plan {
	p := &plan{
		query:      q,
		filter:     s.localize(q.Filter(), q.CRS()),
		properties: q.Properties(),
	}
	p.candidates = s.candidates(gen, q)
	return p
}

// candidates selects the ids to read. A loose bbox or a root spatial
// predicate goes through the index; a root id filter names its ids
// directly; anything else scans every record.
func (s *Store) candidates(gen *generation, q *Query) []int {
	if env, ok := q.PrefilterEnvelope(GeometryProperty); ok {
		native, err := s.toNative(env)
		if err == nil {
			return gen.index.Search(native.Bound())
		}
		s.log.Warn("prefilter envelope not reprojected, scanning all records",
			"envelope", env.String(), "error", err)
	} else if f, ok := q.Filter().(*IDFilter); ok {
		n := gen.Len()
		ids := f.IDs()
		end, _ := slices.BinarySearch(ids, n+1)
		return ids[:end]
	}

	ids := make([]int, gen.Len())
	for i := range ids {
		ids[i] = i + 1
	}
	return ids
}

func (s *Store) toNative(env Envelope) (Envelope, error) {
	if env.CRS == "" || SameCRS(env.CRS, s.crs) {
		return env.WithCRS(s.crs), nil
	}
	return s.opts.Transformer.Reproject(env, s.crs)
}

// localize rewrites bbox predicates into the store's CRS. Predicates whose
// envelope cannot be reprojected are kept as they are and fail per record.
func (s *Store) localize(f Filter, queryCRS string) Filter {
	switch t := f.(type) {
	case *BBoxFilter:
		env := t.Envelope
		if env.CRS == "" {
			env.CRS = queryCRS
		}
		native, err := s.toNative(env)
		if err != nil {
			s.log.Warn("bbox filter not reprojected", "envelope", env.String(), "error", err)
			return &BBoxFilter{Property: t.Property, Envelope: env}
		}
		return &BBoxFilter{Property: t.Property, Envelope: native}
	case *AndFilter:
		return And(s.localizeAll(t.Operands, queryCRS)...)
	case *OrFilter:
		return Or(s.localizeAll(t.Operands, queryCRS)...)
	case *NotFilter:
		return Not(s.localize(t.Operand, queryCRS))
	}
	return f
}

func (s *Store) localizeAll(fs []Filter, queryCRS string) []Filter {
	out := make([]Filter, len(fs))
	for i, f := range fs {
		out[i] = s.localize(f, queryCRS)
	}
	return out
}

// materialize reads one record and applies the plan's filter. It returns
// false for deleted rows and for records the filter rejects.
func (s *Store) materialize(gen *generation, p *plan, id int) (*Record, bool, error) {
	bound, hasShape, err := gen.geom.v.Envelope(id)
	if err != nil {
		return nil, false, err
	}

	rec := &Record{ID: id, TypeName: s.typeName, Envelope: EmptyEnvelope(s.crs)}
	if hasShape {
		rec.Envelope = EnvelopeFromBound(bound, s.crs)
	}

	rec.Attributes = map[string]any{}
	if gen.attrs != nil && id <= gen.attrs.v.Len() {
		values, ok, err := gen.attrs.v.ReadRecord(id)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
		if p.properties != nil {
			for _, name := range p.properties {
				if v, ok := values[name]; ok {
					rec.Attributes[name] = v
				}
			}
		} else {
			rec.Attributes = values
		}
	}

	if hasShape && !p.query.GeometriesSuppressed() {
		rec.Geometry, err = gen.geom.v.ReadGeometry(id)
		if err != nil {
			return nil, false, err
		}
	}

	if p.filter != nil {
		ok, err := p.filter.Evaluate(rec)
		if err != nil || !ok {
			return nil, false, err
		}
	}
	return rec, true, nil
}

// visit materializes the candidates in order and hands survivors to fn
// until fn returns false. Records that fail to decode are logged and
// skipped.
func (s *Store) visit(ctx context.Context, gen *generation, p *plan, fn func(*Record) bool) error {
	for i, id := range p.candidates {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := s.opts.Pool.throttle(ctx); err != nil {
			return err
		}
		rec, ok, err := s.materialize(gen, p, id)
		if err != nil {
			if errors.Is(err, storeerr.ErrClosed) {
				return err
			}
			s.metrics.Skipped()
			s.log.Warn("record skipped", "id", id, "error", err)
			continue
		}
		if !ok {
			continue
		}
		if !fn(rec) {
			return nil
		}
	}
	return nil
}

// evaluate computes the whole result in memory, sorted and capped.
func (s *Store) evaluate(ctx context.Context, gen *generation, p *plan) ([]*Record, error) {
	limit := p.query.MaxRecords()
	sorted := len(p.query.SortBy()) > 0
	var out []*Record
	err := s.visit(ctx, gen, p, func(r *Record) bool {
		out = append(out, r)
		return sorted || limit == Unbounded || len(out) < limit
	})
	if err != nil {
		return nil, err
	}
	if sorted {
		sortRecords(out, p.query.SortBy())
	}
	if limit != Unbounded && len(out) > limit {
		clear(out[limit:])
		out = out[:limit]
	}
	for range out {
		s.metrics.Emitted()
	}
	return out, nil
}

// produce streams the result through emit.
func (s *Store) produce(ctx context.Context, gen *generation, p *plan, emit func(*Record) bool) error {
	limit := p.query.MaxRecords()
	if limit == 0 {
		return nil
	}
	n := 0
	err := s.visit(ctx, gen, p, func(r *Record) bool {
		if !emit(r) {
			return false
		}
		s.metrics.Emitted()
		n++
		return limit == Unbounded || n < limit
	})
	if err != nil {
		return err
	}
	return ctx.Err()
}
