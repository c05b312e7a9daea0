package shapestore

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sync/atomic"
	"time"

	"github.com/beetlebugorg/shapestore/internal/dbf"
	"github.com/beetlebugorg/shapestore/internal/metrics"
	"github.com/beetlebugorg/shapestore/internal/rtree"
	"github.com/beetlebugorg/shapestore/internal/shp"
	"github.com/beetlebugorg/shapestore/internal/storeerr"
)

// shared is a reference-counted reader. The reader is closed when the last
// reference is released.
type shared[T io.Closer] struct {
	v    T
	refs atomic.Int64
}

func newShared[T io.Closer](v T) *shared[T] {
	s := &shared[T]{v: v}
	s.refs.Store(1)
	return s
}

func (s *shared[T]) retain() *shared[T] {
	s.refs.Add(1)
	return s
}

func (s *shared[T]) release() {
	if s.refs.Add(-1) == 0 {
		_ = s.v.Close()
	}
}

// attrState records why a generation has no attribute reader.
type attrState int

const (
	attrPresent attrState = iota
	attrMissing
	attrUnreadable
)

// generation is one on-disk state of the file pair: the open readers, the
// index built from the geometry file and the schema of the attribute file.
// It is never modified after load returns it. The store holds one
// reference and every open result set holds another.
type generation struct {
	seq      uint64
	geom     *shared[*shp.Reader]
	attrs    *shared[*dbf.Reader] // nil without attributes
	attrInfo attrState
	index    *rtree.Tree
	schema   FieldSchema
	shpStamp rtree.Stamp
	dbfStamp rtree.Stamp
	refs     atomic.Int64
}

func (g *generation) retain() *generation {
	g.refs.Add(1)
	return g
}

func (g *generation) release() {
	if g.refs.Add(-1) != 0 {
		return
	}
	g.geom.release()
	if g.attrs != nil {
		g.attrs.release()
	}
}

// Len returns the number of records in the geometry file.
func (g *generation) Len() int { return g.geom.v.Len() }

// stale reports whether either file differs from the state g was loaded
// from.
func (g *generation) stale(shpPath, dbfPath string) bool {
	st, err := rtree.StampOf(shpPath)
	if err != nil || !st.Equal(g.shpStamp) {
		return true
	}
	st, err = rtree.StampOf(dbfPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return g.attrInfo != attrMissing
	case err != nil:
		return g.attrInfo != attrUnreadable
	case g.attrInfo == attrMissing:
		return true
	}
	return !st.Equal(g.dbfStamp)
}

// load builds the generation for the files as they are now. Readers and
// the index of prev are reused for files that have not changed unless
// force is set.
func (s *Store) load(prev *generation, force bool) (*generation, error) {
	next := &generation{}
	next.refs.Store(1)

	shpStamp, err := rtree.StampOf(s.shpPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat geometry file: %w: %w", storeerr.ErrNotFound, err)
		}
		return nil, fmt.Errorf("stat geometry file: %w", err)
	}
	next.shpStamp = shpStamp

	if prev != nil && !force && prev.shpStamp.Equal(shpStamp) {
		next.geom = prev.geom.retain()
		next.index = prev.index
	} else {
		r, err := shp.Open(s.shpPath)
		if err != nil {
			return nil, err
		}
		next.geom = newShared(r)
		next.index, err = s.loadIndex(r, shpStamp, force || (prev == nil && s.opts.ForceRebuild))
		if err != nil {
			next.geom.release()
			return nil, err
		}
	}

	if err := s.loadAttributes(prev, next, force); err != nil {
		next.geom.release()
		return nil, err
	}
	return next, nil
}

func (s *Store) loadAttributes(prev, next *generation, force bool) error {
	stamp, err := rtree.StampOf(s.dbfPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		next.attrInfo = attrMissing
	case err != nil:
		s.log.Warn("attribute file unreadable, serving geometries only", "path", s.dbfPath, "error", err)
		next.attrInfo = attrUnreadable
	case prev != nil && !force && prev.attrs != nil && prev.dbfStamp.Equal(stamp):
		next.attrs = prev.attrs.retain()
		next.dbfStamp = stamp
		next.schema = prev.schema
		return nil
	default:
		r, err := dbf.Open(s.dbfPath, dbf.Options{Encoding: s.opts.Encoding})
		switch {
		case err == nil:
			next.attrs = newShared(r)
			next.dbfStamp = stamp
			next.schema = schemaFromDBF(r.Fields())
			if n := next.Len(); r.Len() != n {
				s.log.Warn("attribute and geometry record counts differ",
					"attributes", r.Len(), "geometries", n)
			}
			return nil
		case errors.Is(err, storeerr.ErrNotFound):
			next.attrInfo = attrMissing
		case errors.Is(err, storeerr.ErrMalformedHeader), errors.Is(err, storeerr.ErrUnknownEncoding):
			return err
		default:
			s.log.Warn("attribute file unreadable, serving geometries only", "path", s.dbfPath, "error", err)
			next.attrInfo = attrUnreadable
			next.dbfStamp = stamp
		}
	}

	if next.attrInfo == attrMissing && (prev == nil || prev.attrInfo != attrMissing) {
		s.log.Info("no attribute file, serving geometries only", "path", s.dbfPath)
	}
	next.schema = geometryOnlySchema()
	return nil
}

// loadIndex reads the side-car index when it was built from the current
// geometry file, and otherwise rebuilds it from a full envelope scan.
func (s *Store) loadIndex(r *shp.Reader, stamp rtree.Stamp, force bool) (*rtree.Tree, error) {
	if !force {
		tree, st, err := rtree.ReadFile(s.indexPath)
		switch {
		case err == nil && st.Equal(stamp):
			s.metrics.IndexBuilt(metrics.SourceSidecar)
			s.log.Debug("index loaded", "path", s.indexPath, "records", tree.Len())
			return tree, nil
		case err == nil:
			s.log.Info("index out of date, rebuilding", "path", s.indexPath)
		case errors.Is(err, storeerr.ErrNotFound):
		default:
			s.log.Warn("index unreadable, rebuilding", "path", s.indexPath, "error", err)
		}
	}

	start := time.Now()
	scan, err := r.ReadEnvelopes()
	if err != nil {
		return nil, fmt.Errorf("scan envelopes: %w", err)
	}
	entries := make([]rtree.Entry, 0, len(scan))
	var nulls []int
	for _, e := range scan {
		switch {
		case e.Err != nil:
			s.log.Warn("record envelope unreadable, not indexed", "id", e.ID, "error", e.Err)
		case e.Null:
			nulls = append(nulls, e.ID)
		default:
			entries = append(entries, rtree.Entry{ID: e.ID, Bound: e.Bound})
		}
	}
	tree := rtree.Build(entries, nulls, s.opts.Fanout)
	s.metrics.IndexBuilt(metrics.SourceRebuild)
	s.log.Info("index built",
		"records", tree.Len(),
		"nulls", len(nulls),
		"depth", tree.Depth(),
		"duration", time.Since(start))

	if !s.opts.ReadOnly {
		if err := rtree.WriteFile(s.indexPath, tree, s.opts.IndexCompression, stamp); err != nil {
			s.log.Warn("index not saved", "path", s.indexPath, "error", err)
		}
	}
	return tree, nil
}
