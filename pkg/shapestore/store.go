package shapestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/beetlebugorg/shapestore/internal/dbf"
	"github.com/beetlebugorg/shapestore/internal/metrics"
	"github.com/beetlebugorg/shapestore/internal/storeerr"
)

// Store serves the records of one shapefile: a geometry file, an optional
// attribute file and an optional projection file sharing a base name.
//
// Every query first checks whether the files changed on disk. Changed
// readers are reopened and the spatial index is reloaded or rebuilt before
// the query runs, so a query never mixes two states of the files. Result
// sets opened earlier keep reading the state they started with.
//
// A Store is safe for concurrent use.
type Store struct {
	base      string
	shpPath   string
	dbfPath   string
	prjPath   string
	indexPath string
	typeName  string
	crs       string

	opts    Options
	log     *slog.Logger
	metrics *metrics.Collectors

	mu          sync.Mutex
	gen         *generation
	seq         uint64
	unavailable error
	closed      bool
}

// Open opens the shapefile at path, which may name the .shp file or its
// base name without extension. The side-car index is loaded, or built and
// saved when it is missing or out of date.
//
// Errors wrap ErrStoreUnavailable together with the cause, such as
// ErrNotFound or ErrMalformedHeader. An Options.Encoding that names no
// known charset fails with ErrUnknownEncoding.
func Open(path string, opts Options) (*Store, error) {
	opts = opts.withDefaults()
	if opts.Encoding != "" {
		if _, err := dbf.LookupEncoding(opts.Encoding); err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
	}

	base, ext := path, ".shp"
	if e := filepath.Ext(path); strings.EqualFold(e, ".shp") {
		base, ext = strings.TrimSuffix(path, e), e
	}
	sibling := func(suffix string) string {
		if ext == ".SHP" {
			return base + strings.ToUpper(suffix)
		}
		return base + suffix
	}

	s := &Store{
		base:      base,
		shpPath:   base + ext,
		dbfPath:   sibling(".dbf"),
		prjPath:   sibling(".prj"),
		indexPath: opts.IndexPath,
		typeName:  opts.TypeName,
		opts:      opts,
	}
	if s.indexPath == "" {
		s.indexPath = base + ".rtx"
	}
	if s.typeName == "" {
		s.typeName = filepath.Base(base)
	}
	s.log = opts.Logger.With("store", s.typeName)

	if opts.Registerer != nil {
		m, err := metrics.New(opts.Registerer)
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		s.metrics = m
	}

	s.crs = s.resolveCRS()

	gen, err := s.load(nil, false)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w: %w", s.shpPath, storeerr.ErrStoreUnavailable, err)
	}
	s.seq++
	gen.seq = s.seq
	s.gen = gen
	return s, nil
}

func (s *Store) resolveCRS() string {
	if s.opts.CRS != "" {
		return NormalizeCRS(s.opts.CRS)
	}
	code, err := ReadPRJ(s.prjPath)
	switch {
	case err == nil:
		return code
	case errors.Is(err, storeerr.ErrNotFound):
		s.log.Debug("no projection file, using default CRS", "crs", DefaultCRS)
	default:
		s.log.Warn("projection not recognized, using default CRS", "crs", DefaultCRS, "error", err)
	}
	return DefaultCRS
}

// TypeName returns the feature type name served by the store.
func (s *Store) TypeName() string { return s.typeName }

// CRS returns the native coordinate reference system of the records.
func (s *Store) CRS() string { return s.crs }

// Path returns the geometry file path.
func (s *Store) Path() string { return s.shpPath }

// AttributePath returns the attribute file path, whether or not it exists.
func (s *Store) AttributePath() string { return s.dbfPath }

// IndexPath returns the side-car index path.
func (s *Store) IndexPath() string { return s.indexPath }

// Available reports whether the store can serve queries. It turns false
// when a file can no longer be read and stays false until Reload succeeds.
func (s *Store) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.unavailable == nil
}

// Generation returns a number that increases every time the store picks up
// a change to its files.
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// acquire returns the current generation with a reference held for the
// caller, reloading it first when the files changed.
func (s *Store) acquire() (*generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return nil, storeerr.ErrClosed
	case s.unavailable != nil:
		return nil, s.unavailable
	}

	if s.gen.stale(s.shpPath, s.dbfPath) {
		s.log.Debug("files changed, reloading")
		next, err := s.load(s.gen, false)
		if err != nil {
			return nil, s.markUnavailable(err)
		}
		s.swap(next)
	}
	return s.gen.retain(), nil
}

// swap installs next as the current generation. Callers hold s.mu.
func (s *Store) swap(next *generation) {
	s.seq++
	next.seq = s.seq
	if s.gen != nil {
		s.gen.release()
	}
	s.gen = next
	s.metrics.Reloaded()
}

// markUnavailable records an unrecoverable error and drops the store's
// readers. Callers hold s.mu.
func (s *Store) markUnavailable(err error) error {
	s.unavailable = fmt.Errorf("%s: %w: %w", s.shpPath, storeerr.ErrStoreUnavailable, err)
	s.log.Error("store unavailable", "error", err)
	if s.gen != nil {
		s.gen.release()
		s.gen = nil
	}
	return s.unavailable
}

// Reload rereads the files. Unchanged readers are kept unless force is set,
// in which case every file is reopened and the index is rebuilt. A
// successful reload makes an unavailable store available again.
func (s *Store) Reload(ctx context.Context, force bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storeerr.ErrClosed
	}

	next, err := s.load(s.gen, force)
	if err != nil {
		return s.markUnavailable(err)
	}
	if s.unavailable != nil {
		s.log.Info("store available again")
		s.unavailable = nil
	}
	s.swap(next)
	return nil
}

// Close releases the store's files. Result sets that are still open keep
// their files until they are closed. Close is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.gen != nil {
		s.gen.release()
		s.gen = nil
	}
	return nil
}

// Envelope returns the extent of all records in the store's CRS. It is
// empty when the store holds no non-null shapes.
func (s *Store) Envelope() (Envelope, error) {
	gen, err := s.acquire()
	if err != nil {
		return Envelope{}, err
	}
	defer gen.release()
	if gen.index.Len() == 0 {
		return EmptyEnvelope(s.crs), nil
	}
	return EnvelopeFromBound(gen.index.Bound(), s.crs), nil
}

// Schema returns the record fields. Without an attribute file it holds only
// the geometry field.
func (s *Store) Schema() (FieldSchema, error) {
	gen, err := s.acquire()
	if err != nil {
		return FieldSchema{}, err
	}
	defer gen.release()
	return FieldSchema{Fields: slices.Clone(gen.schema.Fields)}, nil
}

// ShapeType returns the shape type declared by the geometry file.
func (s *Store) ShapeType() (ShapeType, error) {
	gen, err := s.acquire()
	if err != nil {
		return NullShape, err
	}
	defer gen.release()
	return gen.geom.v.ShapeType(), nil
}

// Len returns the number of records in the geometry file, null shapes and
// deleted rows included.
func (s *Store) Len() (int, error) {
	gen, err := s.acquire()
	if err != nil {
		return 0, err
	}
	defer gen.release()
	return gen.Len(), nil
}

// Query runs q against the store. Queries that name a type other than the
// store's return an empty result; naming more than one type fails with
// ErrUnsupportedQuery. Queries against an unavailable store fail with
// ErrStoreUnavailable.
//
// Sorted queries, and queries with few index candidates, are evaluated
// before Query returns. Others stream: records are read on a worker of the
// store's pool while the caller consumes them.
func (s *Store) Query(ctx context.Context, q *Query) (ResultSet, error) {
	if q == nil {
		q = NewQuery()
	}
	rs, err := s.query(ctx, q)
	switch {
	case err == nil:
		s.metrics.Query(metrics.ResultOK)
	case errors.Is(err, storeerr.ErrStoreUnavailable):
		s.metrics.Query(metrics.ResultUnavailable)
	default:
		s.metrics.Query(metrics.ResultError)
	}
	return rs, err
}

func (s *Store) query(ctx context.Context, q *Query) (ResultSet, error) {
	names := q.TypeNames()
	if len(names) > 1 {
		return nil, fmt.Errorf("query names %d types: %w", len(names), storeerr.ErrUnsupportedQuery)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	gen, err := s.acquire()
	if err != nil {
		return nil, err
	}
	if len(names) == 1 && !s.matchesType(names[0]) {
		gen.release()
		return newMemoryResult(nil, nil), nil
	}

	plan := s.plan(gen, q)
	if q.eager() || (s.opts.EagerThreshold >= 0 && len(plan.candidates) <= s.opts.EagerThreshold) {
		defer gen.release()
		records, err := s.evaluate(ctx, gen, plan)
		if err != nil {
			return nil, err
		}
		return newMemoryResult(records, nil), nil
	}

	s.metrics.StreamOpened()
	release := func() {
		gen.release()
		s.metrics.StreamClosed()
	}
	produce := func(ctx context.Context, emit func(*Record) bool) error {
		return s.produce(ctx, gen, plan, emit)
	}
	return newStreamResult(ctx, s.opts.Pool, s.opts.QueueSize, s.opts.QueueMinFill, produce, release), nil
}

// matchesType compares a requested type name with the store's, ignoring
// case and any namespace prefix.
func (s *Store) matchesType(name string) bool {
	if i := strings.LastIndexByte(name, ':'); i >= 0 {
		name = name[i+1:]
	}
	return strings.EqualFold(name, s.typeName)
}

// Count returns the number of records q matches.
func (s *Store) Count(ctx context.Context, q *Query) (int, error) {
	if q == nil {
		q = NewQuery()
	}
	cq := *q
	cq.sortBy = nil
	cq.hints = maps.Clone(q.hints)
	if cq.hints == nil {
		cq.hints = map[string]any{}
	}
	if cq.filter == nil {
		cq.hints[HintNoGeometries] = true
	}
	rs, err := s.Query(ctx, &cq)
	if err != nil {
		return 0, err
	}
	defer rs.Close()
	n := 0
	for rs.Next() {
		n++
	}
	return n, rs.Err()
}

// Get returns the record with the given id. Deleted rows fail with
// ErrNotFound and ids outside the file with ErrOutOfRange.
func (s *Store) Get(ctx context.Context, id int) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	gen, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer gen.release()
	if id < 1 || id > gen.Len() {
		return nil, fmt.Errorf("record %d of %d: %w", id, gen.Len(), storeerr.ErrOutOfRange)
	}
	rec, ok, err := s.materialize(gen, &plan{query: NewQuery()}, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("record %d deleted: %w", id, storeerr.ErrNotFound)
	}
	return rec, nil
}
