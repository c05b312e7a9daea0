package shapestore

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dhconnelly/rtreego"
)

// minExtent keeps point-sized and line-sized extents indexable; the
// R-tree rejects rectangles with a zero side.
const minExtent = 0.0001

// Catalog indexes the extents of every shapefile under a directory so the
// files covering an area can be found without opening all of them.
//
// Example:
//
//	cat, errs := shapestore.BuildCatalog("/data/shapes", shapestore.DefaultCatalogOptions())
//	for _, err := range errs {
//	    log.Printf("skipped: %v", err)
//	}
//	defer cat.Close()
//
//	view := shapestore.NewEnvelope(-122.5, 37.5, -122.0, 38.0, shapestore.CRS84)
//	for _, entry := range cat.Search(view) {
//	    store, err := cat.Open(entry.Name)
//	    // query store
//	}
type Catalog struct {
	crs     string
	entries []CatalogEntry
	byName  map[string]int
	rtree   *rtreego.Rtree
	cache   *StoreCache
	opts    Options
}

// CatalogEntry describes one shapefile of a catalog.
type CatalogEntry struct {
	Name      string   // feature type name
	Path      string   // geometry file path
	CRS       string   // native CRS of the store
	Envelope  Envelope // extent in the catalog CRS; empty if unknown
	Native    Envelope // extent in the store's CRS
	ShapeType ShapeType
	Records   int
	Fields    int // attribute columns
}

// Bounds implements rtreego.Spatial.
func (e CatalogEntry) Bounds() rtreego.Rect {
	return rectOf(e.Envelope)
}

func rectOf(env Envelope) rtreego.Rect {
	rect, _ := rtreego.NewRect(
		rtreego.Point{env.MinX, env.MinY},
		[]float64{max(env.Width(), minExtent), max(env.Height(), minExtent)},
	)
	return rect
}

// CatalogOptions configures BuildCatalog.
type CatalogOptions struct {
	// CRS of catalog extents and search envelopes. Store extents are
	// reprojected into it. Empty means CRS:84.
	CRS string

	// MaxOpen bounds the stores kept open by Catalog.Open.
	MaxOpen int

	Store Options
	Load  LoadOptions
}

// DefaultCatalogOptions returns the default catalog configuration.
func DefaultCatalogOptions() CatalogOptions {
	return CatalogOptions{
		CRS:     CRS84,
		MaxOpen: 16,
		Store:   DefaultOptions(),
		Load:    DefaultLoadOptions(),
	}
}

// FindShapefiles returns the geometry files under root in lexical order.
func FindShapefiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".shp") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}
	return paths, nil
}

// BuildCatalog opens every shapefile under root, records its extent and
// closes it again. Side-car indexes are built on the way, so later opens
// are cheap. Files that fail to open are reported in the returned errors
// when opts.Load.SkipErrors is set.
func BuildCatalog(root string, opts CatalogOptions) (*Catalog, []error) {
	if opts.CRS == "" {
		opts.CRS = CRS84
	}
	opts.Store = opts.Store.withDefaults()

	paths, err := FindShapefiles(root)
	if err != nil {
		return nil, []error{err}
	}
	if len(paths) == 0 {
		return nil, []error{fmt.Errorf("no shapefiles found in %s: %w", root, ErrNotFound)}
	}

	stores, errs := OpenStores(paths, opts.Store, opts.Load)
	if len(stores) == 0 {
		if len(errs) == 0 {
			errs = []error{errors.New("no stores could be opened")}
		}
		return nil, errs
	}

	c := &Catalog{
		crs:    NormalizeCRS(opts.CRS),
		byName: make(map[string]int, len(stores)),
		rtree:  rtreego.NewTree(2, 25, 50),
		cache:  NewStoreCache(opts.MaxOpen),
		opts:   opts.Store,
	}
	for _, s := range stores {
		entry, err := c.describe(s)
		s.Close()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Path(), err))
			continue
		}
		c.add(entry)
	}
	return c, errs
}

func (c *Catalog) describe(s *Store) (CatalogEntry, error) {
	native, err := s.Envelope()
	if err != nil {
		return CatalogEntry{}, err
	}
	schema, err := s.Schema()
	if err != nil {
		return CatalogEntry{}, err
	}
	n, err := s.Len()
	if err != nil {
		return CatalogEntry{}, err
	}
	shapeType, err := s.ShapeType()
	if err != nil {
		return CatalogEntry{}, err
	}

	entry := CatalogEntry{
		Name:      s.TypeName(),
		Path:      s.Path(),
		CRS:       s.CRS(),
		Native:    native,
		Envelope:  EmptyEnvelope(c.crs),
		ShapeType: shapeType,
		Records:   n,
		Fields:    len(schema.AttributeFields()),
	}
	if !native.IsEmpty() {
		env, err := c.opts.Transformer.Reproject(native, c.crs)
		if err != nil {
			s.log.Warn("extent not reprojected, store not searchable", "error", err)
		} else {
			entry.Envelope = env
		}
	}
	return entry, nil
}

// add registers entry. A name already taken gets a numeric suffix.
func (c *Catalog) add(entry CatalogEntry) {
	name := entry.Name
	for i := 2; ; i++ {
		if _, taken := c.byName[name]; !taken {
			break
		}
		name = fmt.Sprintf("%s_%d", entry.Name, i)
	}
	entry.Name = name
	c.byName[name] = len(c.entries)
	c.entries = append(c.entries, entry)
	if !entry.Envelope.IsEmpty() {
		c.rtree.Insert(entry)
	}
}

// CRS returns the CRS of catalog extents.
func (c *Catalog) CRS() string { return c.crs }

// Len returns the number of catalogued stores.
func (c *Catalog) Len() int { return len(c.entries) }

// Entries returns every entry in discovery order.
func (c *Catalog) Entries() []CatalogEntry { return slices.Clone(c.entries) }

// Entry returns the entry called name.
func (c *Catalog) Entry(name string) (CatalogEntry, bool) {
	i, ok := c.byName[name]
	if !ok {
		return CatalogEntry{}, false
	}
	return c.entries[i], true
}

// Bounds returns the union of all catalogued extents.
func (c *Catalog) Bounds() Envelope {
	out := EmptyEnvelope(c.crs)
	for _, e := range c.entries {
		out = out.Union(e.Envelope)
	}
	return out
}

// Search returns the entries whose extent intersects env, ordered by name.
// An env in another CRS is reprojected first; if that fails nothing
// matches.
func (c *Catalog) Search(env Envelope) []CatalogEntry {
	if env.IsEmpty() {
		return nil
	}
	if env.CRS != "" && !SameCRS(env.CRS, c.crs) {
		var err error
		if env, err = c.opts.Transformer.Reproject(env, c.crs); err != nil {
			c.opts.Logger.Warn("catalog search envelope not reprojected", "error", err)
			return nil
		}
	}

	var out []CatalogEntry
	for _, sp := range c.rtree.SearchIntersect(rectOf(env)) {
		entry := sp.(CatalogEntry)
		if entry.Envelope.Intersects(env) {
			out = append(out, entry)
		}
	}
	slices.SortFunc(out, func(a, b CatalogEntry) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Open returns the store called name, opening it through the catalog's
// store cache.
func (c *Catalog) Open(name string) (*Store, error) {
	entry, ok := c.Entry(name)
	if !ok {
		return nil, fmt.Errorf("catalog entry %q: %w", name, ErrNotFound)
	}
	return c.cache.Get(name, func() (*Store, error) {
		opts := c.opts
		opts.TypeName = entry.Name
		return Open(entry.Path, opts)
	})
}

// CacheStats returns the statistics of the catalog's store cache.
func (c *Catalog) CacheStats() CacheStats { return c.cache.Stats() }

// Close closes every store opened through the catalog.
func (c *Catalog) Close() error {
	c.cache.Clear()
	return nil
}
