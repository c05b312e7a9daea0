package shapestore

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// Envelope is an axis-aligned bounding box in a coordinate reference system.
//
// An envelope with Min greater than Max on either axis is empty and
// intersects nothing. Use NewEnvelope to build one from corner coordinates
// in any order, and EmptyEnvelope for the empty value.
//
// Example:
//
//	viewport := shapestore.NewEnvelope(-122.5, 37.5, -122.0, 38.0, "EPSG:4326")
//	extent, err := store.Envelope()
//	if err == nil && viewport.Intersects(extent) {
//	    // query the store
//	}
type Envelope struct {
	MinX, MinY float64
	MaxX, MaxY float64
	CRS        string // empty means the store's native CRS
}

// NewEnvelope returns the envelope spanning both corners.
func NewEnvelope(x1, y1, x2, y2 float64, crs string) Envelope {
	return Envelope{
		MinX: math.Min(x1, x2), MinY: math.Min(y1, y2),
		MaxX: math.Max(x1, x2), MaxY: math.Max(y1, y2),
		CRS: crs,
	}
}

// EmptyEnvelope returns an envelope that intersects nothing.
func EmptyEnvelope(crs string) Envelope {
	return Envelope{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
		CRS: crs,
	}
}

// EnvelopeFromBound converts a planar bound.
func EnvelopeFromBound(b orb.Bound, crs string) Envelope {
	return Envelope{MinX: b.Min[0], MinY: b.Min[1], MaxX: b.Max[0], MaxY: b.Max[1], CRS: crs}
}

// Bound returns the planar bound of e.
func (e Envelope) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{e.MinX, e.MinY}, Max: orb.Point{e.MaxX, e.MaxY}}
}

// IsEmpty reports whether e covers no area and no point. NaN coordinates
// make an envelope empty.
func (e Envelope) IsEmpty() bool {
	return !(e.MinX <= e.MaxX && e.MinY <= e.MaxY)
}

// Width returns the extent along x, or 0 for an empty envelope.
func (e Envelope) Width() float64 {
	if e.IsEmpty() {
		return 0
	}
	return e.MaxX - e.MinX
}

// Height returns the extent along y, or 0 for an empty envelope.
func (e Envelope) Height() float64 {
	if e.IsEmpty() {
		return 0
	}
	return e.MaxY - e.MinY
}

// Contains reports whether the point (x, y) lies within e, edges included.
func (e Envelope) Contains(x, y float64) bool {
	return x >= e.MinX && x <= e.MaxX && y >= e.MinY && y <= e.MaxY
}

// Covers reports whether o lies entirely within e.
func (e Envelope) Covers(o Envelope) bool {
	if e.IsEmpty() || o.IsEmpty() {
		return false
	}
	return o.MinX >= e.MinX && o.MaxX <= e.MaxX && o.MinY >= e.MinY && o.MaxY <= e.MaxY
}

// Intersects reports whether e and o share at least one point. Touching
// edges intersect; empty envelopes intersect nothing. CRS is not compared.
func (e Envelope) Intersects(o Envelope) bool {
	if e.IsEmpty() || o.IsEmpty() {
		return false
	}
	return !(o.MaxX < e.MinX || o.MinX > e.MaxX || o.MaxY < e.MinY || o.MinY > e.MaxY)
}

// Union returns the smallest envelope covering e and o, in e's CRS.
func (e Envelope) Union(o Envelope) Envelope {
	switch {
	case o.IsEmpty():
		return e
	case e.IsEmpty():
		o.CRS = e.CRS
		return o
	}
	return Envelope{
		MinX: math.Min(e.MinX, o.MinX), MinY: math.Min(e.MinY, o.MinY),
		MaxX: math.Max(e.MaxX, o.MaxX), MaxY: math.Max(e.MaxY, o.MaxY),
		CRS: e.CRS,
	}
}

// Expand returns e grown by margin on every side.
func (e Envelope) Expand(margin float64) Envelope {
	if e.IsEmpty() {
		return e
	}
	return Envelope{
		MinX: e.MinX - margin, MinY: e.MinY - margin,
		MaxX: e.MaxX + margin, MaxY: e.MaxY + margin,
		CRS: e.CRS,
	}
}

// WithCRS returns e labelled with crs. Coordinates are not transformed.
func (e Envelope) WithCRS(crs string) Envelope {
	e.CRS = crs
	return e
}

func (e Envelope) String() string {
	if e.IsEmpty() {
		return "EMPTY"
	}
	if e.CRS == "" {
		return fmt.Sprintf("(%g %g, %g %g)", e.MinX, e.MinY, e.MaxX, e.MaxY)
	}
	return fmt.Sprintf("(%g %g, %g %g) %s", e.MinX, e.MinY, e.MaxX, e.MaxY, e.CRS)
}

// ParseBBox parses "minx,miny,maxx,maxy".
func ParseBBox(s, crs string) (Envelope, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Envelope{}, fmt.Errorf("parse bbox %q: want minx,miny,maxx,maxy", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Envelope{}, fmt.Errorf("parse bbox %q: %w", s, err)
		}
		v[i] = f
	}
	return NewEnvelope(v[0], v[1], v[2], v[3], crs), nil
}
