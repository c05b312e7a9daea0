package shp

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/beetlebugorg/shapestore/internal/storeerr"
)

// noDataM is the threshold below which a measure means "no data".
const noDataM = -1e38

// Geometry is a decoded record shape.
//
// Shape holds the planar geometry: orb.Point, orb.MultiPoint,
// orb.MultiLineString or orb.MultiPolygon. Z and M hold per-vertex values
// in file vertex order when the shape type carries them; measures flagged
// as "no data" are NaN.
type Geometry struct {
	Type  ShapeType
	Shape orb.Geometry
	Z     []float64
	M     []float64
}

// Bound returns the planar bounding box of the shape.
func (g *Geometry) Bound() orb.Bound {
	if g == nil || g.Shape == nil {
		return orb.Bound{Min: orb.Point{1, 1}, Max: orb.Point{-1, -1}}
	}
	return g.Shape.Bound()
}

// ReadGeometry decodes record id. A null shape returns a nil geometry and a
// nil error.
func (r *Reader) ReadGeometry(id int) (*Geometry, error) {
	buf, slot, err := r.content(id)
	if err != nil {
		return nil, err
	}
	g, err := decode(buf)
	if err != nil {
		return nil, &RecordError{ID: id, Offset: slot.offset, Err: err}
	}
	return g, nil
}

// cursor walks record content. Any read past the end sets err and returns
// zero values; callers check err once after a block of reads.
type cursor struct {
	buf []byte
	off int
	err error
}

func (c *cursor) need(n int) bool {
	if c.err != nil {
		return false
	}
	if c.off+n > len(c.buf) {
		c.err = fmt.Errorf("%w: need %d bytes at offset %d, record has %d",
			storeerr.ErrCorrupt, n, c.off, len(c.buf))
		return false
	}
	return true
}

func (c *cursor) int32() int32 {
	if !c.need(4) {
		return 0
	}
	v := int32(binary.LittleEndian.Uint32(c.buf[c.off:]))
	c.off += 4
	return v
}

func (c *cursor) float64() float64 {
	if !c.need(8) {
		return 0
	}
	v := math.Float64frombits(binary.LittleEndian.Uint64(c.buf[c.off:]))
	c.off += 8
	return v
}

func (c *cursor) skip(n int) {
	if c.need(n) {
		c.off += n
	}
}

func (c *cursor) remaining() int { return len(c.buf) - c.off }

func (c *cursor) points(n int) []orb.Point {
	if !c.need(n * 16) {
		return nil
	}
	pts := make([]orb.Point, n)
	for i := range pts {
		pts[i] = orb.Point{c.float64(), c.float64()}
	}
	return pts
}

// values reads a range pair followed by n doubles.
func (c *cursor) values(n int) []float64 {
	c.skip(16)
	if !c.need(n * 8) {
		return nil
	}
	vs := make([]float64, n)
	for i := range vs {
		vs[i] = c.float64()
	}
	return vs
}

// measures reads the optional M block. Z types may omit it entirely.
func (c *cursor) measures(n int) []float64 {
	if c.err != nil || c.remaining() < 16+n*8 {
		return nil
	}
	ms := c.values(n)
	for i, m := range ms {
		if m < noDataM {
			ms[i] = math.NaN()
		}
	}
	return ms
}

func decode(buf []byte) (*Geometry, error) {
	c := &cursor{buf: buf}
	st, err := ParseShapeType(c.int32())
	if err != nil {
		return nil, err
	}
	if !st.Decodable() {
		return nil, &UnsupportedShapeTypeError{Code: int32(st)}
	}

	g := &Geometry{Type: st}
	switch st.Base() {
	case NullShape:
		return nil, nil
	case Point:
		p := orb.Point{c.float64(), c.float64()}
		if st.HasZ() {
			g.Z = []float64{c.float64()}
		}
		if st.HasM() && c.remaining() >= 8 {
			// Point records store a bare measure without a range.
			m := c.float64()
			if m < noDataM {
				m = math.NaN()
			}
			g.M = []float64{m}
		}
		g.Shape = p
	case MultiPoint:
		c.skip(32)
		n := int(c.int32())
		if n < 0 || n > c.remaining()/16 {
			return nil, fmt.Errorf("%w: %d points", storeerr.ErrCorrupt, n)
		}
		g.Shape = orb.MultiPoint(c.points(n))
		g.Z, g.M = readZM(c, st, n)
	case PolyLine, Polygon:
		c.skip(32)
		numParts, numPoints := int(c.int32()), int(c.int32())
		if numParts < 0 || numPoints < 0 {
			return nil, fmt.Errorf("%w: %d parts, %d points", storeerr.ErrCorrupt, numParts, numPoints)
		}
		if numParts > c.remaining()/4 || numPoints > (c.remaining()-numParts*4)/16 {
			return nil, fmt.Errorf("%w: %d parts, %d points in %d bytes",
				storeerr.ErrCorrupt, numParts, numPoints, c.remaining())
		}
		parts := make([]int, numParts)
		for i := range parts {
			parts[i] = int(c.int32())
		}
		pts := c.points(numPoints)
		if c.err != nil {
			return nil, c.err
		}
		lines, err := splitParts(parts, pts)
		if err != nil {
			return nil, err
		}
		if st.Base() == PolyLine {
			mls := make(orb.MultiLineString, len(lines))
			for i, l := range lines {
				mls[i] = orb.LineString(l)
			}
			g.Shape = mls
		} else {
			g.Shape = assemblePolygons(lines)
		}
		g.Z, g.M = readZM(c, st, numPoints)
	}
	if c.err != nil {
		return nil, c.err
	}
	return g, nil
}

func readZM(c *cursor, st ShapeType, n int) (z, m []float64) {
	if st.HasZ() {
		z = c.values(n)
	}
	if st.HasM() {
		m = c.measures(n)
	}
	return z, m
}

func splitParts(parts []int, pts []orb.Point) ([][]orb.Point, error) {
	out := make([][]orb.Point, 0, len(parts))
	for i, start := range parts {
		end := len(pts)
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start > end || end > len(pts) {
			return nil, fmt.Errorf("%w: part %d spans [%d, %d) of %d points",
				storeerr.ErrCorrupt, i, start, end, len(pts))
		}
		out = append(out, pts[start:end])
	}
	return out, nil
}

// assemblePolygons groups rings into polygons. Clockwise rings are outer
// boundaries and counter-clockwise rings are holes of the outer ring that
// contains them. Unclosed rings are closed; rings with fewer than four
// points after closing are dropped.
func assemblePolygons(parts [][]orb.Point) orb.MultiPolygon {
	var outers, holes []orb.Ring
	for _, part := range parts {
		ring := orb.Ring(part)
		if len(ring) > 0 && ring[0] != ring[len(ring)-1] {
			ring = append(ring[:len(ring):len(ring)], ring[0])
		}
		if len(ring) < 4 {
			continue
		}
		if ring.Orientation() == orb.CCW {
			holes = append(holes, ring)
		} else {
			outers = append(outers, ring)
		}
	}

	if len(outers) == 0 {
		// Writers that ignore the orientation rule: every ring is a shell.
		mp := make(orb.MultiPolygon, len(holes))
		for i, h := range holes {
			mp[i] = orb.Polygon{h}
		}
		return mp
	}

	mp := make(orb.MultiPolygon, len(outers))
	for i, o := range outers {
		mp[i] = orb.Polygon{o}
	}
	for _, h := range holes {
		owner := -1
		for i := len(outers) - 1; i >= 0; i-- {
			if outers[i].Bound().Contains(h[0]) && planar.RingContains(outers[i], h[0]) {
				owner = i
				break
			}
		}
		if owner < 0 {
			mp = append(mp, orb.Polygon{h})
			continue
		}
		mp[owner] = append(mp[owner], h)
	}
	return mp
}
