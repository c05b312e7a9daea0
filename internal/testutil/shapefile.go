// Package testutil writes small shapefiles for tests.
//
// The encoders produce byte-exact .shp and .dbf images so readers, the
// index and the store can be exercised against real files in t.TempDir().
package testutil

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// Shape type codes used by the encoders.
const (
	CodeNull       int32 = 0
	CodePoint      int32 = 1
	CodePolyLine   int32 = 3
	CodePolygon    int32 = 5
	CodeMultiPoint int32 = 8
	CodePointZ     int32 = 11
	CodePolygonZ   int32 = 15
	CodePointM     int32 = 21
	CodePolyLineM  int32 = 23
)

// Shape is one record to encode. Points use a single part with one vertex.
type Shape struct {
	Code  int32
	Parts [][][2]float64
	Z     []float64
	M     []float64
}

// Null returns a null shape record.
func Null() Shape { return Shape{Code: CodeNull} }

// Point returns a 2D point record.
func Point(x, y float64) Shape {
	return Shape{Code: CodePoint, Parts: [][][2]float64{{{x, y}}}}
}

// Box returns a polygon covering the rectangle, wound clockwise.
func Box(minX, minY, maxX, maxY float64) Shape {
	return Shape{Code: CodePolygon, Parts: [][][2]float64{{
		{minX, minY}, {minX, maxY}, {maxX, maxY}, {maxX, minY}, {minX, minY},
	}}}
}

// Polygon returns a polygon record from rings given as written.
func Polygon(rings ...[][2]float64) Shape {
	return Shape{Code: CodePolygon, Parts: rings}
}

// PolyLine returns a polyline record.
func PolyLine(parts ...[][2]float64) Shape {
	return Shape{Code: CodePolyLine, Parts: parts}
}

// MultiPoint returns a multipoint record.
func MultiPoint(pts ...[2]float64) Shape {
	return Shape{Code: CodeMultiPoint, Parts: [][][2]float64{pts}}
}

func (s Shape) vertices() [][2]float64 {
	var out [][2]float64
	for _, p := range s.Parts {
		out = append(out, p...)
	}
	return out
}

func (s Shape) bound() (minX, minY, maxX, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, v := range s.vertices() {
		minX, maxX = math.Min(minX, v[0]), math.Max(maxX, v[0])
		minY, maxY = math.Min(minY, v[1]), math.Max(maxY, v[1])
	}
	return
}

type leBuf struct{ bytes.Buffer }

func (b *leBuf) i32(v int32)   { _ = binary.Write(&b.Buffer, binary.LittleEndian, v) }
func (b *leBuf) f64(v float64) { _ = binary.Write(&b.Buffer, binary.LittleEndian, v) }

func encodeContent(s Shape) []byte {
	var b leBuf
	b.i32(s.Code)
	verts := s.vertices()
	switch s.Code {
	case CodeNull:
	case CodePoint, CodePointZ, CodePointM:
		b.f64(verts[0][0])
		b.f64(verts[0][1])
		if s.Code == CodePointZ {
			b.f64(s.Z[0])
		}
		if len(s.M) > 0 {
			b.f64(s.M[0])
		}
	case CodeMultiPoint:
		minX, minY, maxX, maxY := s.bound()
		b.f64(minX)
		b.f64(minY)
		b.f64(maxX)
		b.f64(maxY)
		b.i32(int32(len(verts)))
		for _, v := range verts {
			b.f64(v[0])
			b.f64(v[1])
		}
	default:
		minX, minY, maxX, maxY := s.bound()
		b.f64(minX)
		b.f64(minY)
		b.f64(maxX)
		b.f64(maxY)
		b.i32(int32(len(s.Parts)))
		b.i32(int32(len(verts)))
		start := 0
		for _, p := range s.Parts {
			b.i32(int32(start))
			start += len(p)
		}
		for _, v := range verts {
			b.f64(v[0])
			b.f64(v[1])
		}
		if len(s.Z) > 0 {
			writeRange(&b, s.Z)
		}
		if len(s.M) > 0 {
			writeRange(&b, s.M)
		}
	}
	return b.Bytes()
}

func writeRange(b *leBuf, vs []float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range vs {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	b.f64(lo)
	b.f64(hi)
	for _, v := range vs {
		b.f64(v)
	}
}

// EncodeSHP returns the geometry file image for shapes with header type fileType.
func EncodeSHP(fileType int32, shapes []Shape) []byte {
	var body bytes.Buffer
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for i, s := range shapes {
		content := encodeContent(s)
		_ = binary.Write(&body, binary.BigEndian, int32(i+1))
		_ = binary.Write(&body, binary.BigEndian, int32(len(content)/2))
		body.Write(content)
		if s.Code != CodeNull {
			x0, y0, x1, y1 := s.bound()
			minX, minY = math.Min(minX, x0), math.Min(minY, y0)
			maxX, maxY = math.Max(maxX, x1), math.Max(maxY, y1)
		}
	}
	if math.IsInf(minX, 1) {
		minX, minY, maxX, maxY = 0, 0, 0, 0
	}

	header := make([]byte, 100)
	binary.BigEndian.PutUint32(header[0:], 9994)
	binary.BigEndian.PutUint32(header[24:], uint32((100+body.Len())/2))
	binary.LittleEndian.PutUint32(header[28:], 1000)
	binary.LittleEndian.PutUint32(header[32:], uint32(fileType))
	for i, v := range []float64{minX, minY, maxX, maxY} {
		binary.LittleEndian.PutUint64(header[36+8*i:], math.Float64bits(v))
	}
	return append(header, body.Bytes()...)
}

// Field describes one attribute column.
type Field struct {
	Name     string
	Type     byte
	Length   int
	Decimals int
}

// Row is one attribute record: formatted column values in field order.
// Deleted rows carry the deletion marker.
type Row struct {
	Values  []string
	Deleted bool
}

// EncodeDBF returns the attribute file image. Values are written as given,
// left-aligned for character fields and right-aligned otherwise.
func EncodeDBF(fields []Field, rows []Row, languageDriver byte) []byte {
	recLen := 1
	for _, f := range fields {
		recLen += f.Length
	}
	headerLen := 32 + 32*len(fields) + 1

	var b bytes.Buffer
	header := make([]byte, 32)
	header[0] = 0x03
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	header[1], header[2], header[3] = byte(now.Year()-1900), byte(now.Month()), byte(now.Day())
	binary.LittleEndian.PutUint32(header[4:], uint32(len(rows)))
	binary.LittleEndian.PutUint16(header[8:], uint16(headerLen))
	binary.LittleEndian.PutUint16(header[10:], uint16(recLen))
	header[29] = languageDriver
	b.Write(header)

	for _, f := range fields {
		desc := make([]byte, 32)
		copy(desc[0:11], f.Name)
		desc[11] = f.Type
		desc[16] = byte(f.Length)
		desc[17] = byte(f.Decimals)
		b.Write(desc)
	}
	b.WriteByte(0x0D)

	for _, r := range rows {
		if r.Deleted {
			b.WriteByte('*')
		} else {
			b.WriteByte(' ')
		}
		for i, f := range fields {
			v := ""
			if i < len(r.Values) {
				v = r.Values[i]
			}
			if len(v) > f.Length {
				v = v[:f.Length]
			}
			pad := strings.Repeat(" ", f.Length-len(v))
			if f.Type == 'C' {
				b.WriteString(v + pad)
			} else {
				b.WriteString(pad + v)
			}
		}
	}
	b.WriteByte(0x1A)
	return b.Bytes()
}

// Values is a convenience for building rows.
func Values(vs ...string) Row { return Row{Values: vs} }

// Shapefile bundles the inputs for WriteShapefile.
type Shapefile struct {
	Type   int32
	Shapes []Shape
	Fields []Field
	Rows   []Row
	Prj    string
}

// WriteShapefile writes base.shp (and base.dbf and base.prj when fields or
// a projection are given) into dir and returns the .shp path.
func WriteShapefile(tb testing.TB, dir, base string, sf Shapefile) string {
	tb.Helper()
	shpPath := filepath.Join(dir, base+".shp")
	WriteFile(tb, shpPath, EncodeSHP(sf.Type, sf.Shapes))
	if sf.Fields != nil {
		WriteFile(tb, filepath.Join(dir, base+".dbf"), EncodeDBF(sf.Fields, sf.Rows, 0x57))
	}
	if sf.Prj != "" {
		WriteFile(tb, filepath.Join(dir, base+".prj"), []byte(sf.Prj))
	}
	return shpPath
}

// WriteFile writes data to path, failing the test on error.
func WriteFile(tb testing.TB, path string, data []byte) {
	tb.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		tb.Fatalf("write %s: %v", path, err)
	}
}

// Touch moves the modification time of path forward by d so staleness
// checks see a change even on coarse-grained filesystems.
func Touch(tb testing.TB, path string, d time.Duration) {
	tb.Helper()
	info, err := os.Stat(path)
	if err != nil {
		tb.Fatalf("stat %s: %v", path, err)
	}
	mt := info.ModTime().Add(d)
	if err := os.Chtimes(path, mt, mt); err != nil {
		tb.Fatalf("chtimes %s: %v", path, err)
	}
}
