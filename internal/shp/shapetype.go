package shp

import "fmt"

// ShapeType is the shape type code stored in the geometry file header and in
// every record. The set is closed: ParseShapeType rejects codes outside it.
type ShapeType int32

// Shape type codes defined by the ESRI Shapefile technical description.
const (
	NullShape   ShapeType = 0
	Point       ShapeType = 1
	PolyLine    ShapeType = 3
	Polygon     ShapeType = 5
	MultiPoint  ShapeType = 8
	PointZ      ShapeType = 11
	PolyLineZ   ShapeType = 13
	PolygonZ    ShapeType = 15
	MultiPointZ ShapeType = 18
	PointM      ShapeType = 21
	PolyLineM   ShapeType = 23
	PolygonM    ShapeType = 25
	MultiPointM ShapeType = 28
	MultiPatch  ShapeType = 31
)

var shapeTypeNames = map[ShapeType]string{
	NullShape:   "Null",
	Point:       "Point",
	PolyLine:    "PolyLine",
	Polygon:     "Polygon",
	MultiPoint:  "MultiPoint",
	PointZ:      "PointZ",
	PolyLineZ:   "PolyLineZ",
	PolygonZ:    "PolygonZ",
	MultiPointZ: "MultiPointZ",
	PointM:      "PointM",
	PolyLineM:   "PolyLineM",
	PolygonM:    "PolygonM",
	MultiPointM: "MultiPointM",
	MultiPatch:  "MultiPatch",
}

// ParseShapeType converts a raw code into a ShapeType.
// Codes outside the format's table fail with *UnsupportedShapeTypeError.
func ParseShapeType(code int32) (ShapeType, error) {
	st := ShapeType(code)
	if _, ok := shapeTypeNames[st]; !ok {
		return 0, &UnsupportedShapeTypeError{Code: code}
	}
	return st, nil
}

func (t ShapeType) String() string {
	if name, ok := shapeTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ShapeType(%d)", int32(t))
}

// Base returns the two-dimensional family of t (PointZ -> Point, PolygonM -> Polygon).
func (t ShapeType) Base() ShapeType {
	switch t {
	case PointZ, PointM:
		return Point
	case PolyLineZ, PolyLineM:
		return PolyLine
	case PolygonZ, PolygonM:
		return Polygon
	case MultiPointZ, MultiPointM:
		return MultiPoint
	}
	return t
}

// HasZ reports whether records of this type carry Z values.
func (t ShapeType) HasZ() bool {
	switch t {
	case PointZ, PolyLineZ, PolygonZ, MultiPointZ, MultiPatch:
		return true
	}
	return false
}

// HasM reports whether records of this type may carry measures.
// Z types carry an optional M block as well.
func (t ShapeType) HasM() bool {
	switch t {
	case PointM, PolyLineM, PolygonM, MultiPointM:
		return true
	}
	return t.HasZ()
}

// Decodable reports whether ReadGeometry can decode records of this type.
func (t ShapeType) Decodable() bool {
	_, known := shapeTypeNames[t]
	return known && t != MultiPatch
}
