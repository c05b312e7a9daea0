package shapestore

import "github.com/beetlebugorg/shapestore/internal/shp"

// Geometry is a decoded record shape. Shape holds an orb.Point,
// orb.MultiPoint, orb.MultiLineString or orb.MultiPolygon; Z and M carry
// per-vertex values for the Z and M shape types.
type Geometry = shp.Geometry

// ShapeType is a geometry file shape type code.
type ShapeType = shp.ShapeType

// Shape types.
const (
	NullShape   = shp.NullShape
	Point       = shp.Point
	PolyLine    = shp.PolyLine
	Polygon     = shp.Polygon
	MultiPoint  = shp.MultiPoint
	PointZ      = shp.PointZ
	PolyLineZ   = shp.PolyLineZ
	PolygonZ    = shp.PolygonZ
	MultiPointZ = shp.MultiPointZ
	PointM      = shp.PointM
	PolyLineM   = shp.PolyLineM
	PolygonM    = shp.PolygonM
	MultiPointM = shp.MultiPointM
	MultiPatch  = shp.MultiPatch
)
