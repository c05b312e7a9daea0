package shapestore

import (
	"strconv"
	"strings"

	"github.com/beetlebugorg/shapestore/internal/dbf"
)

// GeometryProperty is the name of the geometry field in every schema.
const GeometryProperty = "geometry"

// FieldType identifies the value type of a schema field.
type FieldType string

// Field types.
const (
	FieldString   FieldType = "string"
	FieldInteger  FieldType = "integer"
	FieldFloat    FieldType = "float"
	FieldBoolean  FieldType = "boolean"
	FieldDate     FieldType = "date"
	FieldGeometry FieldType = "geometry"
)

// Field describes one property of the records of a store.
type Field struct {
	Name     string
	Type     FieldType
	Width    int
	Decimals int
}

// FieldSchema lists the properties of a store's records: the attribute
// columns in on-disk order followed by the geometry field. Without an
// attribute file it holds only the geometry field.
type FieldSchema struct {
	Fields []Field
}

func schemaFromDBF(fields []dbf.Field) FieldSchema {
	out := make([]Field, 0, len(fields)+1)
	for _, f := range fields {
		out = append(out, Field{
			Name:     f.Name,
			Type:     fieldType(f),
			Width:    f.Length,
			Decimals: f.Decimals,
		})
	}
	out = append(out, Field{Name: GeometryProperty, Type: FieldGeometry})
	return FieldSchema{Fields: out}
}

func geometryOnlySchema() FieldSchema {
	return FieldSchema{Fields: []Field{{Name: GeometryProperty, Type: FieldGeometry}}}
}

func fieldType(f dbf.Field) FieldType {
	switch f.Type {
	case dbf.Numeric, dbf.Float:
		if f.Decimals == 0 {
			return FieldInteger
		}
		return FieldFloat
	case dbf.Integer:
		return FieldInteger
	case dbf.Double:
		return FieldFloat
	case dbf.Logical:
		return FieldBoolean
	case dbf.Date:
		return FieldDate
	}
	return FieldString
}

// AttributeFields returns the fields other than the geometry field.
func (s FieldSchema) AttributeFields() []Field {
	out := make([]Field, 0, len(s.Fields))
	for _, f := range s.Fields {
		if f.Type != FieldGeometry {
			out = append(out, f)
		}
	}
	return out
}

// Lookup returns the field called name.
func (s FieldSchema) Lookup(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Record is one feature: an id, an optional geometry and its attributes.
//
// Records are created per query and are not shared between result sets.
type Record struct {
	// ID is the 1-based record number within the current file generation.
	ID int

	// TypeName is the feature type name of the store that produced the record.
	TypeName string

	// Geometry is nil for null shapes and when geometries are suppressed.
	Geometry *Geometry

	// Envelope is the record's bounding box in the store's CRS. It is empty
	// for null shapes.
	Envelope Envelope

	// Attributes maps field names to string, int64, float64, bool,
	// time.Time or nil values. It is empty without an attribute file.
	Attributes map[string]any
}

// FeatureID returns the store-qualified id, TYPENAME_<id>.
func (r *Record) FeatureID() string {
	return strings.ToUpper(r.TypeName) + "_" + strconv.Itoa(r.ID)
}

// Attribute returns the value of the named attribute.
func (r *Record) Attribute(name string) (any, bool) {
	v, ok := r.Attributes[name]
	return v, ok
}

// Property returns an attribute value or, for GeometryProperty, the geometry.
func (r *Record) Property(name string) (any, bool) {
	if name == GeometryProperty {
		if r.Geometry == nil {
			return nil, true
		}
		return r.Geometry, true
	}
	return r.Attribute(name)
}
