package shp

import (
	"fmt"

	"github.com/beetlebugorg/shapestore/internal/storeerr"
)

// UnsupportedShapeTypeError indicates a shape type code the reader cannot decode.
type UnsupportedShapeTypeError struct {
	Code int32
}

func (e *UnsupportedShapeTypeError) Error() string {
	if name, ok := shapeTypeNames[ShapeType(e.Code)]; ok {
		return fmt.Sprintf("unsupported shape type: %s (%d)", name, e.Code)
	}
	return fmt.Sprintf("unsupported shape type: %d", e.Code)
}

func (e *UnsupportedShapeTypeError) Unwrap() error { return storeerr.ErrUnsupportedShapeType }

// RecordError reports a failure decoding a single record.
// Other records of the same file remain readable.
type RecordError struct {
	ID     int
	Offset int64
	Err    error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d at offset %d: %v", e.ID, e.Offset, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }
