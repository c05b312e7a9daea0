package shapestore

import (
	"github.com/beetlebugorg/shapestore/internal/shp"
	"github.com/beetlebugorg/shapestore/internal/storeerr"
)

// Errors returned by the store. Test for them with errors.Is.
var (
	ErrNotFound             = storeerr.ErrNotFound
	ErrMalformedHeader      = storeerr.ErrMalformedHeader
	ErrCorrupt              = storeerr.ErrCorrupt
	ErrOutOfRange           = storeerr.ErrOutOfRange
	ErrTruncatedRecord      = storeerr.ErrTruncatedRecord
	ErrUnsupportedShapeType = storeerr.ErrUnsupportedShapeType
	ErrUnknownEncoding      = storeerr.ErrUnknownEncoding
	ErrUnknownCRS           = storeerr.ErrUnknownCRS
	ErrTransformFailure     = storeerr.ErrTransformFailure
	ErrStoreUnavailable     = storeerr.ErrStoreUnavailable
	ErrUnsupportedQuery     = storeerr.ErrUnsupportedQuery
	ErrClosed               = storeerr.ErrClosed
)

// UnsupportedShapeTypeError carries the shape type code that could not be decoded.
type UnsupportedShapeTypeError = shp.UnsupportedShapeTypeError

// RecordError reports a failure decoding one geometry record.
type RecordError = shp.RecordError
