// Package storeerr defines the error taxonomy shared by the shapefile readers,
// the spatial index and the public store API.
//
// Readers wrap these sentinels with context, so callers test for a class of
// failure with errors.Is rather than by inspecting messages.
package storeerr

import "errors"

var (
	// ErrNotFound indicates a missing backing file.
	ErrNotFound = errors.New("not found")

	// ErrMalformedHeader indicates a file that exists but whose header cannot be parsed.
	ErrMalformedHeader = errors.New("malformed header")

	// ErrCorrupt indicates unparsable content past the header, such as a damaged index side-car.
	ErrCorrupt = errors.New("corrupt data")

	// ErrOutOfRange indicates a record id beyond the bounds of the file.
	ErrOutOfRange = errors.New("record id out of range")

	// ErrTruncatedRecord indicates a record whose content runs past the end of the file.
	ErrTruncatedRecord = errors.New("truncated record")

	// ErrUnsupportedShapeType indicates a shape type code the geometry reader does not decode.
	ErrUnsupportedShapeType = errors.New("unsupported shape type")

	// ErrUnknownEncoding indicates a text encoding name that cannot be resolved.
	ErrUnknownEncoding = errors.New("unknown text encoding")

	// ErrUnknownCRS indicates a coordinate reference system the transformer cannot resolve.
	ErrUnknownCRS = errors.New("unknown coordinate reference system")

	// ErrTransformFailure indicates reprojection produced no usable envelope.
	ErrTransformFailure = errors.New("coordinate transform failed")

	// ErrStoreUnavailable is the sticky state of a store after an unrecoverable I/O error.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrUnsupportedQuery indicates a query the store cannot answer, such as one naming several types.
	ErrUnsupportedQuery = errors.New("unsupported query")

	// ErrClosed indicates use of a store or reader after Close.
	ErrClosed = errors.New("closed")
)
