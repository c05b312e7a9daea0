// Package shp reads ESRI Shapefile geometry files (.shp).
//
// The file is memory-mapped read-only and indexed by hopping record headers
// on open, so both envelope lookups and full geometry decoding are random
// access by record id. Record ids are 1-based positions in the file.
//
// Layout (all offsets in bytes):
//
//	header   100 bytes: file code 9994 (big-endian), file length in 16-bit
//	         words (big-endian), version 1000 (little-endian), shape type
//	         (little-endian), bounding box as little-endian doubles
//	record   8-byte header: record number and content length in 16-bit
//	         words (both big-endian), then content starting with the
//	         little-endian shape type
//
// A record whose declared content runs past the end of the file stays
// addressable, but reading it fails with storeerr.ErrTruncatedRecord. This
// lets a store keep serving a file that another process is still writing.
package shp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"sync"

	"github.com/paulmach/orb"

	"github.com/beetlebugorg/shapestore/internal/storeerr"
)

const (
	headerSize       = 100
	recordHeaderSize = 8
	fileCode         = 9994
	fileVersion      = 1000
)

// Header is the decoded 100-byte geometry file header.
type Header struct {
	FileLength int64 // declared length in bytes
	Version    int32
	ShapeType  ShapeType
	Bound      orb.Bound
	ZMin, ZMax float64
	MMin, MMax float64
}

// Entry pairs a record id with its envelope. Null marks a null shape,
// which has no envelope.
type Entry struct {
	ID    int
	Bound orb.Bound
	Null  bool
	Err   error
}

type recordSlot struct {
	offset    int64 // start of the 8-byte record header
	length    int   // content length in bytes
	truncated bool
}

// Reader provides random access to the records of a geometry file.
// It is safe for concurrent use.
type Reader struct {
	path   string
	header Header
	data   []byte
	unmap  func([]byte) error
	slots  []recordSlot

	closeOnce sync.Once
	closeErr  error
}

// Open maps the geometry file at path and indexes its records.
//
// Errors wrap storeerr.ErrNotFound when the file does not exist and
// storeerr.ErrMalformedHeader when the header cannot be parsed.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("open geometry file: %w: %w", storeerr.ErrNotFound, err)
		}
		return nil, fmt.Errorf("open geometry file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat geometry file: %w", err)
	}
	if info.Size() < headerSize {
		return nil, fmt.Errorf("%s: %w: file is %d bytes, want at least %d",
			path, storeerr.ErrMalformedHeader, info.Size(), headerSize)
	}

	data, unmap, err := mapFile(f, int(info.Size()))
	if err != nil {
		return nil, fmt.Errorf("map geometry file: %w", err)
	}

	header, err := parseHeader(data)
	if err != nil {
		_ = unmap(data)
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	r := &Reader{
		path:   path,
		header: header,
		data:   data,
		unmap:  unmap,
	}
	r.slots = scanRecords(data)
	return r, nil
}

func parseHeader(data []byte) (Header, error) {
	if code := int32(binary.BigEndian.Uint32(data[0:4])); code != fileCode {
		return Header{}, fmt.Errorf("%w: file code %d, want %d", storeerr.ErrMalformedHeader, code, fileCode)
	}
	h := Header{
		FileLength: int64(binary.BigEndian.Uint32(data[24:28])) * 2,
		Version:    int32(binary.LittleEndian.Uint32(data[28:32])),
	}
	if h.Version != fileVersion {
		return Header{}, fmt.Errorf("%w: version %d, want %d", storeerr.ErrMalformedHeader, h.Version, fileVersion)
	}
	st, err := ParseShapeType(int32(binary.LittleEndian.Uint32(data[32:36])))
	if err != nil {
		return Header{}, fmt.Errorf("%w: %w", storeerr.ErrMalformedHeader, err)
	}
	h.ShapeType = st
	h.Bound = orb.Bound{
		Min: orb.Point{float64At(data, 36), float64At(data, 44)},
		Max: orb.Point{float64At(data, 52), float64At(data, 60)},
	}
	h.ZMin, h.ZMax = float64At(data, 68), float64At(data, 76)
	h.MMin, h.MMax = float64At(data, 84), float64At(data, 92)
	return h, nil
}

// scanRecords hops record headers from the end of the file header.
// Scanning stops at the first record that does not fit in the file.
func scanRecords(data []byte) []recordSlot {
	var slots []recordSlot
	pos := int64(headerSize)
	size := int64(len(data))
	for pos+recordHeaderSize <= size {
		words := int64(int32(binary.BigEndian.Uint32(data[pos+4 : pos+8])))
		if words < 0 {
			break
		}
		length := words * 2
		slot := recordSlot{offset: pos, length: int(length)}
		if pos+recordHeaderSize+length > size {
			slot.truncated = true
			slots = append(slots, slot)
			break
		}
		slots = append(slots, slot)
		pos += recordHeaderSize + length
	}
	return slots
}

// Path returns the file path the reader was opened with.
func (r *Reader) Path() string { return r.path }

// Header returns the decoded file header.
func (r *Reader) Header() Header { return r.header }

// ShapeType returns the shape type declared in the file header.
func (r *Reader) ShapeType() ShapeType { return r.header.ShapeType }

// Bound returns the bounding box declared in the file header.
func (r *Reader) Bound() orb.Bound { return r.header.Bound }

// Len returns the number of addressable records, including a truncated trailing one.
func (r *Reader) Len() int { return len(r.slots) }

// content returns the content bytes of record id, starting at the shape type.
func (r *Reader) content(id int) ([]byte, recordSlot, error) {
	if r.data == nil {
		return nil, recordSlot{}, storeerr.ErrClosed
	}
	if id < 1 || id > len(r.slots) {
		return nil, recordSlot{}, fmt.Errorf("%w: %d not in [1, %d]", storeerr.ErrOutOfRange, id, len(r.slots))
	}
	slot := r.slots[id-1]
	if slot.truncated {
		return nil, slot, &RecordError{ID: id, Offset: slot.offset, Err: storeerr.ErrTruncatedRecord}
	}
	start := slot.offset + recordHeaderSize
	buf := r.data[start : start+int64(slot.length)]
	if len(buf) < 4 {
		return nil, slot, &RecordError{ID: id, Offset: slot.offset,
			Err: fmt.Errorf("%w: content length %d", storeerr.ErrCorrupt, len(buf))}
	}
	return buf, slot, nil
}

// Envelope returns the bounding box of record id. The boolean is false for
// a null shape, which has no envelope.
func (r *Reader) Envelope(id int) (orb.Bound, bool, error) {
	buf, slot, err := r.content(id)
	if err != nil {
		return orb.Bound{}, false, err
	}
	b, ok, err := envelopeOf(buf)
	if err != nil {
		return orb.Bound{}, false, &RecordError{ID: id, Offset: slot.offset, Err: err}
	}
	return b, ok, nil
}

func envelopeOf(buf []byte) (orb.Bound, bool, error) {
	st, err := ParseShapeType(int32(binary.LittleEndian.Uint32(buf[0:4])))
	if err != nil {
		return orb.Bound{}, false, err
	}
	switch st.Base() {
	case NullShape:
		return orb.Bound{}, false, nil
	case Point:
		if len(buf) < 20 {
			return orb.Bound{}, false, fmt.Errorf("%w: point record of %d bytes", storeerr.ErrCorrupt, len(buf))
		}
		p := orb.Point{float64At(buf, 4), float64At(buf, 12)}
		return p.Bound(), true, nil
	default:
		if len(buf) < 36 {
			return orb.Bound{}, false, fmt.Errorf("%w: %s record of %d bytes", storeerr.ErrCorrupt, st, len(buf))
		}
		return orb.Bound{
			Min: orb.Point{float64At(buf, 4), float64At(buf, 12)},
			Max: orb.Point{float64At(buf, 20), float64At(buf, 28)},
		}, true, nil
	}
}

// ReadEnvelopes returns the envelope of every record in file order.
// It is the full scan used to (re)build a spatial index. A truncated
// trailing record is skipped. A record whose envelope cannot be decoded is
// returned with Err set and Null true, so a single bad record does not fail
// the scan.
func (r *Reader) ReadEnvelopes() ([]Entry, error) {
	if r.data == nil {
		return nil, storeerr.ErrClosed
	}
	entries := make([]Entry, 0, len(r.slots))
	for i, slot := range r.slots {
		if slot.truncated {
			break
		}
		id := i + 1
		b, ok, err := r.Envelope(id)
		entries = append(entries, Entry{ID: id, Bound: b, Null: !ok, Err: err})
	}
	return entries, nil
}

// Close unmaps the file. It is safe to call more than once, but must not
// race with reads; callers reference-count readers shared across queries.
func (r *Reader) Close() error {
	r.closeOnce.Do(func() {
		if r.data != nil {
			r.closeErr = r.unmap(r.data)
			r.data = nil
		}
	})
	return r.closeErr
}

func float64At(b []byte, off int) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b[off : off+8]))
}
