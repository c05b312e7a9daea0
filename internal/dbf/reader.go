// Package dbf reads dBase attribute files (.dbf) as used by shapefiles.
//
// A file is a 32-byte header, one 32-byte descriptor per field terminated
// by 0x0D, then fixed-width records. Each record starts with a deletion
// flag: '*' marks a deleted row, ' ' a live one. Record ids are 1-based and
// line up with the geometry file's record ids.
package dbf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/text/encoding"

	"github.com/beetlebugorg/shapestore/internal/storeerr"
)

const (
	fileHeaderSize  = 32
	descriptorSize  = 32
	fieldTerminator = 0x0D
	deletedFlag     = '*'

	// scanBlockSize is the read size used to collect deletion flags.
	scanBlockSize = 64 << 10
)

// FieldType is the dBase column type code.
type FieldType byte

// Column types decoded by the reader. Other codes are returned as raw strings.
const (
	Character FieldType = 'C'
	Numeric   FieldType = 'N'
	Float     FieldType = 'F'
	Logical   FieldType = 'L'
	Date      FieldType = 'D'
	Memo      FieldType = 'M'
	Integer   FieldType = 'I'
	Double    FieldType = 'O'
)

func (t FieldType) String() string { return string(rune(t)) }

// Field describes one column.
type Field struct {
	Name     string
	Type     FieldType
	Length   int
	Decimals int
	offset   int // within the record, after the deletion flag
}

// Options configures Open.
type Options struct {
	// Encoding names the charset of character fields (IANA name).
	// Empty means: .cpg side-car, then the language driver byte, then DefaultEncoding.
	Encoding string
}

// FieldError reports a value that could not be parsed.
type FieldError struct {
	Field string
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %s: parse %q: %v", e.Field, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Reader provides random access to attribute records. It is safe for
// concurrent use.
type Reader struct {
	path           string
	file           *os.File
	fields         []Field
	numRecs        int
	headerLen      int
	recordLen      int
	languageDriver byte
	encName        string
	decoder        encoding.Encoding
	deleted        *roaring.Bitmap
	modified       time.Time

	closeOnce sync.Once
	closeErr  error
}

// Open reads the header and field descriptors of the attribute file at path.
//
// Errors wrap storeerr.ErrNotFound when the file does not exist and
// storeerr.ErrMalformedHeader when the header is inconsistent.
func Open(path string, opts Options) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("open attribute file: %w: %w", storeerr.ErrNotFound, err)
		}
		return nil, fmt.Errorf("open attribute file: %w", err)
	}
	r := &Reader{path: path, file: f}
	if err := r.readHeader(); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	cpg := strings.TrimSuffix(path, filepath.Ext(path)) + ".cpg"
	r.decoder, r.encName, err = resolveEncoding(opts.Encoding, cpg, r.languageDriver)
	if err != nil {
		f.Close()
		return nil, err
	}

	if err := r.scanDeleted(); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

func (r *Reader) readHeader() error {
	var hdr [fileHeaderSize]byte
	if _, err := r.file.ReadAt(hdr[:], 0); err != nil {
		return fmt.Errorf("%w: read header: %w", storeerr.ErrMalformedHeader, err)
	}
	r.numRecs = int(binary.LittleEndian.Uint32(hdr[4:8]))
	r.headerLen = int(binary.LittleEndian.Uint16(hdr[8:10]))
	r.recordLen = int(binary.LittleEndian.Uint16(hdr[10:12]))
	r.languageDriver = hdr[29]
	if hdr[1] > 0 {
		r.modified = time.Date(1900+int(hdr[1]), time.Month(hdr[2]), int(hdr[3]), 0, 0, 0, 0, time.UTC)
	}

	if r.headerLen < fileHeaderSize+1 || r.recordLen < 1 {
		return fmt.Errorf("%w: header length %d, record length %d",
			storeerr.ErrMalformedHeader, r.headerLen, r.recordLen)
	}

	desc := make([]byte, r.headerLen-fileHeaderSize)
	if _, err := r.file.ReadAt(desc, fileHeaderSize); err != nil {
		return fmt.Errorf("%w: read field descriptors: %w", storeerr.ErrMalformedHeader, err)
	}

	seen := make(map[string]int)
	offset := 0
	for pos := 0; pos+descriptorSize <= len(desc) && desc[pos] != fieldTerminator; pos += descriptorSize {
		d := desc[pos : pos+descriptorSize]
		name := d[0:11]
		if i := bytes.IndexByte(name, 0); i >= 0 {
			name = name[:i]
		}
		name = bytes.TrimSpace(name)
		fieldName := string(name)
		if n, dup := seen[fieldName]; dup {
			seen[fieldName] = n + 1
			fieldName = fmt.Sprintf("%s__%d", fieldName, n+1)
		} else {
			seen[fieldName] = 0
		}
		fld := Field{
			Name:     fieldName,
			Type:     FieldType(d[11]),
			Length:   int(d[16]),
			Decimals: int(d[17]),
			offset:   offset,
		}
		offset += fld.Length
		r.fields = append(r.fields, fld)
	}

	if offset+1 > r.recordLen {
		return fmt.Errorf("%w: fields span %d bytes, record length %d",
			storeerr.ErrMalformedHeader, offset+1, r.recordLen)
	}
	return nil
}

// scanDeleted records the ids of rows carrying the deletion flag.
func (r *Reader) scanDeleted() error {
	r.deleted = roaring.New()
	info, err := r.file.Stat()
	if err != nil {
		return fmt.Errorf("stat attribute file: %w", err)
	}
	// Writers that crash mid-append leave numRecs ahead of the data.
	available := int((info.Size() - int64(r.headerLen)) / int64(r.recordLen))
	if available < r.numRecs {
		r.numRecs = max(available, 0)
	}
	perBlock := max(scanBlockSize/r.recordLen, 1)
	buf := make([]byte, min(perBlock, max(r.numRecs, 1))*r.recordLen)
	for id := 1; id <= r.numRecs; {
		n := min(len(buf)/r.recordLen, r.numRecs-id+1)
		block := buf[:n*r.recordLen]
		if _, err := r.file.ReadAt(block, r.recordOffset(id)); err != nil {
			return fmt.Errorf("%w: read records %d-%d: %w", storeerr.ErrCorrupt, id, id+n-1, err)
		}
		for i := range n {
			if block[i*r.recordLen] == deletedFlag {
				r.deleted.Add(uint32(id + i))
			}
		}
		id += n
	}
	return nil
}

func (r *Reader) recordOffset(id int) int64 {
	return int64(r.headerLen) + int64(id-1)*int64(r.recordLen)
}

// Path returns the file path the reader was opened with.
func (r *Reader) Path() string { return r.path }

// Fields returns the column descriptors in on-disk order.
func (r *Reader) Fields() []Field {
	out := make([]Field, len(r.fields))
	copy(out, r.fields)
	return out
}

// Len returns the number of records, deleted ones included.
func (r *Reader) Len() int { return r.numRecs }

// Encoding returns the resolved charset name.
func (r *Reader) Encoding() string { return r.encName }

// LastUpdate returns the date stamped in the header, or the zero time.
func (r *Reader) LastUpdate() time.Time { return r.modified }

// Deleted returns the ids of deleted rows. The bitmap is shared; callers
// must not modify it.
func (r *Reader) Deleted() *roaring.Bitmap { return r.deleted }

// ReadRecord decodes record id into a map of field name to value. The
// boolean is false for a deleted row, which has no values.
//
// Values are string, int64, float64, bool, time.Time, or nil for blank
// numeric, logical and date fields.
func (r *Reader) ReadRecord(id int) (map[string]any, bool, error) {
	if id < 1 || id > r.numRecs {
		return nil, false, fmt.Errorf("%w: %d not in [1, %d]", storeerr.ErrOutOfRange, id, r.numRecs)
	}
	if r.deleted.Contains(uint32(id)) {
		return nil, false, nil
	}
	buf := make([]byte, r.recordLen)
	if _, err := r.file.ReadAt(buf, r.recordOffset(id)); err != nil {
		if errors.Is(err, os.ErrClosed) {
			return nil, false, storeerr.ErrClosed
		}
		return nil, false, fmt.Errorf("read record %d: %w", id, err)
	}
	if buf[0] == deletedFlag {
		return nil, false, nil
	}

	values := make(map[string]any, len(r.fields))
	for _, f := range r.fields {
		raw := buf[1+f.offset : 1+f.offset+f.Length]
		v, err := r.decodeValue(f, raw)
		if err != nil {
			return nil, false, fmt.Errorf("record %d: %w", id, err)
		}
		values[f.Name] = v
	}
	return values, true, nil
}

func (r *Reader) decodeValue(f Field, raw []byte) (any, error) {
	switch f.Type {
	case Character, Memo:
		return r.decodeText(raw)
	case Numeric, Float:
		s := strings.TrimSpace(string(raw))
		if s == "" || strings.Trim(s, "*") == "" {
			return nil, nil
		}
		if f.Decimals == 0 {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n, nil
			}
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, &FieldError{Field: f.Name, Value: s, Err: err}
		}
		return v, nil
	case Logical:
		switch strings.TrimSpace(string(raw)) {
		case "T", "t", "Y", "y":
			return true, nil
		case "F", "f", "N", "n":
			return false, nil
		}
		return nil, nil
	case Date:
		s := strings.TrimSpace(string(raw))
		if s == "" || strings.Trim(s, "0") == "" {
			return nil, nil
		}
		d, err := time.Parse("20060102", s)
		if err != nil {
			return nil, &FieldError{Field: f.Name, Value: s, Err: err}
		}
		return d, nil
	case Integer:
		if len(raw) < 4 {
			return nil, &FieldError{Field: f.Name, Err: storeerr.ErrCorrupt}
		}
		return int64(int32(binary.LittleEndian.Uint32(raw))), nil
	case Double:
		if len(raw) < 8 {
			return nil, &FieldError{Field: f.Name, Err: storeerr.ErrCorrupt}
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(raw)), nil
	}
	return r.decodeText(raw)
}

func (r *Reader) decodeText(raw []byte) (string, error) {
	raw = bytes.TrimRight(raw, " \x00")
	raw = bytes.TrimLeft(raw, " ")
	if r.decoder == nil {
		return string(raw), nil
	}
	out, err := r.decoder.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("decode %s text: %w", r.encName, err)
	}
	return string(out), nil
}

// Close releases the file handle. It is safe to call more than once.
func (r *Reader) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.file.Close()
	})
	return r.closeErr
}
