package rtree

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/paulmach/orb"

	"github.com/beetlebugorg/shapestore/internal/storeerr"
)

// Side-car file layout, little-endian:
//
//	magic        [8]byte "SHPRTIDX"
//	version      uint16
//	compression  uint8
//	reserved     uint8
//	source size  int64   geometry file size the tree was built from
//	source mtime int64   geometry file modification time, Unix nanoseconds
//	checksum     uint32  CRC-32 (IEEE) of the block
//	block        uncompressed size uint32, stored size uint32, payload
//
// Payload: fanout, entry count, null count (uint32 each), null ids
// (uint32 each), then the root node. A node is a kind byte (0 leaf,
// 1 inner), a child count (uint32) and its bound (4 float64), followed by
// its entries (id uint32 + bound) or its child nodes.
const (
	magic         = "SHPRTIDX"
	formatVersion = 1
	fileHeaderLen = 8 + 2 + 1 + 1 + 8 + 8 + 4

	kindLeaf  = 0
	kindInner = 1

	boundLen = 32
	maxDepth = 32
)

// Stamp identifies the geometry file generation a tree was built from.
type Stamp struct {
	Size    int64
	ModTime time.Time
}

// StampOf returns the stamp of the file at path.
func StampOf(path string) (Stamp, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Stamp{}, err
	}
	return Stamp{Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Equal reports whether both stamps describe the same file state.
func (s Stamp) Equal(o Stamp) bool {
	return s.Size == o.Size && s.ModTime.Equal(o.ModTime)
}

// Marshal serializes the tree with the given payload compression.
func (t *Tree) Marshal(c Compression, stamp Stamp) ([]byte, error) {
	var p bytes.Buffer
	w := func(v any) { _ = binary.Write(&p, binary.LittleEndian, v) }
	w(uint32(t.fanout))
	w(uint32(t.size))
	w(uint32(len(t.nulls)))
	for _, id := range t.nulls {
		w(uint32(id))
	}
	writeNode(&p, t.root)

	block, err := compressBlock(p.Bytes(), c)
	if err != nil {
		return nil, err
	}

	out := make([]byte, fileHeaderLen, fileHeaderLen+len(block))
	copy(out[0:8], magic)
	binary.LittleEndian.PutUint16(out[8:], formatVersion)
	out[10] = byte(c)
	binary.LittleEndian.PutUint64(out[12:], uint64(stamp.Size))
	binary.LittleEndian.PutUint64(out[20:], uint64(stamp.ModTime.UnixNano()))
	binary.LittleEndian.PutUint32(out[28:], crc32.ChecksumIEEE(block))
	return append(out, block...), nil
}

func writeNode(p *bytes.Buffer, n *node) {
	w := func(v any) { _ = binary.Write(p, binary.LittleEndian, v) }
	if n.leaf() {
		w(uint8(kindLeaf))
		w(uint32(len(n.entries)))
		writeBound(p, n.bound)
		for _, e := range n.entries {
			w(uint32(e.ID))
			writeBound(p, e.Bound)
		}
		return
	}
	w(uint8(kindInner))
	w(uint32(len(n.children)))
	writeBound(p, n.bound)
	for _, c := range n.children {
		writeNode(p, c)
	}
}

func writeBound(p *bytes.Buffer, b orb.Bound) {
	_ = binary.Write(p, binary.LittleEndian, [4]float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]})
}

// Unmarshal decodes a serialized tree. Any inconsistency, including an
// unknown format version, wraps storeerr.ErrCorrupt.
func Unmarshal(data []byte) (*Tree, Stamp, error) {
	if len(data) < fileHeaderLen {
		return nil, Stamp{}, fmt.Errorf("%w: index of %d bytes", storeerr.ErrCorrupt, len(data))
	}
	if string(data[0:8]) != magic {
		return nil, Stamp{}, fmt.Errorf("%w: bad magic", storeerr.ErrCorrupt)
	}
	if v := binary.LittleEndian.Uint16(data[8:]); v != formatVersion {
		return nil, Stamp{}, fmt.Errorf("%w: format version %d, want %d", storeerr.ErrCorrupt, v, formatVersion)
	}
	c := Compression(data[10])
	stamp := Stamp{
		Size:    int64(binary.LittleEndian.Uint64(data[12:])),
		ModTime: time.Unix(0, int64(binary.LittleEndian.Uint64(data[20:]))),
	}
	block := data[fileHeaderLen:]
	if sum := crc32.ChecksumIEEE(block); sum != binary.LittleEndian.Uint32(data[28:]) {
		return nil, Stamp{}, fmt.Errorf("%w: checksum mismatch", storeerr.ErrCorrupt)
	}
	payload, err := decompressBlock(block, c)
	if err != nil {
		return nil, Stamp{}, err
	}

	d := &decoder{buf: payload}
	t := &Tree{
		fanout: int(d.u32()),
		size:   int(d.u32()),
	}
	nulls := int(d.u32())
	if d.err == nil && nulls > d.remaining()/4 {
		return nil, Stamp{}, fmt.Errorf("%w: %d null ids in %d bytes", storeerr.ErrCorrupt, nulls, d.remaining())
	}
	t.nulls = make([]int, nulls)
	for i := range t.nulls {
		t.nulls[i] = int(d.u32())
	}
	t.root = d.node(0)
	if d.err != nil {
		return nil, Stamp{}, d.err
	}
	if d.remaining() != 0 {
		return nil, Stamp{}, fmt.Errorf("%w: %d trailing bytes", storeerr.ErrCorrupt, d.remaining())
	}
	if d.entries != t.size {
		return nil, Stamp{}, fmt.Errorf("%w: %d entries, header says %d", storeerr.ErrCorrupt, d.entries, t.size)
	}
	if t.fanout < 2 {
		return nil, Stamp{}, fmt.Errorf("%w: fanout %d", storeerr.ErrCorrupt, t.fanout)
	}
	return t, stamp, nil
}

type decoder struct {
	buf     []byte
	off     int
	err     error
	entries int
}

func (d *decoder) remaining() int { return len(d.buf) - d.off }

func (d *decoder) fail(format string, args ...any) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: "+format, append([]any{storeerr.ErrCorrupt}, args...)...)
	}
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if d.remaining() < n {
		d.fail("need %d bytes at offset %d, have %d", n, d.off, d.remaining())
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) u8() uint8 {
	if b := d.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (d *decoder) u32() uint32 {
	if b := d.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (d *decoder) bound() orb.Bound {
	b := d.take(boundLen)
	if b == nil {
		return orb.Bound{}
	}
	f := func(i int) float64 { return math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:])) }
	return orb.Bound{Min: orb.Point{f(0), f(1)}, Max: orb.Point{f(2), f(3)}}
}

func (d *decoder) node(depth int) *node {
	if depth > maxDepth {
		d.fail("tree deeper than %d levels", maxDepth)
		return nil
	}
	kind := d.u8()
	count := int(d.u32())
	n := &node{bound: d.bound()}
	if d.err != nil {
		return nil
	}
	switch kind {
	case kindLeaf:
		if count > d.remaining()/(4+boundLen) {
			d.fail("leaf of %d entries in %d bytes", count, d.remaining())
			return nil
		}
		n.entries = make([]Entry, count)
		for i := range n.entries {
			n.entries[i] = Entry{ID: int(d.u32()), Bound: d.bound()}
		}
		d.entries += count
	case kindInner:
		if count == 0 || count > d.remaining()/(5+boundLen) {
			d.fail("inner node of %d children in %d bytes", count, d.remaining())
			return nil
		}
		n.children = make([]*node, count)
		for i := range n.children {
			if n.children[i] = d.node(depth + 1); n.children[i] == nil {
				return nil
			}
		}
	default:
		d.fail("node kind %d", kind)
		return nil
	}
	return n
}

// WriteFile serializes the tree to path through a temporary file and a
// rename, so readers never observe a partial index.
func WriteFile(path string, t *Tree, c Compression, stamp Stamp) error {
	data, err := t.Marshal(c, stamp)
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close index: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename index: %w", err)
	}
	return nil
}

// ReadFile loads a tree written by WriteFile. A missing file wraps
// storeerr.ErrNotFound; a damaged one wraps storeerr.ErrCorrupt.
func ReadFile(path string) (*Tree, Stamp, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Stamp{}, fmt.Errorf("read index: %w: %w", storeerr.ErrNotFound, err)
		}
		return nil, Stamp{}, fmt.Errorf("read index: %w", err)
	}
	t, stamp, err := Unmarshal(data)
	if err != nil {
		return nil, Stamp{}, fmt.Errorf("%s: %w", path, err)
	}
	return t, stamp, nil
}
