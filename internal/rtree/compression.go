package rtree

import (
	"encoding/binary"
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/beetlebugorg/shapestore/internal/storeerr"
)

// Compression selects how the serialized tree payload is stored.
type Compression uint8

// Payload compressions. The values are stored in the file header and must
// not change.
const (
	CompressionNone Compression = 0 // raw payload
	CompressionLZ4  Compression = 1 // LZ4 block
	CompressionZSTD Compression = 2 // Zstandard frame
)

// String returns the name accepted by ParseCompression.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	}
	return fmt.Sprintf("Compression(%d)", uint8(c))
}

// ParseCompression accepts "none", "lz4" or "zstd".
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	}
	return 0, fmt.Errorf("unknown index compression %q", s)
}

var (
	zstdEncoders sync.Pool
	zstdDecoders sync.Pool
)

func getZstdEncoder() (*zstd.Encoder, error) {
	if v := zstdEncoders.Get(); v != nil {
		return v.(*zstd.Encoder), nil
	}
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

func getZstdDecoder() (*zstd.Decoder, error) {
	if v := zstdDecoders.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	return zstd.NewReader(nil)
}

// blockHeaderSize prefixes every payload: uncompressed size, then stored
// size (0 when the payload is stored raw).
const blockHeaderSize = 8

func compressBlock(data []byte, c Compression) ([]byte, error) {
	var packed []byte
	switch c {
	case CompressionNone:
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		packed = buf[:n]
	case CompressionZSTD:
		enc, err := getZstdEncoder()
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		packed = enc.EncodeAll(data, nil)
		zstdEncoders.Put(enc)
	default:
		return nil, fmt.Errorf("unknown index compression %d", c)
	}

	// Incompressible payloads are stored raw.
	stored := packed
	if len(packed) == 0 || len(packed) >= len(data) {
		stored = nil
	}
	out := make([]byte, blockHeaderSize, blockHeaderSize+max(len(stored), len(data)))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(stored)))
	if stored == nil {
		return append(out, data...), nil
	}
	return append(out, stored...), nil
}

func decompressBlock(block []byte, c Compression) ([]byte, error) {
	if len(block) < blockHeaderSize {
		return nil, fmt.Errorf("%w: block of %d bytes", storeerr.ErrCorrupt, len(block))
	}
	rawSize := binary.LittleEndian.Uint32(block[0:])
	storedSize := binary.LittleEndian.Uint32(block[4:])
	body := block[blockHeaderSize:]

	if storedSize == 0 {
		if uint64(len(body)) != uint64(rawSize) {
			return nil, fmt.Errorf("%w: raw block is %d bytes, header says %d", storeerr.ErrCorrupt, len(body), rawSize)
		}
		return body, nil
	}
	if uint64(len(body)) != uint64(storedSize) {
		return nil, fmt.Errorf("%w: block is %d bytes, header says %d", storeerr.ErrCorrupt, len(body), storedSize)
	}

	out := make([]byte, rawSize)
	switch c {
	case CompressionLZ4:
		n, err := lz4.UncompressBlock(body, out)
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %w", storeerr.ErrCorrupt, err)
		}
		if uint32(n) != rawSize {
			return nil, fmt.Errorf("%w: lz4 produced %d bytes, want %d", storeerr.ErrCorrupt, n, rawSize)
		}
		return out, nil
	case CompressionZSTD:
		dec, err := getZstdDecoder()
		if err != nil {
			return nil, fmt.Errorf("zstd decoder: %w", err)
		}
		defer zstdDecoders.Put(dec)
		decoded, err := dec.DecodeAll(body, out[:0])
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %w", storeerr.ErrCorrupt, err)
		}
		if uint32(len(decoded)) != rawSize {
			return nil, fmt.Errorf("%w: zstd produced %d bytes, want %d", storeerr.ErrCorrupt, len(decoded), rawSize)
		}
		return decoded, nil
	}
	return nil, fmt.Errorf("%w: compression %d", storeerr.ErrCorrupt, c)
}
