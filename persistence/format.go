// Package persistence implements the binary snapshot format for trees.
//
// Layout:
//
//	header (64 bytes) | rawLen u64 | storedLen u64 | body | crc32 u32
//
// The body is the node arena, optionally compressed. The CRC32 (IEEE) trailer
// covers every preceding byte, so truncation and bit rot are both caught
// before any node is materialized.
package persistence

import (
	"errors"
	"fmt"
)

const (
	// MagicNumber identifies kdgo snapshot files (ASCII: "KDG0").
	MagicNumber = 0x4b444730
	// Version is the current file format version (v1.0.0).
	Version = 0x00010000

	headerSize    = 64
	codecNameSize = 16
)

// Compression selects the body compression of a snapshot.
type Compression uint8

const (
	// CompressionNone stores the body uncompressed.
	CompressionNone Compression = iota
	// CompressionZstd compresses the body with zstd. Good default for
	// snapshots written to disk or object storage.
	CompressionZstd
	// CompressionLZ4 compresses the body with LZ4 blocks. Faster than zstd,
	// lower ratio.
	CompressionLZ4
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(c))
	}
}

var (
	// ErrInvalidMagic is returned when the file does not start with the
	// snapshot magic number.
	ErrInvalidMagic = errors.New("persistence: invalid magic number")
	// ErrInvalidVersion is returned for unsupported format versions.
	ErrInvalidVersion = errors.New("persistence: unsupported version")
	// ErrChecksum is returned when the CRC32 trailer does not match.
	ErrChecksum = errors.New("persistence: checksum mismatch")
	// ErrUnknownCompression is returned for an unrecognized compression flag.
	ErrUnknownCompression = errors.New("persistence: unknown compression")
	// ErrUnknownCodec is returned when the snapshot's payload codec is not
	// registered.
	ErrUnknownCodec = errors.New("persistence: unknown payload codec")
)

// ErrPrecisionMismatch indicates a snapshot written with a different
// coordinate precision than the one it is being loaded into.
type ErrPrecisionMismatch struct {
	Expected int // byte width of the requested coordinate type
	Actual   int // byte width recorded in the snapshot
}

func (e *ErrPrecisionMismatch) Error() string {
	return fmt.Sprintf("persistence: precision mismatch: expected %d-byte coordinates, snapshot has %d-byte", e.Expected, e.Actual)
}

// fileHeader is the fixed 64-byte header at the start of every snapshot.
type fileHeader struct {
	Magic       uint32
	Version     uint32
	Precision   uint8 // 4 = float32, 8 = float64
	Compression uint8
	_           uint16
	BucketSize  uint32
	PointCount  uint64
	NodeCount   uint64
	CodecName   [codecNameSize]byte
	Reserved    [16]byte
}

func (h *fileHeader) codecName() string {
	n := 0
	for n < codecNameSize && h.CodecName[n] != 0 {
		n++
	}
	return string(h.CodecName[:n])
}

func (h *fileHeader) setCodecName(name string) error {
	if len(name) > codecNameSize {
		return fmt.Errorf("persistence: codec name %q exceeds %d bytes", name, codecNameSize)
	}
	h.CodecName = [codecNameSize]byte{}
	copy(h.CodecName[:], name)
	return nil
}
