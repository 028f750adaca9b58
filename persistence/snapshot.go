package persistence

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/hupe1980/kdgo/codec"
	"github.com/hupe1980/kdgo/internal/fmath"
	"github.com/hupe1980/kdgo/kdtree"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// SaveOptions contains configuration options for Save.
type SaveOptions struct {
	// Compression selects the body compression. Default: CompressionZstd.
	Compression Compression

	// Codec encodes point payloads. Default: codec.Default.
	Codec codec.Codec
}

// DefaultSaveOptions contains the default configuration options for Save.
var DefaultSaveOptions = SaveOptions{
	Compression: CompressionZstd,
}

// Save writes a snapshot of the tree to w. The tree must not be mutated
// while Save runs; concurrent queries are fine.
func Save[F kdtree.Float, T any](w io.Writer, t *kdtree.Tree[F, T], opts *SaveOptions) error {
	if opts == nil {
		opts = &DefaultSaveOptions
	}
	c := opts.Codec
	if c == nil {
		c = codec.Default
	}

	snap := t.Snapshot()

	body, err := encodeBody(snap, c)
	if err != nil {
		return err
	}

	stored, compression, err := compressBody(body, opts.Compression)
	if err != nil {
		return err
	}

	header := fileHeader{
		Magic:       MagicNumber,
		Version:     Version,
		Precision:   uint8(fmath.Size[F]()),
		Compression: uint8(compression),
		BucketSize:  uint32(snap.BucketSize),
		PointCount:  uint64(snap.Size),
		NodeCount:   uint64(len(snap.Nodes)),
	}
	if err := header.setCodecName(c.Name()); err != nil {
		return err
	}

	cw := NewChecksumWriter(w)
	if err := binary.Write(cw, binary.LittleEndian, &header); err != nil {
		return err
	}
	lens := [2]uint64{uint64(len(body)), uint64(len(stored))}
	if err := binary.Write(cw, binary.LittleEndian, &lens); err != nil {
		return err
	}
	if _, err := cw.Write(stored); err != nil {
		return err
	}

	// The trailer itself is not part of the checksummed range.
	return binary.Write(w, binary.LittleEndian, cw.Sum())
}

// Load reads a snapshot from r into a new tree with the squared Euclidean
// metric.
func Load[F kdtree.Float, T any](r io.Reader) (*kdtree.Tree[F, T], error) {
	return LoadWithMetric[F, T](kdtree.SquaredEuclidean[F]{}, r)
}

// LoadWithMetric reads a snapshot from r into a new tree with a
// caller-supplied metric. The metric must match the one used at build time.
func LoadWithMetric[F kdtree.Float, T any](m kdtree.Metric[F], r io.Reader) (*kdtree.Tree[F, T], error) {
	cr := NewChecksumReader(r)

	var header fileHeader
	if err := binary.Read(cr, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("persistence: read header: %w", err)
	}
	if header.Magic != MagicNumber {
		return nil, ErrInvalidMagic
	}
	if header.Version != Version {
		return nil, ErrInvalidVersion
	}
	if want := fmath.Size[F](); int(header.Precision) != want {
		return nil, &ErrPrecisionMismatch{Expected: want, Actual: int(header.Precision)}
	}
	compression := Compression(header.Compression)
	if compression > CompressionLZ4 {
		return nil, ErrUnknownCompression
	}
	c, ok := codec.ByName(header.codecName())
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, header.codecName())
	}

	var lens [2]uint64
	if err := binary.Read(cr, binary.LittleEndian, &lens); err != nil {
		return nil, fmt.Errorf("persistence: read body length: %w", err)
	}
	rawLen, storedLen := lens[0], lens[1]

	stored := make([]byte, storedLen)
	if _, err := io.ReadFull(cr, stored); err != nil {
		return nil, fmt.Errorf("persistence: read body: %w", err)
	}

	sum := cr.Sum()
	var trailer uint32
	if err := binary.Read(r, binary.LittleEndian, &trailer); err != nil {
		return nil, fmt.Errorf("persistence: read checksum: %w", err)
	}
	if trailer != sum {
		return nil, ErrChecksum
	}

	body, err := decompressBody(stored, int(rawLen), compression)
	if err != nil {
		return nil, err
	}

	snap, err := decodeBody[F, T](body, &header, c)
	if err != nil {
		return nil, err
	}

	return kdtree.FromSnapshotWithMetric[F, T](m, snap)
}

func compressBody(body []byte, compression Compression) ([]byte, Compression, error) {
	switch compression {
	case CompressionNone:
		return body, CompressionNone, nil

	case CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, 0, fmt.Errorf("persistence: create zstd encoder: %w", err)
		}
		stored := enc.EncodeAll(body, make([]byte, 0, len(body)))
		_ = enc.Close()
		return stored, CompressionZstd, nil

	case CompressionLZ4:
		var comp lz4.Compressor
		dst := make([]byte, lz4.CompressBlockBound(len(body)))
		n, err := comp.CompressBlock(body, dst)
		if err != nil {
			return nil, 0, fmt.Errorf("persistence: lz4 compress: %w", err)
		}
		// Incompressible bodies are stored raw; the loader detects this by
		// storedLen == rawLen.
		if n == 0 || n >= len(body) {
			return body, CompressionLZ4, nil
		}
		return dst[:n], CompressionLZ4, nil

	default:
		return nil, 0, ErrUnknownCompression
	}
}

func decompressBody(stored []byte, rawLen int, compression Compression) ([]byte, error) {
	switch compression {
	case CompressionNone:
		return stored, nil

	case CompressionZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("persistence: create zstd decoder: %w", err)
		}
		defer dec.Close()
		body, err := dec.DecodeAll(stored, make([]byte, 0, rawLen))
		if err != nil {
			return nil, fmt.Errorf("persistence: zstd decompress: %w", err)
		}
		return body, nil

	case CompressionLZ4:
		if len(stored) == rawLen {
			return stored, nil
		}
		body := make([]byte, rawLen)
		if _, err := lz4.UncompressBlock(stored, body); err != nil {
			return nil, fmt.Errorf("persistence: lz4 decompress: %w", err)
		}
		return body, nil

	default:
		return nil, ErrUnknownCompression
	}
}

const (
	flagLeaf        = 1 << 0
	flagSingularity = 1 << 1
)

func encodeBody[F kdtree.Float, T any](snap kdtree.TreeSnapshot[F, T], c codec.Codec) ([]byte, error) {
	var buf bytes.Buffer
	e := coordEncoder[F]{wide: fmath.Size[F]() == 8}

	for i := range snap.Nodes {
		n := &snap.Nodes[i]

		var scratch [14]byte
		binary.LittleEndian.PutUint32(scratch[0:], uint32(n.Parent))
		binary.LittleEndian.PutUint32(scratch[4:], uint32(n.Left))
		binary.LittleEndian.PutUint32(scratch[8:], uint32(n.Right))
		var flags uint8
		if n.Leaf {
			flags |= flagLeaf
		}
		if n.Singularity {
			flags |= flagSingularity
		}
		scratch[12] = flags
		scratch[13] = uint8(n.SplitDim)
		buf.Write(scratch[:])

		var count [4]byte
		binary.LittleEndian.PutUint32(count[:], uint32(n.Count))
		buf.Write(count[:])

		e.put(&buf, n.SplitValue)
		e.put(&buf, n.Min[0])
		e.put(&buf, n.Min[1])
		e.put(&buf, n.Max[0])
		e.put(&buf, n.Max[1])

		if !n.Leaf {
			continue
		}
		for _, p := range n.Points {
			e.put(&buf, p[0])
			e.put(&buf, p[1])
		}
		for j := range n.Values {
			payload, err := c.Marshal(n.Values[j])
			if err != nil {
				return nil, fmt.Errorf("persistence: marshal payload: %w", err)
			}
			var plen [4]byte
			binary.LittleEndian.PutUint32(plen[:], uint32(len(payload)))
			buf.Write(plen[:])
			buf.Write(payload)
		}
	}

	return buf.Bytes(), nil
}

func decodeBody[F kdtree.Float, T any](body []byte, header *fileHeader, c codec.Codec) (kdtree.TreeSnapshot[F, T], error) {
	snap := kdtree.TreeSnapshot[F, T]{
		BucketSize: int(header.BucketSize),
		Size:       int(header.PointCount),
	}

	d := bodyDecoder[F]{data: body, wide: fmath.Size[F]() == 8}

	// Smallest possible node record, to reject absurd node counts before
	// allocating.
	minRecord := 18 + 5*fmath.Size[F]()
	if header.NodeCount > uint64(len(body)/minRecord)+1 {
		return snap, fmt.Errorf("%w: node count %d exceeds body size", kdtree.ErrInvalidSnapshot, header.NodeCount)
	}

	snap.Nodes = make([]kdtree.NodeSnapshot[F, T], header.NodeCount)
	for i := range snap.Nodes {
		n := &snap.Nodes[i]

		n.Parent = int32(d.u32())
		n.Left = int32(d.u32())
		n.Right = int32(d.u32())
		flags := d.u8()
		n.Leaf = flags&flagLeaf != 0
		n.Singularity = flags&flagSingularity != 0
		n.SplitDim = int(d.u8())
		n.Count = int(d.u32())
		n.SplitValue = d.coord()
		n.Min[0] = d.coord()
		n.Min[1] = d.coord()
		n.Max[0] = d.coord()
		n.Max[1] = d.coord()

		if d.err != nil {
			return snap, d.err
		}
		if !n.Leaf {
			continue
		}
		if n.Count < 0 || n.Count > int(header.PointCount) {
			return snap, fmt.Errorf("%w: leaf count %d", kdtree.ErrInvalidSnapshot, n.Count)
		}

		n.Points = make([][2]F, n.Count)
		for j := range n.Points {
			n.Points[j][0] = d.coord()
			n.Points[j][1] = d.coord()
		}
		n.Values = make([]T, n.Count)
		for j := range n.Values {
			payload := d.bytes(int(d.u32()))
			if d.err != nil {
				return snap, d.err
			}
			if err := c.Unmarshal(payload, &n.Values[j]); err != nil {
				return snap, fmt.Errorf("persistence: unmarshal payload: %w", err)
			}
		}
		if d.err != nil {
			return snap, d.err
		}
	}

	if d.off != len(d.data) {
		return snap, fmt.Errorf("%w: %d trailing bytes", kdtree.ErrInvalidSnapshot, len(d.data)-d.off)
	}

	return snap, nil
}

// coordEncoder writes coordinates at the snapshot's precision.
type coordEncoder[F kdtree.Float] struct {
	wide bool
}

func (e coordEncoder[F]) put(buf *bytes.Buffer, v F) {
	var scratch [8]byte
	if e.wide {
		binary.LittleEndian.PutUint64(scratch[:], math.Float64bits(float64(v)))
		buf.Write(scratch[:8])
		return
	}
	binary.LittleEndian.PutUint32(scratch[:], math.Float32bits(float32(v)))
	buf.Write(scratch[:4])
}

// bodyDecoder is a cursor over the decoded body with sticky error handling.
type bodyDecoder[F kdtree.Float] struct {
	data []byte
	off  int
	wide bool
	err  error
}

func (d *bodyDecoder[F]) fail() {
	if d.err == nil {
		d.err = fmt.Errorf("%w: truncated body", kdtree.ErrInvalidSnapshot)
	}
}

func (d *bodyDecoder[F]) u8() uint8 {
	if d.err != nil || d.off+1 > len(d.data) {
		d.fail()
		return 0
	}
	v := d.data[d.off]
	d.off++
	return v
}

func (d *bodyDecoder[F]) u32() uint32 {
	if d.err != nil || d.off+4 > len(d.data) {
		d.fail()
		return 0
	}
	v := binary.LittleEndian.Uint32(d.data[d.off:])
	d.off += 4
	return v
}

func (d *bodyDecoder[F]) bytes(n int) []byte {
	if d.err != nil || n < 0 || d.off+n > len(d.data) {
		d.fail()
		return nil
	}
	v := d.data[d.off : d.off+n]
	d.off += n
	return v
}

func (d *bodyDecoder[F]) coord() F {
	if d.wide {
		if d.err != nil || d.off+8 > len(d.data) {
			d.fail()
			return 0
		}
		v := binary.LittleEndian.Uint64(d.data[d.off:])
		d.off += 8
		return F(math.Float64frombits(v))
	}
	if d.err != nil || d.off+4 > len(d.data) {
		d.fail()
		return 0
	}
	v := binary.LittleEndian.Uint32(d.data[d.off:])
	d.off += 4
	return F(math.Float32frombits(v))
}
