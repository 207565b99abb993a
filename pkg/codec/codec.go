// Package codec implements the compression layer used by blobs and pages.
//
// Three algorithms are supported: gzip (balanced), zstd (best ratio) and
// lz4 (fastest). Compressed payloads are self-describing through their frame
// magic bytes, so readers never need out-of-band algorithm metadata:
// Detect inspects the leading bytes and AutoDecompress dispatches to the
// right codec. Unknown leading bytes are treated as uncompressed data.
package codec

import (
	"bytes"

	"github.com/marmos91/fsx/pkg/fserrors"
)

// Algorithm identifies a compression codec.
type Algorithm string

const (
	// AlgorithmNone means the payload is stored uncompressed.
	AlgorithmNone Algorithm = "none"

	// AlgorithmGzip is DEFLATE in a gzip wrapper (magic 1f 8b).
	AlgorithmGzip Algorithm = "gzip"

	// AlgorithmZstd is Zstandard (magic 28 b5 2f fd).
	AlgorithmZstd Algorithm = "zstd"

	// AlgorithmLZ4 is the LZ4 frame format (magic 04 22 4d 18).
	AlgorithmLZ4 Algorithm = "lz4"
)

// Preset selects a codec by intent rather than by algorithm name.
type Preset string

const (
	// PresetSpeed favors throughput (lz4).
	PresetSpeed Preset = "speed"

	// PresetRatio favors compression ratio (zstd level 9).
	PresetRatio Preset = "ratio"

	// PresetBalanced is the default trade-off (gzip level 6).
	PresetBalanced Preset = "balanced"
)

// Failure sub-codes carried on fserrors.ErrCompression errors.
const (
	CompressionFailed    = "COMPRESSION_FAILED"
	DecompressionFailed  = "DECOMPRESSION_FAILED"
	InvalidData          = "INVALID_DATA"
	UnsupportedAlgorithm = "UNSUPPORTED_ALGORITHM"
)

// Frame magic bytes per algorithm.
var (
	magicGzip = []byte{0x1f, 0x8b}
	magicZstd = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicLZ4  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// Codec compresses and decompresses byte payloads.
type Codec interface {
	// Compress encodes data into the codec's frame format.
	Compress(data []byte) ([]byte, error)

	// Decompress decodes a frame produced by this codec. Empty input and
	// wrong magic bytes fail with INVALID_DATA.
	Decompress(data []byte) ([]byte, error)

	// Algorithm returns the codec's identity.
	Algorithm() Algorithm
}

// Result reports the outcome of CompressWithMetrics.
type Result struct {
	Data           []byte
	OriginalSize   int
	CompressedSize int
	Ratio          float64
	Expanded       bool
	Algorithm      Algorithm
}

// New constructs a codec for the given algorithm at its default level.
func New(alg Algorithm) (Codec, error) {
	switch alg {
	case AlgorithmGzip:
		return NewGzip(DefaultGzipLevel)
	case AlgorithmZstd:
		return NewZstd(DefaultZstdLevel)
	case AlgorithmLZ4:
		return NewLZ4(false)
	default:
		return nil, fserrors.NewCompression(UnsupportedAlgorithm, nil)
	}
}

// ForPreset maps an intent preset to a configured codec.
func ForPreset(p Preset) (Codec, error) {
	switch p {
	case PresetSpeed:
		return NewLZ4(true)
	case PresetRatio:
		return NewZstd(9)
	case PresetBalanced:
		return NewGzip(6)
	default:
		return nil, fserrors.NewCompression(UnsupportedAlgorithm, nil)
	}
}

// CompressWithMetrics compresses data and reports size accounting alongside
// the payload. Expanded is set when the frame ended up larger than the input
// (incompressible data); callers typically store the original bytes instead
// in that case.
func CompressWithMetrics(c Codec, data []byte) (*Result, error) {
	out, err := c.Compress(data)
	if err != nil {
		return nil, err
	}

	ratio := 0.0
	if len(data) > 0 {
		ratio = float64(len(out)) / float64(len(data))
	}

	return &Result{
		Data:           out,
		OriginalSize:   len(data),
		CompressedSize: len(out),
		Ratio:          ratio,
		Expanded:       len(out) > len(data),
		Algorithm:      c.Algorithm(),
	}, nil
}

// Detect returns the algorithm inferred from the leading bytes of data.
// AlgorithmNone means no known frame magic was found.
func Detect(data []byte) Algorithm {
	switch {
	case bytes.HasPrefix(data, magicZstd):
		return AlgorithmZstd
	case bytes.HasPrefix(data, magicLZ4):
		return AlgorithmLZ4
	case bytes.HasPrefix(data, magicGzip):
		return AlgorithmGzip
	default:
		return AlgorithmNone
	}
}

// AutoDecompress inspects the frame magic and dispatches to the matching
// codec. It fails with UNSUPPORTED_ALGORITHM when the leading bytes match no
// known codec.
func AutoDecompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fserrors.NewCompression(InvalidData, nil)
	}

	alg := Detect(data)
	if alg == AlgorithmNone {
		return nil, fserrors.NewCompression(UnsupportedAlgorithm, nil)
	}

	c, err := New(alg)
	if err != nil {
		return nil, err
	}
	return c.Decompress(data)
}

// checkFrame validates non-empty input with the expected magic prefix.
func checkFrame(data, magic []byte) error {
	if len(data) == 0 {
		return fserrors.NewCompression(InvalidData, nil)
	}
	if !bytes.HasPrefix(data, magic) {
		return fserrors.NewCompression(InvalidData, nil)
	}
	return nil
}
