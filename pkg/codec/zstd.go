package codec

import (
	"github.com/klauspost/compress/zstd"

	"github.com/marmos91/fsx/pkg/fserrors"
)

// DefaultZstdLevel is the default zstd level (zstd scale, 1-22).
const DefaultZstdLevel = 3

// zstdCodec implements Codec over the Zstandard frame format.
type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewZstd creates a zstd codec. Accepted levels follow the zstd scale,
// 1 (fastest) through 22 (best compression).
func NewZstd(level int) (Codec, error) {
	if level < 1 || level > 22 {
		return nil, fserrors.NewCompression(UnsupportedAlgorithm, nil)
	}

	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, fserrors.NewCompression(CompressionFailed, err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fserrors.NewCompression(DecompressionFailed, err)
	}
	return &zstdCodec{enc: enc, dec: dec}, nil
}

func (c *zstdCodec) Algorithm() Algorithm {
	return AlgorithmZstd
}

func (c *zstdCodec) Compress(data []byte) ([]byte, error) {
	return c.enc.EncodeAll(data, nil), nil
}

func (c *zstdCodec) Decompress(data []byte) ([]byte, error) {
	if err := checkFrame(data, magicZstd); err != nil {
		return nil, err
	}

	out, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fserrors.NewCompression(DecompressionFailed, err)
	}
	return out, nil
}
