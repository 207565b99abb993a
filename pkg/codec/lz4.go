package codec

import (
	"bytes"
	"io"

	"github.com/pierrec/lz4/v4"

	"github.com/marmos91/fsx/pkg/fserrors"
)

// lz4Codec implements Codec over the LZ4 frame format.
type lz4Codec struct {
	level lz4.CompressionLevel
}

// NewLZ4 creates an lz4 codec. fast selects the fast path (level 0); the
// slow path uses level 9 for a better ratio at lower throughput.
func NewLZ4(fast bool) (Codec, error) {
	level := lz4.Level9
	if fast {
		level = lz4.Fast
	}
	return &lz4Codec{level: level}, nil
}

func (c *lz4Codec) Algorithm() Algorithm {
	return AlgorithmLZ4
}

func (c *lz4Codec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if err := w.Apply(lz4.CompressionLevelOption(c.level)); err != nil {
		return nil, fserrors.NewCompression(CompressionFailed, err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fserrors.NewCompression(CompressionFailed, err)
	}
	if err := w.Close(); err != nil {
		return nil, fserrors.NewCompression(CompressionFailed, err)
	}
	return buf.Bytes(), nil
}

func (c *lz4Codec) Decompress(data []byte) ([]byte, error) {
	if err := checkFrame(data, magicLZ4); err != nil {
		return nil, err
	}

	r := lz4.NewReader(bytes.NewReader(data))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fserrors.NewCompression(DecompressionFailed, err)
	}
	return out, nil
}
