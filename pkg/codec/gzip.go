package codec

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/marmos91/fsx/pkg/fserrors"
)

// DefaultGzipLevel is the balanced-preset gzip level.
const DefaultGzipLevel = 6

// gzipCodec implements Codec over the gzip frame format.
type gzipCodec struct {
	level int
}

// NewGzip creates a gzip codec. Accepted levels are 0 (store) through 9
// (best compression).
func NewGzip(level int) (Codec, error) {
	if level < gzip.NoCompression || level > gzip.BestCompression {
		return nil, fserrors.NewCompression(UnsupportedAlgorithm, nil)
	}
	return &gzipCodec{level: level}, nil
}

func (c *gzipCodec) Algorithm() Algorithm {
	return AlgorithmGzip
}

func (c *gzipCodec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, c.level)
	if err != nil {
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

func (c *gzipCodec) Decompress(data []byte) ([]byte, error) {
	if err := checkFrame(data, magicGzip); err != nil {
		return nil, err
	}

	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fserrors.NewCompression(DecompressionFailed, err)
	}
	defer func() { _ = r.Close() }()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fserrors.NewCompression(DecompressionFailed, err)
	}
	return out, nil
}
