package codec

import (
	"bytes"
	"errors"
	"testing"

	"github.com/marmos91/fsx/pkg/fserrors"
)

var algorithms = []Algorithm{AlgorithmGzip, AlgorithmZstd, AlgorithmLZ4}

func testPayload() []byte {
	// Repetitive enough to compress, long enough to exercise framing.
	return bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog\n"), 256)
}

func TestRoundTrip(t *testing.T) {
	payload := testPayload()

	for _, alg := range algorithms {
		t.Run(string(alg), func(t *testing.T) {
			c, err := New(alg)
			if err != nil {
				t.Fatalf("New(%s) failed: %v", alg, err)
			}

			compressed, err := c.Compress(payload)
			if err != nil {
				t.Fatalf("Compress failed: %v", err)
			}
			if len(compressed) >= len(payload) {
				t.Errorf("repetitive payload did not shrink: %d >= %d", len(compressed), len(payload))
			}

			out, err := c.Decompress(compressed)
			if err != nil {
				t.Fatalf("Decompress failed: %v", err)
			}
			if !bytes.Equal(out, payload) {
				t.Error("round trip mismatch")
			}
		})
	}
}

func TestDetect(t *testing.T) {
	payload := testPayload()

	for _, alg := range algorithms {
		c, _ := New(alg)
		compressed, err := c.Compress(payload)
		if err != nil {
			t.Fatalf("Compress(%s) failed: %v", alg, err)
		}
		if got := Detect(compressed); got != alg {
			t.Errorf("Detect(%s frame) = %s", alg, got)
		}
	}

	if got := Detect([]byte("plain text")); got != AlgorithmNone {
		t.Errorf("Detect(plain) = %s, want none", got)
	}
	if got := Detect(nil); got != AlgorithmNone {
		t.Errorf("Detect(nil) = %s, want none", got)
	}
}

func TestAutoDecompress(t *testing.T) {
	payload := testPayload()

	for _, alg := range algorithms {
		c, _ := New(alg)
		compressed, _ := c.Compress(payload)

		out, err := AutoDecompress(compressed)
		if err != nil {
			t.Fatalf("AutoDecompress(%s) failed: %v", alg, err)
		}
		if !bytes.Equal(out, payload) {
			t.Errorf("AutoDecompress(%s) mismatch", alg)
		}
	}
}

func TestAutoDecompressUnknown(t *testing.T) {
	_, err := AutoDecompress([]byte("not a frame"))
	if !fserrors.Is(err, fserrors.ErrCompression) {
		t.Fatalf("expected compression error, got %v", err)
	}

	var fe *fserrors.Error
	if !errors.As(err, &fe) || fe.Detail != UnsupportedAlgorithm {
		t.Errorf("expected UNSUPPORTED_ALGORITHM, got %v", err)
	}
}

func TestDecompressEmptyInput(t *testing.T) {
	for _, alg := range algorithms {
		c, _ := New(alg)
		if _, err := c.Decompress(nil); err == nil {
			t.Errorf("Decompress(%s, nil) should fail", alg)
		}
	}
	if _, err := AutoDecompress(nil); err == nil {
		t.Error("AutoDecompress(nil) should fail")
	}
}

func TestDecompressWrongMagic(t *testing.T) {
	gz, _ := New(AlgorithmGzip)
	zs, _ := New(AlgorithmZstd)

	frame, _ := zs.Compress(testPayload())
	_, err := gz.Decompress(frame)
	var fe *fserrors.Error
	if !errors.As(err, &fe) || fe.Detail != InvalidData {
		t.Errorf("expected INVALID_DATA, got %v", err)
	}
}

func TestPresets(t *testing.T) {
	tests := []struct {
		preset Preset
		want   Algorithm
	}{
		{PresetSpeed, AlgorithmLZ4},
		{PresetRatio, AlgorithmZstd},
		{PresetBalanced, AlgorithmGzip},
	}

	for _, tt := range tests {
		c, err := ForPreset(tt.preset)
		if err != nil {
			t.Fatalf("ForPreset(%s) failed: %v", tt.preset, err)
		}
		if c.Algorithm() != tt.want {
			t.Errorf("ForPreset(%s) = %s, want %s", tt.preset, c.Algorithm(), tt.want)
		}
	}

	if _, err := ForPreset("bogus"); err == nil {
		t.Error("ForPreset(bogus) should fail")
	}
}

func TestLevelValidation(t *testing.T) {
	if _, err := NewGzip(10); err == nil {
		t.Error("NewGzip(10) should fail")
	}
	if _, err := NewGzip(-2); err == nil {
		t.Error("NewGzip(-2) should fail")
	}
	if _, err := NewZstd(0); err == nil {
		t.Error("NewZstd(0) should fail")
	}
	if _, err := NewZstd(23); err == nil {
		t.Error("NewZstd(23) should fail")
	}
}

func TestCompressWithMetrics(t *testing.T) {
	c, _ := New(AlgorithmGzip)
	payload := testPayload()

	res, err := CompressWithMetrics(c, payload)
	if err != nil {
		t.Fatalf("CompressWithMetrics failed: %v", err)
	}
	if res.OriginalSize != len(payload) {
		t.Errorf("OriginalSize = %d, want %d", res.OriginalSize, len(payload))
	}
	if res.CompressedSize != len(res.Data) {
		t.Errorf("CompressedSize = %d, want %d", res.CompressedSize, len(res.Data))
	}
	if res.Expanded {
		t.Error("repetitive payload should not expand")
	}
	if res.Ratio <= 0 || res.Ratio >= 1 {
		t.Errorf("Ratio = %f, want (0,1)", res.Ratio)
	}
	if res.Algorithm != AlgorithmGzip {
		t.Errorf("Algorithm = %s", res.Algorithm)
	}
}
