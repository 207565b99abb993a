package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "fsx", cfg.ServiceName)
	assert.Equal(t, "dev", cfg.ServiceVersion)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInitDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Enabled = false

	shutdown, err := Init(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	// Should be able to call shutdown without error
	err = shutdown(ctx)
	assert.NoError(t, err)

	// Should not be enabled
	assert.False(t, IsEnabled())
}

func TestTracerReturnsNoOp(t *testing.T) {
	// Reset state
	tracer = nil
	enabled = false

	// Without initialization, should return no-op tracer
	tr := Tracer()
	require.NotNil(t, tr)
}

func TestStartSpan(t *testing.T) {
	ctx := context.Background()

	// Even without initialization, StartSpan should work (no-op)
	newCtx, span := StartSpan(ctx, "test.operation")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)

	// Should be able to end the span
	span.End()
}

func TestSpanFromContext(t *testing.T) {
	ctx := context.Background()

	// Should return a span even without active span
	span := SpanFromContext(ctx)
	require.NotNil(t, span)
}

func TestAddEvent(t *testing.T) {
	ctx := context.Background()

	// Should not panic with no active span
	require.NotPanics(t, func() {
		AddEvent(ctx, "test.event")
	})
}

func TestRecordError(t *testing.T) {
	ctx := context.Background()

	// Should not panic with nil error
	require.NotPanics(t, func() {
		RecordError(ctx, nil)
	})

	// Should not panic with error
	require.NotPanics(t, func() {
		RecordError(ctx, errors.New("test error"))
	})
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()

	// Should not panic
	require.NotPanics(t, func() {
		SetStatus(ctx, codes.Ok, "success")
	})

	require.NotPanics(t, func() {
		SetStatus(ctx, codes.Error, "failed")
	})
}

func TestSetAttributes(t *testing.T) {
	ctx := context.Background()

	// Should not panic
	require.NotPanics(t, func() {
		SetAttributes(ctx, Path("/home/user/file.txt"))
	})
}

func TestTraceID(t *testing.T) {
	ctx := context.Background()

	// Without active span, should return empty string
	traceID := TraceID(ctx)
	assert.Equal(t, "", traceID)
}

func TestSpanID(t *testing.T) {
	ctx := context.Background()

	// Without active span, should return empty string
	spanID := SpanID(ctx)
	assert.Equal(t, "", spanID)
}

func TestAttributeHelpers(t *testing.T) {
	t.Run("Path", func(t *testing.T) {
		attr := Path("/home/user/file.txt")
		assert.Equal(t, AttrPath, string(attr.Key))
		assert.Equal(t, "/home/user/file.txt", attr.Value.AsString())
	})

	t.Run("Operation", func(t *testing.T) {
		attr := Operation("write")
		assert.Equal(t, AttrOperation, string(attr.Key))
		assert.Equal(t, "write", attr.Value.AsString())
	})

	t.Run("Size", func(t *testing.T) {
		attr := Size(1048576)
		assert.Equal(t, AttrSize, string(attr.Key))
		assert.Equal(t, int64(1048576), attr.Value.AsInt64())
	})

	t.Run("Mode", func(t *testing.T) {
		attr := Mode(0o644)
		assert.Equal(t, AttrMode, string(attr.Key))
		assert.Equal(t, int64(0o644), attr.Value.AsInt64())
	})

	t.Run("Tier", func(t *testing.T) {
		attr := Tier("warm")
		assert.Equal(t, AttrTier, string(attr.Key))
		assert.Equal(t, "warm", attr.Value.AsString())
	})

	t.Run("TierMove", func(t *testing.T) {
		attrs := TierMove("hot", "cold")
		require.Len(t, attrs, 2)
		assert.Equal(t, AttrTierFrom, string(attrs[0].Key))
		assert.Equal(t, "hot", attrs[0].Value.AsString())
		assert.Equal(t, AttrTierTo, string(attrs[1].Key))
		assert.Equal(t, "cold", attrs[1].Value.AsString())
	})

	t.Run("BlobID", func(t *testing.T) {
		attr := BlobID("abc123")
		assert.Equal(t, AttrBlobID, string(attr.Key))
		assert.Equal(t, "abc123", attr.Value.AsString())
	})

	t.Run("PageKey", func(t *testing.T) {
		attr := PageKey("page-uuid")
		assert.Equal(t, AttrPageKey, string(attr.Key))
		assert.Equal(t, "page-uuid", attr.Value.AsString())
	})

	t.Run("PageNumber", func(t *testing.T) {
		attr := PageNumber(3)
		assert.Equal(t, AttrPageNum, string(attr.Key))
		assert.Equal(t, int64(3), attr.Value.AsInt64())
	})

	t.Run("Bucket", func(t *testing.T) {
		attr := Bucket("my-bucket")
		assert.Equal(t, AttrBucket, string(attr.Key))
		assert.Equal(t, "my-bucket", attr.Value.AsString())
	})

	t.Run("StorageKey", func(t *testing.T) {
		attr := StorageKey("path/to/object")
		assert.Equal(t, AttrKey, string(attr.Key))
		assert.Equal(t, "path/to/object", attr.Value.AsString())
	})

	t.Run("CodecAlgorithm", func(t *testing.T) {
		attr := CodecAlgorithm("zstd")
		assert.Equal(t, AttrCodecAlgorithm, string(attr.Key))
		assert.Equal(t, "zstd", attr.Value.AsString())
	})

	t.Run("TxnRetry", func(t *testing.T) {
		attr := TxnRetry(2)
		assert.Equal(t, AttrTxnRetry, string(attr.Key))
		assert.Equal(t, int64(2), attr.Value.AsInt64())
	})

	t.Run("WatchPattern", func(t *testing.T) {
		attr := WatchPattern("/home/**")
		assert.Equal(t, AttrWatchPattern, string(attr.Key))
		assert.Equal(t, "/home/**", attr.Value.AsString())
	})

	t.Run("ClientAddr", func(t *testing.T) {
		attr := ClientAddr("192.168.1.100:12345")
		assert.Equal(t, AttrClientAddr, string(attr.Key))
		assert.Equal(t, "192.168.1.100:12345", attr.Value.AsString())
	})
}

func TestStartVFSSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartVFSSpan(ctx, "write", "/data/file.bin")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()

	// With additional attributes
	newCtx2, span2 := StartVFSSpan(ctx, "read", "/data/file.bin", Size(4096), Tier("hot"))
	require.NotNil(t, newCtx2)
	require.NotNil(t, span2)
	span2.End()
}

func TestStartTierSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartTierSpan(ctx, "promote", "warm", TierMove("warm", "hot")...)
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()
}

func TestStartMetastoreSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartMetastoreSpan(ctx, "transaction", TxnDepth(1))
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()
}

func TestStartWatchSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartWatchSpan(ctx, "publish", WatchEvents(4))
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()
}
