package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for fsx spans. Generic filesystem keys use the "fs."
// prefix; subsystem-specific keys use their own.
const (
	// Filesystem operations
	AttrPath      = "fs.path"
	AttrOperation = "fs.operation"
	AttrSize      = "fs.size"
	AttrMode      = "fs.mode"
	AttrFileType  = "fs.type"
	AttrNewPath   = "fs.new_path"
	AttrBytesIn   = "fs.bytes_read"
	AttrBytesOut  = "fs.bytes_written"

	// Tiered storage
	AttrTier     = "tier.name"
	AttrTierFrom = "tier.from"
	AttrTierTo   = "tier.to"
	AttrBlobID   = "blob.id"
	AttrPageKey  = "page.key"
	AttrPageNum  = "page.number"

	// Object storage
	AttrBucket = "storage.bucket"
	AttrKey    = "storage.key"
	AttrRegion = "storage.region"

	// Compression
	AttrCodecAlgorithm = "codec.algorithm"
	AttrCodecRatio     = "codec.ratio"

	// Metadata transactions
	AttrTxnID    = "txn.id"
	AttrTxnDepth = "txn.depth"
	AttrTxnRetry = "txn.retry"

	// Watch pipeline
	AttrWatchPattern = "watch.pattern"
	AttrWatchEvents  = "watch.events"
	AttrClientAddr   = "client.address"
)

// Span names follow <subsystem>.<operation>.
const (
	SpanVFSWrite   = "vfs.write"
	SpanVFSRead    = "vfs.read"
	SpanVFSRemove  = "vfs.remove"
	SpanVFSMkdir   = "vfs.mkdir"
	SpanVFSRename  = "vfs.rename"
	SpanVFSStat    = "vfs.stat"
	SpanVFSReadDir = "vfs.readdir"
	SpanVFSSymlink = "vfs.symlink"
	SpanVFSLink    = "vfs.link"

	SpanTierRead    = "tier.read"
	SpanTierWrite   = "tier.write"
	SpanTierPromote = "tier.promote"
	SpanTierDemote  = "tier.demote"

	SpanMetaTxn   = "metastore.transaction"
	SpanMetaQuery = "metastore.query"

	SpanWatchPublish = "watch.publish"
	SpanWatchBatch   = "watch.batch"
)

// Path returns an attribute for a filesystem path.
func Path(p string) attribute.KeyValue {
	return attribute.String(AttrPath, p)
}

// Operation returns an attribute for the filesystem operation name.
func Operation(op string) attribute.KeyValue {
	return attribute.String(AttrOperation, op)
}

// Size returns an attribute for a byte size.
func Size(n int64) attribute.KeyValue {
	return attribute.Int64(AttrSize, n)
}

// Mode returns an attribute for a file mode.
func Mode(mode uint32) attribute.KeyValue {
	return attribute.Int64(AttrMode, int64(mode))
}

// NewPath returns an attribute for a rename destination.
func NewPath(p string) attribute.KeyValue {
	return attribute.String(AttrNewPath, p)
}

// BytesRead returns an attribute for bytes actually read.
func BytesRead(n int64) attribute.KeyValue {
	return attribute.Int64(AttrBytesIn, n)
}

// BytesWritten returns an attribute for bytes actually written.
func BytesWritten(n int64) attribute.KeyValue {
	return attribute.Int64(AttrBytesOut, n)
}

// Tier returns an attribute for a storage tier name.
func Tier(name string) attribute.KeyValue {
	return attribute.String(AttrTier, name)
}

// TierMove returns attributes describing a migration between tiers.
func TierMove(from, to string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrTierFrom, from),
		attribute.String(AttrTierTo, to),
	}
}

// BlobID returns an attribute for a content-addressed blob id.
func BlobID(id string) attribute.KeyValue {
	return attribute.String(AttrBlobID, id)
}

// PageKey returns an attribute for a page storage key.
func PageKey(key string) attribute.KeyValue {
	return attribute.String(AttrPageKey, key)
}

// PageNumber returns an attribute for a page ordinal within a file.
func PageNumber(n int64) attribute.KeyValue {
	return attribute.Int64(AttrPageNum, n)
}

// Bucket returns an attribute for an object-store bucket.
func Bucket(name string) attribute.KeyValue {
	return attribute.String(AttrBucket, name)
}

// StorageKey returns an attribute for an object-store key.
func StorageKey(key string) attribute.KeyValue {
	return attribute.String(AttrKey, key)
}

// Region returns an attribute for a cloud region.
func Region(region string) attribute.KeyValue {
	return attribute.String(AttrRegion, region)
}

// CodecAlgorithm returns an attribute for a compression algorithm.
func CodecAlgorithm(alg string) attribute.KeyValue {
	return attribute.String(AttrCodecAlgorithm, alg)
}

// CodecRatio returns an attribute for a compression ratio.
func CodecRatio(r float64) attribute.KeyValue {
	return attribute.Float64(AttrCodecRatio, r)
}

// TxnID returns an attribute for a metadata transaction id.
func TxnID(id string) attribute.KeyValue {
	return attribute.String(AttrTxnID, id)
}

// TxnDepth returns an attribute for savepoint nesting depth.
func TxnDepth(depth int) attribute.KeyValue {
	return attribute.Int(AttrTxnDepth, depth)
}

// TxnRetry returns an attribute for the transaction attempt number.
func TxnRetry(attempt int) attribute.KeyValue {
	return attribute.Int(AttrTxnRetry, attempt)
}

// WatchPattern returns an attribute for a subscription glob pattern.
func WatchPattern(pattern string) attribute.KeyValue {
	return attribute.String(AttrWatchPattern, pattern)
}

// WatchEvents returns an attribute for an event count.
func WatchEvents(n int) attribute.KeyValue {
	return attribute.Int(AttrWatchEvents, n)
}

// ClientAddr returns an attribute for a watch client address.
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// StartVFSSpan starts a span for a filesystem operation, tagging the
// operation name and path.
func StartVFSSpan(ctx context.Context, operation, path string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{Operation(operation), Path(path)}, attrs...)
	return StartSpan(ctx, "vfs."+operation, trace.WithAttributes(allAttrs...))
}

// StartTierSpan starts a span for a placement-engine operation.
func StartTierSpan(ctx context.Context, operation, tierName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{Tier(tierName)}, attrs...)
	return StartSpan(ctx, "tier."+operation, trace.WithAttributes(allAttrs...))
}

// StartMetastoreSpan starts a span for a metadata store operation.
func StartMetastoreSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, "metastore."+operation, trace.WithAttributes(attrs...))
}

// StartWatchSpan starts a span for a watch pipeline stage.
func StartWatchSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, "watch."+operation, trace.WithAttributes(attrs...))
}
