package watch

import (
	"encoding/json"

	"github.com/marmos91/fsx/internal/logger"
)

// Bridge connects filesystem-op events to the subscription registry.
// With a batcher it buffers events per window; without one it forwards
// directly.
type Bridge struct {
	registry  *Registry
	coalescer *Coalescer
	batcher   *Batcher
}

// NewBridge wires the fan-out path. batcher may be nil for direct
// delivery.
func NewBridge(registry *Registry, batcher *Batcher) *Bridge {
	b := &Bridge{registry: registry, batcher: batcher}
	if batcher != nil {
		batcher.OnBatch(b.deliverBatch)
	}
	return b
}

// NewPipelineBridge wires coalescing ahead of delivery: published events
// fold through the coalescer, whose batches then flow to the batcher (or
// straight to subscribers). Either stage may be nil.
func NewPipelineBridge(registry *Registry, coalescer *Coalescer, batcher *Batcher) *Bridge {
	b := NewBridge(registry, batcher)
	b.coalescer = coalescer
	if coalescer != nil {
		coalescer.OnEmit(b.afterCoalesce)
	}
	return b
}

// Publish routes one event into the pipeline. Events are expected to be
// published after the originating transaction commits.
func (b *Bridge) Publish(e Event) {
	if b.coalescer != nil {
		b.coalescer.Add(e)
		return
	}
	b.afterCoalesce([]Event{e})
}

func (b *Bridge) afterCoalesce(events []Event) {
	if b.batcher != nil {
		for _, e := range events {
			b.batcher.Queue(e)
		}
		return
	}
	b.deliverBatch(events)
}

// Flush forces emission of any buffered events through every stage.
func (b *Bridge) Flush() {
	if b.coalescer != nil {
		b.coalescer.Flush()
	}
	if b.batcher != nil {
		b.batcher.Flush()
	}
}

func (b *Bridge) deliverBatch(events []Event) {
	for _, e := range events {
		b.deliver(e)
	}
}

// deliver serializes the event and sends it to every matching subscriber.
// Per-connection send failures are logged and never abort the fan-out.
func (b *Bridge) deliver(e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		logger.Error("event serialization failed", "path", e.Path, "error", err)
		return
	}
	for _, conn := range b.registry.SubscribersForPath(e.Path) {
		if err := conn.WriteMessage(payload); err != nil {
			logger.Warn("event delivery failed", "path", e.Path, "error", err)
		}
	}
}
