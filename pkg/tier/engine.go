package tier

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/fsx/internal/logger"
	"github.com/marmos91/fsx/pkg/fserrors"
)

// Backend is one storage tier's payload store. Hot is typically a local KV
// store, warm and cold are object stores.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error

	// Head returns the stored size without fetching the payload.
	Head(ctx context.Context, key string) (int64, error)
}

// Metadata is the engine's view of the metadata store.
type Metadata interface {
	SetMetadata(ctx context.Context, path string, t Tier, size int64) error
	DeleteMetadata(ctx context.Context, path string) error
	RecordAccess(ctx context.Context, path string) error
}

// Hooks are optional instrumentation callbacks.
type Hooks struct {
	OnOperationStart func(op, path string)
	OnOperationEnd   func(op, path string, err error)
	OnTierMigration  func(path string, from, to Tier)
}

// CopyOptions tunes Copy. A zero Tier keeps the source tier.
type CopyOptions struct {
	Tier Tier
}

// Engine places payloads across tiers and migrates them per policy.
type Engine struct {
	cfg      Config
	backends map[Tier]Backend
	meta     Metadata
	tmap     *tierMap
	metrics  *metrics
	hooks    Hooks
	now      func() time.Time
}

// probeOrder is the search order when the tier map has no answer.
var probeOrder = []Tier{Warm, Cold, Hot}

// NewEngine validates the config and wires the backends. Every enabled
// tier needs a backend.
func NewEngine(cfg Config, backends map[Tier]Backend, meta Metadata, hooks Hooks) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, t := range Order {
		if cfg.Enabled(t) && backends[t] == nil {
			return nil, fserrors.NewConfigError(string(t)+"_backend",
				"enabled tier has no backend")
		}
	}

	return &Engine{
		cfg:      cfg,
		backends: backends,
		meta:     meta,
		tmap:     newTierMap(cfg.MaxCacheSize, cfg.PromotionWindow),
		metrics:  newMetrics(),
		hooks:    hooks,
		now:      time.Now,
	}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// SelectTier picks a tier for a payload of the given size.
func (e *Engine) SelectTier(size int64) Tier {
	return e.cfg.SelectTier(size)
}

// WriteFile places the payload on the size-selected tier and returns it.
func (e *Engine) WriteFile(ctx context.Context, path string, data []byte) (Tier, error) {
	e.opStart("write", path)
	var err error
	defer func() { e.opEnd("write", path, err) }()

	t := e.cfg.SelectTier(int64(len(data)))
	if err = e.backends[t].Put(ctx, path, data); err != nil {
		return "", err
	}
	if err = e.meta.SetMetadata(ctx, path, t, int64(len(data))); err != nil {
		return "", err
	}
	e.tmap.Set(path, t, int64(len(data)))
	e.metrics.write(t)
	return t, nil
}

// ReadFile fetches the payload, consulting the tier map first and probing
// warm, cold then hot on a miss. Reads feed access tracking and may kick
// off an auto-promotion.
func (e *Engine) ReadFile(ctx context.Context, path string) ([]byte, error) {
	e.opStart("read", path)
	var err error
	defer func() { e.opEnd("read", path, err) }()

	if cached, ok := e.tmap.Get(path); ok {
		e.metrics.hit()
		data, getErr := e.timedGet(ctx, cached.Tier, path)
		if getErr == nil {
			return data, e.finishRead(ctx, path, cached.Tier, data)
		}
		if !fserrors.IsNotFound(getErr) {
			logger.Warn("cached tier read failed, probing",
				"path", path, "tier", cached.Tier, "error", getErr)
		}
	} else {
		e.metrics.miss()
	}

	for _, t := range probeOrder {
		if !e.cfg.Enabled(t) {
			continue
		}
		data, getErr := e.timedGet(ctx, t, path)
		if getErr == nil {
			return data, e.finishRead(ctx, path, t, data)
		}
		if !fserrors.IsNotFound(getErr) {
			err = getErr
			return nil, err
		}
	}

	err = fserrors.NewNotFound(path, "file")
	return nil, err
}

// DeleteFile removes the payload from its current tier along with its
// metadata and tier map entry.
func (e *Engine) DeleteFile(ctx context.Context, path string) error {
	e.opStart("delete", path)
	var err error
	defer func() { e.opEnd("delete", path, err) }()

	t, err := e.resolveTier(ctx, path)
	if err != nil {
		return err
	}
	if err = e.backends[t].Delete(ctx, path); err != nil {
		return err
	}
	if err = e.meta.DeleteMetadata(ctx, path); err != nil {
		return err
	}
	e.tmap.Delete(path)
	return nil
}

// Move relocates a payload, keeping its tier.
func (e *Engine) Move(ctx context.Context, src, dst string) error {
	t, err := e.resolveTier(ctx, src)
	if err != nil {
		return err
	}
	data, err := e.backends[t].Get(ctx, src)
	if err != nil {
		return err
	}
	if err := e.backends[t].Put(ctx, dst, data); err != nil {
		return err
	}
	if err := e.meta.SetMetadata(ctx, dst, t, int64(len(data))); err != nil {
		return err
	}
	e.tmap.Set(dst, t, int64(len(data)))

	if err := e.backends[t].Delete(ctx, src); err != nil {
		return err
	}
	if err := e.meta.DeleteMetadata(ctx, src); err != nil {
		return err
	}
	e.tmap.Delete(src)
	return nil
}

// Copy duplicates a payload, defaulting to the source tier.
func (e *Engine) Copy(ctx context.Context, src, dst string, opts CopyOptions) error {
	srcTier, err := e.resolveTier(ctx, src)
	if err != nil {
		return err
	}

	target := srcTier
	if opts.Tier != "" {
		if !opts.Tier.Valid() {
			return fserrors.NewInvalidArgument("invalid tier: " + string(opts.Tier))
		}
		if !e.cfg.Enabled(opts.Tier) {
			return fserrors.NewInvalidArgument("tier is disabled: " + string(opts.Tier))
		}
		target = opts.Tier
	}

	data, err := e.backends[srcTier].Get(ctx, src)
	if err != nil {
		return err
	}
	if err := e.backends[target].Put(ctx, dst, data); err != nil {
		return err
	}
	if err := e.meta.SetMetadata(ctx, dst, target, int64(len(data))); err != nil {
		return err
	}
	e.tmap.Set(dst, target, int64(len(data)))
	return nil
}

// Promote moves a payload to a strictly hotter tier.
func (e *Engine) Promote(ctx context.Context, path string, to Tier) error {
	from, err := e.resolveTier(ctx, path)
	if err != nil {
		return err
	}
	if !to.Valid() || !from.Colder(to) {
		return fserrors.NewInvalidArgument(
			fmt.Sprintf("cannot promote %s from %s to %s", path, from, to))
	}
	if !e.cfg.Enabled(to) {
		return fserrors.NewInvalidArgument("tier is disabled: " + string(to))
	}
	if err := e.migrate(ctx, path, from, to); err != nil {
		return err
	}
	e.metrics.promotion(to)
	return nil
}

// Demote moves a payload to a strictly colder tier.
func (e *Engine) Demote(ctx context.Context, path string, to Tier) error {
	from, err := e.resolveTier(ctx, path)
	if err != nil {
		return err
	}
	if !to.Valid() || !to.Colder(from) {
		return fserrors.NewInvalidArgument(
			fmt.Sprintf("cannot demote %s from %s to %s", path, from, to))
	}
	if !e.cfg.Enabled(to) {
		return fserrors.NewInvalidArgument("tier is disabled: " + string(to))
	}
	if err := e.migrate(ctx, path, from, to); err != nil {
		return err
	}
	e.metrics.demotion(to)
	return nil
}

// RunDemotionScan sweeps the tier map for entries that aged out of their
// tier and demotes them. Returns the number moved.
func (e *Engine) RunDemotionScan(ctx context.Context) (int, error) {
	now := e.now()
	moved := 0
	for _, entry := range e.tmap.Entries() {
		target, ok := e.cfg.ShouldDemote(entry, now)
		if !ok {
			continue
		}
		if err := e.Demote(ctx, entry.Path, target); err != nil {
			logger.Warn("demotion failed", "path", entry.Path, "to", target, "error", err)
			continue
		}
		moved++
	}
	if moved > 0 {
		logger.Info("demotion scan complete", "moved", moved)
	}
	return moved, nil
}

// Metrics returns a snapshot of the engine counters.
func (e *Engine) Metrics() MetricsSnapshot {
	return e.metrics.snapshot()
}

// CacheLen returns the number of tier map entries.
func (e *Engine) CacheLen() int {
	return e.tmap.Len()
}

// migrate moves a payload between tiers and fires the migration hook.
func (e *Engine) migrate(ctx context.Context, path string, from, to Tier) error {
	data, err := e.backends[from].Get(ctx, path)
	if err != nil {
		return err
	}
	if err := e.backends[to].Put(ctx, path, data); err != nil {
		return err
	}
	if err := e.backends[from].Delete(ctx, path); err != nil {
		return err
	}
	if err := e.meta.SetMetadata(ctx, path, to, int64(len(data))); err != nil {
		return err
	}
	e.tmap.Set(path, to, int64(len(data)))

	if e.hooks.OnTierMigration != nil {
		e.hooks.OnTierMigration(path, from, to)
	}
	logger.Debug("tier migration", "path", path, "from", from, "to", to)
	return nil
}

// resolveTier locates a payload: tier map first, then head probes in the
// standard order.
func (e *Engine) resolveTier(ctx context.Context, path string) (Tier, error) {
	if entry, ok := e.tmap.Get(path); ok {
		return entry.Tier, nil
	}
	for _, t := range probeOrder {
		if !e.cfg.Enabled(t) {
			continue
		}
		if _, err := e.backends[t].Head(ctx, path); err == nil {
			return t, nil
		} else if !fserrors.IsNotFound(err) {
			return "", err
		}
	}
	return "", fserrors.NewNotFound(path, "file")
}

// timedGet reads from one tier, recording read latency on success.
func (e *Engine) timedGet(ctx context.Context, t Tier, path string) ([]byte, error) {
	backend, ok := e.backends[t]
	if !ok {
		return nil, fserrors.NewNotFound(path, "file")
	}
	start := time.Now()
	data, err := backend.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	e.metrics.read(t, time.Since(start))
	return data, nil
}

// finishRead updates access tracking after a successful read and evaluates
// auto-promotion.
func (e *Engine) finishRead(ctx context.Context, path string, t Tier, data []byte) error {
	if err := e.meta.RecordAccess(ctx, path); err != nil {
		logger.Warn("access tracking failed", "path", path, "error", err)
	}
	e.tmap.Set(path, t, int64(len(data)))
	entry, ok := e.tmap.RecordAccess(path)
	if !ok {
		return nil
	}

	if target, promote := e.cfg.ShouldAutoPromote(entry); promote {
		if err := e.Promote(ctx, path, target); err != nil {
			logger.Warn("auto-promotion failed", "path", path, "to", target, "error", err)
		}
	}
	return nil
}

func (e *Engine) opStart(op, path string) {
	if e.hooks.OnOperationStart != nil {
		e.hooks.OnOperationStart(op, path)
	}
}

func (e *Engine) opEnd(op, path string, err error) {
	if e.hooks.OnOperationEnd != nil {
		e.hooks.OnOperationEnd(op, path, err)
	}
}
