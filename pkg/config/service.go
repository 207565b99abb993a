package config

import (
	"context"
	"fmt"

	"github.com/marmos91/fsx/internal/logger"
	"github.com/marmos91/fsx/pkg/metastore"
	"github.com/marmos91/fsx/pkg/tier"
	"github.com/marmos91/fsx/pkg/tier/badgerstore"
	"github.com/marmos91/fsx/pkg/tier/memory"
	"github.com/marmos91/fsx/pkg/tier/s3store"
	"github.com/marmos91/fsx/pkg/vfs"
	"github.com/marmos91/fsx/pkg/watch"
)

// Runtime holds the wired fsx components.
//
// It is produced by InitializeService and torn down with Close. The
// zero value is not usable.
type Runtime struct {
	Store     *metastore.Store
	Engine    *tier.Engine
	VFS       *vfs.Service
	Registry  *watch.Registry
	Coalescer *watch.Coalescer
	Batcher   *watch.Batcher
	Bridge    *watch.Bridge

	closers []func() error
}

// InitializeService creates a fully configured Runtime from the provided
// configuration.
//
// This function orchestrates the complete initialization process:
//  1. Opens the metadata store and runs schema setup
//  2. Opens one payload backend per enabled tier
//  3. Wires the placement engine over the backends
//  4. Builds the watch pipeline (registry, coalescer, optional batcher)
//  5. Creates the filesystem service on top
//
// hooks carries optional engine instrumentation (e.g. Prometheus
// counters); pass tier.Hooks{} for none.
func InitializeService(ctx context.Context, cfg *Config, hooks tier.Hooks) (*Runtime, error) {
	logger.Debug("Initializing fsx runtime from configuration")

	rt := &Runtime{}

	store, err := metastore.Open(cfg.Metastore)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata store: %w", err)
	}
	rt.Store = store
	rt.closers = append(rt.closers, store.Close)

	if err := store.Init(ctx); err != nil {
		rt.close()
		return nil, fmt.Errorf("failed to initialize metadata schema: %w", err)
	}

	backends, err := rt.openBackends(ctx, cfg)
	if err != nil {
		rt.close()
		return nil, err
	}

	engine, err := tier.NewEngine(cfg.Tier, backends, vfs.NewEngineMetadata(store), hooks)
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("failed to create placement engine: %w", err)
	}
	rt.Engine = engine
	logger.Info("Placement engine ready",
		"hot", cfg.Storage.Hot.Type, "warm", cfg.Storage.Warm.Type, "cold", cfg.Storage.Cold.Type)

	rt.Registry = watch.NewRegistry(cfg.Watch.Server.MaxSubscriptions)
	rt.Coalescer = watch.NewCoalescer(watch.CoalescerConfig{
		Debounce:     cfg.Watch.Coalescer.Debounce,
		MaxBatchSize: cfg.Watch.Coalescer.MaxBatchSize,
		MaxWait:      cfg.Watch.Coalescer.MaxWait,
	})
	if cfg.Watch.Batcher.Enabled {
		rt.Batcher = watch.NewBatcher(watch.BatcherConfig{
			Window:           cfg.Watch.Batcher.Window,
			MaxBatchSize:     cfg.Watch.Batcher.MaxBatchSize,
			CompressEvents:   cfg.Watch.Batcher.CompressEvents,
			PrioritizeEvents: cfg.Watch.Batcher.PrioritizeEvents,
		})
	}
	rt.Bridge = watch.NewPipelineBridge(rt.Registry, rt.Coalescer, rt.Batcher)

	service, err := vfs.New(cfg.VFS, store, engine, rt.Bridge)
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("failed to create filesystem service: %w", err)
	}
	rt.VFS = service

	return rt, nil
}

// openBackends opens the payload backend for every enabled tier.
func (rt *Runtime) openBackends(ctx context.Context, cfg *Config) (map[tier.Tier]tier.Backend, error) {
	sections := []struct {
		tier tier.Tier
		cfg  *BackendConfig
	}{
		{tier.Hot, &cfg.Storage.Hot},
		{tier.Warm, &cfg.Storage.Warm},
		{tier.Cold, &cfg.Storage.Cold},
	}

	backends := make(map[tier.Tier]tier.Backend)
	for _, section := range sections {
		if !cfg.Tier.Enabled(section.tier) {
			continue
		}
		backend, err := rt.openBackend(ctx, section.cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s tier backend: %w", section.tier, err)
		}
		backends[section.tier] = backend
	}
	return backends, nil
}

func (rt *Runtime) openBackend(ctx context.Context, cfg *BackendConfig) (tier.Backend, error) {
	switch cfg.Type {
	case BackendMemory:
		return memory.New(), nil
	case BackendBadger:
		store, err := badgerstore.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, store.Close)
		return store, nil
	case BackendS3:
		return s3store.NewFromConfig(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown storage backend type: %q", cfg.Type)
	}
}

// Close tears down the runtime: the watch pipeline stops accepting
// events, then backends and the metadata store are closed in reverse
// open order.
func (rt *Runtime) Close() error {
	if rt.Bridge != nil {
		rt.Bridge.Flush()
	}
	if rt.Batcher != nil {
		rt.Batcher.Dispose()
	}
	if rt.Coalescer != nil {
		rt.Coalescer.Dispose()
	}
	return rt.close()
}

func (rt *Runtime) close() error {
	var firstErr error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	rt.closers = nil
	return firstErr
}
