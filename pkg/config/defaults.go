package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/fsx/pkg/metastore"
	"github.com/marmos91/fsx/pkg/tier"
	"github.com/marmos91/fsx/pkg/vfs"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and
// environment variables to fill in any missing values.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
	applyMetastoreDefaults(&cfg.Metastore)
	applyStorageDefaults(&cfg.Storage)
	applyTierDefaults(&cfg.Tier)
	applyVFSDefaults(&cfg.VFS)
	applyWatchDefaults(&cfg.Watch)
	applyMetricsDefaults(&cfg.Metrics)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// Enabled defaults to false, zero value already is

	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

// applyShutdownTimeoutDefaults sets shutdown timeout defaults.
func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyMetastoreDefaults sets metadata database defaults.
func applyMetastoreDefaults(cfg *metastore.Config) {
	cfg.ApplyDefaults()
	if cfg.Type == metastore.BackendSQLite && cfg.SQLite.Path == "" {
		cfg.SQLite.Path = "/var/lib/fsx/metastore.db"
	}
}

// applyStorageDefaults sets per-tier backend defaults. Every tier
// defaults to an embedded badger store under DataDir; S3 is opt-in.
func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.DataDir == "" {
		cfg.DataDir = "/var/lib/fsx"
	}
	applyBackendDefaults(&cfg.Hot, cfg.DataDir, "hot")
	applyBackendDefaults(&cfg.Warm, cfg.DataDir, "warm")
	applyBackendDefaults(&cfg.Cold, cfg.DataDir, "cold")
}

func applyBackendDefaults(cfg *BackendConfig, dataDir, tierName string) {
	if cfg.Type == "" {
		cfg.Type = BackendBadger
	}
	if cfg.Type == BackendBadger && cfg.Path == "" {
		cfg.Path = filepath.Join(dataDir, tierName)
	}
}

// applyTierDefaults sets placement policy defaults. A fully zero tier
// section gets the standard three-tier layout; a partially specified one
// keeps its explicit values.
func applyTierDefaults(cfg *tier.Config) {
	def := tier.DefaultConfig()
	if !cfg.HotEnabled && !cfg.WarmEnabled && !cfg.ColdEnabled {
		cfg.HotEnabled = def.HotEnabled
		cfg.WarmEnabled = def.WarmEnabled
		cfg.ColdEnabled = def.ColdEnabled
	}
	if cfg.HotMaxSize == 0 {
		cfg.HotMaxSize = def.HotMaxSize
	}
	if cfg.WarmMaxSize == 0 {
		cfg.WarmMaxSize = def.WarmMaxSize
	}
	if cfg.PromotionPolicy == "" {
		cfg.PromotionPolicy = def.PromotionPolicy
	}
	if cfg.PromotionThreshold == 0 {
		cfg.PromotionThreshold = def.PromotionThreshold
	}
	if cfg.PromotionWindow == 0 {
		cfg.PromotionWindow = def.PromotionWindow
	}
	if cfg.DemotionPolicy == "" {
		cfg.DemotionPolicy = def.DemotionPolicy
	}
	if cfg.HotMaxAge == 0 {
		cfg.HotMaxAge = def.HotMaxAge
	}
	if cfg.WarmMaxAge == 0 {
		cfg.WarmMaxAge = def.WarmMaxAge
	}
	if cfg.MaxCacheSize == 0 {
		cfg.MaxCacheSize = def.MaxCacheSize
	}
}

// applyVFSDefaults sets filesystem service defaults.
func applyVFSDefaults(cfg *vfs.Config) {
	if cfg.SmallFileLimit == 0 {
		cfg.SmallFileLimit = metastore.PageSize
	}
	if cfg.FileMode == 0 {
		cfg.FileMode = 0o644
	}
	if cfg.DirMode == 0 {
		cfg.DirMode = 0o755
	}
}

// applyWatchDefaults sets watch pipeline defaults.
func applyWatchDefaults(cfg *WatchConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.Server.MaxSubscriptions == 0 {
		cfg.Server.MaxSubscriptions = 100
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}

	if cfg.Coalescer.Debounce == 0 {
		cfg.Coalescer.Debounce = 50 * time.Millisecond
	}
	if cfg.Coalescer.MaxBatchSize == 0 {
		cfg.Coalescer.MaxBatchSize = 1000
	}
	if cfg.Coalescer.MaxWait == 0 {
		cfg.Coalescer.MaxWait = time.Second
	}

	if cfg.Batcher.Window == 0 {
		cfg.Batcher.Window = 100 * time.Millisecond
	}
	if cfg.Batcher.MaxBatchSize == 0 {
		cfg.Batcher.MaxBatchSize = 1000
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false; port defaults to 9090 when enabled
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
