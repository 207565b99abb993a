package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/fsx/internal/bytesize"
	"github.com/marmos91/fsx/pkg/metastore"
	"github.com/marmos91/fsx/pkg/tier"
	"github.com/marmos91/fsx/pkg/tier/s3store"
	"github.com/marmos91/fsx/pkg/vfs"
	"github.com/marmos91/fsx/pkg/watch/wsserver"
)

// Config represents the fsx configuration.
//
// It captures the static configuration of an fsx server:
//   - Logging configuration
//   - Telemetry/tracing configuration
//   - Metadata store connection (SQLite or PostgreSQL)
//   - Storage backends for the hot, warm and cold tiers
//   - Tier placement and migration policy
//   - Filesystem service tuning (small-file limit, page compression)
//   - Watch pipeline tuning and the WebSocket server
//   - Prometheus metrics server
//
// Configuration sources (in order of precedence):
//  1. Environment variables (FSX_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Metastore configures the metadata database (SQLite or PostgreSQL).
	Metastore metastore.Config `mapstructure:"metastore" yaml:"metastore"`

	// Storage selects the payload backend for each tier.
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Tier tunes placement, promotion and demotion policy.
	Tier tier.Config `mapstructure:"tier" yaml:"tier"`

	// VFS tunes the filesystem service.
	VFS vfs.Config `mapstructure:"vfs" yaml:"vfs"`

	// Watch configures the change notification pipeline and its
	// WebSocket server.
	Watch WatchConfig `mapstructure:"watch" yaml:"watch"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector
// (e.g., Jaeger, Tempo, or any OTLP receiver).
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317" (standard OTLP gRPC port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	// Default: true (for local development)
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0 (sample all)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	// Default: false (opt-in for profiling)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	// Default: "http://localhost:4040" (standard Pyroscope port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	// Valid values: cpu, alloc_objects, alloc_space, inuse_objects, inuse_space,
	//               goroutines, mutex_count, mutex_duration, block_count, block_duration
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// BackendType selects the payload backend for one tier.
type BackendType string

const (
	// BackendMemory holds payloads in process memory. For tests and
	// ephemeral deployments.
	BackendMemory BackendType = "memory"

	// BackendBadger is the embedded on-disk KV store.
	BackendBadger BackendType = "badger"

	// BackendS3 is S3 or any S3-compatible object store.
	BackendS3 BackendType = "s3"
)

// BackendConfig configures one tier's payload backend.
type BackendConfig struct {
	// Type selects the backend implementation.
	Type BackendType `mapstructure:"type" validate:"omitempty,oneof=memory badger s3" yaml:"type"`

	// Path is the data directory for the badger backend.
	Path string `mapstructure:"path" yaml:"path,omitempty"`

	// S3 configures the s3 backend.
	S3 s3store.Config `mapstructure:"s3" yaml:"s3,omitempty"`
}

// StorageConfig selects the payload backend for each enabled tier.
type StorageConfig struct {
	Hot  BackendConfig `mapstructure:"hot" yaml:"hot"`
	Warm BackendConfig `mapstructure:"warm" yaml:"warm"`
	Cold BackendConfig `mapstructure:"cold" yaml:"cold"`

	// DataDir is the base directory for badger backends configured
	// without an explicit path. Each tier gets a subdirectory.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`
}

// WatchConfig configures the change notification pipeline.
type WatchConfig struct {
	// Server configures the WebSocket endpoint.
	Server wsserver.Config `mapstructure:"server" yaml:"server"`

	// Coalescer tunes the debounce window between the filesystem
	// service and subscribers.
	Coalescer CoalescerConfig `mapstructure:"coalescer" yaml:"coalescer"`

	// Batcher tunes the fixed-window delivery batching. Disabled by
	// default: events are delivered as they are published.
	Batcher BatcherConfig `mapstructure:"batcher" yaml:"batcher"`
}

// CoalescerConfig tunes event coalescing.
type CoalescerConfig struct {
	// Debounce is the quiet period before pending events flush.
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`

	// MaxBatchSize flushes immediately once this many distinct paths
	// are pending. Zero disables the threshold.
	MaxBatchSize int `mapstructure:"max_batch_size" validate:"gte=0" yaml:"max_batch_size"`

	// MaxWait is the ceiling from the first queued event; the window
	// flushes when it elapses even under constant activity.
	MaxWait time.Duration `mapstructure:"max_wait" yaml:"max_wait"`
}

// BatcherConfig tunes delivery batching.
type BatcherConfig struct {
	// Enabled turns on fixed-window batching.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Window is the buffering period from the first queued event.
	Window time.Duration `mapstructure:"window" yaml:"window"`

	// MaxBatchSize flushes immediately when reached.
	MaxBatchSize int `mapstructure:"max_batch_size" validate:"gte=0" yaml:"max_batch_size"`

	// CompressEvents coalesces same-path events within the window.
	CompressEvents bool `mapstructure:"compress_events" yaml:"compress_events"`

	// PrioritizeEvents orders batches delete > rename > create > modify.
	PrioritizeEvents bool `mapstructure:"prioritize_events" yaml:"prioritize_events"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP server are enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (FSX_*)
//  2. Configuration file
//  3. Default values
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	// If no config file was found, use defaults
	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages.
// It checks if the config file exists and provides user-friendly
// instructions if not.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  fsx init\n\n"+
				"Or specify a custom config file:\n"+
				"  fsx <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  fsx init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path.
// The configuration is saved in YAML format using proper yaml tags.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Restricted permissions: config files may carry S3 credentials.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the FSX_ prefix and underscores.
	// Example: FSX_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("FSX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/fsx/config.{yaml,toml}
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		// Also an os.PathError when an explicit config file doesn't exist
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
// This includes byte size and time.Duration parsing.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		byteSizeDecodeHook(),
	)
}

// byteSizeDecodeHook returns a mapstructure decode hook that parses
// human-readable sizes like "1Gi", "500Mi" or "100MB" into byte counts.
// It applies to bytesize.ByteSize targets and to plain int64 size fields
// such as vfs.small_file_limit and tier.hot_max_size.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	byteSizeType := reflect.TypeOf(bytesize.ByteSize(0))
	durationType := reflect.TypeOf(time.Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		isInt64 := to.Kind() == reflect.Int64 && to != durationType
		if to != byteSizeType && !isInt64 {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			size, err := bytesize.ParseByteSize(v)
			if err != nil {
				return nil, err
			}
			if isInt64 {
				return int64(size), nil
			}
			return size, nil
		case int:
			return data, nil
		case int64:
			return data, nil
		case uint64:
			return data, nil
		case float64:
			// YAML often deserializes numbers as float64
			return data, nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook returns a mapstructure decode hook that converts
// strings like "30s", "5m", "1h" to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to
// current directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "fsx")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "fsx")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	path := GetDefaultConfigPath()
	_, err := os.Stat(path)
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
