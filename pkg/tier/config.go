package tier

import (
	"fmt"
	"time"

	"github.com/marmos91/fsx/pkg/fserrors"
)

// PromotionPolicy controls when reads trigger a move to a hotter tier.
type PromotionPolicy string

const (
	PromotionNone       PromotionPolicy = "none"
	PromotionOnAccess   PromotionPolicy = "on-access"
	PromotionAggressive PromotionPolicy = "aggressive"
)

// DemotionPolicy controls when inactivity triggers a move to a colder tier.
type DemotionPolicy string

const (
	DemotionNone  DemotionPolicy = "none"
	DemotionOnAge DemotionPolicy = "on-age"
)

// Config tunes tier selection, migration policies and the tier map cache.
type Config struct {
	HotEnabled  bool  `mapstructure:"hot_enabled" yaml:"hot_enabled"`
	WarmEnabled bool  `mapstructure:"warm_enabled" yaml:"warm_enabled"`
	ColdEnabled bool  `mapstructure:"cold_enabled" yaml:"cold_enabled"`
	HotMaxSize  int64 `mapstructure:"hot_max_size" yaml:"hot_max_size"`
	WarmMaxSize int64 `mapstructure:"warm_max_size" yaml:"warm_max_size"`

	PromotionPolicy    PromotionPolicy `mapstructure:"promotion_policy" yaml:"promotion_policy" validate:"omitempty,oneof=none on-access aggressive"`
	PromotionThreshold int             `mapstructure:"promotion_threshold" yaml:"promotion_threshold" validate:"gte=0"`
	PromotionWindow    time.Duration   `mapstructure:"promotion_window" yaml:"promotion_window"`

	DemotionPolicy DemotionPolicy `mapstructure:"demotion_policy" yaml:"demotion_policy" validate:"omitempty,oneof=none on-age"`
	HotMaxAge      time.Duration  `mapstructure:"hot_max_age" yaml:"hot_max_age"`
	WarmMaxAge     time.Duration  `mapstructure:"warm_max_age" yaml:"warm_max_age"`

	// MaxCacheSize caps the in-memory tier map entry count.
	MaxCacheSize int `mapstructure:"max_cache_size" yaml:"max_cache_size"`
}

// DefaultConfig returns a config with all tiers enabled and the standard
// policy defaults.
func DefaultConfig() Config {
	return Config{
		HotEnabled:         true,
		WarmEnabled:        true,
		ColdEnabled:        true,
		HotMaxSize:         1 << 20,
		WarmMaxSize:        64 << 20,
		PromotionPolicy:    PromotionOnAccess,
		PromotionThreshold: 3,
		PromotionWindow:    60 * time.Second,
		DemotionPolicy:     DemotionOnAge,
		HotMaxAge:          24 * time.Hour,
		WarmMaxAge:         30 * 24 * time.Hour,
		MaxCacheSize:       10000,
	}
}

// Validate checks the configuration, returning a config error naming the
// offending field.
func (c *Config) Validate() error {
	if !c.HotEnabled {
		return fserrors.NewConfigError("hot_enabled", "hot tier cannot be disabled")
	}
	if c.HotMaxSize < 0 {
		return fserrors.NewConfigError("hot_max_size", "must not be negative")
	}
	if c.WarmMaxSize < 0 {
		return fserrors.NewConfigError("warm_max_size", "must not be negative")
	}
	if c.HotMaxSize > c.WarmMaxSize {
		return fserrors.NewConfigError("hot_max_size",
			fmt.Sprintf("must not exceed warm_max_size (%d > %d)", c.HotMaxSize, c.WarmMaxSize))
	}
	switch c.PromotionPolicy {
	case PromotionNone, PromotionOnAccess, PromotionAggressive:
	default:
		return fserrors.NewConfigError("promotion_policy",
			fmt.Sprintf("unknown policy %q", c.PromotionPolicy))
	}
	switch c.DemotionPolicy {
	case DemotionNone, DemotionOnAge:
	default:
		return fserrors.NewConfigError("demotion_policy",
			fmt.Sprintf("unknown policy %q", c.DemotionPolicy))
	}
	if c.PromotionThreshold < 0 {
		return fserrors.NewConfigError("promotion_threshold", "must not be negative")
	}
	if c.HotMaxAge < 0 {
		return fserrors.NewConfigError("hot_max_age", "must not be negative")
	}
	if c.WarmMaxAge < 0 {
		return fserrors.NewConfigError("warm_max_age", "must not be negative")
	}
	if c.MaxCacheSize < 0 {
		return fserrors.NewConfigError("max_cache_size", "must not be negative")
	}
	return nil
}

// Enabled reports whether a tier participates in placement.
func (c *Config) Enabled(t Tier) bool {
	switch t {
	case Hot:
		return c.HotEnabled
	case Warm:
		return c.WarmEnabled
	case Cold:
		return c.ColdEnabled
	default:
		return false
	}
}

// MaxSize returns the size ceiling for a tier; cold is unbounded (-1).
func (c *Config) MaxSize(t Tier) int64 {
	switch t {
	case Hot:
		return c.HotMaxSize
	case Warm:
		return c.WarmMaxSize
	default:
		return -1
	}
}

// SelectTier picks a tier for a payload of the given size, falling through
// to hotter tiers when the natural choice is disabled.
func (c *Config) SelectTier(size int64) Tier {
	if size <= c.HotMaxSize {
		return Hot
	}
	if size <= c.WarmMaxSize {
		if c.WarmEnabled {
			return Warm
		}
		return Hot
	}
	if c.ColdEnabled {
		return Cold
	}
	if c.WarmEnabled {
		return Warm
	}
	return Hot
}
