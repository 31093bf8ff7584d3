// Package config loads cache settings from YAML and TIERCACHE_* environment
// variables.
package config

import (
	"strings"
	"time"

	"go.trai.ch/zerr"
	"go.uber.org/zap/zapcore"

	cache "github.com/krisalay/tiered-cache"
	"github.com/krisalay/tiered-cache/durable"
	"github.com/krisalay/tiered-cache/eviction"
	"github.com/krisalay/tiered-cache/expiration"
	"github.com/krisalay/tiered-cache/invalidation"
	"github.com/krisalay/tiered-cache/logging"
	"github.com/krisalay/tiered-cache/writepolicy"
)

// ErrInvalidConfig is returned when validation finds at least one problem.
var ErrInvalidConfig = zerr.New("invalid configuration")

// Config is the complete configuration of a cache process.
type Config struct {
	Cache   CacheConfig    `mapstructure:"cache" yaml:"cache"`
	Durable DurableConfig  `mapstructure:"durable" yaml:"durable"`
	Logging logging.Config `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

// CacheConfig holds the behaviour of the cache itself.
type CacheConfig struct {
	Namespace        string              `mapstructure:"namespace" yaml:"namespace"`
	SchemaVersion    string              `mapstructure:"schema_version" yaml:"schema_version"`
	MaxVolatileItems int                 `mapstructure:"max_volatile_items" yaml:"max_volatile_items"`
	DefaultTTL       time.Duration       `mapstructure:"default_ttl" yaml:"default_ttl"`
	DurableEnabled   bool                `mapstructure:"durable_enabled" yaml:"durable_enabled"`
	EvictionPolicy   string              `mapstructure:"eviction_policy" yaml:"eviction_policy"`
	WritePolicy      string              `mapstructure:"write_policy" yaml:"write_policy"`
	WriteBuffer      int                 `mapstructure:"write_buffer" yaml:"write_buffer"`
	CoalesceLoads    bool                `mapstructure:"coalesce_loads" yaml:"coalesce_loads"`
	WarmConcurrency  int                 `mapstructure:"warm_concurrency" yaml:"warm_concurrency"`
	TTLRules         []expiration.Rule   `mapstructure:"ttl_rules" yaml:"ttl_rules"`
	Invalidation     map[string][]string `mapstructure:"invalidation" yaml:"invalidation"`
}

// DurableConfig selects the durable store.
type DurableConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	Path   string `mapstructure:"path" yaml:"path"`
}

// MetricsConfig controls the Prometheus exporter.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	c := cache.DefaultConfig()
	return &Config{
		Cache: CacheConfig{
			Namespace:        c.Namespace,
			SchemaVersion:    c.SchemaVersion,
			MaxVolatileItems: c.MaxVolatileItems,
			DefaultTTL:       c.DefaultTTL,
			DurableEnabled:   c.DurableEnabled,
			EvictionPolicy:   string(c.EvictionPolicy),
			WritePolicy:      c.WritePolicy,
			WriteBuffer:      c.WriteBuffer,
			CoalesceLoads:    c.CoalesceLoads,
			WarmConcurrency:  8,
			TTLRules:         expiration.DefaultRules(),
			Invalidation:     invalidation.DefaultTable(),
		},
		Durable: DurableConfig{
			Driver: durable.DriverSQLite,
			Path:   "data/tiercache.db",
		},
		Logging: logging.DefaultConfig(),
		Metrics: MetricsConfig{
			Enabled:   false,
			Namespace: "tiercache",
		},
	}
}

// Validate returns every problem found, or nil.
func (c *Config) Validate() []error {
	var errs []error
	invalid := func(field string, value any, msg string) {
		errs = append(errs, zerr.With(zerr.New(field+": "+msg), "value", value))
	}

	if c.Cache.Namespace == "" {
		invalid("cache.namespace", c.Cache.Namespace, "must not be empty")
	} else if strings.Contains(c.Cache.Namespace, ":") {
		invalid("cache.namespace", c.Cache.Namespace, "must not contain ':'")
	}
	if c.Cache.SchemaVersion == "" {
		invalid("cache.schema_version", c.Cache.SchemaVersion, "must not be empty")
	}
	if c.Cache.MaxVolatileItems <= 0 {
		invalid("cache.max_volatile_items", c.Cache.MaxVolatileItems, "must be positive")
	}
	if c.Cache.DefaultTTL <= 0 {
		invalid("cache.default_ttl", c.Cache.DefaultTTL, "must be positive")
	}
	switch eviction.PolicyType(c.Cache.EvictionPolicy) {
	case eviction.FIFO, eviction.LRU, eviction.LFU:
	default:
		invalid("cache.eviction_policy", c.Cache.EvictionPolicy, "must be one of FIFO, LRU, LFU")
	}
	switch c.Cache.WritePolicy {
	case writepolicy.WriteBack, writepolicy.WriteThrough:
	default:
		invalid("cache.write_policy", c.Cache.WritePolicy, "must be write-back or write-through")
	}
	if c.Cache.WriteBuffer < 0 {
		invalid("cache.write_buffer", c.Cache.WriteBuffer, "must not be negative")
	}
	if c.Cache.WarmConcurrency < 0 {
		invalid("cache.warm_concurrency", c.Cache.WarmConcurrency, "must not be negative")
	}
	for i, r := range c.Cache.TTLRules {
		if r.Match == "" || r.TTL <= 0 {
			invalid("cache.ttl_rules", i, "need a non-empty match and a positive ttl")
		}
	}

	if c.Cache.DurableEnabled {
		switch c.Durable.Driver {
		case durable.DriverSQLite, durable.DriverFile:
		default:
			invalid("durable.driver", c.Durable.Driver, "must be sqlite or file")
		}
		if c.Durable.Path == "" {
			invalid("durable.path", c.Durable.Path, "must not be empty")
		}
	}

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		invalid("logging.level", c.Logging.Level, "unknown level")
	}
	switch c.Logging.Format {
	case logging.FormatJSON, logging.FormatConsole:
	default:
		invalid("logging.format", c.Logging.Format, "must be json or console")
	}

	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		invalid("metrics.namespace", c.Metrics.Namespace, "must not be empty when metrics are enabled")
	}

	return errs
}

// CacheConfig maps the loaded settings onto cache.Config.
func (c *Config) CacheConfig() cache.Config {
	return cache.Config{
		Namespace:        c.Cache.Namespace,
		SchemaVersion:    c.Cache.SchemaVersion,
		MaxVolatileItems: c.Cache.MaxVolatileItems,
		DefaultTTL:       c.Cache.DefaultTTL,
		TTLRules:         c.Cache.TTLRules,
		DurableEnabled:   c.Cache.DurableEnabled,
		EvictionPolicy:   eviction.PolicyType(c.Cache.EvictionPolicy),
		WritePolicy:      c.Cache.WritePolicy,
		WriteBuffer:      c.Cache.WriteBuffer,
		CoalesceLoads:    c.Cache.CoalesceLoads,
		WarmConcurrency:  c.Cache.WarmConcurrency,
		Invalidation:     c.Cache.Invalidation,
	}
}
