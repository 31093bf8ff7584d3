package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/spf13/viper"
	"go.trai.ch/zerr"
)

// EnvPrefix is prepended to every environment variable, e.g.
// TIERCACHE_CACHE_MAX_VOLATILE_ITEMS.
const EnvPrefix = "TIERCACHE"

/*
Load reads configuration from, in increasing precedence:
 1. DefaultConfig
 2. the YAML file at path, if path is set and the file exists
 3. TIERCACHE_* environment variables

The result is validated before it is returned.
*/
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, zerr.With(zerr.Wrap(err, "failed to read config file"), "path", path)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, zerr.Wrap(err, "failed to decode config")
	}

	// Lists and tables replace the defaults as a whole, so they are only
	// filled in when absent.
	defaults := DefaultConfig()
	if cfg.Cache.TTLRules == nil {
		cfg.Cache.TTLRules = defaults.Cache.TTLRules
	}
	if cfg.Cache.Invalidation == nil {
		cfg.Cache.Invalidation = defaults.Cache.Invalidation
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, err := range errs {
			msgs = append(msgs, err.Error())
		}
		return nil, zerr.Wrap(ErrInvalidConfig, strings.Join(msgs, "; "))
	}
	return cfg, nil
}

// setDefaults registers every scalar key so environment variables can
// override it.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("cache.namespace", d.Cache.Namespace)
	v.SetDefault("cache.schema_version", d.Cache.SchemaVersion)
	v.SetDefault("cache.max_volatile_items", d.Cache.MaxVolatileItems)
	v.SetDefault("cache.default_ttl", d.Cache.DefaultTTL)
	v.SetDefault("cache.durable_enabled", d.Cache.DurableEnabled)
	v.SetDefault("cache.eviction_policy", d.Cache.EvictionPolicy)
	v.SetDefault("cache.write_policy", d.Cache.WritePolicy)
	v.SetDefault("cache.write_buffer", d.Cache.WriteBuffer)
	v.SetDefault("cache.coalesce_loads", d.Cache.CoalesceLoads)
	v.SetDefault("cache.warm_concurrency", d.Cache.WarmConcurrency)

	v.SetDefault("durable.driver", d.Durable.Driver)
	v.SetDefault("durable.path", d.Durable.Path)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", d.Logging.MaxAgeDays)
	v.SetDefault("logging.compress", d.Logging.Compress)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)
}
