package cache

import (
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/krisalay/tiered-cache/api"
	"github.com/krisalay/tiered-cache/durable"
	"github.com/krisalay/tiered-cache/eviction"
	"github.com/krisalay/tiered-cache/expiration"
	"github.com/krisalay/tiered-cache/invalidation"
	"github.com/krisalay/tiered-cache/writepolicy"
)

// Defaults used by DefaultConfig.
const (
	DefaultNamespace        = "app"
	DefaultSchemaVersion    = "1.0.0"
	DefaultMaxVolatileItems = 100
)

/*
Config is fixed for the lifetime of a Cache.
*/
type Config struct {
	// Namespace prefixes every key in both tiers.
	Namespace string

	// SchemaVersion is stamped on every entry. Entries written under any
	// other version are treated as absent.
	SchemaVersion string

	// MaxVolatileItems bounds the volatile tier. Zero or less disables the bound.
	MaxVolatileItems int

	// DefaultTTL applies to keys no TTL rule matches.
	DefaultTTL time.Duration

	// TTLRules map key substrings to TTLs. First match wins.
	TTLRules []expiration.Rule

	// DurableEnabled turns the durable tier on. A store must then be given
	// with WithStore.
	DurableEnabled bool

	EvictionPolicy eviction.PolicyType

	// WritePolicy is writepolicy.WriteBack or writepolicy.WriteThrough.
	WritePolicy string

	// WriteBuffer is the write-back queue length.
	WriteBuffer int

	// CoalesceLoads lets concurrent misses on one key share a single loader call.
	CoalesceLoads bool

	// WarmConcurrency bounds the loaders Warm runs at once. Zero or less is unbounded.
	WarmConcurrency int

	// Invalidation is the entity type → key pattern table of InvalidateRelated.
	Invalidation map[string][]string
}

// DefaultConfig returns the settings used by the application when nothing
// is configured.
func DefaultConfig() Config {
	return Config{
		Namespace:        DefaultNamespace,
		SchemaVersion:    DefaultSchemaVersion,
		MaxVolatileItems: DefaultMaxVolatileItems,
		DefaultTTL:       expiration.DefaultTTL,
		TTLRules:         expiration.DefaultRules(),
		DurableEnabled:   true,
		EvictionPolicy:   eviction.FIFO,
		WritePolicy:      writepolicy.WriteBack,
		WriteBuffer:      writepolicy.DefaultBuffer,
		Invalidation:     invalidation.DefaultTable(),
	}
}

type options struct {
	store  durable.Store
	logger *zap.Logger
	clock  clockwork.Clock
}

// Option configures the collaborators of a Cache.
type Option func(*options)

// WithStore sets the durable tier. The caller keeps ownership and closes it
// after the cache.
func WithStore(s durable.Store) Option {
	return func(o *options) { o.store = s }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

// GetOption tunes a single Get.
type GetOption = api.GetOption

// WithForceRefresh bypasses cached values and calls the loader.
func WithForceRefresh() GetOption { return api.WithForceRefresh() }

// WithTTL sets the TTL of a value produced by the loader.
func WithTTL(ttl time.Duration) GetOption { return api.WithTTL(ttl) }
