package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.trai.ch/zerr"
	"go.uber.org/zap"

	"github.com/krisalay/tiered-cache/durable"
	"github.com/krisalay/tiered-cache/expiration"
	"github.com/krisalay/tiered-cache/types"
	"github.com/krisalay/tiered-cache/writepolicy"
)

// ErrLoaderPanic wraps a value recovered from a panicking loader.
var ErrLoaderPanic = zerr.New("loader panicked")

/*
CacheEngine is the "brain" of the cache system.
It is responsible for the "behavior" of the cache, NOT storage.

It decides:
- When an entry stops being valid
- Which TTL a write gets
- How a loader is called on a miss
- How writes reach the durable tier

It does NOT:
- Store data
- Handle locking
- Decide eviction order
*/
type CacheEngine struct {

	// Expiration decides whether an entry may still be served.
	Expiration expiration.Strategy

	// TTLs resolves the TTL of writes that do not carry one.
	TTLs *expiration.Registry

	// WritePolicy forwards writes to the durable tier.
	// If nil, writes stay in the volatile tier only.
	WritePolicy writepolicy.WritePolicy

	// Metrics is how we keep track of what the cache is doing.
	Metrics types.Metrics

	// SchemaVersion is stamped on every new entry.
	SchemaVersion string

	Clock  clockwork.Clock
	Logger *zap.Logger
}

// NewCacheEngine creates a CacheEngine. Nil metrics, clock and logger are
// replaced with no-op or real implementations.
func NewCacheEngine(
	schemaVersion string,
	ttls *expiration.Registry,
	writePolicy writepolicy.WritePolicy,
	metrics types.Metrics,
	clock clockwork.Clock,
	logger *zap.Logger,
) *CacheEngine {
	if metrics == nil {
		metrics = types.NoopMetrics{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttls == nil {
		ttls = expiration.NewRegistry(expiration.DefaultTTL, nil)
	}

	return &CacheEngine{
		Expiration:    expiration.Versioned{SchemaVersion: schemaVersion},
		TTLs:          ttls,
		WritePolicy:   writePolicy,
		Metrics:       metrics,
		SchemaVersion: schemaVersion,
		Clock:         clock,
		Logger:        logger,
	}
}

// IsExpired checks ent against the configured strategy at the current time.
func (e *CacheEngine) IsExpired(ent *types.CacheEntry) bool {
	return e.Expiration.IsExpired(ent, e.Clock.Now())
}

// ResolveTTL returns ttl when positive, otherwise the registry TTL for key.
func (e *CacheEngine) ResolveTTL(key string, ttl time.Duration) time.Duration {
	if ttl > 0 {
		return ttl
	}
	return e.TTLs.Resolve(key)
}

// NewEntry stamps data with the current time and schema version.
func (e *CacheEngine) NewEntry(key string, data any, ttl time.Duration) *types.CacheEntry {
	return types.NewEntry(data, e.Clock.Now(), e.ResolveTTL(key, ttl), e.SchemaVersion)
}

/*
Load calls loader when the cache does NOT have the data.

A panicking loader is turned into an error. Load never logs or counts; the
caller decides what a failure means.
*/
func (e *CacheEngine) Load(ctx context.Context, loader types.LoaderFunc) (val any, err error) {
	defer func() {
		if r := recover(); r != nil {
			val = nil
			err = zerr.With(ErrLoaderPanic, "panic", fmt.Sprint(r))
		}
	}()
	return loader(ctx)
}

/*
OnWrite forwards a completed volatile write to the durable tier.

The entry is encoded here, outside any lock. A value that cannot be encoded
stays volatile-only.
*/
func (e *CacheEngine) OnWrite(ctx context.Context, key string, ent *types.CacheEntry) {
	if e.WritePolicy == nil {
		return
	}

	rec, err := durable.NewRecord(ent)
	if err != nil {
		e.Metrics.DurableError()
		e.Logger.Warn("cache value not persistable",
			zap.String("tier", "durable"),
			zap.String("key", key),
			zap.Error(err),
		)
		return
	}
	e.WritePolicy.OnWrite(ctx, key, rec)
}

// Flush waits for pending durable writes.
func (e *CacheEngine) Flush(ctx context.Context) error {
	if e.WritePolicy == nil {
		return nil
	}
	return e.WritePolicy.Flush(ctx)
}

// Close stops the write policy after draining it.
func (e *CacheEngine) Close() error {
	if e.WritePolicy == nil {
		return nil
	}
	return e.WritePolicy.Close()
}
