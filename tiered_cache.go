package cache

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"go.trai.ch/zerr"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/krisalay/tiered-cache/api"
	"github.com/krisalay/tiered-cache/durable"
	"github.com/krisalay/tiered-cache/engine"
	"github.com/krisalay/tiered-cache/eviction"
	"github.com/krisalay/tiered-cache/expiration"
	"github.com/krisalay/tiered-cache/invalidation"
	"github.com/krisalay/tiered-cache/stats"
	"github.com/krisalay/tiered-cache/types"
	"github.com/krisalay/tiered-cache/volatile"
	"github.com/krisalay/tiered-cache/warm"
	"github.com/krisalay/tiered-cache/writepolicy"
)

// ErrStoreRequired is returned by New when the durable tier is enabled but
// no store was given.
var ErrStoreRequired = zerr.New("durable tier enabled without a store")

// WarmItem is one key for Warm and the loader that produces its value.
type WarmItem = warm.Item

var _ api.Cache = (*Cache)(nil)

/*
Cache is the main cache implementation.
This struct is the orchestrator that connects:
- the volatile tier and its eviction policy
- the durable tier and its write policy
- expiration and TTL rules
- loading
- invalidation
- stats
*/
type Cache struct {
	cfg Config

	// prefix is "<namespace>:", prepended to every key a tier sees.
	prefix string

	// volatile is the in-process tier.
	volatile *volatile.Tier

	// store is the durable tier, nil when disabled.
	store durable.Store

	// engine contains the "rules" of the cache: validity, TTLs, loading and
	// write propagation.
	engine *engine.CacheEngine

	stats  *stats.Collector
	router *invalidation.Router
	logger *zap.Logger

	// sf coalesces concurrent loads of one key when CoalesceLoads is set.
	sf singleflight.Group

	// writeMu orders writes against invalidation. Set holds it shared from
	// the volatile put until the durable write is queued or done;
	// invalidate and Clear hold it exclusively.
	writeMu sync.RWMutex

	closeOnce sync.Once
	closeErr  error
}

// New builds a cache from cfg. Each call returns an independent instance.
func New(cfg Config, opts ...Option) (*Cache, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = DefaultSchemaVersion
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = expiration.DefaultTTL
	}
	if cfg.Invalidation == nil {
		cfg.Invalidation = invalidation.DefaultTable()
	}

	policy, err := eviction.NewEvictionPolicy(cfg.EvictionPolicy)
	if err != nil {
		return nil, err
	}

	collector := stats.NewCollector()

	var wp writepolicy.WritePolicy
	if cfg.DurableEnabled {
		if o.store == nil {
			return nil, ErrStoreRequired
		}
		wp, err = writepolicy.New(cfg.WritePolicy, o.store, cfg.WriteBuffer, o.logger, collector)
		if err != nil {
			return nil, err
		}
	} else {
		o.store = nil
	}

	c := &Cache{
		cfg:      cfg,
		volatile: volatile.New(cfg.MaxVolatileItems, policy),
		store:    o.store,
		engine: engine.NewCacheEngine(
			cfg.SchemaVersion,
			expiration.NewRegistry(cfg.DefaultTTL, cfg.TTLRules),
			wp,
			collector,
			o.clock,
			o.logger,
		),
		stats:  collector,
		router: invalidation.NewRouter(cfg.Invalidation),
		logger: o.logger,
	}
	if cfg.Namespace != "" {
		c.prefix = cfg.Namespace + types.Separator
	}
	return c, nil
}

func (c *Cache) tierKey(key string) string {
	return c.prefix + key
}

func (c *Cache) callerKey(tierKey string) (string, bool) {
	if c.prefix == "" {
		return tierKey, true
	}
	return strings.CutPrefix(tierKey, c.prefix)
}

/*
Get retrieves a value from the cache, calling loader on a miss.

A value promoted from the durable tier is decoded from JSON into its generic
form (map[string]any, []any, float64, ...). Use GetAs for typed values.
*/
func (c *Cache) Get(ctx context.Context, key string, loader types.LoaderFunc, opts ...GetOption) (any, bool) {
	return c.get(ctx, key, loader, api.ApplyGetOptions(opts), decodeAny)
}

// GetAs is Get for a concrete type. Values promoted from the durable tier are
// decoded into T, and the decoded value replaces the raw one in memory.
func GetAs[T any](ctx context.Context, c *Cache, key string, loader func(ctx context.Context) (T, error), opts ...GetOption) (T, bool) {
	var zero T
	v, ok := c.get(ctx, key, types.Typed(loader), api.ApplyGetOptions(opts), decodeAs[T])
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// decodeFunc converts cached data into what the caller asked for. replaced
// reports whether the result should replace the stored data.
type decodeFunc func(data any) (val any, replaced bool, err error)

func decodeAny(data any) (any, bool, error) {
	raw, ok := data.(json.RawMessage)
	if !ok {
		return data, false, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func decodeAs[T any](data any) (any, bool, error) {
	if v, ok := data.(T); ok {
		return v, false, nil
	}

	raw, ok := data.(json.RawMessage)
	if !ok {
		// Stored by an untyped Get: go through JSON to reach T.
		b, err := json.Marshal(data)
		if err != nil {
			return nil, false, err
		}
		raw = b
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (c *Cache) get(ctx context.Context, key string, loader types.LoaderFunc, o api.GetOptions, decode decodeFunc) (any, bool) {
	tk := c.tierKey(key)

	if !o.ForceRefresh {
		if v, ok := c.lookup(ctx, key, tk, decode); ok {
			c.stats.Hit()
			return v, true
		}
	}

	c.stats.Miss()

	if loader == nil {
		return nil, false
	}

	v, ok := c.load(ctx, key, tk, loader, o.TTL)
	if !ok {
		return nil, false
	}
	out, _, err := decode(v)
	if err != nil {
		c.logger.Warn("loaded value has unexpected type", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return out, true
}

// lookup checks the volatile tier, then the durable tier. It counts
// expirations and durable errors but never hits or misses.
func (c *Cache) lookup(ctx context.Context, key, tk string, decode decodeFunc) (any, bool) {
	if ent, ok := c.volatile.Get(tk); ok {
		if !c.engine.IsExpired(ent) {
			if v, ok := c.accept(key, tk, ent, decode, false); ok {
				return v, true
			}
		} else if c.volatile.DeleteIfSame(tk, ent) {
			c.stats.Expire()
		}
	}

	if c.store == nil {
		return nil, false
	}

	rec, err := c.store.Get(ctx, tk)
	if err != nil {
		c.stats.DurableError()
		c.logger.Warn("durable read failed",
			zap.String("tier", "durable"),
			zap.String("key", key),
			zap.Error(err),
		)
		return nil, false
	}
	if rec == nil {
		return nil, false
	}

	ent := rec.Entry()
	if c.engine.IsExpired(ent) {
		c.stats.Expire()
		return nil, false
	}
	return c.accept(key, tk, ent, decode, true)
}

// accept decodes a valid entry. Entries from the durable tier are promoted
// into the volatile tier with their original CreatedAt; promotion is not a
// Set and is never written back.
func (c *Cache) accept(key, tk string, ent *types.CacheEntry, decode decodeFunc, promote bool) (any, bool) {
	v, replaced, err := decode(ent.Data)
	if err != nil {
		c.logger.Warn("cached value does not decode", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	stored := ent
	if replaced {
		stored = types.NewEntry(v, ent.CreatedAt, ent.TTL, ent.SchemaVersion)
	}

	switch {
	case promote:
		c.countEviction(c.volatile.Promote(tk, stored))
	case replaced:
		c.volatile.Swap(tk, ent, stored)
	}
	return v, true
}

func (c *Cache) load(ctx context.Context, key, tk string, loader types.LoaderFunc, ttl time.Duration) (any, bool) {
	fn := func() (any, error) {
		v, err := c.engine.Load(ctx, loader)
		if err != nil {
			c.stats.LoadError()
			c.logger.Warn("loader failed", zap.String("key", key), zap.Error(err))
			return nil, err
		}
		if v != nil {
			c.Set(ctx, key, v, ttl)
		}
		return v, nil
	}

	var (
		v   any
		err error
	)
	if c.cfg.CoalesceLoads {
		v, err, _ = c.sf.Do(tk, fn)
	} else {
		v, err = fn()
	}
	if err != nil || v == nil {
		return nil, false
	}
	return v, true
}

func (c *Cache) countEviction(victim string, evicted bool) {
	if evicted {
		c.stats.Eviction()
		c.logger.Debug("volatile entry evicted", zap.String("key", victim))
	}
}

/*
Set stores data under key in both tiers.

A ttl of zero or less is resolved from the TTL rules. Nil data is ignored:
nil always means absent.
*/
func (c *Cache) Set(ctx context.Context, key string, data any, ttl time.Duration) {
	if data == nil {
		return
	}

	tk := c.tierKey(key)
	ent := c.engine.NewEntry(key, data, ttl)

	c.writeMu.RLock()
	defer c.writeMu.RUnlock()

	c.countEviction(c.volatile.Put(tk, ent))
	c.stats.Set()

	c.engine.OnWrite(ctx, tk, ent)
}

// EntityTypes returns the entity types InvalidateRelated knows, sorted.
func (c *Cache) EntityTypes() []string {
	names := c.router.EntityTypes()
	slices.Sort(names)
	return names
}

// Invalidate removes every key containing pattern from both tiers.
func (c *Cache) Invalidate(ctx context.Context, pattern string) int {
	return c.invalidate(ctx, []invalidation.Matcher{invalidation.Substring(pattern)})
}

/*
InvalidateRelated removes the keys registered as depending on the entity.

A table pattern ending in ':' matches the category segment of a key, not a
substring: "projectDetails:" removes "projectDetails:42" but leaves
"myprojectDetails:42" alone.
*/
func (c *Cache) InvalidateRelated(ctx context.Context, entityType, entityID string) int {
	matchers := c.router.Resolve(entityType, entityID)
	if len(matchers) == 0 {
		c.logger.Debug("no invalidation rules for entity", zap.String("entity", entityType))
		return 0
	}
	return c.invalidate(ctx, matchers)
}

func (c *Cache) invalidate(ctx context.Context, matchers []invalidation.Matcher) int {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	match := func(tk string) bool {
		key, ok := c.callerKey(tk)
		return ok && invalidation.Any(matchers, key)
	}

	removed := make(map[string]struct{})
	c.volatile.DeleteMatching(func(tk string) bool {
		if match(tk) {
			removed[tk] = struct{}{}
			return true
		}
		return false
	})

	if c.store != nil {
		keys, ok := c.durableKeys(ctx)
		if ok {
			var doomed []string
			for _, tk := range keys {
				if match(tk) {
					doomed = append(doomed, tk)
					removed[tk] = struct{}{}
				}
			}
			c.deleteDurable(ctx, doomed)
		}
	}

	return len(removed)
}

// durableKeys lists this namespace's durable keys after pending writes have
// landed, so a queued write cannot bring a deleted key back.
func (c *Cache) durableKeys(ctx context.Context) ([]string, bool) {
	if err := c.engine.Flush(ctx); err != nil {
		c.logger.Warn("durable flush failed", zap.String("tier", "durable"), zap.Error(err))
	}

	keys, err := c.store.Keys(ctx, c.prefix)
	if err != nil {
		c.stats.DurableError()
		c.logger.Warn("durable key listing failed", zap.String("tier", "durable"), zap.Error(err))
		return nil, false
	}
	return keys, true
}

func (c *Cache) deleteDurable(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	if err := c.store.Delete(ctx, keys); err != nil {
		c.stats.DurableError()
		c.logger.Warn("durable delete failed",
			zap.String("tier", "durable"),
			zap.Int("keys", len(keys)),
			zap.Error(err),
		)
	}
}

// Warm loads items concurrently through Get. It never fails.
func (c *Cache) Warm(ctx context.Context, items []WarmItem) warm.Result {
	res := warm.Run(ctx, items, c.cfg.WarmConcurrency, func(ctx context.Context, key string, loader types.LoaderFunc) (any, bool) {
		return c.Get(ctx, key, loader)
	})
	c.logger.Debug("cache warmed", zap.Int("loaded", res.Loaded), zap.Int("failed", res.Failed))
	return res
}

// Clear empties the volatile tier, removes this namespace from the durable
// tier and resets the counters.
func (c *Cache) Clear(ctx context.Context) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.volatile.Clear()

	if c.store != nil {
		if keys, ok := c.durableKeys(ctx); ok {
			c.deleteDurable(ctx, keys)
		}
	}

	c.stats.Reset()
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() stats.Stats {
	return c.stats.Snapshot()
}

/*
Prune removes expired and version-mismatched entries from both tiers and
returns how many were removed. Durable records that no longer decode are
removed too.

Reads already ignore such entries; Prune only reclaims space.
*/
func (c *Cache) Prune(ctx context.Context) (int, error) {
	n := c.volatile.DeleteWhere(func(_ string, ent *types.CacheEntry) bool {
		return c.engine.IsExpired(ent)
	})

	if c.store == nil {
		return n, nil
	}

	if err := c.engine.Flush(ctx); err != nil {
		return n, err
	}
	keys, err := c.store.Keys(ctx, c.prefix)
	if err != nil {
		return n, zerr.Wrap(err, "failed to list durable keys")
	}

	var stale []string
	for _, tk := range keys {
		rec, err := c.store.Get(ctx, tk)
		switch {
		case errors.Is(err, durable.ErrCorruptRecord):
			stale = append(stale, tk)
		case err != nil:
			return n, zerr.With(zerr.Wrap(err, "failed to read durable record"), "key", tk)
		case rec != nil && c.engine.IsExpired(rec.Entry()):
			stale = append(stale, tk)
		}
	}

	if len(stale) > 0 {
		if err := c.store.Delete(ctx, stale); err != nil {
			return n, zerr.Wrap(err, "failed to delete stale records")
		}
	}

	c.logger.Info("cache pruned", zap.Int("volatile", n), zap.Int("durable", len(stale)))
	return n + len(stale), nil
}

// Flush waits until pending durable writes have been attempted.
func (c *Cache) Flush(ctx context.Context) error {
	return c.engine.Flush(ctx)
}

// Close drains pending durable writes and stops the write-back worker.
// It is safe to call more than once. The durable store is left open.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.engine.Close()
	})
	return c.closeErr
}

// Len returns the number of entries in the volatile tier.
func (c *Cache) Len() int {
	return c.volatile.Len()
}

// Keys returns the caller-visible keys held in the volatile tier, sorted.
func (c *Cache) Keys() []string {
	tks := c.volatile.Keys()
	keys := make([]string, 0, len(tks))
	for _, tk := range tks {
		if k, ok := c.callerKey(tk); ok {
			keys = append(keys, k)
		}
	}
	return keys
}

// DurableKeys returns the caller-visible keys held in the durable tier,
// sorted. Pending writes are flushed first.
func (c *Cache) DurableKeys(ctx context.Context) ([]string, error) {
	if c.store == nil {
		return nil, nil
	}
	if err := c.engine.Flush(ctx); err != nil {
		return nil, err
	}
	tks, err := c.store.Keys(ctx, c.prefix)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to list durable keys")
	}
	keys := make([]string, 0, len(tks))
	for _, tk := range tks {
		if k, ok := c.callerKey(tk); ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}
