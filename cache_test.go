package cache_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/zerr"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	cache "github.com/krisalay/tiered-cache"
	"github.com/krisalay/tiered-cache/durable"
	"github.com/krisalay/tiered-cache/durable/mocks"
	"github.com/krisalay/tiered-cache/eviction"
	"github.com/krisalay/tiered-cache/writepolicy"
)

//
// ================= HELPERS =================
//

// memoryConfig is a volatile-only configuration.
func memoryConfig(capacity int) cache.Config {
	cfg := cache.DefaultConfig()
	cfg.MaxVolatileItems = capacity
	cfg.DurableEnabled = false
	return cfg
}

// durableConfig uses write-through so durable effects are visible as soon
// as Set returns.
func durableConfig(capacity int) cache.Config {
	cfg := cache.DefaultConfig()
	cfg.MaxVolatileItems = capacity
	cfg.WritePolicy = writepolicy.WriteThrough
	return cfg
}

func newTestCache(t *testing.T, cfg cache.Config, opts ...cache.Option) *cache.Cache {
	t.Helper()
	c, err := cache.New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func newFileStore(t *testing.T) durable.Store {
	t.Helper()
	s, err := durable.NewFileStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func value(v any) func(context.Context) (any, error) {
	return func(context.Context) (any, error) { return v, nil }
}

//
// ================= CONSTRUCTION =================
//

func TestNew_Errors(t *testing.T) {
	cfg := cache.DefaultConfig()
	_, err := cache.New(cfg)
	assert.ErrorIs(t, err, cache.ErrStoreRequired)

	cfg = memoryConfig(10)
	cfg.EvictionPolicy = "RANDOM"
	_, err = cache.New(cfg)
	assert.ErrorContains(t, err, "unknown eviction policy")

	cfg = durableConfig(10)
	cfg.WritePolicy = "write-around"
	_, err = cache.New(cfg, cache.WithStore(newFileStore(t)))
	assert.ErrorContains(t, err, "unknown write policy")
}

func TestNew_IndependentInstances(t *testing.T) {
	ctx := context.Background()
	a := newTestCache(t, memoryConfig(10))
	b := newTestCache(t, memoryConfig(10))

	a.Set(ctx, "k", "v", 0)
	_, ok := b.Get(ctx, "k", nil)
	assert.False(t, ok)
}

//
// ================= BASIC OPERATIONS =================
//

// Round trip: set followed by get returns the value and counts a hit.
func TestSetThenGet(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, memoryConfig(10))

	values := []any{"value1", 42, []int{1, 2}, map[string]string{"a": "b"}}
	for i, v := range values {
		key := fmt.Sprintf("key%d", i)
		c.Set(ctx, key, v, 0)

		got, ok := c.Get(ctx, key, nil)
		require.True(t, ok)
		assert.Equal(t, v, got)
	}

	s := c.Stats()
	assert.Equal(t, uint64(len(values)), s.Hits)
	assert.Equal(t, uint64(len(values)), s.Sets)
	assert.Zero(t, s.Misses)
}

func TestUpdateExistingKey(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, memoryConfig(10))

	c.Set(ctx, "key1", "value1", 0)
	c.Set(ctx, "key1", "value2", 0)

	v, ok := c.Get(ctx, "key1", nil)
	require.True(t, ok)
	assert.Equal(t, "value2", v)
	assert.Equal(t, 1, c.Len())
}

func TestGet_LoaderFillsCache(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, memoryConfig(10))

	var calls atomic.Int32
	loader := func(context.Context) (any, error) {
		calls.Add(1)
		return "loaded", nil
	}

	v, ok := c.Get(ctx, "k", loader)
	require.True(t, ok)
	assert.Equal(t, "loaded", v)

	v, ok = c.Get(ctx, "k", loader)
	require.True(t, ok)
	assert.Equal(t, "loaded", v)

	assert.Equal(t, int32(1), calls.Load())
	s := c.Stats()
	assert.Equal(t, uint64(1), s.Hits)
	assert.Equal(t, uint64(1), s.Misses)
	assert.Equal(t, uint64(1), s.Sets)
}

func TestGet_MissWithoutLoader(t *testing.T) {
	c := newTestCache(t, memoryConfig(10))

	v, ok := c.Get(context.Background(), "missing", nil)
	assert.False(t, ok)
	assert.Nil(t, v)
	assert.Equal(t, uint64(1), c.Stats().Misses)
}

func TestGet_NilLoaderValueIsNotStored(t *testing.T) {
	c := newTestCache(t, memoryConfig(10))

	_, ok := c.Get(context.Background(), "k", value(nil))
	assert.False(t, ok)
	assert.Zero(t, c.Len())
	assert.Zero(t, c.Stats().Sets)
}

func TestSet_NilIsIgnored(t *testing.T) {
	c := newTestCache(t, memoryConfig(10))
	c.Set(context.Background(), "k", nil, 0)
	assert.Zero(t, c.Len())
}

func TestGet_ForceRefresh(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, memoryConfig(10))

	c.Set(ctx, "k", "old", 0)

	v, ok := c.Get(ctx, "k", value("new"), cache.WithForceRefresh())
	require.True(t, ok)
	assert.Equal(t, "new", v)

	v, _ = c.Get(ctx, "k", nil)
	assert.Equal(t, "new", v)

	_, ok = c.Get(ctx, "k", nil, cache.WithForceRefresh())
	assert.False(t, ok)

	s := c.Stats()
	assert.Equal(t, uint64(1), s.Hits)
	assert.Equal(t, uint64(2), s.Misses)
}

func TestGetAs(t *testing.T) {
	type project struct {
		Name  string `json:"name"`
		Tasks int    `json:"tasks"`
	}
	ctx := context.Background()
	c := newTestCache(t, memoryConfig(10))

	p, ok := cache.GetAs(ctx, c, "projectDetails:1", func(context.Context) (project, error) {
		return project{Name: "alpha", Tasks: 3}, nil
	})
	require.True(t, ok)
	assert.Equal(t, project{Name: "alpha", Tasks: 3}, p)

	p, ok = cache.GetAs[project](ctx, c, "projectDetails:1", nil)
	require.True(t, ok)
	assert.Equal(t, "alpha", p.Name)

	// A value of another type reads as a miss.
	_, ok = cache.GetAs[int](ctx, c, "projectDetails:1", nil)
	assert.False(t, ok)
}

//
// ================= LOADER FAILURES =================
//

// Loader failure isolation: an error is absent, never raised, one miss.
func TestGet_LoaderError(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	c := newTestCache(t, memoryConfig(10), cache.WithLogger(zap.New(core)))

	v, ok := c.Get(context.Background(), "k", func(context.Context) (any, error) {
		return nil, errors.New("upstream unavailable")
	})
	assert.False(t, ok)
	assert.Nil(t, v)

	s := c.Stats()
	assert.Equal(t, uint64(1), s.Misses)
	assert.Equal(t, uint64(1), s.LoadErrors)
	assert.Zero(t, s.Sets)

	entries := logs.FilterMessage("loader failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "k", entries[0].ContextMap()["key"])
}

func TestGet_LoaderPanic(t *testing.T) {
	c := newTestCache(t, memoryConfig(10))

	assert.NotPanics(t, func() {
		_, ok := c.Get(context.Background(), "k", func(context.Context) (any, error) {
			panic("nil map write")
		})
		assert.False(t, ok)
	})

	s := c.Stats()
	assert.Equal(t, uint64(1), s.Misses)
	assert.Equal(t, uint64(1), s.LoadErrors)
}

//
// ================= TTL & VERSIONING =================
//

// TTL expiry: after more than TTL has passed the entry is a miss.
func TestTTLExpiration(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	c := newTestCache(t, memoryConfig(10), cache.WithClock(clock))

	c.Set(ctx, "ttlKey", "temp", time.Second)

	clock.Advance(999 * time.Millisecond)
	_, ok := c.Get(ctx, "ttlKey", nil)
	assert.True(t, ok)

	clock.Advance(2 * time.Millisecond)
	v, ok := c.Get(ctx, "ttlKey", nil)
	assert.False(t, ok)
	assert.Nil(t, v)

	s := c.Stats()
	assert.Equal(t, uint64(1), s.Hits)
	assert.Equal(t, uint64(1), s.Misses)
	assert.Equal(t, uint64(1), s.Expirations)
	assert.Zero(t, c.Len())
}

func TestTTLFromCategoryRules(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	c := newTestCache(t, memoryConfig(10), cache.WithClock(clock))

	c.Set(ctx, "userProfile:u1", "alice", 0)
	c.Set(ctx, "searchResults:go", []string{"a"}, 0)

	clock.Advance(3 * time.Minute)
	_, ok := c.Get(ctx, "searchResults:go", nil)
	assert.False(t, ok)
	_, ok = c.Get(ctx, "userProfile:u1", nil)
	assert.True(t, ok)

	clock.Advance(27 * time.Minute)
	_, ok = c.Get(ctx, "userProfile:u1", nil)
	assert.False(t, ok)
}

func TestGet_WithTTL(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	c := newTestCache(t, memoryConfig(10), cache.WithClock(clock))

	_, ok := c.Get(ctx, "userProfile:u1", value("alice"), cache.WithTTL(time.Second))
	require.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.Get(ctx, "userProfile:u1", nil)
	assert.False(t, ok)
}

// Schema versioning: a record written under 1.0.0 is absent under 2.0.0.
func TestSchemaVersionMismatch(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)

	v1 := durableConfig(10)
	v1.SchemaVersion = "1.0.0"
	old := newTestCache(t, v1, cache.WithStore(store))
	old.Set(ctx, "projectDetails:1", "alpha", time.Hour)

	v2 := durableConfig(10)
	v2.SchemaVersion = "2.0.0"
	c := newTestCache(t, v2, cache.WithStore(store))

	_, ok := c.Get(ctx, "projectDetails:1", nil)
	assert.False(t, ok)
	s := c.Stats()
	assert.Equal(t, uint64(1), s.Misses)
	assert.Equal(t, uint64(1), s.Expirations)

	// The loader replaces the stale record under the new version.
	v, ok := c.Get(ctx, "projectDetails:1", value("beta"))
	require.True(t, ok)
	assert.Equal(t, "beta", v)

	rec, err := store.Get(ctx, "app:projectDetails:1")
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", rec.SchemaVersion)
}

//
// ================= CAPACITY & EVICTION =================
//

// Capacity eviction: one key over capacity evicts the oldest, exactly once.
func TestEvictionOnCapacity(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	c := newTestCache(t, memoryConfig(3), cache.WithClock(clock))

	for i := 0; i < 4; i++ {
		c.Set(ctx, fmt.Sprintf("key%d", i), i, time.Hour)
		clock.Advance(time.Millisecond)
	}

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, []string{"key1", "key2", "key3"}, c.Keys())
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

// Inserting a, b, c into a tier of two leaves b and c.
func TestEviction_ConcreteScenario(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, memoryConfig(2), cache.WithClock(clockwork.NewFakeClock()))

	c.Set(ctx, "a", 1, 0)
	c.Set(ctx, "b", 2, 0)
	c.Set(ctx, "c", 3, 0)

	assert.Equal(t, []string{"b", "c"}, c.Keys())
	b, _ := c.Get(ctx, "b", nil)
	cv, _ := c.Get(ctx, "c", nil)
	assert.Equal(t, 2, b)
	assert.Equal(t, 3, cv)
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestEviction_ReadsDoNotProtectUnderFIFO(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	c := newTestCache(t, memoryConfig(2), cache.WithClock(clock))

	c.Set(ctx, "a", 1, time.Hour)
	clock.Advance(time.Millisecond)
	c.Set(ctx, "b", 2, time.Hour)
	c.Get(ctx, "a", nil)
	clock.Advance(time.Millisecond)
	c.Set(ctx, "c", 3, time.Hour)

	assert.Equal(t, []string{"b", "c"}, c.Keys())
}

func TestEviction_LRU(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig(2)
	cfg.EvictionPolicy = eviction.LRU
	c := newTestCache(t, cfg)

	c.Set(ctx, "a", 1, time.Hour)
	c.Set(ctx, "b", 2, time.Hour)
	c.Get(ctx, "a", nil)
	c.Set(ctx, "c", 3, time.Hour)

	assert.Equal(t, []string{"a", "c"}, c.Keys())
}

//
// ================= DURABLE TIER =================
//

// Durable promotion: a durable-only key is returned and lands in memory.
func TestDurablePromotion(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)

	writer := newTestCache(t, durableConfig(10), cache.WithStore(store))
	writer.Set(ctx, "projectList:all", []string{"p1", "p2"}, time.Hour)

	c := newTestCache(t, durableConfig(10), cache.WithStore(store))
	assert.Zero(t, c.Len())

	v, ok := c.Get(ctx, "projectList:all", nil)
	require.True(t, ok)
	assert.Equal(t, []any{"p1", "p2"}, v)
	assert.Equal(t, []string{"projectList:all"}, c.Keys())

	s := c.Stats()
	assert.Equal(t, uint64(1), s.Hits)
	assert.Zero(t, s.Sets)

	// Second read is served from memory.
	v, ok = c.Get(ctx, "projectList:all", nil)
	require.True(t, ok)
	assert.Equal(t, []any{"p1", "p2"}, v)
}

func TestDurablePromotion_Typed(t *testing.T) {
	type project struct {
		Name string `json:"name"`
	}
	ctx := context.Background()
	store := newFileStore(t)

	writer := newTestCache(t, durableConfig(10), cache.WithStore(store))
	writer.Set(ctx, "projectDetails:1", project{Name: "alpha"}, time.Hour)

	c := newTestCache(t, durableConfig(10), cache.WithStore(store))
	p, ok := cache.GetAs[project](ctx, c, "projectDetails:1", nil)
	require.True(t, ok)
	assert.Equal(t, project{Name: "alpha"}, p)

	// The promoted value is now typed in memory.
	v, ok := c.Get(ctx, "projectDetails:1", nil)
	require.True(t, ok)
	assert.Equal(t, project{Name: "alpha"}, v)
}

func TestDurablePromotion_KeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	store := newFileStore(t)

	writer := newTestCache(t, durableConfig(10), cache.WithStore(store), cache.WithClock(clock))
	writer.Set(ctx, "old", 1, time.Hour)

	clock.Advance(time.Minute)
	c := newTestCache(t, durableConfig(2), cache.WithStore(store), cache.WithClock(clock))
	c.Set(ctx, "newer", 2, time.Hour)
	clock.Advance(time.Minute)
	c.Set(ctx, "newest", 3, time.Hour)

	// Promoting "old" overflows the tier. It is the oldest entry, but the
	// oldest other key makes room for it.
	for i := 0; i < 3; i++ {
		v, ok := c.Get(ctx, "old", nil)
		require.True(t, ok)
		assert.Equal(t, float64(1), v)
		assert.Equal(t, []string{"newest", "old"}, c.Keys())
		assert.Equal(t, uint64(1), c.Stats().Evictions)
	}

	// The original timestamp still ranks it first for the next fresh write.
	clock.Advance(time.Minute)
	c.Set(ctx, "latest", 4, time.Hour)
	assert.Equal(t, []string{"latest", "newest"}, c.Keys())
}

// A key evicted from a full tier is read back from the durable tier once
// and then served from memory.
func TestDurablePromotion_StaysAfterEviction(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	c := newTestCache(t, durableConfig(2), cache.WithStore(newFileStore(t)), cache.WithClock(clock))

	for _, k := range []string{"k", "x", "y"} {
		c.Set(ctx, k, k, time.Hour)
		clock.Advance(time.Second)
	}
	require.Equal(t, []string{"x", "y"}, c.Keys())
	require.Equal(t, uint64(1), c.Stats().Evictions)

	for i := 0; i < 3; i++ {
		v, ok := c.Get(ctx, "k", nil)
		require.True(t, ok)
		assert.Equal(t, "k", v)
		assert.Contains(t, c.Keys(), "k")
		assert.Equal(t, uint64(2), c.Stats().Evictions)
	}
}

func TestWriteBack_FlushMakesWritesDurable(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)

	cfg := durableConfig(10)
	cfg.WritePolicy = writepolicy.WriteBack
	c := newTestCache(t, cfg, cache.WithStore(store))

	for i := 0; i < 20; i++ {
		c.Set(ctx, fmt.Sprintf("taskDetails:%d", i), i, time.Hour)
	}
	require.NoError(t, c.Flush(ctx))

	keys, err := store.Keys(ctx, "app:")
	require.NoError(t, err)
	assert.Len(t, keys, 20)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestDurableReadFailureDegrades(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)

	store.EXPECT().Get(gomock.Any(), "app:k").Return(nil, errors.New("database is locked"))
	store.EXPECT().Put(gomock.Any(), "app:k", gomock.Any()).Return(nil)

	core, logs := observer.New(zapcore.WarnLevel)
	c := newTestCache(t, durableConfig(10), cache.WithStore(store), cache.WithLogger(zap.New(core)))

	v, ok := c.Get(ctx, "k", value("fresh"))
	require.True(t, ok)
	assert.Equal(t, "fresh", v)

	s := c.Stats()
	assert.Equal(t, uint64(1), s.DurableErrors)
	assert.Equal(t, uint64(1), s.Misses)

	entries := logs.FilterMessage("durable read failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "durable", entries[0].ContextMap()["tier"])
}

func TestDurableWriteFailureDegrades(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	store.EXPECT().Put(gomock.Any(), "app:k", gomock.Any()).Return(errors.New("disk full"))

	c := newTestCache(t, durableConfig(10), cache.WithStore(store))
	c.Set(ctx, "k", "v", time.Hour)

	v, ok := c.Get(ctx, "k", nil)
	require.True(t, ok)
	assert.Equal(t, "v", v)
	assert.Equal(t, uint64(1), c.Stats().DurableErrors)
}

func TestCorruptDurableRecordIsAbsent(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	store.EXPECT().Get(gomock.Any(), "app:k").
		Return(nil, zerr.Wrap(durable.ErrCorruptRecord, "unexpected end of JSON input"))

	c := newTestCache(t, durableConfig(10), cache.WithStore(store))

	_, ok := c.Get(ctx, "k", nil)
	assert.False(t, ok)
	assert.Equal(t, uint64(1), c.Stats().Misses)
}

//
// ================= INVALIDATION =================
//

// Pattern invalidation removes matching keys and leaves the rest.
func TestInvalidate(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)
	cfg := durableConfig(10)
	cfg.WritePolicy = writepolicy.WriteBack
	c := newTestCache(t, cfg, cache.WithStore(store))

	c.Set(ctx, "project:1", 1, time.Hour)
	c.Set(ctx, "project:2", 2, time.Hour)
	c.Set(ctx, "task:1", 3, time.Hour)

	// The queued writes are flushed first, so nothing comes back.
	assert.Equal(t, 2, c.Invalidate(ctx, "project:"))

	assert.Equal(t, []string{"task:1"}, c.Keys())
	keys, err := store.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"app:task:1"}, keys)

	_, ok := c.Get(ctx, "project:1", nil)
	assert.False(t, ok)

	// Idempotent.
	assert.Zero(t, c.Invalidate(ctx, "project:"))
}

func TestInvalidate_DoesNotMatchNamespace(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, memoryConfig(10))

	c.Set(ctx, "taskList:1", 1, time.Hour)
	assert.Zero(t, c.Invalidate(ctx, "app:"))
	assert.Equal(t, 1, c.Len())
}

// Relationship invalidation fans out through the entity table.
func TestInvalidateRelated(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig(10)
	cfg.Invalidation = map[string][]string{
		"project": {"projectDetails:", "dashboardStats:"},
	}
	c := newTestCache(t, cfg)

	c.Set(ctx, "projectDetails:1", 1, time.Hour)
	c.Set(ctx, "dashboardStats:u1", 2, time.Hour)
	c.Set(ctx, "taskList:1", 3, time.Hour)

	assert.Equal(t, 2, c.InvalidateRelated(ctx, "project", "1"))
	assert.Equal(t, []string{"taskList:1"}, c.Keys())

	assert.Zero(t, c.InvalidateRelated(ctx, "spaceship", "1"))
	assert.Equal(t, 1, c.Len())
}

func TestInvalidateRelated_SegmentsNotSubstrings(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, memoryConfig(10))

	c.Set(ctx, "projectDetails:1", 1, time.Hour)
	c.Set(ctx, "projectDetailsArchive:1", 2, time.Hour)
	c.Set(ctx, "myprojectDetails:1", 3, time.Hour)

	assert.Equal(t, 1, c.InvalidateRelated(ctx, "project", "1"))
	assert.Equal(t, []string{"myprojectDetails:1", "projectDetailsArchive:1"}, c.Keys())
}

func TestInvalidate_DurableListingFailure(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	store.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	store.EXPECT().Keys(gomock.Any(), "app:").Return(nil, errors.New("io error"))

	c := newTestCache(t, durableConfig(10), cache.WithStore(store))
	c.Set(ctx, "project:1", 1, time.Hour)

	assert.Equal(t, 1, c.Invalidate(ctx, "project:"))
	assert.Zero(t, c.Len())
	assert.Equal(t, uint64(1), c.Stats().DurableErrors)
}

//
// ================= STATS / CLEAR / WARM / PRUNE =================
//

// Hit rate is hits / (hits + misses) and 0 before any lookup.
func TestStats_HitRate(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, memoryConfig(10))
	assert.Zero(t, c.Stats().HitRate)

	c.Set(ctx, "k", 1, time.Hour)
	for i := 0; i < 3; i++ {
		c.Get(ctx, "k", nil)
	}
	c.Get(ctx, "missing", nil)

	s := c.Stats()
	assert.Equal(t, uint64(3), s.Hits)
	assert.Equal(t, uint64(1), s.Misses)
	assert.InDelta(t, 0.75, s.HitRate, 1e-9)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)

	cfgA := durableConfig(10)
	cfgA.Namespace = "a"
	a := newTestCache(t, cfgA, cache.WithStore(store))

	cfgB := durableConfig(10)
	cfgB.Namespace = "b"
	b := newTestCache(t, cfgB, cache.WithStore(store))

	a.Set(ctx, "k", 1, time.Hour)
	b.Set(ctx, "k", 2, time.Hour)
	a.Get(ctx, "k", nil)

	a.Clear(ctx)

	assert.Zero(t, a.Len())
	assert.Equal(t, uint64(0), a.Stats().Hits)
	assert.Equal(t, uint64(0), a.Stats().Sets)

	keys, err := store.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"b:k"}, keys)

	_, ok := a.Get(ctx, "k", nil)
	assert.False(t, ok)
}

func TestDurableKeys(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)

	cfgA := durableConfig(1)
	cfgA.Namespace = "a"
	a := newTestCache(t, cfgA, cache.WithStore(store))

	cfgB := durableConfig(1)
	cfgB.Namespace = "b"
	b := newTestCache(t, cfgB, cache.WithStore(store))

	a.Set(ctx, "userProfile:u2", 1, time.Hour)
	a.Set(ctx, "userProfile:u1", 1, time.Hour)
	b.Set(ctx, "other", 2, time.Hour)

	keys, err := a.DurableKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"userProfile:u1", "userProfile:u2"}, keys)
	assert.Equal(t, []string{"userProfile:u1"}, a.Keys())

	keys, err = newTestCache(t, memoryConfig(1)).DurableKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestWarm(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig(10)
	cfg.WarmConcurrency = 2
	c := newTestCache(t, cfg)

	res := c.Warm(ctx, []cache.WarmItem{
		{Key: "userProfile:u1", Loader: value("alice")},
		{Key: "projectList:all", Loader: value([]string{"p1"})},
		{Key: "dashboardStats:u1", Loader: func(context.Context) (any, error) {
			return nil, errors.New("aggregation timed out")
		}},
		{Key: "noLoader"},
	})

	assert.Equal(t, 2, res.Loaded)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, []string{"projectList:all", "userProfile:u1"}, c.Keys())

	v, ok := c.Get(ctx, "userProfile:u1", nil)
	require.True(t, ok)
	assert.Equal(t, "alice", v)
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	store := newFileStore(t)
	c := newTestCache(t, durableConfig(10), cache.WithStore(store), cache.WithClock(clock))

	c.Set(ctx, "short", 1, time.Second)
	c.Set(ctx, "long", 2, time.Hour)
	clock.Advance(2 * time.Second)

	n, err := c.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, []string{"long"}, c.Keys())
	keys, err := store.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"app:long"}, keys)
}

func TestPrune_RemovesCorruptRecords(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)

	store.EXPECT().Keys(gomock.Any(), "app:").Return([]string{"app:bad", "app:gone"}, nil)
	store.EXPECT().Get(gomock.Any(), "app:bad").
		Return(nil, zerr.With(zerr.Wrap(durable.ErrCorruptRecord, "missing required field"), "key", "app:bad"))
	store.EXPECT().Get(gomock.Any(), "app:gone").Return(nil, nil)
	store.EXPECT().Delete(gomock.Any(), []string{"app:bad"}).Return(nil)

	c := newTestCache(t, durableConfig(10), cache.WithStore(store))

	n, err := c.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPrune_ListingFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	store.EXPECT().Keys(gomock.Any(), "app:").Return(nil, errors.New("io error"))

	c := newTestCache(t, durableConfig(10), cache.WithStore(store))
	_, err := c.Prune(context.Background())
	assert.ErrorContains(t, err, "failed to list durable keys")
}

//
// ================= CONCURRENCY TEST =================
//

func TestConcurrentGet(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, memoryConfig(10))
	c.Set(ctx, "key", "value", time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _ := c.Get(ctx, "key", nil)
			assert.Equal(t, "value", v)
		}()
	}
	wg.Wait()
}

func TestConcurrentMixedOperations(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)
	cfg := durableConfig(16)
	cfg.WritePolicy = writepolicy.WriteBack
	c := newTestCache(t, cfg, cache.WithStore(store))

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				key := fmt.Sprintf("taskList:%d", (id*50+i)%40)
				switch i % 5 {
				case 0:
					c.Set(ctx, key, i, time.Hour)
				case 1, 2, 3:
					c.Get(ctx, key, value(i))
				case 4:
					c.Invalidate(ctx, key)
				}
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 16)
	require.NoError(t, c.Flush(ctx))
}

// A write racing an invalidation lands in both tiers or in neither, so a
// queued durable write never brings back a key the volatile tier lost.
func TestConcurrentSetAndInvalidate_TiersAgree(t *testing.T) {
	ctx := context.Background()
	cfg := durableConfig(1000)
	cfg.WritePolicy = writepolicy.WriteBack
	cfg.WriteBuffer = 8
	c := newTestCache(t, cfg, cache.WithStore(newFileStore(t)))

	var wg sync.WaitGroup
	for g := 0; g < 6; g++ {
		wg.Add(2)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				c.Set(ctx, fmt.Sprintf("taskList:%d", (id+i)%10), i, time.Hour)
			}
		}(g)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				c.Invalidate(ctx, fmt.Sprintf("taskList:%d", (id+i)%10))
			}
		}(g)
	}
	wg.Wait()

	durableKeys, err := c.DurableKeys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, c.Keys(), durableKeys)
}

func TestCoalesceLoads(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig(10)
	cfg.CoalesceLoads = true
	c := newTestCache(t, cfg)

	var calls atomic.Int32
	release := make(chan struct{})
	loader := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return "shared", nil
	}

	var wg sync.WaitGroup
	results := make([]any, 10)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = c.Get(ctx, "searchResults:q", loader)
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, "shared", r)
	}
	assert.Equal(t, uint64(10), c.Stats().Misses)
	assert.Equal(t, uint64(1), c.Stats().Sets)
}

func TestEntityTypes(t *testing.T) {
	c := newTestCache(t, memoryConfig(1))
	assert.Equal(t, []string{"comment", "document", "project", "task", "user"}, c.EntityTypes())
}
