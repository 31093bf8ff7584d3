package volatile

import (
	"sort"
	"sync"

	"github.com/krisalay/tiered-cache/eviction"
	"github.com/krisalay/tiered-cache/types"
)

/*
Tier is the in-process key → entry table.

Everything, including the eviction scan, happens under a single mutex.
Entries are replaced wholesale and never edited in place, so a pointer
returned by Get stays safe to read after the lock is released.
*/
type Tier struct {
	mu sync.Mutex

	// entries holds the actual data, keyed by the namespaced cache key.
	entries map[string]*types.CacheEntry

	// policy decides which key leaves when the tier is over capacity.
	policy eviction.Policy

	// capacity is the maximum number of entries. Zero or less disables the bound.
	capacity int
}

// New creates a tier bounded by capacity and ranked by policy.
func New(capacity int, policy eviction.Policy) *Tier {
	return &Tier{
		entries:  make(map[string]*types.CacheEntry),
		policy:   policy,
		capacity: capacity,
	}
}

// Get returns the entry stored under key, valid or not.
func (t *Tier) Get(key string) (*types.CacheEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ent, ok := t.entries[key]
	if ok {
		t.policy.OnGet(key)
	}
	return ent, ok
}

/*
Put inserts or replaces the entry for key.

If the tier is over capacity afterwards, exactly one entry is evicted and
its key is returned with evicted set to true.
*/
func (t *Tier) Put(key string, ent *types.CacheEntry) (victim string, evicted bool) {
	return t.put(key, ent, false)
}

/*
Promote is Put for an entry read back from the durable tier.

The entry keeps its original CreatedAt and may be the oldest in the tier,
but it is never chosen as the victim of its own insertion: the oldest
other key is evicted instead.
*/
func (t *Tier) Promote(key string, ent *types.CacheEntry) (victim string, evicted bool) {
	return t.put(key, ent, true)
}

func (t *Tier) put(key string, ent *types.CacheEntry, keep bool) (victim string, evicted bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries[key] = ent
	t.policy.OnPut(key, ent.CreatedAt)

	if t.capacity <= 0 || len(t.entries) <= t.capacity {
		return "", false
	}

	victim = t.policy.Evict()
	if keep && victim == key {
		victim = t.policy.Evict()
		t.policy.OnPut(key, ent.CreatedAt)
	}
	if victim == "" {
		return "", false
	}
	delete(t.entries, victim)
	return victim, true
}

// DeleteIfSame removes key only while it still maps to ent.
// Lazy expiry uses it so a concurrent Put of a fresh entry is not lost.
func (t *Tier) DeleteIfSame(key string, ent *types.CacheEntry) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur, ok := t.entries[key]; !ok || cur != ent {
		return false
	}
	return t.deleteLocked(key)
}

// Swap replaces old with ent under key while key still maps to old. The
// eviction order is left as is: ent must carry the same CreatedAt.
func (t *Tier) Swap(key string, old, ent *types.CacheEntry) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur, ok := t.entries[key]; !ok || cur != old {
		return false
	}
	t.entries[key] = ent
	return true
}

// DeleteMatching removes every key for which match returns true and
// returns how many were removed.
func (t *Tier) DeleteMatching(match func(key string) bool) int {
	return t.DeleteWhere(func(key string, _ *types.CacheEntry) bool {
		return match(key)
	})
}

// DeleteWhere is DeleteMatching with access to the entry. Prune uses it to
// drop stale entries.
func (t *Tier) DeleteWhere(pred func(key string, ent *types.CacheEntry) bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for key, ent := range t.entries {
		if pred(key, ent) {
			t.deleteLocked(key)
			n++
		}
	}
	return n
}

func (t *Tier) deleteLocked(key string) bool {
	if _, ok := t.entries[key]; !ok {
		return false
	}
	delete(t.entries, key)
	t.policy.Remove(key)
	return true
}

// Clear drops every entry.
func (t *Tier) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = make(map[string]*types.CacheEntry)
	t.policy.Reset()
}

// Len returns the number of stored entries, including stale ones not yet
// noticed by a read.
func (t *Tier) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.entries)
}

// Keys returns the stored keys in sorted order.
func (t *Tier) Keys() []string {
	t.mu.Lock()
	keys := make([]string, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	t.mu.Unlock()

	sort.Strings(keys)
	return keys
}
