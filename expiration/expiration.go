// This file defines when a cache entry stops being usable.

package expiration

import (
	"time"

	"github.com/krisalay/tiered-cache/types"
)

/*
Strategy decides whether an entry may still be served.

Instead of hard-coding validity checks into the cache, the engine asks a
strategy, so the rule can be swapped in tests.
*/
type Strategy interface {

	// IsExpired reports whether the entry must be treated as absent at now.
	IsExpired(ent *types.CacheEntry, now time.Time) bool
}

/*
Versioned is the default strategy.

An entry is valid only when it was written under the current schema version
AND less than TTL has passed since it was created. A version mismatch is
reported exactly like a TTL expiry: the caller just sees a miss.
*/
type Versioned struct {
	SchemaVersion string
}

// IsExpired checks both the schema version and the age of the entry.
func (v Versioned) IsExpired(ent *types.CacheEntry, now time.Time) bool {
	if ent == nil {
		return true
	}
	if ent.SchemaVersion != v.SchemaVersion {
		return true
	}
	return now.Sub(ent.CreatedAt) >= ent.TTL
}
