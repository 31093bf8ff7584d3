// Package api is the contract consumers of the cache program against.
package api

import (
	"context"
	"time"

	"github.com/krisalay/tiered-cache/stats"
	"github.com/krisalay/tiered-cache/types"
	"github.com/krisalay/tiered-cache/warm"
)

/*
Cache defines the PUBLIC API of the tiered cache.

Tiers, eviction, expiration, persistence and concurrency are hidden behind
this interface. None of the methods fail because of the cache itself: a tier
that misbehaves is logged and skipped, and the caller just sees a miss.
*/
type Cache interface {

	/*
		Get retrieves the value stored under key.

		BEHAVIOR:
		-------------------
		1. A valid entry in the volatile tier is returned (hit).
		2. Otherwise a valid record in the durable tier is promoted into the
		   volatile tier and returned (hit).
		3. Otherwise loader, when given, is called once. Its value is stored
		   in both tiers and returned (miss).

		A failing or panicking loader, or one that returns nil, gives
		(nil, false).
	*/
	Get(ctx context.Context, key string, loader types.LoaderFunc, opts ...GetOption) (any, bool)

	/*
		Set stores data under key in both tiers.

		A ttl of zero or less takes the TTL from the category rules. The
		durable write may complete after Set returns.
	*/
	Set(ctx context.Context, key string, data any, ttl time.Duration)

	// Invalidate removes every key containing pattern from both tiers and
	// returns how many distinct keys went away. Invalidating nothing is fine.
	Invalidate(ctx context.Context, pattern string) int

	// InvalidateRelated removes the keys that depend on the given entity.
	// Unknown entity types remove nothing.
	InvalidateRelated(ctx context.Context, entityType, entityID string) int

	// Warm loads items concurrently. Failures are counted, never returned.
	Warm(ctx context.Context, items []warm.Item) warm.Result

	// Clear empties both tiers and resets the counters.
	Clear(ctx context.Context)

	// Stats returns a snapshot of the counters.
	Stats() stats.Stats

	/*
		Close gracefully shuts down the cache.

		BEHAVIOR:
		---------
		- Flushes pending durable writes
		- Stops background goroutines

		The durable store stays open; it belongs to whoever opened it.
	*/
	Close() error
}

// GetOptions tunes a single Get.
type GetOptions struct {
	// ForceRefresh skips both tiers and goes straight to the loader.
	ForceRefresh bool

	// TTL overrides the TTL used when a loaded value is stored.
	TTL time.Duration
}

// GetOption modifies GetOptions.
type GetOption func(*GetOptions)

// WithForceRefresh bypasses cached values.
func WithForceRefresh() GetOption {
	return func(o *GetOptions) { o.ForceRefresh = true }
}

// WithTTL sets the TTL for a value produced by the loader.
func WithTTL(ttl time.Duration) GetOption {
	return func(o *GetOptions) { o.TTL = ttl }
}

// ApplyGetOptions folds opts into a GetOptions value.
func ApplyGetOptions(opts []GetOption) GetOptions {
	var o GetOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
