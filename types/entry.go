package types

import "time"

/*
CacheEntry is the envelope around every cached value.

Entries are never mutated after they are built. A write always replaces the
whole entry, which is why readers can hold on to a pointer without a lock.
*/
type CacheEntry struct {
	// Data is the cached value. The cache never looks inside it.
	// Entries promoted from the durable tier carry a json.RawMessage until a
	// typed read decodes them.
	Data any

	// CreatedAt is when the entry was written. FIFO eviction orders by it.
	CreatedAt time.Time

	// TTL is how long after CreatedAt the entry stays valid.
	TTL time.Duration

	// SchemaVersion is the cache format version active at write time.
	SchemaVersion string
}

// NewEntry builds an entry stamped with the given creation time.
func NewEntry(data any, createdAt time.Time, ttl time.Duration, schemaVersion string) *CacheEntry {
	return &CacheEntry{
		Data:          data,
		CreatedAt:     createdAt,
		TTL:           ttl,
		SchemaVersion: schemaVersion,
	}
}

// ExpiresAt is the first instant at which the entry is stale.
func (e *CacheEntry) ExpiresAt() time.Time {
	return e.CreatedAt.Add(e.TTL)
}
