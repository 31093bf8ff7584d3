package eviction

import (
	"time"

	"go.trai.ch/zerr"
)

/*
This file defines how the volatile tier decides what to drop when it grows
past its capacity.
*/

// ErrUnknownPolicy is returned by NewEvictionPolicy for an unsupported PolicyType.
var ErrUnknownPolicy = zerr.New("unknown eviction policy")

/*
Policy is the interface all eviction strategies implement.

The volatile tier calls these methods while holding its own lock, so
implementations do not need to be safe for concurrent use.
*/
type Policy interface {

	// OnPut is called whenever a key is written, including replacements.
	// createdAt is the creation time of the new entry.
	OnPut(key string, createdAt time.Time)

	// OnGet is called whenever a key is read.
	// FIFO ignores it; LRU and LFU use it to rank keys.
	OnGet(key string)

	// Remove is called when a key leaves the tier for any reason other than
	// eviction (invalidation, lazy expiry, clear).
	Remove(key string)

	// Evict picks the key to drop, forgets it and returns it.
	// An empty string means nothing is tracked.
	Evict() string

	// Reset forgets every tracked key.
	Reset()
}

// PolicyType is the identifier used in configuration.
type PolicyType string

const (
	// FIFO evicts the entry with the oldest CreatedAt, regardless of access.
	// This is the default.
	FIFO PolicyType = "FIFO"

	// LRU evicts the key that has not been read for the longest time.
	LRU PolicyType = "LRU"

	// LFU evicts the key read the fewest times. Ties go to the key that
	// reached that frequency first.
	LFU PolicyType = "LFU"
)

// NewEvictionPolicy creates the policy for t. An empty t selects FIFO.
func NewEvictionPolicy(t PolicyType) (Policy, error) {
	switch t {
	case FIFO, "":
		return newFIFO(), nil
	case LRU:
		return newLRU(), nil
	case LFU:
		return newLFU(), nil
	default:
		return nil, zerr.With(ErrUnknownPolicy, "policy", string(t))
	}
}
