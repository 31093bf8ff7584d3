// Package durable implements the persistent cache tier.
//
// The durable tier is best effort. Callers treat every error from a Store as
// "tier unavailable for this operation" and carry on with the volatile tier.
package durable

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"go.trai.ch/zerr"
)

var (
	// ErrCorruptRecord is returned when a stored record cannot be decoded.
	ErrCorruptRecord = zerr.New("corrupt cache record")

	// ErrUnknownDriver is returned by Open for an unsupported driver name.
	ErrUnknownDriver = zerr.New("unknown durable driver")

	// ErrClosed is returned by operations on a closed store or write policy.
	ErrClosed = zerr.New("durable tier closed")
)

// Record is one persisted cache entry.
type Record struct {
	Data          json.RawMessage
	CreatedAt     time.Time
	TTL           time.Duration
	SchemaVersion string
}

// Store is a key → Record table that survives process restarts.
//
//go:generate mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks
type Store interface {
	// Get returns the record stored under key.
	// Returns nil, nil if the key is absent.
	Get(ctx context.Context, key string) (*Record, error)

	// Put stores rec under key, replacing any previous record.
	Put(ctx context.Context, key string, rec Record) error

	// Delete removes keys. Absent keys are ignored.
	Delete(ctx context.Context, keys []string) error

	// Keys lists every stored key starting with prefix, in sorted order.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases the underlying storage.
	Close() error
}
