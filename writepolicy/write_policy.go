package writepolicy

import (
	"context"

	"go.trai.ch/zerr"
	"go.uber.org/zap"

	"github.com/krisalay/tiered-cache/durable"
	"github.com/krisalay/tiered-cache/types"
)

/*
This file defines what a "write policy" is.

A write policy decides how a cache write reaches the durable tier:
- write-back queues it and returns at once
- write-through persists it before returning

The cache does not care which policy is used. It simply calls these methods.
*/

// ErrUnknownPolicy is returned by New for an unsupported policy name.
var ErrUnknownPolicy = zerr.New("unknown write policy")

// Policy names accepted by New.
const (
	WriteBack    = "write-back"
	WriteThrough = "write-through"
)

/*
WritePolicy is the contract that all write policies must follow.

Durable failures never reach the caller. A policy logs them and reports them
through Metrics.DurableError.
*/
type WritePolicy interface {

	// OnWrite is called after the volatile tier accepted a write.
	OnWrite(ctx context.Context, key string, rec durable.Record)

	// Flush returns once every write accepted before the call has been
	// attempted against the store.
	Flush(ctx context.Context) error

	// Close flushes pending writes and stops background work. The store itself
	// stays open; it belongs to the caller.
	Close() error
}

// New builds the named policy on top of store. buffer is the write-back
// queue length and is ignored by write-through.
func New(name string, store durable.Store, buffer int, logger *zap.Logger, metrics types.Metrics) (WritePolicy, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = types.NoopMetrics{}
	}

	switch name {
	case WriteBack, "":
		return NewWriteBackPolicy(store, buffer, logger, metrics), nil
	case WriteThrough:
		return NewWriteThroughPolicy(store, logger, metrics), nil
	default:
		return nil, zerr.With(ErrUnknownPolicy, "policy", name)
	}
}
