package writepolicy

import (
	"context"

	"go.uber.org/zap"

	"github.com/krisalay/tiered-cache/durable"
	"github.com/krisalay/tiered-cache/types"
)

/*
This file implements the "write-through" policy.

Whenever the cache writes data, it immediately writes the same data to the
durable tier. The flow is: cache write → store write (synchronous).
*/

// WriteThroughPolicy forwards every cache write to the store before returning.
type WriteThroughPolicy struct {
	store   durable.Store
	logger  *zap.Logger
	metrics types.Metrics
}

// NewWriteThroughPolicy creates a new write-through policy.
func NewWriteThroughPolicy(store durable.Store, logger *zap.Logger, metrics types.Metrics) *WriteThroughPolicy {
	return &WriteThroughPolicy{store: store, logger: logger, metrics: metrics}
}

// OnWrite persists the record. A slow store makes cache writes slow.
func (w *WriteThroughPolicy) OnWrite(ctx context.Context, key string, rec durable.Record) {
	if err := w.store.Put(ctx, key, rec); err != nil {
		w.metrics.DurableError()
		w.logger.Warn("durable write failed",
			zap.String("tier", "durable"),
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

// Flush has nothing to wait for.
func (w *WriteThroughPolicy) Flush(context.Context) error { return nil }

// Close has no background work to stop.
func (w *WriteThroughPolicy) Close() error { return nil }
