package writepolicy

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/krisalay/tiered-cache/durable"
	"github.com/krisalay/tiered-cache/types"
)

// This file implements the "write-back" policy.

// DefaultBuffer is the queue length used when none is configured.
const DefaultBuffer = 1024

// writeReq is one queued operation. A request with a non-nil done channel is
// a flush barrier and carries no write.
type writeReq struct {
	ctx  context.Context
	key  string
	rec  durable.Record
	done chan struct{}
}

/*
WriteBackPolicy manages asynchronous writes to the durable tier.

A single worker drains the queue, so writes reach the store in the order they
were accepted. A later write to a key can never be overtaken by an earlier one.
*/
type WriteBackPolicy struct {
	store   durable.Store
	logger  *zap.Logger
	metrics types.Metrics

	// ch holds pending requests. Buffering lets bursts of writes through
	// without blocking the caller.
	ch chan writeReq

	// mu guards closed and keeps senders off ch once it is closed.
	mu     sync.RWMutex
	closed bool

	wg sync.WaitGroup
}

// NewWriteBackPolicy creates a write-back policy and starts its worker.
func NewWriteBackPolicy(store durable.Store, buffer int, logger *zap.Logger, metrics types.Metrics) *WriteBackPolicy {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	w := &WriteBackPolicy{
		store:   store,
		logger:  logger,
		metrics: metrics,
		ch:      make(chan writeReq, buffer),
	}

	w.wg.Add(1)
	go w.worker()

	return w
}

// OnWrite queues the write and returns immediately. If the queue is full the
// write is dropped: the volatile tier already holds the value.
func (w *WriteBackPolicy) OnWrite(ctx context.Context, key string, rec durable.Record) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		w.metrics.DurableError()
		w.logger.Warn("write-back closed, dropping write", zap.String("key", key))
		return
	}

	select {
	case w.ch <- writeReq{ctx: context.WithoutCancel(ctx), key: key, rec: rec}:
	default:
		w.metrics.DurableError()
		w.logger.Warn("write-back queue full, dropping write", zap.String("key", key))
	}
}

// Flush waits until every write queued before the call has been attempted.
func (w *WriteBackPolicy) Flush(ctx context.Context) error {
	done := make(chan struct{})

	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return durable.ErrClosed
	}
	select {
	case w.ch <- writeReq{done: done}:
	case <-ctx.Done():
		w.mu.RUnlock()
		return ctx.Err()
	}
	w.mu.RUnlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// worker persists queued writes one at a time.
func (w *WriteBackPolicy) worker() {
	defer w.wg.Done()

	for req := range w.ch {
		if req.done != nil {
			close(req.done)
			continue
		}
		if err := w.store.Put(req.ctx, req.key, req.rec); err != nil {
			w.metrics.DurableError()
			w.logger.Warn("durable write failed",
				zap.String("tier", "durable"),
				zap.String("key", req.key),
				zap.Error(err),
			)
		}
	}
}

/*
Close shuts down the write-back policy gracefully:
 1. No more writes are accepted
 2. Queued writes are drained
 3. The worker exits

Calling Close more than once is safe.
*/
func (w *WriteBackPolicy) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.ch)
	w.mu.Unlock()

	w.wg.Wait()
	return nil
}
