// Package warm pre-populates the cache ahead of expected demand.
//
// Warming must never slow down or break the caller: every item is attempted,
// failures are counted and otherwise ignored.
package warm

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/krisalay/tiered-cache/types"
)

// Item is one key to warm and the loader that produces its value.
type Item struct {
	Key    string
	Loader types.LoaderFunc
}

// Getter is the read-through lookup used for each item.
type Getter func(ctx context.Context, key string, loader types.LoaderFunc) (any, bool)

// Result counts how a warm run went.
type Result struct {
	Loaded int
	Failed int
}

/*
Run looks up every item concurrently and waits for all of them.

limit bounds the number of lookups in flight; zero or less means one
goroutine per item. Items without a loader count as failed.
*/
func Run(ctx context.Context, items []Item, limit int, get Getter) Result {
	var loaded, failed atomic.Int64

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	for _, it := range items {
		if it.Loader == nil {
			failed.Add(1)
			continue
		}
		g.Go(func() error {
			if _, ok := get(ctx, it.Key, it.Loader); ok {
				loaded.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return Result{Loaded: int(loaded.Load()), Failed: int(failed.Load())}
}
