package types

import "context"

/*
LoaderFunc is the contract between the cache and the business layer.

It is called when a key is missing from every tier:
 1. Cache checks the volatile tier → miss
 2. Cache checks the durable tier → miss
 3. Cache calls the loader (DB, remote API, ...)
 4. Cache stores the result in both tiers
 5. Cache returns the value

The loader belongs to the caller. The cache imposes no timeout on it; the
loader is expected to honour ctx.
*/
type LoaderFunc func(ctx context.Context) (any, error)

// Typed adapts a typed loader to a LoaderFunc.
func Typed[T any](fn func(ctx context.Context) (T, error)) LoaderFunc {
	if fn == nil {
		return nil
	}
	return func(ctx context.Context) (any, error) {
		return fn(ctx)
	}
}
