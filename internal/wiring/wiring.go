// Package wiring assembles a cache process from its configuration using a
// graft dependency graph.
package wiring

import (
	"context"
	"errors"

	"github.com/grindlemire/graft"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	cache "github.com/krisalay/tiered-cache"
	"github.com/krisalay/tiered-cache/config"
	"github.com/krisalay/tiered-cache/durable"
)

type configPathKey struct{}

// WithConfigPath returns a context carrying the config file read by the
// config node.
func WithConfigPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, configPathKey{}, path)
}

// ConfigPath returns the path set by WithConfigPath, or "".
func ConfigPath(ctx context.Context) string {
	path, _ := ctx.Value(configPathKey{}).(string)
	return path
}

// Components is everything a cache process runs with.
type Components struct {
	Config *config.Config
	Logger *zap.Logger

	// Store is nil when the durable tier is disabled.
	Store durable.Store

	Cache *cache.Cache

	// Registry is nil when metrics are disabled.
	Registry *prometheus.Registry
}

// Build resolves the graph for the config file at path. Extra options are
// passed to graft, which is how tests patch nodes.
func Build(ctx context.Context, path string, opts ...graft.Option) (*Components, error) {
	comps, _, err := graft.ExecuteFor[*Components](WithConfigPath(ctx, path), opts...)
	if err != nil {
		return nil, err
	}
	return comps, nil
}

// Close shuts the cache down before the store it writes to.
func (c *Components) Close() error {
	var errs []error
	if c.Cache != nil {
		errs = append(errs, c.Cache.Close())
	}
	if c.Store != nil {
		errs = append(errs, c.Store.Close())
	}
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}
	return errors.Join(errs...)
}
