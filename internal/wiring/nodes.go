package wiring

import (
	"context"
	"os"
	"path/filepath"

	"github.com/grindlemire/graft"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.trai.ch/zerr"
	"go.uber.org/zap"

	cache "github.com/krisalay/tiered-cache"
	"github.com/krisalay/tiered-cache/config"
	"github.com/krisalay/tiered-cache/durable"
	"github.com/krisalay/tiered-cache/logging"
	"github.com/krisalay/tiered-cache/metrics"
)

// Node IDs of the dependency graph.
const (
	ConfigNodeID     graft.ID = "cache.config"
	LoggerNodeID     graft.ID = "cache.logger"
	DurableNodeID    graft.ID = "cache.durable"
	CacheNodeID      graft.ID = "cache.cache"
	MetricsNodeID    graft.ID = "cache.metrics"
	ComponentsNodeID graft.ID = "cache.components"
)

// Durable holds the durable store. Store is nil when the durable tier is
// disabled.
type Durable struct {
	Store durable.Store
}

// Nodes are not cacheable: every Build reads its own config path.
func init() {
	graft.Register(graft.Node[*config.Config]{
		ID:        ConfigNodeID,
		DependsOn: []graft.ID{},
		Run: func(ctx context.Context) (*config.Config, error) {
			return config.Load(ConfigPath(ctx))
		},
	})

	graft.Register(graft.Node[*zap.Logger]{
		ID:        LoggerNodeID,
		DependsOn: []graft.ID{ConfigNodeID},
		Run: func(ctx context.Context) (*zap.Logger, error) {
			cfg, err := graft.Dep[*config.Config](ctx)
			if err != nil {
				return nil, err
			}
			return logging.New(cfg.Logging)
		},
	})

	graft.Register(graft.Node[*Durable]{
		ID:        DurableNodeID,
		DependsOn: []graft.ID{ConfigNodeID},
		Run:       openDurable,
	})

	graft.Register(graft.Node[*cache.Cache]{
		ID:        CacheNodeID,
		DependsOn: []graft.ID{ConfigNodeID, LoggerNodeID, DurableNodeID},
		Run:       newCache,
	})

	graft.Register(graft.Node[*prometheus.Registry]{
		ID:        MetricsNodeID,
		DependsOn: []graft.ID{ConfigNodeID, CacheNodeID},
		Run:       newRegistry,
	})

	graft.Register(graft.Node[*Components]{
		ID:        ComponentsNodeID,
		DependsOn: []graft.ID{ConfigNodeID, LoggerNodeID, DurableNodeID, CacheNodeID, MetricsNodeID},
		Run:       newComponents,
	})
}

func openDurable(ctx context.Context) (*Durable, error) {
	cfg, err := graft.Dep[*config.Config](ctx)
	if err != nil {
		return nil, err
	}
	if !cfg.Cache.DurableEnabled {
		return &Durable{}, nil
	}

	dir := cfg.Durable.Path
	if cfg.Durable.Driver != durable.DriverFile {
		dir = filepath.Dir(dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to create durable directory"), "path", dir)
	}

	store, err := durable.Open(cfg.Durable.Driver, cfg.Durable.Path)
	if err != nil {
		return nil, err
	}
	return &Durable{Store: store}, nil
}

func newCache(ctx context.Context) (*cache.Cache, error) {
	cfg, err := graft.Dep[*config.Config](ctx)
	if err != nil {
		return nil, err
	}
	logger, err := graft.Dep[*zap.Logger](ctx)
	if err != nil {
		return nil, err
	}
	d, err := graft.Dep[*Durable](ctx)
	if err != nil {
		return nil, err
	}

	opts := []cache.Option{cache.WithLogger(logger)}
	if d.Store != nil {
		opts = append(opts, cache.WithStore(d.Store))
	}
	c, err := cache.New(cfg.CacheConfig(), opts...)
	if err != nil {
		// Nothing else will own the store once the graph fails.
		if d.Store != nil {
			if cerr := d.Store.Close(); cerr != nil {
				logger.Warn("failed to close durable store", zap.Error(cerr))
			}
		}
		return nil, err
	}

	logger.Info("cache ready",
		zap.String("namespace", cfg.Cache.Namespace),
		zap.String("schema_version", cfg.Cache.SchemaVersion),
		zap.Bool("durable", d.Store != nil),
		zap.String("write_policy", cfg.Cache.WritePolicy),
	)
	return c, nil
}

// newRegistry returns nil when metrics are disabled.
func newRegistry(ctx context.Context) (*prometheus.Registry, error) {
	cfg, err := graft.Dep[*config.Config](ctx)
	if err != nil {
		return nil, err
	}
	if !cfg.Metrics.Enabled {
		return nil, nil
	}
	c, err := graft.Dep[*cache.Cache](ctx)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	if err := reg.Register(metrics.NewExporter(cfg.Metrics.Namespace, c)); err != nil {
		return nil, zerr.Wrap(err, "failed to register cache metrics")
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, zerr.Wrap(err, "failed to register runtime metrics")
	}
	return reg, nil
}

func newComponents(ctx context.Context) (*Components, error) {
	cfg, err := graft.Dep[*config.Config](ctx)
	if err != nil {
		return nil, err
	}
	logger, err := graft.Dep[*zap.Logger](ctx)
	if err != nil {
		return nil, err
	}
	d, err := graft.Dep[*Durable](ctx)
	if err != nil {
		return nil, err
	}
	c, err := graft.Dep[*cache.Cache](ctx)
	if err != nil {
		return nil, err
	}
	reg, err := graft.Dep[*prometheus.Registry](ctx)
	if err != nil {
		return nil, err
	}

	return &Components{
		Config:   cfg,
		Logger:   logger,
		Store:    d.Store,
		Cache:    c,
		Registry: reg,
	}, nil
}
