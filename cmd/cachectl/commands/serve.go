package commands

import (
	"time"

	"github.com/spf13/cobra"
	"go.trai.ch/zerr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/krisalay/tiered-cache/internal/wiring"
	"github.com/krisalay/tiered-cache/metrics"
)

// ErrMetricsDisabled is returned by serve when metrics are off in the config.
var ErrMetricsDisabled = zerr.New("metrics are disabled")

func (c *CLI) newServeCmd() *cobra.Command {
	var (
		addr          string
		pruneInterval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose cache metrics over HTTP and prune the durable tier periodically",
		Args:  cobra.NoArgs,
		RunE: c.withComponents(func(cmd *cobra.Command, _ []string, comps *wiring.Components) error {
			if comps.Registry == nil {
				return ErrMetricsDisabled
			}

			g, ctx := errgroup.WithContext(cmd.Context())

			srv := metrics.NewServer(addr, comps.Registry)
			g.Go(func() error { return srv.Run(ctx) })

			if pruneInterval > 0 {
				g.Go(func() error {
					ticker := time.NewTicker(pruneInterval)
					defer ticker.Stop()
					for {
						select {
						case <-ctx.Done():
							return nil
						case <-ticker.C:
							if _, err := comps.Cache.Prune(ctx); err != nil {
								comps.Logger.Warn("periodic prune failed", zap.Error(err))
							}
						}
					}
				})
			}

			comps.Logger.Info("serving metrics", zap.String("addr", addr), zap.Duration("prune_interval", pruneInterval))
			return g.Wait()
		}),
	}

	cmd.Flags().StringVar(&addr, "addr", ":9090", "Listen address of the metrics endpoint")
	cmd.Flags().DurationVar(&pruneInterval, "prune-interval", 0, "How often to prune the durable tier; 0 disables")

	return cmd
}
