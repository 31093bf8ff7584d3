package commands

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	cache "github.com/krisalay/tiered-cache"
	"github.com/krisalay/tiered-cache/internal/wiring"
	"github.com/krisalay/tiered-cache/types"
)

// demoPatterns are removed again when the demo ends.
var demoPatterns = []string{"demoProject:", "demoSearch:", "demoTasks:", "demoFill:"}

func (c *CLI) newDemoCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Walk through misses, hits, expiry, coalescing, eviction and invalidation",
		Args:  cobra.NoArgs,
		RunE: c.withComponents(func(cmd *cobra.Command, _ []string, comps *wiring.Components) error {
			return runDemo(cmd.Context(), cmd.OutOrStdout(), comps, ttl)
		}),
	}

	cmd.Flags().DurationVar(&ttl, "ttl", time.Second, "TTL of the entry used to show expiry")

	return cmd
}

func section(out io.Writer, title string) {
	fmt.Fprintf(out, "\n==================== %s ====================\n", title)
}

func runDemo(ctx context.Context, out io.Writer, comps *wiring.Components, ttl time.Duration) error {
	c := comps.Cache
	cfg := comps.Config.Cache

	defer func() {
		for _, p := range demoPatterns {
			c.Invalidate(ctx, p)
		}
	}()

	section(out, "SYSTEM BOOT")
	fmt.Fprintln(out, "NAMESPACE       :", cfg.Namespace)
	fmt.Fprintln(out, "SCHEMA VERSION  :", cfg.SchemaVersion)
	fmt.Fprintln(out, "EVICTION POLICY :", cfg.EvictionPolicy)
	fmt.Fprintln(out, "CAPACITY        :", cfg.MaxVolatileItems)
	fmt.Fprintln(out, "DURABLE TIER    :", comps.Store != nil)
	fmt.Fprintln(out, "WRITE POLICY    :", cfg.WritePolicy)
	fmt.Fprintln(out, "COALESCE LOADS  :", cfg.CoalesceLoads)

	project := types.NewKey("demoProject", "42")
	loadProject := func(context.Context) (any, error) {
		fmt.Fprintln(out, "LOADER → load", project)
		return map[string]any{"id": "42", "name": "Apollo"}, nil
	}

	section(out, "1) CACHE MISS")
	v, ok := c.Get(ctx, project, loadProject)
	fmt.Fprintln(out, "CACHE  → GET", project, "=", v, ok)

	section(out, "2) CACHE HIT")
	v, ok = c.Get(ctx, project, loadProject)
	fmt.Fprintln(out, "CACHE  → GET", project, "=", v, ok)

	section(out, "3) TTL EXPIRATION")
	search := types.NewKey("demoSearch", "q")
	c.Set(ctx, search, []string{"apollo"}, ttl)
	fmt.Fprintf(out, "CACHE  → SET %s (TTL = %s)\n", search, ttl)
	select {
	case <-time.After(ttl + 100*time.Millisecond):
	case <-ctx.Done():
		return ctx.Err()
	}
	v, ok = c.Get(ctx, search, nil)
	fmt.Fprintln(out, "CACHE  → GET", search, "after TTL =", v, ok)

	section(out, "4) CONCURRENT LOADS")
	tasks := types.NewKey("demoTasks", "p1", "open")
	var calls atomic.Int32
	var wg sync.WaitGroup
	results := make([]any, 5)
	for i := range results {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			results[id], _ = c.Get(ctx, tasks, func(context.Context) (any, error) {
				calls.Add(1)
				time.Sleep(50 * time.Millisecond)
				return []string{"t1", "t2"}, nil
			})
		}(i)
	}
	wg.Wait()
	for id, val := range results {
		fmt.Fprintf(out, "GOROUTINE-%d → GET %s = %v\n", id, tasks, val)
	}
	fmt.Fprintln(out, "LOADER → calls:", calls.Load())

	section(out, "5) EVICTION")
	for i := 0; i < cfg.MaxVolatileItems+5; i++ {
		c.Set(ctx, types.NewKey("demoFill", fmt.Sprint(i)), i, 0)
	}
	fmt.Fprintln(out, "CACHE  → volatile entries:", c.Len())
	_, cached := cache.GetAs[map[string]any](ctx, c, project, nil)
	fmt.Fprintln(out, "CACHE  → GET", project, "after eviction found =", cached)

	section(out, "6) INVALIDATE")
	n := c.Invalidate(ctx, "demoProject:42")
	fmt.Fprintln(out, "CACHE  → INVALIDATE demoProject:42 removed", n)
	v, ok = c.Get(ctx, project, loadProject)
	fmt.Fprintln(out, "CACHE  → GET", project, "after invalidation =", v, ok)

	section(out, "STATS")
	if err := c.Flush(ctx); err != nil {
		return err
	}
	stats, err := yaml.Marshal(c.Stats())
	if err != nil {
		return err
	}
	_, err = out.Write(stats)
	return err
}
