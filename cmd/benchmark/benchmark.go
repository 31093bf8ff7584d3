package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	cache "github.com/krisalay/tiered-cache"
	"github.com/krisalay/tiered-cache/durable"
	"github.com/krisalay/tiered-cache/eviction"
	"github.com/krisalay/tiered-cache/writepolicy"
)

// ================= BENCHMARK =================

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// ---------------- Cache Config ----------------
	const (
		capacity    = 200000
		preloadKeys = 100000
		goroutines  = 200
		opsPerG     = 5000
		writeBuffer = 4096
	)

	fmt.Println("\n================ CACHE LOAD BENCHMARK =================")
	fmt.Println("CONFIG")
	fmt.Println("---------------------------------")
	fmt.Println("Capacity     :", capacity)
	fmt.Println("Preload Keys :", preloadKeys)
	fmt.Println("Goroutines   :", goroutines)
	fmt.Println("Ops/Goroutine:", opsPerG)
	fmt.Println("Durable Tier : sqlite, write-back")
	fmt.Println("---------------------------------")

	// ---------------- Durable Store ----------------
	dir, err := os.MkdirTemp("", "tiercache-bench-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	store, err := durable.NewSQLiteStore(filepath.Join(dir, "bench.db"))
	if err != nil {
		return err
	}
	defer store.Close()

	// ---------------- Cache ----------------
	cfg := cache.DefaultConfig()
	cfg.Namespace = "bench"
	cfg.MaxVolatileItems = capacity
	cfg.DefaultTTL = time.Minute
	cfg.EvictionPolicy = eviction.FIFO
	cfg.WritePolicy = writepolicy.WriteBack
	cfg.WriteBuffer = writeBuffer

	c, err := cache.New(cfg, cache.WithStore(store))
	if err != nil {
		return err
	}
	defer c.Close()

	// ---------------- Preload Cache ----------------
	fmt.Println("Preloading cache...")
	start := time.Now()
	for i := 0; i < preloadKeys; i++ {
		c.Set(ctx, fmt.Sprintf("key-%d", i), i, 0)
	}
	if err := c.Flush(ctx); err != nil {
		return err
	}
	fmt.Printf("Preload complete in %v.\n", time.Since(start))

	// ---------------- Warmup ----------------
	fmt.Println("Warming up cache...")
	for i := 0; i < 10000; i++ {
		c.Get(ctx, fmt.Sprintf("key-%d", i%preloadKeys), nil)
	}
	fmt.Println("Warmup complete.")

	// ---------------- Load Test ----------------
	fmt.Println("Running concurrency benchmark...")

	start = time.Now()

	wg := sync.WaitGroup{}
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < opsPerG; j++ {
				key := fmt.Sprintf("key-%d", (id*opsPerG+j)%preloadKeys)
				c.Get(ctx, key, nil)
			}
		}(i)
	}

	wg.Wait()

	duration := time.Since(start)
	totalOps := goroutines * opsPerG
	stats := c.Stats()

	fmt.Println("\n================ RESULTS =================")
	fmt.Printf("Total Operations : %d\n", totalOps)
	fmt.Printf("Total Time       : %v\n", duration)
	fmt.Printf("Throughput       : %.2f ops/sec\n", float64(totalOps)/duration.Seconds())
	fmt.Printf("Hit Rate         : %.4f\n", stats.HitRate)
	fmt.Printf("Evictions        : %d\n", stats.Evictions)
	fmt.Printf("Dropped Writes   : %d\n", stats.DurableErrors)
	fmt.Println("=========================================")

	return nil
}
