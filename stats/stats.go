// Package stats counts what the cache does and derives its hit rate.
package stats

import "sync/atomic"

// Stats is a point-in-time snapshot of the counters.
type Stats struct {
	Hits          uint64  `json:"hits" yaml:"hits"`
	Misses        uint64  `json:"misses" yaml:"misses"`
	Sets          uint64  `json:"sets" yaml:"sets"`
	Evictions     uint64  `json:"evictions" yaml:"evictions"`
	Expirations   uint64  `json:"expirations" yaml:"expirations"`
	LoadErrors    uint64  `json:"loadErrors" yaml:"load_errors"`
	DurableErrors uint64  `json:"durableErrors" yaml:"durable_errors"`
	HitRate       float64 `json:"hitRate" yaml:"hit_rate"`
}

// HitRate returns hits / (hits + misses), or 0 when nothing was looked up.
func HitRate(hits, misses uint64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

/*
Collector implements types.Metrics with lock-free counters.

Snapshot never blocks and never touches a tier. Counters are read one by one,
so a snapshot taken during heavy traffic may mix values from a few
nanoseconds apart.
*/
type Collector struct {
	hits          atomic.Uint64
	misses        atomic.Uint64
	sets          atomic.Uint64
	evictions     atomic.Uint64
	expirations   atomic.Uint64
	loadErrors    atomic.Uint64
	durableErrors atomic.Uint64
}

// NewCollector returns a collector with every counter at zero.
func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Hit()          { c.hits.Add(1) }
func (c *Collector) Miss()         { c.misses.Add(1) }
func (c *Collector) Set()          { c.sets.Add(1) }
func (c *Collector) Eviction()     { c.evictions.Add(1) }
func (c *Collector) Expire()       { c.expirations.Add(1) }
func (c *Collector) LoadError()    { c.loadErrors.Add(1) }
func (c *Collector) DurableError() { c.durableErrors.Add(1) }

// Snapshot copies the current counters.
func (c *Collector) Snapshot() Stats {
	s := Stats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Sets:          c.sets.Load(),
		Evictions:     c.evictions.Load(),
		Expirations:   c.expirations.Load(),
		LoadErrors:    c.loadErrors.Load(),
		DurableErrors: c.durableErrors.Load(),
	}
	s.HitRate = HitRate(s.Hits, s.Misses)
	return s
}

// Reset sets every counter back to zero.
func (c *Collector) Reset() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.sets.Store(0)
	c.evictions.Store(0)
	c.expirations.Store(0)
	c.loadErrors.Store(0)
	c.durableErrors.Store(0)
}
