// Package metrics exposes cache statistics to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/krisalay/tiered-cache/stats"
)

// Source is what the exporter reads on every scrape.
type Source interface {
	Stats() stats.Stats
	Len() int
}

/*
Exporter is a prometheus.Collector backed by a cache's Stats snapshot.

It holds no counters of its own: every scrape takes a fresh snapshot, so a
Clear that resets the cache stats shows up as a counter reset.
*/
type Exporter struct {
	source Source

	hits          *prometheus.Desc
	misses        *prometheus.Desc
	sets          *prometheus.Desc
	evictions     *prometheus.Desc
	expirations   *prometheus.Desc
	loadErrors    *prometheus.Desc
	durableErrors *prometheus.Desc
	hitRate       *prometheus.Desc
	entries       *prometheus.Desc
}

// NewExporter builds an exporter whose metric names start with namespace.
func NewExporter(namespace string, source Source) *Exporter {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil)
	}

	return &Exporter{
		source:        source,
		hits:          desc("hits_total", "Lookups that found a present and valid entry."),
		misses:        desc("misses_total", "Lookups that did not end in a hit."),
		sets:          desc("sets_total", "Completed cache writes."),
		evictions:     desc("evictions_total", "Entries dropped from the volatile tier to stay within capacity."),
		expirations:   desc("expirations_total", "Stale or version-mismatched entries found on read."),
		loadErrors:    desc("load_errors_total", "Loader calls that failed or panicked."),
		durableErrors: desc("durable_errors_total", "Durable tier reads or writes that failed."),
		hitRate:       desc("hit_ratio", "hits / (hits + misses) since the last reset."),
		entries:       desc("volatile_entries", "Entries currently held in the volatile tier."),
	}
}

// Describe implements prometheus.Collector.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.hits
	ch <- e.misses
	ch <- e.sets
	ch <- e.evictions
	ch <- e.expirations
	ch <- e.loadErrors
	ch <- e.durableErrors
	ch <- e.hitRate
	ch <- e.entries
}

// Collect implements prometheus.Collector.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	s := e.source.Stats()

	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	counter(e.hits, s.Hits)
	counter(e.misses, s.Misses)
	counter(e.sets, s.Sets)
	counter(e.evictions, s.Evictions)
	counter(e.expirations, s.Expirations)
	counter(e.loadErrors, s.LoadErrors)
	counter(e.durableErrors, s.DurableErrors)

	ch <- prometheus.MustNewConstMetric(e.hitRate, prometheus.GaugeValue, s.HitRate)
	ch <- prometheus.MustNewConstMetric(e.entries, prometheus.GaugeValue, float64(e.source.Len()))
}
