package types

// This file defines how the cache reports what it is doing.

/*
Metrics is the set of events the cache emits.
Each method represents one event in the cache lifecycle.
*/
type Metrics interface {

	// Hit is called when a lookup finds a present and valid entry.
	Hit()

	// Miss is called once for every lookup that does not end in a hit.
	Miss()

	// Set is called for every completed cache write.
	Set()

	// Eviction is called when the volatile tier drops an entry to stay within capacity.
	Eviction()

	// Expire is called when a stale or version-mismatched entry is found on read.
	Expire()

	// LoadError is called when a loader fails or panics.
	LoadError()

	// DurableError is called when a durable tier read or write fails.
	DurableError()
}

/*
NoopMetrics ignores every event.

It lets the engine run without a stats collector and without nil checks
around every metric call.
*/
type NoopMetrics struct{}

func (NoopMetrics) Hit()          {}
func (NoopMetrics) Miss()         {}
func (NoopMetrics) Set()          {}
func (NoopMetrics) Eviction()     {}
func (NoopMetrics) Expire()       {}
func (NoopMetrics) LoadError()    {}
func (NoopMetrics) DurableError() {}
