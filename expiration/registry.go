package expiration

import (
	"strings"
	"time"
)

// DefaultTTL applies to keys that match no rule when nothing else is configured.
const DefaultTTL = 5 * time.Minute

// Rule maps a category substring to a TTL.
type Rule struct {
	Match string        `mapstructure:"match" yaml:"match"`
	TTL   time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

/*
Registry resolves the TTL for a key when the caller does not pass one.

Rules are checked in order and the first rule whose Match occurs in the key
wins, so more specific rules must come first. Keys that match nothing get
Default.
*/
type Registry struct {
	Rules   []Rule
	Default time.Duration
}

// NewRegistry copies rules so later changes by the caller do not leak in.
func NewRegistry(def time.Duration, rules []Rule) *Registry {
	r := &Registry{Default: def, Rules: make([]Rule, len(rules))}
	copy(r.Rules, rules)
	return r
}

// Resolve returns the TTL for key.
func (r *Registry) Resolve(key string) time.Duration {
	for _, rule := range r.Rules {
		if rule.Match != "" && strings.Contains(key, rule.Match) {
			return rule.TTL
		}
	}
	return r.Default
}

// DefaultRules are the category lifetimes used by the business layer.
func DefaultRules() []Rule {
	return []Rule{
		{Match: "Profile", TTL: 30 * time.Minute},
		{Match: "search", TTL: 2 * time.Minute},
		{Match: "Stats", TTL: 15 * time.Minute},
		{Match: "Details", TTL: 10 * time.Minute},
		{Match: "List", TTL: 5 * time.Minute},
	}
}
