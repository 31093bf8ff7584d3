// Package invalidation decides which cache keys a write to the system of
// record makes stale.
package invalidation

import (
	"strings"

	"github.com/krisalay/tiered-cache/types"
)

/*
Matcher selects keys for removal. Keys are the caller-visible form, without
the cache namespace.
*/
type Matcher interface {
	Match(key string) bool
}

// Substring matches any key containing the pattern. It backs the public
// string-based Invalidate. An empty pattern matches every key.
type Substring string

func (s Substring) Match(key string) bool {
	return strings.Contains(key, string(s))
}

func (s Substring) String() string {
	return "substring(" + string(s) + ")"
}

/*
SegmentPrefix matches keys whose leading segments equal Segments exactly.

{"projectDetails"} matches "projectDetails" and "projectDetails:42" but not
"projectDetailsArchive:42", which a substring match would catch.
*/
type SegmentPrefix struct {
	Segments []string
}

func (p SegmentPrefix) Match(key string) bool {
	segs := types.Segments(key)
	if len(segs) < len(p.Segments) {
		return false
	}
	for i, s := range p.Segments {
		if segs[i] != s {
			return false
		}
	}
	return true
}

func (p SegmentPrefix) String() string {
	return "segments(" + strings.Join(p.Segments, types.Separator) + ")"
}

/*
ParsePattern turns a table pattern into a matcher:

	"projectDetails:"      → SegmentPrefix{projectDetails}
	"taskList:p1:"         → SegmentPrefix{taskList, p1}
	"search"               → Substring("search")

A pattern ending in the separator names whole segments. Anything else falls
back to substring matching.
*/
func ParsePattern(pattern string) Matcher {
	if trimmed, ok := strings.CutSuffix(pattern, types.Separator); ok && trimmed != "" {
		return SegmentPrefix{Segments: types.Segments(trimmed)}
	}
	return Substring(pattern)
}

// Any reports whether at least one matcher accepts key.
func Any(matchers []Matcher, key string) bool {
	for _, m := range matchers {
		if m.Match(key) {
			return true
		}
	}
	return false
}
