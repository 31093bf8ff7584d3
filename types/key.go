package types

import "strings"

// Separator joins the segments of a cache key.
const Separator = ":"

/*
Key is the structured form of a caller-visible cache key:

	<category>:<id>[:<qualifier>]

The namespace is not part of Key. The cache adds it when it talks to a tier
and strips it again before any matching happens.
*/
type Key struct {
	Category  string
	ID        string
	Qualifier string
}

// NewKey renders a key string from its parts. Empty trailing parts are omitted.
func NewKey(category, id string, qualifier ...string) string {
	return Key{Category: category, ID: id, Qualifier: strings.Join(qualifier, Separator)}.String()
}

// ParseKey splits a key into category, id and qualifier.
// Everything after the second separator belongs to the qualifier.
func ParseKey(s string) Key {
	parts := strings.SplitN(s, Separator, 3)
	k := Key{Category: parts[0]}
	if len(parts) > 1 {
		k.ID = parts[1]
	}
	if len(parts) > 2 {
		k.Qualifier = parts[2]
	}
	return k
}

func (k Key) String() string {
	var b strings.Builder
	b.WriteString(k.Category)
	if k.ID != "" || k.Qualifier != "" {
		b.WriteString(Separator)
		b.WriteString(k.ID)
	}
	if k.Qualifier != "" {
		b.WriteString(Separator)
		b.WriteString(k.Qualifier)
	}
	return b.String()
}

// Segments splits a key string on every separator.
func Segments(s string) []string {
	return strings.Split(s, Separator)
}
