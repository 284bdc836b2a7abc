package version

import (
	"slices"
	"strings"
)

// Set is an immutable, sorted set of versions.
type Set struct {
	items []Version // ascending, no duplicates
}

// NewSet returns the set containing vs.
func NewSet(vs ...Version) Set {
	items := slices.Clone(vs)
	slices.SortFunc(items, Version.Compare)
	items = slices.Compact(items)
	return Set{items: items}
}

// Len returns the number of versions in the set.
func (s Set) Len() int { return len(s.items) }

// Empty reports whether the set has no versions.
func (s Set) Empty() bool { return len(s.items) == 0 }

// Contains reports whether v is in the set.
func (s Set) Contains(v Version) bool {
	_, ok := slices.BinarySearchFunc(s.items, v, Version.Compare)
	return ok
}

// Filter returns the versions matching r.
func (s Set) Filter(r Range) Set {
	var out []Version
	for _, v := range s.items {
		if r.Contains(v) {
			out = append(out, v)
		}
	}
	return Set{items: out}
}

// Intersect returns the versions present in both sets.
func (s Set) Intersect(o Set) Set {
	var out []Version
	for _, v := range s.items {
		if o.Contains(v) {
			out = append(out, v)
		}
	}
	return Set{items: out}
}

// Max returns the greatest version. ok is false for an empty set.
func (s Set) Max() (v Version, ok bool) {
	if len(s.items) == 0 {
		return Version{}, false
	}
	return s.items[len(s.items)-1], true
}

// Versions returns the versions in ascending order.
func (s Set) Versions() []Version { return slices.Clone(s.items) }

// Equal reports whether both sets hold the same versions.
func (s Set) Equal(o Set) bool { return slices.Equal(s.items, o.items) }

// String renders the set as "{1.2, 1.3}".
func (s Set) String() string {
	parts := make([]string, len(s.items))
	for i, v := range s.items {
		parts[i] = v.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
