// Package version implements the four-component library versions used by
// recipes, together with per-component range filters and version sets.
//
// A [Version] is (variant, major, minor, patch). Parsing pads missing
// components from the most significant side, because many older libraries
// were tagged "minor.patch" without a major number:
//
//	version.MustParse("5")       // (0,0,5,0)
//	version.MustParse("5.2")     // (0,0,5,2)
//	version.MustParse("5.2.1")   // (0,5,2,1)
//	version.MustParse("5.2.1.9") // (5,2,1,9)
//
// Versions are ordered lexicographically over the four components.
package version

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"

	"github.com/matzehuels/distbuilder/pkg/errors"
)

// Version is an immutable (variant, major, minor, patch) tuple.
// The zero value is the version "0.0".
type Version struct {
	Variant int
	Major   int
	Minor   int
	Patch   int
}

// New returns the version with the given components.
func New(variant, major, minor, patch int) Version {
	return Version{Variant: variant, Major: major, Minor: minor, Patch: patch}
}

// Parse parses 1 to 4 dot-separated non-negative integers.
// Two or three components are right-aligned: "1.2" is minor 1, patch 2.
// A single component is a minor number with patch 0.
func Parse(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Version{}, errors.New(errors.ErrCodeConfiguration, "empty version string")
	}
	parts := strings.Split(s, ".")
	if len(parts) > 4 {
		return Version{}, errors.New(errors.ErrCodeConfiguration, "version %q has more than 4 components", s)
	}

	var c [4]int
	offset := 4 - len(parts)
	if len(parts) == 1 {
		offset = 2
	}
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return Version{}, errors.New(errors.ErrCodeConfiguration, "invalid version component %q in %q", p, s)
		}
		c[offset+i] = n
	}
	return Version{Variant: c[0], Major: c[1], Minor: c[2], Patch: c[3]}, nil
}

// MustParse is like Parse but panics on malformed input.
// It is intended for recipe tables and tests.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the canonical form: leading zero variant and major
// components are dropped, minor and patch are always present.
func (v Version) String() string {
	switch {
	case v.Variant > 0:
		return fmt.Sprintf("%d.%d.%d.%d", v.Variant, v.Major, v.Minor, v.Patch)
	case v.Major > 0:
		return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	default:
		return fmt.Sprintf("%d.%d", v.Minor, v.Patch)
	}
}

// Components returns the version as an array, most significant first.
func (v Version) Components() [4]int {
	return [4]int{v.Variant, v.Major, v.Minor, v.Patch}
}

// Compare returns -1, 0 or +1 comparing v and o lexicographically.
func (v Version) Compare(o Version) int {
	if c := cmp.Compare(v.Variant, o.Variant); c != 0 {
		return c
	}
	if c := cmp.Compare(v.Major, o.Major); c != 0 {
		return c
	}
	if c := cmp.Compare(v.Minor, o.Minor); c != 0 {
		return c
	}
	return cmp.Compare(v.Patch, o.Patch)
}

// Less reports whether v sorts before o.
func (v Version) Less(o Version) bool { return v.Compare(o) < 0 }

// Match reports whether every component of v is accepted by r.
func (v Version) Match(r Range) bool { return r.Contains(v) }

// MarshalText encodes the canonical string form, so versions can be used
// as JSON and TOML values and map keys.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText parses the textual form produced by MarshalText.
func (v *Version) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
