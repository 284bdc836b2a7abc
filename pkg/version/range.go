package version

import (
	"slices"
	"strconv"
	"strings"

	"github.com/matzehuels/distbuilder/pkg/errors"
)

// span is an inclusive integer interval.
type span struct{ lo, hi int }

// Filter accepts a subset of the non-negative integers.
//
// The textual form is "*" (everything), a single integer, or a
// comma-separated list of integers and inclusive "a-b" ranges,
// e.g. "130-132,150". The zero value accepts everything.
type Filter struct {
	text  string
	spans []span // nil means "*"
}

// Any is the filter that accepts every value.
var Any = Filter{text: "*"}

// ParseFilter parses the textual filter form. Whitespace around list
// items is ignored.
func ParseFilter(s string) (Filter, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return Any, nil
	}

	var spans []span
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			return Filter{}, errors.New(errors.ErrCodeConfiguration, "empty item in version filter %q", s)
		}
		lo, hi, isRange := strings.Cut(item, "-")
		a, err := parseBound(lo, s)
		if err != nil {
			return Filter{}, err
		}
		b := a
		if isRange {
			if b, err = parseBound(hi, s); err != nil {
				return Filter{}, err
			}
			if b < a {
				return Filter{}, errors.New(errors.ErrCodeConfiguration, "descending range %q in version filter %q", item, s)
			}
		}
		spans = append(spans, span{a, b})
	}
	return Filter{text: canonicalFilter(spans), spans: spans}, nil
}

func parseBound(s, filter string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0, errors.New(errors.ErrCodeConfiguration, "invalid bound %q in version filter %q", s, filter)
	}
	return n, nil
}

func canonicalFilter(spans []span) string {
	parts := make([]string, len(spans))
	for i, sp := range spans {
		if sp.lo == sp.hi {
			parts[i] = strconv.Itoa(sp.lo)
		} else {
			parts[i] = strconv.Itoa(sp.lo) + "-" + strconv.Itoa(sp.hi)
		}
	}
	return strings.Join(parts, ",")
}

// MustParseFilter is like ParseFilter but panics on malformed input.
func MustParseFilter(s string) Filter {
	f, err := ParseFilter(s)
	if err != nil {
		panic(err)
	}
	return f
}

// Exact returns a filter accepting exactly n.
func Exact(n int) Filter {
	return Filter{text: strconv.Itoa(n), spans: []span{{n, n}}}
}

// IsAny reports whether the filter accepts every value.
func (f Filter) IsAny() bool { return f.spans == nil }

// Accepts reports whether n passes the filter.
func (f Filter) Accepts(n int) bool {
	if f.spans == nil {
		return true
	}
	return slices.ContainsFunc(f.spans, func(sp span) bool { return n >= sp.lo && n <= sp.hi })
}

// String returns the canonical textual form.
func (f Filter) String() string {
	if f.spans == nil {
		return "*"
	}
	return f.text
}

// MarshalText implements encoding.TextMarshaler.
func (f Filter) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Filter) UnmarshalText(b []byte) error {
	parsed, err := ParseFilter(string(b))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Range is one filter per version component. A version matches iff all four
// components match independently. The zero value matches every version.
type Range struct {
	Variant Filter `json:"variant"`
	Major   Filter `json:"major"`
	Minor   Filter `json:"minor"`
	Patch   Filter `json:"patch"`
}

// All is the range matching every version.
var All = Range{Variant: Any, Major: Any, Minor: Any, Patch: Any}

// NewRange parses four component filters into a Range.
func NewRange(variant, major, minor, patch string) (Range, error) {
	var r Range
	var err error
	if r.Variant, err = ParseFilter(variant); err != nil {
		return Range{}, err
	}
	if r.Major, err = ParseFilter(major); err != nil {
		return Range{}, err
	}
	if r.Minor, err = ParseFilter(minor); err != nil {
		return Range{}, err
	}
	if r.Patch, err = ParseFilter(patch); err != nil {
		return Range{}, err
	}
	return r, nil
}

// MustRange is like NewRange but panics on malformed input.
func MustRange(variant, major, minor, patch string) Range {
	r, err := NewRange(variant, major, minor, patch)
	if err != nil {
		panic(err)
	}
	return r
}

// Pinned returns the range matching exactly v.
func Pinned(v Version) Range {
	return Range{Variant: Exact(v.Variant), Major: Exact(v.Major), Minor: Exact(v.Minor), Patch: Exact(v.Patch)}
}

// Contains reports whether v matches all four component filters.
func (r Range) Contains(v Version) bool {
	return r.Variant.Accepts(v.Variant) &&
		r.Major.Accepts(v.Major) &&
		r.Minor.Accepts(v.Minor) &&
		r.Patch.Accepts(v.Patch)
}

// IsAll reports whether the range matches every version.
func (r Range) IsAll() bool {
	return r.Variant.IsAny() && r.Major.IsAny() && r.Minor.IsAny() && r.Patch.IsAny()
}

// String renders the range as "[variant major minor patch]".
func (r Range) String() string {
	return "[" + r.Variant.String() + " " + r.Major.String() + " " + r.Minor.String() + " " + r.Patch.String() + "]"
}
