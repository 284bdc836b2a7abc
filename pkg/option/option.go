// Package option implements typed build options.
//
// A recipe declares a fixed list of [Descriptor] values. Each
// recipe instance owns a [Set] holding the explicit values assigned to
// those descriptors; reading a key yields the explicit value or, when unset,
// the declared default.
package option

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/matzehuels/distbuilder/pkg/errors"
)

// Kind is the declared type of an option.
type Kind int

const (
	KindBool Kind = iota
	KindString
	KindInt
)

// String returns the lowercase type name used in recipe files.
func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// ParseKind maps "bool", "string" and "int" to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bool", "boolean":
		return KindBool, nil
	case "string", "str":
		return KindString, nil
	case "int", "integer", "number":
		return KindInt, nil
	}
	return 0, errors.New(errors.ErrCodeConfiguration, "unknown option type %q", s)
}

// Descriptor declares one option of a recipe.
type Descriptor struct {
	Key         string
	Kind        Kind
	Default     any
	Description string
}

// Bool declares a boolean option.
func Bool(key string, def bool, description string) Descriptor {
	return Descriptor{Key: key, Kind: KindBool, Default: def, Description: description}
}

// String declares a string option.
func String(key, def, description string) Descriptor {
	return Descriptor{Key: key, Kind: KindString, Default: def, Description: description}
}

// Int declares an integer option.
func Int(key string, def int, description string) Descriptor {
	return Descriptor{Key: key, Kind: KindInt, Default: def, Description: description}
}

// Validate checks that the key is non-empty and the default has the
// declared type.
func (d Descriptor) Validate() error {
	if d.Key == "" {
		return errors.New(errors.ErrCodeConfiguration, "option key must not be empty")
	}
	if !d.Kind.holds(d.Default) {
		return errors.New(errors.ErrCodeConfiguration, "option %s: default %v (%T) is not a %s", d.Key, d.Default, d.Default, d.Kind)
	}
	return nil
}

func (k Kind) holds(v any) bool {
	switch v.(type) {
	case bool:
		return k == KindBool
	case string:
		return k == KindString
	case int:
		return k == KindInt
	}
	return false
}

// Coerce converts a decoded document value into the Go type of kind.
//
// JSON decodes numbers as float64 and TOML as int64; both are accepted for
// integer options when they hold a whole number. Strings are never parsed
// into other kinds.
func Coerce(kind Kind, v any) (any, error) {
	switch kind {
	case KindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case KindString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case KindInt:
		switch n := v.(type) {
		case int:
			return n, nil
		case int64:
			return int(n), nil
		case int32:
			return int(n), nil
		case float64:
			if n == math.Trunc(n) && !math.IsInf(n, 0) {
				return int(n), nil
			}
		}
	}
	return nil, errors.New(errors.ErrCodeConfiguration, "value %v (%T) is not a %s", v, v, kind)
}

// Format renders an option value for embedding in build flags.
// Booleans render as "1" and "0".
func Format(v any) string {
	switch x := v.(type) {
	case bool:
		if x {
			return "1"
		}
		return "0"
	case int:
		return strconv.Itoa(x)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// Reader is the read-only view of an option set. Dependency activation
// predicates and build procedures receive a Reader.
type Reader interface {
	Keys() []string
	Value(key string) (any, bool)
	Bool(key string) bool
	String(key string) string
	Int(key string) int
	Render(key string) string
}

// Set holds the explicit values of one recipe instance's options.
// Descriptors are kept sorted by key.
//
// Set is not safe for concurrent use.
type Set struct {
	descs    []Descriptor
	explicit map[string]any
	onChange func(key string)
}

// NewSet creates an option set over descs. onChange, when non-nil, is
// called after every successful assignment that changes the effective
// value of a key.
func NewSet(descs []Descriptor, onChange func(key string)) (*Set, error) {
	sorted := slices.Clone(descs)
	slices.SortFunc(sorted, func(a, b Descriptor) int { return strings.Compare(a.Key, b.Key) })
	for i, d := range sorted {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if i > 0 && sorted[i-1].Key == d.Key {
			return nil, errors.New(errors.ErrCodeConfiguration, "duplicate option %q", d.Key)
		}
	}
	return &Set{descs: sorted, explicit: make(map[string]any), onChange: onChange}, nil
}

// Descriptors returns the declared options sorted by key.
func (s *Set) Descriptors() []Descriptor { return slices.Clone(s.descs) }

// Keys returns the declared option keys in sorted order.
func (s *Set) Keys() []string {
	keys := make([]string, len(s.descs))
	for i, d := range s.descs {
		keys[i] = d.Key
	}
	return keys
}

// Descriptor returns the declaration of key.
func (s *Set) Descriptor(key string) (Descriptor, bool) {
	i, ok := slices.BinarySearchFunc(s.descs, key, func(d Descriptor, k string) int { return strings.Compare(d.Key, k) })
	if !ok {
		return Descriptor{}, false
	}
	return s.descs[i], true
}

// Set assigns an explicit value. It fails if key is not declared or if
// value is not of the declared type.
func (s *Set) Set(key string, value any) error {
	d, ok := s.Descriptor(key)
	if !ok {
		return errors.New(errors.ErrCodeConfiguration, "unknown option %q", key)
	}
	if !d.Kind.holds(value) {
		return errors.New(errors.ErrCodeConfiguration, "option %s: type mismatch: %v (%T) is not a %s", key, value, value, d.Kind)
	}
	before, _ := s.Value(key)
	s.explicit[key] = value
	if s.onChange != nil && before != value {
		s.onChange(key)
	}
	return nil
}

// Explicit returns the explicitly assigned value of key, if any.
func (s *Set) Explicit(key string) (any, bool) {
	v, ok := s.explicit[key]
	return v, ok
}

// Value returns the explicit value of key or its default. ok is false for
// undeclared keys.
func (s *Set) Value(key string) (any, bool) {
	if v, ok := s.explicit[key]; ok {
		return v, true
	}
	d, ok := s.Descriptor(key)
	if !ok {
		return nil, false
	}
	return d.Default, true
}

// Bool returns the value of a boolean option, or false.
func (s *Set) Bool(key string) bool {
	v, _ := s.Value(key)
	b, _ := v.(bool)
	return b
}

// String returns the value of a string option, or "".
func (s *Set) String(key string) string {
	v, _ := s.Value(key)
	str, _ := v.(string)
	return str
}

// Int returns the value of an integer option, or 0.
func (s *Set) Int(key string) int {
	v, _ := s.Value(key)
	n, _ := v.(int)
	return n
}

// Render formats the value of key for build flags.
func (s *Set) Render(key string) string {
	v, ok := s.Value(key)
	if !ok {
		return ""
	}
	return Format(v)
}

// Values returns the effective value of every declared option.
func (s *Set) Values() map[string]any {
	out := make(map[string]any, len(s.descs))
	for _, d := range s.descs {
		out[d.Key], _ = s.Value(d.Key)
	}
	return out
}

// Pair is one key/value entry of an option set.
type Pair struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Pairs returns the effective values ordered by key.
func (s *Set) Pairs() []Pair {
	out := make([]Pair, len(s.descs))
	for i, d := range s.descs {
		v, _ := s.Value(d.Key)
		out[i] = Pair{Key: d.Key, Value: v}
	}
	return out
}

var _ Reader = (*Set)(nil)
