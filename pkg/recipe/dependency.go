package recipe

import (
	"maps"
	"slices"
	"strings"

	"github.com/matzehuels/distbuilder/pkg/errors"
	"github.com/matzehuels/distbuilder/pkg/option"
	"github.com/matzehuels/distbuilder/pkg/version"
)

// Predicate decides from the owner's current options whether a dependency
// is active.
type Predicate func(owner option.Reader) bool

// Dependency is a reference from one recipe to another.
type Dependency struct {
	// Library is the full or short name of the referenced recipe.
	Library string
	// When gates the dependency on the owner's options. Nil means always.
	When Predicate
	// Check reports why When cannot be evaluated for an owner. When treats
	// such an owner as not requiring the dependency. Nil means never.
	Check func(owner option.Reader) error
	// Range restricts acceptable versions. The zero value accepts all.
	Range version.Range
	// Overrides are option values forced on the referenced instance.
	Overrides map[string]any
}

// IsRequired evaluates the activation predicate against the owner's
// current options.
func (d Dependency) IsRequired(owner option.Reader) bool {
	if d.When == nil {
		return true
	}
	return d.When(owner)
}

// Validate returns the error, if any, from evaluating When against the
// owner's current options.
func (d Dependency) Validate(owner option.Reader) error {
	if d.Check == nil {
		return nil
	}
	return d.Check(owner)
}

// Candidates returns the versions of target that satisfy the range.
// It fails with DEPENDENCY_NOT_FOUND if none do.
func (d Dependency) Candidates(target *Recipe) (version.Set, error) {
	set := target.Versions().Filter(d.Range)
	if set.Empty() {
		return set, errors.New(errors.ErrCodeDependencyNotFound,
			"no version of %s satisfies %s (catalogue %s)", target.Name, d.Range, target.Versions())
	}
	return set, nil
}

// OverrideKeys returns the overridden option keys in sorted order.
func (d Dependency) OverrideKeys() []string {
	return slices.Sorted(maps.Keys(d.Overrides))
}

// String renders the dependency for log messages.
func (d Dependency) String() string {
	var b strings.Builder
	b.WriteString(d.Library)
	if !d.Range.IsAll() {
		b.WriteString(" ")
		b.WriteString(d.Range.String())
	}
	if len(d.Overrides) > 0 {
		b.WriteString(" {")
		for i, k := range d.OverrideKeys() {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(k + "=" + option.Format(d.Overrides[k]))
		}
		b.WriteString("}")
	}
	return b.String()
}
