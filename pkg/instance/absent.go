package instance

import (
	"github.com/matzehuels/distbuilder/pkg/errors"
	"github.com/matzehuels/distbuilder/pkg/toolchain"
)

// Absent stands in for a dependency that is not required. It is always
// resolved and exports nothing.
type Absent struct {
	library string
}

// NewAbsent returns the placeholder for library.
func NewAbsent(library string) *Absent { return &Absent{library: library} }

// Library returns the name of the dependency that is absent.
func (a *Absent) Library() string { return a.library }

// IsResolved is always true.
func (a *Absent) IsResolved() bool { return true }

// Hash fails: absent dependencies never contribute to a hash.
func (a *Absent) Hash() (string, error) {
	return "", errors.New(errors.ErrCodeInternal, "absent dependency %s has no hash", a.library)
}

// Export is a no-op.
func (a *Absent) Export(*toolchain.Sink) error { return nil }

var _ Node = (*Absent)(nil)
