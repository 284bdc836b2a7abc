// Package toolchain aggregates what built libraries export for consumers and
// renders it as a CMake toolchain file.
//
// Each library's export procedure writes through a [Scope] obtained from
// [Sink.For]. Exports are applied in build order; a later write to the same
// key replaces the earlier value but keeps its original position, so the
// generated file is stable across runs.
package toolchain

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/matzehuels/distbuilder/pkg/errors"
)

// VarType is the CMake cache type of a variable.
type VarType string

const (
	TypeFilepath VarType = "FILEPATH"
	TypePath     VarType = "PATH"
	TypeString   VarType = "STRING"
	TypeBool     VarType = "BOOL"
)

// PackageDir is the <Package>_DIR hint registered by one library.
type PackageDir struct {
	Package string `json:"package"`
	Path    string `json:"path"`
}

// Variable is a typed cache variable.
type Variable struct {
	Key         string  `json:"key"`
	Value       string  `json:"value"`
	Type        VarType `json:"type"`
	Description string  `json:"description,omitempty"`
}

// FindPackage controls the find_package directive emitted for a package.
type FindPackage struct {
	Package  string `json:"package"`
	Required bool   `json:"required"`
	Quiet    bool   `json:"quiet"`
}

// Sink collects toolchain contributions. The zero value is not usable; use New.
type Sink struct {
	dirs     ordered[PackageDir]  // keyed by library name
	vars     ordered[Variable]    // keyed by variable name
	packages ordered[FindPackage] // keyed by package name
	post     []string
}

// New returns an empty sink.
func New() *Sink {
	return &Sink{
		dirs:     newOrdered[PackageDir](),
		vars:     newOrdered[Variable](),
		packages: newOrdered[FindPackage](),
	}
}

// For returns the write scope for one library.
func (s *Sink) For(library string) *Scope {
	return &Scope{sink: s, library: library}
}

// Dir returns the package directory registered by library.
func (s *Sink) Dir(library string) (PackageDir, bool) {
	return s.dirs.get(library)
}

// Dirs returns the registered package directories in registration order.
func (s *Sink) Dirs() []PackageDir { return s.dirs.values() }

// Variables returns the registered cache variables in registration order.
func (s *Sink) Variables() []Variable { return s.vars.values() }

// Packages returns the explicit find_package entries in registration order.
func (s *Sink) Packages() []FindPackage { return s.packages.values() }

// Post returns the raw directives in registration order.
func (s *Sink) Post() []string { return append([]string(nil), s.post...) }

// Empty reports whether nothing was registered.
func (s *Sink) Empty() bool {
	return s.dirs.len() == 0 && s.vars.len() == 0 && s.packages.len() == 0 && len(s.post) == 0
}

// Scope writes toolchain entries on behalf of one library.
type Scope struct {
	sink    *Sink
	library string
}

// Library returns the name of the library this scope writes for.
func (sc *Scope) Library() string { return sc.library }

// SetDir registers <pkg>_DIR for the scope's library. A package with a
// directory but no explicit find entry is emitted as REQUIRED.
func (sc *Scope) SetDir(pkg, path string) {
	sc.sink.dirs.put(sc.library, PackageDir{Package: pkg, Path: path})
}

// SetFilepath registers a FILEPATH cache variable.
func (sc *Scope) SetFilepath(key, value string) {
	sc.sink.vars.put(key, Variable{Key: key, Value: value, Type: TypeFilepath})
}

// SetPath registers a PATH cache variable with a docstring.
func (sc *Scope) SetPath(key, value, description string) {
	sc.sink.vars.put(key, Variable{Key: key, Value: value, Type: TypePath, Description: description})
}

// SetString registers a STRING cache variable.
func (sc *Scope) SetString(key, value string) {
	sc.sink.vars.put(key, Variable{Key: key, Value: value, Type: TypeString})
}

// SetBool registers a BOOL cache variable.
func (sc *Scope) SetBool(key string, value bool) {
	v := "OFF"
	if value {
		v = "ON"
	}
	sc.sink.vars.put(key, Variable{Key: key, Value: v, Type: TypeBool})
}

// FindPackage registers an explicit find_package directive.
func (sc *Scope) FindPackage(pkg string, required, quiet bool) {
	sc.sink.packages.put(pkg, FindPackage{Package: pkg, Required: required, Quiet: quiet})
}

// AddPost appends a raw directive evaluated after the package hints.
func (sc *Scope) AddPost(directive string) {
	sc.sink.post = append(sc.sink.post, directive)
}

const separator = "# ---------------------------------------------------------------------"

// Dump renders the toolchain file.
func (s *Sink) Dump() string {
	dirs := []string{"# package directories"}
	vars := []string{"# add variables"}
	reqs := []string{"# find packages"}
	post := []string{"# post scripts"}

	for _, d := range s.dirs.values() {
		dirs = append(dirs, fmt.Sprintf("set(%s_DIR %s CACHE FILEPATH \"\")", d.Package, quote(slash(d.Path))))
		if _, ok := s.packages.get(d.Package); !ok {
			reqs = append(reqs, fmt.Sprintf("find_package(%s REQUIRED CONFIG)", d.Package))
		}
	}

	for _, v := range s.vars.values() {
		value := v.Value
		if v.Type == TypeFilepath || v.Type == TypePath {
			value = slash(value)
		}
		vars = append(vars, fmt.Sprintf("set(%s %s CACHE %s %s)", v.Key, quote(value), v.Type, quote(v.Description)))
	}

	for _, p := range s.packages.values() {
		switch {
		case p.Required:
			reqs = append(reqs, fmt.Sprintf("find_package(%s REQUIRED CONFIG)", p.Package))
		case p.Quiet:
			reqs = append(reqs, fmt.Sprintf("find_package(%s QUIET CONFIG)", p.Package))
		default:
			reqs = append(reqs, fmt.Sprintf("find_package(%s CONFIG)", p.Package))
		}
	}

	for _, directive := range s.post {
		post = append(post, directive, "")
	}

	return strings.Join([]string{
		"# AUTO-GENERATED FILE",
		"",
		separator,
		strings.Join(dirs, "\n"),
		separator,
		strings.Join(vars, "\n"),
		separator,
		strings.Join(reqs, "\n"),
		separator,
		strings.Join(post, "\n"),
	}, "\n") + "\n"
}

// WriteTo writes the rendered toolchain file to w.
func (s *Sink) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, s.Dump())
	return int64(n), err
}

// WriteFile writes the toolchain file to path, creating parent directories.
func (s *Sink) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "create %s", filepath.Dir(path))
	}
	if err := os.WriteFile(path, []byte(s.Dump()), 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "write toolchain file %s", path)
	}
	return nil
}

func slash(p string) string { return strings.ReplaceAll(p, "\\", "/") }

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// ordered is an insertion-ordered map. Replacing a value keeps its slot.
type ordered[V any] struct {
	keys []string
	m    map[string]V
}

func newOrdered[V any]() ordered[V] {
	return ordered[V]{m: make(map[string]V)}
}

func (o *ordered[V]) put(k string, v V) {
	if _, ok := o.m[k]; !ok {
		o.keys = append(o.keys, k)
	}
	o.m[k] = v
}

func (o *ordered[V]) get(k string) (V, bool) {
	v, ok := o.m[k]
	return v, ok
}

func (o *ordered[V]) len() int { return len(o.keys) }

func (o *ordered[V]) values() []V {
	out := make([]V, len(o.keys))
	for i, k := range o.keys {
		out[i] = o.m[k]
	}
	return out
}
