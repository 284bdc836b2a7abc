// Package instance binds a recipe to a concrete version and option values.
//
// An [Instance] is the unit the resolver and the build scheduler operate
// on. Once its version is decided and every required dependency is itself
// resolved, it has a content hash: a digest over the recipe script, the
// version, the option values and the hashes of its required dependencies.
// The hash names the instance's build and install directories, so the
// filesystem acts as a content-addressed cache.
package instance

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/matzehuels/distbuilder/pkg/errors"
	"github.com/matzehuels/distbuilder/pkg/option"
	"github.com/matzehuels/distbuilder/pkg/recipe"
	"github.com/matzehuels/distbuilder/pkg/toolchain"
	"github.com/matzehuels/distbuilder/pkg/version"
)

// InfoFile is the name of the identity record written next to build and
// install trees.
const InfoFile = "info.json"

// Layout holds the roots under which instance directories are created.
type Layout struct {
	BuildRoot   string
	InstallRoot string
}

// Node is either a real Instance or an Absent placeholder. Code walking
// dependency edges treats both uniformly.
type Node interface {
	Library() string
	IsResolved() bool
	Hash() (string, error)
	Export(sink *toolchain.Sink) error
}

// Edge binds one dependency spec of an instance to its target.
type Edge struct {
	Spec   recipe.Dependency
	Target Node // nil until bound
}

// Instance is one recipe bound to a version and option values.
// It is not safe for concurrent use.
type Instance struct {
	recipe    *recipe.Recipe
	layout    Layout
	scriptSig string

	version version.Version
	decided bool
	options *option.Set
	edges   []*Edge

	hash     string        // cached; empty when invalid
	hashDeps []DepIdentity // dependency hashes the cached hash was built from
}

// Option configures an Instance.
type Option func(*Instance)

// IgnoreScript leaves the script signature out of the hash, so recipe
// edits do not invalidate existing builds.
func IgnoreScript() Option {
	return func(i *Instance) { i.scriptSig = "" }
}

// New creates an unresolved instance of rec with default option values.
func New(rec *recipe.Recipe, layout Layout, opts ...Option) (*Instance, error) {
	inst := &Instance{
		recipe:    rec,
		layout:    layout,
		scriptSig: rec.ScriptSignature(),
	}
	set, err := option.NewSet(rec.Options, func(string) { inst.invalidate() })
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfiguration, err, "recipe %s", rec.Name)
	}
	inst.options = set
	inst.edges = make([]*Edge, len(rec.Dependencies))
	for k, d := range rec.Dependencies {
		inst.edges[k] = &Edge{Spec: d}
	}
	for _, o := range opts {
		o(inst)
	}
	return inst, nil
}

// Recipe returns the recipe this instance was created from.
func (i *Instance) Recipe() *recipe.Recipe { return i.recipe }

// Library returns the full library name.
func (i *Instance) Library() string { return i.recipe.Name }

// Version returns the decided version, or the zero version before
// HasVersion reports true.
func (i *Instance) Version() version.Version { return i.version }

// HasVersion reports whether a version has been decided.
func (i *Instance) HasVersion() bool { return i.decided }

// SetVersion decides the version. It must be in the recipe catalogue.
func (i *Instance) SetVersion(v version.Version) error {
	if _, ok := i.recipe.Catalogue[v]; !ok {
		return errors.New(errors.ErrCodeNoAvailableVersion, "%s has no version %s (catalogue %s)", i.Library(), v, i.recipe.Versions())
	}
	if !i.decided || i.version != v {
		i.invalidate()
	}
	i.version, i.decided = v, true
	return nil
}

// Signature returns the catalogue signature of the decided version.
func (i *Instance) Signature() string { return i.recipe.Catalogue[i.version] }

// Options returns the read-only option view.
func (i *Instance) Options() option.Reader { return i.options }

// OptionSet returns the mutable option set.
func (i *Instance) OptionSet() *option.Set { return i.options }

// SetOptions assigns explicit values, coercing decoded document values to
// the declared kinds.
func (i *Instance) SetOptions(values map[string]any) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		d, ok := i.options.Descriptor(k)
		if !ok {
			return errors.New(errors.ErrCodeConfiguration, "%s has no option %q", i.Library(), k)
		}
		v, err := option.Coerce(d.Kind, values[k])
		if err != nil {
			return errors.Wrap(errors.ErrCodeConfiguration, err, "%s option %s", i.Library(), k)
		}
		if err := i.options.Set(k, v); err != nil {
			return err
		}
	}
	return nil
}

// ApplyOverrides forces option values demanded by a dependent. An unset
// key is assigned and reported in forced. A key already holding the same
// explicit value is accepted. A key holding a different explicit value
// fails with DEPENDENCY_OPTION_CONFLICT.
func (i *Instance) ApplyOverrides(from string, overrides map[string]any) (forced []string, err error) {
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		d, ok := i.options.Descriptor(k)
		if !ok {
			return forced, errors.New(errors.ErrCodeConfiguration, "%s overrides unknown option %s.%s", from, i.Library(), k)
		}
		want, err := option.Coerce(d.Kind, overrides[k])
		if err != nil {
			return forced, errors.Wrap(errors.ErrCodeConfiguration, err, "%s overrides %s.%s", from, i.Library(), k)
		}
		if have, set := i.options.Explicit(k); set {
			if have != want {
				return forced, errors.New(errors.ErrCodeDependencyOptionConflict,
					"%s requires %s.%s=%s but it is already %s", from, i.Library(), k, option.Format(want), option.Format(have))
			}
			continue
		}
		if err := i.options.Set(k, want); err != nil {
			return forced, err
		}
		forced = append(forced, k)
	}
	return forced, nil
}

// Edges returns the dependency edges in spec order (sorted by library).
func (i *Instance) Edges() []*Edge { return i.edges }

// Bind sets the target of edge k.
func (i *Instance) Bind(k int, target Node) {
	if i.edges[k].Target != target {
		i.edges[k].Target = target
		i.invalidate()
	}
}

// IsRequired reports whether edge k is active under the current options.
func (i *Instance) IsRequired(k int) bool {
	return i.edges[k].Spec.IsRequired(i.options)
}

// RequiredDeps returns the bound, present targets of every active edge.
func (i *Instance) RequiredDeps() []*Instance {
	var out []*Instance
	for k, e := range i.edges {
		if !i.IsRequired(k) {
			continue
		}
		if dep, ok := e.Target.(*Instance); ok {
			out = append(out, dep)
		}
	}
	return out
}

// Dependency returns the required dependency matching a full or short
// library name.
func (i *Instance) Dependency(library string) (*Instance, bool) {
	for _, dep := range i.RequiredDeps() {
		if dep.Library() == library || dep.recipe.ShortName() == library {
			return dep, true
		}
	}
	return nil, false
}

// TransitiveDeps returns every required dependency reachable from i,
// dependencies before dependents, each once.
func (i *Instance) TransitiveDeps() []*Instance {
	var out []*Instance
	seen := map[*Instance]bool{i: true}
	var visit func(*Instance)
	visit = func(n *Instance) {
		for _, dep := range n.RequiredDeps() {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			visit(dep)
			out = append(out, dep)
		}
	}
	visit(i)
	return out
}

// IsResolved reports whether the version is decided and every required
// dependency is bound and resolved.
func (i *Instance) IsResolved() bool {
	if !i.decided {
		return false
	}
	for k, e := range i.edges {
		if !i.IsRequired(k) {
			continue
		}
		if e.Target == nil || !e.Target.IsResolved() {
			return false
		}
	}
	return true
}

// Export registers the instance's contribution to the toolchain.
func (i *Instance) Export(sink *toolchain.Sink) error {
	if i.recipe.Export == nil {
		return nil
	}
	if err := i.recipe.Export(i, sink.For(i.Library())); err != nil {
		return errors.Wrap(errors.ErrCodeConfiguration, err, "export %s", i.Library())
	}
	return nil
}

// Invalidate drops the cached hash. The resolver calls it after rebinding
// dependencies whose own hashes may have changed.
func (i *Instance) Invalidate() { i.invalidate() }

func (i *Instance) invalidate() { i.hash, i.hashDeps = "", nil }

// Identity is the hash input document.
type Identity struct {
	LibraryName     string        `json:"libraryName"`
	ScriptSignature string        `json:"scriptSignature"`
	Version         string        `json:"version"`
	Options         []option.Pair `json:"options"`
	Deps            []DepIdentity `json:"deps"`
}

// DepIdentity names one required dependency by its hash.
type DepIdentity struct {
	LibraryName string `json:"libraryName"`
	Hash        string `json:"hash"`
}

// Identity returns the hash input document. It fails with UNRESOLVED when
// the instance is not resolved.
func (i *Instance) Identity() (*Identity, error) {
	if !i.decided {
		return nil, errors.New(errors.ErrCodeUnresolved, "%s has no version yet", i.Library())
	}
	deps, err := i.depIdentities()
	if err != nil {
		return nil, err
	}
	return &Identity{
		LibraryName:     i.Library(),
		ScriptSignature: i.scriptSig,
		Version:         i.version.String(),
		Options:         i.options.Pairs(),
		Deps:            deps,
	}, nil
}

// depIdentities returns the current hashes of every required dependency,
// sorted by library name.
func (i *Instance) depIdentities() ([]DepIdentity, error) {
	deps := []DepIdentity{}
	for k, e := range i.edges {
		if !i.IsRequired(k) {
			continue
		}
		if e.Target == nil {
			return nil, errors.New(errors.ErrCodeUnresolved, "%s: dependency %s is not bound", i.Library(), e.Spec.Library)
		}
		if !e.Target.IsResolved() {
			return nil, errors.New(errors.ErrCodeUnresolved, "%s: dependency %s is not resolved", i.Library(), e.Target.Library())
		}
		h, err := e.Target.Hash()
		if err != nil {
			return nil, err
		}
		deps = append(deps, DepIdentity{LibraryName: e.Target.Library(), Hash: h})
	}
	slices.SortFunc(deps, func(a, b DepIdentity) int { return strings.Compare(a.LibraryName, b.LibraryName) })
	return deps, nil
}

// HashData returns the canonical JSON encoding of Identity.
func (i *Instance) HashData() ([]byte, error) {
	id, err := i.Identity()
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(id, "", "  ")
}

// Hash returns the hex SHA-256 of HashData. The result is cached until the
// version, options or bindings change, or until the hash of any required
// dependency differs from the one it was computed with.
func (i *Instance) Hash() (string, error) {
	if i.hash != "" {
		deps, err := i.depIdentities()
		if err != nil {
			return "", err
		}
		if slices.Equal(deps, i.hashDeps) {
			return i.hash, nil
		}
	}
	id, err := i.Identity()
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "encode identity of %s", i.Library())
	}
	sum := sha256.Sum256(data)
	i.hash, i.hashDeps = hex.EncodeToString(sum[:]), id.Deps
	return i.hash, nil
}

// BuildDir returns <build root>/<library>/<hash>, or "" if unresolved.
func (i *Instance) BuildDir() string {
	h, err := i.Hash()
	if err != nil {
		return ""
	}
	return filepath.Join(i.layout.BuildRoot, i.Library(), h)
}

// InstallDir returns <install root>/<library>/<hash>, or "" if unresolved.
func (i *Instance) InstallDir() string {
	h, err := i.Hash()
	if err != nil {
		return ""
	}
	return filepath.Join(i.layout.InstallRoot, i.Library(), h)
}

// WriteInfo writes the identity document to dir/info.json.
func (i *Instance) WriteInfo(dir string) error {
	data, err := i.HashData()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "create %s", dir)
	}
	if err := os.WriteFile(filepath.Join(dir, InfoFile), append(data, '\n'), 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "write %s", InfoFile)
	}
	return nil
}

// String renders "library@version" for logs.
func (i *Instance) String() string {
	if !i.decided {
		return i.Library() + "@?"
	}
	return i.Library() + "@" + i.version.String()
}

var (
	_ Node          = (*Instance)(nil)
	_ recipe.Target = (*Instance)(nil)
)
