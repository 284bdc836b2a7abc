package recipe

import (
	"slices"
	"strings"
	"sync"

	"github.com/matzehuels/distbuilder/pkg/errors"
)

// Source provides recipes by full library name.
type Source interface {
	// Names lists the full names of every recipe the source can load.
	Names() ([]string, error)
	// Load returns the recipe with the given full name.
	Load(name string) (*Recipe, error)
}

// Registry resolves library names to recipes across one or more sources.
//
// A name is either the full "owner.name" form or the short form after the
// first dot ("zlib" for "madler.zlib"). The registry caches every lookup;
// it belongs to one session and is discarded with it, so lookups never leak
// between independent invocations.
type Registry struct {
	sources []Source

	mu    sync.Mutex
	names []string          // sorted full names; nil until first listed
	owner map[string]Source // full name -> first source providing it
	cache map[string]*Recipe
}

// NewRegistry creates a registry over sources. Earlier sources shadow later
// ones that provide the same full name.
func NewRegistry(sources ...Source) *Registry {
	return &Registry{
		sources: sources,
		cache:   make(map[string]*Recipe),
	}
}

// Names returns every known full library name, sorted.
func (r *Registry) Names() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.index(); err != nil {
		return nil, err
	}
	return slices.Clone(r.names), nil
}

// Canonical returns the full library name for name.
func (r *Registry) Canonical(name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.canonical(name)
}

// Lookup returns the recipe for name, loading and validating it on first use.
func (r *Registry) Lookup(name string) (*Recipe, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.cache[name]; ok {
		return rec, nil
	}
	full, err := r.canonical(name)
	if err != nil {
		return nil, err
	}
	if rec, ok := r.cache[full]; ok {
		r.cache[name] = rec
		return rec, nil
	}

	rec, err := r.owner[full].Load(full)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfiguration, err, "load recipe %s", full)
	}
	if rec.Name != full {
		return nil, errors.New(errors.ErrCodeConfiguration, "recipe %s declares name %q", full, rec.Name)
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	r.cache[full] = rec
	r.cache[name] = rec
	return rec, nil
}

func (r *Registry) index() error {
	if r.names != nil {
		return nil
	}
	owner := make(map[string]Source)
	names := []string{}
	for _, src := range r.sources {
		listed, err := src.Names()
		if err != nil {
			return errors.Wrap(errors.ErrCodeIO, err, "list recipes")
		}
		for _, n := range listed {
			if _, dup := owner[n]; dup {
				continue
			}
			owner[n] = src
			names = append(names, n)
		}
	}
	slices.Sort(names)
	r.names, r.owner = names, owner
	return nil
}

func (r *Registry) canonical(name string) (string, error) {
	if err := r.index(); err != nil {
		return "", err
	}
	if _, ok := r.owner[name]; ok {
		return name, nil
	}
	var matches []string
	for _, n := range r.names {
		if ShortName(n) == name {
			matches = append(matches, n)
		}
	}
	switch len(matches) {
	case 0:
		return "", errors.New(errors.ErrCodeRecipeNotFound, "no recipe named %q", name)
	case 1:
		return matches[0], nil
	default:
		return "", errors.New(errors.ErrCodeRecipeConflict, "library name %q is ambiguous: %s", name, strings.Join(matches, ", "))
	}
}

// Static is an in-memory Source, keyed by full library name.
type Static map[string]*Recipe

// Names implements Source.
func (s Static) Names() ([]string, error) {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	slices.Sort(names)
	return names, nil
}

// Load implements Source.
func (s Static) Load(name string) (*Recipe, error) {
	rec, ok := s[name]
	if !ok {
		return nil, errors.New(errors.ErrCodeRecipeNotFound, "no recipe named %q", name)
	}
	return rec, nil
}

// NewStatic builds a Static source from recipes.
func NewStatic(recipes ...*Recipe) Static {
	s := make(Static, len(recipes))
	for _, rec := range recipes {
		s[rec.Name] = rec
	}
	return s
}

var _ Source = Static(nil)
