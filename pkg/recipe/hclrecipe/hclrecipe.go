// Package hclrecipe loads recipes written in HCL.
//
// A recipe lives in <source>/<owner.name>/recipe.hcl:
//
//	version "1.3.1" {
//	  signature = "9a93b2b7dfdac77ceba5a558a580e74667dd6fede4585b91eefb60f03b72df23"
//	}
//
//	option "Shared" {
//	  type    = "bool"
//	  default = false
//	}
//
//	dependency "madler.zlib" {
//	  when      = options.WithZlib
//	  major     = "1"
//	  overrides = { Shared = false }
//	}
//
//	build {
//	  url        = "https://github.com/madler/zlib/archive/refs/tags/v${version.string}.tar.gz"
//	  subdir     = "zlib-${version.string}"
//	  cmake_args = ["-DZLIB_BUILD_EXAMPLES=0", "-DBUILD_SHARED_LIBS=${flags.Shared}"]
//	}
//
//	export {
//	  path_vars = { ZLIB_ROOT = install_dir }
//	}
//
// Build and export expressions are evaluated per instance and see
// version.{variant,major,minor,patch,string}, options.<Key> (typed),
// flags.<Key> (rendered, booleans as 1 and 0), install_dir, build_dir and,
// in build blocks only, deps["owner.name"].{install_dir,build_dir,version}
// for every required dependency. A dependency's "when" expression sees the
// options and flags of the owning instance; its overrides are constants.
package hclrecipe

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/matzehuels/distbuilder/pkg/errors"
	"github.com/matzehuels/distbuilder/pkg/recipe"
)

// FileName is the recipe file expected in every recipe directory.
const FileName = "recipe.hcl"

// Directory is a recipe source rooted at a directory holding one
// subdirectory per library. Subdirectories starting with "_" or "." are
// ignored.
type Directory struct {
	Root string
}

// NewDirectory returns a Directory source for root.
func NewDirectory(root string) *Directory {
	return &Directory{Root: root}
}

// Names implements recipe.Source.
func (d *Directory) Names() ([]string, error) {
	entries, err := os.ReadDir(d.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(errors.ErrCodeIO, err, "read recipe directory %s", d.Root)
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") {
			continue
		}
		if _, err := os.Stat(filepath.Join(d.Root, name, FileName)); err != nil {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// Load implements recipe.Source.
func (d *Directory) Load(name string) (*recipe.Recipe, error) {
	if err := errors.ValidateLibraryName(name); err != nil {
		return nil, err
	}
	return LoadFile(name, filepath.Join(d.Root, name, FileName))
}

// String returns the root directory.
func (d *Directory) String() string { return d.Root }

// LoadFile parses the recipe file at path as library name.
func LoadFile(name, path string) (*recipe.Recipe, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeRecipeNotFound, err, "no recipe file for %s", name)
		}
		return nil, errors.Wrap(errors.ErrCodeIO, err, "read %s", path)
	}
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "resolve %s", path)
	}
	script, err := scriptWithPatches(src, dir)
	if err != nil {
		return nil, err
	}
	rec, err := Parse(name, path, src)
	if err != nil {
		return nil, err
	}
	rec.Dir = dir
	rec.Script = script
	return rec, nil
}

// scriptWithPatches appends every patch file below dir to the recipe
// source, so editing a patch changes the script signature.
func scriptWithPatches(src []byte, dir string) ([]byte, error) {
	script := slices.Clone(src)
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(p), ".patch") {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, p)
		script = append(script, "\npatch "+filepath.ToSlash(rel)+"\n"...)
		script = append(script, data...)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "read patches of %s", dir)
	}
	return script, nil
}

var _ recipe.Source = (*Directory)(nil)
