// Package recipe defines how a library is described to the resolver and
// the build scheduler: its version catalogue, option declarations,
// dependency specs, and build and export procedures.
//
// Recipes are registered explicitly. Options and dependencies are plain
// slices declared when the recipe is constructed, never discovered by
// inspecting a type at runtime. Recipes are normally loaded from
// declarative files by [github.com/matzehuels/distbuilder/pkg/recipe/hclrecipe]
// but can also be written in Go and served from a [Static] source.
package recipe

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/distbuilder/pkg/errors"
	"github.com/matzehuels/distbuilder/pkg/option"
	"github.com/matzehuels/distbuilder/pkg/toolchain"
	"github.com/matzehuels/distbuilder/pkg/version"
)

// Recipe describes one library.
type Recipe struct {
	// Name is the fully qualified library name, "owner.name".
	Name string
	// Catalogue maps every buildable version to the expected signature of
	// its source archive.
	Catalogue map[version.Version]string
	// Options are the build options this library accepts.
	Options []option.Descriptor
	// Dependencies are kept sorted by library name.
	Dependencies []Dependency
	// Script is the recipe definition text. Its normalized digest is part of
	// every instance hash, so editing the recipe invalidates cached builds.
	Script []byte
	// Dir is the directory the recipe was loaded from, if any. Relative
	// patch directories resolve against it.
	Dir string

	Build  BuildFunc
	Export ExportFunc
}

// BuildFunc builds one instance inside its workspace.
type BuildFunc func(ctx context.Context, ws Workspace) error

// ExportFunc registers what a built instance provides to its consumers.
type ExportFunc func(t Target, sc *toolchain.Scope) error

// Target is the read-only view of a resolved instance.
type Target interface {
	Library() string
	Version() version.Version
	Options() option.Reader
	BuildDir() string
	InstallDir() string
}

// Workspace is handed to a BuildFunc. Every helper resolves relative paths
// against the instance build directory and passes absolute paths to
// external tools; the process working directory is never changed.
type Workspace interface {
	Target

	// Dependency returns the required dependency with the given library
	// name (full or short). ok is false for absent dependencies.
	Dependency(library string) (t Target, ok bool)
	// Signature returns the catalogue signature of the instance version.
	Signature() string
	// Path resolves rel against the build directory.
	Path(rel string) string
	// Logger logs to the console and the instance build log.
	Logger() *log.Logger

	Download(ctx context.Context, url, signature string) (path string, err error)
	Unzip(ctx context.Context, archive, dest string) error
	ApplyPatches(ctx context.Context, patchDir, target string) error
	CMakeConfigure(ctx context.Context, src, build string, args ...string) error
	CMakeBuild(ctx context.Context, build, config string) error
	CMakeInstall(ctx context.Context, build, config, prefix string) error
	Configs() []string
	Run(ctx context.Context, name string, args ...string) error
	CopyFile(src, dst string) error
	CreateDirectory(path string) error
	Remove(path string) error
}

// Versions returns the catalogue as a version set.
func (r *Recipe) Versions() version.Set {
	vs := make([]version.Version, 0, len(r.Catalogue))
	for v := range r.Catalogue {
		vs = append(vs, v)
	}
	return version.NewSet(vs...)
}

// ShortName returns the part of the name after the first dot.
func (r *Recipe) ShortName() string { return ShortName(r.Name) }

// ShortName returns the part of a library name after the first dot, or the
// name itself if it has no dot.
func ShortName(name string) string {
	if _, short, ok := strings.Cut(name, "."); ok {
		return short
	}
	return name
}

// ScriptSignature returns the hex SHA-256 digest of the recipe script with
// blank and comment-only lines removed.
func (r *Recipe) ScriptSignature() string {
	return ScriptSignature(r.Script)
}

// ScriptSignature digests script after dropping blank lines and lines
// starting with "#" or "//". Surrounding whitespace is trimmed from the
// remaining lines.
func ScriptSignature(script []byte) string {
	h := sha256.New()
	sc := bufio.NewScanner(bytes.NewReader(script))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		h.Write([]byte(line))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Validate checks the recipe for structural errors and sorts its
// dependencies by library name.
func (r *Recipe) Validate() error {
	if err := errors.ValidateLibraryName(r.Name); err != nil {
		return err
	}
	if len(r.Catalogue) == 0 {
		return errors.New(errors.ErrCodeConfiguration, "recipe %s declares no versions", r.Name)
	}
	if _, err := option.NewSet(r.Options, nil); err != nil {
		return errors.Wrap(errors.ErrCodeConfiguration, err, "recipe %s", r.Name)
	}
	seen := make(map[string]bool, len(r.Dependencies))
	for _, d := range r.Dependencies {
		if d.Library == "" {
			return errors.New(errors.ErrCodeConfiguration, "recipe %s has a dependency without a library name", r.Name)
		}
		if seen[d.Library] {
			return errors.New(errors.ErrCodeConfiguration, "recipe %s depends on %s twice", r.Name, d.Library)
		}
		seen[d.Library] = true
	}
	slices.SortStableFunc(r.Dependencies, func(a, b Dependency) int { return strings.Compare(a.Library, b.Library) })
	return nil
}
