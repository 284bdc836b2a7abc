package instance

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/distbuilder/pkg/errors"
	"github.com/matzehuels/distbuilder/pkg/option"
	"github.com/matzehuels/distbuilder/pkg/recipe"
	"github.com/matzehuels/distbuilder/pkg/toolchain"
	"github.com/matzehuels/distbuilder/pkg/version"
)

var layout = Layout{BuildRoot: "/b", InstallRoot: "/i"}

func zlibRecipe(script string) *recipe.Recipe {
	return &recipe.Recipe{
		Name:      "madler.zlib",
		Catalogue: map[version.Version]string{version.MustParse("1.3.1"): "sig131", version.MustParse("1.2.13"): "sig1213"},
		Options:   []option.Descriptor{option.Bool("Shared", false, "Build shared")},
		Script:    []byte(script),
	}
}

func tiffRecipe() *recipe.Recipe {
	return &recipe.Recipe{
		Name:      "libtiff.libtiff",
		Catalogue: map[version.Version]string{version.MustParse("4.7"): "sig47"},
		Options: []option.Descriptor{
			option.Bool("WithZlib", true, "With zlib"),
			option.Bool("Shared", false, "Build shared"),
		},
		Dependencies: []recipe.Dependency{{
			Library: "madler.zlib",
			When:    func(o option.Reader) bool { return o.Bool("WithZlib") },
		}},
		Script: []byte("tiff"),
	}
}

func resolved(t *testing.T, rec *recipe.Recipe, v string) *Instance {
	t.Helper()
	inst, err := New(rec, layout)
	require.NoError(t, err)
	require.NoError(t, inst.SetVersion(version.MustParse(v)))
	return inst
}

func TestHashRequiresResolution(t *testing.T) {
	inst, err := New(zlibRecipe("x"), layout)
	require.NoError(t, err)
	assert.False(t, inst.IsResolved())

	_, err = inst.Hash()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeUnresolved))
	assert.Empty(t, inst.BuildDir())

	tiff := resolved(t, tiffRecipe(), "4.7")
	assert.False(t, tiff.IsResolved(), "required dependency is unbound")
	_, err = tiff.Hash()
	assert.True(t, errors.Is(err, errors.ErrCodeUnresolved))
}

func TestHashDeterminism(t *testing.T) {
	a := resolved(t, zlibRecipe("same"), "1.3.1")
	b := resolved(t, zlibRecipe("same"), "1.3.1")

	ha, err := a.Hash()
	require.NoError(t, err)
	hb, err := b.Hash()
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
	assert.Len(t, ha, 64)

	require.NoError(t, b.OptionSet().Set("Shared", true))
	hb2, err := b.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb2, "option change must change the hash")

	c := resolved(t, zlibRecipe("different script"), "1.3.1")
	hc, _ := c.Hash()
	assert.NotEqual(t, ha, hc)

	d := resolved(t, zlibRecipe("same"), "1.2.13")
	hd, _ := d.Hash()
	assert.NotEqual(t, ha, hd)
}

func TestIgnoreScript(t *testing.T) {
	a, err := New(zlibRecipe("one"), layout, IgnoreScript())
	require.NoError(t, err)
	b, err := New(zlibRecipe("two"), layout, IgnoreScript())
	require.NoError(t, err)
	require.NoError(t, a.SetVersion(version.MustParse("1.3.1")))
	require.NoError(t, b.SetVersion(version.MustParse("1.3.1")))

	ha, _ := a.Hash()
	hb, _ := b.Hash()
	assert.Equal(t, ha, hb)
}

func TestHashIncludesRequiredDependency(t *testing.T) {
	zlib := resolved(t, zlibRecipe("z"), "1.3.1")
	tiff := resolved(t, tiffRecipe(), "4.7")
	tiff.Bind(0, zlib)
	require.True(t, tiff.IsResolved())

	zh, err := zlib.Hash()
	require.NoError(t, err)
	data, err := tiff.HashData()
	require.NoError(t, err)
	assert.Contains(t, string(data), zh)

	var id Identity
	require.NoError(t, json.Unmarshal(data, &id))
	assert.Equal(t, []DepIdentity{{LibraryName: "madler.zlib", Hash: zh}}, id.Deps)
	assert.Equal(t, "4.7", id.Version)
}

func TestHashFollowsDependencyChanges(t *testing.T) {
	zlib := resolved(t, zlibRecipe("z"), "1.3.1")
	tiff := resolved(t, tiffRecipe(), "4.7")
	tiff.Bind(0, zlib)

	before, err := tiff.Hash()
	require.NoError(t, err)

	require.NoError(t, zlib.OptionSet().Set("Shared", true))
	after, err := tiff.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, before, after)

	tiff.Invalidate()
	fresh, err := tiff.Hash()
	require.NoError(t, err)
	assert.Equal(t, fresh, after)

	require.NoError(t, zlib.SetVersion(version.MustParse("1.2.13")))
	older, err := tiff.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, after, older)
}

func TestInactiveDependencyDoesNotAffectHash(t *testing.T) {
	tiff := resolved(t, tiffRecipe(), "4.7")
	require.NoError(t, tiff.OptionSet().Set("WithZlib", false))
	tiff.Bind(0, NewAbsent("madler.zlib"))
	require.True(t, tiff.IsResolved())
	before, err := tiff.Hash()
	require.NoError(t, err)

	zlib := resolved(t, zlibRecipe("z"), "1.3.1")
	require.NoError(t, zlib.OptionSet().Set("Shared", true))
	tiff.Bind(0, zlib)
	after, err := tiff.Hash()
	require.NoError(t, err)
	assert.Equal(t, before, after)

	data, _ := tiff.HashData()
	assert.NotContains(t, string(data), "madler.zlib")
}

func TestApplyOverrides(t *testing.T) {
	zlib, err := New(zlibRecipe("z"), layout)
	require.NoError(t, err)

	forced, err := zlib.ApplyOverrides("a.app", map[string]any{"Shared": true})
	require.NoError(t, err)
	assert.Equal(t, []string{"Shared"}, forced)

	forced, err = zlib.ApplyOverrides("b.app", map[string]any{"Shared": true})
	require.NoError(t, err)
	assert.Empty(t, forced)

	_, err = zlib.ApplyOverrides("c.app", map[string]any{"Shared": false})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeDependencyOptionConflict))

	_, err = zlib.ApplyOverrides("c.app", map[string]any{"Missing": false})
	assert.True(t, errors.Is(err, errors.ErrCodeConfiguration))
}

func TestSetOptionsCoerces(t *testing.T) {
	rec := zlibRecipe("z")
	rec.Options = append(rec.Options, option.Int("Level", 6, ""))
	inst, err := New(rec, layout)
	require.NoError(t, err)

	require.NoError(t, inst.SetOptions(map[string]any{"Level": float64(9), "Shared": true}))
	assert.Equal(t, 9, inst.Options().Int("Level"))
	assert.Error(t, inst.SetOptions(map[string]any{"Level": "9"}))
	assert.Error(t, inst.SetOptions(map[string]any{"Nope": 1}))
}

func TestSetVersionOutsideCatalogue(t *testing.T) {
	inst, err := New(zlibRecipe("z"), layout)
	require.NoError(t, err)
	err = inst.SetVersion(version.MustParse("9.9.9"))
	assert.True(t, errors.Is(err, errors.ErrCodeNoAvailableVersion))
}

func TestPathsAndInfo(t *testing.T) {
	zlib := resolved(t, zlibRecipe("z"), "1.3.1")
	h, err := zlib.Hash()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/b", "madler.zlib", h), zlib.BuildDir())
	assert.Equal(t, filepath.Join("/i", "madler.zlib", h), zlib.InstallDir())
	assert.Equal(t, "sig131", zlib.Signature())

	dir := t.TempDir()
	require.NoError(t, zlib.WriteInfo(dir))
	b, err := os.ReadFile(filepath.Join(dir, InfoFile))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"libraryName": "madler.zlib"`)
}

func TestTransitiveDepsAndExport(t *testing.T) {
	zlibRec := zlibRecipe("z")
	zlibRec.Export = func(tg recipe.Target, sc *toolchain.Scope) error {
		sc.SetPath("ZLIB_ROOT", tg.InstallDir(), "Path to ZLIB root.")
		return nil
	}
	zlib := resolved(t, zlibRec, "1.3.1")
	tiff := resolved(t, tiffRecipe(), "4.7")
	tiff.Bind(0, zlib)

	assert.Equal(t, []*Instance{zlib}, tiff.TransitiveDeps())
	dep, ok := tiff.Dependency("zlib")
	require.True(t, ok)
	assert.Same(t, zlib, dep)

	sink := toolchain.New()
	for _, d := range tiff.TransitiveDeps() {
		require.NoError(t, d.Export(sink))
	}
	require.NoError(t, NewAbsent("x.y").Export(sink))
	require.NoError(t, tiff.Export(sink))
	require.Len(t, sink.Variables(), 1)
	assert.Equal(t, zlib.InstallDir(), sink.Variables()[0].Value)
}
