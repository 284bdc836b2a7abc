package recipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/distbuilder/pkg/errors"
	"github.com/matzehuels/distbuilder/pkg/option"
	"github.com/matzehuels/distbuilder/pkg/version"
)

func testRecipe(name string, versions ...string) *Recipe {
	cat := make(map[version.Version]string, len(versions))
	for _, v := range versions {
		cat[version.MustParse(v)] = "00"
	}
	return &Recipe{Name: name, Catalogue: cat}
}

func TestScriptSignatureIgnoresCommentsAndBlankLines(t *testing.T) {
	a := []byte("version \"1.3.1\" {\n  signature = \"abc\"\n}\n")
	b := []byte("# zlib recipe\n\nversion \"1.3.1\" {\n    // pinned\n  signature = \"abc\"\n\n}\n")
	c := []byte("version \"1.3.1\" {\n  signature = \"abd\"\n}\n")

	assert.Equal(t, ScriptSignature(a), ScriptSignature(b))
	assert.NotEqual(t, ScriptSignature(a), ScriptSignature(c))
	assert.Len(t, ScriptSignature(a), 64)
}

func TestDependencyIsRequired(t *testing.T) {
	opts, err := option.NewSet([]option.Descriptor{option.Bool("WithZlib", true, "")}, nil)
	require.NoError(t, err)

	always := Dependency{Library: "madler.zlib"}
	gated := Dependency{Library: "madler.zlib", When: func(o option.Reader) bool { return o.Bool("WithZlib") }}

	assert.True(t, always.IsRequired(opts))
	assert.True(t, gated.IsRequired(opts))

	require.NoError(t, opts.Set("WithZlib", false))
	assert.True(t, always.IsRequired(opts))
	assert.False(t, gated.IsRequired(opts))
}

func TestDependencyCandidates(t *testing.T) {
	target := testRecipe("x.lib", "1.2.11", "1.2.13", "1.3.1")

	d := Dependency{Library: "x.lib", Range: version.MustRange("*", "*", "2", "*")}
	got, err := d.Candidates(target)
	require.NoError(t, err)
	assert.Equal(t, "{1.2.11, 1.2.13}", got.String())

	all, err := Dependency{Library: "x.lib"}.Candidates(target)
	require.NoError(t, err)
	assert.Equal(t, 3, all.Len())

	_, err = Dependency{Library: "x.lib", Range: version.MustRange("*", "2", "*", "*")}.Candidates(target)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeDependencyNotFound))
}

func TestDependencyString(t *testing.T) {
	d := Dependency{
		Library:   "x.lib",
		Range:     version.MustRange("*", "*", "130-132,150", "*"),
		Overrides: map[string]any{"Mode": "strict", "Shared": true},
	}
	assert.Equal(t, "x.lib [* * 130-132,150 *] {Mode=strict, Shared=1}", d.String())
}

func TestValidateSortsDependencies(t *testing.T) {
	r := testRecipe("a.app", "1.0")
	r.Dependencies = []Dependency{{Library: "z.last"}, {Library: "b.first"}}
	require.NoError(t, r.Validate())
	assert.Equal(t, "b.first", r.Dependencies[0].Library)

	r.Dependencies = append(r.Dependencies, Dependency{Library: "b.first"})
	assert.Error(t, r.Validate())

	assert.Error(t, testRecipe("a.empty").Validate())
	assert.Error(t, testRecipe("noowner", "1.0").Validate())
}

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry(
		NewStatic(testRecipe("madler.zlib", "1.3.1"), testRecipe("facebook.zstd", "1.5.6")),
		NewStatic(testRecipe("other.zlib", "1.0"), testRecipe("madler.zlib", "0.1")),
	)

	names, err := reg.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"facebook.zstd", "madler.zlib", "other.zlib"}, names)

	rec, err := reg.Lookup("madler.zlib")
	require.NoError(t, err)
	assert.True(t, rec.Versions().Contains(version.MustParse("1.3.1")), "first source shadows later ones")

	rec, err = reg.Lookup("zstd")
	require.NoError(t, err)
	assert.Equal(t, "facebook.zstd", rec.Name)

	again, err := reg.Lookup("zstd")
	require.NoError(t, err)
	assert.Same(t, rec, again)

	_, err = reg.Lookup("zlib")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeRecipeConflict))

	_, err = reg.Lookup("png")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeRecipeNotFound))

	full, err := reg.Canonical("zstd")
	require.NoError(t, err)
	assert.Equal(t, "facebook.zstd", full)
}

func TestRegistriesAreIndependent(t *testing.T) {
	src := Static{}
	first := NewRegistry(src)
	_, err := first.Lookup("zlib")
	require.Error(t, err)

	src["madler.zlib"] = testRecipe("madler.zlib", "1.3.1")
	second := NewRegistry(src)
	_, err = second.Lookup("zlib")
	require.NoError(t, err)
}
