package scheduler

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/distbuilder/pkg/blob"
	"github.com/matzehuels/distbuilder/pkg/errors"
	"github.com/matzehuels/distbuilder/pkg/instance"
	"github.com/matzehuels/distbuilder/pkg/option"
	"github.com/matzehuels/distbuilder/pkg/plan"
	"github.com/matzehuels/distbuilder/pkg/process"
	"github.com/matzehuels/distbuilder/pkg/recipe"
	"github.com/matzehuels/distbuilder/pkg/resolve"
	"github.com/matzehuels/distbuilder/pkg/toolchain"
	"github.com/matzehuels/distbuilder/pkg/version"
)

// fakeRunner records commands instead of starting them.
type fakeRunner struct {
	mu    sync.Mutex
	calls []process.Command
	exit  func(c process.Command) int
}

func (f *fakeRunner) factory() RunnerFactory {
	return func(*log.Logger) Runner { return f }
}

func (f *fakeRunner) Run(_ context.Context, c process.Command) (*process.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	code := 0
	if f.exit != nil {
		code = f.exit(c)
	}
	return &process.Result{ExitCode: code, Stderr: "error: boom"}, nil
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func cmakeRecipe(name, script string, opts []option.Descriptor, deps ...recipe.Dependency) *recipe.Recipe {
	rec := &recipe.Recipe{
		Name:         name,
		Catalogue:    map[version.Version]string{version.MustParse("1.0"): "sig"},
		Options:      opts,
		Dependencies: deps,
		Script:       []byte(script),
	}
	rec.Build = func(ctx context.Context, ws recipe.Workspace) error {
		if err := ws.CMakeConfigure(ctx, "src", "build", "-DX=1"); err != nil {
			return err
		}
		for _, cfg := range []string{ConfigDebug, ConfigRelease} {
			if err := ws.CMakeBuild(ctx, "build", cfg); err != nil {
				return err
			}
			if err := ws.CMakeInstall(ctx, "build", cfg, ""); err != nil {
				return err
			}
		}
		return nil
	}
	rec.Export = func(t recipe.Target, sc *toolchain.Scope) error {
		sc.SetPath(strings.ToUpper(recipe.ShortName(t.Library()))+"_ROOT", t.InstallDir(), "")
		return nil
	}
	return rec
}

type fixture struct {
	root     string
	buildDir string
	layout   instance.Layout
	registry *recipe.Registry
}

func newFixture(t *testing.T, recs ...*recipe.Recipe) *fixture {
	t.Helper()
	root := t.TempDir()
	return &fixture{
		root:     root,
		buildDir: filepath.Join(root, "configured"),
		layout:   instance.Layout{BuildRoot: filepath.Join(root, "build"), InstallRoot: filepath.Join(root, "install")},
		registry: recipe.NewRegistry(recipe.NewStatic(recs...)),
	}
}

func defaultRecipes() []*recipe.Recipe {
	return []*recipe.Recipe{
		cmakeRecipe("test.libA", "script A", []option.Descriptor{option.Bool("Shared", false, "")},
			recipe.Dependency{Library: "test.libB"}),
		cmakeRecipe("test.libB", "script B", nil),
	}
}

func (f *fixture) configure(t *testing.T, req plan.Request) {
	t.Helper()
	res, err := resolve.New(resolve.Config{Registry: f.registry, Layout: f.layout}).Resolve(context.Background(), req)
	require.NoError(t, err)
	files, err := res.Files(f.buildDir, "")
	require.NoError(t, err)
	require.NoError(t, plan.WriteAll(files...))
}

func (f *fixture) scheduler(runner *fakeRunner, mutate ...func(*Config)) *Scheduler {
	cfg := Config{
		Registry: f.registry,
		Layout:   f.layout,
		Runner:   runner.factory(),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	return New(cfg)
}

func (f *fixture) instances(t *testing.T, s *Scheduler) map[string]*instance.Instance {
	t.Helper()
	p, err := plan.Load(f.buildDir)
	require.NoError(t, err)
	insts, err := s.Reconstruct(p)
	require.NoError(t, err)
	out := map[string]*instance.Instance{}
	for _, inst := range insts {
		out[inst.Library()] = inst
	}
	return out
}

func TestBuildIsIdempotent(t *testing.T) {
	f := newFixture(t, defaultRecipes()...)
	f.configure(t, plan.Request{"libA": {}})
	ctx := context.Background()

	first := &fakeRunner{}
	rep, err := f.scheduler(first).Build(ctx, f.buildDir)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Built())
	assert.Equal(t, 0, rep.Cached())
	assert.Equal(t, []string{"test.libB", "test.libA"}, []string{rep.Entries[0].Library, rep.Entries[1].Library})
	assert.Equal(t, 10, first.count())

	insts := f.instances(t, f.scheduler(first))
	libA, libB := insts["test.libA"], insts["test.libB"]
	for _, inst := range []*instance.Instance{libA, libB} {
		assert.FileExists(t, filepath.Join(inst.BuildDir(), instance.InfoFile))
		assert.FileExists(t, filepath.Join(inst.InstallDir(), instance.InfoFile))
		assert.FileExists(t, filepath.Join(inst.BuildDir(), LogFile))
		assert.True(t, Cached(inst))
	}

	tc, err := os.ReadFile(filepath.Join(libA.BuildDir(), plan.ToolchainFile))
	require.NoError(t, err)
	assert.Contains(t, string(tc), "set(LIBB_ROOT \""+filepath.ToSlash(libB.InstallDir())+"\" CACHE PATH")
	assert.NotContains(t, string(tc), "LIBA_ROOT")

	logData, err := os.ReadFile(filepath.Join(libA.BuildDir(), LogFile))
	require.NoError(t, err)
	assert.Contains(t, string(logData), "configure")

	second := &fakeRunner{}
	rep, err = f.scheduler(second).Build(ctx, f.buildDir)
	require.NoError(t, err)
	assert.Equal(t, 0, second.count())
	assert.Equal(t, 0, rep.Built())
	assert.Equal(t, 2, rep.Cached())
}

func TestCleanBuildRebuildsEverything(t *testing.T) {
	f := newFixture(t, defaultRecipes()...)
	f.configure(t, plan.Request{"libA": {}})
	ctx := context.Background()

	_, err := f.scheduler(&fakeRunner{}).Build(ctx, f.buildDir)
	require.NoError(t, err)

	insts := f.instances(t, f.scheduler(&fakeRunner{}))
	marker := filepath.Join(insts["test.libB"].BuildDir(), "leftover")
	require.NoError(t, os.WriteFile(marker, []byte("x"), 0o644))

	runner := &fakeRunner{}
	rep, err := f.scheduler(runner, func(c *Config) { c.Options.CleanBuild = true }).Build(ctx, f.buildDir)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Built())
	assert.Equal(t, 10, runner.count())
	assert.NoFileExists(t, marker)
}

func TestBuildFailureAbortsAndKeepsSiblings(t *testing.T) {
	f := newFixture(t, defaultRecipes()...)
	f.configure(t, plan.Request{"libA": {}})
	ctx := context.Background()

	failing := &fakeRunner{exit: func(c process.Command) int {
		if strings.Contains(c.Dir, "test.libA") && c.Label == "cmake:build[Release]" {
			return 2
		}
		return 0
	}}
	rep, err := f.scheduler(failing).Build(ctx, f.buildDir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeExternalToolFailure), "got %v", err)
	var tf *errors.ToolFailureError
	require.True(t, errors.As(err, &tf))
	assert.Equal(t, 2, tf.ExitCode)
	assert.Equal(t, "cmake", tf.Program)
	assert.Len(t, rep.Entries, 1)

	insts := f.instances(t, f.scheduler(&fakeRunner{}))
	assert.True(t, Cached(insts["test.libB"]))
	assert.False(t, Cached(insts["test.libA"]))

	rep, err = f.scheduler(&fakeRunner{}).Build(ctx, f.buildDir)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Built())
	assert.Equal(t, 1, rep.Cached())
}

func TestStaleConfiguration(t *testing.T) {
	ctx := context.Background()

	t.Run("recipe edited", func(t *testing.T) {
		f := newFixture(t, defaultRecipes()...)
		f.configure(t, plan.Request{"libA": {}})

		recs := defaultRecipes()
		recs[1].Script = []byte("script B, patched")
		f.registry = recipe.NewRegistry(recipe.NewStatic(recs...))

		runner := &fakeRunner{}
		_, err := f.scheduler(runner).Build(ctx, f.buildDir)
		assert.True(t, errors.Is(err, errors.ErrCodeStaleConfiguration), "got %v", err)
		assert.Equal(t, 0, runner.count())
	})

	t.Run("recipe edit ignored", func(t *testing.T) {
		f := newFixture(t, defaultRecipes()...)
		res, err := resolve.New(resolve.Config{Registry: f.registry, Layout: f.layout, IgnoreScript: true}).
			Resolve(ctx, plan.Request{"libA": {}})
		require.NoError(t, err)
		files, err := res.Files(f.buildDir, "")
		require.NoError(t, err)
		require.NoError(t, plan.WriteAll(files...))

		recs := defaultRecipes()
		recs[1].Script = []byte("script B, patched")
		f.registry = recipe.NewRegistry(recipe.NewStatic(recs...))

		loaded, err := plan.Load(f.buildDir)
		require.NoError(t, err)
		assert.True(t, loaded.IgnoreScript)

		_, err = f.scheduler(&fakeRunner{}).Build(ctx, f.buildDir)
		assert.NoError(t, err)
	})

	edits := []struct {
		name string
		edit func(p *plan.Plan)
	}{
		{"hash", func(p *plan.Plan) { p.Entries[1].Hash = "deadbeef" }},
		{"option value", func(p *plan.Plan) { p.Entries[1].Options["Shared"] = true }},
		{"unknown option", func(p *plan.Plan) { p.Entries[1].Options["Bogus"] = true }},
		{"dependency hash", func(p *plan.Plan) { p.Entries[1].Deps["test.libB"] = "deadbeef" }},
		{"missing dependency", func(p *plan.Plan) { p.Entries = p.Entries[1:] }},
		{"version", func(p *plan.Plan) { p.Entries[0].Version = "9.9" }},
		{"unknown library", func(p *plan.Plan) { p.Entries[0].Library = "test.gone" }},
	}
	for _, tt := range edits {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, defaultRecipes()...)
			f.configure(t, plan.Request{"libA": {}})

			p, err := plan.Load(f.buildDir)
			require.NoError(t, err)
			tt.edit(p)
			data, err := p.Marshal()
			require.NoError(t, err)
			require.NoError(t, os.WriteFile(filepath.Join(f.buildDir, plan.PlanFile), data, 0o644))

			_, err = f.scheduler(&fakeRunner{}).Build(ctx, f.buildDir)
			assert.True(t, errors.Is(err, errors.ErrCodeStaleConfiguration), "got %v", err)
		})
	}

	t.Run("no plan", func(t *testing.T) {
		f := newFixture(t, defaultRecipes()...)
		_, err := f.scheduler(&fakeRunner{}).Build(ctx, f.buildDir)
		assert.True(t, errors.Is(err, errors.ErrCodeConfiguration), "got %v", err)
	})
}

func TestCMakeCommands(t *testing.T) {
	f := newFixture(t, cmakeRecipe("test.solo", "script", nil))
	f.configure(t, plan.Request{"solo": {}})

	runner := &fakeRunner{}
	s := f.scheduler(runner, func(c *Config) {
		c.CMake = CMake{Path: "/opt/cmake/bin/cmake", Generator: "Ninja"}
		c.Options.Configs = []string{ConfigRelease}
	})
	_, err := s.Build(context.Background(), f.buildDir)
	require.NoError(t, err)

	inst := f.instances(t, s)["test.solo"]
	b, i := inst.BuildDir(), inst.InstallDir()
	require.Len(t, runner.calls, 3)

	configure := runner.calls[0]
	assert.Equal(t, "/opt/cmake/bin/cmake", configure.Name)
	assert.Equal(t, b, configure.Dir)
	assert.Equal(t, "cmake:configure", configure.Label)
	assert.Equal(t, []string{
		"-G", "Ninja",
		"-DX=1",
		"-DCMAKE_TOOLCHAIN_FILE=" + filepath.ToSlash(filepath.Join(b, plan.ToolchainFile)),
		"-DCMAKE_INSTALL_PREFIX=" + filepath.ToSlash(i),
		"-S", filepath.Join(b, "src"),
		"-B", filepath.Join(b, "build"),
	}, configure.Args)

	assert.Equal(t, "cmake:build[Release]", runner.calls[1].Label)
	assert.Equal(t, []string{"--build", filepath.Join(b, "build"), "--config", "Release"}, runner.calls[1].Args)
	assert.Equal(t, "cmake:install[Release]", runner.calls[2].Label)
	assert.Equal(t, []string{"--install", filepath.Join(b, "build"), "--config", "Release", "--prefix", i}, runner.calls[2].Args)
}

func newWorkspace(t *testing.T, mutate ...func(*Config)) (*workspace, *fakeRunner) {
	t.Helper()
	root := t.TempDir()
	rec := cmakeRecipe("test.helpers", "script", nil)
	rec.Dir = filepath.Join(root, "recipes", "test.helpers")
	layout := instance.Layout{BuildRoot: filepath.Join(root, "build"), InstallRoot: filepath.Join(root, "install")}

	inst, err := instance.New(rec, layout)
	require.NoError(t, err)
	require.NoError(t, inst.SetVersion(version.MustParse("1.0")))
	require.NoError(t, os.MkdirAll(inst.BuildDir(), 0o755))

	runner := &fakeRunner{}
	cfg := Config{Layout: layout, Runner: runner.factory()}
	for _, m := range mutate {
		m(&cfg)
	}
	return New(cfg).workspace(inst, io.Discard), runner
}

func TestWorkspaceFileHelpers(t *testing.T) {
	ws, _ := newWorkspace(t)

	assert.Equal(t, filepath.Join(ws.BuildDir(), "a", "b"), ws.Path(filepath.Join("a", "b")))
	abs := filepath.Join(t.TempDir(), "elsewhere")
	assert.Equal(t, abs, ws.Path(abs))

	require.NoError(t, ws.CreateDirectory("out"))
	require.NoError(t, os.WriteFile(ws.Path("out/old.txt"), []byte("old"), 0o644))
	require.NoError(t, ws.CreateDirectory("out"))
	assert.NoFileExists(t, ws.Path("out/old.txt"))
	assert.DirExists(t, ws.Path("out"))

	require.NoError(t, os.WriteFile(ws.Path("a.txt"), []byte("hello"), 0o644))
	require.NoError(t, ws.CopyFile("a.txt", "out/a.txt"))
	data, err := os.ReadFile(ws.Path("out/a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	err = ws.CopyFile("a.txt", "out/a.txt")
	assert.True(t, errors.Is(err, errors.ErrCodeIO), "got %v", err)

	require.NoError(t, ws.Remove("missing"))
	require.NoError(t, ws.Remove("out"))
	assert.NoDirExists(t, ws.Path("out"))
}

func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestWorkspaceDownloadUnzipPatch(t *testing.T) {
	archiveData := zipArchive(t, map[string]string{
		"zlib-1.3.1/CMakeLists.txt": "project(zlib C)\nadd_library(zlib zlib.c)\n",
	})
	sum := sha256.Sum256(archiveData)
	sig := hex.EncodeToString(sum[:])

	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		_, _ = w.Write(archiveData)
	}))
	defer srv.Close()

	blobs := blob.New(filepath.Join(t.TempDir(), "blobs"))
	ws, _ := newWorkspace(t, func(c *Config) {
		c.Blobs = blobs
		c.Options.UnzipOverwrite = true
	})
	ctx := context.Background()

	p, err := ws.Download(ctx, srv.URL+"/zlib-1.3.1.zip", sig)
	require.NoError(t, err)
	assert.FileExists(t, p)

	require.NoError(t, ws.Unzip(ctx, p, "src"))
	cmakeLists := ws.Path(filepath.Join("src", "zlib-1.3.1", "CMakeLists.txt"))
	assert.FileExists(t, cmakeLists)

	patchDir := filepath.Join(ws.Recipe().Dir, "patches")
	require.NoError(t, os.MkdirAll(patchDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(patchDir, "shared.patch"), []byte(
		"--- CMakeLists.txt\n+++ CMakeLists.txt\n@@ -1,2 +1,2 @@\n project(zlib C)\n-add_library(zlib zlib.c)\n+add_library(zlib SHARED zlib.c)\n"), 0o644))
	require.NoError(t, ws.ApplyPatches(ctx, "patches", filepath.Join("src", "zlib-1.3.1")))
	data, err := os.ReadFile(cmakeLists)
	require.NoError(t, err)
	assert.Contains(t, string(data), "SHARED")

	// Without overwrite an existing destination is left alone.
	ws.s.cfg.Options.UnzipOverwrite = false
	require.NoError(t, ws.Unzip(ctx, p, "src"))
	data, err = os.ReadFile(cmakeLists)
	require.NoError(t, err)
	assert.Contains(t, string(data), "SHARED")

	// With overwrite it is extracted again.
	ws.s.cfg.Options.UnzipOverwrite = true
	require.NoError(t, ws.Unzip(ctx, p, "src"))
	data, err = os.ReadFile(cmakeLists)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "SHARED")

	_, err = ws.Download(ctx, srv.URL+"/zlib-1.3.1.zip", sig)
	require.NoError(t, err)
	assert.Equal(t, 1, requests)
}

func TestWorkspaceRun(t *testing.T) {
	ws, runner := newWorkspace(t)
	require.NoError(t, ws.Run(context.Background(), "/usr/bin/ninja", "-j4"))

	require.Len(t, runner.calls, 1)
	c := runner.calls[0]
	assert.Equal(t, "/usr/bin/ninja", c.Name)
	assert.Equal(t, []string{"-j4"}, c.Args)
	assert.Equal(t, ws.BuildDir(), c.Dir)
	assert.Equal(t, "ninja", c.Label)

	runner.exit = func(process.Command) int { return 1 }
	err := ws.Run(context.Background(), "/usr/bin/ninja")
	assert.True(t, errors.Is(err, errors.ErrCodeExternalToolFailure))
}

func TestWorkspaceConfigsFilter(t *testing.T) {
	ws, runner := newWorkspace(t, func(c *Config) { c.Options.Configs = []string{ConfigDebug} })
	ctx := context.Background()

	require.NoError(t, ws.CMakeBuild(ctx, "build", ConfigRelease))
	require.NoError(t, ws.CMakeInstall(ctx, "build", ConfigRelease, ""))
	assert.Equal(t, 0, runner.count())

	require.NoError(t, ws.CMakeInstall(ctx, "build", ConfigDebug, "debug"))
	require.Len(t, runner.calls, 1)
	assert.Equal(t, filepath.Join(ws.InstallDir(), "debug"), runner.calls[0].Args[len(runner.calls[0].Args)-1])
	assert.Equal(t, []string{ConfigDebug}, ws.Configs())
}

func TestReport(t *testing.T) {
	r := &Report{Entries: []ReportEntry{{Cached: true}, {}, {}}}
	assert.Equal(t, 2, r.Built())
	assert.Equal(t, 1, r.Cached())
}
