package scheduler

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/distbuilder/pkg/archive"
	"github.com/matzehuels/distbuilder/pkg/errors"
	"github.com/matzehuels/distbuilder/pkg/instance"
	"github.com/matzehuels/distbuilder/pkg/patch"
	"github.com/matzehuels/distbuilder/pkg/plan"
	"github.com/matzehuels/distbuilder/pkg/process"
	"github.com/matzehuels/distbuilder/pkg/recipe"
)

// workspace implements recipe.Workspace for one instance.
type workspace struct {
	*instance.Instance
	s      *Scheduler
	logger *log.Logger
	runner Runner
}

func (s *Scheduler) workspace(inst *instance.Instance, buildLog io.Writer) *workspace {
	logger := log.NewWithOptions(io.MultiWriter(s.cfg.LogOutput, buildLog), log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           s.cfg.Logger.GetLevel(),
		Prefix:          inst.Library(),
	})
	return &workspace{
		Instance: inst,
		s:        s,
		logger:   logger,
		runner:   s.cfg.Runner(logger),
	}
}

func (w *workspace) Logger() *log.Logger { return w.logger }

func (w *workspace) Configs() []string { return slices.Clone(w.s.cfg.Options.Configs) }

func (w *workspace) Dependency(library string) (recipe.Target, bool) {
	dep, ok := w.Instance.Dependency(library)
	if !ok {
		return nil, false
	}
	return dep, true
}

// Path resolves rel against the build directory. Absolute paths are
// returned unchanged.
func (w *workspace) Path(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(w.BuildDir(), rel)
}

func (w *workspace) Download(ctx context.Context, url, signature string) (string, error) {
	if w.s.cfg.Blobs == nil {
		return "", errors.New(errors.ErrCodeConfiguration, "no download cache configured")
	}
	w.logger.Info("download", "url", url)
	p, err := w.s.cfg.Blobs.WithLogger(w.logger).Fetch(ctx, url, signature)
	if err != nil {
		return "", err
	}
	w.logger.Info("downloaded", "path", p)
	return p, nil
}

func (w *workspace) Unzip(ctx context.Context, src, dest string) error {
	src, dest = w.Path(src), w.Path(dest)
	w.logger.Info("unzip", "archive", src, "destination", dest)
	if exists(dest) {
		if !w.s.cfg.Options.UnzipOverwrite {
			w.logger.Warn("destination exists, skipping unzip", "destination", dest)
			return nil
		}
		if err := w.Remove(dest); err != nil {
			return err
		}
	}
	if err := archive.Extract(ctx, src, dest); err != nil {
		return err
	}
	w.logger.Info("unzipped")
	return nil
}

// ApplyPatches applies every *.patch below patchDir to target. A relative
// patchDir is resolved against the recipe directory.
func (w *workspace) ApplyPatches(_ context.Context, patchDir, target string) error {
	if !filepath.IsAbs(patchDir) {
		patchDir = filepath.Join(w.Recipe().Dir, patchDir)
	}
	n, err := patch.New(w.logger).ApplyDir(patchDir, w.Path(target))
	if err != nil {
		return err
	}
	w.logger.Info("patches applied", "count", n)
	return nil
}

// CMakeConfigure configures src into a fresh build tree with the
// instance toolchain file and install prefix.
func (w *workspace) CMakeConfigure(ctx context.Context, src, build string, args ...string) error {
	src, build = w.Path(src), w.Path(build)
	toolchainFile := filepath.Join(w.BuildDir(), plan.ToolchainFile)
	w.logger.Info("configure", "source", src, "build", build, "toolchain", toolchainFile)
	if err := w.Remove(build); err != nil {
		return err
	}

	cmake := w.s.cfg.CMake
	var pargs []string
	if cmake.Arch != "" {
		pargs = append(pargs, "-A", cmake.Arch)
	}
	if cmake.Generator != "" {
		pargs = append(pargs, "-G", cmake.Generator)
	}
	pargs = append(pargs, args...)
	pargs = append(pargs,
		"-DCMAKE_TOOLCHAIN_FILE="+filepath.ToSlash(toolchainFile),
		"-DCMAKE_INSTALL_PREFIX="+filepath.ToSlash(w.InstallDir()),
		"-S", src, "-B", build,
	)
	return w.cmake(ctx, "configure", pargs...)
}

func (w *workspace) CMakeBuild(ctx context.Context, build, config string) error {
	if !slices.Contains(w.s.cfg.Options.Configs, config) {
		return nil
	}
	build = w.Path(build)
	w.logger.Info("cmake build", "build", build, "config", config)
	return w.cmake(ctx, "build["+config+"]", "--build", build, "--config", config)
}

func (w *workspace) CMakeInstall(ctx context.Context, build, config, prefix string) error {
	if !slices.Contains(w.s.cfg.Options.Configs, config) {
		return nil
	}
	build = w.Path(build)
	installDir := w.InstallDir()
	if prefix != "" {
		installDir = filepath.Join(installDir, prefix)
	}
	w.logger.Info("cmake install", "build", build, "install", installDir, "config", config)
	return w.cmake(ctx, "install["+config+"]", "--install", build, "--config", config, "--prefix", installDir)
}

func (w *workspace) cmake(ctx context.Context, label string, args ...string) error {
	return w.exec(ctx, process.Command{
		Name:  w.s.cfg.CMake.Path,
		Args:  args,
		Dir:   w.BuildDir(),
		Label: "cmake:" + label,
	})
}

// Run executes name with args in the build directory.
func (w *workspace) Run(ctx context.Context, name string, args ...string) error {
	return w.exec(ctx, process.Command{
		Name:  name,
		Args:  args,
		Dir:   w.BuildDir(),
		Label: filepath.Base(name),
	})
}

func (w *workspace) exec(ctx context.Context, c process.Command) error {
	res, err := w.runner.Run(ctx, c)
	if err != nil {
		return err
	}
	if err := res.Err(filepath.Base(c.Name)); err != nil {
		return errors.Wrap(errors.ErrCodeExternalToolFailure, err, "%s", c.Label)
	}
	return nil
}

// CopyFile copies src to dst. It fails if dst already exists.
func (w *workspace) CopyFile(src, dst string) error {
	src, dst = w.Path(src), w.Path(dst)
	if exists(dst) {
		return errors.New(errors.ErrCodeIO, "copy %s: %s already exists", src, dst)
	}
	w.logger.Info("copy", "src", src, "dst", dst)
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "open %s", src)
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "stat %s", src)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "create %s", filepath.Dir(dst))
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "create %s", dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Wrap(errors.ErrCodeIO, err, "copy to %s", dst)
	}
	if err := out.Close(); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "close %s", dst)
	}
	return nil
}

// CreateDirectory creates path, removing anything already there.
func (w *workspace) CreateDirectory(path string) error {
	path = w.Path(path)
	if err := w.Remove(path); err != nil {
		return err
	}
	w.logger.Info("create directory", "path", path)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "create %s", path)
	}
	return nil
}

// Remove deletes path recursively. A missing path is not an error.
func (w *workspace) Remove(path string) error {
	path = w.Path(path)
	if !exists(path) {
		w.logger.Debug("nothing to remove", "path", path)
		return nil
	}
	w.logger.Info("remove", "path", path)
	if err := os.RemoveAll(path); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "remove %s", path)
	}
	return nil
}

func exists(p string) bool {
	_, err := os.Lstat(p)
	return err == nil
}

var _ recipe.Workspace = (*workspace)(nil)
