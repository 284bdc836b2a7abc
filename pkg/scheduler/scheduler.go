package scheduler

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"go.uber.org/multierr"

	"github.com/matzehuels/distbuilder/pkg/blob"
	"github.com/matzehuels/distbuilder/pkg/errors"
	"github.com/matzehuels/distbuilder/pkg/instance"
	"github.com/matzehuels/distbuilder/pkg/observability"
	"github.com/matzehuels/distbuilder/pkg/plan"
	"github.com/matzehuels/distbuilder/pkg/process"
	"github.com/matzehuels/distbuilder/pkg/recipe"
	"github.com/matzehuels/distbuilder/pkg/toolchain"
	"github.com/matzehuels/distbuilder/pkg/version"
)

// LogFile is the per-instance build log written into the build directory.
const LogFile = "build.log"

// Build configurations accepted by [Options.Configs].
const (
	ConfigDebug   = "Debug"
	ConfigRelease = "Release"
)

// DefaultConfigs are built when no configuration is selected.
var DefaultConfigs = []string{ConfigDebug, ConfigRelease}

// Options are the per-invocation build switches.
type Options struct {
	// CleanBuild ignores cached installs and rebuilds every instance from
	// an empty build directory.
	CleanBuild bool
	// UnzipOverwrite replaces existing extraction targets. When false an
	// existing target is kept and extraction is skipped.
	UnzipOverwrite bool
	// Configs selects the build configurations CMakeBuild and CMakeInstall
	// act on.
	Configs []string
}

// CMake locates and parameterizes the cmake executable.
type CMake struct {
	Path      string
	Generator string
	Arch      string
}

// Runner starts external programs.
type Runner interface {
	Run(ctx context.Context, c process.Command) (*process.Result, error)
}

// RunnerFactory returns a Runner that logs to logger. The scheduler asks
// for one per instance so subprocess output lands in that instance's log.
type RunnerFactory func(logger *log.Logger) Runner

// ProcessRunner adapts a process.Runner into a RunnerFactory.
func ProcessRunner(r *process.Runner) RunnerFactory {
	return func(logger *log.Logger) Runner { return r.WithLogger(logger) }
}

// Config wires a Scheduler.
type Config struct {
	Registry *recipe.Registry
	Layout   instance.Layout
	Blobs    *blob.Cache
	Runner   RunnerFactory
	CMake    CMake
	Options  Options
	// Logger receives console output. Its level and the writer in
	// LogOutput are reused for per-instance loggers.
	Logger    *log.Logger
	LogOutput io.Writer
	Hooks     observability.BuildHooks
}

// Scheduler builds resolved plans.
type Scheduler struct {
	cfg Config
}

// New creates a Scheduler. Missing optional fields get defaults.
func New(cfg Config) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard)
	}
	if cfg.LogOutput == nil {
		cfg.LogOutput = io.Discard
	}
	if cfg.Hooks == nil {
		cfg.Hooks = observability.NoopBuildHooks{}
	}
	if cfg.Runner == nil {
		cfg.Runner = ProcessRunner(process.New(cfg.Logger))
	}
	if cfg.CMake.Path == "" {
		cfg.CMake.Path = "cmake"
	}
	if len(cfg.Options.Configs) == 0 {
		cfg.Options.Configs = slices.Clone(DefaultConfigs)
	}
	return &Scheduler{cfg: cfg}
}

// Report summarizes a build run.
type Report struct {
	Entries []ReportEntry
}

// ReportEntry is the outcome for one instance.
type ReportEntry struct {
	Library  string
	Version  string
	Hash     string
	Cached   bool
	Duration time.Duration
}

// Built returns how many instances were built.
func (r *Report) Built() int {
	n := 0
	for _, e := range r.Entries {
		if !e.Cached {
			n++
		}
	}
	return n
}

// Cached returns how many instances were cache hits.
func (r *Report) Cached() int { return len(r.Entries) - r.Built() }

// Build loads the plan in buildDir, verifies it and builds it.
func (s *Scheduler) Build(ctx context.Context, buildDir string) (*Report, error) {
	p, err := plan.Load(buildDir)
	if err != nil {
		return nil, err
	}
	insts, err := s.Reconstruct(p)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, insts)
}

// Reconstruct rebuilds the instances of p in plan order, binding each
// dependency to the sibling constructed before it, and checks every hash
// against the plan. Scripts are hashed as the plan records.
func (s *Scheduler) Reconstruct(p *plan.Plan) ([]*instance.Instance, error) {
	var opts []instance.Option
	if p.IgnoreScript {
		opts = append(opts, instance.IgnoreScript())
	}

	built := make(map[string]*instance.Instance, len(p.Entries))
	out := make([]*instance.Instance, 0, len(p.Entries))
	for _, e := range p.Entries {
		inst, err := s.reconstruct(e, built, opts)
		if err != nil {
			return nil, stale(err, "%s", e.Library)
		}
		hash, err := inst.Hash()
		if err != nil {
			return nil, stale(err, "%s", e.Library)
		}
		if hash != e.Hash {
			return nil, errors.New(errors.ErrCodeStaleConfiguration,
				"%s: hash %s does not match planned %s (recipe or options changed since configure)", e.Library, short(hash), short(e.Hash))
		}
		built[e.Library] = inst
		out = append(out, inst)
	}
	return out, nil
}

func (s *Scheduler) reconstruct(e plan.Entry, built map[string]*instance.Instance, opts []instance.Option) (*instance.Instance, error) {
	rec, err := s.cfg.Registry.Lookup(e.Library)
	if err != nil {
		return nil, err
	}
	if rec.Name != e.Library {
		return nil, errors.New(errors.ErrCodeStaleConfiguration, "plan names %s but the recipe is %s", e.Library, rec.Name)
	}
	inst, err := instance.New(rec, s.cfg.Layout, opts...)
	if err != nil {
		return nil, err
	}
	v, err := version.Parse(e.Version)
	if err != nil {
		return nil, err
	}
	if err := inst.SetVersion(v); err != nil {
		return nil, err
	}
	if err := inst.SetOptions(e.Options); err != nil {
		return nil, err
	}

	seen := 0
	for k, edge := range inst.Edges() {
		if !inst.IsRequired(k) {
			inst.Bind(k, instance.NewAbsent(edge.Spec.Library))
			continue
		}
		full, err := s.cfg.Registry.Canonical(edge.Spec.Library)
		if err != nil {
			return nil, err
		}
		dep, ok := built[full]
		if !ok {
			return nil, errors.New(errors.ErrCodeStaleConfiguration, "dependency %s is not planned before %s", full, e.Library)
		}
		if want, ok := e.Deps[full]; !ok {
			return nil, errors.New(errors.ErrCodeStaleConfiguration, "dependency %s is not recorded in the plan", full)
		} else if have, _ := dep.Hash(); have != want {
			return nil, errors.New(errors.ErrCodeStaleConfiguration, "dependency %s hash %s does not match planned %s", full, short(have), short(want))
		}
		inst.Bind(k, dep)
		seen++
	}
	if seen != len(e.Deps) {
		return nil, errors.New(errors.ErrCodeStaleConfiguration, "plan records %d dependencies, recipe requires %d", len(e.Deps), seen)
	}
	return inst, nil
}

// Run builds insts in order, stopping at the first failure.
func (s *Scheduler) Run(ctx context.Context, insts []*instance.Instance) (*Report, error) {
	report := &Report{}
	for _, inst := range insts {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		entry, err := s.buildOne(ctx, inst)
		if err != nil {
			return report, err
		}
		report.Entries = append(report.Entries, entry)
	}
	s.cfg.Logger.Info("build finished", "built", report.Built(), "cached", report.Cached())
	return report, nil
}

// Cached reports whether inst has a completed install.
func Cached(inst *instance.Instance) bool {
	dir := inst.InstallDir()
	if dir == "" {
		return false
	}
	_, err := os.Stat(filepath.Join(dir, instance.InfoFile))
	return err == nil
}

func (s *Scheduler) buildOne(ctx context.Context, inst *instance.Instance) (entry ReportEntry, err error) {
	hash, err := inst.Hash()
	if err != nil {
		return entry, err
	}
	entry = ReportEntry{Library: inst.Library(), Version: inst.Version().String(), Hash: hash}
	logger := s.cfg.Logger.WithPrefix(inst.Library())

	start := time.Now()
	s.cfg.Hooks.OnBuildStart(ctx, inst.Library(), hash)
	defer func() {
		entry.Duration = time.Since(start)
		s.cfg.Hooks.OnBuildComplete(ctx, inst.Library(), hash, entry.Cached, entry.Duration, err)
	}()

	if !s.cfg.Options.CleanBuild && Cached(inst) {
		logger.Info("cache hit", "version", entry.Version, "hash", short(hash), "install", inst.InstallDir())
		entry.Cached = true
		return entry, nil
	}

	logger.Info("building", "version", entry.Version, "hash", short(hash))
	if err := s.prepare(inst); err != nil {
		return entry, err
	}

	f, err := os.Create(filepath.Join(inst.BuildDir(), LogFile))
	if err != nil {
		return entry, errors.Wrap(errors.ErrCodeIO, err, "create %s", LogFile)
	}
	defer func() { err = multierr.Append(err, f.Close()) }()

	ws := s.workspace(inst, f)
	if build := inst.Recipe().Build; build != nil {
		if err := build(ctx, ws); err != nil {
			ws.logger.Error("build failed", "err", err)
			return entry, wrap(err, "build %s", inst)
		}
	}
	if err := inst.WriteInfo(inst.InstallDir()); err != nil {
		return entry, err
	}
	ws.logger.Info("built", "install", inst.InstallDir(), "duration", time.Since(start).Round(time.Millisecond))
	return entry, nil
}

// prepare creates fresh directories for inst and writes its identity and
// toolchain files into the build directory.
func (s *Scheduler) prepare(inst *instance.Instance) error {
	buildDir, installDir := inst.BuildDir(), inst.InstallDir()
	if s.cfg.Options.CleanBuild {
		if err := os.RemoveAll(buildDir); err != nil {
			return errors.Wrap(errors.ErrCodeIO, err, "clean %s", buildDir)
		}
	}
	if err := os.MkdirAll(buildDir, 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "create %s", buildDir)
	}
	if err := os.RemoveAll(installDir); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "clean %s", installDir)
	}
	if err := os.MkdirAll(installDir, 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "create %s", installDir)
	}
	if err := inst.WriteInfo(buildDir); err != nil {
		return err
	}

	sink := toolchain.New()
	for _, dep := range inst.TransitiveDeps() {
		if err := dep.Export(sink); err != nil {
			return err
		}
	}
	return sink.WriteFile(filepath.Join(buildDir, plan.ToolchainFile))
}

func stale(err error, format string, args ...any) error {
	if errors.Is(err, errors.ErrCodeStaleConfiguration) {
		return err
	}
	return errors.Wrap(errors.ErrCodeStaleConfiguration, err, format, args...)
}

// wrap adds context to err while keeping its code.
func wrap(err error, format string, args ...any) error {
	code := errors.GetCode(err)
	if code == "" {
		code = errors.ErrCodeInternal
	}
	return errors.Wrap(code, err, format, args...)
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
