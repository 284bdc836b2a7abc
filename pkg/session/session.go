// Package session holds the collaborators of one distbuilder invocation.
//
// A Session is built once from the loaded preferences and the command-line
// options, handed to the configure and build phases, and discarded when the
// command returns. Nothing in it is process-global: the recipe lookup cache
// lives in its Registry and the download cache in its Blobs.
//
//	sess, err := session.New(cfg, session.DefaultOptions(), logger)
//	if err != nil {
//	    return err
//	}
//	res, err := sess.Configure(ctx, buildDir, requestPath, req)
//	...
//	report, err := sess.Build(ctx, buildDir)
package session

import (
	"context"
	"io"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/distbuilder/pkg/blob"
	"github.com/matzehuels/distbuilder/pkg/config"
	"github.com/matzehuels/distbuilder/pkg/instance"
	"github.com/matzehuels/distbuilder/pkg/observability"
	"github.com/matzehuels/distbuilder/pkg/plan"
	"github.com/matzehuels/distbuilder/pkg/process"
	"github.com/matzehuels/distbuilder/pkg/recipe"
	"github.com/matzehuels/distbuilder/pkg/recipe/hclrecipe"
	"github.com/matzehuels/distbuilder/pkg/resolve"
	"github.com/matzehuels/distbuilder/pkg/scheduler"
)

// Options are the per-invocation switches set from command-line flags.
type Options struct {
	CleanBuild     bool
	ForceDownload  bool
	UnzipOverwrite bool
	IgnoreScript   bool
	Configs        []string
	// Sources are extra recipe directories searched before the configured ones.
	Sources []string
}

// DefaultOptions returns the options used when no flag is given.
func DefaultOptions() Options {
	return Options{UnzipOverwrite: true}
}

// Session carries everything the configure and build phases share.
type Session struct {
	ID       string
	Config   *config.Config
	Options  Options
	Logger   *log.Logger
	Registry *recipe.Registry
	Blobs    *blob.Cache
	Hooks    observability.Hooks

	// LogOutput receives per-library build output in addition to build.log.
	LogOutput io.Writer
	// Runner starts external tools. Tests replace it with a fake.
	Runner scheduler.RunnerFactory
}

// New creates a session. A nil logger discards all output.
func New(cfg *config.Config, opts Options, logger *log.Logger) (*Session, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	enc, err := process.Encoding(cfg.Process.Encoding)
	if err != nil {
		return nil, err
	}
	alg, err := blob.ParseAlgorithm(cfg.Download.Algorithm)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	logger = logger.With("session", id[:8])
	hooks := observability.NewLogHooks(logger)

	var sources []recipe.Source
	for _, dir := range append(append([]string(nil), opts.Sources...), cfg.Directory.Sources...) {
		sources = append(sources, hclrecipe.NewDirectory(dir))
	}

	blobs := blob.New(cfg.Directory.Blobs,
		blob.WithAlgorithm(alg),
		blob.WithAttempts(cfg.Download.Attempts),
		blob.WithClient(&http.Client{Timeout: cfg.Download.Timeout}),
		blob.WithForceDownload(opts.ForceDownload),
		blob.WithLogger(logger),
		blob.WithHooks(hooks.Download),
	)

	return &Session{
		ID:       id,
		Config:   cfg,
		Options:  opts,
		Logger:   logger,
		Registry: recipe.NewRegistry(sources...),
		Blobs:    blobs,
		Hooks:    hooks,
		Runner:   scheduler.ProcessRunner(process.New(logger, process.WithFallback(enc))),
	}, nil
}

// Layout returns the instance directory roots.
func (s *Session) Layout() instance.Layout {
	return instance.Layout{
		BuildRoot:   s.Config.Directory.Build,
		InstallRoot: s.Config.Directory.Install,
	}
}

// Resolver returns a resolver bound to this session.
func (s *Session) Resolver() *resolve.Resolver {
	return resolve.New(resolve.Config{
		Registry:     s.Registry,
		Layout:       s.Layout(),
		IgnoreScript: s.Options.IgnoreScript,
		SessionID:    s.ID,
		Logger:       s.Logger,
		Hooks:        s.Hooks.Resolve,
	})
}

// Scheduler returns a build scheduler bound to this session.
func (s *Session) Scheduler() *scheduler.Scheduler {
	return scheduler.New(scheduler.Config{
		Registry: s.Registry,
		Layout:   s.Layout(),
		Blobs:    s.Blobs,
		Runner:   s.Runner,
		CMake: scheduler.CMake{
			Path:      s.Config.CMake.Path,
			Generator: s.Config.CMake.Generator,
			Arch:      s.Config.CMake.Arch,
		},
		Options: scheduler.Options{
			CleanBuild:     s.Options.CleanBuild,
			UnzipOverwrite: s.Options.UnzipOverwrite,
			Configs:        s.Options.Configs,
		},
		Logger:    s.Logger,
		LogOutput: s.LogOutput,
		Hooks:     s.Hooks.Build,
	})
}

// Configure resolves req and writes the plan files into buildDir. When
// requestPath is set the completed request document is written back there.
// Nothing is written if resolution fails.
func (s *Session) Configure(ctx context.Context, buildDir, requestPath string, req plan.Request) (*resolve.Result, error) {
	if err := s.Config.EnsureDirs(); err != nil {
		return nil, err
	}
	res, err := s.Resolver().Resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	files, err := res.Files(buildDir, requestPath)
	if err != nil {
		return nil, err
	}
	if err := plan.WriteAll(files...); err != nil {
		return nil, err
	}
	s.Logger.Info("configured", "dir", buildDir, "instances", len(res.Instances))
	return res, nil
}

// Build runs the build phase for the plan in buildDir.
func (s *Session) Build(ctx context.Context, buildDir string) (*scheduler.Report, error) {
	if err := s.Config.EnsureDirs(); err != nil {
		return nil, err
	}
	return s.Scheduler().Build(ctx, buildDir)
}
