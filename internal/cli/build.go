package cli

import (
	"context"
	"slices"

	"github.com/spf13/cobra"

	"github.com/matzehuels/distbuilder/pkg/errors"
	"github.com/matzehuels/distbuilder/pkg/scheduler"
	"github.com/matzehuels/distbuilder/pkg/session"
)

// buildFlags are shared by build and test.
type buildFlags struct {
	clean         bool
	forceDownload bool
	noOverwrite   bool
	ignoreScript  bool
	configs       []string
}

func (f *buildFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.clean, "clean", false, "remove build directories before building")
	cmd.Flags().BoolVar(&f.forceDownload, "force-download", false, "download sources even when cached")
	cmd.Flags().BoolVar(&f.noOverwrite, "no-unzip-overwrite", false, "keep previously extracted sources")
	cmd.Flags().StringArrayVar(&f.configs, "config", nil, "build configuration, Debug or Release (repeatable, default both)")
}

func (f *buildFlags) options() (session.Options, error) {
	for _, cfg := range f.configs {
		if !slices.Contains(scheduler.DefaultConfigs, cfg) {
			return session.Options{}, errors.New(errors.ErrCodeConfiguration,
				"unknown configuration %q (want one of %v)", cfg, scheduler.DefaultConfigs)
		}
	}
	return session.Options{
		CleanBuild:     f.clean,
		ForceDownload:  f.forceDownload,
		UnzipOverwrite: !f.noOverwrite,
		IgnoreScript:   f.ignoreScript,
		Configs:        f.configs,
	}, nil
}

// buildCommand builds a configured plan.
func (c *CLI) buildCommand() *cobra.Command {
	var (
		buildDir string
		flags    buildFlags
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build every library of the configured plan",
		Long: `Build the libraries listed in the plan written by configure, in dependency
order. Libraries whose install directory is already complete are skipped.
The run stops at the first failure; libraries built before it stay installed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}
			sess, err := c.newSession(opts)
			if err != nil {
				return err
			}
			return c.build(cmd.Context(), sess, buildDir)
		},
	}

	cmd.Flags().StringVarP(&buildDir, "build-dir", "B", ".", "directory holding the build plan")
	flags.register(cmd)

	return cmd
}

// build runs the scheduler and prints its report, also after a failure.
func (c *CLI) build(ctx context.Context, sess *session.Session, buildDir string) error {
	prog := newProgress(c.Logger)
	report, err := sess.Build(ctx, buildDir)
	if report != nil {
		printReport(report)
	}
	if err != nil {
		printError("Build failed")
		return err
	}
	prog.done("Built %d libraries, %d cached", report.Built(), report.Cached())
	printSuccess("Build complete")
	return nil
}

// printReport lists what a build run did.
func printReport(r *scheduler.Report) {
	rows := make([][]string, 0, len(r.Entries))
	for _, e := range r.Entries {
		status := statusBuilt
		if e.Cached {
			status = statusCached
		}
		rows = append(rows, []string{e.Library, e.Version, shortHash(e.Hash), status, formatDuration(e.Duration, e.Cached)})
	}
	printTable([]string{"Library", "Version", "Hash", "Status", "Time"}, rows, 3)
}
