package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/distbuilder/pkg/buildinfo"
	"github.com/matzehuels/distbuilder/pkg/config"
)

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "distbuilder builds native libraries and their dependencies from source",
		Long: `distbuilder resolves a set of requested native libraries against recipe
definitions, computes a content hash for every configured build, and builds
whatever is not yet installed with CMake. Installed libraries are shared
between projects through the hash-named install directories.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
		},
	}

	root.SetVersionTemplate(buildinfo.Template())

	flags := root.PersistentFlags()
	flags.StringVarP(&c.preference, "preference", "p", "", "preference file (default "+config.DefaultPath()+")")
	flags.StringArrayVar(&c.sources, "sources", nil, "additional recipe directory, searched first (repeatable)")

	root.AddCommand(c.configureCommand())
	root.AddCommand(c.buildCommand())
	root.AddCommand(c.testCommand())
	root.AddCommand(c.graphCommand())
	root.AddCommand(c.recipesCommand())
	root.AddCommand(c.diffCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}
