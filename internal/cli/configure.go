package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/matzehuels/distbuilder/pkg/option"
	"github.com/matzehuels/distbuilder/pkg/plan"
	"github.com/matzehuels/distbuilder/pkg/resolve"
	"github.com/matzehuels/distbuilder/pkg/session"
)

// configureCommand resolves a request document into a build directory.
func (c *CLI) configureCommand() *cobra.Command {
	var (
		buildDir     string
		ignoreScript bool
	)

	cmd := &cobra.Command{
		Use:   "configure <request.(json|toml)>",
		Short: "Resolve requested libraries and write the build plan",
		Long: `Resolve the libraries named in a request document, together with their
transitive dependencies, and write plan.json, tree.json, toolchain.cmake and
graph.dot into the build directory. The request document is rewritten with
every decided version and option value.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			requestPath, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			req, err := plan.LoadRequest(requestPath)
			if err != nil {
				return err
			}
			opts := session.DefaultOptions()
			opts.IgnoreScript = ignoreScript
			sess, err := c.newSession(opts)
			if err != nil {
				return err
			}
			res, err := c.configure(cmd.Context(), sess, buildDir, requestPath, req)
			if err != nil {
				return err
			}
			printSuccess("Configured %d libraries", len(res.Instances))
			for _, name := range []string{plan.PlanFile, plan.ToolchainFile, plan.GraphFile} {
				printFile(filepath.Join(buildDir, name))
			}
			printNextStep("Build with", fmt.Sprintf("%s build -B %s", appName, buildDir))
			return nil
		},
	}

	cmd.Flags().StringVarP(&buildDir, "build-dir", "B", ".", "directory receiving the build plan")
	cmd.Flags().BoolVar(&ignoreScript, "ignore-script-version", false, "leave recipe scripts out of build hashes")

	return cmd
}

// configure runs the resolver and prints the resolved instances.
func (c *CLI) configure(ctx context.Context, sess *session.Session, buildDir, requestPath string, req plan.Request) (*resolve.Result, error) {
	stop := c.startSpinner(ctx, "Resolving dependencies...")
	prog := newProgress(c.Logger)
	res, err := sess.Configure(ctx, buildDir, requestPath, req)
	stop()
	if err != nil {
		return nil, err
	}
	prog.done("Resolved %d libraries", len(res.Instances))
	printPlan(res.Plan)
	return res, nil
}

// printPlan lists the plan entries in build order.
func printPlan(p *plan.Plan) {
	rows := make([][]string, 0, len(p.Entries))
	for _, e := range p.Entries {
		keys := make([]string, 0, len(e.Options))
		for k := range e.Options {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		opts := joinPairs(keys, func(k string) string { return option.Format(e.Options[k]) })
		rows = append(rows, []string{e.Library, e.Version, shortHash(e.Hash), opts})
	}
	printTable([]string{"Library", "Version", "Hash", "Options"}, rows, -1)
}
