package cli

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/distbuilder/pkg/errors"
	"github.com/matzehuels/distbuilder/pkg/plan"
)

// testCommand configures and builds a single library, for recipe authors.
func (c *CLI) testCommand() *cobra.Command {
	var (
		buildDir string
		version  string
		options  []string
		flags    buildFlags
	)

	cmd := &cobra.Command{
		Use:   "test <library>",
		Short: "Configure and build one library",
		Long: `Configure and build a single library with the given options, without a
request document. Useful while writing or patching a recipe.`,
		Example: `  distbuilder test zlib -o Shared=true
  distbuilder test libtiff.libtiff --library-version 4.6.0 --config Release`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseOptionFlags(options)
			if err != nil {
				return err
			}
			opts, err := flags.options()
			if err != nil {
				return err
			}
			sess, err := c.newSession(opts)
			if err != nil {
				return err
			}
			if buildDir == "" {
				buildDir = filepath.Join(sess.Config.Directory.Build, "_test", args[0])
			}

			req := plan.Request{args[0]: {Version: version, Options: values}}
			if _, err := c.configure(cmd.Context(), sess, buildDir, "", req); err != nil {
				return err
			}
			return c.build(cmd.Context(), sess, buildDir)
		},
	}

	cmd.Flags().StringVarP(&buildDir, "build-dir", "B", "", "directory receiving the build plan (default <build root>/_test/<library>)")
	cmd.Flags().StringVar(&version, "library-version", "", "version to build (default newest)")
	cmd.Flags().StringArrayVarP(&options, "option", "o", nil, "option value as Key=Value (repeatable)")
	cmd.Flags().BoolVar(&flags.ignoreScript, "ignore-script-version", false, "leave recipe scripts out of build hashes")
	flags.register(cmd)

	return cmd
}

// parseOptionFlags turns Key=Value pairs into typed option values.
// "true" and "false" become booleans and integers become ints; anything
// else stays a string.
func parseOptionFlags(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, errors.New(errors.ErrCodeConfiguration, "option %q is not Key=Value", p)
		}
		switch lower := strings.ToLower(value); {
		case lower == "true":
			out[key] = true
		case lower == "false":
			out[key] = false
		default:
			if n, err := strconv.Atoi(value); err == nil {
				out[key] = n
			} else {
				out[key] = value
			}
		}
	}
	return out, nil
}
