package cli

import (
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/distbuilder/pkg/option"
	"github.com/matzehuels/distbuilder/pkg/recipe"
	"github.com/matzehuels/distbuilder/pkg/session"
)

// recipesCommand lists every recipe the configured sources provide.
func (c *CLI) recipesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "recipes",
		Short: "List known recipes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := c.newSession(session.DefaultOptions())
			if err != nil {
				return err
			}
			names, err := sess.Registry.Names()
			if err != nil {
				return err
			}
			if len(names) == 0 {
				printWarning("No recipes found")
				for _, dir := range append(append([]string(nil), c.sources...), sess.Config.Directory.Sources...) {
					printDetail("Searched: %s", dir)
				}
				return nil
			}

			rows := make([][]string, 0, len(names))
			for _, name := range names {
				rec, err := sess.Registry.Lookup(name)
				if err != nil {
					return err
				}
				rows = append(rows, recipeRow(rec))
			}
			printTable([]string{"Library", "Versions", "Options", "Dependencies"}, rows, -1)
			return nil
		},
	}
}

func recipeRow(rec *recipe.Recipe) []string {
	versions := rec.Versions().Versions()
	slices.Reverse(versions)
	vs := make([]string, len(versions))
	for i, v := range versions {
		vs[i] = v.String()
	}

	keys := make([]string, len(rec.Options))
	defaults := make(map[string]string, len(rec.Options))
	for i, d := range rec.Options {
		keys[i] = d.Key
		defaults[d.Key] = option.Format(d.Default)
	}

	deps := make([]string, len(rec.Dependencies))
	for i, d := range rec.Dependencies {
		deps[i] = d.String()
	}

	return []string{
		rec.Name,
		strings.Join(vs, " "),
		joinPairs(keys, func(k string) string { return defaults[k] }),
		strings.Join(deps, "\n"),
	}
}
