package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matzehuels/distbuilder/pkg/errors"
	"github.com/matzehuels/distbuilder/pkg/patch"
)

// diffCommand writes a patch between a pristine copy of a source file and
// its edited version.
func (c *CLI) diffCommand() *cobra.Command {
	var (
		root   string
		output string
	)

	cmd := &cobra.Command{
		Use:   "diff <file>",
		Short: "Create a patch from an edited source file",
		Long: `Compare <file> with its pristine copy <name>.src<ext> (for example
CMakeLists.src.txt next to CMakeLists.txt) below --root and write a unified
diff that a recipe can apply from its patch directory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := args[0]
			diff, err := patch.Diff(root, file)
			if err != nil {
				return err
			}
			if diff == "" {
				printInfo("No differences in %s", file)
				return nil
			}
			if output == "" {
				output = filepath.Base(file) + patch.Ext
			}
			if err := os.WriteFile(output, []byte(diff), 0o644); err != nil {
				return errors.Wrap(errors.ErrCodeIO, err, "write %s", output)
			}
			printSuccess("Wrote patch")
			printFile(output)
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", ".", "source tree containing the file")
	cmd.Flags().StringVarP(&output, "output", "o", "", "patch file (default <file>.patch)")

	return cmd
}
