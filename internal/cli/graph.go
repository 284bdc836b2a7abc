package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matzehuels/distbuilder/pkg/errors"
	"github.com/matzehuels/distbuilder/pkg/plan"
	"github.com/matzehuels/distbuilder/pkg/render/nodelink"
)

const (
	formatDOT = "dot"
	formatSVG = "svg"
)

// graphCommand prints or renders the resolved dependency graph.
func (c *CLI) graphCommand() *cobra.Command {
	var (
		buildDir string
		format   string
		output   string
		reduce   bool
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Output the resolved dependency graph",
		Long:  `Output the dependency graph written by configure, as Graphviz DOT or rendered to SVG.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dot, err := readGraph(buildDir, reduce)
			if err != nil {
				return err
			}

			data := dot
			switch format {
			case formatDOT:
			case formatSVG:
				if data, err = nodelink.RenderSVG(cmd.Context(), string(dot)); err != nil {
					return errors.Wrap(errors.ErrCodeExternalToolFailure, err, "render graph")
				}
			default:
				return errors.New(errors.ErrCodeConfiguration, "unknown format %q (want dot or svg)", format)
			}

			if output == "" {
				_, err := stdout.Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return errors.Wrap(errors.ErrCodeIO, err, "write %s", output)
			}
			printSuccess("Wrote graph")
			printFile(output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&buildDir, "build-dir", "B", ".", "directory holding the build plan")
	cmd.Flags().StringVarP(&format, "format", "f", formatDOT, "output format: dot or svg")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().BoolVar(&reduce, "reduce", false, "drop edges implied by longer dependency paths")

	return cmd
}

// readGraph returns graph.dot as written by configure, or with reduce set
// the transitive reduction of the graph recorded in plan.json.
func readGraph(buildDir string, reduce bool) ([]byte, error) {
	if reduce {
		p, err := plan.Load(buildDir)
		if err != nil {
			return nil, err
		}
		g, err := p.Graph()
		if err != nil {
			return nil, err
		}
		g.TransitiveReduction()
		return []byte(nodelink.ToDOT(g, nodelink.Options{Detailed: true})), nil
	}

	path := filepath.Join(buildDir, plan.GraphFile)
	dot, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeConfiguration, err, "no graph in %s (run configure first)", buildDir)
		}
		return nil, errors.Wrap(errors.ErrCodeIO, err, "read %s", path)
	}
	return dot, nil
}
