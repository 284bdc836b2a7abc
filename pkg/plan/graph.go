package plan

import (
	"maps"
	"slices"

	"github.com/matzehuels/distbuilder/pkg/dag"
	"github.com/matzehuels/distbuilder/pkg/errors"
	"github.com/matzehuels/distbuilder/pkg/option"
	"github.com/matzehuels/distbuilder/pkg/render/nodelink"
)

// Graph rebuilds the dependency graph recorded in the plan. Node metadata
// carries the same version, hash and rendered options that configure
// writes to graph.dot.
func (p *Plan) Graph() (*dag.DAG, error) {
	g := dag.New(dag.Metadata{"session": p.Session})
	for _, e := range p.Entries {
		opts := make(map[string]string, len(e.Options))
		for k, v := range e.Options {
			opts[k] = option.Format(v)
		}
		err := g.AddNode(dag.Node{ID: e.Library, Meta: dag.Metadata{
			nodelink.MetaVersion: e.Version,
			nodelink.MetaHash:    e.Hash,
			nodelink.MetaOptions: opts,
		}})
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeConfiguration, err, "plan entry %s", e.Library)
		}
	}
	for _, e := range p.Entries {
		for _, dep := range slices.Sorted(maps.Keys(e.Deps)) {
			if err := g.AddEdge(dag.Edge{From: e.Library, To: dep}); err != nil {
				return nil, errors.Wrap(errors.ErrCodeConfiguration, err, "%s depends on %s", e.Library, dep)
			}
		}
	}
	return g, nil
}
