package hclrecipe

import (
	"github.com/zclconf/go-cty/cty"

	"github.com/matzehuels/distbuilder/pkg/errors"
	"github.com/matzehuels/distbuilder/pkg/option"
	"github.com/matzehuels/distbuilder/pkg/recipe"
	"github.com/matzehuels/distbuilder/pkg/version"
)

// sample stands in for an instance with default options when a recipe is
// checked at load time.
type sample struct {
	library string
	version version.Version
	options *option.Set
}

func (p *sample) Library() string          { return p.library }
func (p *sample) Version() version.Version { return p.version }
func (p *sample) Options() option.Reader   { return p.options }
func (p *sample) BuildDir() string         { return "/build/" + p.library }
func (p *sample) InstallDir() string       { return "/install/" + p.library }

var _ recipe.Target = (*sample)(nil)

// check evaluates every expression of the recipe once per catalogued
// version with default options.
func (d *definition) check(rec *recipe.Recipe) error {
	set, err := option.NewSet(rec.Options, nil)
	if err != nil {
		return err
	}

	owner := ownerContext(set)
	for _, dep := range d.whens {
		var ok bool
		if err := decode(dep.expr, owner, &ok); err != nil {
			return errors.Wrap(errors.ErrCodeConfiguration, err, "dependency %s: when", dep.library)
		}
	}

	for _, v := range rec.Versions().Versions() {
		p := &sample{library: rec.Name, version: v, options: set}
		ctx := targetContext(p)
		deps := map[string]cty.Value{}
		for _, dep := range rec.Dependencies {
			val := cty.ObjectVal(map[string]cty.Value{
				"install_dir": cty.StringVal("/install/" + dep.Library),
				"build_dir":   cty.StringVal("/build/" + dep.Library),
				"version":     versionVal(version.Version{}),
			})
			deps[dep.Library] = val
			deps[recipe.ShortName(dep.Library)] = val
		}
		ctx.Variables["deps"] = cty.ObjectVal(deps)

		if d.build != nil {
			if _, err := d.evalBuild(ctx, v); err != nil {
				return errors.Wrap(errors.ErrCodeConfiguration, err, "build block for %s", v)
			}
		}
		if d.export != nil {
			if _, err := d.evalExport(targetContext(p)); err != nil {
				return errors.Wrap(errors.ErrCodeConfiguration, err, "export block for %s", v)
			}
		}
	}
	return nil
}
