package hclrecipe

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/matzehuels/distbuilder/pkg/errors"
	"github.com/matzehuels/distbuilder/pkg/option"
	"github.com/matzehuels/distbuilder/pkg/recipe"
	"github.com/matzehuels/distbuilder/pkg/version"
)

type fileSchema struct {
	Versions     []versionBlock    `hcl:"version,block"`
	Options      []optionBlock     `hcl:"option,block"`
	Dependencies []dependencyBlock `hcl:"dependency,block"`
	Build        *buildBlock       `hcl:"build,block"`
	Export       *exportBlock      `hcl:"export,block"`
}

type versionBlock struct {
	Version   string `hcl:"version,label"`
	Signature string `hcl:"signature"`
	URL       string `hcl:"url,optional"`
}

type optionBlock struct {
	Key         string    `hcl:"key,label"`
	Type        string    `hcl:"type"`
	Default     cty.Value `hcl:"default"`
	Description string    `hcl:"description,optional"`
}

type dependencyBlock struct {
	Library   string         `hcl:"library,label"`
	When      hcl.Expression `hcl:"when,optional"`
	Variant   string         `hcl:"variant,optional"`
	Major     string         `hcl:"major,optional"`
	Minor     string         `hcl:"minor,optional"`
	Patch     string         `hcl:"patch,optional"`
	Overrides hcl.Expression `hcl:"overrides,optional"`
}

type buildBlock struct {
	URL       hcl.Expression `hcl:"url,optional"`
	Subdir    hcl.Expression `hcl:"subdir,optional"`
	Patches   hcl.Expression `hcl:"patches,optional"`
	CMakeArgs hcl.Expression `hcl:"cmake_args,optional"`
	Configs   hcl.Expression `hcl:"configs,optional"`
	Prefix    hcl.Expression `hcl:"prefix,optional"`
}

type exportBlock struct {
	PackageDirs   hcl.Expression `hcl:"package_dirs,optional"`
	PathVars      hcl.Expression `hcl:"path_vars,optional"`
	FilepathVars  hcl.Expression `hcl:"filepath_vars,optional"`
	StringVars    hcl.Expression `hcl:"string_vars,optional"`
	FindPackages  hcl.Expression `hcl:"find_packages,optional"`
	QuietPackages hcl.Expression `hcl:"quiet_packages,optional"`
	Post          hcl.Expression `hcl:"post,optional"`
}

// Parse decodes recipe source for library name. filename is used in
// diagnostics only. The returned recipe has no Dir and its Script is src.
func Parse(name, filename string, src []byte) (*recipe.Recipe, error) {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, errors.Wrap(errors.ErrCodeConfiguration, diags, "parse recipe %s", name)
	}
	var fs fileSchema
	if diags := gohcl.DecodeBody(file.Body, nil, &fs); diags.HasErrors() {
		return nil, errors.Wrap(errors.ErrCodeConfiguration, diags, "decode recipe %s", name)
	}

	rec := &recipe.Recipe{
		Name:      name,
		Catalogue: make(map[version.Version]string, len(fs.Versions)),
		Script:    src,
	}
	def := &definition{urls: make(map[version.Version]string)}

	for _, vb := range fs.Versions {
		v, err := version.Parse(vb.Version)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeConfiguration, err, "recipe %s", name)
		}
		if _, dup := rec.Catalogue[v]; dup {
			return nil, errors.New(errors.ErrCodeConfiguration, "recipe %s lists version %s twice", name, v)
		}
		if len(vb.Signature) < 4 {
			return nil, errors.New(errors.ErrCodeConfiguration, "recipe %s: version %s has no usable signature", name, v)
		}
		rec.Catalogue[v] = vb.Signature
		if vb.URL != "" {
			def.urls[v] = vb.URL
		}
	}

	for _, ob := range fs.Options {
		d, err := descriptor(ob)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeConfiguration, err, "recipe %s", name)
		}
		rec.Options = append(rec.Options, d)
	}

	for _, db := range fs.Dependencies {
		d, err := dependency(db)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeConfiguration, err, "recipe %s: dependency %s", name, db.Library)
		}
		rec.Dependencies = append(rec.Dependencies, d)
		if d.When != nil {
			def.whens = append(def.whens, when{library: db.Library, expr: db.When})
		}
	}

	def.build, def.export = fs.Build, fs.Export
	if def.build != nil {
		rec.Build = def.buildFunc(rec)
	}
	if def.export != nil {
		rec.Export = def.exportFunc()
	}

	if err := rec.Validate(); err != nil {
		return nil, err
	}
	if err := def.check(rec); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfiguration, err, "recipe %s", name)
	}
	return rec, nil
}

func descriptor(ob optionBlock) (option.Descriptor, error) {
	kind, err := option.ParseKind(ob.Type)
	if err != nil {
		return option.Descriptor{}, err
	}
	def, err := fromCty(ob.Default)
	if err != nil {
		return option.Descriptor{}, errors.Wrap(errors.ErrCodeConfiguration, err, "option %s default", ob.Key)
	}
	def, err = option.Coerce(kind, def)
	if err != nil {
		return option.Descriptor{}, errors.Wrap(errors.ErrCodeConfiguration, err, "option %s default", ob.Key)
	}
	return option.Descriptor{Key: ob.Key, Kind: kind, Default: def, Description: ob.Description}, nil
}

func dependency(db dependencyBlock) (recipe.Dependency, error) {
	rng, err := version.NewRange(db.Variant, db.Major, db.Minor, db.Patch)
	if err != nil {
		return recipe.Dependency{}, err
	}
	d := recipe.Dependency{Library: db.Library, Range: rng}

	if !isNull(db.When) {
		expr := db.When
		eval := func(owner option.Reader) (bool, error) {
			var ok bool
			err := decode(expr, ownerContext(owner), &ok)
			return ok, err
		}
		d.When = func(owner option.Reader) bool {
			ok, err := eval(owner)
			return err == nil && ok
		}
		d.Check = func(owner option.Reader) error {
			if _, err := eval(owner); err != nil {
				return errors.Wrap(errors.ErrCodeConfiguration, err, "dependency %s: when", db.Library)
			}
			return nil
		}
	}

	if !isNull(db.Overrides) {
		v, diags := db.Overrides.Value(staticContext())
		if diags.HasErrors() {
			return recipe.Dependency{}, diags
		}
		if !v.IsNull() {
			if !v.Type().IsObjectType() && !v.Type().IsMapType() {
				return recipe.Dependency{}, errors.New(errors.ErrCodeConfiguration, "overrides must be an object, got %s", v.Type().FriendlyName())
			}
			d.Overrides = make(map[string]any)
			for it := v.ElementIterator(); it.Next(); {
				k, ev := it.Element()
				gv, err := fromCty(ev)
				if err != nil {
					return recipe.Dependency{}, errors.Wrap(errors.ErrCodeConfiguration, err, "override %s", k.AsString())
				}
				d.Overrides[k.AsString()] = gv
			}
		}
	}
	return d, nil
}
