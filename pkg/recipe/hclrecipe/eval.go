package hclrecipe

import (
	"context"
	"math/big"
	"path/filepath"
	"slices"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/matzehuels/distbuilder/pkg/errors"
	"github.com/matzehuels/distbuilder/pkg/option"
	"github.com/matzehuels/distbuilder/pkg/recipe"
	"github.com/matzehuels/distbuilder/pkg/toolchain"
	"github.com/matzehuels/distbuilder/pkg/version"
)

var functions = map[string]function.Function{
	"coalesce": stdlib.CoalesceFunc,
	"concat":   stdlib.ConcatFunc,
	"format":   stdlib.FormatFunc,
	"join":     stdlib.JoinFunc,
	"lower":    stdlib.LowerFunc,
	"replace":  stdlib.ReplaceFunc,
	"split":    stdlib.SplitFunc,
	"upper":    stdlib.UpperFunc,
}

// definition holds the unevaluated build and export blocks of a recipe.
type definition struct {
	urls   map[version.Version]string
	whens  []when
	build  *buildBlock
	export *exportBlock
}

type when struct {
	library string
	expr    hcl.Expression
}

func staticContext() *hcl.EvalContext {
	return &hcl.EvalContext{Functions: functions}
}

func ownerContext(opts option.Reader) *hcl.EvalContext {
	ctx := staticContext()
	ctx.Variables = optionVars(opts)
	return ctx
}

func optionVars(opts option.Reader) map[string]cty.Value {
	typed := map[string]cty.Value{}
	flags := map[string]cty.Value{}
	for _, k := range opts.Keys() {
		v, _ := opts.Value(k)
		typed[k] = toCty(v)
		flags[k] = cty.StringVal(opts.Render(k))
	}
	return map[string]cty.Value{
		"options": cty.ObjectVal(typed),
		"flags":   cty.ObjectVal(flags),
	}
}

func targetContext(t recipe.Target) *hcl.EvalContext {
	ctx := ownerContext(t.Options())
	ctx.Variables["version"] = versionVal(t.Version())
	ctx.Variables["install_dir"] = cty.StringVal(filepath.ToSlash(t.InstallDir()))
	ctx.Variables["build_dir"] = cty.StringVal(filepath.ToSlash(t.BuildDir()))
	return ctx
}

func workspaceContext(rec *recipe.Recipe, ws recipe.Workspace) *hcl.EvalContext {
	ctx := targetContext(ws)
	deps := map[string]cty.Value{}
	for _, d := range rec.Dependencies {
		dep, ok := ws.Dependency(d.Library)
		if !ok {
			continue
		}
		val := cty.ObjectVal(map[string]cty.Value{
			"install_dir": cty.StringVal(filepath.ToSlash(dep.InstallDir())),
			"build_dir":   cty.StringVal(filepath.ToSlash(dep.BuildDir())),
			"version":     versionVal(dep.Version()),
		})
		deps[dep.Library()] = val
		deps[recipe.ShortName(dep.Library())] = val
	}
	ctx.Variables["deps"] = cty.ObjectVal(deps)
	return ctx
}

func versionVal(v version.Version) cty.Value {
	c := v.Components()
	return cty.ObjectVal(map[string]cty.Value{
		"variant": cty.NumberIntVal(int64(c[0])),
		"major":   cty.NumberIntVal(int64(c[1])),
		"minor":   cty.NumberIntVal(int64(c[2])),
		"patch":   cty.NumberIntVal(int64(c[3])),
		"string":  cty.StringVal(v.String()),
	})
}

func toCty(v any) cty.Value {
	switch x := v.(type) {
	case bool:
		return cty.BoolVal(x)
	case int:
		return cty.NumberIntVal(int64(x))
	case string:
		return cty.StringVal(x)
	}
	return cty.NullVal(cty.DynamicPseudoType)
}

// fromCty converts a primitive value into bool, int or string.
func fromCty(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, errors.New(errors.ErrCodeConfiguration, "value must be known and not null")
	}
	switch v.Type() {
	case cty.Bool:
		return v.True(), nil
	case cty.String:
		return v.AsString(), nil
	case cty.Number:
		bf := v.AsBigFloat()
		if !bf.IsInt() {
			return nil, errors.New(errors.ErrCodeConfiguration, "number %s is not an integer", bf.Text('g', -1))
		}
		n, acc := bf.Int64()
		if acc != big.Exact {
			return nil, errors.New(errors.ErrCodeConfiguration, "number %s is out of range", bf.Text('g', -1))
		}
		return int(n), nil
	}
	return nil, errors.New(errors.ErrCodeConfiguration, "unsupported value type %s", v.Type().FriendlyName())
}

func isNull(expr hcl.Expression) bool {
	if expr == nil {
		return true
	}
	if len(expr.Variables()) > 0 {
		return false
	}
	v, diags := expr.Value(nil)
	return !diags.HasErrors() && v.IsNull()
}

// decode evaluates expr into target. A null result leaves target unchanged.
func decode(expr hcl.Expression, ctx *hcl.EvalContext, target any) error {
	if expr == nil {
		return nil
	}
	v, diags := expr.Value(ctx)
	if diags.HasErrors() {
		return diags
	}
	if v.IsNull() {
		return nil
	}
	ty, err := gocty.ImpliedType(target)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "decode target")
	}
	v, err = convert.Convert(v, ty)
	if err != nil {
		return errors.Wrap(errors.ErrCodeConfiguration, err, "%s", expr.Range())
	}
	if err := gocty.FromCtyValue(v, target); err != nil {
		return errors.Wrap(errors.ErrCodeConfiguration, err, "%s", expr.Range())
	}
	return nil
}

// steps is a build block evaluated for one instance.
type steps struct {
	url       string
	subdir    string
	patches   string
	cmakeArgs []string
	configs   []string
	prefix    string
}

func (d *definition) evalBuild(ctx *hcl.EvalContext, v version.Version) (*steps, error) {
	s := &steps{configs: []string{"Debug", "Release"}}
	b := d.build
	for _, f := range []struct {
		expr   hcl.Expression
		target any
	}{
		{b.URL, &s.url},
		{b.Subdir, &s.subdir},
		{b.Patches, &s.patches},
		{b.CMakeArgs, &s.cmakeArgs},
		{b.Configs, &s.configs},
		{b.Prefix, &s.prefix},
	} {
		if err := decode(f.expr, ctx, f.target); err != nil {
			return nil, err
		}
	}
	if u, ok := d.urls[v]; ok {
		s.url = u
	}
	if s.url == "" {
		return nil, errors.New(errors.ErrCodeConfiguration, "no source url for version %s", v)
	}
	return s, nil
}

// buildFunc downloads and unpacks the source archive, applies patches and
// runs a configure, build and install cycle for each requested config.
func (d *definition) buildFunc(rec *recipe.Recipe) recipe.BuildFunc {
	return func(ctx context.Context, ws recipe.Workspace) error {
		s, err := d.evalBuild(workspaceContext(rec, ws), ws.Version())
		if err != nil {
			return err
		}

		archive, err := ws.Download(ctx, s.url, ws.Signature())
		if err != nil {
			return err
		}
		if err := ws.Unzip(ctx, archive, "src"); err != nil {
			return err
		}
		src := filepath.Join("src", filepath.FromSlash(s.subdir))

		if s.patches != "" {
			dir := filepath.FromSlash(s.patches)
			if !filepath.IsAbs(dir) {
				dir = filepath.Join(rec.Dir, dir)
			}
			if err := ws.ApplyPatches(ctx, dir, src); err != nil {
				return err
			}
		}

		for _, cfg := range s.configs {
			if !slices.Contains(ws.Configs(), cfg) {
				continue
			}
			args := append(slices.Clone(s.cmakeArgs), "-DCMAKE_BUILD_TYPE="+cfg)
			if err := ws.CMakeConfigure(ctx, src, "build", args...); err != nil {
				return err
			}
			if err := ws.CMakeBuild(ctx, "build", cfg); err != nil {
				return err
			}
			if err := ws.CMakeInstall(ctx, "build", cfg, s.prefix); err != nil {
				return err
			}
		}
		return nil
	}
}

// exports is an export block evaluated for one instance.
type exports struct {
	packageDirs   map[string]string
	pathVars      map[string]string
	filepathVars  map[string]string
	stringVars    map[string]string
	findPackages  []string
	quietPackages []string
	post          []string
}

func (d *definition) evalExport(ctx *hcl.EvalContext) (*exports, error) {
	e := &exports{}
	b := d.export
	for _, f := range []struct {
		expr   hcl.Expression
		target any
	}{
		{b.PackageDirs, &e.packageDirs},
		{b.PathVars, &e.pathVars},
		{b.FilepathVars, &e.filepathVars},
		{b.StringVars, &e.stringVars},
		{b.FindPackages, &e.findPackages},
		{b.QuietPackages, &e.quietPackages},
		{b.Post, &e.post},
	} {
		if err := decode(f.expr, ctx, f.target); err != nil {
			return nil, err
		}
	}
	if len(e.packageDirs) > 1 {
		return nil, errors.New(errors.ErrCodeConfiguration, "package_dirs may name one package, got %d", len(e.packageDirs))
	}
	return e, nil
}

func (d *definition) exportFunc() recipe.ExportFunc {
	return func(t recipe.Target, sc *toolchain.Scope) error {
		e, err := d.evalExport(targetContext(t))
		if err != nil {
			return err
		}
		for pkg, dir := range e.packageDirs {
			sc.SetDir(pkg, dir)
		}
		for _, k := range sortedKeys(e.pathVars) {
			sc.SetPath(k, e.pathVars[k], "")
		}
		for _, k := range sortedKeys(e.filepathVars) {
			sc.SetFilepath(k, e.filepathVars[k])
		}
		for _, k := range sortedKeys(e.stringVars) {
			sc.SetString(k, e.stringVars[k])
		}
		for _, p := range e.findPackages {
			sc.FindPackage(p, true, true)
		}
		for _, p := range e.quietPackages {
			sc.FindPackage(p, false, true)
		}
		for _, p := range e.post {
			sc.AddPost(p)
		}
		return nil
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
