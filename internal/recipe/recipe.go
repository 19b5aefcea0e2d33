// Package recipe loads project recipes, the HCL files that declare a
// project, its native dependencies and their options, and the copy rules
// used to stage and package build outputs.
//
//	project "cake" {
//	  version = "0.1"
//	  backend = "cmake"
//	  sources = ["CMakeLists.txt", "src/**", "assets/**"]
//	}
//
//	require "sdl2/2.0.12@bincrafters/stable" {
//	  options = { shared = false, iconv = false }
//	}
//
//	default_options = { "boost:header_only" = true }
//
//	imports {
//	  copy {
//	    pattern = "*.dll"
//	    src     = "bin"
//	    dst     = import_path
//	  }
//	}
//
// The variables import_path and cwd evaluate to "${import_path}" and
// "${cwd}" placeholders, which are expanded when the rules run.
package recipe

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/goplus/llpack/internal/dist"
	"github.com/goplus/llpack/mod/module"
	"github.com/goplus/llpack/pkgs/mod/versions"
)

// FileName is the conventional recipe file name in a project directory.
const FileName = "llpack.hcl"

// ErrNoProject is returned for a recipe without a project block.
var ErrNoProject = errors.New("recipe has no project block")

// Recipe is a decoded project recipe.
type Recipe struct {
	Name    string
	Version string
	Backend string
	// Sources lists patterns, relative to Dir, of the files that make up the
	// project's source tree. Empty means the whole of Dir.
	Sources []string

	Requires []Require
	// DefaultOptions holds project-wide option defaults. Keys of the form
	// "pkg:key" are scoped to one dependency.
	DefaultOptions map[string]string

	// Imports and Package are nil when the recipe does not declare them.
	Imports dist.Rules
	Package dist.Rules

	// Dir is the directory holding the recipe file.
	Dir string
}

// Require is one dependency declaration.
type Require struct {
	// Ref.Version holds the version constraint as written.
	Ref        module.Version
	Constraint versions.Constraint
	Options    map[string]string
}

// ImportRules returns the recipe's import rules, or the reference rules if
// it declares none.
func (r *Recipe) ImportRules() dist.Rules {
	if r.Imports != nil {
		return r.Imports
	}
	return dist.ImportRules()
}

// PackageRules returns the recipe's package rules, or the reference rules if
// it declares none.
func (r *Recipe) PackageRules() dist.Rules {
	if r.Package != nil {
		return r.Package
	}
	return dist.PackageRules()
}

// Ref returns the project's own reference.
func (r *Recipe) Ref() module.Version {
	return module.Version{Name: r.Name, Version: r.Version}
}

type hclFile struct {
	Project        *hclProject    `hcl:"project,block"`
	Requires       []*hclRequire  `hcl:"require,block"`
	DefaultOptions hcl.Expression `hcl:"default_options,optional"`
	Imports        *hclRules      `hcl:"imports,block"`
	Package        *hclRules      `hcl:"package,block"`
}

type hclProject struct {
	Name    string   `hcl:"name,label"`
	Version string   `hcl:"version,optional"`
	Backend string   `hcl:"backend,optional"`
	Sources []string `hcl:"sources,optional"`
}

type hclRequire struct {
	Ref     string         `hcl:"ref,label"`
	Options hcl.Expression `hcl:"options,optional"`
}

type hclRules struct {
	Copies []*hclCopy `hcl:"copy,block"`
}

type hclCopy struct {
	Pattern string `hcl:"pattern"`
	Src     string `hcl:"src,optional"`
	Dst     string `hcl:"dst,optional"`
}

// EvalContext returns the evaluation context recipes and package manifests
// are decoded with.
func EvalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			dist.VarImportPath: cty.StringVal("${" + dist.VarImportPath + "}"),
			dist.VarCwd:        cty.StringVal("${" + dist.VarCwd + "}"),
		},
	}
}

// Load reads the recipe at path. If path is a directory, FileName inside it
// is read.
func Load(path string) (*Recipe, error) {
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		path = filepath.Join(path, FileName)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	r, err := Parse(path, src)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	r.Dir = abs
	return r, nil
}

// Parse decodes recipe source. filename is used in diagnostics only.
func Parse(filename string, src []byte) (*Recipe, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse recipe %s: %w", filename, diags)
	}

	ctx := EvalContext()
	var f hclFile
	if diags := gohcl.DecodeBody(file.Body, ctx, &f); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode recipe %s: %w", filename, diags)
	}
	if f.Project == nil {
		return nil, fmt.Errorf("%s: %w", filename, ErrNoProject)
	}

	r := &Recipe{
		Name:    f.Project.Name,
		Version: f.Project.Version,
		Backend: f.Project.Backend,
		Sources: f.Project.Sources,
	}
	defaults, err := StringMap(f.DefaultOptions, ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: default_options: %w", filename, err)
	}
	r.DefaultOptions = defaults

	for _, req := range f.Requires {
		ref, err := module.ParseRef(req.Ref)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
		c, err := versions.Parse(ref.Version)
		if err != nil {
			return nil, fmt.Errorf("%s: require %q: %w", filename, req.Ref, err)
		}
		opts, err := StringMap(req.Options, ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: require %q: options: %w", filename, req.Ref, err)
		}
		r.Requires = append(r.Requires, Require{Ref: ref, Constraint: c, Options: opts})
	}

	if f.Imports != nil {
		r.Imports = rules(f.Imports)
	}
	if f.Package != nil {
		r.Package = rules(f.Package)
	}
	return r, nil
}

func rules(b *hclRules) dist.Rules {
	out := make(dist.Rules, 0, len(b.Copies))
	for _, c := range b.Copies {
		out = append(out, dist.Rule{Pattern: c.Pattern, Src: c.Src, Dst: c.Dst})
	}
	return out
}

// StringMap evaluates expr as an object or map of primitive values and
// returns each value in its string form. A missing expression yields an
// empty map.
func StringMap(expr hcl.Expression, ctx *hcl.EvalContext) (map[string]string, error) {
	out := map[string]string{}
	if expr == nil {
		return out, nil
	}
	val, diags := expr.Value(ctx)
	if diags.HasErrors() {
		return nil, diags
	}
	if val.IsNull() {
		return out, nil
	}
	ty := val.Type()
	if !ty.IsObjectType() && !ty.IsMapType() {
		return nil, fmt.Errorf("expected an object, got %s", ty.FriendlyName())
	}
	for it := val.ElementIterator(); it.Next(); {
		k, v := it.Element()
		key := k.AsString()
		if !v.Type().IsPrimitiveType() {
			return nil, fmt.Errorf("option %q: expected a primitive value, got %s", key, v.Type().FriendlyName())
		}
		s, err := convert.Convert(v, cty.String)
		if err != nil {
			return nil, fmt.Errorf("option %q: %w", key, err)
		}
		if s.IsNull() || !s.IsKnown() {
			return nil, fmt.Errorf("option %q: value is null", key)
		}
		out[key] = s.AsString()
	}
	return out, nil
}
