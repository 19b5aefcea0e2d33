package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/spf13/afero"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/goplus/llpack/internal/recipe"
	"github.com/goplus/llpack/mod/module"
	"github.com/goplus/llpack/pkgs/mod/versions"
)

// ManifestFile is the package manifest name inside a version directory.
const ManifestFile = "package.hcl"

// Dir is an Index over a directory tree laid out as
//
//	root/
//	  <name>/
//	    <version>/[<user>/<channel>/]
//	      package.hcl
//	      src/
//
// A manifest looks like:
//
//	backend         = "cmake"
//	source          = "src"
//	requires        = ["zlib"]
//	options         = { shared = [true, false], renderer = ["gl", "vk"] }
//	default_options = { shared = false }
type Dir struct {
	fs   afero.Fs
	root string
}

// NewDir returns an index rooted at root on fs.
func NewDir(fs afero.Fs, root string) *Dir {
	return &Dir{fs: fs, root: root}
}

type manifest struct {
	Backend        string         `hcl:"backend,optional"`
	Source         string         `hcl:"source,optional"`
	Requires       []string       `hcl:"requires,optional"`
	Options        hcl.Expression `hcl:"options,optional"`
	DefaultOptions hcl.Expression `hcl:"default_options,optional"`
}

// Lookup picks the highest version directory of ref.Name that satisfies
// ref.Version and has a manifest for ref's user and channel.
func (d *Dir) Lookup(ctx context.Context, ref module.Version) (*Package, error) {
	c, err := versions.Parse(ref.Version)
	if err != nil {
		return nil, err
	}

	var cands []string
	if exact, ok := c.Exact(); ok {
		cands = []string{exact}
	} else {
		entries, err := afero.ReadDir(d.fs, filepath.Join(d.root, ref.Name))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() {
				cands = append(cands, e.Name())
			}
		}
	}

	var have []string
	manifests := map[string]string{}
	for _, v := range cands {
		pinned := ref
		pinned.Version = v
		escaped, err := module.EscapePath(pinned)
		if err != nil {
			continue
		}
		path := filepath.Join(d.root, escaped, ManifestFile)
		if ok, _ := afero.Exists(d.fs, path); ok {
			have = append(have, v)
			manifests[v] = path
		}
	}
	v, ok := c.Max(have)
	if !ok {
		return nil, notFound(ref, have)
	}

	pinned := ref
	pinned.Version = v
	log.FromContext(ctx).Debug("catalog lookup", "ref", ref, "version", v)
	return d.load(pinned, manifests[v])
}

func (d *Dir) load(ref module.Version, path string) (*Package, error) {
	src, err := afero.ReadFile(d.fs, path)
	if err != nil {
		return nil, err
	}
	file, diags := hclparse.NewParser().ParseHCL(src, path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, diags)
	}
	ctx := recipe.EvalContext()
	var m manifest
	if diags := gohcl.DecodeBody(file.Body, ctx, &m); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", path, diags)
	}

	opts, err := optionValues(m.Options, ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: options: %w", path, err)
	}
	defaults, err := recipe.StringMap(m.DefaultOptions, ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: default_options: %w", path, err)
	}

	source := m.Source
	if source == "" {
		source = "src"
	}
	if !filepath.IsAbs(source) {
		source = filepath.Join(filepath.Dir(path), source)
	}
	return &Package{
		Ref:       ref,
		Backend:   m.Backend,
		SourceDir: source,
		Options:   opts,
		Defaults:  defaults,
		Requires:  m.Requires,
	}, nil
}

// optionValues evaluates an object whose values are lists of primitives.
func optionValues(expr hcl.Expression, ctx *hcl.EvalContext) (map[string][]string, error) {
	out := map[string][]string{}
	val, diags := expr.Value(ctx)
	if diags.HasErrors() {
		return nil, diags
	}
	if val.IsNull() {
		return out, nil
	}
	if ty := val.Type(); !ty.IsObjectType() && !ty.IsMapType() {
		return nil, fmt.Errorf("expected an object, got %s", ty.FriendlyName())
	}
	for it := val.ElementIterator(); it.Next(); {
		k, list := it.Element()
		key := k.AsString()
		if !list.CanIterateElements() || list.Type().IsObjectType() || list.Type().IsMapType() {
			return nil, fmt.Errorf("option %q: expected a list of values", key)
		}
		values := []string{}
		for li := list.ElementIterator(); li.Next(); {
			_, v := li.Element()
			s, err := convert.Convert(v, cty.String)
			if err != nil || s.IsNull() {
				return nil, fmt.Errorf("option %q: values must be primitive", key)
			}
			values = append(values, s.AsString())
		}
		out[key] = values
	}
	return out, nil
}
