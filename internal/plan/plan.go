// Package plan turns a project recipe, a platform profile and a package index
// into a build graph ready to run: it pins every dependency, resolves the
// effective configurations and stages the project's sources.
package plan

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"

	"github.com/goplus/llpack/internal/build"
	"github.com/goplus/llpack/internal/catalog"
	"github.com/goplus/llpack/internal/dist"
	"github.com/goplus/llpack/internal/pack"
	"github.com/goplus/llpack/internal/recipe"
	"github.com/goplus/llpack/internal/resolve"
	"github.com/goplus/llpack/mod/module"
	"github.com/goplus/llpack/pkgs/buildsys"
	"github.com/goplus/llpack/profile"
)

// Options configures New.
type Options struct {
	Recipe  *recipe.Recipe
	Profile *profile.Profile
	Index   catalog.Index
	// Backends maps the backend names used by the recipe and the index to
	// implementations. Dependency backends are wrapped in a buildsys.Cache;
	// the project's own backend is not, so edited sources always rebuild.
	Backends buildsys.Registry

	// WorkDir receives the staged project sources under src/.
	WorkDir string
	// FS holds the recipe directory and the work dir. Nil means the OS.
	FS afero.Fs
}

// Plan is the outcome of New.
type Plan struct {
	Recipe *recipe.Recipe
	Result *resolve.Result
	Graph  *build.Graph
	// Packages holds the pinned index entry of every dependency by name.
	Packages map[string]*catalog.Package
}

// New pins the recipe's dependencies in the index, resolves their
// configurations and builds the graph. Dependencies a package requires must
// themselves be declared by the recipe.
func New(ctx context.Context, opts Options) (*Plan, error) {
	r := opts.Recipe
	if r == nil {
		return nil, errors.New("plan: no recipe")
	}
	if opts.Index == nil {
		return nil, errors.New("plan: no package index")
	}
	logger := log.FromContext(ctx)

	pl := &Plan{Recipe: r, Packages: make(map[string]*catalog.Package, len(r.Requires))}
	deps := make([]resolve.Dependency, 0, len(r.Requires))
	for _, req := range r.Requires {
		pkg, err := opts.Index.Lookup(ctx, req.Ref)
		if err != nil {
			return nil, fmt.Errorf("require %v: %w", req.Ref, err)
		}
		logger.Debug("pinned", "require", req.Ref, "version", pkg.Ref.Version)
		pl.Packages[req.Ref.Name] = pkg
		deps = append(deps, resolve.Dependency{
			Name:     req.Ref.Name,
			Exposed:  pkg.Options,
			Defaults: pkg.Defaults,
			Options:  req.Options,
		})
	}

	res, err := resolve.Resolve(opts.Profile, resolve.Project{
		Name:           r.Name,
		DefaultOptions: r.DefaultOptions,
	}, deps)
	if err != nil {
		return nil, err
	}
	pl.Result = res
	for _, w := range res.Warnings {
		logger.Warn("configuration", "dependency", w.Dependency, "key", w.Key, "reason", w.Reason)
	}

	backends := &cached{reg: opts.Backends, wrapped: map[string]buildsys.Backend{}}
	specs := make([]build.Spec, 0, len(r.Requires))
	for _, req := range r.Requires {
		pkg := pl.Packages[req.Ref.Name]
		b, err := backends.lookup(pkg.Backend)
		if err != nil {
			return nil, fmt.Errorf("%v: %w", pkg.Ref, err)
		}
		cfg, _ := res.Config(req.Ref.Name)
		specs = append(specs, build.Spec{
			Ref:       pkg.Ref,
			Config:    cfg,
			Backend:   b,
			SourceDir: pkg.SourceDir,
			Requires:  pkg.Requires,
		})
	}

	b, err := opts.Backends.Lookup(r.Backend)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", r.Ref(), err)
	}
	src, err := stage(ctx, opts, r)
	if err != nil {
		return nil, err
	}
	g, err := build.NewGraph(build.Spec{
		Ref:       r.Ref(),
		Config:    res.Project,
		Backend:   b,
		SourceDir: src,
	}, specs)
	if err != nil {
		return nil, err
	}
	pl.Graph = g
	return pl, nil
}

// PackOptions returns assembler options carrying the recipe's copy rules.
func (pl *Plan) PackOptions(importPath, packageDir string) pack.Options {
	return pack.Options{
		ImportPath:   importPath,
		PackageDir:   packageDir,
		ImportRules:  pl.Recipe.ImportRules(),
		PackageRules: pl.Recipe.PackageRules(),
	}
}

type cached struct {
	reg     buildsys.Registry
	wrapped map[string]buildsys.Backend
}

func (c *cached) lookup(name string) (buildsys.Backend, error) {
	if b, ok := c.wrapped[name]; ok {
		return b, nil
	}
	b, err := c.reg.Lookup(name)
	if err != nil {
		return nil, err
	}
	cb := buildsys.NewCache(b)
	c.wrapped[name] = cb
	return cb, nil
}

// SourceDir returns where the sources of the project ref are staged.
func SourceDir(workDir string, ref module.Version) (string, error) {
	escaped, err := module.EscapePath(ref)
	if err != nil {
		return "", err
	}
	return filepath.Join(workDir, "src", escaped), nil
}

// stage copies the files matching the recipe's source patterns into a fresh
// tree and returns its path. Without patterns the recipe directory is the
// source tree.
func stage(ctx context.Context, opts Options, r *recipe.Recipe) (string, error) {
	if len(r.Sources) == 0 {
		return r.Dir, nil
	}
	if opts.WorkDir == "" {
		return "", errors.New("plan: no work directory to stage sources")
	}
	dst, err := SourceDir(opts.WorkDir, r.Ref())
	if err != nil {
		return "", err
	}
	fsys := opts.FS
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if err := fsys.RemoveAll(dst); err != nil {
		return "", err
	}
	if err := fsys.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	rules := make(dist.Rules, len(r.Sources))
	for i, p := range r.Sources {
		rules[i] = dist.Rule{Pattern: p, Src: ".", Dst: "."}
	}
	rep, err := dist.New(fsys, fsys).Apply(ctx, rules, r.Dir, dst)
	if err != nil {
		return "", fmt.Errorf("stage sources: %w", err)
	}
	log.FromContext(ctx).Debug("staged sources", "dir", dst, "files", len(rep.Copied))
	return dst, nil
}
