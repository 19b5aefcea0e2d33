// Package pack assembles build outputs once a graph has been built: the
// imports pass stages the dependencies' runtime artifacts for development,
// and the package pass lays out the project's distributable bundle.
package pack

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/goplus/llpack/internal/build"
	"github.com/goplus/llpack/internal/dist"
	"github.com/goplus/llpack/internal/lockedfile"
)

var (
	// ErrNotInstalled is returned when the project node has not been
	// installed.
	ErrNotInstalled = errors.New("not installed")
	// ErrOverlappingRoots is returned by Assemble when the two passes would
	// write into the same tree.
	ErrOverlappingRoots = errors.New("imports and package destinations overlap")
)

// Options configures an Assembler.
type Options struct {
	// ImportDir is the destination base of the imports pass. Empty means
	// the project's build directory.
	ImportDir string
	// PackageDir is the destination base of the package pass.
	PackageDir string

	// ImportPath is the value of ${import_path}; empty means
	// dist.DefaultImportPath.
	ImportPath string
	// Cwd is the value of ${cwd}; empty means ImportDir.
	Cwd string

	// Nil rule lists select dist.ImportRules and dist.PackageRules.
	ImportRules  dist.Rules
	PackageRules dist.Rules
}

// Assembler runs the imports and package passes.
type Assembler struct {
	engine *dist.Engine
	opts   Options
}

// New returns an Assembler copying with e.
func New(e *dist.Engine, opts Options) *Assembler {
	if opts.ImportRules == nil {
		opts.ImportRules = dist.ImportRules()
	}
	if opts.PackageRules == nil {
		opts.PackageRules = dist.PackageRules()
	}
	return &Assembler{engine: e, opts: opts}
}

func (a *Assembler) importDir(g *build.Graph) string {
	if a.opts.ImportDir != "" {
		return a.opts.ImportDir
	}
	return g.Project.BuildDir
}

func (a *Assembler) vars(g *build.Graph) map[string]string {
	importPath := a.opts.ImportPath
	if importPath == "" {
		importPath = dist.DefaultImportPath
	}
	cwd := a.opts.Cwd
	if cwd == "" {
		cwd = a.importDir(g)
	}
	return map[string]string{dist.VarImportPath: importPath, dist.VarCwd: cwd}
}

// Imports copies the import rules out of every installed dependency into
// the import directory. Dependencies that are not installed are skipped.
// Each dependency copied without error moves to build.Distributed.
func (a *Assembler) Imports(ctx context.Context, g *build.Graph) (*dist.Report, error) {
	logger := log.FromContext(ctx)
	dst := a.importDir(g)
	if dst == "" {
		return nil, errors.New("imports: no destination directory")
	}
	rules := a.opts.ImportRules.Expand(a.vars(g))

	unlock, err := lockRoot(dst)
	if err != nil {
		return nil, err
	}
	defer unlock()

	total := &dist.Report{}
	for _, n := range g.Dependencies() {
		if n.State() != build.Installed {
			logger.Warn("not distributing", "node", n.String(), "state", n.State())
			continue
		}
		rep, err := a.engine.Apply(ctx, rules, n.InstallDir, dst)
		merge(total, rep)
		if err != nil {
			return total, fmt.Errorf("imports from %v: %w", n, err)
		}
		if err := n.Transition(build.Distributed); err != nil {
			return total, err
		}
		logger.Debug("imported", "node", n.String(), "files", len(rep.Copied))
	}
	logger.Info("imports done", "dir", dst, "files", len(total.Copied))
	return total, nil
}

// Package recreates the package directory, copies the package rules out of
// the project's install tree into it and moves the project to
// build.Distributed.
func (a *Assembler) Package(ctx context.Context, g *build.Graph) (*dist.Report, error) {
	p := g.Project
	if s := p.State(); s != build.Installed && s != build.Distributed {
		return nil, fmt.Errorf("package %v: %w (state %v)", p, ErrNotInstalled, s)
	}
	dst := a.opts.PackageDir
	if dst == "" {
		return nil, errors.New("package: no destination directory")
	}

	unlock, err := lockRoot(dst)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := a.engine.Clean(dst); err != nil {
		return nil, fmt.Errorf("package %v: %w", p, err)
	}
	rep, err := a.engine.Apply(ctx, a.opts.PackageRules.Expand(a.vars(g)), p.InstallDir, dst)
	if err != nil {
		return rep, fmt.Errorf("package %v: %w", p, err)
	}
	if p.State() == build.Installed {
		if err := p.Transition(build.Distributed); err != nil {
			return rep, err
		}
	}
	log.FromContext(ctx).Info("package done", "dir", dst, "files", len(rep.Copied))
	return rep, nil
}

// Result holds the reports of both passes.
type Result struct {
	Imports *dist.Report
	Package *dist.Report
}

// Assemble runs the imports and package passes concurrently. The passes
// must write to disjoint trees.
func (a *Assembler) Assemble(ctx context.Context, g *build.Graph) (*Result, error) {
	if err := a.checkRoots(g); err != nil {
		return nil, err
	}
	res := &Result{}
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		res.Imports, err = a.Imports(ctx, g)
		return err
	})
	eg.Go(func() (err error) {
		res.Package, err = a.Package(ctx, g)
		return err
	})
	return res, eg.Wait()
}

// checkRoots verifies that no destination root of one pass lies inside,
// or contains, a destination root of the other.
func (a *Assembler) checkRoots(g *build.Graph) error {
	vars := a.vars(g)
	imports := roots(a.opts.ImportRules.Expand(vars), a.importDir(g))
	pkgs := roots(a.opts.PackageRules.Expand(vars), a.opts.PackageDir)
	for _, i := range imports {
		for _, p := range pkgs {
			if within(i, p) || within(p, i) {
				return fmt.Errorf("%w: %s and %s", ErrOverlappingRoots, i, p)
			}
		}
	}
	return nil
}

func roots(rules dist.Rules, base string) []string {
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		if filepath.IsAbs(r.Dst) {
			out = append(out, filepath.Clean(r.Dst))
			continue
		}
		out = append(out, filepath.Join(base, r.Dst))
	}
	return out
}

// within reports whether path is dir or lies below it.
func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func lockRoot(dir string) (unlock func(), err error) {
	return lockedfile.MutexAt(filepath.Clean(dir) + ".lock").Lock()
}

func merge(total, rep *dist.Report) {
	if rep == nil {
		return
	}
	total.Copied = append(total.Copied, rep.Copied...)
	total.Missed = append(total.Missed, rep.Missed...)
}
