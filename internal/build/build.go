// Package build drives the nodes of a build graph through the configure,
// build and install phases on their build backends.
//
// Workspace layout:
//
//	workDir/
//	  <name>/<version>[/<user>/<channel>]/
//	    <configID>/          # install tree
//	      .cache.json        # written by buildsys.Cache
//	    <configID>.build/    # backend build directory
//	    <configID>.lock      # held while the node runs
package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/goplus/llpack/internal/lockedfile"
	"github.com/goplus/llpack/internal/par"
	"github.com/goplus/llpack/mod/module"
	"github.com/goplus/llpack/pkgs/buildsys"
)

// Policy decides what happens to the rest of a run once a node fails.
type Policy int

const (
	// FailFast aborts the run: nodes that have not started are skipped and
	// running backends see their context cancelled.
	FailFast Policy = iota
	// BestEffort keeps building every node whose dependencies succeeded.
	BestEffort
)

func (p Policy) String() string {
	switch p {
	case FailFast:
		return "fail-fast"
	case BestEffort:
		return "best-effort"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy parses "fail-fast" or "best-effort".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "", "fail-fast", "failfast":
		return FailFast, nil
	case "best-effort", "besteffort":
		return BestEffort, nil
	}
	return 0, fmt.Errorf("unknown build policy %q (want fail-fast or best-effort)", s)
}

// Options configures a Builder.
type Options struct {
	// WorkDir holds install and build trees of nodes without an explicit
	// InstallDir.
	WorkDir string
	// Jobs bounds the number of nodes built at once. Zero means GOMAXPROCS.
	Jobs   int
	Policy Policy

	// Stdout and Stderr receive backend output. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer
}

// Builder runs build graphs.
type Builder struct {
	opts Options
}

// NewBuilder returns a Builder.
func NewBuilder(opts Options) *Builder {
	return &Builder{opts: opts}
}

func (b *Builder) jobs() int {
	if b.opts.Jobs > 0 {
		return b.opts.Jobs
	}
	return runtime.GOMAXPROCS(0)
}

// run is the state of one Run call.
type run struct {
	b      *Builder
	cancel context.CancelFunc

	mu      sync.Mutex
	waiting map[*Node]int // unfinished dependencies per node
	first   error         // first node failure
}

// Run builds every node of g. A node starts only after all of its
// dependencies are Installed. On failure Run returns the error of the first
// node that failed, usually a *PhaseError; every node that never ran is left
// Failed with an error wrapping ErrSkipped. Install trees that were
// completed stay on disk.
func (b *Builder) Run(ctx context.Context, g *Graph) error {
	for _, n := range g.Nodes {
		if err := b.layout(n); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r := &run{b: b, cancel: cancel, waiting: make(map[*Node]int, len(g.Nodes))}

	var work par.Work[*Node]
	for _, n := range g.Nodes {
		r.waiting[n] = len(n.Deps)
		if len(n.Deps) == 0 {
			work.Add(n)
		}
	}
	work.Do(b.jobs(), func(n *Node) {
		if err := ctx.Err(); err != nil {
			n.fail(fmt.Errorf("%w: run aborted: %w", ErrSkipped, err))
			return
		}
		if err := r.node(ctx, n); err != nil {
			r.failed(n, err)
			return
		}
		for _, d := range r.released(n) {
			work.Add(d)
		}
	})

	for _, n := range g.Order() {
		if n.State() != Pending {
			continue
		}
		n.fail(skipReason(ctx, n))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.first != nil {
		return r.first
	}
	// The caller's context ended before any node could fail.
	if err := ctx.Err(); err != nil && g.Project.State() != Installed {
		return fmt.Errorf("build aborted: %w", err)
	}
	return nil
}

func skipReason(ctx context.Context, n *Node) error {
	var failed []error
	for _, d := range n.Deps {
		if d.State() == Failed {
			failed = append(failed, fmt.Errorf("dependency %v failed", d))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%w: %w", ErrSkipped, errors.Join(failed...))
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: run aborted: %w", ErrSkipped, err)
	}
	return ErrSkipped
}

func (r *run) failed(n *Node, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.first == nil {
		r.first = err
	}
	if r.b.opts.Policy == FailFast {
		r.cancel()
	}
}

// released returns the dependents of n that have no unfinished
// dependencies left.
func (r *run) released(n *Node) []*Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ready []*Node
	for _, d := range n.dependents {
		r.waiting[d]--
		if r.waiting[d] == 0 {
			ready = append(ready, d)
		}
	}
	return ready
}

// node runs every phase of n while holding its install lock.
func (r *run) node(ctx context.Context, n *Node) (err error) {
	logger := log.FromContext(ctx).With("node", n.String())

	unlock, err := lockedfile.MutexAt(n.InstallDir + ".lock").Lock()
	if err != nil {
		perr := &PhaseError{Node: n.Ref, Phase: buildsys.Configure, Err: err}
		n.fail(perr)
		return perr
	}
	defer unlock()

	req := &buildsys.Request{
		Ref:        n.Ref,
		Config:     n.Config,
		SourceDir:  n.SourceDir,
		BuildDir:   n.BuildDir,
		InstallDir: n.InstallDir,
		Deps:       n.closure(),
		Stdout:     r.b.opts.Stdout,
		Stderr:     r.b.opts.Stderr,
	}
	cached := false
	if c, ok := n.Backend.(buildsys.Checker); ok && c.Installed(req) {
		cached = true
		logger.Info("up to date", "dir", n.InstallDir)
	}

	for _, phase := range buildsys.Phases {
		switch phase {
		case buildsys.Configure:
			err = n.Transition(Configuring)
		case buildsys.Build:
			err = n.Transition(Building)
		}
		if err != nil {
			n.fail(err)
			return err
		}
		if cached {
			continue
		}
		if err := ctx.Err(); err != nil {
			perr := &PhaseError{Node: n.Ref, Phase: phase, Err: err}
			n.fail(perr)
			return perr
		}

		logger.Debug("running phase", "phase", phase)
		req.Phase = phase
		if err := n.Backend.Run(ctx, req); err != nil {
			perr := &PhaseError{Node: n.Ref, Phase: phase, Err: err}
			n.fail(perr)
			logger.Error("phase failed", "phase", phase, "err", err)
			return perr
		}
	}
	if err := n.Transition(Installed); err != nil {
		n.fail(err)
		return err
	}
	if !cached {
		logger.Info("installed", "dir", n.InstallDir)
	}
	return nil
}

// layout assigns workspace directories to n unless it already has them.
func (b *Builder) layout(n *Node) error {
	if n.InstallDir != "" {
		if n.BuildDir == "" {
			n.BuildDir = n.InstallDir + ".build"
		}
		return nil
	}
	if b.opts.WorkDir == "" {
		return errors.New("build: no work directory")
	}
	escaped, err := module.EscapePath(n.Ref)
	if err != nil {
		return err
	}
	base := filepath.Join(b.opts.WorkDir, escaped, n.Config.ID())
	n.InstallDir = base
	if n.BuildDir == "" {
		n.BuildDir = base + ".build"
	}
	return nil
}
