package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/goplus/llpack/internal/lockedfile"
	"github.com/goplus/llpack/pkgs/buildsys"
	"github.com/goplus/llpack/profile"
)

type event struct {
	node  string
	phase buildsys.Phase
}

// recorder is a fake backend that records every phase it runs.
type recorder struct {
	mu     sync.Mutex
	events []event
	deps   map[string][]string

	// fail makes the named node fail in the given phase.
	fail map[string]buildsys.Phase
	// block makes the named node wait for cancellation in Configure.
	block map[string]bool
}

func (r *recorder) Run(ctx context.Context, req *buildsys.Request) error {
	name := req.Ref.Name
	if r.block[name] && req.Phase == buildsys.Configure {
		<-ctx.Done()
		return ctx.Err()
	}
	r.mu.Lock()
	r.events = append(r.events, event{name, req.Phase})
	if r.deps == nil {
		r.deps = map[string][]string{}
	}
	r.deps[name] = req.Deps
	r.mu.Unlock()
	if p, ok := r.fail[name]; ok && p == req.Phase {
		return errors.New("boom")
	}
	return nil
}

func (r *recorder) index(e event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Index(r.events, e)
}

func (r *recorder) ran(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.ContainsFunc(r.events, func(e event) bool { return e.node == name })
}

func newBuilder(t *testing.T, policy Policy) *Builder {
	return NewBuilder(Options{WorkDir: t.TempDir(), Jobs: 4, Policy: policy})
}

func TestRunDependencyOrder(t *testing.T) {
	r := &recorder{}
	g, err := NewGraph(spec("app", r), []Spec{
		spec("A", r, "B", "D"),
		spec("B", r, "C"),
		spec("C", r),
		spec("D", r, "C"),
		spec("E", r),
	})
	require.NoError(t, err)

	require.NoError(t, newBuilder(t, FailFast).Run(context.Background(), g))

	for _, n := range g.Nodes {
		require.Equal(t, Installed, n.State(), "node %v", n)
		require.NoError(t, n.Err())

		prev := -1
		for _, p := range buildsys.Phases {
			i := r.index(event{n.Name(), p})
			require.Greater(t, i, prev, "%v: %v out of order", n, p)
			prev = i
		}
		configure := r.index(event{n.Name(), buildsys.Configure})
		for _, d := range n.Deps {
			require.Greater(t, configure, r.index(event{d.Name(), buildsys.Install}),
				"%v configured before %v was installed", n, d)
		}
	}

	// Requests carry the install trees of transitive dependencies.
	require.Equal(t, []string{g.Node("B").InstallDir, g.Node("D").InstallDir, g.Node("C").InstallDir}, r.deps["A"])
	require.Len(t, r.deps["app"], 5)
	require.Empty(t, r.deps["E"])
}

func TestRunBoundedJobs(t *testing.T) {
	var cur, peak atomic.Int32
	b := buildsys.Func(func(ctx context.Context, req *buildsys.Request) error {
		c := cur.Add(1)
		for {
			p := peak.Load()
			if c <= p || peak.CompareAndSwap(p, c) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		cur.Add(-1)
		return nil
	})
	var deps []Spec
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		deps = append(deps, spec(name, b))
	}
	g, err := NewGraph(spec("app", b), deps)
	require.NoError(t, err)

	builder := NewBuilder(Options{WorkDir: t.TempDir(), Jobs: 2})
	require.NoError(t, builder.Run(context.Background(), g))
	require.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRunFailFast(t *testing.T) {
	r := &recorder{
		fail:  map[string]buildsys.Phase{"A": buildsys.Build},
		block: map[string]bool{"C": true},
	}
	g, err := NewGraph(spec("app", r), []Spec{
		spec("A", r),
		spec("B", r, "A"),
		spec("C", r),
	})
	require.NoError(t, err)

	err = newBuilder(t, FailFast).Run(context.Background(), g)

	var perr *PhaseError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "A", perr.Node.Name)
	require.Equal(t, buildsys.Build, perr.Phase)
	require.EqualError(t, err, "A/1.0: build: boom")

	require.Equal(t, Failed, g.Node("A").State())
	require.ErrorIs(t, g.Node("A").Err(), perr.Err)
	require.Equal(t, Failed, g.Node("B").State())
	require.ErrorIs(t, g.Node("B").Err(), ErrSkipped)
	require.Equal(t, Failed, g.Node("C").State())
	require.ErrorIs(t, g.Node("C").Err(), context.Canceled)
	require.Equal(t, Failed, g.Project.State())
	require.ErrorIs(t, g.Project.Err(), ErrSkipped)

	require.False(t, r.ran("B"))
	require.False(t, r.ran("app"))
	// Install of A never ran.
	require.Equal(t, -1, r.index(event{"A", buildsys.Install}))
}

func TestRunBestEffort(t *testing.T) {
	r := &recorder{fail: map[string]buildsys.Phase{"A": buildsys.Configure}}
	g, err := NewGraph(spec("app", r), []Spec{
		spec("A", r),
		spec("B", r, "A"),
		spec("C", r),
		spec("D", r, "C"),
	})
	require.NoError(t, err)

	err = newBuilder(t, BestEffort).Run(context.Background(), g)

	var perr *PhaseError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "A", perr.Node.Name)
	require.Equal(t, buildsys.Configure, perr.Phase)

	require.Equal(t, Failed, g.Node("A").State())
	require.Equal(t, Failed, g.Node("B").State())
	require.ErrorIs(t, g.Node("B").Err(), ErrSkipped)
	require.Equal(t, Installed, g.Node("C").State())
	require.Equal(t, Installed, g.Node("D").State())
	require.Equal(t, Failed, g.Project.State())
	require.ErrorIs(t, g.Project.Err(), ErrSkipped)

	require.DirExists(t, filepath.Dir(g.Node("C").InstallDir))
}

func TestRunRecordsTransitionFailure(t *testing.T) {
	r := &recorder{}
	g, err := NewGraph(spec("app", r), []Spec{
		spec("A", r),
		spec("B", r, "A"),
	})
	require.NoError(t, err)
	// A node already past Pending cannot be configured again.
	require.NoError(t, g.Node("A").Transition(Configuring))

	err = newBuilder(t, BestEffort).Run(context.Background(), g)
	require.ErrorIs(t, err, ErrInvalidTransition)

	require.Equal(t, Failed, g.Node("A").State())
	require.ErrorIs(t, g.Node("A").Err(), ErrInvalidTransition)
	require.Equal(t, Failed, g.Node("B").State())
	require.ErrorIs(t, g.Node("B").Err(), ErrSkipped)
	require.Equal(t, Failed, g.Project.State())
	require.False(t, r.ran("A"))
}

func TestRunCancelled(t *testing.T) {
	r := &recorder{}
	g, err := NewGraph(spec("app", r), []Spec{spec("A", r)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = newBuilder(t, FailFast).Run(ctx, g)
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, g.Node("A").Err(), ErrSkipped)
	require.False(t, r.ran("A"))
	for _, n := range g.Nodes {
		require.Equal(t, Failed, n.State())
	}
}

func TestRunCached(t *testing.T) {
	var calls atomic.Int32
	cache := buildsys.NewCache(buildsys.Func(func(ctx context.Context, req *buildsys.Request) error {
		calls.Add(1)
		return os.MkdirAll(req.InstallDir, 0o755)
	}))
	work := t.TempDir()
	cfg := profile.Config{Settings: profile.Settings{profile.OS: "linux"}, Options: profile.Options{"shared": "false"}}

	newGraph := func() *Graph {
		a := spec("A", cache)
		a.Config = cfg
		g, err := NewGraph(spec("app", cache), []Spec{a})
		require.NoError(t, err)
		return g
	}
	builder := NewBuilder(Options{WorkDir: work, Jobs: 1})

	require.NoError(t, builder.Run(context.Background(), newGraph()))
	require.Equal(t, int32(6), calls.Load())

	g := newGraph()
	require.NoError(t, builder.Run(context.Background(), g))
	require.Equal(t, int32(6), calls.Load(), "second run invoked the backend")
	for _, n := range g.Nodes {
		require.Equal(t, Installed, n.State())
	}
}

func TestLayout(t *testing.T) {
	work := t.TempDir()
	g, err := NewGraph(spec("app", nop), []Spec{spec("zlib", nop)})
	require.NoError(t, err)
	preset := filepath.Join(t.TempDir(), "app")
	g.Project.InstallDir = preset

	require.NoError(t, NewBuilder(Options{WorkDir: work}).Run(context.Background(), g))

	z := g.Node("zlib")
	require.Equal(t, filepath.Join(work, "zlib", "1.0", z.Config.ID()), z.InstallDir)
	require.Equal(t, z.InstallDir+".build", z.BuildDir)
	require.Equal(t, preset, g.Project.InstallDir)
	require.Equal(t, preset+".build", g.Project.BuildDir)
	require.FileExists(t, z.InstallDir+".lock")

	require.Error(t, NewBuilder(Options{}).Run(context.Background(), &Graph{Nodes: []*Node{{Ref: z.Ref}}}))
}

func TestRunWaitsForLock(t *testing.T) {
	g, err := NewGraph(spec("app", nop), nil)
	require.NoError(t, err)
	g.Project.InstallDir = filepath.Join(t.TempDir(), "app")

	unlock, err := lockedfile.MutexAt(g.Project.InstallDir + ".lock").Lock()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- NewBuilder(Options{}).Run(context.Background(), g) }()

	select {
	case err := <-done:
		t.Fatalf("Run() returned while the install tree was locked: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	require.Equal(t, Pending, g.Project.State())
	unlock()
	require.NoError(t, <-done)
	require.Equal(t, Installed, g.Project.State())
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]Policy{"": FailFast, "fail-fast": FailFast, "Best-Effort": BestEffort} {
		got, err := ParsePolicy(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParsePolicy("yolo")
	require.Error(t, err)
	require.Equal(t, "best-effort", BestEffort.String())
}
