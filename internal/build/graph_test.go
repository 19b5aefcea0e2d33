package build

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/goplus/llpack/mod/module"
	"github.com/goplus/llpack/pkgs/buildsys"
)

var nop = buildsys.Func(func(ctx context.Context, req *buildsys.Request) error { return nil })

// spec creates a Spec named name at version 1.0 requiring the given names.
func spec(name string, b buildsys.Backend, requires ...string) Spec {
	return Spec{
		Ref:      module.Version{Name: name, Version: "1.0"},
		Backend:  b,
		Requires: requires,
	}
}

// names returns the node names joined by spaces.
func names(nodes []*Node) string {
	var s []string
	for _, n := range nodes {
		s = append(s, n.Name())
	}
	return strings.Join(s, " ")
}

func TestGraphOrder(t *testing.T) {
	t.Run("single dependency", func(t *testing.T) {
		g, err := NewGraph(spec("app", nop), []Spec{spec("A", nop)})
		require.NoError(t, err)
		require.Equal(t, "A app", names(g.Order()))
		require.True(t, g.Project.IsProject())
		require.Equal(t, "A", names(g.Project.Deps))
	})

	t.Run("linear chain", func(t *testing.T) {
		// A -> B -> C
		g, err := NewGraph(spec("app", nop), []Spec{
			spec("A", nop, "B"),
			spec("B", nop, "C"),
			spec("C", nop),
		})
		require.NoError(t, err)
		require.Equal(t, "C B A app", names(g.Order()))
	})

	t.Run("diamond", func(t *testing.T) {
		// A -> B -> C, A -> D -> C
		g, err := NewGraph(spec("app", nop), []Spec{
			spec("A", nop, "B", "D"),
			spec("B", nop, "C"),
			spec("C", nop),
			spec("D", nop, "C"),
		})
		require.NoError(t, err)
		require.Equal(t, "C B D A app", names(g.Order()))
		require.Equal(t, "A B C D", names(g.Dependencies()))
		require.Same(t, g.Node("C"), g.Node("B").Deps[0])
	})

	t.Run("no dependencies", func(t *testing.T) {
		g, err := NewGraph(spec("app", nop), nil)
		require.NoError(t, err)
		require.Equal(t, "app", names(g.Order()))
		require.Empty(t, g.Dependencies())
	})
}

func TestNewGraphErrors(t *testing.T) {
	tests := []struct {
		name string
		deps []Spec
		proj Spec
		is   error
	}{
		{name: "unknown require", deps: []Spec{spec("A", nop, "zlib")}, is: ErrUnknownRequire},
		{name: "cycle", deps: []Spec{spec("A", nop, "B"), spec("B", nop, "C"), spec("C", nop, "A")}, is: ErrCycle},
		{name: "self", deps: []Spec{spec("A", nop, "A")}, is: ErrCycle},
		{name: "duplicate", deps: []Spec{spec("A", nop), spec("A", nop)}},
		{name: "project clash", deps: []Spec{spec("app", nop)}},
		{name: "no backend", deps: []Spec{spec("A", nil)}},
		{name: "project without backend", proj: spec("app", nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proj := tt.proj
			if proj.Ref.Name == "" {
				proj = spec("app", nop)
			}
			_, err := NewGraph(proj, tt.deps)
			require.Error(t, err)
			if tt.is != nil {
				require.True(t, errors.Is(err, tt.is), "error %v is not %v", err, tt.is)
			}
		})
	}
}

func TestCycleMessage(t *testing.T) {
	_, err := NewGraph(spec("app", nop), []Spec{spec("A", nop, "B"), spec("B", nop, "A")})
	require.ErrorIs(t, err, ErrCycle)
	require.Contains(t, err.Error(), "A -> B -> A")
}

func TestNodeTransition(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{Pending, Configuring, true},
		{Configuring, Building, true},
		{Building, Installed, true},
		{Installed, Distributed, true},
		{Pending, Failed, true},
		{Configuring, Failed, true},
		{Building, Failed, true},
		{Pending, Building, false},
		{Pending, Installed, false},
		{Configuring, Installed, false},
		{Installed, Failed, false},
		{Installed, Configuring, false},
		{Failed, Pending, false},
		{Failed, Configuring, false},
		{Distributed, Failed, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"-"+tt.to.String(), func(t *testing.T) {
			n := &Node{Ref: module.Version{Name: "x", Version: "1"}}
			n.state.Store(int32(tt.from))
			err := n.Transition(tt.to)
			if tt.ok {
				require.NoError(t, err)
				require.Equal(t, tt.to, n.State())
				return
			}
			require.ErrorIs(t, err, ErrInvalidTransition)
			require.Equal(t, tt.from, n.State())
		})
	}
}
