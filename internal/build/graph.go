package build

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/goplus/llpack/mod/module"
	"github.com/goplus/llpack/pkgs/buildsys"
	"github.com/goplus/llpack/profile"
)

var (
	// ErrCycle is returned by NewGraph when dependencies require each other.
	ErrCycle = errors.New("dependency cycle")
	// ErrUnknownRequire is returned by NewGraph when a dependency requires a
	// package that is not declared.
	ErrUnknownRequire = errors.New("requires undeclared package")
)

// Spec describes one node to add to a graph.
type Spec struct {
	Ref       module.Version
	Config    profile.Config
	Backend   buildsys.Backend
	SourceDir string
	// Requires names the other dependencies this one links against.
	Requires []string
}

// Graph is the set of nodes of one run. The project depends on every
// dependency; dependencies depend on what their packages require.
type Graph struct {
	Project *Node
	// Nodes holds the dependencies in declaration order followed by the
	// project.
	Nodes []*Node

	byName map[string]*Node
}

// NewGraph builds the graph for a project and its dependencies.
func NewGraph(project Spec, deps []Spec) (*Graph, error) {
	g := &Graph{byName: make(map[string]*Node, len(deps)+1)}
	add := func(s Spec) (*Node, error) {
		if s.Backend == nil {
			return nil, fmt.Errorf("%v: no build backend", s.Ref)
		}
		if _, dup := g.byName[s.Ref.Name]; dup {
			return nil, fmt.Errorf("%v: duplicate package name", s.Ref)
		}
		n := &Node{
			Ref:       s.Ref,
			Config:    s.Config,
			Backend:   s.Backend,
			SourceDir: s.SourceDir,
		}
		g.byName[s.Ref.Name] = n
		g.Nodes = append(g.Nodes, n)
		return n, nil
	}

	for _, s := range deps {
		if _, err := add(s); err != nil {
			return nil, err
		}
	}
	for i, s := range deps {
		n := g.Nodes[i]
		for _, name := range s.Requires {
			d, ok := g.byName[name]
			if !ok {
				return nil, fmt.Errorf("%v %w %q", s.Ref, ErrUnknownRequire, name)
			}
			if !slices.Contains(n.Deps, d) {
				n.Deps = append(n.Deps, d)
				d.dependents = append(d.dependents, n)
			}
		}
	}
	if err := g.checkCycles(); err != nil {
		return nil, err
	}

	p, err := add(project)
	if err != nil {
		return nil, err
	}
	p.project = true
	p.Deps = slices.Clone(g.Nodes[:len(g.Nodes)-1])
	for _, d := range p.Deps {
		d.dependents = append(d.dependents, p)
	}
	g.Project = p
	return g, nil
}

// Node returns the node named name, or nil.
func (g *Graph) Node(name string) *Node {
	return g.byName[name]
}

// Dependencies returns every node except the project.
func (g *Graph) Dependencies() []*Node {
	return g.Nodes[:len(g.Nodes)-1]
}

// Order returns the nodes with every node after all of its dependencies.
// Ties keep declaration order.
func (g *Graph) Order() []*Node {
	order := make([]*Node, 0, len(g.Nodes))
	done := map[*Node]bool{}
	var visit func(n *Node)
	visit = func(n *Node) {
		if done[n] {
			return
		}
		done[n] = true
		for _, d := range n.Deps {
			visit(d)
		}
		order = append(order, n)
	}
	for _, n := range g.Nodes {
		visit(n)
	}
	return order
}

func (g *Graph) checkCycles() error {
	const (
		unvisited = iota
		visiting
		visited
	)
	color := map[*Node]int{}
	var stack []*Node
	var visit func(n *Node) error
	visit = func(n *Node) error {
		switch color[n] {
		case visiting:
			i := slices.Index(stack, n)
			names := make([]string, 0, len(stack)-i+1)
			for _, s := range stack[i:] {
				names = append(names, s.Name())
			}
			names = append(names, n.Name())
			return fmt.Errorf("%w: %s", ErrCycle, strings.Join(names, " -> "))
		case visited:
			return nil
		}
		color[n] = visiting
		stack = append(stack, n)
		for _, d := range n.Deps {
			if err := visit(d); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = visited
		return nil
	}
	for _, n := range g.Nodes {
		if err := visit(n); err != nil {
			return err
		}
	}
	return nil
}
