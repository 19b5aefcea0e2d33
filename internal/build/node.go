package build

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/goplus/llpack/mod/module"
	"github.com/goplus/llpack/pkgs/buildsys"
	"github.com/goplus/llpack/profile"
)

// State is the lifecycle state of a Node.
type State int32

const (
	Pending State = iota
	Configuring
	Building
	Installed
	Distributed
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Configuring:
		return "configuring"
	case Building:
		return "building"
	case Installed:
		return "installed"
	case Distributed:
		return "distributed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// next lists the states each state may move to.
var next = map[State][]State{
	Pending:     {Configuring, Failed},
	Configuring: {Building, Failed},
	Building:    {Installed, Failed},
	Installed:   {Distributed},
}

// CanTransition reports whether a node in state from may move to state to.
func CanTransition(from, to State) bool {
	for _, s := range next[from] {
		if s == to {
			return true
		}
	}
	return false
}

var (
	// ErrSkipped marks nodes that never ran because a dependency failed or
	// the run was aborted.
	ErrSkipped = errors.New("skipped")
	// ErrInvalidTransition is returned by Node.Transition.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// PhaseError reports a failed lifecycle phase.
type PhaseError struct {
	Node  module.Version
	Phase buildsys.Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%v: %v: %v", e.Node, e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// Node is one package of the build graph: a dependency or the project.
type Node struct {
	Ref     module.Version
	Config  profile.Config
	Backend buildsys.Backend

	SourceDir  string
	BuildDir   string
	InstallDir string

	// Deps are the nodes this node links against.
	Deps []*Node

	project    bool
	dependents []*Node

	state atomic.Int32
	mu    sync.Mutex
	err   error
}

// Name returns the package name.
func (n *Node) Name() string { return n.Ref.Name }

func (n *Node) String() string { return n.Ref.String() }

// IsProject reports whether n is the project node.
func (n *Node) IsProject() bool { return n.project }

// State returns the current state.
func (n *Node) State() State { return State(n.state.Load()) }

// Err returns the reason the node failed, or nil.
func (n *Node) Err() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.err
}

// Transition moves n to state to.
func (n *Node) Transition(to State) error {
	for {
		from := n.State()
		if !CanTransition(from, to) {
			return fmt.Errorf("%v: %w %v -> %v", n, ErrInvalidTransition, from, to)
		}
		if n.state.CompareAndSwap(int32(from), int32(to)) {
			return nil
		}
	}
}

// fail moves n to Failed and records err. It is a no-op for nodes that
// already reached a terminal state.
func (n *Node) fail(err error) bool {
	if n.Transition(Failed) != nil {
		return false
	}
	n.mu.Lock()
	n.err = err
	n.mu.Unlock()
	return true
}

// closure returns the install directories of every node n depends on,
// directly or not, nearest first.
func (n *Node) closure() []string {
	var dirs []string
	seen := map[*Node]bool{}
	queue := append([]*Node(nil), n.Deps...)
	for len(queue) > 0 {
		d := queue[0]
		queue = queue[1:]
		if seen[d] {
			continue
		}
		seen[d] = true
		dirs = append(dirs, d.InstallDir)
		queue = append(queue, d.Deps...)
	}
	return dirs
}
