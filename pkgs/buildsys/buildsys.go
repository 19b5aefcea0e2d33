// Package buildsys defines the contract between the lifecycle runner and the
// external build tools that compile a package.
//
// A Backend is invoked once per Phase for every node of the build graph. It
// receives the node's effective configuration and the install trees of the
// node's dependencies, and blocks until the phase finishes.
package buildsys

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/goplus/llpack/mod/module"
	"github.com/goplus/llpack/profile"
)

// Phase is one step of the build lifecycle.
type Phase int

const (
	Configure Phase = iota
	Build
	Install
)

// Phases lists the lifecycle phases in execution order.
var Phases = []Phase{Configure, Build, Install}

func (p Phase) String() string {
	switch p {
	case Configure:
		return "configure"
	case Build:
		return "build"
	case Install:
		return "install"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Request describes a single phase invocation.
type Request struct {
	Phase  Phase
	Ref    module.Version
	Config profile.Config

	SourceDir  string
	BuildDir   string
	InstallDir string

	// Deps holds the install directories of the node's dependencies, in
	// dependency order.
	Deps []string

	Stdout io.Writer
	Stderr io.Writer
}

// Backend runs lifecycle phases for one kind of project (CMake, Autotools).
// Run must block until the phase completes and must honor ctx cancellation.
type Backend interface {
	Run(ctx context.Context, req *Request) error
}

// Func adapts an ordinary function to a Backend.
type Func func(ctx context.Context, req *Request) error

func (f Func) Run(ctx context.Context, req *Request) error {
	return f(ctx, req)
}

// Checker is implemented by backends that can tell whether a request's
// install tree is already complete, so every phase can be skipped.
type Checker interface {
	Installed(req *Request) bool
}

// ErrUnknownBackend is returned by Registry.Lookup for unregistered names.
var ErrUnknownBackend = errors.New("unknown build backend")

// Registry maps backend names used in recipes to implementations.
type Registry map[string]Backend

// Lookup returns the backend registered as name.
func (r Registry) Lookup(name string) (Backend, error) {
	b, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (have %v)", ErrUnknownBackend, name, slices.Sorted(maps.Keys(r)))
	}
	return b, nil
}
