// Package catalog is the host package index: it maps a dependency reference
// to a pinned package version, the options that package exposes and the
// source tree to build it from.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/goplus/llpack/mod/module"
	"github.com/goplus/llpack/pkgs/mod/versions"
)

// ErrNotFound is returned when no package version satisfies a reference.
var ErrNotFound = errors.New("package not found")

// Package describes one pinned package version.
type Package struct {
	// Ref carries the exact version chosen for the lookup.
	Ref     module.Version
	Backend string
	// SourceDir is the package's source tree.
	SourceDir string
	// Options lists the options the package exposes, each with its allowed
	// values. An empty list accepts any value.
	Options map[string][]string
	// Defaults holds the package's own option defaults.
	Defaults map[string]string
	// Requires names other packages this one links against.
	Requires []string
}

// Exposes reports whether the package declares option key.
func (p *Package) Exposes(key string) bool {
	_, ok := p.Options[key]
	return ok
}

// Index resolves references to packages.
type Index interface {
	Lookup(ctx context.Context, ref module.Version) (*Package, error)
}

// Memory is an in-memory Index, mainly for tests.
type Memory struct {
	mu   sync.RWMutex
	pkgs map[string][]*Package
}

// NewMemory returns an index holding pkgs.
func NewMemory(pkgs ...*Package) *Memory {
	m := &Memory{pkgs: map[string][]*Package{}}
	for _, p := range pkgs {
		m.Add(p)
	}
	return m
}

// Add registers p. p.Ref.Version must be an exact version.
func (m *Memory) Add(p *Package) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pkgs[p.Ref.Name] = append(m.pkgs[p.Ref.Name], p)
}

// Lookup returns the highest version of ref.Name that satisfies ref.Version
// and carries the same user and channel.
func (m *Memory) Lookup(ctx context.Context, ref module.Version) (*Package, error) {
	c, err := versions.Parse(ref.Version)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var cands []string
	byVersion := map[string]*Package{}
	for _, p := range m.pkgs[ref.Name] {
		if p.Ref.User == ref.User && p.Ref.Channel == ref.Channel {
			cands = append(cands, p.Ref.Version)
			byVersion[p.Ref.Version] = p
		}
	}
	v, ok := c.Max(cands)
	if !ok {
		return nil, notFound(ref, cands)
	}
	return byVersion[v], nil
}

func notFound(ref module.Version, have []string) error {
	if len(have) == 0 {
		return fmt.Errorf("%v: %w", ref, ErrNotFound)
	}
	slices.SortFunc(have, versions.Compare)
	return fmt.Errorf("%v: %w (have %v)", ref, ErrNotFound, have)
}
