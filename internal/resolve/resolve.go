// Package resolve merges a platform profile, project-wide option defaults and
// per-dependency overrides into one effective configuration per dependency.
//
// Option sources, lowest precedence first:
//
//  1. the package's own defaults
//  2. profile options (unscoped)
//  3. project default_options without a scope
//  4. project default_options scoped as "pkg:key"
//  5. the options of the dependency's require declaration
//
// Unscoped values reach only dependencies that expose the key. Scoped values
// and require options always apply to the dependency they name; when the
// package does not expose the key a Warning is recorded.
package resolve

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/goplus/llpack/profile"
)

var (
	// ErrDuplicateDependency is returned when two dependencies share a name.
	ErrDuplicateDependency = errors.New("duplicate dependency")
	// ErrInvalidScope is returned for scoped keys with an empty package or
	// option name.
	ErrInvalidScope = errors.New("invalid scoped option")
)

// Warning reasons.
const (
	ReasonNotExposed   = "option not exposed by package"
	ReasonUnused       = "option not exposed by any dependency"
	ReasonUnknownScope = "scope names an undeclared dependency"
	ReasonBadValue     = "value not among the values the package declares"
)

// Project carries the project-level inputs.
type Project struct {
	Name string
	// DefaultOptions keys are either plain option names or "pkg:key".
	DefaultOptions map[string]string
}

// Dependency is one declared dependency together with what its package
// exposes.
type Dependency struct {
	Name string
	// Exposed lists the options the package declares with their allowed
	// values. An empty value list accepts anything.
	Exposed map[string][]string
	// Defaults are the package's own option defaults.
	Defaults map[string]string
	// Options are the overrides from the require declaration.
	Options map[string]string
}

// Warning is a non-fatal configuration problem.
type Warning struct {
	Dependency string `json:"dependency,omitempty"`
	Key        string `json:"key"`
	Reason     string `json:"reason"`
}

func (w Warning) String() string {
	if w.Dependency == "" {
		return fmt.Sprintf("%s: %s", w.Key, w.Reason)
	}
	return fmt.Sprintf("%s:%s: %s", w.Dependency, w.Key, w.Reason)
}

// Result holds the effective configurations.
type Result struct {
	Project      profile.Config            `json:"project"`
	Dependencies map[string]profile.Config `json:"dependencies"`
	Warnings     []Warning                 `json:"warnings,omitempty"`
}

// Config returns the effective configuration of dependency name.
func (r *Result) Config(name string) (profile.Config, bool) {
	c, ok := r.Dependencies[name]
	return c, ok
}

// SplitScope splits "pkg:key" into its parts. ok is false for unscoped keys.
func SplitScope(key string) (pkg, name string, ok bool) {
	return strings.Cut(key, ":")
}

// Resolve computes the effective configuration of the project and every
// dependency. It does not modify its inputs.
func Resolve(p *profile.Profile, project Project, deps []Dependency) (*Result, error) {
	if p == nil {
		p = &profile.Profile{}
	}

	byName := make(map[string]*Dependency, len(deps))
	for i := range deps {
		d := &deps[i]
		if d.Name == "" {
			return nil, errors.New("dependency with an empty name")
		}
		if _, dup := byName[d.Name]; dup {
			return nil, fmt.Errorf("%w %q", ErrDuplicateDependency, d.Name)
		}
		byName[d.Name] = d
	}

	unscoped := map[string]string{}
	scoped := map[string]map[string]string{}
	for k, v := range project.DefaultOptions {
		pkg, key, ok := SplitScope(k)
		if !ok {
			unscoped[k] = v
			continue
		}
		if pkg == "" || key == "" {
			return nil, fmt.Errorf("%w %q", ErrInvalidScope, k)
		}
		if scoped[pkg] == nil {
			scoped[pkg] = map[string]string{}
		}
		scoped[pkg][key] = v
	}

	w := warnings{}
	res := &Result{
		Project: profile.Config{
			Settings: maps.Clone(p.Settings),
			Options:  profile.Options{},
		},
		Dependencies: make(map[string]profile.Config, len(deps)),
	}
	maps.Copy(res.Project.Options, p.Options)
	maps.Copy(res.Project.Options, unscoped)
	if res.Project.Settings == nil {
		res.Project.Settings = profile.Settings{}
	}

	for _, d := range deps {
		opts := profile.Options{}
		maps.Copy(opts, d.Defaults)
		for _, layer := range []map[string]string{p.Options, unscoped} {
			for k, v := range layer {
				if d.exposes(k) {
					opts[k] = v
				}
			}
		}
		for _, layer := range []map[string]string{scoped[d.Name], d.Options} {
			for k, v := range layer {
				if !d.exposes(k) {
					w.add(d.Name, k, ReasonNotExposed)
				}
				opts[k] = v
			}
		}
		for k, v := range opts {
			if allowed := d.Exposed[k]; len(allowed) > 0 && !slices.Contains(allowed, v) {
				w.add(d.Name, k, ReasonBadValue)
			}
		}
		res.Dependencies[d.Name] = profile.Config{
			Settings: maps.Clone(res.Project.Settings),
			Options:  opts,
		}
	}

	for _, layer := range []map[string]string{p.Options, unscoped} {
		for k := range layer {
			if !slices.ContainsFunc(deps, func(d Dependency) bool { return d.exposes(k) }) {
				w.add("", k, ReasonUnused)
			}
		}
	}
	for pkg, opts := range scoped {
		if _, ok := byName[pkg]; !ok {
			for k := range opts {
				w.add(pkg, k, ReasonUnknownScope)
			}
		}
	}
	res.Warnings = w.sorted()
	return res, nil
}

func (d *Dependency) exposes(key string) bool {
	_, ok := d.Exposed[key]
	return ok
}

type warnings map[Warning]struct{}

func (w warnings) add(dep, key, reason string) {
	w[Warning{Dependency: dep, Key: key, Reason: reason}] = struct{}{}
}

func (w warnings) sorted() []Warning {
	return slices.SortedFunc(maps.Keys(w), func(a, b Warning) int {
		return cmp.Or(
			cmp.Compare(a.Dependency, b.Dependency),
			cmp.Compare(a.Key, b.Key),
			cmp.Compare(a.Reason, b.Reason),
		)
	})
}
