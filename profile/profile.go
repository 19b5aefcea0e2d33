// Package profile defines the platform profile that governs a build: the
// values of the fixed platform axes plus unscoped default option values, and
// the effective configuration resolved for a single package.
package profile

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"os"
	"runtime"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Axis names one platform setting category.
type Axis string

const (
	OS        Axis = "os"
	Compiler  Axis = "compiler"
	BuildType Axis = "build_type"
	Arch      Axis = "arch"
)

// Axes lists every platform axis, sorted by name.
var Axes = []Axis{Arch, BuildType, Compiler, OS}

// ErrUnknownAxis is returned when a profile sets a setting that is not one
// of Axes.
var ErrUnknownAxis = errors.New("unknown setting")

// Settings holds platform axis values.
type Settings map[Axis]string

// Options holds option values keyed by option name.
type Options map[string]string

// Profile holds platform axis values and default option values. A Profile
// must not be modified once it has been handed to the resolver.
type Profile struct {
	Settings Settings
	Options  Options
}

type profileFile struct {
	Settings map[string]string `toml:"settings"`
	Options  map[string]any    `toml:"options"`
}

// Parse parses a TOML profile:
//
//	[settings]
//	os = "linux"
//	arch = "x64"
//
//	[options]
//	shared = false
//
// Option values of any scalar type are stored as their string form.
func Parse(data []byte) (*Profile, error) {
	var f profileFile
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, err
	}

	p := &Profile{Settings: Settings{}, Options: Options{}}
	for k, v := range f.Settings {
		axis := Axis(k)
		if !slices.Contains(Axes, axis) {
			return nil, fmt.Errorf("%w %q", ErrUnknownAxis, k)
		}
		p.Settings[axis] = v
	}
	for k, v := range f.Options {
		switch v.(type) {
		case map[string]any, []any:
			return nil, fmt.Errorf("option %q: value must be a scalar", k)
		}
		p.Options[k] = fmt.Sprint(v)
	}
	return p, nil
}

// Load reads and parses the TOML profile at path.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	return p, nil
}

// Format renders p in the TOML form read by Parse.
func Format(p *Profile) ([]byte, error) {
	f := struct {
		Settings map[string]string `toml:"settings"`
		Options  map[string]string `toml:"options"`
	}{map[string]string{}, map[string]string{}}
	if p != nil {
		for axis, v := range p.Settings {
			f.Settings[string(axis)] = v
		}
		maps.Copy(f.Options, p.Options)
	}
	return toml.Marshal(f)
}

// Host returns a profile describing the running platform.
func Host() *Profile {
	arch := runtime.GOARCH
	switch arch {
	case "amd64":
		arch = "x64"
	case "386":
		arch = "x86"
	}
	osName, compiler := runtime.GOOS, "gcc"
	switch osName {
	case "darwin":
		osName, compiler = "macos", "apple-clang"
	case "windows":
		compiler = "msvc"
	case "freebsd", "openbsd":
		compiler = "clang"
	}
	return &Profile{
		Settings: Settings{
			OS:        osName,
			Arch:      arch,
			Compiler:  compiler,
			BuildType: "Release",
		},
		Options: Options{},
	}
}

// Complete returns a copy of p in which every axis missing from p is taken
// from base. Options are copied from p unchanged.
func (p *Profile) Complete(base *Profile) *Profile {
	out := p.Clone()
	if base == nil {
		return out
	}
	for _, axis := range Axes {
		if _, ok := out.Settings[axis]; !ok {
			if v, ok := base.Settings[axis]; ok {
				out.Settings[axis] = v
			}
		}
	}
	return out
}

// Clone returns a deep copy of p.
func (p *Profile) Clone() *Profile {
	out := &Profile{Settings: Settings{}, Options: Options{}}
	if p == nil {
		return out
	}
	maps.Copy(out.Settings, p.Settings)
	maps.Copy(out.Options, p.Options)
	return out
}

// Missing returns the axes p does not set.
func (p *Profile) Missing() []Axis {
	var missing []Axis
	for _, axis := range Axes {
		if p.Settings[axis] == "" {
			missing = append(missing, axis)
		}
	}
	return missing
}

// Key returns the settings joined with "-" in axis name order, e.g.
// "x64-Release-gcc-linux". Axes the profile does not set are skipped.
func (s Settings) Key() string {
	var parts []string
	for _, axis := range Axes {
		if v, ok := s[axis]; ok {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, "-")
}
