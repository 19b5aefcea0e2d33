// Package cmake drives CMake projects through the configure, build and
// install phases.
package cmake

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/goplus/llpack/pkgs/buildsys"
	"github.com/goplus/llpack/profile"
)

type defineValue struct {
	value    string
	typeName string
}

// Backend runs the cmake executable. The zero value is ready to use.
type Backend struct {
	// Generator selects the CMake generator, e.g. "Ninja".
	Generator string
	// Toolchain is an optional CMAKE_TOOLCHAIN_FILE.
	Toolchain string
	// Exe overrides the cmake executable.
	Exe string
}

var _ buildsys.Backend = (*Backend)(nil)

// New returns a Backend using the given generator.
func New(generator string) *Backend {
	return &Backend{Generator: generator}
}

// Run executes one phase.
func (b *Backend) Run(ctx context.Context, req *buildsys.Request) error {
	var args []string
	switch req.Phase {
	case buildsys.Configure:
		if err := os.MkdirAll(req.BuildDir, 0o755); err != nil {
			return err
		}
		args = b.configureArgs(req)
	case buildsys.Build:
		args = []string{"--build", req.BuildDir}
		if bt := req.Config.Settings[profile.BuildType]; bt != "" {
			args = append(args, "--config", bt)
		}
	case buildsys.Install:
		args = []string{"--install", req.BuildDir, "--prefix", req.InstallDir}
		if bt := req.Config.Settings[profile.BuildType]; bt != "" {
			args = append(args, "--config", bt)
		}
	default:
		return fmt.Errorf("cmake: unsupported phase %v", req.Phase)
	}
	cmd := buildsys.Command(ctx, req, req.BuildDir, b.exe(), args, buildsys.DepEnv(req.Deps, nil))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("cmake %v: %w", req.Phase, err)
	}
	return nil
}

func (b *Backend) exe() string {
	if b.Exe != "" {
		return b.Exe
	}
	return "cmake"
}

func (b *Backend) configureArgs(req *buildsys.Request) []string {
	args := []string{"-S", req.SourceDir, "-B", req.BuildDir}
	if b.Generator != "" {
		args = append(args, "-G", b.Generator)
	}
	return append(args, definesArgs(b.defines(req))...)
}

// defines maps the effective configuration onto cache entries. Boolean
// options become BOOL entries; the "shared" option also drives
// BUILD_SHARED_LIBS.
func (b *Backend) defines(req *buildsys.Request) map[string]defineValue {
	defs := map[string]defineValue{}
	str := func(k, v string) { defs[k] = defineValue{value: v, typeName: "STRING"} }
	boolean := func(k string, v bool) {
		if v {
			defs[k] = defineValue{value: "ON", typeName: "BOOL"}
			return
		}
		defs[k] = defineValue{value: "OFF", typeName: "BOOL"}
	}

	for k, v := range req.Config.Options {
		if on, ok := buildsys.BoolOption(v); ok {
			boolean(k, on)
			if k == "shared" {
				boolean("BUILD_SHARED_LIBS", on)
			}
			continue
		}
		str(k, v)
	}
	if req.InstallDir != "" {
		str("CMAKE_INSTALL_PREFIX", req.InstallDir)
	}
	if b.Toolchain != "" {
		str("CMAKE_TOOLCHAIN_FILE", b.Toolchain)
	}
	if bt := req.Config.Settings[profile.BuildType]; bt != "" {
		str("CMAKE_BUILD_TYPE", bt)
	}
	return defs
}

func definesArgs(defs map[string]defineValue) []string {
	args := make([]string, 0, len(defs))
	for _, k := range slices.Sorted(maps.Keys(defs)) {
		def := defs[k]
		if def.typeName != "" {
			args = append(args, "-D"+k+":"+def.typeName+"="+def.value)
			continue
		}
		args = append(args, "-D"+k+"="+def.value)
	}
	return args
}
