// Package autotools drives GNU Autotools projects: configure, make and
// make install.
package autotools

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/goplus/llpack/pkgs/buildsys"
)

// Backend runs an Autotools project out of tree in the request's build
// directory. The zero value is ready to use.
type Backend struct {
	// Make overrides the make executable.
	Make string
	// Jobs, when positive, is passed to make as -j.
	Jobs int
	// Env holds extra variables for every command, e.g. CC or CFLAGS.
	Env map[string]string
}

var _ buildsys.Backend = (*Backend)(nil)

// New returns a Backend running make with the given parallelism.
func New(jobs int) *Backend {
	return &Backend{Jobs: jobs}
}

// Run executes one phase.
func (b *Backend) Run(ctx context.Context, req *buildsys.Request) error {
	var (
		name string
		args []string
	)
	switch req.Phase {
	case buildsys.Configure:
		if err := os.MkdirAll(req.BuildDir, 0o755); err != nil {
			return err
		}
		name = filepath.Join(req.SourceDir, "configure")
		args = configureArgs(req)
	case buildsys.Build:
		name = b.make()
		if b.Jobs > 0 {
			args = append(args, fmt.Sprintf("-j%d", b.Jobs))
		}
	case buildsys.Install:
		name, args = b.make(), []string{"install"}
	default:
		return fmt.Errorf("autotools: unsupported phase %v", req.Phase)
	}

	env := buildsys.DepEnv(req.Deps, nil)
	maps.Copy(env, b.Env)
	cmd := buildsys.Command(ctx, req, req.BuildDir, name, args, env)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("autotools %v: %w", req.Phase, err)
	}
	return nil
}

func (b *Backend) make() string {
	if b.Make != "" {
		return b.Make
	}
	return "make"
}

// configureArgs maps boolean options to --enable-X / --disable-X and the
// remaining options to --with-X=value. Underscores in option names become
// dashes.
func configureArgs(req *buildsys.Request) []string {
	args := []string{"--prefix=" + req.InstallDir}
	for _, k := range slices.Sorted(maps.Keys(req.Config.Options)) {
		v := req.Config.Options[k]
		name := strings.ReplaceAll(k, "_", "-")
		if on, ok := buildsys.BoolOption(v); ok {
			if on {
				args = append(args, "--enable-"+name)
			} else {
				args = append(args, "--disable-"+name)
			}
			continue
		}
		args = append(args, "--with-"+name+"="+v)
	}
	return args
}
