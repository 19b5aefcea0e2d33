package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/goplus/llpack/internal/build"
	"github.com/goplus/llpack/internal/catalog"
	"github.com/goplus/llpack/internal/dist"
	"github.com/goplus/llpack/internal/pack"
	"github.com/goplus/llpack/internal/plan"
	"github.com/goplus/llpack/internal/recipe"
	"github.com/goplus/llpack/pkgs/buildsys"
	"github.com/goplus/llpack/pkgs/buildsys/autotools"
	"github.com/goplus/llpack/pkgs/buildsys/cmake"
	"github.com/goplus/llpack/profile"
)

// projectDir returns the project directory named by args, or ".".
func projectDir(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}

func loadProfile() (*profile.Profile, error) {
	host := profile.Host()
	if settings.Profile == "" {
		return host, nil
	}
	p, err := profile.Load(settings.Profile)
	if err != nil {
		return nil, err
	}
	return p.Complete(host), nil
}

func indexDir() string {
	if settings.Index != "" {
		return settings.Index
	}
	return filepath.Join(settings.WorkDir, "index")
}

func backends() buildsys.Registry {
	return buildsys.Registry{
		"cmake":     cmake.New(""),
		"autotools": autotools.New(settings.Jobs),
	}
}

// loadPlan reads the recipe in dir and plans its build.
func loadPlan(ctx context.Context, dir string) (*plan.Plan, error) {
	r, err := recipe.Load(dir)
	if err != nil {
		return nil, err
	}
	p, err := loadProfile()
	if err != nil {
		return nil, err
	}
	return plan.New(ctx, plan.Options{
		Recipe:   r,
		Profile:  p,
		Index:    catalog.NewDir(afero.NewOsFs(), indexDir()),
		Backends: backends(),
		WorkDir:  settings.WorkDir,
	})
}

// runBuild builds every node of pl. Under best-effort it returns the first
// failure only after the whole graph has been attempted; the caller still
// distributes what was installed.
func runBuild(cmd *cobra.Command, pl *plan.Plan) error {
	policy, err := build.ParsePolicy(settings.Policy)
	if err != nil {
		return err
	}
	var stdout, stderr io.Writer
	if verbose {
		stdout, stderr = cmd.OutOrStdout(), cmd.ErrOrStderr()
	}
	b := build.NewBuilder(build.Options{
		WorkDir: filepath.Join(settings.WorkDir, "pkgs"),
		Jobs:    settings.Jobs,
		Policy:  policy,
		Stdout:  stdout,
		Stderr:  stderr,
	})
	err = b.Run(cmd.Context(), pl.Graph)
	if err != nil {
		reportFailures(cmd.Context(), pl.Graph)
	}
	return err
}

// bestEffort reports whether packaging should proceed past build failures.
func bestEffort() bool {
	p, err := build.ParsePolicy(settings.Policy)
	return err == nil && p == build.BestEffort
}

// reportFailures logs every node that failed in a phase. Skipped nodes are
// left out.
func reportFailures(ctx context.Context, g *build.Graph) {
	logger := log.FromContext(ctx)
	for _, n := range g.Order() {
		var perr *build.PhaseError
		if errors.As(n.Err(), &perr) {
			logger.Error("build failed", "node", n.String(), "phase", perr.Phase, "err", perr.Err)
		}
	}
}

func packageDir(pl *plan.Plan) string {
	if settings.PackageDir != "" {
		return settings.PackageDir
	}
	return filepath.Join(pl.Recipe.Dir, "package")
}

func assembler(pl *plan.Plan) *pack.Assembler {
	return pack.New(dist.NewOS(), pl.PackOptions(settings.ImportPath, packageDir(pl)))
}

// finish combines the build error with the error of the packaging step that
// ran after it.
func finish(buildErr, packErr error) error {
	switch {
	case buildErr != nil && packErr != nil:
		return fmt.Errorf("%w (packaging also failed: %v)", buildErr, packErr)
	case buildErr != nil:
		return buildErr
	}
	return packErr
}
