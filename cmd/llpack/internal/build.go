package internal

import (
	"github.com/spf13/cobra"

	"github.com/goplus/llpack/internal/build"
)

var buildCmd = &cobra.Command{
	Use:   "build [dir]",
	Short: "Install, then run the imports and package passes",
	Long: `Build does everything install does and additionally lays out the project's
distributable bundle in the package directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBuildCmd,
}

func init() {
	rootCmd.AddCommand(buildCmd)
}

func runBuildCmd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	pl, err := loadPlan(ctx, projectDir(args))
	if err != nil {
		return err
	}
	buildErr := runBuild(cmd, pl)
	if buildErr != nil && !bestEffort() {
		return buildErr
	}
	a := assembler(pl)
	if pl.Graph.Project.State() != build.Installed {
		// Only the imports pass can run without the project.
		_, err = a.Imports(ctx, pl.Graph)
		return finish(buildErr, err)
	}
	_, err = a.Assemble(ctx, pl.Graph)
	return finish(buildErr, err)
}
