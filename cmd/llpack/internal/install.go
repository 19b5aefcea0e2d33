package internal

import "github.com/spf13/cobra"

var installCmd = &cobra.Command{
	Use:   "install [dir]",
	Short: "Build the dependencies and the project, then run the imports pass",
	Long: `Install builds every dependency of the project in dir (default ".") and the
project itself, then copies the dependencies' runtime artifacts into the
project's build directory according to the import rules.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInstall,
}

func init() {
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	pl, err := loadPlan(ctx, projectDir(args))
	if err != nil {
		return err
	}
	buildErr := runBuild(cmd, pl)
	if buildErr != nil && !bestEffort() {
		return buildErr
	}
	_, err = assembler(pl).Imports(ctx, pl.Graph)
	return finish(buildErr, err)
}
