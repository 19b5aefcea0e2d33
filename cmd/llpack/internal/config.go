package internal

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config [dir]",
	Short: "Print the resolved configuration of the project and its dependencies",
	Long: `Config resolves the project in dir (default ".") against the profile and
prints the effective configurations and warnings as JSON. Nothing is built.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	pl, err := loadPlan(cmd.Context(), projectDir(args))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(pl.Result)
}
