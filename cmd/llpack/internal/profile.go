package internal

import (
	"github.com/spf13/cobra"

	"github.com/goplus/llpack/profile"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Print the effective profile",
	Long: `Profile prints the host profile, or the --profile file with unset axes
taken from the host, in TOML.`,
	Args: cobra.NoArgs,
	RunE: runProfile,
}

func init() {
	rootCmd.AddCommand(profileCmd)
}

func runProfile(cmd *cobra.Command, args []string) error {
	p, err := loadProfile()
	if err != nil {
		return err
	}
	data, err := profile.Format(p)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
