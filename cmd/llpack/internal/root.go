package internal

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/goplus/llpack/internal/env"
)

var (
	v          = env.New()
	settings   *env.Settings
	verbose    bool
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "llpack",
	Short: "llpack builds native dependencies and packages native projects",
	Long: `llpack reads a project recipe (llpack.hcl), resolves one configuration per
dependency against a platform profile, builds every dependency through its
configure, build and install phases, and then stages runtime artifacts for
development (imports) and lays out the distributable bundle (package).`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// flagKeys binds persistent flags to setting keys.
var flagKeys = map[string]string{
	"jobs":        env.KeyJobs,
	"policy":      env.KeyPolicy,
	"profile":     env.KeyProfile,
	"import-path": env.KeyImportPath,
	"work-dir":    env.KeyWorkDir,
	"package-dir": env.KeyPackageDir,
	"index":       env.KeyIndex,
	"log-format":  env.KeyLogFormat,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging and stream build output")
	f.StringVar(&configFile, "config", "", "Config file (default <UserConfigDir>/llpack/config.toml)")
	f.IntP("jobs", "j", 0, "Number of packages built at once (0 means one per CPU)")
	f.String("policy", "fail-fast", "Failure policy: fail-fast or best-effort")
	f.StringP("profile", "p", "", "Profile file; unset axes are taken from the host")
	f.String("import-path", "bin", "Destination of the import rules")
	f.String("work-dir", "", "Workspace for build and install trees (default <UserCacheDir>/.llpack)")
	f.String("package-dir", "", "Package destination (default <project>/package)")
	f.String("index", "", "Package index directory (default <work-dir>/index)")
	f.String("log-format", "text", "Log format: text, json or logfmt")
	if err := bindFlags(v, f); err != nil {
		panic(err)
	}
}

// bindFlags binds every flag of flagKeys to its setting key in v.
func bindFlags(v *viper.Viper, f *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := f.Lookup(name)
		if flag == nil {
			return fmt.Errorf("no flag %q", name)
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return err
		}
	}
	return nil
}

// setup loads the settings once and puts the logger into the command's
// context.
func setup(cmd *cobra.Command, args []string) error {
	path := configFile
	var pathErr error
	if path == "" {
		path, pathErr = env.ConfigFile()
	}
	s, err := env.Load(v, path)
	if err != nil {
		return err
	}
	level := s.LogLevel
	if verbose {
		level = "debug"
	}
	logger, err := env.NewLogger(cmd.ErrOrStderr(), level, s.LogFormat)
	if err != nil {
		return err
	}
	if pathErr != nil {
		logger.Debug("no default config file", "err", pathErr)
	}
	settings = s
	cmd.SetContext(log.WithContext(cmd.Context(), logger))
	return nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		log.Fatal(err)
	}
}
