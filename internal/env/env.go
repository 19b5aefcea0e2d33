// Package env holds the process-wide settings of llpack: the workspace
// location, the import path override and the scheduler and logging knobs.
//
// Settings are read once at start-up from, in increasing precedence, built-in
// defaults, an optional TOML config file, LLPACK_* environment variables and
// command line flags bound by the caller.
package env

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load, e.g.
// LLPACK_IMPORT_PATH.
const EnvPrefix = "LLPACK"

// Setting keys.
const (
	KeyImportPath = "import_path"
	KeyJobs       = "jobs"
	KeyPolicy     = "policy"
	KeyLogLevel   = "log_level"
	KeyLogFormat  = "log_format"
	KeyWorkDir    = "work_dir"
	KeyPackageDir = "package_dir"
	KeyProfile    = "profile"
	KeyIndex      = "index"
	KeyIndexURL   = "index_url"
)

// Settings is the decoded view of the settings.
type Settings struct {
	// ImportPath is the destination of the import rules, relative to the
	// imports root.
	ImportPath string `mapstructure:"import_path"`
	Jobs       int    `mapstructure:"jobs"`
	Policy     string `mapstructure:"policy"`
	LogLevel   string `mapstructure:"log_level"`
	LogFormat  string `mapstructure:"log_format"`
	WorkDir    string `mapstructure:"work_dir"`
	PackageDir string `mapstructure:"package_dir"`
	Profile    string `mapstructure:"profile"`
	// Index is the root of the package index.
	Index string `mapstructure:"index"`
	// IndexURL is the git remote the index is synced from.
	IndexURL string `mapstructure:"index_url"`
}

// WorkDir returns the default workspace directory.
func WorkDir() (string, error) {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userCacheDir, ".llpack"), nil
}

// ConfigFile returns the default location of the optional config file.
func ConfigFile() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "llpack", "config.toml"), nil
}

// New returns a viper instance with every key defaulted and bound to its
// LLPACK_* environment variable.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyImportPath, "bin")
	v.SetDefault(KeyJobs, 0)
	v.SetDefault(KeyPolicy, "fail-fast")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyWorkDir, "")
	v.SetDefault(KeyPackageDir, "")
	v.SetDefault(KeyProfile, "")
	v.SetDefault(KeyIndex, "")
	v.SetDefault(KeyIndexURL, "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file at path, if it exists, and decodes the settings.
// An empty path skips the file. An empty work dir is replaced by WorkDir.
func Load(v *viper.Viper, path string) (*Settings, error) {
	if path != "" {
		switch _, err := os.Stat(path); {
		case err == nil:
			v.SetConfigFile(path)
			v.SetConfigType("toml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("config %s: %w", path, err)
			}
		case !errors.Is(err, fs.ErrNotExist):
			return nil, err
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	if s.ImportPath == "" {
		s.ImportPath = "bin"
	}
	if s.Jobs < 0 {
		return nil, fmt.Errorf("jobs must not be negative, got %d", s.Jobs)
	}
	if s.WorkDir == "" {
		dir, err := WorkDir()
		if err != nil {
			return nil, err
		}
		s.WorkDir = dir
	}
	return &s, nil
}

// NewLogger returns a logger writing to w at the given level in one of the
// "text", "json" or "logfmt" formats.
func NewLogger(w io.Writer, level, format string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	var f log.Formatter
	switch format {
	case "", "text":
		f = log.TextFormatter
	case "json":
		f = log.JSONFormatter
	case "logfmt":
		f = log.LogfmtFormatter
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return log.NewWithOptions(w, log.Options{
		Level:     lvl,
		Formatter: f,
		Prefix:    "llpack",
	}), nil
}
