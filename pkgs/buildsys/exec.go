package buildsys

import (
	"context"
	"io"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
)

// Command returns an exec.Cmd for name running in dir, wired to the request's
// output writers. env overrides entries of the current process environment;
// the process environment itself is never modified.
func Command(ctx context.Context, req *Request, dir, name string, args []string, env map[string]string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = writerOr(req.Stdout)
	cmd.Stderr = writerOr(req.Stderr)
	if len(env) > 0 {
		cmd.Env = MergeEnv(os.Environ(), env)
	}
	return cmd
}

func writerOr(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

// DepEnv returns the environment that makes the given dependency install
// trees visible to CMake, pkg-config and the compiler. Only directories that
// exist are added. Earlier dependencies take precedence over later ones,
// and all of them over values inherited from lookup.
func DepEnv(deps []string, lookup func(string) string) map[string]string {
	if lookup == nil {
		lookup = os.Getenv
	}
	env := map[string]string{}
	prepend := func(key, value string) {
		cur, ok := env[key]
		if !ok {
			cur = lookup(key)
		}
		if cur == "" {
			env[key] = value
			return
		}
		env[key] = value + string(os.PathListSeparator) + cur
	}
	appendFlag := func(key, flag string) {
		cur, ok := env[key]
		if !ok {
			cur = lookup(key)
		}
		env[key] = strings.TrimSpace(cur + " " + flag)
	}

	// Walk in reverse so that the first dependency ends up in front.
	for _, dir := range slices.Backward(deps) {
		includeDir := filepath.Join(dir, "include")
		libDir := filepath.Join(dir, "lib")
		pkgconfigDir := filepath.Join(libDir, "pkgconfig")

		if isDir(pkgconfigDir) {
			prepend("PKG_CONFIG_PATH", pkgconfigDir)
		}
		if isDir(dir) {
			prepend("CMAKE_PREFIX_PATH", dir)
		}
		if isDir(includeDir) {
			prepend("CMAKE_INCLUDE_PATH", includeDir)
		}
		if isDir(libDir) {
			prepend("CMAKE_LIBRARY_PATH", libDir)
		}

		if runtime.GOOS == "windows" {
			if isDir(includeDir) {
				prepend("INCLUDE", includeDir)
			}
			if isDir(libDir) {
				prepend("LIB", libDir)
			}
			continue
		}
		if isDir(includeDir) {
			appendFlag("CPPFLAGS", "-I"+includeDir)
		}
		if isDir(libDir) {
			appendFlag("LDFLAGS", "-L"+libDir)
		}
	}
	return env
}

// MergeEnv overlays override on base, a list of "key=value" entries, and
// returns the result sorted by key.
func MergeEnv(base []string, override map[string]string) []string {
	envMap := make(map[string]string, len(base)+len(override))
	for _, kv := range base {
		if k, v, ok := strings.Cut(kv, "="); ok {
			envMap[k] = v
		}
	}
	maps.Copy(envMap, override)
	out := make([]string, 0, len(envMap))
	for _, k := range slices.Sorted(maps.Keys(envMap)) {
		out = append(out, k+"="+envMap[k])
	}
	return out
}

// BoolOption reports whether v is a boolean option value and its value.
func BoolOption(v string) (value, ok bool) {
	switch strings.ToLower(v) {
	case "true", "on":
		return true, true
	case "false", "off":
		return false, true
	}
	return false, false
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
