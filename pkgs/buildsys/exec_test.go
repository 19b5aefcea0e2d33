package buildsys

import (
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
)

func TestDepEnv(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	for _, dir := range []string{
		filepath.Join(first, "include"),
		filepath.Join(first, "lib", "pkgconfig"),
		filepath.Join(second, "lib"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	inherited := map[string]string{"CMAKE_PREFIX_PATH": "/opt/prefix"}
	env := DepEnv([]string{first, second}, func(k string) string { return inherited[k] })

	sep := string(os.PathListSeparator)
	want := map[string]string{
		"PKG_CONFIG_PATH":    filepath.Join(first, "lib", "pkgconfig"),
		"CMAKE_PREFIX_PATH":  first + sep + second + sep + "/opt/prefix",
		"CMAKE_INCLUDE_PATH": filepath.Join(first, "include"),
		"CMAKE_LIBRARY_PATH": filepath.Join(first, "lib") + sep + filepath.Join(second, "lib"),
	}
	for k, v := range want {
		if got := env[k]; got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}

	if runtime.GOOS == "windows" {
		if got := env["INCLUDE"]; got != filepath.Join(first, "include") {
			t.Errorf("INCLUDE = %q", got)
		}
		return
	}
	if got := env["CPPFLAGS"]; got != "-I"+filepath.Join(first, "include") {
		t.Errorf("CPPFLAGS = %q", got)
	}
	ldflags := strings.Fields(env["LDFLAGS"])
	if len(ldflags) != 2 {
		t.Fatalf("LDFLAGS = %q, want two entries", env["LDFLAGS"])
	}
}

func TestDepEnvNoDeps(t *testing.T) {
	if env := DepEnv(nil, nil); len(env) != 0 {
		t.Errorf("DepEnv(nil) = %v, want empty", env)
	}
}

func TestMergeEnv(t *testing.T) {
	got := MergeEnv([]string{"B=1", "A=2", "broken"}, map[string]string{"B": "3", "C": "4"})
	want := []string{"A=2", "B=3", "C=4"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MergeEnv() = %v, want %v", got, want)
	}
}

func TestBoolOption(t *testing.T) {
	tests := []struct {
		in       string
		value    bool
		wantBool bool
	}{
		{"true", true, true},
		{"False", false, true},
		{"ON", true, true},
		{"off", false, true},
		{"1", false, false},
		{"static", false, false},
	}
	for _, tt := range tests {
		v, ok := BoolOption(tt.in)
		if v != tt.value || ok != tt.wantBool {
			t.Errorf("BoolOption(%q) = %v, %v, want %v, %v", tt.in, v, ok, tt.value, tt.wantBool)
		}
	}
}
