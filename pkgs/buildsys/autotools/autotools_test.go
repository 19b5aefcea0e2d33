package autotools

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"

	"github.com/goplus/llpack/mod/module"
	"github.com/goplus/llpack/pkgs/buildsys"
	"github.com/goplus/llpack/profile"
)

func TestConfigureArgs(t *testing.T) {
	req := &buildsys.Request{
		InstallDir: "/install",
		Config: profile.Config{
			Options: profile.Options{"shared": "false", "with_iconv": "true", "ssl": "openssl"},
		},
	}
	want := []string{"--prefix=/install", "--disable-shared", "--with-ssl=openssl", "--enable-with-iconv"}
	if got := configureArgs(req); !reflect.DeepEqual(got, want) {
		t.Errorf("configureArgs() = %q, want %q", got, want)
	}
}

func TestConfigureBuildInstallE2E(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("autotools projects need a POSIX shell")
	}
	for _, bin := range []string{"make", "cc", "ar"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not found in PATH", bin)
		}
	}

	tmp := t.TempDir()
	sourceDir, err := filepath.Abs(filepath.Join("testdata", "project"))
	if err != nil {
		t.Fatalf("abs source dir: %v", err)
	}
	installDir := filepath.Join(tmp, "install")
	buildDir := filepath.Join(tmp, "build")

	var out bytes.Buffer
	b := &Backend{Env: map[string]string{"CUSTOM": "VAL"}}
	for _, phase := range buildsys.Phases {
		req := &buildsys.Request{
			Phase:      phase,
			Ref:        module.Version{Name: "dummy", Version: "1.0.0"},
			SourceDir:  sourceDir,
			BuildDir:   buildDir,
			InstallDir: installDir,
			Config:     profile.Config{Options: profile.Options{"foo": "true"}},
			Stdout:     &out,
			Stderr:     &out,
		}
		if err := b.Run(context.Background(), req); err != nil {
			t.Fatalf("%v: %v\n%s", phase, err, out.String())
		}
	}

	data, err := os.ReadFile(filepath.Join(buildDir, "config.log"))
	if err != nil {
		t.Fatalf("read config.log: %v", err)
	}
	content := string(data)
	for _, snippet := range []string{
		"CUSTOM=VAL",
		"PREFIX=" + installDir,
		"ARG=--enable-foo",
	} {
		if !strings.Contains(content, snippet) {
			t.Fatalf("config.log missing %q:\n%s", snippet, content)
		}
	}

	for _, f := range []string{
		filepath.Join(installDir, "lib", "libdummy.a"),
		filepath.Join(installDir, "include", "dummy.h"),
	} {
		if _, err := os.Stat(f); err != nil {
			t.Fatalf("installed file missing: %v", err)
		}
	}
}
