package profile

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    *Profile
		wantErr bool
	}{
		{
			name: "settings and options",
			data: `
[settings]
os = "linux"
arch = "x64"

[options]
shared = false
jobs = 4
name = "cake"
`,
			want: &Profile{
				Settings: Settings{OS: "linux", Arch: "x64"},
				Options:  Options{"shared": "false", "jobs": "4", "name": "cake"},
			},
		},
		{
			name: "empty",
			data: ``,
			want: &Profile{Settings: Settings{}, Options: Options{}},
		},
		{
			name:    "unknown axis",
			data:    "[settings]\nos_version = \"12\"\n",
			wantErr: true,
		},
		{
			name:    "unknown section",
			data:    "[env]\nCC = \"gcc\"\n",
			wantErr: true,
		},
		{
			name:    "table option",
			data:    "[options]\nshared = { a = 1 }\n",
			wantErr: true,
		},
		{
			name:    "invalid toml",
			data:    "[settings\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseUnknownAxisError(t *testing.T) {
	_, err := Parse([]byte("[settings]\nos_version = \"12\"\n"))
	if !errors.Is(err, ErrUnknownAxis) {
		t.Fatalf("Parse() error = %v, want ErrUnknownAxis", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "linux.toml")
	if err := os.WriteFile(path, []byte("[settings]\nos = \"linux\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if p.Settings[OS] != "linux" {
		t.Errorf("Settings[os] = %q, want linux", p.Settings[OS])
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("Load() of a missing file succeeded")
	}
}

func TestFormat(t *testing.T) {
	p := &Profile{
		Settings: Settings{OS: "linux", Arch: "x64"},
		Options:  Options{"shared": "false"},
	}
	data, err := Format(p)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse(Format()) error = %v\n%s", err, data)
	}
	if !reflect.DeepEqual(got, p) {
		t.Errorf("Parse(Format()) = %+v, want %+v", got, p)
	}
}

func TestComplete(t *testing.T) {
	p := &Profile{Settings: Settings{OS: "linux", Arch: "x64"}, Options: Options{"shared": "false"}}
	got := p.Complete(Host())

	if len(got.Missing()) != 0 {
		t.Fatalf("Complete() left axes unset: %v", got.Missing())
	}
	if got.Settings[OS] != "linux" || got.Settings[Arch] != "x64" {
		t.Errorf("Complete() overrode explicit axes: %v", got.Settings)
	}
	if got.Options["shared"] != "false" {
		t.Errorf("Complete() dropped options: %v", got.Options)
	}
	// The receiver is never modified.
	if len(p.Settings) != 2 {
		t.Errorf("Complete() mutated the receiver: %v", p.Settings)
	}
}

func TestSettingsKey(t *testing.T) {
	s := Settings{OS: "linux", Arch: "x64", Compiler: "gcc", BuildType: "Release"}
	if got, want := s.Key(), "x64-Release-gcc-linux"; got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
	if got, want := (Settings{OS: "linux", Arch: "x64"}).Key(), "x64-linux"; got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
}

func TestConfig(t *testing.T) {
	c := Config{
		Settings: Settings{OS: "linux", Arch: "x64"},
		Options:  Options{"shared": "false", "iconv": "false"},
	}

	want := map[string]string{"os": "linux", "arch": "x64", "shared": "false", "iconv": "false"}
	if got := c.Flatten(); !reflect.DeepEqual(got, want) {
		t.Errorf("Flatten() = %v, want %v", got, want)
	}
	if got, want := c.String(), "x64-linux|iconv=false,shared=false"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	same := Config{
		Settings: Settings{Arch: "x64", OS: "linux"},
		Options:  Options{"iconv": "false", "shared": "false"},
	}
	if c.ID() != same.ID() {
		t.Errorf("ID() differs for equal configurations: %s != %s", c.ID(), same.ID())
	}
	a, _ := json.Marshal(c)
	b, _ := json.Marshal(same)
	if string(a) != string(b) {
		t.Errorf("JSON differs for equal configurations:\n%s\n%s", a, b)
	}

	same.Options["shared"] = "true"
	if c.ID() == same.ID() {
		t.Error("ID() equal for different configurations")
	}
}
