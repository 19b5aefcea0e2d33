package dist

import (
	"os"
	"strings"
)

// Variables available to rule roots.
const (
	VarImportPath = "import_path"
	VarCwd        = "cwd"
)

// DefaultImportPath is the developer staging root used when no override is
// supplied.
const DefaultImportPath = "bin"

// A Rule copies every regular file matching Pattern below Src to the same
// relative path below Dst.
//
// Pattern uses doublestar syntax: "*" and "?" match within one path element,
// "**" matches any number of elements, and "[...]" and "{a,b}" work as in
// path.Match. Src and Dst are relative to the base directories passed to
// Engine.Apply unless they are absolute.
type Rule struct {
	Pattern string `json:"pattern"`
	Src     string `json:"src"`
	Dst     string `json:"dst"`
}

func (r Rule) String() string {
	return r.Src + "/" + r.Pattern + " -> " + r.Dst
}

// Rules is an ordered rule list. Rules run in order and a later rule
// overwrites files written by an earlier one.
type Rules []Rule

// Expand returns a copy of rs with ${name} references in Src and Dst
// replaced from vars. Unknown references are left untouched.
func (rs Rules) Expand(vars map[string]string) Rules {
	mapping := func(name string) string {
		if v, ok := vars[name]; ok {
			return v
		}
		return "${" + name + "}"
	}
	expand := func(s string) string {
		if !strings.Contains(s, "$") {
			return s
		}
		return os.Expand(s, mapping)
	}
	out := make(Rules, len(rs))
	for i, r := range rs {
		out[i] = Rule{Pattern: r.Pattern, Src: expand(r.Src), Dst: expand(r.Dst)}
	}
	return out
}

// ImportRules returns the developer staging rules: shared libraries anywhere
// below bin or lib go to ${import_path} keeping their relative path, web
// runtime artifacts to ${cwd}.
func ImportRules() Rules {
	return Rules{
		{Pattern: "**/*.dll", Src: "bin", Dst: "${import_path}"},
		{Pattern: "**/*.dylib*", Src: "lib", Dst: "${import_path}"},
		{Pattern: "*.html", Src: "bin", Dst: "${cwd}"},
		{Pattern: "*.wasm", Src: "bin", Dst: "${cwd}"},
		{Pattern: "*.js", Src: "bin", Dst: "${cwd}"},
		{Pattern: "*.bin", Src: "bin", Dst: "${cwd}"},
	}
}

// PackageRules returns the distributable bundle rules: everything below bin,
// plus the assets tree nested under bin/assets.
func PackageRules() Rules {
	return Rules{
		{Pattern: "**", Src: "bin", Dst: "bin"},
		{Pattern: "**", Src: "assets", Dst: "bin/assets"},
	}
}
