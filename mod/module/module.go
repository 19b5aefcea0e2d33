// Package module defines the module.Version type along with support code.
package module

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrInvalidRef is returned by ParseRef for malformed references.
var ErrInvalidRef = errors.New("invalid package reference")

// A Version (for clients, a module.Version) represents a native package
// reference in the form "name/version@user/channel".
//
// Version may hold an exact version or a constraint (see pkgs/mod/versions)
// until the package index pins it. User and Channel disambiguate provenance
// and are empty for references without a namespace.
type Version struct {
	Name    string // Package name (e.g., "sdl2")
	Version string // Version or constraint (e.g., "2.0.12", "[>=1.0 <2.0]")
	User    string // Maintainer namespace (e.g., "bincrafters")
	Channel string // Channel within the namespace (e.g., "stable")
}

// ParseRef parses a reference such as "sdl2/2.0.12@bincrafters/stable",
// "glm/0.9.9.8@_/_" or "fmt/5.3.0". The "_" placeholder stands for an
// empty user or channel.
func ParseRef(ref string) (Version, error) {
	nameVer, userChan, hasAt := strings.Cut(strings.TrimSpace(ref), "@")
	name, ver, ok := strings.Cut(nameVer, "/")
	if !ok || name == "" || ver == "" || strings.Contains(ver, "/") {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	v := Version{Name: name, Version: ver}
	if hasAt {
		user, channel, ok := strings.Cut(userChan, "/")
		if !ok || user == "" || channel == "" {
			return Version{}, fmt.Errorf("%w: %q: want user/channel after @", ErrInvalidRef, ref)
		}
		if user != "_" {
			v.User = user
		}
		if channel != "_" {
			v.Channel = channel
		}
	}
	return v, nil
}

// String returns the reference in "name/version@user/channel" form.
// The "@user/channel" suffix is omitted when both are empty.
func (v Version) String() string {
	s := v.Name + "/" + v.Version
	if v.User == "" && v.Channel == "" {
		return s
	}
	return s + "@" + placeholder(v.User) + "/" + placeholder(v.Channel)
}

func placeholder(s string) string {
	if s == "" {
		return "_"
	}
	return s
}

// EscapePath returns the escaped form of the given reference as a valid
// file system path: name/version[/user/channel]. It fails if the reference
// is not a valid local path.
func EscapePath(v Version) (escaped string, err error) {
	if v.Name == "" || v.Version == "" {
		return "", fmt.Errorf("%w: empty name or version", ErrInvalidRef)
	}
	path := v.Name + "/" + v.Version
	if v.User != "" || v.Channel != "" {
		path += "/" + placeholder(v.User) + "/" + placeholder(v.Channel)
	}
	return filepath.Localize(path)
}
