// Package versions provides version ordering and version constraints for
// package references.
//
// A constraint is either empty or "*" (any version), an exact version
// ("2.0.12"), or a bracketed range of comparisons separated by spaces or
// commas ("[>=1.0 <2.0]", "[>1, <=3]"). Versions that are valid semantic
// versions (with or without the "v" prefix) are ordered with
// golang.org/x/mod/semver; anything else falls back to GNU version ordering.
package versions

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goplus/llpack/pkgs/gnu"
	"golang.org/x/mod/semver"
)

// ErrInvalidConstraint is returned by Parse for malformed constraints.
var ErrInvalidConstraint = errors.New("invalid version constraint")

type clause struct {
	op  string // one of "=", ">", ">=", "<", "<="
	ver string
}

// Constraint is a parsed version constraint. The zero value matches any
// version.
type Constraint struct {
	raw     string
	exact   string
	clauses []clause
}

// Parse parses a version constraint.
func Parse(s string) (Constraint, error) {
	s = strings.TrimSpace(s)
	c := Constraint{raw: s}
	switch {
	case s == "" || s == "*":
		return c, nil
	case !strings.HasPrefix(s, "["):
		if strings.ContainsAny(s, " ,<>=]") {
			return Constraint{}, fmt.Errorf("%w: %q: ranges must be bracketed", ErrInvalidConstraint, s)
		}
		c.exact = s
		return c, nil
	case !strings.HasSuffix(s, "]"):
		return Constraint{}, fmt.Errorf("%w: %q: missing closing bracket", ErrInvalidConstraint, s)
	}

	fields := strings.FieldsFunc(s[1:len(s)-1], func(r rune) bool {
		return r == ' ' || r == ','
	})
	if len(fields) == 0 {
		return Constraint{}, fmt.Errorf("%w: %q: empty range", ErrInvalidConstraint, s)
	}
	for _, f := range fields {
		cl := parseClause(f)
		if cl.ver == "" {
			return Constraint{}, fmt.Errorf("%w: %q: missing version in %q", ErrInvalidConstraint, s, f)
		}
		c.clauses = append(c.clauses, cl)
	}
	return c, nil
}

func parseClause(f string) clause {
	for _, op := range []string{">=", "<=", ">", "<", "="} {
		if ver, ok := strings.CutPrefix(f, op); ok {
			return clause{op: op, ver: ver}
		}
	}
	return clause{op: "=", ver: f}
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Constraint {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

// String returns the constraint as written.
func (c Constraint) String() string {
	return c.raw
}

// Exact returns the pinned version and true if the constraint is an exact
// version.
func (c Constraint) Exact() (string, bool) {
	return c.exact, c.exact != ""
}

// Check reports whether version satisfies the constraint.
func (c Constraint) Check(version string) bool {
	if c.exact != "" {
		return version == c.exact
	}
	for _, cl := range c.clauses {
		cmp := Compare(version, cl.ver)
		var ok bool
		switch cl.op {
		case "=":
			ok = cmp == 0
		case ">":
			ok = cmp > 0
		case ">=":
			ok = cmp >= 0
		case "<":
			ok = cmp < 0
		case "<=":
			ok = cmp <= 0
		}
		if !ok {
			return false
		}
	}
	return true
}

// Max returns the highest version in candidates that satisfies c.
func (c Constraint) Max(candidates []string) (string, bool) {
	var best string
	found := false
	for _, v := range candidates {
		if !c.Check(v) {
			continue
		}
		if !found || Compare(v, best) > 0 {
			best, found = v, true
		}
	}
	return best, found
}

// Compare compares two versions. When both are semantic versions it uses
// semver ordering, otherwise GNU version ordering.
func Compare(v1, v2 string) int {
	s1, s2 := canonical(v1), canonical(v2)
	if semver.IsValid(s1) && semver.IsValid(s2) {
		return semver.Compare(s1, s2)
	}
	switch c := gnu.Compare(v1, v2); {
	case c < 0:
		return -1
	case c > 0:
		return 1
	}
	return 0
}

func canonical(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}
