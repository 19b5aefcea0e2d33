// Package dist distributes build outputs by applying ordered copy rules
// between two filesystem views.
package dist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
)

// ErrEmptyPattern is returned for a rule without a pattern.
var ErrEmptyPattern = errors.New("copy rule has an empty pattern")

// Report summarizes one Apply call.
type Report struct {
	// Copied lists destination paths in write order. A path overwritten by a
	// later rule appears once per write.
	Copied []string
	// Missed lists rules whose source root does not exist.
	Missed []Rule
}

// Engine copies files from a source filesystem to a destination filesystem.
// Both may be the same afero.Fs.
type Engine struct {
	src afero.Fs
	dst afero.Fs
}

// New returns an Engine reading from src and writing to dst.
func New(src, dst afero.Fs) *Engine {
	return &Engine{src: src, dst: dst}
}

// NewOS returns an Engine on the host filesystem.
func NewOS() *Engine {
	fs := afero.NewOsFs()
	return New(fs, fs)
}

// Apply runs rules in order. Relative rule roots are resolved against
// srcBase and dstBase. A rule whose source root is missing copies nothing
// and is recorded in Report.Missed. The returned report is valid even when
// err is not nil.
func (e *Engine) Apply(ctx context.Context, rules Rules, srcBase, dstBase string) (*Report, error) {
	logger := log.FromContext(ctx)
	rep := &Report{}
	for _, r := range rules {
		if r.Pattern == "" {
			return rep, fmt.Errorf("%v: %w", r, ErrEmptyPattern)
		}
		if !doublestar.ValidatePattern(r.Pattern) {
			return rep, fmt.Errorf("%v: %w", r, doublestar.ErrBadPattern)
		}
		srcRoot := rootOf(srcBase, r.Src)
		dstRoot := rootOf(dstBase, r.Dst)

		ok, err := afero.DirExists(e.src, srcRoot)
		if err != nil {
			return rep, err
		}
		if !ok {
			logger.Debug("source root missing", "rule", r, "root", srcRoot)
			rep.Missed = append(rep.Missed, r)
			continue
		}

		matches, err := doublestar.Glob(afero.NewIOFS(afero.NewBasePathFs(e.src, srcRoot)), r.Pattern, doublestar.WithFilesOnly())
		if err != nil {
			return rep, fmt.Errorf("%v: %w", r, err)
		}
		for _, m := range matches {
			if err := ctx.Err(); err != nil {
				return rep, err
			}
			rel := filepath.FromSlash(m)
			to := filepath.Join(dstRoot, rel)
			copied, err := e.copyFile(filepath.Join(srcRoot, rel), to)
			if err != nil {
				return rep, fmt.Errorf("%v: %w", r, err)
			}
			if copied {
				rep.Copied = append(rep.Copied, to)
			}
		}
		logger.Debug("applied rule", "rule", r, "files", len(matches))
	}
	return rep, nil
}

// Clean empties dir on the destination filesystem, creating it if needed.
func (e *Engine) Clean(dir string) error {
	if err := e.dst.RemoveAll(dir); err != nil {
		return err
	}
	return e.dst.MkdirAll(dir, 0o755)
}

func rootOf(base, p string) string {
	if filepath.IsAbs(p) || base == "" {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}

// copyFile copies a regular file, replacing any existing destination. It
// reports false for anything that is not a regular file.
func (e *Engine) copyFile(from, to string) (bool, error) {
	fi, err := e.src.Stat(from)
	if err != nil {
		return false, err
	}
	if !fi.Mode().IsRegular() {
		return false, nil
	}

	in, err := e.src.Open(from)
	if err != nil {
		return false, err
	}
	defer in.Close()

	if err := e.dst.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return false, err
	}
	out, err := e.dst.OpenFile(to, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fi.Mode().Perm()|0o200)
	if err != nil {
		return false, err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return false, err
	}
	return true, out.Close()
}
