// Package vcs keeps a local checkout of a package index hosted in a git
// repository.
package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// VCS defines the version control operations used to sync an index.
type VCS interface {
	// Sync makes dir a checkout of ref in remote. ref can be a branch, a
	// tag or a commit hash. dir is created and initialized when needed.
	Sync(ctx context.Context, remote, ref, dir string) error

	// Head returns the commit hash checked out in dir.
	Head(ctx context.Context, dir string) (string, error)
}

// gitVCS implements VCS using git.
type gitVCS struct {
	git string
}

// GitOption configures gitVCS.
type GitOption func(*gitVCS)

// WithGitPath sets a custom git executable path.
func WithGitPath(path string) GitOption {
	return func(g *gitVCS) {
		g.git = path
	}
}

// NewGitVCS creates a new git VCS instance.
func NewGitVCS(opts ...GitOption) VCS {
	g := &gitVCS{git: "git"}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *gitVCS) ensureInit(ctx context.Context, dir string) error {
	_, err := os.Stat(filepath.Join(dir, ".git"))
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return g.run(ctx, dir, "init", "--quiet")
}

func (g *gitVCS) Sync(ctx context.Context, remote, ref, dir string) error {
	if err := g.ensureInit(ctx, dir); err != nil {
		return err
	}
	if err := g.run(ctx, dir, "fetch", "--depth", "1", remote, ref); err != nil {
		return fmt.Errorf("fetch %s %s: %w", remote, ref, err)
	}
	if err := g.run(ctx, dir, "checkout", "--quiet", "--force", "FETCH_HEAD"); err != nil {
		return fmt.Errorf("checkout %s: %w", ref, err)
	}
	return nil
}

func (g *gitVCS) Head(ctx context.Context, dir string) (string, error) {
	out, err := g.output(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("rev-parse HEAD: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func (g *gitVCS) run(ctx context.Context, dir string, args ...string) error {
	_, err := g.output(ctx, dir, args...)
	return err
}

func (g *gitVCS) output(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, g.git, args...)
	if dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("%s", msg)
		}
		return "", err
	}
	return stdout.String(), nil
}
