// SPDX-License-Identifier: MIT

// Package publish commits changed output files to a git repository and
// pushes them.
package publish

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ManuGH/epgsync/internal/config"
	xglog "github.com/ManuGH/epgsync/internal/log"
)

// ErrPublish is returned when a git command fails.
var ErrPublish = errors.New("publish")

// Result describes what a publish did.
type Result struct {
	Committed bool
	Message   string
}

// Publisher makes persisted files visible to consumers.
type Publisher interface {
	Publish(ctx context.Context, paths []string) (Result, error)
}

// Noop is used when publishing is disabled.
type Noop struct{}

// Publish does nothing.
func (Noop) Publish(context.Context, []string) (Result, error) { return Result{}, nil }

// Runner executes a command in dir and returns its combined output.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// Git publishes through the git command line client.
type Git struct {
	runner Runner
	bin    string
	dir    string
	remote string
	branch string
	prefix string
	now    func() time.Time
}

// Option configures a Git publisher.
type Option func(*Git)

// WithRunner replaces the command runner.
func WithRunner(r Runner) Option {
	return func(g *Git) { g.runner = r }
}

// WithClock replaces the commit timestamp source.
func WithClock(now func() time.Time) Option {
	return func(g *Git) { g.now = now }
}

// NewGit returns a git publisher configured from cfg.
func NewGit(cfg config.Publish, opts ...Option) *Git {
	g := &Git{
		runner: NewExecRunner(),
		bin:    cfg.GitBin,
		dir:    cfg.RepoDir,
		remote: cfg.Remote,
		branch: cfg.Branch,
		prefix: cfg.CommitPrefix,
		now:    time.Now,
	}
	if g.bin == "" {
		g.bin = "git"
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// New returns the publisher selected by cfg.
func New(cfg config.Publish) Publisher {
	if !cfg.Enabled {
		return Noop{}
	}
	return NewGit(cfg)
}

// Publish stages, commits and pushes paths. Relative paths are taken from
// the process working directory, not the repository directory. When git
// reports no changes for them nothing is committed.
func (g *Git) Publish(ctx context.Context, paths []string) (Result, error) {
	logger := xglog.WithComponentFromContext(ctx, "publish")

	paths, err := absPaths(paths)
	if err != nil {
		return Result{}, err
	}

	out, err := g.git(ctx, append([]string{"status", "--porcelain", "--"}, paths...)...)
	if err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(string(out)) == "" {
		logger.Info().Str(xglog.FieldEvent, "publish.no_changes").Msg("no file changes, skipping git commit")
		return Result{}, nil
	}

	if _, err := g.git(ctx, append([]string{"add", "--"}, paths...)...); err != nil {
		return Result{}, err
	}

	msg := g.message()
	if _, err := g.git(ctx, "commit", "-m", msg); err != nil {
		return Result{}, err
	}
	logger.Info().Str(xglog.FieldEvent, "publish.committed").Str("message", msg).Msg("changes committed")

	push := []string{"push"}
	if g.remote != "" {
		push = append(push, g.remote)
		if g.branch != "" {
			push = append(push, "HEAD:"+g.branch)
		}
	}
	if _, err := g.git(ctx, push...); err != nil {
		return Result{Committed: true, Message: msg}, err
	}
	logger.Info().Str(xglog.FieldEvent, "publish.pushed").Str("remote", g.remote).Msg("changes pushed")

	return Result{Committed: true, Message: msg}, nil
}

func (g *Git) message() string {
	return strings.TrimSpace(g.prefix + " " + g.now().UTC().Format(time.RFC3339))
}

func (g *Git) git(ctx context.Context, args ...string) ([]byte, error) {
	out, err := g.runner.Run(ctx, g.dir, g.bin, args...)
	if err != nil {
		detail := strings.TrimSpace(string(out))
		if detail == "" {
			return out, fmt.Errorf("%w: git %s: %w", ErrPublish, args[0], err)
		}
		return out, fmt.Errorf("%w: git %s: %w: %s", ErrPublish, args[0], err, detail)
	}
	return out, nil
}

// absPaths resolves paths against the working directory so git, which runs
// inside the repository directory, sees the files that were written.
func absPaths(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("%w: resolve %s: %w", ErrPublish, p, err)
		}
		out = append(out, abs)
	}
	return out, nil
}
