// SPDX-License-Identifier: MIT

package publish

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/epgsync/internal/config"
)

type call struct {
	dir  string
	name string
	args []string
}

type fakeRunner struct {
	calls  []call
	output map[string]string
	fail   map[string]error
}

func (f *fakeRunner) Run(_ context.Context, dir, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, call{dir: dir, name: name, args: args})
	return []byte(f.output[args[0]]), f.fail[args[0]]
}

func (f *fakeRunner) subcommands() []string {
	var out []string
	for _, c := range f.calls {
		out = append(out, c.args[0])
	}
	return out
}

var fixedClock = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

func TestGit_Publish(t *testing.T) {
	r := &fakeRunner{output: map[string]string{"status": " M index.xml\n"}}
	g := NewGit(config.Publish{
		RepoDir:      "/repo",
		Remote:       "origin",
		Branch:       "main",
		CommitPrefix: "Auto-sync EPG data",
	}, WithRunner(r), WithClock(fixedClock))

	res, err := g.Publish(context.Background(), []string{"/repo/index.xml", "/repo/md5.txt"})
	require.NoError(t, err)
	assert.True(t, res.Committed)
	assert.Equal(t, "Auto-sync EPG data 2024-01-02T03:04:05Z", res.Message)

	require.Equal(t, []string{"status", "add", "commit", "push"}, r.subcommands())
	assert.Equal(t, []string{"status", "--porcelain", "--", "/repo/index.xml", "/repo/md5.txt"}, r.calls[0].args)
	assert.Equal(t, []string{"add", "--", "/repo/index.xml", "/repo/md5.txt"}, r.calls[1].args)
	assert.Equal(t, []string{"commit", "-m", res.Message}, r.calls[2].args)
	assert.Equal(t, []string{"push", "origin", "HEAD:main"}, r.calls[3].args)
	for _, c := range r.calls {
		assert.Equal(t, "/repo", c.dir)
		assert.Equal(t, "git", c.name)
	}
}

func TestGit_RelativePathsResolveAgainstWorkingDirectory(t *testing.T) {
	cwd := t.TempDir()
	t.Chdir(cwd)

	r := &fakeRunner{output: map[string]string{"status": "?? out/index.xml\n"}}
	g := NewGit(config.Publish{RepoDir: "/elsewhere"}, WithRunner(r))

	_, err := g.Publish(context.Background(), []string{filepath.Join("out", "index.xml")})
	require.NoError(t, err)

	want := filepath.Join(cwd, "out", "index.xml")
	assert.Equal(t, []string{"status", "--porcelain", "--", want}, r.calls[0].args)
	assert.Equal(t, []string{"add", "--", want}, r.calls[1].args)
	assert.Equal(t, "/elsewhere", r.calls[0].dir)
}

func TestGit_NoChanges(t *testing.T) {
	r := &fakeRunner{output: map[string]string{"status": "\n"}}
	res, err := NewGit(config.Publish{}, WithRunner(r)).Publish(context.Background(), []string{"index.xml"})
	require.NoError(t, err)
	assert.False(t, res.Committed)
	assert.Equal(t, []string{"status"}, r.subcommands())
}

func TestGit_PushDefaultsWithoutRemote(t *testing.T) {
	r := &fakeRunner{output: map[string]string{"status": "?? md5.txt\n"}}
	_, err := NewGit(config.Publish{Branch: "ignored"}, WithRunner(r)).Publish(context.Background(), []string{"md5.txt"})
	require.NoError(t, err)
	assert.Equal(t, []string{"push"}, r.calls[len(r.calls)-1].args)
}

func TestGit_CommandFailure(t *testing.T) {
	r := &fakeRunner{
		output: map[string]string{"status": " M index.xml\n", "push": "fatal: could not read from remote\n"},
		fail:   map[string]error{"push": errors.New("exit status 128")},
	}
	res, err := NewGit(config.Publish{}, WithRunner(r)).Publish(context.Background(), []string{"index.xml"})
	require.ErrorIs(t, err, ErrPublish)
	assert.Contains(t, err.Error(), "git push")
	assert.Contains(t, err.Error(), "could not read from remote")
	assert.True(t, res.Committed)
}

func TestNew_Disabled(t *testing.T) {
	p := New(config.Publish{Enabled: false})
	_, ok := p.(Noop)
	assert.True(t, ok)

	res, err := p.Publish(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.False(t, res.Committed)
}

func TestGit_RealRepository(t *testing.T) {
	gitBin, err := exec.LookPath("git")
	if err != nil {
		t.Skip("git not installed")
	}

	root := t.TempDir()
	remote := filepath.Join(root, "remote.git")
	work := filepath.Join(root, "work")
	run := func(dir string, args ...string) string {
		t.Helper()
		out, err := NewExecRunner().Run(context.Background(), dir, gitBin, args...)
		require.NoError(t, err, string(out))
		return string(out)
	}

	run(root, "init", "--bare", remote)
	run(root, "init", work)
	run(work, "config", "user.email", "sync@example.com")
	run(work, "config", "user.name", "sync")
	run(work, "config", "commit.gpgsign", "false")

	require.NoError(t, os.WriteFile(filepath.Join(work, "md5.txt"), []byte("abc"), 0o644))

	g := NewGit(config.Publish{
		RepoDir:      work,
		Remote:       remote,
		Branch:       "main",
		CommitPrefix: "Auto-sync EPG data",
		GitBin:       gitBin,
	}, WithClock(fixedClock))

	checksumPath := filepath.Join(work, "md5.txt")
	res, err := g.Publish(context.Background(), []string{checksumPath})
	require.NoError(t, err)
	assert.True(t, res.Committed)

	log := run(remote, "log", "--format=%s", "main")
	assert.Equal(t, "Auto-sync EPG data 2024-01-02T03:04:05Z", strings.TrimSpace(log))

	// Nothing changed since, so the second publish is a no-op.
	res, err = g.Publish(context.Background(), []string{checksumPath})
	require.NoError(t, err)
	assert.False(t, res.Committed)
}

func TestGit_RealRepositoryOutsideWorkingDirectory(t *testing.T) {
	gitBin, err := exec.LookPath("git")
	if err != nil {
		t.Skip("git not installed")
	}

	root := t.TempDir()
	repo := filepath.Join(root, "repo")
	run := func(dir string, args ...string) string {
		t.Helper()
		out, err := NewExecRunner().Run(context.Background(), dir, gitBin, args...)
		require.NoError(t, err, string(out))
		return string(out)
	}
	run(root, "init", repo)
	run(repo, "config", "user.email", "sync@example.com")
	run(repo, "config", "user.name", "sync")
	run(repo, "config", "commit.gpgsign", "false")

	// Outputs are named relative to the parent of the repository.
	t.Chdir(root)
	rel := filepath.Join("repo", "out", "index.xml")
	require.NoError(t, os.MkdirAll(filepath.Dir(rel), 0o755))
	require.NoError(t, os.WriteFile(rel, []byte("<tv/>"), 0o644))

	g := NewGit(config.Publish{RepoDir: repo, CommitPrefix: "sync", GitBin: gitBin},
		WithClock(fixedClock),
		WithRunner(noPushRunner{ExecRunner: NewExecRunner()}))

	res, err := g.Publish(context.Background(), []string{rel})
	require.NoError(t, err)
	assert.True(t, res.Committed)

	assert.Empty(t, strings.TrimSpace(run(repo, "status", "--porcelain")))
	assert.Equal(t, "out/index.xml", strings.TrimSpace(run(repo, "show", "--name-only", "--format=", "HEAD")))
}

// noPushRunner runs git for real but skips push, for repositories without a
// remote.
type noPushRunner struct {
	*ExecRunner
}

func (r noPushRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	if len(args) > 0 && args[0] == "push" {
		return nil, nil
	}
	return r.ExecRunner.Run(ctx, dir, name, args...)
}
