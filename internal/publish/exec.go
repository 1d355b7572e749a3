// SPDX-License-Identifier: MIT

package publish

import (
	"context"
	"os/exec"
	"time"
)

// killGrace is how long a canceled git process group gets to exit before
// the output pipes are abandoned.
const killGrace = 5 * time.Second

// ExecRunner runs commands as child processes in their own process group,
// so that canceling a push also stops the ssh or credential helpers git
// spawned.
type ExecRunner struct{}

// NewExecRunner returns an ExecRunner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes name with args in dir.
func (r *ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) // #nosec G204 -- binary comes from operator config
	cmd.Dir = dir
	cmd.Env = append(cmd.Environ(), "GIT_TERMINAL_PROMPT=0")
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = killGrace
	return cmd.CombinedOutput()
}
