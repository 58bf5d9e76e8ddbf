package backend

import (
	"bytes"
	"context"
	"os/exec"
	"time"
)

// DefaultWaitDelay bounds how long Run waits for a killed process's output
// pipes to close.
const DefaultWaitDelay = 2 * time.Second

// CommandRunner abstracts subprocess execution for testability.
type CommandRunner interface {
	Run(ctx context.Context, name string, args []string) (stdout, stderr string, err error)
}

// exitCoder is satisfied by *exec.ExitError: the process started and exited
// with a non-zero status.
type exitCoder interface {
	ExitCode() int
}

// ExecRunner implements CommandRunner using exec.CommandContext. The process
// is killed when ctx is done.
type ExecRunner struct {
	WaitDelay time.Duration
}

func (r *ExecRunner) Run(ctx context.Context, name string, args []string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	return stdoutBuf.String(), stderrBuf.String(), err
}
