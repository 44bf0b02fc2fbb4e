// Package executor provides the concrete port.CommandRunner the
// Fetcher/Transcriber/Renderer subprocess wrappers share, grounded on the
// teacher's ffmpeg_executor.go cmd.Start/cmd.Wait/ctx.Done() kill-on-cancel
// shape, generalized from a single hard-coded ffmpeg invocation into a
// runner for any named binary.
package executor

import (
	"bytes"
	"context"
	"os/exec"

	"clipforge/ddd/domain/port"
)

// OSExecRunner runs subprocesses via os/exec, killing the child process if
// ctx is cancelled before it exits (spec.md §5/§9: subprocess lifetime is
// tied to the Worker's, including its job_timeout).
type OSExecRunner struct{}

func New() OSExecRunner {
	return OSExecRunner{}
}

func (OSExecRunner) Run(ctx context.Context, name string, args ...string) (port.CommandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := port.CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}
	if err != nil {
		return result, err
	}
	return result, nil
}

var _ port.CommandRunner = OSExecRunner{}
