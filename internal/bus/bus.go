// Package bus wraps the external bus bring-up routine.
package bus

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Resetter brings the communication bus to a ready state. The routine is
// synchronous and idempotent: calling it once per trial is safe even when
// the bus is already up.
type Resetter interface {
	Reset(ctx context.Context) error
}

// ResetError reports a failed bus reset. It is trial-scoped: the trial loop
// records it and moves on to the next trial.
type ResetError struct {
	Command  []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ResetError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bus reset %v: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("bus reset %v: exit %d: %s", e.Command, e.ExitCode, strings.TrimSpace(e.Stderr))
}

func (e *ResetError) Unwrap() error {
	return e.Err
}

// CommandRunner abstracts command execution for testing.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr string, exitCode int, err error)
}

// osCommandRunner is the real implementation using os/exec.
type osCommandRunner struct{}

func (r *osCommandRunner) Run(ctx context.Context, name string, args ...string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	runErr := cmd.Run()
	stdout := stdoutBuf.String()
	stderr := stderrBuf.String()

	switch e := runErr.(type) {
	case nil:
		return stdout, stderr, 0, nil
	case *exec.ExitError:
		return stdout, stderr, e.ExitCode(), nil
	default:
		return stdout, stderr, -1, runErr
	}
}

// ExecResetter resets the bus by running an external command.
type ExecResetter struct {
	command []string
	runner  CommandRunner
	logger  *slog.Logger
}

// NewExecResetter creates a Resetter that runs command once per Reset call.
func NewExecResetter(command []string, logger *slog.Logger) *ExecResetter {
	return &ExecResetter{
		command: command,
		runner:  &osCommandRunner{},
		logger:  logger.With("component", "bus"),
	}
}

func newExecResetterWithRunner(command []string, runner CommandRunner, logger *slog.Logger) *ExecResetter {
	return &ExecResetter{command: command, runner: runner, logger: logger.With("component", "bus")}
}

// Reset runs the bring-up command and blocks until it finishes.
func (r *ExecResetter) Reset(ctx context.Context) error {
	if len(r.command) == 0 {
		return &ResetError{Err: fmt.Errorf("empty reset command")}
	}

	r.logger.Debug("resetting bus", "command", r.command)

	_, stderr, exitCode, err := r.runner.Run(ctx, r.command[0], r.command[1:]...)
	if err != nil {
		return &ResetError{Command: r.command, ExitCode: -1, Stderr: stderr, Err: err}
	}
	if exitCode != 0 {
		return &ResetError{Command: r.command, ExitCode: exitCode, Stderr: stderr}
	}

	r.logger.Debug("bus ready")
	return nil
}
