package launch

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/me/kbench/internal/config"
)

// LaunchError reports a control process that failed to start: binary
// missing, sudo denied, or chrt rejected by the OS.
type LaunchError struct {
	Reason string
	Err    error
}

func (e *LaunchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("launch: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("launch: %s", e.Reason)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// ExitResult is how a child process ended.
type ExitResult struct {
	Code int
	Err  error // non-exit failures only (wait errors)
}

// Handle represents one in-flight control process. It is created by the
// Launcher and owned by the supervisor until the process has been reaped.
type Handle struct {
	PID     int
	Args    []string
	Started time.Time

	done chan ExitResult
}

// Done returns a channel that receives exactly one ExitResult when the
// process has exited and been reaped.
func (h *Handle) Done() <-chan ExitResult {
	return h.done
}

// Interrupt sends SIGINT to the process group. The control process treats
// it as its shutdown signal.
func (h *Handle) Interrupt() error {
	return unix.Kill(-h.PID, unix.SIGINT)
}

// Kill sends SIGKILL to the process group.
func (h *Handle) Kill() error {
	return unix.Kill(-h.PID, unix.SIGKILL)
}

// Launcher starts the control process for a trial. It never waits for the
// process; that is the supervisor's job.
type Launcher struct {
	cfg    config.RunConfig
	logger *slog.Logger
	output io.Writer // child stdout+stderr; stdout of kbench stays clean
}

// NewLauncher creates a Launcher for cfg. Child output goes to stderr.
func NewLauncher(cfg config.RunConfig, logger *slog.Logger) *Launcher {
	return &Launcher{
		cfg:    cfg,
		logger: logger.With("component", "launcher"),
		output: os.Stderr,
	}
}

// Launch spawns exactly one control process in its own process group and
// returns its handle. The prior trial's artifact must already have been
// cleared by the caller.
func (l *Launcher) Launch(trial int) (*Handle, error) {
	argv := BuildArgs(l.cfg)
	l.logger.Info("launching control process",
		"trial", trial,
		"mode", ModeFor(l.cfg),
		"command", argv,
	)

	h, err := Start(argv, l.output)
	if err != nil {
		return nil, err
	}

	l.logger.Debug("control process started", "trial", trial, "pid", h.PID)
	return h, nil
}

// Start spawns argv in a new process group and begins reaping it.
func Start(argv []string, output io.Writer) (*Handle, error) {
	if len(argv) == 0 {
		return nil, &LaunchError{Reason: "empty command"}
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = output
	cmd.Stderr = output
	// Own process group so interrupts reach the whole sudo/chrt chain.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Reason: fmt.Sprintf("start %s", argv[0]), Err: err}
	}

	h := &Handle{
		PID:     cmd.Process.Pid,
		Args:    argv,
		Started: time.Now(),
		done:    make(chan ExitResult, 1),
	}

	go func() {
		err := cmd.Wait()
		switch e := err.(type) {
		case nil:
			h.done <- ExitResult{Code: cmd.ProcessState.ExitCode()}
		case *exec.ExitError:
			h.done <- ExitResult{Code: e.ExitCode()}
		default:
			h.done <- ExitResult{Code: -1, Err: err}
		}
	}()

	return h, nil
}
