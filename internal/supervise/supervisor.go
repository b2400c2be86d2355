// Package supervise bounds a trial's control process to its time window.
package supervise

import (
	"log/slog"
	"time"

	"github.com/me/kbench/internal/launch"
	"github.com/me/kbench/pkg/model"
)

// DefaultGrace is how long an interrupted process gets to shut down before
// the supervisor escalates to SIGKILL.
const DefaultGrace = 10 * time.Second

// Clock abstracts the timeout timers so tests run without real time.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// Process is the part of a launch handle the supervisor drives.
// *launch.Handle implements it.
type Process interface {
	Done() <-chan launch.ExitResult
	Interrupt() error
	Kill() error
}

// Supervisor waits for a trial to end: natural exit before the deadline, or
// interrupt at the deadline. The per-trial state machine is
// Running -> NormalExit | Interrupting -> Interrupted.
type Supervisor struct {
	clock  Clock
	grace  time.Duration
	logger *slog.Logger
}

// New creates a Supervisor with the default grace period.
func New(logger *slog.Logger) *Supervisor {
	return &Supervisor{
		clock:  realClock{},
		grace:  DefaultGrace,
		logger: logger.With("component", "supervisor"),
	}
}

func newWithClock(clock Clock, grace time.Duration, logger *slog.Logger) *Supervisor {
	return &Supervisor{clock: clock, grace: grace, logger: logger.With("component", "supervisor")}
}

// Supervise blocks until the process has exited and been reaped, sending at
// most one interrupt at the deadline. Exit codes after an interrupt are
// tolerated: stopping a trial this way is the designed end, not a failure.
func (s *Supervisor) Supervise(p Process, timeout time.Duration) model.ExitStatus {
	select {
	case res := <-p.Done():
		if res.Err != nil {
			s.logger.Warn("wait failed", "error", res.Err)
		}
		s.logger.Info("control process exited", "code", res.Code)
		return model.NormalExit(res.Code)

	case <-s.clock.After(timeout):
	}

	// Interrupting: the window expired first.
	s.logger.Info("trial window expired, interrupting", "timeout", timeout)
	if err := p.Interrupt(); err != nil {
		// The process may have exited between the deadline and the signal;
		// its result is still buffered on Done.
		s.logger.Warn("interrupt failed", "error", err)
	}

	select {
	case res := <-p.Done():
		s.logger.Info("control process stopped", "code", res.Code)
		return model.Interrupted(false)

	case <-s.clock.After(s.grace):
		s.logger.Warn("grace period expired, killing process group", "grace", s.grace)
		if err := p.Kill(); err != nil {
			s.logger.Warn("kill failed", "error", err)
		}
		<-p.Done()
		return model.Interrupted(true)
	}
}
