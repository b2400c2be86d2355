// Package model defines the shared types for kbench trial batches.
package model

import (
	"fmt"
	"time"
)

// StatusKind classifies how a trial ended.
type StatusKind string

const (
	// StatusNormalExit means the control process exited on its own before
	// the trial window expired.
	StatusNormalExit StatusKind = "NORMAL_EXIT"
	// StatusInterrupted means the trial window expired and the process was
	// stopped by the harness. This is the designed way to end a trial, not
	// an error.
	StatusInterrupted StatusKind = "INTERRUPTED"
	// StatusLaunchFailed means the trial never ran: bus reset or process
	// launch failed.
	StatusLaunchFailed StatusKind = "LAUNCH_FAILED"
)

// String returns the string representation of the status kind.
func (k StatusKind) String() string {
	return string(k)
}

// ExitStatus is the terminal state of one trial's control process.
type ExitStatus struct {
	Kind StatusKind `json:"kind"`

	// Code is the process exit code. Only meaningful for NORMAL_EXIT.
	Code int `json:"code,omitempty"`

	// Forced is true when the process ignored the interrupt and had to be
	// killed after the grace period.
	Forced bool `json:"forced,omitempty"`

	// Reason describes why the launch failed. Only set for LAUNCH_FAILED.
	Reason string `json:"reason,omitempty"`
}

// NormalExit builds an ExitStatus for a process that exited by itself.
func NormalExit(code int) ExitStatus {
	return ExitStatus{Kind: StatusNormalExit, Code: code}
}

// Interrupted builds an ExitStatus for a process stopped at the deadline.
// forced marks an escalation to SIGKILL after the grace period.
func Interrupted(forced bool) ExitStatus {
	return ExitStatus{Kind: StatusInterrupted, Forced: forced}
}

// LaunchFailed builds an ExitStatus for a trial that never ran.
func LaunchFailed(reason string) ExitStatus {
	return ExitStatus{Kind: StatusLaunchFailed, Reason: reason}
}

// String renders the status for log lines and the history listing.
func (s ExitStatus) String() string {
	switch s.Kind {
	case StatusNormalExit:
		return fmt.Sprintf("exit(%d)", s.Code)
	case StatusInterrupted:
		if s.Forced {
			return "interrupted(killed)"
		}
		return "interrupted"
	case StatusLaunchFailed:
		return fmt.Sprintf("launch failed: %s", s.Reason)
	}
	return string(s.Kind)
}

// Outcome records the result of one trial. Outcomes are append-only: the
// controller creates one per trial and never mutates it afterwards.
type Outcome struct {
	Trial   int           `json:"trial"`
	Status  ExitStatus    `json:"status"`
	LogPath string        `json:"log_path,omitempty"` // empty when no artifact was produced
	Started time.Time     `json:"started"`
	Elapsed time.Duration `json:"elapsed"`
}

// Summary aggregates a batch of outcomes.
type Summary struct {
	Attempted   int      `json:"attempted"`
	Normal      int      `json:"normal"`
	Interrupted int      `json:"interrupted"`
	Failed      int      `json:"failed"`
	LogPaths    []string `json:"log_paths,omitempty"`
}

// Summarize tallies a batch of outcomes in trial order.
func Summarize(outcomes []Outcome) Summary {
	sum := Summary{Attempted: len(outcomes)}
	for _, o := range outcomes {
		switch o.Status.Kind {
		case StatusNormalExit:
			sum.Normal++
		case StatusInterrupted:
			sum.Interrupted++
		case StatusLaunchFailed:
			sum.Failed++
		}
		if o.LogPath != "" {
			sum.LogPaths = append(sum.LogPaths, o.LogPath)
		}
	}
	return sum
}
