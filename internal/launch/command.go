// Package launch starts the control process for a single trial.
package launch

import (
	"strconv"

	"github.com/me/kbench/internal/config"
)

// Mode selects the scheduling variant for the control process.
type Mode string

const (
	// ModeStandard runs the process under default scheduling, unelevated.
	ModeStandard Mode = "standard"
	// ModeRealTime runs the process under fixed-priority scheduling
	// (chrt -f) via sudo, with an explicit control-loop period.
	ModeRealTime Mode = "realtime"
)

// ModeFor returns the launch mode selected by cfg.
func ModeFor(cfg config.RunConfig) Mode {
	if cfg.RealTime {
		return ModeRealTime
	}
	return ModeStandard
}

// BuildArgs constructs the full argv for the control process, including the
// elevation prefix in real-time mode. Both modes share the same parameter
// set; real-time adds only the scheduling prefix and the loop period.
func BuildArgs(cfg config.RunConfig) []string {
	ctl := cfg.Control

	args := []string{
		ctl.Binary,
		"--model-path", ctl.ModelPath,
		"--magnitude-factor", formatFloat(ctl.MagnitudeFactor),
		"--torque-scale", formatFloat(ctl.TorqueScale),
		"--torque-enabled=" + strconv.FormatBool(ctl.TorqueEnabled),
		"--file-logging=" + strconv.FormatBool(ctl.FileLogging),
	}

	if cfg.RealTime {
		args = append(args, "--dt", strconv.Itoa(ctl.LoopPeriodMS))
		prefix := []string{"sudo", "chrt", "-f", strconv.Itoa(ctl.RTPriority)}
		args = append(prefix, args...)
	}

	return args
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
