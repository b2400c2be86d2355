// Package config holds the resolved configuration for a kbench batch.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RunConfig is the validated configuration for one batch of trials.
// It is built once at startup and read-only afterwards.
type RunConfig struct {
	Trials   int           // number of trials, >= 1
	RealTime bool          // launch under elevated fixed-priority scheduling
	Timeout  time.Duration // per-trial execution window, > 0
	Cooldown time.Duration // settle time between trials

	Control  ControlConfig
	Bus      BusConfig
	Artifact ArtifactConfig

	// HistoryDB is the SQLite path for batch history. Empty disables
	// persistence.
	HistoryDB string
}

// ControlConfig describes the external control process and its pass-through
// parameters. kbench does not interpret these beyond building the argv.
type ControlConfig struct {
	Binary          string
	ModelPath       string
	MagnitudeFactor float64
	TorqueScale     float64
	TorqueEnabled   bool
	FileLogging     bool

	// LoopPeriodMS is the control-loop step in milliseconds, passed only in
	// real-time mode.
	LoopPeriodMS int
	// RTPriority is the fixed scheduling priority used with chrt -f.
	RTPriority int
}

// BusConfig describes the external bus bring-up routine.
type BusConfig struct {
	// ResetCommand is the argv executed once before each trial to bring the
	// communication bus to a ready state.
	ResetCommand []string
}

// ArtifactConfig describes the log artifact produced by the control process.
type ArtifactConfig struct {
	// LivePath is the fixed path the control process writes while running.
	LivePath string
	// Dir receives the trial-indexed copies after each trial.
	Dir string
}

// Default returns the built-in configuration.
func Default() RunConfig {
	return RunConfig{
		Trials:   1,
		RealTime: false,
		Timeout:  5 * time.Minute,
		Cooldown: 20 * time.Second,
		Control: ControlConfig{
			Binary:          "kbot-runtime",
			MagnitudeFactor: 1.0,
			TorqueScale:     1.0,
			TorqueEnabled:   true,
			FileLogging:     true,
			LoopPeriodMS:    20,
			RTPriority:      99,
		},
		Bus: BusConfig{
			ResetCommand: []string{"kbot-can-up"},
		},
		Artifact: ArtifactConfig{
			LivePath: "logs/kbot.log",
			Dir:      "logs",
		},
	}
}

// fileConfig mirrors RunConfig for YAML overlays. Pointer fields distinguish
// "absent" from zero values, and durations are parsed from strings.
type fileConfig struct {
	Trials    *int          `yaml:"trials"`
	RealTime  *bool         `yaml:"real_time"`
	Timeout   *string       `yaml:"timeout"`
	Cooldown  *string       `yaml:"cooldown"`
	HistoryDB *string       `yaml:"history_db"`
	Control   *fileControl  `yaml:"control"`
	Bus       *fileBus      `yaml:"bus"`
	Artifact  *fileArtifact `yaml:"artifact"`
}

type fileControl struct {
	Binary          *string  `yaml:"binary"`
	ModelPath       *string  `yaml:"model_path"`
	MagnitudeFactor *float64 `yaml:"magnitude_factor"`
	TorqueScale     *float64 `yaml:"torque_scale"`
	TorqueEnabled   *bool    `yaml:"torque_enabled"`
	FileLogging     *bool    `yaml:"file_logging"`
	LoopPeriodMS    *int     `yaml:"loop_period_ms"`
	RTPriority      *int     `yaml:"rt_priority"`
}

type fileBus struct {
	ResetCommand []string `yaml:"reset_command"`
}

type fileArtifact struct {
	LivePath *string `yaml:"live_path"`
	Dir      *string `yaml:"dir"`
}

// Load overlays a YAML config file onto cfg. Fields absent from the file
// keep their current values.
func Load(path string, cfg *RunConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if fc.Trials != nil {
		cfg.Trials = *fc.Trials
	}
	if fc.RealTime != nil {
		cfg.RealTime = *fc.RealTime
	}
	if fc.Timeout != nil {
		d, err := time.ParseDuration(*fc.Timeout)
		if err != nil {
			return fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if fc.Cooldown != nil {
		d, err := time.ParseDuration(*fc.Cooldown)
		if err != nil {
			return fmt.Errorf("parse cooldown: %w", err)
		}
		cfg.Cooldown = d
	}
	if fc.HistoryDB != nil {
		cfg.HistoryDB = *fc.HistoryDB
	}

	if c := fc.Control; c != nil {
		if c.Binary != nil {
			cfg.Control.Binary = *c.Binary
		}
		if c.ModelPath != nil {
			cfg.Control.ModelPath = *c.ModelPath
		}
		if c.MagnitudeFactor != nil {
			cfg.Control.MagnitudeFactor = *c.MagnitudeFactor
		}
		if c.TorqueScale != nil {
			cfg.Control.TorqueScale = *c.TorqueScale
		}
		if c.TorqueEnabled != nil {
			cfg.Control.TorqueEnabled = *c.TorqueEnabled
		}
		if c.FileLogging != nil {
			cfg.Control.FileLogging = *c.FileLogging
		}
		if c.LoopPeriodMS != nil {
			cfg.Control.LoopPeriodMS = *c.LoopPeriodMS
		}
		if c.RTPriority != nil {
			cfg.Control.RTPriority = *c.RTPriority
		}
	}

	if fc.Bus != nil && fc.Bus.ResetCommand != nil {
		cfg.Bus.ResetCommand = fc.Bus.ResetCommand
	}

	if a := fc.Artifact; a != nil {
		if a.LivePath != nil {
			cfg.Artifact.LivePath = *a.LivePath
		}
		if a.Dir != nil {
			cfg.Artifact.Dir = *a.Dir
		}
	}

	return nil
}

// Validate checks the invariants the trial loop depends on.
func (c *RunConfig) Validate() error {
	if c.Trials < 1 {
		return fmt.Errorf("trials must be >= 1, got %d", c.Trials)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("cooldown must not be negative, got %s", c.Cooldown)
	}
	if c.Control.Binary == "" {
		return fmt.Errorf("control binary is required")
	}
	if c.Control.ModelPath == "" {
		return fmt.Errorf("model path is required")
	}
	if len(c.Bus.ResetCommand) == 0 {
		return fmt.Errorf("bus reset command is required")
	}
	if c.Artifact.LivePath == "" {
		return fmt.Errorf("artifact live path is required")
	}
	if c.Artifact.Dir == "" {
		return fmt.Errorf("artifact dir is required")
	}
	if c.RealTime {
		if c.Control.LoopPeriodMS <= 0 {
			return fmt.Errorf("loop period must be positive in real-time mode, got %d", c.Control.LoopPeriodMS)
		}
		if c.Control.RTPriority < 1 || c.Control.RTPriority > 99 {
			return fmt.Errorf("rt priority must be in 1..99, got %d", c.Control.RTPriority)
		}
	}
	return nil
}
