// Package trial sequences the per-trial lifecycle across a batch.
package trial

import (
	"context"
	"log/slog"
	"time"

	"github.com/me/kbench/internal/bus"
	"github.com/me/kbench/internal/config"
	"github.com/me/kbench/internal/supervise"
	"github.com/me/kbench/pkg/model"
)

// Launcher starts the control process for one trial.
type Launcher interface {
	Launch(trial int) (supervise.Process, error)
}

// Supervisor bounds a launched process to the trial window.
type Supervisor interface {
	Supervise(p supervise.Process, timeout time.Duration) model.ExitStatus
}

// Collector manages the log artifact slot around each trial.
type Collector interface {
	Discard() error
	Collect(trial int) (path string, ok bool, err error)
}

// Sleeper pauses between trials. Injectable so tests skip the cooldown.
type Sleeper func(ctx context.Context, d time.Duration)

// Controller runs trials strictly in sequence: the bus, the actuators and
// the artifact slot are exclusive, so correctness rests on this
// serialization rather than on locks.
type Controller struct {
	cfg        config.RunConfig
	bus        bus.Resetter
	launcher   Launcher
	supervisor Supervisor
	slot       Collector
	sleep      Sleeper
	logger     *slog.Logger
}

// NewController wires a Controller from its collaborators.
func NewController(
	cfg config.RunConfig,
	resetter bus.Resetter,
	launcher Launcher,
	supervisor Supervisor,
	slot Collector,
	logger *slog.Logger,
) *Controller {
	return &Controller{
		cfg:        cfg,
		bus:        resetter,
		launcher:   launcher,
		supervisor: supervisor,
		slot:       slot,
		sleep:      sleepWithContext,
		logger:     logger.With("component", "trial-loop"),
	}
}

// Run executes the whole batch and returns one outcome per trial, in
// order. A failed trial is recorded and never aborts the batch; only
// context cancellation cuts the loop short.
func (c *Controller) Run(ctx context.Context) []model.Outcome {
	outcomes := make([]model.Outcome, 0, c.cfg.Trials)

	for i := 1; i <= c.cfg.Trials; i++ {
		out := c.runTrial(ctx, i)
		outcomes = append(outcomes, out)
		c.logger.Info("trial finished",
			"trial", i,
			"status", out.Status.String(),
			"log", out.LogPath,
			"elapsed", out.Elapsed.Round(time.Millisecond),
		)

		if ctx.Err() != nil {
			c.logger.Warn("batch cancelled", "completed", i, "requested", c.cfg.Trials)
			break
		}
		if i < c.cfg.Trials {
			// Actuators need to settle back to rest before the next run.
			c.logger.Info("cooling down", "cooldown", c.cfg.Cooldown)
			c.sleep(ctx, c.cfg.Cooldown)
		}
	}

	return outcomes
}

// runTrial performs one full trial lifecycle: clear slot, reset bus,
// launch, supervise, collect.
func (c *Controller) runTrial(ctx context.Context, i int) model.Outcome {
	out := model.Outcome{Trial: i, Started: time.Now()}

	// The slot must be empty before launch so collection cannot pick up a
	// stale artifact from an earlier trial.
	if err := c.slot.Discard(); err != nil {
		c.logger.Error("cannot clear artifact slot", "trial", i, "error", err)
		out.Status = model.LaunchFailed("artifact slot not clear")
		out.Elapsed = time.Since(out.Started)
		return out
	}

	if err := c.bus.Reset(ctx); err != nil {
		c.logger.Error("bus reset failed", "trial", i, "error", err)
		out.Status = model.LaunchFailed("bus reset")
		c.collect(&out)
		out.Elapsed = time.Since(out.Started)
		return out
	}

	proc, err := c.launcher.Launch(i)
	if err != nil {
		c.logger.Error("launch failed", "trial", i, "error", err)
		out.Status = model.LaunchFailed(err.Error())
		c.collect(&out)
		out.Elapsed = time.Since(out.Started)
		return out
	}

	out.Status = c.supervisor.Supervise(proc, c.cfg.Timeout)
	c.collect(&out)
	out.Elapsed = time.Since(out.Started)
	return out
}

// collect attaches the artifact path to the outcome when one exists.
// Collection problems are logged, not fatal: the trial result stands.
func (c *Controller) collect(out *model.Outcome) {
	path, ok, err := c.slot.Collect(out.Trial)
	if err != nil {
		c.logger.Warn("artifact collection failed", "trial", out.Trial, "error", err)
		return
	}
	if ok {
		out.LogPath = path
	}
}

// sleepWithContext sleeps for d or until ctx is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
