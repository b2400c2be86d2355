package trial

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/me/kbench/internal/config"
	"github.com/me/kbench/internal/launch"
	"github.com/me/kbench/internal/logging"
	"github.com/me/kbench/internal/supervise"
	"github.com/me/kbench/pkg/model"
)

// fakeResetter fails on the trial numbers listed in failOn.
type fakeResetter struct {
	calls  int
	failOn map[int]bool
}

func (f *fakeResetter) Reset(context.Context) error {
	f.calls++
	if f.failOn[f.calls] {
		return fmt.Errorf("bus reset failed")
	}
	return nil
}

// fakeProc satisfies supervise.Process without a real child.
type fakeProc struct{ done chan launch.ExitResult }

func newFakeProc() *fakeProc {
	return &fakeProc{done: make(chan launch.ExitResult, 1)}
}

func (p *fakeProc) Done() <-chan launch.ExitResult { return p.done }
func (p *fakeProc) Interrupt() error               { return nil }
func (p *fakeProc) Kill() error                    { return nil }

// fakeLauncher tracks launches and verifies they never overlap with a
// still-running process.
type fakeLauncher struct {
	launches int
	failOn   map[int]bool
	inFlight bool
	overlap  bool
}

func (f *fakeLauncher) Launch(trial int) (supervise.Process, error) {
	f.launches++
	if f.failOn[trial] {
		return nil, fmt.Errorf("launch: sudo denied")
	}
	if f.inFlight {
		f.overlap = true
	}
	f.inFlight = true
	return newFakeProc(), nil
}

// fakeSupervisor returns scripted statuses in trial order.
type fakeSupervisor struct {
	launcher *fakeLauncher
	statuses []model.ExitStatus
	calls    int
}

func (f *fakeSupervisor) Supervise(supervise.Process, time.Duration) model.ExitStatus {
	if f.launcher != nil {
		f.launcher.inFlight = false
	}
	st := f.statuses[f.calls%len(f.statuses)]
	f.calls++
	return st
}

// fakeSlot records discards and produces artifacts on demand.
type fakeSlot struct {
	discards int
	present  map[int]bool
	collects []int
}

func (f *fakeSlot) Discard() error { f.discards++; return nil }

func (f *fakeSlot) Collect(trial int) (string, bool, error) {
	f.collects = append(f.collects, trial)
	if f.present[trial] {
		return fmt.Sprintf("logs/kbot_trial_%d.log", trial), true, nil
	}
	return "", false, nil
}

func testController(cfg config.RunConfig, r *fakeResetter, l *fakeLauncher, s *fakeSupervisor, slot *fakeSlot) (*Controller, *[]time.Duration) {
	c := NewController(cfg, r, l, s, slot, logging.Discard())
	var sleeps []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) { sleeps = append(sleeps, d) }
	return c, &sleeps
}

func batchConfig(n int) config.RunConfig {
	cfg := config.Default()
	cfg.Trials = n
	cfg.Control.ModelPath = "/models/walk.kinfer"
	cfg.Timeout = time.Minute
	cfg.Cooldown = 20 * time.Second
	return cfg
}

func TestRunProducesOrderedOutcomes(t *testing.T) {
	launcher := &fakeLauncher{}
	sup := &fakeSupervisor{launcher: launcher, statuses: []model.ExitStatus{model.NormalExit(0)}}
	slot := &fakeSlot{present: map[int]bool{1: true, 2: true, 3: true}}
	c, sleeps := testController(batchConfig(3), &fakeResetter{}, launcher, sup, slot)

	outcomes := c.Run(context.Background())

	if len(outcomes) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(outcomes))
	}
	for i, out := range outcomes {
		if out.Trial != i+1 {
			t.Errorf("outcomes[%d].Trial = %d, want %d", i, out.Trial, i+1)
		}
		if out.Status.Kind != model.StatusNormalExit {
			t.Errorf("trial %d status = %v", out.Trial, out.Status)
		}
		if out.LogPath == "" {
			t.Errorf("trial %d missing log path", out.Trial)
		}
	}
	if launcher.overlap {
		t.Error("process lifetimes overlapped across trials")
	}
	// Cooldown between trials only: N-1 sleeps.
	if len(*sleeps) != 2 {
		t.Errorf("got %d cooldowns, want 2", len(*sleeps))
	}
	if slot.discards != 3 {
		t.Errorf("slot discarded %d times, want once per trial", slot.discards)
	}
}

func TestBusFailureIsTrialScoped(t *testing.T) {
	// Scenario: bus reset fails on trial 1 only; trial 2 proceeds normally.
	resetter := &fakeResetter{failOn: map[int]bool{1: true}}
	launcher := &fakeLauncher{}
	sup := &fakeSupervisor{launcher: launcher, statuses: []model.ExitStatus{model.NormalExit(0)}}
	slot := &fakeSlot{present: map[int]bool{2: true}}
	c, _ := testController(batchConfig(2), resetter, launcher, sup, slot)

	outcomes := c.Run(context.Background())

	if len(outcomes) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(outcomes))
	}
	if outcomes[0].Status.Kind != model.StatusLaunchFailed {
		t.Errorf("trial 1 status = %v, want LaunchFailed", outcomes[0].Status)
	}
	if outcomes[0].Status.Reason != "bus reset" {
		t.Errorf("trial 1 reason = %q, want \"bus reset\"", outcomes[0].Status.Reason)
	}
	if outcomes[0].LogPath != "" {
		t.Errorf("trial 1 has log path %q, want none", outcomes[0].LogPath)
	}
	if outcomes[1].Status.Kind != model.StatusNormalExit {
		t.Errorf("trial 2 status = %v, want NormalExit", outcomes[1].Status)
	}
	// Trial 2 still attempted a fresh reset.
	if resetter.calls != 2 {
		t.Errorf("bus reset called %d times, want 2", resetter.calls)
	}
	// Launch skipped for the failed trial.
	if launcher.launches != 1 {
		t.Errorf("launches = %d, want 1", launcher.launches)
	}
}

func TestLaunchFailureIsTrialScoped(t *testing.T) {
	launcher := &fakeLauncher{failOn: map[int]bool{2: true}}
	sup := &fakeSupervisor{launcher: launcher, statuses: []model.ExitStatus{model.NormalExit(0)}}
	slot := &fakeSlot{}
	c, _ := testController(batchConfig(3), &fakeResetter{}, launcher, sup, slot)

	outcomes := c.Run(context.Background())

	if outcomes[1].Status.Kind != model.StatusLaunchFailed {
		t.Errorf("trial 2 status = %v, want LaunchFailed", outcomes[1].Status)
	}
	if outcomes[0].Status.Kind != model.StatusNormalExit || outcomes[2].Status.Kind != model.StatusNormalExit {
		t.Error("trials 1 and 3 should be unaffected by trial 2's failure")
	}
}

func TestInterruptedBatch(t *testing.T) {
	// Scenario: the control process never exits on its own; every trial is
	// interrupted and each produces a distinct artifact.
	launcher := &fakeLauncher{}
	sup := &fakeSupervisor{launcher: launcher, statuses: []model.ExitStatus{model.Interrupted(false)}}
	slot := &fakeSlot{present: map[int]bool{1: true, 2: true, 3: true}}
	cfg := batchConfig(3)
	cfg.RealTime = true
	c, sleeps := testController(cfg, &fakeResetter{}, launcher, sup, slot)

	outcomes := c.Run(context.Background())

	paths := map[string]bool{}
	for _, out := range outcomes {
		if out.Status.Kind != model.StatusInterrupted {
			t.Errorf("trial %d status = %v, want Interrupted", out.Trial, out.Status)
		}
		if out.LogPath == "" {
			t.Errorf("trial %d missing log path", out.Trial)
		}
		paths[out.LogPath] = true
	}
	if len(paths) != 3 {
		t.Errorf("collected %d distinct paths, want 3", len(paths))
	}
	for _, d := range *sleeps {
		if d != 20*time.Second {
			t.Errorf("cooldown = %s, want 20s", d)
		}
	}
}

func TestCollectRunsEvenWhenTrialFails(t *testing.T) {
	resetter := &fakeResetter{failOn: map[int]bool{1: true}}
	slot := &fakeSlot{}
	launcher := &fakeLauncher{}
	sup := &fakeSupervisor{launcher: launcher, statuses: []model.ExitStatus{model.NormalExit(0)}}
	c, _ := testController(batchConfig(1), resetter, launcher, sup, slot)

	c.Run(context.Background())

	if len(slot.collects) != 1 || slot.collects[0] != 1 {
		t.Errorf("collects = %v, want [1]", slot.collects)
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	launcher := &fakeLauncher{}
	sup := &fakeSupervisor{launcher: launcher, statuses: []model.ExitStatus{model.NormalExit(0)}}
	c, _ := testController(batchConfig(5), &fakeResetter{}, launcher, sup, &fakeSlot{})

	outcomes := c.Run(ctx)

	if len(outcomes) != 1 {
		t.Errorf("got %d outcomes after cancellation, want 1", len(outcomes))
	}
}
