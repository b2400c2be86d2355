package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/me/kbench/internal/artifact"
	"github.com/me/kbench/internal/bus"
	"github.com/me/kbench/internal/config"
	"github.com/me/kbench/internal/launch"
	"github.com/me/kbench/internal/store"
	"github.com/me/kbench/internal/supervise"
	"github.com/me/kbench/internal/trial"
	"github.com/me/kbench/pkg/model"
)

func newRunCmd() *cobra.Command {
	var (
		configPath string
		trials     int
		realTime   bool
		timeout    time.Duration
		cooldown   time.Duration
		modelPath  string
		dbPath     string
		strict     bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a batch of control trials",
		Long: `Runs N sequential trials. Each trial resets the bus, launches the
control process (under sudo chrt -f in real-time mode), lets it run until
it exits or the timeout expires, interrupts it at the deadline, and moves
its log artifact to a trial-indexed path.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				if err := config.Load(configPath, &cfg); err != nil {
					return err
				}
			}

			// Explicit flags override the config file.
			flags := cmd.Flags()
			if flags.Changed("n") {
				cfg.Trials = trials
			}
			if flags.Changed("rt") {
				cfg.RealTime = realTime
			}
			if flags.Changed("timeout") {
				cfg.Timeout = timeout
			}
			if flags.Changed("cooldown") {
				cfg.Cooldown = cooldown
			}
			if flags.Changed("model-path") {
				cfg.Control.ModelPath = modelPath
			}
			if flags.Changed("db") {
				cfg.HistoryDB = dbPath
			}

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			return runBatch(cmd.Context(), cfg, strict, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&trials, "n", 1, "Number of trials")
	cmd.Flags().BoolVar(&realTime, "rt", false, "Launch under elevated real-time scheduling")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Per-trial execution window")
	cmd.Flags().DurationVar(&cooldown, "cooldown", 20*time.Second, "Settle time between trials")
	cmd.Flags().StringVar(&modelPath, "model-path", "", "Path to the model the control process loads")
	cmd.Flags().StringVar(&configPath, "config", "", "YAML config file")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite batch history database (empty disables)")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when any trial fails to launch")

	return cmd
}

// launcherAdapter narrows *launch.Launcher to the trial loop's interface.
type launcherAdapter struct {
	l *launch.Launcher
}

func (a launcherAdapter) Launch(trial int) (supervise.Process, error) {
	return a.l.Launch(trial)
}

func runBatch(ctx context.Context, cfg config.RunConfig, strict bool, stdout io.Writer) error {
	resetter := bus.NewExecResetter(cfg.Bus.ResetCommand, logger)
	launcher := launch.NewLauncher(cfg, logger)
	sup := supervise.New(logger)
	slot := artifact.NewSlot(cfg.Artifact.LivePath, cfg.Artifact.Dir, logger)
	ctrl := trial.NewController(cfg, resetter, launcherAdapter{launcher}, sup, slot, logger)

	batch := &model.Batch{
		ID:        uuid.NewString(),
		ModelPath: cfg.Control.ModelPath,
		RealTime:  cfg.RealTime,
		Trials:    cfg.Trials,
		CreatedAt: time.Now().UTC(),
	}

	var history store.Store
	if cfg.HistoryDB != "" {
		st, err := store.NewSQLiteStore(cfg.HistoryDB, logger)
		if err != nil {
			return fmt.Errorf("open history db: %w", err)
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate history db: %w", err)
		}
		if err := st.CreateBatch(ctx, batch); err != nil {
			return fmt.Errorf("record batch: %w", err)
		}
		history = st
	}

	logger.Info("starting batch",
		"batch", batch.ID,
		"trials", cfg.Trials,
		"mode", launch.ModeFor(cfg),
		"timeout", cfg.Timeout,
	)

	outcomes := ctrl.Run(ctx)

	for _, out := range outcomes {
		if history != nil {
			if err := history.AppendOutcome(ctx, batch.ID, out); err != nil {
				logger.Warn("could not record outcome", "trial", out.Trial, "error", err)
			}
		}
		line := fmt.Sprintf("trial %d: %s", out.Trial, out.Status)
		if out.LogPath != "" {
			line += fmt.Sprintf(" (log: %s)", out.LogPath)
		}
		fmt.Fprintln(stdout, line)
	}

	sum := model.Summarize(outcomes)
	fmt.Fprintf(stdout, "batch %s: %d attempted, %d normal, %d interrupted, %d failed\n",
		batch.ID, sum.Attempted, sum.Normal, sum.Interrupted, sum.Failed)

	if strict && sum.Failed > 0 {
		return fmt.Errorf("%d of %d trials failed to launch", sum.Failed, sum.Attempted)
	}
	return nil
}
