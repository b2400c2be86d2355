package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/kbench/internal/store"
)

func newHistoryCmd() *cobra.Command {
	var dbPath string
	var limit int

	cmd := &cobra.Command{
		Use:   "history [batch-id]",
		Short: "List recorded batches, or show one batch's trials",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.NewSQLiteStore(dbPath, logger)
			if err != nil {
				return fmt.Errorf("open history db: %w", err)
			}
			defer st.Close()
			if err := st.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate history db: %w", err)
			}

			stdout := cmd.OutOrStdout()

			if len(args) == 1 {
				b, err := st.GetBatch(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("get batch: %w", err)
				}
				if b == nil {
					return fmt.Errorf("batch %s not found", args[0])
				}
				fmt.Fprintf(stdout, "batch %s  model=%s  rt=%v  trials=%d  %s\n",
					b.ID, b.ModelPath, b.RealTime, b.Trials,
					b.CreatedAt.Format(time.RFC3339))
				for _, out := range b.Outcomes {
					line := fmt.Sprintf("  trial %d: %s", out.Trial, out.Status)
					if out.LogPath != "" {
						line += fmt.Sprintf(" (log: %s)", out.LogPath)
					}
					fmt.Fprintln(stdout, line)
				}
				return nil
			}

			batches, err := st.ListBatches(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list batches: %w", err)
			}
			for _, b := range batches {
				fmt.Fprintf(stdout, "%s  %s  model=%s  rt=%v  trials=%d\n",
					b.ID, b.CreatedAt.Format(time.RFC3339), b.ModelPath, b.RealTime, b.Trials)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "kbench.db", "SQLite batch history database")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum batches to list")

	return cmd
}
