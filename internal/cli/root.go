// Package cli implements the kbench command line interface.
package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/me/kbench/internal/logging"
)

var (
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
)

// NewRootCmd creates the root cobra command for kbench.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "kbench",
		Short: "kbench is a trial harness for the kbot control runtime",
		Long: "kbench runs repeated bounded trials of the kbot control process:\n" +
			"bus reset, launch (optionally real-time), timed execution with\n" +
			"graceful interrupt, and per-trial log collection.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.New(logging.ParseLevel(flagLogLevel), flagLogFormat)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newRunCmd(),
		newHistoryCmd(),
	)

	return root
}
