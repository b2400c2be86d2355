// Package artifact manages the log file the control process leaves behind.
package artifact

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Slot is the single live artifact location shared by all trials. The
// control process writes LivePath while running; the harness clears it
// before each launch and moves it to a trial-indexed path afterwards.
// Passing the slot in explicitly keeps tests on isolated paths.
type Slot struct {
	LivePath string
	Dir      string

	logger *slog.Logger
}

// NewSlot creates a Slot for the given live path and collection directory.
func NewSlot(livePath, dir string, logger *slog.Logger) *Slot {
	return &Slot{
		LivePath: livePath,
		Dir:      dir,
		logger:   logger.With("component", "artifact"),
	}
}

// Discard removes a stale artifact before a launch. Absence is not an
// error: the slot must simply be empty afterwards.
func (s *Slot) Discard() error {
	err := os.Remove(s.LivePath)
	if err == nil {
		s.logger.Debug("discarded stale artifact", "path", s.LivePath)
		return nil
	}
	if os.IsNotExist(err) {
		return nil
	}
	return fmt.Errorf("discard artifact: %w", err)
}

// Collect moves the live artifact to its trial-indexed destination and
// returns that path. When the control process produced no artifact (it may
// have died before file logging came up), Collect returns ok=false and no
// error.
func (s *Slot) Collect(trial int) (path string, ok bool, err error) {
	if _, err := os.Stat(s.LivePath); err != nil {
		if os.IsNotExist(err) {
			s.logger.Info("no artifact produced", "trial", trial)
			return "", false, nil
		}
		return "", false, fmt.Errorf("stat artifact: %w", err)
	}

	dest := s.DestPath(trial)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", false, fmt.Errorf("create artifact dir: %w", err)
	}
	if err := moveFile(s.LivePath, dest); err != nil {
		return "", false, fmt.Errorf("collect artifact: %w", err)
	}

	s.logger.Info("artifact collected", "trial", trial, "path", dest)
	return dest, true, nil
}

// DestPath returns the trial-indexed destination for a collected artifact.
func (s *Slot) DestPath(trial int) string {
	base := filepath.Base(s.LivePath)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]
	return filepath.Join(s.Dir, fmt.Sprintf("%s_trial_%d%s", name, trial, ext))
}

// moveFile renames src to dst, falling back to copy+remove across devices.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return os.Remove(src)
}
