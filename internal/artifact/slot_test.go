package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/me/kbench/internal/logging"
)

func newTestSlot(t *testing.T) *Slot {
	t.Helper()
	dir := t.TempDir()
	return NewSlot(filepath.Join(dir, "kbot.log"), filepath.Join(dir, "collected"), logging.Discard())
}

func TestDiscardAbsent(t *testing.T) {
	s := newTestSlot(t)
	if err := s.Discard(); err != nil {
		t.Fatalf("Discard of absent artifact returned error: %v", err)
	}
	// Idempotent.
	if err := s.Discard(); err != nil {
		t.Fatalf("second Discard returned error: %v", err)
	}
}

func TestDiscardRemovesStaleArtifact(t *testing.T) {
	s := newTestSlot(t)
	if err := os.WriteFile(s.LivePath, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := s.Discard(); err != nil {
		t.Fatalf("Discard returned error: %v", err)
	}
	if _, err := os.Stat(s.LivePath); !os.IsNotExist(err) {
		t.Error("live artifact still present after Discard")
	}
}

func TestCollectMovesArtifact(t *testing.T) {
	s := newTestSlot(t)
	if err := os.WriteFile(s.LivePath, []byte("trial data"), 0o644); err != nil {
		t.Fatal(err)
	}

	path, ok, err := s.Collect(3)
	if err != nil {
		t.Fatalf("Collect returned error: %v", err)
	}
	if !ok {
		t.Fatal("Collect reported no artifact")
	}
	if want := s.DestPath(3); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read collected artifact: %v", err)
	}
	if string(data) != "trial data" {
		t.Errorf("collected content = %q", data)
	}
	if _, err := os.Stat(s.LivePath); !os.IsNotExist(err) {
		t.Error("live artifact still present after Collect")
	}
}

func TestCollectAbsent(t *testing.T) {
	s := newTestSlot(t)

	path, ok, err := s.Collect(1)
	if err != nil {
		t.Fatalf("Collect of absent artifact returned error: %v", err)
	}
	if ok || path != "" {
		t.Errorf("Collect = (%q, %v), want absent", path, ok)
	}
}

func TestDestPathIsTrialIndexed(t *testing.T) {
	s := newTestSlot(t)

	p1 := s.DestPath(1)
	p2 := s.DestPath(2)
	if p1 == p2 {
		t.Errorf("destinations collide: %q", p1)
	}
	if filepath.Base(p1) != "kbot_trial_1.log" {
		t.Errorf("DestPath(1) base = %q", filepath.Base(p1))
	}
}
