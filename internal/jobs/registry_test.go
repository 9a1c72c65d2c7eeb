package jobs

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(r.StopAll)
	return r
}

func TestRegisterAndStop(t *testing.T) {
	r := newTestRegistry(t)

	if err := r.Register("backup", "0 2 * * *", func() {}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !r.Has("backup") {
		t.Error("job should be registered")
	}
	if r.Count() != 1 {
		t.Errorf("count = %d, want 1", r.Count())
	}

	if !r.Stop("backup") {
		t.Error("stop should report true for a registered job")
	}
	if r.Has("backup") {
		t.Error("job should be gone after stop")
	}
	if r.Stop("backup") {
		t.Error("second stop should report false")
	}
}

func TestRegisterInvalidSchedule(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Register("bad", "not a schedule", func() {}); err == nil {
		t.Error("expected error for invalid cron expression")
	}
	if r.Has("bad") {
		t.Error("failed registration must not leave an entry")
	}
}

func TestRegisterReplacesExisting(t *testing.T) {
	r := newTestRegistry(t)

	if err := r.Register("backup", "0 2 * * *", func() {}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register("backup", "0 2 * * 0", func() {}); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if r.Count() != 1 {
		t.Errorf("count = %d, want 1 after replacement", r.Count())
	}

	statuses := r.Active()
	if len(statuses) != 1 {
		t.Fatalf("active = %d, want 1", len(statuses))
	}
	if statuses[0].Schedule != "0 2 * * 0" {
		t.Errorf("schedule = %q, want the replacement", statuses[0].Schedule)
	}
}

func TestNextRun(t *testing.T) {
	r := newTestRegistry(t)

	if _, ok := r.NextRun("backup"); ok {
		t.Error("unknown job should have no next run")
	}

	if err := r.Register("backup", "0 2 * * *", func() {}); err != nil {
		t.Fatalf("register: %v", err)
	}

	next, ok := r.NextRun("backup")
	if !ok {
		t.Fatal("registered job should have a next run")
	}
	if !next.After(time.Now().UTC().Add(-time.Minute)) {
		t.Errorf("next run %v should be in the future", next)
	}
	if next.Hour() != 2 || next.Minute() != 0 {
		t.Errorf("next run %v should be at 02:00 UTC", next)
	}
}

func TestActiveSnapshot(t *testing.T) {
	r := newTestRegistry(t)

	if err := r.Register("backup", "0 2 * * 0", func() {}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register("qc-reminder", "0 8 * * *", func() {}); err != nil {
		t.Fatalf("register: %v", err)
	}

	statuses := r.Active()
	if len(statuses) != 2 {
		t.Fatalf("active = %d, want 2", len(statuses))
	}
	for _, s := range statuses {
		if !s.Scheduled {
			t.Errorf("job %q should report scheduled", s.Name)
		}
		if s.NextRun.IsZero() {
			t.Errorf("job %q should have a next run", s.Name)
		}
	}
}

func TestStopAll(t *testing.T) {
	r := newTestRegistry(t)

	if err := r.Register("a", "0 2 * * *", func() {}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register("b", "0 8 * * *", func() {}); err != nil {
		t.Fatalf("register: %v", err)
	}

	r.StopAll()
	if r.Count() != 0 {
		t.Errorf("count = %d, want 0 after StopAll", r.Count())
	}
}
