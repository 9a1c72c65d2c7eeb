package store

import (
	"testing"
	"time"

	"github.com/rowanhale/labwise/internal/database"
	"github.com/rowanhale/labwise/internal/model"
)

func setupBackupTestDB(t *testing.T) *BackupStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewBackupStore(db)
}

func TestBackupCreate(t *testing.T) {
	s := setupBackupTestDB(t)

	b, err := s.Create("backup-x.backup", "admin", "manual run", model.BackupTypeManual)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.ID == "" {
		t.Error("expected generated id")
	}
	if b.Status != model.BackupStatusPending {
		t.Errorf("status = %q, want PENDING", b.Status)
	}
	if b.Size != 0 {
		t.Errorf("size = %d, want 0", b.Size)
	}

	got, err := s.GetByID(b.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected backup, got nil")
	}
	if got.Filename != "backup-x.backup" || got.CreatedBy != "admin" || got.Description != "manual run" {
		t.Errorf("got %+v", got)
	}
}

func TestBackupGetByIDMissing(t *testing.T) {
	s := setupBackupTestDB(t)
	got, err := s.GetByID("missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestBackupStatusNeverLeavesTerminal(t *testing.T) {
	s := setupBackupTestDB(t)

	b, _ := s.Create("backup-x.backup", "admin", "", model.BackupTypeManual)
	if err := s.SetStatus(b.ID, model.BackupStatusInProgress, ""); err != nil {
		t.Fatalf("set in progress: %v", err)
	}
	if err := s.SetCompleted(b.ID, 1024); err != nil {
		t.Fatalf("set completed: %v", err)
	}

	// A late failure report must not regress the terminal state.
	if err := s.SetStatus(b.ID, model.BackupStatusFailed, "late error"); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	got, _ := s.GetByID(b.ID)
	if got.Status != model.BackupStatusCompleted {
		t.Errorf("status = %q, want COMPLETED", got.Status)
	}
	if got.Size != 1024 {
		t.Errorf("size = %d, want 1024", got.Size)
	}
	if got.ErrorMessage != "" {
		t.Errorf("error message = %q, want empty", got.ErrorMessage)
	}
}

func TestBackupSetStatusRecordsError(t *testing.T) {
	s := setupBackupTestDB(t)

	b, _ := s.Create("backup-x.backup", "admin", "", model.BackupTypeManual)
	if err := s.SetStatus(b.ID, model.BackupStatusFailed, "write snapshot: disk full"); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	got, _ := s.GetByID(b.ID)
	if got.Status != model.BackupStatusFailed {
		t.Errorf("status = %q, want FAILED", got.Status)
	}
	if got.ErrorMessage != "write snapshot: disk full" {
		t.Errorf("error message = %q", got.ErrorMessage)
	}
	if !got.Status.Terminal() {
		t.Error("FAILED should be terminal")
	}
}

func TestBackupListNewestFirst(t *testing.T) {
	s := setupBackupTestDB(t)

	a, _ := s.Create("backup-a.backup", "admin", "", model.BackupTypeManual)
	b, _ := s.Create("backup-b.backup", "admin", "", model.BackupTypeAutomatic)

	// Distinct timestamps so the ordering is deterministic.
	if _, err := s.db.Exec(`UPDATE backups SET created_at = ? WHERE id = ?`, time.Now().UTC().Add(-time.Hour), a.ID); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	list, err := s.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].ID != b.ID {
		t.Errorf("first = %q, want newest %q", list[0].ID, b.ID)
	}
}

func TestBackupListExpiredAutomatic(t *testing.T) {
	s := setupBackupTestDB(t)

	oldAuto, _ := s.Create("backup-auto-old.backup", "system-auto", "", model.BackupTypeAutomatic)
	oldManual, _ := s.Create("backup-old.backup", "admin", "", model.BackupTypeManual)
	fresh, _ := s.Create("backup-auto-new.backup", "system-auto", "", model.BackupTypeAutomatic)

	past := time.Now().UTC().AddDate(0, 0, -40)
	for _, id := range []string{oldAuto.ID, oldManual.ID} {
		if _, err := s.db.Exec(`UPDATE backups SET created_at = ? WHERE id = ?`, past, id); err != nil {
			t.Fatalf("backdate: %v", err)
		}
	}

	expired, err := s.ListExpiredAutomatic(time.Now().UTC().AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("list expired: %v", err)
	}
	if len(expired) != 1 {
		t.Fatalf("expired = %d, want 1", len(expired))
	}
	if expired[0].ID != oldAuto.ID {
		t.Errorf("expired = %q, want %q", expired[0].ID, oldAuto.ID)
	}
	_ = fresh
}

func TestBackupLatestCompleted(t *testing.T) {
	s := setupBackupTestDB(t)

	latest, err := s.LatestCompleted()
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest != nil {
		t.Errorf("expected nil with no backups, got %+v", latest)
	}

	failed, _ := s.Create("backup-f.backup", "admin", "", model.BackupTypeManual)
	s.SetStatus(failed.ID, model.BackupStatusFailed, "boom")

	latest, err = s.LatestCompleted()
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest != nil {
		t.Error("failed backups must not count as latest completed")
	}

	done, _ := s.Create("backup-d.backup", "admin", "", model.BackupTypeManual)
	s.SetCompleted(done.ID, 512)

	latest, err = s.LatestCompleted()
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest == nil || latest.ID != done.ID {
		t.Errorf("latest = %+v, want %q", latest, done.ID)
	}
}

func TestBackupStats(t *testing.T) {
	s := setupBackupTestDB(t)

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalBackups != 0 || stats.TotalSize != 0 || stats.LastBackup != nil {
		t.Errorf("empty stats = %+v", stats)
	}

	a, _ := s.Create("backup-a.backup", "admin", "", model.BackupTypeManual)
	s.SetCompleted(a.ID, 100)
	b, _ := s.Create("backup-b.backup", "admin", "", model.BackupTypeAutomatic)
	s.SetCompleted(b.ID, 300)
	failed, _ := s.Create("backup-c.backup", "admin", "", model.BackupTypeManual)
	s.SetStatus(failed.ID, model.BackupStatusFailed, "boom")

	stats, err = s.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalBackups != 2 {
		t.Errorf("total = %d, want 2", stats.TotalBackups)
	}
	if stats.TotalSize != 400 {
		t.Errorf("total size = %d, want 400", stats.TotalSize)
	}
	if stats.AverageSize != 200 {
		t.Errorf("average = %d, want 200", stats.AverageSize)
	}
	if stats.LastBackup == nil || stats.OldestBackup == nil {
		t.Error("expected last and oldest timestamps")
	}
}

func TestBackupDelete(t *testing.T) {
	s := setupBackupTestDB(t)

	b, _ := s.Create("backup-x.backup", "admin", "", model.BackupTypeManual)
	if err := s.Delete(b.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, _ := s.GetByID(b.ID)
	if got != nil {
		t.Error("backup should be gone")
	}
}
