package backup

import (
	"context"
	"strings"
	"testing"

	"github.com/rowanhale/labwise/internal/model"
)

func insertPatient(t *testing.T, env *testEnv, id, first, last string) {
	t.Helper()
	_, err := env.db.Exec(
		`INSERT INTO patients (id, first_name, last_name) VALUES (?, ?, ?)`,
		id, first, last,
	)
	if err != nil {
		t.Fatalf("insert patient: %v", err)
	}
}

func countRows(t *testing.T, env *testEnv, table string) int {
	t.Helper()
	var n int
	if err := env.db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestRestoreRoundTrip(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	insertPatient(t, env, "p1", "Ada", "Lovelace")
	insertPatient(t, env, "p2", "Rosalind", "Franklin")

	record, err := env.manager.Run(ctx, Trigger{Type: model.BackupTypeManual, CreatedBy: "admin"})
	if err != nil {
		t.Fatalf("run backup: %v", err)
	}

	// Mutate the live data, then restore the snapshot.
	if _, err := env.db.Exec(`DELETE FROM patients`); err != nil {
		t.Fatalf("clear patients: %v", err)
	}
	insertPatient(t, env, "p3", "Marie", "Curie")

	result := env.manager.Restore(ctx, record.ID)
	if !result.Success {
		t.Fatalf("restore failed: %s", result.Message)
	}
	if len(result.Collections) == 0 {
		t.Error("restore should report applied collections")
	}

	if got := countRows(t, env, "patients"); got != 2 {
		t.Errorf("patients after restore = %d, want 2", got)
	}
	var name string
	if err := env.db.QueryRow(`SELECT first_name FROM patients WHERE id = 'p1'`).Scan(&name); err != nil {
		t.Fatalf("read restored patient: %v", err)
	}
	if name != "Ada" {
		t.Errorf("restored patient name = %q, want Ada", name)
	}
}

func TestRestoreCompressedEncryptedSnapshot(t *testing.T) {
	env := newTestEnv(t, Config{Passphrase: "correct horse"})
	ctx := context.Background()

	settings, _ := env.settings.GetOrCreate()
	settings.CompressionEnabled = true
	settings.EncryptionEnabled = true
	if err := env.settings.Update(settings); err != nil {
		t.Fatalf("update settings: %v", err)
	}

	insertPatient(t, env, "p1", "Ada", "Lovelace")

	record, err := env.manager.Run(ctx, Trigger{Type: model.BackupTypeManual, CreatedBy: "admin"})
	if err != nil {
		t.Fatalf("run backup: %v", err)
	}

	data, _, err := env.manager.Download(ctx, record.ID)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if !encrypted(data) {
		t.Error("artifact should carry the encryption header")
	}

	if _, err := env.db.Exec(`DELETE FROM patients`); err != nil {
		t.Fatalf("clear patients: %v", err)
	}

	result := env.manager.Restore(ctx, record.ID)
	if !result.Success {
		t.Fatalf("restore failed: %s", result.Message)
	}
	if got := countRows(t, env, "patients"); got != 1 {
		t.Errorf("patients after restore = %d, want 1", got)
	}
}

func TestRestoreUnknownBackup(t *testing.T) {
	env := newTestEnv(t, Config{})
	result := env.manager.Restore(context.Background(), "missing")
	if result.Success {
		t.Error("expected failure for unknown backup")
	}
	if result.Message != "Backup not found" {
		t.Errorf("message = %q", result.Message)
	}
}

func TestValidateSnapshot(t *testing.T) {
	env := newTestEnv(t, Config{})
	valid := []byte(`{"metadata":{"version":"1.0","createdAt":"2026-01-05T02:00:00Z","description":"x","type":"MANUAL"},"data":{"patients":[]}}`)

	tests := []struct {
		name     string
		filename string
		size     int64
		data     []byte
		wantOK   bool
		wantErr  string
	}{
		{"valid backup extension", "snap.backup", int64(len(valid)), valid, true, ""},
		{"valid json extension", "snap.json", int64(len(valid)), valid, true, ""},
		{"oversize", "snap.backup", MaxSnapshotSize + 1, valid, false, "too large"},
		{"wrong extension", "snap.txt", 10, valid, false, "Invalid file format"},
		{"not json", "snap.backup", 9, []byte("not json!"), false, "not a valid snapshot"},
		{"missing data section", "snap.backup", 20, []byte(`{"metadata":{}}`), false, "Missing metadata or data"},
		{"missing metadata section", "snap.backup", 13, []byte(`{"data":{}}`), false, "Missing metadata or data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := env.manager.ValidateSnapshot(tt.filename, tt.size, tt.data)
			if got.Valid != tt.wantOK {
				t.Fatalf("valid = %v, want %v (error: %s)", got.Valid, tt.wantOK, got.Error)
			}
			if !tt.wantOK && !strings.Contains(got.Error, tt.wantErr) {
				t.Errorf("error %q should contain %q", got.Error, tt.wantErr)
			}
		})
	}
}

func TestValidateSnapshotReportsInfo(t *testing.T) {
	env := newTestEnv(t, Config{})
	data := []byte(`{"metadata":{"version":"1.0","createdAt":"2026-01-05T02:00:00Z","description":"weekly","type":"AUTOMATIC"},"data":{"patients":[],"doctors":[]}}`)

	result := env.manager.ValidateSnapshot("snap.backup", int64(len(data)), data)
	if !result.Valid {
		t.Fatalf("unexpected invalid: %s", result.Error)
	}
	if result.Info == nil {
		t.Fatal("expected file info")
	}
	if result.Info.Version != "1.0" || result.Info.Collections != 2 {
		t.Errorf("info = %+v", result.Info)
	}
}

func TestRestoreSnapshotRejectsInvalid(t *testing.T) {
	env := newTestEnv(t, Config{})
	result := env.manager.RestoreSnapshot(context.Background(), "snap.txt", []byte("junk"))
	if result.Success {
		t.Error("expected failure for invalid snapshot")
	}
}
