package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rowanhale/labwise/internal/model"
)

type BackupStore struct {
	db *sql.DB
}

func NewBackupStore(db *sql.DB) *BackupStore {
	return &BackupStore{db: db}
}

func (s *BackupStore) Create(filename, createdBy, description string, typ model.BackupType) (*model.Backup, error) {
	now := time.Now().UTC()
	b := &model.Backup{
		ID:          uuid.NewString(),
		Filename:    filename,
		Status:      model.BackupStatusPending,
		CreatedBy:   createdBy,
		Type:        typ,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := s.db.Exec(
		`INSERT INTO backups (id, filename, status, size, created_by, type, description, created_at, updated_at)
		 VALUES (?, ?, ?, 0, ?, ?, ?, ?, ?)`,
		b.ID, b.Filename, b.Status, b.CreatedBy, b.Type, b.Description, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create backup: %w", err)
	}
	return b, nil
}

const backupColumns = `id, filename, status, size, created_by, type, description, error_message, created_at, updated_at`

func scanBackup(row interface{ Scan(...any) error }) (*model.Backup, error) {
	b := &model.Backup{}
	var description, errMsg sql.NullString
	err := row.Scan(&b.ID, &b.Filename, &b.Status, &b.Size, &b.CreatedBy, &b.Type, &description, &errMsg, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.Description = description.String
	b.ErrorMessage = errMsg.String
	return b, nil
}

func (s *BackupStore) GetByID(id string) (*model.Backup, error) {
	b, err := scanBackup(s.db.QueryRow(
		`SELECT `+backupColumns+` FROM backups WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get backup %s: %w", id, err)
	}
	return b, nil
}

func (s *BackupStore) List() ([]model.Backup, error) {
	rows, err := s.db.Query(
		`SELECT ` + backupColumns + ` FROM backups ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	defer rows.Close()

	var backups []model.Backup
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backup: %w", err)
		}
		backups = append(backups, *b)
	}
	return backups, rows.Err()
}

// SetStatus transitions a backup to a new lifecycle status. The status
// machine only moves forward (PENDING -> IN_PROGRESS -> terminal); a row
// already in a terminal state is left untouched.
func (s *BackupStore) SetStatus(id string, status model.BackupStatus, errorMsg string) error {
	var errPtr *string
	if errorMsg != "" {
		errPtr = &errorMsg
	}
	_, err := s.db.Exec(
		`UPDATE backups SET status = ?, error_message = ?, updated_at = ?
		 WHERE id = ? AND status NOT IN (?, ?)`,
		status, errPtr, time.Now().UTC(), id,
		model.BackupStatusCompleted, model.BackupStatusFailed,
	)
	if err != nil {
		return fmt.Errorf("update backup status: %w", err)
	}
	return nil
}

// SetCompleted marks a backup COMPLETED and records the artifact size.
func (s *BackupStore) SetCompleted(id string, size int64) error {
	_, err := s.db.Exec(
		`UPDATE backups SET status = ?, size = ?, updated_at = ? WHERE id = ?`,
		model.BackupStatusCompleted, size, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update backup completed: %w", err)
	}
	return nil
}

func (s *BackupStore) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM backups WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete backup %s: %w", id, err)
	}
	return nil
}

// ListExpiredAutomatic returns automatic backups created before the cutoff.
// Manual backups are never returned, whatever their age.
func (s *BackupStore) ListExpiredAutomatic(before time.Time) ([]model.Backup, error) {
	rows, err := s.db.Query(
		`SELECT `+backupColumns+` FROM backups WHERE type = ? AND created_at < ?`,
		model.BackupTypeAutomatic, before,
	)
	if err != nil {
		return nil, fmt.Errorf("list expired backups: %w", err)
	}
	defer rows.Close()

	var backups []model.Backup
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired backup: %w", err)
		}
		backups = append(backups, *b)
	}
	return backups, rows.Err()
}

func (s *BackupStore) LatestCompleted() (*model.Backup, error) {
	b, err := scanBackup(s.db.QueryRow(
		`SELECT `+backupColumns+` FROM backups WHERE status = ? ORDER BY created_at DESC LIMIT 1`,
		model.BackupStatusCompleted,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest completed backup: %w", err)
	}
	return b, nil
}

// Stats summarizes completed backups for the admin dashboard.
type BackupStats struct {
	TotalBackups int64      `json:"totalBackups"`
	TotalSize    int64      `json:"totalSize"`
	AverageSize  int64      `json:"averageSize"`
	LastBackup   *time.Time `json:"lastBackupDate,omitempty"`
	OldestBackup *time.Time `json:"oldestBackup,omitempty"`
}

func (s *BackupStore) Stats() (*BackupStats, error) {
	stats := &BackupStats{}
	var total sql.NullInt64
	var last, oldest sql.NullTime
	err := s.db.QueryRow(
		`SELECT COUNT(*), SUM(size), MAX(created_at), MIN(created_at)
		 FROM backups WHERE status = ?`,
		model.BackupStatusCompleted,
	).Scan(&stats.TotalBackups, &total, &last, &oldest)
	if err != nil {
		return nil, fmt.Errorf("backup stats: %w", err)
	}
	stats.TotalSize = total.Int64
	if stats.TotalBackups > 0 {
		stats.AverageSize = stats.TotalSize / stats.TotalBackups
	}
	if last.Valid {
		stats.LastBackup = &last.Time
	}
	if oldest.Valid {
		stats.OldestBackup = &oldest.Time
	}
	return stats, nil
}
