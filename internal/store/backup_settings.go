package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rowanhale/labwise/internal/model"
)

type BackupSettingsStore struct {
	db *sql.DB
}

func NewBackupSettingsStore(db *sql.DB) *BackupSettingsStore {
	return &BackupSettingsStore{db: db}
}

const settingsColumns = `id, auto_backup_enabled, backup_frequency, retention_days,
	include_files, compression_enabled, encryption_enabled,
	last_backup_date, next_scheduled_backup, cron_job_id, updated_at`

func (s *BackupSettingsStore) scan(row *sql.Row) (*model.BackupSettings, error) {
	st := &model.BackupSettings{}
	var last, next sql.NullTime
	var jobID sql.NullString
	err := row.Scan(&st.ID, &st.AutoBackupEnabled, &st.BackupFrequency, &st.RetentionDays,
		&st.IncludeFiles, &st.CompressionEnabled, &st.EncryptionEnabled,
		&last, &next, &jobID, &st.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if last.Valid {
		st.LastBackupDate = &last.Time
	}
	if next.Valid {
		st.NextScheduledBackup = &next.Time
	}
	st.CronJobID = jobID.String
	return st, nil
}

// GetOrCreate returns the settings singleton, inserting the default row
// (auto backup disabled, weekly, 30-day retention) if none exists yet.
func (s *BackupSettingsStore) GetOrCreate() (*model.BackupSettings, error) {
	st, err := s.scan(s.db.QueryRow(`SELECT ` + settingsColumns + ` FROM backup_settings LIMIT 1`))
	if err == nil {
		return st, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("get backup settings: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.Exec(
		`INSERT INTO backup_settings
		 (auto_backup_enabled, backup_frequency, retention_days, include_files, compression_enabled, encryption_enabled, updated_at)
		 VALUES (0, ?, 30, 1, 1, 0, ?)`,
		model.FrequencyWeekly, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create default backup settings: %w", err)
	}

	st, err = s.scan(s.db.QueryRow(`SELECT ` + settingsColumns + ` FROM backup_settings LIMIT 1`))
	if err != nil {
		return nil, fmt.Errorf("reload backup settings: %w", err)
	}
	return st, nil
}

// Update persists the full settings row. Callers go through the backup
// manager so every settings change is followed by a reschedule.
func (s *BackupSettingsStore) Update(st *model.BackupSettings) error {
	st.UpdatedAt = time.Now().UTC()
	res, err := s.db.Exec(
		`UPDATE backup_settings SET
		 auto_backup_enabled = ?, backup_frequency = ?, retention_days = ?,
		 include_files = ?, compression_enabled = ?, encryption_enabled = ?,
		 last_backup_date = ?, next_scheduled_backup = ?, cron_job_id = ?, updated_at = ?
		 WHERE id = ?`,
		st.AutoBackupEnabled, st.BackupFrequency, st.RetentionDays,
		st.IncludeFiles, st.CompressionEnabled, st.EncryptionEnabled,
		st.LastBackupDate, st.NextScheduledBackup, nullIfEmpty(st.CronJobID), st.UpdatedAt,
		st.ID,
	)
	if err != nil {
		return fmt.Errorf("update backup settings: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("update backup settings: row %d not found", st.ID)
	}
	return nil
}

// SetSchedule records the diagnostics of the currently registered job.
func (s *BackupSettingsStore) SetSchedule(id int64, next *time.Time, cronJobID string) error {
	_, err := s.db.Exec(
		`UPDATE backup_settings SET next_scheduled_backup = ?, cron_job_id = ?, updated_at = ? WHERE id = ?`,
		next, nullIfEmpty(cronJobID), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("set backup schedule: %w", err)
	}
	return nil
}

// SetLastBackup records a successful automatic run.
func (s *BackupSettingsStore) SetLastBackup(id int64, last time.Time, next *time.Time) error {
	_, err := s.db.Exec(
		`UPDATE backup_settings SET last_backup_date = ?, next_scheduled_backup = ?, updated_at = ? WHERE id = ?`,
		last, next, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("set last backup: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
