package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/rowanhale/labwise/internal/model"
)

// Cron expressions per frequency, pinned to 02:00 UTC to keep the
// scheduled job off peak hours. An unrecognized frequency is normalized
// to weekly rather than rejected.
const (
	cronDaily   = "0 2 * * *"
	cronWeekly  = "0 2 * * 0"
	cronMonthly = "0 2 1 * *"
)

// CronExpression maps a backup frequency to its cron schedule.
func CronExpression(f model.BackupFrequency) string {
	switch f {
	case model.FrequencyDaily:
		return cronDaily
	case model.FrequencyWeekly:
		return cronWeekly
	case model.FrequencyMonthly:
		return cronMonthly
	default:
		return cronWeekly
	}
}

// NextRunAfter computes a display estimate of the next run: one
// day/week/calendar month after from, pinned to 02:00. The live cron
// entry's own next-fire time takes precedence whenever a job is
// registered.
func NextRunAfter(f model.BackupFrequency, from time.Time) time.Time {
	var next time.Time
	switch f {
	case model.FrequencyDaily:
		next = from.AddDate(0, 0, 1)
	case model.FrequencyMonthly:
		next = from.AddDate(0, 1, 0)
	default:
		next = from.AddDate(0, 0, 7)
	}
	return time.Date(next.Year(), next.Month(), next.Day(), 2, 0, 0, 0, next.Location())
}

// nextFireTime returns the authoritative next run from the registry,
// falling back to the computed estimate when no job is live.
func (m *Manager) nextFireTime(f model.BackupFrequency) *time.Time {
	if next, ok := m.registry.NextRun(BackupJobName); ok {
		return &next
	}
	next := NextRunAfter(f, time.Now().UTC())
	return &next
}

// ApplySettings reconciles the live backup job with the persisted
// settings: it stops the job when auto backup is disabled, and
// (re)registers it when enabled, persisting the resulting schedule
// diagnostics. Call it at process start and after every settings
// update. It is serialized against itself.
func (m *Manager) ApplySettings(ctx context.Context) (*model.BackupSettings, error) {
	m.schedMu.Lock()
	defer m.schedMu.Unlock()

	settings, err := m.settings.GetOrCreate()
	if err != nil {
		return nil, fmt.Errorf("load backup settings: %w", err)
	}

	if !settings.AutoBackupEnabled {
		if m.registry.Stop(BackupJobName) {
			m.logger.Info("automatic backups disabled, job stopped")
		}
		if err := m.settings.SetSchedule(settings.ID, nil, ""); err != nil {
			return nil, err
		}
		settings.NextScheduledBackup = nil
		settings.CronJobID = ""
		return settings, nil
	}

	expr := CronExpression(settings.BackupFrequency)
	if err := m.registry.Register(BackupJobName, expr, m.runScheduled); err != nil {
		return nil, fmt.Errorf("schedule backup job: %w", err)
	}

	jobID := fmt.Sprintf("backup-%d", time.Now().UnixMilli())
	next := m.nextFireTime(settings.BackupFrequency)
	if err := m.settings.SetSchedule(settings.ID, next, jobID); err != nil {
		return nil, err
	}
	settings.NextScheduledBackup = next
	settings.CronJobID = jobID

	m.logger.Info("backup job scheduled", "frequency", settings.BackupFrequency, "cron", expr, "next", next)
	return settings, nil
}

// Settings returns the persisted settings with the next-run field
// refreshed from the live cron entry. It never mutates the schedule.
func (m *Manager) Settings(ctx context.Context) (*model.BackupSettings, error) {
	settings, err := m.settings.GetOrCreate()
	if err != nil {
		return nil, fmt.Errorf("load backup settings: %w", err)
	}
	if settings.AutoBackupEnabled {
		if next, ok := m.registry.NextRun(BackupJobName); ok {
			settings.NextScheduledBackup = &next
		}
	}
	return settings, nil
}

// UpdateSettings validates and persists new settings, then reconciles
// the schedule. The returned settings include the refreshed schedule
// diagnostics.
func (m *Manager) UpdateSettings(ctx context.Context, settings *model.BackupSettings) (*model.BackupSettings, error) {
	if !settings.BackupFrequency.Valid() {
		return nil, fmt.Errorf("invalid backup frequency %q", settings.BackupFrequency)
	}
	if settings.RetentionDays < 1 || settings.RetentionDays > 365 {
		return nil, fmt.Errorf("retention days must be between 1 and 365")
	}

	if err := m.settings.Update(settings); err != nil {
		return nil, err
	}
	return m.ApplySettings(ctx)
}

// runScheduled is the job callback. It has no caller to report to, so
// failures are recorded on the backup row and logged.
func (m *Manager) runScheduled() {
	settings, err := m.settings.GetOrCreate()
	if err != nil {
		m.logger.Error("scheduled backup: load settings", "error", err)
		return
	}

	m.logger.Info("executing scheduled backup", "frequency", settings.BackupFrequency)
	_, err = m.Run(context.Background(), Trigger{
		Type:        model.BackupTypeAutomatic,
		CreatedBy:   model.SystemUser,
		Description: fmt.Sprintf("Automatic backup - %s", settings.BackupFrequency),
	})
	if err != nil {
		m.logger.Error("scheduled backup failed", "error", err)
	}
}
