package model

import "time"

type BackupFrequency string

const (
	FrequencyDaily   BackupFrequency = "DAILY"
	FrequencyWeekly  BackupFrequency = "WEEKLY"
	FrequencyMonthly BackupFrequency = "MONTHLY"
)

// Valid reports whether f is one of the three supported frequencies.
func (f BackupFrequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

// BackupSettings is the singleton configuration row that drives the
// automatic backup schedule. It is created lazily with defaults on
// first access and mutated only through BackupSettingsStore.Update.
type BackupSettings struct {
	ID                  int64           `json:"id"`
	AutoBackupEnabled   bool            `json:"autoBackupEnabled"`
	BackupFrequency     BackupFrequency `json:"backupFrequency"`
	RetentionDays       int             `json:"retentionDays"`
	IncludeFiles        bool            `json:"includeFiles"`
	CompressionEnabled  bool            `json:"compressionEnabled"`
	EncryptionEnabled   bool            `json:"encryptionEnabled"`
	LastBackupDate      *time.Time      `json:"lastBackupDate,omitempty"`
	NextScheduledBackup *time.Time      `json:"nextScheduledBackup,omitempty"`
	CronJobID           string          `json:"cronJobId,omitempty"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}
