package model

import "time"

type BackupStatus string

const (
	BackupStatusPending    BackupStatus = "PENDING"
	BackupStatusInProgress BackupStatus = "IN_PROGRESS"
	BackupStatusCompleted  BackupStatus = "COMPLETED"
	BackupStatusFailed     BackupStatus = "FAILED"
)

type BackupType string

const (
	BackupTypeManual    BackupType = "MANUAL"
	BackupTypeAutomatic BackupType = "AUTOMATIC"
)

// SystemUser is the CreatedBy value for backups triggered by the scheduler.
const SystemUser = "system-auto"

type Backup struct {
	ID           string       `json:"id"`
	Filename     string       `json:"filename"`
	Status       BackupStatus `json:"status"`
	Size         int64        `json:"size"`
	CreatedBy    string       `json:"createdBy"`
	Type         BackupType   `json:"type"`
	Description  string       `json:"description,omitempty"`
	ErrorMessage string       `json:"errorMessage,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// Terminal reports whether the backup reached a final state.
func (s BackupStatus) Terminal() bool {
	return s == BackupStatusCompleted || s == BackupStatusFailed
}
