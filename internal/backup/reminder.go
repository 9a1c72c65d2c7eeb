package backup

import "time"

// NeverBackedUp is the staleness sentinel for "no successful backup
// ever". It classifies as critical without a separate null branch.
const NeverBackedUp = 999

// Severity classifies how stale the last successful backup is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// ClassifySeverity maps days-since-last-backup to a reminder severity.
func ClassifySeverity(daysSince int) Severity {
	switch {
	case daysSince >= 90:
		return SeverityCritical
	case daysSince >= 30:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// Staleness returns the days since the last COMPLETED backup and its
// severity. Failed attempts do not count, so a broken schedule cannot
// silence the reminder.
func (m *Manager) Staleness() (int, Severity, error) {
	latest, err := m.backups.LatestCompleted()
	if err != nil {
		return 0, "", err
	}
	if latest == nil {
		return NeverBackedUp, SeverityCritical, nil
	}

	days := int(time.Since(latest.CreatedAt).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return days, ClassifySeverity(days), nil
}
