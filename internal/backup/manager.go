package backup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rowanhale/labwise/internal/jobs"
	"github.com/rowanhale/labwise/internal/model"
	"github.com/rowanhale/labwise/internal/repository"
	"github.com/rowanhale/labwise/internal/storage"
	"github.com/rowanhale/labwise/internal/store"
)

// BackupJobName is the registry name of the scheduled backup job.
const BackupJobName = "backup"

// Repository enumerates and rehydrates the business-entity collections.
// The concrete collection set belongs to the business-data layer.
type Repository interface {
	Collections() []string
	ListEntities(ctx context.Context, collection string) ([]repository.Record, error)
	ReplaceAll(ctx context.Context, data map[string][]repository.Record) ([]string, error)
}

// State represents the manager state.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateError   State = "error"
)

// Status holds the current manager status, pushed to the callback on
// every change.
type Status struct {
	State      State      `json:"state"`
	LastBackup *time.Time `json:"last_backup,omitempty"`
	Error      string     `json:"error,omitempty"`
	InProgress bool       `json:"in_progress"`
}

// StatusCallback is called whenever the manager state changes.
type StatusCallback func(Status)

// Trigger identifies who asked for a backup and why.
type Trigger struct {
	Type        model.BackupType
	CreatedBy   string
	Description string
}

// Config holds manager configuration.
type Config struct {
	// Passphrase encrypts snapshots when the settings toggle is on.
	Passphrase string
	// FilesDir is the attachment directory bundled into snapshots when
	// include_files is on. Empty disables file bundling.
	FilesDir string
}

// Manager owns the backup lifecycle: execution, scheduling, retention,
// restore and staleness reporting.
type Manager struct {
	mu       sync.RWMutex
	status   Status
	callback StatusCallback

	cfg      Config
	repo     Repository
	backups  *store.BackupStore
	settings *store.BackupSettingsStore
	storage  storage.Storage
	registry *jobs.Registry
	logger   *slog.Logger

	// schedMu serializes the read-settings/register-job/persist sequence
	// so two concurrent settings updates cannot interleave.
	schedMu sync.Mutex
}

func NewManager(cfg Config, repo Repository, bs *store.BackupStore, ss *store.BackupSettingsStore, st storage.Storage, registry *jobs.Registry, callback StatusCallback, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		repo:     repo,
		backups:  bs,
		settings: ss,
		storage:  st,
		registry: registry,
		callback: callback,
		status:   Status{State: StateIdle},
		logger:   logger,
	}
}

// Status returns the current manager status.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
	if m.callback != nil {
		m.callback(s)
	}
}

// Run executes one backup for the given trigger. The returned record is
// always in a terminal state: COMPLETED with its artifact size, or
// FAILED alongside a non-nil error. Two concurrent runs are safe; each
// owns a distinct record and artifact.
func (m *Manager) Run(ctx context.Context, trigger Trigger) (*model.Backup, error) {
	settings, err := m.settings.GetOrCreate()
	if err != nil {
		return nil, fmt.Errorf("load backup settings: %w", err)
	}

	if trigger.CreatedBy == "" {
		trigger.CreatedBy = model.SystemUser
	}

	filename := snapshotFilename(trigger.Type, time.Now())
	record, err := m.backups.Create(filename, trigger.CreatedBy, trigger.Description, trigger.Type)
	if err != nil {
		return nil, fmt.Errorf("create backup record: %w", err)
	}

	m.setStatus(Status{State: StateRunning, InProgress: true})

	fail := func(stage string, cause error) (*model.Backup, error) {
		wrapped := fmt.Errorf("%s: %w", stage, cause)
		if serr := m.backups.SetStatus(record.ID, model.BackupStatusFailed, wrapped.Error()); serr != nil {
			m.logger.Error("mark backup failed", "backup", record.ID, "error", serr)
		}
		m.setStatus(Status{State: StateError, Error: wrapped.Error()})
		record.Status = model.BackupStatusFailed
		record.ErrorMessage = wrapped.Error()
		return record, wrapped
	}

	if err := m.backups.SetStatus(record.ID, model.BackupStatusInProgress, ""); err != nil {
		return fail("start backup", err)
	}

	doc, err := m.buildDocument(ctx, trigger, settings)
	if err != nil {
		return fail("snapshot data", err)
	}

	payload, err := encodeDocument(doc, settings, m.cfg.Passphrase)
	if err != nil {
		return fail("encode snapshot", err)
	}

	if err := m.storage.Write(ctx, filename, payload); err != nil {
		return fail("write snapshot", err)
	}

	size, err := m.storage.Stat(ctx, filename)
	if err != nil {
		return fail("stat snapshot", err)
	}

	if err := m.backups.SetCompleted(record.ID, size); err != nil {
		return fail("finalize backup record", err)
	}
	record.Status = model.BackupStatusCompleted
	record.Size = size

	now := time.Now().UTC()
	m.setStatus(Status{State: StateIdle, LastBackup: &now})
	m.logger.Info("backup completed", "backup", record.ID, "file", filename, "bytes", size, "type", trigger.Type)

	if trigger.Type == model.BackupTypeAutomatic {
		m.afterScheduledRun(ctx, settings)
	}

	return record, nil
}

// afterScheduledRun records the successful automatic run on the settings
// row and prunes expired automatic backups. Manual backups never reach
// here: retention runs only on the automatic cadence.
func (m *Manager) afterScheduledRun(ctx context.Context, settings *model.BackupSettings) {
	now := time.Now().UTC()
	next := m.nextFireTime(settings.BackupFrequency)
	if err := m.settings.SetLastBackup(settings.ID, now, next); err != nil {
		m.logger.Error("record last backup date", "error", err)
	}

	if _, err := m.Cleanup(ctx, settings.RetentionDays); err != nil {
		m.logger.Error("retention cleanup", "error", err)
	}
}

func (m *Manager) buildDocument(ctx context.Context, trigger Trigger, settings *model.BackupSettings) (*Document, error) {
	data := make(map[string][]repository.Record)
	for _, collection := range m.repo.Collections() {
		records, err := m.repo.ListEntities(ctx, collection)
		if err != nil {
			return nil, fmt.Errorf("enumerate %s: %w", collection, err)
		}
		data[collection] = records
	}

	if settings.IncludeFiles && m.cfg.FilesDir != "" {
		attachments, err := collectAttachments(m.cfg.FilesDir)
		if err != nil {
			return nil, fmt.Errorf("collect attachments: %w", err)
		}
		data[attachmentsKey] = attachments
	}

	description := trigger.Description
	if description == "" {
		description = "Labwise backup"
	}

	return &Document{
		Metadata: Metadata{
			Version:     SnapshotVersion,
			CreatedAt:   time.Now().UTC().Format(time.RFC3339),
			Description: description,
			Type:        trigger.Type,
		},
		Data: data,
	}, nil
}

// Cleanup removes automatic backups older than the retention window,
// artifact first, then record. A failed artifact deletion keeps the
// record so a later sweep can retry, and never aborts the remaining
// candidates. Manual backups are exempt regardless of age.
func (m *Manager) Cleanup(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays < 1 {
		retentionDays = 30
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	expired, err := m.backups.ListExpiredAutomatic(cutoff)
	if err != nil {
		return 0, fmt.Errorf("list expired backups: %w", err)
	}

	removed := 0
	for _, b := range expired {
		if err := m.storage.Delete(ctx, b.Filename); err != nil {
			m.logger.Error("delete expired artifact", "backup", b.ID, "file", b.Filename, "error", err)
			continue
		}
		if err := m.backups.Delete(b.ID); err != nil {
			m.logger.Error("delete expired record", "backup", b.ID, "error", err)
			continue
		}
		removed++
	}

	if removed > 0 {
		m.logger.Info("retention sweep", "removed", removed, "cutoff", cutoff)
	}
	return removed, nil
}

// Download returns the raw artifact bytes and the record they belong to.
func (m *Manager) Download(ctx context.Context, id string) ([]byte, *model.Backup, error) {
	record, err := m.backups.GetByID(id)
	if err != nil {
		return nil, nil, err
	}
	if record == nil {
		return nil, nil, fmt.Errorf("backup %s not found", id)
	}

	data, err := m.storage.Read(ctx, record.Filename)
	if err != nil {
		return nil, nil, err
	}
	return data, record, nil
}

// Delete removes a backup record and its artifact. Unlike the retention
// sweep this is operator-initiated, so the record goes away even when
// the artifact cannot be removed.
func (m *Manager) Delete(ctx context.Context, id string) error {
	record, err := m.backups.GetByID(id)
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("backup %s not found", id)
	}

	if err := m.storage.Delete(ctx, record.Filename); err != nil {
		m.logger.Warn("delete backup artifact", "backup", id, "file", record.Filename, "error", err)
	}
	return m.backups.Delete(id)
}

// Upload stores an externally provided snapshot and records it as an
// imported manual backup. The data must already have passed validation.
func (m *Manager) Upload(ctx context.Context, data []byte, createdBy string) (*model.Backup, error) {
	filename := snapshotFilename(model.BackupTypeManual, time.Now())
	record, err := m.backups.Create(filename, createdBy, "Imported backup", model.BackupTypeManual)
	if err != nil {
		return nil, fmt.Errorf("create backup record: %w", err)
	}

	if err := m.storage.Write(ctx, filename, data); err != nil {
		if serr := m.backups.SetStatus(record.ID, model.BackupStatusFailed, err.Error()); serr != nil {
			m.logger.Error("mark upload failed", "backup", record.ID, "error", serr)
		}
		return nil, fmt.Errorf("store uploaded snapshot: %w", err)
	}

	if err := m.backups.SetCompleted(record.ID, int64(len(data))); err != nil {
		return nil, fmt.Errorf("finalize uploaded backup: %w", err)
	}
	record.Status = model.BackupStatusCompleted
	record.Size = int64(len(data))
	return record, nil
}
