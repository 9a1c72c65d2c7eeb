package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// MaxSnapshotSize is the upload ceiling for snapshot files.
const MaxSnapshotSize = 500 * 1024 * 1024

// FileInfo summarizes a validated snapshot for display.
type FileInfo struct {
	Version     string `json:"version"`
	CreatedAt   string `json:"createdAt"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Collections int    `json:"tables"`
}

// ValidationResult reports whether an uploaded snapshot is usable.
type ValidationResult struct {
	Valid bool      `json:"valid"`
	Error string    `json:"error,omitempty"`
	Info  *FileInfo `json:"info,omitempty"`
}

func invalid(format string, args ...any) ValidationResult {
	return ValidationResult{Valid: false, Error: fmt.Sprintf(format, args...)}
}

// ValidateSnapshot checks an uploaded file before any data is touched:
// size ceiling, supported extension, and the structural requirement that
// the document carry both metadata and data sections.
func (m *Manager) ValidateSnapshot(filename string, size int64, data []byte) ValidationResult {
	if size > MaxSnapshotSize || int64(len(data)) > MaxSnapshotSize {
		return invalid("Backup file is too large (max 500MB)")
	}
	if !strings.HasSuffix(filename, ".backup") && !strings.HasSuffix(filename, ".json") {
		return invalid("Invalid file format. Expected .backup or .json file")
	}

	plain, err := decodePayload(data, m.cfg.Passphrase)
	if err != nil {
		return invalid("Unable to read backup file: %v", err)
	}

	var probe struct {
		Metadata *Metadata                  `json:"metadata"`
		Data     map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(plain, &probe); err != nil {
		return invalid("Invalid backup file: not a valid snapshot document")
	}
	if probe.Metadata == nil || probe.Data == nil {
		return invalid("Invalid backup file structure. Missing metadata or data sections")
	}

	return ValidationResult{
		Valid: true,
		Info: &FileInfo{
			Version:     probe.Metadata.Version,
			CreatedAt:   probe.Metadata.CreatedAt,
			Description: probe.Metadata.Description,
			Type:        string(probe.Metadata.Type),
			Collections: len(probe.Data),
		},
	}
}

// RestoreResult is the outcome of a restore attempt. Restore replaces
// all current data; a failure partway leaves the collections applied so
// far in place and says so in the message.
type RestoreResult struct {
	Success     bool     `json:"success"`
	Message     string   `json:"message"`
	Collections []string `json:"collections,omitempty"`
}

// Restore rehydrates the database from a previously stored backup.
func (m *Manager) Restore(ctx context.Context, id string) RestoreResult {
	record, err := m.backups.GetByID(id)
	if err != nil {
		return RestoreResult{Success: false, Message: fmt.Sprintf("Restore failed: %v", err)}
	}
	if record == nil {
		return RestoreResult{Success: false, Message: "Backup not found"}
	}

	data, err := m.storage.Read(ctx, record.Filename)
	if err != nil {
		return RestoreResult{Success: false, Message: fmt.Sprintf("Restore failed: %v", err)}
	}

	return m.RestoreSnapshot(ctx, record.Filename, data)
}

// RestoreSnapshot validates raw snapshot bytes and applies them.
func (m *Manager) RestoreSnapshot(ctx context.Context, filename string, data []byte) RestoreResult {
	if v := m.ValidateSnapshot(filename, int64(len(data)), data); !v.Valid {
		return RestoreResult{Success: false, Message: v.Error}
	}

	doc, err := decodeDocument(data, m.cfg.Passphrase)
	if err != nil {
		return RestoreResult{Success: false, Message: fmt.Sprintf("Restore failed: %v", err)}
	}
	return m.restoreDocument(ctx, doc)
}

func (m *Manager) restoreDocument(ctx context.Context, doc *Document) RestoreResult {
	applied, err := m.repo.ReplaceAll(ctx, doc.Data)
	if err != nil {
		msg := fmt.Sprintf("Restore failed: %v", err)
		if len(applied) > 0 {
			msg = fmt.Sprintf("Restore failed after applying %s: %v", strings.Join(applied, ", "), err)
		}
		m.logger.Error("restore failed", "applied", applied, "error", err)
		return RestoreResult{Success: false, Message: msg, Collections: applied}
	}

	if records, ok := doc.Data[attachmentsKey]; ok && m.cfg.FilesDir != "" {
		if err := restoreAttachments(m.cfg.FilesDir, records); err != nil {
			m.logger.Error("restore attachments", "error", err)
			return RestoreResult{
				Success:     false,
				Message:     fmt.Sprintf("Data restored but attachments failed: %v", err),
				Collections: applied,
			}
		}
	}

	m.logger.Info("restore completed", "collections", len(applied))
	return RestoreResult{
		Success:     true,
		Message:     fmt.Sprintf("Restore completed: %d collections replaced", len(applied)),
		Collections: applied,
	}
}
