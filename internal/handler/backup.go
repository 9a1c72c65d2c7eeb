package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/rowanhale/labwise/internal/auth"
	"github.com/rowanhale/labwise/internal/backup"
	"github.com/rowanhale/labwise/internal/jobs"
	"github.com/rowanhale/labwise/internal/model"
	"github.com/rowanhale/labwise/internal/store"
)

// BackupHandler serves the admin backup API: manual runs, listing,
// download, upload, restore, retention settings and job diagnostics.
type BackupHandler struct {
	manager  *backup.Manager
	backups  *store.BackupStore
	registry *jobs.Registry
	logger   *slog.Logger
}

func NewBackupHandler(m *backup.Manager, bs *store.BackupStore, registry *jobs.Registry, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{
		manager:  m,
		backups:  bs,
		registry: registry,
		logger:   logger.With("component", "backup_handler"),
	}
}

// Create runs a manual backup synchronously so the caller sees the
// outcome, unlike the scheduled path which only has logs to report to.
func (h *BackupHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Description string `json:"description"`
	}
	if r.Body != nil {
		// Body is optional; a bare POST gets the default description.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	createdBy, _ := auth.UserIDFromContext(r.Context())

	record, err := h.manager.Run(r.Context(), backup.Trigger{
		Type:        model.BackupTypeManual,
		CreatedBy:   createdBy,
		Description: req.Description,
	})
	if err != nil {
		h.logger.Error("manual backup failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  "Backup failed",
			"detail": err.Error(),
			"backup": record,
		})
		return
	}

	writeJSON(w, http.StatusCreated, record)
}

func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	backups, err := h.backups.List()
	if err != nil {
		h.logger.Error("list backups", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list backups")
		return
	}
	if backups == nil {
		backups = []model.Backup{}
	}
	writeJSON(w, http.StatusOK, backups)
}

func (h *BackupHandler) Download(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	data, record, err := h.manager.Download(r.Context(), id)
	if err != nil {
		h.logger.Error("download backup", "backup", id, "error", err)
		writeError(w, http.StatusNotFound, "backup not found")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", record.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

// Upload accepts an externally produced snapshot as multipart form data
// under the "backup" field. With ?restore=true the snapshot is applied
// immediately instead of being stored.
func (h *BackupHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, backup.MaxSnapshotSize)

	file, header, err := r.FormFile("backup")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing backup file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read backup file")
		return
	}

	if v := h.manager.ValidateSnapshot(header.Filename, header.Size, data); !v.Valid {
		writeJSON(w, http.StatusBadRequest, v)
		return
	}

	if r.URL.Query().Get("restore") == "true" {
		result := h.manager.RestoreSnapshot(r.Context(), header.Filename, data)
		status := http.StatusOK
		if !result.Success {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, result)
		return
	}

	createdBy, _ := auth.UserIDFromContext(r.Context())
	record, err := h.manager.Upload(r.Context(), data, createdBy)
	if err != nil {
		h.logger.Error("store uploaded backup", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store uploaded backup")
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (h *BackupHandler) Restore(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	result := h.manager.Restore(r.Context(), id)
	status := http.StatusOK
	if !result.Success {
		status = http.StatusInternalServerError
		if result.Message == "Backup not found" {
			status = http.StatusNotFound
		}
	}
	writeJSON(w, status, result)
}

func (h *BackupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.manager.Delete(r.Context(), id); err != nil {
		h.logger.Error("delete backup", "backup", id, "error", err)
		writeError(w, http.StatusNotFound, "backup not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "backup deleted"})
}

// Stats merges aggregate backup figures with the staleness reminder so
// the dashboard renders both from one call.
func (h *BackupHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.backups.Stats()
	if err != nil {
		h.logger.Error("backup stats", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute backup stats")
		return
	}

	days, severity, err := h.manager.Staleness()
	if err != nil {
		h.logger.Error("backup staleness", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute backup staleness")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"totalBackups":        stats.TotalBackups,
		"totalSize":           stats.TotalSize,
		"averageSize":         stats.AverageSize,
		"lastBackupDate":      stats.LastBackup,
		"oldestBackup":        stats.OldestBackup,
		"daysSinceLastBackup": days,
		"reminderSeverity":    severity,
	})
}

func (h *BackupHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.manager.Settings(r.Context())
	if err != nil {
		h.logger.Error("load backup settings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load backup settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// UpdateSettings merges the request body onto the current settings row,
// so partial updates leave unmentioned fields alone.
func (h *BackupHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	current, err := h.manager.Settings(r.Context())
	if err != nil {
		h.logger.Error("load backup settings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load backup settings")
		return
	}

	merged := *current
	if err := json.NewDecoder(r.Body).Decode(&merged); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	merged.ID = current.ID

	updated, err := h.manager.UpdateSettings(r.Context(), &merged)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// JobStatus reports the live state of the scheduled backup job.
func (h *BackupHandler) JobStatus(w http.ResponseWriter, r *http.Request) {
	settings, err := h.manager.Settings(r.Context())
	if err != nil {
		h.logger.Error("load backup settings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load backup settings")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"backupJobActive":     h.registry.Has(backup.BackupJobName),
		"totalJobs":           h.registry.Count(),
		"nextScheduledBackup": settings.NextScheduledBackup,
		"autoBackupEnabled":   settings.AutoBackupEnabled,
		"backupFrequency":     settings.BackupFrequency,
	})
}

// CronJobs lists every registered recurring job.
func (h *BackupHandler) CronJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.Active())
}
