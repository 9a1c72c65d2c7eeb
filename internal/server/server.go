package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rowanhale/labwise/internal/auth"
	"github.com/rowanhale/labwise/internal/backup"
	"github.com/rowanhale/labwise/internal/handler"
	"github.com/rowanhale/labwise/internal/jobs"
	"github.com/rowanhale/labwise/internal/middleware"
	"github.com/rowanhale/labwise/internal/qc"
	"github.com/rowanhale/labwise/internal/realtime"
	"github.com/rowanhale/labwise/internal/repository"
	"github.com/rowanhale/labwise/internal/storage"
	"github.com/rowanhale/labwise/internal/store"
)

// Config holds the server-level configuration assembled in main.
type Config struct {
	JWTSecret string
	BackupDir string
	S3        storage.S3Config
	Backup    backup.Config
}

// Server wires the stores, the backup engine and the job registry
// behind the HTTP API.
type Server struct {
	db       *sql.DB
	hub      *realtime.Hub
	registry *jobs.Registry
	manager  *backup.Manager
	authSvc  *auth.Service
	authH    *handler.AuthHandler
	backupH  *handler.BackupHandler
	logger   *slog.Logger
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) (*Server, error) {
	hub := realtime.NewHub(logger.With("component", "realtime"))
	registry := jobs.NewRegistry(logger.With("component", "jobs"))

	backupStore := store.NewBackupStore(db)
	settingsStore := store.NewBackupSettingsStore(db)
	userStore := store.NewUserStore(db)
	qcStore := store.NewQCStore(db)
	repo := repository.NewStore(db)

	var artifacts storage.Storage
	if cfg.S3.Configured() {
		artifacts = storage.NewS3(cfg.S3)
		logger.Info("backup storage: s3", "bucket", cfg.S3.Bucket)
	} else {
		local, err := storage.NewLocal(cfg.BackupDir)
		if err != nil {
			return nil, err
		}
		artifacts = local
		logger.Info("backup storage: local", "dir", cfg.BackupDir)
	}

	manager := backup.NewManager(
		cfg.Backup, repo, backupStore, settingsStore, artifacts, registry,
		func(s backup.Status) {
			hub.Broadcast(realtime.Event{
				Event: "backup_status",
				Payload: map[string]any{
					"state":       s.State,
					"in_progress": s.InProgress,
					"error":       s.Error,
				},
			})
		},
		logger.With("component", "backup"),
	)

	reminder := qc.NewReminder(qcStore, func(results []store.QCResult) {
		hub.Broadcast(realtime.Event{
			Event:   "qc_overdue",
			Payload: map[string]any{"count": len(results)},
		})
	}, logger.With("component", "qc"))
	if err := registry.Register(qc.JobName, qc.Schedule, reminder.Check); err != nil {
		return nil, err
	}

	authSvc := auth.NewService(cfg.JWTSecret, userStore)

	return &Server{
		db:       db,
		hub:      hub,
		registry: registry,
		manager:  manager,
		authSvc:  authSvc,
		authH:    handler.NewAuthHandler(authSvc, logger),
		backupH:  handler.NewBackupHandler(manager, backupStore, registry, logger),
		logger:   logger,
	}, nil
}

// Start reconciles the backup schedule with the persisted settings.
// Call it once after New, before serving traffic.
func (s *Server) Start(ctx context.Context) error {
	_, err := s.manager.ApplySettings(ctx)
	return err
}

// Shutdown stops all recurring jobs, waiting for in-flight runs.
func (s *Server) Shutdown() {
	s.registry.StopAll()
}

// BackupManager exposes the backup engine for maintenance commands.
func (s *Server) BackupManager() *backup.Manager {
	return s.manager
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("POST /api/auth/login", s.authH.Login)
	mux.HandleFunc("GET /ws", realtime.Handler(s.hub))

	admin := http.NewServeMux()
	admin.HandleFunc("POST /api/admin/backup", s.backupH.Create)
	admin.HandleFunc("GET /api/admin/backups", s.backupH.List)
	admin.HandleFunc("GET /api/admin/backup/stats", s.backupH.Stats)
	admin.HandleFunc("GET /api/admin/backup/settings", s.backupH.GetSettings)
	admin.HandleFunc("PUT /api/admin/backup/settings", s.backupH.UpdateSettings)
	admin.HandleFunc("GET /api/admin/backup/job-status", s.backupH.JobStatus)
	admin.HandleFunc("POST /api/admin/backup/upload", s.backupH.Upload)
	admin.HandleFunc("GET /api/admin/backup/{id}/download", s.backupH.Download)
	admin.HandleFunc("POST /api/admin/backup/{id}/restore", s.backupH.Restore)
	admin.HandleFunc("DELETE /api/admin/backup/{id}", s.backupH.Delete)
	admin.HandleFunc("GET /api/admin/cron-jobs", s.backupH.CronJobs)

	mux.Handle("/api/admin/", auth.Require(s.authSvc)(admin))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
