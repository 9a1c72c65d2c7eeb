package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rowanhale/labwise/internal/backup"
	"github.com/rowanhale/labwise/internal/database"
	"github.com/rowanhale/labwise/internal/logging"
	"github.com/rowanhale/labwise/internal/server"
	"github.com/rowanhale/labwise/internal/storage"
)

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := logging.Setup(env("LABWISE_LOG_LEVEL", "info"))

	port := env("LABWISE_PORT", "8080")
	dbPath := env("LABWISE_DB_PATH", "labwise.db")

	jwtSecret := os.Getenv("LABWISE_JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("LABWISE_JWT_SECRET is required")
	}

	db, err := database.Open(dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	cfg := server.Config{
		JWTSecret: jwtSecret,
		BackupDir: env("LABWISE_BACKUP_DIR", "backups"),
		S3: storage.S3Config{
			Endpoint:  os.Getenv("LABWISE_BACKUP_S3_ENDPOINT"),
			Bucket:    os.Getenv("LABWISE_BACKUP_S3_BUCKET"),
			Region:    env("LABWISE_BACKUP_S3_REGION", "us-east-1"),
			AccessKey: os.Getenv("LABWISE_BACKUP_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("LABWISE_BACKUP_S3_SECRET_KEY"),
			Prefix:    os.Getenv("LABWISE_BACKUP_S3_PREFIX"),
		},
		Backup: backup.Config{
			Passphrase: os.Getenv("LABWISE_BACKUP_PASSPHRASE"),
			FilesDir:   os.Getenv("LABWISE_FILES_DIR"),
		},
	}

	srv, err := server.New(db, cfg, logger)
	if err != nil {
		log.Fatalf("failed to build server: %v", err)
	}

	if err := srv.Start(context.Background()); err != nil {
		log.Fatalf("failed to apply backup schedule: %v", err)
	}

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		fmt.Printf("Labwise running at http://localhost:%s\n", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down...")
	srv.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}
