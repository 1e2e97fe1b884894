package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/medkeep/internal/backup"
	"github.com/dukerupert/medkeep/internal/database"
	"github.com/dukerupert/medkeep/internal/logging"
	"github.com/dukerupert/medkeep/internal/push"
	"github.com/dukerupert/medkeep/internal/server"
)

func main() {
	logger := logging.Setup(os.Getenv("MEDKEEP_LOG_LEVEL"))

	port := os.Getenv("MEDKEEP_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("MEDKEEP_DB_PATH")
	if dbPath == "" {
		dbPath = "medkeep.db"
	}

	loc := time.Local
	if tz := os.Getenv("MEDKEEP_TZ"); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			slog.Error("invalid MEDKEEP_TZ", "tz", tz, "error", err)
			os.Exit(1)
		}
		loc = l
	}

	db, err := database.Open(dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	backupCfg := backup.Config{
		S3: backup.S3Config{
			Endpoint:  os.Getenv("MEDKEEP_S3_ENDPOINT"),
			Bucket:    os.Getenv("MEDKEEP_S3_BUCKET"),
			Region:    os.Getenv("MEDKEEP_S3_REGION"),
			AccessKey: os.Getenv("MEDKEEP_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("MEDKEEP_S3_SECRET_KEY"),
		},
		DBPath: dbPath,
	}

	pushCfg := push.Config{
		VAPIDPublicKey:  os.Getenv("MEDKEEP_VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("MEDKEEP_VAPID_PRIVATE_KEY"),
	}
	if pushCfg.VAPIDPublicKey == "" || pushCfg.VAPIDPrivateKey == "" {
		slog.Warn("VAPID keys not configured, push reminders disabled")
	}

	srv := server.New(db, backupCfg, pushCfg, loc, logger)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	// Fill in today's doses before serving traffic.
	today := time.Now().In(loc)
	start := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	if n, err := srv.Ledger().MaterializeAll(bgCtx, start, start.AddDate(0, 0, 1)); err != nil {
		slog.Error("startup materialization", "error", err)
	} else if n > 0 {
		slog.Info("materialized upcoming doses", "count", n)
	}
	if n, err := srv.Ledger().Settle(bgCtx); err != nil {
		slog.Error("startup settlement", "error", err)
	} else if n > 0 {
		slog.Info("settled overdue doses", "count", n)
	}

	if sched := srv.PushScheduler(); sched != nil {
		sched.Start(bgCtx)
		defer sched.Stop()
	}
	srv.BackupManager().Start(bgCtx)
	defer srv.BackupManager().Stop()

	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
			case <-bgCtx.Done():
				return
			}
		}
	}()

	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("medkeep starting", "addr", ":"+port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	bgCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
