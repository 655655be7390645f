package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/craftops/agent/internal/api"
	"github.com/craftops/agent/internal/archive"
	"github.com/craftops/agent/internal/audit"
	"github.com/craftops/agent/internal/events"
	"github.com/craftops/agent/internal/external"
	"github.com/craftops/agent/internal/gameserver"
	"github.com/craftops/agent/internal/middleware"
	"github.com/craftops/agent/internal/repository"
	"github.com/craftops/agent/internal/service"
	"github.com/craftops/agent/internal/storage"
	"github.com/craftops/agent/pkg/config"
	"github.com/craftops/agent/pkg/logger"
	"github.com/gofrs/flock"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	appLogger := logger.NewLogger(logger.ParseLevel(cfg.LogLevel), os.Stdout, cfg.LogJSON)
	logger.SetDefault(appLogger)

	logger.Info("Starting agent", map[string]interface{}{
		"app":        cfg.AppName,
		"debug":      cfg.Debug,
		"port":       cfg.Port,
		"server_dir": cfg.ServerDir,
	})

	// Single-instance guard: two agents mutating the same server tree
	// would corrupt backups and installs.
	lock := flock.New(cfg.LockFile)
	locked, err := lock.TryLock()
	if err != nil {
		logger.Fatal("Failed to acquire instance lock", err, map[string]interface{}{
			"lock_file": cfg.LockFile,
		})
	}
	if !locked {
		logger.Fatal("Another agent instance is already running", nil, map[string]interface{}{
			"lock_file": cfg.LockFile,
		})
	}
	defer lock.Unlock()

	// Initialize database
	if err := repository.InitDB(cfg); err != nil {
		logger.Fatal("Failed to initialize database", err, nil)
	}
	db := repository.GetDB()
	logger.Info("Database initialized", map[string]interface{}{
		"type": cfg.DatabaseType,
	})

	// Event bus with database storage
	eventStorage := events.NewDatabaseEventStorage(db)
	bus := events.NewEventBus(eventStorage)
	auditLog := audit.NewLogger(1000)

	// Repositories
	backupRepo := repository.NewBackupRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	updateRepo := repository.NewUpdateRepository(db)

	// Live server control channel
	runtime := gameserver.NewRconRuntime(cfg.RconAddress, cfg.RconPassword)
	defer runtime.Close()
	clock := gameserver.NewClockScheduler()

	// Backup engine
	builder := archive.NewBuilder(cfg.ServerDir)
	backupService := service.NewBackupService(backupRepo, builder, cfg.BackupDir, bus, auditLog)
	retention := service.NewRetentionEnforcer(backupRepo, bus, auditLog)
	backupScheduler := service.NewBackupScheduler(backupService, scheduleRepo, retention)

	// Optional offsite mirror of the backup directory
	if cfg.OffsiteEnabled {
		replicator, err := storage.NewOffsiteReplicator(storage.OffsiteConfig{
			Host:     cfg.OffsiteHost,
			Port:     cfg.OffsitePort,
			User:     cfg.OffsiteUser,
			Password: cfg.OffsitePassword,
			Path:     cfg.OffsitePath,
		}, cfg.BackupDir)
		if err != nil {
			logger.Warn("Offsite replication disabled", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			replicator.Start(bus)
			defer replicator.Close()
		}
	}

	// Update engine
	feed := external.NewPaperClient(cfg.ReleaseFeedURL, cfg.ReleaseProject)
	updateState := service.NewUpdateState()
	checker := service.NewVersionChecker(feed, updateState, runtime, cfg.MarkerFile,
		time.Duration(cfg.CheckInterval)*time.Hour, bus)
	installer := service.NewUpdateInstaller(updateState, backupService, updateRepo, runtime, clock,
		feed, bus, auditLog, cfg.ServerDir, cfg.MarkerFile,
		time.Duration(cfg.CountdownMinutes)*time.Minute)
	updateScheduler := service.NewUpdateScheduler(updateRepo, installer, checker, updateState, bus, auditLog)

	// Detect the running server version before any scheduling starts
	checker.Bootstrap()

	// Scheduler ticks
	tick := time.Duration(cfg.SchedulerTick) * time.Second
	backupScheduler.Start(clock, tick)
	defer backupScheduler.Stop()
	updateScheduler.Start(clock, tick)
	defer updateScheduler.Stop()

	// Periodic freshness check against the release feed
	stopChecks := clock.Every(tick, func() {
		if checker.NeedsCheck() {
			checker.Check()
		}
	})
	defer stopChecks()
	logger.Info("Schedulers started", map[string]interface{}{
		"tick": tick.String(),
	})

	// API
	middleware.SetJWTSecret(cfg.JWTSecret)
	if cfg.JWTSecret == "" {
		logger.Warn("API authentication disabled (local mode), set JWT_SECRET to require tokens", nil)
	}
	backupHandler := api.NewBackupHandler(backupService, backupScheduler)
	updateHandler := api.NewUpdateHandler(checker, installer, updateScheduler, updateState)
	systemHandler := api.NewSystemHandler(db, eventStorage, auditLog)
	router := api.SetupRouter(backupHandler, updateHandler, systemHandler, cfg)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down gracefully...", nil)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("HTTP server shutdown failed", err, nil)
		}
	}()

	logger.Info("Agent listening", map[string]interface{}{
		"address":      srv.Addr,
		"api_endpoint": fmt.Sprintf("http://localhost%s/api", srv.Addr),
		"health_check": fmt.Sprintf("http://localhost%s/health", srv.Addr),
	})
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("Failed to start server", err, nil)
	}
	logger.Info("Shutdown complete", nil)
}
