package api

import (
	"github.com/craftops/agent/internal/middleware"
	"github.com/craftops/agent/pkg/config"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRouter(
	backupHandler *BackupHandler,
	updateHandler *UpdateHandler,
	systemHandler *SystemHandler,
	cfg *config.Config,
) *gin.Engine {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware (in order)
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())

	// Health and metrics endpoints (no auth required)
	router.GET("/health", systemHandler.HealthCheck)
	router.HEAD("/health", systemHandler.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes (with auth)
	api := router.Group("/api")
	api.Use(middleware.AuthMiddleware())
	{
		backups := api.Group("/backups")
		{
			backups.GET("", backupHandler.ListBackups)
			backups.POST("", backupHandler.CreateBackup)
			backups.POST("/import", backupHandler.ImportBackups)

			backups.GET("/schedules", backupHandler.ListSchedules)
			backups.POST("/schedules", backupHandler.SaveSchedule)
			backups.DELETE("/schedules/:id", backupHandler.DeleteSchedule)

			backups.GET("/:id", backupHandler.GetBackup)
			backups.GET("/:id/download", backupHandler.DownloadBackup)
			backups.DELETE("/:id", backupHandler.DeleteBackup)
		}

		updates := api.Group("/updates")
		{
			updates.GET("/status", updateHandler.GetStatus)
			updates.POST("/check", updateHandler.CheckNow)
			updates.POST("/download", updateHandler.Download)
			updates.POST("/install", updateHandler.Install)

			updates.GET("/scheduled", updateHandler.ListScheduled)
			updates.POST("/schedule", updateHandler.ScheduleUpdate)
			updates.PATCH("/scheduled/:id", updateHandler.RescheduleUpdate)
			updates.DELETE("/scheduled/:id", updateHandler.CancelScheduled)

			updates.GET("/history", updateHandler.GetHistory)
		}

		api.GET("/events", systemHandler.ListEvents)
		api.GET("/audit", systemHandler.ListAuditEntries)
	}

	return router
}
