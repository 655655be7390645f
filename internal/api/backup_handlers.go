package api

import (
	"net/http"
	"strconv"

	"github.com/craftops/agent/internal/archive"
	"github.com/craftops/agent/internal/middleware"
	"github.com/craftops/agent/internal/models"
	"github.com/craftops/agent/internal/service"
	"github.com/gin-gonic/gin"
)

type BackupHandler struct {
	backupService *service.BackupService
	scheduler     *service.BackupScheduler
}

func NewBackupHandler(backupService *service.BackupService, scheduler *service.BackupScheduler) *BackupHandler {
	return &BackupHandler{
		backupService: backupService,
		scheduler:     scheduler,
	}
}

// CreateBackup handles POST /api/backups
func (h *BackupHandler) CreateBackup(c *gin.Context) {
	var req struct {
		IncludeWorlds  bool   `json:"include_worlds"`
		IncludePlugins bool   `json:"include_plugins"`
		IncludeConfigs bool   `json:"include_configs"`
		Notes          string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := h.backupService.CreateBackup(service.BackupOptions{
		Selectors: archive.Selectors{
			Worlds:     req.IncludeWorlds,
			PluginData: req.IncludePlugins,
			Configs:    req.IncludeConfigs,
		},
		Kind:  models.BackupKindManual,
		Notes: req.Notes,
	}, middleware.GetActor(c))

	if !result.Success {
		c.JSON(http.StatusUnprocessableEntity, result)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// ListBackups handles GET /api/backups
func (h *BackupHandler) ListBackups(c *gin.Context) {
	backups, err := h.backupService.ListBackups()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, backups)
}

// GetBackup handles GET /api/backups/:id
func (h *BackupHandler) GetBackup(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	backup, err := h.backupService.GetBackup(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if backup == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "backup not found"})
		return
	}
	c.JSON(http.StatusOK, backup)
}

// DownloadBackup handles GET /api/backups/:id/download
func (h *BackupHandler) DownloadBackup(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	path, found := h.backupService.GetBackupFile(id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "backup archive not found"})
		return
	}
	c.FileAttachment(path, c.Param("id")+".tar.gz")
}

// DeleteBackup handles DELETE /api/backups/:id
func (h *BackupHandler) DeleteBackup(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if !h.backupService.DeleteBackup(id, middleware.GetActor(c)) {
		c.JSON(http.StatusNotFound, gin.H{"error": "backup not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "backup deleted"})
}

// ImportBackups handles POST /api/backups/import
func (h *BackupHandler) ImportBackups(c *gin.Context) {
	imported, err := h.backupService.ImportUntrackedArchives()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": imported})
}

// ListSchedules handles GET /api/backups/schedules
func (h *BackupHandler) ListSchedules(c *gin.Context) {
	schedules, err := h.scheduler.Schedules()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, schedules)
}

// SaveSchedule handles POST /api/backups/schedules
func (h *BackupHandler) SaveSchedule(c *gin.Context) {
	var schedule models.AutoBackupSchedule
	if err := c.ShouldBindJSON(&schedule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.scheduler.SaveSchedule(&schedule, middleware.GetActor(c)); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, schedule)
}

// DeleteSchedule handles DELETE /api/backups/schedules/:id
func (h *BackupHandler) DeleteSchedule(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if !h.scheduler.DeleteSchedule(id, middleware.GetActor(c)) {
		c.JSON(http.StatusNotFound, gin.H{"error": "schedule not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "schedule deleted"})
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}
