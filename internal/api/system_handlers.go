package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/craftops/agent/internal/audit"
	"github.com/craftops/agent/internal/events"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type SystemHandler struct {
	db           *gorm.DB
	eventStorage *events.DatabaseEventStorage
	auditLog     *audit.Logger
	startedAt    time.Time
}

func NewSystemHandler(db *gorm.DB, eventStorage *events.DatabaseEventStorage, auditLog *audit.Logger) *SystemHandler {
	return &SystemHandler{
		db:           db,
		eventStorage: eventStorage,
		auditLog:     auditLog,
		startedAt:    time.Now(),
	}
}

// HealthCheck handles GET /health
func (h *SystemHandler) HealthCheck(c *gin.Context) {
	dbStatus := "ok"
	if sqlDB, err := h.db.DB(); err != nil {
		dbStatus = "error"
	} else if err := sqlDB.Ping(); err != nil {
		dbStatus = "error"
	}

	status := http.StatusOK
	if dbStatus != "ok" {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":         dbStatus,
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
	})
}

// ListEvents handles GET /api/events
func (h *SystemHandler) ListEvents(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	recent, err := h.eventStorage.Recent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, recent)
}

// ListAuditEntries handles GET /api/audit
func (h *SystemHandler) ListAuditEntries(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	c.JSON(http.StatusOK, h.auditLog.Recent(limit))
}
