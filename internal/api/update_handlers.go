package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/craftops/agent/internal/middleware"
	"github.com/craftops/agent/internal/models"
	"github.com/craftops/agent/internal/service"
	"github.com/gin-gonic/gin"
)

type UpdateHandler struct {
	checker   *service.VersionChecker
	installer *service.UpdateInstaller
	scheduler *service.UpdateScheduler
	state     *service.UpdateState
}

func NewUpdateHandler(
	checker *service.VersionChecker,
	installer *service.UpdateInstaller,
	scheduler *service.UpdateScheduler,
	state *service.UpdateState,
) *UpdateHandler {
	return &UpdateHandler{
		checker:   checker,
		installer: installer,
		scheduler: scheduler,
		state:     state,
	}
}

// GetStatus handles GET /api/updates/status
func (h *UpdateHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.state.Snapshot())
}

// CheckNow handles POST /api/updates/check
func (h *UpdateHandler) CheckNow(c *gin.Context) {
	available := h.checker.Check()
	snapshot := h.state.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"available": available,
		"status":    snapshot,
	})
}

// Download handles POST /api/updates/download
func (h *UpdateHandler) Download(c *gin.Context) {
	result := h.installer.Download()
	if !result.Success {
		c.JSON(http.StatusConflict, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Install handles POST /api/updates/install
func (h *UpdateHandler) Install(c *gin.Context) {
	var req struct {
		Notes string `json:"notes"`
	}
	// Body is optional
	_ = c.ShouldBindJSON(&req)

	result := h.installer.Install(middleware.GetActor(c), req.Notes, nil)
	if !result.Success {
		c.JSON(http.StatusConflict, result)
		return
	}
	c.JSON(http.StatusAccepted, result)
}

// ScheduleUpdate handles POST /api/updates/schedule
func (h *UpdateHandler) ScheduleUpdate(c *gin.Context) {
	var req struct {
		ScheduledTime time.Time `json:"scheduled_time" binding:"required"`
		TargetVersion string    `json:"target_version" binding:"required"`
		TargetBuild   int       `json:"target_build"`
		Notes         string    `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	update := &models.ScheduledUpdate{
		ScheduledTime: req.ScheduledTime,
		TargetVersion: req.TargetVersion,
		TargetBuild:   req.TargetBuild,
		Notes:         req.Notes,
	}
	if err := h.scheduler.ScheduleUpdate(update, middleware.GetActor(c)); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, update)
}

// ListScheduled handles GET /api/updates/scheduled
func (h *UpdateHandler) ListScheduled(c *gin.Context) {
	updates, err := h.scheduler.ScheduledUpdates()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, updates)
}

// CancelScheduled handles DELETE /api/updates/scheduled/:id
func (h *UpdateHandler) CancelScheduled(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.scheduler.CancelUpdate(id, middleware.GetActor(c)); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "scheduled update cancelled"})
}

// RescheduleUpdate handles PATCH /api/updates/scheduled/:id
func (h *UpdateHandler) RescheduleUpdate(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req struct {
		ScheduledTime time.Time `json:"scheduled_time" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.scheduler.RescheduleUpdate(id, req.ScheduledTime, middleware.GetActor(c)); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "scheduled update moved"})
}

// GetHistory handles GET /api/updates/history
func (h *UpdateHandler) GetHistory(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	history, err := h.scheduler.History(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, history)
}

// statusFor maps service error classes to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrStateConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
