package repository

import (
	"errors"
	"time"

	"github.com/craftops/agent/internal/models"
	"gorm.io/gorm"
)

// UpdateRepository handles database operations for scheduled updates
// and the append-only update history.
type UpdateRepository struct {
	db *gorm.DB
}

// NewUpdateRepository creates a new update repository
func NewUpdateRepository(db *gorm.DB) *UpdateRepository {
	return &UpdateRepository{db: db}
}

// CreateScheduled creates a new scheduled update row
func (r *UpdateRepository) CreateScheduled(update *models.ScheduledUpdate) error {
	return r.db.Create(update).Error
}

// FindScheduledByID finds a scheduled update by ID; (nil, nil) when absent
func (r *UpdateRepository) FindScheduledByID(id uint) (*models.ScheduledUpdate, error) {
	var update models.ScheduledUpdate
	err := r.db.Where("id = ?", id).First(&update).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &update, nil
}

// FindScheduled returns all scheduled updates, newest first
func (r *UpdateRepository) FindScheduled() ([]models.ScheduledUpdate, error) {
	var updates []models.ScheduledUpdate
	err := r.db.Order("scheduled_time DESC").Find(&updates).Error
	return updates, err
}

// FindDuePending returns pending rows whose scheduled time has arrived
func (r *UpdateRepository) FindDuePending(now time.Time) ([]models.ScheduledUpdate, error) {
	var updates []models.ScheduledUpdate
	err := r.db.Where("status = ? AND scheduled_time <= ?", models.ScheduledUpdatePending, now).
		Order("scheduled_time ASC").
		Find(&updates).Error
	return updates, err
}

// ClaimPending transitions a row from pending to executing with a
// status-guarded conditional update. Returns false when the row was
// already claimed, cancelled, or does not exist.
func (r *UpdateRepository) ClaimPending(id uint) (bool, error) {
	result := r.db.Model(&models.ScheduledUpdate{}).
		Where("id = ? AND status = ?", id, models.ScheduledUpdatePending).
		Update("status", models.ScheduledUpdateExecuting)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Reschedule moves a pending row to a new scheduled time. Returns false
// when the row is not pending anymore (or never existed).
func (r *UpdateRepository) Reschedule(id uint, newTime time.Time) (bool, error) {
	result := r.db.Model(&models.ScheduledUpdate{}).
		Where("id = ? AND status = ?", id, models.ScheduledUpdatePending).
		Update("scheduled_time", newTime)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Cancel transitions a pending row to cancelled. Returns false when the
// row is not pending anymore (or never existed).
func (r *UpdateRepository) Cancel(id uint, now time.Time) (bool, error) {
	result := r.db.Model(&models.ScheduledUpdate{}).
		Where("id = ? AND status = ?", id, models.ScheduledUpdatePending).
		Updates(map[string]interface{}{
			"status":       models.ScheduledUpdateCancelled,
			"cancelled_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Finish moves an executing row to a terminal state
func (r *UpdateRepository) Finish(id uint, status models.ScheduledUpdateStatus, executedAt time.Time) error {
	return r.db.Model(&models.ScheduledUpdate{}).
		Where("id = ? AND status = ?", id, models.ScheduledUpdateExecuting).
		Updates(map[string]interface{}{
			"status":      status,
			"executed_at": executedAt,
		}).Error
}

// AppendHistory inserts an update history entry. History rows are never
// mutated after insert.
func (r *UpdateRepository) AppendHistory(entry *models.UpdateHistoryEntry) error {
	return r.db.Create(entry).Error
}

// FindHistory returns update history entries, newest first
func (r *UpdateRepository) FindHistory(limit int) ([]models.UpdateHistoryEntry, error) {
	var entries []models.UpdateHistoryEntry
	q := r.db.Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&entries).Error
	return entries, err
}
