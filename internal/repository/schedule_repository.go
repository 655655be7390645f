package repository

import (
	"errors"
	"time"

	"github.com/craftops/agent/internal/models"
	"gorm.io/gorm"
)

// ScheduleRepository handles database operations for auto-backup schedules
type ScheduleRepository struct {
	db *gorm.DB
}

// NewScheduleRepository creates a new schedule repository
func NewScheduleRepository(db *gorm.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// Save upserts a schedule (ID == 0 creates a new row)
func (r *ScheduleRepository) Save(schedule *models.AutoBackupSchedule) error {
	return r.db.Save(schedule).Error
}

// FindByID finds a schedule by ID; returns (nil, nil) when absent
func (r *ScheduleRepository) FindByID(id uint) (*models.AutoBackupSchedule, error) {
	var schedule models.AutoBackupSchedule
	err := r.db.Where("id = ?", id).First(&schedule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &schedule, nil
}

// FindAll returns all schedules
func (r *ScheduleRepository) FindAll() ([]models.AutoBackupSchedule, error) {
	var schedules []models.AutoBackupSchedule
	err := r.db.Order("id ASC").Find(&schedules).Error
	return schedules, err
}

// FindDue returns enabled schedules whose next run time has arrived
func (r *ScheduleRepository) FindDue(now time.Time) ([]models.AutoBackupSchedule, error) {
	var schedules []models.AutoBackupSchedule
	err := r.db.Where("enabled = ? AND next_run IS NOT NULL AND next_run <= ?", true, now).
		Order("id ASC").
		Find(&schedules).Error
	return schedules, err
}

// UpdateRunTimes serializes last_run/next_run updates per schedule id
func (r *ScheduleRepository) UpdateRunTimes(id uint, lastRun, nextRun time.Time) error {
	return r.db.Model(&models.AutoBackupSchedule{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_run": lastRun,
			"next_run": nextRun,
		}).Error
}

// Delete deletes a schedule
func (r *ScheduleRepository) Delete(id uint) error {
	return r.db.Delete(&models.AutoBackupSchedule{}, "id = ?", id).Error
}
