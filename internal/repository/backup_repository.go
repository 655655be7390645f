package repository

import (
	"errors"
	"time"

	"github.com/craftops/agent/internal/models"
	"gorm.io/gorm"
)

// BackupRepository handles database operations for backup records
type BackupRepository struct {
	db *gorm.DB
}

// NewBackupRepository creates a new backup repository
func NewBackupRepository(db *gorm.DB) *BackupRepository {
	return &BackupRepository{db: db}
}

// Create creates a new backup record
func (r *BackupRepository) Create(record *models.BackupRecord) error {
	return r.db.Create(record).Error
}

// FindByID finds a backup record by ID; returns (nil, nil) when absent
func (r *BackupRepository) FindByID(id uint) (*models.BackupRecord, error) {
	var record models.BackupRecord
	err := r.db.Where("id = ?", id).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// FindByFilename finds a backup record by its unique archive filename
func (r *BackupRepository) FindByFilename(filename string) (*models.BackupRecord, error) {
	var record models.BackupRecord
	err := r.db.Where("filename = ?", filename).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// FindAll returns all backup records, newest first
func (r *BackupRepository) FindAll() ([]models.BackupRecord, error) {
	var records []models.BackupRecord
	err := r.db.Order("created_at DESC").Find(&records).Error
	return records, err
}

// FindOlderThan returns records created before the cutoff, newest first
func (r *BackupRepository) FindOlderThan(cutoff time.Time) ([]models.BackupRecord, error) {
	var records []models.BackupRecord
	err := r.db.Where("created_at < ?", cutoff).
		Order("created_at DESC").
		Find(&records).Error
	return records, err
}

// Delete deletes a backup record
func (r *BackupRepository) Delete(id uint) error {
	return r.db.Delete(&models.BackupRecord{}, "id = ?", id).Error
}

// Count counts all backup records
func (r *BackupRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.BackupRecord{}).Count(&count).Error
	return count, err
}
