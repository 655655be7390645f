package events

import (
	"encoding/json"
	"fmt"

	"github.com/craftops/agent/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DatabaseEventStorage persists engine events to the relational store
type DatabaseEventStorage struct {
	db *gorm.DB
}

// NewDatabaseEventStorage creates a database-backed event storage
func NewDatabaseEventStorage(db *gorm.DB) *DatabaseEventStorage {
	return &DatabaseEventStorage{db: db}
}

// Store persists one event row with its payload as JSON
func (s *DatabaseEventStorage) Store(event Event) error {
	var payload datatypes.JSON
	if event.Data != nil {
		data, err := json.Marshal(event.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal event data: %w", err)
		}
		payload = datatypes.JSON(data)
	}

	row := models.EngineEvent{
		ID:        event.ID,
		CreatedAt: event.Timestamp,
		Type:      string(event.Type),
		Source:    event.Source,
		Actor:     event.Actor,
		Data:      payload,
	}
	return s.db.Create(&row).Error
}

// Recent returns the most recent persisted events
func (s *DatabaseEventStorage) Recent(limit int) ([]models.EngineEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.EngineEvent
	err := s.db.Order("created_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}
