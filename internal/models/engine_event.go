package models

import (
	"time"

	"gorm.io/datatypes"
)

// EngineEvent is a persisted engine event (backup/update lifecycle,
// audit trail for destructive actions).
type EngineEvent struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	Type   string `gorm:"size:50;not null;index" json:"type"`
	Source string `gorm:"size:50" json:"source"`
	Actor  string `gorm:"size:255" json:"actor"`

	Data datatypes.JSON `json:"data"`
}

// TableName specifies the table name
func (EngineEvent) TableName() string {
	return "engine_events"
}
