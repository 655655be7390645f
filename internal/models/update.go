package models

import (
	"time"
)

// ScheduledUpdateStatus represents the lifecycle of a one-shot scheduled update
type ScheduledUpdateStatus string

const (
	ScheduledUpdatePending   ScheduledUpdateStatus = "pending"
	ScheduledUpdateExecuting ScheduledUpdateStatus = "executing"
	ScheduledUpdateCompleted ScheduledUpdateStatus = "completed"
	ScheduledUpdateFailed    ScheduledUpdateStatus = "failed"
	ScheduledUpdateCancelled ScheduledUpdateStatus = "cancelled"
)

// ScheduledUpdate represents a binary update queued for a future time.
// Only pending rows may be cancelled or claimed for execution; a row
// transitions at most once from pending to executing and exactly once
// from executing to a terminal state.
type ScheduledUpdate struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ScheduledTime time.Time             `gorm:"not null;index" json:"scheduled_time"`
	TargetVersion string                `gorm:"size:50;not null" json:"target_version"`
	TargetBuild   int                   `gorm:"not null" json:"target_build"`
	Status        ScheduledUpdateStatus `gorm:"size:20;not null;default:'pending';index" json:"status"`

	ExecutedAt  *time.Time `json:"executed_at"`
	CancelledAt *time.Time `json:"cancelled_at"`

	Creator string `gorm:"size:255;not null;default:'unknown'" json:"creator"`
	Notes   string `gorm:"size:1024" json:"notes"`
}

// TableName specifies the table name
func (ScheduledUpdate) TableName() string {
	return "scheduled_updates"
}

// UpdateHistoryEntry is an append-only record of every attempted
// installation. Never mutated after insert.
type UpdateHistoryEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	FromVersion string `gorm:"size:50" json:"from_version"`
	FromBuild   int    `json:"from_build"`
	ToVersion   string `gorm:"size:50;not null" json:"to_version"`
	ToBuild     int    `gorm:"not null" json:"to_build"`

	Initiator      string `gorm:"size:255;not null;default:'unknown'" json:"initiator"`
	BackupCreated  bool   `gorm:"not null" json:"backup_created"`
	BackupFilename string `gorm:"size:255" json:"backup_filename"`
	Success        bool   `gorm:"not null" json:"success"`
	Notes          string `gorm:"size:1024" json:"notes"`
}

// TableName specifies the table name
func (UpdateHistoryEntry) TableName() string {
	return "update_history"
}

// UpdatePhase represents the installer state machine phase
type UpdatePhase string

const (
	PhaseIdle        UpdatePhase = "IDLE"
	PhaseChecking    UpdatePhase = "CHECKING"
	PhaseAvailable   UpdatePhase = "AVAILABLE"
	PhaseDownloading UpdatePhase = "DOWNLOADING"
	PhaseDownloaded  UpdatePhase = "DOWNLOADED"
	PhaseInstalling  UpdatePhase = "INSTALLING"
	PhaseComplete    UpdatePhase = "COMPLETE"
	PhaseError       UpdatePhase = "ERROR"
)
