package models

import (
	"time"
)

// ScheduleType represents how often an automatic backup runs
type ScheduleType string

const (
	ScheduleDaily      ScheduleType = "daily"
	ScheduleEverySixH  ScheduleType = "every-6-hours"
	ScheduleWeekly     ScheduleType = "weekly"
	ScheduleCustom     ScheduleType = "custom" // interval given in hours
)

// RetentionType represents how old backups of a schedule are pruned
type RetentionType string

const (
	RetentionKeepLast        RetentionType = "keep-last"
	RetentionDeleteOlderThan RetentionType = "delete-older-than" // value in days
	RetentionNone            RetentionType = ""
)

// AutoBackupSchedule represents a recurring backup configuration.
// next_run is recomputed from the schedule type relative to "now" on
// every save and after every run.
type AutoBackupSchedule struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Enabled       bool         `gorm:"not null;default:false" json:"enabled"`
	ScheduleType  ScheduleType `gorm:"size:20;not null;default:'daily'" json:"schedule_type"`
	IntervalHours int          `gorm:"not null;default:24" json:"interval_hours"` // used only for custom

	// Content selectors
	IncludesWorlds  bool `gorm:"not null" json:"includes_worlds"`
	IncludesPlugins bool `gorm:"not null" json:"includes_plugins"`
	IncludesConfigs bool `gorm:"not null" json:"includes_configs"`

	// Retention policy applied after each run (optional)
	RetentionType  RetentionType `gorm:"size:20" json:"retention_type"`
	RetentionValue int           `gorm:"not null;default:0" json:"retention_value"`

	// Execution tracking
	LastRun *time.Time `json:"last_run"`
	NextRun *time.Time `gorm:"index" json:"next_run"`

	Creator string `gorm:"size:255;not null;default:'unknown'" json:"creator"`
}

// TableName specifies the table name
func (AutoBackupSchedule) TableName() string {
	return "auto_backup_schedules"
}

// IsDue reports whether the schedule should run at the given instant
func (s *AutoBackupSchedule) IsDue(now time.Time) bool {
	if !s.Enabled || s.NextRun == nil {
		return false
	}
	return !s.NextRun.After(now)
}
