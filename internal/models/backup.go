package models

import (
	"strings"
	"time"
)

// BackupKind represents how a backup was triggered
type BackupKind string

const (
	BackupKindManual BackupKind = "manual" // User-initiated backup
	BackupKindAuto   BackupKind = "auto"   // Created by a schedule tick
	BackupKindUpdate BackupKind = "update" // Safety backup before a binary update
)

// UpdateBackupPrefix is the filename prefix used for pre-update safety
// backups. Startup reconciliation uses it to infer the kind of archives
// found on disk without a store record.
const UpdateBackupPrefix = "update_"

// BackupRecord represents one archive file under the backup directory
type BackupRecord struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Filename  string `gorm:"size:255;not null;uniqueIndex"`
	FilePath  string `gorm:"size:512;not null"` // Absolute path of the archive
	SizeBytes int64  `gorm:"not null"`

	Kind    BackupKind `gorm:"size:20;not null;index"`
	Creator string     `gorm:"size:255;not null;default:'unknown'"`
	Notes   string     `gorm:"size:1024"`

	// Content selectors the archive was built from
	IncludesWorlds  bool `gorm:"not null"`
	IncludesPlugins bool `gorm:"not null"`
	IncludesConfigs bool `gorm:"not null"`
}

// TableName specifies the table name
func (BackupRecord) TableName() string {
	return "backup_records"
}

// InferKindFromFilename maps an on-disk archive name to a backup kind.
// Used when importing archives that have no store record.
func InferKindFromFilename(filename string) BackupKind {
	if strings.HasPrefix(filename, UpdateBackupPrefix) {
		return BackupKindUpdate
	}
	return BackupKindManual
}
