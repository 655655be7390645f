package repository

import (
	"fmt"

	"github.com/craftops/agent/internal/models"
	"github.com/craftops/agent/pkg/config"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitDB initializes the database connection and migrates the schema
func InitDB(cfg *config.Config) error {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}
	if cfg.Debug {
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	}

	var err error
	switch cfg.DatabaseType {
	case "postgres", "postgresql":
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for PostgreSQL")
		}
		DB, err = gorm.Open(postgres.Open(cfg.DatabaseURL), gormConfig)
		if err != nil {
			return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}

	case "sqlite":
		DB, err = gorm.Open(sqlite.Open(cfg.DatabasePath), gormConfig)
		if err != nil {
			return fmt.Errorf("failed to open sqlite database: %w", err)
		}

	default:
		return fmt.Errorf("unsupported database type: %s", cfg.DatabaseType)
	}

	return Migrate(DB)
}

// Migrate auto-migrates all engine models
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.BackupRecord{},
		&models.AutoBackupSchedule{},
		&models.ScheduledUpdate{},
		&models.UpdateHistoryEntry{},
		&models.EngineEvent{},
	)
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}
