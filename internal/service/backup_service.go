package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/craftops/agent/internal/archive"
	"github.com/craftops/agent/internal/audit"
	"github.com/craftops/agent/internal/events"
	"github.com/craftops/agent/internal/models"
	"github.com/craftops/agent/internal/monitoring"
	"github.com/craftops/agent/internal/repository"
	"github.com/craftops/agent/pkg/logger"
)

// BackupOptions selects the content and kind of a backup
type BackupOptions struct {
	Selectors archive.Selectors
	Kind      models.BackupKind
	Notes     string
}

// BackupService owns the archive builder and the backup store. All
// failure paths come back as BackupResult, never as panics or raw
// errors across the API boundary.
type BackupService struct {
	repo      *repository.BackupRepository
	builder   *archive.Builder
	backupDir string
	bus       *events.EventBus
	auditLog  *audit.Logger
}

// NewBackupService creates a backup service and reconciles the backup
// directory with the store, importing archives that lack a record.
func NewBackupService(
	repo *repository.BackupRepository,
	builder *archive.Builder,
	backupDir string,
	bus *events.EventBus,
	auditLog *audit.Logger,
) *BackupService {
	service := &BackupService{
		repo:      repo,
		builder:   builder,
		backupDir: backupDir,
		bus:       bus,
		auditLog:  auditLog,
	}

	if err := os.MkdirAll(backupDir, 0755); err != nil {
		logger.Error("BACKUP: Failed to create backup directory", err, map[string]interface{}{
			"path": backupDir,
		})
	}

	imported, err := service.ImportUntrackedArchives()
	if err != nil {
		logger.Warn("BACKUP: Startup reconciliation failed", map[string]interface{}{
			"error": err.Error(),
		})
	} else if imported > 0 {
		logger.Info("BACKUP: Imported untracked archives", map[string]interface{}{
			"count": imported,
		})
	}

	return service
}

// CreateBackup builds an archive for the selected content and records
// it. An all-false selector set is rejected before any file is written.
func (s *BackupService) CreateBackup(opts BackupOptions, actor string) BackupResult {
	if actor == "" {
		actor = "unknown"
	}
	kind := opts.Kind
	if kind == "" {
		kind = models.BackupKindManual
	}

	if !opts.Selectors.Any() {
		s.auditLog.Record(audit.ActionBackupCreate, actor, "", "rejected", map[string]interface{}{
			"reason": "no content selected",
		}, nil)
		return BackupResult{Success: false, Message: "at least one content selector must be enabled"}
	}

	prefix := ""
	if kind == models.BackupKindUpdate {
		prefix = models.UpdateBackupPrefix
	}
	filename := archive.Filename(prefix, time.Now())

	started := time.Now()
	archivePath, size, err := s.builder.Build(opts.Selectors, s.backupDir, filename)
	if err != nil {
		monitoring.BackupsFailed.Inc()
		logger.Error("BACKUP: Archive build failed", err, map[string]interface{}{
			"filename": filename,
			"kind":     kind,
		})
		s.bus.Publish(events.Event{
			Type:   events.EventBackupFailed,
			Source: "backup_service",
			Actor:  actor,
			Data:   map[string]interface{}{"filename": filename, "error": err.Error()},
		})
		return BackupResult{Success: false, Message: fmt.Sprintf("archive build failed: %v", err)}
	}
	monitoring.ArchiveBuildSeconds.Observe(time.Since(started).Seconds())

	record := &models.BackupRecord{
		Filename:        filename,
		FilePath:        archivePath,
		SizeBytes:       size,
		Kind:            kind,
		Creator:         actor,
		Notes:           opts.Notes,
		IncludesWorlds:  opts.Selectors.Worlds,
		IncludesPlugins: opts.Selectors.PluginData,
		IncludesConfigs: opts.Selectors.Configs,
	}
	if err := s.repo.Create(record); err != nil {
		monitoring.BackupsFailed.Inc()
		// Avoid leaking an archive that no record points at
		os.Remove(archivePath)
		logger.Error("BACKUP: Failed to store backup record", err, map[string]interface{}{
			"filename": filename,
		})
		return BackupResult{Success: false, Message: fmt.Sprintf("failed to store backup record: %v", err)}
	}

	monitoring.BackupsCreated.WithLabelValues(string(kind)).Inc()
	logger.Info("BACKUP: Backup created", map[string]interface{}{
		"filename": filename,
		"kind":     kind,
		"size_mb":  size / 1024 / 1024,
		"creator":  actor,
	})

	s.bus.Publish(events.Event{
		Type:   events.EventBackupCreated,
		Source: "backup_service",
		Actor:  actor,
		Data: map[string]interface{}{
			"backup_id": record.ID,
			"filename":  filename,
			"kind":      string(kind),
			"size":      size,
		},
	})
	s.auditLog.Record(audit.ActionBackupCreate, actor, filename, "success", map[string]interface{}{
		"kind": string(kind),
		"size": size,
	}, nil)

	return BackupResult{Success: true, Message: "backup created", Filename: filename, SizeBytes: size}
}

// ListBackups returns all backup records, newest first
func (s *BackupService) ListBackups() ([]models.BackupRecord, error) {
	return s.repo.FindAll()
}

// GetBackup returns one backup record, or nil when absent
func (s *BackupService) GetBackup(id uint) (*models.BackupRecord, error) {
	return s.repo.FindByID(id)
}

// GetBackupFile returns the archive path for a backup when both the
// record and the file exist.
func (s *BackupService) GetBackupFile(id uint) (string, bool) {
	record, err := s.repo.FindByID(id)
	if err != nil || record == nil {
		return "", false
	}
	if _, err := os.Stat(record.FilePath); err != nil {
		return "", false
	}
	return record.FilePath, true
}

// DeleteBackup removes the archive file and its record. A missing file
// does not block record cleanup.
func (s *BackupService) DeleteBackup(id uint, actor string) bool {
	if actor == "" {
		actor = "unknown"
	}

	record, err := s.repo.FindByID(id)
	if err != nil || record == nil {
		return false
	}

	if err := os.Remove(record.FilePath); err != nil && !os.IsNotExist(err) {
		logger.Warn("BACKUP: Failed to delete archive file, removing record anyway", map[string]interface{}{
			"filename": record.Filename,
			"error":    err.Error(),
		})
	}

	if err := s.repo.Delete(id); err != nil {
		logger.Error("BACKUP: Failed to delete backup record", err, map[string]interface{}{
			"backup_id": id,
		})
		return false
	}

	monitoring.BackupsDeleted.Inc()
	s.bus.Publish(events.Event{
		Type:   events.EventBackupDeleted,
		Source: "backup_service",
		Actor:  actor,
		Data:   map[string]interface{}{"backup_id": id, "filename": record.Filename},
	})
	s.auditLog.Record(audit.ActionBackupDelete, actor, record.Filename, "success", nil, nil)
	return true
}

// ImportUntrackedArchives scans the backup directory for archive files
// absent from the store and imports them with inferred kind and all
// content selectors assumed true. Running it again is a no-op.
func (s *BackupService) ImportUntrackedArchives() (int, error) {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read backup directory: %w", err)
	}

	imported := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".tar.gz") {
			continue
		}

		existing, err := s.repo.FindByFilename(entry.Name())
		if err != nil {
			return imported, err
		}
		if existing != nil {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			logger.Warn("BACKUP: Failed to stat untracked archive", map[string]interface{}{
				"filename": entry.Name(),
				"error":    err.Error(),
			})
			continue
		}

		record := &models.BackupRecord{
			Filename:        entry.Name(),
			FilePath:        filepath.Join(s.backupDir, entry.Name()),
			SizeBytes:       info.Size(),
			Kind:            models.InferKindFromFilename(entry.Name()),
			Creator:         "unknown",
			IncludesWorlds:  true,
			IncludesPlugins: true,
			IncludesConfigs: true,
		}
		if err := s.repo.Create(record); err != nil {
			return imported, fmt.Errorf("failed to import archive %s: %w", entry.Name(), err)
		}
		imported++

		s.bus.Publish(events.Event{
			Type:   events.EventBackupImported,
			Source: "backup_service",
			Data:   map[string]interface{}{"filename": entry.Name(), "size": info.Size()},
		})
	}

	return imported, nil
}
