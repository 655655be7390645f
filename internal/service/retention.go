package service

import (
	"os"
	"time"

	"github.com/craftops/agent/internal/audit"
	"github.com/craftops/agent/internal/events"
	"github.com/craftops/agent/internal/models"
	"github.com/craftops/agent/internal/monitoring"
	"github.com/craftops/agent/internal/repository"
	"github.com/craftops/agent/pkg/logger"
)

// RetentionEnforcer prunes old backup archives per a schedule's policy.
// Repeated application with nothing newly eligible deletes nothing.
type RetentionEnforcer struct {
	repo     *repository.BackupRepository
	bus      *events.EventBus
	auditLog *audit.Logger
}

// NewRetentionEnforcer creates a retention enforcer
func NewRetentionEnforcer(repo *repository.BackupRepository, bus *events.EventBus, auditLog *audit.Logger) *RetentionEnforcer {
	return &RetentionEnforcer{repo: repo, bus: bus, auditLog: auditLog}
}

// Apply enforces a retention policy and returns how many records were
// pruned. Unknown policy types and non-positive values are a no-op.
func (e *RetentionEnforcer) Apply(policyType models.RetentionType, value int) int {
	if value <= 0 {
		return 0
	}

	var victims []models.BackupRecord
	switch policyType {
	case models.RetentionKeepLast:
		records, err := e.repo.FindAll()
		if err != nil {
			logger.Error("RETENTION: Failed to list backups", err, nil)
			return 0
		}
		if len(records) > value {
			victims = records[value:]
		}

	case models.RetentionDeleteOlderThan:
		cutoff := time.Now().AddDate(0, 0, -value)
		records, err := e.repo.FindOlderThan(cutoff)
		if err != nil {
			logger.Error("RETENTION: Failed to query old backups", err, nil)
			return 0
		}
		victims = records

	default:
		return 0
	}

	pruned := 0
	for _, record := range victims {
		if e.prune(record) {
			pruned++
		}
	}

	if pruned > 0 {
		logger.Info("RETENTION: Pruned old backups", map[string]interface{}{
			"policy": string(policyType),
			"value":  value,
			"pruned": pruned,
		})
		e.auditLog.Record(audit.ActionRetentionPrune, "scheduler", "", "success", map[string]interface{}{
			"policy": string(policyType),
			"pruned": pruned,
		}, nil)
	}

	return pruned
}

// prune deletes the archive file, then the record. A failed file
// deletion is logged but does not block record removal.
func (e *RetentionEnforcer) prune(record models.BackupRecord) bool {
	if err := os.Remove(record.FilePath); err != nil && !os.IsNotExist(err) {
		logger.Warn("RETENTION: Failed to delete archive file", map[string]interface{}{
			"filename": record.Filename,
			"error":    err.Error(),
		})
	}

	if err := e.repo.Delete(record.ID); err != nil {
		logger.Error("RETENTION: Failed to delete backup record", err, map[string]interface{}{
			"backup_id": record.ID,
		})
		return false
	}

	monitoring.RetentionPruned.Inc()
	e.bus.Publish(events.Event{
		Type:   events.EventBackupPruned,
		Source: "retention_enforcer",
		Data:   map[string]interface{}{"backup_id": record.ID, "filename": record.Filename},
	})
	return true
}
