package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/craftops/agent/internal/archive"
	"github.com/craftops/agent/internal/gameserver"
	"github.com/craftops/agent/internal/models"
	"github.com/craftops/agent/internal/repository"
	"github.com/craftops/agent/pkg/logger"
)

// BackupScheduler owns the auto-backup schedules: CRUD plus the
// periodic tick that runs due schedules.
type BackupScheduler struct {
	backupService *BackupService
	scheduleRepo  *repository.ScheduleRepository
	retention     *RetentionEnforcer

	mu       sync.Mutex
	stopTick func()
}

// NewBackupScheduler creates a backup scheduler
func NewBackupScheduler(
	backupService *BackupService,
	scheduleRepo *repository.ScheduleRepository,
	retention *RetentionEnforcer,
) *BackupScheduler {
	return &BackupScheduler{
		backupService: backupService,
		scheduleRepo:  scheduleRepo,
		retention:     retention,
	}
}

// Start begins ticking on the given period
func (s *BackupScheduler) Start(sched gameserver.Scheduler, period time.Duration) {
	logger.Info("BACKUP-SCHEDULER: Starting", map[string]interface{}{
		"period": period.String(),
	})
	s.stopTick = sched.Every(period, s.Tick)
}

// Stop halts the periodic tick
func (s *BackupScheduler) Stop() {
	if s.stopTick != nil {
		s.stopTick()
		s.stopTick = nil
	}
}

// ComputeNextRun returns the next run time for a schedule type relative
// to now. Unrecognized types fall back to daily.
func ComputeNextRun(scheduleType models.ScheduleType, intervalHours int, now time.Time) time.Time {
	switch scheduleType {
	case models.ScheduleDaily:
		return now.Add(24 * time.Hour)
	case models.ScheduleEverySixH:
		return now.Add(6 * time.Hour)
	case models.ScheduleWeekly:
		return now.Add(7 * 24 * time.Hour)
	case models.ScheduleCustom:
		return now.Add(time.Duration(intervalHours) * time.Hour)
	default:
		return now.Add(24 * time.Hour)
	}
}

// Tick processes all due schedules. One failing schedule does not
// starve the others; every processed schedule gets fresh run times.
func (s *BackupScheduler) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	schedules, err := s.scheduleRepo.FindDue(now)
	if err != nil {
		logger.Error("BACKUP-SCHEDULER: Failed to fetch due schedules", err, nil)
		return
	}

	for _, schedule := range schedules {
		s.runSchedule(schedule, now)
	}
}

func (s *BackupScheduler) runSchedule(schedule models.AutoBackupSchedule, now time.Time) {
	logger.Info("BACKUP-SCHEDULER: Running scheduled backup", map[string]interface{}{
		"schedule_id": schedule.ID,
		"type":        schedule.ScheduleType,
	})

	result := s.backupService.CreateBackup(BackupOptions{
		Selectors: archive.Selectors{
			Worlds:     schedule.IncludesWorlds,
			PluginData: schedule.IncludesPlugins,
			Configs:    schedule.IncludesConfigs,
		},
		Kind:  models.BackupKindAuto,
		Notes: fmt.Sprintf("auto backup (schedule %d)", schedule.ID),
	}, schedule.Creator)
	if !result.Success {
		logger.Error("BACKUP-SCHEDULER: Scheduled backup failed", nil, map[string]interface{}{
			"schedule_id": schedule.ID,
			"message":     result.Message,
		})
	}

	if schedule.RetentionType != models.RetentionNone {
		s.retention.Apply(schedule.RetentionType, schedule.RetentionValue)
	}

	nextRun := ComputeNextRun(schedule.ScheduleType, schedule.IntervalHours, now)
	if err := s.scheduleRepo.UpdateRunTimes(schedule.ID, now, nextRun); err != nil {
		logger.Error("BACKUP-SCHEDULER: Failed to update schedule run times", err, map[string]interface{}{
			"schedule_id": schedule.ID,
		})
	}
}

// Schedules returns all auto-backup schedules
func (s *BackupScheduler) Schedules() ([]models.AutoBackupSchedule, error) {
	return s.scheduleRepo.FindAll()
}

// SaveSchedule upserts a schedule (ID == 0 creates) and recomputes its
// next run time relative to now.
func (s *BackupScheduler) SaveSchedule(schedule *models.AutoBackupSchedule, actor string) error {
	if !schedule.IncludesWorlds && !schedule.IncludesPlugins && !schedule.IncludesConfigs {
		return fmt.Errorf("%w: at least one content selector must be enabled", ErrValidation)
	}
	if schedule.ScheduleType == models.ScheduleCustom && schedule.IntervalHours <= 0 {
		return fmt.Errorf("%w: custom schedules need a positive interval", ErrValidation)
	}

	if schedule.Creator == "" {
		schedule.Creator = actor
	}
	if schedule.Creator == "" {
		schedule.Creator = "unknown"
	}

	nextRun := ComputeNextRun(schedule.ScheduleType, schedule.IntervalHours, time.Now())
	schedule.NextRun = &nextRun

	if err := s.scheduleRepo.Save(schedule); err != nil {
		return fmt.Errorf("failed to save schedule: %w", err)
	}

	logger.Info("BACKUP-SCHEDULER: Schedule saved", map[string]interface{}{
		"schedule_id": schedule.ID,
		"type":        schedule.ScheduleType,
		"enabled":     schedule.Enabled,
		"next_run":    nextRun.Format(time.RFC3339),
	})
	return nil
}

// DeleteSchedule removes a schedule
func (s *BackupScheduler) DeleteSchedule(id uint, actor string) bool {
	schedule, err := s.scheduleRepo.FindByID(id)
	if err != nil || schedule == nil {
		return false
	}
	if err := s.scheduleRepo.Delete(id); err != nil {
		logger.Error("BACKUP-SCHEDULER: Failed to delete schedule", err, map[string]interface{}{
			"schedule_id": id,
		})
		return false
	}
	logger.Info("BACKUP-SCHEDULER: Schedule deleted", map[string]interface{}{
		"schedule_id": id,
		"actor":       actor,
	})
	return true
}
