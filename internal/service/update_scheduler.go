package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/craftops/agent/internal/audit"
	"github.com/craftops/agent/internal/events"
	"github.com/craftops/agent/internal/gameserver"
	"github.com/craftops/agent/internal/models"
	"github.com/craftops/agent/internal/repository"
	"github.com/craftops/agent/pkg/logger"
)

// UpdateScheduler owns one-shot scheduled updates: CRUD, cancellation,
// and the periodic tick that claims and executes due rows. Claiming is
// status-guarded in the database, so a row executes at most once even
// if ticks overlap.
type UpdateScheduler struct {
	updateRepo *repository.UpdateRepository
	installer  *UpdateInstaller
	checker    *VersionChecker
	state      *UpdateState
	bus        *events.EventBus
	auditLog   *audit.Logger

	mu       sync.Mutex
	stopTick func()
}

// NewUpdateScheduler creates an update scheduler
func NewUpdateScheduler(
	updateRepo *repository.UpdateRepository,
	installer *UpdateInstaller,
	checker *VersionChecker,
	state *UpdateState,
	bus *events.EventBus,
	auditLog *audit.Logger,
) *UpdateScheduler {
	return &UpdateScheduler{
		updateRepo: updateRepo,
		installer:  installer,
		checker:    checker,
		state:      state,
		bus:        bus,
		auditLog:   auditLog,
	}
}

// Start begins ticking on the given period
func (s *UpdateScheduler) Start(sched gameserver.Scheduler, period time.Duration) {
	logger.Info("UPDATE-SCHEDULER: Starting", map[string]interface{}{
		"period": period.String(),
	})
	s.stopTick = sched.Every(period, s.Tick)
}

// Stop halts the periodic tick
func (s *UpdateScheduler) Stop() {
	if s.stopTick != nil {
		s.stopTick()
		s.stopTick = nil
	}
}

// ScheduleUpdate queues a one-shot update. The scheduled time must be
// strictly in the future and the target version must parse as a
// version line.
func (s *UpdateScheduler) ScheduleUpdate(update *models.ScheduledUpdate, actor string) error {
	if !update.ScheduledTime.After(time.Now()) {
		return fmt.Errorf("%w: scheduled time must be in the future", ErrValidation)
	}
	if _, err := semver.NewVersion(update.TargetVersion); err != nil {
		return fmt.Errorf("%w: target version %q is not a valid version", ErrValidation, update.TargetVersion)
	}

	update.Status = models.ScheduledUpdatePending
	if update.Creator == "" {
		update.Creator = actor
	}
	if update.Creator == "" {
		update.Creator = "unknown"
	}

	if err := s.updateRepo.CreateScheduled(update); err != nil {
		return fmt.Errorf("failed to create scheduled update: %w", err)
	}

	logger.Info("UPDATE-SCHEDULER: Update scheduled", map[string]interface{}{
		"update_id":      update.ID,
		"scheduled_time": update.ScheduledTime.Format(time.RFC3339),
		"target_version": update.TargetVersion,
		"target_build":   update.TargetBuild,
		"creator":        update.Creator,
	})
	s.auditLog.Record(audit.ActionUpdateSchedule, update.Creator, update.TargetVersion, "success", map[string]interface{}{
		"update_id":      update.ID,
		"scheduled_time": update.ScheduledTime.Format(time.RFC3339),
	}, nil)
	s.bus.Publish(events.Event{
		Type:   events.EventUpdateScheduled,
		Source: "update_scheduler",
		Actor:  update.Creator,
		Data: map[string]interface{}{
			"update_id":      update.ID,
			"scheduled_time": update.ScheduledTime.Format(time.RFC3339),
			"target_version": update.TargetVersion,
			"target_build":   update.TargetBuild,
		},
	})
	return nil
}

// RescheduleUpdate moves a pending update to a new future time
func (s *UpdateScheduler) RescheduleUpdate(id uint, newTime time.Time, actor string) error {
	if !newTime.After(time.Now()) {
		return fmt.Errorf("%w: scheduled time must be in the future", ErrValidation)
	}

	update, err := s.updateRepo.FindScheduledByID(id)
	if err != nil {
		return fmt.Errorf("failed to look up scheduled update: %w", err)
	}
	if update == nil {
		return fmt.Errorf("%w: scheduled update %d", ErrNotFound, id)
	}

	ok, err := s.updateRepo.Reschedule(id, newTime)
	if err != nil {
		return fmt.Errorf("failed to reschedule update: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: scheduled update %d is %s, only pending updates can be rescheduled",
			ErrStateConflict, id, update.Status)
	}

	logger.Info("UPDATE-SCHEDULER: Update rescheduled", map[string]interface{}{
		"update_id":      id,
		"scheduled_time": newTime.Format(time.RFC3339),
		"actor":          actor,
	})
	return nil
}

// CancelUpdate cancels a pending scheduled update. Rows that already
// started executing or reached a terminal state cannot be cancelled.
func (s *UpdateScheduler) CancelUpdate(id uint, actor string) error {
	update, err := s.updateRepo.FindScheduledByID(id)
	if err != nil {
		return fmt.Errorf("failed to look up scheduled update: %w", err)
	}
	if update == nil {
		return fmt.Errorf("%w: scheduled update %d", ErrNotFound, id)
	}

	ok, err := s.updateRepo.Cancel(id, time.Now())
	if err != nil {
		return fmt.Errorf("failed to cancel scheduled update: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: scheduled update %d is %s, only pending updates can be cancelled",
			ErrStateConflict, id, update.Status)
	}

	logger.Info("UPDATE-SCHEDULER: Update cancelled", map[string]interface{}{
		"update_id": id,
		"actor":     actor,
	})
	s.auditLog.Record(audit.ActionUpdateCancel, actor, update.TargetVersion, "success", map[string]interface{}{
		"update_id": id,
	}, nil)
	s.bus.Publish(events.Event{
		Type:   events.EventUpdateCancelled,
		Source: "update_scheduler",
		Actor:  actor,
		Data:   map[string]interface{}{"update_id": id},
	})
	return nil
}

// ScheduledUpdates returns all scheduled updates, newest first
func (s *UpdateScheduler) ScheduledUpdates() ([]models.ScheduledUpdate, error) {
	return s.updateRepo.FindScheduled()
}

// History returns recent update history entries
func (s *UpdateScheduler) History(limit int) ([]models.UpdateHistoryEntry, error) {
	return s.updateRepo.FindHistory(limit)
}

// Tick claims and executes due pending updates. At most one runs per
// tick; the installer rejects overlap anyway, but there is no point
// claiming a second row while the first is still restarting the server.
func (s *UpdateScheduler) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	due, err := s.updateRepo.FindDuePending(time.Now())
	if err != nil {
		logger.Error("UPDATE-SCHEDULER: Failed to fetch due updates", err, nil)
		return
	}

	for _, update := range due {
		claimed, err := s.updateRepo.ClaimPending(update.ID)
		if err != nil {
			logger.Error("UPDATE-SCHEDULER: Failed to claim scheduled update", err, map[string]interface{}{
				"update_id": update.ID,
			})
			continue
		}
		if !claimed {
			// Cancelled or claimed elsewhere between query and claim
			continue
		}

		s.execute(update)
		return
	}
}

// execute runs one claimed update through the check/download/install
// pipeline. The row reaches a terminal state exactly once, via the
// installer's completion callback on success or directly on an early
// failure.
func (s *UpdateScheduler) execute(update models.ScheduledUpdate) {
	logger.Info("UPDATE-SCHEDULER: Executing scheduled update", map[string]interface{}{
		"update_id":      update.ID,
		"target_version": update.TargetVersion,
		"target_build":   update.TargetBuild,
	})

	snap := s.state.Snapshot()
	if !snap.Available {
		s.checker.Check()
		snap = s.state.Snapshot()
	}
	if !snap.Available {
		s.fail(update.ID, "no update available at execution time")
		return
	}

	if !snap.Downloaded {
		if result := s.installer.Download(); !result.Success {
			s.fail(update.ID, result.Message)
			return
		}
	}

	notes := update.Notes
	if notes == "" {
		notes = fmt.Sprintf("scheduled update %d", update.ID)
	}
	// The installer can only install what the feed currently serves. If
	// that diverges from the scheduled target, say so in the history row.
	if update.TargetBuild != 0 && snap.LatestBuild != update.TargetBuild {
		logger.Warn("UPDATE-SCHEDULER: Feed build diverges from scheduled target, installing the feed build", map[string]interface{}{
			"update_id":    update.ID,
			"target_build": update.TargetBuild,
			"latest_build": snap.LatestBuild,
		})
		notes = fmt.Sprintf("%s (scheduled for build %d, feed served build %d)", notes, update.TargetBuild, snap.LatestBuild)
	}
	result := s.installer.Install(update.Creator, notes, func(success bool) {
		status := models.ScheduledUpdateCompleted
		if !success {
			status = models.ScheduledUpdateFailed
		}
		if err := s.updateRepo.Finish(update.ID, status, time.Now()); err != nil {
			logger.Error("UPDATE-SCHEDULER: Failed to finalize scheduled update", err, map[string]interface{}{
				"update_id": update.ID,
			})
		}
	})
	if !result.Success {
		s.fail(update.ID, result.Message)
	}
}

func (s *UpdateScheduler) fail(id uint, reason string) {
	logger.Error("UPDATE-SCHEDULER: Scheduled update failed", nil, map[string]interface{}{
		"update_id": id,
		"reason":    reason,
	})
	if err := s.updateRepo.Finish(id, models.ScheduledUpdateFailed, time.Now()); err != nil {
		logger.Error("UPDATE-SCHEDULER: Failed to mark scheduled update as failed", err, map[string]interface{}{
			"update_id": id,
		})
	}
	s.bus.Publish(events.Event{
		Type:   events.EventUpdateFailed,
		Source: "update_scheduler",
		Data:   map[string]interface{}{"update_id": id, "reason": reason},
	})
}
