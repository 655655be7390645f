package service

import (
	"testing"
	"time"

	"github.com/craftops/agent/internal/models"
	"github.com/craftops/agent/internal/repository"
	"github.com/stretchr/testify/require"
)

func TestComputeNextRun(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.Equal(t, now.Add(24*time.Hour), ComputeNextRun(models.ScheduleDaily, 0, now))
	require.Equal(t, now.Add(6*time.Hour), ComputeNextRun(models.ScheduleEverySixH, 0, now))
	require.Equal(t, now.Add(7*24*time.Hour), ComputeNextRun(models.ScheduleWeekly, 0, now))
	require.Equal(t, now.Add(36*time.Hour), ComputeNextRun(models.ScheduleCustom, 36, now))

	// Unknown types fall back to daily
	require.Equal(t, now.Add(24*time.Hour), ComputeNextRun(models.ScheduleType("hourly"), 0, now))
}

func newSchedulerEnv(t *testing.T) (*backupEnv, *BackupScheduler, *repository.ScheduleRepository) {
	t.Helper()
	env := newBackupEnv(t)
	scheduleRepo := repository.NewScheduleRepository(env.db)
	scheduler := NewBackupScheduler(env.service, scheduleRepo, env.retention)
	return env, scheduler, scheduleRepo
}

func TestSaveScheduleValidation(t *testing.T) {
	_, scheduler, _ := newSchedulerEnv(t)

	err := scheduler.SaveSchedule(&models.AutoBackupSchedule{
		Enabled:      true,
		ScheduleType: models.ScheduleDaily,
	}, "alice")
	require.ErrorIs(t, err, ErrValidation)

	err = scheduler.SaveSchedule(&models.AutoBackupSchedule{
		Enabled:        true,
		ScheduleType:   models.ScheduleCustom,
		IncludesWorlds: true,
	}, "alice")
	require.ErrorIs(t, err, ErrValidation)
}

func TestSaveScheduleComputesNextRun(t *testing.T) {
	_, scheduler, scheduleRepo := newSchedulerEnv(t)

	schedule := &models.AutoBackupSchedule{
		Enabled:        true,
		ScheduleType:   models.ScheduleEverySixH,
		IncludesWorlds: true,
	}
	before := time.Now()
	require.NoError(t, scheduler.SaveSchedule(schedule, "alice"))

	saved, err := scheduleRepo.FindByID(schedule.ID)
	require.NoError(t, err)
	require.NotNil(t, saved)
	require.Equal(t, "alice", saved.Creator)
	require.NotNil(t, saved.NextRun)
	require.WithinDuration(t, before.Add(6*time.Hour), *saved.NextRun, 5*time.Second)
}

func TestTickRunsDueSchedules(t *testing.T) {
	env, scheduler, scheduleRepo := newSchedulerEnv(t)
	seedServerDir(t, env.serverDir)

	due := time.Now().Add(-time.Minute)
	schedule := &models.AutoBackupSchedule{
		Enabled:         true,
		ScheduleType:    models.ScheduleDaily,
		IncludesWorlds:  true,
		IncludesConfigs: true,
		Creator:         "scheduler",
		NextRun:         &due,
	}
	require.NoError(t, scheduleRepo.Save(schedule))

	scheduler.Tick()

	// A backup of kind auto was created
	records, err := env.service.ListBackups()
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, models.BackupKindAuto, records[0].Kind)
	require.Equal(t, "scheduler", records[0].Creator)

	// Run times advanced
	updated, err := scheduleRepo.FindByID(schedule.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.LastRun)
	require.NotNil(t, updated.NextRun)
	require.WithinDuration(t, time.Now().Add(24*time.Hour), *updated.NextRun, 5*time.Second)

	// Schedule no longer due, second tick does nothing
	scheduler.Tick()
	records, err = env.service.ListBackups()
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestTickAppliesRetention(t *testing.T) {
	env, scheduler, scheduleRepo := newSchedulerEnv(t)
	seedServerDir(t, env.serverDir)

	// Two stale archives the policy should trim down
	seedBackupRecord(t, env, "backup_2025-01-01_00-00-00.tar.gz", 48*time.Hour)
	seedBackupRecord(t, env, "backup_2025-01-02_00-00-00.tar.gz", 24*time.Hour)

	due := time.Now().Add(-time.Minute)
	schedule := &models.AutoBackupSchedule{
		Enabled:        true,
		ScheduleType:   models.ScheduleDaily,
		IncludesWorlds: true,
		RetentionType:  models.RetentionKeepLast,
		RetentionValue: 1,
		NextRun:        &due,
	}
	require.NoError(t, scheduleRepo.Save(schedule))

	scheduler.Tick()

	// Only the backup this run created survives
	records, err := env.service.ListBackups()
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, models.BackupKindAuto, records[0].Kind)
}

func TestTickSkipsDisabledSchedules(t *testing.T) {
	env, scheduler, scheduleRepo := newSchedulerEnv(t)
	seedServerDir(t, env.serverDir)

	due := time.Now().Add(-time.Minute)
	require.NoError(t, scheduleRepo.Save(&models.AutoBackupSchedule{
		Enabled:        false,
		ScheduleType:   models.ScheduleDaily,
		IncludesWorlds: true,
		NextRun:        &due,
	}))

	scheduler.Tick()

	records, err := env.service.ListBackups()
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestDeleteSchedule(t *testing.T) {
	_, scheduler, scheduleRepo := newSchedulerEnv(t)

	schedule := &models.AutoBackupSchedule{
		Enabled:        true,
		ScheduleType:   models.ScheduleDaily,
		IncludesWorlds: true,
	}
	require.NoError(t, scheduler.SaveSchedule(schedule, "alice"))

	require.True(t, scheduler.DeleteSchedule(schedule.ID, "alice"))
	require.False(t, scheduler.DeleteSchedule(schedule.ID, "alice"))

	remaining, err := scheduleRepo.FindAll()
	require.NoError(t, err)
	require.Empty(t, remaining)
}
