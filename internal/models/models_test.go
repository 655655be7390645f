package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInferKindFromFilename(t *testing.T) {
	require.Equal(t, BackupKindUpdate, InferKindFromFilename("update_backup_2025-01-01_00-00-00.tar.gz"))
	require.Equal(t, BackupKindManual, InferKindFromFilename("backup_2025-01-01_00-00-00.tar.gz"))
	require.Equal(t, BackupKindManual, InferKindFromFilename("whatever.tar.gz"))
}

func TestScheduleIsDue(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	require.True(t, (&AutoBackupSchedule{Enabled: true, NextRun: &past}).IsDue(now))
	require.True(t, (&AutoBackupSchedule{Enabled: true, NextRun: &now}).IsDue(now))
	require.False(t, (&AutoBackupSchedule{Enabled: true, NextRun: &future}).IsDue(now))
	require.False(t, (&AutoBackupSchedule{Enabled: false, NextRun: &past}).IsDue(now))
	require.False(t, (&AutoBackupSchedule{Enabled: true}).IsDue(now))
}
