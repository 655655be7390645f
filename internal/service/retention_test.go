package service

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/craftops/agent/internal/models"
	"github.com/stretchr/testify/require"
)

// seedBackupRecord inserts a record with a backing file and a fixed age
func seedBackupRecord(t *testing.T, env *backupEnv, name string, age time.Duration) *models.BackupRecord {
	t.Helper()
	path := filepath.Join(env.backupDir, name)
	require.NoError(t, os.WriteFile(path, []byte("archive"), 0644))

	record := &models.BackupRecord{
		CreatedAt: time.Now().Add(-age),
		Filename:  name,
		FilePath:  path,
		SizeBytes: 7,
		Kind:      models.BackupKindAuto,
		Creator:   "scheduler",
	}
	require.NoError(t, env.repo.Create(record))
	return record
}

func TestRetentionKeepLast(t *testing.T) {
	env := newBackupEnv(t)

	for i := 0; i < 5; i++ {
		seedBackupRecord(t, env, fmt.Sprintf("backup_2025-01-0%d_00-00-00.tar.gz", i+1),
			time.Duration(5-i)*time.Hour)
	}

	pruned := env.retention.Apply(models.RetentionKeepLast, 3)
	require.Equal(t, 2, pruned)

	records, err := env.repo.FindAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Newest three survive
	require.Equal(t, "backup_2025-01-05_00-00-00.tar.gz", records[0].Filename)
	require.Equal(t, "backup_2025-01-03_00-00-00.tar.gz", records[2].Filename)

	// Pruned archives are gone from disk
	_, err = os.Stat(filepath.Join(env.backupDir, "backup_2025-01-01_00-00-00.tar.gz"))
	require.True(t, os.IsNotExist(err))

	// Re-applying with nothing newly eligible deletes nothing
	require.Zero(t, env.retention.Apply(models.RetentionKeepLast, 3))
}

func TestRetentionDeleteOlderThan(t *testing.T) {
	env := newBackupEnv(t)

	old := seedBackupRecord(t, env, "backup_2025-01-01_00-00-00.tar.gz", 10*24*time.Hour)
	recent := seedBackupRecord(t, env, "backup_2025-02-01_00-00-00.tar.gz", 2*24*time.Hour)

	pruned := env.retention.Apply(models.RetentionDeleteOlderThan, 7)
	require.Equal(t, 1, pruned)

	gone, err := env.repo.FindByID(old.ID)
	require.NoError(t, err)
	require.Nil(t, gone)

	kept, err := env.repo.FindByID(recent.ID)
	require.NoError(t, err)
	require.NotNil(t, kept)

	require.Zero(t, env.retention.Apply(models.RetentionDeleteOlderThan, 7))
}

func TestRetentionNoOpOnBadInput(t *testing.T) {
	env := newBackupEnv(t)
	seedBackupRecord(t, env, "backup_2025-01-01_00-00-00.tar.gz", time.Hour)

	require.Zero(t, env.retention.Apply(models.RetentionKeepLast, 0))
	require.Zero(t, env.retention.Apply(models.RetentionDeleteOlderThan, -1))
	require.Zero(t, env.retention.Apply(models.RetentionType("bogus"), 5))

	records, err := env.repo.FindAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestRetentionKeepLastFewerThanLimit(t *testing.T) {
	env := newBackupEnv(t)
	seedBackupRecord(t, env, "backup_2025-01-01_00-00-00.tar.gz", time.Hour)

	require.Zero(t, env.retention.Apply(models.RetentionKeepLast, 10))
}
