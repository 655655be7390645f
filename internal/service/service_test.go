package service

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/craftops/agent/internal/archive"
	"github.com/craftops/agent/internal/audit"
	"github.com/craftops/agent/internal/events"
	"github.com/craftops/agent/internal/repository"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, repository.Migrate(db))
	return db
}

// fakeRuntime records every live-server interaction
type fakeRuntime struct {
	mu         sync.Mutex
	broadcasts []string
	kicks      []string
	commands   []string
	version    string
	versionErr error
}

func (f *fakeRuntime) Broadcast(message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, message)
	return nil
}

func (f *fakeRuntime) KickAll(message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kicks = append(f.kicks, message)
	return nil
}

func (f *fakeRuntime) OnlinePlayers() ([]string, error) {
	return nil, nil
}

func (f *fakeRuntime) DispatchCommand(command string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, command)
	return nil
}

func (f *fakeRuntime) VersionString() (string, error) {
	return f.version, f.versionErr
}

func (f *fakeRuntime) dispatched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

func (f *fakeRuntime) broadcastLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.broadcasts...)
}

// syncScheduler runs After callbacks inline, in ascending delay order
// within a single dispatch, and never runs Every callbacks on its own.
type syncScheduler struct{}

func (syncScheduler) After(d time.Duration, fn func()) func() {
	fn()
	return func() {}
}

func (syncScheduler) Every(d time.Duration, fn func()) func() {
	return func() {}
}

// recordingScheduler captures After callbacks with their delays so a
// test can inspect a countdown cascade before driving it by hand.
type recordingScheduler struct {
	mu      sync.Mutex
	entries []schedulerEntry
}

type schedulerEntry struct {
	delay time.Duration
	fn    func()
}

func (r *recordingScheduler) After(d time.Duration, fn func()) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, schedulerEntry{delay: d, fn: fn})
	return func() {}
}

func (r *recordingScheduler) Every(d time.Duration, fn func()) func() {
	return func() {}
}

func (r *recordingScheduler) delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]time.Duration, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.delay
	}
	return out
}

// runAll fires recorded callbacks in submission order, including any
// scheduled while running.
func (r *recordingScheduler) runAll() {
	for i := 0; ; i++ {
		r.mu.Lock()
		if i >= len(r.entries) {
			r.mu.Unlock()
			return
		}
		fn := r.entries[i].fn
		r.mu.Unlock()
		fn()
	}
}

// fakeFeed serves canned build data
type fakeFeed struct {
	latest    int
	latestErr error
}

func (f *fakeFeed) LatestBuild(version string) (int, error) {
	return f.latest, f.latestErr
}

func (f *fakeFeed) DownloadURL(version string, build int) string {
	return fmt.Sprintf("http://feed.test/%s/%d", version, build)
}

func (f *fakeFeed) BinaryName(version string, build int) string {
	return fmt.Sprintf("paper-%s-%d.jar", version, build)
}

type backupEnv struct {
	db        *gorm.DB
	repo      *repository.BackupRepository
	service   *BackupService
	retention *RetentionEnforcer
	serverDir string
	backupDir string
}

func newBackupEnv(t *testing.T) *backupEnv {
	t.Helper()
	db := newTestDB(t)
	repo := repository.NewBackupRepository(db)
	bus := events.NewEventBus(nil)
	auditLog := audit.NewLogger(100)

	serverDir := t.TempDir()
	backupDir := filepath.Join(t.TempDir(), "backups")
	builder := archive.NewBuilder(serverDir)

	return &backupEnv{
		db:        db,
		repo:      repo,
		service:   NewBackupService(repo, builder, backupDir, bus, auditLog),
		retention: NewRetentionEnforcer(repo, bus, auditLog),
		serverDir: serverDir,
		backupDir: backupDir,
	}
}
