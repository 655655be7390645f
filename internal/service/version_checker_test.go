package service

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/craftops/agent/internal/events"
	"github.com/craftops/agent/internal/models"
	"github.com/stretchr/testify/require"
)

func TestParseVersionString(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantLine  string
		wantBuild int
	}{
		{
			name:      "git style with MC suffix",
			raw:       "This server is running Paper version git-Paper-550 (MC: 1.20.4)",
			wantLine:  "1.20.4",
			wantBuild: 550,
		},
		{
			name:      "dash build style",
			raw:       "This server is running Paper version 1.21.1-40-master@1de3371 (2024-09-01)",
			wantLine:  "1.21.1",
			wantBuild: 40,
		},
		{
			name:      "version line without build",
			raw:       "Paper 1.20.6",
			wantLine:  "1.20.6",
			wantBuild: 0,
		},
		{
			name:      "unparseable",
			raw:       "something went wrong",
			wantLine:  "",
			wantBuild: 0,
		},
		{
			name:      "empty",
			raw:       "",
			wantLine:  "",
			wantBuild: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, build := parseVersionString(tt.raw)
			require.Equal(t, tt.wantLine, line)
			require.Equal(t, tt.wantBuild, build)
		})
	}
}

func newCheckerEnv(t *testing.T, versionString string, feed *fakeFeed) (*VersionChecker, *UpdateState, string) {
	t.Helper()
	state := NewUpdateState()
	runtime := &fakeRuntime{version: versionString}
	markerPath := filepath.Join(t.TempDir(), ".installed_build")
	checker := NewVersionChecker(feed, state, runtime, markerPath, time.Hour, events.NewEventBus(nil))
	return checker, state, markerPath
}

func TestBootstrapFromVersionString(t *testing.T) {
	checker, state, _ := newCheckerEnv(t,
		"This server is running Paper version git-Paper-100 (MC: 1.21.1)", &fakeFeed{})

	checker.Bootstrap()

	snap := state.Snapshot()
	require.Equal(t, "1.21.1", snap.CurrentVersion)
	require.Equal(t, 100, snap.CurrentBuild)
}

func TestBootstrapFallsBackToMarker(t *testing.T) {
	checker, state, markerPath := newCheckerEnv(t, "Paper 1.21.1", &fakeFeed{})
	require.NoError(t, os.WriteFile(markerPath, []byte("87\n"), 0644))

	checker.Bootstrap()

	snap := state.Snapshot()
	require.Equal(t, "1.21.1", snap.CurrentVersion)
	require.Equal(t, 87, snap.CurrentBuild)
}

func TestCheckFindsNewerBuild(t *testing.T) {
	feed := &fakeFeed{latest: 130}
	checker, state, _ := newCheckerEnv(t,
		"This server is running Paper version git-Paper-100 (MC: 1.21.1)", feed)

	require.True(t, checker.Check())

	snap := state.Snapshot()
	require.Equal(t, models.PhaseAvailable, snap.Phase)
	require.True(t, snap.Available)
	require.Equal(t, 130, snap.LatestBuild)
	require.Equal(t, "http://feed.test/1.21.1/130", snap.DownloadURL)
	require.False(t, snap.LastCheck.IsZero())
	require.False(t, checker.NeedsCheck())
}

func TestCheckUpToDate(t *testing.T) {
	feed := &fakeFeed{latest: 100}
	checker, state, _ := newCheckerEnv(t,
		"This server is running Paper version git-Paper-100 (MC: 1.21.1)", feed)

	require.False(t, checker.Check())

	snap := state.Snapshot()
	require.Equal(t, models.PhaseIdle, snap.Phase)
	require.False(t, snap.Available)
	require.Empty(t, snap.DownloadURL)
}

func TestCheckFeedFailureKeepsPriorState(t *testing.T) {
	feed := &fakeFeed{latest: 130}
	checker, state, _ := newCheckerEnv(t,
		"This server is running Paper version git-Paper-100 (MC: 1.21.1)", feed)

	// First check succeeds and caches availability
	require.True(t, checker.Check())
	before := state.Snapshot()

	// Feed goes dark; cached state survives
	feed.latestErr = os.ErrDeadlineExceeded
	require.False(t, checker.Check())

	after := state.Snapshot()
	require.Equal(t, before.Phase, after.Phase)
	require.Equal(t, before.LatestBuild, after.LatestBuild)
	require.Equal(t, before.LastCheck, after.LastCheck)
	require.True(t, after.Available)
}

func TestCheckUnknownVersionBailsOut(t *testing.T) {
	checker, state, _ := newCheckerEnv(t, "no version here", &fakeFeed{latest: 130})

	require.False(t, checker.Check())
	require.False(t, state.Snapshot().Available)
}

func TestNeedsCheckGoesStale(t *testing.T) {
	state := NewUpdateState()
	require.True(t, state.NeedsCheck(time.Hour))

	state.SetUpToDate("1.21.1", 100, time.Now().Add(-2*time.Hour))
	require.True(t, state.NeedsCheck(time.Hour))

	state.SetUpToDate("1.21.1", 100, time.Now())
	require.False(t, state.NeedsCheck(time.Hour))
}
