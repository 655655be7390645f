package service

import (
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/craftops/agent/internal/events"
	"github.com/craftops/agent/internal/gameserver"
	"github.com/craftops/agent/internal/models"
	"github.com/craftops/agent/internal/monitoring"
	"github.com/craftops/agent/pkg/logger"
)

// BuildFeed is the slice of the release feed the checker needs
type BuildFeed interface {
	LatestBuild(version string) (int, error)
	DownloadURL(version string, build int) string
}

// VersionChecker tracks whether a newer build of the running release
// line exists on the remote feed. Check never propagates failures;
// network or parse errors leave prior state untouched.
type VersionChecker struct {
	feed       BuildFeed
	state      *UpdateState
	runtime    gameserver.Runtime
	markerPath string
	staleAfter time.Duration
	bus        *events.EventBus
}

// NewVersionChecker creates a version checker
func NewVersionChecker(
	feed BuildFeed,
	state *UpdateState,
	runtime gameserver.Runtime,
	markerPath string,
	staleAfter time.Duration,
	bus *events.EventBus,
) *VersionChecker {
	return &VersionChecker{
		feed:       feed,
		state:      state,
		runtime:    runtime,
		markerPath: markerPath,
		staleAfter: staleAfter,
		bus:        bus,
	}
}

// Version-string shapes seen from Paper-family servers:
//   "This server is running Paper version git-Paper-550 (MC: 1.20.4)"
//   "This server is running Paper version 1.21.1-40-master@1de3371 ..."
var (
	mcVersionRe   = regexp.MustCompile(`MC: *([0-9]+(?:\.[0-9]+)+)`)
	bareVersionRe = regexp.MustCompile(`\b([0-9]+(?:\.[0-9]+)+)\b`)
	gitBuildRe    = regexp.MustCompile(`git-[A-Za-z]+-([0-9]+)`)
	dashBuildRe   = regexp.MustCompile(`[0-9]+(?:\.[0-9]+)+-([0-9]+)-`)
)

// parseVersionString extracts the release line and build number from a
// self-reported version string. Either may come back empty/zero.
func parseVersionString(raw string) (string, int) {
	line := ""
	if m := mcVersionRe.FindStringSubmatch(raw); m != nil {
		line = m[1]
	} else if m := bareVersionRe.FindStringSubmatch(raw); m != nil {
		line = m[1]
	}

	// Reject matches that are not actually version lines
	if line != "" {
		if _, err := semver.NewVersion(line); err != nil {
			line = ""
		}
	}

	build := 0
	if m := gitBuildRe.FindStringSubmatch(raw); m != nil {
		build, _ = strconv.Atoi(m[1])
	} else if m := dashBuildRe.FindStringSubmatch(raw); m != nil {
		build, _ = strconv.Atoi(m[1])
	}

	return line, build
}

// Bootstrap derives the current version line and installed build from
// the live server, falling back to the marker file for the build number
// when the version string does not carry one.
func (c *VersionChecker) Bootstrap() {
	raw, err := c.runtime.VersionString()
	if err != nil {
		logger.Warn("VERSION: Could not read server version string", map[string]interface{}{
			"error": err.Error(),
		})
	}

	line, build := parseVersionString(raw)
	if build == 0 {
		build = c.readMarker()
	}

	c.state.SetCurrent(line, build)
	logger.Info("VERSION: Detected running server", map[string]interface{}{
		"version": line,
		"build":   build,
	})
}

// Check queries the feed for the latest build of the running release
// line. Returns whether a newer build is available. Safe to call from
// any goroutine; it never blocks on the live server.
func (c *VersionChecker) Check() bool {
	snap := c.state.Snapshot()
	if snap.CurrentVersion == "" {
		c.Bootstrap()
		snap = c.state.Snapshot()
		if snap.CurrentVersion == "" {
			logger.Warn("VERSION: Cannot check for updates, running version unknown", nil)
			monitoring.UpdateChecks.WithLabelValues("error").Inc()
			return false
		}
	}

	c.state.SetPhase(models.PhaseChecking)

	latest, err := c.feed.LatestBuild(snap.CurrentVersion)
	if err != nil {
		// Prior cached state stays untouched
		logger.Warn("VERSION: Release feed check failed", map[string]interface{}{
			"version": snap.CurrentVersion,
			"error":   err.Error(),
		})
		monitoring.UpdateChecks.WithLabelValues("error").Inc()
		c.state.SetPhase(snap.Phase)
		return false
	}

	now := time.Now()
	if latest > snap.CurrentBuild {
		url := c.feed.DownloadURL(snap.CurrentVersion, latest)
		c.state.SetAvailable(snap.CurrentVersion, latest, url, now)
		monitoring.UpdateChecks.WithLabelValues("available").Inc()
		logger.Info("VERSION: Update available", map[string]interface{}{
			"version":       snap.CurrentVersion,
			"current_build": snap.CurrentBuild,
			"latest_build":  latest,
		})
		c.bus.Publish(events.Event{
			Type:   events.EventUpdateAvailable,
			Source: "version_checker",
			Data: map[string]interface{}{
				"version":       snap.CurrentVersion,
				"current_build": snap.CurrentBuild,
				"latest_build":  latest,
			},
		})
		return true
	}

	c.state.SetUpToDate(snap.CurrentVersion, latest, now)
	monitoring.UpdateChecks.WithLabelValues("up_to_date").Inc()
	logger.Debug("VERSION: Server is up to date", map[string]interface{}{
		"version": snap.CurrentVersion,
		"build":   snap.CurrentBuild,
	})
	return false
}

// NeedsCheck reports whether the last successful check has gone stale
func (c *VersionChecker) NeedsCheck() bool {
	return c.state.NeedsCheck(c.staleAfter)
}

// readMarker reads the installed build number persisted by the last
// successful install. Returns 0 when the marker is absent or unreadable.
func (c *VersionChecker) readMarker() int {
	data, err := os.ReadFile(c.markerPath)
	if err != nil {
		return 0
	}
	build, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		logger.Warn("VERSION: Marker file is not a build number", map[string]interface{}{
			"path": c.markerPath,
		})
		return 0
	}
	return build
}
