package service

import (
	"sync"
	"time"

	"github.com/craftops/agent/internal/models"
)

// UpdateStateSnapshot is a point-in-time copy of the update state
type UpdateStateSnapshot struct {
	Phase          models.UpdatePhase `json:"phase"`
	CurrentVersion string             `json:"current_version"`
	CurrentBuild   int                `json:"current_build"`
	LatestVersion  string             `json:"latest_version,omitempty"`
	LatestBuild    int                `json:"latest_build,omitempty"`
	Available      bool               `json:"available"`
	Downloaded     bool               `json:"downloaded"`
	LastCheck      time.Time          `json:"last_check,omitempty"`
	DownloadURL    string             `json:"download_url,omitempty"`
	DownloadPath   string             `json:"download_path,omitempty"`
}

// UpdateState is the single-writer, process-lifetime update state shared
// by the version checker and the update installer. It is rebuilt at
// startup from the live server's version string plus the marker file;
// all access goes through its methods.
type UpdateState struct {
	mu sync.RWMutex

	phase          models.UpdatePhase
	currentVersion string
	currentBuild   int
	latestVersion  string
	latestBuild    int
	available      bool
	downloaded     bool
	lastCheck      time.Time
	downloadURL    string
	downloadPath   string
}

// NewUpdateState creates an empty update state in the idle phase
func NewUpdateState() *UpdateState {
	return &UpdateState{phase: models.PhaseIdle}
}

// Snapshot returns a consistent copy of the state
func (s *UpdateState) Snapshot() UpdateStateSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return UpdateStateSnapshot{
		Phase:          s.phase,
		CurrentVersion: s.currentVersion,
		CurrentBuild:   s.currentBuild,
		LatestVersion:  s.latestVersion,
		LatestBuild:    s.latestBuild,
		Available:      s.available,
		Downloaded:     s.downloaded,
		LastCheck:      s.lastCheck,
		DownloadURL:    s.downloadURL,
		DownloadPath:   s.downloadPath,
	}
}

// SetPhase moves the installer state machine to a new phase
func (s *UpdateState) SetPhase(phase models.UpdatePhase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = phase
}

// Phase returns the current installer phase
func (s *UpdateState) Phase() models.UpdatePhase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// SetCurrent records the running server's version line and build
func (s *UpdateState) SetCurrent(version string, build int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentVersion = version
	s.currentBuild = build
}

// SetAvailable records a successful check that found a newer build
func (s *UpdateState) SetAvailable(version string, build int, downloadURL string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latestVersion = version
	s.latestBuild = build
	s.available = true
	s.downloadURL = downloadURL
	s.lastCheck = at
	s.phase = models.PhaseAvailable
}

// SetUpToDate records a successful check that found no newer build.
// Any previously cached download URL is cleared.
func (s *UpdateState) SetUpToDate(version string, build int, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latestVersion = version
	s.latestBuild = build
	s.available = false
	s.downloadURL = ""
	s.lastCheck = at
	if s.phase == models.PhaseChecking || s.phase == models.PhaseAvailable {
		s.phase = models.PhaseIdle
	}
}

// SetDownloaded records the local path of a downloaded update binary
func (s *UpdateState) SetDownloaded(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.downloaded = true
	s.downloadPath = path
	s.phase = models.PhaseDownloaded
}

// CompleteInstall promotes the latest build to current and resets the
// per-cycle flags. Called once after the install sequence finishes.
func (s *UpdateState) CompleteInstall() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentVersion = s.latestVersion
	s.currentBuild = s.latestBuild
	s.available = false
	s.downloaded = false
	s.downloadURL = ""
	s.downloadPath = ""
	s.phase = models.PhaseComplete
}

// NeedsCheck reports whether the last successful check is older than
// the staleness interval. Advisory only.
func (s *UpdateState) NeedsCheck(staleAfter time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastCheck.IsZero() || time.Since(s.lastCheck) > staleAfter
}
