package service

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/craftops/agent/internal/archive"
	"github.com/craftops/agent/internal/audit"
	"github.com/craftops/agent/internal/events"
	"github.com/craftops/agent/internal/gameserver"
	"github.com/craftops/agent/internal/models"
	"github.com/craftops/agent/internal/monitoring"
	"github.com/craftops/agent/internal/repository"
	"github.com/craftops/agent/pkg/logger"
)

// ReleaseFeed is the slice of the feed the installer needs
type ReleaseFeed interface {
	BinaryName(version string, build int) string
}

// Countdown checkpoints broadcast before players are disconnected,
// expressed as seconds remaining.
var countdownCheckpoints = []int{240, 180, 120, 60, 30, 10, 5, 4, 3, 2, 1}

// jarTokenRe matches binary-filename tokens inside start scripts.
// Script rewriting is heuristic by design; scripts with no recognizable
// token are left untouched.
var jarTokenRe = regexp.MustCompile(`[\w.\-]+\.jar`)

// UpdateInstaller drives the install state machine:
// download, countdown, kick, safety backup, binary swap, script patch,
// restart dispatch. At most one install runs at a time.
type UpdateInstaller struct {
	state         *UpdateState
	backupService *BackupService
	updateRepo    *repository.UpdateRepository
	runtime       gameserver.Runtime
	sched         gameserver.Scheduler
	feed          ReleaseFeed
	bus           *events.EventBus
	auditLog      *audit.Logger

	serverDir    string
	markerPath   string
	countdown    time.Duration // warning window before players are kicked
	restartDelay time.Duration // lets the triggering response flush

	downloadClient *http.Client

	mu         sync.Mutex
	installing bool
}

// NewUpdateInstaller creates an update installer
func NewUpdateInstaller(
	state *UpdateState,
	backupService *BackupService,
	updateRepo *repository.UpdateRepository,
	runtime gameserver.Runtime,
	sched gameserver.Scheduler,
	feed ReleaseFeed,
	bus *events.EventBus,
	auditLog *audit.Logger,
	serverDir string,
	markerPath string,
	countdown time.Duration,
) *UpdateInstaller {
	return &UpdateInstaller{
		state:         state,
		backupService: backupService,
		updateRepo:    updateRepo,
		runtime:       runtime,
		sched:         sched,
		feed:          feed,
		bus:           bus,
		auditLog:      auditLog,
		serverDir:     serverDir,
		markerPath:    markerPath,
		countdown:     countdown,
		restartDelay:  2 * time.Second,
		downloadClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Download fetches the available update binary into the server
// directory. A matching file already on disk short-circuits the
// transfer, so a failed attempt can simply be retried.
func (i *UpdateInstaller) Download() UpdateResult {
	snap := i.state.Snapshot()
	if !snap.Available {
		return UpdateResult{Success: false, Message: "no update available to download", Phase: string(snap.Phase)}
	}

	targetName := i.feed.BinaryName(snap.LatestVersion, snap.LatestBuild)
	targetPath := filepath.Join(i.serverDir, targetName)

	if _, err := os.Stat(targetPath); err == nil {
		logger.Info("UPDATE: Binary already downloaded", map[string]interface{}{
			"file": targetName,
		})
		i.state.SetDownloaded(targetPath)
		return UpdateResult{Success: true, Message: "binary already downloaded", Phase: string(models.PhaseDownloaded)}
	}

	i.state.SetPhase(models.PhaseDownloading)
	logger.Info("UPDATE: Downloading update binary", map[string]interface{}{
		"url":  snap.DownloadURL,
		"file": targetName,
	})

	if err := i.streamToFile(snap.DownloadURL, targetPath, targetName); err != nil {
		i.state.SetPhase(models.PhaseError)
		monitoring.UpdateDownloads.WithLabelValues("failed").Inc()
		logger.Error("UPDATE: Download failed", err, map[string]interface{}{
			"file": targetName,
		})
		i.bus.Publish(events.Event{
			Type:   events.EventUpdateFailed,
			Source: "update_installer",
			Data:   map[string]interface{}{"stage": "download", "error": err.Error()},
		})
		return UpdateResult{Success: false, Message: fmt.Sprintf("download failed: %v", err), Phase: string(models.PhaseError)}
	}

	i.state.SetDownloaded(targetPath)
	monitoring.UpdateDownloads.WithLabelValues("success").Inc()
	logger.Info("UPDATE: Download complete", map[string]interface{}{
		"file": targetName,
	})
	i.auditLog.Record(audit.ActionUpdateDownload, "system", targetName, "success", map[string]interface{}{
		"version": snap.LatestVersion,
		"build":   snap.LatestBuild,
	}, nil)
	i.bus.Publish(events.Event{
		Type:   events.EventUpdateDownloaded,
		Source: "update_installer",
		Data:   map[string]interface{}{"file": targetName},
	})
	return UpdateResult{Success: true, Message: "download complete", Phase: string(models.PhaseDownloaded)}
}

// streamToFile downloads via a temp file and renames on success, with
// progress logged at 10% increments or every 5 seconds.
func (i *UpdateInstaller) streamToFile(url, targetPath, name string) error {
	resp, err := i.downloadClient.Get(url)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("feed returned status %d: %s", resp.StatusCode, resp.Status)
	}

	partPath := targetPath + ".part"
	out, err := os.Create(partPath)
	if err != nil {
		return fmt.Errorf("failed to create download file: %w", err)
	}

	reader := &progressReader{
		reader: resp.Body,
		total:  resp.ContentLength,
		name:   name,
	}
	_, err = io.Copy(out, reader)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(partPath)
		return fmt.Errorf("transfer failed: %w", err)
	}

	if err := os.Rename(partPath, targetPath); err != nil {
		os.Remove(partPath)
		return fmt.Errorf("failed to move download into place: %w", err)
	}
	return nil
}

// progressReader logs transfer progress as it is read through
type progressReader struct {
	reader  io.Reader
	total   int64
	read    int64
	lastPct int
	lastLog time.Time
	name    string
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.reader.Read(b)
	p.read += int64(n)

	pct := -1
	if p.total > 0 {
		pct = int(p.read * 100 / p.total)
	}
	if (pct >= 0 && pct >= p.lastPct+10) || time.Since(p.lastLog) >= 5*time.Second {
		fields := map[string]interface{}{
			"file":  p.name,
			"bytes": p.read,
		}
		if pct >= 0 {
			fields["percent"] = pct
		}
		logger.Info("UPDATE: Download progress", fields)
		p.lastPct = pct
		p.lastLog = time.Now()
	}
	return n, err
}

// Install starts the maintenance workflow. It returns immediately with
// the INSTALLING phase; the countdown, kick, safety backup, swap and
// restart dispatch run asynchronously. onComplete, when non-nil, fires
// once with the final outcome.
func (i *UpdateInstaller) Install(actor, notes string, onComplete func(success bool)) UpdateResult {
	if actor == "" {
		actor = "unknown"
	}

	snap := i.state.Snapshot()
	if !snap.Downloaded {
		return UpdateResult{Success: false, Message: "no update downloaded", Phase: string(snap.Phase)}
	}

	i.mu.Lock()
	if i.installing {
		i.mu.Unlock()
		logger.Warn("UPDATE: Install rejected, another install is in flight", map[string]interface{}{
			"actor": actor,
		})
		return UpdateResult{Success: false, Message: "an installation is already in progress", Phase: string(models.PhaseInstalling)}
	}
	i.installing = true
	i.mu.Unlock()

	i.state.SetPhase(models.PhaseInstalling)
	logger.Info("UPDATE: Installation scheduled", map[string]interface{}{
		"actor":     actor,
		"version":   snap.LatestVersion,
		"build":     snap.LatestBuild,
		"countdown": i.countdown.String(),
	})
	i.bus.Publish(events.Event{
		Type:   events.EventUpdateInstalling,
		Source: "update_installer",
		Actor:  actor,
		Data: map[string]interface{}{
			"version": snap.LatestVersion,
			"build":   snap.LatestBuild,
		},
	})

	// Countdown cascade: independently delayed broadcasts relative to
	// one start instant, then the destructive sequence at zero.
	i.sched.After(0, func() {
		i.broadcast(fmt.Sprintf("Server update to build %d starts in %d minutes. The server will restart.",
			snap.LatestBuild, int(i.countdown.Minutes())))
	})
	for _, remaining := range countdownCheckpoints {
		offset := i.countdown - time.Duration(remaining)*time.Second
		if offset <= 0 {
			continue
		}
		msg := countdownMessage(remaining)
		i.sched.After(offset, func() { i.broadcast(msg) })
	}
	i.sched.After(i.countdown, func() {
		i.runInstallSequence(snap, actor, notes, onComplete)
	})

	return UpdateResult{Success: true, Message: "installation scheduled", Phase: string(models.PhaseInstalling)}
}

func countdownMessage(remaining int) string {
	switch {
	case remaining >= 120:
		return fmt.Sprintf("Server restarting for update in %d minutes!", remaining/60)
	case remaining >= 60:
		return "Server restarting for update in 1 minute!"
	case remaining == 1:
		return "Server restarting for update in 1 second!"
	default:
		return fmt.Sprintf("Server restarting for update in %d seconds!", remaining)
	}
}

func (i *UpdateInstaller) broadcast(message string) {
	if err := i.runtime.Broadcast(message); err != nil {
		logger.Warn("UPDATE: Broadcast failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// runInstallSequence performs the destructive steps in strict order.
// The safety backup may fail without aborting: players were warned and
// the workflow is committed at this point.
func (i *UpdateInstaller) runInstallSequence(snap UpdateStateSnapshot, actor, notes string, onComplete func(success bool)) {
	defer func() {
		i.mu.Lock()
		i.installing = false
		i.mu.Unlock()
	}()

	// Step 1: disconnect everyone
	if err := i.runtime.KickAll("Server is updating, back in a few minutes!"); err != nil {
		logger.Warn("UPDATE: Failed to disconnect players", map[string]interface{}{
			"error": err.Error(),
		})
	}

	// Step 2: safety backup; a failure is surfaced but does not abort
	backupCreated := false
	backupFilename := ""
	result := i.backupService.CreateBackup(BackupOptions{
		Selectors: archive.Selectors{Worlds: true, PluginData: true, Configs: true},
		Kind:      models.BackupKindUpdate,
		Notes:     fmt.Sprintf("safety backup before update to build %d", snap.LatestBuild),
	}, actor)
	if result.Success {
		backupCreated = true
		backupFilename = result.Filename
	} else {
		logger.Warn("UPDATE: Safety backup failed, proceeding with install", map[string]interface{}{
			"message": result.Message,
		})
	}

	// Step 3: swap the binary and patch start scripts
	newBinary := i.feed.BinaryName(snap.LatestVersion, snap.LatestBuild)
	oldBinary := i.findCurrentBinary(newBinary)
	i.patchStartScripts(newBinary)

	if oldBinary != "" && oldBinary != newBinary {
		oldPath := filepath.Join(i.serverDir, oldBinary)
		if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
			logger.Warn("UPDATE: Failed to delete old binary", map[string]interface{}{
				"file":  oldBinary,
				"error": err.Error(),
			})
		} else {
			logger.Info("UPDATE: Removed old binary", map[string]interface{}{
				"file": oldBinary,
			})
		}
	}

	// Step 4: persist the installed build so it survives the restart
	if err := i.writeMarker(snap.LatestBuild); err != nil {
		logger.Error("UPDATE: Failed to persist installed build marker", err, map[string]interface{}{
			"path": i.markerPath,
		})
	}

	// Step 5: record history (exactly one row per install invocation)
	entry := &models.UpdateHistoryEntry{
		FromVersion:    snap.CurrentVersion,
		FromBuild:      snap.CurrentBuild,
		ToVersion:      snap.LatestVersion,
		ToBuild:        snap.LatestBuild,
		Initiator:      actor,
		BackupCreated:  backupCreated,
		BackupFilename: backupFilename,
		Success:        true,
		Notes:          notes,
	}
	if err := i.updateRepo.AppendHistory(entry); err != nil {
		logger.Error("UPDATE: Failed to record update history", err, nil)
	}

	i.state.CompleteInstall()
	monitoring.UpdateInstalls.WithLabelValues("success").Inc()
	i.auditLog.Record(audit.ActionUpdateInstall, actor, newBinary, "success", map[string]interface{}{
		"from_build": snap.CurrentBuild,
		"to_build":   snap.LatestBuild,
	}, nil)
	i.bus.Publish(events.Event{
		Type:   events.EventUpdateCompleted,
		Source: "update_installer",
		Actor:  actor,
		Data: map[string]interface{}{
			"version": snap.LatestVersion,
			"build":   snap.LatestBuild,
		},
	})

	if onComplete != nil {
		onComplete(true)
	}

	// Step 6: dispatch the restart after a short delay so the
	// triggering response can flush. A failure here is the one
	// unrecoverable condition: the operator must restart by hand.
	i.sched.After(i.restartDelay, func() {
		if err := i.runtime.DispatchCommand("restart"); err != nil {
			logger.Error("UPDATE: FATAL: restart dispatch failed, restart the server manually to load the new binary", err, map[string]interface{}{
				"binary": newBinary,
			})
		}
	})
}

// findCurrentBinary locates the running server jar: the largest jar in
// the server directory that is not the freshly downloaded one.
func (i *UpdateInstaller) findCurrentBinary(excludeName string) string {
	entries, err := os.ReadDir(i.serverDir)
	if err != nil {
		logger.Warn("UPDATE: Failed to scan server directory for binaries", map[string]interface{}{
			"error": err.Error(),
		})
		return ""
	}

	best := ""
	var bestSize int64 = -1
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jar") || entry.Name() == excludeName {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.Size() > bestSize {
			best = entry.Name()
			bestSize = info.Size()
		}
	}
	return best
}

// patchStartScripts rewrites jar tokens in the server's start scripts
// to reference the new binary, taking a .backup copy of each script
// first. Scripts with no recognizable token are left untouched; any
// failure is logged and the install continues.
func (i *UpdateInstaller) patchStartScripts(newBinary string) {
	entries, err := os.ReadDir(i.serverDir)
	if err != nil {
		logger.Warn("UPDATE: Failed to scan server directory for start scripts", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (!strings.HasSuffix(name, ".sh") && !strings.HasSuffix(name, ".bat")) {
			continue
		}

		path := filepath.Join(i.serverDir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("UPDATE: Failed to read start script", map[string]interface{}{
				"script": name,
				"error":  err.Error(),
			})
			continue
		}

		if !jarTokenRe.Match(data) {
			logger.Warn("UPDATE: No binary token found in start script, leaving it untouched", map[string]interface{}{
				"script": name,
			})
			continue
		}

		if err := os.WriteFile(path+".backup", data, 0644); err != nil {
			logger.Warn("UPDATE: Failed to back up start script, skipping rewrite", map[string]interface{}{
				"script": name,
				"error":  err.Error(),
			})
			continue
		}

		patched := jarTokenRe.ReplaceAll(data, []byte(newBinary))
		if err := os.WriteFile(path, patched, 0755); err != nil {
			logger.Warn("UPDATE: Failed to rewrite start script", map[string]interface{}{
				"script": name,
				"error":  err.Error(),
			})
			continue
		}

		logger.Info("UPDATE: Patched start script", map[string]interface{}{
			"script": name,
			"binary": newBinary,
		})
	}
}

// writeMarker persists the installed build number as plain text
func (i *UpdateInstaller) writeMarker(build int) error {
	return os.WriteFile(i.markerPath, []byte(strconv.Itoa(build)+"\n"), 0644)
}

// Installing reports whether an install sequence is in flight
func (i *UpdateInstaller) Installing() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.installing
}
