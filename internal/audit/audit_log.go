package audit

import (
	"sync"
	"time"

	"github.com/craftops/agent/pkg/logger"
)

// ActionType represents the type of action being audited
type ActionType string

const (
	ActionBackupCreate   ActionType = "backup_create"
	ActionBackupDelete   ActionType = "backup_delete"
	ActionRetentionPrune ActionType = "retention_prune"
	ActionUpdateDownload ActionType = "update_download"
	ActionUpdateInstall  ActionType = "update_install"
	ActionUpdateSchedule ActionType = "update_schedule"
	ActionUpdateCancel   ActionType = "update_cancel"
)

// Entry represents a single audit log entry
type Entry struct {
	Timestamp time.Time              `json:"timestamp"`
	Action    ActionType             `json:"action"`
	Actor     string                 `json:"actor"`
	Target    string                 `json:"target,omitempty"` // backup filename, update id, ...
	Result    string                 `json:"result"`           // "success", "rejected", "failed"
	Details   map[string]interface{} `json:"details,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// Logger keeps a bounded in-memory trail of destructive engine actions
// and mirrors each entry to the structured log.
type Logger struct {
	entries []Entry
	maxSize int
	mu      sync.RWMutex
}

// NewLogger creates a new audit logger
func NewLogger(maxSize int) *Logger {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &Logger{
		entries: make([]Entry, 0, maxSize),
		maxSize: maxSize,
	}
}

// Record adds an entry to the audit log
func (a *Logger) Record(action ActionType, actor, target, result string, details map[string]interface{}, err error) {
	entry := Entry{
		Timestamp: time.Now(),
		Action:    action,
		Actor:     actor,
		Target:    target,
		Result:    result,
		Details:   details,
	}
	if err != nil {
		entry.Error = err.Error()
	}

	a.mu.Lock()
	a.entries = append(a.entries, entry)
	if len(a.entries) > a.maxSize {
		a.entries = a.entries[len(a.entries)-a.maxSize:]
	}
	a.mu.Unlock()

	fields := map[string]interface{}{
		"action": entry.Action,
		"actor":  entry.Actor,
		"target": entry.Target,
		"result": entry.Result,
	}
	for k, v := range details {
		fields[k] = v
	}
	if entry.Error != "" {
		fields["error"] = entry.Error
	}

	switch result {
	case "failed":
		logger.Error("AUDIT: "+string(action)+" FAILED", nil, fields)
	case "rejected":
		logger.Warn("AUDIT: "+string(action)+" REJECTED", fields)
	default:
		logger.Info("AUDIT: "+string(action), fields)
	}
}

// Recent returns the N most recent audit entries
func (a *Logger) Recent(n int) []Entry {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if n <= 0 || n > len(a.entries) {
		n = len(a.entries)
	}
	start := len(a.entries) - n
	result := make([]Entry, n)
	copy(result, a.entries[start:])
	return result
}
