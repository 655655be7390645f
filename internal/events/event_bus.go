package events

import (
	"sync"
	"time"

	"github.com/craftops/agent/pkg/logger"
	"github.com/google/uuid"
)

// EventType represents the type of engine event
type EventType string

const (
	// Backup lifecycle events
	EventBackupCreated  EventType = "backup.created"
	EventBackupDeleted  EventType = "backup.deleted"
	EventBackupFailed   EventType = "backup.failed"
	EventBackupImported EventType = "backup.imported"
	EventBackupPruned   EventType = "backup.pruned"

	// Update lifecycle events
	EventUpdateAvailable  EventType = "update.available"
	EventUpdateDownloaded EventType = "update.downloaded"
	EventUpdateInstalling EventType = "update.installing"
	EventUpdateCompleted  EventType = "update.completed"
	EventUpdateFailed     EventType = "update.failed"
	EventUpdateScheduled  EventType = "update.scheduled"
	EventUpdateCancelled  EventType = "update.cancelled"
)

// Event represents an engine event
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"` // e.g. "backup_service", "update_installer"
	Actor     string                 `json:"actor,omitempty"`
	Data      map[string]interface{} `json:"data"`
}

// EventHandler is a function that handles events
type EventHandler func(event Event)

// EventStorage persists events
type EventStorage interface {
	Store(event Event) error
}

// EventBus manages event publishing and subscription
type EventBus struct {
	handlers map[EventType][]EventHandler
	storage  EventStorage
	mu       sync.RWMutex
}

// NewEventBus creates a new event bus with the given storage backend.
// A nil storage keeps events in the log only.
func NewEventBus(storage EventStorage) *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]EventHandler),
		storage:  storage,
	}
}

// Subscribe registers a handler for an event type
func (eb *EventBus) Subscribe(eventType EventType, handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.handlers[eventType] = append(eb.handlers[eventType], handler)
}

// Publish dispatches an event to subscribers and the storage backend.
// Handlers run asynchronously; storage failures are logged, never raised.
func (eb *EventBus) Publish(event Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	logger.Debug("Event published", map[string]interface{}{
		"event_id": event.ID,
		"type":     event.Type,
		"source":   event.Source,
	})

	if eb.storage != nil {
		if err := eb.storage.Store(event); err != nil {
			logger.Warn("Failed to persist event", map[string]interface{}{
				"event_id": event.ID,
				"type":     event.Type,
				"error":    err.Error(),
			})
		}
	}

	eb.mu.RLock()
	handlers := eb.handlers[event.Type]
	eb.mu.RUnlock()

	for _, handler := range handlers {
		go handler(event)
	}
}
