package models

import "time"

// EventKind enumerates the session lifecycle events the registry publishes.
type EventKind string

const (
	EventSessionCreated  EventKind = "session.created"
	EventConfigUpdated   EventKind = "session.config_updated"
	EventProgressUpdated EventKind = "session.progress_updated"
	EventStatusChanged   EventKind = "session.status_changed"
	EventDataAdded       EventKind = "session.data_added"
	EventDataProcessed   EventKind = "session.data_processed"
	EventSessionExpired  EventKind = "session.expired"
	EventSessionDeleted  EventKind = "session.deleted"
)

// SessionEvent is one lifecycle notification. Payload carries event-specific
// details (new status, record counts, and so on).
type SessionEvent struct {
	ID        string         `json:"id"`
	Kind      EventKind      `json:"kind"`
	SessionID string         `json:"sessionId"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
