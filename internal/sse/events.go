// Package sse streams organization-scoped learning events to clients with
// Server-Sent Events.
package sse

import (
	"time"

	"github.com/parishrecords/ocrmapper/internal/suggest"
)

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"

	// EventHistoryRecorded is sent after submitted mappings were learned.
	EventHistoryRecorded EventType = "history.recorded"
	// EventHistoryImported is sent after an exported history was loaded,
	// whether through the API or the import directory.
	EventHistoryImported EventType = "history.imported"

	// EventSessionSubmitted is sent when a correction session is submitted.
	EventSessionSubmitted EventType = "session.submitted"
)

// Event represents an SSE event to be sent to clients.
// Org is empty only for heartbeats, which go to every client.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`
	Org       string    `json:"organizationId,omitempty"`
}

// HistoryEventData is the payload of history events.
type HistoryEventData struct {
	Mappings int           `json:"mappings"` // Mappings added by this change
	Stats    suggest.Stats `json:"stats"`
}

// SessionSubmittedEventData is the payload of EventSessionSubmitted.
type SessionSubmittedEventData struct {
	SessionID    string `json:"sessionId"`
	DocumentType string `json:"documentType"`
	Records      int    `json:"records"`
}

// NewHeartbeatEvent creates a keepalive event.
func NewHeartbeatEvent() Event {
	return Event{
		Type:      EventHeartbeat,
		Timestamp: time.Now(),
		Data:      map[string]any{},
	}
}

// NewHistoryRecordedEvent creates a history.recorded event.
func NewHistoryRecordedEvent(org string, mappings int, stats suggest.Stats) Event {
	return Event{
		Type:      EventHistoryRecorded,
		Org:       org,
		Timestamp: time.Now(),
		Data:      HistoryEventData{Mappings: mappings, Stats: stats},
	}
}

// NewHistoryImportedEvent creates a history.imported event.
func NewHistoryImportedEvent(org string, stats suggest.Stats) Event {
	return Event{
		Type:      EventHistoryImported,
		Org:       org,
		Timestamp: time.Now(),
		Data:      HistoryEventData{Stats: stats},
	}
}

// NewSessionSubmittedEvent creates a session.submitted event.
func NewSessionSubmittedEvent(org, sessionID, docType string, records int) Event {
	return Event{
		Type:      EventSessionSubmitted,
		Org:       org,
		Timestamp: time.Now(),
		Data: SessionSubmittedEventData{
			SessionID:    sessionID,
			DocumentType: docType,
			Records:      records,
		},
	}
}
