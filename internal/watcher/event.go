package watcher

import "time"

// EventType represents the type of file system event
type EventType int

const (
	// EventSettled is emitted when a matching file stops changing
	EventSettled EventType = iota
	// EventRemoved is emitted when a matching file is deleted
	EventRemoved
)

// String returns the string representation of the event type
func (t EventType) String() string {
	switch t {
	case EventSettled:
		return "settled"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event represents a file system event
type Event struct {
	Type    EventType
	Path    string
	Size    int64
	ModTime time.Time
}
