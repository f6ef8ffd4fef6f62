// Package events provides the in-process event bus that mutation paths
// publish diagnostic events to. Guard denials, physical moves, and
// hierarchy changes are all observable here without log scraping.
package events

import (
	"time"
)

// EventType represents the type of event
type EventType string

const (
	// Media lifecycle events
	EventMediaImported  EventType = "media.imported"
	EventMediaDuplicate EventType = "media.duplicate"
	EventMediaRenamed   EventType = "media.renamed"
	EventMediaDeleted   EventType = "media.deleted"

	// Organization events, published by the state machine and the
	// organization engine at the pre-move / post-move / guard-deny
	// extension points.
	EventMovePlanned EventType = "media.move.planned"
	EventMoved       EventType = "media.moved"
	EventMoveFailed  EventType = "media.move.failed"
	EventGuardDenied EventType = "media.move.denied"

	// Sidecar events
	EventSidecarFailed      EventType = "media.sidecar.failed"
	EventArtifactsGenerated EventType = "media.artifacts.generated"
	EventArtifactsCleared   EventType = "media.artifacts.cleared"

	// Hierarchy events
	EventGroupCreated       EventType = "hierarchy.created"
	EventGroupRenamed       EventType = "hierarchy.renamed"
	EventGroupRenameFailed  EventType = "hierarchy.rename.failed"
	EventGroupDeleted       EventType = "hierarchy.deleted"
	EventTeardownIncomplete EventType = "hierarchy.teardown.incomplete"

	// Version events
	EventVersionAdded   EventType = "version.added"
	EventPrimaryChanged EventType = "version.primary.changed"
)

// Event represents a single diagnostic event
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Source    string                 `json:"source"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// EventHandler handles events delivered to a subscription
type EventHandler func(event Event)

// EventStats summarizes bus activity
type EventStats struct {
	TotalEvents   int64            `json:"total_events"`
	EventsByType  map[string]int64 `json:"events_by_type"`
	Subscriptions int              `json:"subscriptions"`
	RecentEvents  []Event          `json:"recent_events"`
}

// NewEvent builds an event with the timestamp set
func NewEvent(eventType EventType, source, message string) Event {
	return Event{
		Type:      eventType,
		Source:    source,
		Message:   message,
		Timestamp: time.Now(),
	}
}
