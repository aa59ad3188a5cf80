package events

import (
	"time"

	"github.com/civic-desk/complaint-portal/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventAccessChanged          EventType = "account.access_changed"
	EventPresenceChanged        EventType = "presence.changed"
	EventSessionTerminated      EventType = "session.terminated"
	EventComplaintStatusChanged EventType = "complaint.status_changed"
)

// Event represents a domain event emitted by services.
type Event struct {
	Type      EventType   `json:"type"`
	AccountID string      `json:"account_id"`
	ActorID   string      `json:"actor_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// New stamps an event with the current time.
func New(eventType EventType, accountID, actorID string, payload interface{}) Event {
	return Event{
		Type:      eventType,
		AccountID: accountID,
		ActorID:   actorID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// AccessChangedPayload is carried by EventAccessChanged.
type AccessChangedPayload struct {
	Active  bool `json:"active"`
	Deleted bool `json:"deleted,omitempty"`
}

// PresenceChangedPayload is carried by EventPresenceChanged.
type PresenceChangedPayload struct {
	Online bool `json:"online"`
}

// SessionTerminatedPayload is carried by EventSessionTerminated.
type SessionTerminatedPayload struct {
	Reason string `json:"reason"`
}

// ComplaintStatusChangedPayload is carried by EventComplaintStatusChanged.
type ComplaintStatusChangedPayload struct {
	Update    domain.ComplaintStatusUpdate `json:"update"`
	Delivered int                          `json:"delivered"`
}
