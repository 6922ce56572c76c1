package domain

import "time"

// EventType is a normalized delivery outcome reported by a provider.
type EventType string

const (
	EventDelivered    EventType = "delivered"
	EventBounced      EventType = "bounced"
	EventComplained   EventType = "complained"
	EventOpened       EventType = "opened"
	EventClicked      EventType = "clicked"
	EventUnsubscribed EventType = "unsubscribed"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventDelivered, EventBounced, EventComplained, EventOpened, EventClicked, EventUnsubscribed:
		return true
	}
	return false
}

// DeliveryEvent is a provider-agnostic delivery notification. Events are
// idempotent on (MessageID, Type).
type DeliveryEvent struct {
	MessageID  string            `json:"message_id" db:"message_id"`
	Type       EventType         `json:"type" db:"event_type"`
	OccurredAt time.Time         `json:"occurred_at" db:"occurred_at"`
	Provider   string            `json:"provider" db:"provider"`
	Metadata   map[string]string `json:"metadata,omitempty" db:"metadata"`
}

// Key returns the idempotency key for the event.
func (e DeliveryEvent) Key() string {
	return e.MessageID + "|" + string(e.Type)
}
