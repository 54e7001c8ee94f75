package domain

import "time"

// EventType identifies the entitlement lifecycle transitions published to NATS
type EventType string

const (
	EventTypeCreated EventType = "created"
	EventTypeSettled EventType = "settled"
	EventTypeClaimed EventType = "claimed"
	EventTypeRevoked EventType = "revoked"
	EventTypeSwept   EventType = "swept"
)

// EntitlementEvent is the normalized event published after every successful
// ledger mutation. Amounts are decimal strings to survive JSON round-trips.
type EntitlementEvent struct {
	EventID         string          `json:"event_id"` // ULID, time-sortable
	EventType       EventType       `json:"event_type"`
	EntitlementKind EntitlementKind `json:"entitlement_kind"`
	EntitlementID   uint64          `json:"entitlement_id"`
	Recipient       string          `json:"recipient,omitempty"`
	Amount          string          `json:"amount,omitempty"`
	LeafIndex       *uint64         `json:"leaf_index,omitempty"`
	PayoutID        *uint64         `json:"payout_id,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}
