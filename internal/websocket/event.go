package websocket

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType is the action half of an event name
type EventType string

const (
	EventTypeStatusChanged       EventType = "status_changed"
	EventTypeScheduleRegenerated EventType = "schedule_regenerated"
	EventTypeSettled             EventType = "settled"
	EventTypeRefreshCompleted    EventType = "completed"
)

// EntityType is what the event is about
type EntityType string

const (
	EntityTypeContract   EntityType = "contract"
	EntityTypeDebtStatus EntityType = "debt_status_refresh"
)

// Event is the message pushed to subscribers.
// Format: { type, entity, payload, timestamp }
type Event struct {
	Type      string      `json:"type"`
	Entity    EntityType  `json:"entity"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

func NewEvent(eventType EventType, entityType EntityType, payload interface{}) Event {
	return Event{
		Type:      fmt.Sprintf("%s.%s", entityType, eventType),
		Entity:    entityType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ContractStatusChanged creates a contract.status_changed event
func ContractStatusChanged(payload interface{}) Event {
	return NewEvent(EventTypeStatusChanged, EntityTypeContract, payload)
}

// ContractScheduleRegenerated creates a contract.schedule_regenerated event
func ContractScheduleRegenerated(payload interface{}) Event {
	return NewEvent(EventTypeScheduleRegenerated, EntityTypeContract, payload)
}

// ContractSettled creates a contract.settled event
func ContractSettled(payload interface{}) Event {
	return NewEvent(EventTypeSettled, EntityTypeContract, payload)
}

// DebtStatusRefreshCompleted creates a debt_status_refresh.completed event
func DebtStatusRefreshCompleted(payload interface{}) Event {
	return NewEvent(EventTypeRefreshCompleted, EntityTypeDebtStatus, payload)
}
