// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types - these drive the event-driven architecture.
// Each event represents an authoritative lifecycle transition; derived
// state (counters, badges, streaks) reacts to these, never the reverse.
const (
	// Check-in events
	EventCheckInCreated    EventType = "checkin.created"
	EventCheckInCompleted  EventType = "checkin.completed"
	EventCheckInAlerted    EventType = "checkin.alerted"
	EventCheckInFalseAlarm EventType = "checkin.false_alarm"
	EventReminderSent      EventType = "checkin.reminder_sent"

	// Bestie events
	EventBestieRequested EventType = "bestie.requested"
	EventBestieAccepted  EventType = "bestie.accepted"
	EventBestieDeclined  EventType = "bestie.declined"
	EventBestieRemoved   EventType = "bestie.removed"

	// Interaction events
	EventInteractionRecorded EventType = "interaction.recorded"

	// Notification events
	EventNotificationSent   EventType = "notification.sent"
	EventNotificationFailed EventType = "notification.failed"

	// System events
	EventStatsReconciled      EventType = "system.stats_reconciled"
	EventAnalyticsCacheRebuilt EventType = "system.analytics_rebuilt"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Check-in Events
// ═══════════════════════════════════════════════════════════════════════════

// CheckInTransitionEvent is emitted for every authoritative check-in status
// transition. FromStatus/ToStatus carry the before/after comparison that the
// stats engine anchors its conditional counter increments on; handlers that
// receive the same event twice observe the same pair and apply nothing twice.
type CheckInTransitionEvent struct {
	BaseEvent
	CheckInID  string `json:"checkin_id"`
	OwnerID    string `json:"owner_id"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
}

// Payload implements Event interface.
func (e CheckInTransitionEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"checkin_id":  e.CheckInID,
		"owner_id":    e.OwnerID,
		"from_status": e.FromStatus,
		"to_status":   e.ToStatus,
	}
}

// NewCheckInCreatedEvent creates the event for a freshly created check-in.
func NewCheckInCreatedEvent(checkInID, ownerID string) CheckInTransitionEvent {
	return CheckInTransitionEvent{
		BaseEvent:  NewBaseEvent(EventCheckInCreated, checkInID),
		CheckInID:  checkInID,
		OwnerID:    ownerID,
		FromStatus: "",
		ToStatus:   "active",
	}
}

// NewCheckInCompletedEvent creates the event for an active→completed transition.
func NewCheckInCompletedEvent(checkInID, ownerID string) CheckInTransitionEvent {
	return CheckInTransitionEvent{
		BaseEvent:  NewBaseEvent(EventCheckInCompleted, checkInID),
		CheckInID:  checkInID,
		OwnerID:    ownerID,
		FromStatus: "active",
		ToStatus:   "completed",
	}
}

// NewCheckInAlertedEvent creates the event for an active→alerted transition.
func NewCheckInAlertedEvent(checkInID, ownerID string) CheckInTransitionEvent {
	return CheckInTransitionEvent{
		BaseEvent:  NewBaseEvent(EventCheckInAlerted, checkInID),
		CheckInID:  checkInID,
		OwnerID:    ownerID,
		FromStatus: "active",
		ToStatus:   "alerted",
	}
}

// NewCheckInFalseAlarmEvent creates the event for an alerted→false_alarm correction.
func NewCheckInFalseAlarmEvent(checkInID, ownerID string) CheckInTransitionEvent {
	return CheckInTransitionEvent{
		BaseEvent:  NewBaseEvent(EventCheckInFalseAlarm, checkInID),
		CheckInID:  checkInID,
		OwnerID:    ownerID,
		FromStatus: "alerted",
		ToStatus:   "false_alarm",
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Bestie Events
// ═══════════════════════════════════════════════════════════════════════════

// BestieChangedEvent is emitted for bestie relationship state changes.
// RequesterID/RecipientID identify both parties; the stats engine updates
// both users' counters from this single event.
type BestieChangedEvent struct {
	BaseEvent
	RelationshipID string `json:"relationship_id"`
	RequesterID    string `json:"requester_id"`
	RecipientID    string `json:"recipient_id"`
	FromStatus     string `json:"from_status"`
	ToStatus       string `json:"to_status"`
}

// Payload implements Event interface.
func (e BestieChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"relationship_id": e.RelationshipID,
		"requester_id":    e.RequesterID,
		"recipient_id":    e.RecipientID,
		"from_status":     e.FromStatus,
		"to_status":       e.ToStatus,
	}
}

// NewBestieChangedEvent creates a bestie change event of the given type.
func NewBestieChangedEvent(eventType EventType, relationshipID, requesterID, recipientID, from, to string) BestieChangedEvent {
	return BestieChangedEvent{
		BaseEvent:      NewBaseEvent(eventType, relationshipID),
		RelationshipID: relationshipID,
		RequesterID:    requesterID,
		RecipientID:    recipientID,
		FromStatus:     from,
		ToStatus:       to,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Interaction Events
// ═══════════════════════════════════════════════════════════════════════════

// InteractionRecordedEvent is emitted when an engagement event (reaction,
// comment) is appended between two users.
type InteractionRecordedEvent struct {
	BaseEvent
	InteractionID string `json:"interaction_id"`
	FromUserID    string `json:"from_user_id"`
	ToUserID      string `json:"to_user_id"`
	Kind          string `json:"kind"`
}

// Payload implements Event interface.
func (e InteractionRecordedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"interaction_id": e.InteractionID,
		"from_user_id":   e.FromUserID,
		"to_user_id":     e.ToUserID,
		"kind":           e.Kind,
	}
}

// NewInteractionRecordedEvent creates a new InteractionRecordedEvent.
func NewInteractionRecordedEvent(interactionID, fromUserID, toUserID, kind string) InteractionRecordedEvent {
	return InteractionRecordedEvent{
		BaseEvent:     NewBaseEvent(EventInteractionRecorded, interactionID),
		InteractionID: interactionID,
		FromUserID:    fromUserID,
		ToUserID:      toUserID,
		Kind:          kind,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// EventHandler is a function that handles an event. Handlers fire
// at-least-once and without ordering guarantees across aggregates, so every
// handler must be idempotent.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
