// Package notification defines the delivery contract consumed by the core.
// Message content/copy and transport mechanics live behind the gateway; the
// core only depends on "send(userId, message) → delivered|failed".
package notification

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// MESSAGE
// ══════════════════════════════════════════════════════════════════════════════

// Kind classifies a notification for routing and metrics.
type Kind string

const (
	// KindReminder - pre-expiry reminder to the check-in owner.
	KindReminder Kind = "reminder"
	// KindCircleAlert - escalation alert to a circle member.
	KindCircleAlert Kind = "circle_alert"
	// KindFalseAlarm - all-clear after a false alarm correction.
	KindFalseAlarm Kind = "false_alarm"
	// KindBadge - badge earned.
	KindBadge Kind = "badge"
	// KindMilestone - relationship milestone reached.
	KindMilestone Kind = "milestone"
	// KindBestie - bestie request / acceptance.
	KindBestie Kind = "bestie"
)

// Message is the payload handed to the gateway.
type Message struct {
	Kind Kind
	Body string

	// Reference ties the message to its originating entity (check-in,
	// relationship, badge), mainly for gateway-side de-duplication.
	Reference string
}

// ══════════════════════════════════════════════════════════════════════════════
// SENDER
// ══════════════════════════════════════════════════════════════════════════════

// Sender is the outbound notification contract.
//
// A failed send returns an error; when the failure is a stale device token
// the error matches shared.ErrInvalidPushToken and the caller triggers the
// self-healing token clear on the user record.
type Sender interface {
	Send(ctx context.Context, userID string, msg Message) error
}

// DeliveryResult captures the outcome of one delivery attempt, logged by
// sweeps that tolerate partial fan-out failures.
type DeliveryResult struct {
	UserID      string
	Delivered   bool
	Err         error
	AttemptedAt time.Time
}
