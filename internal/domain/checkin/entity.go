// Package checkin contains the check-in lifecycle domain model.
// This is the core of the business logic - no external dependencies here.
package checkin

import (
	"time"

	"github.com/safecircle-app/safecircle/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATUS
// ══════════════════════════════════════════════════════════════════════════════

// Status defines the lifecycle state of a check-in.
// Status moves forward only: terminal states never revert, except the
// explicit alerted→false_alarm correction.
type Status string

const (
	// StatusActive - the check-in is running and awaiting confirmation.
	StatusActive Status = "active"
	// StatusCompleted - the owner confirmed safety before the deadline.
	StatusCompleted Status = "completed"
	// StatusAlerted - the deadline passed and the circle was alerted.
	StatusAlerted Status = "alerted"
	// StatusFalseAlarm - an alerted check-in was corrected by the owner.
	StatusFalseAlarm Status = "false_alarm"
)

// IsValid checks that the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusAlerted, StatusFalseAlarm:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if no further transitions are allowed from this
// status (false_alarm is reachable from alerted only).
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFalseAlarm
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// CanTransitionTo reports whether the state machine permits s→target.
func (s Status) CanTransitionTo(target Status) bool {
	switch s {
	case StatusActive:
		return target == StatusCompleted || target == StatusAlerted
	case StatusAlerted:
		return target == StatusFalseAlarm
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DURATION LIMITS
// ══════════════════════════════════════════════════════════════════════════════

const (
	// MinDuration is the shortest allowed check-in window.
	MinDuration = 5 * time.Minute

	// MaxDuration is the longest allowed check-in window.
	MaxDuration = 24 * time.Hour

	// MaxCircleSize bounds the denormalized circle snapshot.
	MaxCircleSize = 20
)

// ══════════════════════════════════════════════════════════════════════════════
// ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// CheckIn is a time-boxed safety declaration. The owner must confirm safety
// before AlertTime or the denormalized circle snapshot is alerted.
//
// Invariant: at most one of CompletedAt/AlertedAt is ever set, and only after
// the corresponding status has been reached.
type CheckIn struct {
	ID      string
	OwnerID string
	Status  Status

	// AlertTime is the deadline; missing it escalates the check-in.
	AlertTime time.Time

	// ReminderSent is the idempotency guard for the pre-expiry reminder:
	// overlapping reminder sweeps observe it and send at most once.
	ReminderSent bool

	// CircleUserIDs is the snapshot of who to alert, taken at creation time.
	// Later circle edits do not retroactively change a running check-in.
	CircleUserIDs []string

	// Note is an optional free-text message shown to the circle on alert.
	Note string

	// PhotoPath is the optional object-storage path of an attached photo.
	PhotoPath string

	CompletedAt *time.Time
	AlertedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewCheckIn creates an active check-in with the deadline now+duration.
func NewCheckIn(id, ownerID string, duration time.Duration, circle []string, now time.Time) (*CheckIn, error) {
	if id == "" || ownerID == "" {
		return nil, shared.ErrInvalidID
	}
	if duration < MinDuration || duration > MaxDuration {
		return nil, shared.ErrInvalidDuration
	}
	if len(circle) == 0 {
		return nil, shared.ErrEmptyCircle
	}
	if len(circle) > MaxCircleSize {
		return nil, shared.ErrValueOutOfRange
	}

	snapshot := make([]string, len(circle))
	copy(snapshot, circle)

	return &CheckIn{
		ID:            id,
		OwnerID:       ownerID,
		Status:        StatusActive,
		AlertTime:     now.Add(duration),
		ReminderSent:  false,
		CircleUserIDs: snapshot,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// IsActive returns true while the check-in awaits confirmation.
func (c *CheckIn) IsActive() bool {
	return c.Status == StatusActive
}

// IsOverdue returns true if the deadline has passed and the check-in is
// still active.
func (c *CheckIn) IsOverdue(now time.Time) bool {
	return c.Status == StatusActive && !now.Before(c.AlertTime)
}

// IsOwnedBy checks check-in ownership.
func (c *CheckIn) IsOwnedBy(userID string) bool {
	return c.OwnerID == userID
}

// Complete performs the active→completed transition in memory.
//
// Idempotent: completing an already-completed check-in is a no-op success.
// Completing an alerted check-in fails with ErrCheckInAlreadyAlerted - the
// escalation won the race and the caller should correct via FalseAlarm
// instead. The outcome depends only on the stored status, never on call
// ordering between the user and the escalation sweep.
func (c *CheckIn) Complete(now time.Time) error {
	switch c.Status {
	case StatusCompleted:
		return nil
	case StatusAlerted, StatusFalseAlarm:
		return shared.ErrCheckInAlreadyAlerted
	}

	c.Status = StatusCompleted
	t := now
	c.CompletedAt = &t
	c.UpdatedAt = now
	return nil
}

// Escalate performs the active→alerted transition in memory.
// The persistence layer must pair this with a conditional write
// ("set alerted only if still active") so a concurrent Complete cannot be
// overwritten; see Repository.EscalateIfActive.
func (c *CheckIn) Escalate(now time.Time) error {
	if c.Status != StatusActive {
		return shared.ErrCheckInNotActive
	}

	c.Status = StatusAlerted
	t := now
	c.AlertedAt = &t
	c.UpdatedAt = now
	return nil
}

// FalseAlarm corrects an alerted check-in after the owner turned out to be
// safe. Idempotent on repeat calls.
func (c *CheckIn) FalseAlarm(now time.Time) error {
	switch c.Status {
	case StatusFalseAlarm:
		return nil
	case StatusAlerted:
		c.Status = StatusFalseAlarm
		c.UpdatedAt = now
		return nil
	default:
		return shared.ErrStateTransition
	}
}

// MarkReminderSent flips the reminder dedup flag.
func (c *CheckIn) MarkReminderSent(now time.Time) {
	c.ReminderSent = true
	c.UpdatedAt = now
}

// Validate checks entity invariants. Used by repositories before writes and
// by reconciliation audits.
func (c *CheckIn) Validate() error {
	if c.ID == "" || c.OwnerID == "" {
		return shared.ErrInvalidID
	}
	if !c.Status.IsValid() {
		return shared.ErrInvalidState
	}
	if c.CompletedAt != nil && c.AlertedAt != nil {
		return shared.ErrInvalidEntity
	}
	if c.CompletedAt != nil && c.Status != StatusCompleted {
		return shared.ErrInvalidEntity
	}
	if c.AlertedAt != nil && c.Status != StatusAlerted && c.Status != StatusFalseAlarm {
		return shared.ErrInvalidEntity
	}
	if len(c.CircleUserIDs) == 0 {
		return shared.ErrEmptyCircle
	}
	return nil
}
