package checkin

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// These interfaces define the storage contract for check-ins.
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository defines storage operations for check-ins.
type Repository interface {
	// Create persists a new check-in.
	Create(ctx context.Context, c *CheckIn) error

	// GetByID returns a check-in by ID.
	// Returns ErrCheckInNotFound if it does not exist.
	GetByID(ctx context.Context, id string) (*CheckIn, error)

	// CompleteIfActive atomically sets status=completed and completed_at,
	// only if the current status is still active. Returns the stored
	// check-in and whether this call performed the transition.
	//
	// This is the user-side half of the deadline race: if the escalation
	// sweep already flipped the row to alerted, applied is false and the
	// returned entity carries the alerted status.
	CompleteIfActive(ctx context.Context, id string, now time.Time) (c *CheckIn, applied bool, err error)

	// EscalateIfActive atomically sets status=alerted and alerted_at, only
	// if the current status is still active. This single conditional write
	// is the core correctness mechanism against a concurrent complete.
	EscalateIfActive(ctx context.Context, id string, now time.Time) (c *CheckIn, applied bool, err error)

	// MarkFalseAlarm atomically sets status=false_alarm only if the current
	// status is alerted.
	MarkFalseAlarm(ctx context.Context, id string, now time.Time) (c *CheckIn, applied bool, err error)

	// ClaimReminders selects active check-ins whose deadline falls inside
	// [from, to) and whose reminder flag is still clear, flipping the flag
	// in the same statement. Each row is returned to exactly one sweep even
	// when sweeps overlap.
	ClaimReminders(ctx context.Context, from, to time.Time, limit int) ([]*CheckIn, error)

	// FindOverdue returns active check-ins with alert_time <= now.
	FindOverdue(ctx context.Context, now time.Time, limit int) ([]*CheckIn, error)

	// CountByOwnerAndStatus counts this owner's check-ins in the given
	// status. An empty ownerID counts across all owners. This is the
	// recompute-from-source primitive the stats reconciliation is built on.
	CountByOwnerAndStatus(ctx context.Context, ownerID string, status Status) (int, error)

	// CountCompletedInWindow counts the owner's check-ins completed inside
	// [from, to). Guards the completion-time streak bump.
	CountCompletedInWindow(ctx context.Context, ownerID string, from, to time.Time) (int, error)

	// CountCompletedBetween counts completed check-ins shared by two users
	// (either owner, the other in the circle snapshot) - input to the
	// shared-milestone computation.
	CountSharedCompleted(ctx context.Context, userA, userB string) (int, error)

	// DeleteOlderThan removes terminal check-ins updated before the
	// threshold for owners without indefinite retention, returning the
	// object-storage photo paths of the deleted rows so associated media
	// can be removed as well. Derived counters are never touched.
	DeleteOlderThan(ctx context.Context, threshold time.Time, limit int) (deleted int, photoPaths []string, err error)
}
