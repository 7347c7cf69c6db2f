package user

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// These interfaces define the storage contract for users and their derived
// stats. Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository defines storage operations for users.
type Repository interface {
	// Create persists a new user.
	Create(ctx context.Context, u *User) error

	// GetByID returns a user by ID.
	// Returns ErrUserNotFound if the user does not exist.
	GetByID(ctx context.Context, id string) (*User, error)

	// GetByIDs returns users by a list of IDs, skipping missing ones.
	GetByIDs(ctx context.Context, ids []string) ([]*User, error)

	// Update persists profile fields (display name, push token, opt-ins).
	// Derived counters are NOT written by this method; they belong to the
	// stats writer below.
	Update(ctx context.Context, u *User) error

	// ClearPushToken removes a stale device token. Self-healing path for
	// failed deliveries.
	ClearPushToken(ctx context.Context, id string) error

	// Count returns the total number of users.
	Count(ctx context.Context) (int, error)

	// ListPage returns one bounded page of users ordered by ID, strictly
	// after the cursor ID (empty cursor = from the start). Daily batches
	// page with this instead of loading the whole collection.
	ListPage(ctx context.Context, afterID string, limit int) ([]*User, error)
}

// StatsWriter is the storage contract reserved for the single designated
// counter writer (the stats engine). No other component may hold one.
type StatsWriter interface {
	// AdjustStats applies a delta to the user's lifecycle counters in one
	// conditional statement, clamping at zero.
	AdjustStats(ctx context.Context, userID string, delta StatsDelta) error

	// UpdateStreak overwrites the streak fields and day counter for one
	// user, and moves last_active forward in the same write when the
	// update carries it. Used by the daily streak batch and the
	// completion-time bump.
	UpdateStreak(ctx context.Context, userID string, upd StreakUpdate) error

	// TouchLastActive sets last_active to the given time if it is newer
	// than the stored value.
	TouchLastActive(ctx context.Context, userID string, at time.Time) error

	// GrantBadges appends badges the user does not yet hold. Appending an
	// already-held badge is a no-op.
	GrantBadges(ctx context.Context, userID string, badges []BadgeID) error

	// AddBestieEdge records the symmetric edge on one user's side and
	// bumps total_besties, only if the edge is not already present.
	AddBestieEdge(ctx context.Context, userID, otherID string) error

	// RemoveBestieEdge removes the edge and decrements total_besties, only
	// if the edge is present.
	RemoveBestieEdge(ctx context.Context, userID, otherID string) error

	// OverwriteStats replaces every derived counter with recomputed
	// values. Reserved for reconciliation - the designated repair path.
	OverwriteStats(ctx context.Context, userID string, stats Stats) error
}
