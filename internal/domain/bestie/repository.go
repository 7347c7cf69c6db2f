package bestie

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository defines storage operations for bestie relationships.
type Repository interface {
	// Create persists a new pending relationship.
	// Returns ErrBestieExists when a pending or accepted relationship
	// already links the pair (in either direction).
	Create(ctx context.Context, r *Relationship) error

	// GetByID returns a relationship by ID.
	// Returns ErrBestieNotFound if it does not exist.
	GetByID(ctx context.Context, id string) (*Relationship, error)

	// GetByPair returns the pending or accepted relationship between two
	// users regardless of direction, or ErrBestieNotFound.
	GetByPair(ctx context.Context, userA, userB string) (*Relationship, error)

	// UpdateStatus atomically moves the relationship from the expected
	// status to the new one, setting accepted_at when accepting. Returns
	// whether this call applied the transition.
	UpdateStatus(ctx context.Context, id string, expected, next Status, now time.Time) (*Relationship, bool, error)

	// Delete removes the relationship row entirely (either party removing
	// the edge).
	Delete(ctx context.Context, id string) error

	// CountAcceptedFor counts accepted relationships involving the user.
	// Recompute-from-source primitive for total_besties.
	CountAcceptedFor(ctx context.Context, userID string) (int, error)

	// CountAccepted counts all accepted relationships. Used by the
	// analytics cache rebuild.
	CountAccepted(ctx context.Context) (int, error)

	// ListAcceptedPage returns one bounded page of accepted relationships
	// ordered by ID, strictly after the cursor. The milestone batch pages
	// with this.
	ListAcceptedPage(ctx context.Context, afterID string, limit int) ([]*Relationship, error)
}

// InteractionRepository defines storage for append-only interactions.
type InteractionRepository interface {
	// Append persists an interaction. Interactions are never updated.
	Append(ctx context.Context, i *Interaction) error

	// CountBetween counts interactions in either direction between two
	// users. Input to connection-strength computation.
	CountBetween(ctx context.Context, userA, userB string) (int, error)

	// DeleteOlderThan bulk-removes interactions created before the
	// threshold. Retention sweep only.
	DeleteOlderThan(ctx context.Context, threshold time.Time, limit int) (int, error)
}

// MilestoneRepository defines storage for milestone records.
type MilestoneRepository interface {
	// Exists reports whether an identical milestone record is already
	// present. The existence check that keeps daily rescans idempotent.
	Exists(ctx context.Context, relationshipID, userID string, kind MilestoneKind, value int) (bool, error)

	// Create persists a milestone record. Returns ErrMilestoneDuplicate if
	// an identical record was inserted concurrently.
	Create(ctx context.Context, m *Milestone) error

	// ListForUser returns the user's milestones, newest first.
	ListForUser(ctx context.Context, userID string, limit int) ([]*Milestone, error)
}
