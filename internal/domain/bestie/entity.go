// Package bestie contains the symmetric trusted-contact relationship model,
// engagement interactions, and relationship milestones.
package bestie

import (
	"time"

	"github.com/safecircle-app/safecircle/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RELATIONSHIP STATUS
// ══════════════════════════════════════════════════════════════════════════════

// Status defines the relationship lifecycle state.
type Status string

const (
	// StatusPending - requested, awaiting the recipient's response.
	StatusPending Status = "pending"
	// StatusAccepted - both sides are besties.
	StatusAccepted Status = "accepted"
	// StatusDeclined - the recipient declined.
	StatusDeclined Status = "declined"
	// StatusCancelled - the requester withdrew the request.
	StatusCancelled Status = "cancelled"
)

// IsValid checks that the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusDeclined, StatusCancelled:
		return true
	default:
		return false
	}
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// ══════════════════════════════════════════════════════════════════════════════
// RELATIONSHIP
// ══════════════════════════════════════════════════════════════════════════════

// Relationship is a directed request that, once accepted, represents a
// symmetric bestie edge.
//
// Invariant: when status=accepted, both users' bestie edges and
// total_besties counters reflect this edge exactly once.
type Relationship struct {
	ID          string
	RequesterID string
	RecipientID string
	Status      Status
	AcceptedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewRelationship creates a pending request.
func NewRelationship(id, requesterID, recipientID string, now time.Time) (*Relationship, error) {
	if id == "" || requesterID == "" || recipientID == "" {
		return nil, shared.ErrInvalidID
	}
	if requesterID == recipientID {
		return nil, shared.ErrSelfBestie
	}
	return &Relationship{
		ID:          id,
		RequesterID: requesterID,
		RecipientID: recipientID,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// InvolvesUser reports whether the user is a party to this relationship.
func (r *Relationship) InvolvesUser(userID string) bool {
	return r.RequesterID == userID || r.RecipientID == userID
}

// OtherParty returns the counterpart of the given user, or "".
func (r *Relationship) OtherParty(userID string) string {
	switch userID {
	case r.RequesterID:
		return r.RecipientID
	case r.RecipientID:
		return r.RequesterID
	default:
		return ""
	}
}

// Accept transitions pending→accepted. Only the recipient may accept.
// Idempotent: re-accepting an accepted relationship is a no-op success.
func (r *Relationship) Accept(callerID string, now time.Time) error {
	if r.Status == StatusAccepted {
		return nil
	}
	if r.Status != StatusPending {
		return shared.ErrBestieNotPending
	}
	if callerID != r.RecipientID {
		return shared.ErrBestieNotRecipient
	}
	r.Status = StatusAccepted
	t := now
	r.AcceptedAt = &t
	r.UpdatedAt = now
	return nil
}

// Decline transitions pending→declined. Only the recipient may decline.
func (r *Relationship) Decline(callerID string, now time.Time) error {
	if r.Status == StatusDeclined {
		return nil
	}
	if r.Status != StatusPending {
		return shared.ErrBestieNotPending
	}
	if callerID != r.RecipientID {
		return shared.ErrBestieNotRecipient
	}
	r.Status = StatusDeclined
	r.UpdatedAt = now
	return nil
}

// Cancel transitions pending→cancelled. Only the requester may cancel.
func (r *Relationship) Cancel(callerID string, now time.Time) error {
	if r.Status == StatusCancelled {
		return nil
	}
	if r.Status != StatusPending {
		return shared.ErrBestieNotPending
	}
	if callerID != r.RequesterID {
		return shared.ErrBestieNotParty
	}
	r.Status = StatusCancelled
	r.UpdatedAt = now
	return nil
}

// AgeInDays returns the whole days since acceptance, or -1 if not accepted.
func (r *Relationship) AgeInDays(now time.Time) int {
	if r.AcceptedAt == nil {
		return -1
	}
	return int(now.Sub(*r.AcceptedAt).Hours() / 24)
}

// ══════════════════════════════════════════════════════════════════════════════
// INTERACTION
// ══════════════════════════════════════════════════════════════════════════════

// InteractionKind classifies an engagement event.
type InteractionKind string

const (
	InteractionReaction InteractionKind = "reaction"
	InteractionComment  InteractionKind = "comment"
)

// IsValid checks that the kind is known.
func (k InteractionKind) IsValid() bool {
	return k == InteractionReaction || k == InteractionComment
}

// Interaction is an append-only engagement event between two users. Never
// mutated or deleted except by the bulk retention sweep.
type Interaction struct {
	ID         string
	FromUserID string
	ToUserID   string
	Kind       InteractionKind
	CreatedAt  time.Time
}

// NewInteraction creates an interaction record.
func NewInteraction(id, fromUserID, toUserID string, kind InteractionKind, now time.Time) (*Interaction, error) {
	if id == "" || fromUserID == "" || toUserID == "" {
		return nil, shared.ErrInvalidID
	}
	if fromUserID == toUserID {
		return nil, shared.ErrInvalidInput
	}
	if !kind.IsValid() {
		return nil, shared.ErrInvalidInput
	}
	return &Interaction{
		ID:         id,
		FromUserID: fromUserID,
		ToUserID:   toUserID,
		Kind:       kind,
		CreatedAt:  now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MILESTONES
// ══════════════════════════════════════════════════════════════════════════════

// MilestoneKind classifies what the milestone measures.
type MilestoneKind string

const (
	// MilestoneAge marks a relationship age in days.
	MilestoneAge MilestoneKind = "age_days"
	// MilestoneSharedCheckIns marks a shared completed check-in count.
	MilestoneSharedCheckIns MilestoneKind = "shared_checkins"
)

// Fixed milestone values. Matching is exact equality, not >=, so a milestone
// fires once on the day (or count) it lands and never again.
var (
	AgeMilestones    = []int{7, 30, 100, 365}
	SharedMilestones = []int{5, 10, 25, 50}
)

// IsAgeMilestone reports whether days lands exactly on a fixed age value.
func IsAgeMilestone(days int) bool {
	for _, m := range AgeMilestones {
		if days == m {
			return true
		}
	}
	return false
}

// IsSharedMilestone reports whether count lands exactly on a fixed value.
func IsSharedMilestone(count int) bool {
	for _, m := range SharedMilestones {
		if count == m {
			return true
		}
	}
	return false
}

// Milestone is a one-time record of a relationship landing on a fixed value.
// One record is created per direction (user → other), guarded by an
// existence check so rescans stay idempotent.
type Milestone struct {
	ID             string
	RelationshipID string
	UserID         string
	OtherUserID    string
	Kind           MilestoneKind
	Value          int
	CreatedAt      time.Time
}
