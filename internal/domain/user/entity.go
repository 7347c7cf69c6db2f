// Package user contains the user domain model: profile slice, derived
// statistics, and the badge evaluator. No external dependencies here.
package user

import (
	"time"

	"github.com/safecircle-app/safecircle/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DERIVED STATS
// ══════════════════════════════════════════════════════════════════════════════

// Stats holds per-user derived counters. Every field here is owned by exactly
// one writer (the stats engine); all other code paths read only. Each counter
// must always equal the count of source-collection rows matching its
// predicate, modulo a bounded propagation delay after a transition.
type Stats struct {
	TotalCheckIns     int
	CompletedCheckIns int
	AlertedCheckIns   int
	TotalBesties      int

	CurrentStreak int
	LongestStreak int
	DaysActive    int
	LastActive    *time.Time
}

// StatsDelta describes a conditional adjustment to derived counters. The
// stats engine derives deltas from a before/after status comparison; a blind
// add never appears anywhere in the codebase.
type StatsDelta struct {
	TotalCheckIns     int
	CompletedCheckIns int
	AlertedCheckIns   int
	TotalBesties      int
}

// IsZero returns true if the delta adjusts nothing.
func (d StatsDelta) IsZero() bool {
	return d == StatsDelta{}
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// User is the slice of the user aggregate relevant to the check-in core.
type User struct {
	ID          string
	DisplayName string

	Stats Stats

	// Badges is the append-only set of earned badge IDs.
	Badges []BadgeID

	// BestieUserIDs mirrors the accepted symmetric relationship edges.
	// When a relationship is accepted, both users carry the edge exactly
	// once - never zero, never twice.
	BestieUserIDs []string

	// PushToken is the device token for the notification gateway. Cleared
	// by the self-healing path when a delivery reports the token invalid.
	PushToken string

	// KeepForever opts the user out of the data-retention sweep.
	KeepForever bool

	// PremiumPlan is supplied by the billing provider and consumed
	// read-only; nothing in the core branches on it.
	PremiumPlan bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewUser creates a user with zeroed stats.
func NewUser(id, displayName string, now time.Time) (*User, error) {
	if id == "" {
		return nil, shared.ErrInvalidID
	}
	return &User{
		ID:          id,
		DisplayName: displayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// HasBadge reports whether the badge was already granted.
func (u *User) HasBadge(id BadgeID) bool {
	for _, b := range u.Badges {
		if b == id {
			return true
		}
	}
	return false
}

// HasBestie reports whether the edge to otherID is present.
func (u *User) HasBestie(otherID string) bool {
	for _, id := range u.BestieUserIDs {
		if id == otherID {
			return true
		}
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAK MATH
// ══════════════════════════════════════════════════════════════════════════════

// StreakUpdate is the outcome of evaluating a user's streak for one calendar
// day. Produced by AdvanceStreak, applied by the single streak writer.
type StreakUpdate struct {
	CurrentStreak int
	LongestStreak int
	DaysActive    int
	Changed       bool

	// LastActive, when set, moves last_active forward in the same write as
	// the streak fields, so a partially applied bump cannot exist.
	LastActive *time.Time
}

// AdvanceStreak evaluates the daily streak rule against yesterday's window
// [windowStart, windowEnd).
//
// Extension happens exactly once, at completion time, on the day itself.
// The daily batch therefore never extends; it only breaks streaks of users
// who let a full day pass:
//
//   - LastActive inside yesterday's window or later: the day already
//     counted through the completion-time bump; no change.
//   - LastActive before the window (or never): streak resets to 0.
func (u *User) AdvanceStreak(windowStart, windowEnd time.Time) StreakUpdate {
	cur := u.Stats.CurrentStreak
	longest := u.Stats.LongestStreak
	days := u.Stats.DaysActive

	unchanged := StreakUpdate{CurrentStreak: cur, LongestStreak: longest, DaysActive: days}
	reset := StreakUpdate{LongestStreak: longest, DaysActive: days, Changed: true}

	switch {
	case u.Stats.LastActive == nil:
		if cur == 0 {
			return unchanged
		}
		return reset
	case !u.Stats.LastActive.Before(windowStart):
		// Active yesterday or today; the streak is current.
		return unchanged
	default:
		// A full day with no activity breaks the streak.
		if cur == 0 {
			return unchanged
		}
		return reset
	}
}
