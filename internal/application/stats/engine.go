// Package stats implements the derived-stats consistency engine.
//
// The production failure mode this package exists to prevent: one business
// event ("check-in completed") observed by two independent code paths - the
// user-invoked command and a reactive handler on the resulting write - each
// incrementing a counter, doubling it. The rule here is structural:
//
//   - Exactly one designated handler, anchored to the before/after
//     comparison of a status transition, is the sole writer of each derived
//     counter. Commands, sweeps, and every other code path read only.
//   - Every increment is conditional. Deliveries are at-least-once and
//     unordered, so ApplyCheckInTransition first claims a per-transition
//     ledger entry; a redelivered event finds the entry claimed and applies
//     nothing.
//   - recompute(userID) from the source collections is the correctness
//     criterion and the repair path. A failed derived update never rolls
//     back the lifecycle transition that caused it; reconciliation heals it
//     later.
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/safecircle-app/safecircle/internal/domain/analytics"
	"github.com/safecircle-app/safecircle/internal/domain/bestie"
	"github.com/safecircle-app/safecircle/internal/domain/checkin"
	"github.com/safecircle-app/safecircle/internal/domain/user"
	"github.com/safecircle-app/safecircle/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// TRANSITION
// ══════════════════════════════════════════════════════════════════════════════

// Transition is the explicit before/after pair every counter mutation is
// anchored to. A handler that cannot name the pair it reacts to has no
// business writing a counter.
type Transition struct {
	From checkin.Status
	To   checkin.Status
}

// Key returns the ledger key suffix for this transition.
func (t Transition) Key() string {
	return fmt.Sprintf("%s->%s", t.From, t.To)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER
// ══════════════════════════════════════════════════════════════════════════════

// Ledger records which (aggregate, transition) pairs have already been
// applied to derived counters. Claim is an insert-if-absent: the first
// delivery wins, redeliveries observe false. Release takes a claim back out
// so a later delivery can retry work that failed after claiming.
type Ledger interface {
	Claim(ctx context.Context, aggregateID, transition string) (bool, error)
	Release(ctx context.Context, aggregateID, transition string) error
}

// ══════════════════════════════════════════════════════════════════════════════
// ENGINE
// ══════════════════════════════════════════════════════════════════════════════

// Engine is the single writer of every derived counter. It is subscribed to
// lifecycle events through the event bus; nothing else constructs a
// user.StatsWriter.
type Engine struct {
	users       user.Repository
	statsWriter user.StatsWriter
	checkins    checkin.Repository
	besties     bestie.Repository
	aggregates  analytics.Repository
	ledger      Ledger
	logger      *slog.Logger

	now func() time.Time
}

// NewEngine creates the stats engine.
func NewEngine(
	users user.Repository,
	statsWriter user.StatsWriter,
	checkins checkin.Repository,
	besties bestie.Repository,
	aggregates analytics.Repository,
	ledger Ledger,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		users:       users,
		statsWriter: statsWriter,
		checkins:    checkins,
		besties:     besties,
		aggregates:  aggregates,
		ledger:      ledger,
		logger:      logger.With("component", "stats_engine"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the engine clock. Tests only.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// deltasFor maps a transition to the per-user and aggregate counter deltas
// it is allowed to produce. Any transition not listed adjusts nothing.
func deltasFor(t Transition) (user.StatsDelta, analytics.Delta) {
	switch t {
	case Transition{From: "", To: checkin.StatusActive}:
		return user.StatsDelta{TotalCheckIns: 1},
			analytics.Delta{TotalCheckIns: 1}
	case Transition{From: checkin.StatusActive, To: checkin.StatusCompleted}:
		return user.StatsDelta{CompletedCheckIns: 1},
			analytics.Delta{CompletedCheckIns: 1}
	case Transition{From: checkin.StatusActive, To: checkin.StatusAlerted}:
		return user.StatsDelta{AlertedCheckIns: 1},
			analytics.Delta{AlertedCheckIns: 1}
	case Transition{From: checkin.StatusAlerted, To: checkin.StatusFalseAlarm}:
		// The correction takes the alert back out of the alerted counter.
		return user.StatsDelta{AlertedCheckIns: -1},
			analytics.Delta{AlertedCheckIns: -1}
	default:
		return user.StatsDelta{}, analytics.Delta{}
	}
}

// ApplyCheckInTransition applies the counter effects of one authoritative
// check-in transition. Safe under at-least-once, unordered delivery: the
// ledger claim makes redelivery a no-op, and the deltas derive from the
// before/after pair alone.
func (e *Engine) ApplyCheckInTransition(ctx context.Context, checkInID, ownerID string, t Transition) error {
	userDelta, aggDelta := deltasFor(t)
	if userDelta == (user.StatsDelta{}) && aggDelta.IsZero() {
		e.logger.Debug("transition carries no counter effects",
			"checkin_id", checkInID, "transition", t.Key())
		return nil
	}

	claimed, err := e.ledger.Claim(ctx, checkInID, t.Key())
	if err != nil {
		return fmt.Errorf("claim transition: %w", err)
	}
	if claimed {
		if err := e.statsWriter.AdjustStats(ctx, ownerID, userDelta); err != nil {
			return fmt.Errorf("adjust user stats: %w", err)
		}
		if err := e.aggregates.Adjust(ctx, aggDelta); err != nil {
			// User counters applied, aggregate lagging. Reconciliation heals
			// the aggregate; never unwind the user-side write.
			e.logger.Warn("aggregate adjust failed, reconciliation will repair",
				"checkin_id", checkInID, "error", err)
		}
	} else {
		e.logger.Debug("transition counters already applied, skipping",
			"checkin_id", checkInID, "transition", t.Key())
	}

	// The activity follow-up runs outside the counter claim: a redelivery
	// whose counters were already applied can still retry a follow-up that
	// failed the first time.
	if t.To == checkin.StatusCompleted {
		if err := e.applyCompletionActivity(ctx, checkInID, ownerID); err != nil {
			e.logger.Warn("completion follow-up failed, next delivery retries",
				"owner_id", ownerID, "error", err)
		}
	}

	return e.refreshBadges(ctx, ownerID)
}

// completionActivityKey is the ledger key of the completion-time activity
// follow-up, separate from the counter key of the same transition.
const completionActivityKey = "completed->activity"

// applyCompletionActivity runs the last_active/streak follow-up under its own
// ledger entry. On failure the entry is released, so a redelivered completion
// retries the follow-up instead of losing it behind the counter claim. The
// bump is guarded by the first-completion-of-the-day checks, so a retry never
// double-applies.
func (e *Engine) applyCompletionActivity(ctx context.Context, checkInID, ownerID string) error {
	claimed, err := e.ledger.Claim(ctx, checkInID, completionActivityKey)
	if err != nil {
		return fmt.Errorf("claim completion activity: %w", err)
	}
	if !claimed {
		return nil
	}
	if err := e.onCompletion(ctx, ownerID); err != nil {
		if relErr := e.ledger.Release(ctx, checkInID, completionActivityKey); relErr != nil {
			e.logger.Error("release completion activity claim",
				"checkin_id", checkInID, "error", relErr)
		}
		return err
	}
	return nil
}

// onCompletion handles the completion-time activity bump: last_active moves
// forward, and the streak advances iff this is provably the first completed
// check-in of the owner's current UTC day. The daily batch skips users whose
// last_active already falls inside today, so the two paths are mutually
// exclusive for the same calendar day.
//
// The bump lands as a single write carrying last_active alongside the streak
// fields: either all of it persisted, or none of it did and the released
// claim lets a redelivery start over from unchanged state.
func (e *Engine) onCompletion(ctx context.Context, ownerID string) error {
	now := e.now()

	u, err := e.users.GetByID(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	dayStart, dayEnd := timeutil.DayWindow(now)
	completedToday, err := e.checkins.CountCompletedInWindow(ctx, ownerID, dayStart, dayEnd)
	if err != nil {
		return fmt.Errorf("count completed today: %w", err)
	}
	if completedToday != 1 {
		// Not the first completion of the day (or the count is not yet
		// visible); the daily batch owns any remaining catch-up.
		return e.touchLastActive(ctx, ownerID, now)
	}
	if u.Stats.LastActive != nil && !u.Stats.LastActive.Before(dayStart) {
		// Already counted active today through another path.
		return e.touchLastActive(ctx, ownerID, now)
	}

	upd := user.StreakUpdate{
		CurrentStreak: u.Stats.CurrentStreak + 1,
		LongestStreak: u.Stats.LongestStreak,
		DaysActive:    u.Stats.DaysActive + 1,
		Changed:       true,
		LastActive:    &now,
	}
	// A gap longer than one day restarts rather than extends.
	if u.Stats.LastActive == nil || u.Stats.LastActive.Before(dayStart.AddDate(0, 0, -1)) {
		upd.CurrentStreak = 1
	}
	if upd.CurrentStreak > upd.LongestStreak {
		upd.LongestStreak = upd.CurrentStreak
	}

	if err := e.statsWriter.UpdateStreak(ctx, ownerID, upd); err != nil {
		return fmt.Errorf("update streak: %w", err)
	}
	e.logger.Info("completion-time streak bump",
		"user_id", ownerID, "current_streak", upd.CurrentStreak)
	return nil
}

func (e *Engine) touchLastActive(ctx context.Context, ownerID string, now time.Time) error {
	if err := e.statsWriter.TouchLastActive(ctx, ownerID, now); err != nil {
		return fmt.Errorf("touch last_active: %w", err)
	}
	return nil
}

// ApplyBestieTransition applies the counter and edge effects of one bestie
// relationship change for both parties. Idempotent: the edge writes are
// presence-conditional and the ledger dedupes counter effects.
func (e *Engine) ApplyBestieTransition(ctx context.Context, relationshipID, requesterID, recipientID string, from, to bestie.Status) error {
	switch {
	case to == bestie.StatusAccepted && from == bestie.StatusPending:
		key := fmt.Sprintf("%s->%s", from, to)
		claimed, err := e.ledger.Claim(ctx, relationshipID, key)
		if err != nil {
			return fmt.Errorf("claim transition: %w", err)
		}
		if !claimed {
			return nil
		}
		// AddBestieEdge bumps total_besties only when the edge was absent,
		// so even a lost ledger race cannot double-count.
		if err := e.statsWriter.AddBestieEdge(ctx, requesterID, recipientID); err != nil {
			return fmt.Errorf("add edge %s: %w", requesterID, err)
		}
		if err := e.statsWriter.AddBestieEdge(ctx, recipientID, requesterID); err != nil {
			return fmt.Errorf("add edge %s: %w", recipientID, err)
		}
		if err := e.aggregates.Adjust(ctx, analytics.Delta{AcceptedBesties: 1}); err != nil {
			e.logger.Warn("aggregate adjust failed, reconciliation will repair",
				"relationship_id", relationshipID, "error", err)
		}
		if err := e.refreshBadges(ctx, requesterID); err != nil {
			return err
		}
		return e.refreshBadges(ctx, recipientID)

	case from == bestie.StatusAccepted && to != bestie.StatusAccepted:
		// Removal: the row is gone, the edges and counters come out.
		key := fmt.Sprintf("%s->removed", from)
		claimed, err := e.ledger.Claim(ctx, relationshipID, key)
		if err != nil {
			return fmt.Errorf("claim transition: %w", err)
		}
		if !claimed {
			return nil
		}
		if err := e.statsWriter.RemoveBestieEdge(ctx, requesterID, recipientID); err != nil {
			return fmt.Errorf("remove edge %s: %w", requesterID, err)
		}
		if err := e.statsWriter.RemoveBestieEdge(ctx, recipientID, requesterID); err != nil {
			return fmt.Errorf("remove edge %s: %w", recipientID, err)
		}
		if err := e.aggregates.Adjust(ctx, analytics.Delta{AcceptedBesties: -1}); err != nil {
			e.logger.Warn("aggregate adjust failed, reconciliation will repair",
				"relationship_id", relationshipID, "error", err)
		}
		return nil

	default:
		// Declines and cancellations never touched a counter.
		return nil
	}
}

// AdvanceStreakDaily evaluates the daily streak rule for one user against
// the just-closed day window and persists the outcome when it changed.
// Called by the daily batch; extension itself happens at completion time,
// so this path only ever breaks stale streaks.
func (e *Engine) AdvanceStreakDaily(ctx context.Context, u *user.User, windowStart, windowEnd time.Time) (user.StreakUpdate, error) {
	upd := u.AdvanceStreak(windowStart, windowEnd)
	if !upd.Changed {
		return upd, nil
	}
	if err := e.statsWriter.UpdateStreak(ctx, u.ID, upd); err != nil {
		return upd, fmt.Errorf("update streak: %w", err)
	}
	e.logger.Debug("streak reset by daily batch",
		"user_id", u.ID, "longest_streak", upd.LongestStreak)
	return upd, nil
}

// RegisterUser applies the aggregate effect of a new user row.
func (e *Engine) RegisterUser(ctx context.Context, userID string) error {
	claimed, err := e.ledger.Claim(ctx, userID, "user->created")
	if err != nil {
		return fmt.Errorf("claim transition: %w", err)
	}
	if !claimed {
		return nil
	}
	return e.aggregates.Adjust(ctx, analytics.Delta{TotalUsers: 1})
}

// refreshBadges re-evaluates the badge thresholds against current counters
// and appends anything new. Monotonic and idempotent - safe after every
// counter mutation.
func (e *Engine) refreshBadges(ctx context.Context, userID string) error {
	u, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user for badges: %w", err)
	}

	_, added := user.MergeBadges(u.Badges, user.BadgesFor(u.Stats))
	if len(added) == 0 {
		return nil
	}
	if err := e.statsWriter.GrantBadges(ctx, userID, added); err != nil {
		return fmt.Errorf("grant badges: %w", err)
	}
	e.logger.Info("badges granted", "user_id", userID, "count", len(added))
	return nil
}
