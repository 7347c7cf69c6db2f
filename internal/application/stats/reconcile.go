package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/safecircle-app/safecircle/internal/domain/analytics"
	"github.com/safecircle-app/safecircle/internal/domain/checkin"
	"github.com/safecircle-app/safecircle/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILIATION
// recompute(userID) = count of source rows matching each predicate. Used for
// scheduled drift audits, admin-triggered repair, and one-time backfills.
// The correctness criterion of the whole engine is
// live_counter == recompute(userID), modulo a bounded propagation delay.
// ══════════════════════════════════════════════════════════════════════════════

// Drift describes a divergence found between a live counter and its
// recomputed value. A repair is a ConsistencyRepair maintenance action, not
// a failure.
type Drift struct {
	UserID   string
	Field    string
	Live     int
	Expected int
}

// ReconcileReport summarizes one reconciliation run.
type ReconcileReport struct {
	StartedAt    time.Time
	CompletedAt  time.Time
	UsersChecked int
	Drifts       []Drift
	Repaired     int
	Errors       []error
}

// Recompute derives the user's lifecycle counters from the source
// collections. Pure with respect to derived state: it reads check-ins and
// relationships only.
func (e *Engine) Recompute(ctx context.Context, userID string) (user.Stats, error) {
	var s user.Stats

	completed, err := e.checkins.CountByOwnerAndStatus(ctx, userID, checkin.StatusCompleted)
	if err != nil {
		return s, fmt.Errorf("recompute completed: %w", err)
	}
	alerted, err := e.checkins.CountByOwnerAndStatus(ctx, userID, checkin.StatusAlerted)
	if err != nil {
		return s, fmt.Errorf("recompute alerted: %w", err)
	}
	active, err := e.checkins.CountByOwnerAndStatus(ctx, userID, checkin.StatusActive)
	if err != nil {
		return s, fmt.Errorf("recompute active: %w", err)
	}
	falseAlarm, err := e.checkins.CountByOwnerAndStatus(ctx, userID, checkin.StatusFalseAlarm)
	if err != nil {
		return s, fmt.Errorf("recompute false_alarm: %w", err)
	}
	besties, err := e.besties.CountAcceptedFor(ctx, userID)
	if err != nil {
		return s, fmt.Errorf("recompute besties: %w", err)
	}

	s.CompletedCheckIns = completed
	s.AlertedCheckIns = alerted
	s.TotalCheckIns = active + completed + alerted + falseAlarm
	s.TotalBesties = besties
	return s, nil
}

// ReconcileUser compares a user's live counters with recomputed values and,
// when repair is set, overwrites the drifted fields from source.
//
// Note: TotalCheckIns drifts legitimately downward after retention sweeps
// delete old rows - counters are applied once at transition time and detail
// deletion must never touch them - so reconciliation compares but does NOT
// repair a live value that exceeds the recomputed one for retention-covered
// counters; it only repairs when the live value is lower than source truth
// or when the user opted into indefinite retention.
func (e *Engine) ReconcileUser(ctx context.Context, userID string, repair bool) ([]Drift, error) {
	u, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	expected, err := e.Recompute(ctx, userID)
	if err != nil {
		return nil, err
	}

	retentionMayShrink := !u.KeepForever

	var drifts []Drift
	check := func(field string, live, want int, shrinkable bool) {
		if live == want {
			return
		}
		if shrinkable && retentionMayShrink && live > want {
			return
		}
		drifts = append(drifts, Drift{UserID: userID, Field: field, Live: live, Expected: want})
	}

	check("total_checkins", u.Stats.TotalCheckIns, expected.TotalCheckIns, true)
	check("completed_checkins", u.Stats.CompletedCheckIns, expected.CompletedCheckIns, true)
	check("alerted_checkins", u.Stats.AlertedCheckIns, expected.AlertedCheckIns, true)
	check("total_besties", u.Stats.TotalBesties, expected.TotalBesties, false)

	if len(drifts) == 0 || !repair {
		return drifts, nil
	}

	repaired := u.Stats
	for _, d := range drifts {
		switch d.Field {
		case "total_checkins":
			repaired.TotalCheckIns = d.Expected
		case "completed_checkins":
			repaired.CompletedCheckIns = d.Expected
		case "alerted_checkins":
			repaired.AlertedCheckIns = d.Expected
		case "total_besties":
			repaired.TotalBesties = d.Expected
		}
	}
	if err := e.statsWriter.OverwriteStats(ctx, userID, repaired); err != nil {
		return drifts, fmt.Errorf("overwrite stats: %w", err)
	}
	e.logger.Info("counter drift repaired",
		"user_id", userID, "fields", len(drifts))
	return drifts, nil
}

// ReconcileAll audits every user in bounded pages. pageSize caps memory;
// the caller's context bounds the run time.
func (e *Engine) ReconcileAll(ctx context.Context, pageSize int, repair bool) (*ReconcileReport, error) {
	if pageSize <= 0 {
		pageSize = 100
	}

	report := &ReconcileReport{StartedAt: time.Now().UTC()}
	cursor := ""

	for {
		if err := ctx.Err(); err != nil {
			report.CompletedAt = time.Now().UTC()
			return report, err
		}

		page, err := e.users.ListPage(ctx, cursor, pageSize)
		if err != nil {
			report.CompletedAt = time.Now().UTC()
			return report, fmt.Errorf("list users: %w", err)
		}
		if len(page) == 0 {
			break
		}

		for _, u := range page {
			drifts, err := e.ReconcileUser(ctx, u.ID, repair)
			if err != nil {
				report.Errors = append(report.Errors, err)
				continue
			}
			report.UsersChecked++
			report.Drifts = append(report.Drifts, drifts...)
			if repair && len(drifts) > 0 {
				report.Repaired++
			}
		}
		cursor = page[len(page)-1].ID
		if len(page) < pageSize {
			break
		}
	}

	report.CompletedAt = time.Now().UTC()
	e.logger.Info("reconciliation completed",
		"users_checked", report.UsersChecked,
		"drifts", len(report.Drifts),
		"repaired", report.Repaired,
	)
	return report, nil
}

// RebuildAnalyticsCache recomputes every aggregate field from the source
// collections and overwrites the cache row. Admin-triggered; also run on a
// schedule as a standing drift repair.
func (e *Engine) RebuildAnalyticsCache(ctx context.Context) (*analytics.Snapshot, error) {
	now := e.now()

	totalUsers, err := e.users.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	completed, err := e.countCheckInsByStatus(ctx, checkin.StatusCompleted)
	if err != nil {
		return nil, err
	}
	alerted, err := e.countCheckInsByStatus(ctx, checkin.StatusAlerted)
	if err != nil {
		return nil, err
	}
	active, err := e.countCheckInsByStatus(ctx, checkin.StatusActive)
	if err != nil {
		return nil, err
	}
	falseAlarm, err := e.countCheckInsByStatus(ctx, checkin.StatusFalseAlarm)
	if err != nil {
		return nil, err
	}
	besties, err := e.besties.CountAccepted(ctx)
	if err != nil {
		return nil, fmt.Errorf("count accepted besties: %w", err)
	}

	snapshot := &analytics.Snapshot{
		TotalUsers:        totalUsers,
		TotalCheckIns:     active + completed + alerted + falseAlarm,
		CompletedCheckIns: completed,
		AlertedCheckIns:   alerted,
		AcceptedBesties:   besties,
		RebuiltAt:         now,
		UpdatedAt:         now,
	}

	if err := e.aggregates.Overwrite(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("overwrite analytics cache: %w", err)
	}
	e.logger.Info("analytics cache rebuilt",
		"total_users", snapshot.TotalUsers,
		"total_checkins", snapshot.TotalCheckIns,
		"completed_checkins", snapshot.CompletedCheckIns,
		"alerted_checkins", snapshot.AlertedCheckIns,
		"accepted_besties", snapshot.AcceptedBesties,
	)
	return snapshot, nil
}

func (e *Engine) countCheckInsByStatus(ctx context.Context, status checkin.Status) (int, error) {
	// Owner "" means all owners at the repository level.
	n, err := e.checkins.CountByOwnerAndStatus(ctx, "", status)
	if err != nil {
		return 0, fmt.Errorf("count %s check-ins: %w", status, err)
	}
	return n, nil
}
