package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/safecircle-app/safecircle/internal/domain/checkin"
	"github.com/safecircle-app/safecircle/internal/domain/notification"
	"github.com/safecircle-app/safecircle/internal/domain/shared"
	"github.com/safecircle-app/safecircle/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// ESCALATE OVERDUE JOB
// ══════════════════════════════════════════════════════════════════════════════

// EscalateOverdueJob flips overdue check-ins to alerted and fans alerts out
// to the snapshotted circle.
//
// Correctness rests on the conditional EscalateIfActive write: when the
// owner completes concurrently, exactly one side wins and the loser walks
// away without side effects. Fan-out failures are per-recipient; one dead
// token never blocks the rest of the circle.
type EscalateOverdueJob struct {
	checkins  checkin.Repository
	users     user.Repository
	sender    notification.Sender
	publisher shared.EventPublisher
	logger    *slog.Logger

	config EscalateOverdueConfig

	lastRunStats atomic.Value // *EscalateOverdueStats
}

// EscalateOverdueConfig contains configuration for the escalation sweep.
type EscalateOverdueConfig struct {
	// BatchSize bounds the overdue rows examined per sweep.
	BatchSize int

	// Timeout is the maximum duration for one sweep.
	Timeout time.Duration
}

// DefaultEscalateOverdueConfig returns sensible defaults.
func DefaultEscalateOverdueConfig() EscalateOverdueConfig {
	return EscalateOverdueConfig{
		BatchSize: 200,
		Timeout:   2 * time.Minute,
	}
}

// EscalateOverdueStats contains statistics from one sweep.
type EscalateOverdueStats struct {
	StartedAt     time.Time
	Duration      time.Duration
	Examined      int
	Escalated     int
	LostRace      int
	AlertsSent    int
	AlertsFailed  int
	TokensCleared int
}

// NewEscalateOverdueJob creates the job.
func NewEscalateOverdueJob(
	checkins checkin.Repository,
	users user.Repository,
	sender notification.Sender,
	publisher shared.EventPublisher,
	logger *slog.Logger,
	config EscalateOverdueConfig,
) *EscalateOverdueJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &EscalateOverdueJob{
		checkins:  checkins,
		users:     users,
		sender:    sender,
		publisher: publisher,
		logger:    logger,
		config:    config,
	}
}

// Name returns the job name.
func (j *EscalateOverdueJob) Name() string {
	return "escalate_overdue"
}

// Description returns a human-readable description.
func (j *EscalateOverdueJob) Description() string {
	return "Escalates overdue check-ins and alerts their safety circles"
}

// Run executes one escalation sweep.
func (j *EscalateOverdueJob) Run(ctx context.Context) error {
	startedAt := time.Now()
	stats := &EscalateOverdueStats{StartedAt: startedAt}

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	now := time.Now().UTC()
	overdue, err := j.checkins.FindOverdue(ctx, now, j.config.BatchSize)
	if err != nil {
		return fmt.Errorf("find overdue: %w", err)
	}
	stats.Examined = len(overdue)

	for _, c := range overdue {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := j.escalate(ctx, c.ID, now, stats); err != nil {
			j.logger.Error("escalation failed", "checkin_id", c.ID, "error", err)
		}
	}

	stats.Duration = time.Since(startedAt)
	j.lastRunStats.Store(stats)

	j.logger.Info("escalation sweep completed",
		"examined", stats.Examined,
		"escalated", stats.Escalated,
		"lost_race", stats.LostRace,
		"alerts_sent", stats.AlertsSent,
		"alerts_failed", stats.AlertsFailed,
		"duration", stats.Duration.String(),
	)
	return nil
}

func (j *EscalateOverdueJob) escalate(ctx context.Context, checkInID string, now time.Time, stats *EscalateOverdueStats) error {
	c, applied, err := j.checkins.EscalateIfActive(ctx, checkInID, now)
	if err != nil {
		return fmt.Errorf("escalate if active: %w", err)
	}
	if !applied {
		// The owner completed between the select and this write. Their
		// transition already counted; this row needs nothing from us.
		stats.LostRace++
		return nil
	}
	stats.Escalated++

	if err := j.publisher.Publish(shared.NewCheckInAlertedEvent(c.ID, c.OwnerID)); err != nil {
		j.logger.Warn("failed to publish checkin.alerted", "checkin_id", c.ID, "error", err)
	}

	body := "Safety alert: your friend missed their check-in deadline."
	if c.Note != "" {
		body = fmt.Sprintf("%s Note: %s", body, c.Note)
	}
	msg := notification.Message{
		Kind:      notification.KindCircleAlert,
		Body:      body,
		Reference: fmt.Sprintf("alert:%s", c.ID),
	}

	for _, memberID := range c.CircleUserIDs {
		if err := j.sender.Send(ctx, memberID, msg); err != nil {
			stats.AlertsFailed++
			if errors.Is(err, shared.ErrInvalidPushToken) {
				if clearErr := j.users.ClearPushToken(ctx, memberID); clearErr == nil {
					stats.TokensCleared++
				}
			}
			j.logger.Warn("circle alert delivery failed",
				"checkin_id", c.ID, "user_id", memberID, "error", err)
			continue
		}
		stats.AlertsSent++
	}
	return nil
}

// LastRunStats returns the stats of the most recent sweep, or nil.
func (j *EscalateOverdueJob) LastRunStats() *EscalateOverdueStats {
	v, _ := j.lastRunStats.Load().(*EscalateOverdueStats)
	return v
}
