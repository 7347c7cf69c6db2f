// Package jobs contains the scheduled sweeps: reminders, escalation,
// streaks, milestones, retention, and analytics rebuilds.
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
// SEND REMINDERS JOB
// ══════════════════════════════════════════════════════════════════════════════

// SendRemindersJob nudges owners of check-ins approaching their deadline.
//
// The repository claims each row by flipping reminder_sent in the same
// statement that selects it, so overlapping sweeps never double-remind.
// A claimed row whose delivery then fails stays claimed: one reminder per
// check-in, ever, is the contract.
type SendRemindersJob struct {
	checkins checkin.Repository
	users    user.Repository
	sender   notification.Sender
	logger   *slog.Logger

	config SendRemindersConfig

	lastRunStats atomic.Value // *SendRemindersStats
}

// SendRemindersConfig contains configuration for the reminder sweep.
type SendRemindersConfig struct {
	// LeadWindow is how far before the deadline the reminder fires.
	LeadWindow time.Duration

	// BatchSize bounds the rows claimed per sweep.
	BatchSize int

	// Timeout is the maximum duration for one sweep.
	Timeout time.Duration
}

// DefaultSendRemindersConfig returns sensible defaults.
func DefaultSendRemindersConfig() SendRemindersConfig {
	return SendRemindersConfig{
		LeadWindow: 10 * time.Minute,
		BatchSize:  200,
		Timeout:    time.Minute,
	}
}

// SendRemindersStats contains statistics from one sweep.
type SendRemindersStats struct {
	StartedAt     time.Time
	Duration      time.Duration
	Claimed       int
	Delivered     int
	Failed        int
	TokensCleared int
}

// NewSendRemindersJob creates the job.
func NewSendRemindersJob(
	checkins checkin.Repository,
	users user.Repository,
	sender notification.Sender,
	logger *slog.Logger,
	config SendRemindersConfig,
) *SendRemindersJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &SendRemindersJob{
		checkins: checkins,
		users:    users,
		sender:   sender,
		logger:   logger,
		config:   config,
	}
}

// Name returns the job name.
func (j *SendRemindersJob) Name() string {
	return "send_reminders"
}

// Description returns a human-readable description.
func (j *SendRemindersJob) Description() string {
	return "Sends pre-deadline reminders to check-in owners"
}

// Run executes one reminder sweep.
func (j *SendRemindersJob) Run(ctx context.Context) error {
	startedAt := time.Now()
	stats := &SendRemindersStats{StartedAt: startedAt}

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	now := time.Now().UTC()
	due, err := j.checkins.ClaimReminders(ctx, now, now.Add(j.config.LeadWindow), j.config.BatchSize)
	if err != nil {
		return fmt.Errorf("claim reminders: %w", err)
	}
	stats.Claimed = len(due)

	for _, c := range due {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg := notification.Message{
			Kind:      notification.KindReminder,
			Body:      "Your check-in deadline is coming up. Tap to confirm you're safe.",
			Reference: fmt.Sprintf("reminder:%s", c.ID),
		}
		if err := j.sender.Send(ctx, c.OwnerID, msg); err != nil {
			stats.Failed++
			if errors.Is(err, shared.ErrInvalidPushToken) {
				// Stale device token: clear it so future sweeps stop
				// burning delivery attempts on it.
				if clearErr := j.users.ClearPushToken(ctx, c.OwnerID); clearErr != nil {
					j.logger.Error("failed to clear stale push token",
						"user_id", c.OwnerID, "error", clearErr)
				} else {
					stats.TokensCleared++
				}
				continue
			}
			j.logger.Warn("reminder delivery failed",
				"checkin_id", c.ID, "owner_id", c.OwnerID, "error", err)
			continue
		}
		stats.Delivered++
	}

	stats.Duration = time.Since(startedAt)
	j.lastRunStats.Store(stats)

	j.logger.Info("reminder sweep completed",
		"claimed", stats.Claimed,
		"delivered", stats.Delivered,
		"failed", stats.Failed,
		"tokens_cleared", stats.TokensCleared,
		"duration", stats.Duration.String(),
	)
	return nil
}

// LastRunStats returns the stats of the most recent sweep, or nil.
func (j *SendRemindersJob) LastRunStats() *SendRemindersStats {
	v, _ := j.lastRunStats.Load().(*SendRemindersStats)
	return v
}
