package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/safecircle-app/safecircle/internal/domain/bestie"
	"github.com/safecircle-app/safecircle/internal/domain/checkin"
	"github.com/safecircle-app/safecircle/internal/domain/notification"
	"github.com/safecircle-app/safecircle/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DETECT MILESTONES JOB
// ══════════════════════════════════════════════════════════════════════════════

// DetectMilestonesJob scans accepted relationships once per UTC day for
// fixed-value milestones: relationship age in days and shared completed
// check-ins.
//
// Matching is exact equality against the fixed values, so a milestone fires
// on the day it lands and never retroactively. The existence check before
// each insert keeps rescans and overlapping runs idempotent; one record is
// written per direction so both parties get their own.
type DetectMilestonesJob struct {
	besties    bestie.Repository
	milestones bestie.MilestoneRepository
	checkins   checkin.Repository
	sender     notification.Sender
	logger     *slog.Logger

	config DetectMilestonesConfig

	lastRunStats atomic.Value // *DetectMilestonesStats
}

// DetectMilestonesConfig contains configuration for the milestone scan.
type DetectMilestonesConfig struct {
	// PageSize bounds relationships loaded per page.
	PageSize int

	// Timeout is the maximum duration for one scan.
	Timeout time.Duration

	// EnableNotifications sends a push for each fresh milestone.
	EnableNotifications bool
}

// DefaultDetectMilestonesConfig returns sensible defaults.
func DefaultDetectMilestonesConfig() DetectMilestonesConfig {
	return DetectMilestonesConfig{
		PageSize:            500,
		Timeout:             10 * time.Minute,
		EnableNotifications: true,
	}
}

// DetectMilestonesStats contains statistics from one scan.
type DetectMilestonesStats struct {
	StartedAt            time.Time
	Duration             time.Duration
	RelationshipsScanned int
	MilestonesRecorded   int
	AlreadyRecorded      int
	NotificationsSent    int
}

// NewDetectMilestonesJob creates the job.
func NewDetectMilestonesJob(
	besties bestie.Repository,
	milestones bestie.MilestoneRepository,
	checkins checkin.Repository,
	sender notification.Sender,
	logger *slog.Logger,
	config DetectMilestonesConfig,
) *DetectMilestonesJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &DetectMilestonesJob{
		besties:    besties,
		milestones: milestones,
		checkins:   checkins,
		sender:     sender,
		logger:     logger,
		config:     config,
	}
}

// Name returns the job name.
func (j *DetectMilestonesJob) Name() string {
	return "detect_milestones"
}

// Description returns a human-readable description.
func (j *DetectMilestonesJob) Description() string {
	return "Detects relationship age and shared check-in milestones"
}

// Run executes one milestone scan.
func (j *DetectMilestonesJob) Run(ctx context.Context) error {
	startedAt := time.Now()
	stats := &DetectMilestonesStats{StartedAt: startedAt}

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	now := time.Now().UTC()
	cursor := ""
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		page, err := j.besties.ListAcceptedPage(ctx, cursor, j.config.PageSize)
		if err != nil {
			return fmt.Errorf("list accepted after %q: %w", cursor, err)
		}
		if len(page) == 0 {
			break
		}

		for _, r := range page {
			stats.RelationshipsScanned++
			if err := j.scanRelationship(ctx, r, now, stats); err != nil {
				j.logger.Error("milestone scan failed",
					"relationship_id", r.ID, "error", err)
			}
		}
		cursor = page[len(page)-1].ID
	}

	stats.Duration = time.Since(startedAt)
	j.lastRunStats.Store(stats)

	j.logger.Info("milestone scan completed",
		"relationships_scanned", stats.RelationshipsScanned,
		"milestones_recorded", stats.MilestonesRecorded,
		"already_recorded", stats.AlreadyRecorded,
		"notifications_sent", stats.NotificationsSent,
		"duration", stats.Duration.String(),
	)
	return nil
}

func (j *DetectMilestonesJob) scanRelationship(ctx context.Context, r *bestie.Relationship, now time.Time, stats *DetectMilestonesStats) error {
	if days := r.AgeInDays(now); bestie.IsAgeMilestone(days) {
		if err := j.record(ctx, r, bestie.MilestoneAge, days, now, stats); err != nil {
			return err
		}
	}

	sharedCount, err := j.checkins.CountSharedCompleted(ctx, r.RequesterID, r.RecipientID)
	if err != nil {
		return fmt.Errorf("count shared completed: %w", err)
	}
	if bestie.IsSharedMilestone(sharedCount) {
		if err := j.record(ctx, r, bestie.MilestoneSharedCheckIns, sharedCount, now, stats); err != nil {
			return err
		}
	}
	return nil
}

// record writes one milestone per direction, each guarded by an existence
// check so a rescan on the same day stays a no-op.
func (j *DetectMilestonesJob) record(ctx context.Context, r *bestie.Relationship, kind bestie.MilestoneKind, value int, now time.Time, stats *DetectMilestonesStats) error {
	pairs := [2][2]string{
		{r.RequesterID, r.RecipientID},
		{r.RecipientID, r.RequesterID},
	}
	for _, pair := range pairs {
		userID, otherID := pair[0], pair[1]

		exists, err := j.milestones.Exists(ctx, r.ID, userID, kind, value)
		if err != nil {
			return fmt.Errorf("milestone exists check: %w", err)
		}
		if exists {
			stats.AlreadyRecorded++
			continue
		}

		m := &bestie.Milestone{
			ID:             uuid.New().String(),
			RelationshipID: r.ID,
			UserID:         userID,
			OtherUserID:    otherID,
			Kind:           kind,
			Value:          value,
			CreatedAt:      now,
		}
		if err := j.milestones.Create(ctx, m); err != nil {
			if shared.IsAlreadyExists(err) {
				// Concurrent scan inserted it first.
				stats.AlreadyRecorded++
				continue
			}
			return fmt.Errorf("create milestone: %w", err)
		}
		stats.MilestonesRecorded++

		if j.config.EnableNotifications {
			if err := j.sender.Send(ctx, userID, notification.Message{
				Kind:      notification.KindMilestone,
				Body:      milestoneBody(kind, value),
				Reference: fmt.Sprintf("milestone:%s:%s:%d", r.ID, kind, value),
			}); err != nil {
				j.logger.Warn("milestone notification failed",
					"relationship_id", r.ID, "user_id", userID, "error", err)
				continue
			}
			stats.NotificationsSent++
		}
	}
	return nil
}

func milestoneBody(kind bestie.MilestoneKind, value int) string {
	switch kind {
	case bestie.MilestoneAge:
		return fmt.Sprintf("You and your bestie have been connected for %d days!", value)
	case bestie.MilestoneSharedCheckIns:
		return fmt.Sprintf("You and your bestie have completed %d check-ins together!", value)
	default:
		return "You reached a new bestie milestone!"
	}
}

// LastRunStats returns the stats of the most recent scan, or nil.
func (j *DetectMilestonesJob) LastRunStats() *DetectMilestonesStats {
	v, _ := j.lastRunStats.Load().(*DetectMilestonesStats)
	return v
}
