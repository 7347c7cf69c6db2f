package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/safecircle-app/safecircle/internal/domain/bestie"
	"github.com/safecircle-app/safecircle/internal/domain/checkin"
)

// ══════════════════════════════════════════════════════════════════════════════
// PURGE EXPIRED JOB
// ══════════════════════════════════════════════════════════════════════════════

// ObjectRemover deletes a stored object by path. Implemented by the
// object-storage adapter; the sweep uses it to remove check-in photos
// alongside their rows.
type ObjectRemover interface {
	Remove(ctx context.Context, path string) error
}

// PurgeExpiredJob removes terminal check-ins and old interactions past the
// retention window.
//
// Derived counters are deliberately left alone: retention shrinks the
// source collections without rewriting history, which is why the
// reconciliation audit tolerates live counters exceeding a recount. Users
// flagged keep-forever are excluded by the repository itself.
type PurgeExpiredJob struct {
	checkins     checkin.Repository
	interactions bestie.InteractionRepository
	photos       ObjectRemover
	logger       *slog.Logger

	config PurgeExpiredConfig

	lastRunStats atomic.Value // *PurgeExpiredStats
}

// PurgeExpiredConfig contains configuration for the retention sweep.
type PurgeExpiredConfig struct {
	// CheckInRetention is how long terminal check-ins are kept.
	CheckInRetention time.Duration

	// InteractionRetention is how long interactions are kept.
	InteractionRetention time.Duration

	// BatchSize bounds rows deleted per statement.
	BatchSize int

	// Timeout is the maximum duration for one sweep.
	Timeout time.Duration
}

// DefaultPurgeExpiredConfig returns sensible defaults.
func DefaultPurgeExpiredConfig() PurgeExpiredConfig {
	return PurgeExpiredConfig{
		CheckInRetention:     7 * 24 * time.Hour,
		InteractionRetention: 180 * 24 * time.Hour,
		BatchSize:            1000,
		Timeout:              15 * time.Minute,
	}
}

// PurgeExpiredStats contains statistics from one sweep.
type PurgeExpiredStats struct {
	StartedAt           time.Time
	Duration            time.Duration
	CheckInsDeleted     int
	InteractionsDeleted int
	PhotosDeleted       int
	PhotoFailures       int
}

// NewPurgeExpiredJob creates the job. photos may be nil when no object
// storage is configured.
func NewPurgeExpiredJob(
	checkins checkin.Repository,
	interactions bestie.InteractionRepository,
	photos ObjectRemover,
	logger *slog.Logger,
	config PurgeExpiredConfig,
) *PurgeExpiredJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &PurgeExpiredJob{
		checkins:     checkins,
		interactions: interactions,
		photos:       photos,
		logger:       logger,
		config:       config,
	}
}

// Name returns the job name.
func (j *PurgeExpiredJob) Name() string {
	return "purge_expired"
}

// Description returns a human-readable description.
func (j *PurgeExpiredJob) Description() string {
	return "Deletes terminal check-ins and interactions past retention"
}

// Run executes one retention sweep.
func (j *PurgeExpiredJob) Run(ctx context.Context) error {
	startedAt := time.Now()
	stats := &PurgeExpiredStats{StartedAt: startedAt}

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	now := time.Now().UTC()

	// Loop batches until a short batch signals the backlog is drained.
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		deleted, photoPaths, err := j.checkins.DeleteOlderThan(ctx, now.Add(-j.config.CheckInRetention), j.config.BatchSize)
		if err != nil {
			return fmt.Errorf("delete expired check-ins: %w", err)
		}
		stats.CheckInsDeleted += deleted
		j.removePhotos(ctx, photoPaths, stats)
		if deleted < j.config.BatchSize {
			break
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		deleted, err := j.interactions.DeleteOlderThan(ctx, now.Add(-j.config.InteractionRetention), j.config.BatchSize)
		if err != nil {
			return fmt.Errorf("delete expired interactions: %w", err)
		}
		stats.InteractionsDeleted += deleted
		if deleted < j.config.BatchSize {
			break
		}
	}

	stats.Duration = time.Since(startedAt)
	j.lastRunStats.Store(stats)

	j.logger.Info("retention sweep completed",
		"checkins_deleted", stats.CheckInsDeleted,
		"interactions_deleted", stats.InteractionsDeleted,
		"photos_deleted", stats.PhotosDeleted,
		"photo_failures", stats.PhotoFailures,
		"duration", stats.Duration.String(),
	)
	return nil
}

// removePhotos deletes the object-storage media of purged check-ins. The
// rows are already gone, so a failed delete only orphans a blob; it never
// fails the sweep.
func (j *PurgeExpiredJob) removePhotos(ctx context.Context, paths []string, stats *PurgeExpiredStats) {
	if j.photos == nil {
		return
	}
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := j.photos.Remove(ctx, path); err != nil {
			stats.PhotoFailures++
			j.logger.Warn("photo delete failed", "path", path, "error", err)
			continue
		}
		stats.PhotosDeleted++
	}
}

// LastRunStats returns the stats of the most recent sweep, or nil.
func (j *PurgeExpiredJob) LastRunStats() *PurgeExpiredStats {
	v, _ := j.lastRunStats.Load().(*PurgeExpiredStats)
	return v
}
