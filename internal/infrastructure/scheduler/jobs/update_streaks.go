package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/safecircle-app/safecircle/internal/application/stats"
	"github.com/safecircle-app/safecircle/internal/domain/user"
	"github.com/safecircle-app/safecircle/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE STREAKS JOB
// ══════════════════════════════════════════════════════════════════════════════

// CursorStore persists per-job pagination cursors so an interrupted batch
// resumes where it stopped instead of restarting from the first user.
type CursorStore interface {
	// Get returns the stored cursor for the job, "" when absent.
	Get(ctx context.Context, jobName string) (string, error)

	// Set stores the cursor for the job.
	Set(ctx context.Context, jobName, cursor string) error

	// Clear removes the stored cursor.
	Clear(ctx context.Context, jobName string) error
}

// UpdateStreaksJob walks every user once per UTC day and breaks the streaks
// of those who let a full day pass without a completed check-in.
//
// The batch pages with a bounded cursor and persists it after each page;
// users already processed are naturally skipped on resume because a broken
// streak is already 0 and an intact one produces no change. Re-running the
// whole batch is therefore harmless.
type UpdateStreaksJob struct {
	users   user.Repository
	engine  *stats.Engine
	cursors CursorStore
	logger  *slog.Logger

	config UpdateStreaksConfig

	lastRunStats atomic.Value // *UpdateStreaksStats
}

// UpdateStreaksConfig contains configuration for the streak batch.
type UpdateStreaksConfig struct {
	// PageSize bounds users loaded per page.
	PageSize int

	// Timeout is the maximum duration for one batch run.
	Timeout time.Duration
}

// DefaultUpdateStreaksConfig returns sensible defaults.
func DefaultUpdateStreaksConfig() UpdateStreaksConfig {
	return UpdateStreaksConfig{
		PageSize: 500,
		Timeout:  10 * time.Minute,
	}
}

// UpdateStreaksStats contains statistics from one batch run.
type UpdateStreaksStats struct {
	StartedAt    time.Time
	Duration     time.Duration
	UsersChecked int
	StreaksReset int
	Resumed      bool
	Completed    bool
}

// NewUpdateStreaksJob creates the job.
func NewUpdateStreaksJob(
	users user.Repository,
	engine *stats.Engine,
	cursors CursorStore,
	logger *slog.Logger,
	config UpdateStreaksConfig,
) *UpdateStreaksJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &UpdateStreaksJob{
		users:   users,
		engine:  engine,
		cursors: cursors,
		logger:  logger,
		config:  config,
	}
}

// Name returns the job name.
func (j *UpdateStreaksJob) Name() string {
	return "update_streaks"
}

// Description returns a human-readable description.
func (j *UpdateStreaksJob) Description() string {
	return "Breaks streaks of users inactive for a full UTC day"
}

// Run executes one daily streak batch.
func (j *UpdateStreaksJob) Run(ctx context.Context) error {
	startedAt := time.Now()
	stats := &UpdateStreaksStats{StartedAt: startedAt}

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	windowStart, windowEnd := timeutil.YesterdayWindow(time.Now().UTC())

	cursor, err := j.cursors.Get(ctx, j.Name())
	if err != nil {
		return fmt.Errorf("load cursor: %w", err)
	}
	stats.Resumed = cursor != ""

	for {
		select {
		case <-ctx.Done():
			// Cursor is already persisted up to the last full page; the
			// next run resumes from there.
			j.storeStats(stats, startedAt)
			return ctx.Err()
		default:
		}

		page, err := j.users.ListPage(ctx, cursor, j.config.PageSize)
		if err != nil {
			j.storeStats(stats, startedAt)
			return fmt.Errorf("list users after %q: %w", cursor, err)
		}
		if len(page) == 0 {
			break
		}

		for _, u := range page {
			upd, err := j.engine.AdvanceStreakDaily(ctx, u, windowStart, windowEnd)
			if err != nil {
				j.logger.Error("streak update failed", "user_id", u.ID, "error", err)
				continue
			}
			stats.UsersChecked++
			if upd.Changed {
				stats.StreaksReset++
			}
		}

		cursor = page[len(page)-1].ID
		if err := j.cursors.Set(ctx, j.Name(), cursor); err != nil {
			j.logger.Warn("failed to persist cursor", "cursor", cursor, "error", err)
		}
	}

	if err := j.cursors.Clear(ctx, j.Name()); err != nil {
		j.logger.Warn("failed to clear cursor", "error", err)
	}
	stats.Completed = true
	j.storeStats(stats, startedAt)

	j.logger.Info("streak batch completed",
		"users_checked", stats.UsersChecked,
		"streaks_reset", stats.StreaksReset,
		"resumed", stats.Resumed,
		"duration", stats.Duration.String(),
	)
	return nil
}

func (j *UpdateStreaksJob) storeStats(stats *UpdateStreaksStats, startedAt time.Time) {
	stats.Duration = time.Since(startedAt)
	j.lastRunStats.Store(stats)
}

// LastRunStats returns the stats of the most recent run, or nil.
func (j *UpdateStreaksJob) LastRunStats() *UpdateStreaksStats {
	v, _ := j.lastRunStats.Load().(*UpdateStreaksStats)
	return v
}
