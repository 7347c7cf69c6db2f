package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/safecircle-app/safecircle/internal/application/stats"
	"github.com/safecircle-app/safecircle/internal/domain/analytics"
)

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD ANALYTICS JOB
// ══════════════════════════════════════════════════════════════════════════════

// RebuildAnalyticsJob recomputes the system-wide aggregate snapshot from the
// source collections and refreshes the read-side cache.
//
// The rebuild is the standing repair for aggregate drift: incremental
// adjustments that were lost (warn-only failures in the engine) are
// reconverged here wholesale.
type RebuildAnalyticsJob struct {
	engine *stats.Engine
	cache  analytics.Cache
	logger *slog.Logger

	config RebuildAnalyticsConfig

	lastRunStats atomic.Value // *RebuildAnalyticsStats
}

// RebuildAnalyticsConfig contains configuration for the rebuild.
type RebuildAnalyticsConfig struct {
	// CacheTTL is how long the refreshed cache entry lives.
	CacheTTL time.Duration

	// Timeout is the maximum duration for one rebuild.
	Timeout time.Duration
}

// DefaultRebuildAnalyticsConfig returns sensible defaults.
func DefaultRebuildAnalyticsConfig() RebuildAnalyticsConfig {
	return RebuildAnalyticsConfig{
		CacheTTL: 48 * time.Hour,
		Timeout:  5 * time.Minute,
	}
}

// RebuildAnalyticsStats contains statistics from one rebuild.
type RebuildAnalyticsStats struct {
	StartedAt time.Time
	Duration  time.Duration
	Snapshot  *analytics.Snapshot
	CacheSet  bool
}

// NewRebuildAnalyticsJob creates the job. cache may be nil when Redis is
// not configured; the persisted snapshot row alone then serves reads.
func NewRebuildAnalyticsJob(
	engine *stats.Engine,
	cache analytics.Cache,
	logger *slog.Logger,
	config RebuildAnalyticsConfig,
) *RebuildAnalyticsJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &RebuildAnalyticsJob{
		engine: engine,
		cache:  cache,
		logger: logger,
		config: config,
	}
}

// Name returns the job name.
func (j *RebuildAnalyticsJob) Name() string {
	return "rebuild_analytics"
}

// Description returns a human-readable description.
func (j *RebuildAnalyticsJob) Description() string {
	return "Rebuilds the aggregate analytics snapshot from source data"
}

// Run executes one rebuild.
func (j *RebuildAnalyticsJob) Run(ctx context.Context) error {
	startedAt := time.Now()
	runStats := &RebuildAnalyticsStats{StartedAt: startedAt}

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	snapshot, err := j.engine.RebuildAnalyticsCache(ctx)
	if err != nil {
		return fmt.Errorf("rebuild analytics: %w", err)
	}
	runStats.Snapshot = snapshot

	if j.cache != nil {
		if err := j.cache.Set(ctx, snapshot, j.config.CacheTTL); err != nil {
			// Persisted row is fresh; the cache lags until the next set.
			j.logger.Warn("failed to refresh analytics cache", "error", err)
		} else {
			runStats.CacheSet = true
		}
	}

	runStats.Duration = time.Since(startedAt)
	j.lastRunStats.Store(runStats)
	return nil
}

// LastRunStats returns the stats of the most recent rebuild, or nil.
func (j *RebuildAnalyticsJob) LastRunStats() *RebuildAnalyticsStats {
	v, _ := j.lastRunStats.Load().(*RebuildAnalyticsStats)
	return v
}

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILE STATS JOB
// ══════════════════════════════════════════════════════════════════════════════

// ReconcileStatsJob audits every user's derived counters against a recount
// of the source collections, repairing what drifted. The heavyweight
// consistency backstop; scheduled weekly.
type ReconcileStatsJob struct {
	engine *stats.Engine
	logger *slog.Logger

	config ReconcileStatsConfig

	lastReport atomic.Value // *stats.ReconcileReport
}

// ReconcileStatsConfig contains configuration for the audit.
type ReconcileStatsConfig struct {
	// PageSize bounds users audited per page.
	PageSize int

	// Repair overwrites drifted counters with recomputed values. When
	// false the audit only reports.
	Repair bool

	// Timeout is the maximum duration for one audit.
	Timeout time.Duration
}

// DefaultReconcileStatsConfig returns sensible defaults.
func DefaultReconcileStatsConfig() ReconcileStatsConfig {
	return ReconcileStatsConfig{
		PageSize: 200,
		Repair:   true,
		Timeout:  30 * time.Minute,
	}
}

// NewReconcileStatsJob creates the job.
func NewReconcileStatsJob(engine *stats.Engine, logger *slog.Logger, config ReconcileStatsConfig) *ReconcileStatsJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconcileStatsJob{
		engine: engine,
		logger: logger,
		config: config,
	}
}

// Name returns the job name.
func (j *ReconcileStatsJob) Name() string {
	return "reconcile_stats"
}

// Description returns a human-readable description.
func (j *ReconcileStatsJob) Description() string {
	return "Audits derived counters against source recounts and repairs drift"
}

// Run executes one full audit.
func (j *ReconcileStatsJob) Run(ctx context.Context) error {
	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	report, err := j.engine.ReconcileAll(ctx, j.config.PageSize, j.config.Repair)
	if report != nil {
		j.lastReport.Store(report)
	}
	if err != nil {
		return fmt.Errorf("reconcile all: %w", err)
	}
	return nil
}

// LastReport returns the most recent audit report, or nil.
func (j *ReconcileStatsJob) LastReport() *stats.ReconcileReport {
	v, _ := j.lastReport.Load().(*stats.ReconcileReport)
	return v
}
