package main

import (
	"log/slog"

	"github.com/safecircle-app/safecircle/config"
	"github.com/safecircle-app/safecircle/internal/application/stats"
	"github.com/safecircle-app/safecircle/internal/domain/analytics"
	"github.com/safecircle-app/safecircle/internal/domain/bestie"
	"github.com/safecircle-app/safecircle/internal/domain/checkin"
	"github.com/safecircle-app/safecircle/internal/domain/notification"
	"github.com/safecircle-app/safecircle/internal/domain/shared"
	"github.com/safecircle-app/safecircle/internal/domain/user"
	"github.com/safecircle-app/safecircle/internal/infrastructure/scheduler"
	"github.com/safecircle-app/safecircle/internal/infrastructure/scheduler/jobs"
)

// jobDeps bundles everything the job set needs.
type jobDeps struct {
	checkins     checkin.Repository
	users        user.Repository
	besties      bestie.Repository
	interactions bestie.InteractionRepository
	milestones   bestie.MilestoneRepository
	engine       *stats.Engine
	cursors      jobs.CursorStore
	cache        analytics.Cache
	photos       jobs.ObjectRemover
	sender       notification.Sender
	publisher    shared.EventPublisher
	logger       *slog.Logger
}

// registerJobs builds the full job set and registers each with its schedule.
func registerJobs(sched *scheduler.Scheduler, cfg *config.Config, d jobDeps) error {
	remindersCfg := jobs.DefaultSendRemindersConfig()
	remindersCfg.LeadWindow = cfg.Scheduler.ReminderLeadWindow
	reminders := jobs.NewSendRemindersJob(d.checkins, d.users, d.sender, d.logger, remindersCfg)
	if err := sched.Register(reminders, scheduler.NewIntervalSchedule(cfg.Scheduler.ReminderInterval)); err != nil {
		return err
	}

	escalate := jobs.NewEscalateOverdueJob(d.checkins, d.users, d.sender, d.publisher, d.logger,
		jobs.DefaultEscalateOverdueConfig())
	if err := sched.Register(escalate, scheduler.NewIntervalSchedule(cfg.Scheduler.EscalationInterval)); err != nil {
		return err
	}

	streaksCfg := jobs.DefaultUpdateStreaksConfig()
	streaksCfg.PageSize = cfg.Scheduler.PageSize
	streaks := jobs.NewUpdateStreaksJob(d.users, d.engine, d.cursors, d.logger, streaksCfg)
	if err := sched.Register(streaks, scheduler.NewDailySchedule(cfg.Scheduler.StreakHourUTC, 0)); err != nil {
		return err
	}

	milestonesCfg := jobs.DefaultDetectMilestonesConfig()
	milestonesCfg.PageSize = cfg.Scheduler.PageSize
	milestones := jobs.NewDetectMilestonesJob(d.besties, d.milestones, d.checkins, d.sender, d.logger, milestonesCfg)
	if err := sched.Register(milestones, scheduler.NewDailySchedule(cfg.Scheduler.MilestoneHourUTC, 0)); err != nil {
		return err
	}

	rebuild := jobs.NewRebuildAnalyticsJob(d.engine, d.cache, d.logger, jobs.DefaultRebuildAnalyticsConfig())
	if err := sched.Register(rebuild, scheduler.NewIntervalSchedule(cfg.Scheduler.AnalyticsRebuildInterval)); err != nil {
		return err
	}

	reconcileCfg := jobs.DefaultReconcileStatsConfig()
	reconcileCfg.PageSize = cfg.Scheduler.PageSize
	reconcile := jobs.NewReconcileStatsJob(d.engine, d.logger, reconcileCfg)
	if err := sched.Register(reconcile, scheduler.NewWeeklySchedule(cfg.Scheduler.ReconcileWeekday, cfg.Scheduler.ReconcileHourUTC)); err != nil {
		return err
	}

	purgeCfg := jobs.DefaultPurgeExpiredConfig()
	purgeCfg.CheckInRetention = cfg.Retention.CheckInRetention
	purgeCfg.InteractionRetention = cfg.Retention.InteractionRetention
	purge := jobs.NewPurgeExpiredJob(d.checkins, d.interactions, d.photos, d.logger, purgeCfg)
	return sched.Register(purge, scheduler.NewDailySchedule(cfg.Scheduler.PurgeHourUTC, 0))
}
