package stats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safecircle-app/safecircle/internal/domain/bestie"
	"github.com/safecircle-app/safecircle/internal/domain/checkin"
	"github.com/safecircle-app/safecircle/internal/domain/user"
)

type engineFixture struct {
	engine    *Engine
	users     *memUsers
	checkins  *memCheckins
	besties   *memBesties
	analytics *memAnalytics
	ledger    *memLedger
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	f := &engineFixture{
		users:     newMemUsers(),
		checkins:  newMemCheckins(),
		besties:   newMemBesties(),
		analytics: &memAnalytics{},
		ledger:    newMemLedger(),
	}
	f.engine = NewEngine(f.users, f.users, f.checkins, f.besties, f.analytics, f.ledger, nil)
	return f
}

func (f *engineFixture) addUser(t *testing.T, id string) {
	t.Helper()
	u, err := user.NewUser(id, id, time.Now().UTC())
	require.NoError(t, err)
	f.users.add(u)
}

func (f *engineFixture) stats(t *testing.T, id string) user.Stats {
	t.Helper()
	u, err := f.users.GetByID(context.Background(), id)
	require.NoError(t, err)
	return u.Stats
}

func TestEngine_ApplyCheckInTransition_Creation(t *testing.T) {
	f := newEngineFixture(t)
	f.addUser(t, "u-1")
	ctx := context.Background()

	tr := Transition{From: "", To: checkin.StatusActive}
	require.NoError(t, f.engine.ApplyCheckInTransition(ctx, "ci-1", "u-1", tr))

	s := f.stats(t, "u-1")
	assert.Equal(t, 1, s.TotalCheckIns)
	assert.Equal(t, 0, s.CompletedCheckIns)

	snap, _ := f.analytics.Get(ctx)
	assert.Equal(t, 1, snap.TotalCheckIns)
}

// A redelivered event must apply its counter effects exactly once.
func TestEngine_ApplyCheckInTransition_Redelivery(t *testing.T) {
	f := newEngineFixture(t)
	f.addUser(t, "u-1")
	ctx := context.Background()

	tr := Transition{From: "", To: checkin.StatusActive}
	for i := 0; i < 5; i++ {
		require.NoError(t, f.engine.ApplyCheckInTransition(ctx, "ci-1", "u-1", tr))
	}

	assert.Equal(t, 1, f.stats(t, "u-1").TotalCheckIns)
	snap, _ := f.analytics.Get(ctx)
	assert.Equal(t, 1, snap.TotalCheckIns)
}

func TestEngine_ApplyCheckInTransition_DistinctCheckIns(t *testing.T) {
	f := newEngineFixture(t)
	f.addUser(t, "u-1")
	ctx := context.Background()

	tr := Transition{From: "", To: checkin.StatusActive}
	require.NoError(t, f.engine.ApplyCheckInTransition(ctx, "ci-1", "u-1", tr))
	require.NoError(t, f.engine.ApplyCheckInTransition(ctx, "ci-2", "u-1", tr))

	assert.Equal(t, 2, f.stats(t, "u-1").TotalCheckIns)
}

func TestEngine_ApplyCheckInTransition_FalseAlarmCorrection(t *testing.T) {
	f := newEngineFixture(t)
	f.addUser(t, "u-1")
	ctx := context.Background()

	require.NoError(t, f.engine.ApplyCheckInTransition(ctx, "ci-1", "u-1",
		Transition{From: "", To: checkin.StatusActive}))
	require.NoError(t, f.engine.ApplyCheckInTransition(ctx, "ci-1", "u-1",
		Transition{From: checkin.StatusActive, To: checkin.StatusAlerted}))

	s := f.stats(t, "u-1")
	assert.Equal(t, 1, s.AlertedCheckIns)

	require.NoError(t, f.engine.ApplyCheckInTransition(ctx, "ci-1", "u-1",
		Transition{From: checkin.StatusAlerted, To: checkin.StatusFalseAlarm}))

	s = f.stats(t, "u-1")
	assert.Equal(t, 0, s.AlertedCheckIns)
	assert.Equal(t, 1, s.TotalCheckIns) // the check-in itself still counts

	snap, _ := f.analytics.Get(ctx)
	assert.Equal(t, 0, snap.AlertedCheckIns)
}

// The correction delta clamps at zero: a false-alarm event arriving before
// (or without) its alert event must not drive the counter negative.
func TestEngine_ApplyCheckInTransition_CorrectionClampsAtZero(t *testing.T) {
	f := newEngineFixture(t)
	f.addUser(t, "u-1")
	ctx := context.Background()

	require.NoError(t, f.engine.ApplyCheckInTransition(ctx, "ci-1", "u-1",
		Transition{From: checkin.StatusAlerted, To: checkin.StatusFalseAlarm}))

	assert.Equal(t, 0, f.stats(t, "u-1").AlertedCheckIns)
}

func TestEngine_ApplyCheckInTransition_UnknownTransition(t *testing.T) {
	f := newEngineFixture(t)
	f.addUser(t, "u-1")
	ctx := context.Background()

	// Not in the delta table: applies nothing, claims nothing.
	require.NoError(t, f.engine.ApplyCheckInTransition(ctx, "ci-1", "u-1",
		Transition{From: checkin.StatusCompleted, To: checkin.StatusActive}))

	assert.Equal(t, user.Stats{}, f.stats(t, "u-1"))
}

// An aggregate write failure must not unwind the user-side counter; the
// rebuild heals the aggregate later.
func TestEngine_ApplyCheckInTransition_AggregateFailureIsNonFatal(t *testing.T) {
	f := newEngineFixture(t)
	f.addUser(t, "u-1")
	f.analytics.failNext = true
	ctx := context.Background()

	require.NoError(t, f.engine.ApplyCheckInTransition(ctx, "ci-1", "u-1",
		Transition{From: "", To: checkin.StatusActive}))

	assert.Equal(t, 1, f.stats(t, "u-1").TotalCheckIns)
	snap, _ := f.analytics.Get(ctx)
	assert.Equal(t, 0, snap.TotalCheckIns)
}

func TestEngine_Completion_GrantsBadgeAndBumpsStreak(t *testing.T) {
	f := newEngineFixture(t)
	f.addUser(t, "u-1")
	ctx := context.Background()

	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	f.engine.WithClock(func() time.Time { return now })

	// The completed row is visible before the event is handled.
	ci, err := checkin.NewCheckIn("ci-1", "u-1", time.Hour, []string{"u-2"}, now.Add(-time.Hour))
	require.NoError(t, err)
	require.NoError(t, ci.Complete(now))
	f.checkins.add(ci)

	require.NoError(t, f.engine.ApplyCheckInTransition(ctx, "ci-1", "u-1",
		Transition{From: checkin.StatusActive, To: checkin.StatusCompleted}))

	s := f.stats(t, "u-1")
	assert.Equal(t, 1, s.CompletedCheckIns)
	assert.Equal(t, 1, s.CurrentStreak)
	assert.Equal(t, 1, s.LongestStreak)
	assert.Equal(t, 1, s.DaysActive)
	require.NotNil(t, s.LastActive)
	assert.Equal(t, now, *s.LastActive)

	u, err := f.users.GetByID(ctx, "u-1")
	require.NoError(t, err)
	assert.True(t, u.HasBadge(user.BadgeFirstCheckIn))
}

// Only the first completion of a calendar day bumps the streak.
func TestEngine_Completion_SecondOfDayDoesNotExtendStreak(t *testing.T) {
	f := newEngineFixture(t)
	f.addUser(t, "u-1")
	ctx := context.Background()

	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	f.engine.WithClock(func() time.Time { return now })

	for i, id := range []string{"ci-1", "ci-2"} {
		ci, err := checkin.NewCheckIn(id, "u-1", time.Hour, []string{"u-2"}, now.Add(-time.Hour))
		require.NoError(t, err)
		require.NoError(t, ci.Complete(now.Add(time.Duration(i)*time.Minute)))
		f.checkins.add(ci)
		require.NoError(t, f.engine.ApplyCheckInTransition(ctx, id, "u-1",
			Transition{From: checkin.StatusActive, To: checkin.StatusCompleted}))
	}

	s := f.stats(t, "u-1")
	assert.Equal(t, 2, s.CompletedCheckIns)
	assert.Equal(t, 1, s.CurrentStreak)
	assert.Equal(t, 1, s.DaysActive)
}

func TestEngine_Completion_ConsecutiveDaysExtendStreak(t *testing.T) {
	f := newEngineFixture(t)
	f.addUser(t, "u-1")
	ctx := context.Background()

	day := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	for i, id := range []string{"ci-1", "ci-2", "ci-3"} {
		now := day.AddDate(0, 0, i)
		f.engine.WithClock(func() time.Time { return now })

		ci, err := checkin.NewCheckIn(id, "u-1", time.Hour, []string{"u-2"}, now.Add(-time.Hour))
		require.NoError(t, err)
		require.NoError(t, ci.Complete(now))
		f.checkins.add(ci)
		require.NoError(t, f.engine.ApplyCheckInTransition(ctx, id, "u-1",
			Transition{From: checkin.StatusActive, To: checkin.StatusCompleted}))
	}

	s := f.stats(t, "u-1")
	assert.Equal(t, 3, s.CurrentStreak)
	assert.Equal(t, 3, s.LongestStreak)
	assert.Equal(t, 3, s.DaysActive)
}

// A multi-day gap restarts the streak at 1 instead of extending.
func TestEngine_Completion_GapRestartsStreak(t *testing.T) {
	f := newEngineFixture(t)
	f.addUser(t, "u-1")
	ctx := context.Background()

	first := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	f.engine.WithClock(func() time.Time { return first })
	ci, err := checkin.NewCheckIn("ci-1", "u-1", time.Hour, []string{"u-2"}, first.Add(-time.Hour))
	require.NoError(t, err)
	require.NoError(t, ci.Complete(first))
	f.checkins.add(ci)
	require.NoError(t, f.engine.ApplyCheckInTransition(ctx, "ci-1", "u-1",
		Transition{From: checkin.StatusActive, To: checkin.StatusCompleted}))

	later := first.AddDate(0, 0, 5)
	f.engine.WithClock(func() time.Time { return later })
	ci2, err := checkin.NewCheckIn("ci-2", "u-1", time.Hour, []string{"u-2"}, later.Add(-time.Hour))
	require.NoError(t, err)
	require.NoError(t, ci2.Complete(later))
	f.checkins.add(ci2)
	require.NoError(t, f.engine.ApplyCheckInTransition(ctx, "ci-2", "u-1",
		Transition{From: checkin.StatusActive, To: checkin.StatusCompleted}))

	s := f.stats(t, "u-1")
	assert.Equal(t, 1, s.CurrentStreak)
	assert.Equal(t, 1, s.LongestStreak)
	assert.Equal(t, 2, s.DaysActive)
}

// A transient streak-write failure after the counters landed must not be
// permanent: the activity follow-up holds its own ledger entry and releases
// it on failure, so a redelivered completion retries the bump while the
// counters stay applied exactly once.
func TestEngine_Completion_FollowUpFailureHealsOnRedelivery(t *testing.T) {
	f := newEngineFixture(t)
	f.addUser(t, "u-1")
	ctx := context.Background()

	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	f.engine.WithClock(func() time.Time { return now })

	ci, err := checkin.NewCheckIn("ci-1", "u-1", time.Hour, []string{"u-2"}, now.Add(-time.Hour))
	require.NoError(t, err)
	require.NoError(t, ci.Complete(now))
	f.checkins.add(ci)

	f.users.failStreakOnce = errors.New("connection reset")
	require.NoError(t, f.engine.ApplyCheckInTransition(ctx, "ci-1", "u-1",
		Transition{From: checkin.StatusActive, To: checkin.StatusCompleted}))

	// The counter landed, the activity bump did not.
	s := f.stats(t, "u-1")
	assert.Equal(t, 1, s.CompletedCheckIns)
	assert.Equal(t, 0, s.CurrentStreak)
	assert.Nil(t, s.LastActive)

	// Redelivery skips the claimed counter and retries the follow-up.
	require.NoError(t, f.engine.ApplyCheckInTransition(ctx, "ci-1", "u-1",
		Transition{From: checkin.StatusActive, To: checkin.StatusCompleted}))

	s = f.stats(t, "u-1")
	assert.Equal(t, 1, s.CompletedCheckIns)
	assert.Equal(t, 1, s.CurrentStreak)
	assert.Equal(t, 1, s.DaysActive)
	require.NotNil(t, s.LastActive)
	assert.Equal(t, now, *s.LastActive)
}

// Once the follow-up succeeded its claim stays, and a further redelivery
// changes nothing.
func TestEngine_Completion_RedeliveryAfterSuccessIsANoOp(t *testing.T) {
	f := newEngineFixture(t)
	f.addUser(t, "u-1")
	ctx := context.Background()

	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	f.engine.WithClock(func() time.Time { return now })

	ci, err := checkin.NewCheckIn("ci-1", "u-1", time.Hour, []string{"u-2"}, now.Add(-time.Hour))
	require.NoError(t, err)
	require.NoError(t, ci.Complete(now))
	f.checkins.add(ci)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.engine.ApplyCheckInTransition(ctx, "ci-1", "u-1",
			Transition{From: checkin.StatusActive, To: checkin.StatusCompleted}))
	}

	s := f.stats(t, "u-1")
	assert.Equal(t, 1, s.CompletedCheckIns)
	assert.Equal(t, 1, s.CurrentStreak)
	assert.Equal(t, 1, s.DaysActive)
}

func TestEngine_ApplyBestieTransition_Accept(t *testing.T) {
	f := newEngineFixture(t)
	f.addUser(t, "u-1")
	f.addUser(t, "u-2")
	ctx := context.Background()

	require.NoError(t, f.engine.ApplyBestieTransition(ctx, "b-1", "u-1", "u-2",
		bestie.StatusPending, bestie.StatusAccepted))

	u1, _ := f.users.GetByID(ctx, "u-1")
	u2, _ := f.users.GetByID(ctx, "u-2")
	assert.True(t, u1.HasBestie("u-2"))
	assert.True(t, u2.HasBestie("u-1"))
	assert.Equal(t, 1, u1.Stats.TotalBesties)
	assert.Equal(t, 1, u2.Stats.TotalBesties)
	assert.True(t, u1.HasBadge(user.BadgeFirstBestie))
	assert.True(t, u2.HasBadge(user.BadgeFirstBestie))

	snap, _ := f.analytics.Get(ctx)
	assert.Equal(t, 1, snap.AcceptedBesties)
}

// The symmetric edge appears exactly once per side, never twice, even when
// the acceptance event is redelivered.
func TestEngine_ApplyBestieTransition_AcceptRedelivery(t *testing.T) {
	f := newEngineFixture(t)
	f.addUser(t, "u-1")
	f.addUser(t, "u-2")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, f.engine.ApplyBestieTransition(ctx, "b-1", "u-1", "u-2",
			bestie.StatusPending, bestie.StatusAccepted))
	}

	u1, _ := f.users.GetByID(ctx, "u-1")
	assert.Equal(t, []string{"u-2"}, u1.BestieUserIDs)
	assert.Equal(t, 1, u1.Stats.TotalBesties)
}

func TestEngine_ApplyBestieTransition_Removal(t *testing.T) {
	f := newEngineFixture(t)
	f.addUser(t, "u-1")
	f.addUser(t, "u-2")
	ctx := context.Background()

	require.NoError(t, f.engine.ApplyBestieTransition(ctx, "b-1", "u-1", "u-2",
		bestie.StatusPending, bestie.StatusAccepted))
	require.NoError(t, f.engine.ApplyBestieTransition(ctx, "b-1", "u-1", "u-2",
		bestie.StatusAccepted, bestie.Status("removed")))

	u1, _ := f.users.GetByID(ctx, "u-1")
	u2, _ := f.users.GetByID(ctx, "u-2")
	assert.False(t, u1.HasBestie("u-2"))
	assert.False(t, u2.HasBestie("u-1"))
	assert.Equal(t, 0, u1.Stats.TotalBesties)
	assert.Equal(t, 0, u2.Stats.TotalBesties)

	// Badges survive the removal.
	assert.True(t, u1.HasBadge(user.BadgeFirstBestie))

	snap, _ := f.analytics.Get(ctx)
	assert.Equal(t, 0, snap.AcceptedBesties)
}

func TestEngine_ApplyBestieTransition_DeclineIsNeutral(t *testing.T) {
	f := newEngineFixture(t)
	f.addUser(t, "u-1")
	f.addUser(t, "u-2")
	ctx := context.Background()

	require.NoError(t, f.engine.ApplyBestieTransition(ctx, "b-1", "u-1", "u-2",
		bestie.StatusPending, bestie.StatusDeclined))

	u1, _ := f.users.GetByID(ctx, "u-1")
	assert.Equal(t, 0, u1.Stats.TotalBesties)
	snap, _ := f.analytics.Get(ctx)
	assert.Equal(t, 0, snap.AcceptedBesties)
}

func TestEngine_RegisterUser(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	require.NoError(t, f.engine.RegisterUser(ctx, "u-1"))
	require.NoError(t, f.engine.RegisterUser(ctx, "u-1")) // redelivery

	snap, _ := f.analytics.Get(ctx)
	assert.Equal(t, 1, snap.TotalUsers)
}

func TestEngine_AdvanceStreakDaily(t *testing.T) {
	f := newEngineFixture(t)
	f.addUser(t, "u-1")
	ctx := context.Background()

	windowStart := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	windowEnd := windowStart.Add(24 * time.Hour)

	lastActive := windowStart.Add(-time.Hour)
	require.NoError(t, f.users.OverwriteStats(ctx, "u-1", user.Stats{
		CurrentStreak: 4, LongestStreak: 6,
	}))
	require.NoError(t, f.users.TouchLastActive(ctx, "u-1", lastActive))

	u, err := f.users.GetByID(ctx, "u-1")
	require.NoError(t, err)

	upd, err := f.engine.AdvanceStreakDaily(ctx, u, windowStart, windowEnd)
	require.NoError(t, err)
	assert.True(t, upd.Changed)
	assert.Equal(t, 0, upd.CurrentStreak)

	s := f.stats(t, "u-1")
	assert.Equal(t, 0, s.CurrentStreak)
	assert.Equal(t, 6, s.LongestStreak)
}
