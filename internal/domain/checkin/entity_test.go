package checkin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safecircle-app/safecircle/internal/domain/shared"
)

func TestNewCheckIn(t *testing.T) {
	now := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)
	circle := []string{"friend-1", "friend-2"}

	c, err := NewCheckIn("ci-1", "owner-1", 30*time.Minute, circle, now)
	require.NoError(t, err)

	assert.Equal(t, StatusActive, c.Status)
	assert.Equal(t, now.Add(30*time.Minute), c.AlertTime)
	assert.False(t, c.ReminderSent)
	assert.Equal(t, circle, c.CircleUserIDs)
	assert.Nil(t, c.CompletedAt)
	assert.Nil(t, c.AlertedAt)
}

func TestNewCheckIn_SnapshotsCircle(t *testing.T) {
	now := time.Now()
	circle := []string{"friend-1"}

	c, err := NewCheckIn("ci-1", "owner-1", time.Hour, circle, now)
	require.NoError(t, err)

	// Mutating the caller's slice must not change the stored snapshot.
	circle[0] = "someone-else"
	assert.Equal(t, "friend-1", c.CircleUserIDs[0])
}

func TestNewCheckIn_Validation(t *testing.T) {
	now := time.Now()
	circle := []string{"friend-1"}

	tests := []struct {
		name     string
		id       string
		owner    string
		duration time.Duration
		circle   []string
		wantErr  error
	}{
		{"missing id", "", "owner-1", time.Hour, circle, shared.ErrInvalidID},
		{"missing owner", "ci-1", "", time.Hour, circle, shared.ErrInvalidID},
		{"too short", "ci-1", "owner-1", 4 * time.Minute, circle, shared.ErrInvalidDuration},
		{"too long", "ci-1", "owner-1", 25 * time.Hour, circle, shared.ErrInvalidDuration},
		{"empty circle", "ci-1", "owner-1", time.Hour, nil, shared.ErrEmptyCircle},
		{"oversized circle", "ci-1", "owner-1", time.Hour, make([]string, MaxCircleSize+1), shared.ErrValueOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCheckIn(tt.id, tt.owner, tt.duration, tt.circle, now)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNewCheckIn_DurationBounds(t *testing.T) {
	now := time.Now()
	circle := []string{"friend-1"}

	_, err := NewCheckIn("ci-1", "owner-1", MinDuration, circle, now)
	assert.NoError(t, err)

	_, err = NewCheckIn("ci-2", "owner-1", MaxDuration, circle, now)
	assert.NoError(t, err)
}

func TestStatus_CanTransitionTo(t *testing.T) {
	assert.True(t, StatusActive.CanTransitionTo(StatusCompleted))
	assert.True(t, StatusActive.CanTransitionTo(StatusAlerted))
	assert.True(t, StatusAlerted.CanTransitionTo(StatusFalseAlarm))

	assert.False(t, StatusActive.CanTransitionTo(StatusFalseAlarm))
	assert.False(t, StatusCompleted.CanTransitionTo(StatusActive))
	assert.False(t, StatusCompleted.CanTransitionTo(StatusAlerted))
	assert.False(t, StatusAlerted.CanTransitionTo(StatusActive))
	assert.False(t, StatusAlerted.CanTransitionTo(StatusCompleted))
	assert.False(t, StatusFalseAlarm.CanTransitionTo(StatusAlerted))
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.False(t, StatusActive.IsTerminal())
	assert.False(t, StatusAlerted.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFalseAlarm.IsTerminal())
}

func TestCheckIn_Complete(t *testing.T) {
	now := time.Now()
	c, err := NewCheckIn("ci-1", "owner-1", time.Hour, []string{"f1"}, now)
	require.NoError(t, err)

	later := now.Add(10 * time.Minute)
	require.NoError(t, c.Complete(later))

	assert.Equal(t, StatusCompleted, c.Status)
	require.NotNil(t, c.CompletedAt)
	assert.Equal(t, later, *c.CompletedAt)
	assert.Nil(t, c.AlertedAt)
}

func TestCheckIn_Complete_Idempotent(t *testing.T) {
	now := time.Now()
	c, err := NewCheckIn("ci-1", "owner-1", time.Hour, []string{"f1"}, now)
	require.NoError(t, err)

	first := now.Add(5 * time.Minute)
	require.NoError(t, c.Complete(first))
	require.NoError(t, c.Complete(now.Add(20*time.Minute)))

	// The repeat call must not move the completion timestamp.
	assert.Equal(t, first, *c.CompletedAt)
}

func TestCheckIn_Complete_AfterEscalation(t *testing.T) {
	now := time.Now()
	c, err := NewCheckIn("ci-1", "owner-1", time.Hour, []string{"f1"}, now)
	require.NoError(t, err)
	require.NoError(t, c.Escalate(now.Add(time.Hour)))

	err = c.Complete(now.Add(2 * time.Hour))
	assert.ErrorIs(t, err, shared.ErrCheckInAlreadyAlerted)
	assert.Equal(t, StatusAlerted, c.Status)
}

func TestCheckIn_Escalate(t *testing.T) {
	now := time.Now()
	c, err := NewCheckIn("ci-1", "owner-1", time.Hour, []string{"f1"}, now)
	require.NoError(t, err)

	deadline := now.Add(time.Hour)
	require.NoError(t, c.Escalate(deadline))

	assert.Equal(t, StatusAlerted, c.Status)
	require.NotNil(t, c.AlertedAt)
	assert.Equal(t, deadline, *c.AlertedAt)
	assert.Nil(t, c.CompletedAt)

	// A second escalation is rejected, not silently repeated.
	err = c.Escalate(deadline.Add(time.Minute))
	assert.ErrorIs(t, err, shared.ErrCheckInNotActive)
}

func TestCheckIn_Escalate_Completed(t *testing.T) {
	now := time.Now()
	c, err := NewCheckIn("ci-1", "owner-1", time.Hour, []string{"f1"}, now)
	require.NoError(t, err)
	require.NoError(t, c.Complete(now.Add(time.Minute)))

	err = c.Escalate(now.Add(time.Hour))
	assert.ErrorIs(t, err, shared.ErrCheckInNotActive)
	assert.Equal(t, StatusCompleted, c.Status)
}

func TestCheckIn_FalseAlarm(t *testing.T) {
	now := time.Now()
	c, err := NewCheckIn("ci-1", "owner-1", time.Hour, []string{"f1"}, now)
	require.NoError(t, err)

	// Not reachable from active.
	assert.ErrorIs(t, c.FalseAlarm(now), shared.ErrStateTransition)

	require.NoError(t, c.Escalate(now.Add(time.Hour)))
	require.NoError(t, c.FalseAlarm(now.Add(2*time.Hour)))
	assert.Equal(t, StatusFalseAlarm, c.Status)

	// Repeat correction is a no-op success.
	assert.NoError(t, c.FalseAlarm(now.Add(3*time.Hour)))

	// AlertedAt survives the correction: the alert did happen.
	assert.NotNil(t, c.AlertedAt)
}

func TestCheckIn_IsOverdue(t *testing.T) {
	now := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)
	c, err := NewCheckIn("ci-1", "owner-1", time.Hour, []string{"f1"}, now)
	require.NoError(t, err)

	assert.False(t, c.IsOverdue(now))
	assert.False(t, c.IsOverdue(now.Add(59*time.Minute)))
	assert.True(t, c.IsOverdue(now.Add(time.Hour))) // deadline itself counts
	assert.True(t, c.IsOverdue(now.Add(2*time.Hour)))

	require.NoError(t, c.Complete(now.Add(30*time.Minute)))
	assert.False(t, c.IsOverdue(now.Add(2*time.Hour)))
}

func TestCheckIn_Validate(t *testing.T) {
	now := time.Now()

	valid, err := NewCheckIn("ci-1", "owner-1", time.Hour, []string{"f1"}, now)
	require.NoError(t, err)
	assert.NoError(t, valid.Validate())

	t.Run("both timestamps set", func(t *testing.T) {
		c := *valid
		ts := now
		c.Status = StatusCompleted
		c.CompletedAt = &ts
		c.AlertedAt = &ts
		assert.ErrorIs(t, c.Validate(), shared.ErrInvalidEntity)
	})

	t.Run("completed timestamp without status", func(t *testing.T) {
		c := *valid
		ts := now
		c.CompletedAt = &ts
		assert.ErrorIs(t, c.Validate(), shared.ErrInvalidEntity)
	})

	t.Run("alerted timestamp allowed for false alarm", func(t *testing.T) {
		c := *valid
		ts := now
		c.Status = StatusFalseAlarm
		c.AlertedAt = &ts
		assert.NoError(t, c.Validate())
	})

	t.Run("unknown status", func(t *testing.T) {
		c := *valid
		c.Status = Status("paused")
		assert.ErrorIs(t, c.Validate(), shared.ErrInvalidState)
	})

	t.Run("empty circle", func(t *testing.T) {
		c := *valid
		c.CircleUserIDs = nil
		assert.ErrorIs(t, c.Validate(), shared.ErrEmptyCircle)
	})
}
