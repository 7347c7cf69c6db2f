// Package command contains write operations (CQRS - Commands).
// Commands perform the authoritative lifecycle transitions and publish the
// resulting domain events; they never write derived counters - that belongs
// exclusively to the stats engine behind the event bus.
package command

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/safecircle-app/safecircle/internal/domain/checkin"
	"github.com/safecircle-app/safecircle/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREATE CHECK-IN COMMAND
// Starts a time-boxed check-in: deadline = now + duration, with a snapshot
// of the circle to alert if the deadline is missed.
// ══════════════════════════════════════════════════════════════════════════════

// CreateCheckInCommand contains the data to start a check-in.
type CreateCheckInCommand struct {
	// CallerID is the verified caller; becomes the check-in owner.
	CallerID string

	// Duration is the check-in window.
	Duration time.Duration

	// CircleUserIDs is who to alert on escalation. Snapshotted at create
	// time; later circle edits do not affect a running check-in.
	CircleUserIDs []string

	// Note is an optional message shown to the circle on alert.
	Note string

	// PhotoPath is the optional object-storage path of an attached photo.
	PhotoPath string
}

// Validate validates the command. Rejected commands have zero side effects.
func (c CreateCheckInCommand) Validate() error {
	if c.CallerID == "" {
		return validationErr("create_checkin: caller_id is required")
	}
	if c.Duration < checkin.MinDuration || c.Duration > checkin.MaxDuration {
		return shared.ErrInvalidDuration
	}
	if len(c.CircleUserIDs) == 0 {
		return shared.ErrEmptyCircle
	}
	return nil
}

// CreateCheckInResult contains the result of starting a check-in.
type CreateCheckInResult struct {
	CheckInID string
	AlertTime time.Time
}

// CreateCheckInHandler handles check-in creation.
type CreateCheckInHandler struct {
	checkins  checkin.Repository
	publisher shared.EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewCreateCheckInHandler creates the handler.
func NewCreateCheckInHandler(checkins checkin.Repository, publisher shared.EventPublisher, logger *slog.Logger) *CreateCheckInHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CreateCheckInHandler{
		checkins:  checkins,
		publisher: publisher,
		logger:    logger.With("command", "create_checkin"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the handler clock. Tests only.
func (h *CreateCheckInHandler) WithClock(now func() time.Time) *CreateCheckInHandler {
	h.now = now
	return h
}

// Handle executes the command.
func (h *CreateCheckInHandler) Handle(ctx context.Context, cmd CreateCheckInCommand) (*CreateCheckInResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	now := h.now()
	c, err := checkin.NewCheckIn(uuid.New().String(), cmd.CallerID, cmd.Duration, cmd.CircleUserIDs, now)
	if err != nil {
		return nil, err
	}
	c.Note = cmd.Note
	c.PhotoPath = cmd.PhotoPath

	if err := h.checkins.Create(ctx, c); err != nil {
		return nil, err
	}

	if err := h.publisher.Publish(shared.NewCheckInCreatedEvent(c.ID, c.OwnerID)); err != nil {
		// The row is durable; a dropped event is healed by reconciliation.
		h.logger.Warn("failed to publish checkin.created",
			"checkin_id", c.ID, "error", err)
	}

	h.logger.Info("check-in created",
		"checkin_id", c.ID,
		"owner_id", c.OwnerID,
		"alert_time", c.AlertTime,
		"circle_size", len(c.CircleUserIDs),
	)
	return &CreateCheckInResult{CheckInID: c.ID, AlertTime: c.AlertTime}, nil
}
