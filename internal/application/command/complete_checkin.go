package command

import (
	"context"
	"log/slog"
	"time"

	"github.com/safecircle-app/safecircle/internal/domain/checkin"
	"github.com/safecircle-app/safecircle/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETE CHECK-IN COMMAND
// "I'm safe". Races against the escalation sweep: the conditional repository
// write decides the winner, and exactly one terminal status results.
// ══════════════════════════════════════════════════════════════════════════════

// CompleteCheckInCommand marks a check-in as safely completed.
type CompleteCheckInCommand struct {
	// CallerID is the verified caller. Must be the check-in owner.
	CallerID string

	// CheckInID identifies the check-in to complete.
	CheckInID string
}

// Validate validates the command.
func (c CompleteCheckInCommand) Validate() error {
	if c.CallerID == "" {
		return validationErr("complete_checkin: caller_id is required")
	}
	if c.CheckInID == "" {
		return validationErr("complete_checkin: checkin_id is required")
	}
	return nil
}

// CompleteCheckInResult contains the result of completing a check-in.
type CompleteCheckInResult struct {
	// Applied is true when this call performed the transition. A repeated
	// complete on an already-completed check-in succeeds with Applied=false.
	Applied bool

	Status      checkin.Status
	CompletedAt *time.Time
}

// CompleteCheckInHandler handles check-in completion.
type CompleteCheckInHandler struct {
	checkins  checkin.Repository
	publisher shared.EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewCompleteCheckInHandler creates the handler.
func NewCompleteCheckInHandler(checkins checkin.Repository, publisher shared.EventPublisher, logger *slog.Logger) *CompleteCheckInHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CompleteCheckInHandler{
		checkins:  checkins,
		publisher: publisher,
		logger:    logger.With("command", "complete_checkin"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the handler clock. Tests only.
func (h *CompleteCheckInHandler) WithClock(now func() time.Time) *CompleteCheckInHandler {
	h.now = now
	return h
}

// Handle executes the command.
func (h *CompleteCheckInHandler) Handle(ctx context.Context, cmd CompleteCheckInCommand) (*CompleteCheckInResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	c, err := h.checkins.GetByID(ctx, cmd.CheckInID)
	if err != nil {
		return nil, err
	}
	if c.OwnerID != cmd.CallerID {
		return nil, shared.ErrCheckInNotOwner
	}

	c, applied, err := h.checkins.CompleteIfActive(ctx, cmd.CheckInID, h.now())
	if err != nil {
		return nil, err
	}

	switch {
	case applied:
		if err := h.publisher.Publish(shared.NewCheckInCompletedEvent(c.ID, c.OwnerID)); err != nil {
			h.logger.Warn("failed to publish checkin.completed",
				"checkin_id", c.ID, "error", err)
		}
		h.logger.Info("check-in completed", "checkin_id", c.ID, "owner_id", c.OwnerID)
	case c.Status == checkin.StatusCompleted:
		// Duplicate tap or client retry. Nothing to do, nothing to count.
	case c.Status == checkin.StatusAlerted:
		// The deadline sweep won the race. The caller must go through the
		// explicit false-alarm flow so the circle is told the alert is over.
		return nil, shared.ErrCheckInAlreadyAlerted
	default:
		return nil, shared.ErrCheckInNotActive
	}

	return &CompleteCheckInResult{
		Applied:     applied,
		Status:      c.Status,
		CompletedAt: c.CompletedAt,
	}, nil
}
