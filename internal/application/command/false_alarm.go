package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/safecircle-app/safecircle/internal/domain/checkin"
	"github.com/safecircle-app/safecircle/internal/domain/notification"
	"github.com/safecircle-app/safecircle/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// FALSE ALARM COMMAND
// Corrects an escalated check-in: the owner surfaced after the alert went
// out. The circle that was alerted gets an all-clear.
// ══════════════════════════════════════════════════════════════════════════════

// FalseAlarmCommand downgrades an alerted check-in to a false alarm.
type FalseAlarmCommand struct {
	// CallerID is the verified caller. Must be the check-in owner.
	CallerID string

	// CheckInID identifies the check-in to correct.
	CheckInID string
}

// Validate validates the command.
func (c FalseAlarmCommand) Validate() error {
	if c.CallerID == "" {
		return validationErr("false_alarm: caller_id is required")
	}
	if c.CheckInID == "" {
		return validationErr("false_alarm: checkin_id is required")
	}
	return nil
}

// FalseAlarmResult contains the result of the correction.
type FalseAlarmResult struct {
	Applied  bool
	Status   checkin.Status
	Notified int
}

// FalseAlarmHandler handles false alarm corrections.
type FalseAlarmHandler struct {
	checkins  checkin.Repository
	sender    notification.Sender
	publisher shared.EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewFalseAlarmHandler creates the handler.
func NewFalseAlarmHandler(checkins checkin.Repository, sender notification.Sender, publisher shared.EventPublisher, logger *slog.Logger) *FalseAlarmHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FalseAlarmHandler{
		checkins:  checkins,
		sender:    sender,
		publisher: publisher,
		logger:    logger.With("command", "false_alarm"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the handler clock. Tests only.
func (h *FalseAlarmHandler) WithClock(now func() time.Time) *FalseAlarmHandler {
	h.now = now
	return h
}

// Handle executes the command.
func (h *FalseAlarmHandler) Handle(ctx context.Context, cmd FalseAlarmCommand) (*FalseAlarmResult, error) {
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

	c, applied, err := h.checkins.MarkFalseAlarm(ctx, cmd.CheckInID, h.now())
	if err != nil {
		return nil, err
	}
	if !applied {
		if c.Status == checkin.StatusFalseAlarm {
			// Already corrected; keep the call idempotent.
			return &FalseAlarmResult{Applied: false, Status: c.Status}, nil
		}
		return nil, shared.ErrCheckInNotActive
	}

	if err := h.publisher.Publish(shared.NewCheckInFalseAlarmEvent(c.ID, c.OwnerID)); err != nil {
		h.logger.Warn("failed to publish checkin.false_alarm",
			"checkin_id", c.ID, "error", err)
	}

	// All-clear fan-out to everyone who received the alert. Individual
	// delivery failures do not fail the correction.
	notified := 0
	msg := notification.Message{
		Kind:      notification.KindFalseAlarm,
		Body:      "False alarm - your friend checked in safely.",
		Reference: fmt.Sprintf("false_alarm:%s", c.ID),
	}
	for _, memberID := range c.CircleUserIDs {
		if err := h.sender.Send(ctx, memberID, msg); err != nil {
			h.logger.Warn("all-clear delivery failed",
				"checkin_id", c.ID, "user_id", memberID, "error", err)
			continue
		}
		notified++
	}

	h.logger.Info("check-in marked false alarm",
		"checkin_id", c.ID, "owner_id", c.OwnerID, "notified", notified)
	return &FalseAlarmResult{Applied: true, Status: c.Status, Notified: notified}, nil
}
