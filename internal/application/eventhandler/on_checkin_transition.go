// Package eventhandler contains the reactive handlers subscribed to domain
// events. Handlers fire at-least-once and unordered; each one is idempotent
// by construction.
package eventhandler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/safecircle-app/safecircle/internal/application/stats"
	"github.com/safecircle-app/safecircle/internal/domain/checkin"
	"github.com/safecircle-app/safecircle/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON CHECK-IN TRANSITION HANDLER
//
// This is the ONE designated writer path for check-in derived counters.
// The commands that perform the transitions publish the event and return;
// they never touch a counter themselves. Adding a second subscriber that
// writes the same fields reintroduces the double-increment bug this
// architecture exists to prevent.
// ═══════════════════════════════════════════════════════════════════════════

// OnCheckInTransitionHandler feeds authoritative check-in transitions into
// the stats engine.
type OnCheckInTransitionHandler struct {
	engine *stats.Engine
	logger *slog.Logger
}

// NewOnCheckInTransitionHandler creates the handler.
func NewOnCheckInTransitionHandler(engine *stats.Engine, logger *slog.Logger) *OnCheckInTransitionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnCheckInTransitionHandler{
		engine: engine,
		logger: logger.With("handler", "on_checkin_transition"),
	}
}

// EventTypes returns the event types this handler subscribes to.
func (h *OnCheckInTransitionHandler) EventTypes() []shared.EventType {
	return []shared.EventType{
		shared.EventCheckInCreated,
		shared.EventCheckInCompleted,
		shared.EventCheckInAlerted,
		shared.EventCheckInFalseAlarm,
	}
}

// Handle implements shared.EventHandler.
func (h *OnCheckInTransitionHandler) Handle(event shared.Event) error {
	ctx := context.Background()

	transEvent, ok := event.(shared.CheckInTransitionEvent)
	if !ok {
		h.logger.Warn("received non-CheckInTransitionEvent",
			"event_type", event.EventType(),
		)
		return nil
	}

	t := stats.Transition{
		From: checkin.Status(transEvent.FromStatus),
		To:   checkin.Status(transEvent.ToStatus),
	}

	h.logger.Debug("processing check-in transition",
		"checkin_id", transEvent.CheckInID,
		"owner_id", transEvent.OwnerID,
		"transition", t.Key(),
	)

	if err := h.engine.ApplyCheckInTransition(ctx, transEvent.CheckInID, transEvent.OwnerID, t); err != nil {
		// The lifecycle transition is authoritative and already durable;
		// returning the error lets the bus retry this derived update.
		return fmt.Errorf("apply transition %s for %s: %w", t.Key(), transEvent.CheckInID, err)
	}
	return nil
}
