package eventhandler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/safecircle-app/safecircle/internal/application/stats"
	"github.com/safecircle-app/safecircle/internal/domain/bestie"
	"github.com/safecircle-app/safecircle/internal/domain/notification"
	"github.com/safecircle-app/safecircle/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON BESTIE CHANGED HANDLER
//
// Sole writer path for bestie-derived counters and edges. Also notifies the
// requester on acceptance; a failed notification never fails the handler -
// the counter effects are what must stick.
// ═══════════════════════════════════════════════════════════════════════════

// OnBestieChangedHandler feeds relationship changes into the stats engine.
type OnBestieChangedHandler struct {
	engine *stats.Engine
	sender notification.Sender
	logger *slog.Logger
}

// NewOnBestieChangedHandler creates the handler. sender may be nil in
// worker configurations without a gateway.
func NewOnBestieChangedHandler(engine *stats.Engine, sender notification.Sender, logger *slog.Logger) *OnBestieChangedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnBestieChangedHandler{
		engine: engine,
		sender: sender,
		logger: logger.With("handler", "on_bestie_changed"),
	}
}

// EventTypes returns the event types this handler subscribes to.
func (h *OnBestieChangedHandler) EventTypes() []shared.EventType {
	return []shared.EventType{
		shared.EventBestieAccepted,
		shared.EventBestieRemoved,
	}
}

// Handle implements shared.EventHandler.
func (h *OnBestieChangedHandler) Handle(event shared.Event) error {
	ctx := context.Background()

	changeEvent, ok := event.(shared.BestieChangedEvent)
	if !ok {
		h.logger.Warn("received non-BestieChangedEvent",
			"event_type", event.EventType(),
		)
		return nil
	}

	err := h.engine.ApplyBestieTransition(
		ctx,
		changeEvent.RelationshipID,
		changeEvent.RequesterID,
		changeEvent.RecipientID,
		bestie.Status(changeEvent.FromStatus),
		bestie.Status(changeEvent.ToStatus),
	)
	if err != nil {
		return fmt.Errorf("apply bestie transition for %s: %w", changeEvent.RelationshipID, err)
	}

	if event.EventType() == shared.EventBestieAccepted && h.sender != nil {
		msg := notification.Message{
			Kind:      notification.KindBestie,
			Body:      "Your bestie request was accepted",
			Reference: changeEvent.RelationshipID,
		}
		if err := h.sender.Send(ctx, changeEvent.RequesterID, msg); err != nil {
			h.logger.Warn("bestie acceptance notification failed",
				"relationship_id", changeEvent.RelationshipID,
				"user_id", changeEvent.RequesterID,
				"error", err,
			)
		}
	}
	return nil
}
