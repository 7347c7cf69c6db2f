package command

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/safecircle-app/safecircle/internal/domain/bestie"
	"github.com/safecircle-app/safecircle/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD INTERACTION COMMAND
// Appends an engagement event (reaction, comment) between two users.
// Append-only: nothing downstream ever mutates these rows.
// ══════════════════════════════════════════════════════════════════════════════

// RecordInteractionCommand appends one interaction.
type RecordInteractionCommand struct {
	// CallerID is the verified caller; the interaction source.
	CallerID string

	// ToUserID is the interaction target.
	ToUserID string

	// Kind is "reaction" or "comment".
	Kind bestie.InteractionKind
}

// Validate validates the command.
func (c RecordInteractionCommand) Validate() error {
	if c.CallerID == "" {
		return validationErr("record_interaction: caller_id is required")
	}
	if c.ToUserID == "" {
		return validationErr("record_interaction: to_user_id is required")
	}
	if c.CallerID == c.ToUserID {
		return shared.ErrInvalidInput
	}
	if !c.Kind.IsValid() {
		return shared.ErrInvalidInput
	}
	return nil
}

// RecordInteractionResult contains the appended interaction ID.
type RecordInteractionResult struct {
	InteractionID string
}

// RecordInteractionHandler handles interaction recording.
type RecordInteractionHandler struct {
	interactions bestie.InteractionRepository
	publisher    shared.EventPublisher
	logger       *slog.Logger
	now          func() time.Time
}

// NewRecordInteractionHandler creates the handler.
func NewRecordInteractionHandler(interactions bestie.InteractionRepository, publisher shared.EventPublisher, logger *slog.Logger) *RecordInteractionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordInteractionHandler{
		interactions: interactions,
		publisher:    publisher,
		logger:       logger.With("command", "record_interaction"),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the handler clock. Tests only.
func (h *RecordInteractionHandler) WithClock(now func() time.Time) *RecordInteractionHandler {
	h.now = now
	return h
}

// Handle executes the command.
func (h *RecordInteractionHandler) Handle(ctx context.Context, cmd RecordInteractionCommand) (*RecordInteractionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	i, err := bestie.NewInteraction(uuid.New().String(), cmd.CallerID, cmd.ToUserID, cmd.Kind, h.now())
	if err != nil {
		return nil, err
	}
	if err := h.interactions.Append(ctx, i); err != nil {
		return nil, err
	}

	if err := h.publisher.Publish(shared.NewInteractionRecordedEvent(i.ID, i.FromUserID, i.ToUserID, string(i.Kind))); err != nil {
		h.logger.Warn("failed to publish interaction.recorded",
			"interaction_id", i.ID, "error", err)
	}

	h.logger.Debug("interaction recorded",
		"interaction_id", i.ID, "from", i.FromUserID, "to", i.ToUserID, "kind", i.Kind)
	return &RecordInteractionResult{InteractionID: i.ID}, nil
}
