package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/safecircle-app/safecircle/internal/domain/bestie"
	"github.com/safecircle-app/safecircle/internal/domain/notification"
	"github.com/safecircle-app/safecircle/internal/domain/shared"
	"github.com/safecircle-app/safecircle/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// BESTIE COMMANDS
// Request / accept / decline / remove. The conditional UpdateStatus write is
// what makes a doubly-delivered accept count once; the stats engine applies
// counters and edges from the published event.
// ══════════════════════════════════════════════════════════════════════════════

// RequestBestieCommand creates a pending bestie request.
type RequestBestieCommand struct {
	// CallerID is the verified caller; becomes the requester.
	CallerID string

	// RecipientID is who receives the request.
	RecipientID string
}

// Validate validates the command.
func (c RequestBestieCommand) Validate() error {
	if c.CallerID == "" {
		return validationErr("bestie: caller_id is required")
	}
	if c.RecipientID == "" {
		return validationErr("bestie: recipient_id is required")
	}
	if c.CallerID == c.RecipientID {
		return shared.ErrSelfBestie
	}
	return nil
}

// RespondBestieCommand accepts or declines a pending request, or removes an
// accepted relationship, depending on which handler receives it.
type RespondBestieCommand struct {
	// CallerID is the verified caller.
	CallerID string

	// RelationshipID identifies the relationship.
	RelationshipID string
}

// Validate validates the command.
func (c RespondBestieCommand) Validate() error {
	if c.CallerID == "" {
		return validationErr("bestie: caller_id is required")
	}
	if c.RelationshipID == "" {
		return validationErr("bestie: relationship_id is required")
	}
	return nil
}

// BestieResult contains the outcome of a bestie command.
type BestieResult struct {
	RelationshipID string
	Status         bestie.Status

	// Applied is true when this call performed the transition; false on an
	// idempotent repeat.
	Applied bool
}

// BestieHandler handles the bestie relationship lifecycle.
type BestieHandler struct {
	besties   bestie.Repository
	users     user.Repository
	sender    notification.Sender
	publisher shared.EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewBestieHandler creates the handler.
func NewBestieHandler(besties bestie.Repository, users user.Repository, sender notification.Sender, publisher shared.EventPublisher, logger *slog.Logger) *BestieHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BestieHandler{
		besties:   besties,
		users:     users,
		sender:    sender,
		publisher: publisher,
		logger:    logger.With("command", "bestie"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the handler clock. Tests only.
func (h *BestieHandler) WithClock(now func() time.Time) *BestieHandler {
	h.now = now
	return h
}

// Request creates a pending bestie request and notifies the recipient.
func (h *BestieHandler) Request(ctx context.Context, cmd RequestBestieCommand) (*BestieResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	// Both parties must exist; a dangling edge can never be repaired by
	// reconciliation because there is no user row to recount against.
	if _, err := h.users.GetByID(ctx, cmd.RecipientID); err != nil {
		return nil, err
	}

	r, err := bestie.NewRelationship(uuid.New().String(), cmd.CallerID, cmd.RecipientID, h.now())
	if err != nil {
		return nil, err
	}
	if err := h.besties.Create(ctx, r); err != nil {
		if shared.IsAlreadyExists(err) {
			// Surface the live relationship instead of a bare conflict.
			if existing, lookupErr := h.besties.GetByPair(ctx, cmd.CallerID, cmd.RecipientID); lookupErr == nil {
				return &BestieResult{RelationshipID: existing.ID, Status: existing.Status, Applied: false}, nil
			}
		}
		return nil, err
	}

	if err := h.publisher.Publish(shared.NewBestieChangedEvent(
		shared.EventBestieRequested, r.ID, r.RequesterID, r.RecipientID,
		"", bestie.StatusPending.String(),
	)); err != nil {
		h.logger.Warn("failed to publish bestie.requested", "relationship_id", r.ID, "error", err)
	}

	if err := h.sender.Send(ctx, r.RecipientID, notification.Message{
		Kind:      notification.KindBestie,
		Body:      "You have a new bestie request.",
		Reference: fmt.Sprintf("bestie_request:%s", r.ID),
	}); err != nil {
		h.logger.Warn("bestie request notification failed",
			"relationship_id", r.ID, "user_id", r.RecipientID, "error", err)
	}

	h.logger.Info("bestie requested",
		"relationship_id", r.ID, "requester_id", r.RequesterID, "recipient_id", r.RecipientID)
	return &BestieResult{RelationshipID: r.ID, Status: r.Status, Applied: true}, nil
}

// Accept transitions a pending request to accepted.
func (h *BestieHandler) Accept(ctx context.Context, cmd RespondBestieCommand) (*BestieResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	r, err := h.besties.GetByID(ctx, cmd.RelationshipID)
	if err != nil {
		return nil, err
	}
	// Domain-level authorization and state check before touching storage.
	if err := r.Accept(cmd.CallerID, h.now()); err != nil {
		return nil, err
	}

	r, applied, err := h.besties.UpdateStatus(ctx, cmd.RelationshipID, bestie.StatusPending, bestie.StatusAccepted, h.now())
	if err != nil {
		return nil, err
	}
	if !applied {
		if r.Status == bestie.StatusAccepted {
			// Concurrent or repeated accept; the first one counted.
			return &BestieResult{RelationshipID: r.ID, Status: r.Status, Applied: false}, nil
		}
		return nil, shared.ErrBestieNotPending
	}

	if err := h.publisher.Publish(shared.NewBestieChangedEvent(
		shared.EventBestieAccepted, r.ID, r.RequesterID, r.RecipientID,
		bestie.StatusPending.String(), bestie.StatusAccepted.String(),
	)); err != nil {
		h.logger.Warn("failed to publish bestie.accepted", "relationship_id", r.ID, "error", err)
	}

	h.logger.Info("bestie accepted", "relationship_id", r.ID)
	return &BestieResult{RelationshipID: r.ID, Status: r.Status, Applied: true}, nil
}

// Decline transitions a pending request to declined. Declines are terminal
// for the request but leave no edge and no counters behind.
func (h *BestieHandler) Decline(ctx context.Context, cmd RespondBestieCommand) (*BestieResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	r, err := h.besties.GetByID(ctx, cmd.RelationshipID)
	if err != nil {
		return nil, err
	}
	if err := r.Decline(cmd.CallerID, h.now()); err != nil {
		return nil, err
	}

	r, applied, err := h.besties.UpdateStatus(ctx, cmd.RelationshipID, bestie.StatusPending, bestie.StatusDeclined, h.now())
	if err != nil {
		return nil, err
	}
	if !applied && r.Status != bestie.StatusDeclined {
		return nil, shared.ErrBestieNotPending
	}

	if applied {
		if err := h.publisher.Publish(shared.NewBestieChangedEvent(
			shared.EventBestieDeclined, r.ID, r.RequesterID, r.RecipientID,
			bestie.StatusPending.String(), bestie.StatusDeclined.String(),
		)); err != nil {
			h.logger.Warn("failed to publish bestie.declined", "relationship_id", r.ID, "error", err)
		}
		h.logger.Info("bestie declined", "relationship_id", r.ID)
	}
	return &BestieResult{RelationshipID: r.ID, Status: r.Status, Applied: applied}, nil
}

// Remove deletes an accepted relationship. Either party may remove; the
// published event drives the symmetric edge and counter removal.
func (h *BestieHandler) Remove(ctx context.Context, cmd RespondBestieCommand) (*BestieResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	r, err := h.besties.GetByID(ctx, cmd.RelationshipID)
	if err != nil {
		return nil, err
	}
	if !r.InvolvesUser(cmd.CallerID) {
		return nil, shared.ErrBestieNotParty
	}
	if r.Status != bestie.StatusAccepted {
		return nil, shared.ErrBestieNotPending
	}

	if err := h.besties.Delete(ctx, r.ID); err != nil {
		if shared.IsNotFound(err) {
			// The other party removed it first.
			return &BestieResult{RelationshipID: r.ID, Status: r.Status, Applied: false}, nil
		}
		return nil, err
	}

	if err := h.publisher.Publish(shared.NewBestieChangedEvent(
		shared.EventBestieRemoved, r.ID, r.RequesterID, r.RecipientID,
		bestie.StatusAccepted.String(), "removed",
	)); err != nil {
		h.logger.Warn("failed to publish bestie.removed", "relationship_id", r.ID, "error", err)
	}

	h.logger.Info("bestie removed", "relationship_id", r.ID, "caller_id", cmd.CallerID)
	return &BestieResult{RelationshipID: r.ID, Status: r.Status, Applied: true}, nil
}
