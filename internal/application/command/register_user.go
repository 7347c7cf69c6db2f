package command

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/safecircle-app/safecircle/internal/domain/shared"
	"github.com/safecircle-app/safecircle/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// REGISTER USER COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// AnalyticsRegistrar records a first-time registration in the global
// aggregate counters. Implemented by the stats engine.
type AnalyticsRegistrar interface {
	RegisterUser(ctx context.Context, userID string) error
}

// RegisterUserCommand creates a user with zeroed derived state.
type RegisterUserCommand struct {
	// UserID is the external identity; generated when empty.
	UserID string

	DisplayName string
	PushToken   string

	// KeepForever opts the user out of the data-retention sweep.
	KeepForever bool

	// PremiumPlan is carried through from the billing provider.
	PremiumPlan bool
}

// Validate validates the command.
func (c RegisterUserCommand) Validate() error {
	if c.DisplayName == "" {
		return validationErr("register_user: display_name is required")
	}
	return nil
}

// RegisterUserResult contains the created user ID.
type RegisterUserResult struct {
	UserID string
}

// RegisterUserHandler handles user registration.
type RegisterUserHandler struct {
	users     user.Repository
	registrar AnalyticsRegistrar
	logger    *slog.Logger
	now       func() time.Time
}

// NewRegisterUserHandler creates the handler.
func NewRegisterUserHandler(users user.Repository, registrar AnalyticsRegistrar, logger *slog.Logger) *RegisterUserHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RegisterUserHandler{
		users:     users,
		registrar: registrar,
		logger:    logger.With("command", "register_user"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the handler clock. Tests only.
func (h *RegisterUserHandler) WithClock(now func() time.Time) *RegisterUserHandler {
	h.now = now
	return h
}

// Handle executes the command. Re-registering an existing ID returns
// ErrUserAlreadyExists without touching aggregates.
func (h *RegisterUserHandler) Handle(ctx context.Context, cmd RegisterUserCommand) (*RegisterUserResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	id := cmd.UserID
	if id == "" {
		id = uuid.New().String()
	}

	u, err := user.NewUser(id, cmd.DisplayName, h.now())
	if err != nil {
		return nil, err
	}
	u.PushToken = cmd.PushToken
	u.KeepForever = cmd.KeepForever
	u.PremiumPlan = cmd.PremiumPlan

	if err := h.users.Create(ctx, u); err != nil {
		if shared.IsAlreadyExists(err) {
			return nil, shared.ErrUserAlreadyExists
		}
		return nil, err
	}

	if err := h.registrar.RegisterUser(ctx, u.ID); err != nil {
		// The user row exists; the aggregate is healed by the next rebuild.
		h.logger.Warn("failed to record registration in aggregates",
			"user_id", u.ID, "error", err)
	}

	h.logger.Info("user registered", "user_id", u.ID)
	return &RegisterUserResult{UserID: u.ID}, nil
}
