// Package notify implements the outbound push gateway client.
// Deliveries go through a retrier and a circuit breaker: transient gateway
// failures are retried with backoff, a dead gateway trips the breaker so
// sweeps fail fast instead of stalling on timeouts.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/safecircle-app/safecircle/internal/domain/notification"
	"github.com/safecircle-app/safecircle/internal/domain/shared"
	"github.com/safecircle-app/safecircle/internal/domain/user"
	"github.com/safecircle-app/safecircle/pkg/circuitbreaker"
	"github.com/safecircle-app/safecircle/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds push gateway client configuration.
type Config struct {
	// BaseURL is the gateway endpoint, e.g. "https://push.example.com".
	BaseURL string

	// APIKey authenticates this service to the gateway.
	APIKey string

	// RequestTimeout bounds a single delivery attempt.
	RequestTimeout time.Duration

	// MaxAttempts is the number of delivery attempts per message.
	MaxAttempts int

	// FailureThreshold is the consecutive-failure count that opens the
	// breaker.
	FailureThreshold int

	// BreakerTimeout is how long the breaker stays open before probing.
	BreakerTimeout time.Duration
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		RequestTimeout:   10 * time.Second,
		MaxAttempts:      3,
		FailureThreshold: 5,
		BreakerTimeout:   30 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// GATEWAY CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// pushRequest is the gateway wire payload.
type pushRequest struct {
	Token     string `json:"token"`
	Kind      string `json:"kind"`
	Body      string `json:"body"`
	Reference string `json:"reference,omitempty"`
}

// Gateway implements notification.Sender against an HTTP push gateway.
// It resolves the recipient's device token itself so callers only deal in
// user IDs.
type Gateway struct {
	config  Config
	users   user.Repository
	client  *http.Client
	retrier *retry.Retrier
	breaker *circuitbreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewGateway creates a new push gateway client.
func NewGateway(cfg Config, users user.Repository, logger *slog.Logger) *Gateway {
	g := &Gateway{
		config: cfg,
		users:  users,
		client: &http.Client{Timeout: cfg.RequestTimeout},
		logger: logger,
	}
	g.retrier = retry.New(
		retry.WithMaxAttempts(cfg.MaxAttempts),
		retry.WithInitialDelay(200*time.Millisecond),
		retry.WithMaxDelay(5*time.Second),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			logger.Debug("push delivery retry",
				"attempt", attempt, "delay", delay, "error", err)
		}),
	)
	g.breaker = circuitbreaker.New("push-gateway",
		circuitbreaker.WithFailureThreshold(cfg.FailureThreshold),
		circuitbreaker.WithTimeout(cfg.BreakerTimeout),
		circuitbreaker.WithIsFailure(func(err error) bool {
			// A revoked token is the recipient's problem, not the
			// gateway's. It must not open the breaker.
			return !errors.Is(err, shared.ErrInvalidPushToken)
		}),
		circuitbreaker.WithOnStateChange(func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		}),
	)
	return g
}

// Send delivers one message to one user. Returns
// shared.ErrInvalidPushToken when the device token is missing or revoked,
// so callers can clear it.
func (g *Gateway) Send(ctx context.Context, userID string, msg notification.Message) error {
	u, err := g.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolve recipient: %w", err)
	}
	if u.PushToken == "" {
		return shared.ErrInvalidPushToken
	}

	payload, err := json.Marshal(pushRequest{
		Token:     u.PushToken,
		Kind:      string(msg.Kind),
		Body:      msg.Body,
		Reference: msg.Reference,
	})
	if err != nil {
		return fmt.Errorf("encode push payload: %w", err)
	}

	return g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.retrier.Do(ctx, func(ctx context.Context) error {
			return g.deliver(ctx, payload)
		})
	})
}

// deliver performs one HTTP attempt, classifying the outcome for the
// retrier.
func (g *Gateway) deliver(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.config.BaseURL+"/v1/push", bytes.NewReader(payload))
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.config.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		// Network errors and timeouts are worth another attempt.
		return retry.Retryable(err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
		// The gateway no longer knows this token.
		return retry.Permanent(shared.ErrInvalidPushToken)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return retry.Retryable(fmt.Errorf("push gateway returned %d", resp.StatusCode))
	default:
		return retry.Permanent(fmt.Errorf("push gateway returned %d", resp.StatusCode))
	}
}

// BreakerState exposes the breaker state for health endpoints.
func (g *Gateway) BreakerState() circuitbreaker.State {
	return g.breaker.State()
}
