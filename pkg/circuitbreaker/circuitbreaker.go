// Package circuitbreaker sheds load from failing dependencies. The push
// gateway is the main customer: when it goes down, alert delivery should
// fail fast and fall back to logging instead of stacking timeouts.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the breaker's position.
type State int

const (
	// StateClosed passes all requests through.
	StateClosed State = iota
	// StateOpen rejects everything until the timeout elapses.
	StateOpen
	// StateHalfOpen lets a bounded number of probes test recovery.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen is returned while the breaker rejects requests.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned when the half-open probe budget is
	// already spent.
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config tunes the breaker.
type Config struct {
	// Name labels the breaker in logs and callbacks.
	Name string

	// FailureThreshold is the consecutive-failure count that opens the
	// circuit.
	FailureThreshold int

	// SuccessThreshold is the consecutive-success count that closes a
	// half-open circuit.
	SuccessThreshold int

	// Timeout is how long an open circuit waits before probing.
	Timeout time.Duration

	// MaxHalfOpenRequests bounds concurrent probes while half-open.
	MaxHalfOpenRequests int

	// OnStateChange fires on every transition.
	OnStateChange func(name string, from, to State)

	// IsFailure decides which errors count against the breaker. When nil,
	// every non-nil error counts.
	IsFailure func(error) bool
}

// DefaultConfig returns the baseline: open after 5 consecutive failures,
// probe after 30s, close after 2 probe successes.
func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		FailureThreshold:    5,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		MaxHalfOpenRequests: 1,
	}
}

// Option mutates a Config. Invalid values are ignored.
type Option func(*Config)

func WithFailureThreshold(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.FailureThreshold = n
		}
	}
}

func WithSuccessThreshold(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.SuccessThreshold = n
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.Timeout = d
		}
	}
}

func WithMaxHalfOpenRequests(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxHalfOpenRequests = n
		}
	}
}

func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(c *Config) { c.OnStateChange = fn }
}

func WithIsFailure(fn func(error) bool) Option {
	return func(c *Config) { c.IsFailure = fn }
}

// ══════════════════════════════════════════════════════════════════════════════
// BREAKER
// ══════════════════════════════════════════════════════════════════════════════

// Counts is a point-in-time view of the breaker's tallies.
type Counts struct {
	Requests             int
	TotalSuccesses       int
	TotalFailures        int
	ConsecutiveSuccesses int
	ConsecutiveFailures  int
}

// CircuitBreaker guards calls to one dependency.
type CircuitBreaker struct {
	config Config

	mu               sync.Mutex
	state            State
	counts           Counts
	lastFailureTime  time.Time
	halfOpenRequests int
}

// New builds a breaker in the closed state.
func New(name string, opts ...Option) *CircuitBreaker {
	cfg := DefaultConfig(name)
	for _, opt := range opts {
		opt(&cfg)
	}
	return &CircuitBreaker{config: cfg, state: StateClosed}
}

// Execute runs fn if the circuit admits the request and records the outcome.
// The fn error passes through unchanged; rejection errors are ErrCircuitOpen
// and ErrTooManyRequests.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.record(err)
	return err
}

// ExecuteWithFallback substitutes fallback only when the breaker itself
// rejected the request. Errors from fn are never swallowed.
func (cb *CircuitBreaker) ExecuteWithFallback(ctx context.Context, fn func(context.Context) error, fallback func(error) error) error {
	err := cb.Execute(ctx, fn)
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyRequests) {
		return fallback(err)
	}
	return err
}

// admit decides whether the request may proceed, transitioning open to
// half-open when the timeout has elapsed.
func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil

	case StateOpen:
		if time.Since(cb.lastFailureTime) >= cb.config.Timeout {
			cb.setState(StateHalfOpen)
			// This request is the first probe.
			cb.halfOpenRequests = 1
			return nil
		}
		return ErrCircuitOpen

	case StateHalfOpen:
		if cb.halfOpenRequests < cb.config.MaxHalfOpenRequests {
			cb.halfOpenRequests++
			return nil
		}
		return ErrTooManyRequests

	default:
		return ErrCircuitOpen
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.counts.Requests++

	failed := err != nil
	if failed && cb.config.IsFailure != nil {
		failed = cb.config.IsFailure(err)
	}
	if failed {
		cb.onFailure()
	} else {
		cb.onSuccess()
	}
}

func (cb *CircuitBreaker) onSuccess() {
	cb.counts.TotalSuccesses++
	cb.counts.ConsecutiveSuccesses++
	cb.counts.ConsecutiveFailures = 0

	if cb.state == StateHalfOpen && cb.counts.ConsecutiveSuccesses >= cb.config.SuccessThreshold {
		cb.setState(StateClosed)
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.counts.TotalFailures++
	cb.counts.ConsecutiveFailures++
	cb.counts.ConsecutiveSuccesses = 0
	cb.lastFailureTime = time.Now()

	switch cb.state {
	case StateClosed:
		if cb.counts.ConsecutiveFailures >= cb.config.FailureThreshold {
			cb.setState(StateOpen)
		}
	case StateHalfOpen:
		// One failed probe is enough evidence.
		cb.setState(StateOpen)
	}
}

// setState transitions and resets the consecutive tallies. Caller holds the
// lock.
func (cb *CircuitBreaker) setState(next State) {
	if cb.state == next {
		return
	}
	prev := cb.state
	cb.state = next

	cb.counts.ConsecutiveSuccesses = 0
	cb.counts.ConsecutiveFailures = 0
	cb.halfOpenRequests = 0

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.config.Name, prev, next)
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Counts returns the current tallies.
func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts
}

// Reset forces the breaker back to closed with zeroed tallies.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.counts = Counts{}
	cb.halfOpenRequests = 0
}

// Name returns the breaker's label.
func (cb *CircuitBreaker) Name() string { return cb.config.Name }

// IsOpen reports whether the circuit currently rejects requests.
func (cb *CircuitBreaker) IsOpen() bool { return cb.State() == StateOpen }

// IsClosed reports whether the circuit passes requests through.
func (cb *CircuitBreaker) IsClosed() bool { return cb.State() == StateClosed }

// ══════════════════════════════════════════════════════════════════════════════
// PRESET BREAKERS
// ══════════════════════════════════════════════════════════════════════════════

// GatewayBreaker guards the push gateway. Trips fast: an unreachable
// gateway must not delay escalation sweeps.
func GatewayBreaker(onStateChange func(name string, from, to State)) *CircuitBreaker {
	return New(
		"push-gateway",
		WithFailureThreshold(3),
		WithSuccessThreshold(2),
		WithTimeout(60*time.Second),
		WithMaxHalfOpenRequests(1),
		WithOnStateChange(onStateChange),
	)
}

// StorageBreaker guards object storage, which tolerates more probing.
func StorageBreaker(onStateChange func(name string, from, to State)) *CircuitBreaker {
	return New(
		"object-storage",
		WithFailureThreshold(5),
		WithSuccessThreshold(1),
		WithTimeout(30*time.Second),
		WithMaxHalfOpenRequests(2),
		WithOnStateChange(onStateChange),
	)
}

// DatabaseBreaker guards database operations with a short recovery window.
func DatabaseBreaker(onStateChange func(name string, from, to State)) *CircuitBreaker {
	return New(
		"database",
		WithFailureThreshold(3),
		WithSuccessThreshold(1),
		WithTimeout(10*time.Second),
		WithMaxHalfOpenRequests(1),
		WithOnStateChange(onStateChange),
	)
}
