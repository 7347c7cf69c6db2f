// Package retry implements bounded retries with exponential backoff and
// jitter. It backs the outbound calls that are allowed to fail transiently:
// the push gateway and photo storage.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERROR CLASSIFICATION
// ══════════════════════════════════════════════════════════════════════════════

// RetryableError marks an error as worth another attempt.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// PermanentError marks an error as final; no further attempts are made.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Retryable wraps err so the default policy retries it. Nil stays nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// Permanent wraps err so no policy retries it. Nil stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsRetryable reports whether err carries a RetryableError anywhere in its
// chain.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// IsPermanent reports whether err carries a PermanentError anywhere in its
// chain.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config tunes the retry loop.
type Config struct {
	// MaxAttempts counts the first call too; 3 means two retries.
	MaxAttempts int

	// InitialDelay is the pause before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the backoff.
	MaxDelay time.Duration

	// Multiplier grows the delay between attempts.
	Multiplier float64

	// JitterFactor spreads delays by ±factor to avoid thundering herds.
	// 0 disables jitter.
	JitterFactor float64

	// RetryIf overrides the default policy. When nil, only errors wrapped
	// with Retryable are retried.
	RetryIf func(error) bool

	// OnRetry fires before each retry sleep, never after the final attempt.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig returns the baseline policy: three attempts, 100ms initial
// delay doubling up to 30s, 10% jitter.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// Option mutates a Config. Invalid values are ignored rather than clamped.
type Option func(*Config)

func WithMaxAttempts(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxAttempts = n
		}
	}
}

func WithInitialDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.InitialDelay = d
		}
	}
}

func WithMaxDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.MaxDelay = d
		}
	}
}

func WithMultiplier(m float64) Option {
	return func(c *Config) {
		if m >= 1.0 {
			c.Multiplier = m
		}
	}
}

func WithJitter(j float64) Option {
	return func(c *Config) {
		if j >= 0 && j <= 1.0 {
			c.JitterFactor = j
		}
	}
}

func WithRetryIf(fn func(error) bool) Option {
	return func(c *Config) { c.RetryIf = fn }
}

func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(c *Config) { c.OnRetry = fn }
}

// ══════════════════════════════════════════════════════════════════════════════
// RETRIER
// ══════════════════════════════════════════════════════════════════════════════

// Retrier runs operations under a fixed retry policy.
type Retrier struct {
	config Config
}

// New builds a Retrier from the default config plus opts.
func New(opts ...Option) *Retrier {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Retrier{config: cfg}
}

// Do runs operation until it succeeds, exhausts the attempt budget, returns
// a non-retryable error, or the context ends. The classification wrappers
// are stripped from the returned error so callers match on the cause.
func (r *Retrier) Do(ctx context.Context, operation func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := operation(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if IsPermanent(err) {
			return errors.Unwrap(err)
		}
		if !r.shouldRetry(err) {
			return err
		}
		if attempt == r.config.MaxAttempts {
			// Budget spent; surface the cause, not the wrapper.
			if IsRetryable(err) {
				return errors.Unwrap(err)
			}
			return err
		}

		delay := r.calculateDelay(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}

		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(delay):
		}
	}

	return lastErr
}

func (r *Retrier) shouldRetry(err error) bool {
	if r.config.RetryIf != nil {
		return r.config.RetryIf(err)
	}
	return IsRetryable(err)
}

// calculateDelay returns initialDelay * multiplier^(attempt-1), capped at
// MaxDelay, spread by ±JitterFactor.
func (r *Retrier) calculateDelay(attempt int) time.Duration {
	delay := float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt-1))
	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}
	if r.config.JitterFactor > 0 {
		delay += delay * r.config.JitterFactor * (rand.Float64()*2 - 1)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// ══════════════════════════════════════════════════════════════════════════════
// PACKAGE-LEVEL HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// Do runs operation with a one-off Retrier built from opts.
func Do(ctx context.Context, operation func(ctx context.Context) error, opts ...Option) error {
	return New(opts...).Do(ctx, operation)
}

// DoWithData is Do for operations that produce a value.
func DoWithData[T any](ctx context.Context, operation func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	var result T
	err := New(opts...).Do(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = operation(ctx)
		return opErr
	})
	return result, err
}

// ══════════════════════════════════════════════════════════════════════════════
// PRESET POLICIES
// ══════════════════════════════════════════════════════════════════════════════

// GatewayRetrier is tuned for push gateway calls. Conservative, so a flaky
// gateway is not hammered while alerts queue behind it.
func GatewayRetrier() *Retrier {
	return New(
		WithMaxAttempts(3),
		WithInitialDelay(500*time.Millisecond),
		WithMaxDelay(10*time.Second),
		WithMultiplier(2.0),
		WithJitter(0.2),
	)
}

// StorageRetrier is tuned for object storage calls.
func StorageRetrier() *Retrier {
	return New(
		WithMaxAttempts(5),
		WithInitialDelay(100*time.Millisecond),
		WithMaxDelay(5*time.Second),
		WithMultiplier(1.5),
		WithJitter(0.1),
	)
}

// DatabaseRetrier is tuned for short database operations.
func DatabaseRetrier() *Retrier {
	return New(
		WithMaxAttempts(3),
		WithInitialDelay(50*time.Millisecond),
		WithMaxDelay(time.Second),
		WithMultiplier(2.0),
		WithJitter(0.05),
	)
}
