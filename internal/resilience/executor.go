package resilience

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

// RetryConfig holds retry settings for a single Execute call.
type RetryConfig struct {
	MaxRetries     int           // Retries after the first attempt (default: 3, 0 disables)
	BaseDelay      time.Duration // Backoff for the first retry (default: 1s)
	MaxDelay       time.Duration // Backoff cap (default: 30s)
	RateLimitDelay time.Duration // Minimum backoff after a rate-limit error (default: 10s)
	Jitter         float64       // Fraction of random spread, 0-1 (default: 0)

	// ShouldRetry decides whether an error is worth another attempt.
	// Validation errors are rejected before it is consulted.
	ShouldRetry func(error) bool
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		BaseDelay:      time.Second,
		MaxDelay:       30 * time.Second,
		RateLimitDelay: 10 * time.Second,
	}
}

// Backoff returns the wait before retry number attempt (0-based) after err.
// A RetryDelay hint carried by err raises the wait to at most
// max(MaxDelay, RateLimitDelay).
func (c RetryConfig) Backoff(attempt int, err error) time.Duration {
	d := c.BaseDelay
	for i := 0; i < attempt && (c.MaxDelay <= 0 || d < c.MaxDelay); i++ {
		d *= 2
	}
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	if IsRateLimited(err) && d < c.RateLimitDelay {
		d = c.RateLimitDelay
	}
	if c.Jitter > 0 && d > 0 {
		spread := time.Duration(float64(d) * c.Jitter)
		if spread > 0 {
			d = d - spread/2 + time.Duration(rand.Int64N(int64(spread)))
		}
	}
	// An upstream hint wins over the computed delay, up to the larger cap.
	if hint := RetryDelay(err); hint > d {
		if limit := max(c.MaxDelay, c.RateLimitDelay); limit > 0 && hint > limit {
			hint = limit
		}
		d = max(d, hint)
	}
	return d
}

func (c RetryConfig) shouldRetry(err error) bool {
	if !retryable(err) {
		return false
	}
	if c.ShouldRetry != nil {
		return c.ShouldRetry(err)
	}
	return DefaultShouldRetry(err)
}

// retryable rejects the errors no predicate may override.
func retryable(err error) bool {
	return err != nil && countsAsFailure(err) && !IsCircuitOpen(err)
}

// Option configures an Executor.
type Option func(*Executor)

// WithClock overrides the time source used by breakers.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		e.now = now
	}
}

// WithSleep overrides how backoff waits are performed.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) {
		e.sleep = sleep
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// Executor runs operations with retry and a circuit breaker per key.
type Executor struct {
	logger *slog.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewExecutor creates an Executor.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		logger:   slog.Default(),
		now:      time.Now,
		sleep:    sleepContext,
		breakers: make(map[string]*Breaker),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs op under key. Each attempt passes through the key's breaker;
// failed attempts are retried per retry. On failure the returned error is an
// *ExecutionError wrapping the last error seen.
func (e *Executor) Execute(ctx context.Context, key string, op func(ctx context.Context) error, retry RetryConfig, breaker BreakerConfig) error {
	b := e.breaker(key, breaker)
	logger := e.logger.With("key", key)

	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= retry.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := retry.Backoff(attempt-1, lastErr)
			logger.Debug("retrying operation",
				"attempt", attempt,
				"backoff", wait,
				"error", lastErr,
			)
			if err := e.sleep(ctx, wait); err != nil {
				lastErr = err
				break
			}
		}

		state, err := b.allow()
		if err != nil {
			lastErr = err
			break
		}

		attempts++
		err = op(ctx)
		from, to := b.record(err)
		if from != to {
			e.logTransition(logger, from, to, err)
		}

		if err == nil {
			return nil
		}
		lastErr = err

		if state == StateHalfOpen || !retry.shouldRetry(err) || b.State() == StateOpen {
			break
		}
	}

	return &ExecutionError{
		Key:      key,
		Attempts: attempts,
		State:    b.State(),
		Err:      lastErr,
	}
}

// Do is Execute for operations that produce a value.
func Do[T any](ctx context.Context, e *Executor, key string, fn func(ctx context.Context) (T, error), retry RetryConfig, breaker BreakerConfig) (T, error) {
	var result T
	err := e.Execute(ctx, key, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	}, retry, breaker)
	return result, err
}

// States returns a snapshot of every known breaker.
func (e *Executor) States() map[string]BreakerSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]BreakerSnapshot, len(e.breakers))
	for key, b := range e.breakers {
		out[key] = b.Snapshot()
	}
	return out
}

// State returns the current state for key; unknown keys are CLOSED.
func (e *Executor) State(key string) State {
	e.mu.Lock()
	b, ok := e.breakers[key]
	e.mu.Unlock()
	if !ok {
		return StateClosed
	}
	return b.State()
}

// Reset closes the breaker for key.
func (e *Executor) Reset(key string) {
	e.mu.Lock()
	b, ok := e.breakers[key]
	e.mu.Unlock()
	if ok {
		b.reset()
	}
}

// Forget drops the breaker for key.
func (e *Executor) Forget(key string) {
	e.mu.Lock()
	delete(e.breakers, key)
	e.mu.Unlock()
}

func (e *Executor) breaker(key string, cfg BreakerConfig) *Breaker {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.breakers[key]
	if !ok {
		b = NewBreaker(key, cfg, e.now)
		e.breakers[key] = b
		return b
	}
	b.configure(cfg)
	return b
}

func (e *Executor) logTransition(logger *slog.Logger, from, to State, err error) {
	switch to {
	case StateOpen:
		logger.Warn("circuit opened", "from", from, "error", err)
	case StateClosed:
		logger.Info("circuit closed", "from", from)
	default:
		logger.Debug("circuit transition", "from", from, "to", to)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
