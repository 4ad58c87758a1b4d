package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrValidation marks errors caused by bad input. They are never retried and
// never count as breaker failures.
var ErrValidation = errors.New("validation failed")

// Validation returns an error wrapping ErrValidation.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// CircuitOpenError is returned without invoking the operation while a
// circuit is open (or a half-open trial is already in flight).
type CircuitOpenError struct {
	Key     string
	RetryAt time.Time
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for %q, retry after %s", e.Key, e.RetryAt.Format(time.RFC3339))
}

// ExecutionError annotates the last error of a failed Execute call.
type ExecutionError struct {
	Key      string
	Attempts int
	State    State // circuit state when the call gave up
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s) (circuit %s): %v", e.Key, e.Attempts, e.State, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsCircuitOpen reports whether err is or wraps a *CircuitOpenError.
func IsCircuitOpen(err error) bool {
	var coe *CircuitOpenError
	return errors.As(err, &coe)
}

// IsRateLimited reports whether err signals an upstream rate limit. Errors
// opt in by implementing RateLimited() bool.
func IsRateLimited(err error) bool {
	var rl interface{ RateLimited() bool }
	if errors.As(err, &rl) {
		return rl.RateLimited()
	}
	return false
}

// RetryDelay returns the wait err asks for before the next attempt, or 0.
// Errors opt in by implementing RetryDelay() time.Duration.
func RetryDelay(err error) time.Duration {
	var rd interface{ RetryDelay() time.Duration }
	if errors.As(err, &rd) {
		return rd.RetryDelay()
	}
	return 0
}

// DefaultShouldRetry retries everything except validation errors, context
// cancellation and errors that declare themselves non-retryable through
// IsRetryable() bool.
func DefaultShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, context.Canceled) {
		return false
	}
	var r interface{ IsRetryable() bool }
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return true
}

// countsAsFailure decides whether err should move the breaker toward OPEN.
func countsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrValidation) && !errors.Is(err, context.Canceled)
}
