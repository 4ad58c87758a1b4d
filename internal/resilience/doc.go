// Package resilience wraps fallible operations with retry and a per-key
// circuit breaker.
//
// Breaker states:
//   - CLOSED: calls pass; FailureThreshold consecutive failures open the circuit
//   - OPEN: calls fail fast with *CircuitOpenError until ResetTimeout elapses
//   - HALF_OPEN: a single trial call is admitted; success closes, failure reopens
//
// Retries use exponential backoff (BaseDelay * 2^attempt, capped at MaxDelay)
// with a longer floor for rate-limited errors. Validation errors are never
// retried.
package resilience
