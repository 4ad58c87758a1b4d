package resilience

import (
	"sync"
	"time"
)

// State is a circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the state by name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// BreakerConfig holds circuit breaker settings.
type BreakerConfig struct {
	FailureThreshold int           // Consecutive failures that open the circuit (default: 5)
	ResetTimeout     time.Duration // Time spent OPEN before a trial call (default: 60s)
}

// DefaultBreakerConfig returns sensible defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     60 * time.Second,
	}
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	d := DefaultBreakerConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = d.ResetTimeout
	}
	return c
}

// BreakerSnapshot is a read-only view of a breaker.
type BreakerSnapshot struct {
	Key         string    `json:"key"`
	State       State     `json:"state"`
	Failures    int       `json:"failures"`
	NextRetryAt time.Time `json:"nextRetryAt,omitempty"`
}

// Breaker is a circuit breaker for a single operation key. State only changes
// through allow and record.
type Breaker struct {
	key string
	now func() time.Time

	mu          sync.Mutex
	cfg         BreakerConfig
	state       State
	failures    int
	nextRetryAt time.Time
	trial       bool // a HALF_OPEN trial call is in flight
}

// NewBreaker creates a CLOSED breaker.
func NewBreaker(key string, cfg BreakerConfig, now func() time.Time) *Breaker {
	if now == nil {
		now = time.Now
	}
	return &Breaker{
		key: key,
		now: now,
		cfg: cfg.withDefaults(),
	}
}

// configure replaces the thresholds used by subsequent transitions.
func (b *Breaker) configure(cfg BreakerConfig) {
	b.mu.Lock()
	b.cfg = cfg.withDefaults()
	b.mu.Unlock()
}

// allow admits a call or returns *CircuitOpenError. The returned state is the
// state the call runs under.
func (b *Breaker) allow() (State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Before(b.nextRetryAt) {
			return b.state, &CircuitOpenError{Key: b.key, RetryAt: b.nextRetryAt}
		}
		b.state = StateHalfOpen
		b.trial = true
		return StateHalfOpen, nil

	case StateHalfOpen:
		if b.trial {
			return b.state, &CircuitOpenError{Key: b.key, RetryAt: b.nextRetryAt}
		}
		b.trial = true
		return StateHalfOpen, nil
	}

	return StateClosed, nil
}

// record applies the outcome of an admitted call and returns the transition,
// if any, as (from, to).
func (b *Breaker) record(err error) (State, State) {
	b.mu.Lock()
	defer b.mu.Unlock()

	from := b.state
	b.trial = false

	if err == nil {
		b.state = StateClosed
		b.failures = 0
		b.nextRetryAt = time.Time{}
		return from, b.state
	}

	if !countsAsFailure(err) {
		return from, from
	}

	b.failures++
	switch b.state {
	case StateHalfOpen:
		b.open()
	case StateClosed:
		if b.failures >= b.cfg.FailureThreshold {
			b.open()
		}
	}
	return from, b.state
}

func (b *Breaker) open() {
	b.state = StateOpen
	b.nextRetryAt = b.now().Add(b.cfg.ResetTimeout)
}

// State returns the current state without triggering the OPEN → HALF_OPEN
// transition.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns a copy of the breaker state.
func (b *Breaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerSnapshot{
		Key:         b.key,
		State:       b.state,
		Failures:    b.failures,
		NextRetryAt: b.nextRetryAt,
	}
}

// reset forces the breaker back to CLOSED.
func (b *Breaker) reset() {
	b.mu.Lock()
	b.state = StateClosed
	b.failures = 0
	b.nextRetryAt = time.Time{}
	b.trial = false
	b.mu.Unlock()
}
