package scheduler

import (
	"errors"
	"time"

	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/gateway"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/model"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/resilience"
)

// SubscriptionsTarget is the name of the dynamic target maintained by
// Cover and Uncover.
const SubscriptionsTarget = "subscriptions"

var (
	ErrTargetExists   = errors.New("scheduler: target already exists")
	ErrTargetNotFound = errors.New("scheduler: target not found")
)

// Priority orders targets for listing.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

// Target is a named group of symbols polled on its own cadence.
type Target struct {
	Name     string        `json:"name"`
	Symbols  []string      `json:"symbols"`
	Interval time.Duration `json:"interval"`
	Priority Priority      `json:"priority"`
	Enabled  bool          `json:"enabled"`
	Market   bool          `json:"market"` // results also feed the market overview
}

// TargetPatch is a partial update; nil fields are left unchanged.
type TargetPatch struct {
	Symbols  *[]string
	Interval *time.Duration
	Priority *Priority
	Enabled  *bool
	Market   *bool
}

// HealthThresholds decide HealthStatus severity.
type HealthThresholds struct {
	ConsecutiveFailuresWarning int           // default: 3
	ConsecutiveFailuresError   int           // default: 5
	SinceSuccessWarning        time.Duration // default: 5m
	SinceSuccessError          time.Duration // default: 15m
	FailureRateWarning         float64       // default: 0.2
	FailureRateError           float64       // default: 0.5
}

// DefaultHealthThresholds returns sensible defaults.
func DefaultHealthThresholds() HealthThresholds {
	return HealthThresholds{
		ConsecutiveFailuresWarning: 3,
		ConsecutiveFailuresError:   5,
		SinceSuccessWarning:        5 * time.Minute,
		SinceSuccessError:          15 * time.Minute,
		FailureRateWarning:         0.2,
		FailureRateError:           0.5,
	}
}

// Config holds scheduler configuration.
type Config struct {
	DefaultInterval      time.Duration // Interval for targets that set none (default: 60s)
	SubscriptionInterval time.Duration // Interval of the subscriptions target (default: DefaultInterval)
	MinInterval          time.Duration // Lower bound for target intervals (default: 10s)
	MaxInterval          time.Duration // Upper bound for target intervals (default: 10m)
	PollTimeout          time.Duration // Per-poll deadline including retries (default: 30s)
	RestartDelay         time.Duration // Pause between Stop and Start in Restart (default: 1s)
	AutoRestartFailures  int           // CheckHealth restarts at this many consecutive failures (default: 10)

	Retry   resilience.RetryConfig
	Breaker resilience.BreakerConfig
	Health  HealthThresholds
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultInterval:     60 * time.Second,
		MinInterval:         10 * time.Second,
		MaxInterval:         10 * time.Minute,
		PollTimeout:         30 * time.Second,
		RestartDelay:        time.Second,
		AutoRestartFailures: 10,
		Retry:               resilience.DefaultRetryConfig(),
		Breaker:             resilience.DefaultBreakerConfig(),
		Health:              DefaultHealthThresholds(),
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.DefaultInterval <= 0 {
		c.DefaultInterval = d.DefaultInterval
	}
	if c.SubscriptionInterval <= 0 {
		c.SubscriptionInterval = c.DefaultInterval
	}
	if c.MinInterval <= 0 {
		c.MinInterval = d.MinInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = d.MaxInterval
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = d.PollTimeout
	}
	if c.RestartDelay < 0 {
		c.RestartDelay = 0
	}
	if c.AutoRestartFailures <= 0 {
		c.AutoRestartFailures = d.AutoRestartFailures
	}
	if c.Retry.BaseDelay <= 0 {
		c.Retry.BaseDelay = d.Retry.BaseDelay
	}
	if c.Retry.MaxDelay <= 0 {
		c.Retry.MaxDelay = d.Retry.MaxDelay
	}
	if c.Retry.RateLimitDelay <= 0 {
		c.Retry.RateLimitDelay = d.Retry.RateLimitDelay
	}
	if c.Health == (HealthThresholds{}) {
		c.Health = d.Health
	}
}

// ConfigPatch is a partial configuration update; nil fields are unchanged.
type ConfigPatch struct {
	DefaultInterval      *time.Duration
	SubscriptionInterval *time.Duration
	PollTimeout          *time.Duration
	AutoRestartFailures  *int
	MaxRetries           *int
	BaseDelay            *time.Duration
	MaxDelay             *time.Duration
	FailureThreshold     *int
	ResetTimeout         *time.Duration
	Health               *HealthThresholds
}

// Stats are cumulative polling statistics. They are reset only by
// ClearStats.
type Stats struct {
	TotalPolls          int64         `json:"totalPolls"`
	SuccessfulPolls     int64         `json:"successfulPolls"`
	FailedPolls         int64         `json:"failedPolls"`
	SkippedPolls        int64         `json:"skippedPolls"`
	SymbolsPolled       int64         `json:"symbolsPolled"`
	LastPollAt          time.Time     `json:"lastPollAt,omitzero"`
	LastSuccessAt       time.Time     `json:"lastSuccessAt,omitzero"`
	LastErrorAt         time.Time     `json:"lastErrorAt,omitzero"`
	LastError           string        `json:"lastError,omitempty"`
	ConsecutiveFailures int           `json:"consecutiveFailures"`
	AverageResponseTime time.Duration `json:"averageResponseTime"`
	StartedAt           time.Time     `json:"startedAt,omitzero"`
	Uptime              time.Duration `json:"uptime"`
	Running             bool          `json:"running"`
	ActiveTargets       int           `json:"activeTargets"`
}

// Health status values.
const (
	StatusHealthy = "healthy"
	StatusWarning = "warning"
	StatusError   = "error"
)

// HealthStatus is the result of a health evaluation.
type HealthStatus struct {
	Status               string        `json:"status"`
	Issues               []string      `json:"issues"`
	ConsecutiveFailures  int           `json:"consecutiveFailures"`
	TimeSinceLastSuccess time.Duration `json:"timeSinceLastSuccess"`
	FailureRate          float64       `json:"failureRate"`
	Running              bool          `json:"running"`
	Timestamp            time.Time     `json:"timestamp"`
}

// Event payloads.

// LifecycleEvent is the payload of started and stopped.
type LifecycleEvent struct {
	Targets   int       `json:"targets"`
	Timestamp time.Time `json:"timestamp"`
}

// PollCompleteEvent is the payload of pollComplete.
type PollCompleteEvent struct {
	Target    string          `json:"target"`
	Duration  time.Duration   `json:"duration"`
	Summary   gateway.Summary `json:"summary"`
	Timestamp time.Time       `json:"timestamp"`
}

// PollErrorEvent is the payload of pollError.
type PollErrorEvent struct {
	Target              string    `json:"target"`
	Error               string    `json:"error"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	Timestamp           time.Time `json:"timestamp"`
}

// PollSkippedEvent is the payload of pollSkipped.
type PollSkippedEvent struct {
	Target    string    `json:"target"`
	Timestamp time.Time `json:"timestamp"`
}

// DataUpdateEvent is the payload of dataUpdate.
type DataUpdateEvent struct {
	Target    string                 `json:"target"`
	Market    bool                   `json:"market"`
	Data      map[string]model.Quote `json:"data"`
	Summary   gateway.Summary        `json:"summary"`
	Timestamp time.Time              `json:"timestamp"`
}
