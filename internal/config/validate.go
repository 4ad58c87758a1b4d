package config

import (
	"errors"
	"fmt"
	"time"
)

// Bounds enforced by Validate.
const (
	MinPollInterval        = 10 * time.Second
	MaxPollInterval        = 10 * time.Minute
	MinBatchSize           = 1
	MaxBatchSize           = 200
	MinConcurrency         = 1
	MaxConcurrency         = 50
	MaxRetryAttempts       = 10
	MinHealthCheckInterval = 30 * time.Second
	MaxHealthCheckInterval = 10 * time.Minute
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	switch c.Provider.Kind {
	case "rest":
		if c.Provider.BaseURL == "" {
			return errors.New("provider.base_url is required for the rest provider")
		}
	case "yahoo":
	default:
		return fmt.Errorf("provider.kind must be rest or yahoo, got %q", c.Provider.Kind)
	}

	if c.Cache.MaxSize < 1 {
		return errors.New("cache.max_size must be >= 1")
	}

	if c.Gateway.BatchSize < MinBatchSize || c.Gateway.BatchSize > MaxBatchSize {
		return fmt.Errorf("gateway.batch_size must be between %d and %d, got %d", MinBatchSize, MaxBatchSize, c.Gateway.BatchSize)
	}
	if c.Gateway.MaxConcurrency < MinConcurrency || c.Gateway.MaxConcurrency > MaxConcurrency {
		return fmt.Errorf("gateway.max_concurrency must be between %d and %d, got %d", MinConcurrency, MaxConcurrency, c.Gateway.MaxConcurrency)
	}
	if c.Gateway.CallTimeout <= 0 {
		return fmt.Errorf("gateway.call_timeout must be positive")
	}

	if err := validateInterval("scheduler.default_interval", c.Scheduler.DefaultInterval); err != nil {
		return err
	}
	if err := validateInterval("scheduler.subscription_interval", c.Scheduler.SubscriptionInterval); err != nil {
		return err
	}
	if c.Scheduler.PollTimeout <= 0 {
		return errors.New("scheduler.poll_timeout must be > 0")
	}

	seen := make(map[string]bool, len(c.Targets))
	for i, t := range c.Targets {
		prefix := fmt.Sprintf("targets[%d]", i)
		if t.Name == "" {
			return fmt.Errorf("%s.name is required", prefix)
		}
		if seen[t.Name] {
			return fmt.Errorf("%s.name %q is duplicated", prefix, t.Name)
		}
		seen[t.Name] = true
		if len(t.Symbols) == 0 {
			return fmt.Errorf("%s.symbols must not be empty", prefix)
		}
		if err := validateInterval(prefix+".interval", t.Interval); err != nil {
			return err
		}
		switch t.Priority {
		case "high", "medium", "low":
		default:
			return fmt.Errorf("%s.priority must be high, medium or low, got %q", prefix, t.Priority)
		}
	}

	if err := c.Resilience.validate(); err != nil {
		return err
	}

	if c.Health.CheckInterval < MinHealthCheckInterval || c.Health.CheckInterval > MaxHealthCheckInterval {
		return fmt.Errorf("health.check_interval must be between %s and %s, got %s", MinHealthCheckInterval, MaxHealthCheckInterval, c.Health.CheckInterval)
	}
	if c.Health.ConsecutiveFailuresWarning > c.Health.ConsecutiveFailuresError {
		return errors.New("health.consecutive_failures_warning cannot exceed consecutive_failures_error")
	}
	if c.Health.FailureRateWarning > c.Health.FailureRateError {
		return errors.New("health.failure_rate_warning cannot exceed failure_rate_error")
	}

	if c.Fanout.TopN < 1 {
		return errors.New("fanout.top_n must be >= 1")
	}
	if c.Fanout.SendQueue < 1 {
		return errors.New("fanout.send_queue must be >= 1")
	}
	if c.Fanout.EventBufferMax < c.Fanout.EventBuffer {
		return fmt.Errorf("fanout.event_buffer_max (%d) cannot be below event_buffer (%d)", c.Fanout.EventBufferMax, c.Fanout.EventBuffer)
	}

	if c.Database.Enabled {
		if err := c.Database.validate("database"); err != nil {
			return err
		}
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("redis.addr is required")
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

func validateInterval(field string, d time.Duration) error {
	if d < MinPollInterval || d > MaxPollInterval {
		return fmt.Errorf("%s must be between %s and %s, got %s", field, MinPollInterval, MaxPollInterval, d)
	}
	return nil
}

func (r *ResilienceConfig) validate() error {
	if r.MaxRetries != nil && (*r.MaxRetries < 0 || *r.MaxRetries > MaxRetryAttempts) {
		return fmt.Errorf("resilience.max_retries must be between 0 and %d, got %d", MaxRetryAttempts, *r.MaxRetries)
	}
	if r.BaseDelay > r.MaxDelay {
		return fmt.Errorf("resilience.base_delay (%s) cannot exceed max_delay (%s)", r.BaseDelay, r.MaxDelay)
	}
	if r.Jitter < 0 || r.Jitter > 1 {
		return fmt.Errorf("resilience.jitter must be between 0 and 1, got %v", r.Jitter)
	}
	if r.FailureThreshold < 1 {
		return errors.New("resilience.failure_threshold must be >= 1")
	}
	return nil
}

func (db *DatabaseConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
