package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultProviderKind        = "rest"
	DefaultProviderTimeout     = 10 * time.Second
	DefaultCacheMaxSize        = 1000
	DefaultCacheTTL            = 30 * time.Second
	DefaultCacheCleanup        = time.Minute
	DefaultBatchSize           = 50
	DefaultMaxConcurrency      = 5
	DefaultQuoteTTL            = 30 * time.Second
	DefaultCallTimeout         = 30 * time.Second
	DefaultPollInterval        = 60 * time.Second
	DefaultPollTimeout         = 30 * time.Second
	DefaultAutoRestartFailures = 10
	DefaultTargetPriority      = "medium"
	DefaultMaxRetries          = 3
	DefaultBaseDelay           = 1 * time.Second
	DefaultMaxDelay            = 30 * time.Second
	DefaultRateLimitDelay      = 10 * time.Second
	DefaultFailureThreshold    = 5
	DefaultResetTimeout        = 60 * time.Second
	DefaultHealthCheckInterval = 60 * time.Second
	DefaultFailuresWarning     = 3
	DefaultFailuresError       = 5
	DefaultSinceSuccessWarning = 5 * time.Minute
	DefaultSinceSuccessError   = 15 * time.Minute
	DefaultFailureRateWarning  = 0.2
	DefaultFailureRateError    = 0.5
	DefaultTopN                = 5
	DefaultRequestTimeout      = 10 * time.Second
	DefaultWriteTimeout        = 5 * time.Second
	DefaultPingInterval        = 30 * time.Second
	DefaultPongTimeout         = 60 * time.Second
	DefaultSendQueue           = 256
	DefaultEventBuffer         = 64
	DefaultEventBufferMax      = 4096
	DefaultServerAddr          = ":8080"
	DefaultShutdownTimeout     = 10 * time.Second
	DefaultDBPort              = 5432
	DefaultDBSSLMode           = "prefer"
	DefaultMaxConns            = 10
	DefaultMinConns            = 2
	DefaultRedisAddr           = "localhost:6379"
	DefaultRedisKeyPrefix      = "quotes:"
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "text"
)

// ApplyDefaults fills zero-valued optional fields.
func (c *Config) ApplyDefaults() {
	// Provider defaults
	if c.Provider.Kind == "" {
		c.Provider.Kind = DefaultProviderKind
	}
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = DefaultProviderTimeout
	}

	// Cache defaults
	if c.Cache.MaxSize == 0 {
		c.Cache.MaxSize = DefaultCacheMaxSize
	}
	if c.Cache.DefaultTTL == 0 {
		c.Cache.DefaultTTL = DefaultCacheTTL
	}
	if c.Cache.CleanupInterval == 0 {
		c.Cache.CleanupInterval = DefaultCacheCleanup
	}

	// Gateway defaults
	if c.Gateway.BatchSize == 0 {
		c.Gateway.BatchSize = DefaultBatchSize
	}
	if c.Gateway.MaxConcurrency == 0 {
		c.Gateway.MaxConcurrency = DefaultMaxConcurrency
	}
	if c.Gateway.QuoteTTL == 0 {
		c.Gateway.QuoteTTL = DefaultQuoteTTL
	}
	if c.Gateway.CallTimeout == 0 {
		c.Gateway.CallTimeout = DefaultCallTimeout
	}

	// Scheduler defaults
	if c.Scheduler.DefaultInterval == 0 {
		c.Scheduler.DefaultInterval = DefaultPollInterval
	}
	if c.Scheduler.SubscriptionInterval == 0 {
		c.Scheduler.SubscriptionInterval = c.Scheduler.DefaultInterval
	}
	if c.Scheduler.PollTimeout == 0 {
		c.Scheduler.PollTimeout = DefaultPollTimeout
	}
	if c.Scheduler.AutoRestartFailures == 0 {
		c.Scheduler.AutoRestartFailures = DefaultAutoRestartFailures
	}
	for i := range c.Targets {
		if c.Targets[i].Interval == 0 {
			c.Targets[i].Interval = c.Scheduler.DefaultInterval
		}
		if c.Targets[i].Priority == "" {
			c.Targets[i].Priority = DefaultTargetPriority
		}
	}

	// Resilience defaults
	if c.Resilience.MaxRetries == nil {
		n := DefaultMaxRetries
		c.Resilience.MaxRetries = &n
	}
	if c.Resilience.BaseDelay == 0 {
		c.Resilience.BaseDelay = DefaultBaseDelay
	}
	if c.Resilience.MaxDelay == 0 {
		c.Resilience.MaxDelay = DefaultMaxDelay
	}
	if c.Resilience.RateLimitDelay == 0 {
		c.Resilience.RateLimitDelay = DefaultRateLimitDelay
	}
	if c.Resilience.FailureThreshold == 0 {
		c.Resilience.FailureThreshold = DefaultFailureThreshold
	}
	if c.Resilience.ResetTimeout == 0 {
		c.Resilience.ResetTimeout = DefaultResetTimeout
	}

	// Health defaults
	if c.Health.CheckInterval == 0 {
		c.Health.CheckInterval = DefaultHealthCheckInterval
	}
	if c.Health.ConsecutiveFailuresWarning == 0 {
		c.Health.ConsecutiveFailuresWarning = DefaultFailuresWarning
	}
	if c.Health.ConsecutiveFailuresError == 0 {
		c.Health.ConsecutiveFailuresError = DefaultFailuresError
	}
	if c.Health.SinceSuccessWarning == 0 {
		c.Health.SinceSuccessWarning = DefaultSinceSuccessWarning
	}
	if c.Health.SinceSuccessError == 0 {
		c.Health.SinceSuccessError = DefaultSinceSuccessError
	}
	if c.Health.FailureRateWarning == 0 {
		c.Health.FailureRateWarning = DefaultFailureRateWarning
	}
	if c.Health.FailureRateError == 0 {
		c.Health.FailureRateError = DefaultFailureRateError
	}

	// Fanout defaults
	if c.Fanout.TopN == 0 {
		c.Fanout.TopN = DefaultTopN
	}
	if c.Fanout.RequestTimeout == 0 {
		c.Fanout.RequestTimeout = DefaultRequestTimeout
	}
	if c.Fanout.WriteTimeout == 0 {
		c.Fanout.WriteTimeout = DefaultWriteTimeout
	}
	if c.Fanout.PingInterval == 0 {
		c.Fanout.PingInterval = DefaultPingInterval
	}
	if c.Fanout.PongTimeout == 0 {
		c.Fanout.PongTimeout = DefaultPongTimeout
	}
	if c.Fanout.SendQueue == 0 {
		c.Fanout.SendQueue = DefaultSendQueue
	}
	if c.Fanout.EventBuffer == 0 {
		c.Fanout.EventBuffer = DefaultEventBuffer
	}
	if c.Fanout.EventBufferMax == 0 {
		c.Fanout.EventBufferMax = DefaultEventBufferMax
	}

	// Server defaults
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = DefaultRedisAddr
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if c.Redis.TTL == 0 {
		c.Redis.TTL = c.Gateway.QuoteTTL
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}
