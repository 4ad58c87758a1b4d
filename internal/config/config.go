package config

import "time"

// Config is the root configuration for a quoted instance.
type Config struct {
	Instance   InstanceConfig   `yaml:"instance"`
	Provider   ProviderConfig   `yaml:"provider"`
	Cache      CacheConfig      `yaml:"cache"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Targets    []TargetConfig   `yaml:"targets"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Health     HealthConfig     `yaml:"health"`
	Fanout     FanoutConfig     `yaml:"fanout"`
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// InstanceConfig identifies this instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ProviderConfig selects and configures the upstream quote provider.
type ProviderConfig struct {
	Kind    string        `yaml:"kind"` // "rest" or "yahoo"
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// CacheConfig holds in-process cache settings.
type CacheConfig struct {
	MaxSize         int           `yaml:"max_size"`
	DefaultTTL      time.Duration `yaml:"default_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// GatewayConfig holds bulk fetch settings.
type GatewayConfig struct {
	BatchSize      int           `yaml:"batch_size"`
	MaxConcurrency int           `yaml:"max_concurrency"`
	QuoteTTL       time.Duration `yaml:"quote_ttl"`
	CallTimeout    time.Duration `yaml:"call_timeout"` // deadline of one upstream batch call
}

// SchedulerConfig holds poll scheduler settings.
type SchedulerConfig struct {
	DefaultInterval      time.Duration `yaml:"default_interval"`
	SubscriptionInterval time.Duration `yaml:"subscription_interval"`
	PollTimeout          time.Duration `yaml:"poll_timeout"`
	AutoRestartFailures  int           `yaml:"auto_restart_failures"`
	Paused               bool          `yaml:"paused"` // start without polling until started via the API
}

// TargetConfig declares a polling target seeded at startup.
type TargetConfig struct {
	Name     string        `yaml:"name"`
	Symbols  []string      `yaml:"symbols"`
	Interval time.Duration `yaml:"interval"`
	Priority string        `yaml:"priority"`
	Enabled  *bool         `yaml:"enabled"` // default true
	Market   bool          `yaml:"market"`
}

// IsEnabled reports whether the target starts enabled.
func (t TargetConfig) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// ResilienceConfig holds retry and circuit breaker settings.
type ResilienceConfig struct {
	MaxRetries       *int          `yaml:"max_retries"` // default 3; 0 disables retries
	BaseDelay        time.Duration `yaml:"base_delay"`
	MaxDelay         time.Duration `yaml:"max_delay"`
	RateLimitDelay   time.Duration `yaml:"rate_limit_delay"`
	Jitter           float64       `yaml:"jitter"`
	FailureThreshold int           `yaml:"failure_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"`
}

// HealthConfig holds health evaluation settings.
type HealthConfig struct {
	CheckInterval              time.Duration `yaml:"check_interval"`
	ConsecutiveFailuresWarning int           `yaml:"consecutive_failures_warning"`
	ConsecutiveFailuresError   int           `yaml:"consecutive_failures_error"`
	SinceSuccessWarning        time.Duration `yaml:"since_success_warning"`
	SinceSuccessError          time.Duration `yaml:"since_success_error"`
	FailureRateWarning         float64       `yaml:"failure_rate_warning"`
	FailureRateError           float64       `yaml:"failure_rate_error"`
}

// FanoutConfig holds client fan-out settings.
type FanoutConfig struct {
	MarketSymbols  []string      `yaml:"market_symbols"`
	IndexSymbols   []string      `yaml:"index_symbols"`
	TopN           int           `yaml:"top_n"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	PongTimeout    time.Duration `yaml:"pong_timeout"`
	SendQueue      int           `yaml:"send_queue"`
	EventBuffer    int           `yaml:"event_buffer"`
	EventBufferMax int           `yaml:"event_buffer_max"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds the optional target store connection.
type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RedisConfig holds the optional shared cache connection.
type RedisConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
