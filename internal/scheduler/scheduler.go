package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/events"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/gateway"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/metrics"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/resilience"
)

// Fetcher resolves a symbol set into quotes. *gateway.Gateway implements it.
type Fetcher interface {
	Fetch(ctx context.Context, symbols []string) (*gateway.Result, error)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithExecutor sets the resilience executor polls run through.
func WithExecutor(ex *resilience.Executor) Option {
	return func(s *Scheduler) {
		s.exec = ex
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(s *Scheduler) {
		s.metrics = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithClock overrides the time source used for stats and health.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// targetState is the runtime state of one target.
type targetState struct {
	target Target

	// pollMu is held for the duration of a poll. A tick that cannot take it
	// is skipped. It is shared by every targetState with the same name, so a
	// removed and re-added target cannot overlap its previous poll.
	pollMu *sync.Mutex

	gen    uint64 // generation of the live worker, 0 when none
	cancel context.CancelFunc
}

// Scheduler polls targets on independent cadences and publishes results on
// the event bus.
type Scheduler struct {
	fetcher Fetcher
	bus     *events.Bus
	exec    *resilience.Executor
	metrics metrics.Recorder
	logger  *slog.Logger
	now     func() time.Time

	mu        sync.Mutex
	cfg       Config
	targets   map[string]*targetState
	pollLocks map[string]*sync.Mutex
	running   bool
	parent    context.Context
	runCtx    context.Context
	cancel    context.CancelFunc
	nextGen   uint64

	// runWG tracks the workers and polls of the current run. Each Start gets
	// a fresh group so a Stop still draining never waits on its successor.
	runWG      *sync.WaitGroup
	workers    atomic.Int32
	restarting atomic.Bool

	statsMu sync.Mutex
	stats   Stats
}

// New creates a stopped scheduler.
func New(cfg Config, fetcher Fetcher, bus *events.Bus, opts ...Option) *Scheduler {
	cfg.applyDefaults()
	s := &Scheduler{
		fetcher:   fetcher,
		bus:       bus,
		metrics:   metrics.Nop{},
		logger:    slog.Default(),
		now:       time.Now,
		cfg:       cfg,
		targets:   make(map[string]*targetState),
		pollLocks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.bus == nil {
		s.bus = events.NewBus(events.BusConfig{}, s.logger)
	}
	if s.exec == nil {
		s.exec = resilience.NewExecutor(resilience.WithLogger(s.logger))
	}
	s.logger = s.logger.With("component", "scheduler")
	return s
}

// Start launches one worker per enabled target. ctx bounds the lifetime of
// the run; Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Debug("start ignored, already running")
		return nil
	}

	s.parent = ctx
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.runWG = &sync.WaitGroup{}
	s.running = true

	s.statsMu.Lock()
	s.stats.StartedAt = s.now()
	s.statsMu.Unlock()

	enabled := 0
	for _, ts := range s.targets {
		if ts.target.Enabled {
			enabled++
		}
	}
	// Published before any worker can publish a poll result.
	s.bus.Publish(events.KindStarted, LifecycleEvent{Targets: enabled, Timestamp: s.now()})

	for _, ts := range s.targets {
		if ts.target.Enabled {
			s.startWorkerLocked(ts)
		}
	}
	s.mu.Unlock()

	s.logger.Info("scheduler started", "targets", enabled)
	return nil
}

// Stop cancels every worker and waits for in-flight polls, bounded by ctx.
// No worker or ticker survives a completed Stop.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.cancel()
	wg := s.runWG
	stopped := 0
	for _, ts := range s.targets {
		if ts.gen != 0 {
			stopped++
		}
		ts.gen = 0
		ts.cancel = nil
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.logger.Info("scheduler stopped", "targets", stopped)
	s.bus.Publish(events.KindStopped, LifecycleEvent{Targets: stopped, Timestamp: s.now()})
	return nil
}

// Restart stops, waits RestartDelay and starts again with the context of
// the previous Start.
func (s *Scheduler) Restart(ctx context.Context) error {
	s.mu.Lock()
	parent := s.parent
	delay := s.cfg.RestartDelay
	s.mu.Unlock()
	if parent == nil {
		parent = ctx
	}

	s.logger.Info("restarting scheduler", "delay", delay)
	if err := s.Stop(ctx); err != nil {
		return err
	}

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return s.Start(parent)
}

// IsRunning reports whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Bus returns the event bus the scheduler publishes on.
func (s *Scheduler) Bus() *events.Bus {
	return s.bus
}

// Executor returns the resilience executor polls run through.
func (s *Scheduler) Executor() *resilience.Executor {
	return s.exec
}

// Config returns the current configuration.
func (s *Scheduler) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// UpdateConfig validates and applies patch. New settings apply from the next
// poll; a changed SubscriptionInterval restarts the subscriptions worker.
func (s *Scheduler) UpdateConfig(patch ConfigPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.cfg
	if patch.DefaultInterval != nil {
		cfg.DefaultInterval = *patch.DefaultInterval
	}
	if patch.SubscriptionInterval != nil {
		cfg.SubscriptionInterval = *patch.SubscriptionInterval
	}
	if patch.PollTimeout != nil {
		cfg.PollTimeout = *patch.PollTimeout
	}
	if patch.AutoRestartFailures != nil {
		cfg.AutoRestartFailures = *patch.AutoRestartFailures
	}
	if patch.MaxRetries != nil {
		cfg.Retry.MaxRetries = *patch.MaxRetries
	}
	if patch.BaseDelay != nil {
		cfg.Retry.BaseDelay = *patch.BaseDelay
	}
	if patch.MaxDelay != nil {
		cfg.Retry.MaxDelay = *patch.MaxDelay
	}
	if patch.FailureThreshold != nil {
		cfg.Breaker.FailureThreshold = *patch.FailureThreshold
	}
	if patch.ResetTimeout != nil {
		cfg.Breaker.ResetTimeout = *patch.ResetTimeout
	}
	if patch.Health != nil {
		cfg.Health = *patch.Health
	}

	if err := validateConfig(cfg); err != nil {
		return err
	}

	old := s.cfg
	s.cfg = cfg
	s.logger.Info("configuration updated")

	if cfg.SubscriptionInterval != old.SubscriptionInterval {
		if ts, ok := s.targets[SubscriptionsTarget]; ok {
			ts.target.Interval = cfg.SubscriptionInterval
			s.restartWorkerLocked(ts)
		}
	}
	return nil
}

func validateConfig(c Config) error {
	for name, d := range map[string]time.Duration{
		"default interval":      c.DefaultInterval,
		"subscription interval": c.SubscriptionInterval,
	} {
		if d < c.MinInterval || d > c.MaxInterval {
			return resilience.Validation("%s %v out of range [%v, %v]", name, d, c.MinInterval, c.MaxInterval)
		}
	}
	if c.PollTimeout <= 0 {
		return resilience.Validation("poll timeout must be positive")
	}
	if c.AutoRestartFailures < 1 {
		return resilience.Validation("auto restart failures must be at least 1")
	}
	if c.Retry.MaxRetries < 0 || c.Retry.MaxRetries > 10 {
		return resilience.Validation("max retries %d out of range [0, 10]", c.Retry.MaxRetries)
	}
	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		return resilience.Validation("retry delays must satisfy 0 < base <= max")
	}
	if c.Breaker.FailureThreshold < 1 {
		return resilience.Validation("failure threshold must be at least 1")
	}
	if c.Breaker.ResetTimeout <= 0 {
		return resilience.Validation("reset timeout must be positive")
	}
	h := c.Health
	if h.ConsecutiveFailuresWarning < 1 || h.ConsecutiveFailuresError < h.ConsecutiveFailuresWarning {
		return resilience.Validation("consecutive failure thresholds must satisfy 1 <= warning <= error")
	}
	if h.SinceSuccessWarning <= 0 || h.SinceSuccessError < h.SinceSuccessWarning {
		return resilience.Validation("time since success thresholds must satisfy 0 < warning <= error")
	}
	if h.FailureRateWarning <= 0 || h.FailureRateError < h.FailureRateWarning || h.FailureRateError > 1 {
		return resilience.Validation("failure rate thresholds must satisfy 0 < warning <= error <= 1")
	}
	return nil
}
