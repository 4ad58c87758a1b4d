package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/cache"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/config"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/database"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/events"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/fanout"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/gateway"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/metrics"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/model"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/provider"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/provider/rest"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/provider/yahoo"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/resilience"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/scheduler"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/sharedcache"
)

// TargetStore persists polling targets. *database.TargetStore implements it.
type TargetStore interface {
	List(ctx context.Context) ([]scheduler.Target, error)
	Upsert(ctx context.Context, t scheduler.Target) error
	UpsertAll(ctx context.Context, targets []scheduler.Target) error
	Delete(ctx context.Context, name string) error
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithProvider overrides the provider selected by config.
func WithProvider(p provider.Provider) Option {
	return func(s *Service) {
		s.provider = p
	}
}

// WithTargetStore overrides the database target store.
func WithTargetStore(ts TargetStore) Option {
	return func(s *Service) {
		s.store = ts
	}
}

// WithSharedCache overrides the Redis shared cache.
func WithSharedCache(sc sharedcache.Store) Option {
	return func(s *Service) {
		s.shared = sc
	}
}

// Service wires the quote pipeline together: provider, cache, gateway,
// scheduler, event bus and fan-out hub.
type Service struct {
	cfg    *config.Config
	logger *slog.Logger

	provider provider.Provider
	store    TargetStore
	shared   sharedcache.Store
	closers  []func()

	cache     *cache.Cache[model.Quote]
	exec      *resilience.Executor
	gateway   *gateway.Gateway
	bus       *events.Bus
	scheduler *scheduler.Scheduler
	hub       *fanout.Hub
	ws        *fanout.WSHandler
	reader    *sdkmetric.ManualReader
	meters    *sdkmetric.MeterProvider
	cron      *gocron.Scheduler

	mu      sync.Mutex
	started bool
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds a service from cfg, applying defaults to it. ctx bounds
// connecting to optional backends (PostgreSQL, Redis).
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	cfg.ApplyDefaults()
	s := &Service{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.openBackends(ctx); err != nil {
		s.closeBackends()
		return nil, err
	}
	s.build()
	return s, nil
}

func (s *Service) openBackends(ctx context.Context) error {
	if s.provider == nil {
		p, err := newProvider(s.cfg.Provider, s.logger)
		if err != nil {
			return err
		}
		s.provider = p
	}

	if s.store == nil && s.cfg.Database.Enabled {
		pool, err := database.Connect(ctx, s.cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		s.closers = append(s.closers, pool.Close)

		store := database.NewTargetStore(pool, s.logger)
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		s.store = store
		s.logger.Info("target store connected", "host", s.cfg.Database.Host, "database", s.cfg.Database.Name)
	}

	if s.shared == nil && s.cfg.Redis.Enabled {
		rs, err := sharedcache.Open(ctx, sharedcache.Config{
			Addr:      s.cfg.Redis.Addr,
			Password:  s.cfg.Redis.Password,
			DB:        s.cfg.Redis.DB,
			KeyPrefix: s.cfg.Redis.KeyPrefix,
		}, s.logger)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		s.closers = append(s.closers, func() { rs.Close() })
		s.shared = rs
		s.logger.Info("shared cache connected", "addr", s.cfg.Redis.Addr)
	}
	return nil
}

func newProvider(cfg config.ProviderConfig, logger *slog.Logger) (provider.Provider, error) {
	switch cfg.Kind {
	case "rest":
		return rest.NewClient(cfg.BaseURL, cfg.APIKey,
			rest.WithTimeout(cfg.Timeout),
			rest.WithLogger(logger),
		), nil
	case "yahoo":
		return yahoo.New(yahoo.WithLogger(logger)), nil
	}
	return nil, fmt.Errorf("unknown provider kind %q", cfg.Kind)
}

func (s *Service) build() {
	cfg := s.cfg

	s.reader = sdkmetric.NewManualReader()
	s.meters = sdkmetric.NewMeterProvider(sdkmetric.WithReader(s.reader))
	recorder := metrics.NewOTel(s.meters, s.logger)

	s.cache = cache.New[model.Quote](cache.Config{
		MaxSize:    cfg.Cache.MaxSize,
		DefaultTTL: cfg.Cache.DefaultTTL,
	})

	retry := resilience.RetryConfig{
		MaxRetries:     *cfg.Resilience.MaxRetries,
		BaseDelay:      cfg.Resilience.BaseDelay,
		MaxDelay:       cfg.Resilience.MaxDelay,
		RateLimitDelay: cfg.Resilience.RateLimitDelay,
		Jitter:         cfg.Resilience.Jitter,
	}
	breaker := resilience.BreakerConfig{
		FailureThreshold: cfg.Resilience.FailureThreshold,
		ResetTimeout:     cfg.Resilience.ResetTimeout,
	}
	s.exec = resilience.NewExecutor(resilience.WithLogger(s.logger.With("component", "resilience")))

	// Breakers are keyed per target in the scheduler; the gateway has none so
	// one failing target cannot trip another.
	gwOpts := []gateway.Option{
		gateway.WithMetrics(recorder),
		gateway.WithLogger(s.logger),
	}
	if s.shared != nil {
		gwOpts = append(gwOpts, gateway.WithSharedCache(s.shared))
	}
	s.gateway = gateway.New(s.provider, s.cache, gateway.Config{
		BatchSize:      cfg.Gateway.BatchSize,
		MaxConcurrency: cfg.Gateway.MaxConcurrency,
		QuoteTTL:       cfg.Gateway.QuoteTTL,
		SharedTTL:      cfg.Redis.TTL,
		CallTimeout:    cfg.Gateway.CallTimeout,
	}, gwOpts...)

	s.bus = events.NewBus(events.BusConfig{
		BufferSize:    cfg.Fanout.EventBuffer,
		MaxBufferSize: cfg.Fanout.EventBufferMax,
	}, s.logger)

	s.scheduler = scheduler.New(scheduler.Config{
		DefaultInterval:      cfg.Scheduler.DefaultInterval,
		SubscriptionInterval: cfg.Scheduler.SubscriptionInterval,
		MinInterval:          config.MinPollInterval,
		MaxInterval:          config.MaxPollInterval,
		PollTimeout:          cfg.Scheduler.PollTimeout,
		AutoRestartFailures:  cfg.Scheduler.AutoRestartFailures,
		Retry:                retry,
		Breaker:              breaker,
		Health: scheduler.HealthThresholds{
			ConsecutiveFailuresWarning: cfg.Health.ConsecutiveFailuresWarning,
			ConsecutiveFailuresError:   cfg.Health.ConsecutiveFailuresError,
			SinceSuccessWarning:        cfg.Health.SinceSuccessWarning,
			SinceSuccessError:          cfg.Health.SinceSuccessError,
			FailureRateWarning:         cfg.Health.FailureRateWarning,
			FailureRateError:           cfg.Health.FailureRateError,
		},
	}, s.gateway, s.bus,
		scheduler.WithExecutor(s.exec),
		scheduler.WithMetrics(recorder),
		scheduler.WithLogger(s.logger),
	)

	s.hub = fanout.NewHub(fanout.Config{
		MarketSymbols:  cfg.Fanout.MarketSymbols,
		IndexSymbols:   cfg.Fanout.IndexSymbols,
		TopN:           cfg.Fanout.TopN,
		RequestTimeout: cfg.Fanout.RequestTimeout,
	}, s.gateway, s.scheduler,
		fanout.WithMetrics(recorder),
		fanout.WithLogger(s.logger),
	)
	s.ws = fanout.NewWSHandler(s.hub, fanout.WSConfig{
		WriteTimeout: cfg.Fanout.WriteTimeout,
		PingInterval: cfg.Fanout.PingInterval,
		PongTimeout:  cfg.Fanout.PongTimeout,
		SendQueue:    cfg.Fanout.SendQueue,
	}, s.logger)

	s.cron = gocron.NewScheduler(time.UTC)
}

// Start seeds targets, starts the fan-out loop, the maintenance jobs and,
// unless configured paused, the scheduler.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	if err := s.seedTargets(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.runCtx, s.cancel = runCtx, cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.hub.Run(runCtx, s.bus); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("fan-out loop exited", "error", err)
		}
	}()

	if err := s.scheduleJobs(runCtx); err != nil {
		cancel()
		return err
	}
	s.cron.StartAsync()

	if !s.cfg.Scheduler.Paused {
		if err := s.scheduler.Start(runCtx); err != nil {
			s.cron.Stop()
			cancel()
			return fmt.Errorf("start scheduler: %w", err)
		}
	}

	s.started = true
	s.logger.Info("service started",
		"instance_id", s.cfg.Instance.ID,
		"provider", s.provider.Name(),
		"targets", len(s.scheduler.Targets()),
		"paused", s.cfg.Scheduler.Paused,
	)
	return nil
}

// Stop shuts every component down, bounded by ctx.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		s.closeBackends()
		return nil
	}
	s.started = false

	s.logger.Info("stopping service")
	s.cron.Stop()

	var errs []error
	if err := s.scheduler.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
	}

	s.cancel()
	s.hub.CloseAll("shutdown")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("wait for fan-out loop: %w", ctx.Err()))
	}

	s.bus.Close()
	if err := s.meters.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown meters: %w", err))
	}
	s.closeBackends()

	s.logger.Info("service stopped")
	return errors.Join(errs...)
}

// StartScheduler starts polling within the lifetime of the service.
func (s *Service) StartScheduler() error {
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil {
		return errors.New("service not started")
	}
	return s.scheduler.Start(ctx)
}

// RestartScheduler restarts a running scheduler, or starts one that has not
// run yet within the lifetime of the service.
func (s *Service) RestartScheduler(ctx context.Context) error {
	if !s.scheduler.IsRunning() {
		return s.StartScheduler()
	}
	return s.scheduler.Restart(ctx)
}

func (s *Service) closeBackends() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// Config returns the service configuration.
func (s *Service) Config() *config.Config { return s.cfg }

// Scheduler returns the poll scheduler.
func (s *Service) Scheduler() *scheduler.Scheduler { return s.scheduler }

// Gateway returns the bulk fetch gateway.
func (s *Service) Gateway() *gateway.Gateway { return s.gateway }

// Cache returns the in-process quote cache.
func (s *Service) Cache() *cache.Cache[model.Quote] { return s.cache }

// Executor returns the shared resilience executor.
func (s *Service) Executor() *resilience.Executor { return s.exec }

// Bus returns the event bus.
func (s *Service) Bus() *events.Bus { return s.bus }

// Hub returns the fan-out hub.
func (s *Service) Hub() *fanout.Hub { return s.hub }

// WSHandler returns the websocket endpoint handler.
func (s *Service) WSHandler() *fanout.WSHandler { return s.ws }

// Metrics returns the current value of every recorded instrument.
func (s *Service) Metrics(ctx context.Context) (map[string]metrics.Value, error) {
	return metrics.Snapshot(ctx, s.reader)
}
