package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/cache"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/events"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/gateway"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/model"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/provider/providertest"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/resilience"
)

// fetcherFunc adapts a function to Fetcher.
type fetcherFunc func(ctx context.Context, symbols []string) (*gateway.Result, error)

func (f fetcherFunc) Fetch(ctx context.Context, symbols []string) (*gateway.Result, error) {
	return f(ctx, symbols)
}

// okFetcher returns a price for every symbol and counts calls.
func okFetcher(calls *atomic.Int32) fetcherFunc {
	return func(ctx context.Context, symbols []string) (*gateway.Result, error) {
		calls.Add(1)
		res := &gateway.Result{Data: make(map[string]model.Quote)}
		for _, s := range symbols {
			res.Data[s] = model.Quote{Symbol: s, Price: decimal.NewFromInt(1)}
		}
		res.Summary = gateway.Summary{Total: len(symbols), Successful: len(symbols)}
		return res, nil
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MinInterval = time.Millisecond
	cfg.DefaultInterval = time.Hour
	cfg.MaxInterval = 2 * time.Hour
	cfg.RestartDelay = 0
	cfg.PollTimeout = time.Second
	cfg.Retry = resilience.RetryConfig{MaxRetries: 0, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	return cfg
}

func newTestScheduler(t *testing.T, f Fetcher) (*Scheduler, *events.Bus) {
	t.Helper()
	bus := events.NewBus(events.BusConfig{}, nil)
	s := New(testConfig(), f, bus)
	t.Cleanup(func() {
		s.Stop(context.Background())
		bus.Close()
	})
	return s, bus
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func nextEvent(t *testing.T, sub *events.Subscription) events.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ev, err := sub.Next(ctx)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	return ev
}

func TestScheduler_StartPollsImmediately(t *testing.T) {
	var calls atomic.Int32
	s, bus := newTestScheduler(t, okFetcher(&calls))
	sub := bus.Subscribe(events.KindStarted, events.KindDataUpdate)
	defer sub.Close()

	if err := s.AddTarget(Target{Name: "bist30", Symbols: []string{"thyao", "garan"}, Enabled: true, Market: true}); err != nil {
		t.Fatalf("AddTarget() error = %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if ev := nextEvent(t, sub); ev.Kind != events.KindStarted {
		t.Fatalf("first event = %s, want started", ev.Kind)
	}
	ev := nextEvent(t, sub)
	update, ok := ev.Payload.(DataUpdateEvent)
	if !ok {
		t.Fatalf("payload = %T, want DataUpdateEvent", ev.Payload)
	}
	if update.Target != "bist30" || !update.Market || len(update.Data) != 2 {
		t.Errorf("update = %+v", update)
	}
	if update.Timestamp.IsZero() {
		t.Error("payload Timestamp not set")
	}

	st := s.Stats()
	if st.TotalPolls != 1 || st.SuccessfulPolls != 1 || st.SymbolsPolled != 2 {
		t.Errorf("Stats = %+v", st)
	}
	if !st.Running || st.ActiveTargets != 1 {
		t.Errorf("Running = %v, ActiveTargets = %d", st.Running, st.ActiveTargets)
	}
}

func TestScheduler_StopLeavesNoWorker(t *testing.T) {
	var calls atomic.Int32
	s, _ := newTestScheduler(t, okFetcher(&calls))

	s.AddTarget(Target{Name: "a", Symbols: []string{"A"}, Interval: 5 * time.Millisecond, Enabled: true})
	s.AddTarget(Target{Name: "b", Symbols: []string{"B"}, Interval: 5 * time.Millisecond, Enabled: true})
	s.AddTarget(Target{Name: "c", Symbols: []string{"C"}, Interval: 5 * time.Millisecond, Enabled: false})

	s.Start(context.Background())
	waitFor(t, "two workers", func() bool { return s.ActiveWorkers() == 2 })

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if n := s.ActiveWorkers(); n != 0 {
		t.Errorf("ActiveWorkers after Stop = %d, want 0", n)
	}
	if gens := s.liveGenerations(); len(gens) != 0 {
		t.Errorf("live generations after Stop = %v", gens)
	}

	after := calls.Load()
	time.Sleep(30 * time.Millisecond)
	if calls.Load() != after {
		t.Errorf("polls continued after Stop: %d -> %d", after, calls.Load())
	}
}

func TestScheduler_NoDuplicateWorkers(t *testing.T) {
	var calls atomic.Int32
	s, _ := newTestScheduler(t, okFetcher(&calls))

	s.AddTarget(Target{Name: "a", Symbols: []string{"A"}, Interval: 50 * time.Millisecond, Enabled: true})
	s.Start(context.Background())
	s.Start(context.Background())

	for i := 0; i < 20; i++ {
		iv := time.Duration(20+i) * time.Millisecond
		if _, err := s.UpdateTarget("a", TargetPatch{Interval: &iv}); err != nil {
			t.Fatalf("UpdateTarget() error = %v", err)
		}
	}
	off, on := false, true
	s.UpdateTarget("a", TargetPatch{Enabled: &off})
	s.UpdateTarget("a", TargetPatch{Enabled: &on})

	waitFor(t, "single worker", func() bool { return s.ActiveWorkers() == 1 })
	if gens := s.liveGenerations(); len(gens) != 1 {
		t.Errorf("live generations = %v, want exactly one", gens)
	}
}

func TestScheduler_SymbolUpdateKeepsWorker(t *testing.T) {
	var calls atomic.Int32
	s, _ := newTestScheduler(t, okFetcher(&calls))

	s.AddTarget(Target{Name: "a", Symbols: []string{"A"}, Interval: time.Hour, Enabled: true})
	s.Start(context.Background())
	before := s.liveGenerations()["a"]

	syms := []string{"A", "B"}
	got, err := s.UpdateTarget("a", TargetPatch{Symbols: &syms})
	if err != nil {
		t.Fatalf("UpdateTarget() error = %v", err)
	}
	if len(got.Symbols) != 2 {
		t.Errorf("Symbols = %v, want 2", got.Symbols)
	}
	if after := s.liveGenerations()["a"]; after != before {
		t.Errorf("generation changed %d -> %d on symbol-only update", before, after)
	}
}

func TestScheduler_SkipIfBusy(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	f := fetcherFunc(func(ctx context.Context, symbols []string) (*gateway.Result, error) {
		calls.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return &gateway.Result{Data: map[string]model.Quote{}}, nil
	})
	s, bus := newTestScheduler(t, f)
	sub := bus.Subscribe(events.KindPollSkipped)
	defer sub.Close()

	s.AddTarget(Target{Name: "slow", Symbols: []string{"A"}, Interval: 5 * time.Millisecond, Enabled: true})
	s.Start(context.Background())

	ev := nextEvent(t, sub)
	if p, ok := ev.Payload.(PollSkippedEvent); !ok || p.Target != "slow" {
		t.Errorf("payload = %+v, want PollSkippedEvent for slow", ev.Payload)
	}
	if calls.Load() != 1 {
		t.Errorf("concurrent fetches = %d, want 1", calls.Load())
	}
	close(release)
	if s.Stats().SkippedPolls == 0 {
		t.Error("SkippedPolls = 0, want > 0")
	}
}

func TestScheduler_PollErrorStats(t *testing.T) {
	errDown := errors.New("down")
	f := fetcherFunc(func(ctx context.Context, symbols []string) (*gateway.Result, error) {
		return &gateway.Result{}, errDown
	})
	s, bus := newTestScheduler(t, f)
	sub := bus.Subscribe(events.KindPollError)
	defer sub.Close()

	s.AddTarget(Target{Name: "a", Symbols: []string{"A"}, Enabled: true})
	s.Start(context.Background())

	ev := nextEvent(t, sub)
	p, ok := ev.Payload.(PollErrorEvent)
	if !ok {
		t.Fatalf("payload = %T, want PollErrorEvent", ev.Payload)
	}
	if p.ConsecutiveFailures != 1 {
		t.Errorf("ConsecutiveFailures = %d, want 1", p.ConsecutiveFailures)
	}

	st := s.Stats()
	if st.FailedPolls != 1 || st.LastError == "" || st.LastErrorAt.IsZero() {
		t.Errorf("Stats = %+v", st)
	}

	s.ClearStats()
	if st := s.Stats(); st.TotalPolls != 0 || st.FailedPolls != 0 {
		t.Errorf("Stats after ClearStats = %+v", st)
	}
}

func TestScheduler_TargetValidation(t *testing.T) {
	s, _ := newTestScheduler(t, okFetcher(new(atomic.Int32)))

	tests := []struct {
		name    string
		target  Target
		wantErr error
	}{
		{"missing name", Target{Symbols: []string{"A"}}, resilience.ErrValidation},
		{"no symbols", Target{Name: "x", Symbols: []string{" "}}, resilience.ErrValidation},
		{"interval too long", Target{Name: "x", Symbols: []string{"A"}, Interval: 3 * time.Hour}, resilience.ErrValidation},
		{"bad priority", Target{Name: "x", Symbols: []string{"A"}, Priority: "urgent"}, resilience.ErrValidation},
		{"reserved name", Target{Name: SubscriptionsTarget, Symbols: []string{"A"}}, resilience.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.AddTarget(tt.target); !errors.Is(err, tt.wantErr) {
				t.Errorf("AddTarget() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if err := s.AddTarget(Target{Name: "x", Symbols: []string{"A"}}); err != nil {
		t.Fatalf("AddTarget() error = %v", err)
	}
	if err := s.AddTarget(Target{Name: "x", Symbols: []string{"B"}}); !errors.Is(err, ErrTargetExists) {
		t.Errorf("duplicate AddTarget() error = %v, want ErrTargetExists", err)
	}
	if err := s.RemoveTarget("nope"); !errors.Is(err, ErrTargetNotFound) {
		t.Errorf("RemoveTarget() error = %v, want ErrTargetNotFound", err)
	}
	if _, err := s.UpdateTarget("nope", TargetPatch{}); !errors.Is(err, ErrTargetNotFound) {
		t.Errorf("UpdateTarget() error = %v, want ErrTargetNotFound", err)
	}

	tg, _ := s.Target("x")
	if tg.Interval != time.Hour || tg.Priority != PriorityMedium {
		t.Errorf("defaults not applied: %+v", tg)
	}
}

func TestScheduler_TargetsOrder(t *testing.T) {
	s, _ := newTestScheduler(t, okFetcher(new(atomic.Int32)))
	s.AddTarget(Target{Name: "b", Symbols: []string{"A"}, Priority: PriorityLow})
	s.AddTarget(Target{Name: "c", Symbols: []string{"A"}, Priority: PriorityHigh})
	s.AddTarget(Target{Name: "a", Symbols: []string{"A"}, Priority: PriorityHigh})

	var names []string
	for _, tg := range s.Targets() {
		names = append(names, tg.Name)
	}
	if len(names) != 3 || names[0] != "a" || names[1] != "c" || names[2] != "b" {
		t.Errorf("Targets order = %v, want [a c b]", names)
	}
}

func TestScheduler_CoverUncover(t *testing.T) {
	var calls atomic.Int32
	s, _ := newTestScheduler(t, okFetcher(&calls))
	s.Start(context.Background())

	s.Cover("thyao")
	s.Cover("THYAO")
	s.Cover("garan")

	tg, ok := s.Target(SubscriptionsTarget)
	if !ok {
		t.Fatal("subscriptions target not created")
	}
	if len(tg.Symbols) != 2 || tg.Priority != PriorityHigh {
		t.Errorf("subscriptions target = %+v", tg)
	}
	waitFor(t, "subscriptions worker", func() bool { return s.ActiveWorkers() == 1 })

	s.Uncover("THYAO")
	if tg, _ := s.Target(SubscriptionsTarget); len(tg.Symbols) != 1 {
		t.Errorf("symbols after Uncover = %v", tg.Symbols)
	}
	s.Uncover("GARAN")
	if _, ok := s.Target(SubscriptionsTarget); ok {
		t.Error("subscriptions target should be removed when empty")
	}
	waitFor(t, "worker exit", func() bool { return s.ActiveWorkers() == 0 })
}

func TestScheduler_UpdateConfig(t *testing.T) {
	s, _ := newTestScheduler(t, okFetcher(new(atomic.Int32)))

	retries := 11
	if err := s.UpdateConfig(ConfigPatch{MaxRetries: &retries}); !errors.Is(err, resilience.ErrValidation) {
		t.Errorf("UpdateConfig(retries=11) error = %v, want ErrValidation", err)
	}
	if s.Config().Retry.MaxRetries != 0 {
		t.Error("rejected patch must not be applied")
	}

	retries = 5
	threshold := 7
	if err := s.UpdateConfig(ConfigPatch{MaxRetries: &retries, FailureThreshold: &threshold}); err != nil {
		t.Fatalf("UpdateConfig() error = %v", err)
	}
	cfg := s.Config()
	if cfg.Retry.MaxRetries != 5 || cfg.Breaker.FailureThreshold != 7 {
		t.Errorf("Config = %+v", cfg)
	}
}

func TestScheduler_Restart(t *testing.T) {
	var calls atomic.Int32
	s, bus := newTestScheduler(t, okFetcher(&calls))
	sub := bus.Subscribe(events.KindStarted, events.KindStopped)
	defer sub.Close()

	s.AddTarget(Target{Name: "a", Symbols: []string{"A"}, Enabled: true})
	s.Start(context.Background())

	if err := s.Restart(context.Background()); err != nil {
		t.Fatalf("Restart() error = %v", err)
	}

	var kinds []events.Kind
	for i := 0; i < 3; i++ {
		kinds = append(kinds, nextEvent(t, sub).Kind)
	}
	want := []events.Kind{events.KindStarted, events.KindStopped, events.KindStarted}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("events = %v, want %v", kinds, want)
		}
	}
	if !s.IsRunning() {
		t.Error("scheduler not running after Restart")
	}
	waitFor(t, "single worker", func() bool { return s.ActiveWorkers() == 1 })
}

func TestScheduler_ConcurrentMutations(t *testing.T) {
	var calls atomic.Int32
	s, _ := newTestScheduler(t, okFetcher(&calls))
	s.Start(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sym := string(rune('A' + i))
			s.Cover(sym)
			iv := time.Duration(10+i) * time.Millisecond
			s.AddTarget(Target{Name: sym, Symbols: []string{sym}, Interval: iv, Enabled: true})
			s.UpdateTarget(sym, TargetPatch{Interval: &iv})
			s.Uncover(sym)
		}(i)
	}
	wg.Wait()

	waitFor(t, "one worker per target", func() bool { return s.ActiveWorkers() == len(s.Targets()) })
	if len(s.Targets()) != 8 {
		t.Errorf("targets = %d, want 8", len(s.Targets()))
	}
}

func TestScheduler_FailingTargetDoesNotTripOthers(t *testing.T) {
	p := &providertest.Fake{
		Prices:  map[string]float64{"GOOD": 10},
		Fail:    map[string]bool{"BAD": true},
		FailErr: errors.New("upstream down"),
	}
	gw := gateway.New(p, cache.New[model.Quote](cache.Config{MaxSize: 10}), gateway.Config{QuoteTTL: time.Millisecond})

	cfg := testConfig()
	cfg.Breaker = resilience.BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour}
	bus := events.NewBus(events.BusConfig{}, nil)
	s := New(cfg, gw, bus)
	t.Cleanup(func() {
		s.Stop(context.Background())
		bus.Close()
	})

	s.AddTarget(Target{Name: "bad", Symbols: []string{"BAD"}, Interval: 5 * time.Millisecond, Enabled: true})
	s.AddTarget(Target{Name: "good", Symbols: []string{"GOOD"}, Interval: 5 * time.Millisecond, Enabled: true})
	s.Start(context.Background())

	waitFor(t, "bad breaker open", func() bool {
		return s.Executor().State("bad") == resilience.StateOpen
	})

	sub := bus.Subscribe(events.KindDataUpdate)
	defer sub.Close()
	for i := 0; i < 3; i++ {
		ev := nextEvent(t, sub)
		update, ok := ev.Payload.(DataUpdateEvent)
		if !ok || update.Target != "good" {
			t.Fatalf("payload = %+v, want DataUpdateEvent for good", ev.Payload)
		}
		if _, ok := update.Data["GOOD"]; !ok {
			t.Errorf("update data = %v, want GOOD", update.Data)
		}
	}
	if st := s.Executor().State("good"); st != resilience.StateClosed {
		t.Errorf("good breaker = %s, want CLOSED", st)
	}
}

func TestScheduler_StartWhileStopDrains(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	unblock := sync.OnceFunc(func() { close(release) })
	var first atomic.Bool
	f := fetcherFunc(func(ctx context.Context, symbols []string) (*gateway.Result, error) {
		if first.CompareAndSwap(false, true) {
			close(entered)
			// Slow to notice cancellation.
			<-release
		}
		return okFetcher(new(atomic.Int32))(ctx, symbols)
	})
	s, bus := newTestScheduler(t, f)
	t.Cleanup(unblock)
	sub := bus.Subscribe(events.KindStopped)
	defer sub.Close()

	s.AddTarget(Target{Name: "a", Symbols: []string{"A"}, Enabled: true})
	s.Start(context.Background())
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	stopErr := make(chan error, 1)
	go func() { stopErr <- s.Stop(ctx) }()

	waitFor(t, "stop to begin", func() bool { return !s.IsRunning() })
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, "worker of the new run", func() bool { return len(s.liveGenerations()) == 1 })

	unblock()
	if err := <-stopErr; err != nil {
		t.Fatalf("Stop() error = %v, want nil while the next run keeps working", err)
	}
	if ev := nextEvent(t, sub); ev.Kind != events.KindStopped {
		t.Errorf("event = %s, want stopped", ev.Kind)
	}
	if !s.IsRunning() {
		t.Error("IsRunning = false, want the second run still active")
	}
}

func TestScheduler_RemoveForgetsBreaker(t *testing.T) {
	f := fetcherFunc(func(ctx context.Context, symbols []string) (*gateway.Result, error) {
		return &gateway.Result{}, errors.New("down")
	})
	cfg := testConfig()
	cfg.Breaker = resilience.BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour}
	bus := events.NewBus(events.BusConfig{}, nil)
	s := New(cfg, f, bus)
	t.Cleanup(func() {
		s.Stop(context.Background())
		bus.Close()
	})
	s.Start(context.Background())

	tests := []struct {
		name   string
		key    string
		add    func()
		remove func()
	}{
		{
			name:   "remove target",
			key:    "x",
			add:    func() { s.AddTarget(Target{Name: "x", Symbols: []string{"X"}, Enabled: true}) },
			remove: func() { s.RemoveTarget("x") },
		},
		{
			name:   "last subscription dropped",
			key:    SubscriptionsTarget,
			add:    func() { s.Cover("Y") },
			remove: func() { s.Uncover("Y") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.add()
			waitFor(t, "breaker open", func() bool {
				return s.Executor().State(tt.key) == resilience.StateOpen
			})

			tt.remove()
			if _, ok := s.Executor().States()[tt.key]; ok {
				t.Errorf("breaker for %q still tracked after removal", tt.key)
			}
			if st := s.Executor().State(tt.key); st != resilience.StateClosed {
				t.Errorf("State(%q) = %s, want CLOSED", tt.key, st)
			}
		})
	}
}

func TestScheduler_ReAddedTargetWaitsForPreviousPoll(t *testing.T) {
	release := make(chan struct{})
	var inFlight, maxInFlight atomic.Int32
	f := fetcherFunc(func(ctx context.Context, symbols []string) (*gateway.Result, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		<-release
		return okFetcher(new(atomic.Int32))(ctx, symbols)
	})
	s, bus := newTestScheduler(t, f)
	t.Cleanup(func() { close(release) })
	sub := bus.Subscribe(events.KindPollSkipped)
	defer sub.Close()

	target := Target{Name: "a", Symbols: []string{"A"}, Enabled: true}
	s.AddTarget(target)
	s.Start(context.Background())
	waitFor(t, "first poll in flight", func() bool { return inFlight.Load() == 1 })

	if err := s.RemoveTarget("a"); err != nil {
		t.Fatalf("RemoveTarget() error = %v", err)
	}
	if err := s.AddTarget(target); err != nil {
		t.Fatalf("AddTarget() error = %v", err)
	}

	ev := nextEvent(t, sub)
	if p, ok := ev.Payload.(PollSkippedEvent); !ok || p.Target != "a" {
		t.Errorf("payload = %+v, want PollSkippedEvent for a", ev.Payload)
	}
	if n := maxInFlight.Load(); n != 1 {
		t.Errorf("concurrent polls for a = %d, want 1", n)
	}
}
