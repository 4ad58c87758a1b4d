package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/events"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/gateway"
)

func TestHealthStatus(t *testing.T) {
	now := time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		stats      Stats
		running    bool
		wantStatus string
		wantIssues int
	}{
		{
			name:       "fresh and running",
			running:    true,
			wantStatus: StatusHealthy,
		},
		{
			name:       "stopped",
			running:    false,
			wantStatus: StatusWarning,
			wantIssues: 1,
		},
		{
			name:    "healthy polling",
			running: true,
			stats: Stats{
				TotalPolls: 10, SuccessfulPolls: 9, FailedPolls: 1,
				LastSuccessAt: now.Add(-time.Minute),
			},
			wantStatus: StatusHealthy,
		},
		{
			name:    "three consecutive failures",
			running: true,
			stats: Stats{
				TotalPolls: 20, SuccessfulPolls: 17, FailedPolls: 3,
				ConsecutiveFailures: 3, LastSuccessAt: now.Add(-time.Minute),
			},
			wantStatus: StatusWarning,
			wantIssues: 1,
		},
		{
			name:    "five consecutive failures",
			running: true,
			stats: Stats{
				TotalPolls: 100, SuccessfulPolls: 95, FailedPolls: 5,
				ConsecutiveFailures: 5, LastSuccessAt: now.Add(-time.Minute),
			},
			wantStatus: StatusError,
			wantIssues: 1,
		},
		{
			name:    "stale success",
			running: true,
			stats: Stats{
				TotalPolls: 10, SuccessfulPolls: 10,
				LastSuccessAt: now.Add(-6 * time.Minute),
			},
			wantStatus: StatusWarning,
			wantIssues: 1,
		},
		{
			name:    "very stale success",
			running: true,
			stats: Stats{
				TotalPolls: 10, SuccessfulPolls: 10,
				LastSuccessAt: now.Add(-16 * time.Minute),
			},
			wantStatus: StatusError,
			wantIssues: 1,
		},
		{
			name:    "high failure rate",
			running: true,
			stats: Stats{
				TotalPolls: 10, SuccessfulPolls: 7, FailedPolls: 3,
				LastSuccessAt: now,
			},
			wantStatus: StatusWarning,
			wantIssues: 1,
		},
		{
			name:    "never succeeded",
			running: true,
			stats: Stats{
				TotalPolls: 6, FailedPolls: 6, ConsecutiveFailures: 6,
				StartedAt: now.Add(-20 * time.Minute),
			},
			wantStatus: StatusError,
			wantIssues: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(Config{}, nil, nil, WithClock(func() time.Time { return now }))
			s.stats = tt.stats
			s.running = tt.running

			h := s.HealthStatus()
			if h.Status != tt.wantStatus {
				t.Errorf("Status = %s, want %s (issues %v)", h.Status, tt.wantStatus, h.Issues)
			}
			if len(h.Issues) != tt.wantIssues {
				t.Errorf("Issues = %v, want %d", h.Issues, tt.wantIssues)
			}
		})
	}
}

func TestCheckHealth_AutoRestart(t *testing.T) {
	errDown := errors.New("down")
	var calls atomic.Int32
	f := fetcherFunc(func(ctx context.Context, symbols []string) (*gateway.Result, error) {
		calls.Add(1)
		return &gateway.Result{}, errDown
	})

	cfg := testConfig()
	cfg.AutoRestartFailures = 2
	cfg.Health.ConsecutiveFailuresWarning = 1
	cfg.Health.ConsecutiveFailuresError = 2
	cfg.Breaker.FailureThreshold = 100

	bus := events.NewBus(events.BusConfig{}, nil)
	defer bus.Close()
	s := New(cfg, f, bus)
	defer s.Stop(context.Background())

	sub := bus.Subscribe(events.KindHealthCheck, events.KindStopped)
	defer sub.Close()

	s.AddTarget(Target{Name: "a", Symbols: []string{"A"}, Interval: 5 * time.Millisecond, Enabled: true})
	s.Start(context.Background())
	waitFor(t, "two failures", func() bool { return s.Stats().ConsecutiveFailures >= 2 })

	h, err := s.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth() error = %v", err)
	}
	if h.Status != StatusError {
		t.Errorf("Status = %s, want error", h.Status)
	}

	if ev := nextEvent(t, sub); ev.Kind != events.KindHealthCheck {
		t.Errorf("first event = %s, want healthCheck", ev.Kind)
	}
	if ev := nextEvent(t, sub); ev.Kind != events.KindStopped {
		t.Errorf("second event = %s, want stopped (restart)", ev.Kind)
	}
	if !s.IsRunning() {
		t.Error("scheduler should be running after auto restart")
	}
}

func TestCheckHealth_NoRestartWhenHealthy(t *testing.T) {
	var calls atomic.Int32
	s, bus := newTestScheduler(t, okFetcher(&calls))
	sub := bus.Subscribe(events.KindStopped)
	defer sub.Close()

	s.Start(context.Background())
	h, err := s.CheckHealth(context.Background())
	if err != nil || h.Status != StatusHealthy {
		t.Fatalf("CheckHealth() = (%s, %v), want healthy", h.Status, err)
	}

	if sub.Stats().TotalReceived != 0 {
		t.Error("healthy scheduler must not restart")
	}
}
