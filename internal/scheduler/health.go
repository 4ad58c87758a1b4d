package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/events"
)

// HealthStatus evaluates the current statistics against the configured
// thresholds.
func (s *Scheduler) HealthStatus() HealthStatus {
	st := s.Stats()
	th := s.Config().Health
	now := s.now()

	h := HealthStatus{
		Status:              StatusHealthy,
		Issues:              []string{},
		ConsecutiveFailures: st.ConsecutiveFailures,
		Running:             st.Running,
		Timestamp:           now,
	}

	raise := func(status, issue string) {
		h.Issues = append(h.Issues, issue)
		if status == StatusError || h.Status == StatusHealthy {
			h.Status = status
		}
	}

	if !st.Running {
		raise(StatusWarning, "scheduler is not running")
	}

	switch cf := st.ConsecutiveFailures; {
	case cf >= th.ConsecutiveFailuresError:
		raise(StatusError, fmt.Sprintf("%d consecutive poll failures", cf))
	case cf >= th.ConsecutiveFailuresWarning:
		raise(StatusWarning, fmt.Sprintf("%d consecutive poll failures", cf))
	}

	if st.TotalPolls > 0 {
		since := st.LastSuccessAt
		if since.IsZero() {
			since = st.StartedAt
		}
		if !since.IsZero() {
			h.TimeSinceLastSuccess = now.Sub(since)
			switch d := h.TimeSinceLastSuccess; {
			case d >= th.SinceSuccessError:
				raise(StatusError, fmt.Sprintf("no successful poll for %s", d.Round(time.Second)))
			case d >= th.SinceSuccessWarning:
				raise(StatusWarning, fmt.Sprintf("no successful poll for %s", d.Round(time.Second)))
			}
		}

		h.FailureRate = float64(st.FailedPolls) / float64(st.TotalPolls)
		switch r := h.FailureRate; {
		case r >= th.FailureRateError:
			raise(StatusError, fmt.Sprintf("failure rate %.0f%%", r*100))
		case r >= th.FailureRateWarning:
			raise(StatusWarning, fmt.Sprintf("failure rate %.0f%%", r*100))
		}
	}

	return h
}

// CheckHealth publishes a healthCheck event and restarts the scheduler when
// the status is error with at least AutoRestartFailures consecutive failures.
func (s *Scheduler) CheckHealth(ctx context.Context) (HealthStatus, error) {
	h := s.HealthStatus()
	s.bus.Publish(events.KindHealthCheck, h)

	if h.Status != StatusHealthy {
		s.logger.Warn("health check", "status", h.Status, "issues", h.Issues)
	} else {
		s.logger.Debug("health check", "status", h.Status)
	}

	if !h.Running || h.Status != StatusError || h.ConsecutiveFailures < s.Config().AutoRestartFailures {
		return h, nil
	}
	if !s.restarting.CompareAndSwap(false, true) {
		return h, nil
	}
	defer s.restarting.Store(false)

	s.logger.Warn("auto-restarting unhealthy scheduler", "consecutive_failures", h.ConsecutiveFailures)
	if err := s.Restart(ctx); err != nil {
		return h, fmt.Errorf("auto restart: %w", err)
	}

	// A fresh run starts a fresh failure streak.
	s.statsMu.Lock()
	s.stats.ConsecutiveFailures = 0
	s.statsMu.Unlock()
	return h, nil
}
