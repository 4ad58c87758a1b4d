package service

import (
	"context"
	"fmt"
)

// scheduleJobs registers the periodic maintenance jobs. Each job runs in
// singleton mode so a slow run is never overlapped by the next one.
func (s *Service) scheduleJobs(ctx context.Context) error {
	_, err := s.cron.Every(s.cfg.Cache.CleanupInterval).SingletonMode().Do(func() {
		if n := s.cache.Cleanup(); n > 0 {
			s.logger.Debug("cache cleanup", "expired", n, "size", s.cache.Len())
		}
	})
	if err != nil {
		return fmt.Errorf("schedule cache cleanup: %w", err)
	}

	_, err = s.cron.Every(s.cfg.Health.CheckInterval).SingletonMode().Do(func() {
		if _, err := s.scheduler.CheckHealth(ctx); err != nil {
			s.logger.Error("health check failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule health check: %w", err)
	}
	return nil
}
