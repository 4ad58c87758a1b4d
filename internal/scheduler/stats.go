package scheduler

import (
	"time"
)

func (s *Scheduler) recordSkipped() {
	s.statsMu.Lock()
	s.stats.SkippedPolls++
	s.statsMu.Unlock()
}

func (s *Scheduler) recordSuccess(symbols int, elapsed time.Duration) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	now := s.now()
	s.recordPollLocked(symbols, elapsed, now)
	s.stats.SuccessfulPolls++
	s.stats.LastSuccessAt = now
	s.stats.ConsecutiveFailures = 0
}

// recordFailure returns the new consecutive failure count.
func (s *Scheduler) recordFailure(symbols int, elapsed time.Duration, err error) int {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	now := s.now()
	s.recordPollLocked(symbols, elapsed, now)
	s.stats.FailedPolls++
	s.stats.LastErrorAt = now
	s.stats.LastError = err.Error()
	s.stats.ConsecutiveFailures++
	return s.stats.ConsecutiveFailures
}

func (s *Scheduler) recordPollLocked(symbols int, elapsed time.Duration, now time.Time) {
	s.stats.TotalPolls++
	s.stats.SymbolsPolled += int64(symbols)
	s.stats.LastPollAt = now
	// Running mean over all polls.
	n := time.Duration(s.stats.TotalPolls)
	s.stats.AverageResponseTime += (elapsed - s.stats.AverageResponseTime) / n
}

// Stats returns a snapshot of the polling statistics.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	running := s.running
	active := 0
	for _, ts := range s.targets {
		if ts.gen != 0 {
			active++
		}
	}
	s.mu.Unlock()

	s.statsMu.Lock()
	st := s.stats
	s.statsMu.Unlock()

	st.Running = running
	st.ActiveTargets = active
	if running && !st.StartedAt.IsZero() {
		st.Uptime = s.now().Sub(st.StartedAt)
	}
	return st
}

// ClearStats zeroes the statistics. StartedAt is kept while running.
func (s *Scheduler) ClearStats() {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	started := s.stats.StartedAt
	s.stats = Stats{StartedAt: started}
	s.logger.Info("statistics cleared")
}
