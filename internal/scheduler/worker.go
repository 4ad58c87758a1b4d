package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/events"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/gateway"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/resilience"
)

// startWorkerLocked launches a worker for ts under a fresh generation.
// Must be called with s.mu held and s.running true.
func (s *Scheduler) startWorkerLocked(ts *targetState) {
	s.nextGen++
	gen := s.nextGen
	ctx, cancel := context.WithCancel(s.runCtx)
	ts.gen = gen
	ts.cancel = cancel

	wg := s.runWG
	wg.Add(1)
	go s.run(ctx, wg, ts, gen, ts.target.Interval)
}

// stopWorkerLocked cancels the worker of ts, if any. Must be called with
// s.mu held.
func (s *Scheduler) stopWorkerLocked(ts *targetState) {
	if ts.cancel != nil {
		ts.cancel()
	}
	ts.cancel = nil
	ts.gen = 0
}

// restartWorkerLocked replaces the worker of ts according to its current
// settings. Must be called with s.mu held.
func (s *Scheduler) restartWorkerLocked(ts *targetState) {
	s.stopWorkerLocked(ts)
	if s.running && ts.target.Enabled {
		s.startWorkerLocked(ts)
	}
}

// pollLockLocked returns the poll lock for name, creating it on first use.
// Locks outlive their targets. Must be called with s.mu held.
func (s *Scheduler) pollLockLocked(name string) *sync.Mutex {
	mu, ok := s.pollLocks[name]
	if !ok {
		mu = &sync.Mutex{}
		s.pollLocks[name] = mu
	}
	return mu
}

// current reports whether gen is still the live generation of ts.
func (s *Scheduler) current(ts *targetState, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ts.gen == gen
}

// run is the per-target polling loop.
func (s *Scheduler) run(ctx context.Context, wg *sync.WaitGroup, ts *targetState, gen uint64, interval time.Duration) {
	defer wg.Done()
	s.workers.Add(1)
	defer s.workers.Add(-1)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Poll immediately on start.
	s.spawnPoll(ctx, wg, ts, gen)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.current(ts, gen) {
				return
			}
			s.spawnPoll(ctx, wg, ts, gen)
		}
	}
}

// spawnPoll runs a poll without blocking the ticker loop, so that a slow
// poll surfaces as skipped ticks. Stop waits for spawned polls.
func (s *Scheduler) spawnPoll(ctx context.Context, wg *sync.WaitGroup, ts *targetState, gen uint64) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.poll(ctx, ts, gen)
	}()
}

// poll fetches a target's symbols once. A poll that finds the previous one
// still running is skipped.
func (s *Scheduler) poll(ctx context.Context, ts *targetState, gen uint64) {
	s.mu.Lock()
	target := cloneTarget(ts.target)
	cfg := s.cfg
	s.mu.Unlock()

	logger := s.logger.With("target", target.Name)

	if !ts.pollMu.TryLock() {
		s.recordSkipped()
		s.metrics.PollSkipped(ctx, target.Name)
		logger.Warn("poll skipped, previous poll still running")
		s.bus.Publish(events.KindPollSkipped, PollSkippedEvent{Target: target.Name, Timestamp: s.now()})
		return
	}
	defer ts.pollMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("poll panicked", "panic", r)
			s.recordFailure(len(target.Symbols), 0, fmt.Errorf("panic: %v", r))
		}
	}()

	if ctx.Err() != nil || !s.current(ts, gen) {
		return
	}

	pctx, cancel := context.WithTimeout(ctx, cfg.PollTimeout)
	defer cancel()

	start := s.now()
	res, err := resilience.Do(pctx, s.exec, target.Name, func(ctx context.Context) (*gateway.Result, error) {
		return s.fetcher.Fetch(ctx, target.Symbols)
	}, cfg.Retry, cfg.Breaker)
	elapsed := s.now().Sub(start)

	if err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled) {
		logger.Debug("poll cancelled")
		return
	}

	s.metrics.PollCompleted(ctx, target.Name, elapsed, err)

	if err != nil {
		failures := s.recordFailure(len(target.Symbols), elapsed, err)
		logger.Warn("poll failed",
			"error", err,
			"consecutive_failures", failures,
			"duration", elapsed,
		)
		s.bus.Publish(events.KindPollError, PollErrorEvent{
			Target:              target.Name,
			Error:               err.Error(),
			ConsecutiveFailures: failures,
			Timestamp:           s.now(),
		})
		return
	}

	s.recordSuccess(len(target.Symbols), elapsed)
	logger.Debug("poll complete",
		"successful", res.Summary.Successful,
		"failed", res.Summary.Failed,
		"cached", res.Summary.Cached,
		"duration", elapsed,
	)

	now := s.now()
	s.bus.Publish(events.KindPollComplete, PollCompleteEvent{
		Target:    target.Name,
		Duration:  elapsed,
		Summary:   res.Summary,
		Timestamp: now,
	})
	if len(res.Data) > 0 {
		s.bus.Publish(events.KindDataUpdate, DataUpdateEvent{
			Target:    target.Name,
			Market:    target.Market,
			Data:      res.Data,
			Summary:   res.Summary,
			Timestamp: now,
		})
	}
}

// ActiveWorkers returns the number of live worker goroutines.
func (s *Scheduler) ActiveWorkers() int {
	return int(s.workers.Load())
}

// liveGenerations lists the generation of every target with a worker.
func (s *Scheduler) liveGenerations() map[string]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]uint64)
	for name, ts := range s.targets {
		if ts.gen != 0 {
			out[name] = ts.gen
		}
	}
	return out
}
