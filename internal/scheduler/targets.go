package scheduler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/model"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/resilience"
)

// AddTarget registers a target. A zero Interval uses DefaultInterval and an
// empty Priority means medium. If the scheduler is running and the target is
// enabled its worker starts immediately.
func (s *Scheduler) AddTarget(t Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.Name == SubscriptionsTarget {
		return resilience.Validation("target name %q is reserved", SubscriptionsTarget)
	}
	return s.addTargetLocked(t)
}

func (s *Scheduler) addTargetLocked(t Target) error {
	t, err := s.normalizeTarget(t)
	if err != nil {
		return err
	}
	if _, ok := s.targets[t.Name]; ok {
		return fmt.Errorf("%w: %s", ErrTargetExists, t.Name)
	}

	ts := &targetState{target: t, pollMu: s.pollLockLocked(t.Name)}
	s.targets[t.Name] = ts
	if s.running && t.Enabled {
		s.startWorkerLocked(ts)
	}

	s.logger.Info("target added",
		"target", t.Name,
		"symbols", len(t.Symbols),
		"interval", t.Interval,
		"enabled", t.Enabled,
	)
	return nil
}

// RemoveTarget stops and removes a target.
func (s *Scheduler) RemoveTarget(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts, ok := s.targets[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTargetNotFound, name)
	}
	s.stopWorkerLocked(ts)
	delete(s.targets, name)
	// A target added later under the same name starts with a closed breaker.
	s.exec.Forget(name)

	s.logger.Info("target removed", "target", name)
	return nil
}

// UpdateTarget applies patch to a target. The worker is restarted only when
// the interval or enabled flag changes; symbol changes take effect on the
// next tick.
func (s *Scheduler) UpdateTarget(name string, patch TargetPatch) (Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts, ok := s.targets[name]
	if !ok {
		return Target{}, fmt.Errorf("%w: %s", ErrTargetNotFound, name)
	}

	next := ts.target
	next.Symbols = slices.Clone(next.Symbols)
	if patch.Symbols != nil {
		next.Symbols = *patch.Symbols
	}
	if patch.Interval != nil {
		next.Interval = *patch.Interval
	}
	if patch.Priority != nil {
		next.Priority = *patch.Priority
	}
	if patch.Enabled != nil {
		next.Enabled = *patch.Enabled
	}
	if patch.Market != nil {
		next.Market = *patch.Market
	}

	next, err := s.normalizeTarget(next)
	if err != nil {
		return Target{}, err
	}

	prev := ts.target
	ts.target = next

	if prev.Interval != next.Interval || prev.Enabled != next.Enabled {
		s.restartWorkerLocked(ts)
	}

	s.logger.Info("target updated",
		"target", name,
		"symbols", len(next.Symbols),
		"interval", next.Interval,
		"enabled", next.Enabled,
	)
	return cloneTarget(next), nil
}

// Target returns a copy of the named target.
func (s *Scheduler) Target(name string) (Target, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts, ok := s.targets[name]
	if !ok {
		return Target{}, false
	}
	return cloneTarget(ts.target), true
}

// Targets returns copies of every target ordered by priority, then name.
func (s *Scheduler) Targets() []Target {
	s.mu.Lock()
	out := make([]Target, 0, len(s.targets))
	for _, ts := range s.targets {
		out = append(out, cloneTarget(ts.target))
	}
	s.mu.Unlock()

	slices.SortFunc(out, func(a, b Target) int {
		if d := a.Priority.rank() - b.Priority.rank(); d != 0 {
			return d
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// Cover adds symbol to the subscriptions target, creating it on first use.
func (s *Scheduler) Cover(symbol string) {
	sym := model.NormalizeSymbol(symbol)
	if sym == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ts, ok := s.targets[SubscriptionsTarget]
	if !ok {
		err := s.addTargetLocked(Target{
			Name:     SubscriptionsTarget,
			Symbols:  []string{sym},
			Interval: s.cfg.SubscriptionInterval,
			Priority: PriorityHigh,
			Enabled:  true,
		})
		if err != nil {
			s.logger.Error("failed to create subscriptions target", "error", err)
		}
		return
	}
	if !slices.Contains(ts.target.Symbols, sym) {
		ts.target.Symbols = append(slices.Clone(ts.target.Symbols), sym)
		s.logger.Debug("symbol covered", "symbol", sym, "symbols", len(ts.target.Symbols))
	}
}

// Uncover removes symbol from the subscriptions target and drops the target
// once it has no symbols left.
func (s *Scheduler) Uncover(symbol string) {
	sym := model.NormalizeSymbol(symbol)

	s.mu.Lock()
	defer s.mu.Unlock()

	ts, ok := s.targets[SubscriptionsTarget]
	if !ok {
		return
	}
	i := slices.Index(ts.target.Symbols, sym)
	if i < 0 {
		return
	}
	ts.target.Symbols = slices.Delete(slices.Clone(ts.target.Symbols), i, i+1)
	s.logger.Debug("symbol uncovered", "symbol", sym, "symbols", len(ts.target.Symbols))

	if len(ts.target.Symbols) == 0 {
		s.stopWorkerLocked(ts)
		delete(s.targets, SubscriptionsTarget)
		s.exec.Forget(SubscriptionsTarget)
		s.logger.Info("target removed", "target", SubscriptionsTarget)
	}
}

func (s *Scheduler) normalizeTarget(t Target) (Target, error) {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return t, resilience.Validation("target name is required")
	}
	t.Symbols = model.NormalizeSymbols(t.Symbols)
	if len(t.Symbols) == 0 {
		return t, resilience.Validation("target %q has no symbols", t.Name)
	}
	if t.Interval == 0 {
		t.Interval = s.cfg.DefaultInterval
	}
	if t.Interval < s.cfg.MinInterval || t.Interval > s.cfg.MaxInterval {
		return t, resilience.Validation("target %q interval %v out of range [%v, %v]",
			t.Name, t.Interval, s.cfg.MinInterval, s.cfg.MaxInterval)
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if !t.Priority.Valid() {
		return t, resilience.Validation("target %q has unknown priority %q", t.Name, t.Priority)
	}
	return t, nil
}

func cloneTarget(t Target) Target {
	t.Symbols = slices.Clone(t.Symbols)
	return t
}
