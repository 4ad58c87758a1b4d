package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/config"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/database"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/scheduler"
)

// seedTargets registers configured and stored targets with the scheduler.
// A stored target replaces a configured one of the same name; configured
// targets missing from the store are written to it.
func (s *Service) seedTargets(ctx context.Context) error {
	byName := make(map[string]scheduler.Target)
	var order []string
	for _, tc := range s.cfg.Targets {
		byName[tc.Name] = targetFromConfig(tc)
		order = append(order, tc.Name)
	}

	if s.store != nil {
		stored, err := s.store.List(ctx)
		if err != nil {
			return fmt.Errorf("load targets: %w", err)
		}

		known := make(map[string]bool, len(stored))
		for _, t := range stored {
			known[t.Name] = true
			if _, ok := byName[t.Name]; !ok {
				order = append(order, t.Name)
			}
			byName[t.Name] = t
		}

		var missing []scheduler.Target
		for _, tc := range s.cfg.Targets {
			if !known[tc.Name] {
				missing = append(missing, byName[tc.Name])
			}
		}
		if err := s.store.UpsertAll(ctx, missing); err != nil {
			return fmt.Errorf("store configured targets: %w", err)
		}
		s.logger.Info("targets loaded from store", "stored", len(stored), "added", len(missing))
	}

	for _, name := range order {
		if _, exists := s.scheduler.Target(name); exists {
			continue
		}
		if err := s.scheduler.AddTarget(byName[name]); err != nil {
			return fmt.Errorf("add target %q: %w", name, err)
		}
	}
	return nil
}

func targetFromConfig(tc config.TargetConfig) scheduler.Target {
	return scheduler.Target{
		Name:     tc.Name,
		Symbols:  tc.Symbols,
		Interval: tc.Interval,
		Priority: scheduler.Priority(tc.Priority),
		Enabled:  tc.IsEnabled(),
		Market:   tc.Market,
	}
}

// AddTarget registers t with the scheduler and persists it.
func (s *Service) AddTarget(ctx context.Context, t scheduler.Target) (scheduler.Target, error) {
	if err := s.scheduler.AddTarget(t); err != nil {
		return scheduler.Target{}, err
	}
	added, _ := s.scheduler.Target(t.Name)
	if err := s.persist(ctx, added); err != nil {
		return added, err
	}
	return added, nil
}

// UpdateTarget patches a target and persists the result.
func (s *Service) UpdateTarget(ctx context.Context, name string, patch scheduler.TargetPatch) (scheduler.Target, error) {
	updated, err := s.scheduler.UpdateTarget(name, patch)
	if err != nil {
		return scheduler.Target{}, err
	}
	if err := s.persist(ctx, updated); err != nil {
		return updated, err
	}
	return updated, nil
}

// RemoveTarget removes a target and deletes it from the store.
func (s *Service) RemoveTarget(ctx context.Context, name string) error {
	if err := s.scheduler.RemoveTarget(name); err != nil {
		return err
	}
	if s.store == nil || name == scheduler.SubscriptionsTarget {
		return nil
	}
	if err := s.store.Delete(ctx, name); err != nil && !errors.Is(err, database.ErrTargetNotFound) {
		s.logger.Warn("target removed but not deleted from store", "target", name, "error", err)
		return fmt.Errorf("delete stored target: %w", err)
	}
	return nil
}

func (s *Service) persist(ctx context.Context, t scheduler.Target) error {
	if s.store == nil || t.Name == scheduler.SubscriptionsTarget {
		return nil
	}
	if err := s.store.Upsert(ctx, t); err != nil {
		s.logger.Warn("target applied but not stored", "target", t.Name, "error", err)
		return fmt.Errorf("store target: %w", err)
	}
	return nil
}
