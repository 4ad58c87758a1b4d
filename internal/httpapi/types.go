package httpapi

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/scheduler"
)

// Duration accepts "30s" style strings or integer milliseconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case string:
		parsed, err := time.ParseDuration(x)
		if err != nil {
			return fmt.Errorf("invalid duration %q", x)
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(time.Duration(x) * time.Millisecond)
	default:
		return fmt.Errorf("invalid duration %s", b)
	}
	return nil
}

func (d *Duration) ptr() *time.Duration {
	if d == nil {
		return nil
	}
	v := time.Duration(*d)
	return &v
}

// targetRequest is the body of POST /api/targets.
type targetRequest struct {
	Name     string   `json:"name" binding:"required"`
	Symbols  []string `json:"symbols" binding:"required"`
	Interval Duration `json:"interval"`
	Priority string   `json:"priority"`
	Enabled  *bool    `json:"enabled"`
	Market   bool     `json:"market"`
}

func (r targetRequest) target() scheduler.Target {
	return scheduler.Target{
		Name:     r.Name,
		Symbols:  r.Symbols,
		Interval: time.Duration(r.Interval),
		Priority: scheduler.Priority(r.Priority),
		Enabled:  r.Enabled == nil || *r.Enabled,
		Market:   r.Market,
	}
}

// targetPatchRequest is the body of PATCH /api/targets/:name.
type targetPatchRequest struct {
	Symbols  *[]string `json:"symbols"`
	Interval *Duration `json:"interval"`
	Priority *string   `json:"priority"`
	Enabled  *bool     `json:"enabled"`
	Market   *bool     `json:"market"`
}

func (r targetPatchRequest) patch() scheduler.TargetPatch {
	p := scheduler.TargetPatch{
		Symbols:  r.Symbols,
		Interval: r.Interval.ptr(),
		Enabled:  r.Enabled,
		Market:   r.Market,
	}
	if r.Priority != nil {
		pr := scheduler.Priority(*r.Priority)
		p.Priority = &pr
	}
	return p
}

// configPatchRequest is the body of PATCH /api/config.
type configPatchRequest struct {
	DefaultInterval      *Duration `json:"defaultInterval"`
	SubscriptionInterval *Duration `json:"subscriptionInterval"`
	PollTimeout          *Duration `json:"pollTimeout"`
	AutoRestartFailures  *int      `json:"autoRestartFailures"`
	MaxRetries           *int      `json:"maxRetries"`
	BaseDelay            *Duration `json:"baseDelay"`
	MaxDelay             *Duration `json:"maxDelay"`
	FailureThreshold     *int      `json:"failureThreshold"`
	ResetTimeout         *Duration `json:"resetTimeout"`
}

func (r configPatchRequest) patch() scheduler.ConfigPatch {
	return scheduler.ConfigPatch{
		DefaultInterval:      r.DefaultInterval.ptr(),
		SubscriptionInterval: r.SubscriptionInterval.ptr(),
		PollTimeout:          r.PollTimeout.ptr(),
		AutoRestartFailures:  r.AutoRestartFailures,
		MaxRetries:           r.MaxRetries,
		BaseDelay:            r.BaseDelay.ptr(),
		MaxDelay:             r.MaxDelay.ptr(),
		FailureThreshold:     r.FailureThreshold,
		ResetTimeout:         r.ResetTimeout.ptr(),
	}
}

// newsRequest is the body of POST /api/news.
type newsRequest struct {
	Symbol   string `json:"symbol"`
	Headline string `json:"headline" binding:"required"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
	Source   string `json:"source"`
}
