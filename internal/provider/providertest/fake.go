// Package providertest provides a scriptable provider.Provider for tests.
package providertest

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/model"
)

// Fake answers FetchQuotes from a fixed price table. Symbols listed in Fail
// make the whole batch fail with FailErr; symbols absent from Prices are
// silently omitted.
type Fake struct {
	mu      sync.Mutex
	Prices  map[string]float64
	Fail    map[string]bool
	FailErr error
	Delay   time.Duration

	// Hook, when set, runs before every call and may replace the result.
	Hook func(ctx context.Context, symbols []string) (map[string]model.Quote, error)

	calls     atomic.Int64
	inFlight  atomic.Int64
	maxFlight atomic.Int64
	batches   [][]string
}

// Name implements provider.Provider.
func (f *Fake) Name() string { return "fake" }

// FetchQuotes implements provider.Provider.
func (f *Fake) FetchQuotes(ctx context.Context, symbols []string) (map[string]model.Quote, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxFlight.Load()
		if n <= m || f.maxFlight.CompareAndSwap(m, n) {
			break
		}
	}

	f.mu.Lock()
	f.batches = append(f.batches, slices.Clone(symbols))
	hook := f.Hook
	f.mu.Unlock()

	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if hook != nil {
		return hook(ctx, symbols)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string]model.Quote, len(symbols))
	for _, s := range symbols {
		if f.Fail[s] {
			return nil, f.FailErr
		}
		price, ok := f.Prices[s]
		if !ok {
			continue
		}
		out[s] = model.Quote{
			Symbol:    s,
			Price:     decimal.NewFromFloat(price),
			UpdatedAt: time.Now().UTC(),
			Source:    "fake",
		}
	}
	return out, nil
}

// SetPrice updates the price table.
func (f *Fake) SetPrice(symbol string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Prices == nil {
		f.Prices = make(map[string]float64)
	}
	f.Prices[symbol] = price
}

// Calls returns how many times FetchQuotes was invoked.
func (f *Fake) Calls() int64 { return f.calls.Load() }

// MaxInFlight returns the highest observed number of concurrent calls.
func (f *Fake) MaxInFlight() int64 { return f.maxFlight.Load() }

// Batches returns a copy of every symbol batch received, in call order.
func (f *Fake) Batches() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.batches))
	for i, b := range f.batches {
		out[i] = slices.Clone(b)
	}
	return out
}
