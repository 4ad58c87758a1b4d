package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/cache"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/metrics"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/model"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/provider"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/resilience"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/sharedcache"
)

var (
	// ErrAllFailed is returned by Fetch when symbols were requested and none
	// could be served.
	ErrAllFailed = errors.New("gateway: all symbols failed")

	// ErrNotFound is returned by Quote when the upstream has no data for the
	// symbol.
	ErrNotFound = errors.New("gateway: symbol not found")
)

// Config holds gateway settings.
type Config struct {
	BatchSize      int           // Symbols per upstream call (default: 50)
	MaxConcurrency int           // Upstream calls in flight, gateway-wide (default: 5)
	QuoteTTL       time.Duration // Local cache TTL for fetched quotes (default: 30s)
	SharedTTL      time.Duration // Shared tier TTL (default: QuoteTTL)
	CallTimeout    time.Duration // Deadline of one upstream batch call (default: 30s)
}

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 5
	}
	if c.QuoteTTL <= 0 {
		c.QuoteTTL = 30 * time.Second
	}
	if c.SharedTTL <= 0 {
		c.SharedTTL = c.QuoteTTL
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 30 * time.Second
	}
}

// Summary counts the outcome of a Fetch.
type Summary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Cached     int `json:"cached"`
}

// Result is the outcome of a Fetch. Every requested symbol appears in exactly
// one of Data or Failed.
type Result struct {
	Data    map[string]model.Quote `json:"data"`
	Failed  map[string]string      `json:"failed,omitempty"`
	Summary Summary                `json:"summary"`
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithSharedCache enables the shared cache tier.
func WithSharedCache(s sharedcache.Store) Option {
	return func(g *Gateway) {
		g.shared = s
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(g *Gateway) {
		g.metrics = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// Gateway serves quote requests from the cache tiers and coalesces misses
// into bounded upstream batch calls.
type Gateway struct {
	cfg      Config
	provider provider.Provider
	cache    *cache.Cache[model.Quote]
	shared   sharedcache.Store
	metrics  metrics.Recorder
	logger   *slog.Logger

	sem    *semaphore.Weighted
	flight singleflight.Group
}

// New creates a gateway in front of p, caching results in c.
func New(p provider.Provider, c *cache.Cache[model.Quote], cfg Config, opts ...Option) *Gateway {
	cfg.applyDefaults()
	g := &Gateway{
		cfg:      cfg,
		provider: p,
		cache:    c,
		metrics:  metrics.Nop{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("component", "gateway", "provider", p.Name())
	g.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrency))
	return g
}

// Config returns the effective configuration.
func (g *Gateway) Config() Config {
	return g.cfg
}

// Fetch returns quotes for symbols. Symbols are normalized and deduplicated.
// A failed batch only fails its own symbols; ErrAllFailed is returned when
// nothing succeeded.
func (g *Gateway) Fetch(ctx context.Context, symbols []string) (*Result, error) {
	symbols = model.NormalizeSymbols(symbols)
	res := &Result{
		Data:   make(map[string]model.Quote, len(symbols)),
		Failed: make(map[string]string),
	}
	res.Summary.Total = len(symbols)
	if len(symbols) == 0 {
		return res, nil
	}

	misses := g.fromCache(symbols, res)
	misses = g.fromShared(ctx, misses, res)

	lastErr := g.fromUpstream(ctx, misses, res)

	res.Summary.Successful = len(res.Data)
	res.Summary.Failed = len(res.Failed)

	g.logger.Debug("fetch complete",
		"total", res.Summary.Total,
		"successful", res.Summary.Successful,
		"failed", res.Summary.Failed,
		"cached", res.Summary.Cached,
	)

	if res.Summary.Successful == 0 {
		if lastErr == nil {
			lastErr = ErrNotFound
		}
		return res, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
	}
	return res, nil
}

// Quote returns a single quote.
func (g *Gateway) Quote(ctx context.Context, symbol string) (model.Quote, error) {
	sym := model.NormalizeSymbol(symbol)
	if sym == "" {
		return model.Quote{}, resilience.Validation("symbol is required")
	}

	res, err := g.Fetch(ctx, []string{sym})
	if q, ok := res.Data[sym]; ok {
		return q, nil
	}
	if reason, ok := res.Failed[sym]; ok && reason == noDataReason {
		return model.Quote{}, fmt.Errorf("%w: %s", ErrNotFound, sym)
	}
	return model.Quote{}, err
}

// Overview fetches symbols and ranks them into a market overview.
func (g *Gateway) Overview(ctx context.Context, symbols, indices []string, topN int) (model.MarketOverview, error) {
	all := append(append([]string{}, indices...), symbols...)
	res, err := g.Fetch(ctx, all)
	if err != nil {
		return model.MarketOverview{}, err
	}
	return model.BuildOverview(res.Data, indices, topN, time.Now()), nil
}

const noDataReason = "no data returned"

func (g *Gateway) fromCache(symbols []string, res *Result) []string {
	misses := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		if q, ok := g.cache.Get(sym); ok {
			q.Source = "cache"
			res.Data[sym] = q
			res.Summary.Cached++
			continue
		}
		misses = append(misses, sym)
	}
	return misses
}

func (g *Gateway) fromShared(ctx context.Context, symbols []string, res *Result) []string {
	if g.shared == nil || len(symbols) == 0 {
		return symbols
	}

	found, err := g.shared.GetQuotes(ctx, symbols)
	if err != nil {
		g.logger.Warn("shared cache read failed", "error", err)
		return symbols
	}

	misses := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		q, ok := found[sym]
		if !ok {
			misses = append(misses, sym)
			continue
		}
		g.store(sym, q)
		q.Source = "shared"
		res.Data[sym] = q
		res.Summary.Cached++
	}
	return misses
}

// fromUpstream fetches symbols in batches and returns the last batch error.
func (g *Gateway) fromUpstream(ctx context.Context, symbols []string, res *Result) error {
	if len(symbols) == 0 {
		return nil
	}

	var (
		mu      sync.Mutex
		lastErr error
		eg      errgroup.Group
	)

	for _, batch := range chunk(symbols, g.cfg.BatchSize) {
		eg.Go(func() error {
			quotes, err := g.fetchBatch(ctx, batch)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				lastErr = err
				for _, sym := range batch {
					res.Failed[sym] = err.Error()
				}
				return nil
			}
			for _, sym := range batch {
				if q, ok := quotes[sym]; ok {
					res.Data[sym] = q
				} else {
					res.Failed[sym] = noDataReason
				}
			}
			return nil
		})
	}
	eg.Wait()

	return lastErr
}

// fetchBatch performs one upstream call. Identical concurrent batches share
// a single call. The shared call runs detached from any one caller, bounded
// by CallTimeout, so a caller that gives up never fails the others.
func (g *Gateway) fetchBatch(ctx context.Context, batch []string) (map[string]model.Quote, error) {
	key := strings.Join(batch, ",")
	ch := g.flight.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.cfg.CallTimeout)
		defer cancel()

		if err := g.sem.Acquire(callCtx, 1); err != nil {
			return nil, err
		}
		defer g.sem.Release(1)

		quotes, err := g.provider.FetchQuotes(callCtx, batch)
		g.metrics.UpstreamCall(callCtx, g.provider.Name(), len(batch), err)
		if err != nil {
			return nil, err
		}

		fetched := make(map[string]model.Quote, len(quotes))
		for _, sym := range batch {
			q, ok := quotes[sym]
			if !ok {
				continue
			}
			q.Symbol = sym
			g.store(sym, q)
			fetched[sym] = q
		}
		g.writeShared(callCtx, fetched)
		return fetched, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Shared {
			g.logger.Debug("batch shared with in-flight call", "symbols", len(batch))
		}
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(map[string]model.Quote), nil
	}
}

func (g *Gateway) store(sym string, q model.Quote) {
	if err := g.cache.Set(sym, q, g.cfg.QuoteTTL); err != nil {
		g.logger.Warn("cache set failed", "symbol", sym, "error", err)
	}
}

func (g *Gateway) writeShared(ctx context.Context, quotes map[string]model.Quote) {
	if g.shared == nil || len(quotes) == 0 {
		return
	}
	if err := g.shared.SetQuotes(ctx, quotes, g.cfg.SharedTTL); err != nil {
		g.logger.Warn("shared cache write failed", "error", err)
	}
}

func chunk(symbols []string, size int) [][]string {
	batches := make([][]string, 0, (len(symbols)+size-1)/size)
	for start := 0; start < len(symbols); start += size {
		end := min(start+size, len(symbols))
		batches = append(batches, symbols[start:end])
	}
	return batches
}
