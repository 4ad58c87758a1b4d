// Package yahoo is a provider.Provider backed by Yahoo Finance through
// github.com/piquette/finance-go.
package yahoo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/quote"
	"github.com/shopspring/decimal"

	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/model"
)

// ListFunc fetches a batch of quotes. It matches quote.List.
type ListFunc func(symbols []string) *quote.Iter

// Provider fetches quotes from Yahoo Finance.
type Provider struct {
	list   ListFunc
	logger *slog.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// WithListFunc replaces the finance-go batch call.
func WithListFunc(fn ListFunc) Option {
	return func(p *Provider) {
		p.list = fn
	}
}

// New creates a Yahoo Finance provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		list:   quote.List,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements provider.Provider.
func (p *Provider) Name() string {
	return "yahoo"
}

// FetchQuotes implements provider.Provider. finance-go has no context
// support, so cancellation is only observed between quotes.
func (p *Provider) FetchQuotes(ctx context.Context, symbols []string) (map[string]model.Quote, error) {
	out := make(map[string]model.Quote, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	iter := p.list(symbols)
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		q, ok := convert(iter.Quote())
		if !ok {
			continue
		}
		out[q.Symbol] = q
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("yahoo quotes: %w", err)
	}

	p.logger.Debug("fetched quotes", "requested", len(symbols), "received", len(out))
	return out, nil
}

func convert(fq *finance.Quote) (model.Quote, bool) {
	if fq == nil || fq.RegularMarketPrice <= 0 {
		return model.Quote{}, false
	}
	symbol := model.NormalizeSymbol(fq.Symbol)
	if symbol == "" {
		return model.Quote{}, false
	}

	updated := time.Now().UTC()
	if fq.RegularMarketTime > 0 {
		updated = time.Unix(int64(fq.RegularMarketTime), 0).UTC()
	}

	q := model.Quote{
		Symbol:        symbol,
		Name:          fq.ShortName,
		Price:         decimal.NewFromFloat(fq.RegularMarketPrice),
		Change:        decimal.NewFromFloat(fq.RegularMarketChange).Round(4),
		ChangePercent: decimal.NewFromFloat(fq.RegularMarketChangePercent).Round(2),
		Open:          decimal.NewFromFloat(fq.RegularMarketOpen),
		High:          decimal.NewFromFloat(fq.RegularMarketDayHigh),
		Low:           decimal.NewFromFloat(fq.RegularMarketDayLow),
		PreviousClose: decimal.NewFromFloat(fq.RegularMarketPreviousClose),
		Volume:        int64(fq.RegularMarketVolume),
		Currency:      fq.CurrencyID,
		Exchange:      fq.FullExchangeName,
		MarketState:   string(fq.MarketState),
		UpdatedAt:     updated,
		Source:        "yahoo",
	}
	q.FillDerived()
	return q, true
}
