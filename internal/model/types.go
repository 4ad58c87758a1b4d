package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// Quotes
// -----------------------------------------------------------------------------

// Quote is the latest known price snapshot for a single symbol.
type Quote struct {
	Symbol        string          `json:"symbol"`
	Name          string          `json:"name,omitempty"`
	Price         decimal.Decimal `json:"price"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"changePercent"`
	Open          decimal.Decimal `json:"open"`
	High          decimal.Decimal `json:"high"`
	Low           decimal.Decimal `json:"low"`
	PreviousClose decimal.Decimal `json:"previousClose"`
	Volume        int64           `json:"volume"`
	Currency      string          `json:"currency,omitempty"`
	Exchange      string          `json:"exchange,omitempty"`
	MarketState   string          `json:"marketState,omitempty"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	Source        string          `json:"source,omitempty"` // provider name, "cache" or "shared"
}

// FillDerived computes Change and ChangePercent from Price and PreviousClose
// when the provider did not supply them.
func (q *Quote) FillDerived() {
	if q.PreviousClose.IsZero() {
		return
	}
	if q.Change.IsZero() {
		q.Change = q.Price.Sub(q.PreviousClose)
	}
	if q.ChangePercent.IsZero() {
		q.ChangePercent = q.Change.Div(q.PreviousClose).Mul(decimal.NewFromInt(100)).Round(2)
	}
}

// MarketOverview summarizes the market from a set of quotes.
type MarketOverview struct {
	Indices    []Quote   `json:"indices"`
	Gainers    []Quote   `json:"gainers"`
	Losers     []Quote   `json:"losers"`
	MostActive []Quote   `json:"mostActive"`
	Timestamp  time.Time `json:"timestamp"`
}

// -----------------------------------------------------------------------------
// News
// -----------------------------------------------------------------------------

// NewsItem is a single headline pushed to news topics.
// An empty Symbol means the item belongs to the general feed.
type NewsItem struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol,omitempty"`
	Headline    string    `json:"headline"`
	Summary     string    `json:"summary,omitempty"`
	URL         string    `json:"url,omitempty"`
	Source      string    `json:"source,omitempty"`
	PublishedAt time.Time `json:"publishedAt"`
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// NormalizeSymbol trims and upper-cases a ticker symbol.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// NormalizeSymbols normalizes, drops empties and deduplicates while keeping
// first-seen order.
func NormalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		n := NormalizeSymbol(s)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
