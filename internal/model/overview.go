package model

import (
	"slices"
	"strings"
	"time"
)

// BuildOverview ranks quotes into a market overview. Quotes whose symbol is
// in indices are reported as indices and excluded from the rankings. Each
// ranking holds at most topN entries; gainers and losers only include
// positive and negative movers respectively.
func BuildOverview(quotes map[string]Quote, indices []string, topN int, now time.Time) MarketOverview {
	ov := MarketOverview{
		Indices:    []Quote{},
		Gainers:    []Quote{},
		Losers:     []Quote{},
		MostActive: []Quote{},
		Timestamp:  now.UTC(),
	}

	isIndex := make(map[string]bool, len(indices))
	for _, s := range indices {
		s = NormalizeSymbol(s)
		isIndex[s] = true
		if q, ok := quotes[s]; ok {
			ov.Indices = append(ov.Indices, q)
		}
	}

	stocks := make([]Quote, 0, len(quotes))
	for sym, q := range quotes {
		if !isIndex[sym] {
			stocks = append(stocks, q)
		}
	}
	// Symbol order breaks ties.
	slices.SortFunc(stocks, func(a, b Quote) int {
		return strings.Compare(a.Symbol, b.Symbol)
	})

	byChange := slices.Clone(stocks)
	slices.SortStableFunc(byChange, func(a, b Quote) int {
		return b.ChangePercent.Cmp(a.ChangePercent)
	})
	for _, q := range byChange {
		if len(ov.Gainers) == topN || !q.ChangePercent.IsPositive() {
			break
		}
		ov.Gainers = append(ov.Gainers, q)
	}
	for i := len(byChange) - 1; i >= 0 && len(ov.Losers) < topN; i-- {
		if !byChange[i].ChangePercent.IsNegative() {
			break
		}
		ov.Losers = append(ov.Losers, byChange[i])
	}

	byVolume := slices.Clone(stocks)
	slices.SortStableFunc(byVolume, func(a, b Quote) int {
		switch {
		case a.Volume > b.Volume:
			return -1
		case a.Volume < b.Volume:
			return 1
		}
		return 0
	})
	if len(byVolume) > topN {
		byVolume = byVolume[:topN]
	}
	ov.MostActive = append(ov.MostActive, byVolume...)

	return ov
}
