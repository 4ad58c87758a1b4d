// Package model defines shared data types used across the quote distribution core.
//
// Conventions:
//   - Prices: decimal.Decimal, never float64, so that change/percent math is exact
//   - Symbols: upper-case, trimmed (see NormalizeSymbol)
//   - Timestamps: time.Time in UTC
package model
