package rest

import (
	"github.com/shopspring/decimal"
)

// QuotesResponse is the response from GET /quotes.
type QuotesResponse struct {
	Quotes []APIQuote `json:"quotes"`
}

// APIQuote is a quote as returned by the service. Prices may be JSON numbers
// or strings.
type APIQuote struct {
	Symbol        string          `json:"symbol"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"changePercent"`
	Open          decimal.Decimal `json:"open"`
	High          decimal.Decimal `json:"high"`
	Low           decimal.Decimal `json:"low"`
	PreviousClose decimal.Decimal `json:"previousClose"`
	Volume        int64           `json:"volume"`
	Currency      string          `json:"currency"`
	Exchange      string          `json:"exchange"`
	MarketState   string          `json:"marketState"`
	UpdatedAt     string          `json:"updatedAt"` // RFC 3339
}
