package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/model"
)

// FetchQuotes implements provider.Provider using GET /quotes?symbols=A,B.
// Entries with an unknown or empty symbol, or a non-positive price, are
// skipped.
func (c *Client) FetchQuotes(ctx context.Context, symbols []string) (map[string]model.Quote, error) {
	if len(symbols) == 0 {
		return map[string]model.Quote{}, nil
	}

	query := url.Values{}
	query.Set("symbols", strings.Join(symbols, ","))

	body, err := c.doRequest(ctx, http.MethodGet, "/quotes", query)
	if err != nil {
		return nil, fmt.Errorf("get quotes: %w", err)
	}

	var resp QuotesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal quotes: %w", err)
	}

	wanted := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		wanted[model.NormalizeSymbol(s)] = struct{}{}
	}

	now := c.now()
	out := make(map[string]model.Quote, len(resp.Quotes))
	for _, aq := range resp.Quotes {
		q, ok := convertQuote(aq, now)
		if !ok {
			c.logger.Debug("skipping malformed quote", "symbol", aq.Symbol)
			continue
		}
		if _, ok := wanted[q.Symbol]; !ok {
			continue
		}
		out[q.Symbol] = q
	}

	return out, nil
}

func convertQuote(aq APIQuote, now time.Time) (model.Quote, bool) {
	symbol := model.NormalizeSymbol(aq.Symbol)
	if symbol == "" || !aq.Price.IsPositive() {
		return model.Quote{}, false
	}

	q := model.Quote{
		Symbol:        symbol,
		Name:          aq.Name,
		Price:         aq.Price,
		Change:        aq.Change,
		ChangePercent: aq.ChangePercent,
		Open:          aq.Open,
		High:          aq.High,
		Low:           aq.Low,
		PreviousClose: aq.PreviousClose,
		Volume:        aq.Volume,
		Currency:      aq.Currency,
		Exchange:      aq.Exchange,
		MarketState:   aq.MarketState,
		UpdatedAt:     parseTimestamp(aq.UpdatedAt, now),
		Source:        "rest",
	}
	q.FillDerived()
	return q, true
}

// parseTimestamp parses an RFC 3339 timestamp, falling back to now.
func parseTimestamp(iso string, now time.Time) time.Time {
	if iso == "" {
		return now
	}
	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		t, err = time.Parse("2006-01-02T15:04:05", iso)
		if err != nil {
			return now
		}
	}
	return t.UTC()
}
