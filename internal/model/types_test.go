package model

import (
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestNormalizeSymbols(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"empty", nil, []string{}},
		{"dedup keeps first order", []string{"msft", "AAPL", " msft ", "aapl"}, []string{"MSFT", "AAPL"}},
		{"drops blanks", []string{"", "  ", "thyao"}, []string{"THYAO"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeSymbols(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeSymbols(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestQuote_FillDerived(t *testing.T) {
	q := Quote{
		Symbol:        "AAPL",
		Price:         decimal.RequireFromString("110"),
		PreviousClose: decimal.RequireFromString("100"),
	}
	q.FillDerived()

	if !q.Change.Equal(decimal.RequireFromString("10")) {
		t.Errorf("Change = %s, want 10", q.Change)
	}
	if !q.ChangePercent.Equal(decimal.RequireFromString("10")) {
		t.Errorf("ChangePercent = %s, want 10", q.ChangePercent)
	}
}

func TestQuote_FillDerivedKeepsProviderValues(t *testing.T) {
	q := Quote{
		Price:         decimal.RequireFromString("110"),
		PreviousClose: decimal.RequireFromString("100"),
		Change:        decimal.RequireFromString("9.5"),
		ChangePercent: decimal.RequireFromString("9.5"),
	}
	q.FillDerived()

	if !q.Change.Equal(decimal.RequireFromString("9.5")) {
		t.Errorf("Change = %s, want provider value 9.5", q.Change)
	}
}

func TestQuote_FillDerivedNoPreviousClose(t *testing.T) {
	q := Quote{Price: decimal.RequireFromString("5")}
	q.FillDerived()

	if !q.Change.IsZero() || !q.ChangePercent.IsZero() {
		t.Errorf("expected zero change without previous close, got %s / %s", q.Change, q.ChangePercent)
	}
}

func TestBuildOverview(t *testing.T) {
	q := func(sym, pct string, vol int64) Quote {
		return Quote{Symbol: sym, ChangePercent: decimal.RequireFromString(pct), Volume: vol}
	}
	quotes := map[string]Quote{
		"XU100": q("XU100", "1.2", 0),
		"THYAO": q("THYAO", "3.5", 500),
		"GARAN": q("GARAN", "-2.1", 900),
		"AKBNK": q("AKBNK", "0.4", 100),
		"SISE":  q("SISE", "-0.7", 300),
		"ASELS": q("ASELS", "0", 50),
	}
	now := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

	ov := BuildOverview(quotes, []string{"xu100", "XU030"}, 2, now)

	symbols := func(qs []Quote) []string {
		out := make([]string, len(qs))
		for i, q := range qs {
			out[i] = q.Symbol
		}
		return out
	}

	tests := []struct {
		name string
		got  []string
		want []string
	}{
		{"indices", symbols(ov.Indices), []string{"XU100"}},
		{"gainers", symbols(ov.Gainers), []string{"THYAO", "AKBNK"}},
		{"losers", symbols(ov.Losers), []string{"GARAN", "SISE"}},
		{"most active", symbols(ov.MostActive), []string{"GARAN", "THYAO"}},
	}
	for _, tt := range tests {
		if !reflect.DeepEqual(tt.got, tt.want) {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
	if !ov.Timestamp.Equal(now) {
		t.Errorf("Timestamp = %v, want %v", ov.Timestamp, now)
	}
}

func TestBuildOverview_Empty(t *testing.T) {
	ov := BuildOverview(nil, nil, 5, time.Now())
	if ov.Gainers == nil || ov.Losers == nil || ov.MostActive == nil || ov.Indices == nil {
		t.Error("empty overview should use non-nil slices")
	}
}
