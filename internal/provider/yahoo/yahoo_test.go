package yahoo

import (
	"testing"

	finance "github.com/piquette/finance-go"
)

func TestConvert(t *testing.T) {
	tests := []struct {
		name   string
		in     *finance.Quote
		wantOK bool
	}{
		{"nil", nil, false},
		{"no price", &finance.Quote{Symbol: "THYAO.IS"}, false},
		{"no symbol", &finance.Quote{RegularMarketPrice: 10}, false},
		{"valid", &finance.Quote{
			Symbol:                     "thyao.is",
			ShortName:                  "TURK HAVA YOLLARI",
			RegularMarketPrice:         300.5,
			RegularMarketPreviousClose: 290,
			RegularMarketVolume:        12000,
			RegularMarketTime:          1735830000,
			CurrencyID:                 "TRY",
			FullExchangeName:           "Istanbul",
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, ok := convert(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("convert() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if q.Symbol != "THYAO.IS" {
				t.Errorf("Symbol = %q, want THYAO.IS", q.Symbol)
			}
			if q.Price.String() != "300.5" {
				t.Errorf("Price = %s, want 300.5", q.Price)
			}
			if q.Change.String() != "10.5" {
				t.Errorf("Change = %s, want 10.5 (derived)", q.Change)
			}
			if q.ChangePercent.String() != "3.62" {
				t.Errorf("ChangePercent = %s, want 3.62", q.ChangePercent)
			}
			if q.Volume != 12000 || q.Currency != "TRY" || q.Source != "yahoo" {
				t.Errorf("quote = %+v", q)
			}
			if q.UpdatedAt.Unix() != 1735830000 {
				t.Errorf("UpdatedAt = %v", q.UpdatedAt)
			}
		})
	}
}
