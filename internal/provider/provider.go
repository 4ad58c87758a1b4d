// Package provider defines the upstream quote source.
package provider

import (
	"context"

	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/model"
)

// Provider fetches quotes from an upstream data source.
//
// FetchQuotes returns whatever subset of symbols the upstream answered for;
// missing symbols are not an error. An error means the whole call failed.
type Provider interface {
	Name() string
	FetchQuotes(ctx context.Context, symbols []string) (map[string]model.Quote, error)
}
