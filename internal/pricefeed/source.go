package pricefeed

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is the normalised result of a single price lookup.
type Quote struct {
	Identifier string
	Symbol     string
	Name       string
	PriceUSD   decimal.Decimal
	Volume24h  decimal.Decimal
	MarketCap  decimal.Decimal
	Change24h  decimal.Decimal
	Liquidity  decimal.Decimal
	Source     string
	FetchedAt  time.Time
	// Degraded marks a quote synthesised from the fallback source alone,
	// with volume/liquidity/change zeroed.
	Degraded bool
}

// Source retrieves current prices for a set of identifiers.
//
// Implementations must return an entry for every requested identifier; a nil
// value means the fetch failed for that identifier. Per-identifier failures
// never abort the rest of the batch, so Fetch has no error return.
type Source interface {
	Name() string
	Fetch(ctx context.Context, identifiers []string) map[string]*Quote
}

// AllFailed reports whether every identifier in the result resolved to nil.
func AllFailed(quotes map[string]*Quote) bool {
	for _, q := range quotes {
		if q != nil {
			return false
		}
	}
	return true
}
