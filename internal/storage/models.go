package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceRecord is one persisted price observation.
type PriceRecord struct {
	ID        int64
	Symbol    string
	CoinID    string
	PriceUSD  decimal.Decimal
	Timestamp time.Time
	Volume24h decimal.Decimal
	MarketCap decimal.Decimal
	Change24h decimal.Decimal
	// Extra holds provider-specific attributes with no dedicated column,
	// persisted as a JSON object in extra_data.
	Extra     map[string]string
	CreatedAt time.Time
}

// PriceStats aggregates records over a trailing window.
type PriceStats struct {
	Count    int64
	MinPrice decimal.Decimal
	MaxPrice decimal.Decimal
	AvgPrice decimal.Decimal
	Earliest time.Time
	Latest   time.Time
}

// StoreInfo summarises the store contents.
type StoreInfo struct {
	TotalRecords int64
	SymbolCounts map[string]int64
	Location     string
}
