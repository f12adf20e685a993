package display

import (
	"time"

	"github.com/shopspring/decimal"

	"coinwatch/internal/alerting"
	"coinwatch/internal/history"
)

// StartupInfo is rendered once when the monitor loop starts.
type StartupInfo struct {
	Mode          string
	Names         []string
	Interval      time.Duration
	ThresholdPct  decimal.Decimal
	StoreEnabled  bool
	StoreTotal    int64
	StoreLocation string
	SeededPrices  map[string]decimal.Decimal
}

// Observation is one rendered price point.
type Observation struct {
	Identifier string
	Symbol     string
	PriceUSD   decimal.Decimal
	Volume24h  decimal.Decimal
	Liquidity  decimal.Decimal
	ObservedAt time.Time
	Delta      alerting.Result
	Degraded   bool
	// Persisted is meaningful only when persistence is configured.
	StoreEnabled bool
	Persisted    bool
}

// SummaryItem is one identifier's line in the session summary.
type SummaryItem struct {
	Symbol string
	Stats  history.Summary
}

// SessionSummary is rendered on graceful shutdown.
type SessionSummary struct {
	Items        []SummaryItem
	StoreEnabled bool
	StoreTotal   int64
}

// Sink renders monitor loop output. The loop itself never prints; every
// user-visible line goes through one of these hooks.
type Sink interface {
	Startup(info StartupInfo)
	Observation(obs Observation)
	Alert(obs Observation)
	CycleFailure(at time.Time)
	CycleEnd()
	Summary(summary SessionSummary)
}
