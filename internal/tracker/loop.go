package tracker

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"coinwatch/internal/alerting"
	"coinwatch/internal/display"
	"coinwatch/internal/history"
	"coinwatch/internal/pricefeed"
	"coinwatch/internal/scheduler"
	"coinwatch/internal/storage"
)

// Options parameterise a monitor loop.
type Options struct {
	Mode          string
	Identifiers   []string
	Symbols       map[string]string
	ThresholdPct  decimal.Decimal
	PersistAlerts bool
}

// Loop is the monitoring state machine: fetch, evaluate, persist, display,
// sleep, until cancelled. State is owned exclusively by the loop and mutated
// only at the end of each identifier's processing, so every evaluation
// compares against the price from the previous successful cycle.
type Loop struct {
	opts     Options
	source   pricefeed.Source
	store    storage.PriceRecordStore
	sink     display.Sink
	notifier alerting.Notifier
	sched    *scheduler.Scheduler
	buffer   *history.Buffer
	logger   zerolog.Logger

	lastPrices map[string]decimal.Decimal
	// symbols learned from quotes override the configured fallbacks, so
	// token addresses pick up their on-chain symbol after the first fetch.
	learnedSymbols map[string]string
}

// New constructs a monitor loop. store and notifier may be nil; both are
// best-effort collaborators.
func New(opts Options, source pricefeed.Source, store storage.PriceRecordStore, sink display.Sink, notifier alerting.Notifier, sched *scheduler.Scheduler, buffer *history.Buffer, logger zerolog.Logger) *Loop {
	return &Loop{
		opts:           opts,
		source:         source,
		store:          store,
		sink:           sink,
		notifier:       notifier,
		sched:          sched,
		buffer:         buffer,
		logger:         logger.With().Str("component", "tracker").Logger(),
		lastPrices:     make(map[string]decimal.Decimal),
		learnedSymbols: make(map[string]string),
	}
}

// Run seeds state from the store, renders the startup summary, then drives
// cycles until ctx is cancelled. The session summary is rendered on every
// exit path. A stopped loop cannot be restarted; construct a fresh one.
func (l *Loop) Run(ctx context.Context) error {
	info := display.StartupInfo{
		Mode:         l.opts.Mode,
		Interval:     l.schedInterval(),
		ThresholdPct: l.opts.ThresholdPct,
		StoreEnabled: l.store != nil,
		SeededPrices: make(map[string]decimal.Decimal),
	}
	for _, id := range l.opts.Identifiers {
		info.Names = append(info.Names, l.displaySymbol(id))
	}

	if l.store != nil {
		l.seedLastPrices(ctx, &info)
		if storeInfo, err := l.store.Info(ctx); err != nil {
			l.logger.Warn().Err(err).Msg("store info unavailable")
		} else {
			info.StoreTotal = storeInfo.TotalRecords
			info.StoreLocation = storeInfo.Location
		}
	}

	l.sink.Startup(info)

	err := l.sched.Run(ctx, l.cycle)
	l.emitSummary()
	return err
}

// seedLastPrices restores each identifier's baseline from the most recent
// persisted record, so a restarted tracker alerts against the last price it
// saw instead of staying silent for one cycle.
func (l *Loop) seedLastPrices(ctx context.Context, info *display.StartupInfo) {
	for _, id := range l.opts.Identifiers {
		rec, err := l.store.LatestPrice(ctx, id)
		if err != nil {
			l.logger.Warn().Err(err).Str("identifier", id).Msg("failed to load last known price")
			continue
		}
		if rec == nil || !rec.PriceUSD.IsPositive() {
			continue
		}
		l.lastPrices[id] = rec.PriceUSD
		info.SeededPrices[l.displaySymbol(id)] = rec.PriceUSD
	}
}

// cycle runs one fetch-evaluate-persist-display pass. It never returns an
// error for fetch or persistence faults; those are per-cycle conditions the
// loop recovers from.
func (l *Loop) cycle(ctx context.Context, at time.Time) error {
	quotes := l.source.Fetch(ctx, l.opts.Identifiers)

	if pricefeed.AllFailed(quotes) {
		l.logger.Warn().Time("at", at).Msg("full-cycle fetch failure")
		l.sink.CycleFailure(at)
		return nil
	}

	for _, id := range l.opts.Identifiers {
		quote := quotes[id]
		if quote == nil {
			l.logger.Debug().Str("identifier", id).Msg("fetch failed, skipping this cycle")
			continue
		}
		l.processQuote(ctx, id, quote, at)
	}

	l.sink.CycleEnd()
	return nil
}

func (l *Loop) processQuote(ctx context.Context, id string, quote *pricefeed.Quote, at time.Time) {
	if quote.Symbol != "" {
		l.learnedSymbols[id] = quote.Symbol
	}
	symbol := l.displaySymbol(id)

	var previous *decimal.Decimal
	if last, ok := l.lastPrices[id]; ok {
		previous = &last
	}
	result := alerting.Evaluate(previous, quote.PriceUSD, l.opts.ThresholdPct)

	persisted := l.persistObservation(ctx, symbol, quote, at)

	l.buffer.Append(history.Observation{
		Identifier: id,
		PriceUSD:   quote.PriceUSD,
		Volume24h:  quote.Volume24h,
		Liquidity:  quote.Liquidity,
		ObservedAt: at,
	})

	obs := display.Observation{
		Identifier:   id,
		Symbol:       symbol,
		PriceUSD:     quote.PriceUSD,
		Volume24h:    quote.Volume24h,
		Liquidity:    quote.Liquidity,
		ObservedAt:   at,
		Delta:        result,
		Degraded:     quote.Degraded,
		StoreEnabled: l.store != nil,
		Persisted:    persisted,
	}
	l.sink.Observation(obs)

	if result.Triggered {
		l.sink.Alert(obs)
		l.persistAlert(ctx, symbol, quote, at)
		l.dispatchAlert(ctx, id, symbol, quote, previous, result, at)
	}

	// Deliberately last: the next cycle's delta must compare against this
	// cycle's price, never a value updated mid-processing.
	l.lastPrices[id] = quote.PriceUSD
}

// persistObservation is best-effort: a storage fault is logged and the cycle
// proceeds without durability.
func (l *Loop) persistObservation(ctx context.Context, symbol string, quote *pricefeed.Quote, at time.Time) bool {
	if l.store == nil {
		return false
	}

	rec := storage.PriceRecord{
		Symbol:    symbol,
		CoinID:    quote.Identifier,
		PriceUSD:  quote.PriceUSD,
		Timestamp: at,
		Volume24h: quote.Volume24h,
		MarketCap: quote.MarketCap,
		Change24h: quote.Change24h,
		Extra:     map[string]string{"source": quote.Source},
	}
	if quote.Liquidity.IsPositive() {
		rec.Extra["liquidity"] = quote.Liquidity.String()
	}
	if quote.Degraded {
		rec.Extra["degraded"] = "true"
	}

	if err := l.store.InsertPriceRecord(ctx, rec); err != nil {
		l.logger.Error().Err(err).Str("identifier", quote.Identifier).Msg("failed to persist observation")
		return false
	}
	return true
}

// persistAlert writes a flagged record alongside the regular observation,
// mirroring the `SYMBOL_ALERT` rows the standalone BTC tracker produced.
func (l *Loop) persistAlert(ctx context.Context, symbol string, quote *pricefeed.Quote, at time.Time) {
	if l.store == nil || !l.opts.PersistAlerts {
		return
	}

	rec := storage.PriceRecord{
		Symbol:    symbol + "_ALERT",
		CoinID:    quote.Identifier,
		PriceUSD:  quote.PriceUSD,
		Timestamp: at,
		Extra: map[string]string{
			"alert_triggered": "true",
			"alert_threshold": l.opts.ThresholdPct.String(),
		},
	}
	if err := l.store.InsertPriceRecord(ctx, rec); err != nil {
		l.logger.Error().Err(err).Str("identifier", quote.Identifier).Msg("failed to persist alert record")
	}
}

func (l *Loop) dispatchAlert(ctx context.Context, id, symbol string, quote *pricefeed.Quote, previous *decimal.Decimal, result alerting.Result, at time.Time) {
	if l.notifier == nil {
		return
	}

	note := alerting.Notification{
		Identifier:   id,
		Symbol:       symbol,
		PriceUSD:     quote.PriceUSD,
		ChangePct:    result.ChangePct,
		ThresholdPct: l.opts.ThresholdPct,
		Direction:    result.Direction,
		ObservedAt:   at,
	}
	if previous != nil {
		note.PreviousUSD = *previous
	}
	if err := l.notifier.Notify(ctx, note); err != nil {
		l.logger.Error().Err(err).Str("identifier", id).Msg("failed to dispatch alert")
	}
}

func (l *Loop) emitSummary() {
	summary := display.SessionSummary{StoreEnabled: l.store != nil}
	for _, id := range l.opts.Identifiers {
		stats, ok := l.buffer.Summarize(id)
		if !ok {
			continue
		}
		summary.Items = append(summary.Items, display.SummaryItem{
			Symbol: l.displaySymbol(id),
			Stats:  stats,
		})
	}

	if l.store != nil {
		// The run context is cancelled by now; give the final count its own
		// short deadline.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if info, err := l.store.Info(ctx); err == nil {
			summary.StoreTotal = info.TotalRecords
		}
	}

	l.sink.Summary(summary)
}

func (l *Loop) displaySymbol(id string) string {
	if sym, ok := l.learnedSymbols[id]; ok && sym != "" {
		return sym
	}
	if sym, ok := l.opts.Symbols[id]; ok && sym != "" {
		return sym
	}
	// Contract addresses have no friendly name until a quote supplies one.
	if len(id) >= 32 {
		return id[:8] + "..." + id[len(id)-8:]
	}
	return strings.ToUpper(id)
}

func (l *Loop) schedInterval() time.Duration {
	if l.sched == nil {
		return 0
	}
	return l.sched.Interval()
}
