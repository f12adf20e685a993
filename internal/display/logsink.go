package display

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LogSink renders the loop as structured log events, for running coinwatch
// under a supervisor instead of a terminal.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink builds a zerolog-backed sink.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "display").Logger()}
}

func (l *LogSink) Startup(info StartupInfo) {
	l.logger.Info().
		Str("mode", info.Mode).
		Strs("assets", info.Names).
		Dur("interval", info.Interval).
		Str("threshold_pct", info.ThresholdPct.String()).
		Bool("persistence", info.StoreEnabled).
		Msg("monitoring started")
}

func (l *LogSink) Observation(obs Observation) {
	evt := l.logger.Info().
		Str("symbol", obs.Symbol).
		Str("identifier", obs.Identifier).
		Str("price_usd", obs.PriceUSD.String())
	if obs.Delta.HasBaseline {
		evt = evt.Str("change_pct", obs.Delta.ChangePct.StringFixed(4)).
			Str("direction", obs.Delta.Direction)
	}
	if obs.Degraded {
		evt = evt.Bool("degraded", true)
	}
	if obs.StoreEnabled {
		evt = evt.Bool("persisted", obs.Persisted)
	}
	evt.Msg("price observed")
}

func (l *LogSink) Alert(obs Observation) {
	l.logger.Warn().
		Str("symbol", obs.Symbol).
		Str("identifier", obs.Identifier).
		Str("price_usd", obs.PriceUSD.String()).
		Str("change_pct", obs.Delta.ChangePct.StringFixed(4)).
		Str("direction", obs.Delta.Direction).
		Msg("price alert")
}

func (l *LogSink) CycleFailure(at time.Time) {
	l.logger.Error().Time("at", at).Msg("all price fetches failed this cycle")
}

func (l *LogSink) CycleEnd() {}

func (l *LogSink) Summary(summary SessionSummary) {
	for _, item := range summary.Items {
		if item.Stats.Count == 0 {
			continue
		}
		l.logger.Info().
			Str("symbol", item.Symbol).
			Int("observations", item.Stats.Count).
			Str("low", item.Stats.Lowest.String()).
			Str("high", item.Stats.Highest.String()).
			Str("avg", item.Stats.Average.String()).
			Msg("session summary")
	}
	l.logger.Info().Msg("monitoring stopped")
}

// NewSink picks a sink implementation by configured name.
func NewSink(kind string, logger zerolog.Logger) Sink {
	if strings.EqualFold(kind, "log") {
		return NewLogSink(logger)
	}
	return NewConsole()
}

var _ Sink = (*LogSink)(nil)
