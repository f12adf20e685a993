package app

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"coinwatch/internal/alerting"
	"coinwatch/internal/display"
)

// SimulateAlert 用给定的前后价格跑一次完整的评估和告警流程，
// 不经过网络，也不写数据库。
func (a *App) SimulateAlert(ctx context.Context, coinID string, previous, current decimal.Decimal) error {
	threshold := decimal.NewFromFloat(a.Config.Monitor.ThresholdPct)
	result := alerting.Evaluate(&previous, current, threshold)

	sink := display.NewSink(a.Config.Monitor.Display, a.Logger)
	obs := display.Observation{
		Identifier: coinID,
		Symbol:     a.Config.Monitor.SymbolFor(coinID),
		PriceUSD:   current,
		ObservedAt: time.Now().UTC(),
		Delta:      result,
	}
	sink.Observation(obs)

	if !result.Triggered {
		a.Logger.Info().Str("change_pct", result.ChangePct.StringFixed(2)).Msg("未达到告警阈值")
		return nil
	}

	sink.Alert(obs)
	if notifier := a.newNotifier(); notifier != nil {
		note := alerting.Notification{
			Identifier:   coinID,
			Symbol:       obs.Symbol,
			PriceUSD:     current,
			PreviousUSD:  previous,
			ChangePct:    result.ChangePct,
			ThresholdPct: threshold,
			Direction:    result.Direction,
			ObservedAt:   obs.ObservedAt,
		}
		return notifier.Notify(ctx, note)
	}
	return nil
}
