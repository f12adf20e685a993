package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"coinwatch/internal/alerting"
	"coinwatch/internal/config"
	"coinwatch/internal/display"
	"coinwatch/internal/history"
	"coinwatch/internal/pricefeed"
	"coinwatch/internal/scheduler"
	"coinwatch/internal/storage"
	"coinwatch/internal/tracker"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newSource() pricefeed.Source {
	switch a.Config.Monitor.Mode {
	case config.ModeTokens:
		return pricefeed.NewDexToken(pricefeed.DexTokenOptions{
			DexScreenerBaseURL: a.Config.DexScreener.BaseURL,
			JupiterBaseURL:     a.Config.Jupiter.BaseURL,
			Timeout:            a.Config.DexScreener.RequestTimeout,
		}, a.Logger)
	case config.ModeOnchain:
		return pricefeed.NewOnchain(pricefeed.OnchainOptions{
			RPCURL:  a.Config.Ethereum.RPCURL,
			Feeds:   a.Config.Monitor.Feeds,
			Timeout: a.Config.Ethereum.RequestTimeout,
		}, a.Logger)
	default:
		return pricefeed.NewCoinGecko(pricefeed.CoinGeckoOptions{
			BaseURL:   a.Config.CoinGecko.BaseURL,
			Timeout:   a.Config.CoinGecko.RequestTimeout,
			UserAgent: a.Config.CoinGecko.UserAgent,
		}, a.Logger)
	}
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool, storage.SanitizeDSN(a.Config.Database.DSN))
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running monitoring loop until interrupted.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	m := a.Config.Monitor
	sched := scheduler.New(scheduler.Options{
		Interval:     m.Interval,
		StartupDelay: m.StartupDelay,
	}, a.Logger)

	buffer := history.NewBuffer(m.MaxHistory, m.KeepHistory)
	sink := display.NewSink(m.Display, a.Logger)

	var recordStore storage.PriceRecordStore
	if store != nil {
		recordStore = store
	}

	loop := tracker.New(tracker.Options{
		Mode:          m.Mode,
		Identifiers:   m.Identifiers(),
		Symbols:       m.Symbols,
		ThresholdPct:  decimal.NewFromFloat(m.ThresholdPct),
		PersistAlerts: a.Config.Alerting.PersistAlerts,
	}, a.newSource(), recordStore, sink, a.newNotifier(), sched, buffer, a.Logger)

	a.Logger.Info().Str("mode", m.Mode).Msg("starting price monitor")
	err = loop.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("monitor terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitor stopped")
	return nil
}

// ShowOptions configure the show command.
type ShowOptions struct {
	CoinID string
	Limit  int
}

// StatsOptions configure the stats command.
type StatsOptions struct {
	CoinID string
	Hours  int
}

// CleanupOptions configure retention cleanup.
type CleanupOptions struct {
	Days   int
	DryRun bool
}

// ExportOptions hold parameters for exporting historical records.
type ExportOptions struct {
	CoinID    string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}
