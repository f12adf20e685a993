package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"coinwatch/internal/logging"
)

// Monitor modes select which price source backs the loop.
const (
	ModeCoins   = "coins"   // CoinGecko aggregated index ids
	ModeTokens  = "tokens"  // DexScreener/Jupiter contract addresses
	ModeOnchain = "onchain" // Chainlink aggregator feeds
)

// Config materialises application configuration.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Logging     logging.Config    `mapstructure:"logging"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Monitor     MonitorConfig     `mapstructure:"monitor"`
	CoinGecko   CoinGeckoConfig   `mapstructure:"coingecko"`
	DexScreener DexScreenerConfig `mapstructure:"dexscreener"`
	Jupiter     JupiterConfig     `mapstructure:"jupiter"`
	Ethereum    EthereumConfig    `mapstructure:"ethereum"`
	Alerting    AlertingConfig    `mapstructure:"alerting"`
	Export      ExportConfig      `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// MonitorConfig governs the polling loop and its tracked identifiers.
type MonitorConfig struct {
	Mode         string            `mapstructure:"mode"`
	Coins        []string          `mapstructure:"coins"`
	Symbols      map[string]string `mapstructure:"symbols"`
	Tokens       []string          `mapstructure:"tokens"`
	Feeds        map[string]string `mapstructure:"feeds"`
	ThresholdPct float64           `mapstructure:"threshold_pct"`
	Interval     time.Duration     `mapstructure:"interval"`
	StartupDelay time.Duration     `mapstructure:"startup_delay"`
	MaxHistory   int               `mapstructure:"max_history"`
	KeepHistory  int               `mapstructure:"keep_history"`
	Display      string            `mapstructure:"display"`
}

// CoinGeckoConfig captures index API connectivity.
type CoinGeckoConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// DexScreenerConfig captures DEX aggregator connectivity.
type DexScreenerConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// JupiterConfig captures the fallback price API.
type JupiterConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// EthereumConfig covers on-chain data access.
type EthereumConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AlertingConfig defines alert persistence and routing.
type AlertingConfig struct {
	PersistAlerts bool           `mapstructure:"persist_alerts"`
	Telegram      TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("COINWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "coinwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("monitor.mode", ModeCoins)
	v.SetDefault("monitor.coins", []string{"bitcoin", "ethereum", "solana", "binancecoin", "ripple"})
	v.SetDefault("monitor.symbols", map[string]string{
		"bitcoin":     "BTC",
		"ethereum":    "ETH",
		"solana":      "SOL",
		"binancecoin": "BNB",
		"ripple":      "XRP",
	})
	v.SetDefault("monitor.threshold_pct", 5.0)
	v.SetDefault("monitor.interval", "60s")
	v.SetDefault("monitor.startup_delay", "0s")
	v.SetDefault("monitor.max_history", 100)
	v.SetDefault("monitor.keep_history", 50)
	v.SetDefault("monitor.display", "console")

	v.SetDefault("coingecko.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("coingecko.request_timeout", "10s")
	v.SetDefault("coingecko.user_agent", "coinwatch/1.0")

	v.SetDefault("dexscreener.base_url", "https://api.dexscreener.com/latest/dex")
	v.SetDefault("dexscreener.request_timeout", "10s")

	v.SetDefault("jupiter.base_url", "https://price.jup.ag/v4")
	v.SetDefault("jupiter.request_timeout", "10s")

	v.SetDefault("ethereum.request_timeout", "10s")

	v.SetDefault("alerting.persist_alerts", true)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Identifiers returns the tracked identifier set for the configured mode.
func (m MonitorConfig) Identifiers() []string {
	switch m.Mode {
	case ModeTokens:
		return m.Tokens
	case ModeOnchain:
		ids := make([]string, 0, len(m.Feeds))
		for id := range m.Feeds {
			ids = append(ids, id)
		}
		// Map iteration order is random; the loop needs a stable identifier order.
		sort.Strings(ids)
		return ids
	default:
		return m.Coins
	}
}

// Validate performs sanity checks before the loop is allowed to start.
func (c *Config) Validate() error {
	m := c.Monitor

	switch m.Mode {
	case ModeCoins, ModeTokens, ModeOnchain:
	default:
		return fmt.Errorf("monitor.mode must be one of %q, %q, %q", ModeCoins, ModeTokens, ModeOnchain)
	}

	if len(m.Identifiers()) == 0 {
		return fmt.Errorf("monitor identifier set is empty for mode %q", m.Mode)
	}
	if m.ThresholdPct < 0 {
		return fmt.Errorf("monitor.threshold_pct cannot be negative")
	}
	if m.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be greater than zero")
	}
	if m.MaxHistory <= 0 {
		return fmt.Errorf("monitor.max_history must be greater than zero")
	}
	if m.KeepHistory <= 0 || m.KeepHistory >= m.MaxHistory {
		return fmt.Errorf("monitor.keep_history must be in (0, max_history)")
	}
	if m.Mode == ModeOnchain && c.Ethereum.RPCURL == "" {
		return fmt.Errorf("ethereum.rpc_url is required for mode %q", ModeOnchain)
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// SymbolFor maps an identifier to its display symbol, defaulting to upper case.
func (m MonitorConfig) SymbolFor(identifier string) string {
	if sym, ok := m.Symbols[identifier]; ok {
		return sym
	}
	return strings.ToUpper(identifier)
}
