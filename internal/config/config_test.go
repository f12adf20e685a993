package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := &Config{}
	cfg.Monitor = MonitorConfig{
		Mode:         ModeCoins,
		Coins:        []string{"bitcoin"},
		ThresholdPct: 5,
		Interval:     time.Minute,
		MaxHistory:   100,
		KeepHistory:  50,
	}
	cfg.Export.MaxDataPoints = 1000
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("defaults should produce a valid config: %v", err)
	}
	if cfg.Monitor.Mode != ModeCoins {
		t.Fatalf("default mode should be %q, got %q", ModeCoins, cfg.Monitor.Mode)
	}
	if len(cfg.Monitor.Identifiers()) == 0 {
		t.Fatal("default identifier set must not be empty")
	}
	if cfg.Monitor.Interval != 60*time.Second {
		t.Fatalf("default interval should be 60s, got %s", cfg.Monitor.Interval)
	}
	if cfg.Monitor.KeepHistory >= cfg.Monitor.MaxHistory {
		t.Fatal("default history caps must satisfy keep < max")
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad mode", func(c *Config) { c.Monitor.Mode = "stream" }, "monitor.mode"},
		{"empty identifiers", func(c *Config) { c.Monitor.Coins = nil }, "identifier set is empty"},
		{"negative threshold", func(c *Config) { c.Monitor.ThresholdPct = -1 }, "threshold_pct"},
		{"zero interval", func(c *Config) { c.Monitor.Interval = 0 }, "monitor.interval"},
		{"zero max history", func(c *Config) { c.Monitor.MaxHistory = 0 }, "max_history"},
		{"keep >= max", func(c *Config) { c.Monitor.KeepHistory = 100 }, "keep_history"},
		{"onchain without rpc", func(c *Config) {
			c.Monitor.Mode = ModeOnchain
			c.Monitor.Feeds = map[string]string{"ethereum": "0x1"}
		}, "ethereum.rpc_url"},
		{"zero export points", func(c *Config) { c.Export.MaxDataPoints = 0 }, "max_data_points"},
		{"telegram without token", func(c *Config) {
			c.Alerting.Telegram.Enabled = true
			c.Alerting.Telegram.ChatID = "chat"
		}, "bot_token"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q should mention %q", err, tc.want)
			}
		})
	}
}

func TestValidateZeroThresholdAllowed(t *testing.T) {
	cfg := validConfig()
	cfg.Monitor.ThresholdPct = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("threshold 0 is a legal edge case: %v", err)
	}
}

func TestIdentifiersPerMode(t *testing.T) {
	m := MonitorConfig{
		Mode:   ModeOnchain,
		Coins:  []string{"bitcoin"},
		Tokens: []string{"addr"},
		Feeds:  map[string]string{"b": "0x2", "a": "0x1"},
	}
	ids := m.Identifiers()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("onchain identifiers must be the sorted feed keys, got %v", ids)
	}

	m.Mode = ModeTokens
	if ids := m.Identifiers(); len(ids) != 1 || ids[0] != "addr" {
		t.Fatalf("token identifiers wrong: %v", ids)
	}
}

func TestSymbolFor(t *testing.T) {
	m := MonitorConfig{Symbols: map[string]string{"bitcoin": "BTC"}}
	if got := m.SymbolFor("bitcoin"); got != "BTC" {
		t.Fatalf("mapped symbol: want BTC, got %s", got)
	}
	if got := m.SymbolFor("dogecoin"); got != "DOGECOIN" {
		t.Fatalf("unmapped symbol should upper-case, got %s", got)
	}
}
