package pricefeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestCoinGeckoFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("vs_currencies"); got != "usd" {
			t.Fatalf("vs_currencies 应为 usd, 实际 %s", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"bitcoin": {"usd": 65000.5, "usd_market_cap": 1280000000000, "usd_24h_vol": 35000000000, "usd_24h_change": -1.25},
			"ethereum": {"usd": 3500}
		}`))
	}))
	defer srv.Close()

	c := NewCoinGecko(CoinGeckoOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	quotes := c.Fetch(context.Background(), []string{"bitcoin", "ethereum", "solana"})

	if len(quotes) != 3 {
		t.Fatalf("每个 identifier 都应有条目, 实际 %d", len(quotes))
	}

	btc := quotes["bitcoin"]
	if btc == nil {
		t.Fatal("bitcoin 应成功解析")
	}
	if !btc.PriceUSD.Equal(decimal.NewFromFloat(65000.5)) {
		t.Fatalf("bitcoin 价格不正确: %s", btc.PriceUSD)
	}
	if !btc.Change24h.Equal(decimal.NewFromFloat(-1.25)) {
		t.Fatalf("bitcoin 24h 变化不正确: %s", btc.Change24h)
	}

	eth := quotes["ethereum"]
	if eth == nil || !eth.PriceUSD.Equal(decimal.NewFromInt(3500)) {
		t.Fatalf("ethereum 解析失败: %+v", eth)
	}
	if !eth.Volume24h.IsZero() {
		t.Fatalf("缺失的辅助字段应为零: %s", eth.Volume24h)
	}

	// 响应中缺失的 identifier 映射为 nil，而不是整体失败。
	if quotes["solana"] != nil {
		t.Fatal("solana 不在响应中, 应为 nil")
	}
}

func TestCoinGeckoFetchRejectsNonPositivePrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"bitcoin": {"usd": 0},
			"ethereum": {"usd": 3500}
		}`))
	}))
	defer srv.Close()

	c := NewCoinGecko(CoinGeckoOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	quotes := c.Fetch(context.Background(), []string{"bitcoin", "ethereum"})

	// 下架或过期的 id 会返回 0, 不是可用价格, 应视为失败。
	if quotes["bitcoin"] != nil {
		t.Fatalf("零价应映射为 nil, 实际 %+v", quotes["bitcoin"])
	}
	if quotes["ethereum"] == nil {
		t.Fatal("正常价格不应受影响")
	}
}

func TestCoinGeckoFetchTotalFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewCoinGecko(CoinGeckoOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	quotes := c.Fetch(context.Background(), []string{"bitcoin", "ethereum"})

	for id, q := range quotes {
		if q != nil {
			t.Fatalf("整体失败时 %s 应为 nil", id)
		}
	}
	if len(quotes) != 2 {
		t.Fatalf("失败时仍需为每个 identifier 返回条目, 实际 %d", len(quotes))
	}
}

func TestCoinGeckoFetchMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := NewCoinGecko(CoinGeckoOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	quotes := c.Fetch(context.Background(), []string{"bitcoin"})
	if quotes["bitcoin"] != nil {
		t.Fatal("JSON 解析失败应映射为 nil")
	}
}
