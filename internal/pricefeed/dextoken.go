package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DexTokenOptions parameterise the per-token DEX fetcher and its fallback.
type DexTokenOptions struct {
	DexScreenerBaseURL string
	JupiterBaseURL     string
	Timeout            time.Duration
}

// DexToken resolves token contract addresses through DexScreener, falling
// back to the Jupiter price API when DexScreener has no usable price.
type DexToken struct {
	opts      DexTokenOptions
	logger    zerolog.Logger
	client    *http.Client
	dexBase   string
	jupBase   string
	metaMux   sync.Mutex
	tokenMeta map[string]tokenMeta
}

type tokenMeta struct {
	Name   string
	Symbol string
}

// NewDexToken constructs the per-token fetcher.
func NewDexToken(opts DexTokenOptions, logger zerolog.Logger) *DexToken {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	dexBase := strings.TrimRight(opts.DexScreenerBaseURL, "/")
	if dexBase == "" {
		dexBase = "https://api.dexscreener.com/latest/dex"
	}
	jupBase := strings.TrimRight(opts.JupiterBaseURL, "/")
	if jupBase == "" {
		jupBase = "https://price.jup.ag/v4"
	}

	return &DexToken{
		opts:      opts,
		logger:    logger.With().Str("component", "dextoken_source").Logger(),
		client:    &http.Client{Timeout: timeout},
		dexBase:   dexBase,
		jupBase:   jupBase,
		tokenMeta: make(map[string]tokenMeta),
	}
}

// Name identifies the source in logs and persisted records.
func (d *DexToken) Name() string { return "dexscreener" }

// Fetch resolves each contract address independently. Lookups run
// concurrently, but each goroutine writes only its own slot, so the caller
// observes results in identifier order regardless of network completion order.
func (d *DexToken) Fetch(ctx context.Context, identifiers []string) map[string]*Quote {
	results := make([]*Quote, len(identifiers))

	var wg sync.WaitGroup
	for i, addr := range identifiers {
		wg.Add(1)
		go func(i int, addr string) {
			defer wg.Done()
			results[i] = d.fetchToken(ctx, addr)
		}(i, addr)
	}
	wg.Wait()

	quotes := make(map[string]*Quote, len(identifiers))
	for i, addr := range identifiers {
		quotes[addr] = results[i]
	}
	return quotes
}

// fetchToken tries DexScreener first; a missing or non-positive price falls
// through to Jupiter, which yields a degraded quote with auxiliary fields
// zeroed. All errors are absorbed into a nil result.
func (d *DexToken) fetchToken(ctx context.Context, addr string) *Quote {
	if quote := d.fetchDexScreener(ctx, addr); quote != nil {
		d.rememberMeta(addr, quote.Name, quote.Symbol)
		return quote
	}

	price, ok := d.fetchJupiter(ctx, addr)
	if !ok || !price.IsPositive() {
		return nil
	}

	meta := d.metaFor(addr)
	return &Quote{
		Identifier: addr,
		Symbol:     meta.Symbol,
		Name:       meta.Name,
		PriceUSD:   price,
		Source:     "jupiter",
		FetchedAt:  time.Now().UTC(),
		Degraded:   true,
	}
}

func (d *DexToken) fetchDexScreener(ctx context.Context, addr string) *Quote {
	body, err := d.get(ctx, d.dexBase+"/tokens/"+addr)
	if err != nil {
		d.logger.Debug().Err(err).Str("address", addr).Msg("dexscreener lookup failed")
		return nil
	}

	var payload struct {
		Pairs []struct {
			BaseToken struct {
				Name   string `json:"name"`
				Symbol string `json:"symbol"`
			} `json:"baseToken"`
			PriceUSD string `json:"priceUsd"`
			Volume   struct {
				H24 json.Number `json:"h24"`
			} `json:"volume"`
			PriceChange struct {
				H24 json.Number `json:"h24"`
			} `json:"priceChange"`
			Liquidity struct {
				USD json.Number `json:"usd"`
			} `json:"liquidity"`
		} `json:"pairs"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Pairs) == 0 {
		return nil
	}

	pair := payload.Pairs[0]
	price, err := decimal.NewFromString(pair.PriceUSD)
	if err != nil || !price.IsPositive() {
		return nil
	}

	quote := &Quote{
		Identifier: addr,
		Symbol:     pair.BaseToken.Symbol,
		Name:       pair.BaseToken.Name,
		PriceUSD:   price,
		Source:     d.Name(),
		FetchedAt:  time.Now().UTC(),
	}
	quote.Volume24h = numberOrZero(pair.Volume.H24)
	quote.Change24h = numberOrZero(pair.PriceChange.H24)
	quote.Liquidity = numberOrZero(pair.Liquidity.USD)
	return quote
}

func (d *DexToken) fetchJupiter(ctx context.Context, addr string) (decimal.Decimal, bool) {
	body, err := d.get(ctx, d.jupBase+"/price?ids="+addr)
	if err != nil {
		d.logger.Debug().Err(err).Str("address", addr).Msg("jupiter fallback failed")
		return decimal.Decimal{}, false
	}

	var payload struct {
		Data map[string]struct {
			Price json.Number `json:"price"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return decimal.Decimal{}, false
	}

	entry, ok := payload.Data[addr]
	if !ok {
		return decimal.Decimal{}, false
	}
	price, err := decimal.NewFromString(entry.Price.String())
	if err != nil {
		return decimal.Decimal{}, false
	}
	return price, true
}

func (d *DexToken) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// rememberMeta caches name/symbol so degraded fallback quotes keep a usable
// display name once the primary source has resolved the token at least once.
func (d *DexToken) rememberMeta(addr, name, symbol string) {
	if name == "" && symbol == "" {
		return
	}
	d.metaMux.Lock()
	d.tokenMeta[addr] = tokenMeta{Name: name, Symbol: symbol}
	d.metaMux.Unlock()
}

func (d *DexToken) metaFor(addr string) tokenMeta {
	d.metaMux.Lock()
	defer d.metaMux.Unlock()
	return d.tokenMeta[addr]
}

func numberOrZero(raw json.Number) decimal.Decimal {
	if raw == "" {
		return decimal.Decimal{}
	}
	value, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Decimal{}
	}
	return value
}

var _ Source = (*DexToken)(nil)
