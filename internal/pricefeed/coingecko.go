package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const simplePricePath = "/simple/price"

// CoinGeckoOptions parameterise the aggregated index fetcher.
type CoinGeckoOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// CoinGecko resolves a whole batch of coin ids in a single API call.
type CoinGecko struct {
	opts    CoinGeckoOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewCoinGecko constructs the aggregated index fetcher.
func NewCoinGecko(opts CoinGeckoOptions, logger zerolog.Logger) *CoinGecko {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}

	return &CoinGecko{
		opts:    opts,
		logger:  logger.With().Str("component", "coingecko_source").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Name identifies the source in logs and persisted records.
func (c *CoinGecko) Name() string { return "coingecko" }

// Fetch resolves the batch with one /simple/price call. A total request
// failure maps every identifier to nil; an identifier missing from the
// response body maps to nil individually.
func (c *CoinGecko) Fetch(ctx context.Context, identifiers []string) map[string]*Quote {
	quotes := make(map[string]*Quote, len(identifiers))
	for _, id := range identifiers {
		quotes[id] = nil
	}

	query := url.Values{}
	query.Set("ids", strings.Join(identifiers, ","))
	query.Set("vs_currencies", "usd")
	query.Set("include_market_cap", "true")
	query.Set("include_24hr_vol", "true")
	query.Set("include_24hr_change", "true")

	endpoint := c.baseURL + simplePricePath + "?" + query.Encode()
	body, err := c.get(ctx, endpoint)
	if err != nil {
		c.logger.Warn().Err(err).Int("identifiers", len(identifiers)).Msg("index price request failed")
		return quotes
	}

	var payload map[string]map[string]json.Number
	if err := json.Unmarshal(body, &payload); err != nil {
		c.logger.Warn().Err(err).Msg("index price response malformed")
		return quotes
	}

	now := time.Now().UTC()
	for _, id := range identifiers {
		fields, ok := payload[id]
		if !ok {
			continue
		}
		price, ok := numberField(fields, "usd")
		if !ok {
			continue
		}
		// CoinGecko reports 0 for stale or delisted ids; that is not a price.
		if !price.IsPositive() {
			c.logger.Debug().Str("identifier", id).Msg("non-positive index price, treating as failed")
			continue
		}
		quote := &Quote{
			Identifier: id,
			PriceUSD:   price,
			Source:     c.Name(),
			FetchedAt:  now,
		}
		if v, ok := numberField(fields, "usd_24h_vol"); ok {
			quote.Volume24h = v
		}
		if v, ok := numberField(fields, "usd_market_cap"); ok {
			quote.MarketCap = v
		}
		if v, ok := numberField(fields, "usd_24h_change"); ok {
			quote.Change24h = v
		}
		quotes[id] = quote
	}
	return quotes
}

func (c *CoinGecko) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coingecko status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func numberField(fields map[string]json.Number, key string) (decimal.Decimal, bool) {
	raw, ok := fields[key]
	if !ok || raw == "" {
		return decimal.Decimal{}, false
	}
	value, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Decimal{}, false
	}
	return value, true
}

var _ Source = (*CoinGecko)(nil)
