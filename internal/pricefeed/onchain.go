package pricefeed

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const aggregatorABIJSON = `[` +
	`{"inputs":[],"name":"latestRoundData","outputs":[{"internalType":"uint80","name":"roundId","type":"uint80"},{"internalType":"int256","name":"answer","type":"int256"},{"internalType":"uint256","name":"startedAt","type":"uint256"},{"internalType":"uint256","name":"updatedAt","type":"uint256"},{"internalType":"uint80","name":"answeredInRound","type":"uint80"}],"stateMutability":"view","type":"function"},` +
	`{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"}]`

var aggregatorABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(aggregatorABIJSON))
	if err != nil {
		panic("failed to parse aggregator ABI: " + err.Error())
	}
	aggregatorABI = parsed
}

// OnchainOptions parameterise the Chainlink feed fetcher.
type OnchainOptions struct {
	RPCURL string
	// Feeds maps an identifier to its aggregator contract address.
	Feeds   map[string]string
	Timeout time.Duration
}

// Onchain reads USD prices from Chainlink aggregator contracts over RPC.
type Onchain struct {
	opts      OnchainOptions
	logger    zerolog.Logger
	client    *ethclient.Client
	clientMux sync.Mutex

	decimalsMux   sync.Mutex
	decimalsCache map[string]int32
}

// NewOnchain builds a new on-chain feed fetcher.
func NewOnchain(opts OnchainOptions, logger zerolog.Logger) *Onchain {
	return &Onchain{
		opts:          opts,
		logger:        logger.With().Str("component", "onchain_source").Logger(),
		decimalsCache: make(map[string]int32),
	}
}

// Name identifies the source in logs and persisted records.
func (o *Onchain) Name() string { return "chainlink" }

// Fetch reads latestRoundData from each identifier's feed. RPC and decode
// errors are absorbed into nil entries; a non-positive answer is a failure.
func (o *Onchain) Fetch(ctx context.Context, identifiers []string) map[string]*Quote {
	quotes := make(map[string]*Quote, len(identifiers))
	for _, id := range identifiers {
		quotes[id] = nil
	}

	timeout := o.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := o.getClient(ctx)
	if err != nil {
		o.logger.Warn().Err(err).Msg("ethereum rpc dial failed")
		return quotes
	}

	now := time.Now().UTC()
	for _, id := range identifiers {
		feed, ok := o.opts.Feeds[id]
		if !ok || feed == "" {
			continue
		}
		price, err := o.readFeed(ctx, client, feed)
		if err != nil {
			o.logger.Warn().Err(err).Str("identifier", id).Str("feed", feed).Msg("feed read failed")
			continue
		}
		if !price.IsPositive() {
			continue
		}
		quotes[id] = &Quote{
			Identifier: id,
			PriceUSD:   price,
			Source:     o.Name(),
			FetchedAt:  now,
		}
	}
	return quotes
}

func (o *Onchain) readFeed(ctx context.Context, client *ethclient.Client, feed string) (decimal.Decimal, error) {
	addr := common.HexToAddress(feed)

	exp, err := o.feedDecimals(ctx, client, addr)
	if err != nil {
		return decimal.Decimal{}, err
	}

	payload, err := aggregatorABI.Pack("latestRoundData")
	if err != nil {
		return decimal.Decimal{}, err
	}
	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: payload}, nil)
	if err != nil {
		return decimal.Decimal{}, err
	}
	outputs, err := aggregatorABI.Unpack("latestRoundData", res)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if len(outputs) != 5 {
		return decimal.Decimal{}, errors.New("unexpected latestRoundData response")
	}
	answer, ok := outputs[1].(*big.Int)
	if !ok {
		return decimal.Decimal{}, errors.New("failed to decode latestRoundData answer")
	}

	return decimal.NewFromBigInt(answer, -exp), nil
}

func (o *Onchain) feedDecimals(ctx context.Context, client *ethclient.Client, addr common.Address) (int32, error) {
	o.decimalsMux.Lock()
	cached, ok := o.decimalsCache[addr.Hex()]
	o.decimalsMux.Unlock()
	if ok {
		return cached, nil
	}

	payload, err := aggregatorABI.Pack("decimals")
	if err != nil {
		return 0, err
	}
	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: payload}, nil)
	if err != nil {
		return 0, err
	}
	outputs, err := aggregatorABI.Unpack("decimals", res)
	if err != nil {
		return 0, err
	}
	if len(outputs) != 1 {
		return 0, errors.New("unexpected decimals response")
	}
	dec, ok := outputs[0].(uint8)
	if !ok {
		return 0, errors.New("failed to decode decimals output")
	}

	o.decimalsMux.Lock()
	o.decimalsCache[addr.Hex()] = int32(dec)
	o.decimalsMux.Unlock()
	return int32(dec), nil
}

func (o *Onchain) getClient(ctx context.Context) (*ethclient.Client, error) {
	o.clientMux.Lock()
	defer o.clientMux.Unlock()

	if o.client != nil {
		return o.client, nil
	}
	if o.opts.RPCURL == "" {
		return nil, errors.New("ethereum rpc url not configured")
	}

	client, err := ethclient.DialContext(ctx, o.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	o.client = client
	return client, nil
}

var _ Source = (*Onchain)(nil)
