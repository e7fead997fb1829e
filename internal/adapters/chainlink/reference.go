// Package chainlink reads the BTC/USD price from a Chainlink aggregator
// on Polygon. It is the secondary price source: a health heartbeat for the
// candle feed, and the only candle input if the primary stream never comes up.
package chainlink

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/lod61/poly-model-auto-trading/internal/domain"
)

const (
	// BTC/USD aggregator proxy on Polygon mainnet.
	defaultAggregator = "0xc907E116054Ad103354f2D350FD2514433D57F6f"

	callTimeout = 5 * time.Second

	// After this many consecutive failures the source disables itself for
	// the rest of the run instead of dragging every cycle through a timeout.
	maxConsecutiveFailures = 5
)

var aggregatorABI abi.ABI

func init() {
	var err error
	aggregatorABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "latestRoundData",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [
				{"name": "roundId", "type": "uint80"},
				{"name": "answer", "type": "int256"},
				{"name": "startedAt", "type": "uint256"},
				{"name": "updatedAt", "type": "uint256"},
				{"name": "answeredInRound", "type": "uint80"}
			]
		},
		{
			"name": "decimals",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [{"name": "", "type": "uint8"}]
		}
	]`))
	if err != nil {
		panic("aggregator abi parse: " + err.Error())
	}
}

// Oracle implements ports.ReferencePricer over a Chainlink aggregator proxy.
type Oracle struct {
	client     *ethclient.Client
	aggregator common.Address

	mu       sync.Mutex
	decimals uint8
	failures int
	disabled bool
}

// NewOracle connects to the given Polygon RPC. With aggregatorAddr empty
// the BTC/USD mainnet proxy is used.
func NewOracle(rpcURL, aggregatorAddr string) (*Oracle, error) {
	if aggregatorAddr == "" {
		aggregatorAddr = defaultAggregator
	}
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chainlink: dial rpc %s: %w", rpcURL, err)
	}
	return &Oracle{
		client:     client,
		aggregator: common.HexToAddress(aggregatorAddr),
	}, nil
}

// Disabled reports whether the source has shut itself off after repeated
// failures. The aggregator treats a disabled oracle the same as a missing one.
func (o *Oracle) Disabled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.disabled
}

// LatestPrice returns the most recent aggregator answer in USD and the
// on-chain updatedAt timestamp.
func (o *Oracle) LatestPrice(ctx context.Context) (float64, time.Time, error) {
	if o.Disabled() {
		return 0, time.Time{}, fmt.Errorf("chainlink: %w", domain.ErrConnection)
	}

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	price, updatedAt, err := o.latestRoundData(callCtx)
	if err != nil {
		o.recordFailure(err)
		if callCtx.Err() == context.DeadlineExceeded {
			return 0, time.Time{}, fmt.Errorf("chainlink: %w", domain.ErrConnectionTimeout)
		}
		return 0, time.Time{}, fmt.Errorf("chainlink: %w", err)
	}

	o.mu.Lock()
	o.failures = 0
	o.mu.Unlock()
	return price, updatedAt, nil
}

func (o *Oracle) recordFailure(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures++
	if o.failures >= maxConsecutiveFailures && !o.disabled {
		o.disabled = true
		slog.Warn("chainlink: disabling oracle after repeated failures",
			"failures", o.failures,
			"err", err,
		)
	}
}

func (o *Oracle) latestRoundData(ctx context.Context) (float64, time.Time, error) {
	dec, err := o.fetchDecimals(ctx)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("decimals: %w", err)
	}

	callData, err := aggregatorABI.Pack("latestRoundData")
	if err != nil {
		return 0, time.Time{}, err
	}

	result, err := o.client.CallContract(ctx, ethereum.CallMsg{
		To:   &o.aggregator,
		Data: callData,
	}, nil)
	if err != nil {
		return 0, time.Time{}, err
	}

	vals, err := aggregatorABI.Unpack("latestRoundData", result)
	if err != nil || len(vals) < 5 {
		return 0, time.Time{}, fmt.Errorf("unpack latestRoundData: %w", err)
	}

	answer, ok := vals[1].(*big.Int)
	if !ok || answer.Sign() <= 0 {
		return 0, time.Time{}, fmt.Errorf("non-positive answer")
	}
	updatedRaw, ok := vals[3].(*big.Int)
	if !ok {
		return 0, time.Time{}, fmt.Errorf("bad updatedAt")
	}

	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(dec)), nil))
	price, _ := new(big.Float).Quo(new(big.Float).SetInt(answer), scale).Float64()

	return price, time.Unix(updatedRaw.Int64(), 0).UTC(), nil
}

// fetchDecimals caches the aggregator's decimals after the first call.
func (o *Oracle) fetchDecimals(ctx context.Context) (uint8, error) {
	o.mu.Lock()
	cached := o.decimals
	o.mu.Unlock()
	if cached != 0 {
		return cached, nil
	}

	callData, err := aggregatorABI.Pack("decimals")
	if err != nil {
		return 0, err
	}
	result, err := o.client.CallContract(ctx, ethereum.CallMsg{
		To:   &o.aggregator,
		Data: callData,
	}, nil)
	if err != nil {
		return 0, err
	}
	vals, err := aggregatorABI.Unpack("decimals", result)
	if err != nil || len(vals) == 0 {
		return 0, fmt.Errorf("unpack decimals: %w", err)
	}
	dec, ok := vals[0].(uint8)
	if !ok || dec == 0 {
		return 0, fmt.Errorf("bad decimals value")
	}

	o.mu.Lock()
	o.decimals = dec
	o.mu.Unlock()
	return dec, nil
}
