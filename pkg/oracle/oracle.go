// Copyright 2025 Archethic Network
//
// Oracle implements the UCO/USD (and EUR) price feed collaborator spec.md
// §6 names: GetUCOPrice(time) -> {eur, usd}. Adapted from the teacher's
// pkg/ethereum client plus pkg/anchor's ABI-bound contract-call pattern —
// here the contract read is a Chainlink-style price-feed's latestAnswer
// instead of an anchor-proof verification call.

package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// priceFeedABI exposes the two read-only functions this core needs from a
// Chainlink-compatible aggregator: latestAnswer (USD, 8 decimals) and a
// decimals() accessor for scaling.
const priceFeedABI = `[
  {"constant":true,"inputs":[],"name":"latestAnswer","outputs":[{"name":"","type":"int256"}],"type":"function"},
  {"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"}
]`

// Price is the UCO price sample a mining workflow feeds into
// ledger.ComputeFee.
type Price struct {
	EUR       float64
	USD       float64
	Timestamp time.Time
}

// Source is the contract every fee computation depends on.
type Source interface {
	GetUCOPrice(ctx context.Context, at time.Time) (Price, error)
}

// EthereumSource reads the current price off an Ethereum-compatible
// price-feed contract, caching samples for CacheTTL so a burst of
// cross-validators recomputing the fee within the same block see an
// identical price (and therefore an identical fee, matching property 6's
// atomic-commitment requirement in practice).
type EthereumSource struct {
	client   *ethclient.Client
	contract common.Address
	abi      abi.ABI
	eurRate  float64 // static USD->EUR conversion; a stand-in for a second feed
	cacheTTL time.Duration

	mu          sync.Mutex
	cachedAt    time.Time
	cachedPrice Price
}

// NewEthereumSource dials rpcURL and binds to the price-feed contract at
// feedAddress.
func NewEthereumSource(rpcURL string, feedAddress common.Address, cacheTTL time.Duration) (*EthereumSource, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("oracle: connect ethereum: %w", err)
	}
	parsedABI, err := abi.JSON(strings.NewReader(priceFeedABI))
	if err != nil {
		return nil, fmt.Errorf("oracle: parse feed ABI: %w", err)
	}
	return &EthereumSource{
		client:   client,
		contract: feedAddress,
		abi:      parsedABI,
		eurRate:  0.92, // approximate USD->EUR; refreshed out of band in a real deployment
		cacheTTL: cacheTTL,
	}, nil
}

func (s *EthereumSource) readLatestAnswer(ctx context.Context) (*big.Int, uint8, error) {
	caller := bind.NewBoundContract(s.contract, s.abi, s.client, s.client, s.client)

	var answerOut []interface{}
	if err := caller.Call(&bind.CallOpts{Context: ctx}, &answerOut, "latestAnswer"); err != nil {
		return nil, 0, fmt.Errorf("oracle: call latestAnswer: %w", err)
	}
	answer, ok := answerOut[0].(*big.Int)
	if !ok {
		return nil, 0, fmt.Errorf("oracle: unexpected latestAnswer type %T", answerOut[0])
	}

	var decimalsOut []interface{}
	if err := caller.Call(&bind.CallOpts{Context: ctx}, &decimalsOut, "decimals"); err != nil {
		return nil, 0, fmt.Errorf("oracle: call decimals: %w", err)
	}
	decimals, ok := decimalsOut[0].(uint8)
	if !ok {
		return nil, 0, fmt.Errorf("oracle: unexpected decimals type %T", decimalsOut[0])
	}

	return answer, decimals, nil
}

// GetUCOPrice implements Source. The "at" argument is accepted for
// interface symmetry with spec.md §6's signature; the feed itself only
// exposes the latest on-chain answer, matching the teacher's on-chain-read
// collaborators which never serve historical queries either.
func (s *EthereumSource) GetUCOPrice(ctx context.Context, at time.Time) (Price, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cacheTTL > 0 && time.Since(s.cachedAt) < s.cacheTTL {
		return s.cachedPrice, nil
	}

	answer, decimals, err := s.readLatestAnswer(ctx)
	if err != nil {
		return Price{}, err
	}

	scale := new(big.Float).SetFloat64(1)
	for i := uint8(0); i < decimals; i++ {
		scale.Mul(scale, big.NewFloat(10))
	}
	usd, _ := new(big.Float).Quo(new(big.Float).SetInt(answer), scale).Float64()

	price := Price{USD: usd, EUR: usd * s.eurRate, Timestamp: time.Now().UTC()}
	s.cachedPrice = price
	s.cachedAt = time.Now()
	return price, nil
}

// StaticSource is a fixed-price Source for standalone/test networks where
// no on-chain feed is configured (spec.md's bootstrap / tiny-network case).
type StaticSource struct {
	Price Price
}

// GetUCOPrice implements Source.
func (s StaticSource) GetUCOPrice(_ context.Context, _ time.Time) (Price, error) {
	return s.Price, nil
}

var _ Source = (*EthereumSource)(nil)
var _ Source = StaticSource{}
