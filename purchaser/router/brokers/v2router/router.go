// Package v2router implements brokers.Aggregator for UniswapV2-style routers
// (Uniswap V2, Aerodrome classic, BaseSwap and forks sharing the interface).
package v2router

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/chain"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/models"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/router/brokers"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "v2-router").Logger()
}

const routerABIJSON = `[
	{"type":"function","name":"getAmountsOut","stateMutability":"view",
	 "inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],
	 "outputs":[{"name":"amounts","type":"uint256[]"}]},
	{"type":"function","name":"swapExactTokensForTokens","stateMutability":"nonpayable",
	 "inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},
	           {"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],
	 "outputs":[{"name":"amounts","type":"uint256[]"}]}
]`

// RouterABI is the subset of the V2 router used here
var RouterABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(routerABIJSON))
	if err != nil {
		panic("invalid router abi: " + err.Error())
	}
	return parsed
}()

// Router quotes and builds swaps through a V2 router contract
type Router struct {
	address common.Address
	caller  chain.Caller
	// hub is an optional intermediate token for pairs without a direct pool
	hub *common.Address
	// wrapped stands in for the native asset when pricing native payments
	wrapped *common.Address
}

var _ brokers.Aggregator = (*Router)(nil)

// New creates a router client. hub may be nil.
func New(address common.Address, caller chain.Caller, hub *common.Address) *Router {
	return &Router{address: address, caller: caller, hub: hub}
}

// WithWrappedNative lets EstimateOut price the native asset through its wrapped token
func (r *Router) WithWrappedNative(wrapped common.Address) *Router {
	r.wrapped = &wrapped
	return r
}

// token returns the pool token standing in for asset
func (r *Router) token(asset models.Asset) (common.Address, error) {
	if !asset.IsNative() {
		return asset.Address, nil
	}
	if r.wrapped == nil {
		return common.Address{}, fmt.Errorf("%w: no wrapped native token configured", models.ErrUnsupportedAsset)
	}
	return *r.wrapped, nil
}

func (r *Router) path(in, out common.Address) []common.Address {
	if r.hub == nil || *r.hub == in || *r.hub == out {
		return []common.Address{in, out}
	}
	return []common.Address{in, *r.hub, out}
}

// EstimateOut implements brokers.Aggregator
func (r *Router) EstimateOut(ctx context.Context, in, out models.Asset, amountIn *big.Int) (*big.Int, error) {
	tokenIn, err := r.token(in)
	if err != nil {
		return nil, err
	}
	tokenOut, err := r.token(out)
	if err != nil {
		return nil, err
	}
	path := r.path(tokenIn, tokenOut)

	log.Debug().
		Str("tokenIn", in.Symbol).
		Str("amount", amountIn.String()).
		Str("tokenOut", out.Symbol).
		Int("hops", len(path)-1).
		Msg("Querying router for swap estimate")

	data, err := RouterABI.Pack("getAmountsOut", amountIn, path)
	if err != nil {
		return nil, fmt.Errorf("failed to pack getAmountsOut: %w", err)
	}
	raw, err := r.caller.CallContract(ctx, r.address, data)
	if err != nil {
		log.Error().Err(err).Str("tokenIn", in.Symbol).Str("tokenOut", out.Symbol).Msg("Router query failed")
		return nil, err
	}
	values, err := RouterABI.Unpack("getAmountsOut", raw)
	if err != nil || len(values) != 1 {
		return nil, fmt.Errorf("failed to decode getAmountsOut: %v", err)
	}
	amounts, ok := values[0].([]*big.Int)
	if !ok || len(amounts) != len(path) {
		return nil, fmt.Errorf("unexpected getAmountsOut result for %d-token path", len(path))
	}
	return amounts[len(amounts)-1], nil
}

// BuildSwap implements brokers.Aggregator
func (r *Router) BuildSwap(ctx context.Context, params brokers.SwapParams) (chain.TxRequest, error) {
	if params.TokenIn.IsNative() || params.TokenOut.IsNative() {
		return chain.TxRequest{}, fmt.Errorf("%w: v2 router swaps ERC-20 tokens only", models.ErrUnsupportedAsset)
	}
	if params.AmountIn == nil || params.AmountIn.Sign() <= 0 {
		return chain.TxRequest{}, fmt.Errorf("%w: swap amount must be positive", models.ErrInvalidAmount)
	}
	minOut := params.MinAmountOut
	if minOut == nil {
		minOut = new(big.Int)
	}
	deadline := big.NewInt(params.Deadline.Unix())

	data, err := RouterABI.Pack("swapExactTokensForTokens",
		params.AmountIn,
		minOut,
		r.path(params.TokenIn.Address, params.TokenOut.Address),
		params.Recipient,
		deadline,
	)
	if err != nil {
		return chain.TxRequest{}, fmt.Errorf("failed to pack swap: %w", err)
	}
	return chain.TxRequest{
		From:  params.Recipient,
		To:    r.address,
		Data:  data,
		Label: fmt.Sprintf("swap %s to %s", params.TokenIn.Symbol, params.TokenOut.Symbol),
	}, nil
}

// Spender implements brokers.Aggregator
func (r *Router) Spender() common.Address {
	return r.address
}

// GetBrokerType implements brokers.Aggregator
func (r *Router) GetBrokerType() string {
	return "uniswap-v2"
}
