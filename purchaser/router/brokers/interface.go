// Package brokers defines the swap aggregator used to turn a payment asset
// into the curve asset. Each aggregator implementation builds calldata for
// its own router contract; nothing returned here is trusted as a final amount.
package brokers

import (
	"context"
	"math/big"
	"time"

	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/chain"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/models"
	"github.com/ethereum/go-ethereum/common"
)

// Aggregator quotes and builds swaps on an on-chain DEX router
type Aggregator interface {
	// EstimateOut returns the router's quoted output for amountIn base units of in.
	// The value is informational; the real output is observed after the swap.
	EstimateOut(ctx context.Context, in, out models.Asset, amountIn *big.Int) (*big.Int, error)

	// BuildSwap returns the unsigned swap transaction
	BuildSwap(ctx context.Context, params SwapParams) (chain.TxRequest, error)

	// Spender is the address that must hold an allowance of the input asset
	Spender() common.Address

	// GetBrokerType returns the type of aggregator (e.g., "uniswap-v2")
	GetBrokerType() string
}

// SwapParams describes one exact-input swap
type SwapParams struct {
	TokenIn      models.Asset
	TokenOut     models.Asset
	AmountIn     *big.Int
	MinAmountOut *big.Int
	Recipient    common.Address
	Deadline     time.Time
}

// CalculateMinOutput returns the minimum acceptable output for expectedOutput base units.
// slippageBps is basis points (e.g., 500 = 5%)
func CalculateMinOutput(expectedOutput *big.Int, slippageBps uint32) *big.Int {
	return calculateMinOutputInternal(expectedOutput, slippageBps)
}
