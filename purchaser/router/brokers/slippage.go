package brokers

import (
	"math/big"
)

// DefaultSlippageBps is the fixed tolerance for swap and buy minimum outputs
const DefaultSlippageBps uint32 = 500

const bpsDenominator = 10_000

// calculateMinOutputInternal calculates minimum output with slippage tolerance.
// minOutput = expected * (10000 - slippageBps) / 10000
func calculateMinOutputInternal(expectedOutput *big.Int, slippageBps uint32) *big.Int {
	if expectedOutput == nil || expectedOutput.Sign() <= 0 {
		return new(big.Int)
	}
	if slippageBps >= bpsDenominator {
		return new(big.Int)
	}

	minOutput := new(big.Int).Mul(expectedOutput, big.NewInt(int64(bpsDenominator-slippageBps)))
	return minOutput.Quo(minOutput, big.NewInt(bpsDenominator))
}
