package quote

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	// sqrtPrecision is the mantissa precision in bits used for square roots
	sqrtPrecision = 256
	// divPrecision is the number of decimal places kept by intermediate divisions
	divPrecision = 36
	// tokenDecimals is the precision of curve token amounts
	tokenDecimals = 18
	// maxFeeBps is a fee of the whole input
	maxFeeBps = 10_000
)

var (
	bpsDenominator = decimal.NewFromInt(maxFeeBps)
	two            = decimal.NewFromInt(2)
	oneHalf        = decimal.New(5, -1)
	hundred        = decimal.NewFromInt(100)
)

func sqrt(x decimal.Decimal) (decimal.Decimal, error) {
	if x.Sign() < 0 {
		return decimal.Zero, fmt.Errorf("square root of negative %s", x)
	}
	return decimal.NewFromString(
		new(big.Float).SetPrec(sqrtPrecision).Sqrt(
			x.BigFloat().SetPrec(sqrtPrecision),
		).Text('f', -1),
	)
}

// feeOf returns amount * feeBps / 10000
func feeOf(amount decimal.Decimal, feeBps uint32) decimal.Decimal {
	if feeBps == 0 {
		return decimal.Zero
	}
	return amount.Mul(decimal.NewFromInt(int64(feeBps))).DivRound(bpsDenominator, divPrecision)
}

// impactPercent compares market cap before and after a trade.
// ok is false when the pre-trade market cap is zero.
func impactPercent(preCap, postCap decimal.Decimal) (decimal.Decimal, bool) {
	if preCap.IsZero() {
		return decimal.Zero, false
	}
	return postCap.Sub(preCap).Mul(hundred).DivRound(preCap, divPrecision), true
}
