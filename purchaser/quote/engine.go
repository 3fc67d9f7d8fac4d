// Package quote prices trades against a linear bonding curve.
//
// The curve charges price(s) = basePrice + slope*s per token, where s is the
// cumulative supply sold. Quotes are pure functions of the curve state; the
// Engine only adds the chain read.
package quote

import (
	"context"
	"errors"
	"fmt"

	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/models"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ErrInvalidCurveState means the chain reported pricing parameters no curve can have
var ErrInvalidCurveState = errors.New("invalid curve state")

// CurveReader loads the on-chain state of a token's curve
type CurveReader interface {
	State(ctx context.Context, token common.Address) (models.CurveState, error)
}

// Engine computes buy and sell quotes from live curve state
type Engine struct {
	reader CurveReader
}

func NewEngine(reader CurveReader) *Engine {
	return &Engine{reader: reader}
}

// BuyQuote prices spending curveAssetIn (human units) on token
func (e *Engine) BuyQuote(ctx context.Context, token common.Address, curveAssetIn decimal.Decimal) (*models.BondingCurveQuote, error) {
	state, err := e.reader.State(ctx, token)
	if err != nil {
		return nil, err
	}
	q, err := QuoteBuy(state, curveAssetIn)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// SellQuote prices returning tokensIn (human units) of token to the curve
func (e *Engine) SellQuote(ctx context.Context, token common.Address, tokensIn decimal.Decimal) (*models.BondingCurveQuote, error) {
	state, err := e.reader.State(ctx, token)
	if err != nil {
		return nil, err
	}
	q, err := QuoteSell(state, tokensIn)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// QuoteBuy solves basePrice*n + slope*(s0*n + n^2/2) = netIn for n.
// The fee is taken from the input before it reaches the curve.
func QuoteBuy(state models.CurveState, curveAssetIn decimal.Decimal) (models.BondingCurveQuote, error) {
	if err := checkInput(state, curveAssetIn); err != nil {
		return models.BondingCurveQuote{}, err
	}

	spot := state.SpotPrice()
	q := models.BondingCurveQuote{
		Token:        state.Token,
		Side:         models.SideBuy,
		InputAmount:  curveAssetIn,
		SpotPrice:    spot,
		AveragePrice: spot,
	}
	if curveAssetIn.IsZero() {
		q.ImpactDefined = !state.SupplySold.Mul(spot).IsZero()
		return q, nil
	}

	fee := feeOf(curveAssetIn, state.FeeBps)
	net := curveAssetIn.Sub(fee)

	var n decimal.Decimal
	switch {
	case state.Slope.IsZero() && spot.IsZero():
		return models.BondingCurveQuote{}, fmt.Errorf("%w: curve %s has zero price", models.ErrCurveUnavailable, state.Token.Hex())
	case state.Slope.IsZero():
		n = net.DivRound(spot, divPrecision)
	default:
		// n = 2*net / (p0 + sqrt(p0^2 + 2*slope*net)), stable for small slope
		disc := spot.Mul(spot).Add(two.Mul(state.Slope).Mul(net))
		root, err := sqrt(disc)
		if err != nil {
			return models.BondingCurveQuote{}, fmt.Errorf("%w: %w", ErrInvalidCurveState, err)
		}
		n = two.Mul(net).DivRound(spot.Add(root), divPrecision)
	}
	n = n.Truncate(tokenDecimals)

	q.FeeAmount = fee
	q.OutputAmount = n
	if n.IsPositive() {
		q.AveragePrice = net.DivRound(n, divPrecision)
	}

	preCap := spot.Mul(state.SupplySold)
	postCap := q.AveragePrice.Mul(state.SupplySold.Add(n))
	q.PriceImpactPercent, q.ImpactDefined = impactPercent(preCap, postCap)
	return q, nil
}

// QuoteSell integrates the price curve over [s0-n, s0] and deducts the fee
// from the proceeds. Selling more than the supply sold is rejected.
func QuoteSell(state models.CurveState, tokensIn decimal.Decimal) (models.BondingCurveQuote, error) {
	if err := checkInput(state, tokensIn); err != nil {
		return models.BondingCurveQuote{}, err
	}
	if tokensIn.GreaterThan(state.SupplySold) {
		return models.BondingCurveQuote{}, fmt.Errorf("%w: selling %s of %s",
			models.ErrInsufficientSupply, tokensIn, state.SupplySold)
	}

	spot := state.SpotPrice()
	q := models.BondingCurveQuote{
		Token:        state.Token,
		Side:         models.SideSell,
		InputAmount:  tokensIn,
		SpotPrice:    spot,
		AveragePrice: spot,
	}
	if tokensIn.IsZero() {
		q.ImpactDefined = !state.SupplySold.Mul(spot).IsZero()
		return q, nil
	}

	n := tokensIn
	half := n.Mul(n).Mul(oneHalf)
	gross := state.BasePrice.Mul(n).Add(state.Slope.Mul(state.SupplySold.Mul(n).Sub(half)))
	fee := feeOf(gross, state.FeeBps)

	q.FeeAmount = fee
	q.OutputAmount = gross.Sub(fee).Truncate(tokenDecimals)
	q.AveragePrice = gross.DivRound(n, divPrecision)

	preCap := spot.Mul(state.SupplySold)
	postCap := q.AveragePrice.Mul(state.SupplySold.Sub(n))
	q.PriceImpactPercent, q.ImpactDefined = impactPercent(preCap, postCap)
	return q, nil
}

func checkInput(state models.CurveState, amount decimal.Decimal) error {
	if !state.Deployed {
		return fmt.Errorf("%w: %s", models.ErrCurveUnavailable, state.Token.Hex())
	}
	if amount.IsNegative() {
		return fmt.Errorf("%w: %s is negative", models.ErrInvalidAmount, amount)
	}
	switch {
	case state.FeeBps > maxFeeBps:
		return fmt.Errorf("%w: fee of %d bps", ErrInvalidCurveState, state.FeeBps)
	case state.BasePrice.IsNegative(), state.Slope.IsNegative(), state.SupplySold.IsNegative():
		return fmt.Errorf("%w: negative pricing parameters", ErrInvalidCurveState)
	}
	return nil
}
