package quote_test

import (
	"context"
	"errors"
	"testing"

	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/models"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/quote"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/zeebo/assert"
)

var token = common.HexToAddress("0x1111111111111111111111111111111111111111")

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func curve(supply, base, slope string, feeBps uint32) models.CurveState {
	return models.CurveState{
		Token:      token,
		Deployed:   true,
		SupplySold: d(supply),
		BasePrice:  d(base),
		Slope:      d(slope),
		FeeBps:     feeBps,
	}
}

type staticReader struct {
	state models.CurveState
	err   error
}

func (r staticReader) State(ctx context.Context, token common.Address) (models.CurveState, error) {
	return r.state, r.err
}

func TestQuoteBuy_ZeroInput(t *testing.T) {
	states := []models.CurveState{
		curve("0", "0.001", "0", 0),
		curve("0", "0.001", "0.000001", 100),
		curve("1000000", "0.001", "0.0000001", 250),
		curve("42.5", "0", "0.5", 0),
	}
	for _, state := range states {
		q, err := quote.QuoteBuy(state, decimal.Zero)
		assert.NoError(t, err)
		assert.True(t, q.OutputAmount.IsZero())
		assert.True(t, q.PriceImpactPercent.IsZero())
		assert.True(t, q.FeeAmount.IsZero())

		q, err = quote.QuoteSell(state, decimal.Zero)
		assert.NoError(t, err)
		assert.True(t, q.OutputAmount.IsZero())
		assert.True(t, q.PriceImpactPercent.IsZero())
	}
}

func TestQuoteBuy_FlatCurve(t *testing.T) {
	q, err := quote.QuoteBuy(curve("0", "0.001", "0", 0), d("10"))
	assert.NoError(t, err)
	assert.Equal(t, q.OutputAmount.String(), "10000")
	assert.True(t, q.PriceImpactPercent.GreaterThanOrEqual(decimal.Zero))
	// nothing sold yet, so the pre-trade market cap is zero
	assert.False(t, q.ImpactDefined)
}

func TestQuoteBuy_MonotonicAndAboveSpot(t *testing.T) {
	state := curve("5000", "0.001", "0.000002", 100)
	inputs := []string{"0.5", "1", "10", "250", "10000"}

	prevOut := decimal.Zero
	prevAvg := decimal.Zero
	for _, in := range inputs {
		q, err := quote.QuoteBuy(state, d(in))
		assert.NoError(t, err)
		assert.True(t, q.OutputAmount.GreaterThan(prevOut))
		assert.True(t, q.AveragePrice.GreaterThanOrEqual(q.SpotPrice))
		assert.True(t, q.AveragePrice.GreaterThanOrEqual(prevAvg))
		assert.True(t, q.ImpactDefined)
		assert.True(t, q.PriceImpactPercent.IsPositive())
		prevOut = q.OutputAmount
		prevAvg = q.AveragePrice
	}
}

func TestQuoteBuy_SolvesCurveIntegral(t *testing.T) {
	// base 1, slope 1, s0 0: n + n^2/2 = 4 gives n = 2
	q, err := quote.QuoteBuy(curve("0", "1", "1", 0), d("4"))
	assert.NoError(t, err)
	assert.True(t, q.OutputAmount.Sub(d("2")).Abs().LessThan(d("0.000000000001")))
}

func TestQuoteBuy_FeeDeductedFromInput(t *testing.T) {
	q, err := quote.QuoteBuy(curve("0", "0.001", "0", 100), d("10"))
	assert.NoError(t, err)
	assert.Equal(t, q.FeeAmount.String(), "0.1")
	assert.Equal(t, q.OutputAmount.String(), "9900")
}

func TestQuote_UndeployedCurve(t *testing.T) {
	state := curve("0", "0.001", "0", 0)
	state.Deployed = false

	_, err := quote.QuoteBuy(state, d("1"))
	assert.True(t, errors.Is(err, models.ErrCurveUnavailable))

	// a zero quote on an undeployed curve is still unavailable, not zero
	_, err = quote.QuoteBuy(state, decimal.Zero)
	assert.True(t, errors.Is(err, models.ErrCurveUnavailable))

	_, err = quote.QuoteSell(state, d("1"))
	assert.True(t, errors.Is(err, models.ErrCurveUnavailable))
}

func TestQuoteBuy_RejectsNegative(t *testing.T) {
	_, err := quote.QuoteBuy(curve("0", "1", "0", 0), d("-1"))
	assert.True(t, errors.Is(err, models.ErrInvalidAmount))
}

func TestQuote_RejectsInvalidCurveState(t *testing.T) {
	tests := []struct {
		name  string
		state models.CurveState
	}{
		{"fee above whole input", curve("1000", "0.001", "0.000001", 20000)},
		{"flat curve fee above whole input", curve("1000", "0.001", "0", 10001)},
		{"negative slope", curve("1000", "0.001", "-0.000001", 0)},
		{"negative base price", curve("1000", "-0.001", "0.000001", 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := quote.QuoteBuy(tt.state, d("10"))
			assert.True(t, errors.Is(err, quote.ErrInvalidCurveState))

			_, err = quote.QuoteSell(tt.state, d("1"))
			assert.True(t, errors.Is(err, quote.ErrInvalidCurveState))
		})
	}

	// a 100% fee is extreme but still prices to zero tokens
	q, err := quote.QuoteBuy(curve("1000", "0.001", "0.000001", 10000), d("10"))
	assert.NoError(t, err)
	assert.True(t, q.OutputAmount.IsZero())
	assert.Equal(t, q.FeeAmount.String(), "10")
}

func TestQuoteSell(t *testing.T) {
	// base 1, slope 1, s0 4: integral over [2, 4] of (1 + s) ds = 2 + 6 = 8
	q, err := quote.QuoteSell(curve("4", "1", "1", 0), d("2"))
	assert.NoError(t, err)
	assert.Equal(t, q.OutputAmount.String(), "8")
	assert.Equal(t, q.AveragePrice.String(), "4")
	assert.True(t, q.ImpactDefined)
	assert.True(t, q.PriceImpactPercent.IsNegative())

	q, err = quote.QuoteSell(curve("4", "1", "1", 500), d("2"))
	assert.NoError(t, err)
	assert.Equal(t, q.FeeAmount.String(), "0.4")
	assert.Equal(t, q.OutputAmount.String(), "7.6")
}

func TestQuoteSell_ExceedsSupply(t *testing.T) {
	_, err := quote.QuoteSell(curve("4", "1", "1", 0), d("4.000001"))
	assert.True(t, errors.Is(err, models.ErrInsufficientSupply))
}

func TestEngine_PropagatesReadErrors(t *testing.T) {
	boom := errors.New("rpc down")
	engine := quote.NewEngine(staticReader{err: boom})
	_, err := engine.BuyQuote(context.Background(), token, d("1"))
	assert.True(t, errors.Is(err, boom))

	engine = quote.NewEngine(staticReader{state: curve("0", "0.001", "0", 0)})
	q, err := engine.BuyQuote(context.Background(), token, d("10"))
	assert.NoError(t, err)
	assert.Equal(t, q.OutputAmount.String(), "10000")
}
