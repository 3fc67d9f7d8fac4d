package router

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/models"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/router/brokers"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var resolverLog zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	resolverLog = zerolog.New(out).With().Timestamp().Str("component", "resolver").Logger()
}

// QuoteSource prices curve trades
type QuoteSource interface {
	BuyQuote(ctx context.Context, token common.Address, curveAssetIn decimal.Decimal) (*models.BondingCurveQuote, error)
	SellQuote(ctx context.Context, token common.Address, tokensIn decimal.Decimal) (*models.BondingCurveQuote, error)
}

// Resolver maps a payment asset to the ordered steps that reach the curve
type Resolver struct {
	catalog    *Catalog
	curve      common.Address
	aggregator brokers.Aggregator // nil disables swap routes
	quotes     QuoteSource
}

// NewResolver creates a resolver. aggregator may be nil when no swap venue is configured.
func NewResolver(catalog *Catalog, curve common.Address, aggregator brokers.Aggregator, quotes QuoteSource) *Resolver {
	return &Resolver{
		catalog:    catalog,
		curve:      curve,
		aggregator: aggregator,
		quotes:     quotes,
	}
}

// Catalog returns the payment asset catalog
func (r *Resolver) Catalog() *Catalog {
	return r.catalog
}

// Resolve dispatches on the intent's side
func (r *Resolver) Resolve(ctx context.Context, intent models.PaymentIntent) (*Route, error) {
	if intent.Side == models.SideSell {
		return r.ResolveSell(ctx, intent)
	}
	return r.ResolveBuy(ctx, intent)
}

// ResolveBuy plans a purchase of the intent's curve token.
// Priority order: 1) native, 2) curve asset, 3) swap into the curve asset
func (r *Resolver) ResolveBuy(ctx context.Context, intent models.PaymentIntent) (*Route, error) {
	resolverLog.Info().
		Str("payer", intent.Payer.Hex()).
		Str("asset", intent.PaymentAsset.Symbol).
		Str("amount", intent.PaymentAmount.String()).
		Str("token", intent.TargetCurveToken.Hex()).
		Msg("Resolving buy route")

	if !intent.PaymentAmount.IsPositive() {
		return nil, fmt.Errorf("%w: payment amount must be positive", models.ErrInvalidAmount)
	}
	asset, err := r.catalog.Lookup(intent.PaymentAsset.Symbol)
	if err != nil {
		return nil, err
	}
	if err := checkUnits(asset, intent.PaymentAmount); err != nil {
		return nil, err
	}
	curveAsset := r.catalog.CurveAsset()

	switch {
	case asset.IsNative():
		return r.resolveNative(ctx, intent, asset, curveAsset)

	case asset.Kind == models.AssetCurve:
		q, err := r.quotes.BuyQuote(ctx, intent.TargetCurveToken, intent.PaymentAmount)
		if err != nil {
			return nil, err
		}
		return &Route{
			Kind:       RouteDirectCurve,
			Source:     asset,
			CurveAsset: curveAsset,
			Steps: []models.SwapStep{
				step(models.StepApprove, asset, intent.PaymentAmount, &r.curve),
				step(models.StepBuy, asset, intent.PaymentAmount, nil),
			},
			EstimatedCurveAsset: intent.PaymentAmount,
			Quote:               q,
		}, nil

	case asset.NeedsSwap():
		return r.resolveSwap(ctx, intent, asset, curveAsset)

	default:
		return nil, fmt.Errorf("%w: %s", models.ErrUnsupportedAsset, asset.Symbol)
	}
}

func (r *Resolver) resolveNative(ctx context.Context, intent models.PaymentIntent, asset, curveAsset models.Asset) (*Route, error) {
	route := &Route{
		Kind:       RouteDirectNative,
		Source:     asset,
		CurveAsset: curveAsset,
		Steps:      []models.SwapStep{step(models.StepBuy, asset, intent.PaymentAmount, nil)},
	}

	// the orchestrator re-prices at run time and refuses to buy without an estimate
	if r.aggregator != nil {
		estimate, err := r.aggregator.EstimateOut(ctx, asset, curveAsset, asset.ToBaseUnits(intent.PaymentAmount))
		if err != nil {
			resolverLog.Warn().Err(err).Str("broker", r.aggregator.GetBrokerType()).Msg("Native estimate unavailable")
		} else {
			route.EstimatedCurveAsset = curveAsset.FromBaseUnits(estimate)
		}
	}

	q, err := r.quotes.BuyQuote(ctx, intent.TargetCurveToken, route.EstimatedCurveAsset)
	if err != nil {
		return nil, err
	}
	if !route.EstimatedCurveAsset.IsZero() {
		route.Quote = q
	}
	return route, nil
}

func (r *Resolver) resolveSwap(ctx context.Context, intent models.PaymentIntent, asset, curveAsset models.Asset) (*Route, error) {
	if r.aggregator == nil {
		return nil, fmt.Errorf("%w: no swap venue configured for %s", models.ErrUnsupportedAsset, asset.Symbol)
	}
	spender := r.aggregator.Spender()
	route := &Route{
		Kind:       RouteSwap,
		Source:     asset,
		CurveAsset: curveAsset,
		Steps: []models.SwapStep{
			step(models.StepApprove, asset, intent.PaymentAmount, &spender),
			step(models.StepSwap, asset, intent.PaymentAmount, nil),
			step(models.StepApprove, curveAsset, decimal.Zero, &r.curve),
			step(models.StepBuy, curveAsset, decimal.Zero, nil),
		},
	}

	estimate, err := r.aggregator.EstimateOut(ctx, asset, curveAsset, asset.ToBaseUnits(intent.PaymentAmount))
	if err != nil {
		// the estimate is informational; the pipeline observes the real output
		resolverLog.Warn().Err(err).Str("broker", r.aggregator.GetBrokerType()).Msg("Swap estimate unavailable")
	} else {
		route.EstimatedCurveAsset = curveAsset.FromBaseUnits(estimate)
		route.Steps[2].InputAmount = route.EstimatedCurveAsset
		route.Steps[3].InputAmount = route.EstimatedCurveAsset
	}

	q, err := r.quotes.BuyQuote(ctx, intent.TargetCurveToken, route.EstimatedCurveAsset)
	switch {
	case errors.Is(err, models.ErrCurveUnavailable):
		return nil, err
	case err != nil:
		resolverLog.Warn().Err(err).Msg("Curve quote unavailable")
	case !route.EstimatedCurveAsset.IsZero():
		route.Quote = q
	}

	resolverLog.Info().
		Str("broker", r.aggregator.GetBrokerType()).
		Str("estimate", route.EstimatedCurveAsset.String()).
		Msg("Found swap route")
	return route, nil
}

// ResolveSell plans returning curve tokens to the curve
func (r *Resolver) ResolveSell(ctx context.Context, intent models.PaymentIntent) (*Route, error) {
	resolverLog.Info().
		Str("seller", intent.Payer.Hex()).
		Str("amount", intent.PaymentAmount.String()).
		Str("token", intent.TargetCurveToken.Hex()).
		Msg("Resolving sell route")

	if !intent.PaymentAmount.IsPositive() {
		return nil, fmt.Errorf("%w: sell amount must be positive", models.ErrInvalidAmount)
	}
	token := models.CurveTokenAsset(intent.TargetCurveToken)
	if err := checkUnits(token, intent.PaymentAmount); err != nil {
		return nil, err
	}
	q, err := r.quotes.SellQuote(ctx, intent.TargetCurveToken, intent.PaymentAmount)
	if err != nil {
		return nil, err
	}
	return &Route{
		Kind:       RouteSell,
		Source:     token,
		CurveAsset: r.catalog.CurveAsset(),
		Steps: []models.SwapStep{
			step(models.StepApprove, token, intent.PaymentAmount, &r.curve),
			step(models.StepSell, token, intent.PaymentAmount, nil),
		},
		EstimatedCurveAsset: q.OutputAmount,
		Quote:               q,
	}, nil
}

// checkUnits rejects amounts that round down to zero base units of asset
func checkUnits(asset models.Asset, amount decimal.Decimal) error {
	if asset.ToBaseUnits(amount).Sign() == 0 {
		return fmt.Errorf("%w: %s is below the smallest unit of %s", models.ErrInvalidAmount, amount, asset.Symbol)
	}
	return nil
}

func step(kind models.StepKind, asset models.Asset, amount decimal.Decimal, spender *common.Address) models.SwapStep {
	s := models.SwapStep{
		Kind:        kind,
		InputAsset:  asset,
		InputAmount: amount,
		Status:      models.StepPending,
	}
	if spender != nil {
		addr := *spender
		s.Spender = &addr
	}
	return s
}
