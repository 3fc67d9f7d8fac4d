package router

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/chain"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/confirm"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/models"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/observability"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/router/brokers"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "orchestrator").Logger()
}

const (
	DefaultApprovalFallbackDelay = 3 * time.Second
	DefaultSwapDeadline          = 20 * time.Minute

	unknownTokensNote = "Token amount could not be read from the receipt; verify your balance."
)

// CurveContract is the bonding curve the pipeline buys from and sells to
type CurveContract interface {
	Address() common.Address
	State(ctx context.Context, token common.Address) (models.CurveState, error)
	BuyCall(buyer, token common.Address, curveAssetIn, minTokensOut *big.Int) (chain.TxRequest, error)
	BuyWithNativeCall(buyer, token common.Address, value, minTokensOut *big.Int) (chain.TxRequest, error)
	SellCall(seller, token common.Address, tokensIn, minCurveAssetOut *big.Int) (chain.TxRequest, error)
	DecodePurchase(receipt *types.Receipt, buyer common.Address) (curveAssetIn, tokensOut *big.Int, ok bool)
	DecodeSale(receipt *types.Receipt, seller common.Address) (tokensIn, curveAssetOut *big.Int, ok bool)
}

// PurchaseRecorder persists successful buys. It never fails the caller.
type PurchaseRecorder interface {
	Record(ctx context.Context, rec models.PurchaseRecord)
}

// Options configures an Orchestrator
type Options struct {
	Resolver     *Resolver
	Intake       *Intake
	Signer       chain.Signer
	Receipts     chain.ReceiptWaiter // optional; nil selects the fixed-delay fallback
	Detector     confirm.Strategy
	Curve        CurveContract
	Aggregator   brokers.Aggregator // optional; required for swap routes
	Quotes       QuoteSource
	Recorder     PurchaseRecorder // optional
	Precondition Precondition     // optional; checked before every signature request
	Metrics      *observability.Metrics

	SlippageBps           uint32
	ApprovalFallbackDelay time.Duration
	SwapDeadline          time.Duration
}

// Orchestrator drives pipelines through the approve, swap, confirm and buy stages
type Orchestrator struct {
	opts   Options
	tracer trace.Tracer
}

// NewOrchestrator validates opts and fills defaults
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Resolver == nil:
		return nil, errors.New("orchestrator: resolver is required")
	case opts.Signer == nil:
		return nil, errors.New("orchestrator: signer is required")
	case opts.Detector == nil:
		return nil, errors.New("orchestrator: detector is required")
	case opts.Curve == nil:
		return nil, errors.New("orchestrator: curve contract is required")
	case opts.Quotes == nil:
		return nil, errors.New("orchestrator: quote source is required")
	}
	if opts.Intake == nil {
		opts.Intake = NewIntake(DefaultRetention)
	}
	if opts.SlippageBps == 0 {
		opts.SlippageBps = brokers.DefaultSlippageBps
	}
	if opts.ApprovalFallbackDelay <= 0 {
		opts.ApprovalFallbackDelay = DefaultApprovalFallbackDelay
	}
	if opts.SwapDeadline <= 0 {
		opts.SwapDeadline = DefaultSwapDeadline
	}
	return &Orchestrator{
		opts:   opts,
		tracer: otel.Tracer("purchaser/router"),
	}, nil
}

// Resolver returns the route resolver
func (o *Orchestrator) Resolver() *Resolver {
	return o.opts.Resolver
}

// Submit resolves a route for intent and admits a new pipeline.
// The caller must Run the returned pipeline to release its intent key.
func (o *Orchestrator) Submit(ctx context.Context, intent models.PaymentIntent) (*Pipeline, error) {
	route, err := o.opts.Resolver.Resolve(ctx, intent)
	if err != nil {
		return nil, err
	}
	p := NewPipeline(intent, route, o.opts.Precondition)
	if err := o.opts.Intake.Acquire(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Execute submits and runs intent on the calling goroutine
func (o *Orchestrator) Execute(ctx context.Context, intent models.PaymentIntent) (*models.TradeResult, error) {
	p, err := o.Submit(ctx, intent)
	if err != nil {
		return nil, err
	}
	return o.Run(ctx, p)
}

// Start submits intent and runs it in the background, detached from ctx cancellation
func (o *Orchestrator) Start(ctx context.Context, intent models.PaymentIntent) (*Pipeline, error) {
	p, err := o.Submit(ctx, intent)
	if err != nil {
		return nil, err
	}
	go func() {
		_, _ = o.Run(context.WithoutCancel(ctx), p)
	}()
	return p, nil
}

// Pipeline looks up a pipeline by id
func (o *Orchestrator) Pipeline(id string) (*Pipeline, error) {
	return o.opts.Intake.Get(id)
}

// InFlight returns the number of running pipelines
func (o *Orchestrator) InFlight() int {
	return o.opts.Intake.InFlight()
}

// Run executes p to a terminal state. Failed pipelines are never retried.
func (o *Orchestrator) Run(ctx context.Context, p *Pipeline) (*models.TradeResult, error) {
	if err := p.begin(); err != nil {
		return nil, err
	}
	defer o.opts.Intake.Release(p)

	route := p.Route()
	started := time.Now()
	o.opts.Metrics.PipelineStarted(string(route.Kind))

	ctx, span := o.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("pipeline.id", p.ID()),
		attribute.String("pipeline.route", string(route.Kind)),
		attribute.String("payer", p.Intent().Payer.Hex()),
		attribute.String("token", p.Intent().TargetCurveToken.Hex()),
	))
	defer span.End()

	plog := log.With().Str("pipeline", p.ID()).Str("route", string(route.Kind)).Logger()
	plog.Info().
		Str("payer", p.Intent().Payer.Hex()).
		Str("asset", route.Source.Symbol).
		Str("amount", p.Intent().PaymentAmount.String()).
		Msg("Pipeline started")

	var (
		result *models.TradeResult
		err    error
	)
	switch route.Kind {
	case RouteDirectNative:
		result, err = o.runDirectNative(ctx, p)
	case RouteDirectCurve:
		result, err = o.runDirectCurve(ctx, p)
	case RouteSwap:
		result, err = o.runSwap(ctx, p)
	case RouteSell:
		result, err = o.runSell(ctx, p)
	default:
		err = fmt.Errorf("unknown route kind %q", route.Kind)
	}

	if err != nil {
		p.fail(err)
		class := models.Classify(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(class.Code))
		o.opts.Metrics.PipelineFinished(string(route.Kind), string(class.Code), time.Since(started))
		plog.Error().Err(err).Str("code", string(class.Code)).Bool("retrySafe", class.RetrySafe).
			Msg("Pipeline failed")
		return nil, err
	}

	p.succeed(result)
	o.opts.Metrics.PipelineFinished(string(route.Kind), "succeeded", time.Since(started))
	plog.Info().
		Str("tx", result.TxHash).
		Str("tokens", result.TokenAmount.String()).
		Bool("tokensKnown", result.TokenAmountKnown).
		Msg("Pipeline succeeded")
	return result, nil
}

func (o *Orchestrator) runDirectNative(ctx context.Context, p *Pipeline) (*models.TradeResult, error) {
	intent := p.Intent()
	route := p.Route()
	value := route.Source.ToBaseUnits(intent.PaymentAmount)

	minOut, err := o.nativeMinOut(ctx, p, value)
	if err != nil {
		return nil, err
	}

	p.setStage(models.StageBuying)
	tx, err := o.opts.Curve.BuyWithNativeCall(intent.Payer, intent.TargetCurveToken, value, minOut)
	if err != nil {
		return nil, err
	}
	return o.buy(ctx, p, 0, tx, intent.PaymentAmount)
}

// nativeMinOut prices value in the curve asset through the aggregator and
// bounds the tokens out by the slippage tolerance
func (o *Orchestrator) nativeMinOut(ctx context.Context, p *Pipeline, value *big.Int) (*big.Int, error) {
	if o.opts.Aggregator == nil {
		return nil, fmt.Errorf("%w: no swap venue to price native payments", models.ErrQuoteUnavailable)
	}
	route := p.Route()
	estimate, err := o.opts.Aggregator.EstimateOut(ctx, route.Source, route.CurveAsset, value)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrQuoteUnavailable, err)
	}
	if estimate == nil || estimate.Sign() <= 0 {
		return nil, fmt.Errorf("%w: native payment prices to zero %s", models.ErrQuoteUnavailable, route.CurveAsset.Symbol)
	}

	token := p.Intent().TargetCurveToken
	q, err := o.opts.Quotes.BuyQuote(ctx, token, route.CurveAsset.FromBaseUnits(estimate))
	if err != nil {
		return nil, err
	}
	return brokers.CalculateMinOutput(models.CurveTokenAsset(token).ToBaseUnits(q.OutputAmount), o.opts.SlippageBps), nil
}

func (o *Orchestrator) runDirectCurve(ctx context.Context, p *Pipeline) (*models.TradeResult, error) {
	intent := p.Intent()
	curveAsset := p.Route().CurveAsset
	amount := curveAsset.ToBaseUnits(intent.PaymentAmount)

	p.setStage(models.StageApprovingCurveAsset)
	if err := o.approve(ctx, p, 0, curveAsset, o.opts.Curve.Address(), amount); err != nil {
		return nil, err
	}

	p.setStage(models.StageBuying)
	return o.buyWithCurveAsset(ctx, p, 1, amount)
}

func (o *Orchestrator) runSwap(ctx context.Context, p *Pipeline) (*models.TradeResult, error) {
	if o.opts.Aggregator == nil {
		return nil, fmt.Errorf("%w: no swap venue configured", models.ErrUnsupportedAsset)
	}
	intent := p.Intent()
	route := p.Route()
	amountIn := route.Source.ToBaseUnits(intent.PaymentAmount)

	p.setStage(models.StageApproving)
	if err := o.approve(ctx, p, 0, route.Source, o.opts.Aggregator.Spender(), amountIn); err != nil {
		return nil, err
	}

	p.setStage(models.StageAwaitingSwapSubmit)
	delta, err := o.swap(ctx, p, 1, amountIn)
	if err != nil {
		return nil, err
	}

	// the observed delta is the only amount trusted from here on
	spend := confirm.ApplyHaircut(delta).ToBig()
	spendHuman := route.CurveAsset.FromBaseUnits(spend)
	p.setStepAmount(2, spendHuman)
	p.setStepAmount(3, spendHuman)
	log.Info().
		Str("pipeline", p.ID()).
		Str("observed", route.CurveAsset.FromBaseUnits(delta.ToBig()).String()).
		Str("spend", spendHuman.String()).
		Msg("Swap output confirmed")

	p.setStage(models.StageApprovingCurveAsset)
	if err := o.approve(ctx, p, 2, route.CurveAsset, o.opts.Curve.Address(), spend); err != nil {
		return nil, err
	}

	p.setStage(models.StageBuying)
	return o.buyWithCurveAsset(ctx, p, 3, spend)
}

func (o *Orchestrator) runSell(ctx context.Context, p *Pipeline) (*models.TradeResult, error) {
	intent := p.Intent()
	route := p.Route()
	tokensIn := route.Source.ToBaseUnits(intent.PaymentAmount)

	p.setStage(models.StageApproving)
	if err := o.approve(ctx, p, 0, route.Source, o.opts.Curve.Address(), tokensIn); err != nil {
		return nil, err
	}

	p.setStage(models.StageSelling)
	ctx, span := o.tracer.Start(ctx, "pipeline.sell")
	defer span.End()

	q, err := o.opts.Quotes.SellQuote(ctx, intent.TargetCurveToken, intent.PaymentAmount)
	if err != nil {
		return nil, err
	}
	expected := route.CurveAsset.ToBaseUnits(q.OutputAmount)
	minOut := brokers.CalculateMinOutput(expected, o.opts.SlippageBps)

	tx, err := o.opts.Curve.SellCall(intent.Payer, intent.TargetCurveToken, tokensIn, minOut)
	if err != nil {
		return nil, err
	}
	receipt, err := o.submitAndAwait(ctx, p, 1, tx)
	if err != nil {
		return nil, err
	}

	result := &models.TradeResult{
		CurveAssetAmount: q.OutputAmount,
		TokenAmount:      intent.PaymentAmount,
		TokenAmountKnown: true,
		TxHash:           p.stepAt(1).TxHandle,
	}
	if _, out, ok := o.opts.Curve.DecodeSale(receipt, intent.Payer); ok {
		result.CurveAssetAmount = route.CurveAsset.FromBaseUnits(out)
	} else {
		result.Note = "Proceeds could not be read from the receipt; verify your balance."
	}
	return result, nil
}

// approve grants spender an allowance of amount and waits for it to be accepted
func (o *Orchestrator) approve(ctx context.Context, p *Pipeline, i int, asset models.Asset, spender common.Address, amount *big.Int) error {
	ctx, span := o.tracer.Start(ctx, "pipeline.approve", trace.WithAttributes(
		attribute.String("asset", asset.Symbol),
		attribute.String("spender", spender.Hex()),
	))
	defer span.End()

	tx, err := chain.ApproveCall(p.Intent().Payer, asset, spender, amount)
	if err != nil {
		return err
	}
	_, err = o.submitAndAwait(ctx, p, i, tx)
	return err
}

// swap submits the swap exactly once and returns the observed output
func (o *Orchestrator) swap(ctx context.Context, p *Pipeline, i int, amountIn *big.Int) (*uint256.Int, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.swap")
	defer span.End()

	intent := p.Intent()
	route := p.Route()

	estimate, err := o.opts.Aggregator.EstimateOut(ctx, route.Source, route.CurveAsset, amountIn)
	if err != nil {
		return nil, fmt.Errorf("swap estimate failed: %w", err)
	}
	tx, err := o.opts.Aggregator.BuildSwap(ctx, brokers.SwapParams{
		TokenIn:      route.Source,
		TokenOut:     route.CurveAsset,
		AmountIn:     amountIn,
		MinAmountOut: brokers.CalculateMinOutput(estimate, o.opts.SlippageBps),
		Recipient:    intent.Payer,
		Deadline:     time.Now().Add(o.opts.SwapDeadline),
	})
	if err != nil {
		return nil, err
	}

	baseline, err := o.opts.Detector.Snapshot(ctx, route.CurveAsset, intent.Payer)
	if err != nil {
		return nil, err
	}
	if !p.claimSwapSubmission() {
		return nil, errors.New("swap already submitted for this pipeline")
	}
	if _, err := o.submit(ctx, p, i, tx); err != nil {
		return nil, err
	}

	p.setStage(models.StageAwaitingSwapConfirm)
	obs, err := o.opts.Detector.Await(ctx, baseline)
	if err != nil {
		if errors.Is(err, models.ErrSwapYieldedNoOutput) {
			o.opts.Metrics.DetectorTimeout()
		}
		return nil, err
	}
	p.markStep(i, models.StepConfirmed, "")
	span.SetAttributes(attribute.Int("detector.attempts", obs.Attempts))
	return obs.Delta, nil
}

// buyWithCurveAsset spends amount of the curve asset, bounded by the quote for that amount
func (o *Orchestrator) buyWithCurveAsset(ctx context.Context, p *Pipeline, i int, amount *big.Int) (*models.TradeResult, error) {
	intent := p.Intent()
	curveAsset := p.Route().CurveAsset
	human := curveAsset.FromBaseUnits(amount)

	q, err := o.opts.Quotes.BuyQuote(ctx, intent.TargetCurveToken, human)
	if err != nil {
		return nil, err
	}
	token := models.CurveTokenAsset(intent.TargetCurveToken)
	minOut := brokers.CalculateMinOutput(token.ToBaseUnits(q.OutputAmount), o.opts.SlippageBps)

	tx, err := o.opts.Curve.BuyCall(intent.Payer, intent.TargetCurveToken, amount, minOut)
	if err != nil {
		return nil, err
	}
	return o.buy(ctx, p, i, tx, human)
}

func (o *Orchestrator) buy(ctx context.Context, p *Pipeline, i int, tx chain.TxRequest, spent decimal.Decimal) (*models.TradeResult, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.buy")
	defer span.End()

	intent := p.Intent()
	receipt, err := o.submitAndAwait(ctx, p, i, tx)
	if err != nil {
		return nil, err
	}

	result := &models.TradeResult{
		CurveAssetAmount: spent,
		TxHash:           p.stepAt(i).TxHandle,
	}
	if _, out, ok := o.opts.Curve.DecodePurchase(receipt, intent.Payer); ok {
		result.TokenAmount = models.CurveTokenAsset(intent.TargetCurveToken).FromBaseUnits(out)
		result.TokenAmountKnown = true
	} else {
		result.Note = unknownTokensNote
	}

	o.record(ctx, intent, result.TxHash)
	return result, nil
}

func (o *Orchestrator) record(ctx context.Context, intent models.PaymentIntent, txHash string) {
	if o.opts.Recorder == nil {
		return
	}
	rec := models.PurchaseRecord{
		TokenID:   intent.TargetCurveToken,
		Buyer:     intent.Payer,
		Timestamp: time.Now().UTC(),
		TxHash:    txHash,
	}
	if state, err := o.opts.Curve.State(ctx, intent.TargetCurveToken); err == nil {
		rec.Issuer = state.Issuer
	} else {
		log.Warn().Err(err).Str("token", intent.TargetCurveToken.Hex()).Msg("Issuer lookup failed, recording without issuer")
	}
	o.opts.Recorder.Record(ctx, rec)
}

// submit checks the precondition and hands tx to the signer
func (o *Orchestrator) submit(ctx context.Context, p *Pipeline, i int, tx chain.TxRequest) (common.Hash, error) {
	if err := p.checkPrecondition(ctx); err != nil {
		return common.Hash{}, err
	}
	hash, err := o.opts.Signer.SendTransaction(ctx, tx)
	if err != nil {
		return common.Hash{}, err
	}
	step := p.stepAt(i)
	o.opts.Metrics.StepSubmitted(string(step.Kind))
	p.markStep(i, models.StepSubmitted, hash.Hex())
	log.Debug().Str("pipeline", p.ID()).Str("step", string(step.Kind)).Str("tx", hash.Hex()).Msg("Transaction submitted")
	return hash, nil
}

func (o *Orchestrator) submitAndAwait(ctx context.Context, p *Pipeline, i int, tx chain.TxRequest) (*types.Receipt, error) {
	hash, err := o.submit(ctx, p, i, tx)
	if err != nil {
		return nil, err
	}
	receipt, err := o.awaitAcceptance(ctx, hash)
	if err != nil {
		return nil, err
	}
	p.markStep(i, models.StepConfirmed, "")
	return receipt, nil
}

// awaitAcceptance waits for the receipt when a waiter is available,
// otherwise falls back to a fixed delay and returns a nil receipt
func (o *Orchestrator) awaitAcceptance(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if o.opts.Receipts == nil {
		o.opts.Metrics.ApprovalFallback()
		log.Warn().Str("tx", hash.Hex()).Dur("delay", o.opts.ApprovalFallbackDelay).
			Msg("No receipt waiter, assuming acceptance after fixed delay")
		timer := time.NewTimer(o.opts.ApprovalFallbackDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		}
	}

	receipt, err := o.opts.Receipts.WaitReceipt(ctx, hash)
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: %s", models.ErrTransactionReverted, hash.Hex())
	}
	return receipt, nil
}
