package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Side is the direction of a curve trade
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// PaymentIntent is a user-confirmed request to trade against a curve.
// It is immutable once created.
type PaymentIntent struct {
	ID               string          `json:"id"`
	Side             Side            `json:"side"`
	Payer            common.Address  `json:"payer"`
	PaymentAsset     Asset           `json:"payment_asset"`  // curve token for sells
	PaymentAmount    decimal.Decimal `json:"payment_amount"` // human units of PaymentAsset
	TargetCurveToken common.Address  `json:"target_curve_token"`
	CreatedAt        time.Time       `json:"created_at"`
}

// NewPaymentIntent creates a buy intent
func NewPaymentIntent(payer common.Address, asset Asset, amount decimal.Decimal, token common.Address) PaymentIntent {
	return PaymentIntent{
		ID:               uuid.NewString(),
		Side:             SideBuy,
		Payer:            payer,
		PaymentAsset:     asset,
		PaymentAmount:    amount,
		TargetCurveToken: token,
		CreatedAt:        time.Now().UTC(),
	}
}

// NewSaleIntent creates a sell intent for tokensIn curve tokens
func NewSaleIntent(seller common.Address, token common.Address, tokensIn decimal.Decimal) PaymentIntent {
	return PaymentIntent{
		ID:               uuid.NewString(),
		Side:             SideSell,
		Payer:            seller,
		PaymentAsset:     CurveTokenAsset(token),
		PaymentAmount:    tokensIn,
		TargetCurveToken: token,
		CreatedAt:        time.Now().UTC(),
	}
}

// Key identifies the (payer, token) pair an intent competes for
func (p PaymentIntent) Key() IntentKey {
	return IntentKey{Payer: p.Payer, Token: p.TargetCurveToken}
}

// IntentKey is the unit of mutual exclusion for pipelines
type IntentKey struct {
	Payer common.Address
	Token common.Address
}

// StepKind is the on-chain action a step performs
type StepKind string

const (
	StepApprove StepKind = "approve"
	StepSwap    StepKind = "swap"
	StepBuy     StepKind = "buy"
	StepSell    StepKind = "sell"
)

// StepStatus tracks one step's transaction
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepSubmitted StepStatus = "submitted"
	StepConfirmed StepStatus = "confirmed"
	StepFailed    StepStatus = "failed"
)

// SwapStep is one ordered on-chain action of a pipeline
type SwapStep struct {
	Kind        StepKind        `json:"kind"`
	InputAsset  Asset           `json:"input_asset"`
	InputAmount decimal.Decimal `json:"input_amount"`      // informational until the step runs
	Spender     *common.Address `json:"spender,omitempty"` // approvals only
	Status      StepStatus      `json:"status"`
	TxHandle    string          `json:"tx_handle,omitempty"`
}

// PipelineStatus is the coarse lifecycle of a pipeline
type PipelineStatus string

const (
	PipelineIdle      PipelineStatus = "idle"
	PipelineRunning   PipelineStatus = "running"
	PipelineSucceeded PipelineStatus = "succeeded"
	PipelineFailed    PipelineStatus = "failed"
)

// Stage is the orchestrator state machine position
type Stage string

const (
	StageIdle                Stage = "idle"
	StageApproving           Stage = "approving"
	StageAwaitingSwapSubmit  Stage = "awaiting_swap_submit"
	StageAwaitingSwapConfirm Stage = "awaiting_swap_confirm"
	StageApprovingCurveAsset Stage = "approving_curve_asset"
	StageBuying              Stage = "buying"
	StageSelling             Stage = "selling"
	StageSucceeded           Stage = "succeeded"
	StageFailed              Stage = "failed"
)

// PipelineView is a point-in-time copy of a pipeline, safe to hand to readers
type PipelineView struct {
	ID            string         `json:"id"`
	Intent        PaymentIntent  `json:"intent"`
	Route         string         `json:"route"`
	Steps         []SwapStep     `json:"steps"`
	Status        PipelineStatus `json:"status"`
	Stage         Stage          `json:"stage"`
	FailureReason string         `json:"failure_reason,omitempty"`
	FailureCode   ErrorCode      `json:"failure_code,omitempty"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// CurveState is the on-chain pricing state of one bonding curve.
// Prices are in curve asset per whole token, supply in whole tokens.
type CurveState struct {
	Token      common.Address  `json:"token"`
	Issuer     common.Address  `json:"issuer"`
	Deployed   bool            `json:"deployed"`
	SupplySold decimal.Decimal `json:"supply_sold"`
	BasePrice  decimal.Decimal `json:"base_price"`
	Slope      decimal.Decimal `json:"slope"`
	FeeBps     uint32          `json:"fee_bps"`
}

// SpotPrice is the marginal price at the current supply
func (c CurveState) SpotPrice() decimal.Decimal {
	return c.BasePrice.Add(c.Slope.Mul(c.SupplySold))
}

// BondingCurveQuote is derived on demand and never persisted
type BondingCurveQuote struct {
	Token              common.Address  `json:"token"`
	Side               Side            `json:"side"`
	InputAmount        decimal.Decimal `json:"input_amount"`
	OutputAmount       decimal.Decimal `json:"output_amount"`
	FeeAmount          decimal.Decimal `json:"fee_amount"`
	SpotPrice          decimal.Decimal `json:"spot_price"`
	AveragePrice       decimal.Decimal `json:"average_price"`
	PriceImpactPercent decimal.Decimal `json:"price_impact_percent"`
	ImpactDefined      bool            `json:"impact_defined"` // false when pre-trade market cap is zero
}

// BalanceSnapshot is one balance observation used for balance-diff detection
type BalanceSnapshot struct {
	Asset      Asset          `json:"asset"`
	Owner      common.Address `json:"owner"`
	Amount     *uint256.Int   `json:"amount"` // base units
	ObservedAt time.Time      `json:"observed_at"`
}

// TradeResult is reported to the user once a pipeline succeeds
type TradeResult struct {
	Pipeline         PipelineView    `json:"pipeline"`
	CurveAssetAmount decimal.Decimal `json:"curve_asset_amount"` // spent on buys, received on sells
	TokenAmount      decimal.Decimal `json:"token_amount"`       // received on buys, spent on sells
	TokenAmountKnown bool            `json:"token_amount_known"`
	TxHash           string          `json:"tx_hash"`
	Note             string          `json:"note,omitempty"`
}

// PurchaseRecord is the audit row written after a successful buy
type PurchaseRecord struct {
	TokenID   common.Address `json:"token_id"`
	Buyer     common.Address `json:"buyer"`
	Issuer    common.Address `json:"issuer"`
	Timestamp time.Time      `json:"timestamp"`
	TxHash    string         `json:"tx_hash"`
}

// DeploymentRequest asks the factory to mint a curve for a content item
type DeploymentRequest struct {
	ContentID string `json:"content_id"`
	Name      string `json:"name"`
	Symbol    string `json:"symbol"`
}

// TokenDeployment is the persisted result of a curve deployment
type TokenDeployment struct {
	ContentID  string         `json:"content_id"`
	Token      common.Address `json:"token"`
	Issuer     common.Address `json:"issuer"`
	TxHash     string         `json:"tx_hash"`
	DeployedAt time.Time      `json:"deployed_at"`
}
