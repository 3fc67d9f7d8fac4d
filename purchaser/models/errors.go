package models

import (
	"errors"
)

// Outcome errors surfaced by pipelines and deployments
var (
	// ErrUserRejected means the signature request was declined. No funds moved.
	ErrUserRejected = errors.New("user rejected the signature request")

	// ErrTransactionReverted means gas was spent but no state changed.
	ErrTransactionReverted = errors.New("transaction reverted")

	// ErrSwapYieldedNoOutput means the polling budget ran out without a positive balance delta.
	// The swap may still land later.
	ErrSwapYieldedNoOutput = errors.New("swap yielded no output")

	// ErrAmbiguousDeployment means the deployment was mined but no creation event was found.
	ErrAmbiguousDeployment = errors.New("ambiguous deployment: creation event not found in receipt")

	// ErrQuoteUnavailable means no price could bound the trade, so nothing was signed.
	ErrQuoteUnavailable = errors.New("no price available to bound the trade")

	// ErrRecorderWriteFailed is logged only, never returned to callers of a trade.
	ErrRecorderWriteFailed = errors.New("purchase record write failed")
)

// Intake and validation errors
var (
	ErrPipelineInFlight   = errors.New("a pipeline for this payer and token is already in flight")
	ErrWalletNotConnected = errors.New("wallet not connected")
	ErrCurveUnavailable   = errors.New("bonding curve not deployed for token")
	ErrUnsupportedAsset   = errors.New("unsupported payment asset")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInsufficientSupply = errors.New("amount exceeds curve supply sold")
	ErrPipelineNotIdle    = errors.New("pipeline already started")
	ErrPipelineNotFound   = errors.New("pipeline not found")
	ErrInvalidDeployment  = errors.New("invalid deployment request")
	ErrMalformedRequest   = errors.New("malformed request")
)

// ErrorCode is the stable machine-readable error identifier
type ErrorCode string

const (
	CodeUserRejected        ErrorCode = "user_rejected"
	CodeTransactionReverted ErrorCode = "transaction_reverted"
	CodeSwapNoOutput        ErrorCode = "swap_yielded_no_output"
	CodeAmbiguousDeployment ErrorCode = "ambiguous_deployment"
	CodePipelineInFlight    ErrorCode = "pipeline_in_flight"
	CodeWalletNotConnected  ErrorCode = "wallet_not_connected"
	CodeCurveUnavailable    ErrorCode = "curve_unavailable"
	CodeQuoteUnavailable    ErrorCode = "quote_unavailable"
	CodeInvalidRequest      ErrorCode = "invalid_request"
	CodeNotFound            ErrorCode = "not_found"
	CodeInternal            ErrorCode = "internal"
)

// Classification tells the caller how to present an error and whether retrying is safe
type Classification struct {
	Code      ErrorCode
	RetrySafe bool
	Message   string
}

// Classify maps an error to the user-facing taxonomy.
// Ambiguous outcomes are never retry-safe: retrying them risks paying twice.
func Classify(err error) Classification {
	switch {
	case err == nil:
		return Classification{}
	case errors.Is(err, ErrUserRejected):
		return Classification{CodeUserRejected, true,
			"Signature declined. No funds moved; you can try again."}
	case errors.Is(err, ErrTransactionReverted):
		return Classification{CodeTransactionReverted, true,
			"Transaction reverted. Gas was spent but nothing changed; it is safe to try again."}
	case errors.Is(err, ErrSwapYieldedNoOutput):
		return Classification{CodeSwapNoOutput, false,
			"The swap has not produced any output yet and may still land. Do not retry; verify your balances first."}
	case errors.Is(err, ErrAmbiguousDeployment):
		return Classification{CodeAmbiguousDeployment, false,
			"The deployment was paid for but the token address is unknown. Do not retry; verify the deployment manually."}
	case errors.Is(err, ErrQuoteUnavailable):
		return Classification{CodeQuoteUnavailable, true,
			"The trade could not be priced, so nothing was signed. Try again shortly."}
	case errors.Is(err, ErrPipelineInFlight):
		return Classification{CodePipelineInFlight, false,
			"A purchase for this token is already in progress. Wait for it to finish."}
	case errors.Is(err, ErrWalletNotConnected):
		return Classification{CodeWalletNotConnected, true,
			"Connect your wallet and try again."}
	case errors.Is(err, ErrCurveUnavailable):
		return Classification{CodeCurveUnavailable, false,
			"This content has no bonding curve yet."}
	case errors.Is(err, ErrUnsupportedAsset), errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInsufficientSupply), errors.Is(err, ErrPipelineNotIdle),
		errors.Is(err, ErrInvalidDeployment), errors.Is(err, ErrMalformedRequest):
		return Classification{CodeInvalidRequest, false, err.Error()}
	case errors.Is(err, ErrPipelineNotFound):
		return Classification{CodeNotFound, false, err.Error()}
	default:
		return Classification{CodeInternal, false, "Unexpected error. Verify your balances before trying again."}
	}
}
