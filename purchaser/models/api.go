package models

// TradeRequest - POST body for /v1/routes, /v1/purchases and /v1/sales
type TradeRequest struct {
	Payer  string `json:"payer,omitempty"` // defaults to the connected wallet
	Token  string `json:"token"`           // curve token address
	Asset  string `json:"asset,omitempty"` // payment asset symbol, buys only
	Amount string `json:"amount"`          // human units, e.g., "10.5"
	Side   Side   `json:"side,omitempty"`  // routes only, defaults to buy
}

// RouteResponse describes the steps a trade would take, without executing it
type RouteResponse struct {
	Route               string             `json:"route"` // "direct_native" | "direct_curve" | "swap" | "sell"
	Steps               []SwapStep         `json:"steps"`
	EstimatedCurveAsset string             `json:"estimated_curve_asset,omitempty"` // informational only
	Quote               *BondingCurveQuote `json:"quote,omitempty"`
}

// TradeAccepted is returned when a pipeline has been started
type TradeAccepted struct {
	PipelineID string `json:"pipeline_id"`
	IntentID   string `json:"intent_id"`
	Route      string `json:"route"`
}

// ErrorResponse is the JSON error body for every endpoint
type ErrorResponse struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	RetrySafe bool      `json:"retry_safe"`
}

// PipelineResponse - GET /v1/purchases/{id}
type PipelineResponse struct {
	Pipeline PipelineView   `json:"pipeline"`
	Result   *TradeResult   `json:"result,omitempty"`
	Error    *ErrorResponse `json:"error,omitempty"`
}

// DeploymentResponse - POST /v1/deployments.
// Deployment may be set together with Error when the address could not be saved.
type DeploymentResponse struct {
	Deployment *TokenDeployment `json:"deployment,omitempty"`
	Error      *ErrorResponse   `json:"error,omitempty"`
}

// NewErrorResponse classifies err into its API shape
func NewErrorResponse(err error) *ErrorResponse {
	if err == nil {
		return nil
	}
	c := Classify(err)
	return &ErrorResponse{Code: c.Code, Message: c.Message, RetrySafe: c.RetrySafe}
}

// HolderCountResponse - GET /v1/tokens/{token}/holders
type HolderCountResponse struct {
	Token   string `json:"token"`
	Holders uint64 `json:"holders"`
}
