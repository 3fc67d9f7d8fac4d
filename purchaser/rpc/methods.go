package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/models"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/observability"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/router"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

const maxBodyBytes = 1 << 20

// Trader admits pipelines and runs them in the background
type Trader interface {
	Start(ctx context.Context, intent models.PaymentIntent) (*router.Pipeline, error)
	Pipeline(id string) (*router.Pipeline, error)
	InFlight() int
}

// HolderCounter counts distinct buyers of a curve token
type HolderCounter interface {
	HolderCount(ctx context.Context, token string) (uint64, error)
}

// RoutePlanner resolves routes without executing them
type RoutePlanner interface {
	Resolve(ctx context.Context, intent models.PaymentIntent) (*router.Route, error)
	Catalog() *router.Catalog
}

// Deployer runs curve deployments synchronously
type Deployer interface {
	Deploy(ctx context.Context, req models.DeploymentRequest) (*models.TokenDeployment, error)
}

// APIOptions configures an API
type APIOptions struct {
	Trader   Trader
	Routes   RoutePlanner
	Quotes   router.QuoteSource
	Deployer Deployer
	Wallet   common.Address              // connected wallet, the default payer
	Ready    func(context.Context) error // optional readiness check
	Holders  HolderCounter               // optional; enables /tokens/{token}/holders
	Metrics  *observability.Metrics
}

// API serves the /v1 endpoints
type API struct {
	opts APIOptions
}

func NewAPI(opts APIOptions) (*API, error) {
	switch {
	case opts.Trader == nil:
		return nil, errors.New("rpc: trader is required")
	case opts.Routes == nil:
		return nil, errors.New("rpc: route planner is required")
	case opts.Quotes == nil:
		return nil, errors.New("rpc: quote source is required")
	case opts.Deployer == nil:
		return nil, errors.New("rpc: deployer is required")
	}
	return &API{opts: opts}, nil
}

// Routes returns the /v1 router
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(noCacheMiddleware)
		r.Get("/quote/buy", a.quote(models.SideBuy))
		r.Get("/quote/sell", a.quote(models.SideSell))
		r.Post("/routes", a.route)
		r.Get("/purchases/{id}", a.pipeline)
		if a.opts.Holders != nil {
			r.Get("/tokens/{token}/holders", a.holders)
		}
	})

	r.Get("/assets", a.assets)
	r.Post("/purchases", a.trade(models.SideBuy))
	r.Post("/sales", a.trade(models.SideSell))
	r.Post("/deployments", a.deploy)
	return r
}

// quote prices a trade against the curve's current state.
// Zero amounts are allowed and return the spot price.
func (a *API) quote(side models.Side) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := parseAddress("token", r.URL.Query().Get("token"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		amount, err := parseAmount(r.URL.Query().Get("amount"))
		if err != nil {
			writeError(w, r, err)
			return
		}

		var q *models.BondingCurveQuote
		if side == models.SideSell {
			q, err = a.opts.Quotes.SellQuote(r.Context(), token, amount)
		} else {
			q, err = a.opts.Quotes.BuyQuote(r.Context(), token, amount)
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		a.opts.Metrics.QuoteServed(string(side))
		writeJSON(w, http.StatusOK, q)
	}
}

func (a *API) assets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.opts.Routes.Catalog().All())
}

// route shows the steps a trade would take, without executing it
func (a *API) route(w http.ResponseWriter, r *http.Request) {
	var req models.TradeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	side := req.Side
	if side == "" {
		side = models.SideBuy
	}
	intent, err := a.intent(side, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	route, err := a.opts.Routes.Resolve(r.Context(), intent)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, route.Response())
}

// trade creates an intent and starts its pipeline in the background.
// The pipeline outlives the request; poll GET /v1/purchases/{id} for the outcome.
func (a *API) trade(side models.Side) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.TradeRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		intent, err := a.intent(side, req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		p, err := a.opts.Trader.Start(r.Context(), intent)
		if err != nil {
			writeError(w, r, err)
			return
		}

		Logger.Info().
			Str("pipeline", p.ID()).
			Str("intent", intent.ID).
			Str("side", string(side)).
			Str("route", string(p.Route().Kind)).
			Msg("Pipeline started")

		writeJSON(w, http.StatusAccepted, models.TradeAccepted{
			PipelineID: p.ID(),
			IntentID:   intent.ID,
			Route:      string(p.Route().Kind),
		})
	}
}

func (a *API) pipeline(w http.ResponseWriter, r *http.Request) {
	p, err := a.opts.Trader.Pipeline(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := models.PipelineResponse{Pipeline: p.View()}
	if p.Terminal() {
		result, err := p.Result()
		resp.Result = result
		resp.Error = models.NewErrorResponse(err)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) deploy(w http.ResponseWriter, r *http.Request) {
	var req models.DeploymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	dep, err := a.opts.Deployer.Deploy(r.Context(), req)
	if err != nil {
		logError(r, err)
		resp := models.DeploymentResponse{Deployment: dep, Error: models.NewErrorResponse(err)}
		writeJSON(w, statusFor(resp.Error.Code), resp)
		return
	}
	writeJSON(w, http.StatusCreated, models.DeploymentResponse{Deployment: dep})
}

func (a *API) holders(w http.ResponseWriter, r *http.Request) {
	token, err := parseAddress("token", chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	count, err := a.opts.Holders.HolderCount(r.Context(), token.Hex())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.HolderCountResponse{Token: token.Hex(), Holders: count})
}

func (a *API) ready(w http.ResponseWriter, r *http.Request) {
	if a.opts.Ready != nil {
		if err := a.opts.Ready(r.Context()); err != nil {
			Logger.Warn().Err(err).Msg("Readiness check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"reason": err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ready",
		"in_flight": a.opts.Trader.InFlight(),
	})
}

// intent validates a trade request. The payer defaults to the connected wallet
// and must match it, since only that wallet can sign.
func (a *API) intent(side models.Side, req models.TradeRequest) (models.PaymentIntent, error) {
	payer := a.opts.Wallet
	if req.Payer != "" {
		addr, err := parseAddress("payer", req.Payer)
		if err != nil {
			return models.PaymentIntent{}, err
		}
		if addr != a.opts.Wallet {
			return models.PaymentIntent{}, fmt.Errorf("%w: payer %s is not the connected wallet", models.ErrWalletNotConnected, addr.Hex())
		}
		payer = addr
	}

	token, err := parseAddress("token", req.Token)
	if err != nil {
		return models.PaymentIntent{}, err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return models.PaymentIntent{}, err
	}
	if !amount.IsPositive() {
		return models.PaymentIntent{}, fmt.Errorf("%w: amount must be positive", models.ErrInvalidAmount)
	}

	switch side {
	case models.SideSell:
		return models.NewSaleIntent(payer, token, amount), nil
	case models.SideBuy:
		if req.Asset == "" {
			return models.PaymentIntent{}, fmt.Errorf("%w: asset is required", models.ErrMalformedRequest)
		}
		asset, err := a.opts.Routes.Catalog().Lookup(req.Asset)
		if err != nil {
			return models.PaymentIntent{}, err
		}
		return models.NewPaymentIntent(payer, asset, amount, token), nil
	default:
		return models.PaymentIntent{}, fmt.Errorf("%w: unknown side %q", models.ErrMalformedRequest, side)
	}
}

func parseAddress(field, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%w: %s must be a hex address", models.ErrMalformedRequest, field)
	}
	return common.HexToAddress(value), nil
}

func parseAmount(value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, fmt.Errorf("%w: amount is required", models.ErrMalformedRequest)
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: amount %q is not a number", models.ErrMalformedRequest, value)
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: amount must not be negative", models.ErrInvalidAmount)
	}
	return amount, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", models.ErrMalformedRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		Logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	logError(r, err)
	resp := models.NewErrorResponse(err)
	writeJSON(w, statusFor(resp.Code), resp)
}

func logError(r *http.Request, err error) {
	event := Logger.Debug()
	if models.Classify(err).Code == models.CodeInternal {
		event = Logger.Error()
	}
	event.Err(err).Str("path", r.URL.Path).Msg("Request failed")
}

// statusFor maps an error code to its HTTP status
func statusFor(code models.ErrorCode) int {
	switch code {
	case models.CodeInvalidRequest:
		return http.StatusBadRequest
	case models.CodeNotFound, models.CodeCurveUnavailable:
		return http.StatusNotFound
	case models.CodePipelineInFlight, models.CodeUserRejected:
		return http.StatusConflict
	case models.CodeWalletNotConnected:
		return http.StatusPreconditionFailed
	case models.CodeTransactionReverted:
		return http.StatusUnprocessableEntity
	case models.CodeAmbiguousDeployment:
		return http.StatusBadGateway
	case models.CodeSwapNoOutput:
		return http.StatusGatewayTimeout
	case models.CodeQuoteUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
