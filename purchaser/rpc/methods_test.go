package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/models"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/quote"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/router"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/zeebo/assert"
)

var (
	wallet    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	stranger  = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	liveToken = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	deadToken = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	curveAddr = common.HexToAddress("0x00000000000000000000000000000000000000c1")
)

// fakeQuotes prices a flat 0.001 curve for liveToken and nothing else
type fakeQuotes struct{}

func (fakeQuotes) state(token common.Address) models.CurveState {
	return models.CurveState{
		Token:      token,
		Deployed:   token == liveToken,
		SupplySold: decimal.NewFromInt(1000),
		BasePrice:  decimal.RequireFromString("0.001"),
	}
}

func (f fakeQuotes) BuyQuote(_ context.Context, token common.Address, in decimal.Decimal) (*models.BondingCurveQuote, error) {
	q, err := quote.QuoteBuy(f.state(token), in)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (f fakeQuotes) SellQuote(_ context.Context, token common.Address, in decimal.Decimal) (*models.BondingCurveQuote, error) {
	q, err := quote.QuoteSell(f.state(token), in)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// fakeTrader admits pipelines through a real intake but never runs them
type fakeTrader struct {
	resolver *router.Resolver
	intake   *router.Intake
}

func (t *fakeTrader) Start(ctx context.Context, intent models.PaymentIntent) (*router.Pipeline, error) {
	route, err := t.resolver.Resolve(ctx, intent)
	if err != nil {
		return nil, err
	}
	p := router.NewPipeline(intent, route, nil)
	if err := t.intake.Acquire(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (t *fakeTrader) Pipeline(id string) (*router.Pipeline, error) {
	return t.intake.Get(id)
}

func (t *fakeTrader) InFlight() int {
	return t.intake.InFlight()
}

// fakeHolders counts holders of liveToken only
type fakeHolders struct {
	asked string
}

func (h *fakeHolders) HolderCount(_ context.Context, token string) (uint64, error) {
	h.asked = token
	if token != liveToken.Hex() {
		return 0, nil
	}
	return 42, nil
}

type fakeDeployer struct {
	dep *models.TokenDeployment
	err error
}

func (d *fakeDeployer) Deploy(context.Context, models.DeploymentRequest) (*models.TokenDeployment, error) {
	return d.dep, d.err
}

type testEnv struct {
	handler  http.Handler
	deployer *fakeDeployer
	holders  *fakeHolders
	ready    error
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	catalog, err := router.NewCatalog([]models.Asset{
		{Symbol: "ETH", Kind: models.AssetNative, Decimals: 18},
		{Symbol: "XRGE", Kind: models.AssetCurve, Address: common.HexToAddress("0xd1"), Decimals: 18},
		{Symbol: "USDC", Kind: models.AssetStable, Address: common.HexToAddress("0xd2"), Decimals: 6},
	})
	assert.NoError(t, err)

	resolver := router.NewResolver(catalog, curveAddr, nil, fakeQuotes{})
	env := &testEnv{deployer: &fakeDeployer{}, holders: &fakeHolders{}}

	api, err := NewAPI(APIOptions{
		Trader:   &fakeTrader{resolver: resolver, intake: router.NewIntake(16)},
		Routes:   resolver,
		Quotes:   fakeQuotes{},
		Deployer: env.deployer,
		Wallet:   wallet,
		Ready:    func(context.Context) error { return env.ready },
		Holders:  env.holders,
	})
	assert.NoError(t, err)

	server, err := NewServer(context.Background(), &ServerConfig{Address: "127.0.0.1:0"}, api)
	assert.NoError(t, err)
	env.handler = server.Handler()
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if body != nil {
		assert.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestBuyQuote(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/quote/buy?token="+liveToken.Hex()+"&amount=10", nil)
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Equal(t, rec.Header().Get("Cache-Control"), "no-store, no-cache, must-revalidate")

	q := decode[models.BondingCurveQuote](t, rec)
	assert.True(t, q.OutputAmount.Equal(decimal.NewFromInt(10000)))
	assert.Equal(t, q.Side, models.SideBuy)
}

func TestSellQuote(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/quote/sell?token="+liveToken.Hex()+"&amount=100", nil)
	assert.Equal(t, rec.Code, http.StatusOK)

	q := decode[models.BondingCurveQuote](t, rec)
	assert.True(t, q.OutputAmount.Equal(decimal.RequireFromString("0.1")))
}

func TestQuoteErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		path   string
		status int
		code   models.ErrorCode
	}{
		{"undeployed", "/v1/quote/buy?token=" + deadToken.Hex() + "&amount=1", http.StatusNotFound, models.CodeCurveUnavailable},
		{"bad token", "/v1/quote/buy?token=nope&amount=1", http.StatusBadRequest, models.CodeInvalidRequest},
		{"missing amount", "/v1/quote/buy?token=" + liveToken.Hex(), http.StatusBadRequest, models.CodeInvalidRequest},
		{"negative amount", "/v1/quote/buy?token=" + liveToken.Hex() + "&amount=-1", http.StatusBadRequest, models.CodeInvalidRequest},
		{"sell above supply", "/v1/quote/sell?token=" + liveToken.Hex() + "&amount=5000", http.StatusBadRequest, models.CodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, tt.path, nil)
			assert.Equal(t, rec.Code, tt.status)
			assert.Equal(t, decode[models.ErrorResponse](t, rec).Code, tt.code)
		})
	}
}

func TestAssets(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/assets", nil)
	assert.Equal(t, rec.Code, http.StatusOK)

	assets := decode[[]models.Asset](t, rec)
	assert.Equal(t, len(assets), 3)
	assert.Equal(t, assets[1].Kind, models.AssetCurve)
}

func TestRoutes(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/routes", models.TradeRequest{
		Token: liveToken.Hex(), Asset: "xrge", Amount: "10",
	})
	assert.Equal(t, rec.Code, http.StatusOK)
	route := decode[models.RouteResponse](t, rec)
	assert.Equal(t, route.Route, "direct_curve")
	assert.Equal(t, len(route.Steps), 2)
	assert.Equal(t, route.Steps[0].Kind, models.StepApprove)
	assert.NotNil(t, route.Quote)

	rec = env.do(t, http.MethodPost, "/v1/routes", models.TradeRequest{
		Token: liveToken.Hex(), Amount: "5", Side: models.SideSell,
	})
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Equal(t, decode[models.RouteResponse](t, rec).Route, "sell")

	// no swap venue is configured
	rec = env.do(t, http.MethodPost, "/v1/routes", models.TradeRequest{
		Token: liveToken.Hex(), Asset: "USDC", Amount: "5",
	})
	assert.Equal(t, rec.Code, http.StatusBadRequest)
}

func TestPurchaseLifecycle(t *testing.T) {
	env := newTestEnv(t)
	req := models.TradeRequest{Token: liveToken.Hex(), Asset: "ETH", Amount: "0.5"}

	rec := env.do(t, http.MethodPost, "/v1/purchases", req)
	assert.Equal(t, rec.Code, http.StatusAccepted)
	accepted := decode[models.TradeAccepted](t, rec)
	assert.Equal(t, accepted.Route, "direct_native")
	assert.NotEqual(t, accepted.PipelineID, "")

	// same payer and token while the first is in flight
	rec = env.do(t, http.MethodPost, "/v1/purchases", req)
	assert.Equal(t, rec.Code, http.StatusConflict)
	assert.Equal(t, decode[models.ErrorResponse](t, rec).Code, models.CodePipelineInFlight)

	rec = env.do(t, http.MethodGet, "/v1/purchases/"+accepted.PipelineID, nil)
	assert.Equal(t, rec.Code, http.StatusOK)
	view := decode[models.PipelineResponse](t, rec)
	assert.Equal(t, view.Pipeline.ID, accepted.PipelineID)
	assert.Equal(t, view.Pipeline.Status, models.PipelineIdle)
	assert.Equal(t, view.Pipeline.Intent.Payer, wallet)
	assert.Nil(t, view.Result)
	assert.Nil(t, view.Error)

	rec = env.do(t, http.MethodGet, "/v1/purchases/unknown", nil)
	assert.Equal(t, rec.Code, http.StatusNotFound)
}

func TestTradeValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		code   models.ErrorCode
	}{
		{"foreign payer", "/v1/purchases",
			models.TradeRequest{Payer: stranger.Hex(), Token: liveToken.Hex(), Asset: "ETH", Amount: "1"},
			http.StatusPreconditionFailed, models.CodeWalletNotConnected},
		{"missing asset", "/v1/purchases",
			models.TradeRequest{Token: liveToken.Hex(), Amount: "1"},
			http.StatusBadRequest, models.CodeInvalidRequest},
		{"unknown asset", "/v1/purchases",
			models.TradeRequest{Token: liveToken.Hex(), Asset: "DOGE", Amount: "1"},
			http.StatusBadRequest, models.CodeInvalidRequest},
		{"zero amount", "/v1/sales",
			models.TradeRequest{Token: liveToken.Hex(), Amount: "0"},
			http.StatusBadRequest, models.CodeInvalidRequest},
		{"undeployed curve", "/v1/purchases",
			models.TradeRequest{Token: deadToken.Hex(), Asset: "ETH", Amount: "1"},
			http.StatusNotFound, models.CodeCurveUnavailable},
		{"malformed json", "/v1/purchases", `{"token":`,
			http.StatusBadRequest, models.CodeInvalidRequest},
		{"unknown field", "/v1/sales", `{"token":"x","amount":"1","tip":"2"}`,
			http.StatusBadRequest, models.CodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, rec.Code, tt.status)
			assert.Equal(t, decode[models.ErrorResponse](t, rec).Code, tt.code)
		})
	}
}

func TestSaleStarts(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/sales", models.TradeRequest{
		Payer: wallet.Hex(), Token: liveToken.Hex(), Amount: "2",
	})
	assert.Equal(t, rec.Code, http.StatusAccepted)
	assert.Equal(t, decode[models.TradeAccepted](t, rec).Route, "sell")
}

func TestDeployments(t *testing.T) {
	env := newTestEnv(t)
	req := models.DeploymentRequest{ContentID: "song-1", Name: "Song", Symbol: "SONG"}
	dep := &models.TokenDeployment{
		ContentID:  "song-1",
		Token:      liveToken,
		Issuer:     wallet,
		TxHash:     "0xabc",
		DeployedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	env.deployer.dep, env.deployer.err = dep, nil
	rec := env.do(t, http.MethodPost, "/v1/deployments", req)
	assert.Equal(t, rec.Code, http.StatusCreated)
	resp := decode[models.DeploymentResponse](t, rec)
	assert.NotNil(t, resp.Deployment)
	assert.Equal(t, resp.Deployment.Token, liveToken)
	assert.Nil(t, resp.Error)

	env.deployer.dep, env.deployer.err = nil, models.ErrAmbiguousDeployment
	rec = env.do(t, http.MethodPost, "/v1/deployments", req)
	assert.Equal(t, rec.Code, http.StatusBadGateway)
	resp = decode[models.DeploymentResponse](t, rec)
	assert.Nil(t, resp.Deployment)
	assert.Equal(t, resp.Error.Code, models.CodeAmbiguousDeployment)
	assert.False(t, resp.Error.RetrySafe)

	// the address is known but could not be saved
	env.deployer.dep, env.deployer.err = dep, errors.New("store down")
	rec = env.do(t, http.MethodPost, "/v1/deployments", req)
	assert.Equal(t, rec.Code, http.StatusInternalServerError)
	resp = decode[models.DeploymentResponse](t, rec)
	assert.NotNil(t, resp.Deployment)
	assert.Equal(t, resp.Error.Code, models.CodeInternal)
}

func TestHolders(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/tokens/"+strings.ToLower(liveToken.Hex())+"/holders", nil)
	assert.Equal(t, rec.Code, http.StatusOK)
	got := decode[models.HolderCountResponse](t, rec)
	assert.Equal(t, got.Token, liveToken.Hex())
	assert.Equal(t, got.Holders, uint64(42))
	assert.Equal(t, env.holders.asked, liveToken.Hex())

	rec = env.do(t, http.MethodGet, "/v1/tokens/nope/holders", nil)
	assert.Equal(t, rec.Code, http.StatusBadRequest)
}

func TestServerHealthAndReadiness(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/server/health", nil)
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.True(t, strings.Contains(rec.Body.String(), "healthy"))

	rec = env.do(t, http.MethodGet, "/server/ready", nil)
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Equal(t, decode[map[string]any](t, rec)["in_flight"], float64(0))

	rec = env.do(t, http.MethodPost, "/v1/purchases", models.TradeRequest{Token: liveToken.Hex(), Asset: "ETH", Amount: "0.5"})
	assert.Equal(t, rec.Code, http.StatusAccepted)
	rec = env.do(t, http.MethodGet, "/server/ready", nil)
	assert.Equal(t, decode[map[string]any](t, rec)["in_flight"], float64(1))

	env.ready = models.ErrWalletNotConnected
	rec = env.do(t, http.MethodGet, "/server/ready", nil)
	assert.Equal(t, rec.Code, http.StatusServiceUnavailable)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, statusFor(models.Classify(models.ErrUserRejected).Code), http.StatusConflict)
	assert.Equal(t, statusFor(models.Classify(models.ErrTransactionReverted).Code), http.StatusUnprocessableEntity)
	assert.Equal(t, statusFor(models.Classify(models.ErrSwapYieldedNoOutput).Code), http.StatusGatewayTimeout)
	assert.Equal(t, statusFor(models.Classify(models.ErrQuoteUnavailable).Code), http.StatusServiceUnavailable)
	assert.Equal(t, statusFor(models.Classify(errors.New("boom")).Code), http.StatusInternalServerError)
}
