package router_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/chain"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/confirm"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/models"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/quote"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/router"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/router/brokers"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

var (
	payer      = common.HexToAddress("0x3333333333333333333333333333333333333333")
	issuer     = common.HexToAddress("0x2222222222222222222222222222222222222222")
	token      = common.HexToAddress("0x1111111111111111111111111111111111111111")
	curveAddr  = common.HexToAddress("0x0000000000000000000000000000000000c0ffee")
	routerAddr = common.HexToAddress("0x00000000000000000000000000000000000a66e6")

	eth  = models.Asset{Symbol: "ETH", Kind: models.AssetNative, Decimals: 18}
	xrge = models.Asset{Symbol: "XRGE", Kind: models.AssetCurve, Address: common.HexToAddress("0x00000000000000000000000000000000000000a1"), Decimals: 18}
	usdc = models.Asset{Symbol: "USDC", Kind: models.AssetStable, Address: common.HexToAddress("0x00000000000000000000000000000000000000a2"), Decimals: 6}
	kta  = models.Asset{Symbol: "KTA", Kind: models.AssetIntermediateA, Address: common.HexToAddress("0x00000000000000000000000000000000000000a3"), Decimals: 18}
)

func wei(human string) *big.Int {
	return decimal.RequireFromString(human).Shift(18).BigInt()
}

// fakeCurveNode answers getCurveState for a flat curve priced at 0.001 XRGE
type fakeCurveNode struct {
	deployed bool
}

func (f *fakeCurveNode) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	method, err := chain.CurveABI.MethodById(data[:4])
	if err != nil || method.Name != "getCurveState" {
		return nil, fmt.Errorf("unexpected call to %s", to.Hex())
	}
	return method.Outputs.Pack(f.deployed, issuer, wei("1000"), wei("0.001"), big.NewInt(0), uint16(0))
}

// fakeWallet signs everything it is asked to and mines each tx into a receipt
type fakeWallet struct {
	mu       sync.Mutex
	txs      []chain.TxRequest
	rejectAt int // 1-based index of the request to reject, 0 for none
	revertAt int // 1-based index of the tx whose receipt reverts
	tokens   *big.Int
	receipts map[common.Hash]*types.Receipt
}

func newFakeWallet() *fakeWallet {
	return &fakeWallet{tokens: wei("47726"), receipts: make(map[common.Hash]*types.Receipt)}
}

func (w *fakeWallet) Address() common.Address { return payer }
func (w *fakeWallet) Ready(ctx context.Context) error { return nil }

func (w *fakeWallet) SendTransaction(ctx context.Context, tx chain.TxRequest) (common.Hash, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := len(w.txs) + 1
	if n == w.rejectAt {
		return common.Hash{}, fmt.Errorf("%s: %w", tx.Label, models.ErrUserRejected)
	}
	w.txs = append(w.txs, tx)

	hash := crypto.Keccak256Hash([]byte(fmt.Sprintf("tx-%d", n)))
	receipt := &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: hash}
	if n == w.revertAt {
		receipt.Status = types.ReceiptStatusFailed
	}
	if tx.To == curveAddr && isBuy(tx.Data) {
		event := chain.CurveABI.Events["TokensPurchased"]
		data, _ := event.Inputs.NonIndexed().Pack(big.NewInt(0), w.tokens)
		receipt.Logs = []*types.Log{{
			Address: curveAddr,
			Topics:  []common.Hash{event.ID, common.BytesToHash(payer.Bytes()), common.BytesToHash(token.Bytes())},
			Data:    data,
		}}
	}
	w.receipts[hash] = receipt
	return hash, nil
}

func (w *fakeWallet) WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	receipt, ok := w.receipts[hash]
	if !ok {
		return nil, errors.New("unknown tx")
	}
	return receipt, nil
}

func (w *fakeWallet) Sent() []chain.TxRequest {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]chain.TxRequest(nil), w.txs...)
}

func (w *fakeWallet) SentTo(to common.Address) int {
	count := 0
	for _, tx := range w.Sent() {
		if tx.To == to {
			count++
		}
	}
	return count
}

func isBuy(data []byte) bool {
	return len(data) >= 4 && (bytes.Equal(data[:4], chain.CurveABI.Methods["buy"].ID) ||
		bytes.Equal(data[:4], chain.CurveABI.Methods["buyWithNative"].ID))
}

// fakeAggregator quotes a fixed output and builds an opaque swap call
type fakeAggregator struct {
	out *big.Int
}

func (a *fakeAggregator) EstimateOut(ctx context.Context, in, out models.Asset, amountIn *big.Int) (*big.Int, error) {
	return a.out, nil
}

func (a *fakeAggregator) BuildSwap(ctx context.Context, params brokers.SwapParams) (chain.TxRequest, error) {
	return chain.TxRequest{From: params.Recipient, To: routerAddr, Data: []byte{0xde, 0xad, 0xbe, 0xef}, Label: "swap"}, nil
}

func (a *fakeAggregator) Spender() common.Address { return routerAddr }
func (a *fakeAggregator) GetBrokerType() string { return "fake" }

// scriptedBalances returns balances in order, repeating the last one
type scriptedBalances struct {
	mu       sync.Mutex
	balances []*uint256.Int
	calls    int
}

func (s *scriptedBalances) BalanceOf(ctx context.Context, asset models.Asset, owner common.Address) (*uint256.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i >= len(s.balances) {
		i = len(s.balances) - 1
	}
	return s.balances[i], nil
}

type countingRecorder struct {
	mu      sync.Mutex
	records []models.PurchaseRecord
}

func (r *countingRecorder) Record(ctx context.Context, rec models.PurchaseRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

type harness struct {
	wallet       *fakeWallet
	balances     *scriptedBalances
	recorder     *countingRecorder
	orchestrator *router.Orchestrator
}

type harnessOption func(*router.Options)

func newHarness(balances []*uint256.Int, opts ...harnessOption) *harness {
	node := &fakeCurveNode{deployed: true}
	curve := chain.NewCurve(curveAddr, node)
	engine := quote.NewEngine(curve)
	aggregator := &fakeAggregator{out: wei("48.7")}

	catalog, err := router.NewCatalog([]models.Asset{eth, xrge, usdc, kta})
	if err != nil {
		panic(err)
	}

	h := &harness{
		wallet:   newFakeWallet(),
		balances: &scriptedBalances{balances: balances},
		recorder: &countingRecorder{},
	}
	options := router.Options{
		Resolver:   router.NewResolver(catalog, curveAddr, aggregator, engine),
		Intake:     router.NewIntake(16),
		Signer:     h.wallet,
		Receipts:   h.wallet,
		Detector:   confirm.NewBalanceDiff(h.balances, confirm.PollConfig{WarmUp: time.Millisecond, Interval: time.Millisecond, MaxAttempts: 10}, nil),
		Curve:      curve,
		Aggregator: aggregator,
		Quotes:     engine,
		Recorder:   h.recorder,
	}
	for _, opt := range opts {
		opt(&options)
	}
	h.orchestrator, err = router.NewOrchestrator(options)
	if err != nil {
		panic(err)
	}
	return h
}
