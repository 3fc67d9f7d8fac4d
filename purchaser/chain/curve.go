package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/models"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

// curveScale is the fixed-point exponent of on-chain curve parameters
const curveScale = -18

// Curve is the bonding curve contract shared by every content token
type Curve struct {
	address common.Address
	caller  Caller
}

func NewCurve(address common.Address, caller Caller) *Curve {
	return &Curve{address: address, caller: caller}
}

// Address of the curve contract, the spender for curve-asset and sell approvals
func (c *Curve) Address() common.Address {
	return c.address
}

// State reads the pricing state of token's curve
func (c *Curve) State(ctx context.Context, token common.Address) (models.CurveState, error) {
	data, err := CurveABI.Pack("getCurveState", token)
	if err != nil {
		return models.CurveState{}, fmt.Errorf("failed to pack getCurveState: %w", err)
	}
	out, err := c.caller.CallContract(ctx, c.address, data)
	if err != nil {
		return models.CurveState{}, fmt.Errorf("failed to read curve state for %s: %w", token.Hex(), err)
	}
	values, err := CurveABI.Unpack("getCurveState", out)
	if err != nil {
		return models.CurveState{}, fmt.Errorf("failed to decode curve state: %w", err)
	}
	if len(values) != 6 {
		return models.CurveState{}, fmt.Errorf("unexpected curve state arity %d", len(values))
	}

	deployed, _ := values[0].(bool)
	issuer, _ := values[1].(common.Address)
	supply, _ := values[2].(*big.Int)
	base, _ := values[3].(*big.Int)
	slope, _ := values[4].(*big.Int)
	fee, _ := values[5].(uint16)

	return models.CurveState{
		Token:      token,
		Issuer:     issuer,
		Deployed:   deployed,
		SupplySold: scaled(supply),
		BasePrice:  scaled(base),
		Slope:      scaled(slope),
		FeeBps:     uint32(fee),
	}, nil
}

func scaled(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, curveScale)
}

// BuyCall pays curveAssetIn of the ERC-20 curve asset for token
func (c *Curve) BuyCall(buyer, token common.Address, curveAssetIn, minTokensOut *big.Int) (TxRequest, error) {
	data, err := CurveABI.Pack("buy", token, curveAssetIn, minTokensOut)
	if err != nil {
		return TxRequest{}, fmt.Errorf("failed to pack buy: %w", err)
	}
	return TxRequest{From: buyer, To: c.address, Data: data, Label: "buy curve token"}, nil
}

// BuyWithNativeCall pays value in the native asset for token
func (c *Curve) BuyWithNativeCall(buyer, token common.Address, value, minTokensOut *big.Int) (TxRequest, error) {
	data, err := CurveABI.Pack("buyWithNative", token, minTokensOut)
	if err != nil {
		return TxRequest{}, fmt.Errorf("failed to pack buyWithNative: %w", err)
	}
	return TxRequest{From: buyer, To: c.address, Data: data, Value: value, Label: "buy curve token"}, nil
}

// SellCall returns tokensIn of token to the curve
func (c *Curve) SellCall(seller, token common.Address, tokensIn, minCurveAssetOut *big.Int) (TxRequest, error) {
	data, err := CurveABI.Pack("sell", token, tokensIn, minCurveAssetOut)
	if err != nil {
		return TxRequest{}, fmt.Errorf("failed to pack sell: %w", err)
	}
	return TxRequest{From: seller, To: c.address, Data: data, Label: "sell curve token"}, nil
}

// DecodePurchase finds the TokensPurchased log for buyer and returns
// (curveAssetIn, tokensOut). ok is false when no matching log exists.
func (c *Curve) DecodePurchase(receipt *types.Receipt, buyer common.Address) (curveAssetIn, tokensOut *big.Int, ok bool) {
	return c.decodeTrade(receipt, "TokensPurchased", buyer)
}

// DecodeSale finds the TokensSold log for seller and returns (tokensIn, curveAssetOut)
func (c *Curve) DecodeSale(receipt *types.Receipt, seller common.Address) (tokensIn, curveAssetOut *big.Int, ok bool) {
	return c.decodeTrade(receipt, "TokensSold", seller)
}

func (c *Curve) decodeTrade(receipt *types.Receipt, event string, trader common.Address) (*big.Int, *big.Int, bool) {
	if receipt == nil {
		return nil, nil, false
	}
	id := CurveABI.Events[event].ID
	for _, l := range receipt.Logs {
		if l.Address != c.address || len(l.Topics) < 3 || l.Topics[0] != id {
			continue
		}
		if common.BytesToAddress(l.Topics[1].Bytes()) != trader {
			continue
		}
		values, err := CurveABI.Unpack(event, l.Data)
		if err != nil || len(values) != 2 {
			log.Warn().Err(err).Str("event", event).Msg("Failed to decode curve log")
			continue
		}
		first, _ := values[0].(*big.Int)
		second, _ := values[1].(*big.Int)
		if first == nil || second == nil {
			continue
		}
		return first, second, true
	}
	return nil, nil, false
}
