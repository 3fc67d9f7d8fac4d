package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// AssetKind classifies a payment asset by how it reaches the bonding curve
type AssetKind string

const (
	AssetNative        AssetKind = "native"         // chain native asset, accepted by the curve directly
	AssetCurve         AssetKind = "curve"          // the ERC-20 the curve accepts as payment
	AssetIntermediateA AssetKind = "intermediate_a" // swapped into the curve asset first
	AssetIntermediateB AssetKind = "intermediate_b" // swapped into the curve asset first
	AssetStable        AssetKind = "stable"         // swapped into the curve asset first
	AssetCurveToken    AssetKind = "curve_token"    // fractional ownership token issued by a curve
)

// Asset describes a token the pipeline can move
type Asset struct {
	Symbol   string         `json:"symbol"`   // e.g. "ETH", "XRGE", "USDC"
	Kind     AssetKind      `json:"kind"`     // how the asset is routed
	Address  common.Address `json:"address"`  // zero address for the native asset
	Decimals int32          `json:"decimals"` // number of decimals in base units
}

// IsNative reports whether the asset is the chain native asset
func (a Asset) IsNative() bool {
	return a.Kind == AssetNative
}

// NeedsSwap reports whether the asset must be swapped into the curve asset before buying
func (a Asset) NeedsSwap() bool {
	switch a.Kind {
	case AssetIntermediateA, AssetIntermediateB, AssetStable:
		return true
	default:
		return false
	}
}

// ToBaseUnits converts a human amount to base units, truncating extra precision
func (a Asset) ToBaseUnits(amount decimal.Decimal) *big.Int {
	return amount.Shift(a.Decimals).Truncate(0).BigInt()
}

// FromBaseUnits converts a base-unit amount to a human amount
func (a Asset) FromBaseUnits(amount *big.Int) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -a.Decimals)
}

// CurveTokenAsset describes the ownership token of a curve as an asset
func CurveTokenAsset(token common.Address) Asset {
	return Asset{
		Symbol:   "CURVE-" + token.Hex()[2:8],
		Kind:     AssetCurveToken,
		Address:  token,
		Decimals: 18,
	}
}
