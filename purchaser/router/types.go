package router

import (
	"strings"

	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/models"
	"github.com/shopspring/decimal"
)

// RouteKind names the shape of a pipeline
type RouteKind string

const (
	RouteDirectNative RouteKind = "direct_native" // Buy
	RouteDirectCurve  RouteKind = "direct_curve"  // Approve, Buy
	RouteSwap         RouteKind = "swap"          // Approve, Swap, Approve, Buy
	RouteSell         RouteKind = "sell"          // Approve, Sell
)

// Route is the resolved plan for one intent.
// Amounts other than the intent's own are estimates and are re-derived at runtime.
type Route struct {
	Kind                RouteKind
	Source              models.Asset
	CurveAsset          models.Asset
	Steps               []models.SwapStep
	EstimatedCurveAsset decimal.Decimal
	Quote               *models.BondingCurveQuote
}

// Response converts the route to its API shape
func (r *Route) Response() models.RouteResponse {
	resp := models.RouteResponse{
		Route: string(r.Kind),
		Steps: append([]models.SwapStep(nil), r.Steps...),
		Quote: r.Quote,
	}
	if !r.EstimatedCurveAsset.IsZero() {
		resp.EstimatedCurveAsset = r.EstimatedCurveAsset.String()
	}
	return resp
}

// Catalog is the configured set of payment assets, indexed by symbol
type Catalog struct {
	assets     []models.Asset
	bySymbol   map[string]models.Asset
	curveAsset models.Asset
}

// NewCatalog indexes assets. Exactly one asset must be the curve asset.
func NewCatalog(assets []models.Asset) (*Catalog, error) {
	c := &Catalog{bySymbol: make(map[string]models.Asset, len(assets))}
	curveAssets := 0
	for _, asset := range assets {
		key := strings.ToUpper(asset.Symbol)
		if key == "" {
			return nil, errEmptySymbol
		}
		if _, dup := c.bySymbol[key]; dup {
			return nil, &catalogError{symbol: asset.Symbol, reason: "duplicate symbol"}
		}
		if asset.Kind == models.AssetCurveToken {
			return nil, &catalogError{symbol: asset.Symbol, reason: "curve tokens are not payment assets"}
		}
		if asset.Kind == models.AssetCurve {
			c.curveAsset = asset
			curveAssets++
		}
		c.bySymbol[key] = asset
		c.assets = append(c.assets, asset)
	}
	if curveAssets != 1 {
		return nil, &catalogError{reason: "exactly one curve asset is required"}
	}
	return c, nil
}

// Lookup finds an asset by symbol, case-insensitively
func (c *Catalog) Lookup(symbol string) (models.Asset, error) {
	asset, ok := c.bySymbol[strings.ToUpper(symbol)]
	if !ok {
		return models.Asset{}, &catalogError{symbol: symbol, reason: "not in catalog", unsupported: true}
	}
	return asset, nil
}

// All returns the assets in configured order
func (c *Catalog) All() []models.Asset {
	return append([]models.Asset(nil), c.assets...)
}

func (c *Catalog) CurveAsset() models.Asset {
	return c.curveAsset
}
