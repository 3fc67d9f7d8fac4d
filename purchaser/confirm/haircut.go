package confirm

import "github.com/holiman/uint256"

// Haircut applied to an observed swap delta before it is spent on the curve.
// Leaves headroom for fee-on-transfer assets and rounding between the
// aggregator's output and what the curve can pull.
const (
	HaircutNumerator   = 98
	HaircutDenominator = 100
)

// ApplyHaircut returns delta * 98 / 100, rounded down
func ApplyHaircut(delta *uint256.Int) *uint256.Int {
	out, _ := new(uint256.Int).MulDivOverflow(delta,
		uint256.NewInt(HaircutNumerator), uint256.NewInt(HaircutDenominator))
	return out
}
