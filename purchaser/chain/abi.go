package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const erc20ABIJSON = `[
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const curveABIJSON = `[
	{"type":"function","name":"getCurveState","stateMutability":"view","inputs":[{"name":"token","type":"address"}],
	 "outputs":[{"name":"deployed","type":"bool"},{"name":"issuer","type":"address"},{"name":"supplySold","type":"uint256"},
	            {"name":"basePrice","type":"uint256"},{"name":"slope","type":"uint256"},{"name":"feeBps","type":"uint16"}]},
	{"type":"function","name":"buy","stateMutability":"nonpayable",
	 "inputs":[{"name":"token","type":"address"},{"name":"curveAssetIn","type":"uint256"},{"name":"minTokensOut","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"buyWithNative","stateMutability":"payable",
	 "inputs":[{"name":"token","type":"address"},{"name":"minTokensOut","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"sell","stateMutability":"nonpayable",
	 "inputs":[{"name":"token","type":"address"},{"name":"tokensIn","type":"uint256"},{"name":"minCurveAssetOut","type":"uint256"}],"outputs":[]},
	{"type":"event","name":"TokensPurchased","anonymous":false,
	 "inputs":[{"name":"buyer","type":"address","indexed":true},{"name":"token","type":"address","indexed":true},
	           {"name":"curveAssetIn","type":"uint256","indexed":false},{"name":"tokensOut","type":"uint256","indexed":false}]},
	{"type":"event","name":"TokensSold","anonymous":false,
	 "inputs":[{"name":"seller","type":"address","indexed":true},{"name":"token","type":"address","indexed":true},
	           {"name":"tokensIn","type":"uint256","indexed":false},{"name":"curveAssetOut","type":"uint256","indexed":false}]}
]`

const factoryABIJSON = `[
	{"type":"function","name":"createCurve","stateMutability":"nonpayable",
	 "inputs":[{"name":"contentId","type":"string"},{"name":"name","type":"string"},{"name":"symbol","type":"string"}],
	 "outputs":[{"name":"token","type":"address"}]},
	{"type":"event","name":"CurveCreated","anonymous":false,
	 "inputs":[{"name":"token","type":"address","indexed":true},{"name":"creator","type":"address","indexed":true},
	           {"name":"contentId","type":"string","indexed":false}]}
]`

// Parsed contract ABIs shared by every caller in the module
var (
	ERC20ABI   = mustParseABI(erc20ABIJSON)
	CurveABI   = mustParseABI(curveABIJSON)
	FactoryABI = mustParseABI(factoryABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("invalid embedded abi: " + err.Error())
	}
	return parsed
}
