package ethereum

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Minimal ABI fragments for the contracts the launch and swap flows
// interact with. Only the methods the client actually calls are listed.
const (
	erc20ABI = `[
  {"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

	tokenFactoryABI = `[
  {"type":"function","name":"computeTokenAddress","stateMutability":"view","inputs":[{"name":"creator","type":"address"},{"name":"name","type":"string"},{"name":"symbol","type":"string"}],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"createToken","stateMutability":"nonpayable","inputs":[{"name":"name","type":"string"},{"name":"symbol","type":"string"},{"name":"decimals","type":"uint8"},{"name":"amount","type":"uint256"},{"name":"metadataURI","type":"string"}],"outputs":[]}
]`

	marketFactoryABI = `[
  {"type":"function","name":"computeMarketId","stateMutability":"view","inputs":[{"name":"base","type":"address"},{"name":"quote","type":"address"}],"outputs":[{"name":"","type":"bytes32"}]},
  {"type":"function","name":"createMarket","stateMutability":"nonpayable","inputs":[{"name":"base","type":"address"},{"name":"quote","type":"address"}],"outputs":[]}
]`

	poolFactoryABI = `[
  {"type":"function","name":"computePoolId","stateMutability":"view","inputs":[{"name":"marketId","type":"bytes32"}],"outputs":[{"name":"","type":"bytes32"}]},
  {"type":"function","name":"createPool","stateMutability":"payable","inputs":[{"name":"marketId","type":"bytes32"},{"name":"base","type":"address"},{"name":"quote","type":"address"},{"name":"baseAmount","type":"uint256"},{"name":"quoteAmount","type":"uint256"}],"outputs":[]}
]`

	swapRouterABI = `[
  {"type":"function","name":"exactInputSingle","stateMutability":"payable","inputs":[{"name":"params","type":"tuple","components":[{"name":"tokenIn","type":"address"},{"name":"tokenOut","type":"address"},{"name":"fee","type":"uint24"},{"name":"recipient","type":"address"},{"name":"deadline","type":"uint256"},{"name":"amountIn","type":"uint256"},{"name":"amountOutMinimum","type":"uint256"},{"name":"sqrtPriceLimitX96","type":"uint160"}]}],"outputs":[{"name":"amountOut","type":"uint256"}]}
]`
)

// exactInputSingleParams mirrors the router's tuple argument layout.
type exactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	Deadline          *big.Int
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}
