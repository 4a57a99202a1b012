package looping

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const factoryABIJSON = `[
  {"type":"function","name":"getUserPositions","stateMutability":"view",
   "inputs":[{"name":"user","type":"address"}],
   "outputs":[{"name":"","type":"address[]"}]},
  {"type":"function","name":"getPositionDetails","stateMutability":"view",
   "inputs":[{"name":"position","type":"address"}],
   "outputs":[
     {"name":"owner","type":"address"},
     {"name":"collateralAsset","type":"address"},
     {"name":"borrowAsset","type":"address"},
     {"name":"targetLTV","type":"uint256"},
     {"name":"maxSlippage","type":"uint256"},
     {"name":"totalCollateral","type":"uint256"},
     {"name":"totalDebt","type":"uint256"},
     {"name":"healthFactor","type":"uint256"},
     {"name":"currentLTV","type":"uint256"},
     {"name":"active","type":"bool"}]},
  {"type":"function","name":"getTotalPositions","stateMutability":"view",
   "inputs":[],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"createPosition","stateMutability":"payable",
   "inputs":[
     {"name":"collateralAsset","type":"address"},
     {"name":"borrowAsset","type":"address"},
     {"name":"targetLTV","type":"uint256"},
     {"name":"maxSlippage","type":"uint256"}],
   "outputs":[
     {"name":"callback","type":"address"},
     {"name":"reactive","type":"address"}]},
  {"type":"event","name":"PositionCreated","anonymous":false,
   "inputs":[
     {"name":"owner","type":"address","indexed":true},
     {"name":"callbackContract","type":"address","indexed":true},
     {"name":"reactiveContract","type":"address","indexed":false},
     {"name":"collateralAsset","type":"address","indexed":false},
     {"name":"borrowAsset","type":"address","indexed":false}]}
]`

const callbackABIJSON = `[
  {"type":"function","name":"executeLeverage","stateMutability":"nonpayable",
   "inputs":[{"name":"amount","type":"uint256"}],
   "outputs":[]}
]`

const erc20ABIJSON = `[
  {"type":"function","name":"approve","stateMutability":"nonpayable",
   "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"allowance","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"decimals","stateMutability":"view",
   "inputs":[],
   "outputs":[{"name":"","type":"uint8"}]}
]`

const feedABIJSON = `[
  {"type":"function","name":"latestRoundData","stateMutability":"view",
   "inputs":[],
   "outputs":[
     {"name":"roundId","type":"uint80"},
     {"name":"answer","type":"int256"},
     {"name":"startedAt","type":"uint256"},
     {"name":"updatedAt","type":"uint256"},
     {"name":"answeredInRound","type":"uint80"}]},
  {"type":"function","name":"paused","stateMutability":"view",
   "inputs":[],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"decimals","stateMutability":"view",
   "inputs":[],
   "outputs":[{"name":"","type":"uint8"}]}
]`

var (
	FactoryABI  = mustParse(factoryABIJSON)
	CallbackABI = mustParse(callbackABIJSON)
	ERC20ABI    = mustParse(erc20ABIJSON)
	FeedABI     = mustParse(feedABIJSON)
)

func mustParse(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
