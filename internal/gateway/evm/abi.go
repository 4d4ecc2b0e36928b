package evm

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// bridge manager: swap/swapToken lock funds, submitTransaction is the
// multisig entry used to release them
const bridgeABIJSON = `[
	{"inputs":[{"name":"_recipient","type":"bytes"}],"name":"swap","outputs":[],"stateMutability":"payable","type":"function"},
	{"inputs":[{"name":"_recipient","type":"bytes"},{"name":"_amount","type":"uint256"},{"name":"_tokenAddress","type":"address"}],"name":"swapToken","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"destination","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"}],"name":"submitTransaction","outputs":[{"name":"transactionId","type":"uint256"}],"stateMutability":"nonpayable","type":"function"}
]`

const erc20ABIJSON = `[
	{"constant":false,"inputs":[{"name":"_spender","type":"address"},{"name":"_value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"_owner","type":"address"},{"name":"_spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"_to","type":"address"},{"name":"_value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

var (
	bridgeABI = mustParseABI(bridgeABIJSON)
	erc20ABI  = mustParseABI(erc20ABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
