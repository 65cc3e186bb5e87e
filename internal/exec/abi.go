package exec

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// coreABIString covers the order-core contract entry points the client
// encodes against: token and native deposits plus cancellation.
const coreABIString = `[
	{
		"inputs": [
			{"internalType": "uint256", "name": "amount", "type": "uint256"},
			{"internalType": "address", "name": "module", "type": "address"},
			{"internalType": "address", "name": "inputToken", "type": "address"},
			{"internalType": "address", "name": "owner", "type": "address"},
			{"internalType": "address", "name": "witness", "type": "address"},
			{"internalType": "bytes", "name": "data", "type": "bytes"},
			{"internalType": "bytes32", "name": "secret", "type": "bytes32"}
		],
		"name": "depositToken",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "bytes", "name": "data", "type": "bytes"}
		],
		"name": "depositEth",
		"outputs": [],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "module", "type": "address"},
			{"internalType": "address", "name": "inputToken", "type": "address"},
			{"internalType": "address", "name": "owner", "type": "address"},
			{"internalType": "address", "name": "witness", "type": "address"},
			{"internalType": "bytes", "name": "data", "type": "bytes"}
		],
		"name": "cancelOrder",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

func parseCoreABI() (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(coreABIString))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("exec: parse core abi: %w", err)
	}
	return parsed, nil
}

// handlerDataArgs is the handler-specific payload appended to every order:
// (outputToken, outputAmount, handler). Stop variants read outputAmount as
// the trigger-bounded max return, plain limit orders as the min return.
var handlerDataArgs = mustArguments("address", "uint256", "address")

func mustArguments(types ...string) abi.Arguments {
	args := make(abi.Arguments, 0, len(types))
	for _, t := range types {
		ty, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(fmt.Sprintf("exec: abi type %q: %v", t, err))
		}
		args = append(args, abi.Argument{Type: ty})
	}
	return args
}
