package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TxRequest describes a transaction to dispatch. GasPrice and GasLimit are
// optional caller overrides; zero values let the dispatcher pick defaults.
type TxRequest struct {
	To       common.Address
	Data     []byte
	Value    *big.Int
	GasPrice *big.Int
	GasLimit uint64
}

// TxHandle is the reference to a dispatched (not necessarily confirmed)
// transaction.
type TxHandle struct {
	Hash common.Hash
}

// TxDispatcher sends signed transactions to the network. A rejection by the
// signer or the node surfaces as ErrTransactionRejected.
type TxDispatcher interface {
	SendTransaction(ctx context.Context, req TxRequest) (TxHandle, error)
}
