// Package eth dispatches signed transactions through an Ethereum JSON-RPC
// backend. It implements domain.TxDispatcher.
package eth

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyip/limitbot/internal/crypto"
	"github.com/alanyip/limitbot/internal/domain"
)

// estimateHeadroomBps pads the gas estimate; some handler contracts estimate
// low when their storage probe short-circuits.
const estimateHeadroomBps = 1_500

// Backend is the slice of the ethclient surface the dispatcher needs.
// *ethclient.Client satisfies it.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Dispatcher signs and sends transactions. Overrides in the TxRequest win;
// otherwise the gas price comes from the backend's suggestion and the gas
// limit from estimation with headroom.
type Dispatcher struct {
	backend Backend
	signer  *crypto.Signer
	chainID *big.Int
	logger  *slog.Logger
}

// NewDispatcher creates a Dispatcher for the given chain.
func NewDispatcher(backend Backend, signer *crypto.Signer, chainID *big.Int, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		backend: backend,
		signer:  signer,
		chainID: chainID,
		logger:  logger.With(slog.String("component", "eth_dispatcher")),
	}
}

// SendTransaction builds, signs, and dispatches exactly one transaction for
// the request. A signer or node rejection surfaces as
// domain.ErrTransactionRejected with the underlying message preserved.
func (d *Dispatcher) SendTransaction(ctx context.Context, req domain.TxRequest) (domain.TxHandle, error) {
	from := d.signer.Address()

	nonce, err := d.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return domain.TxHandle{}, fmt.Errorf("eth: pending nonce: %w", err)
	}

	gasPrice := req.GasPrice
	if gasPrice == nil {
		gasPrice, err = d.backend.SuggestGasPrice(ctx)
		if err != nil {
			return domain.TxHandle{}, fmt.Errorf("eth: suggest gas price: %w", err)
		}
	}

	value := req.Value
	if value == nil {
		value = big.NewInt(0)
	}

	gasLimit := req.GasLimit
	if gasLimit == 0 {
		to := req.To
		estimate, estErr := d.backend.EstimateGas(ctx, ethereum.CallMsg{
			From:  from,
			To:    &to,
			Value: value,
			Data:  req.Data,
		})
		if estErr != nil {
			return domain.TxHandle{}, fmt.Errorf("eth: estimate gas: %w", estErr)
		}
		gasLimit = estimate + estimate*estimateHeadroomBps/10_000
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &req.To,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     req.Data,
	})

	signed, err := d.signer.SignTx(tx, d.chainID)
	if err != nil {
		return domain.TxHandle{}, fmt.Errorf("%w: %s", domain.ErrTransactionRejected, err)
	}

	if err := d.backend.SendTransaction(ctx, signed); err != nil {
		return domain.TxHandle{}, fmt.Errorf("%w: %s", domain.ErrTransactionRejected, err)
	}

	d.logger.InfoContext(ctx, "eth: transaction dispatched",
		slog.String("hash", signed.Hash().Hex()),
		slog.Uint64("nonce", nonce),
		slog.String("gas_price", gasPrice.String()),
		slog.Uint64("gas_limit", gasLimit),
	)

	return domain.TxHandle{Hash: signed.Hash()}, nil
}

var _ domain.TxDispatcher = (*Dispatcher)(nil)
