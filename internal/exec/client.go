// Package exec encodes submission and cancellation payloads for the
// on-chain order-core contract and its handler modules. It owns witness
// generation for stop variants and the fee/slippage min-return adjustment
// for plain limit orders.
package exec

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyip/limitbot/internal/domain"
)

const bpsDenominator = 10_000

// Config carries the deployment the client encodes against.
type Config struct {
	ChainID *big.Int
	Core    common.Address // order-core contract, target of every deposit/cancel
	// Handlers maps each order kind to the module contract that executes it.
	Handlers map[domain.OrderKind]common.Address
	// ExecutionFeeBps is the protocol fee the execution layer charges on the
	// output amount. Zero on chains with no such fee, in which case the
	// min-return adjustment is skipped entirely.
	ExecutionFeeBps int64
}

// Client is the execution-client collaborator. Construct it only when the
// chain id and signer account are known; callers treat a nil client as
// unreachable.
type Client struct {
	cfg     Config
	coreABI abi.ABI
	logger  *slog.Logger
}

// New validates the deployment config and returns a Client.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
		return nil, fmt.Errorf("exec: new client: %w", domain.ErrMissingContext)
	}
	if cfg.Core == (common.Address{}) {
		return nil, fmt.Errorf("exec: new client: core address unset: %w", domain.ErrMissingContext)
	}
	coreABI, err := parseCoreABI()
	if err != nil {
		return nil, err
	}
	return &Client{
		cfg:     cfg,
		coreABI: coreABI,
		logger:  logger.With(slog.String("component", "exec_client")),
	}, nil
}

// SubmissionRequest is the fully converted input to EncodeSubmission. Both
// amounts are fixed-point integers scaled by the respective token decimals.
type SubmissionRequest struct {
	Kind         domain.OrderKind
	InputToken   domain.Token
	OutputToken  domain.Token
	InputAmount  *big.Int
	OutputAmount *big.Int
	SlippageBps  int64
	Owner        common.Address
}

// Submission is the encoded payload plus the prefilled order record the
// orchestrator persists after a successful dispatch.
type Submission struct {
	Witness common.Address
	To      common.Address
	Payload []byte
	Value   *big.Int
	Order   domain.Order
}

// EncodeSubmission builds the deposit calldata for the requested order kind.
// Stop variants are bound to a freshly generated secret; its derived witness
// address doubles as the order id. Plain limit orders get a min return
// adjusted for the execution fee and the draft's slippage tolerance.
func (c *Client) EncodeSubmission(ctx context.Context, req SubmissionRequest) (Submission, error) {
	handler, ok := c.cfg.Handlers[req.Kind]
	if !ok {
		return Submission{}, fmt.Errorf("exec: no handler for order kind %q: %w", req.Kind, domain.ErrMissingContext)
	}
	if req.InputAmount == nil || req.InputAmount.Sign() <= 0 ||
		req.OutputAmount == nil || req.OutputAmount.Sign() <= 0 {
		return Submission{}, fmt.Errorf("exec: encode submission: %w", domain.ErrInvalidAmount)
	}

	outputBound := new(big.Int).Set(req.OutputAmount)
	if req.Kind == domain.OrderKindLimit {
		outputBound = c.FeeAdjustedMinReturn(req.OutputAmount, req.SlippageBps)
	}

	secret, witness, err := freshWitness()
	if err != nil {
		return Submission{}, err
	}

	data, err := handlerDataArgs.Pack(req.OutputToken.Address, outputBound, handler)
	if err != nil {
		return Submission{}, fmt.Errorf("exec: pack handler data: %w", err)
	}

	var payload []byte
	value := big.NewInt(0)
	if req.InputToken.Native {
		// Native deposits carry the amount as tx value; the order tuple is
		// nested inside the single bytes argument.
		inner, packErr := mustArguments("address", "address", "address", "address", "bytes", "bytes32").Pack(
			handler, req.InputToken.Address, req.Owner, witness, data, secret,
		)
		if packErr != nil {
			return Submission{}, fmt.Errorf("exec: pack eth order: %w", packErr)
		}
		payload, err = c.coreABI.Pack("depositEth", inner)
		value = new(big.Int).Set(req.InputAmount)
	} else {
		payload, err = c.coreABI.Pack("depositToken",
			req.InputAmount, handler, req.InputToken.Address, req.Owner, witness, data, secret,
		)
	}
	if err != nil {
		return Submission{}, fmt.Errorf("exec: pack deposit: %w", err)
	}

	c.logger.DebugContext(ctx, "exec: submission encoded",
		slog.String("kind", string(req.Kind)),
		slog.String("witness", witness.Hex()),
		slog.String("input", req.InputAmount.String()),
		slog.String("output_bound", outputBound.String()),
	)

	return Submission{
		Witness: witness,
		To:      c.cfg.Core,
		Payload: payload,
		Value:   value,
		Order: domain.Order{
			ID:           witness.Hex(),
			Kind:         req.Kind,
			Owner:        req.Owner.Hex(),
			InputToken:   req.InputToken,
			OutputToken:  req.OutputToken,
			InputAmount:  new(big.Int).Set(req.InputAmount),
			OutputAmount: outputBound,
			Handler:      handler.Hex(),
			Witness:      witness.Hex(),
			Data:         data,
		},
	}, nil
}

// FeeAdjustedMinReturn lowers the desired output by the execution fee and
// the slippage tolerance. On chains where the execution layer charges no
// fee the adjustment is skipped and the desired output passes through.
func (c *Client) FeeAdjustedMinReturn(output *big.Int, slippageBps int64) *big.Int {
	if c.cfg.ExecutionFeeBps == 0 {
		return new(big.Int).Set(output)
	}
	keep := big.NewInt(bpsDenominator - c.cfg.ExecutionFeeBps - slippageBps)
	if keep.Sign() < 0 {
		keep.SetInt64(0)
	}
	min := new(big.Int).Mul(output, keep)
	return min.Quo(min, big.NewInt(bpsDenominator))
}

// CancelTx builds the cancellation calldata for an existing record. No
// local existence check gates the call: the order core looks the order up
// on-chain from the packed identifying fields and reverts the transaction
// itself when nothing matches, so a blind cancel costs at most the reverted
// gas. The existsOnChain flag only annotates the audit log; an incomplete
// record is still attempted with the flag false rather than rejected
// locally.
func (c *Client) CancelTx(ctx context.Context, o domain.Order, existsOnChain bool) (domain.TxRequest, error) {
	payload, err := c.coreABI.Pack("cancelOrder",
		common.HexToAddress(o.Handler),
		o.InputToken.Address,
		common.HexToAddress(o.Owner),
		common.HexToAddress(o.Witness),
		o.Data,
	)
	if err != nil {
		return domain.TxRequest{}, fmt.Errorf("exec: pack cancel: %w", err)
	}

	c.logger.DebugContext(ctx, "exec: cancellation encoded",
		slog.String("order_id", o.ID),
		slog.Bool("exists_on_chain", existsOnChain),
	)

	return domain.TxRequest{
		To:    c.cfg.Core,
		Data:  payload,
		Value: big.NewInt(0),
	}, nil
}

// ChainID returns the chain the client encodes for.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.cfg.ChainID)
}

// freshWitness generates a random secret and the witness address derived
// from it. The secret never leaves this process; only its 32-byte scalar is
// embedded in the deposit payload for the relayer network.
func freshWitness() ([32]byte, common.Address, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return [32]byte{}, common.Address{}, fmt.Errorf("exec: generate witness secret: %w", err)
	}
	var secret [32]byte
	copy(secret[:], crypto.FromECDSA(key))
	return secret, crypto.PubkeyToAddress(key.PublicKey), nil
}
