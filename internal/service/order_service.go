// Package service orchestrates order submission and cancellation between
// the draft session, the execution client, the transaction dispatcher, and
// the local order history.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/alanyip/limitbot/internal/domain"
	"github.com/alanyip/limitbot/internal/draft"
	"github.com/alanyip/limitbot/internal/exec"
)

// defaultCancelGasLimit guards against gas-estimation failure on handler
// contracts whose existence probe reverts for already-settled orders.
const defaultCancelGasLimit = 600_000

// ExecutionClient encodes submission and cancellation payloads. A nil client
// means the execution layer is unreachable (unknown chain or signer).
type ExecutionClient interface {
	EncodeSubmission(ctx context.Context, req exec.SubmissionRequest) (exec.Submission, error)
	CancelTx(ctx context.Context, o domain.Order, existsOnChain bool) (domain.TxRequest, error)
	ChainID() *big.Int
}

// TxOverrides are optional caller-supplied transaction parameters. Zero
// values defer to the dispatcher's defaults.
type TxOverrides struct {
	GasPrice *big.Int
	GasLimit uint64
}

// OrderService validates drafts, dispatches submission and cancellation
// transactions, and records the results in the order history. Submit and
// cancel are guarded per key so a duplicate call while one is outstanding
// fails fast instead of double-dispatching.
type OrderService struct {
	history    domain.OrderHistory
	prices     domain.PriceSource
	dispatcher domain.TxDispatcher
	client     ExecutionClient
	owner      common.Address
	logger     *slog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewOrderService creates an OrderService. The execution client may be nil
// when no chain context is available; submission and cancellation then fail
// with domain.ErrClientUnreachable.
func NewOrderService(
	history domain.OrderHistory,
	prices domain.PriceSource,
	dispatcher domain.TxDispatcher,
	client ExecutionClient,
	owner common.Address,
	logger *slog.Logger,
) *OrderService {
	return &OrderService{
		history:    history,
		prices:     prices,
		dispatcher: dispatcher,
		client:     client,
		owner:      owner,
		logger:     logger,
		inFlight:   make(map[string]struct{}),
	}
}

// acquire marks key as in flight, or reports domain.ErrAlreadyInFlight when
// a prior call on the same key has not finished.
func (s *OrderService) acquire(key string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, held := s.inFlight[key]; held {
		return nil, domain.ErrAlreadyInFlight
	}
	s.inFlight[key] = struct{}{}
	return func() {
		s.mu.Lock()
		delete(s.inFlight, key)
		s.mu.Unlock()
	}, nil
}

// MarketRate returns the current market rate for the session's pair, or nil
// when no rate is known yet. Unexpected price-source failures propagate.
func (s *OrderService) MarketRate(ctx context.Context, session *draft.Session) (*big.Rat, error) {
	in, out := session.InputToken(), session.OutputToken()
	if in.IsZero() || out.IsZero() {
		return nil, nil
	}
	r, err := s.prices.CurrentMarketRate(ctx, in, out)
	if err != nil {
		if errors.Is(err, domain.ErrNoRoute) || errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("order_service: market rate: %w", err)
	}
	return r, nil
}

// BlockingReason runs the validator against the current draft and market
// rate and returns the blocking sentinel that should disable the submit
// action, or nil when the draft is submittable.
func (s *OrderService) BlockingReason(ctx context.Context, session *draft.Session) error {
	rate, err := s.MarketRate(ctx, session)
	if err != nil {
		return err
	}
	return session.Validate(session.Derive(rate), rate)
}

// SubmitOrder validates the draft, encodes the submission for the given
// order kind, dispatches exactly one transaction, and appends an OPEN record
// to history. Any failure before dispatch leaves history untouched; a
// dispatch rejection propagates verbatim with no partial record. On success
// the session is reset for the next order.
func (s *OrderService) SubmitOrder(ctx context.Context, session *draft.Session, kind domain.OrderKind, overrides *TxOverrides) (domain.Order, error) {
	if s.client == nil {
		return domain.Order{}, fmt.Errorf("order_service: submit: %w", domain.ErrClientUnreachable)
	}
	if s.dispatcher == nil || s.owner == (common.Address{}) {
		return domain.Order{}, fmt.Errorf("order_service: submit: %w", domain.ErrMissingContext)
	}

	release, err := s.acquire("submit:" + s.owner.Hex())
	if err != nil {
		return domain.Order{}, fmt.Errorf("order_service: submit: %w", err)
	}
	defer release()

	rate, err := s.MarketRate(ctx, session)
	if err != nil {
		return domain.Order{}, err
	}
	derived := session.Derive(rate)
	if err := session.Validate(derived, rate); err != nil {
		return domain.Order{}, fmt.Errorf("order_service: validate draft: %w", err)
	}

	sub, err := s.client.EncodeSubmission(ctx, exec.SubmissionRequest{
		Kind:         kind,
		InputToken:   session.InputToken(),
		OutputToken:  session.OutputToken(),
		InputAmount:  derived.Input,
		OutputAmount: derived.Output,
		SlippageBps:  session.SlippageBps(),
		Owner:        s.owner,
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("order_service: encode submission: %w", err)
	}

	req := domain.TxRequest{To: sub.To, Data: sub.Payload, Value: sub.Value}
	if overrides != nil {
		req.GasPrice = overrides.GasPrice
		req.GasLimit = overrides.GasLimit
	}

	handle, err := s.dispatcher.SendTransaction(ctx, req)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order_service: dispatch submission: %w", err)
	}

	now := time.Now().UTC()
	order := sub.Order
	if order.ID == "" {
		// Witness-less payloads still need a stable history key.
		order.ID = uuid.NewString()
	}
	order.Status = domain.OrderStatusOpen
	order.CreatedTxHash = strings.ToLower(handle.Hash.Hex())
	order.CreatedAt = now
	order.UpdatedAt = now

	if err := s.history.Append(ctx, order); err != nil {
		// The transaction is already on the wire; surface the store failure
		// rather than pretending the order does not exist.
		return order, fmt.Errorf("order_service: record order %s: %w", order.ID, err)
	}

	session.Reset()

	s.logger.InfoContext(ctx, "order_service: order submitted",
		slog.String("order_id", order.ID),
		slog.String("kind", string(kind)),
		slog.String("tx", order.CreatedTxHash),
		slog.String("input", order.InputAmount.String()),
		slog.String("output", order.OutputAmount.String()),
	)

	return order, nil
}

// CancelOrder builds and dispatches the cancellation for a stored record and
// transitions it OPEN to CANCELLED on successful dispatch. The record's
// amounts and tokens are preserved untouched for audit. A record missing
// identifying fields is still attempted with existsOnChain=false.
func (s *OrderService) CancelOrder(ctx context.Context, id string, overrides *TxOverrides) (domain.Order, error) {
	if s.client == nil {
		return domain.Order{}, fmt.Errorf("order_service: cancel: %w", domain.ErrClientUnreachable)
	}
	if s.dispatcher == nil || s.owner == (common.Address{}) {
		return domain.Order{}, fmt.Errorf("order_service: cancel: %w", domain.ErrMissingContext)
	}

	release, err := s.acquire("cancel:" + id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order_service: cancel %q: %w", id, err)
	}
	defer release()

	rec, err := s.history.Find(ctx, id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order_service: find order %q: %w", id, err)
	}
	if rec.Status.Terminal() {
		return domain.Order{}, fmt.Errorf("order_service: cancel %q in status %s: %w", id, rec.Status, domain.ErrInvalidTransition)
	}

	existsOnChain := rec.ExistsOnChain()
	req, err := s.client.CancelTx(ctx, rec, existsOnChain)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order_service: encode cancellation: %w", err)
	}

	// Default gas limit: estimation fails on some handlers once the order is
	// no longer probeable.
	req.GasLimit = defaultCancelGasLimit
	if overrides != nil {
		if overrides.GasLimit != 0 {
			req.GasLimit = overrides.GasLimit
		}
		req.GasPrice = overrides.GasPrice
	}

	handle, err := s.dispatcher.SendTransaction(ctx, req)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order_service: dispatch cancellation: %w", err)
	}

	status := domain.OrderStatusCancelled
	cancelTx := strings.ToLower(handle.Hash.Hex())
	if err := s.history.Patch(ctx, id, domain.OrderPatch{
		Status:      &status,
		CancelledTx: &cancelTx,
	}); err != nil {
		return domain.Order{}, fmt.Errorf("order_service: patch order %q: %w", id, err)
	}

	rec.Status = status
	rec.CancelledTx = cancelTx
	rec.UpdatedAt = time.Now().UTC()

	s.logger.InfoContext(ctx, "order_service: order cancelled",
		slog.String("order_id", id),
		slog.String("tx", cancelTx),
		slog.Bool("exists_on_chain", existsOnChain),
	)

	return rec, nil
}

// ListOpen returns the owner's open orders.
func (s *OrderService) ListOpen(ctx context.Context) ([]domain.Order, error) {
	orders, err := s.history.ListOpen(ctx, s.owner.Hex())
	if err != nil {
		return nil, fmt.Errorf("order_service: list open: %w", err)
	}
	return orders, nil
}

// ListHistory returns the owner's full order history with pagination.
func (s *OrderService) ListHistory(ctx context.Context, opts domain.ListOpts) ([]domain.Order, error) {
	orders, err := s.history.ListByOwner(ctx, s.owner.Hex(), opts)
	if err != nil {
		return nil, fmt.Errorf("order_service: list history: %w", err)
	}
	return orders, nil
}

// GetOrder retrieves a single record by its id.
func (s *OrderService) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	order, err := s.history.Find(ctx, id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order_service: get order %q: %w", id, err)
	}
	return order, nil
}
