package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyip/limitbot/internal/amount"
	"github.com/alanyip/limitbot/internal/domain"
	"github.com/alanyip/limitbot/internal/draft"
	"github.com/alanyip/limitbot/internal/rate"
	"github.com/alanyip/limitbot/internal/service"
)

// OrderService defines what the order handler needs from the service layer.
type OrderService interface {
	SubmitOrder(ctx context.Context, session *draft.Session, kind domain.OrderKind, overrides *service.TxOverrides) (domain.Order, error)
	CancelOrder(ctx context.Context, id string, overrides *service.TxOverrides) (domain.Order, error)
	ListOpen(ctx context.Context) ([]domain.Order, error)
	ListHistory(ctx context.Context, opts domain.ListOpts) ([]domain.Order, error)
	GetOrder(ctx context.Context, id string) (domain.Order, error)
}

// OrderHandler serves the order endpoints. Each submission builds a fresh
// draft session from the request body, seeded with the configured default
// slippage tolerance.
type OrderHandler struct {
	orders             OrderService
	defaultSlippageBps int64
	logger             *slog.Logger
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(orders OrderService, defaultSlippageBps int64, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		orders:             orders,
		defaultSlippageBps: defaultSlippageBps,
		logger:             logger,
	}
}

// tokenPayload is the wire form of a token selection.
type tokenPayload struct {
	Address  string `json:"address"`
	Decimals int    `json:"decimals"`
	Symbol   string `json:"symbol"`
	Native   bool   `json:"native"`
}

func (t tokenPayload) toDomain() domain.Token {
	return domain.Token{
		Address:  common.HexToAddress(t.Address),
		Decimals: t.Decimals,
		Symbol:   t.Symbol,
		Native:   t.Native,
	}
}

// placeOrderRequest is the body of POST /api/orders. Amount is the typed
// amount for AmountField ("input" by default, or "output"). A non-empty
// Price makes the price the independent field, anchored to the typed amount.
type placeOrderRequest struct {
	Kind        string       `json:"kind"`
	InputToken  tokenPayload `json:"input_token"`
	OutputToken tokenPayload `json:"output_token"`
	AmountField string       `json:"amount_field,omitempty"`
	Amount      string       `json:"amount"`
	Price       string       `json:"price,omitempty"`
	RateKind    string       `json:"rate_kind,omitempty"`
	SlippageBps *int64       `json:"slippage_bps,omitempty"`
}

// orderView is the wire form of a stored order. Amounts are rendered both
// at full decimal precision and at display precision.
type orderView struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	Status        string    `json:"status"`
	Owner         string    `json:"owner"`
	InputSymbol   string    `json:"input_symbol"`
	OutputSymbol  string    `json:"output_symbol"`
	InputAmount   string    `json:"input_amount"`
	OutputAmount  string    `json:"output_amount"`
	InputDisplay  string    `json:"input_display"`
	OutputDisplay string    `json:"output_display"`
	CreatedTx     string    `json:"created_tx"`
	CancelledTx   string    `json:"cancelled_tx,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func viewOrder(o domain.Order) orderView {
	v := orderView{
		ID:           o.ID,
		Kind:         string(o.Kind),
		Status:       string(o.Status),
		Owner:        o.Owner,
		InputSymbol:  o.InputToken.Symbol,
		OutputSymbol: o.OutputToken.Symbol,
		CreatedTx:    o.CreatedTxHash,
		CancelledTx:  o.CancelledTx,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
	if o.InputAmount != nil {
		v.InputAmount = amount.ToDecimal(o.InputAmount, o.InputToken.Decimals)
		v.InputDisplay = amount.ToSignificant(o.InputAmount, o.InputToken.Decimals, amount.DisplayDigits)
	}
	if o.OutputAmount != nil {
		v.OutputAmount = amount.ToDecimal(o.OutputAmount, o.OutputToken.Decimals)
		v.OutputDisplay = amount.ToSignificant(o.OutputAmount, o.OutputToken.Decimals, amount.DisplayDigits)
	}
	return v
}

func viewOrders(orders []domain.Order) []orderView {
	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, viewOrder(o))
	}
	return views
}

// listOrdersResponse wraps the list endpoints.
type listOrdersResponse struct {
	Orders []orderView `json:"orders"`
}

// PlaceOrder submits a new conditional order built from the request body.
// POST /api/orders
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	kind, ok := parseKind(req.Kind)
	if !ok {
		writeError(w, http.StatusBadRequest, "kind must be limit, stop_limit, or stop_loss")
		return
	}

	session, err := h.sessionFrom(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	order, err := h.orders.SubmitOrder(r.Context(), session, kind, nil)
	if err != nil {
		status, msg := statusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: place order failed",
				slog.String("error", err.Error()),
			)
		}
		writeError(w, status, msg)
		return
	}

	writeJSON(w, http.StatusCreated, viewOrder(order))
}

// sessionFrom builds a draft session from a submission request. The session
// starts at the configured default slippage; the request may override it.
func (h *OrderHandler) sessionFrom(req placeOrderRequest) (*draft.Session, error) {
	session := draft.NewSession()
	session.SetSlippage(h.defaultSlippageBps)
	if req.SlippageBps != nil {
		session.SetSlippage(*req.SlippageBps)
	}

	session.SelectToken(draft.SideInput, req.InputToken.toDomain())
	session.SelectToken(draft.SideOutput, req.OutputToken.toDomain())

	switch req.RateKind {
	case "", string(rate.Mul):
	case string(rate.Div):
		session.SetRateKind(rate.Div)
	default:
		return nil, errors.New("rate_kind must be mul or div")
	}

	field := draft.FieldInput
	switch req.AmountField {
	case "", string(draft.FieldInput):
	case string(draft.FieldOutput):
		field = draft.FieldOutput
	default:
		return nil, errors.New("amount_field must be input or output")
	}
	session.SetIndependentField(field, req.Amount)

	if req.Price != "" {
		session.SetIndependentField(draft.FieldPrice, req.Price)
	}
	return session, nil
}

func parseKind(s string) (domain.OrderKind, bool) {
	switch kind := domain.OrderKind(s); kind {
	case domain.OrderKindLimit, domain.OrderKindStopLimit, domain.OrderKindStopLoss:
		return kind, true
	default:
		return "", false
	}
}

// statusFor maps service-layer sentinels to HTTP responses.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "order not found"
	case errors.Is(err, domain.ErrAlreadyInFlight):
		return http.StatusConflict, "a matching request is already in flight"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "order is already in a terminal status"
	case errors.Is(err, domain.ErrMissingToken),
		errors.Is(err, domain.ErrIdenticalTokens),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrNoRoute),
		errors.Is(err, domain.ErrPriceBelowMarket):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, domain.ErrClientUnreachable):
		return http.StatusServiceUnavailable, "execution layer unreachable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// CancelOrder cancels a stored order by its id.
// DELETE /api/orders/{id}
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.orders.CancelOrder(r.Context(), id, nil)
	if err != nil {
		status, msg := statusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: cancel order failed",
				slog.String("order_id", id),
				slog.String("error", err.Error()),
			)
		}
		writeError(w, status, msg)
		return
	}

	writeJSON(w, http.StatusOK, viewOrder(order))
}

// ListOrders returns the owner's open orders, or the paginated full history
// when status=all is requested.
// GET /api/orders?status=open|all&limit=50&offset=0
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	var (
		orders []domain.Order
		err    error
	)
	switch status := r.URL.Query().Get("status"); status {
	case "", "open":
		orders, err = h.orders.ListOpen(r.Context())
	case "all":
		orders, err = h.orders.ListHistory(r.Context(), parseListOpts(r))
	default:
		writeError(w, http.StatusBadRequest, "status must be open or all")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list orders failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}

	writeJSON(w, http.StatusOK, listOrdersResponse{Orders: viewOrders(orders)})
}

// GetOrder returns a single stored order.
// GET /api/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		status, msg := statusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: get order failed",
				slog.String("order_id", id),
				slog.String("error", err.Error()),
			)
		}
		writeError(w, status, msg)
		return
	}

	writeJSON(w, http.StatusOK, viewOrder(order))
}
