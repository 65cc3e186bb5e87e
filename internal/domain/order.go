package domain

import (
	"math/big"
	"time"
)

// OrderKind selects the on-chain handler variant that executes the order.
type OrderKind string

const (
	OrderKindLimit     OrderKind = "limit"
	OrderKindStopLimit OrderKind = "stop_limit"
	OrderKindStopLoss  OrderKind = "stop_loss"
)

// OrderStatus tracks the lifecycle of a submitted order. Transitions are
// one-directional: an order leaves Open for Cancelled or Executed and never
// returns.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusSubmitted OrderStatus = "submitted"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusExecuted  OrderStatus = "executed"
)

// Terminal reports whether the status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCancelled || s == OrderStatusExecuted
}

// Order is a locally persisted record of a dispatched conditional swap order.
// It is created on successful transaction dispatch, not on confirmation, and
// is never deleted; only its status may change afterwards.
type Order struct {
	ID            string // witness address for stop variants, generated otherwise
	Kind          OrderKind
	Owner         string
	InputToken    Token
	OutputToken   Token
	InputAmount   *big.Int
	OutputAmount  *big.Int // min return for limit orders, max output for stop variants
	Handler       string   // on-chain handler/module contract
	Witness       string
	Data          []byte // handler-specific submission payload
	Status        OrderStatus
	CreatedTxHash string
	CancelledTx   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ExistsOnChain reports whether the record carries every identifying field a
// handler needs to locate the order without a storage probe.
func (o Order) ExistsOnChain() bool {
	return o.Handler != "" &&
		!o.InputToken.IsZero() &&
		o.Owner != "" &&
		o.Witness != "" &&
		len(o.Data) > 0
}

// OrderPatch carries the single-field updates the history store accepts.
// Nil fields are left untouched.
type OrderPatch struct {
	Status      *OrderStatus
	CancelledTx *string
}
