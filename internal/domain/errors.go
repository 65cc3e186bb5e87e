package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrClientUnreachable   = errors.New("execution client unreachable")
	ErrMissingContext      = errors.New("missing chain id, account, or signer")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrIdenticalTokens     = errors.New("identical input and output tokens")
	ErrMissingToken        = errors.New("missing token selection")
	ErrNoRoute             = errors.New("no market rate available")
	ErrPriceBelowMarket    = errors.New("price below market")
	ErrDivisionByZero      = errors.New("division by zero")
	ErrTransactionRejected = errors.New("transaction rejected")
	ErrAlreadyInFlight     = errors.New("submission already in flight")
	ErrInvalidTransition   = errors.New("invalid order status transition")
)
