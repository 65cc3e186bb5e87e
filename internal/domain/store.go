package domain

import (
	"context"
	"io"
	"math/big"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OrderHistory persists dispatched orders. Records are append-only: Patch may
// flip the status and stamp the cancellation hash, nothing else, and only for
// a record that already exists.
type OrderHistory interface {
	Append(ctx context.Context, o Order) error
	Patch(ctx context.Context, id string, p OrderPatch) error
	Find(ctx context.Context, id string) (Order, error)
	ListOpen(ctx context.Context, owner string) ([]Order, error)
	ListByOwner(ctx context.Context, owner string, opts ListOpts) ([]Order, error)
	ListTerminalBefore(ctx context.Context, before time.Time) ([]Order, error)
}

// PriceSource supplies the current market rate for a pair, expressed as
// output token per input token in human-decimal units. Implementations
// return ErrNoRoute when no rate is known for the pair.
type PriceSource interface {
	CurrentMarketRate(ctx context.Context, input, output Token) (*big.Rat, error)
}

// RateCache stores the latest observed market rate per pair.
type RateCache interface {
	SetRate(ctx context.Context, base, quote string, r *big.Rat, ts time.Time) error
	GetRate(ctx context.Context, base, quote string) (*big.Rat, time.Time, error)
}

// BlobWriter uploads a blob to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver exports terminal-status order records to object storage.
type Archiver interface {
	ArchiveOrders(ctx context.Context, before time.Time) (int64, error)
}
