package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyip/limitbot/internal/domain"
)

// HistoryArchiveStore is the slice of the order history the archiver reads.
type HistoryArchiveStore interface {
	// ListTerminalBefore returns cancelled and executed records last updated
	// strictly before the cutoff.
	ListTerminalBefore(ctx context.Context, before time.Time) ([]domain.Order, error)
}

// Archiver implements domain.Archiver by exporting terminal-status order
// records as JSONL to object storage. Records are never deleted from the
// primary store; history stays append-only and the export is purely an
// audit copy.
type Archiver struct {
	writer  domain.BlobWriter
	history HistoryArchiveStore
}

// NewArchiver creates an Archiver.
func NewArchiver(writer domain.BlobWriter, history HistoryArchiveStore) *Archiver {
	return &Archiver{writer: writer, history: history}
}

// archivedOrder is the export schema. Amounts are full-precision integer
// strings.
type archivedOrder struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	Owner         string    `json:"owner"`
	InputSymbol   string    `json:"input_symbol"`
	InputAddress  string    `json:"input_address"`
	OutputSymbol  string    `json:"output_symbol"`
	OutputAddress string    `json:"output_address"`
	InputAmount   string    `json:"input_amount"`
	OutputAmount  string    `json:"output_amount"`
	Status        string    `json:"status"`
	CreatedTxHash string    `json:"created_tx_hash"`
	CancelledTx   string    `json:"cancelled_tx,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ArchiveOrders exports all terminal records before the cutoff to
// archive/orders/YYYY-MM.jsonl and returns the number exported.
func (a *Archiver) ArchiveOrders(ctx context.Context, before time.Time) (int64, error) {
	orders, err := a.history.ListTerminalBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive orders query: %w", err)
	}
	if len(orders) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, o := range orders {
		rec := archivedOrder{
			ID:            o.ID,
			Kind:          string(o.Kind),
			Owner:         o.Owner,
			InputSymbol:   o.InputToken.Symbol,
			InputAddress:  o.InputToken.Address.Hex(),
			OutputSymbol:  o.OutputToken.Symbol,
			OutputAddress: o.OutputToken.Address.Hex(),
			InputAmount:   o.InputAmount.String(),
			OutputAmount:  o.OutputAmount.String(),
			Status:        string(o.Status),
			CreatedTxHash: o.CreatedTxHash,
			CancelledTx:   o.CancelledTx,
			CreatedAt:     o.CreatedAt,
			UpdatedAt:     o.UpdatedAt,
		}
		if err := enc.Encode(rec); err != nil {
			return 0, fmt.Errorf("s3blob: archive orders marshal %s: %w", o.ID, err)
		}
	}

	path := fmt.Sprintf("archive/orders/%s.jsonl", before.UTC().Format("2006-01"))
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf.Bytes()), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive orders upload: %w", err)
	}

	return int64(len(orders)), nil
}

var _ domain.Archiver = (*Archiver)(nil)
