package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyip/limitbot/internal/domain"
)

// HistoryStore implements domain.OrderHistory using PostgreSQL. Records are
// append-only; Patch can only flip the status forward and stamp the
// cancellation hash.
type HistoryStore struct {
	pool *pgxpool.Pool
}

// NewHistoryStore creates a HistoryStore backed by the given pool.
func NewHistoryStore(pool *pgxpool.Pool) *HistoryStore {
	return &HistoryStore{pool: pool}
}

// Append inserts a new order record.
func (s *HistoryStore) Append(ctx context.Context, o domain.Order) error {
	const query = `
		INSERT INTO orders (
			id, kind, owner,
			input_address, input_decimals, input_symbol, input_native,
			output_address, output_decimals, output_symbol, output_native,
			input_amount, output_amount,
			handler, witness, data, status,
			created_tx_hash, cancelled_tx, created_at, updated_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7,
			$8, $9, $10, $11,
			$12, $13,
			$14, $15, $16, $17,
			$18, $19, $20, $21
		)`

	var cancelledTx *string
	if o.CancelledTx != "" {
		cancelledTx = &o.CancelledTx
	}

	_, err := s.pool.Exec(ctx, query,
		o.ID, string(o.Kind), o.Owner,
		o.InputToken.Address.Hex(), o.InputToken.Decimals, o.InputToken.Symbol, o.InputToken.Native,
		o.OutputToken.Address.Hex(), o.OutputToken.Decimals, o.OutputToken.Symbol, o.OutputToken.Native,
		o.InputAmount.String(), o.OutputAmount.String(),
		o.Handler, o.Witness, o.Data, string(o.Status),
		o.CreatedTxHash, cancelledTx, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append order %s: %w", o.ID, err)
	}
	return nil
}

// Patch applies a status/cancellation update to an existing record. The
// record must already exist and its status may only move forward: a patch
// back to open, or away from a terminal status, fails with
// domain.ErrInvalidTransition. The update itself excludes terminal rows so
// a racing patch cannot overwrite a transition that landed after the read.
func (s *HistoryStore) Patch(ctx context.Context, id string, p domain.OrderPatch) error {
	if p.Status == nil && p.CancelledTx == nil {
		return nil
	}

	current, err := s.Find(ctx, id)
	if err != nil {
		return err
	}
	if p.Status != nil {
		if current.Status.Terminal() || *p.Status == domain.OrderStatusOpen {
			return fmt.Errorf("postgres: patch order %s from %s to %s: %w",
				id, current.Status, *p.Status, domain.ErrInvalidTransition)
		}
	}

	query, args := buildPatchQuery(id, p)
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("postgres: patch order %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		// The row existed at Find time and rows are never deleted, so zero
		// rows means another patcher won the race to a terminal status.
		return fmt.Errorf("postgres: patch order %s: %w", id, domain.ErrInvalidTransition)
	}
	return nil
}

// buildPatchQuery assembles the guarded UPDATE for Patch. The WHERE clause
// refuses rows already in a terminal status.
func buildPatchQuery(id string, p domain.OrderPatch) (string, []any) {
	query := `UPDATE orders SET updated_at = NOW()`
	args := []any{}
	argIdx := 1
	if p.Status != nil {
		query += fmt.Sprintf(", status = $%d", argIdx)
		args = append(args, string(*p.Status))
		argIdx++
	}
	if p.CancelledTx != nil {
		query += fmt.Sprintf(", cancelled_tx = $%d", argIdx)
		args = append(args, *p.CancelledTx)
		argIdx++
	}
	query += fmt.Sprintf(" WHERE id = $%d AND status NOT IN ('%s', '%s')",
		argIdx, domain.OrderStatusCancelled, domain.OrderStatusExecuted)
	args = append(args, id)
	return query, args
}

const orderSelectCols = `id, kind, owner,
	input_address, input_decimals, input_symbol, input_native,
	output_address, output_decimals, output_symbol, output_native,
	input_amount::text, output_amount::text,
	handler, witness, data, status,
	created_tx_hash, cancelled_tx, created_at, updated_at`

func scanOrder(scanner interface{ Scan(dest ...any) error }) (domain.Order, error) {
	var o domain.Order
	var kind, status string
	var inAddr, outAddr string
	var inAmount, outAmount string
	var cancelledTx *string

	err := scanner.Scan(
		&o.ID, &kind, &o.Owner,
		&inAddr, &o.InputToken.Decimals, &o.InputToken.Symbol, &o.InputToken.Native,
		&outAddr, &o.OutputToken.Decimals, &o.OutputToken.Symbol, &o.OutputToken.Native,
		&inAmount, &outAmount,
		&o.Handler, &o.Witness, &o.Data, &status,
		&o.CreatedTxHash, &cancelledTx, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	o.Kind = domain.OrderKind(kind)
	o.Status = domain.OrderStatus(status)
	o.InputToken.Address = common.HexToAddress(inAddr)
	o.OutputToken.Address = common.HexToAddress(outAddr)
	o.InputAmount, _ = new(big.Int).SetString(inAmount, 10)
	o.OutputAmount, _ = new(big.Int).SetString(outAmount, 10)
	if cancelledTx != nil {
		o.CancelledTx = *cancelledTx
	}
	return o, nil
}

func scanOrderRows(rows pgx.Rows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// Find retrieves a single record by id.
func (s *HistoryStore) Find(ctx context.Context, id string) (domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE id = $1`, id)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: find order %s: %w", id, err)
	}
	return o, nil
}

// ListOpen returns the owner's orders still in open status, newest first.
func (s *HistoryStore) ListOpen(ctx context.Context, owner string) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderSelectCols+` FROM orders
		 WHERE owner = $1 AND status = 'open'
		 ORDER BY created_at DESC`, owner)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open orders: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open orders: %w", err)
	}
	return orders, nil
}

// ListByOwner returns the owner's full history with pagination.
func (s *HistoryStore) ListByOwner(ctx context.Context, owner string, opts domain.ListOpts) ([]domain.Order, error) {
	query := `SELECT ` + orderSelectCols + ` FROM orders WHERE owner = $1`
	args := []any{owner}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders by owner: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan orders by owner: %w", err)
	}
	return orders, nil
}

// ListTerminalBefore returns cancelled and executed records last updated
// strictly before the cutoff, for archival.
func (s *HistoryStore) ListTerminalBefore(ctx context.Context, before time.Time) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderSelectCols+` FROM orders
		 WHERE status IN ('cancelled', 'executed') AND updated_at < $1
		 ORDER BY updated_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list terminal orders: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan terminal orders: %w", err)
	}
	return orders, nil
}

var _ domain.OrderHistory = (*HistoryStore)(nil)
