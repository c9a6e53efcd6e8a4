package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-kiosk-orders/internal/history"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PGStore struct{ DB *pgxpool.Pool }

// InTx: begin -> fn -> commit. Any error from fn rolls back via defer.
func (s *PGStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type pgTx struct{ tx pgx.Tx }

func (t *pgTx) Lookup(ctx context.Context, orderID string) (Result, bool, error) {
	// one reconciliation per order at a time; released at commit/rollback
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, orderID); err != nil {
		return Result{}, false, err
	}
	var raw []byte
	err := t.tx.QueryRow(ctx, `SELECT result FROM reconciliations WHERE order_id=$1`, orderID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, err
	}
	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return Result{}, false, fmt.Errorf("decode reconciliation %s: %w", orderID, err)
	}
	return res, true, nil
}

// LockProducts takes row locks in id order so two overlapping orders never
// wait on each other in opposite directions.
func (t *pgTx) LockProducts(ctx context.Context, ids []string) (map[string]Product, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, name, stock_level FROM products
		WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]Product, len(ids))
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.StockLevel); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (t *pgTx) SetStockLevel(ctx context.Context, productID string, level int) error {
	ct, err := t.tx.Exec(ctx, `UPDATE products SET stock_level=$2, updated_at=now() WHERE id=$1`, productID, level)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("product %s vanished during reconciliation", productID)
	}
	return nil
}

func (t *pgTx) AppendHistory(ctx context.Context, e history.Entry) error {
	return history.Append(ctx, t.tx, e)
}

func (t *pgTx) Record(ctx context.Context, res Result) error {
	b, err := json.Marshal(res)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO reconciliations(order_id, result, reconciled_at)
		VALUES ($1, $2::jsonb, $3)`, res.OrderID, string(b), res.ReconciledAt)
	return err
}
