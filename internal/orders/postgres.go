package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PGRepository stores orders in the transactions table and their audit trail
// in order_audit. Money columns are NUMERIC and travel as text.
type PGRepository struct{ DB *pgxpool.Pool }

const selectOrder = `
	SELECT id, user_id, payment_method, items,
	       subtotal::text, discount::text, tax::text, delivery_fee::text, total::text,
	       checkout_status, COALESCE(payment_session_id, ''), shortfalls,
	       needs_attention, COALESCE(last_error, ''), created_at, updated_at
	FROM transactions`

func (r *PGRepository) Insert(ctx context.Context, o Order, created Change) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return err
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO transactions(id, user_id, payment_method, items,
			subtotal, discount, tax, delivery_fee, total,
			checkout_status, payment_session_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4::jsonb,
			$5::numeric, $6::numeric, $7::numeric, $8::numeric, $9::numeric,
			$10, NULLIF($11, ''), $12, $12)`,
		o.ID, o.UserID, string(o.PaymentMethod), string(items),
		o.Totals.Subtotal.String(), o.Totals.Discount.String(), o.Totals.Tax.String(),
		o.Totals.DeliveryFee.String(), o.Totals.Total.String(),
		string(o.Status), o.PaymentSessionID, o.CreatedAt,
	); err != nil {
		return err
	}
	if err := insertAudit(ctx, tx, created); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PGRepository) Get(ctx context.Context, id string) (Order, error) {
	return scanOrder(r.DB.QueryRow(ctx, selectOrder+` WHERE id=$1`, id))
}

func (r *PGRepository) List(ctx context.Context, status Status, limit int) ([]Order, error) {
	rows, err := r.DB.Query(ctx, selectOrder+`
		WHERE ($1::text = '' OR checkout_status = $1::text)
		ORDER BY created_at DESC, id DESC LIMIT $2`, string(status), clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// UpdateStatus is a compare-and-swap on checkout_status.
func (r *PGRepository) UpdateStatus(ctx context.Context, ch Change) (Order, error) {
	var short any
	if len(ch.Shortfalls) > 0 {
		b, err := json.Marshal(ch.Shortfalls)
		if err != nil {
			return Order{}, err
		}
		short = string(b)
	}
	var lastErr any
	if ch.To == StatusFailed {
		lastErr = ch.Reason
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `
		UPDATE transactions
		SET checkout_status=$3, updated_at=$4, needs_attention=false,
		    shortfalls=COALESCE($5::jsonb, shortfalls),
		    last_error=COALESCE($6::text, last_error)
		WHERE id=$1 AND checkout_status=$2`,
		ch.OrderID, string(ch.From), string(ch.To), ch.At, short, lastErr)
	if err != nil {
		return Order{}, err
	}
	if ct.RowsAffected() != 1 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM transactions WHERE id=$1)`, ch.OrderID).Scan(&exists); err != nil {
			return Order{}, err
		}
		if !exists {
			return Order{}, ErrNotFound
		}
		return Order{}, ErrConflict
	}
	if err := insertAudit(ctx, tx, ch); err != nil {
		return Order{}, err
	}
	o, err := scanOrder(tx.QueryRow(ctx, selectOrder+` WHERE id=$1`, ch.OrderID))
	if err != nil {
		return Order{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, err
	}
	return o, nil
}

func (r *PGRepository) FlagAttention(ctx context.Context, id, reason string, at time.Time) (Order, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE transactions SET needs_attention=true, last_error=$2, updated_at=$3
		WHERE id=$1`, id, reason, at)
	if err != nil {
		return Order{}, err
	}
	if ct.RowsAffected() == 0 {
		return Order{}, ErrNotFound
	}
	return r.Get(ctx, id)
}

func (r *PGRepository) Audit(ctx context.Context, id string) ([]Change, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT order_id, COALESCE(from_status, ''), to_status, COALESCE(reason, ''), at
		FROM order_audit WHERE order_id=$1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Change{}
	for rows.Next() {
		var (
			c        Change
			from, to string
		)
		if err := rows.Scan(&c.OrderID, &from, &to, &c.Reason, &c.At); err != nil {
			return nil, err
		}
		c.From, c.To = Status(from), Status(to)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

func insertAudit(ctx context.Context, tx pgx.Tx, ch Change) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO order_audit(order_id, from_status, to_status, reason, at)
		VALUES ($1, NULLIF($2, ''), $3, NULLIF($4, ''), $5)`,
		ch.OrderID, string(ch.From), string(ch.To), ch.Reason, ch.At)
	return err
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o                          Order
		method, status             string
		items, short               []byte
		sub, disc, tax, fee, total string
	)
	err := row.Scan(&o.ID, &o.UserID, &method, &items,
		&sub, &disc, &tax, &fee, &total,
		&status, &o.PaymentSessionID, &short,
		&o.NeedsAttention, &o.LastError, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	o.PaymentMethod, o.Status = PaymentMethod(method), Status(status)

	if err := json.Unmarshal(items, &o.Items); err != nil {
		return Order{}, fmt.Errorf("decode items of %s: %w", o.ID, err)
	}
	if len(short) > 0 {
		if err := json.Unmarshal(short, &o.Shortfalls); err != nil {
			return Order{}, fmt.Errorf("decode shortfalls of %s: %w", o.ID, err)
		}
	}
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&o.Totals.Subtotal, sub}, {&o.Totals.Discount, disc}, {&o.Totals.Tax, tax},
		{&o.Totals.DeliveryFee, fee}, {&o.Totals.Total, total},
	} {
		d, err := decimal.NewFromString(f.src)
		if err != nil {
			return Order{}, fmt.Errorf("decode totals of %s: %w", o.ID, err)
		}
		*f.dst = d
	}
	return o, nil
}
