package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore keeps one row per user with the items as a JSONB document.
type PGStore struct{ DB *pgxpool.Pool }

func (s *PGStore) Get(ctx context.Context, userID string) (Cart, error) {
	return scanCart(s.DB.QueryRow(ctx, `
		SELECT user_id, items, COALESCE(last_cleared_order, ''), updated_at
		FROM carts WHERE user_id=$1`, userID))
}

func (s *PGStore) Open(ctx context.Context, userID string) (Cart, error) {
	if _, err := s.DB.Exec(ctx, `
		INSERT INTO carts(user_id, items, updated_at) VALUES ($1, '[]'::jsonb, now())
		ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
		return Cart{}, err
	}
	return s.Get(ctx, userID)
}

func (s *PGStore) AddItem(ctx context.Context, userID string, item Item) (Cart, error) {
	return s.mutate(ctx, userID, func(c *Cart) error { return addItem(c, item) })
}

func (s *PGStore) RemoveItem(ctx context.Context, userID, productID string) (Cart, error) {
	return s.mutate(ctx, userID, func(c *Cart) error { return removeItem(c, productID) })
}

func (s *PGStore) SetQuantity(ctx context.Context, userID, productID string, qty int) (Cart, error) {
	return s.mutate(ctx, userID, func(c *Cart) error { return setQuantity(c, productID, qty) })
}

func (s *PGStore) Clear(ctx context.Context, userID string) error {
	ct, err := s.DB.Exec(ctx, `UPDATE carts SET items='[]'::jsonb, updated_at=now() WHERE user_id=$1`, userID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) ClearForOrder(ctx context.Context, userID, orderID string) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE carts SET items='[]'::jsonb, last_cleared_order=$2, updated_at=now()
		WHERE user_id=$1 AND last_cleared_order IS DISTINCT FROM $2`, userID, orderID)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() == 1 {
		return true, nil
	}
	// no row touched: either already cleared for this order or no cart at all
	var exists bool
	if err := s.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM carts WHERE user_id=$1)`, userID).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

// mutate: lock row -> apply -> write back, in one tx.
func (s *PGStore) mutate(ctx context.Context, userID string, fn func(*Cart) error) (Cart, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Cart{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	c, err := scanCart(tx.QueryRow(ctx, `
		SELECT user_id, items, COALESCE(last_cleared_order, ''), updated_at
		FROM carts WHERE user_id=$1 FOR UPDATE`, userID))
	if err != nil {
		return Cart{}, err
	}
	if err := fn(&c); err != nil {
		return Cart{}, err
	}
	b, err := json.Marshal(c.Items)
	if err != nil {
		return Cart{}, err
	}
	if err := tx.QueryRow(ctx, `
		UPDATE carts SET items=$2::jsonb, updated_at=now() WHERE user_id=$1
		RETURNING updated_at`, userID, string(b)).Scan(&c.UpdatedAt); err != nil {
		return Cart{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Cart{}, err
	}
	return c, nil
}

func scanCart(row pgx.Row) (Cart, error) {
	var (
		c   Cart
		raw []byte
	)
	err := row.Scan(&c.UserID, &raw, &c.LastClearedOrder, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Cart{}, ErrNotFound
	}
	if err != nil {
		return Cart{}, err
	}
	if err := json.Unmarshal(raw, &c.Items); err != nil {
		return Cart{}, fmt.Errorf("decode cart %s: %w", c.UserID, err)
	}
	if c.Items == nil {
		c.Items = []Item{}
	}
	return c, nil
}
