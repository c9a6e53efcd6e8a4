package inventory

import (
	"context"
	"fmt"
	"testing"

	"github.com/ariefcatur/go-kiosk-orders/internal/history"
	"github.com/ariefcatur/go-kiosk-orders/internal/postgres/pgtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestPGStoreReconcile(t *testing.T) {
	db := pgtest.Start(t)
	ctx := context.Background()
	_, err := db.Exec(ctx, `INSERT INTO products(id, name, stock_level) VALUES ('P1','Water',10), ('P2','Chips',1)`)
	require.NoError(t, err)

	r := NewReconciler(&PGStore{DB: db}, PolicyPartial, nil)

	// P2 is requested by every order in reverse lock order to P1
	results := make([]Result, 25)
	var g errgroup.Group
	for i := range results {
		g.Go(func() error {
			res, err := r.Reconcile(ctx, fmt.Sprintf("order-%d", i), []LineItem{
				{ProductID: "P2", Quantity: 1},
				{ProductID: "P1", Quantity: 1},
			})
			results[i] = res
			return err
		})
	}
	require.NoError(t, g.Wait())

	taken := map[string]int{}
	for _, res := range results {
		for _, d := range res.Committed {
			taken[d.ProductID] += d.Quantity
		}
	}
	assert.Equal(t, 10, taken["P1"])
	assert.Equal(t, 1, taken["P2"])

	var p1, p2 int
	require.NoError(t, db.QueryRow(ctx, `SELECT stock_level FROM products WHERE id='P1'`).Scan(&p1))
	require.NoError(t, db.QueryRow(ctx, `SELECT stock_level FROM products WHERE id='P2'`).Scan(&p2))
	assert.Equal(t, 0, p1)
	assert.Equal(t, 0, p2)

	entries, err := (&history.PGReader{DB: db}).List(ctx, 500)
	require.NoError(t, err)
	assert.Len(t, entries, 11)

	// replay returns the stored result and writes nothing
	again, err := r.Reconcile(ctx, "order-0", []LineItem{{ProductID: "P1", Quantity: 1}})
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, results[0].Committed, again.Committed)
	entries, _ = (&history.PGReader{DB: db}).List(ctx, 500)
	assert.Len(t, entries, 11)
}

func TestPGStoreUnknownProduct(t *testing.T) {
	db := pgtest.Start(t)
	r := NewReconciler(&PGStore{DB: db}, PolicyAllOrNothing, nil)

	res, err := r.Reconcile(context.Background(), "order-x", []LineItem{{ProductID: "ghost", Quantity: 1}})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, res.Outcome())
	assert.Equal(t, ReasonUnknownProduct, res.Shortfalls[0].Reason)
}
