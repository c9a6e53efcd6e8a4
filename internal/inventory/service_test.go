package inventory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"pgregory.net/rapid"
)

func seed() *MemoryStore {
	return NewMemoryStore(
		Product{ID: "P1", Name: "Water", StockLevel: 5},
		Product{ID: "P2", Name: "Chips", StockLevel: 1},
	)
}

func TestReconcilePartial(t *testing.T) {
	store := seed()
	r := NewReconciler(store, PolicyPartial, nil)

	res, err := r.Reconcile(context.Background(), "order-1", []LineItem{
		{ProductID: "P1", Quantity: 2},
		{ProductID: "P2", Quantity: 3},
	})
	require.NoError(t, err)

	assert.Equal(t, OutcomePartial, res.Outcome())
	require.Len(t, res.Committed, 1)
	assert.Equal(t, Decrement{ProductID: "P1", ProductName: "Water", Quantity: 2, StockLevel: 3}, res.Committed[0])
	assert.Equal(t, []Shortfall{{ProductID: "P2", Requested: 3, Available: 1, Reason: ReasonInsufficientStock}}, res.Shortfalls)

	lvl, _ := store.StockLevel("P1")
	assert.Equal(t, 3, lvl)
	lvl, _ = store.StockLevel("P2")
	assert.Equal(t, 1, lvl)

	entries, err := store.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Outbound", entries[0].Action)
	assert.Equal(t, "Water", entries[0].ProductName)
	assert.Equal(t, "Removed 2 units.", entries[0].Details)
}

func TestReconcileAllOrNothing(t *testing.T) {
	store := seed()
	r := NewReconciler(store, PolicyAllOrNothing, nil)

	res, err := r.Reconcile(context.Background(), "order-1", []LineItem{
		{ProductID: "P1", Quantity: 2},
		{ProductID: "P2", Quantity: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, res.Outcome())
	assert.Empty(t, res.Committed)
	assert.Equal(t, []string{"P2"}, res.ShortProductIDs())

	lvl, _ := store.StockLevel("P1")
	assert.Equal(t, 5, lvl)
	entries, _ := store.List(context.Background(), 10)
	assert.Empty(t, entries)
}

func TestReconcileUnknownProduct(t *testing.T) {
	r := NewReconciler(seed(), PolicyPartial, nil)

	res, err := r.Reconcile(context.Background(), "order-1", []LineItem{{ProductID: "ghost", Quantity: 1}})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, res.Outcome())
	assert.Equal(t, ReasonUnknownProduct, res.Shortfalls[0].Reason)
}

func TestReconcileRepeatedProductIsCumulative(t *testing.T) {
	store := seed()
	r := NewReconciler(store, PolicyPartial, nil)

	res, err := r.Reconcile(context.Background(), "order-1", []LineItem{
		{ProductID: "P1", Quantity: 3},
		{ProductID: "P1", Quantity: 3},
	})
	require.NoError(t, err)
	require.Len(t, res.Committed, 1)
	assert.Equal(t, Shortfall{ProductID: "P1", Requested: 3, Available: 2, Reason: ReasonInsufficientStock}, res.Shortfalls[0])

	lvl, _ := store.StockLevel("P1")
	assert.Equal(t, 2, lvl)
}

func TestReconcileReplay(t *testing.T) {
	store := seed()
	r := NewReconciler(store, PolicyPartial, nil)
	items := []LineItem{{ProductID: "P1", Quantity: 2}}

	first, err := r.Reconcile(context.Background(), "order-1", items)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := r.Reconcile(context.Background(), "order-1", items)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Committed, second.Committed)

	lvl, _ := store.StockLevel("P1")
	assert.Equal(t, 3, lvl)
	entries, _ := store.List(context.Background(), 10)
	assert.Len(t, entries, 1)
}

func TestReconcileCommitFailureLeavesNothing(t *testing.T) {
	store := seed()
	store.FailCommits(1)
	r := NewReconciler(store, PolicyPartial, nil)
	items := []LineItem{{ProductID: "P1", Quantity: 2}}

	_, err := r.Reconcile(context.Background(), "order-1", items)
	require.ErrorIs(t, err, ErrUnavailable)

	lvl, _ := store.StockLevel("P1")
	assert.Equal(t, 5, lvl)
	entries, _ := store.List(context.Background(), 10)
	assert.Empty(t, entries)

	res, err := r.Reconcile(context.Background(), "order-1", items)
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	lvl, _ = store.StockLevel("P1")
	assert.Equal(t, 3, lvl)
}

func TestReconcileRejectsInvalidLine(t *testing.T) {
	r := NewReconciler(seed(), PolicyPartial, nil)
	_, err := r.Reconcile(context.Background(), "order-1", []LineItem{{ProductID: "P1", Quantity: 0}})
	assert.ErrorIs(t, err, ErrInvalidLineItem)
}

func TestReconcileCanceledContext(t *testing.T) {
	r := NewReconciler(seed(), PolicyPartial, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Reconcile(ctx, "order-1", []LineItem{{ProductID: "P1", Quantity: 1}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrUnavailable))
}

func TestConcurrentReconcileNeverOversells(t *testing.T) {
	store := NewMemoryStore(Product{ID: "P1", Name: "Water", StockLevel: 10})
	r := NewReconciler(store, PolicyPartial, nil)

	results := make([]Result, 25)
	var g errgroup.Group
	for i := range results {
		g.Go(func() error {
			res, err := r.Reconcile(context.Background(), fmt.Sprintf("order-%d", i),
				[]LineItem{{ProductID: "P1", Quantity: 1}})
			results[i] = res
			return err
		})
	}
	require.NoError(t, g.Wait())

	committed := 0
	for _, res := range results {
		committed += len(res.Committed)
	}
	assert.Equal(t, 10, committed)
	lvl, _ := store.StockLevel("P1")
	assert.Equal(t, 0, lvl)
	entries, _ := store.List(context.Background(), 100)
	assert.Len(t, entries, 10)
}

func TestReconcileConservesStock(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		start := rapid.IntRange(0, 20).Draw(t, "start")
		store := NewMemoryStore(Product{ID: "P1", Name: "Water", StockLevel: start})
		r := NewReconciler(store, PolicyPartial, nil)

		qtys := rapid.SliceOfN(rapid.IntRange(1, 6), 1, 8).Draw(t, "qtys")
		removed := 0
		for i, q := range qtys {
			res, err := r.Reconcile(context.Background(), fmt.Sprintf("o-%d", i), []LineItem{{ProductID: "P1", Quantity: q}})
			if err != nil {
				t.Fatalf("reconcile: %v", err)
			}
			for _, d := range res.Committed {
				removed += d.Quantity
			}
		}

		lvl, _ := store.StockLevel("P1")
		if lvl < 0 {
			t.Fatalf("stock went negative: %d", lvl)
		}
		if lvl != start-removed {
			t.Fatalf("stock %d, want %d", lvl, start-removed)
		}
		entries, _ := store.List(context.Background(), 500)
		total := 0
		for _, e := range entries {
			var n int
			fmt.Sscanf(e.Details, "Removed %d units.", &n)
			total += n
		}
		if total != removed {
			t.Fatalf("history records %d removed, want %d", total, removed)
		}
	})
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyPartial, p)

	p, err = ParsePolicy("All-Or-Nothing")
	require.NoError(t, err)
	assert.Equal(t, PolicyAllOrNothing, p)

	_, err = ParsePolicy("sometimes")
	assert.Error(t, err)
}
