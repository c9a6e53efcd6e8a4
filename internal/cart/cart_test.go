package cart

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func water(qty int) Item {
	return Item{ProductID: "P1", Name: "Water", Price: decimal.NewFromInt(100), Quantity: qty}
}

func TestGetMissingCart(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.AddItem(context.Background(), "u1", water(1))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddMergesSameProduct(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.Open(ctx, "u1")
	require.NoError(t, err)

	_, err = s.AddItem(ctx, "u1", water(1))
	require.NoError(t, err)
	c, err := s.AddItem(ctx, "u1", water(2))
	require.NoError(t, err)

	require.Len(t, c.Items, 1)
	assert.Equal(t, 3, c.Items[0].Quantity)

	// one line per product; the latest add carries the details
	c, err = s.AddItem(ctx, "u1", Item{ProductID: "P1", Name: "Water", Price: decimal.NewFromInt(100), Quantity: 1, Dosage: "1L"})
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 4, c.Items[0].Quantity)
	assert.Equal(t, "1L", c.Items[0].Dosage)
}

func TestLegacyDuplicateLines(t *testing.T) {
	dup := func() *Cart {
		return &Cart{UserID: "u1", Items: []Item{
			{ProductID: "P1", Quantity: 1, Dosage: "500ml"},
			{ProductID: "P2", Quantity: 1},
			{ProductID: "P1", Quantity: 2, Dosage: "1L"},
		}}
	}

	c := dup()
	require.NoError(t, removeItem(c, "P1"))
	require.Len(t, c.Items, 1)
	assert.Equal(t, "P2", c.Items[0].ProductID)

	c = dup()
	require.NoError(t, setQuantity(c, "P1", 5))
	require.Len(t, c.Items, 2)
	assert.Equal(t, Item{ProductID: "P1", Quantity: 5, Dosage: "500ml"}, c.Items[0])

	assert.ErrorIs(t, removeItem(dup(), "P9"), ErrItemNotFound)
}

func TestSetQuantityAndRemove(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, _ = s.Open(ctx, "u1")
	_, _ = s.AddItem(ctx, "u1", water(1))

	_, err := s.SetQuantity(ctx, "u1", "P1", 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	c, err := s.SetQuantity(ctx, "u1", "P1", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, c.Items[0].Quantity)

	_, err = s.SetQuantity(ctx, "u1", "nope", 1)
	assert.ErrorIs(t, err, ErrItemNotFound)

	c, err = s.RemoveItem(ctx, "u1", "P1")
	require.NoError(t, err)
	assert.True(t, c.Empty())
}

func TestSnapshotIsDetached(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, _ = s.Open(ctx, "u1")
	c, _ := s.AddItem(ctx, "u1", water(2))

	snap := c.Snapshot()
	_, err := s.SetQuantity(ctx, "u1", "P1", 9)
	require.NoError(t, err)

	assert.Equal(t, 2, snap[0].Quantity)
}

func TestClearForOrderOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, _ = s.Open(ctx, "u1")
	_, _ = s.AddItem(ctx, "u1", water(2))

	cleared, err := s.ClearForOrder(ctx, "u1", "order-1")
	require.NoError(t, err)
	assert.True(t, cleared)

	// customer starts a new cart before the first order's finalization reruns
	_, _ = s.AddItem(ctx, "u1", water(1))
	cleared, err = s.ClearForOrder(ctx, "u1", "order-1")
	require.NoError(t, err)
	assert.False(t, cleared)

	c, _ := s.Get(ctx, "u1")
	assert.Len(t, c.Items, 1)
	assert.Equal(t, "order-1", c.LastClearedOrder)
}

func TestDraftCommit(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, _ = s.Open(ctx, "u1")
	_, _ = s.AddItem(ctx, "u1", water(2))
	c, _ := s.AddItem(ctx, "u1", Item{ProductID: "P2", Name: "Chips", Price: decimal.NewFromInt(50), Quantity: 1})

	d := NewDraft(c)
	require.NoError(t, d.Increase("P1"))
	require.NoError(t, d.Decrease("P2"))
	assert.Equal(t, 1, d.Items()[1].Quantity, "decrease floors at one")

	// nothing durable yet
	stored, _ := s.Get(ctx, "u1")
	assert.Equal(t, 2, stored.Items[0].Quantity)

	require.NoError(t, d.Remove("P2"))
	assert.ErrorIs(t, d.Set("P1", 0), ErrInvalidQuantity)

	stored, err := d.Commit(ctx, s)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, 3, stored.Items[0].Quantity)
}
