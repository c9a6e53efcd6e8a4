package cart

import (
	"context"
	"errors"
)

// Draft holds quantity changes the customer made on screen but has not yet
// saved. Checkout never reads a Draft, only the Store.
type Draft struct {
	userID  string
	items   []Item
	removed map[string]bool
}

func NewDraft(c Cart) *Draft {
	return &Draft{userID: c.UserID, items: c.Snapshot(), removed: map[string]bool{}}
}

func (d *Draft) Items() []Item {
	out := make([]Item, len(d.items))
	copy(out, d.items)
	return out
}

func (d *Draft) Increase(productID string) error {
	return d.update(productID, func(it *Item) { it.Quantity++ })
}

// Decrease never drops below one; use Remove to take an item out.
func (d *Draft) Decrease(productID string) error {
	return d.update(productID, func(it *Item) {
		if it.Quantity > 1 {
			it.Quantity--
		}
	})
}

func (d *Draft) Set(productID string, qty int) error {
	if qty < 1 {
		return ErrInvalidQuantity
	}
	return d.update(productID, func(it *Item) { it.Quantity = qty })
}

func (d *Draft) Remove(productID string) error {
	for i := range d.items {
		if d.items[i].ProductID == productID {
			d.items = append(d.items[:i], d.items[i+1:]...)
			d.removed[productID] = true
			return nil
		}
	}
	return ErrItemNotFound
}

func (d *Draft) update(productID string, fn func(*Item)) error {
	for i := range d.items {
		if d.items[i].ProductID == productID {
			fn(&d.items[i])
			return nil
		}
	}
	return ErrItemNotFound
}

// Commit writes the draft durably. Items removed from the stored cart in the
// meantime are skipped.
func (d *Draft) Commit(ctx context.Context, s Store) (Cart, error) {
	for id := range d.removed {
		if _, err := s.RemoveItem(ctx, d.userID, id); err != nil && !errors.Is(err, ErrItemNotFound) {
			return Cart{}, err
		}
	}
	for _, it := range d.items {
		_, err := s.SetQuantity(ctx, d.userID, it.ProductID, it.Quantity)
		if err != nil && !errors.Is(err, ErrItemNotFound) {
			return Cart{}, err
		}
	}
	d.removed = map[string]bool{}
	return s.Get(ctx, d.userID)
}
