// Package cart holds each customer's pending selections before checkout.
// Mutations are last-write-wins per user; there is no cross-user contention.
package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = errors.New("cart not found")
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrItemNotFound    = errors.New("item not in cart")
	ErrInvalidItem     = errors.New("invalid cart item")
)

type Item struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Dosage    string          `json:"dosage,omitempty"`
	ImageURL  string          `json:"image_url,omitempty"`
}

func (it Item) Validate() error {
	if it.ProductID == "" {
		return fmt.Errorf("%w: missing product id", ErrInvalidItem)
	}
	if it.Price.IsNegative() {
		return fmt.Errorf("%w: negative price for %s", ErrInvalidItem, it.ProductID)
	}
	if it.Quantity < 1 {
		return ErrInvalidQuantity
	}
	return nil
}

type Cart struct {
	UserID string `json:"user_id"`
	Items  []Item `json:"items"`
	// LastClearedOrder is the order whose finalization last emptied the cart.
	LastClearedOrder string    `json:"last_cleared_order,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (c Cart) Empty() bool { return len(c.Items) == 0 }

// Snapshot returns a copy of the items that later cart mutations cannot reach.
func (c Cart) Snapshot() []Item {
	out := make([]Item, len(c.Items))
	copy(out, c.Items)
	return out
}

type Store interface {
	Get(ctx context.Context, userID string) (Cart, error)
	// Open returns the user's cart, creating an empty one if needed.
	Open(ctx context.Context, userID string) (Cart, error)
	AddItem(ctx context.Context, userID string, item Item) (Cart, error)
	RemoveItem(ctx context.Context, userID, productID string) (Cart, error)
	SetQuantity(ctx context.Context, userID, productID string, qty int) (Cart, error)
	Clear(ctx context.Context, userID string) error
	// ClearForOrder empties the cart on behalf of a finalized order. It
	// reports false, and changes nothing, if that order already cleared it.
	ClearForOrder(ctx context.Context, userID, orderID string) (bool, error)
}

// apply helpers shared by the stores; they mutate c in place. A cart holds
// one line per product: every helper keys on ProductID alone.

func addItem(c *Cart, item Item) error {
	if err := item.Validate(); err != nil {
		return err
	}
	for i := range c.Items {
		if c.Items[i].ProductID == item.ProductID {
			item.Quantity += c.Items[i].Quantity
			c.Items[i] = item
			return nil
		}
	}
	c.Items = append(c.Items, item)
	return nil
}

// removeItem drops every line of the product.
func removeItem(c *Cart, productID string) error {
	kept := c.Items[:0]
	for _, it := range c.Items {
		if it.ProductID != productID {
			kept = append(kept, it)
		}
	}
	if len(kept) == len(c.Items) {
		return ErrItemNotFound
	}
	c.Items = kept
	return nil
}

// setQuantity also folds away duplicate lines of the product left by older
// writers.
func setQuantity(c *Cart, productID string, qty int) error {
	if qty < 1 {
		return ErrInvalidQuantity
	}
	found := false
	kept := c.Items[:0]
	for _, it := range c.Items {
		if it.ProductID == productID {
			if found {
				continue
			}
			found = true
			it.Quantity = qty
		}
		kept = append(kept, it)
	}
	if !found {
		return ErrItemNotFound
	}
	c.Items = kept
	return nil
}
