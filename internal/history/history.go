// Package history is the append-only audit trail of inventory-affecting
// actions. Entries are written by the inventory reconciler inside the same
// unit of work as the stock change they describe.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const ActionOutbound = "Outbound"

type Entry struct {
	ID          string    `json:"id"`
	Action      string    `json:"action"`
	ProductName string    `json:"product_name"`
	Details     string    `json:"details"`
	Timestamp   time.Time `json:"timestamp"`
}

// Outbound describes one committed stock decrement.
func Outbound(productName string, qty int, at time.Time) Entry {
	return Entry{
		ID:          uuid.NewString(),
		Action:      ActionOutbound,
		ProductName: productName,
		Details:     fmt.Sprintf("Removed %d units.", qty),
		Timestamp:   at.UTC(),
	}
}

// Reader lists entries newest first.
type Reader interface {
	List(ctx context.Context, limit int) ([]Entry, error)
}
