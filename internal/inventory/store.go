package inventory

import (
	"context"

	"github.com/ariefcatur/go-kiosk-orders/internal/history"
)

type Product struct {
	ID         string
	Name       string
	StockLevel int
}

// Tx is one atomic unit of work against the inventory. Nothing staged through
// a Tx is visible to others until Store.InTx returns nil.
type Tx interface {
	// Lookup returns the committed result of an earlier reconciliation for
	// the order. It also serializes concurrent reconciliations of one order.
	Lookup(ctx context.Context, orderID string) (Result, bool, error)
	// LockProducts reads the named products under an exclusive lock held
	// until the unit of work ends. Unknown ids are absent from the map.
	LockProducts(ctx context.Context, ids []string) (map[string]Product, error)
	SetStockLevel(ctx context.Context, productID string, level int) error
	AppendHistory(ctx context.Context, e history.Entry) error
	Record(ctx context.Context, res Result) error
}

// Store runs fn in a single transaction: committed if fn returns nil, rolled
// back otherwise. A commit failure is returned as an error.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}
