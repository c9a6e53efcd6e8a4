package checkout

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-kiosk-orders/internal/inventory"
)

var (
	ErrEmptyCart = errors.New("cart is empty")
	// ErrReconciliationUnavailable: retries exhausted, the order stays Pending
	// and is flagged for an operator.
	ErrReconciliationUnavailable = inventory.ErrUnavailable
	ErrUnsupportedPayment        = errors.New("unsupported payment method")
	// ErrPaymentMismatch: a payment callback names a session the order was
	// not opened with, or an order that was not paid electronically.
	ErrPaymentMismatch = errors.New("payment does not match order")
)

// InsufficientStockError reports line items that could not be taken from
// stock. The order has been failed.
type InsufficientStockError struct {
	OrderID    string
	Shortfalls []inventory.Shortfall
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		parts = append(parts, fmt.Sprintf("%s (want %d, have %d, %s)", s.ProductID, s.Requested, s.Available, s.Reason))
	}
	return fmt.Sprintf("order %s: insufficient stock: %s", e.OrderID, strings.Join(parts, ", "))
}
