package orders

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-kiosk-orders/internal/cart"
	"github.com/ariefcatur/go-kiosk-orders/internal/inventory"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrConflict: the order left the expected status before the update landed.
	ErrConflict = errors.New("order status changed concurrently")
)

type PaymentMethod string

const (
	PaymentCash    PaymentMethod = "Cash"
	PaymentEWallet PaymentMethod = "E-wallet"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cash":
		return PaymentCash, nil
	case "e-wallet", "ewallet":
		return PaymentEWallet, nil
	}
	return "", fmt.Errorf("unknown payment method %q", s)
}

type Totals struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	Discount    decimal.Decimal `json:"discount"`
	Tax         decimal.Decimal `json:"tax"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
	Total       decimal.Decimal `json:"total"`
}

// Order is the durable record of one checkout attempt. Only Status and the
// audit fields change after creation.
type Order struct {
	ID               string                `json:"order_id"`
	UserID           string                `json:"user_id"`
	PaymentMethod    PaymentMethod         `json:"payment_method"`
	Items            []cart.Item           `json:"items"`
	Totals           Totals                `json:"totals"`
	Status           Status                `json:"checkout_status"`
	PaymentSessionID string                `json:"payment_session_id,omitempty"`
	Shortfalls       []inventory.Shortfall `json:"shortfalls,omitempty"`
	NeedsAttention   bool                  `json:"needs_attention"`
	LastError        string                `json:"last_error,omitempty"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
}

// LineItems is the reconciliation input for the order's snapshot.
func (o Order) LineItems() []inventory.LineItem {
	out := make([]inventory.LineItem, 0, len(o.Items))
	for _, it := range o.Items {
		out = append(out, inventory.LineItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}

// Change is one audited status transition.
type Change struct {
	OrderID    string                `json:"order_id"`
	From       Status                `json:"from,omitempty"`
	To         Status                `json:"to"`
	Reason     string                `json:"reason,omitempty"`
	At         time.Time             `json:"at"`
	Shortfalls []inventory.Shortfall `json:"-"`
}

// NewOrderID is time-derived with a random suffix so two kiosks checking out
// in the same millisecond still get distinct ids.
func NewOrderID(now time.Time, suffix string) string {
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return fmt.Sprintf("order-%d-%s", now.UnixMilli(), suffix)
}
