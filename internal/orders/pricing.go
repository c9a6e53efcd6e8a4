package orders

import (
	"errors"

	"github.com/ariefcatur/go-kiosk-orders/internal/cart"
	"github.com/shopspring/decimal"
)

// Pricing carries the externally supplied fixed rates.
type Pricing struct {
	TaxRate      decimal.Decimal
	DiscountRate decimal.Decimal
	DeliveryFee  decimal.Decimal
}

func DefaultPricing() Pricing {
	return Pricing{
		TaxRate:      decimal.RequireFromString("0.05"),
		DiscountRate: decimal.RequireFromString("0.1"),
		DeliveryFee:  decimal.NewFromInt(49),
	}
}

func (p Pricing) Validate() error {
	one := decimal.NewFromInt(1)
	switch {
	case p.TaxRate.IsNegative() || p.TaxRate.GreaterThan(one):
		return errors.New("tax rate must be within [0,1]")
	case p.DiscountRate.IsNegative() || p.DiscountRate.GreaterThan(one):
		return errors.New("discount rate must be within [0,1]")
	case p.DeliveryFee.IsNegative():
		return errors.New("delivery fee must not be negative")
	}
	return nil
}

// Compute: total = subtotal - subtotal*discount + subtotal*tax + fee.
// Each component is rounded to cents before summing.
func (p Pricing) Compute(items []cart.Item) Totals {
	sub := decimal.Zero
	for _, it := range items {
		sub = sub.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	sub = sub.Round(2)
	disc := sub.Mul(p.DiscountRate).Round(2)
	tax := sub.Mul(p.TaxRate).Round(2)
	fee := p.DeliveryFee.Round(2)
	return Totals{
		Subtotal:    sub,
		Discount:    disc,
		Tax:         tax,
		DeliveryFee: fee,
		Total:       sub.Sub(disc).Add(tax).Add(fee),
	}
}
