package payment

import "github.com/shopspring/decimal"

// MinorUnits converts a two-decimal amount to the provider's integer unit.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
