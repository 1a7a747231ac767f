package money

import (
	"math"

	"github.com/shopspring/decimal"
)

// DefaultTaxRate is the consumption tax applied when a trade carries none.
const DefaultTaxRate = 0.10

// Line is the numeric view of a single line item.
type Line struct {
	Quantity  Number
	UnitPrice Number
	// Amount overrides Quantity × UnitPrice when set.
	Amount *Number
}

// Value returns the line amount.
func (l Line) Value() decimal.Decimal {
	if l.Amount != nil {
		return decimal.NewFromFloat(l.Amount.Float())
	}
	return decimal.NewFromFloat(l.Quantity.Float()).Mul(decimal.NewFromFloat(l.UnitPrice.Float()))
}

// Totals are the settlement figures of a trade, in yen.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Fees     decimal.Decimal `json:"fees"`
	Total    decimal.Decimal `json:"total"`
}

// Compute derives totals from lines. Tax is floor(subtotal × taxRate) and
// surcharges (shipping, insurance) are added after tax without being taxed.
func Compute(lines []Line, taxRate float64, surcharges ...Number) Totals {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Value())
	}

	if math.IsNaN(taxRate) || math.IsInf(taxRate, 0) {
		taxRate = 0
	}
	tax := subtotal.Mul(decimal.NewFromFloat(taxRate)).Floor()

	fees := decimal.Zero
	for _, s := range surcharges {
		fees = fees.Add(decimal.NewFromFloat(s.Float()))
	}

	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Fees:     fees,
		Total:    subtotal.Add(tax).Add(fees),
	}
}
