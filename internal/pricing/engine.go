package pricing

import "github.com/shopspring/decimal"

// Money represents a monetary value with exact decimal arithmetic.
type Money = decimal.Decimal

// Cents is the number of decimal places money values are rounded to.
const Cents = 2

// Item describes a line item used for pricing calculation.
type Item struct {
	Qty       int
	UnitPrice Money
}

// Adjustments carries the externally computed invoice components.
type Adjustments struct {
	Shipping Money
	Tax      Money
	Discount Money
}

// Summary aggregates computed pricing components.
type Summary struct {
	Subtotal Money `json:"subtotal"`
	Shipping Money `json:"shipping"`
	Tax      Money `json:"tax"`
	Discount Money `json:"discount"`
	Total    Money `json:"total"`
}

// Subtotal sums price times quantity over every line regardless of kind.
func Subtotal(items []Item) Money {
	subtotal := decimal.Zero
	for _, it := range items {
		if it.Qty <= 0 {
			continue
		}
		subtotal = subtotal.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Qty))))
	}
	return subtotal
}

// Compute calculates cart totals given the provided inputs. The total is
// floored at zero; the discount itself is reported as given.
func Compute(items []Item, adj Adjustments) Summary {
	subtotal := Subtotal(items)
	shipping := NonNegative(adj.Shipping)
	tax := NonNegative(adj.Tax)
	discount := NonNegative(adj.Discount)
	total := NonNegative(subtotal.Add(shipping).Add(tax).Sub(discount))
	return Summary{
		Subtotal: Round(subtotal),
		Shipping: Round(shipping),
		Tax:      Round(tax),
		Discount: Round(discount),
		Total:    Round(total),
	}
}

// NonNegative clamps negative values to zero.
func NonNegative(v Money) Money {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

// Round rounds to cents, half away from zero.
func Round(v Money) Money {
	return v.Round(Cents)
}

// FromFloat is a convenience for rate tables and tests.
func FromFloat(v float64) Money {
	return decimal.NewFromFloat(v)
}
